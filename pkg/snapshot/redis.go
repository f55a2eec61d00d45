package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
	"github.com/redis/go-redis/v9"
)

// ErrSnapshotNotFound is returned by Load when no snapshot is stored.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// storedMeta is the meta entry: export meta plus the resource order.
type storedMeta struct {
	Meta
	Resources []string `json:"Resources"`
}

// RedisSink stores a snapshot as one JSON array per resource plus a meta
// entry listing the resources in order.
type RedisSink struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisSink creates a Redis sink. ttl <= 0 keeps entries forever.
func NewRedisSink(redisClient *redis.Client, ttl time.Duration) *RedisSink {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisSink{redis: redisClient, ttl: ttl}
}

func (s *RedisSink) expiry() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	return s.ttl
}

// Write replaces any stored snapshot of the same marketplace in a single
// transaction.
func (s *RedisSink) Write(ctx context.Context, m *Marketplace) error {
	mktID := m.Meta.MarketplaceID
	resources := m.Resources()

	stale, err := s.storedResources(ctx, mktID)
	if err != nil {
		return err
	}

	meta, err := json.Marshal(storedMeta{Meta: m.Meta, Resources: resources})
	if err != nil {
		SnapshotErrors.WithLabelValues("redis", "encode").Inc()
		return fmt.Errorf("marshal snapshot meta: %w", err)
	}

	size := len(meta)
	pipe := s.redis.TxPipeline()
	for _, name := range stale {
		pipe.Del(ctx, Key{MarketplaceID: mktID, Resource: name}.String())
	}
	for _, name := range resources {
		data, err := marshalRecords(m.Records(name))
		if err != nil {
			SnapshotErrors.WithLabelValues("redis", "encode").Inc()
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		size += len(data)
		pipe.Set(ctx, Key{MarketplaceID: mktID, Resource: name}.String(), data, s.expiry())
	}
	pipe.Set(ctx, MetaKey(mktID).String(), meta, s.expiry())

	if _, err := pipe.Exec(ctx); err != nil {
		SnapshotErrors.WithLabelValues("redis", "set").Inc()
		return fmt.Errorf("store snapshot in redis: %w", err)
	}

	SnapshotWrites.WithLabelValues("redis").Inc()
	SnapshotBytes.WithLabelValues("redis").Set(float64(size))
	return nil
}

func (s *RedisSink) storedResources(ctx context.Context, mktID string) ([]string, error) {
	meta, err := s.loadMeta(ctx, mktID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return meta.Resources, nil
}

func (s *RedisSink) loadMeta(ctx context.Context, mktID string) (*storedMeta, error) {
	data, err := s.redis.Get(ctx, MetaKey(mktID).String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, mktID)
	}
	if err != nil {
		SnapshotErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var meta storedMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		SnapshotErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("decode snapshot meta: %w", err)
	}
	return &meta, nil
}

// Load reads a stored snapshot back.
func (s *RedisSink) Load(ctx context.Context, marketplaceID string) (*Marketplace, error) {
	meta, err := s.loadMeta(ctx, marketplaceID)
	if err != nil {
		return nil, err
	}

	m := NewMarketplace(meta.MarketplaceID, meta.Version)
	m.Meta.ExportedAt = meta.ExportedAt

	for _, name := range meta.Resources {
		data, err := s.redis.Get(ctx, Key{MarketplaceID: marketplaceID, Resource: name}.String()).Bytes()
		if err != nil {
			SnapshotErrors.WithLabelValues("redis", "get").Inc()
			return nil, fmt.Errorf("redis get %s: %w", name, err)
		}
		records, err := record.DecodeList(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		m.AddRecords(name, records)
	}
	return m, nil
}
