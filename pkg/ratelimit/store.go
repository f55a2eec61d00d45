package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore persists throttle state.
type StateStore interface {
	Load(ctx context.Context) (*ThrottleState, error)
	Save(ctx context.Context, state *ThrottleState) error
}

// MemoryStore keeps throttle state in process.
type MemoryStore struct {
	mu    sync.Mutex
	state ThrottleState
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored state.
func (m *MemoryStore) Load(_ context.Context) (*ThrottleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	return &s, nil
}

// Save replaces the stored state.
func (m *MemoryStore) Save(_ context.Context, state *ThrottleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = *state
	return nil
}

// RedisStore shares throttle state between exporter processes hitting the
// same platform.
type RedisStore struct {
	redis *redis.Client
	scope string
}

// NewRedisStore creates a store whose keys are suffixed with scope.
func NewRedisStore(client *redis.Client, scope string) *RedisStore {
	return &RedisStore{redis: client, scope: scope}
}

func (s *RedisStore) key(base string) string {
	if s.scope == "" {
		return base
	}
	return base + ":" + s.scope
}

// Load retrieves the current throttle state from Redis.
// Returns a zero, unblocked state if no data exists.
func (s *RedisStore) Load(ctx context.Context) (*ThrottleState, error) {
	blockedUntil, err := s.redis.Get(ctx, s.key(RedisKeyBlockedUntil)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get blocked until: %w", err)
	}

	throttles, err := s.redis.Get(ctx, s.key(RedisKeyThrottles)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get throttles: %w", err)
	}

	lastUpdateStr, err := s.redis.Get(ctx, s.key(RedisKeyLastUpdate)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &ThrottleState{Throttles: throttles}
	if blockedUntil > 0 {
		state.BlockedUntil = time.UnixMilli(blockedUntil)
	}
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}
	return state, nil
}

// Save stores the state atomically. Keys expire an hour after the window
// closes so stale signals do not linger.
func (s *RedisStore) Save(ctx context.Context, state *ThrottleState) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	ttl := state.TimeUntilUnblocked() + time.Hour

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(RedisKeyBlockedUntil), state.BlockedUntil.UnixMilli(), ttl)
	pipe.Set(ctx, s.key(RedisKeyThrottles), state.Throttles, ttl)
	pipe.Set(ctx, s.key(RedisKeyLastUpdate), lastUpdateJSON, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}
	return nil
}
