//go:build integration

package snapshot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(ctx)
	})
	return client
}

func TestRedisSink_WriteAndLoad(t *testing.T) {
	client := setupRedis(t)
	sink := NewRedisSink(client, time.Hour)
	ctx := context.Background()

	want := sample()
	if err := sink.Write(ctx, want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := sink.Load(ctx, "org1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if strings.Join(got.Resources(), ",") != strings.Join(want.Resources(), ",") {
		t.Errorf("Resources() = %v, want %v", got.Resources(), want.Resources())
	}
	for _, name := range want.Resources() {
		a, b := want.Records(name), got.Records(name)
		if len(a) != len(b) {
			t.Fatalf("%s: %d records, want %d", name, len(b), len(a))
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				t.Errorf("%s[%d] = %s, want %s", name, i, b[i], a[i])
			}
		}
	}
	if !got.Meta.ExportedAt.Equal(want.Meta.ExportedAt) || got.Meta.Version != "1.2.3" {
		t.Errorf("Meta = %+v, want %+v", got.Meta, want.Meta)
	}

	ttl, err := client.TTL(ctx, MetaKey("org1").String()).Result()
	if err != nil || ttl <= 0 || ttl > time.Hour {
		t.Errorf("meta TTL = %v, %v; want within an hour", ttl, err)
	}
}

func TestRedisSink_ReplacesStaleResources(t *testing.T) {
	client := setupRedis(t)
	sink := NewRedisSink(client, 0)
	ctx := context.Background()

	if err := sink.Write(ctx, sample()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	next := NewMarketplace("org1", "1.2.4")
	next.AddRecords("Buyers", []*record.Record{record.FromPairs("ID", "b9")})
	if err := sink.Write(ctx, next); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	exists, err := client.Exists(ctx, Key{MarketplaceID: "org1", Resource: "Products"}.String()).Result()
	if err != nil || exists != 0 {
		t.Errorf("stale Products key still present (exists=%d, err=%v)", exists, err)
	}

	got, err := sink.Load(ctx, "org1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Count("Buyers") != 1 || len(got.Resources()) != 1 {
		t.Errorf("loaded %v with %d buyers", got.Resources(), got.Count("Buyers"))
	}
}

func TestRedisSink_LoadMissing(t *testing.T) {
	sink := NewRedisSink(setupRedis(t), 0)
	if _, err := sink.Load(context.Background(), "nobody"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Load() error = %v, want ErrSnapshotNotFound", err)
	}
}
