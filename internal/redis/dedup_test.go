package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestDeduper_FirstDelivery(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	d := NewDeduper(client, zap.NewNop())
	ctx := context.Background()

	fresh, err := d.Reserve(ctx, "evt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fresh {
		t.Fatal("first delivery should be fresh")
	}
}

func TestDeduper_Redelivery(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	d := NewDeduper(client, zap.NewNop())
	ctx := context.Background()

	if _, err := d.Reserve(ctx, "evt-1"); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}

	fresh, err := d.Reserve(ctx, "evt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh {
		t.Fatal("redelivery should be suppressed")
	}
}

func TestDeduper_SeparateEvents(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	d := NewDeduper(client, zap.NewNop())
	ctx := context.Background()

	if _, err := d.Reserve(ctx, "evt-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	fresh, err := d.Reserve(ctx, "evt-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fresh {
		t.Fatal("distinct event ids should not collide")
	}
}

func TestDeduper_ReleaseAllowsRetry(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	d := NewDeduper(client, zap.NewNop())
	ctx := context.Background()

	if _, err := d.Reserve(ctx, "evt-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if err := d.Release(ctx, "evt-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	fresh, err := d.Reserve(ctx, "evt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fresh {
		t.Fatal("released event should be reservable again")
	}
}
