package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisDeckCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return NewRedisDeckCache(client, ttl), srv
}

func TestDeckCachePutGet(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "u1"); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}

	deck := []string{"p3", "p1", "p2"}
	if err := c.Put(ctx, "u1", deck); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := c.Get(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(got) != 3 || got[0] != "p3" || got[1] != "p1" || got[2] != "p2" {
		t.Fatalf("deck order not preserved: %v", got)
	}
}

func TestDeckCachePutReplacesWholeDeck(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	if err := c.Put(ctx, "u1", []string{"p1", "p2"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Put(ctx, "u1", []string{"p9"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := c.Get(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0] != "p9" {
		t.Fatalf("old deck leaked through: %v", got)
	}
}

func TestDeckCacheRemove(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	if err := c.Put(ctx, "u1", []string{"p1", "p2", "p3"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Remove(ctx, "u1", "p2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, ok, err := c.Get(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0] != "p1" || got[1] != "p3" {
		t.Fatalf("unexpected deck after remove: %v", got)
	}

	// Removing an absent pet is a no-op.
	if err := c.Remove(ctx, "u1", "p2"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func TestDeckCacheDrainedDeckReadsAsMiss(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	if err := c.Put(ctx, "u1", []string{"p1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Remove(ctx, "u1", "p1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, err := c.Get(ctx, "u1"); err != nil || ok {
		t.Fatalf("drained deck must read as a miss, ok=%v err=%v", ok, err)
	}
}

func TestDeckCacheTTLExpiry(t *testing.T) {
	c, srv := newTestCache(t, time.Minute)
	ctx := context.Background()
	if err := c.Put(ctx, "u1", []string{"p1", "p2"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	srv.FastForward(2 * time.Minute)
	if _, ok, err := c.Get(ctx, "u1"); err != nil || ok {
		t.Fatalf("expired deck must read as a miss, ok=%v err=%v", ok, err)
	}
}

func TestDeckCachePutEmptyClears(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	if err := c.Put(ctx, "u1", []string{"p1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Put(ctx, "u1", nil); err != nil {
		t.Fatalf("put empty: %v", err)
	}
	if _, ok, err := c.Get(ctx, "u1"); err != nil || ok {
		t.Fatalf("empty put must clear the deck, ok=%v err=%v", ok, err)
	}
}
