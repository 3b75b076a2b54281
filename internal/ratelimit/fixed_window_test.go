package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) *FixedWindowLimiter {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	l, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, window)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return l
}

func TestFixedWindowAllowsWithinLimit(t *testing.T) {
	l := newTestLimiter(t, 3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow("user-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("user-1") {
		t.Fatalf("request over limit should be denied")
	}
}

func TestFixedWindowKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)
	if !l.Allow("user-1") {
		t.Fatalf("first request for user-1 should be allowed")
	}
	if !l.Allow("user-2") {
		t.Fatalf("user-2 must not share user-1 quota")
	}
}

func TestFixedWindowRejectsBadConfig(t *testing.T) {
	if _, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	if _, err := NewFixedWindowLimiter(client, "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
