package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestWorkspaceBucketCapacity(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)

	allowed, err := bucket.AllowWorkspace(ctx, "/repo")
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed got allowed=%v err=%v", allowed, err)
	}
	allowed, _ = bucket.AllowWorkspace(ctx, "/repo")
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	allowed, _ = bucket.AllowWorkspace(ctx, "/repo")
	if allowed {
		t.Fatalf("expected third token to be rejected")
	}

	// Buckets are keyed per workspace; another repo is unaffected.
	allowed, _ = bucket.AllowWorkspace(ctx, "/other")
	if !allowed {
		t.Fatalf("expected fresh workspace to be allowed")
	}

	// Note: refill cannot be tested with miniredis.FastForward() because
	// the Lua script receives time from Go's time.Now(), not Redis's
	// internal clock.
}
