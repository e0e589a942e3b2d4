package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisad "reviewpulse/internal/adapters/redis"
	"reviewpulse/internal/domain"
)

func client(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redisad.NewClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestCache_RoundTripAndDelete(t *testing.T) {
	mr, c := client(t)
	cache := redisad.NewCache(c)
	ctx := context.Background()

	type page struct{ Items []string }
	var got page
	if ok, err := cache.Get(ctx, "k", &got); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, "k", page{Items: []string{"a", "b"}}, 60); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("k"); ttl != time.Minute {
		t.Fatalf("ttl not applied: %v", ttl)
	}
	if ok, err := cache.Get(ctx, "k", &got); !ok || err != nil || len(got.Items) != 2 {
		t.Fatalf("expected hit, got ok=%v err=%v %+v", ok, err, got)
	}
	if err := cache.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("k") {
		t.Fatal("key should be gone")
	}
}

func TestWindows_MonotonicCommit(t *testing.T) {
	mr, c := client(t)
	w := redisad.NewWindows(c)
	ctx := context.Background()

	if _, ok, err := w.LastSynced(ctx, "b1", domain.PlatformYelp); ok || err != nil {
		t.Fatalf("expected no record: ok=%v err=%v", ok, err)
	}
	t1 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := w.MarkSynced(ctx, "b1", domain.PlatformYelp, t1); err != nil {
		t.Fatal(err)
	}
	if err := w.MarkSynced(ctx, "b1", domain.PlatformYelp, t1.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, ok, err := w.LastSynced(ctx, "b1", domain.PlatformYelp)
	if err != nil || !ok || !got.Equal(t1) {
		t.Fatalf("window moved backwards: %v %v %v", got, ok, err)
	}
	if !mr.Exists("syncwin:b1:yelp") {
		t.Fatal("unexpected key layout")
	}
	if _, ok, _ := w.LastSynced(ctx, "b1", domain.PlatformGoogle); ok {
		t.Fatal("platforms must not share a window")
	}
}
