package providercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryExpiresPerEntry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	cache := NewMemory(4, time.Hour)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	if err := cache.Set(ctx, "feed", []byte("xml"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := cache.Get(ctx, "feed")
	if err != nil || string(got) != "xml" {
		t.Fatalf("expected hit, got %q %v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.Get(ctx, "feed"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}

func TestMemoryEvictsOldest(t *testing.T) {
	t.Parallel()

	cache := NewMemory(2, time.Hour)
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		_ = cache.Set(ctx, key, []byte(key), 0)
	}
	if _, err := cache.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected a to be evicted")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
}

func TestRedisRoundTrip(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache, err := NewRedis(ctx, RedisOptions{Addr: mr.Addr(), Prefix: "cc:"})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer cache.Close()

	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := cache.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("cc:k") {
		t.Fatalf("expected prefixed key in redis")
	}
	got, err := cache.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected hit, got %q %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}

func TestFetchLoadsOnce(t *testing.T) {
	t.Parallel()

	cache := NewMemory(4, time.Hour)
	calls := 0
	load := func(context.Context) ([]byte, error) {
		calls++
		return []byte("payload"), nil
	}
	for i := 0; i < 3; i++ {
		got, err := Fetch(context.Background(), cache, "key", time.Minute, load)
		if err != nil || string(got) != "payload" {
			t.Fatalf("Fetch: %q %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single load, got %d", calls)
	}

	if _, err := Fetch(context.Background(), Nop{}, "key", time.Minute, func(context.Context) ([]byte, error) {
		return nil, errors.New("boom")
	}); err == nil {
		t.Fatalf("expected load error to propagate")
	}
}
