package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ContentCurator/internal/config"
	"ContentCurator/internal/infrastructure/providercache"
)

func testDeps(srv *httptest.Server) Deps {
	return Deps{
		HTTPClient: srv.Client(),
		Sleeper:    func(time.Duration) {},
	}
}

func testSource(name, kind, endpoint string) config.SourceConfig {
	return config.SourceConfig{
		Name:          name,
		Kind:          kind,
		Limit:         10,
		RatePerSecond: 1000,
		CacheTTL:      time.Minute,
		Endpoint:      endpoint,
	}
}

func TestClientRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "tester/1" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	deps := testDeps(srv)
	deps.UserAgent = "tester/1"
	c := newClient(testSource("x", "x", ""), deps)

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.getJSON(context.Background(), srv.URL, nil, &out); err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if !out.OK || calls.Load() != 3 {
		t.Fatalf("expected success on third attempt, calls=%d", calls.Load())
	}
}

func TestClientFailsFastOnNotFound(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newClient(testSource("x", "x", ""), testDeps(srv))
	if _, err := c.get(context.Background(), srv.URL, nil); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", calls.Load())
	}
}

func TestClientUsesProviderCache(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	deps := testDeps(srv)
	deps.Cache = providercache.NewMemory(8, time.Hour)
	c := newClient(testSource("x", "x", ""), deps)
	for i := 0; i < 3; i++ {
		if _, err := c.get(context.Background(), srv.URL, nil); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected cached responses, got %d calls", calls.Load())
	}
}

type recordingCache struct {
	providercache.Cache
	mu   sync.Mutex
	keys []string
}

func (r *recordingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return r.Cache.Set(ctx, key, value, ttl)
}

func TestClientCacheKeysHideCredentials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	rec := &recordingCache{Cache: providercache.NewMemory(8, time.Hour)}
	deps := testDeps(srv)
	deps.Cache = rec
	c := newClient(testSource("search", "search", ""), deps)

	var out map[string]any
	payload := map[string]any{"api_key": "tvly-secret", "query": "incident reviews"}
	if err := c.postJSON(context.Background(), srv.URL, nil, payload, &out); err != nil {
		t.Fatalf("postJSON: %v", err)
	}
	if _, err := c.get(context.Background(), srv.URL+"?key=yt-secret", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	other := map[string]any{"api_key": "tvly-secret", "query": "postmortems"}
	if err := c.postJSON(context.Background(), srv.URL, nil, other, &out); err != nil {
		t.Fatalf("postJSON: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.keys) != 3 {
		t.Fatalf("expected three distinct cache entries, got %v", rec.keys)
	}
	for _, key := range rec.keys {
		if strings.Contains(key, "secret") || strings.Contains(key, "incident") {
			t.Fatalf("cache key leaks request details: %q", key)
		}
		if !strings.HasPrefix(key, "search|") {
			t.Fatalf("cache key should name the source: %q", key)
		}
	}
	if rec.keys[0] == rec.keys[2] {
		t.Fatalf("different payloads must not share a key")
	}
}

func TestLimitOf(t *testing.T) {
	t.Parallel()

	cases := []struct{ requested, configured, want int }{
		{0, 10, 10},
		{5, 10, 5},
		{20, 10, 10},
		{7, 0, 7},
	}
	for _, tc := range cases {
		if got := limitOf(tc.requested, tc.configured); got != tc.want {
			t.Fatalf("limitOf(%d, %d) = %d, want %d", tc.requested, tc.configured, got, tc.want)
		}
	}
}
