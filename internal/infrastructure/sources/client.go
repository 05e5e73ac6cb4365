// Package sources holds the provider adapters that turn a query into
// candidate items.
package sources

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ContentCurator/internal/config"
	"ContentCurator/internal/infrastructure/providercache"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/retry"
)

const (
	defaultUserAgent = "ContentCurator/1.0"
	maxResponseBytes = 4 << 20
)

// Deps are the collaborators shared by every adapter.
type Deps struct {
	HTTPClient *http.Client
	Cache      providercache.Cache
	Logger     *slog.Logger
	UserAgent  string
	// Sleeper replaces retry waits; tests use it to avoid real delays.
	Sleeper func(time.Duration)
}

// client is the rate-limited, retrying HTTP helper each adapter embeds.
type client struct {
	name      string
	http      *http.Client
	limiter   *rate.Limiter
	retrier   *retry.Retrier
	cache     providercache.Cache
	cacheTTL  time.Duration
	userAgent string
	logger    *slog.Logger
}

func newClient(cfg config.SourceConfig, deps Deps) *client {
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	userAgent := strings.TrimSpace(deps.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	cache := deps.Cache
	if cache == nil {
		cache = providercache.Nop{}
	}
	logger := logging.OrNop(deps.Logger).With("component", "source", "source", cfg.Name)

	var opts []retry.Option
	if deps.Sleeper != nil {
		opts = append(opts, retry.WithSleeper(deps.Sleeper))
	}

	return &client{
		name:      cfg.Name,
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		retrier:   retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Second}, retry.HTTPClassifier(), logger, opts...),
		cache:     cache,
		cacheTTL:  cfg.CacheTTL,
		userAgent: userAgent,
		logger:    logger,
	}
}

// do sends one request per attempt, waiting on the limiter before each.
func (c *client) do(ctx context.Context, method, target string, headers map[string]string, payload []byte) ([]byte, error) {
	var body []byte
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", target, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.NewStatusError(resp, snippet)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	})
	return body, err
}

// get fetches target through the provider cache.
func (c *client) get(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	return providercache.Fetch(ctx, c.cache, c.cacheKey(http.MethodGet, target, nil), c.cacheTTL, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, http.MethodGet, target, headers, nil)
	})
}

func (c *client) getJSON(ctx context.Context, target string, headers map[string]string, v any) error {
	body, err := c.get(ctx, target, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

func (c *client) postJSON(ctx context.Context, target string, headers map[string]string, payload, v any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	body, err := providercache.Fetch(ctx, c.cache, c.cacheKey(http.MethodPost, target, raw), c.cacheTTL, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, http.MethodPost, target, headers, raw)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

// cacheKey names a request in the provider cache. Targets and payloads can
// carry API keys, so only their digest appears in the key.
func (c *client) cacheKey(method, target string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(target))
	h.Write([]byte{0})
	h.Write(payload)
	return c.name + "|" + method + "|" + hex.EncodeToString(h.Sum(nil))
}

// limitOf applies the adapter's configured cap on top of the caller's limit.
func limitOf(requested, configured int) int {
	switch {
	case requested <= 0:
		return configured
	case configured > 0 && configured < requested:
		return configured
	default:
		return requested
	}
}

func endpointOr(cfg config.SourceConfig, fallback string) string {
	if v := strings.TrimSpace(cfg.Endpoint); v != "" {
		return strings.TrimRight(v, "/")
	}
	return fallback
}
