// Package retry runs operations with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ContentCurator/internal/logging"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 10 * time.Second
)

// Config bounds the retry loop.
type Config struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// Classifier decides whether err is worth another attempt. A positive delay
// overrides the computed backoff (e.g. from Retry-After).
type Classifier func(err error) (retryable bool, after time.Duration)

// Retrier repeats an operation until it succeeds, fails permanently or runs
// out of attempts.
type Retrier struct {
	cfg      Config
	classify Classifier
	logger   *slog.Logger
	sleeper  func(time.Duration)
}

// Option customizes a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the wait between attempts (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(r *Retrier) {
		r.sleeper = sleeper
	}
}

// New builds a Retrier; zero config values fall back to defaults.
func New(cfg Config, classify Classifier, logger *slog.Logger, opts ...Option) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.BaseDelay == 0 && cfg.MaxDelay == 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if classify == nil {
		classify = HTTPClassifier()
	}
	r := &Retrier{cfg: cfg, classify: classify, logger: logging.OrNop(logger)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attempts reports the configured attempt budget.
func (r *Retrier) Attempts() int {
	return r.cfg.MaxAttempts
}

// Do runs op until it succeeds or a non-retryable error is returned.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry cancelled: %w", lastErr)
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}

		retryable, after := r.classify(lastErr)
		if !retryable || attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.Delay(attempt)
		if after > 0 {
			delay = min(after, r.cfg.MaxDelay)
		}
		r.logger.Debug("retry backoff wait",
			"attempt", attempt,
			"error", lastErr,
			"retry_delay_ms", delay.Milliseconds())

		if err := r.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", lastErr)
		}
	}
	return lastErr
}

// Delay is the backoff before attempt+1: base, base*2, base*4, capped.
func (r *Retrier) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := r.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		if delay > r.cfg.MaxDelay/2 {
			delay = r.cfg.MaxDelay
			break
		}
		delay *= 2
	}
	if delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}
	if r.cfg.JitterFactor > 0 {
		delay = time.Duration(float64(delay) * (1 + (rand.Float64()-0.5)*r.cfg.JitterFactor))
	}
	return delay
}

func (r *Retrier) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if r.sleeper != nil {
		r.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, body)
}

// NewStatusError captures resp status and Retry-After. body may be empty.
func NewStatusError(resp *http.Response, body []byte) *StatusError {
	after, _ := ParseRetryAfter(resp.Header.Get("Retry-After"))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
		RetryAfter: after,
	}
}

// HTTPClassifier retries 408, 429, 5xx and network timeouts, plus any extra
// status codes given.
func HTTPClassifier(extra ...int) Classifier {
	return func(err error) (bool, time.Duration) {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			code := statusErr.StatusCode
			retryable := code == http.StatusRequestTimeout ||
				code == http.StatusTooManyRequests ||
				code >= http.StatusInternalServerError
			for _, c := range extra {
				if code == c {
					retryable = true
				}
			}
			return retryable, statusErr.RetryAfter
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true, 0
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return true, 0
		}
		return false, 0
	}
}

// ParseRetryAfter accepts delta-seconds or an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
