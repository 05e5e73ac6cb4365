package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ContentCurator/internal/ports"
	"ContentCurator/internal/retry"
)

// Client talks to an external scoring service that accepts text plus a
// rubric description and answers with a JSON score payload.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	retrier  *retry.Retrier
}

var _ ports.Scorer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration, opts ...retry.Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		retrier:  retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Second}, retry.HTTPClassifier(), nil, opts...),
	}
}

// Score posts the text and rubric to /score and returns the raw JSON body.
func (c *Client) Score(ctx context.Context, req ports.ScoreRequest) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("scoring service endpoint not configured")
	}

	payload := map[string]any{
		"text":   req.Text,
		"rubric": req.Rubric,
	}

	var raw json.RawMessage
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, "/score", payload, &raw)
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.NewStatusError(resp, snippet)
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
