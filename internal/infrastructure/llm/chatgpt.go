package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ContentCurator/internal/config"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/retry"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

// ChatGPTClient implements ports.Scorer backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
	retrier      *retry.Retrier
}

var _ ports.Scorer = (*ChatGPTClient)(nil)

// Option customizes the client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	retry      retry.Config
	retryOpts  []retry.Option
	logger     *slog.Logger
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(o *clientOptions) {
		o.retry.BaseDelay = baseDelay
		o.retry.MaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(o *clientOptions) {
		o.retryOpts = append(o.retryOpts, retry.WithSleeper(sleeper))
	}
}

// WithLogger attaches a logger to retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig, opts ...Option) *ChatGPTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	o := clientOptions{
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry.Config{MaxAttempts: cfg.MaxAttempts, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &ChatGPTClient{
		endpoint:     endpoint,
		model:        strings.TrimSpace(cfg.Model),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		systemPrompt: cfg.SystemPrompt,
		httpClient:   o.httpClient,
		retrier:      retry.New(o.retry, retry.HTTPClassifier(), logging.OrNop(o.logger), o.retryOpts...),
	}
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Score sends the rubric prompt and returns the model's JSON content.
func (c *ChatGPTClient) Score(ctx context.Context, req ports.ScoreRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("chatgpt client misconfigured")
	}
	if strings.TrimSpace(req.UserPrompt) == "" {
		return "", errors.New("chatgpt: user prompt required")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(req.SystemPrompt, c.systemPrompt)},
			{Role: "user", Content: req.UserPrompt},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	var content string
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		out, err := c.send(ctx, body)
		content = out
		return err
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *ChatGPTClient) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", retry.NewStatusError(resp, bytes.TrimSpace(limit(payload, 1024)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chatgpt error: %s", strings.TrimSpace(parsed.Error.Message))
	}
	for _, choice := range parsed.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if choice.Message.Refusal != "" {
			return "", fmt.Errorf("chatgpt refused: %s", choice.Message.Refusal)
		}
	}
	return "", errors.New("chatgpt returned no content")
}

func limit(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func safePrompt(prompts ...string) string {
	for _, prompt := range prompts {
		if prompt = strings.TrimSpace(prompt); prompt != "" {
			return prompt
		}
	}
	return "You are a strict technical content evaluator. Respond with JSON only."
}
