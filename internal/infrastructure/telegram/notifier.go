package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/retry"
)

const (
	defaultEndpoint = "https://api.telegram.org"
	// maxMessageLen is the Bot API limit for sendMessage text.
	maxMessageLen = 4096
)

// Options configures the notifier.
type Options struct {
	BotToken   string
	ChatID     string
	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Sleeper    func(time.Duration)
}

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	endpoint string
	client   *http.Client
	retrier  *retry.Retrier
	logger   *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(opts Options) *Notifier {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	logger := logging.OrNop(opts.Logger).With("component", "telegram")
	var retryOpts []retry.Option
	if opts.Sleeper != nil {
		retryOpts = append(retryOpts, retry.WithSleeper(opts.Sleeper))
	}
	return &Notifier{
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		endpoint: endpoint,
		client:   client,
		retrier:  retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Second}, retry.HTTPClassifier(), logger, retryOpts...),
		logger:   logger,
	}
}

// PublishDigest posts digest as plain text, split into as many messages as
// the Bot API length limit requires.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if strings.TrimSpace(digest) == "" {
		return nil
	}

	chunks := splitMessage(digest, maxMessageLen)
	for i, chunk := range chunks {
		err := n.retrier.Do(ctx, func(ctx context.Context) error {
			return n.send(ctx, chunk)
		})
		if err != nil {
			return fmt.Errorf("send part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	n.logger.Debug("digest published", "parts", len(chunks))
	return nil
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (n *Notifier) send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.endpoint, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", redactToken(err, n.botToken))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		statusErr := retry.NewStatusError(resp, body)
		var parsed apiResponse
		if json.Unmarshal(body, &parsed) == nil {
			if parsed.Description != "" {
				statusErr.Body = parsed.Description
			}
			if parsed.Parameters.RetryAfter > 0 {
				statusErr.RetryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
			}
		}
		return statusErr
	}
	return nil
}

// redactToken keeps the bot token out of url.Error messages.
func redactToken(err error, token string) error {
	var urlErr *url.Error
	if token == "" || !errors.As(err, &urlErr) {
		return err
	}
	return &url.Error{
		Op:  urlErr.Op,
		URL: strings.ReplaceAll(urlErr.URL, token, "<redacted>"),
		Err: urlErr.Err,
	}
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// blank-line and then newline boundaries.
func splitMessage(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		window := string(runes[:limit])
		cut := strings.LastIndex(window, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, "\n")
		}
		if cut <= 0 {
			cut = len(window)
		}
		head := window[:cut]
		chunks = append(chunks, strings.TrimRight(head, "\n"))
		runes = runes[len([]rune(head)):]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
