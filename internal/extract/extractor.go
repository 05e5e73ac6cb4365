// Package extract fetches candidate URLs and reduces them to plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"ContentCurator/internal/domain"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/retry"
)

const (
	defaultMinTextLength = 100
	defaultMaxTextLength = 25000
	defaultMaxBodyBytes  = 5 << 20
	defaultUserAgent     = "ContentCurator/1.0 (+https://github.com/contentcurator)"

	defaultTranscriptEndpoint = "https://www.youtube.com/api/timedtext"
	defaultRawGitHubBase      = "https://raw.githubusercontent.com"
)

// Config tunes extraction thresholds and the fetch retry policy.
type Config struct {
	MinTextLength int
	MaxTextLength int
	MaxBodyBytes  int64
	UserAgent     string
	Timeout       time.Duration
	Retry         retry.Config
}

// Extractor implements ports.Extractor with an ordered strategy chain.
type Extractor struct {
	cfg                Config
	client             *http.Client
	retrier            *retry.Retrier
	strategies         []Strategy
	logger             *slog.Logger
	transcriptEndpoint string
	rawGitHubBase      string
	retryOpts          []retry.Option
}

var _ ports.Extractor = (*Extractor)(nil)

// Option customizes the extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logging.OrNop(logger)
	}
}

// WithSleeper replaces retry waits (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(e *Extractor) {
		e.retryOpts = append(e.retryOpts, retry.WithSleeper(sleeper))
	}
}

// WithTranscriptEndpoint points video transcript lookups elsewhere.
func WithTranscriptEndpoint(endpoint string) Option {
	return func(e *Extractor) {
		e.transcriptEndpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithRawGitHubBase points README lookups elsewhere.
func WithRawGitHubBase(base string) Option {
	return func(e *Extractor) {
		e.rawGitHubBase = strings.TrimRight(base, "/")
	}
}

// WithStrategies replaces the HTML strategy chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// New builds an extractor; zero config values fall back to defaults.
func New(cfg Config, opts ...Option) *Extractor {
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = defaultMinTextLength
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = defaultMaxTextLength
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = time.Second
	}

	e := &Extractor{
		cfg:                cfg,
		client:             &http.Client{Timeout: cfg.Timeout},
		strategies:         DefaultStrategies(),
		logger:             logging.Nop(),
		transcriptEndpoint: defaultTranscriptEndpoint,
		rawGitHubBase:      defaultRawGitHubBase,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.retrier = retry.New(cfg.Retry,
		retry.HTTPClassifier(http.StatusForbidden),
		e.logger,
		e.retryOpts...)
	return e
}

// ExtractCandidate prefers text the provider already returned, then fetches.
func (e *Extractor) ExtractCandidate(ctx context.Context, item domain.CandidateItem) (domain.ExtractedContent, error) {
	if inline := strings.TrimSpace(item.Metadata.InlineText); inline != "" {
		text := inline
		if strings.Contains(text, "<") {
			text = stripTags(text)
		}
		if e.longEnough(text) {
			return e.build(item.URL, item.Title, text, "inline"), nil
		}
	}

	content, err := e.Extract(ctx, item.URL)
	if err != nil {
		return content, err
	}
	if content.Title == "" && item.Title != "" {
		content = e.build(content.URL, item.Title, content.Text, content.ExtractMethod)
	}
	return content, nil
}

// Extract fetches rawURL and runs the strategy chain. The first strategy
// yielding at least MinTextLength runes wins.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (domain.ExtractedContent, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || target.Host == "" {
		return domain.ExtractedContent{}, domain.NewItemError(domain.ErrExtractionFailed, rawURL, fmt.Errorf("invalid url"))
	}

	var reasons []error

	if id := youTubeVideoID(target); id != "" {
		text, err := e.fetchTranscript(ctx, id)
		if err == nil && e.longEnough(text) {
			return e.build(rawURL, "", text, "transcript"), nil
		}
		reasons = append(reasons, e.reason("transcript", err))
	}

	if owner, repo, ok := gitHubRepo(target); ok {
		text, err := e.fetchReadme(ctx, owner, repo)
		if err == nil && e.longEnough(text) {
			return e.build(rawURL, owner+"/"+repo, text, "readme"), nil
		}
		reasons = append(reasons, e.reason("readme", err))
	}

	page, err := e.fetch(ctx, rawURL)
	if err != nil {
		reasons = append(reasons, fmt.Errorf("fetch: %w", err))
		return domain.ExtractedContent{}, e.failed(rawURL, reasons)
	}
	page.URL = target

	switch {
	case isPDF(page):
		title, text, err := extractPDF(page.Body)
		if err == nil && e.longEnough(text) {
			return e.build(rawURL, title, text, "pdf"), nil
		}
		reasons = append(reasons, e.reason("pdf", err))
		return domain.ExtractedContent{}, e.failed(rawURL, reasons)
	case page.MediaType == "text/plain" || page.MediaType == "text/markdown":
		text := normalizeParagraphs(string(page.Body))
		if e.longEnough(text) {
			return e.build(rawURL, "", text, "plain"), nil
		}
		reasons = append(reasons, e.reason("plain", nil))
		return domain.ExtractedContent{}, e.failed(rawURL, reasons)
	}

	for _, strategy := range e.strategies {
		title, text, err := strategy.Extract(page)
		if err == nil && e.longEnough(text) {
			e.logger.Debug("content extracted",
				"url", rawURL,
				"method", strategy.Name(),
				"chars", utf8.RuneCountInString(text))
			return e.build(rawURL, title, text, strategy.Name()), nil
		}
		reasons = append(reasons, e.reason(strategy.Name(), err))
	}

	return domain.ExtractedContent{}, e.failed(rawURL, reasons)
}

func (e *Extractor) longEnough(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= e.cfg.MinTextLength
}

func (e *Extractor) reason(strategy string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", strategy, err)
	}
	return fmt.Errorf("%s: fewer than %d characters", strategy, e.cfg.MinTextLength)
}

func (e *Extractor) failed(rawURL string, reasons []error) error {
	err := domain.NewItemError(domain.ErrExtractionFailed, rawURL, errors.Join(reasons...))
	e.logger.Info("extraction failed", "url", rawURL, "reason", err.Err)
	return err
}

func (e *Extractor) build(rawURL, title, text, method string) domain.ExtractedContent {
	text = strings.TrimSpace(text)
	title = strings.TrimSpace(title)
	full := text
	if title != "" && !strings.HasPrefix(text, title) {
		full = title + "\n\n" + text
	}
	return domain.ExtractedContent{
		URL:           rawURL,
		Title:         title,
		Text:          text,
		FullText:      full,
		TruncatedText: truncateRunes(full, e.cfg.MaxTextLength),
		ExtractMethod: method,
	}
}

// Page is a fetched document handed to strategies.
type Page struct {
	URL       *url.URL
	Body      []byte
	MediaType string
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) (Page, error) {
	var page Page
	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		body, mediaType, err := e.get(ctx, rawURL, "text/html,application/xhtml+xml,text/plain;q=0.9,application/pdf;q=0.9,*/*;q=0.8")
		if err != nil {
			return err
		}
		page = Page{Body: body, MediaType: mediaType}
		return nil
	})
	return page, err
}

func (e *Extractor) get(ctx context.Context, rawURL, accept string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", retry.NewStatusError(resp, snippet)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return body, strings.ToLower(mediaType), nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
