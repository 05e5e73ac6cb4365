package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ContentCurator/internal/config"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/retry"
)

// YouTube searches videos through the Data API v3.
type YouTube struct {
	cfg     config.SourceConfig
	client  *client
	service *youtube.Service
	initErr error
}

// NewYouTube builds the video adapter. The API key travels as a query
// parameter so a caller-supplied HTTP client keeps working.
func NewYouTube(cfg config.SourceConfig, deps Deps) *YouTube {
	y := &YouTube{cfg: cfg, client: newClient(cfg, deps)}

	opts := []option.ClientOption{option.WithHTTPClient(y.client.http), option.WithUserAgent(y.client.userAgent)}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(endpoint, "/")+"/"))
	}
	y.service, y.initErr = youtube.NewService(context.Background(), opts...)
	return y
}

// Name implements ports.Source.
func (y *YouTube) Name() string { return y.cfg.Name }

// Discover implements ports.Source.
func (y *YouTube) Discover(ctx context.Context, query string, limit int) ([]domain.CandidateItem, error) {
	apiKey := strings.TrimSpace(y.cfg.Credentials.APIKey)
	if apiKey == "" {
		y.client.logger.Warn("youtube api key missing, skipping")
		return nil, nil
	}
	if y.initErr != nil {
		return nil, fmt.Errorf("youtube: init service: %w", y.initErr)
	}
	limit = limitOf(limit, y.cfg.Limit)

	var resp *youtube.SearchListResponse
	err := y.client.retrier.Do(ctx, func(ctx context.Context) error {
		if err := y.client.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		resp, err = y.service.Search.List([]string{"snippet"}).
			Q(query).
			Type("video").
			MaxResults(int64(limit)).
			Context(ctx).
			Do(googleapi.QueryParameter("key", apiKey))
		return asStatusError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}

	items := make([]domain.CandidateItem, 0, len(resp.Items))
	for _, r := range resp.Items {
		if r == nil || r.Id == nil || r.Snippet == nil || r.Id.VideoId == "" {
			continue
		}
		link := "https://www.youtube.com/watch?v=" + url.QueryEscape(r.Id.VideoId)
		if !isYouTubeWatch(link) {
			continue
		}
		items = append(items, domain.CandidateItem{
			URL:       link,
			Title:     plainText(r.Snippet.Title),
			SourceTag: y.cfg.Name,
			Metadata: domain.DiscoveryMetadata{
				Author:      r.Snippet.ChannelTitle,
				Excerpt:     excerpt(plainText(r.Snippet.Description), 300),
				PublishedAt: parseTime(r.Snippet.PublishedAt),
				Extra:       map[string]any{"video_id": r.Id.VideoId},
			},
		})
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

// asStatusError maps API errors onto retry.StatusError so the shared
// classifier can decide on retries.
func asStatusError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		se := &retry.StatusError{StatusCode: apiErr.Code, Status: http.StatusText(apiErr.Code), Body: apiErr.Message}
		if apiErr.Header != nil {
			se.RetryAfter, _ = retry.ParseRetryAfter(apiErr.Header.Get("Retry-After"))
		}
		return se
	}
	return err
}

// isYouTubeWatch accepts only watch?v=<id> URLs.
func isYouTubeWatch(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	return (host == "youtube.com" || host == "m.youtube.com") &&
		parsed.Path == "/watch" && parsed.Query().Get("v") != ""
}
