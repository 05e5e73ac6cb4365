package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"ContentCurator/internal/config"
	"ContentCurator/internal/domain"
)

// Substack reads the RSS feed of each configured newsletter.
type Substack struct {
	cfg    config.SourceConfig
	client *client
	// feedURL builds the feed address for a newsletter subdomain.
	feedURL func(newsletter string) string
}

// NewSubstack builds the newsletter adapter.
func NewSubstack(cfg config.SourceConfig, deps Deps) *Substack {
	s := &Substack{cfg: cfg, client: newClient(cfg, deps)}
	if base := strings.TrimRight(cfg.Endpoint, "/"); base != "" {
		s.feedURL = func(n string) string { return base + "/" + url.PathEscape(n) + "/feed" }
	} else {
		s.feedURL = func(n string) string { return "https://" + n + ".substack.com/feed" }
	}
	return s
}

// Name implements ports.Source.
func (s *Substack) Name() string { return s.cfg.Name }

// Discover implements ports.Source.
func (s *Substack) Discover(ctx context.Context, query string, limit int) ([]domain.CandidateItem, error) {
	limit = limitOf(limit, s.cfg.Limit)

	var (
		items    []domain.CandidateItem
		failures int
		lastErr  error
	)
	for _, target := range s.cfg.Targets {
		feedItems, err := s.fetch(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			lastErr = err
			s.client.logger.Warn("newsletter feed failed", "newsletter", target.Name, "error", err)
			continue
		}
		items = append(items, feedItems...)
	}
	if len(s.cfg.Targets) > 0 && failures == len(s.cfg.Targets) {
		return nil, fmt.Errorf("substack: all feeds failed: %w", lastErr)
	}

	items = rankByQuery(items, query)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Substack) fetch(ctx context.Context, target config.TargetConfig) ([]domain.CandidateItem, error) {
	feedURL := target.URL
	if feedURL == "" {
		feedURL = s.feedURL(target.Name)
	}
	body, err := s.client.get(ctx, feedURL, map[string]string{"Accept": "application/rss+xml, application/xml"})
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	items := make([]domain.CandidateItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		link := strings.TrimSpace(entry.Link)
		if !isSubstackPost(link) {
			continue
		}

		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}
		published := entry.PublishedParsed
		if published == nil {
			published = entry.UpdatedParsed
		}
		item := domain.CandidateItem{
			URL:       link,
			Title:     strings.TrimSpace(entry.Title),
			SourceTag: "substack_" + target.Name,
			Metadata: domain.DiscoveryMetadata{
				Author:  author,
				Excerpt: excerpt(plainText(entry.Description), 300),
				Extra:   map[string]any{"newsletter": target.Name},
			},
		}
		if published != nil {
			item.Metadata.PublishedAt = published.UTC()
		}
		if entry.Content != "" {
			item.Metadata.InlineText = plainText(entry.Content)
		}
		items = append(items, item)
	}
	return items, nil
}

// isSubstackPost accepts only /p/<slug> post URLs.
func isSubstackPost(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	return len(segments) == 2 && segments[0] == "p" && segments[1] != ""
}
