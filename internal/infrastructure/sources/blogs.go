package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ContentCurator/internal/config"
	"ContentCurator/internal/domain"
)

const (
	defaultLinkSelector  = "a[href]"
	defaultTitleSelector = "h1, h2, h3, .entry-title"
	maxPostsPerBlog      = 5
)

var blogIndexPrefixes = []string{"/tag/", "/tags/", "/category/", "/categories/", "/page/", "/author/"}

// Blogs scrapes listing pages of curated engineering blogs with CSS
// selectors.
type Blogs struct {
	cfg    config.SourceConfig
	client *client
}

// NewBlogs builds the curated blog adapter.
func NewBlogs(cfg config.SourceConfig, deps Deps) *Blogs {
	return &Blogs{cfg: cfg, client: newClient(cfg, deps)}
}

// Name implements ports.Source.
func (b *Blogs) Name() string { return b.cfg.Name }

// Discover implements ports.Source.
func (b *Blogs) Discover(ctx context.Context, query string, limit int) ([]domain.CandidateItem, error) {
	limit = limitOf(limit, b.cfg.Limit)

	var (
		items    []domain.CandidateItem
		failures int
		lastErr  error
	)
	for _, target := range b.cfg.Targets {
		posts, err := b.scan(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			lastErr = err
			b.client.logger.Warn("blog listing failed", "blog", target.Name, "error", err)
			continue
		}
		items = append(items, posts...)
	}
	if len(b.cfg.Targets) > 0 && failures == len(b.cfg.Targets) {
		return nil, fmt.Errorf("blogs: all listings failed: %w", lastErr)
	}

	items = rankByQuery(items, query)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (b *Blogs) scan(ctx context.Context, target config.TargetConfig) ([]domain.CandidateItem, error) {
	base, err := url.Parse(target.URL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid blog url %q", target.URL)
	}
	body, err := b.client.get(ctx, target.URL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	itemSel := target.ItemSelector
	if itemSel == "" {
		itemSel = "article"
	}
	linkSel := target.LinkSelector
	if linkSel == "" {
		linkSel = defaultLinkSelector
	}
	titleSel := target.TitleSelector
	if titleSel == "" {
		titleSel = defaultTitleSelector
	}
	sourceTag := "blog_" + strings.ReplaceAll(strings.ToLower(strings.TrimSpace(target.Name)), " ", "_")

	var (
		posts []domain.CandidateItem
		seen  = map[string]struct{}{}
	)
	doc.Find(itemSel).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel
		if goquery.NodeName(sel) != "a" {
			link = sel.Find(linkSel).First()
		}
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		resolved, err := base.Parse(strings.TrimSpace(href))
		if err != nil || !isBlogPost(base, resolved) {
			return true
		}
		resolved.Fragment = ""
		postURL := resolved.String()
		if _, dup := seen[postURL]; dup {
			return true
		}
		seen[postURL] = struct{}{}

		title := strings.TrimSpace(sel.Find(titleSel).First().Text())
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		posts = append(posts, domain.CandidateItem{
			URL:       postURL,
			Title:     strings.Join(strings.Fields(title), " "),
			SourceTag: sourceTag,
			Metadata: domain.DiscoveryMetadata{
				Excerpt: excerpt(sel.Find("p").First().Text(), 300),
				Extra:   map[string]any{"blog": target.Name},
			},
		})
		return len(posts) < maxPostsPerBlog
	})
	return posts, nil
}

// isBlogPost keeps same-host article pages and drops index pages.
func isBlogPost(base, candidate *url.URL) bool {
	if candidate.Scheme != "http" && candidate.Scheme != "https" {
		return false
	}
	if !strings.EqualFold(strings.TrimPrefix(candidate.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www.")) {
		return false
	}
	path := strings.ToLower(candidate.Path)
	if path == "" || path == "/" {
		return false
	}
	for _, prefix := range blogIndexPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}
