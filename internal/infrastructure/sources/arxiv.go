package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"ContentCurator/internal/config"
	"ContentCurator/internal/domain"
)

const (
	arxivAPIURL  = "https://export.arxiv.org/api/query"
	arxivBaseURL = "https://arxiv.org"
)

var (
	defaultArxivCategories = []string{"cs.SE", "cs.CY", "cs.HC", "cs.AI"}
	arxivIDExpr            = regexp.MustCompile(`/(?:abs|pdf)/([^/?#]+?)(?:\.pdf)?$`)
)

// Arxiv queries the arXiv Atom API and keeps papers in the configured
// categories.
type Arxiv struct {
	cfg        config.SourceConfig
	client     *client
	endpoint   string
	categories map[string]struct{}
}

// NewArxiv builds the academic paper adapter. Options["categories"] is a
// comma-separated allow list; "*" disables the filter.
func NewArxiv(cfg config.SourceConfig, deps Deps) *Arxiv {
	a := &Arxiv{cfg: cfg, client: newClient(cfg, deps), endpoint: endpointOr(cfg, arxivAPIURL)}

	cats := defaultArxivCategories
	if raw, ok := cfg.Options["categories"]; ok && strings.TrimSpace(raw) != "" {
		cats = strings.Split(raw, ",")
	}
	if !(len(cats) == 1 && strings.TrimSpace(cats[0]) == "*") {
		a.categories = map[string]struct{}{}
		for _, c := range cats {
			if c = strings.TrimSpace(c); c != "" {
				a.categories[c] = struct{}{}
			}
		}
	}
	return a
}

// Name implements ports.Source.
func (a *Arxiv) Name() string { return a.cfg.Name }

// Discover implements ports.Source.
func (a *Arxiv) Discover(ctx context.Context, query string, limit int) ([]domain.CandidateItem, error) {
	limit = limitOf(limit, a.cfg.Limit)

	// Category filtering drops entries after the fact, so ask for more.
	pageURL, err := buildQueryURL(a.endpoint, query, limit*3)
	if err != nil {
		return nil, err
	}
	body, err := a.client.get(ctx, pageURL, map[string]string{"Accept": "application/atom+xml"})
	if err != nil {
		return nil, fmt.Errorf("arxiv query: %w", err)
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("arxiv parse feed: %w", err)
	}

	results := make([]domain.CandidateItem, 0, limit)
	seen := map[string]struct{}{}
	for _, entry := range feed.Items {
		if len(results) >= limit {
			break
		}
		item, ok := a.parseEntry(entry)
		if !ok {
			continue
		}
		if _, dup := seen[item.URL]; dup {
			continue
		}
		seen[item.URL] = struct{}{}
		results = append(results, item)
	}
	return results, nil
}

func (a *Arxiv) parseEntry(entry *gofeed.Item) (domain.CandidateItem, bool) {
	if entry == nil || !a.inCategories(entry.Categories) {
		return domain.CandidateItem{}, false
	}

	link := absURL(entry.Link)
	if link == "" {
		link = absURL(entry.GUID)
	}
	for _, l := range entry.Links {
		if link != "" {
			break
		}
		link = absURL(l)
	}
	if link == "" {
		return domain.CandidateItem{}, false
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, p := range entry.Authors {
		if p != nil && p.Name != "" {
			authors = append(authors, p.Name)
		}
	}

	summary := strings.Join(strings.Fields(entry.Description), " ")
	title := strings.Join(strings.Fields(entry.Title), " ")

	item := domain.CandidateItem{
		URL:       link,
		Title:     title,
		SourceTag: a.cfg.Name,
		Metadata: domain.DiscoveryMetadata{
			Author:     strings.Join(authors, ", "),
			Excerpt:    excerpt(summary, 300),
			InlineText: title + "\n\n" + summary,
			Extra:      map[string]any{"categories": entry.Categories},
		},
	}
	if entry.PublishedParsed != nil {
		item.Metadata.PublishedAt = entry.PublishedParsed.UTC()
	}
	return item, true
}

func (a *Arxiv) inCategories(categories []string) bool {
	if a.categories == nil {
		return true
	}
	for _, c := range categories {
		if _, ok := a.categories[c]; ok {
			return true
		}
	}
	return false
}

// absURL rewrites any arXiv abs or pdf link to the canonical abs page.
func absURL(raw string) string {
	match := arxivIDExpr.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return ""
	}
	return strings.TrimSuffix(arxivBaseURL, "/") + "/abs/" + match[1]
}

func buildQueryURL(base, query string, maxResults int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid arxiv endpoint %s: %w", base, err)
	}

	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = "all:" + t
	}

	q := parsed.Query()
	q.Set("search_query", strings.Join(terms, " OR "))
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "relevance")
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
