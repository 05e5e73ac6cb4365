package sources

import (
	"context"
	"net/url"
	"strings"

	"ContentCurator/internal/config"
	"ContentCurator/internal/domain"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Search queries the Tavily web search API.
type Search struct {
	cfg      config.SourceConfig
	client   *client
	endpoint string
}

// NewSearch builds the web search adapter.
func NewSearch(cfg config.SourceConfig, deps Deps) *Search {
	return &Search{cfg: cfg, client: newClient(cfg, deps), endpoint: endpointOr(cfg, tavilyEndpoint)}
}

// Name implements ports.Source.
func (s *Search) Name() string { return s.cfg.Name }

type tavilyResponse struct {
	Results []struct {
		URL           string  `json:"url"`
		Title         string  `json:"title"`
		Content       string  `json:"content"`
		RawContent    string  `json:"raw_content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

// Discover implements ports.Source.
func (s *Search) Discover(ctx context.Context, query string, limit int) ([]domain.CandidateItem, error) {
	apiKey := strings.TrimSpace(s.cfg.Credentials.APIKey)
	if apiKey == "" {
		s.client.logger.Warn("search api key missing, skipping")
		return nil, nil
	}
	limit = limitOf(limit, s.cfg.Limit)

	payload := map[string]any{
		"api_key":        apiKey,
		"query":          query,
		"search_depth":   "advanced",
		"max_results":    limit,
		"include_answer": false,
	}
	var resp tavilyResponse
	if err := s.client.postJSON(ctx, s.endpoint, nil, payload, &resp); err != nil {
		return nil, err
	}

	items := make([]domain.CandidateItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(items) >= limit {
			break
		}
		link := strings.TrimSpace(r.URL)
		if link == "" || isMediumIndexPage(link) {
			continue
		}
		items = append(items, domain.CandidateItem{
			URL:       link,
			Title:     strings.TrimSpace(r.Title),
			SourceTag: s.cfg.Name,
			Metadata: domain.DiscoveryMetadata{
				Excerpt:     strings.TrimSpace(r.Content),
				PublishedAt: parseTime(r.PublishedDate),
				Extra:       map[string]any{"relevance": r.Score},
			},
		})
	}
	return items, nil
}

// isMediumIndexPage reports profile, publication, tag and sign-in pages that
// carry no article body.
func isMediumIndexPage(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "medium.com" && !strings.HasSuffix(host, ".medium.com") {
		return false
	}
	path := strings.Trim(parsed.Path, "/")
	segments := strings.Split(path, "/")
	switch {
	case path == "":
		return true
	case strings.HasPrefix(path, "tag/"), strings.HasPrefix(path, "m/signin"):
		return true
	case len(segments) == 1 && strings.HasPrefix(segments[0], "@"):
		return true
	case len(segments) == 1 && segments[0] == "publication":
		return true
	}
	return false
}
