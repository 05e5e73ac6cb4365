package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"ContentCurator/internal/config"
	"ContentCurator/internal/domain"
)

const (
	githubAPIBase   = "https://api.github.com"
	defaultMinStars = 50
)

// GitHub searches repositories ordered by stars.
type GitHub struct {
	cfg      config.SourceConfig
	client   *client
	apiBase  string
	minStars int
}

// NewGitHub builds the repository adapter. Options["minStars"] overrides the
// star threshold.
func NewGitHub(cfg config.SourceConfig, deps Deps) *GitHub {
	minStars := defaultMinStars
	if raw := strings.TrimSpace(cfg.Options["minStars"]); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			minStars = v
		}
	}
	return &GitHub{cfg: cfg, client: newClient(cfg, deps), apiBase: endpointOr(cfg, githubAPIBase), minStars: minStars}
}

// Name implements ports.Source.
func (g *GitHub) Name() string { return g.cfg.Name }

type githubSearchResponse struct {
	Items []struct {
		Name            string `json:"name"`
		FullName        string `json:"full_name"`
		HTMLURL         string `json:"html_url"`
		Description     string `json:"description"`
		StargazersCount int    `json:"stargazers_count"`
		UpdatedAt       string `json:"updated_at"`
		Owner           struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"items"`
}

// Discover implements ports.Source. Anonymous access works with a lower
// upstream rate limit.
func (g *GitHub) Discover(ctx context.Context, query string, limit int) ([]domain.CandidateItem, error) {
	limit = limitOf(limit, g.cfg.Limit)

	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if token := strings.TrimSpace(g.cfg.Credentials.Token); token != "" {
		headers["Authorization"] = "Bearer " + token
	} else {
		g.client.logger.Debug("github token missing, using anonymous rate limit")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(min(100, limit*2)))
	target := fmt.Sprintf("%s/search/repositories?%s", g.apiBase, params.Encode())

	var resp githubSearchResponse
	if err := g.client.getJSON(ctx, target, headers, &resp); err != nil {
		return nil, fmt.Errorf("github search: %w", err)
	}

	items := make([]domain.CandidateItem, 0, limit)
	for _, repo := range resp.Items {
		if len(items) >= limit {
			break
		}
		if repo.StargazersCount < g.minStars || !isGitHubRepo(repo.HTMLURL) {
			continue
		}
		items = append(items, domain.CandidateItem{
			URL:       repo.HTMLURL,
			Title:     repo.FullName,
			SourceTag: g.cfg.Name,
			Metadata: domain.DiscoveryMetadata{
				Author:      repo.Owner.Login,
				Excerpt:     strings.TrimSpace(repo.Description),
				PublishedAt: parseTime(repo.UpdatedAt),
				Popularity:  repo.StargazersCount,
			},
		})
	}
	return items, nil
}

// isGitHubRepo accepts only https://github.com/<owner>/<repo>.
func isGitHubRepo(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "https" || !strings.EqualFold(parsed.Host, "github.com") {
		return false
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	return len(segments) == 2 && segments[0] != "" && segments[1] != ""
}
