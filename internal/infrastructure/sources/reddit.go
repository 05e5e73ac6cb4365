package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"ContentCurator/internal/config"
	"ContentCurator/internal/domain"
)

const (
	redditAPIBase     = "https://oauth.reddit.com"
	redditTokenURL    = "https://www.reddit.com/api/v1/access_token"
	redditSiteBase    = "https://www.reddit.com"
	minCommentLength  = 50
	maxRedditComments = 5
)

var redditStopwords = map[string]struct{}{
	"and": {}, "the": {}, "for": {}, "that": {}, "with": {}, "this": {}, "from": {},
}

// Reddit searches configured subreddits and attaches the top comments of
// each discussion as inline text.
type Reddit struct {
	cfg     config.SourceConfig
	client  *client
	apiBase string
}

// NewReddit builds the forum adapter. With credentials present the HTTP
// client performs the OAuth client-credentials exchange transparently.
func NewReddit(cfg config.SourceConfig, deps Deps) *Reddit {
	creds := cfg.Credentials
	if creds.ClientID != "" && creds.ClientSecret != "" {
		base := deps.HTTPClient
		if base == nil {
			base = &http.Client{Timeout: 30 * time.Second}
		}
		tokenURL := redditTokenURL
		if v := cfg.Options["tokenUrl"]; v != "" {
			tokenURL = v
		}
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		authed := cc.Client(ctx)
		authed.Timeout = base.Timeout
		deps.HTTPClient = authed
	}
	return &Reddit{cfg: cfg, client: newClient(cfg, deps), apiBase: endpointOr(cfg, redditAPIBase)}
}

// Name implements ports.Source.
func (r *Reddit) Name() string { return r.cfg.Name }

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	NumComments int     `json:"num_comments"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	CreatedUTC  float64 `json:"created_utc"`
	Subreddit   string  `json:"subreddit"`
	Body        string  `json:"body"`
}

// Discover implements ports.Source.
func (r *Reddit) Discover(ctx context.Context, query string, limit int) ([]domain.CandidateItem, error) {
	if r.cfg.Credentials.ClientID == "" || r.cfg.Credentials.ClientSecret == "" {
		r.client.logger.Warn("reddit credentials missing, skipping")
		return nil, nil
	}
	limit = limitOf(limit, r.cfg.Limit)
	if len(r.cfg.Targets) == 0 {
		return nil, nil
	}

	perSub := max(5, limit/len(r.cfg.Targets)+2)
	q := redditQuery(query)

	var (
		items    []domain.CandidateItem
		failures int
		lastErr  error
	)
	for _, target := range r.cfg.Targets {
		if len(items) >= limit {
			break
		}
		posts, err := r.search(ctx, target.Name, q, perSub)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			failures++
			lastErr = err
			r.client.logger.Warn("subreddit search failed", "subreddit", target.Name, "error", err)
			continue
		}
		for _, post := range posts {
			if len(items) >= limit {
				break
			}
			if post.Permalink == "" || post.NumComments < 1 {
				continue
			}
			comments, err := r.topComments(ctx, post.ID)
			if err != nil {
				r.client.logger.Debug("reddit comments unavailable", "post", post.ID, "error", err)
			}
			items = append(items, r.candidate(target.Name, post, comments))
		}
	}

	if failures == len(r.cfg.Targets) && lastErr != nil {
		return nil, fmt.Errorf("reddit: all subreddit searches failed: %w", lastErr)
	}
	return items, nil
}

func (r *Reddit) search(ctx context.Context, subreddit, query string, limit int) ([]redditPost, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("restrict_sr", "1")
	params.Set("sort", "relevance")
	params.Set("limit", strconv.Itoa(limit))
	target := fmt.Sprintf("%s/r/%s/search?%s", r.apiBase, url.PathEscape(subreddit), params.Encode())

	var listing redditListing
	if err := r.client.getJSON(ctx, target, nil, &listing); err != nil {
		return nil, err
	}
	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

func (r *Reddit) topComments(ctx context.Context, postID string) ([]redditPost, error) {
	target := fmt.Sprintf("%s/comments/%s?sort=top&limit=10&depth=1", r.apiBase, url.PathEscape(postID))
	var listings []redditListing
	if err := r.client.getJSON(ctx, target, nil, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, nil
	}
	var comments []redditPost
	for _, child := range listings[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		body := strings.TrimSpace(child.Data.Body)
		if len(body) <= minCommentLength {
			continue
		}
		comments = append(comments, child.Data)
		if len(comments) == maxRedditComments {
			break
		}
	}
	return comments, nil
}

func (r *Reddit) candidate(subreddit string, post redditPost, comments []redditPost) domain.CandidateItem {
	var b strings.Builder
	fmt.Fprintf(&b, "Reddit discussion from r/%s\n\nPOST TITLE: %s\n\nPOST CONTENT:\n%s\n", subreddit, post.Title, strings.TrimSpace(post.Selftext))
	if len(comments) > 0 {
		b.WriteString("\nTOP COMMENTS:\n")
		for i, c := range comments {
			fmt.Fprintf(&b, "\nComment %d (by u/%s, %d points):\n%s\n", i+1, c.Author, c.Score, strings.TrimSpace(c.Body))
		}
	}

	var published time.Time
	if post.CreatedUTC > 0 {
		published = time.Unix(int64(post.CreatedUTC), 0).UTC()
	}

	return domain.CandidateItem{
		URL:       redditSiteBase + post.Permalink,
		Title:     strings.TrimSpace(post.Title),
		SourceTag: "reddit_" + subreddit,
		Metadata: domain.DiscoveryMetadata{
			PublishedAt: published,
			Author:      post.Author,
			Excerpt:     excerpt(post.Selftext, 300),
			InlineText:  b.String(),
			Popularity:  post.Score,
			Extra: map[string]any{
				"num_comments": post.NumComments,
				"subreddit":    subreddit,
			},
		},
	}
}

// redditQuery narrows long queries to their significant terms joined by OR,
// since subreddit search matches every word otherwise.
func redditQuery(query string) string {
	parts := strings.Fields(query)
	if len(parts) <= 3 {
		return query
	}
	var terms []string
	for _, p := range parts {
		if len(p) <= 4 {
			continue
		}
		if _, stop := redditStopwords[strings.ToLower(p)]; stop {
			continue
		}
		terms = append(terms, p)
		if len(terms) == 4 {
			break
		}
	}
	if len(terms) == 0 {
		return query
	}
	return strings.Join(terms, " OR ")
}
