package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func unescape(s string) string {
	// Transcripts are often double-encoded (&amp;#39;).
	return html.UnescapeString(html.UnescapeString(s))
}

func youTubeVideoID(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v")
		}
		if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			return strings.Trim(rest, "/")
		}
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	}
	return ""
}

func gitHubRepo(u *url.URL) (string, string, bool) {
	if strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") != "github.com" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (e *Extractor) fetchTranscript(ctx context.Context, videoID string) (string, error) {
	endpoint, err := url.Parse(e.transcriptEndpoint)
	if err != nil {
		return "", fmt.Errorf("transcript endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("v", videoID)
	q.Set("lang", "en")
	endpoint.RawQuery = q.Encode()

	var body []byte
	err = e.retrier.Do(ctx, func(ctx context.Context) error {
		b, _, err := e.get(ctx, endpoint.String(), "text/xml")
		body = b
		return err
	})
	if err != nil {
		return "", err
	}
	return parseTranscript(body)
}

func parseTranscript(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", errors.New("empty transcript")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse transcript: %w", err)
	}
	var parts []string
	doc.Find("text").Each(func(_ int, s *goquery.Selection) {
		line := strings.Join(strings.Fields(unescape(s.Text())), " ")
		if line != "" {
			parts = append(parts, line)
		}
	})
	if len(parts) == 0 {
		return "", errors.New("transcript has no text segments")
	}
	return strings.Join(parts, " "), nil
}

func (e *Extractor) fetchReadme(ctx context.Context, owner, repo string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/HEAD/README.md", e.rawGitHubBase, url.PathEscape(owner), url.PathEscape(repo))
	var body []byte
	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		b, _, err := e.get(ctx, endpoint, "text/plain")
		body = b
		return err
	})
	if err != nil {
		return "", err
	}
	return cleanMarkdown(string(body)), nil
}

var (
	mdFence    = regexp.MustCompile("(?s)```.*?```")
	mdImage    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdHTMLTag  = regexp.MustCompile(`<[^>]+>`)
	mdBareURL  = regexp.MustCompile(`https?://\S+`)
	mdHeadings = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdEmphasis = regexp.MustCompile(`[*_]{1,3}([^*_\n]+)[*_]{1,3}`)
)

// cleanMarkdown keeps the prose of a README and drops code, images, badges
// and raw URLs.
func cleanMarkdown(md string) string {
	md = mdFence.ReplaceAllString(md, " ")
	md = mdImage.ReplaceAllString(md, "")
	md = mdLink.ReplaceAllString(md, "$1")
	md = mdHTMLTag.ReplaceAllString(md, "")
	md = mdBareURL.ReplaceAllString(md, "")
	md = mdHeadings.ReplaceAllString(md, "")
	md = mdEmphasis.ReplaceAllString(md, "$1")
	return normalizeParagraphs(unescape(md))
}
