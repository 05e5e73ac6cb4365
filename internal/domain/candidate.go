package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DiscoveryMetadata carries whatever the provider returned alongside a URL.
type DiscoveryMetadata struct {
	PublishedAt time.Time      `json:"published_at,omitempty"`
	Author      string         `json:"author,omitempty"`
	Excerpt     string         `json:"excerpt,omitempty"`
	InlineText  string         `json:"inline_text,omitempty"`
	Popularity  int            `json:"popularity,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// CandidateItem is a discovered pointer to content that has not been scored yet.
type CandidateItem struct {
	URL       string            `json:"url"`
	Title     string            `json:"title"`
	SourceTag string            `json:"source"`
	Metadata  DiscoveryMetadata `json:"metadata"`
}

// ExtractedContent is the plain-text rendition of a candidate.
type ExtractedContent struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Text          string `json:"text"`
	FullText      string `json:"full_text"`
	TruncatedText string `json:"truncated_text"`
	ExtractMethod string `json:"extract_method"`
}

// ValidateURL reports whether raw is an absolute http(s) URL with a host.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("empty url")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// Domain returns the lower-cased hostname of raw without a leading "www.".
func Domain(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Descriptor renders the candidate as text for services that assess the URL
// directly instead of receiving extracted content.
func (c CandidateItem) Descriptor() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", c.URL)
	if c.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", c.Title)
	}
	if c.SourceTag != "" {
		fmt.Fprintf(&b, "Source: %s\n", c.SourceTag)
	}
	if c.Metadata.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", c.Metadata.Author)
	}
	if excerpt := strings.TrimSpace(c.Metadata.Excerpt); excerpt != "" {
		fmt.Fprintf(&b, "Excerpt: %s\n", excerpt)
	}
	return b.String()
}
