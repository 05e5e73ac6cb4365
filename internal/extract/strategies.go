package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Strategy turns a fetched HTML page into a title and plain text.
type Strategy interface {
	Name() string
	Extract(page Page) (title, text string, err error)
}

// DefaultStrategies is readability, then the main-content heuristic, then
// the whole body stripped of markup.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ReadabilityStrategy{},
		MainContentStrategy{},
		FullBodyStrategy{},
	}
}

// ReadabilityStrategy uses the Readability algorithm to find the article.
type ReadabilityStrategy struct{}

func (ReadabilityStrategy) Name() string { return "readability" }

func (ReadabilityStrategy) Extract(page Page) (string, string, error) {
	article, err := readability.FromReader(bytes.NewReader(page.Body), page.URL)
	if err != nil {
		return "", "", fmt.Errorf("readability: %w", err)
	}
	return article.Title, normalizeParagraphs(article.TextContent), nil
}

// MainContentStrategy drops page chrome and collects text blocks from the
// most specific content container it can find.
type MainContentStrategy struct{}

var contentContainers = []string{"article", "main", "[role=main]", "#content", ".post-content", ".entry-content"}

func (MainContentStrategy) Name() string { return "main-content" }

func (MainContentStrategy) Extract(page Page) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	title := pageTitle(doc)

	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe, svg").Remove()
	doc.Find("[class*='comment'], [id*='comment'], [class*='share'], [class*='social']").Remove()

	root := doc.Selection
	for _, selector := range contentContainers {
		if found := doc.Find(selector).First(); found.Length() > 0 {
			root = found
			break
		}
	}

	var blocks []string
	root.Find("h1, h2, h3, h4, p, pre, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text != "" {
			blocks = append(blocks, text)
		}
	})
	return title, strings.Join(blocks, "\n\n"), nil
}

// FullBodyStrategy strips every tag from the body.
type FullBodyStrategy struct{}

func (FullBodyStrategy) Name() string { return "full-body" }

func (FullBodyStrategy) Extract(page Page) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", stripTags(string(page.Body)), nil
	}
	title := pageTitle(doc)
	doc.Find("script, style, noscript").Remove()
	body, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		body = string(page.Body)
	}
	return title, stripTags(body), nil
}

func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find("meta[property='og:title']").First().Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

var strictPolicy = bluemonday.StrictPolicy()

func stripTags(raw string) string {
	return strings.Join(strings.Fields(unescape(strictPolicy.Sanitize(raw))), " ")
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// normalizeParagraphs collapses runs of spaces inside lines and keeps at
// most one blank line between paragraphs.
func normalizeParagraphs(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
