package sources

import (
	"html"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"ContentCurator/internal/domain"
)

var stripPolicy = bluemonday.StrictPolicy()

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// plainText strips markup from provider-supplied HTML snippets.
func plainText(raw string) string {
	if !strings.Contains(raw, "<") {
		return strings.TrimSpace(html.UnescapeString(raw))
	}
	text := html.UnescapeString(stripPolicy.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}

func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

// queryTerms lower-cases the significant words of a query.
func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `"'.,;:!?()[]`)
		if len(w) < 3 {
			continue
		}
		if _, stop := redditStopwords[w]; stop {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

func relevance(terms []string, fields ...string) int {
	haystack := strings.ToLower(strings.Join(fields, " "))
	hits := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			hits++
		}
	}
	return hits
}

// rankByQuery orders items so that those mentioning more query terms come
// first; ties keep discovery order.
func rankByQuery(items []domain.CandidateItem, query string) []domain.CandidateItem {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return items
	}
	scores := make(map[string]int, len(items))
	for _, item := range items {
		scores[item.URL] = relevance(terms, item.Title, item.Metadata.Excerpt)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return scores[items[i].URL] > scores[items[j].URL]
	})
	return items
}
