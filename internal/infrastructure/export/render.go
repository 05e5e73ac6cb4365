package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"ContentCurator/internal/domain"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// BaseName is the file or object stem for report: date, query slug and the
// first block of the run id.
func BaseName(report domain.RunReport) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(report.Query), "-"), "-")
	if len(slug) > 48 {
		slug = strings.TrimRight(slug[:48], "-")
	}
	if slug == "" {
		slug = "query"
	}
	id := report.RunID
	if i := strings.IndexByte(id, '-'); i > 0 {
		id = id[:i]
	}
	return fmt.Sprintf("%s-%s-%s", report.StartedAt.UTC().Format("20060102-150405"), slug, id)
}

// RenderJSON encodes the whole report.
func RenderJSON(report domain.RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderMarkdown renders the ranked results as a Markdown document with a
// summary table and per-result sections.
func RenderMarkdown(report domain.RunReport) []byte {
	var b strings.Builder
	m := report.Metrics

	fmt.Fprintf(&b, "# %s\n\n", report.Query)
	fmt.Fprintf(&b, "Run `%s` (%s), %s\n\n", report.RunID, report.Method, report.StartedAt.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "- Results: %d\n", m.TotalResults)
	fmt.Fprintf(&b, "- Average score: %.2f\n", m.AverageScore)
	fmt.Fprintf(&b, "- High quality: %d (threshold %.2f, ratio %.0f%%)\n", m.HighQualityCount, m.HighQualityThreshold, m.QualityRatio()*100)
	if len(m.UniqueDomains) > 0 {
		fmt.Fprintf(&b, "- Domains: %s\n", strings.Join(m.UniqueDomains, ", "))
	}
	b.WriteString("\n")

	if len(report.Results) == 0 {
		b.WriteString("No results.\n")
		return []byte(b.String())
	}

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"#", "Score", "Title", "Source"})
	for i, r := range report.Results {
		tw.AppendRow(table.Row{i + 1, fmt.Sprintf("%.2f", r.OverallScore), fmt.Sprintf("[%s](%s)", escapeCell(r.Title), r.URL), r.Source})
	}
	b.WriteString(tw.RenderMarkdown())
	b.WriteString("\n\n")

	for i, r := range report.Results {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, r.Title)
		fmt.Fprintf(&b, "%s\n\n", r.URL)
		fmt.Fprintf(&b, "Score **%.2f**", r.OverallScore)
		if r.Failed() {
			fmt.Fprintf(&b, " (evaluation failed: %s)", r.ErrorKind)
		}
		b.WriteString("\n\n")
		if len(r.Perspectives) > 0 {
			parts := make([]string, 0, len(r.Perspectives))
			for _, p := range r.Perspectives {
				parts = append(parts, fmt.Sprintf("%s %.2f", p.Name, p.OverallScore))
			}
			fmt.Fprintf(&b, "Perspectives: %s\n\n", strings.Join(parts, ", "))
		}
		if r.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", r.Summary)
		}
		if len(r.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n\n", strings.Join(r.Tags, ", "))
		}
	}
	return []byte(b.String())
}

func escapeCell(s string) string {
	return strings.NewReplacer("[", "\\[", "]", "\\]").Replace(s)
}
