package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ContentCurator/internal/domain"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Understanding Go Schedulers</title></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article>
<h1>Understanding Go Schedulers</h1>
<p>The Go runtime multiplexes goroutines onto operating system threads using an M:N scheduler that keeps per-processor run queues.</p>
<p>Work stealing lets idle processors take goroutines from busy ones, which keeps all cores utilised without a global lock on the hot path.</p>
<p>Blocking system calls hand the processor off so that other goroutines continue to make progress while the thread waits in the kernel.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func newTestExtractor(opts ...Option) *Extractor {
	opts = append([]Option{WithSleeper(func(time.Duration) {})}, opts...)
	return New(Config{}, opts...)
}

func TestExtractArticle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	content, err := newTestExtractor().Extract(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(content.Text, "Work stealing lets idle processors") {
		t.Fatalf("expected article text, got %q", content.Text)
	}
	if strings.Contains(content.Text, "Copyright") {
		t.Fatalf("footer leaked into text: %q", content.Text)
	}
	switch content.ExtractMethod {
	case "readability", "main-content":
	default:
		t.Fatalf("unexpected extract method %q", content.ExtractMethod)
	}
	if content.TruncatedText == "" || content.FullText == "" {
		t.Fatalf("expected full and truncated text to be populated")
	}
}

func TestExtractRetriesThrottling(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	if _, err := newTestExtractor().Extract(context.Background(), srv.URL); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestExtractGivesUpAfterThreeAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestExtractor().Extract(context.Background(), srv.URL)
	if domain.KindOf(err) != domain.ErrExtractionFailed {
		t.Fatalf("expected extraction failure, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestExtractNotFoundFailsFast(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestExtractor().Extract(context.Background(), srv.URL)
	if domain.KindOf(err) != domain.ErrExtractionFailed {
		t.Fatalf("expected extraction failure, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestExtractShortPageFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Too short.</p></body></html>`)
	}))
	defer srv.Close()

	_, err := newTestExtractor().Extract(context.Background(), srv.URL)
	if domain.KindOf(err) != domain.ErrExtractionFailed {
		t.Fatalf("expected extraction failure for short page, got %v", err)
	}
}

func TestExtractMalformedHTML(t *testing.T) {
	t.Parallel()

	body := `<html><body><div><p>` + strings.Repeat("Unclosed tags should not stop extraction of readable text. ", 5) +
		`<div><span><p>More text <b>bold <i>nested</body>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	content, err := newTestExtractor().Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(content.Text, "Unclosed tags should not stop extraction") {
		t.Fatalf("unexpected text %q", content.Text)
	}
}

func TestExtractPlainText(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("plain text line with enough words to pass the minimum\n", 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, text)
	}))
	defer srv.Close()

	content, err := newTestExtractor().Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if content.ExtractMethod != "plain" {
		t.Fatalf("expected plain method, got %q", content.ExtractMethod)
	}
}

// buildPDF assembles a single-page PDF showing lines in Helvetica, with a
// cross-reference table whose offsets match the written objects.
func buildPDF(title string, lines []string) []byte {
	var stream strings.Builder
	stream.WriteString("BT /F1 12 Tf 72 720 Td 14 TL\n")
	for _, line := range lines {
		fmt.Fprintf(&stream, "(%s) Tj T*\n", line)
	}
	stream.WriteString("ET")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", stream.Len(), stream.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Title (%s) >>", title),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 6 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractPDF(t *testing.T) {
	t.Parallel()

	doc := buildPDF("Scaling Postgres Reads", []string{
		"Read replicas absorb analytical queries so the primary keeps serving writes.",
		"Connection pooling in front of each replica bounds the number of backend processes.",
		"Replication lag must be monitored before routing user facing reads.",
	})
	for _, tc := range []struct {
		name        string
		path        string
		contentType string
	}{
		{name: "declared type", path: "/paper", contentType: "application/pdf"},
		{name: "pdf path served as binary", path: "/files/paper.pdf", contentType: "application/octet-stream"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				_, _ = w.Write(doc)
			}))
			defer srv.Close()

			content, err := newTestExtractor().Extract(context.Background(), srv.URL+tc.path)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if content.ExtractMethod != "pdf" {
				t.Fatalf("expected pdf method, got %q", content.ExtractMethod)
			}
			if content.Title != "Scaling Postgres Reads" {
				t.Fatalf("unexpected title %q", content.Title)
			}
			if !strings.Contains(content.Text, "Read replicas absorb analytical queries") {
				t.Fatalf("expected page text, got %q", content.Text)
			}
		})
	}
}

func TestExtractMalformedPDF(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.7")
	}))
	defer srv.Close()

	_, err := newTestExtractor().Extract(context.Background(), srv.URL)
	if domain.KindOf(err) != domain.ErrExtractionFailed {
		t.Fatalf("expected extraction failure for a truncated pdf, got %v", err)
	}
}

func TestExtractCandidateUsesInlineText(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	item := domain.CandidateItem{
		URL:   srv.URL + "/abs/1234",
		Title: "A paper",
		Metadata: domain.DiscoveryMetadata{
			InlineText: "<p>" + strings.Repeat("An abstract that is long enough to be scored on its own. ", 3) + "</p>",
		},
	}
	content, err := newTestExtractor().ExtractCandidate(context.Background(), item)
	if err != nil {
		t.Fatalf("ExtractCandidate: %v", err)
	}
	if content.ExtractMethod != "inline" || content.Title != "A paper" {
		t.Fatalf("unexpected content: %+v", content)
	}
	if strings.Contains(content.Text, "<p>") {
		t.Fatalf("markup leaked into inline text: %q", content.Text)
	}
	if calls.Load() != 0 {
		t.Fatalf("inline text must not trigger a fetch")
	}
}

func TestExtractTranscript(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") != "abc123" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="utf-8" ?><transcript>
<text start="0" dur="2">Today we look at how the garbage collector</text>
<text start="2" dur="3">finds live objects with a tri-colour mark phase &amp;amp; sweeps the rest</text>
<text start="5" dur="3">and why write barriers are needed while the mutator keeps running.</text>
</transcript>`)
	}))
	defer srv.Close()

	ex := newTestExtractor(WithTranscriptEndpoint(srv.URL + "/timedtext"))
	content, err := ex.Extract(context.Background(), "https://www.youtube.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if content.ExtractMethod != "transcript" {
		t.Fatalf("expected transcript method, got %q", content.ExtractMethod)
	}
	if !strings.Contains(content.Text, "mark phase & sweeps") {
		t.Fatalf("expected unescaped transcript, got %q", content.Text)
	}
}

func TestExtractReadme(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/widget/HEAD/README.md" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "# Widget\n\n![badge](https://img.shields.io/x.svg)\n\n"+
			"Widget is a **fast** library for building [streaming pipelines](https://example.com/docs) in Go.\n\n"+
			"```go\nwidget.Run()\n```\n\nIt supports backpressure, retries and structured logging out of the box for production use.\n")
	}))
	defer srv.Close()

	ex := newTestExtractor(WithRawGitHubBase(srv.URL))
	content, err := ex.Extract(context.Background(), "https://github.com/acme/widget")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if content.ExtractMethod != "readme" {
		t.Fatalf("expected readme method, got %q", content.ExtractMethod)
	}
	if strings.Contains(content.Text, "widget.Run()") || strings.Contains(content.Text, "shields.io") {
		t.Fatalf("code or badges leaked: %q", content.Text)
	}
	if !strings.Contains(content.Text, "fast library for building streaming pipelines") {
		t.Fatalf("expected prose to survive, got %q", content.Text)
	}
}

func TestTruncatedTextIsCapped(t *testing.T) {
	t.Parallel()

	ex := New(Config{MaxTextLength: 50})
	content := ex.build("https://a.com", "", strings.Repeat("é", 200), "plain")
	if got := len([]rune(content.TruncatedText)); got != 50 {
		t.Fatalf("expected 50 runes, got %d", got)
	}
}
