package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ContentCurator/internal/cache"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/infrastructure/storage"
	"ContentCurator/internal/ports"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	t.Setenv("CACHE_DIR", "")
	t.Setenv("DATABASE_DSN", "")

	body := "cache:\n  dir: " + filepath.Join(dir, "cache") + "\n" +
		"archive:\n  driver: sqlite\n  dsn: file:" + filepath.Join(dir, "archive.db") + "\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCacheStatsAndPurge(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	store, err := cache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.PutURL("https://example.com/a", ports.URLMetadata{Title: "a"}); err != nil {
		t.Fatalf("PutURL: %v", err)
	}

	out, err := execute(t, "--config", cfgPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if !strings.Contains(out, "URLs:      1 (1 within") {
		t.Fatalf("unexpected stats output:\n%s", out)
	}

	out, err = execute(t, "--config", cfgPath, "cache", "purge", "--max-age", "1ns")
	if err != nil {
		t.Fatalf("cache purge: %v", err)
	}
	if !strings.Contains(out, "Removed 1 URLs and 0 content entries") {
		t.Fatalf("unexpected purge output:\n%s", out)
	}
}

func TestHistoryListsArchivedRuns(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	archive, err := storage.Open(context.Background(), storage.DriverSQLite, "file:"+filepath.Join(dir, "archive.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	results := []domain.EvaluationResult{{URL: "https://example.com/a", Title: "Reliable deploys", Source: "search", OverallScore: 8}}
	report := domain.RunReport{
		RunID:     "run-abc",
		Query:     "deploy safety",
		Method:    domain.MethodStandard,
		Results:   results,
		Metrics:   domain.ComputeMetrics("deploy safety", results, 7),
		StartedAt: time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC),
	}
	if err := archive.SaveRun(context.Background(), report); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	_ = archive.Close()

	out, err := execute(t, "--config", cfgPath, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "run-abc") || !strings.Contains(out, "deploy safety") {
		t.Fatalf("unexpected history output:\n%s", out)
	}

	out, err = execute(t, "--config", cfgPath, "history", "--run", "run-abc")
	if err != nil {
		t.Fatalf("history --run: %v", err)
	}
	if !strings.Contains(out, "Reliable deploys") {
		t.Fatalf("unexpected run output:\n%s", out)
	}
}

func TestRunRejectsUnknownOutput(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	if _, err := execute(t, "--config", cfgPath, "run", "--query", "q", "--output", "xml"); err == nil {
		t.Fatalf("expected output format error")
	}
}

func TestPrintReport(t *testing.T) {
	t.Parallel()

	results := []domain.EvaluationResult{
		{URL: "https://a.example.com/1", Title: "On-call that works", Source: "search", OverallScore: 8.25},
		{URL: "https://b.example.com/2", Title: "Broken", Source: "reddit_devops", OverallScore: 1, ErrorKind: domain.ErrEvaluationFailed},
	}
	report := domain.RunReport{
		Query:         "on-call",
		Results:       results,
		Metrics:       domain.ComputeMetrics("on-call", results, 7),
		AdapterErrors: map[string]string{"youtube": "provider_unavailable: quota"},
		Failures:      []domain.ItemFailure{{Kind: domain.ErrEvaluationFailed}},
	}

	var out bytes.Buffer
	printReport(&out, report)
	text := out.String()
	for _, want := range []string{"Query:        on-call", "8.25", "1.00 !", "Source youtube unavailable", "Failures:     1"} {
		if !strings.Contains(text, want) {
			t.Fatalf("report output missing %q:\n%s", want, text)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("  short  ", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("unexpected %q", got)
	}
}
