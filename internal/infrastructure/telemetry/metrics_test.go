package telemetry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ContentCurator/internal/cache"
	"ContentCurator/internal/domain"
)

func TestObserveRun(t *testing.T) {
	t.Parallel()

	textfile := filepath.Join(t.TempDir(), "contentcurator.prom")
	r := NewRecorder(textfile, nil)

	results := []domain.EvaluationResult{
		{URL: "https://a.example.com", OverallScore: 9},
		{URL: "https://b.example.com", OverallScore: 5},
	}
	report := domain.RunReport{
		Method:   domain.MethodStandard,
		Stage:    domain.StageDone,
		Results:  results,
		Metrics:  domain.ComputeMetrics("q", results, 7),
		Stats:    domain.RunStats{Discovered: 5, Unique: 4, CacheHits: 1, Evaluated: 2},
		Failures: []domain.ItemFailure{{Kind: domain.ErrExtractionFailed}, {Kind: domain.ErrExtractionFailed}},
	}
	r.ObserveAdapter("search", 3, nil)
	r.ObserveAdapter("reddit", 0, errors.New("timeout"))
	r.ObserveRun(report, 3*time.Second)

	if got := testutil.ToFloat64(r.runsTotal.WithLabelValues("standard", "done")); got != 1 {
		t.Fatalf("runs_total = %v", got)
	}
	if got := testutil.ToFloat64(r.itemsTotal.WithLabelValues("cache_hit")); got != 1 {
		t.Fatalf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(r.failuresTotal.WithLabelValues("extraction_failed")); got != 2 {
		t.Fatalf("failures = %v", got)
	}
	if got := testutil.ToFloat64(r.adapterErrors.WithLabelValues("reddit")); got != 1 {
		t.Fatalf("adapter errors = %v", got)
	}
	if got := testutil.ToFloat64(r.lastAverage); got != 7 {
		t.Fatalf("last average = %v", got)
	}

	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `contentcurator_adapter_items_total{source="search"} 3`) {
		t.Fatalf("textfile missing adapter counter:\n%s", data)
	}
}

func TestObserveCancelledRunKeepsLastGauges(t *testing.T) {
	t.Parallel()

	r := NewRecorder("", nil)
	r.ObserveRun(domain.RunReport{Method: domain.MethodDirectService, Stage: domain.StageEvaluating}, time.Second)

	if got := testutil.ToFloat64(r.runsTotal.WithLabelValues("directService", "cancelled")); got != 1 {
		t.Fatalf("cancelled runs = %v", got)
	}
	if got := testutil.ToFloat64(r.lastQuality); got != 0 {
		t.Fatalf("quality gauge should be untouched, got %v", got)
	}
}

func TestObservePurge(t *testing.T) {
	t.Parallel()

	r := NewRecorder("", nil)
	r.ObservePurge(cache.PurgeStats{URLsRemoved: 4, ContentRemoved: 2}, nil)
	r.ObservePurge(cache.PurgeStats{}, errors.New("disk full"))

	if got := testutil.ToFloat64(r.purgedTotal.WithLabelValues("url")); got != 4 {
		t.Fatalf("purged urls = %v", got)
	}
	if got := testutil.ToFloat64(r.purgeErrorTotal); got != 1 {
		t.Fatalf("purge errors = %v", got)
	}
}
