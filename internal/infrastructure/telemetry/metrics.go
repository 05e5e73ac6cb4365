// Package telemetry exposes pipeline counters as Prometheus metrics.
package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ContentCurator/internal/cache"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
)

const namespace = "contentcurator"

// Recorder collects run metrics in its own registry.
type Recorder struct {
	registry *prometheus.Registry
	textfile string
	logger   *slog.Logger

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	itemsTotal      *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	adapterItems    *prometheus.CounterVec
	adapterErrors   *prometheus.CounterVec
	lastAverage     prometheus.Gauge
	lastQuality     prometheus.Gauge
	purgedTotal     *prometheus.CounterVec
	purgeErrorTotal prometheus.Counter
}

var _ ports.RunRecorder = (*Recorder)(nil)

// NewRecorder registers all collectors. When textfile is set every observed
// run is flushed there in the node_exporter textfile format.
func NewRecorder(textfile string, logger *slog.Logger) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		textfile: textfile,
		logger:   logging.OrNop(logger).With("component", "telemetry"),

		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs",
			},
			[]string{"method", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of pipeline runs in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"method"},
		),
		itemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Candidates by pipeline outcome",
			},
			[]string{"outcome"},
		),
		failuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Recorded item and adapter failures by kind",
			},
			[]string{"kind"},
		),
		adapterItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_items_total",
				Help:      "Candidates returned per source adapter",
			},
			[]string{"source"},
		),
		adapterErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_errors_total",
				Help:      "Failed discovery calls per source adapter",
			},
			[]string{"source"},
		),
		lastAverage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_average_score",
			Help:      "Average overall score of the most recent run",
		}),
		lastQuality: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_quality_ratio",
			Help:      "High-quality ratio of the most recent run",
		}),
		purgedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_purged_total",
				Help:      "Cache entries removed by maintenance",
			},
			[]string{"tier"},
		),
		purgeErrorTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_purge_errors_total",
			Help:      "Failed cache purges",
		}),
	}
}

// Registry exposes the collectors, e.g. for promhttp.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records a finished or cancelled run.
func (r *Recorder) ObserveRun(report domain.RunReport, duration time.Duration) {
	method := string(report.Method)
	status := "done"
	if report.Stage != domain.StageDone {
		status = "cancelled"
	}
	r.runsTotal.WithLabelValues(method, status).Inc()
	r.runDuration.WithLabelValues(method).Observe(duration.Seconds())

	r.itemsTotal.WithLabelValues("discovered").Add(float64(report.Stats.Discovered))
	r.itemsTotal.WithLabelValues("unique").Add(float64(report.Stats.Unique))
	r.itemsTotal.WithLabelValues("cache_hit").Add(float64(report.Stats.CacheHits))
	r.itemsTotal.WithLabelValues("content_hit").Add(float64(report.Stats.ContentHits))
	r.itemsTotal.WithLabelValues("evaluated").Add(float64(report.Stats.Evaluated))
	for _, f := range report.Failures {
		r.failuresTotal.WithLabelValues(string(f.Kind)).Inc()
	}

	if status == "done" {
		r.lastAverage.Set(report.Metrics.AverageScore)
		r.lastQuality.Set(report.Metrics.QualityRatio())
	}
	r.flush()
}

// ObserveAdapter records one adapter's discovery call.
func (r *Recorder) ObserveAdapter(source string, items int, err error) {
	r.adapterItems.WithLabelValues(source).Add(float64(items))
	if err != nil {
		r.adapterErrors.WithLabelValues(source).Inc()
	}
}

// ObservePurge records a maintenance purge.
func (r *Recorder) ObservePurge(stats cache.PurgeStats, err error) {
	if err != nil {
		r.purgeErrorTotal.Inc()
	}
	r.purgedTotal.WithLabelValues("url").Add(float64(stats.URLsRemoved))
	r.purgedTotal.WithLabelValues("content").Add(float64(stats.ContentRemoved))
	r.flush()
}

// WriteTextfile writes the current metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (r *Recorder) flush() {
	if r.textfile == "" {
		return
	}
	if err := r.WriteTextfile(r.textfile); err != nil {
		r.logger.Warn("metrics flush failed", "path", r.textfile, "error", err)
	}
}
