package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ContentCurator/internal/cache"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/scanner"
)

const (
	defaultWorkers          = 8
	defaultPerSourceLimit   = 10
	defaultDiscoveryTimeout = 60 * time.Second
	defaultExtractTimeout   = 45 * time.Second
	defaultEvaluateTimeout  = 90 * time.Second
	defaultQualityFloor     = 7.0
	defaultURLMaxAge        = 7 * 24 * time.Hour
	defaultDigestTopN       = 5
)

// ErrNoQuery is returned when Run is called with a blank query.
var ErrNoQuery = errors.New("query is required")

// Config bounds the pipeline's concurrency and per-item work. A nil
// QualityFloor selects the default of 7.
type Config struct {
	Workers          int
	PerSourceLimit   int
	DiscoveryTimeout time.Duration
	ExtractTimeout   time.Duration
	EvaluateTimeout  time.Duration
	QualityFloor     *float64
	URLMaxAge        time.Duration
	DigestTopN       int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.PerSourceLimit <= 0 {
		c.PerSourceLimit = defaultPerSourceLimit
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = defaultDiscoveryTimeout
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = defaultExtractTimeout
	}
	if c.EvaluateTimeout <= 0 {
		c.EvaluateTimeout = defaultEvaluateTimeout
	}
	if c.QualityFloor == nil {
		floor := defaultQualityFloor
		c.QualityFloor = &floor
	}
	if c.URLMaxAge <= 0 {
		c.URLMaxAge = defaultURLMaxAge
	}
	if c.DigestTopN <= 0 {
		c.DigestTopN = defaultDigestTopN
	}
	return c
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sources   *scanner.Set
	Cache     ports.CacheStore
	Extractor ports.Extractor
	Evaluator ports.Evaluator
	Archive   ports.ResultArchive
	Exporters []ports.Exporter
	Notifier  ports.Notifier
	Recorder  ports.RunRecorder
	Logger    *slog.Logger
	Config    Config
	Now       func() time.Time
}

// Pipeline implements the discovery, filtering, evaluation and ranking
// workflow for one query at a time.
type Pipeline struct {
	sources   *scanner.Set
	cache     ports.CacheStore
	extractor ports.Extractor
	evaluator ports.Evaluator
	archive   ports.ResultArchive
	exporters []ports.Exporter
	notifier  ports.Notifier
	recorder  ports.RunRecorder
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		sources:   deps.Sources,
		cache:     deps.Cache,
		extractor: deps.Extractor,
		evaluator: deps.Evaluator,
		archive:   deps.Archive,
		exporters: deps.Exporters,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		logger:    logging.OrNop(deps.Logger).With("component", "pipeline"),
		cfg:       deps.Config.withDefaults(),
		now:       now,
	}
}

// RunPipeline runs one query and returns the ranked results with their
// metrics.
func (p *Pipeline) RunPipeline(ctx context.Context, query string, method domain.EvaluationMethod) ([]domain.EvaluationResult, domain.QueryMetrics, error) {
	report, err := p.Run(ctx, query, method)
	return report.Results, report.Metrics, err
}

// Run executes Discovering, Filtering, Evaluating and Aggregating for query.
// Per-item and per-adapter failures are recorded in the report; the only
// errors returned are a blank query and run cancellation, in which case the
// report still carries whatever completed before the cancel.
func (p *Pipeline) Run(ctx context.Context, query string, method domain.EvaluationMethod) (domain.RunReport, error) {
	query = strings.TrimSpace(query)
	if method == "" {
		method = domain.MethodStandard
	}
	report := domain.RunReport{
		RunID:     uuid.NewString(),
		Query:     query,
		Method:    method,
		Stage:     domain.StageDiscovering,
		StartedAt: p.now().UTC(),
	}
	if query == "" {
		return report, ErrNoQuery
	}
	logger := p.logger.With("run_id", report.RunID)
	logger.Info("run started", "query", query, "method", method)

	candidates := p.discover(ctx, query, &report, logger)
	if err := ctx.Err(); err != nil {
		return p.cancelled(report, err, logger)
	}

	p.advance(&report, domain.StageFiltering, logger)
	slots := make([]*domain.EvaluationResult, len(candidates))
	var misses []int
	for i, item := range candidates {
		if p.cache != nil {
			if cached, ok := p.cache.LookupURLResult(item.URL, p.cfg.URLMaxAge); ok {
				res := cached.WithCandidate(item)
				slots[i] = &res
				report.Stats.CacheHits++
				continue
			}
		}
		misses = append(misses, i)
	}
	logger.Info("cache filter applied", "hits", report.Stats.CacheHits, "misses", len(misses))

	p.advance(&report, domain.StageEvaluating, logger)
	outcomes := p.evaluate(ctx, candidates, misses, method, logger)
	for _, idx := range misses {
		out := outcomes[idx]
		if !out.started {
			report.Failures = append(report.Failures, domain.ItemFailure{
				URL:       candidates[idx].URL,
				SourceTag: candidates[idx].SourceTag,
				Kind:      domain.ErrRunCancelled,
				Reason:    "not dispatched before cancellation",
			})
			continue
		}
		if out.extracted {
			report.Stats.Extracted++
		}
		if out.contentHit {
			report.Stats.ContentHits++
		}
		if out.evaluated {
			report.Stats.Evaluated++
		}
		if out.failure != nil {
			report.Failures = append(report.Failures, *out.failure)
		}
		if out.result != nil {
			slots[idx] = out.result
		}
	}

	p.advance(&report, domain.StageAggregating, logger)
	report.Results = rank(slots)
	report.Metrics = domain.ComputeMetrics(query, report.Results, *p.cfg.QualityFloor)
	report.Stats.Failed = len(report.Failures)

	if err := ctx.Err(); err != nil {
		return p.cancelled(report, err, logger)
	}

	p.advance(&report, domain.StageDone, logger)
	report.FinishedAt = p.now().UTC()
	p.publish(ctx, report, logger)
	p.observe(report)

	logger.Info("run finished",
		"results", len(report.Results),
		"high_quality", report.Metrics.HighQualityCount,
		"threshold", report.Metrics.HighQualityThreshold,
		"failed", report.Stats.Failed,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds())
	return report, nil
}

// advance moves the run forward; stages never go back.
func (p *Pipeline) advance(report *domain.RunReport, next domain.Stage, logger *slog.Logger) {
	if next <= report.Stage {
		return
	}
	report.Stage = next
	logger.Debug("stage", "stage", next.String())
}

func (p *Pipeline) cancelled(report domain.RunReport, cause error, logger *slog.Logger) (domain.RunReport, error) {
	report.FinishedAt = p.now().UTC()
	logger.Warn("run cancelled", "stage", report.Stage.String(), "results", len(report.Results))
	p.observe(report)
	return report, domain.NewItemError(domain.ErrRunCancelled, "", cause)
}

// discover fans out to every adapter, merges in registration order, drops
// invalid URLs and keeps the first occurrence of each URL.
func (p *Pipeline) discover(ctx context.Context, query string, report *domain.RunReport, logger *slog.Logger) []domain.CandidateItem {
	sources := p.sources.Sources()
	perSource := make([][]domain.CandidateItem, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, p.cfg.DiscoveryTimeout)
			defer cancel()

			started := p.now()
			items, err := src.Discover(dctx, query, p.cfg.PerSourceLimit)
			if err == nil && dctx.Err() != nil {
				err = dctx.Err()
			}
			if err != nil {
				errs[i] = domain.NewItemError(domain.ErrProviderUnavailable, "", fmt.Errorf("%s: %w", src.Name(), err))
				items = nil
			}
			perSource[i] = items
			if p.recorder != nil {
				p.recorder.ObserveAdapter(src.Name(), len(items), err)
			}
			logger.Debug("adapter finished",
				"source", src.Name(),
				"items", len(items),
				"error", err,
				"duration_ms", p.now().Sub(started).Milliseconds())
			return nil
		})
	}
	_ = g.Wait()

	var (
		candidates []domain.CandidateItem
		seen       = map[string]struct{}{}
	)
	for i, items := range perSource {
		if errs[i] != nil {
			if report.AdapterErrors == nil {
				report.AdapterErrors = map[string]string{}
			}
			report.AdapterErrors[sources[i].Name()] = errs[i].Error()
			report.Failures = append(report.Failures, domain.ItemFailure{
				SourceTag: sources[i].Name(),
				Kind:      domain.ErrProviderUnavailable,
				Reason:    errs[i].Error(),
			})
			logger.Warn("adapter unavailable", "source", sources[i].Name(), "error", errs[i])
			continue
		}
		for _, item := range items {
			report.Stats.Discovered++
			item.URL = strings.TrimSpace(item.URL)
			if err := domain.ValidateURL(item.URL); err != nil {
				logger.Debug("dropping invalid candidate", "source", sources[i].Name(), "error", err)
				continue
			}
			if _, dup := seen[item.URL]; dup {
				continue
			}
			seen[item.URL] = struct{}{}
			if item.SourceTag == "" {
				item.SourceTag = sources[i].Name()
			}
			candidates = append(candidates, item)
		}
	}
	report.Stats.Unique = len(candidates)
	logger.Info("discovery finished", "discovered", report.Stats.Discovered, "unique", report.Stats.Unique, "adapter_errors", len(report.AdapterErrors))
	return candidates
}

type itemOutcome struct {
	started    bool
	extracted  bool
	contentHit bool
	evaluated  bool
	result     *domain.EvaluationResult
	failure    *domain.ItemFailure
}

// evaluate runs cache misses through a bounded pool. Cancelling ctx stops
// dispatch; items already running finish on a detached context so their
// cache writes complete. Outcomes are indexed like candidates.
func (p *Pipeline) evaluate(ctx context.Context, candidates []domain.CandidateItem, misses []int, method domain.EvaluationMethod, logger *slog.Logger) []itemOutcome {
	outcomes := make([]itemOutcome, len(candidates))
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, idx := range misses {
		idx := idx
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[idx] = p.process(workCtx, candidates[idx], method, logger)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// process extracts and evaluates one candidate. Successful evaluations are
// committed to the cache before returning.
func (p *Pipeline) process(ctx context.Context, item domain.CandidateItem, method domain.EvaluationMethod, logger *slog.Logger) itemOutcome {
	out := itemOutcome{started: true}
	log := logger.With("url", item.URL, "source", item.SourceTag)

	var (
		text    string
		content domain.ExtractedContent
	)
	if method == domain.MethodDirectService {
		text = item.Descriptor()
	} else {
		if p.extractor == nil {
			out.failure = failureFor(item, domain.ErrExtractionFailed, errors.New("no extractor configured"))
			return out
		}
		ectx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
		extracted, err := p.extractor.ExtractCandidate(ectx, item)
		cancel()
		if err != nil {
			log.Info("extraction failed", "error", err)
			out.failure = failureFor(item, domain.ErrExtractionFailed, err)
			return out
		}
		out.extracted = true
		content = extracted
		text = extracted.Text
	}

	hash := cache.HashContent(text)
	if p.cache != nil {
		if cached, ok := p.cache.GetContentResult(text); ok {
			res := cached.WithCandidate(item)
			out.contentHit = true
			out.result = &res
			p.rememberURL(item, res, hash, log)
			return out
		}
	}

	if p.evaluator == nil {
		out.failure = failureFor(item, domain.ErrEvaluationFailed, errors.New("no evaluator configured"))
		return out
	}

	vctx, cancel := context.WithTimeout(ctx, p.cfg.EvaluateTimeout)
	var (
		result domain.EvaluationResult
		err    error
	)
	if method == domain.MethodDirectService {
		result, err = p.evaluator.EvaluateCandidate(vctx, item)
	} else {
		result, err = p.evaluator.EvaluateContent(vctx, content, item.SourceTag)
	}
	cancel()

	result.URL = item.URL
	if result.Title == "" {
		result.Title = item.Title
	}
	if result.Source == "" {
		result.Source = item.SourceTag
	}
	result.ContentHash = hash
	out.result = &result

	switch {
	case err != nil:
		log.Warn("evaluation failed", "error", err)
		out.failure = failureFor(item, domain.ErrEvaluationFailed, err)
		return out
	case result.Failed():
		kind := result.ErrorKind
		if kind == "" {
			kind = domain.ErrEvaluationMalformed
		}
		out.evaluated = true
		out.failure = &domain.ItemFailure{URL: item.URL, SourceTag: item.SourceTag, Kind: kind, Reason: result.Error}
		return out
	}

	out.evaluated = true
	if p.cache != nil {
		if err := p.cache.PutContent(text, result); err != nil {
			log.Error("cache write failed", "tier", "content", "error", err)
		}
		p.rememberURL(item, result, hash, log)
	}
	return out
}

func (p *Pipeline) rememberURL(item domain.CandidateItem, result domain.EvaluationResult, hash string, log *slog.Logger) {
	if p.cache == nil {
		return
	}
	err := p.cache.PutURL(item.URL, ports.URLMetadata{
		Title:       item.Title,
		Source:      item.SourceTag,
		ContentHash: hash,
		Score:       result.OverallScore,
	})
	if err != nil {
		log.Error("cache write failed", "tier", "url", "error", err)
	}
}

func failureFor(item domain.CandidateItem, fallback domain.ErrorKind, err error) *domain.ItemFailure {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = fallback
	}
	return &domain.ItemFailure{URL: item.URL, SourceTag: item.SourceTag, Kind: kind, Reason: err.Error()}
}

// rank returns results in discovery order, stably sorted by score so ties
// keep that order.
func rank(slots []*domain.EvaluationResult) []domain.EvaluationResult {
	results := make([]domain.EvaluationResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].OverallScore > results[j].OverallScore
	})
	return results
}

// publish hands the finished report to every sink. Sink failures are logged
// only.
func (p *Pipeline) publish(ctx context.Context, report domain.RunReport, logger *slog.Logger) {
	if p.archive != nil {
		if err := p.archive.SaveRun(ctx, report); err != nil {
			logger.Error("archive run failed", "error", err)
		}
	}
	for _, exporter := range p.exporters {
		if exporter == nil {
			continue
		}
		if err := exporter.Export(ctx, report); err != nil {
			logger.Error("export run failed", "error", err)
		}
	}
	if p.notifier != nil && len(report.Results) > 0 {
		message := buildDigestMessage(report, p.cfg.DigestTopN)
		if err := p.notifier.PublishDigest(ctx, message); err != nil {
			logger.Error("publish digest failed", "error", err)
		}
	}
}

func (p *Pipeline) observe(report domain.RunReport) {
	if p.recorder == nil {
		return
	}
	end := report.FinishedAt
	if end.IsZero() {
		end = p.now().UTC()
	}
	p.recorder.ObserveRun(report, end.Sub(report.StartedAt))
}

func buildDigestMessage(report domain.RunReport, topN int) string {
	if len(report.Results) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top results for %q\n", report.Query)
	fmt.Fprintf(&b, "Average %.2f, %d of %d above %.2f\n\n",
		report.Metrics.AverageScore,
		report.Metrics.HighQualityCount,
		report.Metrics.TotalResults,
		report.Metrics.HighQualityThreshold)

	for i, result := range report.Results {
		if i == topN {
			break
		}
		fmt.Fprintf(&b, "- %s\nScore: %.2f\n%s\n%s\n\n",
			result.Title,
			result.OverallScore,
			result.Summary,
			result.URL)
	}
	return b.String()
}
