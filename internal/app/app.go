package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"ContentCurator/internal/cache"
	"ContentCurator/internal/config"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/evaluate"
	"ContentCurator/internal/extract"
	"ContentCurator/internal/infrastructure/export"
	"ContentCurator/internal/infrastructure/llm"
	"ContentCurator/internal/infrastructure/ml"
	"ContentCurator/internal/infrastructure/providercache"
	"ContentCurator/internal/infrastructure/scheduler"
	"ContentCurator/internal/infrastructure/sources"
	"ContentCurator/internal/infrastructure/storage"
	"ContentCurator/internal/infrastructure/telegram"
	"ContentCurator/internal/infrastructure/telemetry"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/scanner"
	"ContentCurator/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *cache.Store
	pipeline *usecase.Pipeline
	archive  *storage.Archive
	recorder *telemetry.Recorder
	closers  []func() error
}

// New builds every adapter the configuration enables.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format, nil)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	store, err := OpenCache(cfg, baseLogger)
	if err != nil {
		return nil, err
	}
	a.store = store

	rubric, err := cfg.Rubric.Build()
	if err != nil {
		return nil, fmt.Errorf("rubric: %w", err)
	}
	perspectives, err := cfg.Rubric.BuildPerspectives(rubric)
	if err != nil {
		return nil, err
	}
	scorer, err := NewScorer(cfg.Scoring, baseLogger)
	if err != nil {
		return nil, err
	}

	providerCache, err := a.providerCache(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	set, err := BuildSources(cfg.Sources, sources.Deps{
		HTTPClient: &http.Client{Timeout: cfg.Pipeline.DiscoveryTimeout},
		Cache:      providerCache,
		Logger:     baseLogger,
		UserAgent:  cfg.Pipeline.UserAgent,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	extractor := extract.New(extract.Config{
		MinTextLength: cfg.Pipeline.MinTextLength,
		MaxTextLength: cfg.Pipeline.MaxTextLength,
		UserAgent:     cfg.Pipeline.UserAgent,
		Timeout:       cfg.Pipeline.ExtractTimeout,
	}, extract.WithLogger(baseLogger.With("component", "extract")))
	evaluator := evaluate.New(scorer, rubric,
		evaluate.WithLogger(baseLogger.With("component", "evaluate")),
		evaluate.WithPerspectives(perspectives...))

	a.recorder = telemetry.NewRecorder(cfg.Metrics.Textfile, baseLogger)

	var archive ports.ResultArchive
	if strings.TrimSpace(cfg.Archive.DSN) != "" {
		a.archive, err = storage.Open(ctx, cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.archive.Close)
		archive = a.archive
	}

	exporters, err := buildExporters(ctx, cfg.Export)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(telegram.Options{
			BotToken: tg.BotToken,
			ChatID:   tg.ChatID,
			Endpoint: tg.Endpoint,
			Logger:   baseLogger,
		})
	}

	qualityFloor := cfg.Pipeline.QualityFloor
	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Sources:   set,
		Cache:     store,
		Extractor: extractor,
		Evaluator: evaluator,
		Archive:   archive,
		Exporters: exporters,
		Notifier:  notifier,
		Recorder:  a.recorder,
		Logger:    baseLogger,
		Config: usecase.Config{
			Workers:          cfg.Pipeline.Workers,
			PerSourceLimit:   cfg.Pipeline.PerSourceLimit,
			DiscoveryTimeout: cfg.Pipeline.DiscoveryTimeout,
			ExtractTimeout:   cfg.Pipeline.ExtractTimeout,
			EvaluateTimeout:  cfg.Pipeline.EvaluateTimeout,
			QualityFloor:     &qualityFloor,
			URLMaxAge:        cfg.Cache.URLMaxAge,
			DigestTopN:       cfg.Notifications.Telegram.TopN,
		},
	})
	baseLogger.Debug("application ready",
		"sources", set.Len(),
		"scoring", cfg.Scoring.Provider,
		"archive", archive != nil,
		"exporters", len(exporters),
		"notifier", notifier != nil)
	return a, nil
}

// Run executes one query. An empty method falls back to the configured one.
func (a *Application) Run(ctx context.Context, query, method string) (domain.RunReport, error) {
	if strings.TrimSpace(method) == "" {
		method = a.cfg.Pipeline.Method
	}
	m, err := domain.ParseEvaluationMethod(method)
	if err != nil {
		return domain.RunReport{}, err
	}
	return a.pipeline.Run(ctx, query, m)
}

// Cache exposes the persistent store.
func (a *Application) Cache() *cache.Store {
	return a.store
}

// Close releases connections opened by New.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) providerCache(ctx context.Context) (providercache.Cache, error) {
	pc := a.cfg.ProviderCache
	switch strings.ToLower(strings.TrimSpace(pc.Backend)) {
	case "", "memory":
		return providercache.NewMemory(pc.Size, pc.TTL), nil
	case "redis":
		r, err := providercache.NewRedis(ctx, providercache.RedisOptions{
			Addr:     pc.Redis.Addr,
			Password: pc.Redis.Password,
			DB:       pc.Redis.DB,
			Prefix:   pc.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("provider cache: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	case "none", "off":
		return providercache.Nop{}, nil
	default:
		return nil, fmt.Errorf("provider cache: unknown backend %q", pc.Backend)
	}
}

// OpenCache opens the persistent cache store described by cfg.
func OpenCache(cfg config.Config, logger *slog.Logger) (*cache.Store, error) {
	store, err := cache.Open(cfg.Cache.Dir,
		cache.WithURLMaxAge(cfg.Cache.URLMaxAge),
		cache.WithContentMaxAge(cfg.Cache.ContentMaxAge),
		cache.WithLogger(logging.OrNop(logger).With("component", "cache")))
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return store, nil
}

// BuildSources creates one adapter per enabled source entry.
func BuildSources(entries []config.SourceConfig, deps sources.Deps) (*scanner.Set, error) {
	set := &scanner.Set{}
	for _, entry := range entries {
		if !entry.IsEnabled() {
			continue
		}
		var src ports.Source
		switch entry.Kind {
		case config.KindSearch:
			src = sources.NewSearch(entry, deps)
		case config.KindReddit:
			src = sources.NewReddit(entry, deps)
		case config.KindSubstack:
			src = sources.NewSubstack(entry, deps)
		case config.KindYouTube:
			src = sources.NewYouTube(entry, deps)
		case config.KindArxiv:
			src = sources.NewArxiv(entry, deps)
		case config.KindGitHub:
			src = sources.NewGitHub(entry, deps)
		case config.KindBlogs:
			src = sources.NewBlogs(entry, deps)
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", entry.Name, entry.Kind)
		}
		if err := set.Register(src); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// NewScorer selects the scoring backend.
func NewScorer(cfg config.ScoringConfig, logger *slog.Logger) (ports.Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai", "chatgpt":
		if strings.TrimSpace(cfg.ChatGPT.APIKey) == "" {
			return nil, errors.New("scoring: openai api key is required")
		}
		return llm.NewChatGPTClient(cfg.ChatGPT, llm.WithLogger(logger)), nil
	case "cohere":
		if strings.TrimSpace(cfg.Cohere.APIKey) == "" {
			return nil, errors.New("scoring: cohere api key is required")
		}
		return llm.NewCohereScorer(cfg.Cohere), nil
	case "service", "ml":
		if strings.TrimSpace(cfg.ML.InferenceURL) == "" {
			return nil, errors.New("scoring: service inference url is required")
		}
		return ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey, cfg.ML.Timeout), nil
	default:
		return nil, fmt.Errorf("scoring: unknown provider %q", cfg.Provider)
	}
}

func buildExporters(ctx context.Context, cfg config.ExportConfig) ([]ports.Exporter, error) {
	var exporters []ports.Exporter
	if strings.TrimSpace(cfg.Dir) != "" {
		exporters = append(exporters, export.NewFileExporter(cfg.Dir))
	}
	if strings.TrimSpace(cfg.S3.Bucket) != "" {
		s3Exporter, err := export.NewS3Exporter(ctx, export.S3Options{
			Bucket: cfg.S3.Bucket,
			Prefix: cfg.S3.Prefix,
			Region: cfg.S3.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 export: %w", err)
		}
		exporters = append(exporters, s3Exporter)
	}
	return exporters, nil
}

// Maintain purges the cache every cfg.Cache.PurgeInterval until ctx ends.
func Maintain(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger = logging.OrNop(logger)
	store, err := OpenCache(cfg, logger)
	if err != nil {
		return err
	}
	recorder := telemetry.NewRecorder(cfg.Metrics.Textfile, logger)

	maintenance := usecase.NewMaintenance(
		scheduler.NewIntervalScheduler(cfg.Cache.PurgeInterval),
		store,
		cfg.Cache.ContentMaxAge,
		logger)
	maintenance.OnPurge(recorder.ObservePurge)

	if err := maintenance.Start(ctx); err != nil {
		return err
	}
	logger.Info("maintenance started", "interval", cfg.Cache.PurgeInterval, "max_age", cfg.Cache.ContentMaxAge)
	<-ctx.Done()
	return maintenance.Stop(context.WithoutCancel(ctx))
}
