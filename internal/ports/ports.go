package ports

import (
	"context"
	"time"

	"ContentCurator/internal/domain"
)

// Source turns a query into candidate items from one provider.
type Source interface {
	Name() string
	Discover(ctx context.Context, query string, limit int) ([]domain.CandidateItem, error)
}

// URLMetadata is the payload stored for a processed URL.
type URLMetadata struct {
	Title       string  `json:"title,omitempty"`
	Source      string  `json:"source,omitempty"`
	ContentHash string  `json:"content_hash,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// CacheStore remembers processed URLs and evaluated content across runs.
type CacheStore interface {
	HasURL(url string, maxAge time.Duration) bool
	GetURLMetadata(url string) (URLMetadata, bool)
	PutURL(url string, metadata URLMetadata) error
	HasContent(text string) bool
	GetContentResult(text string) (domain.EvaluationResult, bool)
	PutContent(text string, result domain.EvaluationResult) error
	LookupURLResult(url string, maxAge time.Duration) (domain.EvaluationResult, bool)
}

// Extractor reduces a candidate to plain text.
type Extractor interface {
	Extract(ctx context.Context, url string) (domain.ExtractedContent, error)
	ExtractCandidate(ctx context.Context, item domain.CandidateItem) (domain.ExtractedContent, error)
}

// Evaluator scores content against the configured rubric.
type Evaluator interface {
	EvaluateContent(ctx context.Context, content domain.ExtractedContent, source string) (domain.EvaluationResult, error)
	EvaluateCandidate(ctx context.Context, item domain.CandidateItem) (domain.EvaluationResult, error)
}

// ScoreRequest is what a scoring backend receives for one item.
type ScoreRequest struct {
	SystemPrompt string
	UserPrompt   string
	Text         string
	Rubric       string
}

// Scorer is the external scoring service. It returns the raw JSON payload.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (string, error)
}

// ResultArchive keeps a queryable history of runs.
type ResultArchive interface {
	SaveRun(ctx context.Context, report domain.RunReport) error
}

// Exporter writes a finished run somewhere outside the process.
type Exporter interface {
	Export(ctx context.Context, report domain.RunReport) error
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// RunRecorder observes pipeline progress for metrics.
type RunRecorder interface {
	ObserveRun(report domain.RunReport, duration time.Duration)
	ObserveAdapter(source string, items int, err error)
}

// Scheduler controls when maintenance jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
