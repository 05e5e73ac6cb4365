// Package evaluate scores content against a weighted rubric using an
// external scoring service.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ContentCurator/internal/domain"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
)

const failedSummary = "Evaluation failed"

// Evaluator implements ports.Evaluator.
type Evaluator struct {
	scorer       ports.Scorer
	rubric       domain.Rubric
	perspectives []domain.Perspective
	now          func() time.Time
	logger       *slog.Logger
}

var _ ports.Evaluator = (*Evaluator)(nil)

// Option customizes the evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logging.OrNop(logger)
	}
}

// WithPerspectives scores every item once per perspective and combines the
// results. Without perspectives the base rubric is used alone.
func WithPerspectives(perspectives ...domain.Perspective) Option {
	return func(e *Evaluator) {
		e.perspectives = append([]domain.Perspective(nil), perspectives...)
	}
}

// New wires a scorer with the rubric used by EvaluateContent and
// EvaluateCandidate.
func New(scorer ports.Scorer, rubric domain.Rubric, opts ...Option) *Evaluator {
	e := &Evaluator{scorer: scorer, rubric: rubric, now: time.Now, logger: logging.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rubric returns the configured rubric.
func (e *Evaluator) Rubric() domain.Rubric {
	return e.rubric
}

// Evaluate scores text against rubric. Malformed scorer output yields a
// tagged result and a nil error; a scorer failure yields a tagged result
// and the error.
func (e *Evaluator) Evaluate(ctx context.Context, text string, rubric domain.Rubric) (domain.EvaluationResult, error) {
	return e.score(ctx, contentRequest("", rubric, text), rubric)
}

// EvaluateContent scores extracted content with the configured rubric or
// perspectives.
func (e *Evaluator) EvaluateContent(ctx context.Context, content domain.ExtractedContent, source string) (domain.EvaluationResult, error) {
	text := content.TruncatedText
	if text == "" {
		text = content.Text
	}
	result, err := e.run(ctx, func(role string, rubric domain.Rubric) ports.ScoreRequest {
		return contentRequest(role, rubric, text)
	})
	result.URL = content.URL
	result.Title = content.Title
	result.Source = source
	result.ExtractMethod = content.ExtractMethod
	return result, err
}

// EvaluateCandidate asks the scoring service to assess the URL itself.
func (e *Evaluator) EvaluateCandidate(ctx context.Context, item domain.CandidateItem) (domain.EvaluationResult, error) {
	descriptor := item.Descriptor()
	result, err := e.run(ctx, func(role string, rubric domain.Rubric) ports.ScoreRequest {
		return ports.ScoreRequest{
			SystemPrompt: systemPrompt(role, rubric),
			UserPrompt:   urlPrompt(rubric, descriptor),
			Text:         descriptor,
			Rubric:       rubric.Describe(),
		}
	})
	result.URL = item.URL
	result.Title = item.Title
	result.Source = item.SourceTag
	result.ExtractMethod = "direct"
	return result, err
}

type requestBuilder func(role string, rubric domain.Rubric) ports.ScoreRequest

func (e *Evaluator) run(ctx context.Context, build requestBuilder) (domain.EvaluationResult, error) {
	if len(e.perspectives) == 0 {
		return e.score(ctx, build("", e.rubric), e.rubric)
	}

	results := make([]domain.EvaluationResult, len(e.perspectives))
	var errs []error
	for i, p := range e.perspectives {
		result, err := e.score(ctx, build(p.Role, p.Rubric), p.Rubric)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		}
		results[i] = result
	}
	return combine(e.rubric, e.perspectives, results), errors.Join(errs...)
}

// combine averages perspective scores. Criterion scores are keyed
// "<perspective>.<criterion>"; the first scorer failure outranks malformed
// output when picking the combined error kind.
func combine(base domain.Rubric, perspectives []domain.Perspective, results []domain.EvaluationResult) domain.EvaluationResult {
	out := domain.EvaluationResult{
		CriteriaScores: map[string]domain.CriterionScore{},
		Tags:           []string{},
		Perspectives:   make([]domain.PerspectiveScore, 0, len(perspectives)),
	}
	seenTags := map[string]struct{}{}
	var (
		sum       float64
		summaries []string
		problems  []string
	)
	for i, p := range perspectives {
		r := results[i]
		sum += r.OverallScore
		for name, score := range r.CriteriaScores {
			out.CriteriaScores[p.Name+"."+name] = score
		}
		for _, tag := range r.Tags {
			if _, ok := seenTags[tag]; !ok {
				seenTags[tag] = struct{}{}
				out.Tags = append(out.Tags, tag)
			}
		}
		if r.Summary != "" {
			summaries = append(summaries, p.Name+": "+r.Summary)
		}
		if r.ErrorKind != "" {
			if out.ErrorKind == "" || r.ErrorKind == domain.ErrEvaluationFailed && out.ErrorKind != domain.ErrEvaluationFailed {
				out.ErrorKind = r.ErrorKind
			}
			problems = append(problems, p.Name+": "+r.Error)
		}
		if r.EvaluatedAt.After(out.EvaluatedAt) {
			out.EvaluatedAt = r.EvaluatedAt
		}
		out.Perspectives = append(out.Perspectives, domain.PerspectiveScore{
			Name:           p.Name,
			OverallScore:   r.OverallScore,
			CriteriaScores: r.CriteriaScores,
			Summary:        r.Summary,
			ErrorKind:      r.ErrorKind,
		})
	}
	out.OverallScore = base.Clamp(sum / float64(len(perspectives)))
	out.Summary = strings.Join(summaries, "\n")
	out.Error = strings.Join(problems, "; ")
	return out
}

func (e *Evaluator) score(ctx context.Context, req ports.ScoreRequest, rubric domain.Rubric) (domain.EvaluationResult, error) {
	if e.scorer == nil {
		err := fmt.Errorf("no scoring service configured")
		return e.failure(rubric, domain.ErrEvaluationFailed, err), err
	}

	raw, err := e.scorer.Score(ctx, req)
	if err != nil {
		err = fmt.Errorf("score: %w", err)
		return e.failure(rubric, domain.ErrEvaluationFailed, err), err
	}

	result := Parse(raw, rubric)
	result.EvaluatedAt = e.now().UTC()
	if result.ErrorKind != "" {
		e.logger.Warn("malformed scoring response",
			"kind", result.ErrorKind,
			"reason", result.Error,
			"overall_score", result.OverallScore)
	}
	return result, nil
}

func (e *Evaluator) failure(rubric domain.Rubric, kind domain.ErrorKind, err error) domain.EvaluationResult {
	return domain.EvaluationResult{
		OverallScore:   rubric.Min,
		CriteriaScores: map[string]domain.CriterionScore{},
		Summary:        failedSummary,
		Tags:           []string{domain.ErrorTag},
		EvaluatedAt:    e.now().UTC(),
		ErrorKind:      kind,
		Error:          err.Error(),
	}
}

func systemPrompt(role string, rubric domain.Rubric) string {
	if role == "" {
		role = "an expert technical content evaluator"
	}
	return fmt.Sprintf("You are %s. Score content strictly against the rubric "+
		"on a scale from %g to %g. Respond with JSON only.", role, rubric.Min, rubric.Max)
}

func contentRequest(role string, rubric domain.Rubric, text string) ports.ScoreRequest {
	return ports.ScoreRequest{
		SystemPrompt: systemPrompt(role, rubric),
		UserPrompt:   contentPrompt(rubric, text),
		Text:         text,
		Rubric:       rubric.Describe(),
	}
}

func responseSchema(rubric domain.Rubric) string {
	names := make([]string, 0, len(rubric.Criteria))
	for _, c := range rubric.Criteria {
		names = append(names, fmt.Sprintf("%q: {\"score\": <number>, \"rationale\": <string>}", c.Name))
	}
	return fmt.Sprintf(`{"scores": {%s}, "overall_score": <number>, "summary": <string>}`, strings.Join(names, ", "))
}

func contentPrompt(rubric domain.Rubric, text string) string {
	var b strings.Builder
	b.WriteString("Evaluate the following content.\n\nCriteria:\n")
	b.WriteString(rubric.Describe())
	b.WriteString("\nReturn JSON in exactly this shape:\n")
	b.WriteString(responseSchema(rubric))
	b.WriteString("\n\nContent:\n")
	b.WriteString(text)
	return b.String()
}

func urlPrompt(rubric domain.Rubric, descriptor string) string {
	var b strings.Builder
	b.WriteString("Visit and evaluate the resource described below.\n\nCriteria:\n")
	b.WriteString(rubric.Describe())
	b.WriteString("\nReturn JSON in exactly this shape:\n")
	b.WriteString(responseSchema(rubric))
	b.WriteString("\n\nResource:\n")
	b.WriteString(descriptor)
	return b.String()
}
