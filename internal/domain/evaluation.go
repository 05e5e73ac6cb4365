package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrorTag marks results whose scores could not be trusted.
const ErrorTag = "evaluation_error"

const weightTolerance = 1e-6

// CriterionScore is one rubric dimension as scored by the scoring service.
type CriterionScore struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale,omitempty"`
}

// EvaluationResult is the scored outcome for one candidate. Values are never
// mutated once built; derive copies with WithCandidate.
type EvaluationResult struct {
	URL            string                    `json:"url"`
	Title          string                    `json:"title"`
	Source         string                    `json:"source"`
	OverallScore   float64                   `json:"overall_score"`
	CriteriaScores map[string]CriterionScore `json:"criteria_scores"`
	Summary        string                    `json:"summary"`
	Tags           []string                  `json:"tags"`
	EvaluatedAt    time.Time                 `json:"evaluated_at"`
	ContentHash    string                    `json:"content_hash,omitempty"`
	ExtractMethod  string                    `json:"extract_method,omitempty"`
	ErrorKind      ErrorKind                 `json:"error_kind,omitempty"`
	Error          string                    `json:"error,omitempty"`
	Perspectives   []PerspectiveScore        `json:"perspectives,omitempty"`
}

// Failed reports whether the result is tagged as an evaluation error.
func (r EvaluationResult) Failed() bool {
	if r.ErrorKind != "" {
		return true
	}
	for _, tag := range r.Tags {
		if tag == ErrorTag {
			return true
		}
	}
	return false
}

// WithCandidate returns a copy attributed to another URL, title and source.
func (r EvaluationResult) WithCandidate(item CandidateItem) EvaluationResult {
	out := r
	out.URL = item.URL
	if item.Title != "" {
		out.Title = item.Title
	}
	if item.SourceTag != "" {
		out.Source = item.SourceTag
	}
	if r.CriteriaScores != nil {
		out.CriteriaScores = make(map[string]CriterionScore, len(r.CriteriaScores))
		for k, v := range r.CriteriaScores {
			out.CriteriaScores[k] = v
		}
	}
	if r.Tags != nil {
		out.Tags = append([]string{}, r.Tags...)
	}
	if r.Perspectives != nil {
		out.Perspectives = append([]PerspectiveScore{}, r.Perspectives...)
	}
	return out
}

// Criterion is one weighted rubric dimension.
type Criterion struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Weight      float64 `yaml:"weight" json:"weight"`
}

// Rubric is an ordered set of criteria whose weights sum to 1.
type Rubric struct {
	Criteria          []Criterion
	Min               float64
	Max               float64
	StrengthThreshold float64
}

// NewRubric validates criteria and the numeric range.
func NewRubric(criteria []Criterion, min, max, strength float64) (Rubric, error) {
	if len(criteria) == 0 {
		return Rubric{}, fmt.Errorf("rubric: no criteria")
	}
	if max <= min {
		return Rubric{}, fmt.Errorf("rubric: invalid range %.2f..%.2f", min, max)
	}
	seen := make(map[string]struct{}, len(criteria))
	var sum float64
	for _, c := range criteria {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return Rubric{}, fmt.Errorf("rubric: criterion without name")
		}
		if _, dup := seen[name]; dup {
			return Rubric{}, fmt.Errorf("rubric: duplicate criterion %s", name)
		}
		seen[name] = struct{}{}
		if c.Weight < 0 {
			return Rubric{}, fmt.Errorf("rubric: negative weight for %s", name)
		}
		sum += c.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return Rubric{}, fmt.Errorf("rubric: weights sum to %.6f, want 1", sum)
	}
	out := make([]Criterion, len(criteria))
	copy(out, criteria)
	return Rubric{Criteria: out, Min: min, Max: max, StrengthThreshold: strength}, nil
}

// DefaultRubric is the technical-content rubric on a 1..10 scale.
func DefaultRubric() Rubric {
	rubric, err := NewRubric(DefaultCriteria(), 1, 10, 7)
	if err != nil {
		panic(err)
	}
	return rubric
}

// DefaultCriteria lists the criteria of DefaultRubric.
func DefaultCriteria() []Criterion {
	return []Criterion{
		{Name: "technical_accuracy", Description: "Correctness of technical claims, code and terminology", Weight: 0.3},
		{Name: "actionability", Description: "Practical guidance a reader can apply directly", Weight: 0.3},
		{Name: "evidence_based", Description: "Claims backed by data, benchmarks, citations or reproducible examples", Weight: 0.2},
		{Name: "technical_depth", Description: "Depth beyond introductory material", Weight: 0.1},
		{Name: "bias_mitigation", Description: "Balanced treatment of trade-offs and alternatives", Weight: 0.1},
	}
}

// Clamp bounds v into the rubric range.
func (r Rubric) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.Min
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

// WeightedScore returns the weight-normalized sum over the scored criteria.
func (r Rubric) WeightedScore(scores map[string]CriterionScore) float64 {
	var total, weights float64
	for _, c := range r.Criteria {
		s, ok := scores[c.Name]
		if !ok {
			continue
		}
		total += s.Score * c.Weight
		weights += c.Weight
	}
	if weights == 0 {
		return r.Min
	}
	return r.Clamp(total / weights)
}

// Describe renders the rubric as prompt text.
func (r Rubric) Describe() string {
	var b strings.Builder
	for _, c := range r.Criteria {
		fmt.Fprintf(&b, "- %s (weight %.2f): %s\n", c.Name, c.Weight, c.Description)
	}
	return b.String()
}
