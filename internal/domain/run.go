package domain

import (
	"fmt"
	"strings"
	"time"
)

// EvaluationMethod selects how a candidate is turned into a score.
type EvaluationMethod string

const (
	// MethodStandard extracts text locally and scores the text.
	MethodStandard EvaluationMethod = "standard"
	// MethodDirectService hands the URL descriptor to the scoring service.
	MethodDirectService EvaluationMethod = "directService"
)

// ParseEvaluationMethod accepts the method names used on the command line.
func ParseEvaluationMethod(value string) (EvaluationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "standard":
		return MethodStandard, nil
	case "directservice", "direct", "direct_service", "web":
		return MethodDirectService, nil
	default:
		return "", fmt.Errorf("unknown evaluation method %q", value)
	}
}

// Stage is a run's position in the pipeline. Stages only move forward.
type Stage int

const (
	StageDiscovering Stage = iota
	StageFiltering
	StageEvaluating
	StageAggregating
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageDiscovering:
		return "discovering"
	case StageFiltering:
		return "filtering"
	case StageEvaluating:
		return "evaluating"
	case StageAggregating:
		return "aggregating"
	case StageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// RunStats counts how candidates moved through a run.
type RunStats struct {
	Discovered  int `json:"discovered"`
	Unique      int `json:"unique"`
	CacheHits   int `json:"cache_hits"`
	ContentHits int `json:"content_hits"`
	Extracted   int `json:"extracted"`
	Evaluated   int `json:"evaluated"`
	Failed      int `json:"failed"`
}

// RunReport is everything one pipeline run produced.
type RunReport struct {
	RunID         string             `json:"run_id"`
	Query         string             `json:"query"`
	Method        EvaluationMethod   `json:"method"`
	Stage         Stage              `json:"-"`
	Results       []EvaluationResult `json:"results"`
	Metrics       QueryMetrics       `json:"metrics"`
	Failures      []ItemFailure      `json:"failures,omitempty"`
	AdapterErrors map[string]string  `json:"adapter_errors,omitempty"`
	Stats         RunStats           `json:"stats"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
}
