package domain

import (
	"fmt"
	"strings"
)

// Perspective is a reviewer role with its own weighted criteria. All
// perspectives of one evaluator share the base rubric's score range.
type Perspective struct {
	Name   string
	Role   string
	Rubric Rubric
}

// PerspectiveScore is one perspective's part of a combined evaluation.
type PerspectiveScore struct {
	Name           string                    `json:"name"`
	OverallScore   float64                   `json:"overall_score"`
	CriteriaScores map[string]CriterionScore `json:"criteria_scores"`
	Summary        string                    `json:"summary,omitempty"`
	ErrorKind      ErrorKind                 `json:"error_kind,omitempty"`
}

// NewPerspective validates criteria against the range of base.
func NewPerspective(name, role string, criteria []Criterion, base Rubric) (Perspective, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Perspective{}, fmt.Errorf("perspective: name required")
	}
	rubric, err := NewRubric(criteria, base.Min, base.Max, base.StrengthThreshold)
	if err != nil {
		return Perspective{}, fmt.Errorf("perspective %s: %w", name, err)
	}
	return Perspective{Name: name, Role: strings.TrimSpace(role), Rubric: rubric}, nil
}

// BuiltinPerspective returns the role and criteria of a preset perspective.
func BuiltinPerspective(name string) (string, []Criterion, bool) {
	switch name {
	case "engineering_manager":
		return "an experienced Engineering Manager judging the value of content for other engineering leaders",
			[]Criterion{
				{Name: "leadership_frameworks", Description: "Useful frameworks or strategies for engineering leadership", Weight: 0.3},
				{Name: "team_growth", Description: "How well the content addresses team development and growth", Weight: 0.25},
				{Name: "process_improvement", Description: "Valuable insights on process improvement", Weight: 0.2},
				{Name: "people_management", Description: "Help with people management challenges", Weight: 0.15},
				{Name: "practical_application", Description: "How easily the ideas apply in real engineering teams", Weight: 0.1},
			}, true
	case "staff_engineer":
		return "an experienced Staff/Principal Engineer judging the technical value of content for senior engineers",
			[]Criterion{
				{Name: "technical_depth", Description: "How technically deep and substantive the content is", Weight: 0.3},
				{Name: "architectural_insight", Description: "Valuable architectural insights or patterns", Weight: 0.25},
				{Name: "systems_thinking", Description: "Treatment of complex systems and their interactions", Weight: 0.2},
				{Name: "engineering_excellence", Description: "Promotion of sound engineering practice", Weight: 0.15},
				{Name: "technical_applicability", Description: "How readily the technical concepts can be applied", Weight: 0.1},
			}, true
	default:
		return "", nil, false
	}
}
