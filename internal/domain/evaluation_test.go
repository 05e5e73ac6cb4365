package domain

import (
	"math"
	"testing"
)

func TestNewRubricRejectsBadWeights(t *testing.T) {
	t.Parallel()

	_, err := NewRubric([]Criterion{{Name: "a", Weight: 0.5}, {Name: "b", Weight: 0.4}}, 1, 10, 7)
	if err == nil {
		t.Fatalf("expected error for weights summing to 0.9")
	}

	_, err = NewRubric([]Criterion{{Name: "a", Weight: 0.5}, {Name: "a", Weight: 0.5}}, 1, 10, 7)
	if err == nil {
		t.Fatalf("expected error for duplicate criterion")
	}

	if _, err := NewRubric([]Criterion{{Name: "a", Weight: 1}}, 10, 1, 7); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestWeightedScore(t *testing.T) {
	t.Parallel()

	rubric, err := NewRubric([]Criterion{
		{Name: "accuracy", Weight: 0.6},
		{Name: "depth", Weight: 0.4},
	}, 1, 10, 7)
	if err != nil {
		t.Fatalf("NewRubric: %v", err)
	}

	got := rubric.WeightedScore(map[string]CriterionScore{
		"accuracy": {Score: 8},
		"depth":    {Score: 5},
	})
	if math.Abs(got-6.8) > 1e-9 {
		t.Fatalf("expected 6.8, got %v", got)
	}
}

func TestWithCandidateCopies(t *testing.T) {
	t.Parallel()

	orig := EvaluationResult{
		URL:            "https://a.com/x",
		Title:          "A",
		CriteriaScores: map[string]CriterionScore{"accuracy": {Score: 9}},
		Tags:           []string{"accuracy"},
	}
	copyResult := orig.WithCandidate(CandidateItem{URL: "https://b.com/y", Title: "B", SourceTag: "search"})
	copyResult.CriteriaScores["accuracy"] = CriterionScore{Score: 1}
	copyResult.Tags[0] = "changed"

	if orig.CriteriaScores["accuracy"].Score != 9 || orig.Tags[0] != "accuracy" {
		t.Fatalf("original result was mutated: %+v", orig)
	}
	if copyResult.URL != "https://b.com/y" || copyResult.Title != "B" || copyResult.Source != "search" {
		t.Fatalf("unexpected copy attribution: %+v", copyResult)
	}
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"https://example.com/a", "http://x.org"} {
		if err := ValidateURL(ok); err != nil {
			t.Fatalf("expected %s to be valid: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "ftp://x.org/a", "/relative/path", "https://"} {
		if err := ValidateURL(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
