package evaluate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"strings"
	"testing"
	"time"

	"ContentCurator/internal/domain"
	"ContentCurator/internal/ports"
)

type stubScorer struct {
	response string
	err      error
	requests []ports.ScoreRequest
}

func (s *stubScorer) Score(_ context.Context, req ports.ScoreRequest) (string, error) {
	s.requests = append(s.requests, req)
	return s.response, s.err
}

func twoCriteriaRubric(t *testing.T) domain.Rubric {
	t.Helper()
	rubric, err := domain.NewRubric([]domain.Criterion{
		{Name: "accuracy", Description: "Is it correct", Weight: 0.6},
		{Name: "depth", Description: "Is it deep", Weight: 0.4},
	}, 1, 10, 7)
	if err != nil {
		t.Fatalf("NewRubric: %v", err)
	}
	return rubric
}

func fixedClock() time.Time {
	return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
}

func TestOverallScoreIsRecomputed(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	scorer := &stubScorer{response: `{"scores": {"accuracy": {"score": 8, "rationale": "solid"}, "depth": {"score": 5, "rationale": "shallow"}}, "overall_score": 9, "summary": "Good overview"}`}
	ev := New(scorer, rubric, WithClock(fixedClock))

	result, err := ev.Evaluate(context.Background(), "some text", rubric)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if math.Abs(result.OverallScore-6.8) > 1e-9 {
		t.Fatalf("expected recomputed 6.8, got %v", result.OverallScore)
	}
	if result.Failed() {
		t.Fatalf("well-formed response must not be tagged: %+v", result)
	}
	if !slices.Equal(result.Tags, []string{"accuracy"}) {
		t.Fatalf("expected accuracy tag only, got %v", result.Tags)
	}
	if result.CriteriaScores["depth"].Rationale != "shallow" {
		t.Fatalf("rationale lost: %+v", result.CriteriaScores)
	}
	if result.Summary != "Good overview" || !result.EvaluatedAt.Equal(fixedClock()) {
		t.Fatalf("unexpected summary or timestamp: %+v", result)
	}
}

func TestNonNumericCriterionBecomesMinimum(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	scorer := &stubScorer{response: `{"scores": {"accuracy": {"score": "high"}, "depth": {"score": 5}}, "summary": "?"}`}
	ev := New(scorer, rubric)

	result, err := ev.Evaluate(context.Background(), "some text", rubric)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := result.CriteriaScores["accuracy"].Score; got != 1 {
		t.Fatalf("expected accuracy at rubric minimum, got %v", got)
	}
	if math.Abs(result.OverallScore-2.6) > 1e-9 {
		t.Fatalf("expected 2.6, got %v", result.OverallScore)
	}
	if !slices.Contains(result.Tags, domain.ErrorTag) {
		t.Fatalf("expected error tag, got %v", result.Tags)
	}
	if result.ErrorKind != domain.ErrEvaluationMalformed {
		t.Fatalf("expected malformed kind, got %q", result.ErrorKind)
	}
}

func TestInfinityAndNaNAreNotNumbers(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	for _, response := range []string{
		`{"scores": {"accuracy": {"score": "Infinity"}, "depth": {"score": "NaN"}}}`,
		`{"scores": {"accuracy": "Inf", "depth": "-inf"}}`,
	} {
		result := Parse(response, rubric)
		if result.OverallScore != rubric.Min {
			t.Fatalf("%s: expected rubric minimum, got %v", response, result.OverallScore)
		}
		if !slices.Contains(result.Tags, domain.ErrorTag) {
			t.Fatalf("%s: expected error tag, got %v", response, result.Tags)
		}
		if slices.Contains(result.Tags, "accuracy") {
			t.Fatalf("%s: non-numeric score must not count as a strength: %v", response, result.Tags)
		}
		if result.ErrorKind != domain.ErrEvaluationMalformed {
			t.Fatalf("%s: expected malformed kind, got %q", response, result.ErrorKind)
		}
	}
}

func TestNumericStringsAndClamping(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	scorer := &stubScorer{response: "```json\n{\"scores\": {\"accuracy\": \"12\", \"depth\": -3}}\n```"}
	ev := New(scorer, rubric)

	result, err := ev.Evaluate(context.Background(), "text", rubric)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.CriteriaScores["accuracy"].Score != 10 || result.CriteriaScores["depth"].Score != 1 {
		t.Fatalf("expected clamped scores, got %+v", result.CriteriaScores)
	}
	if math.Abs(result.OverallScore-6.4) > 1e-9 {
		t.Fatalf("expected 6.4, got %v", result.OverallScore)
	}
	if result.Failed() {
		t.Fatalf("clamped numeric scores are not malformed")
	}
}

func TestMissingCriterionIsTagged(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	scorer := &stubScorer{response: `{"scores": {"accuracy": 9}}`}
	result, err := New(scorer, rubric).Evaluate(context.Background(), "text", rubric)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := result.CriteriaScores["depth"].Score; got != 1 {
		t.Fatalf("missing criterion must be kept at minimum, got %v", got)
	}
	if math.Abs(result.OverallScore-5.8) > 1e-9 {
		t.Fatalf("expected 5.8, got %v", result.OverallScore)
	}
	if !result.Failed() {
		t.Fatalf("expected missing criterion to tag the result")
	}
}

func TestFallbackToExternalOverall(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	scorer := &stubScorer{response: `Here you go: {"overall_score": 7.5, "summary": "fine"}`}
	result, err := New(scorer, rubric).Evaluate(context.Background(), "text", rubric)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.OverallScore != 7.5 {
		t.Fatalf("expected external overall 7.5, got %v", result.OverallScore)
	}
	if !result.Failed() {
		t.Fatalf("fallback result must be tagged")
	}
}

func TestUnparseableResponse(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	scorer := &stubScorer{response: "I cannot evaluate this content."}
	result, err := New(scorer, rubric).Evaluate(context.Background(), "text", rubric)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.OverallScore != rubric.Min || result.ErrorKind != domain.ErrEvaluationMalformed {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !slices.Equal(result.Tags, []string{domain.ErrorTag}) {
		t.Fatalf("expected only the error tag, got %v", result.Tags)
	}
}

func TestScorerFailure(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	scorer := &stubScorer{err: errors.New("connection refused")}
	content := domain.ExtractedContent{URL: "https://a.com", Title: "A", Text: "t", TruncatedText: "t", ExtractMethod: "plain"}
	result, err := New(scorer, rubric).EvaluateContent(context.Background(), content, "search")
	if err == nil {
		t.Fatalf("expected scorer error")
	}
	if result.ErrorKind != domain.ErrEvaluationFailed || result.OverallScore != rubric.Min {
		t.Fatalf("unexpected failure result: %+v", result)
	}
	if result.URL != "https://a.com" || result.Source != "search" {
		t.Fatalf("failure result must keep attribution: %+v", result)
	}
}

func TestScoreAlwaysWithinRange(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	rng := rand.New(rand.NewSource(7))
	values := []string{`"high"`, `null`, `"7"`, `{"score": "x"}`, `[]`, `true`}
	for i := 0; i < 200; i++ {
		pick := func() string {
			if rng.Intn(2) == 0 {
				return values[rng.Intn(len(values))]
			}
			return fmt.Sprintf("%g", rng.Float64()*40-15)
		}
		payload := fmt.Sprintf(`{"scores": {"accuracy": %s, "depth": %s}, "overall_score": %s}`, pick(), pick(), pick())
		result := Parse(payload, rubric)
		if result.OverallScore < rubric.Min || result.OverallScore > rubric.Max || math.IsNaN(result.OverallScore) {
			t.Fatalf("score %v out of range for payload %s", result.OverallScore, payload)
		}
	}
}

func TestEvaluateCandidateSendsDescriptor(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	scorer := &stubScorer{response: `{"scores": {"accuracy": 7, "depth": 7}}`}
	item := domain.CandidateItem{
		URL:       "https://blog.example.com/post",
		Title:     "Post",
		SourceTag: "blogs",
		Metadata:  domain.DiscoveryMetadata{Excerpt: "an excerpt"},
	}
	result, err := New(scorer, rubric).EvaluateCandidate(context.Background(), item)
	if err != nil {
		t.Fatalf("EvaluateCandidate: %v", err)
	}
	if result.ExtractMethod != "direct" || result.URL != item.URL || result.Source != "blogs" {
		t.Fatalf("unexpected attribution: %+v", result)
	}
	if len(scorer.requests) != 1 || !strings.Contains(scorer.requests[0].UserPrompt, "https://blog.example.com/post") {
		t.Fatalf("expected URL in prompt, got %+v", scorer.requests)
	}
	if scorer.requests[0].Text != item.Descriptor() {
		t.Fatalf("expected descriptor as text")
	}
}

// roleScorer answers according to the role named in the system prompt.
type roleScorer struct {
	responses map[string]string
	failures  map[string]error
}

func (s *roleScorer) Score(_ context.Context, req ports.ScoreRequest) (string, error) {
	for role, err := range s.failures {
		if strings.Contains(req.SystemPrompt, role) {
			return "", err
		}
	}
	for role, response := range s.responses {
		if strings.Contains(req.SystemPrompt, role) {
			return response, nil
		}
	}
	return "", errors.New("unexpected role")
}

func twoPerspectives(t *testing.T, base domain.Rubric) []domain.Perspective {
	t.Helper()
	manager, err := domain.NewPerspective("manager", "a delivery manager", []domain.Criterion{
		{Name: "leadership", Description: "Leadership guidance", Weight: 0.5},
		{Name: "growth", Description: "Team growth", Weight: 0.5},
	}, base)
	if err != nil {
		t.Fatalf("NewPerspective: %v", err)
	}
	staff, err := domain.NewPerspective("staff", "a staff engineer", []domain.Criterion{
		{Name: "depth", Description: "Technical depth", Weight: 1},
	}, base)
	if err != nil {
		t.Fatalf("NewPerspective: %v", err)
	}
	return []domain.Perspective{manager, staff}
}

func TestPerspectivesAreAveraged(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	scorer := &roleScorer{responses: map[string]string{
		"delivery manager": `{"scores": {"leadership": 8, "growth": 6}, "summary": "Good for leads"}`,
		"staff engineer":   `{"scores": {"depth": 4}, "summary": "Shallow"}`,
	}}
	ev := New(scorer, rubric, WithClock(fixedClock), WithPerspectives(twoPerspectives(t, rubric)...))

	result, err := ev.EvaluateContent(context.Background(), domain.ExtractedContent{URL: "https://a.example.com", Text: "text"}, "search")
	if err != nil {
		t.Fatalf("EvaluateContent: %v", err)
	}
	if math.Abs(result.OverallScore-5.5) > 1e-9 {
		t.Fatalf("expected mean of 7 and 4, got %v", result.OverallScore)
	}
	if len(result.Perspectives) != 2 || result.Perspectives[0].OverallScore != 7 || result.Perspectives[1].OverallScore != 4 {
		t.Fatalf("unexpected perspective scores %+v", result.Perspectives)
	}
	if got := result.CriteriaScores["manager.leadership"].Score; got != 8 {
		t.Fatalf("expected prefixed criterion score, got %+v", result.CriteriaScores)
	}
	if !slices.Equal(result.Tags, []string{"leadership"}) {
		t.Fatalf("unexpected tags %v", result.Tags)
	}
	if result.Failed() || result.URL != "https://a.example.com" || !result.EvaluatedAt.Equal(fixedClock()) {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.Contains(result.Summary, "manager: Good for leads") || !strings.Contains(result.Summary, "staff: Shallow") {
		t.Fatalf("unexpected summary %q", result.Summary)
	}
}

func TestPerspectiveFailuresPropagate(t *testing.T) {
	t.Parallel()

	rubric := twoCriteriaRubric(t)
	perspectives := twoPerspectives(t, rubric)

	malformed := &roleScorer{responses: map[string]string{
		"delivery manager": `{"scores": {"leadership": 8, "growth": 6}}`,
		"staff engineer":   "no json here",
	}}
	result, err := New(malformed, rubric, WithPerspectives(perspectives...)).
		EvaluateCandidate(context.Background(), domain.CandidateItem{URL: "https://b.example.com", Title: "B"})
	if err != nil {
		t.Fatalf("malformed output must not be an error: %v", err)
	}
	if result.ErrorKind != domain.ErrEvaluationMalformed || !slices.Contains(result.Tags, domain.ErrorTag) {
		t.Fatalf("expected malformed tagged result, got %+v", result)
	}
	if math.Abs(result.OverallScore-4) > 1e-9 {
		t.Fatalf("expected mean of 7 and the minimum, got %v", result.OverallScore)
	}

	failing := &roleScorer{
		responses: map[string]string{"delivery manager": `{"scores": {"leadership": 8, "growth": 6}}`},
		failures:  map[string]error{"staff engineer": errors.New("rate limited")},
	}
	result, err = New(failing, rubric, WithPerspectives(perspectives...)).
		EvaluateCandidate(context.Background(), domain.CandidateItem{URL: "https://b.example.com", Title: "B"})
	if err == nil || !strings.Contains(err.Error(), "staff") {
		t.Fatalf("expected staff perspective error, got %v", err)
	}
	if result.ErrorKind != domain.ErrEvaluationFailed {
		t.Fatalf("expected failed kind, got %q", result.ErrorKind)
	}
}
