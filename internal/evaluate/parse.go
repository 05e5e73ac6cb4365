package evaluate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ContentCurator/internal/domain"
)

// Parse turns a raw scoring payload into a result. The overall score is
// always recomputed from criterion scores; the payload's own overall_score
// is used only when no criterion could be read.
func Parse(raw string, rubric domain.Rubric) domain.EvaluationResult {
	result := domain.EvaluationResult{
		OverallScore:   rubric.Min,
		CriteriaScores: map[string]domain.CriterionScore{},
		Tags:           []string{},
	}

	var payload map[string]any
	if err := DecodeJSON(raw, &payload); err != nil || payload == nil {
		if err == nil {
			err = errors.New("payload is not an object")
		}
		result.Summary = failedSummary
		result.Tags = []string{domain.ErrorTag}
		result.ErrorKind = domain.ErrEvaluationMalformed
		result.Error = err.Error()
		return result
	}

	scores, _ := payload["scores"].(map[string]any)
	if scores == nil {
		scores, _ = payload["criteria"].(map[string]any)
	}

	var problems []string
	parsed := 0
	for _, c := range rubric.Criteria {
		value, ok := scores[c.Name]
		if !ok {
			value, ok = payload[c.Name]
		}
		if !ok {
			problems = append(problems, fmt.Sprintf("%s missing", c.Name))
			continue
		}

		score, rationale, numeric := criterionValue(value)
		if !numeric {
			problems = append(problems, fmt.Sprintf("%s not numeric", c.Name))
			result.CriteriaScores[c.Name] = domain.CriterionScore{Score: rubric.Min, Rationale: rationale}
			continue
		}
		parsed++
		result.CriteriaScores[c.Name] = domain.CriterionScore{Score: rubric.Clamp(score), Rationale: rationale}
	}

	switch {
	case parsed > 0:
		// Criteria that never arrived still count, at the minimum.
		for _, c := range rubric.Criteria {
			if _, ok := result.CriteriaScores[c.Name]; !ok {
				result.CriteriaScores[c.Name] = domain.CriterionScore{Score: rubric.Min}
			}
		}
		result.OverallScore = rubric.WeightedScore(result.CriteriaScores)
	default:
		result.CriteriaScores = map[string]domain.CriterionScore{}
		if overall, ok := number(payload["overall_score"]); ok {
			result.OverallScore = rubric.Clamp(overall)
			problems = append(problems, "no criterion scores, used overall_score")
		} else {
			problems = append(problems, "no usable scores")
		}
	}

	result.Summary = strings.TrimSpace(stringValue(payload["summary"]))
	for _, c := range rubric.Criteria {
		if s, ok := result.CriteriaScores[c.Name]; ok && s.Score >= rubric.StrengthThreshold {
			result.Tags = append(result.Tags, c.Name)
		}
	}

	if len(problems) > 0 {
		result.Tags = append(result.Tags, domain.ErrorTag)
		result.ErrorKind = domain.ErrEvaluationMalformed
		result.Error = strings.Join(problems, "; ")
		if result.Summary == "" {
			result.Summary = failedSummary
		}
	}
	return result
}

func criterionValue(v any) (float64, string, bool) {
	if obj, ok := v.(map[string]any); ok {
		rationale := firstString(obj, "rationale", "explanation", "reasoning", "justification")
		score, numeric := number(obj["score"])
		return score, rationale, numeric
	}
	score, numeric := number(v)
	return score, "", numeric
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, finite(n)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && finite(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && finite(f)
	default:
		return 0, false
	}
}

// finite rejects the Inf and NaN spellings ParseFloat accepts.
func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(stringValue(obj[k])); s != "" {
			return s
		}
	}
	return ""
}

// DecodeJSON decodes a model response, tolerating code fences and prose
// around the JSON object.
func DecodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, snippet(trimmed))
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, snippet(sanitized))
	}
	return nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
