package domain

import (
	"math"
	"sort"
)

// QueryMetrics aggregates the scored results of one query.
type QueryMetrics struct {
	Query                string   `json:"query"`
	AverageScore         float64  `json:"average_score"`
	HighQualityCount     int      `json:"high_quality_count"`
	HighQualityThreshold float64  `json:"high_quality_threshold"`
	UniqueDomains        []string `json:"unique_domains"`
	TotalResults         int      `json:"total_results"`
}

// QualityRatio is HighQualityCount / TotalResults, or 0 for an empty run.
func (m QueryMetrics) QualityRatio() float64 {
	if m.TotalResults == 0 {
		return 0
	}
	return float64(m.HighQualityCount) / float64(m.TotalResults)
}

// ComputeMetrics summarizes results. The high-quality threshold is the larger
// of floor and the 75th percentile of overall scores.
func ComputeMetrics(query string, results []EvaluationResult, floor float64) QueryMetrics {
	metrics := QueryMetrics{
		Query:                query,
		TotalResults:         len(results),
		HighQualityThreshold: floor,
		UniqueDomains:        []string{},
	}
	if len(results) == 0 {
		return metrics
	}

	scores := make([]float64, len(results))
	domains := map[string]struct{}{}
	var sum float64
	for i, r := range results {
		scores[i] = r.OverallScore
		sum += r.OverallScore
		if d := Domain(r.URL); d != "" {
			domains[d] = struct{}{}
		}
	}

	metrics.AverageScore = sum / float64(len(results))
	metrics.HighQualityThreshold = math.Max(floor, Percentile(scores, 75))
	for _, s := range scores {
		if s >= metrics.HighQualityThreshold {
			metrics.HighQualityCount++
		}
	}

	for d := range domains {
		metrics.UniqueDomains = append(metrics.UniqueDomains, d)
	}
	sort.Strings(metrics.UniqueDomains)
	return metrics
}

// Percentile returns the p-th percentile of values using linear interpolation
// between closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
