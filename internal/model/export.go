package model

import (
	"sort"
	"time"
)

// ScoreReport is the JSON structure for exporting the score ledger.
type ScoreReport struct {
	GeneratedAt  time.Time    `json:"generated_at"`
	NumQuestions int          `json:"num_questions"`
	Items        []ItemResult `json:"items"`
}

// ItemResult holds one item's history and trend.
type ItemResult struct {
	Key      string    `json:"key"`
	Attempts int       `json:"attempts"`
	Mean     float64   `json:"mean"`
	Slope    float64   `json:"slope"`
	Scores   []float64 `json:"scores"`
}

// BuildScoreReport summarizes the ledger, items with the most declining
// scores first. Ties keep ledger order.
func BuildScoreReport(l *ScoreLedger, stats SessionStats, now time.Time) ScoreReport {
	items := make([]ItemResult, 0, l.Len())
	for _, k := range l.Keys() {
		s := l.Scores(k)
		items = append(items, ItemResult{
			Key:      k,
			Attempts: len(s),
			Mean:     mean(s),
			Slope:    TrendSlope(s),
			Scores:   s,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Slope < items[j].Slope
	})
	return ScoreReport{
		GeneratedAt:  now,
		NumQuestions: stats.NumQuestions,
		Items:        items,
	}
}

// TrendSlope fits a least-squares line through (1, s[0]), (2, s[1]), ...
// and returns its slope. Fewer than two points have no trend.
func TrendSlope(s []float64) float64 {
	n := float64(len(s))
	if len(s) < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range s {
		x := float64(i + 1)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	return (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}
