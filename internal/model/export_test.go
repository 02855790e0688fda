package model

import (
	"math"
	"testing"
	"time"
)

func TestTrendSlope(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{50}, 0},
		{"flat", []float64{40, 40, 40}, 0},
		{"rising", []float64{10, 20, 30}, 10},
		{"falling", []float64{90, 60}, -30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrendSlope(tt.scores); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TrendSlope(%v) = %v, want %v", tt.scores, got, tt.want)
			}
		})
	}
}

func TestBuildScoreReport(t *testing.T) {
	l := NewScoreLedger()
	l.Append("steady", 50)
	l.Append("better", 10)
	l.Append("better", 90)
	l.Append("worse", 100)
	l.Append("worse", 20)
	l.Append("steady", 50)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := BuildScoreReport(l, SessionStats{NumQuestions: 6}, now)

	if r.NumQuestions != 6 || !r.GeneratedAt.Equal(now) {
		t.Errorf("unexpected header: %+v", r)
	}
	if len(r.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(r.Items))
	}
	order := []string{r.Items[0].Key, r.Items[1].Key, r.Items[2].Key}
	want := []string{"worse", "steady", "better"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if r.Items[1].Attempts != 2 || r.Items[1].Mean != 50 {
		t.Errorf("steady = %+v", r.Items[1])
	}
}
