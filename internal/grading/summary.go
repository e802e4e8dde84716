package grading

import "math"

// Grading statuses of a result.
const (
	StatusPending = "pending"
	StatusGraded  = "graded"
)

// Summary is the outcome of auto-grading one submission.
type Summary struct {
	Score      int     `json:"score"` // correct objective answers
	Total      int     `json:"total"` // objective questions
	Percentage float64 `json:"percentage"`
	HasTheory  bool    `json:"has_theory"`
	Status     string  `json:"status"`
	Passed     bool    `json:"passed"`
}

// Summarize folds per-question results into the submission outcome. A submission that
// contains theory questions stays pending and cannot have passed yet.
func Summarize(results []Result, passMark float64) Summary {
	var s Summary
	for _, r := range results {
		switch r.Type {
		case TypeObjective:
			s.Total++
			if r.Correct {
				s.Score++
			}
		default:
			s.HasTheory = true
		}
	}
	s.Percentage = Percentage(float64(s.Score), float64(s.Total))
	s.Status = StatusGraded
	if s.HasTheory {
		s.Status = StatusPending
	}
	s.Passed = s.Status == StatusGraded && Passed(s.Percentage, passMark)
	return s
}

// Percentage returns score/possible as a percentage rounded to two decimals, or 0 when
// nothing was possible.
func Percentage(score, possible float64) float64 {
	if possible <= 0 {
		return 0
	}
	return Round2(score / possible * 100)
}

// Passed reports whether pct meets passMark. A zero pass mark means the exam has none.
func Passed(pct, passMark float64) bool {
	return passMark > 0 && pct >= passMark
}

func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
