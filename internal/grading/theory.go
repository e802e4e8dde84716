package grading

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeScore   = errors.New("theory score must not be negative")
	ErrUnknownQuestion = errors.New("not a theory question of this exam")
)

// TheoryOutcome is the manual part of a result once a teacher has graded it.
type TheoryOutcome struct {
	Scores   map[string]float64 // per question, clamped to MaxPoints
	Total    float64
	Possible float64 // sum of MaxPoints, meaningful only when Bounded
	Bounded  bool    // every theory question declares MaxPoints
}

// ScoreTheory validates and totals manually awarded theory scores. Questions without an
// award score 0.
func ScoreTheory(questions []Q, awarded map[string]float64) (TheoryOutcome, error) {
	out := TheoryOutcome{Scores: make(map[string]float64, len(questions)), Bounded: len(questions) > 0}
	byID := make(map[string]Q, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	for id, v := range awarded {
		if _, ok := byID[id]; !ok {
			return TheoryOutcome{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, id)
		}
		if v < 0 {
			return TheoryOutcome{}, fmt.Errorf("%w: %s", ErrNegativeScore, id)
		}
	}
	for _, q := range questions {
		v := awarded[q.ID]
		if q.MaxPoints > 0 && v > q.MaxPoints {
			v = q.MaxPoints
		}
		out.Scores[q.ID] = v
		out.Total += v
		if q.MaxPoints > 0 {
			out.Possible += q.MaxPoints
		} else {
			out.Bounded = false
		}
	}
	return out, nil
}

// Final is the graded state of a result.
type Final struct {
	Score      float64
	Percentage float64
	Passed     bool
}

// Finalize combines the objective and theory parts. When theory questions have no
// declared maximum the percentage stays objective-only.
func Finalize(objective, totalObjective int, theory TheoryOutcome, passMark float64) Final {
	f := Final{Score: float64(objective) + theory.Total}
	if theory.Bounded {
		f.Percentage = Percentage(f.Score, float64(totalObjective)+theory.Possible)
	} else {
		f.Percentage = Percentage(float64(objective), float64(totalObjective))
	}
	f.Passed = Passed(f.Percentage, passMark)
	return f
}
