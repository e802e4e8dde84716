package grading

import (
	"context"
	"strconv"
	"strings"
)

// Question types.
const (
	TypeObjective = "objective"
	TypeTheory    = "theory"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	ID            string
	Type          string
	CorrectAnswer *int    // option index, nil when no key has been set
	MaxPoints     float64 // theory only, 0 = unbounded
}

// Result is the outcome of grading a single question response.
type Result struct {
	QuestionID  string
	Type        string
	Correct     bool
	AutoPoints  float64 // points awarded automatically
	MaxPoints   float64 // the question's max points, 0 when unknown
	NeedsManual bool    // true if teacher review is required
	Feedback    []string
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, response string, answered bool) Result
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, response string, answered bool) Result
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, response string, answered bool) Result {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{QuestionID: q.ID, Type: q.Type, MaxPoints: q.MaxPoints, NeedsManual: true, Feedback: []string{"no strategy available"}}
	}
	return s.Grade(ctx, q, response, answered)
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			TypeObjective: objectiveStrategy{},
			TypeTheory:    theoryStrategy{},
		},
	}
}

// --- Strategies ---

type objectiveStrategy struct{}

// An objective answer is the option index as submitted by the form. A question without
// a key can never be answered correctly.
func (objectiveStrategy) Grade(_ context.Context, q Q, response string, answered bool) Result {
	res := Result{QuestionID: q.ID, Type: q.Type, MaxPoints: 1}
	if q.CorrectAnswer == nil {
		res.Feedback = append(res.Feedback, "no correct answer set")
		return res
	}
	if !answered {
		return res
	}
	idx, ok := ParseChoice(response)
	if ok && idx == *q.CorrectAnswer {
		res.Correct = true
		res.AutoPoints = 1
	}
	return res
}

type theoryStrategy struct{}

func (theoryStrategy) Grade(_ context.Context, q Q, _ string, _ bool) Result {
	return Result{QuestionID: q.ID, Type: q.Type, MaxPoints: q.MaxPoints, NeedsManual: true, Feedback: []string{"manual grading required"}}
}

// ParseChoice reads an option index from a submitted answer.
func ParseChoice(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
