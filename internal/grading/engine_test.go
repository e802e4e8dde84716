package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestObjectiveStrategy(t *testing.T) {
	g := NewDefaultGrader()
	ctx := context.Background()
	q := Q{ID: "q1", Type: TypeObjective, CorrectAnswer: intp(2)}

	r := g.Grade(ctx, q, "2", true)
	assert.True(t, r.Correct)
	assert.Equal(t, 1.0, r.AutoPoints)

	r = g.Grade(ctx, q, " 2 ", true)
	assert.True(t, r.Correct)

	r = g.Grade(ctx, q, "1", true)
	assert.False(t, r.Correct)

	r = g.Grade(ctx, q, "two", true)
	assert.False(t, r.Correct)

	r = g.Grade(ctx, q, "", false)
	assert.False(t, r.Correct)
	assert.False(t, r.NeedsManual)
}

func TestObjectiveWithoutKeyNeverCorrect(t *testing.T) {
	r := NewDefaultGrader().Grade(context.Background(), Q{ID: "q", Type: TypeObjective}, "0", true)
	assert.False(t, r.Correct)
	assert.Contains(t, r.Feedback, "no correct answer set")
}

func TestTheoryNeedsManual(t *testing.T) {
	r := NewDefaultGrader().Grade(context.Background(), Q{ID: "t", Type: TypeTheory, MaxPoints: 10}, "essay", true)
	assert.True(t, r.NeedsManual)
	assert.Equal(t, 10.0, r.MaxPoints)
}

func TestUnknownTypeFallsBackToManual(t *testing.T) {
	r := NewDefaultGrader().Grade(context.Background(), Q{ID: "x", Type: "matching"}, "", false)
	assert.True(t, r.NeedsManual)
}

func TestSummarize(t *testing.T) {
	objOnly := []Result{
		{Type: TypeObjective, Correct: true},
		{Type: TypeObjective, Correct: true},
		{Type: TypeObjective},
	}
	s := Summarize(objOnly, 60)
	assert.Equal(t, 2, s.Score)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 66.67, s.Percentage)
	assert.Equal(t, StatusGraded, s.Status)
	assert.True(t, s.Passed)

	withTheory := append(objOnly, Result{Type: TypeTheory, NeedsManual: true})
	s = Summarize(withTheory, 60)
	assert.Equal(t, StatusPending, s.Status)
	assert.True(t, s.HasTheory)
	assert.False(t, s.Passed)

	s = Summarize(nil, 50)
	assert.Zero(t, s.Percentage)
	assert.False(t, s.Passed)
}

func TestPassedRequiresPassMark(t *testing.T) {
	assert.False(t, Passed(100, 0))
	assert.True(t, Passed(50, 50))
	assert.False(t, Passed(49.99, 50))
}

func TestScoreTheoryClampsAndValidates(t *testing.T) {
	qs := []Q{
		{ID: "t1", Type: TypeTheory, MaxPoints: 5},
		{ID: "t2", Type: TypeTheory, MaxPoints: 10},
	}
	out, err := ScoreTheory(qs, map[string]float64{"t1": 7, "t2": 4.5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, out.Scores["t1"])
	assert.Equal(t, 9.5, out.Total)
	assert.Equal(t, 15.0, out.Possible)
	assert.True(t, out.Bounded)

	_, err = ScoreTheory(qs, map[string]float64{"t1": -1})
	require.ErrorIs(t, err, ErrNegativeScore)

	_, err = ScoreTheory(qs, map[string]float64{"q9": 1})
	require.ErrorIs(t, err, ErrUnknownQuestion)
}

func TestFinalize(t *testing.T) {
	bounded := TheoryOutcome{Total: 8, Possible: 10, Bounded: true}
	f := Finalize(2, 2, bounded, 70)
	assert.Equal(t, 10.0, f.Score)
	assert.Equal(t, 83.33, f.Percentage)
	assert.True(t, f.Passed)

	unbounded := TheoryOutcome{Total: 8}
	f = Finalize(1, 2, unbounded, 70)
	assert.Equal(t, 9.0, f.Score)
	assert.Equal(t, 50.0, f.Percentage)
	assert.False(t, f.Passed)
}
