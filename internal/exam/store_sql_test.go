package exam

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbt-exam/cbtexam/internal/db"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, db.MemoryDSN(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSQLStore(conn)
}

func TestSQLStoreQuestions(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	q1 := Question{ID: "q1", Title: "Photosynthesis", Type: TypeObjective, Options: []string{"a", "b"},
		CorrectAnswer: intp(1), Subject: "biology", CreatedAt: now, UpdatedAt: now}
	q2 := Question{ID: "q2", Title: "Essay", Content: "Describe photosynthesis", Type: TypeTheory, MaxPoints: 5,
		Subject: "biology", CreatedAt: now.Add(time.Minute), UpdatedAt: now.Add(time.Minute)}
	q3 := Question{ID: "q3", Title: "Algebra", Type: TypeObjective, Options: []string{"x", "y"},
		Subject: "maths", CreatedAt: now.Add(2 * time.Minute), UpdatedAt: now.Add(2 * time.Minute)}
	for _, q := range []Question{q1, q2, q3} {
		require.NoError(t, s.PutQuestion(ctx, q))
	}

	got, err := s.GetQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, q1, got)

	got, err = s.GetQuestion(ctx, "q3")
	require.NoError(t, err)
	assert.Nil(t, got.CorrectAnswer)

	_, err = s.GetQuestion(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	ordered, err := s.GetQuestions(ctx, []string{"q3", "missing", "q1"})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "q3", ordered[0].ID)
	assert.Equal(t, "q1", ordered[1].ID)

	bio, err := s.ListQuestions(ctx, QuestionListOpts{Subject: "biology"})
	require.NoError(t, err)
	require.Len(t, bio, 2)
	assert.Equal(t, "q2", bio[0].ID, "newest first")

	found, err := s.ListQuestions(ctx, QuestionListOpts{Q: "PHOTO"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	paged, err := s.ListQuestions(ctx, QuestionListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "q2", paged[0].ID)

	q1.Title = "Photosynthesis v2"
	q1.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, s.PutQuestion(ctx, q1))
	got, err = s.GetQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "Photosynthesis v2", got.Title)

	require.NoError(t, s.DeleteQuestion(ctx, "q1"))
	require.ErrorIs(t, s.DeleteQuestion(ctx, "q1"), ErrNotFound)
}

func TestSQLStoreExamsResultsSettings(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	e := Exam{ID: "e1", Title: "Biology", QuestionIDs: []string{"q2", "q1"}, DurationMin: 30, PassMark: 60,
		Randomize: true, Certificate: Certificate{Enabled: true, Title: "Cert", Body: "[student_name]"},
		CreatedBy: "t1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.PutExam(ctx, e))
	got, err := s.GetExam(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	exams, err := s.ListExams(ctx, ExamListOpts{Q: "bio"})
	require.NoError(t, err)
	assert.Len(t, exams, 1)

	require.ErrorIs(t, s.CreateResult(ctx, Result{ID: "r0", ExamID: "ghost", Status: StatusGraded, SubmittedAt: now}), ErrNotFound)

	r1 := Result{ID: "r1", ExamID: "e1", UserID: "s1", Answers: map[string]string{"q1": "1", "q2": "essay"},
		ObjectiveScore: 1, TotalObjective: 1, Status: StatusPending, SubmittedAt: now}
	r2 := Result{ID: "r2", ExamID: "e1", UserID: "s2", Answers: map[string]string{}, TotalObjective: 1,
		Status: StatusGraded, Score: 0, SubmittedAt: now.Add(time.Minute)}
	require.NoError(t, s.CreateResult(ctx, r1))
	require.NoError(t, s.CreateResult(ctx, r2))

	got1, err := s.GetResult(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, r1, got1)

	graded := now.Add(time.Hour)
	r1.TheoryScores = map[string]float64{"q2": 4.5}
	r1.TheoryScore, r1.Score, r1.Percentage, r1.Passed = 4.5, 5.5, 91.67, true
	r1.Status, r1.GradedBy, r1.GradedAt = StatusGraded, "t1", &graded
	require.NoError(t, s.GradeResult(ctx, r1))
	got1, err = s.GetResult(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, r1, got1)

	again := r1
	again.Score, again.GradedBy = 1, "t2"
	require.ErrorIs(t, s.GradeResult(ctx, again), ErrAlreadyGraded)
	got1, err = s.GetResult(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got1.GradedBy, "first grade kept")

	require.ErrorIs(t, s.GradeResult(ctx, Result{ID: "ghost", ExamID: "e1", SubmittedAt: now}), ErrNotFound)

	list, err := s.ListResults(ctx, ResultListOpts{ExamID: "e1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].ID, "newest first")

	mine, err := s.ListResults(ctx, ResultListOpts{UserIDs: []string{"s1"}, Status: StatusGraded})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "r1", mine[0].ID)

	none, err := s.ListResults(ctx, ResultListOpts{UserIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, none)

	st, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.False(t, st.DefaultRandomization)
	require.NoError(t, s.PutSettings(ctx, Settings{DefaultRandomization: true}))
	st, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, st.DefaultRandomization)

	require.NoError(t, s.DeleteExam(ctx, "e1"))
	_, err = s.GetResult(ctx, "r1")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteExam(ctx, "e1"), ErrNotFound)
}

func TestServiceOnSQLStore(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newSQLStore(t), Options{Nonces: fakeNonces{}})
	q, err := svc.CreateQuestion(ctx, Question{Title: "1+1", Type: TypeObjective, Options: []string{"1", "2"}, CorrectAnswer: intp(1)})
	require.NoError(t, err)
	e, err := svc.CreateExam(ctx, ExamInput{Title: "Sums", PassMark: 100, QuestionIDs: []string{q.ID}}, "t1")
	require.NoError(t, err)
	p, err := svc.PrepareAttempt(ctx, e.ID, "s1")
	require.NoError(t, err)
	out, err := svc.Submit(ctx, e.ID, "s1", p.Nonce, map[string]string{q.ID: "1"})
	require.NoError(t, err)
	assert.True(t, out.Passed)

	rows, err := svc.ListResults(ctx, Viewer{ID: "s1"}, ResultListOpts{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Sums", rows[0].ExamTitle)
	assert.Equal(t, "s1", rows[0].StudentName)
}
