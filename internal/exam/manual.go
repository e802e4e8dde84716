package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/grading"
)

// PendingItem is one entry of the manual grading queue.
type PendingItem struct {
	ResultID    string    `json:"result_id"`
	ExamID      string    `json:"exam_id"`
	ExamTitle   string    `json:"exam_title"`
	UserID      string    `json:"user_id"`
	StudentName string    `json:"student_name"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (s *Service) PendingResults(ctx context.Context) ([]PendingItem, error) {
	rs, err := s.store.ListResults(ctx, ResultListOpts{Status: StatusPending})
	if err != nil {
		return nil, err
	}
	titles := map[string]string{}
	names := map[string]string{}
	out := make([]PendingItem, 0, len(rs))
	for _, r := range rs {
		out = append(out, PendingItem{
			ResultID:    r.ID,
			ExamID:      r.ExamID,
			ExamTitle:   s.examTitle(ctx, r.ExamID, titles),
			UserID:      r.UserID,
			StudentName: s.displayName(ctx, r.UserID, names),
			SubmittedAt: r.SubmittedAt,
		})
	}
	return out, nil
}

// PendingCount is the size of the manual grading queue.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	rs, err := s.store.ListResults(ctx, ResultListOpts{Status: StatusPending})
	if err != nil {
		return 0, err
	}
	return len(rs), nil
}

type TheoryItem struct {
	QuestionID string   `json:"question_id"`
	Title      string   `json:"title"`
	Content    string   `json:"content,omitempty"`
	MaxPoints  float64  `json:"max_points,omitempty"`
	Answer     string   `json:"answer"`
	Awarded    *float64 `json:"awarded,omitempty"`
}

// GradingSheet is what a teacher sees when grading one submission.
type GradingSheet struct {
	Result      Result       `json:"result"`
	ExamTitle   string       `json:"exam_title"`
	StudentName string       `json:"student_name"`
	Items       []TheoryItem `json:"items"`
}

func (s *Service) GradingView(ctx context.Context, resultID string) (GradingSheet, error) {
	r, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return GradingSheet{}, err
	}
	e, err := s.store.GetExam(ctx, r.ExamID)
	if err != nil {
		return GradingSheet{}, err
	}
	qs, err := s.examQuestions(ctx, e)
	if err != nil {
		return GradingSheet{}, err
	}
	sheet := GradingSheet{Result: r, ExamTitle: e.Title, StudentName: s.displayName(ctx, r.UserID, nil), Items: []TheoryItem{}}
	for _, q := range qs {
		if q.Type != TypeTheory {
			continue
		}
		it := TheoryItem{QuestionID: q.ID, Title: q.Title, Content: q.Content, MaxPoints: q.MaxPoints, Answer: r.Answers[q.ID]}
		if v, ok := r.TheoryScores[q.ID]; ok {
			it.Awarded = &v
		}
		sheet.Items = append(sheet.Items, it)
	}
	return sheet, nil
}

// GradeTheory records the manual theory scores of a pending result and finalises it.
func (s *Service) GradeTheory(ctx context.Context, resultID, graderID string, scores map[string]float64) (Result, error) {
	r, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return Result{}, err
	}
	if r.Status != StatusPending {
		return Result{}, ErrAlreadyGraded
	}
	e, err := s.store.GetExam(ctx, r.ExamID)
	if err != nil {
		return Result{}, err
	}
	qs, err := s.examQuestions(ctx, e)
	if err != nil {
		return Result{}, err
	}
	var theory []grading.Q
	for _, q := range qs {
		if q.Type == TypeTheory {
			theory = append(theory, q.gradingQ())
		}
	}
	out, err := grading.ScoreTheory(theory, scores)
	if err != nil {
		if errors.Is(err, grading.ErrNegativeScore) || errors.Is(err, grading.ErrUnknownQuestion) {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return Result{}, err
	}
	fin := grading.Finalize(r.ObjectiveScore, r.TotalObjective, out, e.PassMark)

	now := s.now()
	r.TheoryScores = out.Scores
	r.TheoryScore = out.Total
	r.Score = fin.Score
	r.Percentage = fin.Percentage
	r.Passed = fin.Passed
	r.Status = StatusGraded
	r.GradedBy = graderID
	r.GradedAt = &now
	if err := s.store.GradeResult(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyGraded) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("grade result: %w", err)
	}
	s.log.Info("result graded",
		zap.String("result_id", r.ID), zap.String("grader", graderID),
		zap.Float64("score", r.Score), zap.Float64("percentage", r.Percentage))

	s.record(ctx, EventResultGraded, r.ID, r)
	for _, h := range s.hooks {
		h.ResultGraded(ctx, e, r)
	}
	return r, nil
}

func (s *Service) examTitle(ctx context.Context, id string, cache map[string]string) string {
	if t, ok := cache[id]; ok {
		return t
	}
	t := "(deleted exam)"
	if e, err := s.store.GetExam(ctx, id); err == nil {
		t = e.Title
	}
	cache[id] = t
	return t
}
