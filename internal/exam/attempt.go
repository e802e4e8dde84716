package exam

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/grading"
)

const untimedNonceTTL = 24 * time.Hour

// PaperQuestion is a question as shown to a student: no answer key.
type PaperQuestion struct {
	Number       int      `json:"number"`
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Content      string   `json:"content,omitempty"`
	Type         string   `json:"type"`
	Options      []string `json:"options,omitempty"`
	TimeLimitSec int      `json:"time_limit_sec,omitempty"`
}

// Paper is the student-safe view of an exam prepared for one attempt.
type Paper struct {
	ExamID         string          `json:"exam_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	DurationMin    int             `json:"duration_min"`
	PassMark       float64         `json:"pass_mark"`
	Proctoring     bool            `json:"proctoring"`
	TotalQuestions int             `json:"total_questions"`
	Questions      []PaperQuestion `json:"questions"`
	Nonce          string          `json:"nonce"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// PrepareAttempt builds the paper for userID and signs a submit nonce for it.
func (s *Service) PrepareAttempt(ctx context.Context, examID, userID string) (Paper, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Paper{}, err
	}
	qs, err := s.examQuestions(ctx, e)
	if err != nil {
		return Paper{}, err
	}
	if len(qs) == 0 {
		return Paper{}, ErrNoQuestions
	}
	if e.Randomize {
		s.shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	}

	ttl := untimedNonceTTL
	if e.DurationMin > 0 {
		ttl = time.Duration(e.DurationMin)*time.Minute + s.grace
	}
	p := Paper{
		ExamID:         e.ID,
		Title:          e.Title,
		Description:    e.Description,
		DurationMin:    e.DurationMin,
		PassMark:       e.PassMark,
		Proctoring:     e.Proctoring,
		TotalQuestions: len(qs),
		Questions:      make([]PaperQuestion, 0, len(qs)),
		ExpiresAt:      s.now().Add(ttl),
	}
	for i, q := range qs {
		p.Questions = append(p.Questions, PaperQuestion{
			Number:       i + 1,
			ID:           q.ID,
			Title:        q.Title,
			Content:      q.Content,
			Type:         q.Type,
			Options:      q.Options,
			TimeLimitSec: q.TimeLimitSec,
		})
	}
	if s.nonces != nil {
		p.Nonce, err = s.nonces.IssueNonce(userID, ActionSubmitExam, e.ID, ttl)
		if err != nil {
			return Paper{}, fmt.Errorf("issue nonce: %w", err)
		}
	}
	return p, nil
}

// SubmitOutcome is what the student sees right after submitting.
type SubmitOutcome struct {
	ResultID   string  `json:"result_id"`
	Score      int     `json:"score"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
	PassMark   float64 `json:"pass_mark"`
	Status     string  `json:"status"`
}

// Submit scores answers and stores the result. Answers to questions that are not on the
// exam are dropped; unanswered objective questions count as wrong.
func (s *Service) Submit(ctx context.Context, examID, userID, nonce string, answers map[string]string) (SubmitOutcome, error) {
	if s.nonces != nil {
		if err := s.nonces.VerifyNonce(nonce, userID, ActionSubmitExam, examID); err != nil {
			return SubmitOutcome{}, fmt.Errorf("%w: %v", ErrForbidden, err)
		}
	}
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	qs, err := s.examQuestions(ctx, e)
	if err != nil {
		return SubmitOutcome{}, err
	}
	if len(qs) == 0 {
		return SubmitOutcome{}, ErrNoQuestions
	}

	kept := make(map[string]string, len(qs))
	graded := make([]grading.Result, 0, len(qs))
	for _, q := range qs {
		ans, ok := answers[q.ID]
		if ok {
			kept[q.ID] = ans
		}
		graded = append(graded, s.grader.Grade(ctx, q.gradingQ(), ans, ok))
	}
	sum := grading.Summarize(graded, e.PassMark)

	r := Result{
		ID:             uuid.NewString(),
		ExamID:         e.ID,
		UserID:         userID,
		Answers:        kept,
		ObjectiveScore: sum.Score,
		TotalObjective: sum.Total,
		Status:         sum.Status,
		SubmittedAt:    s.now(),
	}
	if sum.Status == StatusGraded {
		r.Score = float64(sum.Score)
		r.Percentage = sum.Percentage
		r.Passed = sum.Passed
	}
	if err := s.store.CreateResult(ctx, r); err != nil {
		return SubmitOutcome{}, fmt.Errorf("create result: %w", err)
	}
	s.log.Info("result submitted",
		zap.String("result_id", r.ID), zap.String("exam_id", e.ID), zap.String("user_id", userID),
		zap.Int("score", sum.Score), zap.Int("total", sum.Total), zap.String("status", r.Status))

	s.record(ctx, EventResultSubmitted, r.ID, r)
	for _, h := range s.hooks {
		h.ResultSubmitted(ctx, e, r)
	}
	return SubmitOutcome{
		ResultID:   r.ID,
		Score:      sum.Score,
		Total:      sum.Total,
		Percentage: sum.Percentage,
		Passed:     sum.Passed,
		PassMark:   e.PassMark,
		Status:     sum.Status,
	}, nil
}
