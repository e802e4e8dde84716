package exam

import (
	"context"
	"fmt"
	"strings"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func normalizeQuestion(q *Question) {
	q.Title = strings.TrimSpace(q.Title)
	q.Type = strings.ToLower(strings.TrimSpace(q.Type))
	for i := range q.Options {
		q.Options[i] = strings.TrimSpace(q.Options[i])
	}
}

func validateQuestion(q Question) error {
	if q.Title == "" {
		return invalid("title is required")
	}
	if q.TimeLimitSec < 0 {
		return invalid("time limit must not be negative")
	}
	switch q.Type {
	case TypeObjective:
		if len(q.Options) < 2 {
			return invalid("objective questions need at least two options")
		}
		for i, o := range q.Options {
			if o == "" {
				return invalid("option %d is empty", i)
			}
		}
		if c := q.CorrectAnswer; c != nil && (*c < 0 || *c >= len(q.Options)) {
			return invalid("correct answer %d is not an option index", *c)
		}
		if q.MaxPoints != 0 {
			return invalid("max points apply to theory questions only")
		}
	case TypeTheory:
		if len(q.Options) > 0 || q.CorrectAnswer != nil {
			return invalid("theory questions take no options or correct answer")
		}
		if q.MaxPoints < 0 {
			return invalid("max points must not be negative")
		}
	default:
		return invalid("unknown question type %q", q.Type)
	}
	return nil
}

func (s *Service) validateExam(ctx context.Context, e Exam) error {
	if e.Title == "" {
		return invalid("title is required")
	}
	if e.PassMark < 0 || e.PassMark > 100 {
		return invalid("pass mark must be between 0 and 100")
	}
	if e.DurationMin < 0 {
		return invalid("duration must not be negative")
	}
	seen := make(map[string]bool, len(e.QuestionIDs))
	for _, id := range e.QuestionIDs {
		if seen[id] {
			return invalid("question %s listed twice", id)
		}
		seen[id] = true
	}
	qs, err := s.store.GetQuestions(ctx, e.QuestionIDs)
	if err != nil {
		return err
	}
	if len(qs) != len(e.QuestionIDs) {
		found := make(map[string]bool, len(qs))
		for _, q := range qs {
			found[q.ID] = true
		}
		for _, id := range e.QuestionIDs {
			if !found[id] {
				return invalid("unknown question %s", id)
			}
		}
	}
	return nil
}
