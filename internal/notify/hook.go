package notify

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/users"
)

const sendTimeout = 15 * time.Second

// Recipients resolves who hears about a result.
type Recipients interface {
	GetByID(ctx context.Context, id string) (users.User, error)
	Parents(ctx context.Context, childID string) ([]users.User, error)
}

// ResultHook tells a student and their linked parents when a result is final. Messages
// go out in the background; Wait blocks until they are done.
type ResultHook struct {
	notifier Notifier
	people   Recipients
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewResultHook(n Notifier, people Recipients, log *zap.Logger) *ResultHook {
	return &ResultHook{notifier: n, people: people, log: log}
}

// ResultSubmitted notifies only for submissions that needed no manual grading.
func (h *ResultHook) ResultSubmitted(ctx context.Context, e exam.Exam, r exam.Result) {
	if r.Status == exam.StatusGraded {
		h.dispatch(ctx, e, r)
	}
}

func (h *ResultHook) ResultGraded(ctx context.Context, e exam.Exam, r exam.Result) {
	h.dispatch(ctx, e, r)
}

func (h *ResultHook) Wait() { h.wg.Wait() }

func (h *ResultHook) dispatch(ctx context.Context, e exam.Exam, r exam.Result) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		h.send(ctx, e, r)
	}()
}

func (h *ResultHook) send(ctx context.Context, e exam.Exam, r exam.Result) {
	student, err := h.people.GetByID(ctx, r.UserID)
	if err != nil {
		h.log.Warn("notify: student lookup failed", zap.String("user_id", r.UserID), zap.Error(err))
		return
	}
	parents, err := h.people.Parents(ctx, r.UserID)
	if err != nil {
		h.log.Warn("notify: parent lookup failed", zap.String("user_id", r.UserID), zap.Error(err))
	}
	text := ResultMessage(student.Name(), e, r)
	for _, u := range append([]users.User{student}, parents...) {
		if u.TelegramChatID == 0 {
			continue
		}
		if err := h.notifier.Send(ctx, u.TelegramChatID, text); err != nil {
			h.log.Warn("notify: send failed", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
}

// ResultMessage formats a final result for chat delivery.
func ResultMessage(studentName string, e exam.Exam, r exam.Result) string {
	verdict := "not passed"
	if r.Passed {
		verdict = "passed"
	}
	if e.PassMark == 0 {
		verdict = "completed"
	}
	return fmt.Sprintf("<b>%s</b>\n%s scored %s (%s%%) and %s.",
		html.EscapeString(e.Title), html.EscapeString(studentName),
		trimFloat(r.Score), trimFloat(r.Percentage), verdict)
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
