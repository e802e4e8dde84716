// Package reminder nudges staff about submissions waiting for manual grading.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/notify"
	"github.com/cbt-exam/cbtexam/internal/users"
)

const DefaultSpec = "0 8 * * *"

type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

type StaffLister interface {
	List(ctx context.Context, roles ...string) ([]users.User, error)
}

type Service struct {
	pending  PendingCounter
	staff    StaffLister
	notifier notify.Notifier
	log      *zap.Logger
	spec     string
}

func New(pending PendingCounter, staff StaffLister, n notify.Notifier, spec string, log *zap.Logger) *Service {
	if spec == "" {
		spec = DefaultSpec
	}
	return &Service{pending: pending, staff: staff, notifier: n, log: log, spec: spec}
}

// Start schedules the reminder and runs until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("grading reminder failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	c.Start()
	s.log.Info("grading reminder scheduled", zap.String("spec", s.spec))

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("grading reminder stopped")
	return nil
}

// RunOnce counts pending results and messages every teacher and admin with a chat id.
// It returns how many messages went out.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	n, err := s.pending.PendingCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	s.log.Info("pending grading", zap.Int("count", n))
	if n == 0 {
		return 0, nil
	}
	staff, err := s.staff.List(ctx, users.RoleTeacher, users.RoleAdmin)
	if err != nil {
		return 0, fmt.Errorf("list staff: %w", err)
	}
	text := fmt.Sprintf("%d submission(s) are waiting for manual grading.", n)
	sent := 0
	for _, u := range staff {
		if u.TelegramChatID == 0 {
			continue
		}
		if err := s.notifier.Send(ctx, u.TelegramChatID, text); err != nil {
			s.log.Warn("reminder send failed", zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}
