package exam

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/grading"
	"github.com/cbt-exam/cbtexam/internal/users"
)

// Nonce actions.
const (
	ActionSubmitExam          = "submit_exam"
	ActionDownloadCertificate = "download_certificate"
)

// Event types appended to the event log.
const (
	EventResultSubmitted = "ResultSubmitted"
	EventResultGraded    = "ResultGraded"
)

// Nonces issues and verifies short-lived tokens that bind a subject to one action on one item.
type Nonces interface {
	IssueNonce(subject, action, ref string, ttl time.Duration) (string, error)
	VerifyNonce(token, subject, action, ref string) error
}

// EventSink records domain events.
type EventSink interface {
	Append(ctx context.Context, typ, key string, payload any) error
}

// Hook observes result lifecycle changes. Implementations must not block for long.
type Hook interface {
	ResultSubmitted(ctx context.Context, e Exam, r Result)
	ResultGraded(ctx context.Context, e Exam, r Result)
}

// Directory resolves users and parent links.
type Directory interface {
	GetByID(ctx context.Context, id string) (users.User, error)
	Children(ctx context.Context, parentID string) ([]users.User, error)
}

// Viewer is the caller on whose behalf results are read.
type Viewer struct {
	ID      string
	Role    string
	ViewAll bool // holds results:view-all
}

type Options struct {
	Logger      *zap.Logger
	Grader      grading.Grader
	Nonces      Nonces
	Events      EventSink
	People      Directory
	Hooks       []Hook
	SubmitGrace time.Duration
	Now         func() time.Time
	Shuffle     func(n int, swap func(i, j int))
}

type Service struct {
	store   Store
	log     *zap.Logger
	grader  grading.Grader
	nonces  Nonces
	events  EventSink
	people  Directory
	hooks   []Hook
	grace   time.Duration
	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:   store,
		log:     opts.Logger,
		grader:  opts.Grader,
		nonces:  opts.Nonces,
		events:  opts.Events,
		people:  opts.People,
		hooks:   opts.Hooks,
		grace:   opts.SubmitGrace,
		now:     opts.Now,
		shuffle: opts.Shuffle,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.grader == nil {
		s.grader = grading.NewDefaultGrader()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC().Truncate(time.Second) }
	}
	if s.shuffle == nil {
		s.shuffle = rand.Shuffle
	}
	return s
}

// --- questions ---

func (s *Service) ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, error) {
	return s.store.ListQuestions(ctx, opts)
}

func (s *Service) GetQuestion(ctx context.Context, id string) (Question, error) {
	return s.store.GetQuestion(ctx, id)
}

func (s *Service) CreateQuestion(ctx context.Context, q Question) (Question, error) {
	normalizeQuestion(&q)
	if err := validateQuestion(q); err != nil {
		return Question{}, err
	}
	q.ID = uuid.NewString()
	q.CreatedAt = s.now()
	q.UpdatedAt = q.CreatedAt
	if err := s.store.PutQuestion(ctx, q); err != nil {
		return Question{}, fmt.Errorf("put question: %w", err)
	}
	return q, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, id string, q Question) (Question, error) {
	cur, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, err
	}
	normalizeQuestion(&q)
	if err := validateQuestion(q); err != nil {
		return Question{}, err
	}
	q.ID = cur.ID
	q.CreatedAt = cur.CreatedAt
	q.UpdatedAt = s.now()
	if err := s.store.PutQuestion(ctx, q); err != nil {
		return Question{}, fmt.Errorf("put question: %w", err)
	}
	return q, nil
}

// DeleteQuestion refuses to delete a question that an exam still references.
func (s *Service) DeleteQuestion(ctx context.Context, id string) error {
	if _, err := s.store.GetQuestion(ctx, id); err != nil {
		return err
	}
	exams, err := s.store.ListExams(ctx, ExamListOpts{})
	if err != nil {
		return err
	}
	for _, e := range exams {
		if slices.Contains(e.QuestionIDs, id) {
			return invalid("question is used by exam %q", e.Title)
		}
	}
	return s.store.DeleteQuestion(ctx, id)
}

// --- exams ---

// ExamInput is the editable part of an exam. A nil Randomize takes the site default.
type ExamInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	QuestionIDs []string    `json:"question_ids"`
	DurationMin int         `json:"duration_min"`
	PassMark    float64     `json:"pass_mark"`
	Randomize   *bool       `json:"randomize"`
	Proctoring  bool        `json:"proctoring"`
	Certificate Certificate `json:"certificate"`
	ClassLevel  string      `json:"class_level"`
}

func (in ExamInput) apply(e *Exam) {
	e.Title = strings.TrimSpace(in.Title)
	e.Description = in.Description
	e.QuestionIDs = slices.Clone(in.QuestionIDs)
	if e.QuestionIDs == nil {
		e.QuestionIDs = []string{}
	}
	e.DurationMin = in.DurationMin
	e.PassMark = in.PassMark
	if in.Randomize != nil {
		e.Randomize = *in.Randomize
	}
	e.Proctoring = in.Proctoring
	e.Certificate = in.Certificate
	e.ClassLevel = in.ClassLevel
}

func (s *Service) ListExams(ctx context.Context, opts ExamListOpts) ([]Exam, error) {
	return s.store.ListExams(ctx, opts)
}

func (s *Service) GetExam(ctx context.Context, id string) (Exam, error) {
	return s.store.GetExam(ctx, id)
}

func (s *Service) CreateExam(ctx context.Context, in ExamInput, createdBy string) (Exam, error) {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return Exam{}, err
	}
	e := Exam{Randomize: st.DefaultRandomization}
	in.apply(&e)
	if err := s.validateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	e.ID = uuid.NewString()
	e.CreatedBy = createdBy
	e.CreatedAt = s.now()
	e.UpdatedAt = e.CreatedAt
	if err := s.store.PutExam(ctx, e); err != nil {
		return Exam{}, fmt.Errorf("put exam: %w", err)
	}
	return e, nil
}

// UpdateExam replaces the editable fields. A nil Randomize keeps the current value.
func (s *Service) UpdateExam(ctx context.Context, id string, in ExamInput) (Exam, error) {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	in.apply(&e)
	if err := s.validateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	e.UpdatedAt = s.now()
	if err := s.store.PutExam(ctx, e); err != nil {
		return Exam{}, fmt.Errorf("put exam: %w", err)
	}
	return e, nil
}

func (s *Service) DeleteExam(ctx context.Context, id string) error {
	return s.store.DeleteExam(ctx, id)
}

// --- settings ---

func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return s.store.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, st Settings) (Settings, error) {
	if err := s.store.PutSettings(ctx, st); err != nil {
		return Settings{}, err
	}
	return st, nil
}

// --- helpers shared by the attempt, grading and report code ---

func (s *Service) examQuestions(ctx context.Context, e Exam) ([]Question, error) {
	qs, err := s.store.GetQuestions(ctx, e.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return qs, nil
}

func (s *Service) record(ctx context.Context, typ, key string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, typ, key, payload); err != nil {
		s.log.Warn("event append failed", zap.String("type", typ), zap.String("key", key), zap.Error(err))
	}
}

// displayName resolves a user's name, falling back to the id.
func (s *Service) displayName(ctx context.Context, id string, cache map[string]string) string {
	if n, ok := cache[id]; ok {
		return n
	}
	name := id
	if s.people != nil {
		u, err := s.people.GetByID(ctx, id)
		switch {
		case err == nil:
			name = u.Name()
		case !errors.Is(err, users.ErrNotFound):
			s.log.Warn("user lookup failed", zap.String("user_id", id), zap.Error(err))
		}
	}
	if cache != nil {
		cache[id] = name
	}
	return name
}

func (s *Service) children(ctx context.Context, parentID string) ([]users.User, error) {
	if s.people == nil {
		return nil, nil
	}
	return s.people.Children(ctx, parentID)
}

// canView reports whether v may read results of the given student.
func (s *Service) canView(ctx context.Context, v Viewer, studentID string) error {
	if v.ViewAll || v.ID == studentID {
		return nil
	}
	if v.Role == users.RoleParent {
		kids, err := s.children(ctx, v.ID)
		if err != nil {
			return err
		}
		for _, k := range kids {
			if k.ID == studentID {
				return nil
			}
		}
	}
	return ErrForbidden
}
