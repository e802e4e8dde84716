package exam

import "context"

type QuestionListOpts struct {
	Q          string // matches title or content
	Type       string
	Subject    string
	Topic      string
	ClassLevel string
	Limit      int
	Offset     int
}

type ExamListOpts struct {
	Q          string
	ClassLevel string
	Limit      int
	Offset     int
}

type ResultListOpts struct {
	ExamID  string
	UserIDs []string // any of
	Status  string   // pending | graded
	Limit   int
	Offset  int
}

// Store persists questions, exams, results and settings. Get methods return ErrNotFound
// for unknown ids.
type Store interface {
	PutQuestion(ctx context.Context, q Question) error
	GetQuestion(ctx context.Context, id string) (Question, error)
	// GetQuestions returns the questions in ids order, skipping unknown ids.
	GetQuestions(ctx context.Context, ids []string) ([]Question, error)
	ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, error)
	DeleteQuestion(ctx context.Context, id string) error

	PutExam(ctx context.Context, e Exam) error
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context, opts ExamListOpts) ([]Exam, error)
	// DeleteExam removes the exam and its results.
	DeleteExam(ctx context.Context, id string) error

	CreateResult(ctx context.Context, r Result) error
	GetResult(ctx context.Context, id string) (Result, error)
	// GradeResult overwrites a result that is still pending with its graded form. It
	// returns ErrAlreadyGraded when the stored result is no longer pending.
	GradeResult(ctx context.Context, r Result) error
	// ListResults returns newest submissions first.
	ListResults(ctx context.Context, opts ResultListOpts) ([]Result, error)

	GetSettings(ctx context.Context) (Settings, error)
	PutSettings(ctx context.Context, s Settings) error
}
