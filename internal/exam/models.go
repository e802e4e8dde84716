package exam

import (
	"time"

	"github.com/cbt-exam/cbtexam/internal/grading"
)

// Question types.
const (
	TypeObjective = grading.TypeObjective
	TypeTheory    = grading.TypeTheory
)

// Result statuses.
const (
	StatusPending = grading.StatusPending
	StatusGraded  = grading.StatusGraded
)

type Question struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content,omitempty"` // HTML, sanitized when rendered
	Type          string    `json:"type"` // objective | theory
	Options       []string  `json:"options,omitempty"`
	CorrectAnswer *int      `json:"correct_answer,omitempty"` // index into Options
	TimeLimitSec  int       `json:"time_limit_sec,omitempty"`
	MaxPoints     float64   `json:"max_points,omitempty"` // theory only, 0 = unbounded
	Subject       string    `json:"subject,omitempty"`
	Topic         string    `json:"topic,omitempty"`
	ClassLevel    string    `json:"class_level,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (q Question) gradingQ() grading.Q {
	return grading.Q{ID: q.ID, Type: q.Type, CorrectAnswer: q.CorrectAnswer, MaxPoints: q.MaxPoints}
}

type Certificate struct {
	Enabled bool   `json:"enabled"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body,omitempty"` // supports [student_name] [exam_name] [completion_date] [score]
}

type Exam struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	QuestionIDs []string    `json:"question_ids"`
	DurationMin int         `json:"duration_min"`
	PassMark    float64     `json:"pass_mark"` // percentage, 0 = none
	Randomize   bool        `json:"randomize"`
	Proctoring  bool        `json:"proctoring"`
	Certificate Certificate `json:"certificate"`
	ClassLevel  string      `json:"class_level,omitempty"`
	CreatedBy   string      `json:"created_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Result records one student's attempt at one exam.
type Result struct {
	ID             string             `json:"id"`
	ExamID         string             `json:"exam_id"`
	UserID         string             `json:"user_id"`
	Answers        map[string]string  `json:"answers"` // question id -> answer
	ObjectiveScore int                `json:"objective_score"`
	TotalObjective int                `json:"total_objective"`
	TheoryScores   map[string]float64 `json:"theory_scores,omitempty"`
	TheoryScore    float64            `json:"theory_score"`
	Score          float64            `json:"score"`
	Percentage     float64            `json:"percentage"`
	Passed         bool               `json:"passed"`
	Status         string             `json:"status"`
	GradedBy       string             `json:"graded_by,omitempty"`
	GradedAt       *time.Time         `json:"graded_at,omitempty"`
	SubmittedAt    time.Time          `json:"submitted_at"`
}

type Settings struct {
	DefaultRandomization bool `json:"default_randomization"`
}
