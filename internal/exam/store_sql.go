package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLStore implements Store on the schema created by db.Open. Placeholders are $N,
// which both pgx and modernc sqlite accept.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const questionCols = `id,title,content,type,options_json,correct_answer,time_limit_sec,max_points,subject,topic,class_level,created_at,updated_at`

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	opts, err := json.Marshal(nonNil(q.Options))
	if err != nil {
		return err
	}
	var correct sql.NullInt64
	if q.CorrectAnswer != nil {
		correct = sql.NullInt64{Int64: int64(*q.CorrectAnswer), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions (`+questionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, content=EXCLUDED.content, type=EXCLUDED.type,
		  options_json=EXCLUDED.options_json, correct_answer=EXCLUDED.correct_answer,
		  time_limit_sec=EXCLUDED.time_limit_sec, max_points=EXCLUDED.max_points, subject=EXCLUDED.subject,
		  topic=EXCLUDED.topic, class_level=EXCLUDED.class_level, updated_at=EXCLUDED.updated_at`,
		q.ID, q.Title, q.Content, q.Type, string(opts), correct, q.TimeLimitSec, q.MaxPoints,
		q.Subject, q.Topic, q.ClassLevel, q.CreatedAt.Unix(), q.UpdatedAt.Unix())
	return err
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE id=$1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	return q, err
}

func (s *SQLStore) GetQuestions(ctx context.Context, ids []string) ([]Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := inList(ids, 1)
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionCols+` FROM questions WHERE id IN (`+ph+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := make(map[string]Question, len(ids))
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *SQLStore) ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, error) {
	var w where
	w.eq("type", opts.Type)
	w.eq("subject", opts.Subject)
	w.eq("topic", opts.Topic)
	w.eq("class_level", opts.ClassLevel)
	if opts.Q != "" {
		like := "%" + strings.ToLower(opts.Q) + "%"
		w.add(fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(content) LIKE $%d)", w.next(), w.next()+1), like, like)
	}
	q := `SELECT ` + questionCols + ` FROM questions` + w.sql() + ` ORDER BY created_at DESC, id` + w.page(opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, id string) error {
	return execOne(s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id))
}

const examCols = `id,title,description,question_ids_json,duration_min,pass_mark,randomize,proctoring,certificate_json,class_level,created_by,created_at,updated_at`

func (s *SQLStore) PutExam(ctx context.Context, e Exam) error {
	qids, err := json.Marshal(nonNil(e.QuestionIDs))
	if err != nil {
		return err
	}
	cert, err := json.Marshal(e.Certificate)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO exams (`+examCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description,
		  question_ids_json=EXCLUDED.question_ids_json, duration_min=EXCLUDED.duration_min,
		  pass_mark=EXCLUDED.pass_mark, randomize=EXCLUDED.randomize, proctoring=EXCLUDED.proctoring,
		  certificate_json=EXCLUDED.certificate_json, class_level=EXCLUDED.class_level,
		  updated_at=EXCLUDED.updated_at`,
		e.ID, e.Title, e.Description, string(qids), e.DurationMin, e.PassMark, boolInt(e.Randomize),
		boolInt(e.Proctoring), string(cert), e.ClassLevel, e.CreatedBy, e.CreatedAt.Unix(), e.UpdatedAt.Unix())
	return err
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+examCols+` FROM exams WHERE id=$1`, id)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrNotFound
	}
	return e, err
}

func (s *SQLStore) ListExams(ctx context.Context, opts ExamListOpts) ([]Exam, error) {
	var w where
	w.eq("class_level", opts.ClassLevel)
	if opts.Q != "" {
		w.add(fmt.Sprintf("LOWER(title) LIKE $%d", w.next()), "%"+strings.ToLower(opts.Q)+"%")
	}
	q := `SELECT ` + examCols + ` FROM exams` + w.sql() + ` ORDER BY created_at DESC, id` + w.page(opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteExam(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE exam_id=$1`, id); err != nil {
		return err
	}
	if err := execOne(tx.ExecContext(ctx, `DELETE FROM exams WHERE id=$1`, id)); err != nil {
		return err
	}
	return tx.Commit()
}

const resultCols = `id,exam_id,user_id,answers_json,objective_score,total_objective,theory_scores_json,theory_score,score,percentage,passed,status,graded_by,graded_at,submitted_at`

func (s *SQLStore) CreateResult(ctx context.Context, r Result) error {
	args, err := resultArgs(r)
	if err != nil {
		return err
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM exams WHERE id=$1`, r.ExamID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO results (`+resultCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`, args...)
	return err
}

func (s *SQLStore) GetResult(ctx context.Context, id string) (Result, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultCols+` FROM results WHERE id=$1`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrNotFound
	}
	return r, err
}

func (s *SQLStore) GradeResult(ctx context.Context, r Result) error {
	args, err := resultArgs(r)
	if err != nil {
		return err
	}
	err = execOne(s.db.ExecContext(ctx, `UPDATE results SET exam_id=$2, user_id=$3, answers_json=$4,
		objective_score=$5, total_objective=$6, theory_scores_json=$7, theory_score=$8, score=$9,
		percentage=$10, passed=$11, status=$12, graded_by=$13, graded_at=$14, submitted_at=$15
		WHERE id=$1 AND status=$16`, append(args, StatusPending)...))
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	var one int
	switch err := s.db.QueryRowContext(ctx, `SELECT 1 FROM results WHERE id=$1`, r.ID).Scan(&one); {
	case err == nil:
		return ErrAlreadyGraded
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	default:
		return err
	}
}

func (s *SQLStore) ListResults(ctx context.Context, opts ResultListOpts) ([]Result, error) {
	if opts.UserIDs != nil && len(opts.UserIDs) == 0 {
		return nil, nil
	}
	var w where
	w.eq("exam_id", opts.ExamID)
	w.eq("status", opts.Status)
	if len(opts.UserIDs) > 0 {
		ph, args := inList(opts.UserIDs, w.next())
		w.add("user_id IN ("+ph+")", args...)
	}
	q := `SELECT ` + resultCols + ` FROM results` + w.sql() + ` ORDER BY submitted_at DESC, id` + w.page(opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const settingDefaultRandomization = "default_randomization"

func (s *SQLStore) GetSettings(ctx context.Context) (Settings, error) {
	var st Settings
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=$1`, settingDefaultRandomization).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return st, nil
	case err != nil:
		return st, err
	}
	st.DefaultRandomization, _ = strconv.ParseBool(v)
	return st, nil
}

func (s *SQLStore) PutSettings(ctx context.Context, st Settings) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key,value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`,
		settingDefaultRandomization, strconv.FormatBool(st.DefaultRandomization))
	return err
}

// --- scanning helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(sc scanner) (Question, error) {
	var q Question
	var opts string
	var correct sql.NullInt64
	var created, updated int64
	if err := sc.Scan(&q.ID, &q.Title, &q.Content, &q.Type, &opts, &correct, &q.TimeLimitSec, &q.MaxPoints,
		&q.Subject, &q.Topic, &q.ClassLevel, &created, &updated); err != nil {
		return Question{}, err
	}
	if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
		return Question{}, fmt.Errorf("question %s options: %w", q.ID, err)
	}
	if correct.Valid {
		v := int(correct.Int64)
		q.CorrectAnswer = &v
	}
	q.CreatedAt, q.UpdatedAt = unix(created), unix(updated)
	return q, nil
}

func scanExam(sc scanner) (Exam, error) {
	var e Exam
	var qids, cert string
	var randomize, proctoring int
	var created, updated int64
	if err := sc.Scan(&e.ID, &e.Title, &e.Description, &qids, &e.DurationMin, &e.PassMark, &randomize,
		&proctoring, &cert, &e.ClassLevel, &e.CreatedBy, &created, &updated); err != nil {
		return Exam{}, err
	}
	if err := json.Unmarshal([]byte(qids), &e.QuestionIDs); err != nil {
		return Exam{}, fmt.Errorf("exam %s question ids: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(cert), &e.Certificate); err != nil {
		return Exam{}, fmt.Errorf("exam %s certificate: %w", e.ID, err)
	}
	e.Randomize, e.Proctoring = randomize != 0, proctoring != 0
	e.CreatedAt, e.UpdatedAt = unix(created), unix(updated)
	return e, nil
}

func scanResult(sc scanner) (Result, error) {
	var r Result
	var answers, theory string
	var passed int
	var gradedAt sql.NullInt64
	var submitted int64
	if err := sc.Scan(&r.ID, &r.ExamID, &r.UserID, &answers, &r.ObjectiveScore, &r.TotalObjective, &theory,
		&r.TheoryScore, &r.Score, &r.Percentage, &passed, &r.Status, &r.GradedBy, &gradedAt, &submitted); err != nil {
		return Result{}, err
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return Result{}, fmt.Errorf("result %s answers: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(theory), &r.TheoryScores); err != nil {
		return Result{}, fmt.Errorf("result %s theory scores: %w", r.ID, err)
	}
	if len(r.TheoryScores) == 0 {
		r.TheoryScores = nil
	}
	r.Passed = passed != 0
	if gradedAt.Valid {
		t := unix(gradedAt.Int64)
		r.GradedAt = &t
	}
	r.SubmittedAt = unix(submitted)
	return r, nil
}

func resultArgs(r Result) ([]any, error) {
	answers, err := json.Marshal(nonNilMap(r.Answers))
	if err != nil {
		return nil, err
	}
	theory, err := json.Marshal(nonNilMap(r.TheoryScores))
	if err != nil {
		return nil, err
	}
	var gradedAt sql.NullInt64
	if r.GradedAt != nil {
		gradedAt = sql.NullInt64{Int64: r.GradedAt.Unix(), Valid: true}
	}
	return []any{r.ID, r.ExamID, r.UserID, string(answers), r.ObjectiveScore, r.TotalObjective, string(theory),
		r.TheoryScore, r.Score, r.Percentage, boolInt(r.Passed), r.Status, r.GradedBy, gradedAt,
		r.SubmittedAt.Unix()}, nil
}

// where accumulates AND-ed conditions with numbered placeholders.
type where struct {
	conds []string
	args  []any
}

func (w *where) next() int { return len(w.args) + 1 }

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) eq(col, v string) {
	if v != "" {
		w.add(fmt.Sprintf("%s=$%d", col, w.next()), v)
	}
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page renders LIMIT/OFFSET. An offset without a limit is ignored.
func (w *where) page(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset > 0 {
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func inList(vals []string, start int) (string, []any) {
	ph := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		ph[i] = "$" + strconv.Itoa(start+i)
		args[i] = v
	}
	return strings.Join(ph, ","), args
}

func execOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func unix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}
