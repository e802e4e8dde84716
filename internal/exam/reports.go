package exam

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cbt-exam/cbtexam/internal/grading"
	"github.com/cbt-exam/cbtexam/internal/users"
)

const certificateNonceTTL = time.Hour

// ResultRow is a result as listed in tables and dashboards.
type ResultRow struct {
	ResultID    string    `json:"result_id"`
	ExamID      string    `json:"exam_id"`
	ExamTitle   string    `json:"exam_title"`
	UserID      string    `json:"user_id"`
	StudentName string    `json:"student_name"`
	Score       float64   `json:"score"`
	Total       int       `json:"total"`
	Percentage  float64   `json:"percentage"`
	Passed      bool      `json:"passed"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	// CertificateURL is set on dashboard rows when a certificate can be downloaded.
	CertificateURL string `json:"certificate_url,omitempty"`
}

type rowCache struct {
	titles map[string]string
	names  map[string]string
}

func newRowCache() rowCache {
	return rowCache{titles: map[string]string{}, names: map[string]string{}}
}

func (s *Service) row(ctx context.Context, r Result, c rowCache) ResultRow {
	score := r.Score
	if r.Status == StatusPending {
		score = float64(r.ObjectiveScore)
	}
	return ResultRow{
		ResultID:    r.ID,
		ExamID:      r.ExamID,
		ExamTitle:   s.examTitle(ctx, r.ExamID, c.titles),
		UserID:      r.UserID,
		StudentName: s.displayName(ctx, r.UserID, c.names),
		Score:       score,
		Total:       r.TotalObjective,
		Percentage:  r.Percentage,
		Passed:      r.Passed,
		Status:      r.Status,
		SubmittedAt: r.SubmittedAt,
	}
}

// ListResults lists the results v may see: everything with ViewAll, linked children's for
// parents, otherwise v's own.
func (s *Service) ListResults(ctx context.Context, v Viewer, opts ResultListOpts) ([]ResultRow, error) {
	switch {
	case v.ViewAll:
	case v.Role == users.RoleParent:
		kids, err := s.children(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(kids))
		for _, k := range kids {
			ids = append(ids, k.ID)
		}
		opts.UserIDs = ids
	default:
		opts.UserIDs = []string{v.ID}
	}
	rs, err := s.store.ListResults(ctx, opts)
	if err != nil {
		return nil, err
	}
	c := newRowCache()
	out := make([]ResultRow, 0, len(rs))
	for _, r := range rs {
		out = append(out, s.row(ctx, r, c))
	}
	return out, nil
}

func (s *Service) GetResult(ctx context.Context, v Viewer, id string) (Result, error) {
	r, err := s.store.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.canView(ctx, v, r.UserID); err != nil {
		return Result{}, err
	}
	return r, nil
}

// SubmissionItem is one answered (or skipped) question of a submission.
type SubmissionItem struct {
	QuestionID    string   `json:"question_id"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Answer        string   `json:"answer"` // option text for objective questions
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Correct       *bool    `json:"correct,omitempty"`
	Awarded       *float64 `json:"awarded,omitempty"`
	MaxPoints     float64  `json:"max_points,omitempty"`
}

type Submission struct {
	Row   ResultRow        `json:"result"`
	Items []SubmissionItem `json:"items"`
}

const notAnswered = "N/A"

func (s *Service) SubmissionView(ctx context.Context, v Viewer, resultID string) (Submission, error) {
	r, err := s.GetResult(ctx, v, resultID)
	if err != nil {
		return Submission{}, err
	}
	e, err := s.store.GetExam(ctx, r.ExamID)
	if err != nil {
		return Submission{}, err
	}
	qs, err := s.examQuestions(ctx, e)
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{Row: s.row(ctx, r, newRowCache()), Items: make([]SubmissionItem, 0, len(qs))}
	for _, q := range qs {
		it := SubmissionItem{QuestionID: q.ID, Title: q.Title, Type: q.Type, Answer: notAnswered, MaxPoints: q.MaxPoints}
		raw, answered := r.Answers[q.ID]
		switch q.Type {
		case TypeObjective:
			if answered {
				if idx, ok := grading.ParseChoice(raw); ok && idx < len(q.Options) {
					it.Answer = q.Options[idx]
				} else {
					it.Answer = raw
				}
			}
			if q.CorrectAnswer != nil && *q.CorrectAnswer < len(q.Options) {
				it.CorrectAnswer = q.Options[*q.CorrectAnswer]
			}
			res := s.grader.Grade(ctx, q.gradingQ(), raw, answered)
			it.Correct = &res.Correct
		default:
			if answered && raw != "" {
				it.Answer = raw
			}
			if a, ok := r.TheoryScores[q.ID]; ok {
				it.Awarded = &a
			}
		}
		sub.Items = append(sub.Items, it)
	}
	return sub, nil
}

// ExamReport summarises submissions for one exam.
type ExamReport struct {
	ExamID       string  `json:"exam_id"`
	Title        string  `json:"title"`
	Submissions  int     `json:"submissions"`
	Pending      int     `json:"pending"`
	AverageScore float64 `json:"average_score"` // over graded results
}

func (s *Service) ExamReports(ctx context.Context) ([]ExamReport, error) {
	exams, err := s.store.ListExams(ctx, ExamListOpts{})
	if err != nil {
		return nil, err
	}
	out := make([]ExamReport, 0, len(exams))
	for _, e := range exams {
		rs, err := s.store.ListResults(ctx, ResultListOpts{ExamID: e.ID})
		if err != nil {
			return nil, err
		}
		rep := ExamReport{ExamID: e.ID, Title: e.Title, Submissions: len(rs)}
		var sum float64
		var graded int
		for _, r := range rs {
			if r.Status == StatusPending {
				rep.Pending++
				continue
			}
			sum += r.Score
			graded++
		}
		if graded > 0 {
			rep.AverageScore = grading.Round2(sum / float64(graded))
		}
		out = append(out, rep)
	}
	return out, nil
}

func (s *Service) ExamResults(ctx context.Context, examID string) ([]ResultRow, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	return s.ListResults(ctx, Viewer{ViewAll: true}, ResultListOpts{ExamID: examID})
}

// Card is the exam card widget.
type Card struct {
	ExamID        string `json:"exam_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	DurationMin   int    `json:"duration_min"`
	QuestionCount int    `json:"question_count"`
	TakeURL       string `json:"take_url"`
}

func (s *Service) Card(ctx context.Context, examID string) (Card, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Card{}, err
	}
	return cardOf(e), nil
}

// Cards lists exams as cards, without question ids or certificate settings.
func (s *Service) Cards(ctx context.Context, opts ExamListOpts) ([]Card, error) {
	es, err := s.store.ListExams(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Card, 0, len(es))
	for _, e := range es {
		out = append(out, cardOf(e))
	}
	return out, nil
}

func cardOf(e Exam) Card {
	return Card{
		ExamID:        e.ID,
		Title:         e.Title,
		Description:   e.Description,
		DurationMin:   e.DurationMin,
		QuestionCount: len(e.QuestionIDs),
		TakeURL:       "/exams/" + url.PathEscape(e.ID) + "/take.html",
	}
}

type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Dashboard is a student's upcoming and completed exams. For parents it also lists the
// linked children and which one is shown.
type Dashboard struct {
	Student   *Person     `json:"student,omitempty"`
	Children  []Person    `json:"children,omitempty"`
	Notice    string      `json:"notice,omitempty"`
	Upcoming  []Card      `json:"upcoming"`
	Completed []ResultRow `json:"completed"`
}

const noChildrenNotice = "You do not have any children linked to your account."

// Dashboard builds the dashboard for v. Parents pick a child with studentID, defaulting
// to the first linked one.
func (s *Service) Dashboard(ctx context.Context, v Viewer, studentID string) (Dashboard, error) {
	d := Dashboard{Upcoming: []Card{}, Completed: []ResultRow{}}
	target := v.ID
	if v.Role == users.RoleParent {
		kids, err := s.children(ctx, v.ID)
		if err != nil {
			return Dashboard{}, err
		}
		if len(kids) == 0 {
			d.Notice = noChildrenNotice
			return d, nil
		}
		for _, k := range kids {
			d.Children = append(d.Children, Person{ID: k.ID, Name: k.Name()})
		}
		target = kids[0].ID
		if studentID != "" {
			if !slices.ContainsFunc(kids, func(u users.User) bool { return u.ID == studentID }) {
				return Dashboard{}, ErrForbidden
			}
			target = studentID
		}
	}
	d.Student = &Person{ID: target, Name: s.displayName(ctx, target, nil)}

	rs, err := s.store.ListResults(ctx, ResultListOpts{UserIDs: []string{target}})
	if err != nil {
		return Dashboard{}, err
	}
	exams, err := s.store.ListExams(ctx, ExamListOpts{})
	if err != nil {
		return Dashboard{}, err
	}
	byID := make(map[string]Exam, len(exams))
	for _, e := range exams {
		byID[e.ID] = e
	}
	done := map[string]bool{}
	c := newRowCache()
	for _, r := range rs {
		done[r.ExamID] = true
		row := s.row(ctx, r, c)
		if e, ok := byID[r.ExamID]; ok && e.Certificate.Enabled && r.Passed && s.nonces != nil {
			nonce, err := s.nonces.IssueNonce(v.ID, ActionDownloadCertificate, r.ID, certificateNonceTTL)
			if err != nil {
				return Dashboard{}, err
			}
			row.CertificateURL = "/results/" + url.PathEscape(r.ID) + "/certificate?nonce=" + url.QueryEscape(nonce)
		}
		d.Completed = append(d.Completed, row)
	}
	for _, e := range exams {
		if !done[e.ID] {
			d.Upcoming = append(d.Upcoming, cardOf(e))
		}
	}
	return d, nil
}

// CertificateData is everything needed to render a certificate.
type CertificateData struct {
	Exam        Exam
	Result      Result
	StudentName string
	Score       string // final score
	Percentage  string
}

// CertificateFor checks the download nonce and access, and that the exam awards
// certificates to this passed result.
func (s *Service) CertificateFor(ctx context.Context, v Viewer, resultID, nonce string) (CertificateData, error) {
	if s.nonces != nil {
		if err := s.nonces.VerifyNonce(nonce, v.ID, ActionDownloadCertificate, resultID); err != nil {
			return CertificateData{}, fmt.Errorf("%w: %v", ErrForbidden, err)
		}
	}
	r, err := s.GetResult(ctx, v, resultID)
	if err != nil {
		return CertificateData{}, err
	}
	e, err := s.store.GetExam(ctx, r.ExamID)
	if err != nil {
		return CertificateData{}, err
	}
	if !e.Certificate.Enabled || !r.Passed {
		return CertificateData{}, fmt.Errorf("%w: certificate not available", ErrForbidden)
	}
	return CertificateData{
		Exam:        e,
		Result:      r,
		StudentName: s.displayName(ctx, r.UserID, nil),
		Score:       humanize.Ftoa(r.Score),
		Percentage:  humanize.Ftoa(r.Percentage) + "%",
	}, nil
}
