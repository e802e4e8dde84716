// Package render turns exam views into HTML fragments for embedding in other pages.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"

	"github.com/cbt-exam/cbtexam/internal/exam"
)

//go:embed templates/*.html
var files embed.FS

type Renderer struct {
	t      *template.Template
	policy *bluemonday.Policy
}

func New() (*Renderer, error) {
	r := &Renderer{policy: bluemonday.UGCPolicy()}
	t, err := template.New("cbt").Funcs(template.FuncMap{
		"ago":      humanize.Time,
		"date":     func(t time.Time) string { return t.Format("2006-01-02 15:04") },
		"pct":      func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) + "%" },
		"score":    func(f float64) string { return humanize.Ftoa(f) },
		"clock":    func(sec int) string { return fmt.Sprintf("%02d:%02d", sec/60, sec%60) },
		"richText": r.richText,
	}).ParseFS(files, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r.t = t
	return r, nil
}

// richText keeps the formatting markup of question content and strips scripts, handlers
// and other active content.
func (r *Renderer) richText(s string) template.HTML {
	return template.HTML(r.policy.Sanitize(s))
}

// Exam renders the exam-taking widget. Answers post back to submitURL.
func (r *Renderer) Exam(w io.Writer, p exam.Paper, submitURL string) error {
	return r.t.ExecuteTemplate(w, "exam", struct {
		Paper     exam.Paper
		SubmitURL string
	}{p, submitURL})
}

func (r *Renderer) Card(w io.Writer, c exam.Card) error {
	return r.t.ExecuteTemplate(w, "card", c)
}

func (r *Renderer) Results(w io.Writer, rows []exam.ResultRow) error {
	return r.t.ExecuteTemplate(w, "results", rows)
}

func (r *Renderer) Dashboard(w io.Writer, d exam.Dashboard) error {
	return r.t.ExecuteTemplate(w, "dashboard", d)
}
