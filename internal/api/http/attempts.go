package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/cbt-exam/cbtexam/internal/auth/middleware"
	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/render"
)

// answerFieldPrefix prefixes question ids in form-encoded submissions.
const answerFieldPrefix = "q_"

type submitReq struct {
	Nonce   string            `json:"nonce"`
	Answers map[string]string `json:"answers"`
}

// GET /exams/{id}/take
func TakeExamHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.PrepareAttempt(r.Context(), chi.URLParam(r, "id"), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// GET /exams/{id}/take.html
// baseURL prefixes the form action so the widget can be embedded on another site.
func TakeExamHTMLHandler(svc *exam.Service, views *render.Renderer, baseURL string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := svc.PrepareAttempt(r.Context(), id, authmw.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, log, err)
			return
		}
		submitURL := baseURL + "/exams/" + url.PathEscape(id) + "/submit"
		writeHTML(w, log, func(out io.Writer) error { return views.Exam(out, p, submitURL) })
	}
}

// POST /exams/{id}/submit
// Accepts {"nonce": "...", "answers": {"<question id>": "<answer>"}} or a form with a
// nonce field and one q_<question id> field per answer.
func SubmitExamHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := readSubmission(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out, err := svc.Submit(r.Context(), chi.URLParam(r, "id"), authmw.SubjectFromContext(r.Context()), req.Nonce, req.Answers)
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func readSubmission(r *http.Request) (submitReq, error) {
	var req submitReq
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return submitReq{}, err
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return submitReq{}, err
	}
	req.Nonce = r.PostForm.Get("nonce")
	req.Answers = map[string]string{}
	for k, vs := range r.PostForm {
		if id, ok := strings.CutPrefix(k, answerFieldPrefix); ok && id != "" && len(vs) > 0 {
			req.Answers[id] = vs[0]
		}
	}
	return req, nil
}
