package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/cbt-exam/cbtexam/internal/auth/middleware"
	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/rbac"
	"github.com/cbt-exam/cbtexam/internal/render"
)

// GET /exams?q=&class_level=&limit=&offset=
// Callers that manage exams get full records, everyone else exam cards.
func ListExamsHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := exam.ExamListOpts{
			Q:          strings.TrimSpace(r.URL.Query().Get("q")),
			ClassLevel: strings.TrimSpace(r.URL.Query().Get("class_level")),
			Limit:      parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:     parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		var (
			list any
			err  error
		)
		if rbac.Can(r.Context(), rbac.PermExamManage) {
			list, err = svc.ListExams(r.Context(), opts)
		} else {
			list, err = svc.Cards(r.Context(), opts)
		}
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func GetExamHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.GetExam(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func CreateExamHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in exam.ExamInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		e, err := svc.CreateExam(r.Context(), in, authmw.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func UpdateExamHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in exam.ExamInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		e, err := svc.UpdateExam(r.Context(), chi.URLParam(r, "id"), in)
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func DeleteExamHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteExam(r.Context(), chi.URLParam(r, "id")); err != nil {
			fail(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /exams/{id}/card
func ExamCardHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.Card(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// GET /exams/{id}/card.html
func ExamCardHTMLHandler(svc *exam.Service, views *render.Renderer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.Card(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeHTML(w, log, func(out io.Writer) error { return views.Card(out, c) })
	}
}
