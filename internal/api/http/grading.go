package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/cbt-exam/cbtexam/internal/auth/middleware"
	"github.com/cbt-exam/cbtexam/internal/exam"
)

type gradeReq struct {
	Scores map[string]float64 `json:"scores"` // theory question id -> awarded points
}

// GET /grading/pending
func PendingGradingHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.PendingResults(r.Context())
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// GET /grading/{resultID}
func GradingSheetHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sheet, err := svc.GradingView(r.Context(), strings.TrimSpace(chi.URLParam(r, "resultID")))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, sheet)
	}
}

// POST /grading/{resultID}
func GradeResultHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		res, err := svc.GradeTheory(r.Context(), strings.TrimSpace(chi.URLParam(r, "resultID")),
			authmw.SubjectFromContext(r.Context()), req.Scores)
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
