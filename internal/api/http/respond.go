package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	authmw "github.com/cbt-exam/cbtexam/internal/auth/middleware"
	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/rbac"
	"github.com/cbt-exam/cbtexam/internal/storage"
	"github.com/cbt-exam/cbtexam/internal/users"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, exam.ErrNotFound), errors.Is(err, users.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrInvalid), errors.Is(err, users.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, exam.ErrForbidden), errors.Is(err, users.ErrBadPassword):
		return http.StatusForbidden
	case errors.Is(err, exam.ErrNoQuestions), errors.Is(err, exam.ErrAlreadyGraded), errors.Is(err, users.ErrLastAdmin):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Internal errors are logged and hidden.
func fail(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", code)
		return
	}
	http.Error(w, err.Error(), code)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

// viewerFrom builds the result viewer for the authenticated caller.
func viewerFrom(r *http.Request) exam.Viewer {
	ctx := r.Context()
	return exam.Viewer{
		ID:      authmw.SubjectFromContext(ctx),
		Role:    rbac.RoleFromContext(ctx),
		ViewAll: rbac.Can(ctx, rbac.PermResultsViewAll),
	}
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// writeHTML renders a fragment, buffering it until rendering succeeds.
func writeHTML(w http.ResponseWriter, log *zap.Logger, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		fail(w, log, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
