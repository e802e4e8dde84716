package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/importer"
)

// maxImportBytes bounds multipart uploads for question imports and user files.
const maxImportBytes = 10 << 20

// GET /questions?q=&type=&subject=&topic=&class_level=&limit=&offset=
func ListQuestionsHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		list, err := svc.ListQuestions(r.Context(), exam.QuestionListOpts{
			Q:          strings.TrimSpace(qv.Get("q")),
			Type:       strings.TrimSpace(qv.Get("type")),
			Subject:    strings.TrimSpace(qv.Get("subject")),
			Topic:      strings.TrimSpace(qv.Get("topic")),
			ClassLevel: strings.TrimSpace(qv.Get("class_level")),
			Limit:      parseIntDefault(qv.Get("limit"), 50),
			Offset:     parseIntDefault(qv.Get("offset"), 0),
		})
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func GetQuestionHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.GetQuestion(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func CreateQuestionHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q exam.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		out, err := svc.CreateQuestion(r.Context(), q)
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func UpdateQuestionHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q exam.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		out, err := svc.UpdateQuestion(r.Context(), chi.URLParam(r, "id"), q)
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func DeleteQuestionHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteQuestion(r.Context(), chi.URLParam(r, "id")); err != nil {
			fail(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /questions/import (multipart file=)
func ImportQuestionsHandler(im *importer.Importer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()
		rep, err := im.Import(r.Context(), f)
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
