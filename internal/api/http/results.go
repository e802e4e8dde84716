package http

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/cbt-exam/cbtexam/internal/auth/middleware"
	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/rbac"
	"github.com/cbt-exam/cbtexam/internal/render"
	"github.com/cbt-exam/cbtexam/internal/users"
)

// GET /results?exam_id=&status=&limit=&offset=
// Holders of results:view-all see every result, parents their children's, everyone else
// their own.
func ListResultsHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		rows, err := svc.ListResults(r.Context(), viewerFrom(r), exam.ResultListOpts{
			ExamID: strings.TrimSpace(qv.Get("exam_id")),
			Status: strings.TrimSpace(qv.Get("status")),
			Limit:  parseIntDefault(qv.Get("limit"), 50),
			Offset: parseIntDefault(qv.Get("offset"), 0),
		})
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// GET /results/table.html renders the caller's own results.
func ResultsTableHTMLHandler(svc *exam.Service, views *render.Renderer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		own := exam.Viewer{ID: authmw.SubjectFromContext(r.Context())}
		rows, err := svc.ListResults(r.Context(), own, exam.ResultListOpts{})
		if err != nil {
			fail(w, log, err)
			return
		}
		writeHTML(w, log, func(out io.Writer) error { return views.Results(out, rows) })
	}
}

func GetResultHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetResult(r.Context(), viewerFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /results/{id}/submission
func SubmissionHandler(svc *exam.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := svc.SubmissionView(r.Context(), viewerFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// NonceReader reads the subject out of a signed nonce.
type NonceReader interface {
	NonceSubject(token string) (string, error)
}

// UserGetter loads a user record.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (users.User, error)
}

// CertificateSource renders the PDF for a certificate.
type CertificateSource interface {
	PDF(d exam.CertificateData) ([]byte, error)
}

// GET /results/{id}/certificate?nonce=...
// The nonce authenticates the download, so the route works as a plain link. The nonce's
// subject must still be allowed to see the result.
func CertificateHandler(svc *exam.Service, nonces NonceReader, people UserGetter, certs CertificateSource, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nonce := r.URL.Query().Get("nonce")
		sub, err := nonces.NonceSubject(nonce)
		if err != nil {
			http.Error(w, "invalid nonce", http.StatusForbidden)
			return
		}
		u, err := people.GetByID(r.Context(), sub)
		if err != nil {
			http.Error(w, "invalid nonce", http.StatusForbidden)
			return
		}
		ctx := rbac.WithRole(r.Context(), u.Role)
		v := exam.Viewer{ID: u.ID, Role: u.Role, ViewAll: rbac.Can(ctx, rbac.PermResultsViewAll)}
		d, err := svc.CertificateFor(ctx, v, chi.URLParam(r, "id"), nonce)
		if err != nil {
			fail(w, log, err)
			return
		}
		pdf, err := certs.PDF(d)
		if err != nil {
			fail(w, log, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="certificate-`+d.Result.ID+`.pdf"`)
		_, _ = w.Write(pdf)
	}
}
