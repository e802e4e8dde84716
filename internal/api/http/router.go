package http

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	authmw "github.com/cbt-exam/cbtexam/internal/auth/middleware"
	"github.com/cbt-exam/cbtexam/internal/certificate"
	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/importer"
	"github.com/cbt-exam/cbtexam/internal/logging"
	"github.com/cbt-exam/cbtexam/internal/rbac"
	"github.com/cbt-exam/cbtexam/internal/render"
	"github.com/cbt-exam/cbtexam/internal/storage"
	"github.com/cbt-exam/cbtexam/internal/users"
)

// Deps is everything the router serves.
type Deps struct {
	Log             *zap.Logger
	Auth            *authmw.AuthService
	Exams           *exam.Service
	Users           *users.Store
	Importer        *importer.Importer
	Certificates    *certificate.Renderer
	Views           *render.Renderer
	Blobs           storage.BlobStore
	Events          EventLister
	DB              Pinger
	PublicURL       string
	CORSOrigins     []string
	EnableLocalAuth bool
	RequestTimeout  time.Duration
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.EnableLocalAuth {
		r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.Users, log))
	}
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(d.DB, log))

	// Authenticated by its nonce so it can be a plain download link.
	r.Get("/results/{id}/certificate", CertificateHandler(d.Exams, d.Auth, d.Users, d.Certificates, log))

	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth), authmw.AttachRoleFromDB(d.Users, log))

		pr.Route("/questions", func(qr chi.Router) {
			qr.Use(rbac.Require(rbac.PermQuestionManage))
			qr.Get("/", ListQuestionsHandler(d.Exams, log))
			qr.Post("/", CreateQuestionHandler(d.Exams, log))
			qr.Post("/import", ImportQuestionsHandler(d.Importer, log))
			qr.Get("/{id}", GetQuestionHandler(d.Exams, log))
			qr.Put("/{id}", UpdateQuestionHandler(d.Exams, log))
			qr.Delete("/{id}", DeleteQuestionHandler(d.Exams, log))
		})

		pr.Route("/exams", func(er chi.Router) {
			er.With(rbac.Require(rbac.PermExamView)).Get("/", ListExamsHandler(d.Exams, log))
			er.With(rbac.Require(rbac.PermExamManage)).Post("/", CreateExamHandler(d.Exams, log))
			er.With(rbac.Require(rbac.PermExamManage)).Get("/{id}", GetExamHandler(d.Exams, log))
			er.With(rbac.Require(rbac.PermExamManage)).Put("/{id}", UpdateExamHandler(d.Exams, log))
			er.With(rbac.Require(rbac.PermExamManage)).Delete("/{id}", DeleteExamHandler(d.Exams, log))
			er.With(rbac.Require(rbac.PermExamView)).Get("/{id}/card", ExamCardHandler(d.Exams, log))
			er.With(rbac.Require(rbac.PermExamView)).Get("/{id}/card.html", ExamCardHTMLHandler(d.Exams, d.Views, log))
			er.With(rbac.Require(rbac.PermExamTake)).Get("/{id}/take", TakeExamHandler(d.Exams, log))
			er.With(rbac.Require(rbac.PermExamTake)).Get("/{id}/take.html", TakeExamHTMLHandler(d.Exams, d.Views, d.PublicURL, log))
			er.With(rbac.Require(rbac.PermExamTake)).Post("/{id}/submit", SubmitExamHandler(d.Exams, log))
		})

		viewResults := rbac.RequireAny(rbac.PermResultsViewOwn, rbac.PermResultsViewChild, rbac.PermResultsViewAll)
		pr.With(viewResults).Get("/results", ListResultsHandler(d.Exams, log))
		pr.With(rbac.Require(rbac.PermResultsViewOwn)).Get("/results/table.html", ResultsTableHTMLHandler(d.Exams, d.Views, log))
		pr.With(viewResults).Get("/results/{id}", GetResultHandler(d.Exams, log))
		pr.With(viewResults).Get("/results/{id}/submission", SubmissionHandler(d.Exams, log))

		pr.Route("/grading", func(gr chi.Router) {
			gr.Use(rbac.Require(rbac.PermGradingGrade))
			gr.Get("/pending", PendingGradingHandler(d.Exams, log))
			gr.Get("/{resultID}", GradingSheetHandler(d.Exams, log))
			gr.Post("/{resultID}", GradeResultHandler(d.Exams, log))
		})

		pr.Route("/reports", func(rr chi.Router) {
			rr.Use(rbac.Require(rbac.PermReportsView))
			rr.Get("/exams", ExamReportsHandler(d.Exams, log))
			rr.Get("/exams/{id}", ExamResultsHandler(d.Exams, log))
		})

		pr.Get("/dashboard", DashboardHandler(d.Exams, log))
		pr.Get("/dashboard.html", DashboardHTMLHandler(d.Exams, d.Views, log))

		pr.With(rbac.Require(rbac.PermSettingsManage)).Get("/settings", GetSettingsHandler(d.Exams, log))
		pr.With(rbac.Require(rbac.PermSettingsManage)).Put("/settings", PutSettingsHandler(d.Exams, log))

		pr.Route("/users", func(ur chi.Router) {
			ur.With(rbac.Require(rbac.PermUsersList)).Get("/", ListUsersHandler(d.Users, log))
			ur.With(rbac.Require(rbac.PermUsersBulkUpsert)).Post("/bulk", BulkUpsertUsersHandler(d.Users, log))
			ur.With(rbac.Require(rbac.PermUserChangePassword)).Post("/change-password", ChangePasswordHandler(d.Users, log))
			ur.Put("/me/telegram", SetTelegramHandler(d.Users, log))
			ur.With(rbac.Require(rbac.PermUsersManage)).Put("/{id}/role", UpdateUserRoleHandler(d.Users, log))
			ur.With(rbac.Require(rbac.PermUsersManage)).Put("/{id}/children", SetChildrenHandler(d.Users, log))
		})

		if d.Events != nil {
			pr.With(rbac.Require(rbac.PermEventsView)).Get("/events", ListEventsHandler(d.Events, log))
		}
		if d.Blobs != nil {
			pr.Route("/blobs", func(br chi.Router) {
				br.Use(rbac.Require(rbac.PermSettingsManage))
				MountBlobs(br, d.Blobs, log)
			})
		}
	})

	return r
}

// MountBlobs serves stored files (archived imports, cached certificates) at GET /*.
func MountBlobs(r chi.Router, bs storage.BlobStore, log *zap.Logger) {
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(key)
		if err != nil {
			fail(w, log, err)
			return
		}
		defer rc.Close()
		ct := "application/octet-stream"
		switch {
		case strings.HasSuffix(key, ".pdf"):
			ct = "application/pdf"
		case strings.HasSuffix(key, ".csv"):
			ct = "text/csv"
		}
		w.Header().Set("Content-Type", ct)
		_, _ = io.Copy(w, rc)
	})
}
