package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	api "github.com/cbt-exam/cbtexam/internal/api/http"
	auth "github.com/cbt-exam/cbtexam/internal/auth/middleware"
	"github.com/cbt-exam/cbtexam/internal/certificate"
	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/importer"
	"github.com/cbt-exam/cbtexam/internal/notify"
	"github.com/cbt-exam/cbtexam/internal/reminder"
	"github.com/cbt-exam/cbtexam/internal/render"
	"github.com/cbt-exam/cbtexam/internal/storage"
	syncx "github.com/cbt-exam/cbtexam/internal/sync"
	"github.com/cbt-exam/cbtexam/internal/users"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the grading reminder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer rt.close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	cfg, log := rt.cfg, rt.log

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return err
	}
	people := users.NewStore(rt.db)
	if cfg.AdminPassHash != "" {
		if created, err := people.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassHash); err != nil {
			return err
		} else if created {
			log.Info("admin account created", zap.String("username", cfg.AdminUser))
		}
	}

	notifier, err := notify.New(cfg.TelegramBotToken, log)
	if err != nil {
		return err
	}
	resultHook := notify.NewResultHook(notifier, people, log)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL)
	events := syncx.NewEventRepo(rt.db, siteID())
	svc := exam.NewService(exam.NewSQLStore(rt.db), exam.Options{
		Logger:      log,
		Nonces:      authSvc,
		Events:      events,
		People:      people,
		Hooks:       []exam.Hook{resultHook},
		SubmitGrace: cfg.SubmitGrace,
	})
	views, err := render.New()
	if err != nil {
		return err
	}

	h := api.NewRouter(api.Deps{
		Log:             log,
		Auth:            authSvc,
		Exams:           svc,
		Users:           people,
		Importer:        importer.New(svc, bs, events, log),
		Certificates:    certificate.NewRenderer(bs, cfg.CertificateDateFormat, log),
		Views:           views,
		Blobs:           bs,
		Events:          events,
		DB:              rt.db,
		PublicURL:       cfg.PublicURL,
		CORSOrigins:     cfg.CORSOrigins(),
		EnableLocalAuth: cfg.EnableLocalAuth,
	})

	reminderDone := make(chan struct{})
	if cfg.GradingReminderSpec != "" {
		rem := reminder.New(svc, people, notifier, cfg.GradingReminderSpec, log)
		go func() {
			defer close(reminderDone)
			if err := rem.Start(ctx); err != nil {
				log.Error("grading reminder", zap.Error(err))
			}
		}()
	} else {
		close(reminderDone)
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("mode", string(cfg.Mode)), zap.String("db", cfg.DBDriver))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	<-reminderDone
	resultHook.Wait()
	return nil
}

func siteID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "local"
}
