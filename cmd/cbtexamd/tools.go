package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/importer"
	"github.com/cbt-exam/cbtexam/internal/storage"
	syncx "github.com/cbt-exam/cbtexam/internal/sync"
	"github.com/cbt-exam/cbtexam/internal/users"
)

func importQuestionsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import-questions <file.csv>",
		Short: "Import questions from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer rt.close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			bs, err := storage.NewFSStore(rt.cfg.BlobBasePath)
			if err != nil {
				return err
			}
			events := syncx.NewEventRepo(rt.db, siteID())
			svc := exam.NewService(exam.NewSQLStore(rt.db), exam.Options{Logger: rt.log, Events: events})
			rep, err := importer.New(svc, bs, events, rt.log).Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d, failed %d\n", rep.Imported, rep.Failed)
			for _, e := range rep.Errors {
				fmt.Fprintf(out, "  line %d: %s\n", e.Line, e.Message)
			}
			return nil
		},
	}
}

func bootstrapAdminCmd(cfgPath *string) *cobra.Command {
	var username string
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the admin account if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer rt.close()

			if username == "" {
				username = rt.cfg.AdminUser
			}
			hash := rt.cfg.AdminPassHash
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				if hash, err = users.HashPassword(strings.TrimRight(line, "\r\n")); err != nil {
					return err
				}
			}
			if hash == "" {
				return errors.New("no password: set ADMIN_PASS_HASH or use --password-stdin")
			}
			created, err := users.NewStore(rt.db).EnsureAdmin(cmd.Context(), username, hash)
			if err != nil {
				return err
			}
			if created {
				rt.log.Info("admin account created", zap.String("username", username))
			} else {
				rt.log.Info("admin account already exists", zap.String("username", username))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username (default ADMIN_USER)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the admin password from stdin")
	return cmd
}
