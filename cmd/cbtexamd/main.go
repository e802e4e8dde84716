package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/config"
	"github.com/cbt-exam/cbtexam/internal/db"
	"github.com/cbt-exam/cbtexam/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "cbtexamd",
		Short:        "Computer-based testing server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		serveCmd(&cfgPath),
		importQuestionsCmd(&cfgPath),
		bootstrapAdminCmd(&cfgPath),
	)
	return root
}

// runtime holds what every subcommand needs.
type runtime struct {
	cfg config.Config
	log *zap.Logger
	db  *sql.DB
}

func setup(cfgPath string) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("db open failed: %w", err)
	}
	return &runtime{cfg: cfg, log: log, db: dbh}, nil
}

func (rt *runtime) close() {
	_ = rt.db.Close()
	_ = rt.log.Sync()
}
