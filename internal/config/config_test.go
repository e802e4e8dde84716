package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ModeOffline, cfg.Mode)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, 8*time.Hour, cfg.TokenTTL)
	require.Equal(t, 5*time.Minute, cfg.SubmitGrace)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MODE", "online")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CORS_ORIGINS_ONLINE", "https://a.example, https://b.example")
	t.Setenv("SUBMIT_GRACE", "90s")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ModeOnline, cfg.Mode)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, 90*time.Second, cfg.SubmitGrace)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "cbtexam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_driver: postgres\ndb_dsn: postgres://x\nlog_level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.DBDriver)
	require.Equal(t, "postgres://x", cfg.DBDSN)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load("")
	require.Error(t, err)
}
