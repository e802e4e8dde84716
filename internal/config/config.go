package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Env       string
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	BlobBasePath string // certificates, import archives

	AuthHMACSecret string
	TokenTTL       time.Duration
	SubmitGrace    time.Duration // added to exam duration for the submit nonce

	EnableLocalAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	LogLevel string

	TelegramBotToken    string
	GradingReminderSpec string // cron spec, empty disables

	CertificateDateFormat string
}

// CORSOrigins returns the allowed origins for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

// Load reads configuration from an optional YAML file, an optional .env file and the
// environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	mode := Mode(strings.ToLower(v.GetString("mode")))
	if mode != ModeOnline {
		mode = ModeOffline
	}

	cfg := Config{
		Env:                   v.GetString("app_env"),
		Mode:                  mode,
		HTTPAddr:              v.GetString("http_addr"),
		PublicURL:             strings.TrimSuffix(v.GetString("public_url"), "/"),
		DBDriver:              v.GetString("db_driver"),
		DBDSN:                 v.GetString("db_dsn"),
		BlobBasePath:          v.GetString("blob_base_path"),
		AuthHMACSecret:        v.GetString("auth_hmac_secret"),
		TokenTTL:              v.GetDuration("token_ttl"),
		SubmitGrace:           v.GetDuration("submit_grace"),
		EnableLocalAuth:       v.GetBool("enable_local_auth"),
		AdminUser:             v.GetString("admin_user"),
		AdminPassHash:         v.GetString("admin_pass_hash"),
		CORSOriginsOnline:     csv(v.GetString("cors_origins_online")),
		CORSOriginsOffline:    csv(v.GetString("cors_origins_offline")),
		LogLevel:              v.GetString("log_level"),
		TelegramBotToken:      v.GetString("telegram_bot_token"),
		GradingReminderSpec:   v.GetString("grading_reminder_spec"),
		CertificateDateFormat: v.GetString("certificate_date_format"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "local")
	v.SetDefault("mode", string(ModeOffline))
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("public_url", "")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")
	v.SetDefault("blob_base_path", "./data")
	v.SetDefault("auth_hmac_secret", "supersecret-dev-key")
	v.SetDefault("token_ttl", "8h")
	v.SetDefault("submit_grace", "5m")
	v.SetDefault("enable_local_auth", true)
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass_hash", "")
	v.SetDefault("cors_origins_online", "")
	v.SetDefault("cors_origins_offline", "http://localhost:3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("grading_reminder_spec", "0 8 * * *")
	v.SetDefault("certificate_date_format", "January 2, 2006")
}

func (c Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.AuthHMACSecret == "" {
		return errors.New("config: AUTH_HMAC_SECRET must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.SubmitGrace < 0 {
		return fmt.Errorf("config: SUBMIT_GRACE must not be negative, got %s", c.SubmitGrace)
	}
	return nil
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
