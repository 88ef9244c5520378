package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	DatabaseDriver       string   `env:"DATABASE_DRIVER" envDefault:"pgx"`
	DatabaseURL          string   `env:"DATABASE_URL,required"`
	JWTSecret            string   `env:"JWT_SECRET,required"`
	JWTIssuer            string   `env:"JWT_ISSUER" envDefault:"videoportal"`
	AccessTTLSeconds     int64    `env:"ACCESS_TTL_SECONDS" envDefault:"14400"`
	ActivationTTLSeconds int64    `env:"ACTIVATION_TIMEOUT_SECONDS" envDefault:"86400"`
	MediaStoragePath     string   `env:"MEDIA_STORAGE_PATH" envDefault:"storage/media"`
	PublicBaseURL        string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	SMTPHost             string   `env:"SMTP_HOST"`
	SMTPPort             int      `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername         string   `env:"SMTP_USERNAME"`
	SMTPPassword         string   `env:"SMTP_PASSWORD"`
	MailFrom             string   `env:"MAIL_FROM" envDefault:"no-reply@videoportal.local"`
	OperatorEmail        string   `env:"OPERATOR_EMAIL" envDefault:"operator@videoportal.local"`
	CommentFallbackEmail string   `env:"COMMENT_FALLBACK_EMAIL" envDefault:"operator@videoportal.local"`
	MetricsDiskPath      string   `env:"METRICS_DISK_PATH" envDefault:"storage/media"`
	MetricsSampleSeconds int      `env:"METRICS_SAMPLE_INTERVAL" envDefault:"60"`
	PendingSweepSchedule string   `env:"PENDING_SWEEP_SCHEDULE" envDefault:"@hourly"`
	CorsOrigins          []string `env:"CORS_ORIGINS" envSeparator:","`
	LogDir               string   `env:"LOG_DIR" envDefault:"storage/logs"`
	LogRetentionDays     int      `env:"LOG_RETENTION_DAYS" envDefault:"7"`
	Port                 string   `env:"PORT" envDefault:"8080"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return normalize(cfg)
}

// LoadFrom reads configuration from the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return normalize(cfg)
}

func normalize(cfg Config) (Config, error) {
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	case "postgres":
		cfg.DatabaseDriver = DriverPostgres
	default:
		return Config{}, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.ActivationTTLSeconds <= 0 {
		cfg.ActivationTTLSeconds = 86400
	}
	if cfg.MetricsSampleSeconds <= 0 {
		cfg.MetricsSampleSeconds = 60
	}
	if cfg.LogRetentionDays <= 0 || cfg.LogRetentionDays > 7 {
		cfg.LogRetentionDays = 7
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	cfg.CorsOrigins = cleanList(cfg.CorsOrigins)
	return cfg, nil
}

func cleanList(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	items := make([]string, 0, len(raw))
	for _, part := range raw {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
