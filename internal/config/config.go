package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/util"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Config is built once at startup and passed down by value or pointer.
// Nothing mutates it after Load returns.
type Config struct {
	Token    string `env:"TOKEN,required"`
	GroupID  int64  `env:"GROUP_ID,required"`
	Language string `env:"LANGUAGE" envDefault:"en_US"`
	APIURL   string `env:"TG_API" envDefault:"https://api.telegram.org"`
	Workers  int    `env:"WORKER" envDefault:"2"`

	DataDir     string `env:"DATA_DIR" envDefault:"./data"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	Port          int    `env:"PORT" envDefault:"8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	WebhookURL    string `env:"WEBHOOK_URL"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	StartMessage  string `env:"START_MESSAGE"`

	RetryBaseMs          int `env:"RETRY_BASE_MS" envDefault:"1000"`
	RetryMaxAttempts     int `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryMaxDelaySeconds int `env:"RETRY_MAX_DELAY_SECONDS" envDefault:"30"`
	ShutdownGraceSeconds int `env:"SHUTDOWN_GRACE_SECONDS" envDefault:"10"`
	FloodLimitPerMin     int `env:"FLOOD_LIMIT_PER_MIN" envDefault:"0"`
	LinkRetentionDays    int `env:"LINK_RETENTION_DAYS" envDefault:"30"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySeconds) * time.Second
}

func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

func (c *Config) LinkRetention() time.Duration {
	return time.Duration(c.LinkRetentionDays) * 24 * time.Hour
}

// SQLitePath is the storage file used when DATABASE_URL does not point at Postgres.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, SQLiteFileName)
}

func (c *Config) UsePostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func (c *Config) WebhookMode() bool {
	return c.WebhookURL != ""
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return apperrors.ConfigError("TOKEN", "must not be empty")
	}
	if c.GroupID == 0 {
		return apperrors.ConfigError("GROUP_ID", "must be a non-zero chat id")
	}
	if c.Workers < 1 {
		return apperrors.ConfigError("WORKER", "must be at least 1")
	}
	if c.RetryBaseMs < 1 {
		return apperrors.ConfigError("RETRY_BASE_MS", "must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return apperrors.ConfigError("RETRY_MAX_ATTEMPTS", "must be at least 1")
	}
	if c.RetryMaxDelaySeconds < 1 {
		return apperrors.ConfigError("RETRY_MAX_DELAY_SECONDS", "must be positive")
	}
	if c.ShutdownGraceSeconds < 0 {
		return apperrors.ConfigError("SHUTDOWN_GRACE_SECONDS", "must not be negative")
	}
	if c.FloodLimitPerMin < 0 {
		return apperrors.ConfigError("FLOOD_LIMIT_PER_MIN", "must not be negative")
	}
	if c.LinkRetentionDays < 1 {
		return apperrors.ConfigError("LINK_RETENTION_DAYS", "must be at least 1")
	}
	if !util.IsValidEnum(c.LogLevel, logLevels) {
		return apperrors.ConfigError("LOG_LEVEL", "must be one of debug, info, warn, error")
	}
	if c.DatabaseURL != "" && !c.UsePostgres() {
		return apperrors.ConfigError("DATABASE_URL", "only postgres:// URLs are supported; leave empty for SQLite")
	}
	if c.WebhookMode() {
		if !strings.HasPrefix(c.WebhookURL, "https://") {
			return apperrors.ConfigError("WEBHOOK_URL", "must use https")
		}
		if c.WebhookSecret == "" {
			log.Warn().Msg("WEBHOOK_SECRET is empty: a random secret will be generated for this run")
		} else if !util.IsValidSecretToken(c.WebhookSecret) {
			return apperrors.ConfigError("WEBHOOK_SECRET", "must be 1-256 characters of A-Z, a-z, 0-9, _ or -")
		}
	}
	if c.FloodLimitPerMin > 0 && c.RedisURL == "" {
		log.Warn().Msg("FLOOD_LIMIT_PER_MIN is set but REDIS_URL is empty: flood limiting disabled")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfig, "failed to parse config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
