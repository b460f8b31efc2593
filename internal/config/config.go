package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds all environment-driven settings. Staleness windows and
// broadcast intervals are policy, not behavior, so they live here.
type Config struct {
	AppEnv        string `env:"APP_ENV" default:"development"`
	Port          string `env:"PORT" default:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	SessionSecret string `env:"SESSION_SECRET"`
	LogLevel      string `env:"LOG_LEVEL" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" default:"text"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	StaleThreshold    time.Duration `env:"STALE_THRESHOLD" default:"2m"`
	MetricsInterval   time.Duration `env:"METRICS_INTERVAL" default:"10s"`
	LogoutGrace       time.Duration `env:"LOGOUT_GRACE" default:"2s"`

	MaxConnections int `env:"MAX_CONNECTIONS" default:"10000"`
}

// Load reads configuration from a .env file (when present) and the
// process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":   cfg.DatabaseURL,
		"REDIS_URL":      cfg.RedisURL,
		"SESSION_SECRET": cfg.SessionSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	durations := map[string]time.Duration{
		"HEARTBEAT_INTERVAL": cfg.HeartbeatInterval,
		"STALE_THRESHOLD":    cfg.StaleThreshold,
		"METRICS_INTERVAL":   cfg.MetricsInterval,
	}
	for name, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.LogoutGrace < 0 {
		return fmt.Errorf("LOGOUT_GRACE must not be negative")
	}
	if cfg.StaleThreshold <= cfg.HeartbeatInterval {
		return fmt.Errorf("STALE_THRESHOLD must be larger than HEARTBEAT_INTERVAL")
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive")
	}

	return nil
}
