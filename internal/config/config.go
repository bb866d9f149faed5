// Package config reads server settings from the environment, after loading
// an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           int    `env:"PORT,default=8080"`
	DatabaseDriver string `env:"DATABASE_DRIVER,default=sqlite"`
	DatabaseURL    string `env:"DATABASE_URL,default=roomchat.db"`
	// RedisURL enables the cross-instance bus and presence when set.
	RedisURL   string `env:"REDIS_URL"`
	JWTSecret  string `env:"JWT_SECRET,required=true"`
	CORSOrigin string `env:"CORS_ORIGIN,default=http://localhost:5173"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`

	MessagePageSize     int     `env:"MESSAGE_PAGE_SIZE,default=50"`
	RoomPageSize        int     `env:"ROOM_PAGE_SIZE,default=20"`
	WSMessagesPerSecond float64 `env:"WS_MESSAGES_PER_SECOND,default=10"`
	WSBurst             int     `env:"WS_BURST,default=20"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
	TokenTTL        time.Duration `env:"TOKEN_TTL,default=24h"`
}

// Load reads .env files when present and then the process environment.
// Variables already set in the environment win over .env entries.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config error: DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config error: PORT %d out of range", c.Port)
	}
	if c.MessagePageSize <= 0 || c.RoomPageSize <= 0 {
		return fmt.Errorf("config error: page sizes must be positive")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel (debug, info, warn, error).
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config error: LOG_LEVEL: %w", err)
	}
	return level, nil
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
