// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server and router.
type HTTPConfig interface {
	GetEnv() string
	GetHTTPAddr() string
	GetAllowedOrigins() []string
}

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides redis connection settings for the contact cache
// and the task scheduler.
type RedisConfig interface {
	GetRedisAddr() string
	GetRedisDB() int
}

// RecentConfig provides settings for the recent-contacts aggregation engine.
type RecentConfig interface {
	GetQueryLimit() int
	GetExcludeFavorites() bool
	GetRequiredCapabilities() []string
	GetCategoryMask() uint32
}

// SchedulerConfig provides settings for the asynq-based maintenance worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetEventRetention() time.Duration
}

// Config holds all application configuration.
type Config struct {
	Env            string
	HTTPAddr       string
	AllowedOrigins []string

	DatabaseURL string

	RedisAddr string
	RedisDB   int

	QueryLimit           int
	ExcludeFavorites     bool
	RequiredCapabilities []string
	CategoryMask         uint32

	AsynqQueue       string
	AsynqConcurrency int
	EventRetention   time.Duration
}

// Load reads configuration from the environment, with .env support for
// local development.
func Load() (*Config, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:              getEnv("ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		QueryLimit:       getEnvInt("RECENT_QUERY_LIMIT", 20),
		ExcludeFavorites: getEnvBool("RECENT_EXCLUDE_FAVORITES", false),
		CategoryMask:     uint32(getEnvInt("RECENT_CATEGORY_MASK", 0)),
		AsynqQueue:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getEnvInt("ASYNQ_CONCURRENCY", 10),
		EventRetention:   time.Duration(getEnvInt("EVENT_RETENTION_DAYS", 90)) * 24 * time.Hour,
	}

	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RECENT_REQUIRED_CAPABILITIES")); raw != "" {
		for _, item := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(item))
			if trimmed == "" {
				continue
			}
			switch trimmed {
			case "phone", "email", "account":
				cfg.RequiredCapabilities = append(cfg.RequiredCapabilities, trimmed)
			default:
				return nil, fmt.Errorf("unknown required capability %q", trimmed)
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.QueryLimit < 0 {
		return nil, fmt.Errorf("RECENT_QUERY_LIMIT must be >= 0")
	}

	return cfg, nil
}

func (c *Config) GetEnv() string               { return c.Env }
func (c *Config) GetHTTPAddr() string          { return c.HTTPAddr }
func (c *Config) GetAllowedOrigins() []string  { return c.AllowedOrigins }

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetRedisAddr() string { return c.RedisAddr }
func (c *Config) GetRedisDB() int      { return c.RedisDB }

func (c *Config) GetQueryLimit() int                  { return c.QueryLimit }
func (c *Config) GetExcludeFavorites() bool           { return c.ExcludeFavorites }
func (c *Config) GetRequiredCapabilities() []string   { return c.RequiredCapabilities }
func (c *Config) GetCategoryMask() uint32             { return c.CategoryMask }

func (c *Config) GetAsynqQueueName() string         { return c.AsynqQueue }
func (c *Config) GetAsynqConcurrency() int          { return c.AsynqConcurrency }
func (c *Config) GetEventRetention() time.Duration  { return c.EventRetention }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
