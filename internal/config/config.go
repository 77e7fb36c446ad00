// Package config loads server and participant settings from the environment.
//
// A .env file in the working directory is read first if present; variables
// already set in the environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/qqoqto/travel-planner/internal/models"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full set of settings. Each binary reads the sections it needs.
type Config struct {
	Server ServerConfig
	Share  ShareConfig
	Client ClientConfig
	Trip   TripConfig
}

// ServerConfig configures the tree server.
type ServerConfig struct {
	Port          int
	StoreBackend  string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ShareConfig configures share links and signed share tokens.
type ShareConfig struct {
	// Secret signs share tokens. Empty disables tokens; plain links still work.
	Secret   string
	TokenTTL time.Duration
	Origin   string
	Path     string
}

// ClientConfig configures a participant process.
type ClientConfig struct {
	ServerURL      string
	LocalStatePath string
	UserName       string
	ShareRef       string
}

// TripConfig holds document-independent trip settings.
type TripConfig struct {
	TotalDays int
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error

	port, err := getEnvInt("PORT", 8080)
	errs = append(errs, err)
	redisDB, err := getEnvInt("REDIS_DB", 0)
	errs = append(errs, err)
	totalDays, err := getEnvInt("TRIP_TOTAL_DAYS", models.DefaultTotalDays)
	errs = append(errs, err)
	ttl, err := getEnvDuration("SHARE_TOKEN_TTL", 0)
	errs = append(errs, err)

	cfg := &Config{
		Server: ServerConfig{
			Port:          port,
			StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
			DBPath:        getEnv("DB_PATH", "./data/trips.db"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
		},
		Share: ShareConfig{
			Secret:   getEnv("SHARE_SECRET", ""),
			TokenTTL: ttl,
			Origin:   getEnv("SHARE_ORIGIN", "http://localhost:3000"),
			Path:     getEnv("SHARE_PATH", "/"),
		},
		Client: ClientConfig{
			ServerURL:      getEnv("SERVER_URL", "http://localhost:8080"),
			LocalStatePath: getEnv("LOCAL_STATE_PATH", "./data/participant.db"),
			UserName:       getEnv("TRIP_USER_NAME", ""),
			ShareRef:       getEnv("TRIP_SHARE_REF", ""),
		},
		Trip: TripConfig{
			TotalDays: totalDays,
		},
	}

	switch cfg.Server.StoreBackend {
	case BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendRedis, cfg.Server.StoreBackend))
	}
	if cfg.Trip.TotalDays < 1 {
		errs = append(errs, fmt.Errorf("TRIP_TOTAL_DAYS must be at least 1, got %d", cfg.Trip.TotalDays))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogValue keeps the share secret and Redis password out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("port", c.Server.Port),
		slog.String("store_backend", c.Server.StoreBackend),
		slog.String("db_path", c.Server.DBPath),
		slog.String("redis_addr", c.Server.RedisAddr),
		slog.Bool("share_tokens", c.Share.Secret != ""),
		slog.String("share_origin", c.Share.Origin),
		slog.Int("total_days", c.Trip.TotalDays),
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
