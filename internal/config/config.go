package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/SAP-F-2025/lesson-sync-service/internal/ws"
)

// Config is the full daemon configuration, loaded from the environment
// (optionally seeded from a .env file).
type Config struct {
	Environment string
	Port        string
	LogLevel    slog.Level

	// StorePath is the SQLite file backing the offline store.
	StorePath string

	// RedisURL enables the remote-data cache when set.
	RedisURL string

	// Sites maps site ids to their LMS endpoint and token.
	Sites map[string]ws.SiteConfig

	// SyncSchedule is the cron expression driving periodic sync.
	SyncSchedule string

	// MinSyncInterval is the minimum spacing between scheduled syncs of
	// the same lesson.
	MinSyncInterval time.Duration
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := &Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		Port:            getEnv("PORT", "8080"),
		LogLevel:        parseLogLevel(getEnv("LOG_LEVEL", "info")),
		StorePath:       getEnv("STORE_PATH", "lesson-sync.db"),
		RedisURL:        getEnv("REDIS_URL", ""),
		SyncSchedule:    getEnv("SYNC_SCHEDULE", "@every 5m"),
		MinSyncInterval: parseDuration(getEnv("MIN_SYNC_INTERVAL", "5m")),
	}

	sites, err := parseSites(getEnv("LMS_SITES", ""))
	if err != nil {
		return nil, err
	}
	cfg.Sites = sites

	return cfg, nil
}

// parseSites parses "siteid|https://lms.example.com|token" entries
// separated by commas.
func parseSites(raw string) (map[string]ws.SiteConfig, error) {
	sites := make(map[string]ws.SiteConfig)
	if raw == "" {
		return sites, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "|", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid LMS_SITES entry %q, want siteid|url|token", entry)
		}
		sites[parts[0]] = ws.SiteConfig{BaseURL: parts[1], Token: parts[2]}
	}
	return sites, nil
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
