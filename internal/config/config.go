// Package config loads ChatVault configuration from environment variables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values.
type Config struct {
	// Store selection: "memory" or "surrealdb"
	StoreBackend string

	// SurrealDB connection (used when StoreBackend is "surrealdb")
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Credential validation
	ValidationTTL       time.Duration
	ValidationRateLimit int
	ValidationWindow    time.Duration

	// Tool execution
	ExecutorTimeout time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration

	// Monitoring
	MaxPollFailures int

	// Webhook delivery
	WebhookTimeout  time.Duration
	WebhookAttempts int

	// HTTP API
	ServerAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from the environment, consulting an optional
// .env file first (dev convenience, never overrides real env vars).
func Load() Config {
	_ = godotenv.Load()

	return Config{
		StoreBackend: getEnv("CHATVAULT_STORE", "memory"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "chatvault"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "conversations"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		ValidationTTL:       getDuration("CHATVAULT_VALIDATION_TTL", 24*time.Hour),
		ValidationRateLimit: getInt("CHATVAULT_VALIDATION_RATE_LIMIT", 5),
		ValidationWindow:    getDuration("CHATVAULT_VALIDATION_WINDOW", time.Minute),

		ExecutorTimeout: getDuration("CHATVAULT_EXECUTOR_TIMEOUT", 60*time.Second),
		MaxRetries:      getInt("CHATVAULT_MAX_RETRIES", 3),
		RetryBackoff:    getDuration("CHATVAULT_RETRY_BACKOFF", time.Second),

		MaxPollFailures: getInt("CHATVAULT_MAX_POLL_FAILURES", 5),

		WebhookTimeout:  getDuration("CHATVAULT_WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookAttempts: getInt("CHATVAULT_WEBHOOK_ATTEMPTS", 3),

		ServerAddr: getEnv("CHATVAULT_SERVER_ADDR", ":8486"),

		LogFile:  getEnv("CHATVAULT_LOG_FILE", "/tmp/chatvault.log"),
		LogLevel: parseLogLevel(getEnv("CHATVAULT_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
