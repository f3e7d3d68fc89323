// Package config provides centralized configuration for the directory service.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration values.
type Config struct {
	Port           string     // HTTP server port (e.g., ":8080")
	DBDriver       string     // sqlite, libsql or pgx
	DBDSN          string     // Driver data source name
	SettingsPath   string     // YAML settings file (empty uses built-in defaults)
	JWTSecret      string     // HMAC secret for bearer tokens (empty disables the API surface auth)
	CORSOrigins    []string   // Allowed CORS origins (empty allows none, "*" allows all)
	RequestTimeout int        // Request timeout in seconds (0 uses default of 30s)
	MaxQueryLimit  int        // Maximum rows per list call (default 1000, 0 = unlimited)
	DefaultLimit   int        // Limit applied by the HTTP surface when none is given (0 = unlimited)
	LogLevel       slog.Level // Minimum log level
	MetricsEnabled bool       // Whether GET /metrics is served
}

// Cfg is the global configuration instance, loaded at startup.
var Cfg Config

func init() {
	// Load .env file before reading config (ignore error if file doesn't exist)
	godotenv.Load()
	Cfg = Load()
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	requestTimeout := 30
	if val := os.Getenv("DIRECTORY_REQUEST_TIMEOUT"); val != "" {
		if t, err := strconv.Atoi(val); err == nil && t > 0 {
			requestTimeout = t
		}
	}

	var corsOrigins []string
	if val := os.Getenv("DIRECTORY_CORS_ORIGINS"); val != "" {
		corsOrigins = strings.Split(val, ",")
		for i := range corsOrigins {
			corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
		}
	}

	maxQueryLimit := 1000
	if val := os.Getenv("DIRECTORY_MAX_QUERY_LIMIT"); val != "" {
		if l, err := strconv.Atoi(val); err == nil && l >= 0 {
			maxQueryLimit = l
		}
	}

	defaultLimit := 100
	if val := os.Getenv("DIRECTORY_DEFAULT_LIMIT"); val != "" {
		if l, err := strconv.Atoi(val); err == nil && l >= 0 {
			defaultLimit = l
		}
	}

	logLevel := slog.LevelInfo
	if val := os.Getenv("DIRECTORY_LOG_LEVEL"); val != "" {
		// UnmarshalText accepts debug, info, warn, error (case-insensitive)
		if err := logLevel.UnmarshalText([]byte(val)); err != nil {
			logLevel = slog.LevelInfo
		}
	}

	return Config{
		Port:           getEnv("PORT", ":8080"),
		DBDriver:       getEnv("DIRECTORY_DB_DRIVER", "sqlite"),
		DBDSN:          getEnv("DIRECTORY_DB_DSN", "file:directory.db"),
		SettingsPath:   os.Getenv("DIRECTORY_SETTINGS_PATH"),
		JWTSecret:      os.Getenv("DIRECTORY_JWT_SECRET"),
		CORSOrigins:    corsOrigins,
		RequestTimeout: requestTimeout,
		MaxQueryLimit:  maxQueryLimit,
		DefaultLimit:   defaultLimit,
		LogLevel:       logLevel,
		MetricsEnabled: strings.ToLower(getEnv("DIRECTORY_METRICS_ENABLED", "true")) == "true",
	}
}

// getEnv returns the environment variable value or a default if not set.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
