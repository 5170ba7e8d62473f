package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Default values used when the corresponding environment variable is unset.
const (
	DefaultAddr          = ":5000"
	DefaultDataDir       = "./data"
	DefaultSessionSecret = "secret_key_change_me"
)

// Config holds all configuration for the application.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string
	// DataDir is the directory holding the BadgerDB files.
	DataDir string
	// SessionSecret signs the session cookie.
	SessionSecret string
	// LogFormat selects the slog handler, "text" or "json".
	LogFormat string
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Addr:          getenv("APP_ADDR", DefaultAddr),
		DataDir:       getenv("DATA_DIR", DefaultDataDir),
		SessionSecret: getenv("SESSION_SECRET", DefaultSessionSecret),
		LogFormat:     getenv("LOG_FORMAT", "text"),
	}

	if cfg.SessionSecret == DefaultSessionSecret {
		slog.Warn("SESSION_SECRET is not set, using the insecure default")
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
