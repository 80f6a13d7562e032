// Package config provides environment based configuration for the flowmesh
// server binary.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Engine settings
	StepTimeout     time.Duration
	EventBufferSize int

	// Model provider defaults
	DefaultModel string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:     getEnv("DATABASE_URL", "file:flowmesh.db?cache=shared&mode=rwc"),
		StepTimeout:     time.Duration(getEnvInt("STEP_TIMEOUT_MS", 300000)) * time.Millisecond,
		EventBufferSize: getEnvInt("EVENT_BUFFER_SIZE", 100),
		DefaultModel:    getEnv("DEFAULT_MODEL", "gpt-4o-mini"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
