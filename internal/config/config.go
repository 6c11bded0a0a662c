// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Analytics engine settings
	Periodicity        string  // daily, weekly or monthly
	AllowShort         bool    // Allow short positions on the frontier
	NumPoints          int     // Points traced along the efficient frontier
	MinObservations    int     // Minimum aligned returns per ticker
	ConditionThreshold float64 // Covariance condition number above which shrinkage kicks in
	LookbackDays       int     // Price history window used per analytics run
	RelaxedScoring     bool    // Renormalize unknown-ticker weights instead of failing
	RefreshSchedule    string  // Cron spec for the analytics cache refresh job
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8000),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Periodicity:        getEnv("PERIODICITY", "daily"),
		AllowShort:         getEnvAsBool("ALLOW_SHORT", false),
		NumPoints:          getEnvAsInt("NUM_POINTS", 50),
		MinObservations:    getEnvAsInt("MIN_OBSERVATIONS", 30),
		ConditionThreshold: getEnvAsFloat("COV_CONDITION_THRESHOLD", 1e6),
		LookbackDays:       getEnvAsInt("LOOKBACK_DAYS", 1260),
		RelaxedScoring:     getEnvAsBool("SCORER_RELAXED", false),
		RefreshSchedule:    getEnv("ANALYTICS_REFRESH_SCHEDULE", "@every 5m"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Periodicity {
	case "daily", "weekly", "monthly":
	default:
		return fmt.Errorf("invalid PERIODICITY %q: must be daily, weekly or monthly", c.Periodicity)
	}
	if c.NumPoints < 1 {
		return fmt.Errorf("invalid NUM_POINTS %d: must be positive", c.NumPoints)
	}
	if c.MinObservations < 2 {
		return fmt.Errorf("invalid MIN_OBSERVATIONS %d: must be at least 2", c.MinObservations)
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("invalid LOOKBACK_DAYS %d: must be positive", c.LookbackDays)
	}
	return nil
}

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
