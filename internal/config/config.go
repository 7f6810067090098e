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
	DataDir  string // Base directory for the database and backup staging
	Port     int
	LogLevel string
	DevMode  bool

	// Market data provider
	QuoteBaseURL string // Base URL of the quote API

	// Background job schedules (cron expressions)
	PriceRefreshSchedule string
	SnapshotSchedule     string
	BackupSchedule       string

	// S3 backup target; backups are disabled when the bucket is empty
	BackupBucket string
	BackupPrefix string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("WHEELHOUSE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		Port:                 getEnvAsInt("PORT", 8080),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DevMode:              getEnvAsBool("DEV_MODE", false),
		QuoteBaseURL:         getEnv("QUOTE_BASE_URL", "https://query1.finance.yahoo.com"),
		PriceRefreshSchedule: getEnv("PRICE_REFRESH_SCHEDULE", "@every 15m"),
		SnapshotSchedule:     getEnv("SNAPSHOT_SCHEDULE", "@hourly"),
		BackupSchedule:       getEnv("BACKUP_SCHEDULE", "@daily"),
		BackupBucket:         getEnv("BACKUP_BUCKET", ""),
		BackupPrefix:         getEnv("BACKUP_PREFIX", "wheelhouse"),
	}

	return cfg, nil
}

// DatabasePath returns the absolute path of the sqlite database file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "wheelhouse.db")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
