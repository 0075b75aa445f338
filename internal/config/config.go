package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port       string
	DataDir    string
	ReportsDir string
	CardsFile  string

	// GCSBucket, when set, switches partition storage from the local
	// filesystem to a GCS bucket.
	GCSBucket string

	// Tolerance bounds the amount difference accepted for a partial match.
	Tolerance float64

	// CronSpec drives the scheduler's reconciliation runs.
	CronSpec string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	tolerance, err := getEnvFloat("RECONCILE_TOLERANCE", 25.0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		DataDir:    getEnv("LEDGER_DATA_DIR", "data/ledger"),
		ReportsDir: getEnv("LEDGER_REPORTS_DIR", "data/reports"),
		CardsFile:  getEnv("CARDS_FILE", "cards.json"),
		GCSBucket:  getEnv("GCS_BUCKET", ""),
		Tolerance:  tolerance,
		CronSpec:   getEnv("RECONCILE_CRON", "0 6 5 * *"),
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("LEDGER_DATA_DIR is required")
	}
	if cfg.ReportsDir == "" {
		return nil, fmt.Errorf("LEDGER_REPORTS_DIR is required")
	}
	if cfg.CardsFile == "" {
		return nil, fmt.Errorf("CARDS_FILE is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be numeric: %w", key, err)
	}
	return parsed, nil
}
