package config

import (
	"os"
	"strconv"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
)

// AppConfig holds process-level settings sourced from the environment.
type AppConfig struct {
	// ResultsDir is where run result JSON files are written.
	ResultsDir string

	// CredentialsPath is the JSON credential registry, keyed by tenant
	// domain.
	CredentialsPath string

	// RequestsPerSecond paces outgoing SharePoint calls; 0 disables pacing.
	RequestsPerSecond float64

	Logging *logging.Config
}

// LoadAppConfig reads the application configuration from environment
// variables, applying defaults for anything unset.
func LoadAppConfig() *AppConfig {
	return &AppConfig{
		ResultsDir:        getEnvWithDefault("SPOMGR_RESULTS_DIR", "results"),
		CredentialsPath:   getEnvWithDefault("SPOMGR_CREDENTIALS_FILE", "credentials.json"),
		RequestsPerSecond: getEnvFloatWithDefault("SPOMGR_REQUESTS_PER_SECOND", 0),
		Logging: &logging.Config{
			Level:  getEnvWithDefault("SPOMGR_LOG_LEVEL", "info"),
			Format: getEnvWithDefault("SPOMGR_LOG_FORMAT", "json"),
			Output: getEnvWithDefault("SPOMGR_LOG_OUTPUT", "stdout"),
		},
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
