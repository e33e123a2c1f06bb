package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline
type Config struct {
	// Monitoring scope
	Environment    string
	TargetServices []string
	WindowMinutes  int

	// Query backend endpoints
	MetricsURL     string
	TraceSearchURL string
	TraceDetailURL string
	LogsURL        string

	// Outbound call limits
	QueryTimeoutSeconds int
	TraceSearchLimit    int
	LogFetchLimit       int

	// Failure backoff between cycles
	CycleBackoffSeconds int

	// Artifact storage
	OutputRoot    string
	WatermarkPath string
	PortalBaseURL string

	// Database Configuration
	DatabaseURL string

	// Notification sink
	SlackWebhookURL string
}

// servicesFile is the YAML shape of the optional services allow-list file.
type servicesFile struct {
	Environment string   `yaml:"environment"`
	Services    []string `yaml:"services"`
}

// Load reads configuration from environment variables, merging in the
// optional services file pointed at by SERVICES_FILE.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Environment = getEnvOrDefault("TARGET_ENVIRONMENT", "UNSET")
	cfg.WindowMinutes = getEnvAsIntOrDefault("WINDOW_MINUTES", 5)

	cfg.MetricsURL = getEnvOrDefault("METRICS_URL", "http://localhost:3130/api/metrics/api/v1/query_range")
	cfg.TraceSearchURL = getEnvOrDefault("TRACE_SEARCH_URL", "http://localhost:3130/api/traces/api/v1/search")
	cfg.TraceDetailURL = getEnvOrDefault("TRACE_DETAIL_URL", "http://localhost:3130/api/traces/api/v1/traces")
	cfg.LogsURL = getEnvOrDefault("LOGS_URL", "http://localhost:3130/api/logs/select/logsql/query")

	cfg.QueryTimeoutSeconds = getEnvAsIntOrDefault("QUERY_TIMEOUT_SECONDS", 30)
	cfg.TraceSearchLimit = getEnvAsIntOrDefault("TRACE_SEARCH_LIMIT", 100)
	cfg.LogFetchLimit = getEnvAsIntOrDefault("LOG_FETCH_LIMIT", 1000)
	cfg.CycleBackoffSeconds = getEnvAsIntOrDefault("CYCLE_BACKOFF_SECONDS", 60)

	cfg.OutputRoot = getEnvOrDefault("OUTPUT_ROOT", "error_outputs")
	cfg.WatermarkPath = getEnvOrDefault("WATERMARK_PATH", "last_processed_epoch.txt")
	cfg.PortalBaseURL = getEnvOrDefault("PORTAL_BASE_URL", "")

	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", "spikewatch.db")

	cfg.SlackWebhookURL = os.Getenv("SLACK_WEBHOOK_URL")

	// Comma-separated allow-list via env, overridden by the YAML file
	if services := os.Getenv("TARGET_SERVICES"); services != "" {
		for _, s := range strings.Split(services, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.TargetServices = append(cfg.TargetServices, s)
			}
		}
	}

	if path := os.Getenv("SERVICES_FILE"); path != "" {
		if err := cfg.loadServicesFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadServicesFile merges the YAML allow-list file into the config.
func (c *Config) loadServicesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read services file: %w", err)
	}
	var sf servicesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("failed to parse services file %s: %w", path, err)
	}
	if sf.Environment != "" {
		c.Environment = sf.Environment
	}
	if len(sf.Services) > 0 {
		c.TargetServices = sf.Services
	}
	return nil
}

// Validate checks that the configuration can drive a monitoring cycle.
func (c *Config) Validate() error {
	if len(c.TargetServices) == 0 {
		return fmt.Errorf("no target services configured (set TARGET_SERVICES or SERVICES_FILE)")
	}
	if c.WindowMinutes <= 0 {
		return fmt.Errorf("WINDOW_MINUTES must be positive, got %d", c.WindowMinutes)
	}
	return nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault returns the value of an environment variable as an integer or a default value
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
