package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TARGET_ENVIRONMENT", "TARGET_SERVICES", "SERVICES_FILE", "WINDOW_MINUTES",
		"METRICS_URL", "TRACE_SEARCH_URL", "TRACE_DETAIL_URL", "LOGS_URL",
		"QUERY_TIMEOUT_SECONDS", "TRACE_SEARCH_LIMIT", "LOG_FETCH_LIMIT",
		"CYCLE_BACKOFF_SECONDS", "OUTPUT_ROOT", "WATERMARK_PATH",
		"PORTAL_BASE_URL", "DATABASE_URL", "SLACK_WEBHOOK_URL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Environment != "UNSET" {
		t.Errorf("Environment = %q; want UNSET", cfg.Environment)
	}
	if cfg.WindowMinutes != 5 {
		t.Errorf("WindowMinutes = %d; want 5", cfg.WindowMinutes)
	}
	if cfg.DatabaseURL != "spikewatch.db" {
		t.Errorf("DatabaseURL = %q; want spikewatch.db", cfg.DatabaseURL)
	}
	if len(cfg.TargetServices) != 0 {
		t.Errorf("TargetServices = %v; want empty", cfg.TargetServices)
	}
}

func TestLoadTargetServicesFromEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("TARGET_SERVICES", "checkout, payments ,,inventory")
	defer os.Unsetenv("TARGET_SERVICES")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := []string{"checkout", "payments", "inventory"}
	if len(cfg.TargetServices) != len(want) {
		t.Fatalf("TargetServices = %v; want %v", cfg.TargetServices, want)
	}
	for i, svc := range want {
		if cfg.TargetServices[i] != svc {
			t.Errorf("TargetServices[%d] = %q; want %q", i, cfg.TargetServices[i], svc)
		}
	}
}

func TestLoadServicesFileOverridesEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "services.yaml")
	content := "environment: prod\nservices:\n  - checkout\n  - payments\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write services file: %v", err)
	}

	os.Setenv("TARGET_ENVIRONMENT", "staging")
	os.Setenv("TARGET_SERVICES", "legacy-service")
	os.Setenv("SERVICES_FILE", path)
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("Environment = %q; want prod (file override)", cfg.Environment)
	}
	if len(cfg.TargetServices) != 2 || cfg.TargetServices[0] != "checkout" {
		t.Errorf("TargetServices = %v; want file contents", cfg.TargetServices)
	}
}

func TestLoadServicesFileMissing(t *testing.T) {
	clearEnv(t)
	os.Setenv("SERVICES_FILE", "/nonexistent/services.yaml")
	defer os.Unsetenv("SERVICES_FILE")

	if _, err := Load(); err == nil {
		t.Error("Load() with missing services file should return an error")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{WindowMinutes: 5}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() without services should return an error")
	}

	cfg.TargetServices = []string{"checkout"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with services returned error: %v", err)
	}

	cfg.WindowMinutes = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with zero window should return an error")
	}
}
