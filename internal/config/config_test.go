package config

import (
	"testing"
)

func TestLoadConfigWithDefaults(t *testing.T) {
	// Set only required env vars
	setTestEnv(t, map[string]string{
		"INTERNAL_API_KEY": "test_api_key",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Check defaults
	if config.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Host)
	}
	if config.Port != 4201 {
		t.Errorf("Expected default port 4201, got %d", config.Port)
	}
	if config.DatabasePath != "./data.db" {
		t.Errorf("Expected default database path './data.db', got %s", config.DatabasePath)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", config.LogLevel)
	}
	if !config.MetricsEnabled {
		t.Error("Expected metrics enabled by default")
	}

	// Check required values
	if config.InternalAPIKey != "test_api_key" {
		t.Errorf("Expected INTERNAL_API_KEY 'test_api_key', got %s", config.InternalAPIKey)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	setTestEnv(t, map[string]string{
		"HOST":                "0.0.0.0",
		"PORT":                "8080",
		"DATABASE_PATH":       "/tmp/fitledger.db",
		"PRIORITY_TABLE_PATH": "/etc/fitledger/priority.yaml",
		"METRICS_ENABLED":     "false",
		"LOG_LEVEL":           "debug",
		"INTERNAL_API_KEY":    "secret",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %s", config.Host)
	}
	if config.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.Port)
	}
	if config.DatabasePath != "/tmp/fitledger.db" {
		t.Errorf("Expected database path '/tmp/fitledger.db', got %s", config.DatabasePath)
	}
	if config.PriorityTablePath != "/etc/fitledger/priority.yaml" {
		t.Errorf("Expected priority table path '/etc/fitledger/priority.yaml', got %s", config.PriorityTablePath)
	}
	if config.MetricsEnabled {
		t.Error("Expected metrics disabled")
	}
	if config.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %s", config.LogLevel)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setTestEnv(t, map[string]string{})

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for missing INTERNAL_API_KEY")
	}
}

func TestInvalidIntFallsBackToDefault(t *testing.T) {
	setTestEnv(t, map[string]string{
		"INTERNAL_API_KEY": "secret",
		"PORT":             "not-a-number",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Port != 4201 {
		t.Errorf("Expected fallback port 4201, got %d", config.Port)
	}
}

// setTestEnv clears all config env vars then sets the provided values
func setTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	allVars := []string{
		"HOST", "PORT", "DATABASE_PATH", "PRIORITY_TABLE_PATH",
		"METRICS_ENABLED", "METRICS_HOST", "METRICS_PORT",
		"LOG_LEVEL", "INTERNAL_API_KEY",
	}
	for _, v := range allVars {
		t.Setenv(v, "")
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}
