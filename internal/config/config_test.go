package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StatusPollInterval != time.Second {
		t.Errorf("status poll interval: got %s", cfg.StatusPollInterval)
	}
	if cfg.RunPollInterval != 1500*time.Millisecond {
		t.Errorf("run poll interval: got %s", cfg.RunPollInterval)
	}
	if cfg.RunMaxTransportFailures != 5 {
		t.Errorf("run max transport failures: got %d", cfg.RunMaxTransportFailures)
	}
	if cfg.EventBufferSize != 200 {
		t.Errorf("event buffer size: got %d", cfg.EventBufferSize)
	}
}

func TestFileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage_backend: sqlite
sqlite_path: /tmp/test.db
status_poll_interval: 250ms
turn_timeout: 2m
postprocess_url: http://downstream/hook
postprocess_headers:
  X-Api-Key: secret
postprocess_ack:
  expression: $.ok
  operator: EQ
  expected_value: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STATUS_POLL_INTERVAL_MS", "400")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageBackend != "sqlite" || cfg.SQLitePath != "/tmp/test.db" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.StatusPollInterval != 400*time.Millisecond {
		t.Errorf("env should win over file, got %s", cfg.StatusPollInterval)
	}
	if cfg.TurnTimeout != 2*time.Minute {
		t.Errorf("turn timeout: got %s", cfg.TurnTimeout)
	}
	if cfg.PostProcessHeaders["X-Api-Key"] != "secret" {
		t.Errorf("headers: got %v", cfg.PostProcessHeaders)
	}
	if cfg.PostProcessAck.Operator != "eq" || cfg.PostProcessAck.ExpectedValue != true {
		t.Errorf("ack rule: got %+v", cfg.PostProcessAck)
	}
	// untouched keys keep their defaults
	if cfg.RunPollInterval != 1500*time.Millisecond {
		t.Errorf("run poll interval: got %s", cfg.RunPollInterval)
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RUN_MAX_TRANSPORT_FAILURES", "lots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RunMaxTransportFailures != 5 {
		t.Errorf("expected default, got %d", cfg.RunMaxTransportFailures)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.StorageBackend = "postgres"
	cfg.StatusPollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}

	cfg = Defaults()
	cfg.StorageBackend = "SQLite"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.StorageBackend != "sqlite" {
		t.Errorf("backend not normalised: %q", cfg.StorageBackend)
	}
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf strings.Builder
	cfg := Defaults()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	logger := NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "context_id", "tab1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"context_id":"tab1"`) {
		t.Errorf("expected json output, got %s", out)
	}
}
