// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
state:
  backend: "json"
  path: "./state.json"

protocol:
  max_depth: 7
  timeouts:
    request: "45m"
    clarify: "15m"
    handoff: "45m"
    broadcast: "10m"

cleanup:
  max_age: "48h"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.State.Backend != BackendJSON {
		t.Errorf("State.Backend = %q, want %q", cfg.State.Backend, BackendJSON)
	}
	if cfg.State.Path != "./state.json" {
		t.Errorf("State.Path = %q, want %q", cfg.State.Path, "./state.json")
	}

	if cfg.Protocol.MaxDepth != 7 {
		t.Errorf("Protocol.MaxDepth = %d, want 7", cfg.Protocol.MaxDepth)
	}
	if cfg.Protocol.Timeouts.Request != 45*time.Minute {
		t.Errorf("Timeouts.Request = %v, want %v", cfg.Protocol.Timeouts.Request, 45*time.Minute)
	}
	if cfg.Protocol.Timeouts.Clarify != 15*time.Minute {
		t.Errorf("Timeouts.Clarify = %v, want %v", cfg.Protocol.Timeouts.Clarify, 15*time.Minute)
	}
	if cfg.Protocol.Timeouts.Broadcast != 10*time.Minute {
		t.Errorf("Timeouts.Broadcast = %v, want %v", cfg.Protocol.Timeouts.Broadcast, 10*time.Minute)
	}

	if cfg.Cleanup.MaxAge != 48*time.Hour {
		t.Errorf("Cleanup.MaxAge = %v, want %v", cfg.Cleanup.MaxAge, 48*time.Hour)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_PARLEY_STATE", "/var/lib/parley/state.json")

	configPath := writeConfig(t, `
state:
  backend: "json"
  path: "${TEST_PARLEY_STATE}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.State.Path != "/var/lib/parley/state.json" {
		t.Errorf("State.Path = %q, want expanded env value", cfg.State.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
state:
  backend: "json"
  path "missing colon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
state:
  backend: "json"
  path: "./state.json"

protocol:
  timeouts:
    clarify: "soonish"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "protocol.timeouts.clarify") {
		t.Errorf("Load() error = %q, want it to name the bad field", err.Error())
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "missing state path",
			configContent: `
state:
  backend: "json"
  path: ""
`,
			wantErrSubstr: "state.path is required",
		},
		{
			name: "unknown backend",
			configContent: `
state:
  backend: "postgres"
  path: "./state.json"
`,
			wantErrSubstr: "state.backend",
		},
		{
			name: "negative max depth",
			configContent: `
state:
  backend: "json"
  path: "./state.json"
protocol:
  max_depth: -1
`,
			wantErrSubstr: "protocol.max_depth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.configContent)

			_, err := Load(configPath)
			if err == nil {
				t.Errorf("Load() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default("/tmp/state.json")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
	if cfg.State.Backend != BackendJSON {
		t.Errorf("State.Backend = %q, want %q", cfg.State.Backend, BackendJSON)
	}
	if cfg.Protocol.MaxDepth != 5 {
		t.Errorf("Protocol.MaxDepth = %d, want 5", cfg.Protocol.MaxDepth)
	}
	if cfg.Cleanup.MaxAge != 24*time.Hour {
		t.Errorf("Cleanup.MaxAge = %v, want 24h", cfg.Cleanup.MaxAge)
	}
}

func TestTimeoutWindows(t *testing.T) {
	cfg := &Config{}
	if len(cfg.TimeoutWindows()) != 0 {
		t.Error("unset timeouts should yield no overrides")
	}

	cfg.Protocol.Timeouts.Clarify = 15 * time.Minute
	windows := cfg.TimeoutWindows()
	if len(windows) != 1 {
		t.Fatalf("windows = %v, want exactly one override", windows)
	}
	if windows["CLARIFY"] != 15*time.Minute {
		t.Errorf("CLARIFY window = %v, want 15m", windows["CLARIFY"])
	}
}
