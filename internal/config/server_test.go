package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Default log level mismatch: got %s, want info", cfg.LogLevel)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Default addr mismatch: got %s, want :8080", cfg.Addr)
	}

	if !cfg.MetricsEnabled {
		t.Errorf("Metrics should be enabled by default")
	}

	if len(cfg.EnginePaths) != 1 || cfg.EnginePaths[0] != "./engines" {
		t.Errorf("Default engine paths mismatch: got %v, want [./engines]", cfg.EnginePaths)
	}

	if !cfg.Isolation.Enabled || cfg.Isolation.ResourcePolicy != "same-origin" {
		t.Errorf("Isolation should default to same-origin, got %+v", cfg.Isolation)
	}

	if len(cfg.Isolation.ResourceSuffixes) != 2 {
		t.Errorf("Default resource suffixes mismatch: got %v", cfg.Isolation.ResourceSuffixes)
	}

	if cfg.Bridge.ReadyTimeout != 30*time.Second {
		t.Errorf("Default ready timeout mismatch: got %v, want 30s", cfg.Bridge.ReadyTimeout)
	}

	rc := cfg.Wasm.RuntimeConfig()
	if rc.MemoryPages != 16384 || rc.ExecutionTimeout != 30*time.Second || !rc.Threads {
		t.Errorf("Unexpected runtime config: %+v", rc)
	}
}

func TestLoadServerConfigFromFile(t *testing.T) {
	// Create temporary config file
	tmpfile, err := os.CreateTemp("", "config*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	configContent := `
addr: 127.0.0.1:9000
log_level: debug
default_engine: sql
isolation:
  resource_suffixes: [".mjs"]
worker:
  pool_threads: 8
bridge:
  ready_timeout: 5s
wasm:
  execution_timeout: 0
`
	if _, err := tmpfile.Write([]byte(configContent)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadServerConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Log level mismatch: got %s, want debug", cfg.LogLevel)
	}

	if cfg.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr mismatch: got %s", cfg.Addr)
	}

	if cfg.DefaultEngine != "sql" {
		t.Errorf("Default engine mismatch: got %s, want sql", cfg.DefaultEngine)
	}

	if len(cfg.Isolation.ResourceSuffixes) != 1 || cfg.Isolation.ResourceSuffixes[0] != ".mjs" {
		t.Errorf("Resource suffixes mismatch: got %v", cfg.Isolation.ResourceSuffixes)
	}

	if cfg.Worker.PoolThreads != 8 {
		t.Errorf("Pool threads mismatch: got %d, want 8", cfg.Worker.PoolThreads)
	}

	if cfg.Bridge.ReadyTimeout != 5*time.Second {
		t.Errorf("Ready timeout mismatch: got %v, want 5s", cfg.Bridge.ReadyTimeout)
	}

	if cfg.Wasm.RuntimeConfig().ExecutionTimeout != 0 {
		t.Errorf("Execution timeout should be disabled")
	}
}

func TestLoadServerConfigEnvOverride(t *testing.T) {
	t.Setenv("WASM_ANALYZER_LOG_LEVEL", "warn")
	t.Setenv("WASM_ANALYZER_WASM_MAX_INSTANCES", "7")

	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("Log level mismatch: got %s, want warn", cfg.LogLevel)
	}

	if cfg.Wasm.MaxInstances != 7 {
		t.Errorf("Max instances mismatch: got %d, want 7", cfg.Wasm.MaxInstances)
	}
}

func TestLoadServerConfigMissingFile(t *testing.T) {
	if _, err := LoadServerConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadServerConfigInvalid(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.WriteString("worker:\n  pool_threads: -2\n"); err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()

	if _, err := LoadServerConfig(tmpfile.Name()); err == nil {
		t.Error("Expected validation error for negative pool threads")
	}
}
