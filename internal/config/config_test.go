package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Create a temporary directory for the test
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	// Test case 1: Load from YAML
	yamlContent := `
listen_port: 8181
log_level: "debug"
plantuml:
  server_url: "http://plantuml.internal/plantuml"
  format: "svg"
  timeout: 5s
mermaid:
  theme: "forest"
d2:
  browser_path: "/path/from/yaml"
  max_sessions: 2
  compiler: "local"
  themes:
    "Corporate": 42
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.ListenPort != 8181 {
		t.Errorf("expected ListenPort to be 8181, got %d", cfg.ListenPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel to be 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.PlantUML.ServerURL != "http://plantuml.internal/plantuml" {
		t.Errorf("unexpected PlantUML.ServerURL '%s'", cfg.PlantUML.ServerURL)
	}
	if cfg.PlantUML.Format != "svg" {
		t.Errorf("expected PlantUML.Format to be 'svg', got '%s'", cfg.PlantUML.Format)
	}
	if cfg.PlantUML.Timeout != 5*time.Second {
		t.Errorf("expected PlantUML.Timeout to be 5s, got %v", cfg.PlantUML.Timeout)
	}
	if cfg.Mermaid.Theme != "forest" {
		t.Errorf("expected Mermaid.Theme to be 'forest', got '%s'", cfg.Mermaid.Theme)
	}
	if cfg.D2.BrowserPath != "/path/from/yaml" {
		t.Errorf("expected D2.BrowserPath to be '/path/from/yaml', got '%s'", cfg.D2.BrowserPath)
	}
	if cfg.D2.MaxSessions != 2 {
		t.Errorf("expected D2.MaxSessions to be 2, got %d", cfg.D2.MaxSessions)
	}
	if cfg.D2.Themes["Corporate"] != 42 {
		t.Errorf("expected theme override 42, got %d", cfg.D2.Themes["Corporate"])
	}
	// Untouched keys keep their defaults
	if cfg.D2.RenderURL != "https://api.d2lang.com/render/svg" {
		t.Errorf("unexpected D2.RenderURL '%s'", cfg.D2.RenderURL)
	}

	// Test case 2: Override with environment variables
	t.Setenv("BROWSER_PATH", "/path/from/env")
	t.Setenv("D2_MAX_SESSIONS", "8")
	t.Setenv("D2_TIMEOUT", "1m")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err = Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.D2.BrowserPath != "/path/from/env" {
		t.Errorf("expected D2.BrowserPath to be '/path/from/env', got '%s'", cfg.D2.BrowserPath)
	}
	if cfg.D2.MaxSessions != 8 {
		t.Errorf("expected D2.MaxSessions to be 8, got %d", cfg.D2.MaxSessions)
	}
	if cfg.D2.Timeout != time.Minute {
		t.Errorf("expected D2.Timeout to be 1m, got %v", cfg.D2.Timeout)
	}
	if !cfg.Tracing.Enabled {
		t.Error("expected Tracing.Enabled to be true")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "non_existent_file.yaml"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.ListenPort != 8080 {
		t.Errorf("expected ListenPort to be 8080, got %d", cfg.ListenPort)
	}
	if cfg.MetricsPort != 9090 {
		t.Errorf("expected MetricsPort to be 9090, got %d", cfg.MetricsPort)
	}
	if cfg.Mermaid.Theme != "dark" {
		t.Errorf("expected Mermaid.Theme to be 'dark', got '%s'", cfg.Mermaid.Theme)
	}
	if cfg.D2.Compiler != CompilerBrowser {
		t.Errorf("expected D2.Compiler to be 'browser', got '%s'", cfg.D2.Compiler)
	}
	if cfg.Cache.RedisAddr != "" {
		t.Errorf("expected cache to be disabled by default, got '%s'", cfg.Cache.RedisAddr)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{"unknown compiler", "d2:\n  compiler: wasm\n", nil},
		{"zero sessions", "d2:\n  max_sessions: 0\n", nil},
		{"bad log format", "log_format: xml\n", nil},
		{"malformed yaml", "plantuml: [\n", nil},
		{"bad int env", "", map[string]string{"LISTEN_PORT": "eighty"}},
		{"bad duration env", "", map[string]string{"D2_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0600); err != nil {
				t.Fatalf("failed to write test config file: %v", err)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := Load(configPath); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}
