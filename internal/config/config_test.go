package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Topics) == 0 {
		t.Error("expected topics to be populated")
	}
	if cfg.Backend.Kind != "http" {
		t.Errorf("expected backend kind 'http', got %q", cfg.Backend.Kind)
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("expected base_url 'http://localhost:5000', got %q", cfg.Backend.BaseURL)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
	if !cfg.History.Enabled {
		t.Error("expected history to be enabled")
	}
	if cfg.TopicName("oil_spill") != "Oil Spill" {
		t.Errorf("expected topic name 'Oil Spill', got %q", cfg.TopicName("oil_spill"))
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
backend:
  kind: dataset
  dataset_path: /tmp/chronicle_data.json
  delay_ms: 250
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Backend.Kind != "dataset" {
		t.Errorf("expected kind 'dataset', got %q", cfg.Backend.Kind)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Backend.Delay() != 250*time.Millisecond {
		t.Errorf("expected 250ms delay, got %v", cfg.Backend.Delay())
	}
	// Defaults should still be set for unspecified fields
	if cfg.Backend.Timeout() != 120*time.Second {
		t.Errorf("expected default timeout, got %v", cfg.Backend.Timeout())
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default log level, got %q", cfg.Logging.Level)
	}
	if cfg.GetDatasetPath() != "/tmp/chronicle_data.json" {
		t.Errorf("unexpected dataset path %q", cfg.GetDatasetPath())
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown kind": "backend:\n  kind: grpc\n",
		"no base url":  "backend:\n  kind: http\n  base_url: \"\"\n",
		"bad port":     "server:\n  port: 70000\n",
		"empty topic":  "topics:\n  - name: Nothing\n",
		"not yaml":     "backend: [unclosed",
	}
	for name, data := range cases {
		if _, err := parse([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Topics) == 0 {
		t.Error("expected topics to be populated from file")
	}
}

func TestResolveConfigPathExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := ResolveConfigPath(path); err == nil {
		t.Error("expected error for missing explicit config")
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ResolveConfigPath(path)
	if err != nil || got != path {
		t.Errorf("expected %q, got %q (%v)", path, got, err)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}
	if !strings.HasSuffix(cfg.GetDatasetPath(), "chronicle_data.json") {
		t.Errorf("expected default dataset path in data dir, got %q", cfg.GetDatasetPath())
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
