package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Backend Backend `yaml:"backend"`
	Topics  []Topic `yaml:"topics"`
	History History `yaml:"history"`
	Archive Archive `yaml:"archive"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

// Backend selects and configures the search/organize/enrich service.
type Backend struct {
	Kind           string `yaml:"kind"` // http or dataset
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	APIKeyEnv      string `yaml:"api_key_env"`
	DatasetPath    string `yaml:"dataset_path"`
	DelayMillis    int    `yaml:"delay_ms"`
}

// Topic is a query offered as a quick pick.
type Topic struct {
	Query string `yaml:"query"`
	Name  string `yaml:"name"`
}

type History struct {
	Enabled bool `yaml:"enabled"`
}

// Archive points at the scanned article files referenced by filename.
type Archive struct {
	Dir string `yaml:"dir"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for chronicle.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "chronicle")
}

// DataDir returns the XDG data directory for chronicle.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "chronicle")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/chronicle/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'chronicle init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Backend: Backend{
			Kind:           "http",
			BaseURL:        "http://localhost:5000",
			TimeoutSeconds: 120,
			APIKeyEnv:      "CHRONICLE_API_KEY",
		},
		History: History{Enabled: true},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO", Format: "text"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend.Kind) {
	case "http":
		if c.Backend.BaseURL == "" {
			return fmt.Errorf("invalid config: backend.base_url is required for the http backend")
		}
	case "dataset":
	default:
		return fmt.Errorf("invalid config: unknown backend.kind %q", c.Backend.Kind)
	}
	if c.Backend.TimeoutSeconds < 0 || c.Backend.DelayMillis < 0 {
		return fmt.Errorf("invalid config: backend timeout and delay must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	for i, t := range c.Topics {
		if strings.TrimSpace(t.Query) == "" {
			return fmt.Errorf("invalid config: topics[%d] has no query", i)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetDatasetPath returns the dataset dump path, defaulting to
// chronicle_data.json in the data directory.
func (c *Config) GetDatasetPath() string {
	if c.Backend.DatasetPath != "" {
		return c.Backend.DatasetPath
	}
	return filepath.Join(c.GetDataDir(), "chronicle_data.json")
}

// Timeout returns the per-request backend timeout.
func (b Backend) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Delay returns the artificial per-call latency of the dataset backend.
func (b Backend) Delay() time.Duration {
	return time.Duration(b.DelayMillis) * time.Millisecond
}

// TopicName returns the display name for query, falling back to the query.
func (c *Config) TopicName(query string) string {
	for _, t := range c.Topics {
		if t.Query == query && t.Name != "" {
			return t.Name
		}
	}
	return query
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
