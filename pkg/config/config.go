package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultOllamaURL = "http://127.0.0.1:11434"
	DefaultModel     = "neuro-coach"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Server    ServerConfig              `yaml:"server"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Memory    MemoryConfig              `yaml:"memory"`
	Log       LogConfig                 `yaml:"log"`
	Prompts   PromptsConfig             `yaml:"prompts"`
}

type AppConfig struct {
	Name string `yaml:"name"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type ProviderConfig struct {
	APIKey  string        `yaml:"api_key,omitempty"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Enabled bool          `yaml:"enabled"`
}

type MemoryConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	LLMLogPath string `yaml:"llm_log_path"`
}

type PromptsConfig struct {
	Directory string `yaml:"directory"`
}

// Default is the configuration used when no file exists: a local ollama and a sqlite file
// in the working directory.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML file. A missing file is not an error; defaults fill every gap,
// and OLLAMA_HOST overrides the ollama provider's base URL.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.applyDefaults()
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if p, ok := cfg.Providers["ollama"]; ok {
			p.BaseURL = normalizeHost(host)
			cfg.Providers["ollama"] = p
		}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "neurotasker"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8787"
	}
	if c.Memory.Type == "" {
		c.Memory.Type = "sqlite"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "neurotasker.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.LLMLogPath == "" {
		c.Log.LLMLogPath = "logs/llm.jsonl"
	}
	if len(c.Providers) == 0 {
		c.Providers = map[string]ProviderConfig{
			"ollama": {Model: DefaultModel, BaseURL: DefaultOllamaURL, Enabled: true},
		}
	}
	for name, p := range c.Providers {
		if p.Model == "" {
			p.Model = DefaultModel
		}
		if name == "ollama" && p.BaseURL == "" {
			p.BaseURL = DefaultOllamaURL
		}
		if p.Timeout <= 0 {
			p.Timeout = 2 * time.Minute
		}
		c.Providers[name] = p
	}
}

// GetDefaultProvider returns the first enabled provider in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// OLLAMA_HOST is often given as host:port without a scheme.
func normalizeHost(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "http://" + host
}
