package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "ollama", name)
	assert.Equal(t, DefaultOllamaURL, p.BaseURL)
	assert.Equal(t, DefaultModel, p.Model)
	assert.Equal(t, 2*time.Minute, p.Timeout)
	assert.Equal(t, "neurotasker.db", cfg.Memory.Path)
	assert.Equal(t, "127.0.0.1:8787", cfg.Server.Addr)
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")

	path := filepath.Join(t.TempDir(), "neurotasker.yaml")
	content := `
server:
  addr: ":9000"
providers:
  ollama:
    model: llama3.2
    timeout: 30s
    enabled: false
  openai:
    base_url: http://localhost:1234/v1
    model: qwen2.5
    enabled: true
memory:
  path: /tmp/nt.db
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/nt.db", cfg.Memory.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Providers["ollama"].Timeout)
	assert.Equal(t, DefaultOllamaURL, cfg.Providers["ollama"].BaseURL)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openai", name)
	assert.Equal(t, "qwen2.5", p.Model)
}

func TestLoadConfig_OllamaHostOverride(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "10.0.0.5:11434")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:11434", cfg.Providers["ollama"].BaseURL)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers: [oops"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
