package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/core/cost"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llmkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("LLMKIT_TEST_DSN", "postgres://llmkit@localhost/llmkit")
	path := writeConfig(t, `
model: anthropic:claude-sonnet-4-5
system: Answer briefly.
max_steps: 4
temperature: 0.3
timeout: 30s
tools:
  calculator: true
  require_approval: [calculator]
  prices:
    calculator: 0.01
mcp:
  - name: files
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
storage:
  kind: postgres
  dsn: ${LLMKIT_TEST_DSN}
prices:
  claude-sonnet-4-5: {input: 3, output: 15, cached_input: 0.3}
`)

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "anthropic:claude-sonnet-4-5", cfg.Model)
	assert.Equal(t, 4, cfg.MaxSteps)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.3, *cfg.Temperature, 1e-9)
	assert.True(t, cfg.Stream, "unset fields keep their defaults")
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"calculator"}, cfg.Tools.RequireApproval)
	assert.Equal(t, map[string]float64{"calculator": 0.01}, cfg.Tools.ToolPrices)
	require.Len(t, cfg.MCP, 1)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"}, cfg.MCP[0].Args)
	assert.Equal(t, "postgres://llmkit@localhost/llmkit", cfg.Storage.DSN)
	assert.Equal(t, cost.ModelPrice{Input: 3, Output: 15, CachedInput: 0.3}, cfg.Prices["claude-sonnet-4-5"])
}

func TestLoadConfig_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = LoadConfig(path, false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_Empty(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""), false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_UnknownField(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "modle: openai:gpt-4o\n"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modle")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:   "model without provider",
			mutate: func(c *Config) { c.Model = "gpt-4o" },
			want:   "Config.Model",
		},
		{
			name:   "zero max steps",
			mutate: func(c *Config) { c.MaxSteps = 0 },
			want:   "Config.MaxSteps",
		},
		{
			name: "temperature out of range",
			mutate: func(c *Config) {
				temperature := 3.0
				c.Temperature = &temperature
			},
			want: "Config.Temperature",
		},
		{
			name:   "unknown storage",
			mutate: func(c *Config) { c.Storage.Kind = "redis" },
			want:   "Config.Storage.Kind",
		},
		{
			name:   "filesystem without dir",
			mutate: func(c *Config) { c.Storage.Kind = "filesystem" },
			want:   "Config.Storage.Dir",
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.Storage.Kind = "postgres" },
			want:   "Config.Storage.DSN",
		},
		{
			name:   "negative price",
			mutate: func(c *Config) { c.Prices = cost.Table{"gpt-4o": {Input: -1}} },
			want:   "Input",
		},
		{
			name:   "mcp server without command",
			mutate: func(c *Config) { c.MCP = []MCPConfig{{Name: "files"}} },
			want:   "Command",
		},
		{
			name: "duplicate mcp server",
			mutate: func(c *Config) {
				c.MCP = []MCPConfig{{Name: "files", Command: "a"}, {Name: "files", Command: "b"}}
			},
			want: "declared twice",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Log.Level = "loud" },
			want:   "Config.Log.Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := DefaultConfig()
	applyFlags(&cfg, flags{model: "anthropic:claude-haiku-4-5", maxSteps: 3, noStream: true, verbose: true, metricsAddr: ":9464"})

	assert.Equal(t, "anthropic:claude-haiku-4-5", cfg.Model)
	assert.Equal(t, 3, cfg.MaxSteps)
	assert.False(t, cfg.Stream)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "sessions"), expandHome("~/sessions"))
	assert.Equal(t, "/var/lib/llmkit", expandHome("/var/lib/llmkit"))
}
