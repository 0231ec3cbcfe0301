package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/leofalp/llmkit/core/cost"
)

// Config is the llmkit.yaml file. String values may reference environment
// variables as $NAME or ${NAME}.
type Config struct {
	// Model is a "provider:model" reference, e.g. "openai:gpt-4o-mini".
	Model       string        `yaml:"model" validate:"required,contains=:"`
	System      string        `yaml:"system"`
	MaxSteps    int           `yaml:"max_steps" validate:"gte=1,lte=100"`
	MaxTokens   int           `yaml:"max_tokens" validate:"gte=0"`
	Temperature *float64      `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
	Stream      bool          `yaml:"stream"`

	Tools   ToolsConfig   `yaml:"tools"`
	MCP     []MCPConfig   `yaml:"mcp" validate:"dive"`
	Storage StorageConfig `yaml:"storage"`
	Prices  cost.Table    `yaml:"prices" validate:"dive"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ToolsConfig struct {
	Calculator bool `yaml:"calculator"`
	WebFetch   bool `yaml:"webfetch"`
	// RequireApproval lists tool names that pause the run until the user
	// answers.
	RequireApproval []string `yaml:"require_approval" validate:"dive,required"`
	// ToolPrices is the flat price of one call, by tool name.
	ToolPrices map[string]float64 `yaml:"prices" validate:"dive,gte=0"`
}

// MCPConfig starts an MCP server as a subprocess and exposes its tools with
// the "<name>_" prefix.
type MCPConfig struct {
	Name            string   `yaml:"name" validate:"required,alphanum"`
	Command         string   `yaml:"command" validate:"required"`
	Args            []string `yaml:"args"`
	RequireApproval bool     `yaml:"require_approval"`
}

type StorageConfig struct {
	Kind  string `yaml:"kind" validate:"oneof=none memory filesystem postgres"`
	Dir   string `yaml:"dir" validate:"required_if=Kind filesystem"`
	DSN   string `yaml:"dsn" validate:"required_if=Kind postgres"`
	Table string `yaml:"table_prefix" validate:"omitempty,alphanum"`
	// History caps how many stored messages are replayed into the prompt;
	// zero replays the whole session.
	History int `yaml:"history" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=compact pretty json"`
}

type MetricsConfig struct {
	// Addr serves Prometheus metrics on /metrics while the command runs.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// DefaultConfig is used when no file exists and fills fields a file leaves
// unset.
func DefaultConfig() Config {
	return Config{
		Model:    "openai:gpt-4o-mini",
		MaxSteps: 8,
		Timeout:  2 * time.Minute,
		Stream:   true,
		Storage:  StorageConfig{Kind: "none"},
		Log:      LogConfig{Level: "warn", Format: "compact"},
	}
}

// LoadConfig reads path over DefaultConfig. A missing file yields the
// defaults when optional is set.
func LoadConfig(path string, optional bool) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := decodeConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	decoder := yaml.NewDecoder(bytes.NewBufferString(expanded))
	decoder.KnownFields(true)
	// an empty file decodes to io.EOF
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return fmt.Errorf("config: %s", describe(fieldErrs))
		}
		return fmt.Errorf("config: %w", err)
	}
	seen := make(map[string]bool, len(c.MCP))
	for _, server := range c.MCP {
		if seen[server.Name] {
			return fmt.Errorf("config: mcp server %q declared twice", server.Name)
		}
		seen[server.Name] = true
	}
	return nil
}

func describe(errs validator.ValidationErrors) string {
	var buf bytes.Buffer
	for i, fe := range errs {
		if i > 0 {
			buf.WriteString("; ")
		}
		fmt.Fprintf(&buf, "%s fails %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			fmt.Fprintf(&buf, " (%s)", fe.Param())
		}
	}
	return buf.String()
}
