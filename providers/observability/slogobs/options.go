package slogobs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by New when the corresponding option is absent.
const (
	EnvLogLevel  = "LLMKIT_LOG_LEVEL"
	EnvLogFormat = "LLMKIT_LOG_FORMAT"
)

// LevelTrace sits below slog.LevelDebug and is used by Observer.Trace.
const LevelTrace = slog.LevelDebug - 4

// Format is the line layout written by Handler.
type Format string

const (
	// FormatCompact writes one line per record with attributes as a JSON object:
	//	2026-01-02 10:40:35 DEBUG step finished -> {"agent.step":1}
	FormatCompact Format = "compact"
	// FormatPretty writes attributes on indented lines below the message.
	FormatPretty Format = "pretty"
	// FormatJSON writes one JSON object per record.
	FormatJSON Format = "json"
)

// ParseFormat maps a case-insensitive name to a Format, defaulting to compact.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPretty:
		return FormatPretty
	case FormatJSON:
		return FormatJSON
	default:
		return FormatCompact
	}
}

// ParseLevel parses TRACE, DEBUG, INFO, WARN/WARNING or ERROR.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// FormatFromEnv reads LLMKIT_LOG_FORMAT.
func FormatFromEnv() Format {
	return ParseFormat(os.Getenv(EnvLogFormat))
}

// LevelFromEnv reads LLMKIT_LOG_LEVEL; unknown values fall back to INFO.
func LevelFromEnv() slog.Level {
	level, err := ParseLevel(os.Getenv(EnvLogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "slogobs: %v, using INFO\n", err)
	}
	return level
}

// Option configures an Observer.
type Option func(*config)

type config struct {
	format Format
	level  slog.Level
	output io.Writer
	colors bool
	logger *slog.Logger
}

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(c *config) { c.format = format }
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(c *config) { c.level = level }
}

// WithOutput sets the destination writer (default os.Stderr).
func WithOutput(output io.Writer) Option {
	return func(c *config) { c.output = output }
}

// WithColors forces ANSI colors on or off for the text formats.
func WithColors(enabled bool) Option {
	return func(c *config) { c.colors = enabled }
}

// WithLogger routes everything through an existing logger and ignores the
// format, level, output and color options.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func applyOptions(opts ...Option) *config {
	cfg := &config{
		format: FormatFromEnv(),
		level:  LevelFromEnv(),
		output: os.Stderr,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
