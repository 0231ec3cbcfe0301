package slogobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Handler is a slog.Handler that writes compact, pretty or JSON lines.
// Attributes keep their insertion order; handler attributes come first.
type Handler struct {
	format Format
	level  slog.Leveler
	colors bool

	mu     *sync.Mutex
	output io.Writer

	attrs  []slog.Attr
	prefix string
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Format Format
	Level  slog.Leveler
	Output io.Writer
	// Colors enables ANSI colors. Terminals get colors regardless.
	Colors bool
}

// NewHandler returns a Handler. A nil opts writes compact INFO lines to stderr.
func NewHandler(opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}
	h := &Handler{
		format: opts.Format,
		level:  opts.Level,
		output: opts.Output,
		colors: opts.Colors,
		mu:     &sync.Mutex{},
	}
	if h.format == "" {
		h.format = FormatCompact
	}
	if h.level == nil {
		h.level = slog.LevelInfo
	}
	if h.output == nil {
		h.output = os.Stderr
	}
	if !h.colors && h.format != FormatJSON {
		if f, ok := h.output.(*os.File); ok {
			h.colors = isTerminal(f)
		}
	}
	return h
}

// Enabled reports whether level is at or above the configured minimum.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle writes r in the configured format.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]field, 0, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		fields = appendField(fields, "", attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.prefix, attr)
		return true
	})

	var line []byte
	var err error
	switch h.format {
	case FormatJSON:
		line, err = h.jsonLine(r, fields)
	case FormatPretty:
		line = h.prettyLine(r, fields)
	default:
		line, err = h.compactLine(r, fields)
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.output.Write(line)
	return err
}

// WithAttrs returns a Handler that adds attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		attr.Key = h.prefix + attr.Key
		clone.attrs = append(clone.attrs, attr)
	}
	return &clone
}

// WithGroup returns a Handler that prefixes later keys with "name.".
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

type field struct {
	key   string
	value any
}

// appendField flattens groups into dotted keys.
func appendField(fields []field, prefix string, attr slog.Attr) []field {
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = prefix + attr.Key + "."
		}
		for _, nested := range value.Group() {
			fields = appendField(fields, groupPrefix, nested)
		}
		return fields
	}
	if attr.Key == "" {
		return fields
	}
	return append(fields, field{key: prefix + attr.Key, value: plainValue(value)})
}

func plainValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().Format(time.RFC3339Nano)
	default:
		v := value.Any()
		if err, ok := v.(error); ok {
			return err.Error()
		}
		if d, ok := v.(time.Duration); ok {
			return d.String()
		}
		return v
	}
}

// orderedObject marshals fields as a JSON object preserving their order.
func orderedObject(buf []byte, fields []field) ([]byte, error) {
	buf = append(buf, '{')
	for i, f := range fields {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.value)
		if err != nil {
			value, _ = json.Marshal(fmt.Sprint(f.value))
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, value...)
	}
	return append(buf, '}'), nil
}

func (h *Handler) compactLine(r slog.Record, fields []field) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, r.Time.Format(time.DateTime)...)
	buf = append(buf, ' ')
	buf = h.appendLevel(buf, r.Level, true)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)
	if len(fields) > 0 {
		buf = append(buf, " -> "...)
		var err error
		if buf, err = orderedObject(buf, fields); err != nil {
			return nil, err
		}
	}
	return append(buf, '\n'), nil
}

func (h *Handler) prettyLine(r slog.Record, fields []field) []byte {
	var sb strings.Builder
	sb.WriteString(r.Time.Format(time.DateTime))
	sb.WriteString(" ")
	sb.Write(h.appendLevel(nil, r.Level, true))
	sb.WriteString(" | ")
	sb.WriteString(r.Message)
	sb.WriteByte('\n')
	for i, f := range fields {
		branch := "|-"
		if i == len(fields)-1 {
			branch = "`-"
		}
		fmt.Fprintf(&sb, "    %s %s: %v\n", branch, f.key, f.value)
	}
	return []byte(sb.String())
}

func (h *Handler) jsonLine(r slog.Record, fields []field) ([]byte, error) {
	all := make([]field, 0, len(fields)+3)
	all = append(all,
		field{key: slog.TimeKey, value: r.Time.Format(time.RFC3339Nano)},
		field{key: slog.LevelKey, value: LevelName(r.Level)},
		field{key: slog.MessageKey, value: r.Message},
	)
	all = append(all, fields...)
	buf, err := orderedObject(make([]byte, 0, 256), all)
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

func (h *Handler) appendLevel(buf []byte, level slog.Level, pad bool) []byte {
	name := LevelName(level)
	if pad {
		name = fmt.Sprintf("%5s", name)
	}
	if !h.colors {
		return append(buf, name...)
	}
	buf = append(buf, colorForLevel(level)...)
	buf = append(buf, name...)
	return append(buf, colorReset...)
}

// LevelName returns TRACE, DEBUG, INFO, WARN or ERROR.
func LevelName(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "TRACE"
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func colorForLevel(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return colorGray
	case level < slog.LevelInfo:
		return colorBlue
	case level < slog.LevelWarn:
		return colorGreen
	case level < slog.LevelError:
		return colorYellow
	default:
		return colorRed
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
