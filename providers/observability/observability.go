package observability

import (
	"context"
	"time"
)

// Provider bundles tracing, metrics and logging behind one injectable value.
type Provider interface {
	Tracer
	Metrics
	Logger
}

// --- TRACING ---

// Tracer starts spans. Implementations attach the span to the returned
// context so that nested components can find it with SpanFromContext.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Span represents a single unit of work such as an agent run, a step or a
// tool execution.
type Span interface {
	End()
	SetAttributes(attrs ...Attribute)
	SetStatus(code StatusCode, description string)
	RecordError(err error)
	AddEvent(name string, attrs ...Attribute)
}

// StatusCode represents the status of a span.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// --- METRICS ---

// Metrics hands out named instruments. Repeated calls with the same name
// return the same instrument.
type Metrics interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Add(ctx context.Context, value int64, attrs ...Attribute)
}

// Histogram records a distribution of values.
type Histogram interface {
	Record(ctx context.Context, value float64, attrs ...Attribute)
}

// --- LOGGING ---

// Logger provides structured, leveled logging.
type Logger interface {
	Trace(ctx context.Context, msg string, attrs ...Attribute)
	Debug(ctx context.Context, msg string, attrs ...Attribute)
	Info(ctx context.Context, msg string, attrs ...Attribute)
	Warn(ctx context.Context, msg string, attrs ...Attribute)
	Error(ctx context.Context, msg string, attrs ...Attribute)
}

// --- ATTRIBUTES ---

// Attribute is a key-value pair attached to spans, events, metrics and logs.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Int(key string, value int) Attribute { return Attribute{Key: key, Value: value} }

func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }

func Float64(key string, value float64) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Duration(key string, value time.Duration) Attribute { return Attribute{Key: key, Value: value} }

func StringSlice(key string, value []string) Attribute { return Attribute{Key: key, Value: value} }

// Error creates an attribute under AttrError. A nil error yields an empty value.
func Error(err error) Attribute {
	if err == nil {
		return Attribute{Key: AttrError, Value: ""}
	}
	return Attribute{Key: AttrError, Value: err.Error()}
}

// --- COMPOSITION ---

// Compose assembles a Provider from independent backends, for example a slog
// logger and tracer with Prometheus metrics. Nil parts are replaced by no-ops.
func Compose(tracer Tracer, metrics Metrics, logger Logger) Provider {
	if tracer == nil {
		tracer = Nop()
	}
	if metrics == nil {
		metrics = Nop()
	}
	if logger == nil {
		logger = Nop()
	}
	return composite{Tracer: tracer, Metrics: metrics, Logger: logger}
}

type composite struct {
	Tracer
	Metrics
	Logger
}

// Nop returns a Provider that discards everything.
func Nop() Provider { return nop{} }

type nop struct{}

func (nop) StartSpan(ctx context.Context, _ string, _ ...Attribute) (context.Context, Span) {
	return ctx, nopSpan{}
}
func (nop) Counter(string) Counter                      { return nopInstrument{} }
func (nop) Histogram(string) Histogram                  { return nopInstrument{} }
func (nop) Trace(context.Context, string, ...Attribute) {}
func (nop) Debug(context.Context, string, ...Attribute) {}
func (nop) Info(context.Context, string, ...Attribute)  {}
func (nop) Warn(context.Context, string, ...Attribute)  {}
func (nop) Error(context.Context, string, ...Attribute) {}

type nopSpan struct{}

func (nopSpan) End()                          {}
func (nopSpan) SetAttributes(...Attribute)    {}
func (nopSpan) SetStatus(StatusCode, string)  {}
func (nopSpan) RecordError(error)             {}
func (nopSpan) AddEvent(string, ...Attribute) {}

type nopInstrument struct{}

func (nopInstrument) Add(context.Context, int64, ...Attribute)      {}
func (nopInstrument) Record(context.Context, float64, ...Attribute) {}
