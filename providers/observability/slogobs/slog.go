package slogobs

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leofalp/llmkit/providers/observability"
)

// Observer implements observability.Provider on top of log/slog. Spans and
// metric updates are logged at DEBUG; metric values are also kept in memory
// and exposed through Snapshot.
type Observer struct {
	logger  *slog.Logger
	metrics *metricsStore
	spanSeq atomic.Uint64
}

var _ observability.Provider = (*Observer)(nil)

// New returns an Observer. Without options the format and level come from
// LLMKIT_LOG_FORMAT and LLMKIT_LOG_LEVEL.
//
//	observer := slogobs.New(slogobs.WithFormat(slogobs.FormatJSON), slogobs.WithLevel(slog.LevelDebug))
func New(opts ...Option) *Observer {
	cfg := applyOptions(opts...)

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(NewHandler(&HandlerOptions{
			Format: cfg.format,
			Level:  cfg.level,
			Output: cfg.output,
			Colors: cfg.colors,
		}))
	}

	return &Observer{
		logger:  logger,
		metrics: newMetricsStore(),
	}
}

// Logger returns the underlying slog logger.
func (o *Observer) Logger() *slog.Logger { return o.logger }

// --- TRACING ---

// StartSpan logs the span start and returns ctx carrying the new span. Child
// spans record the parent's id.
func (o *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	span := &slogSpan{
		id:     o.spanSeq.Add(1),
		name:   name,
		start:  time.Now(),
		logger: o.logger,
		attrs:  append([]observability.Attribute(nil), attrs...),
	}
	if parent, ok := observability.SpanFromContext(ctx).(*slogSpan); ok {
		span.parent = parent.id
	}

	o.logger.LogAttrs(ctx, slog.LevelDebug, "span started", span.header("span.start", attrs)...)
	return observability.ContextWithSpan(ctx, span), span
}

type slogSpan struct {
	id     uint64
	parent uint64
	name   string
	start  time.Time
	logger *slog.Logger

	mu     sync.Mutex
	attrs  []observability.Attribute
	status observability.StatusCode
	ended  bool
}

func (s *slogSpan) header(event string, attrs []observability.Attribute) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs)+4)
	out = append(out,
		slog.String("span", s.name),
		slog.Uint64("span.id", s.id),
		slog.String("event", event),
	)
	if s.parent != 0 {
		out = append(out, slog.Uint64("span.parent", s.parent))
	}
	return append(out, toSlog(attrs)...)
}

// End logs the span's duration and attributes. Calls after the first are ignored.
func (s *slogSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	attrs := append([]observability.Attribute{observability.Duration(observability.AttrDuration, time.Since(s.start))}, s.attrs...)
	level := slog.LevelDebug
	if s.status == observability.StatusError {
		level = slog.LevelWarn
	}
	s.mu.Unlock()

	s.logger.LogAttrs(context.Background(), level, "span ended", s.header("span.end", attrs)...)
}

func (s *slogSpan) SetAttributes(attrs ...observability.Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, attrs...)
}

func (s *slogSpan) SetStatus(code observability.StatusCode, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
	if description != "" {
		s.attrs = append(s.attrs, observability.String("status.description", description))
	}
}

func (s *slogSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, observability.Error(err))
	s.mu.Unlock()

	s.logger.LogAttrs(context.Background(), slog.LevelError, "span error", s.header("error", []observability.Attribute{observability.Error(err)})...)
}

func (s *slogSpan) AddEvent(name string, attrs ...observability.Attribute) {
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "span event", s.header(name, attrs)...)
}

// --- METRICS ---

// Counter returns the named counter, creating it on first use.
func (o *Observer) Counter(name string) observability.Counter {
	return o.metrics.counter(name, o.logger)
}

// Histogram returns the named histogram, creating it on first use.
func (o *Observer) Histogram(name string) observability.Histogram {
	return o.metrics.histogram(name, o.logger)
}

// HistogramSummary aggregates the values recorded on a histogram.
type HistogramSummary struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
}

// MetricsSnapshot is a point-in-time copy of all instruments.
type MetricsSnapshot struct {
	Counters   map[string]int64
	Histograms map[string]HistogramSummary
}

// CounterNames returns the counter names in sorted order.
func (m MetricsSnapshot) CounterNames() []string {
	names := make([]string, 0, len(m.Counters))
	for name := range m.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies the current metric values.
func (o *Observer) Snapshot() MetricsSnapshot {
	return o.metrics.snapshot()
}

type metricsStore struct {
	mu         sync.RWMutex
	counters   map[string]*slogCounter
	histograms map[string]*slogHistogram
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		counters:   make(map[string]*slogCounter),
		histograms: make(map[string]*slogHistogram),
	}
}

func (m *metricsStore) counter(name string, logger *slog.Logger) *slogCounter {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c = &slogCounter{name: name, logger: logger}
	m.counters[name] = c
	return c
}

func (m *metricsStore) histogram(name string, logger *slog.Logger) *slogHistogram {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if ok {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h = &slogHistogram{name: name, logger: logger}
	m.histograms[name] = h
	return h
}

func (m *metricsStore) snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := MetricsSnapshot{
		Counters:   make(map[string]int64, len(m.counters)),
		Histograms: make(map[string]HistogramSummary, len(m.histograms)),
	}
	for name, c := range m.counters {
		out.Counters[name] = c.value.Load()
	}
	for name, h := range m.histograms {
		h.mu.Lock()
		out.Histograms[name] = h.summary
		h.mu.Unlock()
	}
	return out
}

type slogCounter struct {
	name   string
	logger *slog.Logger
	value  atomic.Int64
}

func (c *slogCounter) Add(ctx context.Context, value int64, attrs ...observability.Attribute) {
	total := c.value.Add(value)
	logAttrs := append([]slog.Attr{
		slog.String("metric", c.name),
		slog.Int64("delta", value),
		slog.Int64("value", total),
	}, toSlog(attrs)...)
	c.logger.LogAttrs(ctx, slog.LevelDebug, "counter", logAttrs...)
}

type slogHistogram struct {
	name    string
	logger  *slog.Logger
	mu      sync.Mutex
	summary HistogramSummary
}

func (h *slogHistogram) Record(ctx context.Context, value float64, attrs ...observability.Attribute) {
	h.mu.Lock()
	if h.summary.Count == 0 || value < h.summary.Min {
		h.summary.Min = value
	}
	if h.summary.Count == 0 || value > h.summary.Max {
		h.summary.Max = value
	}
	h.summary.Count++
	h.summary.Sum += value
	h.mu.Unlock()

	logAttrs := append([]slog.Attr{
		slog.String("metric", h.name),
		slog.Float64("value", value),
	}, toSlog(attrs)...)
	h.logger.LogAttrs(ctx, slog.LevelDebug, "histogram", logAttrs...)
}

// --- LOGGING ---

// Trace logs below DEBUG; it is visible only with LLMKIT_LOG_LEVEL=TRACE.
func (o *Observer) Trace(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, LevelTrace, msg, toSlog(attrs)...)
}

func (o *Observer) Debug(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelDebug, msg, toSlog(attrs)...)
}

func (o *Observer) Info(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelInfo, msg, toSlog(attrs)...)
}

func (o *Observer) Warn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelWarn, msg, toSlog(attrs)...)
}

func (o *Observer) Error(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelError, msg, toSlog(attrs)...)
}

func toSlog(attrs []observability.Attribute) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, slog.Any(attr.Key, attr.Value))
	}
	return out
}
