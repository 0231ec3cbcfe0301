// Package promobs implements observability.Metrics with Prometheus counter
// and histogram vectors. Combine it with a logger and tracer through
// observability.Compose:
//
//	metrics := promobs.New(prometheus.DefaultRegisterer)
//	observer := observability.Compose(slogObserver, metrics, slogObserver)
package promobs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leofalp/llmkit/providers/observability"
)

// DefaultLabels are the attribute keys turned into Prometheus labels.
// Attributes with other keys are dropped to keep cardinality bounded.
var DefaultLabels = []string{
	observability.AttrLLMProvider,
	observability.AttrLLMModel,
	observability.AttrToolName,
	observability.AttrTokenType,
	observability.AttrErrorKind,
}

var help = map[string]string{
	observability.MetricAgentSteps:   "Agent steps executed",
	observability.MetricToolCalls:    "Tool calls executed",
	observability.MetricUsageTokens:  "Tokens reported by providers",
	observability.MetricToolDuration: "Tool execution duration in seconds",
	observability.MetricLLMRequests:  "Generation requests sent to providers",
	observability.MetricLLMDuration:  "Generation request duration in seconds",

	observability.MetricAdapterCalls:     "Adapter calls seen by the client middleware",
	observability.MetricAdapterFirstPart: "Delay before the first stream part in seconds",
}

// Option configures Metrics.
type Option func(*Metrics)

// WithNamespace prefixes every metric name.
func WithNamespace(namespace string) Option {
	return func(m *Metrics) { m.namespace = namespace }
}

// WithLabels replaces DefaultLabels.
func WithLabels(keys ...string) Option {
	return func(m *Metrics) { m.labelKeys = keys }
}

// WithBuckets sets histogram buckets (default prometheus.DefBuckets).
func WithBuckets(buckets []float64) Option {
	return func(m *Metrics) { m.buckets = buckets }
}

// Metrics is an observability.Metrics backed by a prometheus.Registerer.
type Metrics struct {
	factory   promauto.Factory
	namespace string
	labelKeys []string
	buckets   []float64

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
}

var _ observability.Metrics = (*Metrics)(nil)

// New registers instruments on registerer as they are first requested.
func New(registerer prometheus.Registerer, opts ...Option) *Metrics {
	m := &Metrics{
		factory:    promauto.With(registerer),
		labelKeys:  DefaultLabels,
		buckets:    prometheus.DefBuckets,
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Counter returns a counter named after name with dots replaced by
// underscores and a _total suffix, e.g. llmkit_tool_calls_total.
func (m *Metrics) Counter(name string) observability.Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[name]; ok {
		return c
	}
	c := &counter{
		labels: m.labelKeys,
		vec: m.factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      MetricName(name) + "_total",
			Help:      helpFor(name),
		}, LabelNames(m.labelKeys)),
	}
	m.counters[name] = c
	return c
}

// Histogram returns a histogram vector named after name.
func (m *Metrics) Histogram(name string) observability.Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.histograms[name]; ok {
		return h
	}
	h := &histogram{
		labels: m.labelKeys,
		vec: m.factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      MetricName(name),
			Help:      helpFor(name),
			Buckets:   m.buckets,
		}, LabelNames(m.labelKeys)),
	}
	m.histograms[name] = h
	return h
}

type counter struct {
	labels []string
	vec    *prometheus.CounterVec
}

func (c *counter) Add(_ context.Context, value int64, attrs ...observability.Attribute) {
	if value < 0 {
		return
	}
	c.vec.WithLabelValues(labelValues(c.labels, attrs)...).Add(float64(value))
}

type histogram struct {
	labels []string
	vec    *prometheus.HistogramVec
}

func (h *histogram) Record(_ context.Context, value float64, attrs ...observability.Attribute) {
	h.vec.WithLabelValues(labelValues(h.labels, attrs)...).Observe(value)
}

// MetricName converts a dotted metric name into a Prometheus name.
func MetricName(name string) string {
	return sanitize(name)
}

// LabelNames converts attribute keys into Prometheus label names.
func LabelNames(keys []string) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = sanitize(key)
	}
	return out
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func labelValues(keys []string, attrs []observability.Attribute) []string {
	values := make([]string, len(keys))
	for _, attr := range attrs {
		for i, key := range keys {
			if attr.Key == key {
				values[i] = fmt.Sprint(attr.Value)
			}
		}
	}
	return values
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return "llmkit metric " + name
}
