// Package observability defines the tracing, metrics and logging interfaces
// used throughout llmkit, together with the semantic conventions for their
// attribute keys, span names and metric names.
//
// [Provider] composes [Tracer], [Metrics] and [Logger]. Components find the
// active provider and span through the context ([ObserverFromContext],
// [SpanFromContext]); [Compose] mixes backends such as slogobs and promobs.
package observability
