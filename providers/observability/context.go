package observability

import "context"

type contextKey int

const (
	spanContextKey contextKey = iota
	observerContextKey
)

// SpanFromContext returns the active span, or nil.
func SpanFromContext(ctx context.Context) Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanContextKey).(Span)
	return span
}

// ContextWithSpan returns a copy of ctx carrying span.
func ContextWithSpan(ctx context.Context, span Span) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanContextKey, span)
}

// ObserverFromContext returns the Provider stored by ContextWithObserver, or
// nil. Adapters and tools use it to log without holding a reference.
func ObserverFromContext(ctx context.Context) Provider {
	if ctx == nil {
		return nil
	}
	observer, _ := ctx.Value(observerContextKey).(Provider)
	return observer
}

// ContextWithObserver returns a copy of ctx carrying observer.
func ContextWithObserver(ctx context.Context, observer Provider) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, observerContextKey, observer)
}

// StartSpan starts a span on the context's observer. Without an observer it
// returns ctx unchanged and a no-op span, so callers can always defer End.
func StartSpan(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	observer := ObserverFromContext(ctx)
	if observer == nil {
		return ctx, nopSpan{}
	}
	ctx, span := observer.StartSpan(ctx, name, attrs...)
	if span == nil {
		return ctx, nopSpan{}
	}
	return ContextWithSpan(ctx, span), span
}
