package client

import (
	"context"
	"slices"
	"time"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
)

// NewObservabilityMiddleware records an llm.adapter.call span, a call
// counter labelled with the error kind, and, for streams, the delay before
// the first part. Provider and model labels come from adapter, normally the
// one being wrapped. The span and observer are placed on the context so the
// adapter can attach HTTP events to them.
//
// core/step already records request counts, durations and token usage; this
// middleware covers adapters called directly and adds stream latency.
func NewObservabilityMiddleware(observer observability.Provider, adapter ai.Adapter) MiddlewareConfig {
	identity := []observability.Attribute{
		observability.String(observability.AttrLLMProvider, adapter.Provider()),
		observability.String(observability.AttrLLMModel, adapter.ModelID()),
	}
	return MiddlewareConfig{
		Generate: func(next GenerateFunc) GenerateFunc {
			return func(ctx context.Context, options ai.CallOptions) (*ai.GenerateResponse, error) {
				ctx, span := startAdapterSpan(ctx, observer, identity, options, false)
				start := time.Now()

				response, err := next(ctx, options)
				if err != nil {
					failCall(ctx, observer, span, identity, err, time.Since(start))
					return nil, err
				}

				usage := response.Usage
				finishCall(ctx, observer, span, identity, response.FinishReason, usage, time.Since(start),
					observability.Int(observability.AttrAgentToolCalls, len(ai.PartsOf[ai.ToolCallPart](response.Content))),
					observability.String("response", utils.TruncateString(ai.TextOf(response.Content), 100)),
				)
				return response, nil
			}
		},
		Stream: func(next StreamFunc) StreamFunc {
			return func(ctx context.Context, options ai.CallOptions) (*ai.StreamResponse, error) {
				ctx, span := startAdapterSpan(ctx, observer, identity, options, true)
				start := time.Now()

				response, err := next(ctx, options)
				if err != nil {
					failCall(ctx, observer, span, identity, err, time.Since(start))
					return nil, err
				}

				return WrapStream(response, start, func(summary StreamSummary) {
					if summary.Parts > 0 {
						span.AddEvent(observability.EventStreamFirstPart,
							observability.Duration(observability.AttrDuration, summary.FirstPart))
						observer.Histogram(observability.MetricAdapterFirstPart).Record(ctx, summary.FirstPart.Seconds(), identity...)
					}
					switch {
					case summary.Err != nil && !summary.Finished:
						failCall(ctx, observer, span, identity, summary.Err, summary.Duration)
					case summary.Abandoned:
						observer.Info(ctx, "llm stream abandoned",
							observability.Int("parts", summary.Parts),
							observability.Duration(observability.AttrDuration, summary.Duration),
						)
						span.SetStatus(observability.StatusOK, "abandoned")
						span.End()
					default:
						finishCall(ctx, observer, span, identity, summary.FinishReason, summary.Usage, summary.Duration,
							observability.Int("parts", summary.Parts),
						)
					}
				}), nil
			}
		},
	}
}

func startAdapterSpan(ctx context.Context, observer observability.Provider, identity []observability.Attribute, options ai.CallOptions, streaming bool) (context.Context, observability.Span) {
	attrs := append(slices.Clone(identity),
		observability.Bool(observability.AttrLLMStreaming, streaming),
		observability.Int(observability.AttrRequestMessages, len(options.Prompt)),
		observability.Int(observability.AttrToolsCount, len(options.Tools)),
	)
	ctx = observability.ContextWithObserver(ctx, observer)
	ctx, span := observer.StartSpan(ctx, observability.SpanAdapterCall, attrs...)
	ctx = observability.ContextWithSpan(ctx, span)

	observer.Debug(ctx, "llm call", attrs...)
	return ctx, span
}

func failCall(ctx context.Context, observer observability.Provider, span observability.Span, identity []observability.Attribute, err error, elapsed time.Duration) {
	kind := string(ai.KindOf(err))
	span.RecordError(err)
	span.SetStatus(observability.StatusError, err.Error())
	span.End()

	labels := append(slices.Clone(identity), observability.String(observability.AttrErrorKind, kind))
	observer.Error(ctx, "llm call failed", append(labels,
		observability.Duration(observability.AttrDuration, elapsed),
		observability.Error(err),
	)...)
	observer.Counter(observability.MetricAdapterCalls).Add(ctx, 1, labels...)
}

func finishCall(ctx context.Context, observer observability.Provider, span observability.Span, identity []observability.Attribute, finish ai.FinishReason, usage ai.Usage, elapsed time.Duration, extra ...observability.Attribute) {
	span.SetAttributes(
		observability.String(observability.AttrLLMFinishReason, finish.String()),
		observability.Int(observability.AttrLLMUsageInput, usage.InputTokens),
		observability.Int(observability.AttrLLMUsageOutput, usage.OutputTokens),
		observability.Int(observability.AttrLLMUsageTotal, usage.TotalTokens),
	)
	observer.Counter(observability.MetricAdapterCalls).Add(ctx, 1, identity...)

	attrs := append(slices.Clone(identity),
		observability.String(observability.AttrLLMFinishReason, finish.String()),
		observability.Int(observability.AttrLLMUsageTotal, usage.TotalTokens),
		observability.Duration(observability.AttrDuration, elapsed),
	)
	attrs = append(attrs, extra...)
	observer.Info(ctx, "llm call completed", attrs...)

	span.SetStatus(observability.StatusOK, "")
	span.End()
}
