package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/leofalp/llmkit/core/client"
	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
)

// LogLevel controls how much detail the logging middleware emits per call.
type LogLevel int

const (
	// LogLevelMinimal logs duration and token counts. Add provider and model
	// to the logger with slog.Logger.With.
	LogLevelMinimal LogLevel = iota

	// LogLevelStandard adds message and tool counts and the finish reason.
	LogLevelStandard

	// LogLevelVerbose adds the last prompt message and the response text,
	// truncated to 500 characters.
	//
	// Prompts and responses may contain personal data. Do not use this level
	// in production.
	LogLevelVerbose
)

const truncateLen = 500

// NewLoggingMiddleware logs every call before it is sent and after it
// completes. For streams the completion entry is written when iteration
// ends. logger must not be nil.
func NewLoggingMiddleware(logger *slog.Logger, level LogLevel) client.MiddlewareConfig {
	return client.MiddlewareConfig{
		Generate: func(next client.GenerateFunc) client.GenerateFunc {
			return func(ctx context.Context, options ai.CallOptions) (*ai.GenerateResponse, error) {
				logger.InfoContext(ctx, "llm generate", requestAttrs(options, level)...)

				start := time.Now()
				response, err := next(ctx, options)
				if err != nil {
					logger.ErrorContext(ctx, "llm generate failed", errorAttrs(err, time.Since(start))...)
					return nil, err
				}

				attrs := resultAttrs(response.FinishReason, response.Usage, time.Since(start), level)
				if level >= LogLevelStandard {
					attrs = append(attrs, slog.Int("tool_calls", len(ai.PartsOf[ai.ToolCallPart](response.Content))))
				}
				if level >= LogLevelVerbose {
					attrs = append(attrs, slog.String("response", utils.TruncateString(ai.TextOf(response.Content), truncateLen)))
				}
				logger.InfoContext(ctx, "llm generate completed", attrs...)
				return response, nil
			}
		},
		Stream: func(next client.StreamFunc) client.StreamFunc {
			return func(ctx context.Context, options ai.CallOptions) (*ai.StreamResponse, error) {
				logger.InfoContext(ctx, "llm stream", requestAttrs(options, level)...)

				start := time.Now()
				response, err := next(ctx, options)
				if err != nil {
					logger.ErrorContext(ctx, "llm stream failed", errorAttrs(err, time.Since(start))...)
					return nil, err
				}

				return client.WrapStream(response, start, func(summary client.StreamSummary) {
					switch {
					case summary.Err != nil && !summary.Finished:
						logger.ErrorContext(ctx, "llm stream failed", errorAttrs(summary.Err, summary.Duration)...)
					case summary.Abandoned:
						logger.InfoContext(ctx, "llm stream abandoned",
							slog.Int("parts", summary.Parts),
							slog.Duration("duration", summary.Duration),
						)
					default:
						attrs := resultAttrs(summary.FinishReason, summary.Usage, summary.Duration, level)
						if level >= LogLevelStandard {
							attrs = append(attrs,
								slog.Int("parts", summary.Parts),
								slog.Duration("first_part", summary.FirstPart),
							)
						}
						if level >= LogLevelVerbose {
							attrs = append(attrs, slog.String("response", utils.TruncateString(summary.Text, truncateLen)))
						}
						logger.InfoContext(ctx, "llm stream completed", attrs...)
					}
				}), nil
			}
		},
	}
}

func requestAttrs(options ai.CallOptions, level LogLevel) []any {
	var attrs []any
	if level >= LogLevelStandard {
		attrs = append(attrs,
			slog.Int("messages", len(options.Prompt)),
			slog.Int("tools", len(options.Tools)),
		)
	}
	if level >= LogLevelVerbose && len(options.Prompt) > 0 {
		last := options.Prompt[len(options.Prompt)-1]
		attrs = append(attrs,
			slog.String("last_message_role", string(last.Role)),
			slog.String("last_message", utils.TruncateString(ai.TextOf(last.Parts), truncateLen)),
		)
	}
	return attrs
}

func resultAttrs(finish ai.FinishReason, usage ai.Usage, elapsed time.Duration, level LogLevel) []any {
	attrs := []any{
		slog.Duration("duration", elapsed),
		slog.Int("input_tokens", usage.InputTokens),
		slog.Int("output_tokens", usage.OutputTokens),
		slog.Int("total_tokens", usage.TotalTokens),
	}
	if level >= LogLevelStandard {
		attrs = append(attrs, slog.String("finish_reason", finish.String()))
	}
	return attrs
}

func errorAttrs(err error, elapsed time.Duration) []any {
	return []any{
		slog.Duration("duration", elapsed),
		slog.String("error_kind", string(ai.KindOf(err))),
		slog.String("error", err.Error()),
	}
}
