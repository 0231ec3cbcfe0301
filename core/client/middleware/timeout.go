package middleware

import (
	"context"
	"time"

	"github.com/leofalp/llmkit/core/client"
	"github.com/leofalp/llmkit/providers/ai"
)

// NewTimeoutMiddleware enforces a deadline on every call.
//
// For Generate the context is cancelled as soon as the call returns. For
// Stream the deadline covers the whole stream: the context is cancelled once
// iteration ends, whether by completion, error or the consumer breaking out,
// not when the first byte arrives. A shorter deadline already on the caller's
// context wins.
func NewTimeoutMiddleware(timeout time.Duration) client.MiddlewareConfig {
	return client.MiddlewareConfig{
		Generate: func(next client.GenerateFunc) client.GenerateFunc {
			return func(ctx context.Context, options ai.CallOptions) (*ai.GenerateResponse, error) {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return next(ctx, options)
			}
		},
		Stream: func(next client.StreamFunc) client.StreamFunc {
			return func(ctx context.Context, options ai.CallOptions) (*ai.StreamResponse, error) {
				ctx, cancel := context.WithTimeout(ctx, timeout)

				response, err := next(ctx, options)
				if err != nil {
					cancel()
					return nil, err
				}
				return client.WrapStream(response, time.Now(), func(client.StreamSummary) { cancel() }), nil
			}
		},
	}
}
