package client

import (
	"context"

	"github.com/leofalp/llmkit/providers/ai"
)

// GenerateFunc performs one non-streaming model call. It is the unit
// threaded through the generate middleware chain.
type GenerateFunc func(ctx context.Context, options ai.CallOptions) (*ai.GenerateResponse, error)

// StreamFunc opens one streaming model call. It is the unit threaded through
// the stream middleware chain.
type StreamFunc func(ctx context.Context, options ai.CallOptions) (*ai.StreamResponse, error)

// Middleware wraps the next GenerateFunc in the chain.
type Middleware func(next GenerateFunc) GenerateFunc

// StreamMiddleware wraps the next StreamFunc in the chain. Implementations
// that observe the parts must wrap the returned PartStream rather than drain
// it.
type StreamMiddleware func(next StreamFunc) StreamFunc

// MiddlewareConfig pairs a generate middleware with its streaming
// counterpart. Generate is required. A nil Stream means streaming calls
// bypass this entry.
type MiddlewareConfig struct {
	Generate Middleware
	Stream   StreamMiddleware
}

// buildGenerateChain applies middlewares in reverse so that middlewares[0]
// is the outermost wrapper.
func buildGenerateChain(adapter ai.Adapter, middlewares []MiddlewareConfig) GenerateFunc {
	chain := GenerateFunc(adapter.Generate)
	for i := len(middlewares) - 1; i >= 0; i-- {
		chain = middlewares[i].Generate(chain)
	}
	return chain
}

func buildStreamChain(adapter ai.Adapter, middlewares []MiddlewareConfig) StreamFunc {
	chain := StreamFunc(adapter.Stream)
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i].Stream != nil {
			chain = middlewares[i].Stream(chain)
		}
	}
	return chain
}
