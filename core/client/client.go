package client

import (
	"context"
	"fmt"

	"github.com/leofalp/llmkit/providers/ai"
)

// Client is an ai.Adapter whose calls pass through a middleware chain before
// reaching the wrapped adapter. Identity and capabilities are those of the
// wrapped adapter.
type Client struct {
	adapter  ai.Adapter
	generate GenerateFunc
	stream   StreamFunc
}

var _ ai.Adapter = (*Client)(nil)

// New wraps adapter. Middlewares run outermost first: the first entry sees
// the call first and the result last.
func New(adapter ai.Adapter, middlewares ...MiddlewareConfig) (*Client, error) {
	if adapter == nil {
		return nil, ai.NewError(ai.KindInvalidArgument, "client: adapter is nil")
	}
	for i, middleware := range middlewares {
		if middleware.Generate == nil {
			return nil, ai.NewError(ai.KindInvalidArgument, "client: middleware %d has no Generate function", i)
		}
	}
	return &Client{
		adapter:  adapter,
		generate: buildGenerateChain(adapter, middlewares),
		stream:   buildStreamChain(adapter, middlewares),
	}, nil
}

// Must is New that panics on error, for package-level wiring.
func Must(adapter ai.Adapter, middlewares ...MiddlewareConfig) *Client {
	c, err := New(adapter, middlewares...)
	if err != nil {
		panic(fmt.Sprintf("client: %v", err))
	}
	return c
}

// Unwrap returns the adapter at the end of the chain.
func (c *Client) Unwrap() ai.Adapter { return c.adapter }

func (c *Client) Provider() string              { return c.adapter.Provider() }
func (c *Client) ModelID() string               { return c.adapter.ModelID() }
func (c *Client) Capabilities() ai.Capabilities { return c.adapter.Capabilities() }

func (c *Client) Generate(ctx context.Context, options ai.CallOptions) (*ai.GenerateResponse, error) {
	return c.generate(ctx, options)
}

func (c *Client) Stream(ctx context.Context, options ai.CallOptions) (*ai.StreamResponse, error) {
	return c.stream(ctx, options)
}
