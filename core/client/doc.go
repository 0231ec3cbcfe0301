// Package client wraps an [ai.Adapter] in a middleware chain. The wrapped
// [Client] is itself an adapter, so it can be handed to core/step or
// core/agent unchanged:
//
//	c, err := client.New(openaiAdapter,
//	    middleware.NewTimeoutMiddleware(30*time.Second),
//	    middleware.NewLoggingMiddleware(slog.Default(), middleware.LogLevelStandard),
//	)
//	a := agent.New(c, agent.WithTools(registry))
package client
