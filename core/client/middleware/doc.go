// Package middleware provides ready-made [client.MiddlewareConfig] values.
//
//   - [NewTimeoutMiddleware] bounds each call, streams included, with a
//     deadline.
//   - [NewLoggingMiddleware] writes slog entries before and after each call
//     at one of three verbosity levels.
//
// Entries passed to [client.New] run outermost first:
//
//	c, err := client.New(adapter,
//	    middleware.NewTimeoutMiddleware(30*time.Second),
//	    middleware.NewLoggingMiddleware(slog.Default(), middleware.LogLevelStandard),
//	)
//
// Here a call travels Timeout, then Logging, then the adapter. Logging
// therefore reports a deadline error raised by the adapter, not one raised
// around it.
package middleware
