// Package utils holds the low-level helpers shared by the provider adapters:
// JSON POST requests ([PostJSON], [PostStream]) whose failures are classified
// into the ai error taxonomy, a Server-Sent Events reader ([SSEReader]),
// Retry-After parsing, and a few small value helpers.
package utils
