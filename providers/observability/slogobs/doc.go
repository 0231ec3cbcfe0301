// Package slogobs implements observability.Provider with log/slog.
//
// Spans, counters and histograms are emitted as DEBUG records; counters and
// histograms additionally accumulate in memory so callers can print a
// summary with [Observer.Snapshot]. [Handler] renders compact, pretty or
// JSON lines and is usable on its own with slog.New.
package slogobs
