package slogobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/providers/observability"
)

func jsonLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record), line)
		out = append(out, record)
	}
	return out
}

func TestObserver_LogsAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	observer := New(WithFormat(FormatJSON), WithLevel(slog.LevelInfo), WithOutput(&buf))
	ctx := context.Background()

	observer.Debug(ctx, "hidden")
	observer.Info(ctx, "visible", observability.String(observability.AttrLLMModel, "gpt-4o"))
	observer.Error(ctx, "failed", observability.Error(errors.New("boom")))

	records := jsonLines(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, "visible", records[0]["msg"])
	assert.Equal(t, "INFO", records[0]["level"])
	assert.Equal(t, "gpt-4o", records[0]["llm.model"])
	assert.Equal(t, "boom", records[1]["error"])
}

func TestObserver_TraceLevel(t *testing.T) {
	var buf bytes.Buffer
	observer := New(WithFormat(FormatJSON), WithLevel(LevelTrace), WithOutput(&buf))

	observer.Trace(context.Background(), "fine grained")

	records := jsonLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "TRACE", records[0]["level"])
}

func TestObserver_SpansCarryParentAndDuration(t *testing.T) {
	var buf bytes.Buffer
	observer := New(WithFormat(FormatJSON), WithLevel(slog.LevelDebug), WithOutput(&buf))

	ctx, run := observer.StartSpan(context.Background(), observability.SpanAgentRun)
	assert.Equal(t, run, observability.SpanFromContext(ctx))

	_, step := observer.StartSpan(ctx, observability.SpanAgentStep, observability.Int(observability.AttrAgentStep, 1))
	step.SetAttributes(observability.String(observability.AttrLLMFinishReason, "stop"))
	step.End()
	step.End()
	run.SetStatus(observability.StatusError, "cancelled")
	run.End()

	records := jsonLines(t, &buf)
	require.Len(t, records, 4)

	stepEnd := records[2]
	assert.Equal(t, "span.end", stepEnd["event"])
	assert.Equal(t, float64(1), stepEnd["span.parent"])
	assert.Equal(t, "stop", stepEnd["llm.finish_reason"])
	assert.Contains(t, stepEnd, "duration")

	runEnd := records[3]
	assert.Equal(t, "WARN", runEnd["level"])
	assert.Equal(t, "cancelled", runEnd["status.description"])
}

func TestObserver_MetricsSnapshot(t *testing.T) {
	observer := New(WithOutput(&bytes.Buffer{}))
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			observer.Counter(observability.MetricToolCalls).Add(ctx, 2)
		})
	}
	wg.Wait()

	observer.Histogram(observability.MetricToolDuration).Record(ctx, 3)
	observer.Histogram(observability.MetricToolDuration).Record(ctx, 1)

	snapshot := observer.Snapshot()
	assert.Equal(t, int64(20), snapshot.Counters[observability.MetricToolCalls])
	assert.Equal(t, HistogramSummary{Count: 2, Sum: 4, Min: 1, Max: 3}, snapshot.Histograms[observability.MetricToolDuration])
	assert.Equal(t, []string{observability.MetricToolCalls}, snapshot.CounterNames())
}

func TestObserver_WithLoggerBypassesHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	observer := New(WithLogger(logger), WithFormat(FormatJSON))

	observer.Info(context.Background(), "through text handler")

	assert.Contains(t, buf.String(), "msg=\"through text handler\"")
	assert.Same(t, logger, observer.Logger())
}

func TestParseLevelAndFormat(t *testing.T) {
	level, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)

	assert.Equal(t, FormatPretty, ParseFormat(" PRETTY "))
	assert.Equal(t, FormatCompact, ParseFormat("xml"))
}

func TestEnvConfiguration(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogFormat, "json")

	assert.Equal(t, slog.LevelDebug, LevelFromEnv())
	assert.Equal(t, FormatJSON, FormatFromEnv())
}
