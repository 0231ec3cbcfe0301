package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/core/client"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/ai/aitest"
)

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.Lines(buf.String()) {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		out = append(out, record)
	}
	return out
}

func logged(level LogLevel, turns ...aitest.Turn) (*client.Client, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return client.Must(aitest.New(turns...), NewLoggingMiddleware(logger, level)), &buf
}

func TestLogging_GenerateMinimal(t *testing.T) {
	c, buf := logged(LogLevelMinimal, aitest.TextTurn("hi"))

	_, err := c.Generate(context.Background(), options())
	require.NoError(t, err)

	logs := records(t, buf)
	require.Len(t, logs, 2)
	assert.Equal(t, "llm generate", logs[0]["msg"])
	assert.NotContains(t, logs[0], "messages")

	assert.Equal(t, "llm generate completed", logs[1]["msg"])
	assert.Equal(t, float64(15), logs[1]["total_tokens"])
	assert.NotContains(t, logs[1], "finish_reason")
}

func TestLogging_GenerateVerbose(t *testing.T) {
	c, buf := logged(LogLevelVerbose, aitest.TextTurn("secret answer"))

	_, err := c.Generate(context.Background(), options())
	require.NoError(t, err)

	logs := records(t, buf)
	require.Len(t, logs, 2)
	assert.Equal(t, float64(1), logs[0]["messages"])
	assert.Equal(t, "hello", logs[0]["last_message"])
	assert.Equal(t, "user", logs[0]["last_message_role"])
	assert.Equal(t, "stop", logs[1]["finish_reason"])
	assert.Equal(t, "secret answer", logs[1]["response"])
}

func TestLogging_GenerateError(t *testing.T) {
	c, buf := logged(LogLevelStandard, aitest.ErrorTurn(ai.NewError(ai.KindRateLimited, "slow down")))

	_, err := c.Generate(context.Background(), options())
	require.Error(t, err)

	logs := records(t, buf)
	require.Len(t, logs, 2)
	assert.Equal(t, "ERROR", logs[1]["level"])
	assert.Equal(t, string(ai.KindRateLimited), logs[1]["error_kind"])
}

func TestLogging_StreamCompleted(t *testing.T) {
	c, buf := logged(LogLevelStandard, aitest.TextTurn("a", "b"))

	response, err := c.Stream(context.Background(), options())
	require.NoError(t, err)
	assert.Len(t, records(t, buf), 1, "completion is logged when the stream ends")

	parts, err := response.Stream.Collect()
	require.NoError(t, err)

	logs := records(t, buf)
	require.Len(t, logs, 2)
	assert.Equal(t, "llm stream completed", logs[1]["msg"])
	assert.Equal(t, float64(len(parts)), logs[1]["parts"])
	assert.Equal(t, "stop", logs[1]["finish_reason"])
}

func TestLogging_StreamAbandoned(t *testing.T) {
	c, buf := logged(LogLevelStandard, aitest.TextTurn("a", "b"))

	response, err := c.Stream(context.Background(), options())
	require.NoError(t, err)
	for range response.Stream.Iter() {
		break
	}

	logs := records(t, buf)
	require.Len(t, logs, 2)
	assert.Equal(t, "llm stream abandoned", logs[1]["msg"])
}
