package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/providers/ai"
)

// writeSSE writes each payload as a data event and flushes it.
func writeSSE(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, payload := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func writeSSEDone(w http.ResponseWriter) {
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func streamAdapter(t *testing.T, payloads ...string) *Adapter {
	t.Helper()
	return newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeRequest(t, r)
		assert.Equal(t, true, body["stream"])
		assert.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		writeSSE(w, payloads...)
		writeSSEDone(w)
	})
}

func collect(t *testing.T, a *Adapter, options ai.CallOptions) ([]ai.StreamPart, error) {
	t.Helper()
	if options.Prompt == nil {
		options.Prompt = ai.Prompt{ai.UserText("hi")}
	}
	response, err := a.Stream(context.Background(), options)
	require.NoError(t, err)
	return response.Stream.Collect()
}

func types(parts []ai.StreamPart) []ai.StreamPartType {
	out := make([]ai.StreamPartType, len(parts))
	for i, p := range parts {
		out[i] = p.Type
	}
	return out
}

func TestStream_TextAndReasoning(t *testing.T) {
	a := streamAdapter(t,
		`{"id":"c1","created":1700000000,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","reasoning":"think"}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"c1","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
	)

	parts, err := collect(t, a, ai.CallOptions{TopK: new(int)})
	require.NoError(t, err)
	require.NoError(t, ai.CheckStreamInvariants(parts))

	assert.Equal(t, []ai.StreamPartType{
		ai.StreamPartStreamStart,
		ai.StreamPartResponseMetadata,
		ai.StreamPartReasoningStart,
		ai.StreamPartReasoningDelta,
		ai.StreamPartTextStart,
		ai.StreamPartTextDelta,
		ai.StreamPartTextDelta,
		ai.StreamPartReasoningEnd,
		ai.StreamPartTextEnd,
		ai.StreamPartFinish,
	}, types(parts))

	require.Len(t, parts[0].Warnings, 1, "top_k warning travels on stream-start")
	assert.Equal(t, "c1", parts[1].Response.ID)
	assert.Equal(t, "gpt-4o-mini", parts[1].Response.ModelID)
	assert.Equal(t, textBlockID, parts[4].ID)
	assert.Equal(t, "Hel", parts[5].Delta)

	finish := parts[len(parts)-1]
	assert.Equal(t, ai.FinishStop.WithRaw("stop"), finish.FinishReason)
	assert.Equal(t, ai.Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}, finish.Usage)
}

func TestStream_ToolCallsByIndex(t *testing.T) {
	a := streamAdapter(t,
		`{"id":"c2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_w","function":{"name":"weather","arguments":""}}]}}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_t","function":{"name":"time","arguments":"{\"tz\":"}}]}}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"SF\"}"}}]}}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"arguments":"\"UTC\"}"}}]}}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	)

	parts, err := collect(t, a, ai.CallOptions{})
	require.NoError(t, err)
	require.NoError(t, ai.CheckStreamInvariants(parts))

	inputs := map[string]string{}
	names := map[string]string{}
	var ends []string
	for _, p := range parts {
		switch p.Type {
		case ai.StreamPartToolInputStart:
			names[p.ID] = p.ToolName
		case ai.StreamPartToolInputDelta:
			inputs[p.ID] += p.Delta
		case ai.StreamPartToolInputEnd:
			ends = append(ends, p.ID)
		case ai.StreamPartToolCall:
			t.Fatalf("whole tool call emitted for %s", p.ID)
		}
	}

	assert.Equal(t, map[string]string{"call_w": "weather", "call_t": "time"}, names)
	assert.JSONEq(t, `{"city":"SF"}`, inputs["call_w"])
	assert.JSONEq(t, `{"tz":"UTC"}`, inputs["call_t"])
	assert.Equal(t, []string{"call_w", "call_t"}, ends, "tool blocks close in index order")
	assert.True(t, parts[len(parts)-1].FinishReason.Is(ai.FinishKindToolCalls))
}

func TestStream_ToolNameAfterArguments(t *testing.T) {
	a := streamAdapter(t,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{}"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"name":"ping"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	)

	parts, err := collect(t, a, ai.CallOptions{})
	require.NoError(t, err)
	require.NoError(t, ai.CheckStreamInvariants(parts))

	assert.Equal(t, []ai.StreamPartType{
		ai.StreamPartStreamStart,
		ai.StreamPartToolInputStart,
		ai.StreamPartToolInputDelta,
		ai.StreamPartToolInputEnd,
		ai.StreamPartFinish,
	}, types(parts))
	assert.Equal(t, "call_0", parts[1].ID)
	assert.Equal(t, "{}", parts[2].Delta)
}

func TestStream_Refusal(t *testing.T) {
	a := streamAdapter(t,
		`{"choices":[{"index":0,"delta":{"refusal":"No."}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	)

	parts, err := collect(t, a, ai.CallOptions{})
	require.NoError(t, err)
	finish := parts[len(parts)-1]
	assert.Equal(t, true, finish.ProviderMetadata["openai"]["refusal"])
	assert.Equal(t, "No.", parts[2].Delta)
}

func TestStream_TruncatedWithoutFinishReason(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w, `{"choices":[{"index":0,"delta":{"content":"partial"}}]}`)
	})

	parts, err := collect(t, a, ai.CallOptions{})
	require.Error(t, err)
	assert.Equal(t, ai.KindTruncatedStream, ai.KindOf(err))
	assert.NotEmpty(t, parts, "parts before the failure are kept")
}

func TestStream_ErrorChunk(t *testing.T) {
	a := streamAdapter(t,
		`{"choices":[{"index":0,"delta":{"content":"x"}}]}`,
		`{"error":{"message":"overloaded"}}`,
	)

	parts, err := collect(t, a, ai.CallOptions{})
	require.NoError(t, err)
	last := parts[len(parts)-1]
	require.Equal(t, ai.StreamPartError, last.Type)
	assert.Contains(t, last.Err.Error(), "overloaded")
}

func TestStream_MalformedChunk(t *testing.T) {
	a := streamAdapter(t, `{"choices":[`)

	_, err := collect(t, a, ai.CallOptions{})
	assert.Equal(t, ai.KindSchemaViolation, ai.KindOf(err))
}

func TestStream_HTTPErrorBeforeStreaming(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	})

	_, err := a.Stream(context.Background(), ai.CallOptions{Prompt: ai.Prompt{ai.UserText("hi")}})
	require.Error(t, err)
	assert.Equal(t, ai.KindAuthFailed, ai.KindOf(err))
}

func TestStream_CancelledMidStream(t *testing.T) {
	release := make(chan struct{})
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"choices":[{"index":0,"delta":{"content":"first"}}]}`)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	response, err := a.Stream(ctx, ai.CallOptions{Prompt: ai.Prompt{ai.UserText("hi")}})
	require.NoError(t, err)

	var texts []string
	for part, err := range response.Stream.Iter() {
		if err != nil {
			assert.ErrorIs(t, err, ai.ErrCancelled)
			break
		}
		if part.Type == ai.StreamPartTextDelta {
			texts = append(texts, part.Delta)
			cancel()
		}
	}
	assert.Equal(t, []string{"first"}, texts)
}

func TestStream_EarlyBreakClosesBody(t *testing.T) {
	a := streamAdapter(t,
		`{"choices":[{"index":0,"delta":{"content":"a"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"b"}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	)

	response, err := a.Stream(context.Background(), ai.CallOptions{Prompt: ai.Prompt{ai.UserText("hi")}})
	require.NoError(t, err)

	var seen []string
	for part, err := range response.Stream.Iter() {
		require.NoError(t, err)
		seen = append(seen, string(part.Type))
		if part.Type == ai.StreamPartTextStart {
			break
		}
	}
	assert.Equal(t, "stream-start,text-start", strings.Join(seen, ","))
}
