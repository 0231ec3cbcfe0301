package main

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/core/cost"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/ai/aitest"
	"github.com/leofalp/llmkit/providers/observability"
	"github.com/leofalp/llmkit/providers/storage"
	"github.com/leofalp/llmkit/providers/storage/inmemory"
)

type harness struct {
	app     *app
	adapter *aitest.Adapter
	out     *bytes.Buffer
	errOut  *bytes.Buffer
}

func newHarness(t *testing.T, input string, turns ...aitest.Turn) *harness {
	t.Helper()
	adapter := aitest.New(turns...)
	registry := ai.NewRegistry()
	registry.Register("aitest", func(string) (ai.Adapter, error) { return adapter, nil })

	cfg := DefaultConfig()
	cfg.Model = "aitest:scripted"
	require.NoError(t, cfg.Validate())

	h := &harness{adapter: adapter, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	h.app = &app{
		cfg:      cfg,
		registry: registry,
		observer: observability.Nop(),
		logger:   slog.New(slog.DiscardHandler),
		in:       bufio.NewReader(strings.NewReader(input)),
		out:      h.out,
		errOut:   h.errOut,
	}
	return h
}

func (h *harness) lastToolResult(t *testing.T, call int) ai.ToolResultPart {
	t.Helper()
	calls := h.adapter.Calls()
	require.Greater(t, len(calls), call)
	prompt := calls[call].Prompt
	last := prompt[len(prompt)-1]
	require.Equal(t, ai.RoleTool, last.Role)
	for _, part := range last.Parts {
		if result, ok := part.(ai.ToolResultPart); ok {
			return result
		}
	}
	t.Fatalf("no tool result in %v", last.Parts)
	return ai.ToolResultPart{}
}

func TestConverse_StreamsText(t *testing.T) {
	h := newHarness(t, "", aitest.TextTurn("Hel", "lo"))
	h.app.cfg.System = "Be brief."

	require.NoError(t, h.app.converse(context.Background(), "hi", nil, ""))

	assert.Equal(t, "Hello\n", h.out.String())
	calls := h.adapter.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Prompt, 2)
	assert.Equal(t, ai.RoleSystem, calls[0].Prompt[0].Role)
	assert.Equal(t, "hi", calls[0].Prompt[1].Text())
}

func TestConverse_NoStream(t *testing.T) {
	h := newHarness(t, "", aitest.TextTurn("Hello"))
	h.app.cfg.Stream = false

	require.NoError(t, h.app.converse(context.Background(), "hi", nil, ""))

	assert.Equal(t, "Hello\n", h.out.String())
}

func TestConverse_ApprovedToolCall(t *testing.T) {
	h := newHarness(t, "y\n",
		aitest.ToolCallTurn(aitest.Call("call-1", "calculator", `{"a":6,"b":7,"op":"mul"}`)),
		aitest.TextTurn("42"),
	)
	h.app.cfg.Tools.Calculator = true
	h.app.cfg.Tools.RequireApproval = []string{"calculator"}

	require.NoError(t, h.app.converse(context.Background(), "6 times 7?", nil, ""))

	assert.Contains(t, h.errOut.String(), `run calculator {"a":6,"b":7,"op":"mul"}? [y/N]`)
	assert.Contains(t, h.out.String(), "42")
	assert.Zero(t, h.adapter.Remaining())

	result := h.lastToolResult(t, 1)
	assert.Equal(t, "call-1", result.ToolCallID)
	assert.False(t, result.Output.IsError())
	assert.JSONEq(t, `{"result":42}`, string(result.Output.Value))
}

func TestConverse_DeniedToolCall(t *testing.T) {
	h := newHarness(t, "not now\n",
		aitest.ToolCallTurn(aitest.Call("call-1", "calculator", `{"a":1,"b":1,"op":"add"}`)),
		aitest.TextTurn("ok"),
	)
	h.app.cfg.Tools.Calculator = true
	h.app.cfg.Tools.RequireApproval = []string{"calculator"}

	require.NoError(t, h.app.converse(context.Background(), "1+1?", nil, ""))

	result := h.lastToolResult(t, 1)
	require.True(t, result.Output.IsError())
	payload, ok := result.Output.ErrorPayload()
	require.True(t, ok)
	assert.Equal(t, ai.KindExecutionDenied, payload.Code)
	assert.Contains(t, payload.Message, "not now")
}

func TestConverse_AutoApprove(t *testing.T) {
	h := newHarness(t, "",
		aitest.ToolCallTurn(aitest.Call("call-1", "calculator", `{"a":2,"b":2,"op":"add"}`)),
		aitest.TextTurn("4"),
	)
	h.app.autoApprove = true
	h.app.cfg.Tools.Calculator = true
	h.app.cfg.Tools.RequireApproval = []string{"calculator"}

	require.NoError(t, h.app.converse(context.Background(), "2+2?", nil, ""))

	assert.Contains(t, h.errOut.String(), "approved calculator (--yes)")
	assert.False(t, h.lastToolResult(t, 1).Output.IsError())
}

func TestConverse_SessionHistory(t *testing.T) {
	h := newHarness(t, "", aitest.TextTurn("Paris"), aitest.TextTurn("Rome"))
	store := inmemory.New()
	ctx := context.Background()

	require.NoError(t, h.app.converse(ctx, "capital of France?", store, "s1"))
	require.NoError(t, h.app.converse(ctx, "and Italy?", store, "s1"))

	calls := h.adapter.Calls()
	require.Len(t, calls, 2)
	second := calls[1].Prompt
	require.Len(t, second, 3)
	assert.Equal(t, "capital of France?", second[0].Text())
	assert.Equal(t, "Paris", second[1].Text())
	assert.Equal(t, "and Italy?", second[2].Text())

	var listed bytes.Buffer
	require.NoError(t, listSessions(ctx, store, &listed))
	assert.True(t, strings.HasPrefix(listed.String(), "s1\t"))
}

func TestHistory_StartsAtUserMessage(t *testing.T) {
	h := newHarness(t, "")
	store := inmemory.New()
	ctx := context.Background()

	_, err := store.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "first"}})
	require.NoError(t, err)
	_, err = store.StoreAssistantMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "answer"}}, storage.MessageMetadata{})
	require.NoError(t, err)
	_, err = store.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "second"}})
	require.NoError(t, err)

	h.app.cfg.Storage.History = 2
	prompt, err := h.app.history(ctx, store, "s1")
	require.NoError(t, err)
	require.Len(t, prompt, 1)
	assert.Equal(t, "second", prompt[0].Text())

	prompt, err = h.app.history(ctx, store, "unknown")
	require.NoError(t, err)
	assert.Empty(t, prompt)
}

func TestConverse_CostSummary(t *testing.T) {
	h := newHarness(t, "", aitest.TextTurn("Hello"))
	h.app.cfg.Prices = cost.Table{"scripted": {Input: 1_000_000, Output: 1_000_000}}

	require.NoError(t, h.app.converse(context.Background(), "hi", nil, ""))

	assert.Contains(t, h.errOut.String(), "1 steps, 15 tokens, $15.000000")
}

func TestConverse_UnknownProvider(t *testing.T) {
	h := newHarness(t, "")
	h.app.cfg.Model = "nowhere:model"

	err := h.app.converse(context.Background(), "hi", nil, "")
	require.Error(t, err)
	assert.Equal(t, ai.KindNoSuchModel, ai.KindOf(err))
}
