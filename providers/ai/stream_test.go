package ai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helloParts() []StreamPart {
	return []StreamPart{
		TextStart("t"),
		TextDelta("t", "HEL"),
		TextDelta("t", "LO"),
		TextEnd("t"),
		FinishEvent(FinishStop, Usage{InputTokens: 4, OutputTokens: 2}, nil),
	}
}

func TestPartStream_CollectAndEach_Agree(t *testing.T) {
	stream := StreamFromParts(helloParts()...)

	collected, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, helloParts(), collected)

	var pushed []StreamPart
	err = StreamFromParts(helloParts()...).Each(func(p StreamPart) error {
		pushed = append(pushed, p)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, collected, pushed)
}

// A push producer converted to a pull stream yields the same parts and stops
// the producer when the consumer breaks early.
func TestStreamFromPush_PullConversion(t *testing.T) {
	produced := 0
	stream := StreamFromPush(context.Background(), func(ctx context.Context, emit func(StreamPart) error) error {
		for _, p := range helloParts() {
			produced++
			if err := emit(p); err != nil {
				return err
			}
		}
		return nil
	})

	var got []StreamPart
	for part, err := range stream.Iter() {
		require.NoError(t, err)
		got = append(got, part)
		if len(got) == 2 {
			break
		}
	}
	assert.Len(t, got, 2)
	assert.Equal(t, 2, produced)
}

func TestStreamFromPush_ProducerErrorIsYielded(t *testing.T) {
	boom := NewError(KindProviderTransient, "connection reset")
	stream := StreamFromPush(context.Background(), func(ctx context.Context, emit func(StreamPart) error) error {
		_ = emit(TextStart("t"))
		return boom
	})

	parts, err := stream.Collect()
	assert.Len(t, parts, 1)
	assert.ErrorIs(t, err, ErrProviderTransient)
}

func TestStreamFromGenerate_SatisfiesInvariants(t *testing.T) {
	resp := &GenerateResponse{
		Content: []Part{
			ReasoningPart{Text: "thinking", Signature: "sig"},
			TextPart{Text: "hello"},
			ToolCallPart{ToolCallID: "c1", ToolName: "get_weather", Input: json.RawMessage(`{"city":"SF"}`)},
		},
		FinishReason: FinishToolCalls,
		Usage:        Usage{InputTokens: 3, OutputTokens: 5},
		Response:     ResponseMetadata{ID: "r1", ModelID: "m", Timestamp: time.Unix(10, 0)},
	}

	parts, err := StreamFromGenerate(resp).Collect()
	require.NoError(t, err)
	require.NoError(t, CheckStreamInvariants(parts))
	assert.Equal(t, StreamPartFinish, parts[len(parts)-1].Type)
	assert.Equal(t, FinishToolCalls, parts[len(parts)-1].FinishReason)
	assert.Equal(t, StreamPartReasoningEnd, parts[4].Type)
	assert.Equal(t, "sig", parts[4].Signature)
}

func TestCheckStreamInvariants_Violations(t *testing.T) {
	tests := []struct {
		name  string
		parts []StreamPart
		kind  ErrorKind
	}{
		{"delta before start", []StreamPart{TextDelta("t", "x"), FinishEvent(FinishStop, Usage{}, nil)}, KindInvalidStreamPart},
		{"finish with open block", []StreamPart{TextStart("t"), FinishEvent(FinishStop, Usage{}, nil)}, KindInvalidStreamPart},
		{"reused id", []StreamPart{TextStart("t"), TextEnd("t"), TextStart("t"), TextEnd("t"), FinishEvent(FinishStop, Usage{}, nil)}, KindInvalidStreamPart},
		{"part after finish", []StreamPart{FinishEvent(FinishStop, Usage{}, nil), TextStart("t")}, KindInvalidStreamPart},
		{"no finish", []StreamPart{TextStart("t"), TextEnd("t")}, KindTruncatedStream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStreamInvariants(tt.parts)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}

	ok := append(helloParts(), RawEvent(json.RawMessage(`{"late":true}`)))
	assert.NoError(t, CheckStreamInvariants(ok))
}

func TestError_KindMatchingAndWrapping(t *testing.T) {
	err := &Error{Kind: KindRateLimited, Message: "slow down", Retryable: true, RetryAfter: 3 * time.Second, StatusCode: 429, Provider: "openai"}
	wrapped := errors.Join(errors.New("step 2"), err)

	assert.ErrorIs(t, wrapped, ErrRateLimited)
	assert.NotErrorIs(t, wrapped, ErrAuthFailed)
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, 3*time.Second, RetryAfter(wrapped))
	assert.Equal(t, KindRateLimited, KindOf(wrapped))
	assert.Contains(t, err.Error(), "openai: RateLimited (status 429): slow down")

	cancelled := NewCancelled(context.Canceled)
	assert.ErrorIs(t, cancelled, ErrCancelled)
	assert.ErrorIs(t, cancelled, context.Canceled)
	assert.Equal(t, KindCancelled, KindOf(context.DeadlineExceeded))
}

func TestUsage_AddAndValidate(t *testing.T) {
	total := Usage{InputTokens: 4, OutputTokens: 2}.Normalized().Add(Usage{InputTokens: 10, OutputTokens: 1, CachedInputTokens: 8}.Normalized())
	assert.Equal(t, Usage{InputTokens: 14, OutputTokens: 3, TotalTokens: 17, CachedInputTokens: 8}, total)
	assert.NoError(t, total.Validate())

	assert.Error(t, Usage{InputTokens: 1, CachedInputTokens: 2}.Validate())
	assert.Error(t, Usage{InputTokens: -1}.Validate())
	assert.Error(t, Usage{InputTokens: 5, OutputTokens: 5, TotalTokens: 3}.Validate())
}

func TestRegistry_ResolvesModelRefs(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Fake", func(modelID string) (Adapter, error) {
		return nil, NewError(KindUnsupportedModelVersion, "model %s", modelID)
	})

	_, err := reg.Adapter("fake:ft:model:1")
	assert.ErrorIs(t, err, ErrUnsupportedModelVersion)
	assert.Contains(t, err.Error(), "ft:model:1")

	_, err = reg.Adapter("missing:model")
	assert.ErrorIs(t, err, ErrNoSuchModel)

	_, err = reg.Adapter("no-colon")
	assert.ErrorIs(t, err, ErrNoSuchModel)

	assert.Equal(t, []string{"fake"}, reg.Names())
}

func TestCallOptions_Validate(t *testing.T) {
	base := CallOptions{Prompt: Prompt{UserText("hi")}, Tools: []ToolDefinition{{Name: "a", InputSchema: json.RawMessage(`{}`)}}}
	assert.NoError(t, base.Validate())

	bad := base
	bad.ToolChoice = SpecificTool("b")
	assert.ErrorIs(t, bad.Validate(), ErrInvalidArgument)

	zero := 0
	bad = base
	bad.MaxOutputTokens = &zero
	assert.ErrorIs(t, bad.Validate(), ErrInvalidArgument)

	bad = base
	bad.Prompt = nil
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPrompt)
}
