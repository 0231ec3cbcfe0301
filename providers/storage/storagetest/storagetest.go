// Package storagetest is a conformance suite for storage.SessionStore
// implementations.
package storagetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/storage"
)

// Run exercises store semantics against a fresh store per subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.SessionStore) {
	t.Helper()

	t.Run("messages keep order and content", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "weather in SF?"}})
		require.NoError(t, err)
		usage := ai.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}
		call := ai.ToolCallPart{ToolCallID: "c1", ToolName: "weather", Input: json.RawMessage(`{"city":"SF"}`)}
		meta := storage.AssistantMetadata("aitest", "scripted", usage, ai.FinishToolCalls, []ai.Part{call})
		_, err = store.StoreAssistantMessage(ctx, "s1", []ai.Part{call}, meta)
		require.NoError(t, err)
		_, err = store.StoreToolMessage(ctx, "s1", []ai.Part{ai.ToolResultPart{ToolCallID: "c1", ToolName: "weather", Output: ai.TextOutput("sunny")}})
		require.NoError(t, err)

		messages, err := store.GetMessages(ctx, "s1", 0)
		require.NoError(t, err)
		require.Len(t, messages, 3)

		roles := []ai.Role{messages[0].Role, messages[1].Role, messages[2].Role}
		assert.Equal(t, []ai.Role{ai.RoleUser, ai.RoleAssistant, ai.RoleTool}, roles)
		assert.Equal(t, "weather in SF?", ai.TextOf(messages[0].Parts))
		for _, m := range messages {
			assert.NotEmpty(t, m.ID)
			assert.Equal(t, "s1", m.SessionID)
			assert.False(t, m.CreatedAt.IsZero())
		}

		stored, ok := messages[1].Parts[0].(ai.ToolCallPart)
		require.True(t, ok, "got %T", messages[1].Parts[0])
		assert.JSONEq(t, `{"city":"SF"}`, string(stored.Input))
		require.NotNil(t, messages[1].Metadata)
		assert.Equal(t, []string{"c1"}, messages[1].Metadata.ToolCallIDs)
		require.NotNil(t, messages[1].Metadata.Usage)
		assert.Equal(t, 15, messages[1].Metadata.Usage.TotalTokens)

		result, ok := messages[2].Parts[0].(ai.ToolResultPart)
		require.True(t, ok, "got %T", messages[2].Parts[0])
		assert.Equal(t, "sunny", result.Output.Text())

		prompt := storage.ToPrompt(messages)
		require.NoError(t, prompt.Validate())
	})

	t.Run("limit returns the most recent messages", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, text := range []string{"one", "two", "three"} {
			_, err := store.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: text}})
			require.NoError(t, err)
		}

		messages, err := store.GetMessages(ctx, "s1", 2)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "two", ai.TextOf(messages[0].Parts))
		assert.Equal(t, "three", ai.TextOf(messages[1].Parts))
	})

	t.Run("unknown session", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.GetMessages(ctx, "missing", 0)
		assert.ErrorIs(t, err, storage.ErrSessionNotFound)
		_, err = store.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrSessionNotFound)
		assert.ErrorIs(t, store.DeleteSession(ctx, "missing"), storage.ErrSessionNotFound)
	})

	t.Run("session lifecycle", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.CreateSession(ctx, storage.Session{Title: "trip planning", Metadata: map[string]any{"user": "u1"}})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		session, err := store.GetSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "trip planning", session.Title)
		assert.Equal(t, "u1", session.Metadata["user"])

		_, err = store.StoreUserMessage(ctx, id, []ai.Part{ai.TextPart{Text: "hi"}})
		require.NoError(t, err)
		_, err = store.StoreUserMessage(ctx, "implicit", []ai.Part{ai.TextPart{Text: "hello"}})
		require.NoError(t, err)

		sessions, err := store.ListSessions(ctx)
		require.NoError(t, err)
		ids := make([]string, len(sessions))
		for i, s := range sessions {
			ids[i] = s.ID
		}
		assert.ElementsMatch(t, []string{id, "implicit"}, ids)

		require.NoError(t, store.DeleteSession(ctx, id))
		_, err = store.GetMessages(ctx, id, 0)
		assert.ErrorIs(t, err, storage.ErrSessionNotFound)
		messages, err := store.GetMessages(ctx, "implicit", 0)
		require.NoError(t, err)
		assert.Len(t, messages, 1)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for range 20 {
			wg.Go(func() {
				_, err := store.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "x"}})
				assert.NoError(t, err)
			})
		}
		wg.Wait()

		messages, err := store.GetMessages(ctx, "s1", 0)
		require.NoError(t, err)
		assert.Len(t, messages, 20)
	})
}
