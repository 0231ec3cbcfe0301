package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/storage"
	"github.com/leofalp/llmkit/providers/storage/storagetest"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.SessionStore {
		return New()
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()
	_, err := store.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "original"}})
	require.NoError(t, err)

	messages, err := store.GetMessages(ctx, "s1", 0)
	require.NoError(t, err)
	messages[0].Parts[0] = ai.TextPart{Text: "changed"}
	messages[0].Role = ai.RoleSystem

	again, err := store.GetMessages(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, ai.RoleUser, again[0].Role)
	assert.Equal(t, "original", ai.TextOf(again[0].Parts))
}

func TestStore_CancelledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "hi"}})
	assert.ErrorIs(t, err, context.Canceled)
}
