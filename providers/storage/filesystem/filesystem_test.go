package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/storage"
	"github.com/leofalp/llmkit/providers/storage/storagetest"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.SessionStore {
		store, err := New(t.TempDir())
		require.NoError(t, err)
		return store
	})
}

func TestStore_Layout(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "hi"}})
	require.NoError(t, err)
	_, err = store.StoreAssistantMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "hello"}}, storage.MessageMetadata{ModelID: "m"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "s1", messagesFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"role":"user"`)
	assert.Contains(t, lines[1], `"model_id":"m"`)

	_, err = os.Stat(filepath.Join(root, "s1", sessionFile))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "s1"))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp", "temporary files are renamed away")
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	first, err := New(root)
	require.NoError(t, err)
	_, err = first.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "remember me"}})
	require.NoError(t, err)

	second, err := New(root)
	require.NoError(t, err)
	messages, err := second.GetMessages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "remember me", ai.TextOf(messages[0].Parts))
}

func TestStore_RejectsPathLikeIDs(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := store.StoreUserMessage(context.Background(), id, []ai.Part{ai.TextPart{Text: "x"}})
		assert.Equal(t, ai.KindInvalidArgument, ai.KindOf(err), "id %q", id)
	}
}

func TestStore_CorruptLine(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.StoreUserMessage(ctx, "s1", []ai.Part{ai.TextPart{Text: "ok"}})
	require.NoError(t, err)

	f, err := os.OpenFile(filepath.Join(root, "s1", messagesFile), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = store.GetMessages(ctx, "s1", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
