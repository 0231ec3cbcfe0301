package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/llmkit/providers/ai"
)

// ErrSessionNotFound is returned by reads on an unknown session.
var ErrSessionNotFound = errors.New("storage: session not found")

// Sink receives the messages of an agent run. Store methods return the id of
// the stored message. Implementations must be safe for concurrent use.
type Sink interface {
	StoreUserMessage(ctx context.Context, sessionID string, parts []ai.Part) (string, error)
	StoreAssistantMessage(ctx context.Context, sessionID string, parts []ai.Part, meta MessageMetadata) (string, error)
	StoreToolMessage(ctx context.Context, sessionID string, parts []ai.Part) (string, error)
	// GetMessages returns the most recent limit messages in chronological
	// order; limit <= 0 returns all of them.
	GetMessages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error)
}

// SessionStore is implemented by sinks that also manage session records.
// Storing a message for a session that was never created creates it.
type SessionStore interface {
	Sink
	CreateSession(ctx context.Context, session Session) (string, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Session groups the messages of one conversation.
type Session struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MessageMetadata describes an assistant message.
type MessageMetadata struct {
	ModelID      string           `json:"model_id,omitempty"`
	Provider     string           `json:"provider,omitempty"`
	Usage        *ai.Usage        `json:"usage,omitempty"`
	FinishReason *ai.FinishReason `json:"finish_reason,omitempty"`
	ToolCallIDs  []string         `json:"tool_call_ids,omitempty"`
	Custom       map[string]any   `json:"custom,omitempty"`
}

// StoredMessage is a message as persisted by a Sink.
type StoredMessage struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Role      ai.Role          `json:"role"`
	Parts     []ai.Part        `json:"-"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type storedMessageJSON struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Role      ai.Role          `json:"role"`
	Parts     json.RawMessage  `json:"parts"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func (m StoredMessage) MarshalJSON() ([]byte, error) {
	parts, err := MarshalParts(m.Parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(storedMessageJSON{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      m.Role,
		Parts:     parts,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	})
}

func (m *StoredMessage) UnmarshalJSON(data []byte) error {
	var raw storedMessageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parts, err := UnmarshalParts(raw.Parts)
	if err != nil {
		return err
	}
	*m = StoredMessage{
		ID:        raw.ID,
		SessionID: raw.SessionID,
		Role:      raw.Role,
		Parts:     parts,
		Metadata:  raw.Metadata,
		CreatedAt: raw.CreatedAt,
	}
	return nil
}

// MarshalParts encodes parts as a JSON array of tagged parts. A nil slice
// encodes as an empty array.
func MarshalParts(parts []ai.Part) (json.RawMessage, error) {
	if parts == nil {
		parts = []ai.Part{}
	}
	out, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("storage: encode parts: %w", err)
	}
	return out, nil
}

// UnmarshalParts decodes what MarshalParts produced.
func UnmarshalParts(data json.RawMessage) ([]ai.Part, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	parts, err := ai.UnmarshalParts(data)
	if err != nil {
		return nil, fmt.Errorf("storage: decode parts: %w", err)
	}
	return parts, nil
}

// NewID returns a time-ordered identifier (UUIDv7) for sessions and messages.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ToPrompt rebuilds a prompt from stored messages, in the given order.
func ToPrompt(messages []StoredMessage) ai.Prompt {
	prompt := make(ai.Prompt, 0, len(messages))
	for _, m := range messages {
		prompt = append(prompt, ai.Message{Role: m.Role, Parts: m.Parts})
	}
	return prompt
}

// Tail returns the last limit elements of messages; limit <= 0 keeps all.
// Backends share it to implement GetMessages.
func Tail(messages []StoredMessage, limit int) []StoredMessage {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

// AssistantMetadata builds the metadata recorded with an assistant message.
func AssistantMetadata(provider, modelID string, usage ai.Usage, finish ai.FinishReason, parts []ai.Part) MessageMetadata {
	var ids []string
	for _, call := range ai.PartsOf[ai.ToolCallPart](parts) {
		ids = append(ids, call.ToolCallID)
	}
	return MessageMetadata{
		ModelID:      modelID,
		Provider:     provider,
		Usage:        &usage,
		FinishReason: &finish,
		ToolCallIDs:  ids,
	}
}
