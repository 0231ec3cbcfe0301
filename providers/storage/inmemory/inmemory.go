// Package inmemory is a process-local storage backend, useful for tests and
// short-lived sessions. Sessions are created implicitly by the first stored
// message and live until DeleteSession or process exit.
//
//	store := inmemory.New()
//	a := agent.New(adapter, agent.WithStorage(store, "session-1"))
package inmemory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
	"github.com/leofalp/llmkit/providers/storage"
)

// Store keeps sessions and messages in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*storage.Session
	messages map[string][]storage.StoredMessage
	now      func() time.Time
}

var _ storage.SessionStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: map[string]*storage.Session{},
		messages: map[string][]storage.StoredMessage{},
		now:      time.Now,
	}
}

func (s *Store) StoreUserMessage(ctx context.Context, sessionID string, parts []ai.Part) (string, error) {
	return s.append(ctx, sessionID, ai.RoleUser, parts, nil)
}

func (s *Store) StoreAssistantMessage(ctx context.Context, sessionID string, parts []ai.Part, meta storage.MessageMetadata) (string, error) {
	return s.append(ctx, sessionID, ai.RoleAssistant, parts, &meta)
}

func (s *Store) StoreToolMessage(ctx context.Context, sessionID string, parts []ai.Part) (string, error) {
	return s.append(ctx, sessionID, ai.RoleTool, parts, nil)
}

func (s *Store) append(ctx context.Context, sessionID string, role ai.Role, parts []ai.Part, meta *storage.MessageMetadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := s.now()
	message := storage.StoredMessage{
		ID:        storage.NewID(),
		SessionID: sessionID,
		Role:      role,
		Parts:     slices.Clone(parts),
		Metadata:  meta,
		CreatedAt: now,
	}

	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = &storage.Session{ID: sessionID, CreatedAt: now}
		s.sessions[sessionID] = session
	}
	session.UpdatedAt = now
	s.messages[sessionID] = append(s.messages[sessionID], message)
	total := len(s.messages[sessionID])
	s.mu.Unlock()

	if span := observability.SpanFromContext(ctx); span != nil {
		span.SetAttributes(observability.Int("storage.session.messages", total))
	}
	return message.ID, nil
}

// GetMessages returns copies, so callers cannot mutate stored state.
func (s *Store) GetMessages(_ context.Context, sessionID string, limit int) ([]storage.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, storage.ErrSessionNotFound
	}
	tail := storage.Tail(s.messages[sessionID], limit)
	out := make([]storage.StoredMessage, len(tail))
	for i, message := range tail {
		message.Parts = slices.Clone(message.Parts)
		out[i] = message
	}
	return out, nil
}

// CreateSession stores session, assigning an id when it has none.
func (s *Store) CreateSession(_ context.Context, session storage.Session) (string, error) {
	if session.ID == "" {
		session.ID = storage.NewID()
	}
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &session
	return session.ID, nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*storage.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	out := *session
	return &out, nil
}

// ListSessions returns sessions by creation time, oldest first.
func (s *Store) ListSessions(_ context.Context) ([]storage.Session, error) {
	s.mu.RLock()
	out := make([]storage.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return storage.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}
