// Package filesystem stores sessions as plain files under a root directory:
//
//	<root>/<session-id>/session.json    session record, rewritten atomically
//	<root>/<session-id>/messages.jsonl  one stored message per line, append-only
//
// The files are meant to be readable with ordinary tools. A Store assumes it
// is the only writer of its root directory.
package filesystem

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/storage"
)

const (
	sessionFile  = "session.json"
	messagesFile = "messages.jsonl"
)

// maxLine bounds a single stored message; large tool outputs and inline
// files can be several megabytes.
const maxLine = 64 << 20

// Store is a file-backed storage.SessionStore. It is safe for concurrent use
// within one process.
type Store struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

var _ storage.SessionStore = (*Store)(nil)

// New returns a Store rooted at dir, creating the directory when needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: create root %q: %w", dir, err)
	}
	return &Store{root: dir, now: time.Now}, nil
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
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return "", err
	}

	now := s.now()
	message := storage.StoredMessage{
		ID:        storage.NewID(),
		SessionID: sessionID,
		Role:      role,
		Parts:     parts,
		Metadata:  meta,
		CreatedAt: now,
	}
	line, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("filesystem: encode message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := readSession(dir)
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("filesystem: create session dir: %w", err)
		}
		session = &storage.Session{ID: sessionID, CreatedAt: now}
	case err != nil:
		return "", err
	}

	f, err := os.OpenFile(filepath.Join(dir, messagesFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("filesystem: open messages: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("filesystem: append message: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("filesystem: close messages: %w", err)
	}

	session.UpdatedAt = now
	if err := writeSession(dir, session); err != nil {
		return "", err
	}
	return message.ID, nil
}

func (s *Store) GetMessages(ctx context.Context, sessionID string, limit int) ([]storage.StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := readSession(dir); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, messagesFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []storage.StoredMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filesystem: read messages: %w", err)
	}

	var messages []storage.StoredMessage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var message storage.StoredMessage
		if err := json.Unmarshal(line, &message); err != nil {
			return nil, fmt.Errorf("filesystem: %s line %d: %w", messagesFile, lineNumber, err)
		}
		messages = append(messages, message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("filesystem: scan messages: %w", err)
	}
	return storage.Tail(messages, limit), nil
}

// CreateSession writes session, assigning an id when it has none. An
// existing session with the same id keeps its messages.
func (s *Store) CreateSession(_ context.Context, session storage.Session) (string, error) {
	if session.ID == "" {
		session.ID = storage.NewID()
	}
	dir, err := s.sessionDir(session.ID)
	if err != nil {
		return "", err
	}
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("filesystem: create session dir: %w", err)
	}
	if err := writeSession(dir, &session); err != nil {
		return "", err
	}
	return session.ID, nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*storage.Session, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return readSession(dir)
}

// ListSessions returns sessions by creation time, oldest first. Directories
// without a session record are skipped.
func (s *Store) ListSessions(_ context.Context) ([]storage.Session, error) {
	s.mu.Lock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("filesystem: list sessions: %w", err)
	}
	sessions := make([]storage.Session, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		session, err := readSession(filepath.Join(s.root, entry.Name()))
		if errors.Is(err, storage.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	s.mu.Unlock()

	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := readSession(dir); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("filesystem: delete session: %w", err)
	}
	return nil
}

// sessionDir maps a session id to its directory. Ids that are not a single
// path element are rejected.
func (s *Store) sessionDir(sessionID string) (string, error) {
	if sessionID == "" || sessionID == "." || sessionID == ".." ||
		strings.ContainsAny(sessionID, `/\`) || slices.Contains([]byte(sessionID), 0) {
		return "", ai.NewError(ai.KindInvalidArgument, "filesystem: invalid session id %q", sessionID)
	}
	return filepath.Join(s.root, sessionID), nil
}

func readSession(dir string) (*storage.Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filesystem: read session: %w", err)
	}
	var session storage.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("filesystem: decode %s: %w", filepath.Join(dir, sessionFile), err)
	}
	return &session, nil
}

// writeSession replaces the session record through a rename, so readers
// never observe a partial file.
func writeSession(dir string, session *storage.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("filesystem: encode session: %w", err)
	}
	tmp, err := os.CreateTemp(dir, sessionFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("filesystem: write session: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("filesystem: write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("filesystem: write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, sessionFile)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("filesystem: write session: %w", err)
	}
	return nil
}
