package pgstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/storage"
)

// defaultPrefix names the tables llmkit_sessions and llmkit_messages.
const defaultPrefix = "llmkit"

// Querier abstracts the pgx query methods used by Store. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements storage.SessionStore on PostgreSQL. Concurrency is left
// to the connection pool; writes touching both tables are single statements.
type Store struct {
	db       Querier
	sessions string
	messages string
	now      func() time.Time
}

var _ storage.SessionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTablePrefix replaces the "llmkit" prefix of both table names. The
// names are sanitized with pgx.Identifier since they are interpolated into
// queries.
func WithTablePrefix(prefix string) Option {
	return func(s *Store) {
		s.sessions = pgx.Identifier{prefix + "_sessions"}.Sanitize()
		s.messages = pgx.Identifier{prefix + "_messages"}.Sanitize()
	}
}

// New returns a Store issuing queries through db, typically a
// *pgxpool.Pool.
func New(db Querier, opts ...Option) *Store {
	s := &Store{
		db:       db,
		sessions: defaultPrefix + "_sessions",
		messages: defaultPrefix + "_messages",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
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

// append upserts the session and inserts the message in one statement.
func (s *Store) append(ctx context.Context, sessionID string, role ai.Role, parts []ai.Part, meta *storage.MessageMetadata) (string, error) {
	partsJSON, err := storage.MarshalParts(parts)
	if err != nil {
		return "", err
	}
	metaJSON, err := marshalNullableJSON(meta)
	if err != nil {
		return "", fmt.Errorf("pgstorage: encode metadata: %w", err)
	}

	id := storage.NewID()
	query := fmt.Sprintf(`WITH upsert AS (
			INSERT INTO %s (id, created_at, updated_at) VALUES ($2, $6, $6)
			ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		)
		INSERT INTO %s (id, session_id, role, parts, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, s.sessions, s.messages)

	_, err = s.db.Exec(ctx, query, id, sessionID, string(role), []byte(partsJSON), metaJSON, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("pgstorage: store %s message: %w", role, err)
	}
	return id, nil
}

// GetMessages returns messages in insertion order. A positive limit keeps
// the most recent ones.
func (s *Store) GetMessages(ctx context.Context, sessionID string, limit int) ([]storage.StoredMessage, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		query := fmt.Sprintf(`SELECT id, session_id, role, parts, metadata, created_at
			FROM (
				SELECT seq, id, session_id, role, parts, metadata, created_at
				FROM %s WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
			) sub ORDER BY sub.seq ASC`, s.messages)
		rows, err = s.db.Query(ctx, query, sessionID, limit)
	} else {
		query := fmt.Sprintf(`SELECT id, session_id, role, parts, metadata, created_at
			FROM %s WHERE session_id = $1 ORDER BY seq ASC`, s.messages)
		rows, err = s.db.Query(ctx, query, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstorage: get messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// CreateSession inserts session, or updates the title and metadata of an
// existing one with the same id.
func (s *Store) CreateSession(ctx context.Context, session storage.Session) (string, error) {
	if session.ID == "" {
		session.ID = storage.NewID()
	}
	now := s.now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	metaJSON, err := marshalNullableJSON(session.Metadata)
	if err != nil {
		return "", fmt.Errorf("pgstorage: encode session metadata: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, title, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at`,
		s.sessions)
	if _, err := s.db.Exec(ctx, query, session.ID, session.Title, metaJSON, session.CreatedAt, now); err != nil {
		return "", fmt.Errorf("pgstorage: create session: %w", err)
	}
	return session.ID, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	query := fmt.Sprintf(`SELECT id, title, metadata, created_at, updated_at FROM %s WHERE id = $1`, s.sessions)
	session, err := scanSession(s.db.QueryRow(ctx, query, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstorage: get session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions by creation time, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]storage.Session, error) {
	query := fmt.Sprintf(`SELECT id, title, metadata, created_at, updated_at FROM %s ORDER BY created_at ASC, id ASC`, s.sessions)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgstorage: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []storage.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstorage: scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstorage: iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes the session and its messages in one statement.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`WITH purge AS (
			DELETE FROM %s WHERE session_id = $1
		)
		DELETE FROM %s WHERE id = $1`, s.messages, s.sessions)
	tag, err := s.db.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("pgstorage: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrSessionNotFound
	}
	return nil
}

func (s *Store) ensureSession(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.sessions)
	var exists bool
	if err := s.db.QueryRow(ctx, query, sessionID).Scan(&exists); err != nil {
		return fmt.Errorf("pgstorage: lookup session: %w", err)
	}
	if !exists {
		return storage.ErrSessionNotFound
	}
	return nil
}

func scanMessages(rows pgx.Rows) ([]storage.StoredMessage, error) {
	messages := []storage.StoredMessage{}
	for rows.Next() {
		var (
			message   storage.StoredMessage
			role      string
			partsJSON []byte
			metaJSON  []byte
		)
		if err := rows.Scan(&message.ID, &message.SessionID, &role, &partsJSON, &metaJSON, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstorage: scan message: %w", err)
		}
		message.Role = ai.Role(role)

		parts, err := storage.UnmarshalParts(partsJSON)
		if err != nil {
			return nil, fmt.Errorf("pgstorage: message %s: %w", message.ID, err)
		}
		message.Parts = parts
		if len(metaJSON) > 0 {
			message.Metadata = &storage.MessageMetadata{}
			if err := json.Unmarshal(metaJSON, message.Metadata); err != nil {
				return nil, fmt.Errorf("pgstorage: message %s metadata: %w", message.ID, err)
			}
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstorage: iterate messages: %w", err)
	}
	return messages, nil
}

func scanSession(row pgx.Row) (*storage.Session, error) {
	var (
		session  storage.Session
		metaJSON []byte
	)
	if err := row.Scan(&session.ID, &session.Title, &metaJSON, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("session %s metadata: %w", session.ID, err)
		}
	}
	return &session, nil
}

// marshalNullableJSON maps nil pointers and empty maps to SQL NULL.
func marshalNullableJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case *storage.MessageMetadata:
		if v == nil {
			return nil, nil
		}
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(value)
}
