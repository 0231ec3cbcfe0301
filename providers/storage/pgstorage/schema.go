package pgstorage

import (
	"context"
	"fmt"
	"strings"
)

const createSessionsSQL = `CREATE TABLE IF NOT EXISTS %s (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    metadata   JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// seq orders messages within a session; created_at can collide for
// messages written in the same microsecond.
const createMessagesSQL = `CREATE TABLE IF NOT EXISTS %s (
    id         TEXT PRIMARY KEY,
    seq        BIGSERIAL NOT NULL,
    session_id TEXT NOT NULL,
    role       TEXT NOT NULL,
    parts      JSONB NOT NULL,
    metadata   JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createSessionSeqIndexSQL = `CREATE INDEX IF NOT EXISTS %s ON %s (session_id, seq)`

// EnsureSchema creates both tables and the message index when missing. It
// is meant for development and tests; production schemas belong to
// migration tooling.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createSessionsSQL, s.sessions)); err != nil {
		return fmt.Errorf("pgstorage: create sessions table: %w", err)
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createMessagesSQL, s.messages)); err != nil {
		return fmt.Errorf("pgstorage: create messages table: %w", err)
	}
	index := indexName(s.messages, "session_seq")
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createSessionSeqIndexSQL, index, s.messages)); err != nil {
		return fmt.Errorf("pgstorage: create session_seq index: %w", err)
	}
	return nil
}

// indexName derives an index identifier from a possibly quoted table name.
func indexName(table, suffix string) string {
	if unquoted, ok := strings.CutPrefix(table, `"`); ok {
		return `"idx_` + strings.TrimSuffix(unquoted, `"`) + "_" + suffix + `"`
	}
	return "idx_" + table + "_" + suffix
}
