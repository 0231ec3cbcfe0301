// Package pgstorage persists agent sessions in PostgreSQL through pgx/v5.
//
// Two tables are used: <prefix>_sessions holds one row per session and
// <prefix>_messages one row per stored message, with content parts and
// metadata as JSONB. Message order within a session follows a BIGSERIAL
// column rather than timestamps.
//
//	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	store := pgstorage.New(pool)
//	if err := store.EnsureSchema(ctx); err != nil { ... }
//	a := agent.New(adapter, agent.WithStorage(store, sessionID))
package pgstorage
