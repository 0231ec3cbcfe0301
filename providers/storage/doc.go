// Package storage defines the Sink the agent loop writes conversation
// messages to, and the optional SessionStore extension for session
// management. Parts are persisted in their tagged JSON form so that a stored
// conversation can be turned back into a prompt with ToPrompt.
//
// Bundled backends live in the sub-packages inmemory, filesystem and
// pgstorage.
package storage
