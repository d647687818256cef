// Package store provides persistent storage for conversations and messages
// using SQLite.
//
// # Architecture
//
// The package exposes a single Store interface implemented by SQLiteStore.
// Conversations are owned, uniquely named per owner, and optionally pinned;
// messages belong to exactly one conversation and keep strict insertion
// order via a monotonic sequence column.
//
// # Data Models
//
//   - Conversation: owned, named message log with pin order and timestamps
//   - Message: one log entry; role + content + creation/mutation metadata
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Conversation deletion cascades to messages at the schema level.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested conversation or message does not exist
//   - ErrConflict: conversation name already taken for this owner
//
// All methods accept context.Context for cancellation support. Timestamps
// are stored as RFC3339 UTC text.
package store
