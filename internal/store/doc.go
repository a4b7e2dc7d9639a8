// Package store provides persistent storage for chat data using SQLite.
//
// # Architecture
//
// The package is interface-driven:
//
//   - Store: threads, messages, agent runs, agent responses, sandbox file metadata
//   - BlobStore: sandbox file payloads, keyed by "{sandbox_id}/{path}"
//   - Notifier: row-change notifications consumed by the realtime feed
//
// SQLiteStore implements Store; LocalBlobStore implements BlobStore on the
// local filesystem. NewMockStore provides an in-memory Store for tests with
// per-operation failure injection.
//
// # Data Models
//
//   - Thread: a conversation, listed most recently updated first
//   - Message: user/assistant/system content, ordered ascending by creation time
//   - AgentRun: one inference request with its configuration and status
//   - AgentResponse: a streamed response chunk belonging to a run
//   - SandboxFile: file metadata keyed by (sandbox_id, file_path)
//
// # Change Notifications
//
// Writes that matter to live subscribers publish a Change through the
// configured Notifier:
//
//   - InsertAgentRun publishes to KeyRunCreated
//   - UpdateAgentRunStatus and InsertAgentResponse publish to RunKey(id)
//
// Run statuses running/completed/error/cancelled; the latter three are
// terminal and immutable. Updating an already-terminal run is a silent
// no-op and publishes nothing.
//
// # SQLite Configuration
//
// The store uses WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC 3339 strings with nanosecond precision so
// lexicographic ordering matches time ordering.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrPermissionDenied: the caller may not access the entity
//
// All methods accept context.Context for cancellation support.
package store
