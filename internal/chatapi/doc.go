// Package chatapi is the data-access layer between chat state and the store.
//
// # Overview
//
// Client exposes one method per remote operation: messages, agent runs,
// threads, and sandbox files. Methods are fail-fast with no retries; store
// failures are mapped onto APIError with HTTP-like status codes (401 for
// permission denied, 404 for not found, 500 otherwise).
//
// # Agent Runs
//
// StartAgent persists a run row with status running; creating the row is
// the signal an external worker observes and fulfills. Defaults applied
// when the caller supplies no override:
//
//	model:                  claude-3-5-sonnet-20241022
//	enable_thinking:        false
//	reasoning_effort:       low
//	stream:                 true
//	enable_context_manager: false
//
// # Streaming
//
// StreamAgent opens a per-run subscription and dispatches response chunks
// and terminal status transitions to StreamCallbacks. The stream closes on
// the first terminal event or on explicit unsubscribe; OnClose fires
// exactly once either way, and the returned unsubscribe func is idempotent.
//
// # Multi-Step Writes
//
// Uploads and deletes are small sagas with explicit per-step failure
// policies. A thread delete cascades messages, then runs, then the thread
// row; only a failure on the row itself surfaces to the caller.
package chatapi
