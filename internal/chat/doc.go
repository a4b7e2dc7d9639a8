// Package chat coordinates conversation state for one mounted chat view.
//
// Coordinator owns the authoritative in-memory message list, thread list,
// and active-run identifier. Sends are optimistic: the user message appears
// immediately under a temporary tag, is confirmed in place once the store
// acknowledges it, and is removed entirely if persistence fails. Streamed
// assistant content is appended as it arrives; stream errors are surfaced
// inline as assistant messages with an "Error: " prefix.
//
// All state is guarded by a single mutex; accessors return snapshots.
package chat
