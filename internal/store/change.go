// ABOUTME: Row-level change notification types emitted by Store implementations
// ABOUTME: Defines Change payloads, subscription keys, and the Notifier interface

package store

// Change operations
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
)

// Table names carried on change events
const (
	TableAgentRuns      = "agent_runs"
	TableAgentResponses = "agent_responses"
)

// Change is a row-level change notification with the new row as payload.
// Exactly one of Run or Response is set, matching Table.
type Change struct {
	Op       string // OpInsert or OpUpdate
	Table    string
	Run      *AgentRun
	Response *AgentResponse
}

// Notifier receives change events as rows are written. Store implementations
// publish on a best-effort basis; a nil Notifier disables notification.
type Notifier interface {
	Publish(key string, change *Change)
}

// KeyRunCreated is the subscription key for newly created agent runs,
// observed by workers that fulfill them.
const KeyRunCreated = "runs"

// RunKey returns the subscription key scoping events to one agent run:
// status updates on the run row and inserts of its response chunks.
func RunKey(agentRunID string) string {
	return "run:" + agentRunID
}
