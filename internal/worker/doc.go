// Package worker fulfills agent runs in-process for local development.
//
// The worker subscribes to run-created notifications, streams a chunked
// echo reply into agent_responses, and finalizes the run. It re-reads the
// run status between chunks, so a cancellation issued by the client lands
// between writes and stops the stream without touching the terminal state.
package worker
