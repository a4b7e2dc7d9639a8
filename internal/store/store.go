// ABOUTME: Store interface and data types for agentchat persistence
// ABOUTME: Defines Thread, Message, AgentRun, SandboxFile and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrPermissionDenied is returned when the caller's credential does not
// authorize access to the requested rows
var ErrPermissionDenied = errors.New("permission denied")

// Message type constants
const (
	MessageTypeUser      = "user"
	MessageTypeAssistant = "assistant"
	MessageTypeSystem    = "system"
)

// Agent run status constants. Running is the only non-terminal status.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusError     = "error"
	RunStatusCancelled = "cancelled"
)

// Thread is a persisted conversation container grouping ordered messages.
type Thread struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is the unified message record rendered in a conversation.
// Content holds the role/content JSON envelope for LLM-consumable messages.
type Message struct {
	ID           string
	ThreadID     string
	Type         string // "user", "assistant", "system"
	IsLLMMessage bool
	Content      string
	Metadata     string // opaque JSON blob
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AgentRun is one asynchronous unit of agent work, tracked by status until
// it reaches a terminal state. Terminal states are immutable.
type AgentRun struct {
	ID                   string
	ThreadID             string
	ModelName            string
	EnableThinking       bool
	ReasoningEffort      string // "low", "medium", "high"
	Stream               bool
	AgentID              string // optional agent profile
	EnableContextManager bool
	Status               string
	ErrorMessage         string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Terminal reports whether the run status is one of the terminal states.
func (r *AgentRun) Terminal() bool {
	return r.Status != RunStatusRunning
}

// AgentResponse is a single streamed response chunk tied to an agent run.
type AgentResponse struct {
	ID         string
	AgentRunID string
	Content    string
	CreatedAt  time.Time
}

// SandboxFile is the metadata row for an uploaded file artifact. The binary
// payload lives in blob storage under "{sandbox_id}/{file_path}".
type SandboxFile struct {
	SandboxID string
	FilePath  string
	FileName  string
	FileSize  int64
	FileType  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the remote relational backend the client operates against.
// Implementations must return ErrNotFound for missing rows and
// ErrPermissionDenied for rows the credential cannot access.
type Store interface {
	// Threads
	CreateThread(ctx context.Context, thread *Thread) error
	ListThreads(ctx context.Context) ([]*Thread, error) // most recently updated first
	DeleteThread(ctx context.Context, threadID string) error
	DeleteThreadMessages(ctx context.Context, threadID string) error
	DeleteThreadRuns(ctx context.Context, threadID string) error

	// Messages
	InsertMessage(ctx context.Context, msg *Message) error
	ListThreadMessages(ctx context.Context, threadID string) ([]*Message, error) // created_at ascending

	// Agent runs and streamed response chunks
	InsertAgentRun(ctx context.Context, run *AgentRun) error
	GetAgentRun(ctx context.Context, agentRunID string) (*AgentRun, error)
	UpdateAgentRunStatus(ctx context.Context, agentRunID, status, errorMessage string) error
	InsertAgentResponse(ctx context.Context, resp *AgentResponse) error

	// Sandbox file metadata
	InsertSandboxFile(ctx context.Context, file *SandboxFile) error
	ListSandboxFiles(ctx context.Context, sandboxID string) ([]*SandboxFile, error) // newest first
	DeleteSandboxFile(ctx context.Context, sandboxID, path string) error

	// Close releases any resources held by the store
	Close() error
}

// BlobStore holds the binary payloads for sandbox files, keyed by a
// two-segment "{sandbox_id}/{path}" key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
}
