// ABOUTME: Data-access layer translating domain actions into remote store calls
// ABOUTME: One method per operation, fail-fast, with typed records and mapped errors

package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentchat/internal/realtime"
	"github.com/2389/agentchat/internal/store"
)

// DefaultModelName is the model requested when the caller supplies none.
const DefaultModelName = "claude-3-5-sonnet-20241022"

// SessionSource provides the bearer credential for operations that require
// one. Implementations return ErrNoAccessToken-compatible errors or an
// empty token when no credential is available.
type SessionSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// AgentStartOptions are caller-supplied overrides merged over the defaults
// when starting an agent run. Nil pointer fields keep their defaults
// (enable_thinking=false, stream=true, enable_context_manager=false).
type AgentStartOptions struct {
	ModelName            string
	EnableThinking       *bool
	ReasoningEffort      string // "low", "medium", "high"
	Stream               *bool
	AgentID              string
	EnableContextManager *bool
}

// UploadResult describes a completed sandbox upload.
type UploadResult struct {
	Status  string
	Created bool
	Path    string
}

// Client is the data-access layer over the remote store. All dependencies
// are injected so tests can substitute doubles.
type Client struct {
	store        store.Store
	blobs        store.BlobStore
	feed         *realtime.Feed
	session      SessionSource
	defaultModel string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a data-access client. defaultModel falls back to
// DefaultModelName when empty; pass nil logger for default.
func NewClient(st store.Store, blobs store.BlobStore, feed *realtime.Feed, session SessionSource, defaultModel string, logger *slog.Logger) *Client {
	if defaultModel == "" {
		defaultModel = DefaultModelName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		store:        st,
		blobs:        blobs,
		feed:         feed,
		session:      session,
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger.With("component", "chatapi"),
	}
}

// llmEnvelope is the role/content shape the language model expects.
type llmEnvelope struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AddUserMessage persists a user message on the thread, serialized into the
// role/content envelope and marked consumable by the model. Returns the
// persisted message with its store-confirmed identifier.
func (c *Client) AddUserMessage(ctx context.Context, threadID, content string) (*store.Message, error) {
	envelope, err := json.Marshal(llmEnvelope{Role: "user", Content: content})
	if err != nil {
		return nil, fmt.Errorf("encoding message envelope: %w", err)
	}

	now := time.Now()
	msg := &store.Message{
		ID:           uuid.New().String(),
		ThreadID:     threadID,
		Type:         store.MessageTypeUser,
		IsLLMMessage: true,
		Content:      string(envelope),
		Metadata:     "{}",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.store.InsertMessage(ctx, msg); err != nil {
		c.logger.Error("failed to add user message", "error", err, "thread_id", threadID)
		return nil, mapStoreError(err, "add message", "message")
	}
	return msg, nil
}

// StartAgent merges options over defaults and persists a new agent run with
// status running, returning its identifier. Creating the row is the signal
// an external worker observes and fulfills asynchronously; no inference
// happens here. Requires a usable access token.
func (c *Client) StartAgent(ctx context.Context, threadID string, opts *AgentStartOptions) (string, error) {
	token, err := c.session.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoAccessToken, err)
	}
	if token == "" {
		return "", ErrNoAccessToken
	}

	run := c.mergeRunOptions(threadID, opts)
	if err := c.store.InsertAgentRun(ctx, run); err != nil {
		c.logger.Error("failed to create agent run", "error", err, "thread_id", threadID)
		return "", mapStoreError(err, "start agent", "agent run")
	}

	c.logger.Info("agent run started", "agent_run_id", run.ID, "thread_id", threadID, "model", run.ModelName)
	return run.ID, nil
}

// mergeRunOptions applies caller overrides over the documented defaults.
func (c *Client) mergeRunOptions(threadID string, opts *AgentStartOptions) *store.AgentRun {
	now := time.Now()
	run := &store.AgentRun{
		ID:                   uuid.New().String(),
		ThreadID:             threadID,
		ModelName:            c.defaultModel,
		EnableThinking:       false,
		ReasoningEffort:      "low",
		Stream:               true,
		EnableContextManager: false,
		Status:               store.RunStatusRunning,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if opts == nil {
		return run
	}
	if opts.ModelName != "" {
		run.ModelName = opts.ModelName
	}
	if opts.EnableThinking != nil {
		run.EnableThinking = *opts.EnableThinking
	}
	if opts.ReasoningEffort != "" {
		run.ReasoningEffort = opts.ReasoningEffort
	}
	if opts.Stream != nil {
		run.Stream = *opts.Stream
	}
	if opts.AgentID != "" {
		run.AgentID = opts.AgentID
	}
	if opts.EnableContextManager != nil {
		run.EnableContextManager = *opts.EnableContextManager
	}
	return run
}

// GetAgentRunStatus reads the current state of an agent run.
func (c *Client) GetAgentRunStatus(ctx context.Context, agentRunID string) (*store.AgentRun, error) {
	run, err := c.store.GetAgentRun(ctx, agentRunID)
	if err != nil {
		return nil, mapStoreError(err, "get agent run status", "agent run")
	}
	return run, nil
}

// CancelAgentRun transitions a run to cancelled.
func (c *Client) CancelAgentRun(ctx context.Context, agentRunID string) error {
	if err := c.store.UpdateAgentRunStatus(ctx, agentRunID, store.RunStatusCancelled, ""); err != nil {
		c.logger.Error("failed to cancel agent run", "error", err, "agent_run_id", agentRunID)
		return mapStoreError(err, "cancel agent run", "agent run")
	}
	c.logger.Info("agent run cancelled", "agent_run_id", agentRunID)
	return nil
}

// UploadFileToSandbox materializes the file payload, writes the metadata
// row, then writes the blob keyed by "{sandboxID}/{path}". A metadata
// failure aborts before the blob write; a blob failure after a successful
// metadata write surfaces to the caller without rolling back the row,
// an accepted inconsistency window.
func (c *Client) UploadFileToSandbox(ctx context.Context, sandboxID, path string, file *FileInput) (*UploadResult, error) {
	data, err := file.bytes(ctx, c.httpClient)
	if err != nil {
		c.logger.Error("failed to read upload payload", "error", err, "sandbox_id", sandboxID, "path", path)
		return nil, err
	}

	now := time.Now()
	meta := &store.SandboxFile{
		SandboxID: sandboxID,
		FilePath:  path,
		FileName:  file.Name,
		FileSize:  file.Size,
		FileType:  file.ContentType,
		CreatedAt: now,
		UpdatedAt: now,
	}

	saga := []sagaStep{
		{
			name:      "write metadata row",
			onFailure: abortSaga,
			run: func(ctx context.Context) error {
				if err := c.store.InsertSandboxFile(ctx, meta); err != nil {
					return mapStoreError(err, "upload file metadata", "sandbox file")
				}
				return nil
			},
		},
		{
			name:      "write blob",
			onFailure: abortSaga,
			run: func(ctx context.Context) error {
				if err := c.blobs.Put(ctx, blobKey(sandboxID, path), data, file.ContentType); err != nil {
					return mapStoreError(err, "upload file content", "file storage")
				}
				return nil
			},
		},
	}
	if err := c.runSaga(ctx, "upload sandbox file", saga); err != nil {
		return nil, err
	}

	return &UploadResult{Status: "success", Created: true, Path: path}, nil
}

// GetSandboxFiles lists a sandbox's files, most recent first.
func (c *Client) GetSandboxFiles(ctx context.Context, sandboxID string) ([]*store.SandboxFile, error) {
	files, err := c.store.ListSandboxFiles(ctx, sandboxID)
	if err != nil {
		return nil, mapStoreError(err, "get sandbox files", "sandbox files")
	}
	return files, nil
}

// DeleteSandboxFile removes the blob then the metadata row. A blob-delete
// failure is logged and tolerated; the metadata delete must succeed.
func (c *Client) DeleteSandboxFile(ctx context.Context, sandboxID, path string) error {
	saga := []sagaStep{
		{
			name:      "remove blob",
			onFailure: continueLogged,
			run: func(ctx context.Context) error {
				return c.blobs.Remove(ctx, blobKey(sandboxID, path))
			},
		},
		{
			name:      "delete metadata row",
			onFailure: abortSaga,
			run: func(ctx context.Context) error {
				if err := c.store.DeleteSandboxFile(ctx, sandboxID, path); err != nil {
					return mapStoreError(err, "delete file metadata", "sandbox file")
				}
				return nil
			},
		},
	}
	return c.runSaga(ctx, "delete sandbox file", saga)
}

// GetThreadMessages returns a thread's messages ordered ascending by
// creation time, the canonical ordering for rendering and merging with
// optimistic state.
func (c *Client) GetThreadMessages(ctx context.Context, threadID string) ([]*store.Message, error) {
	msgs, err := c.store.ListThreadMessages(ctx, threadID)
	if err != nil {
		return nil, mapStoreError(err, "get thread messages", "messages")
	}
	return msgs, nil
}

// CreateThread creates a new thread, defaulting the title to "New Chat".
func (c *Client) CreateThread(ctx context.Context, title string) (*store.Thread, error) {
	if title == "" {
		title = "New Chat"
	}

	now := time.Now()
	thread := &store.Thread{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreateThread(ctx, thread); err != nil {
		c.logger.Error("failed to create thread", "error", err, "title", title)
		return nil, mapStoreError(err, "create thread", "thread")
	}

	c.logger.Debug("thread created", "thread_id", thread.ID, "title", title)
	return thread, nil
}

// GetUserThreads lists threads, most recently updated first.
func (c *Client) GetUserThreads(ctx context.Context) ([]*store.Thread, error) {
	threads, err := c.store.ListThreads(ctx)
	if err != nil {
		return nil, mapStoreError(err, "get user threads", "threads")
	}
	return threads, nil
}

// DeleteThread cascades: messages, then agent runs, then the thread row.
// Failures on the first two steps are logged and do not block the cascade;
// only a failure deleting the thread row itself surfaces to the caller.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	saga := []sagaStep{
		{
			name:      "delete thread messages",
			onFailure: continueLogged,
			run: func(ctx context.Context) error {
				return c.store.DeleteThreadMessages(ctx, threadID)
			},
		},
		{
			name:      "delete thread runs",
			onFailure: continueLogged,
			run: func(ctx context.Context) error {
				return c.store.DeleteThreadRuns(ctx, threadID)
			},
		},
		{
			name:      "delete thread row",
			onFailure: abortSaga,
			run: func(ctx context.Context) error {
				if err := c.store.DeleteThread(ctx, threadID); err != nil {
					return mapStoreError(err, "delete thread", "thread")
				}
				return nil
			},
		},
	}
	return c.runSaga(ctx, "delete thread", saga)
}

// blobKey builds the two-segment storage key for a sandbox file payload.
func blobKey(sandboxID, path string) string {
	return sandboxID + "/" + path
}
