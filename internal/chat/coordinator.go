// ABOUTME: Conversation state coordinator owning the live message feed per chat view
// ABOUTME: Merges optimistic local edits with confirmed store data and drives runs

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentchat/internal/chatapi"
	"github.com/2389/agentchat/internal/store"
)

// ErrNoActiveThread indicates an operation requiring a current thread was
// invoked with none set.
var ErrNoActiveThread = errors.New("no active thread")

// ErrSendInProgress indicates a send was attempted while another send on
// the same coordinator had not yet finished starting its run.
var ErrSendInProgress = errors.New("send already in progress")

// Coordinator owns the authoritative in-memory message list and active-run
// identifier for the current thread, and exposes the operations UI code
// calls. One coordinator per mounted chat view; all state is guarded by a
// single mutex so interleaved asynchronous completions cannot race.
type Coordinator struct {
	api    *chatapi.Client
	logger *slog.Logger

	mu              sync.Mutex
	messages        []*store.Message
	threads         []*store.Thread
	sandboxFiles    []*store.SandboxFile
	currentThreadID string
	currentRunID    string
	sending         bool
	unsubscribe     func()
}

// NewCoordinator creates a coordinator over the given data-access client.
// initialThreadID may be empty; pass nil logger for default.
func NewCoordinator(api *chatapi.Client, initialThreadID string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		api:             api,
		currentThreadID: initialThreadID,
		logger:          logger.With("component", "coordinator"),
	}
}

// SendMessage appends the user message optimistically, persists it, starts
// an agent run with the merged options, and opens a streaming subscription
// that appends assistant messages as content arrives. The sending flag is
// lowered once the run has started; it does not wait for the stream to
// close. Concurrent sends are rejected with ErrSendInProgress.
func (c *Coordinator) SendMessage(ctx context.Context, content string, opts *chatapi.AgentStartOptions) error {
	c.mu.Lock()
	threadID := c.currentThreadID
	if threadID == "" {
		c.mu.Unlock()
		return ErrNoActiveThread
	}
	if c.sending {
		c.mu.Unlock()
		return ErrSendInProgress
	}
	c.sending = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	if err := c.addMessage(ctx, threadID, content); err != nil {
		return err
	}

	runID, err := c.api.StartAgent(ctx, threadID, opts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.currentRunID = runID
	c.mu.Unlock()

	unsub := c.api.StreamAgent(runID, chatapi.StreamCallbacks{
		OnMessage: func(content string) {
			c.appendAssistantMessage(threadID, content)
		},
		OnError: func(errMsg string) {
			// Surfaced inline so the rendering layer can style it distinctly
			c.appendAssistantMessage(threadID, "Error: "+errMsg)
		},
		OnClose: func() {
			c.mu.Lock()
			c.currentRunID = ""
			c.unsubscribe = nil
			c.mu.Unlock()
		},
	})

	c.adoptStream(runID, unsub)

	return nil
}

// adoptStream installs the teardown handle for the active run. If the
// stream already closed (OnClose cleared the run marker before the handle
// landed), the closed handle is discarded so no handle survives a close.
func (c *Coordinator) adoptStream(runID string, unsub func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentRunID == runID {
		c.unsubscribe = unsub
	}
}

// AddMessage persists a user message on the current thread with optimistic
// local state: the message appears immediately under a temporary tag, the
// tag is replaced in place once the store confirms, and the entry is
// removed entirely if persistence fails (local state reverts to the
// pre-send condition).
func (c *Coordinator) AddMessage(ctx context.Context, content string) error {
	c.mu.Lock()
	threadID := c.currentThreadID
	c.mu.Unlock()

	if threadID == "" {
		return ErrNoActiveThread
	}
	return c.addMessage(ctx, threadID, content)
}

func (c *Coordinator) addMessage(ctx context.Context, threadID, content string) error {
	now := time.Now()
	tempID := fmt.Sprintf("temp-%d", now.UnixNano())
	optimistic := &store.Message{
		ID:           tempID,
		ThreadID:     threadID,
		Type:         store.MessageTypeUser,
		IsLLMMessage: false,
		Content:      content,
		Metadata:     "{}",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	c.mu.Lock()
	c.messages = append(c.messages, optimistic)
	c.mu.Unlock()

	persisted, err := c.api.AddUserMessage(ctx, threadID, content)
	if err != nil {
		c.removeMessage(tempID)
		return err
	}

	c.confirmMessage(tempID, persisted.ID)
	return nil
}

// confirmMessage replaces the temporary tag with the store-confirmed
// identifier, in place. A targeted single-entry replace, never a full diff.
func (c *Coordinator) confirmMessage(tempID, confirmedID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range c.messages {
		if msg.ID == tempID {
			msg.ID = confirmedID
			return
		}
	}
}

// removeMessage rolls back an optimistic entry.
func (c *Coordinator) removeMessage(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, msg := range c.messages {
		if msg.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

// appendAssistantMessage adds a streamed assistant message to local state.
func (c *Coordinator) appendAssistantMessage(threadID, content string) {
	now := time.Now()
	msg := &store.Message{
		ID:           uuid.New().String(),
		ThreadID:     threadID,
		Type:         store.MessageTypeAssistant,
		IsLLMMessage: true,
		Content:      content,
		Metadata:     "{}",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
}

// CreateNewThread creates a remote thread, adopts it as current, clears
// local messages, and refreshes the thread list. Returns the new thread ID.
func (c *Coordinator) CreateNewThread(ctx context.Context, title string) (string, error) {
	thread, err := c.api.CreateThread(ctx, title)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.currentThreadID = thread.ID
	c.messages = nil
	c.mu.Unlock()

	if err := c.LoadThreads(ctx); err != nil {
		c.logger.Warn("failed to refresh threads after create", "error", err)
	}
	return thread.ID, nil
}

// LoadThreads refreshes the thread list from the store.
func (c *Coordinator) LoadThreads(ctx context.Context) error {
	threads, err := c.api.GetUserThreads(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.threads = threads
	c.mu.Unlock()
	return nil
}

// DeleteThreadByID deletes the thread remotely and refreshes the list. If
// the deleted thread was current, the current-thread marker and local
// messages are cleared; other threads' local state is untouched.
func (c *Coordinator) DeleteThreadByID(ctx context.Context, threadID string) error {
	if err := c.api.DeleteThread(ctx, threadID); err != nil {
		return err
	}

	if err := c.LoadThreads(ctx); err != nil {
		c.logger.Warn("failed to refresh threads after delete", "error", err)
	}

	c.mu.Lock()
	if c.currentThreadID == threadID {
		c.currentThreadID = ""
		c.messages = nil
	}
	c.mu.Unlock()
	return nil
}

// LoadThreadMessages replaces local state wholesale with the store's
// ordered message list and adopts that thread as current. Unconfirmed
// optimistic messages for any previously loaded thread are discarded by
// construction.
func (c *Coordinator) LoadThreadMessages(ctx context.Context, threadID string) error {
	msgs, err := c.api.GetThreadMessages(ctx, threadID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.messages = msgs
	c.currentThreadID = threadID
	c.mu.Unlock()
	return nil
}

// StartAgentRun starts an agent run for an arbitrary thread.
func (c *Coordinator) StartAgentRun(ctx context.Context, threadID string, opts *chatapi.AgentStartOptions) (string, error) {
	return c.api.StartAgent(ctx, threadID, opts)
}

// CancelCurrentAgent transitions the active run to cancelled, clears the
// local marker, and tears down the open subscription. A no-op when no run
// is active. Cancellation does not guarantee the remote worker stops
// promptly, only that no further local callbacks fire for that run.
func (c *Coordinator) CancelCurrentAgent(ctx context.Context) error {
	c.mu.Lock()
	runID := c.currentRunID
	unsub := c.unsubscribe
	c.mu.Unlock()

	if runID == "" {
		return nil
	}

	if err := c.api.CancelAgentRun(ctx, runID); err != nil {
		c.logger.Error("failed to cancel agent", "error", err, "agent_run_id", runID)
		return err
	}

	c.mu.Lock()
	c.currentRunID = ""
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return nil
}

// GetAgentStatus reads the current state of an agent run.
func (c *Coordinator) GetAgentStatus(ctx context.Context, agentRunID string) (*store.AgentRun, error) {
	return c.api.GetAgentRunStatus(ctx, agentRunID)
}

// UploadFile uploads a file to the sandbox and refreshes the file list.
func (c *Coordinator) UploadFile(ctx context.Context, sandboxID, path string, file *chatapi.FileInput) error {
	if _, err := c.api.UploadFileToSandbox(ctx, sandboxID, path, file); err != nil {
		return err
	}
	return c.LoadSandboxFiles(ctx, sandboxID)
}

// LoadSandboxFiles refreshes the sandbox file list.
func (c *Coordinator) LoadSandboxFiles(ctx context.Context, sandboxID string) error {
	files, err := c.api.GetSandboxFiles(ctx, sandboxID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sandboxFiles = files
	c.mu.Unlock()
	return nil
}

// RemoveFile deletes a sandbox file and refreshes the file list.
func (c *Coordinator) RemoveFile(ctx context.Context, sandboxID, path string) error {
	if err := c.api.DeleteSandboxFile(ctx, sandboxID, path); err != nil {
		return err
	}
	return c.LoadSandboxFiles(ctx, sandboxID)
}

// ClearMessages empties the local message list.
func (c *Coordinator) ClearMessages() {
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}

// SetCurrentThread adopts a thread as current and clears local messages.
func (c *Coordinator) SetCurrentThread(threadID string) {
	c.mu.Lock()
	c.currentThreadID = threadID
	c.messages = nil
	c.mu.Unlock()
}

// Messages returns a snapshot of the current message list.
func (c *Coordinator) Messages() []*store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]*store.Message, len(c.messages))
	copy(msgs, c.messages)
	return msgs
}

// Threads returns a snapshot of the thread list.
func (c *Coordinator) Threads() []*store.Thread {
	c.mu.Lock()
	defer c.mu.Unlock()

	threads := make([]*store.Thread, len(c.threads))
	copy(threads, c.threads)
	return threads
}

// SandboxFiles returns a snapshot of the sandbox file list.
func (c *Coordinator) SandboxFiles() []*store.SandboxFile {
	c.mu.Lock()
	defer c.mu.Unlock()

	files := make([]*store.SandboxFile, len(c.sandboxFiles))
	copy(files, c.sandboxFiles)
	return files
}

// IsSending reports whether a send is in flight (up to run start, not
// stream close).
func (c *Coordinator) IsSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// CurrentAgentRunID returns the active run identifier, or empty if none.
func (c *Coordinator) CurrentAgentRunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRunID
}

// CurrentThreadID returns the current thread identifier, or empty if none.
func (c *Coordinator) CurrentThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentThreadID
}
