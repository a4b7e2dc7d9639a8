// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject per-operation failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing. Tests can
// force a specific operation to fail via FailWith.
type MockStore struct {
	mu           sync.RWMutex
	threads      map[string]*Thread
	messages     map[string][]*Message       // keyed by threadID
	runs         map[string]*AgentRun        // keyed by agentRunID
	responses    map[string][]*AgentResponse // keyed by agentRunID
	sandboxFiles map[string][]*SandboxFile   // keyed by sandboxID
	failures     map[string]error            // operation name -> forced error
	notifier     Notifier
}

// NewMockStore creates a new MockStore. Pass a nil notifier to disable
// change notifications.
func NewMockStore(notifier Notifier) *MockStore {
	return &MockStore{
		threads:      make(map[string]*Thread),
		messages:     make(map[string][]*Message),
		runs:         make(map[string]*AgentRun),
		responses:    make(map[string][]*AgentResponse),
		sandboxFiles: make(map[string][]*SandboxFile),
		failures:     make(map[string]error),
		notifier:     notifier,
	}
}

// FailWith forces the named operation (e.g. "InsertMessage") to return err.
// Pass a nil error to clear the failure.
func (m *MockStore) FailWith(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, operation)
		return
	}
	m.failures[operation] = err
}

func (m *MockStore) failure(operation string) error {
	return m.failures[operation]
}

func (m *MockStore) publish(key string, change *Change) {
	if m.notifier != nil {
		m.notifier.Publish(key, change)
	}
}

// CreateThread stores a new thread.
func (m *MockStore) CreateThread(ctx context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("CreateThread"); err != nil {
		return err
	}

	// Make a copy to avoid external modification
	t := *thread
	m.threads[t.ID] = &t
	return nil
}

// ListThreads returns threads ordered by most recent activity.
func (m *MockStore) ListThreads(ctx context.Context) ([]*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("ListThreads"); err != nil {
		return nil, err
	}

	threads := make([]*Thread, 0, len(m.threads))
	for _, t := range m.threads {
		copied := *t
		threads = append(threads, &copied)
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}

// DeleteThread removes the thread row.
func (m *MockStore) DeleteThread(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("DeleteThread"); err != nil {
		return err
	}

	if _, ok := m.threads[threadID]; !ok {
		return ErrNotFound
	}
	delete(m.threads, threadID)
	return nil
}

// DeleteThreadMessages removes all messages for a thread.
func (m *MockStore) DeleteThreadMessages(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("DeleteThreadMessages"); err != nil {
		return err
	}

	delete(m.messages, threadID)
	return nil
}

// DeleteThreadRuns removes all agent runs for a thread.
func (m *MockStore) DeleteThreadRuns(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("DeleteThreadRuns"); err != nil {
		return err
	}

	for id, run := range m.runs {
		if run.ThreadID == threadID {
			delete(m.runs, id)
		}
	}
	return nil
}

// InsertMessage stores a message.
func (m *MockStore) InsertMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("InsertMessage"); err != nil {
		return err
	}

	copied := *msg
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], &copied)
	return nil
}

// ListThreadMessages returns messages ordered by creation time ascending.
func (m *MockStore) ListThreadMessages(ctx context.Context, threadID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("ListThreadMessages"); err != nil {
		return nil, err
	}

	msgs := make([]*Message, 0, len(m.messages[threadID]))
	for _, msg := range m.messages[threadID] {
		copied := *msg
		msgs = append(msgs, &copied)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// InsertAgentRun stores a new agent run and notifies workers.
func (m *MockStore) InsertAgentRun(ctx context.Context, run *AgentRun) error {
	m.mu.Lock()
	if err := m.failure("InsertAgentRun"); err != nil {
		m.mu.Unlock()
		return err
	}
	copied := *run
	m.runs[run.ID] = &copied
	m.mu.Unlock()

	published := copied
	m.publish(KeyRunCreated, &Change{Op: OpInsert, Table: TableAgentRuns, Run: &published})
	return nil
}

// GetAgentRun retrieves an agent run by ID.
func (m *MockStore) GetAgentRun(ctx context.Context, agentRunID string) (*AgentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("GetAgentRun"); err != nil {
		return nil, err
	}

	run, ok := m.runs[agentRunID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *run
	return &copied, nil
}

// UpdateAgentRunStatus transitions a run's status. Terminal states are
// immutable: updating an already-terminal run is a no-op.
func (m *MockStore) UpdateAgentRunStatus(ctx context.Context, agentRunID, status, errorMessage string) error {
	m.mu.Lock()
	if err := m.failure("UpdateAgentRunStatus"); err != nil {
		m.mu.Unlock()
		return err
	}

	run, ok := m.runs[agentRunID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if run.Terminal() {
		m.mu.Unlock()
		return nil
	}

	run.Status = status
	run.ErrorMessage = errorMessage
	run.UpdatedAt = time.Now()
	published := *run
	m.mu.Unlock()

	m.publish(RunKey(agentRunID), &Change{Op: OpUpdate, Table: TableAgentRuns, Run: &published})
	return nil
}

// InsertAgentResponse stores a response chunk and publishes it.
func (m *MockStore) InsertAgentResponse(ctx context.Context, resp *AgentResponse) error {
	m.mu.Lock()
	if err := m.failure("InsertAgentResponse"); err != nil {
		m.mu.Unlock()
		return err
	}
	copied := *resp
	m.responses[resp.AgentRunID] = append(m.responses[resp.AgentRunID], &copied)
	m.mu.Unlock()

	published := copied
	m.publish(RunKey(resp.AgentRunID), &Change{Op: OpInsert, Table: TableAgentResponses, Response: &published})
	return nil
}

// InsertSandboxFile stores a sandbox file metadata row.
func (m *MockStore) InsertSandboxFile(ctx context.Context, file *SandboxFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("InsertSandboxFile"); err != nil {
		return err
	}

	// Upsert on (sandbox_id, file_path)
	copied := *file
	files := m.sandboxFiles[file.SandboxID]
	for i, existing := range files {
		if existing.FilePath == file.FilePath {
			files[i] = &copied
			return nil
		}
	}
	m.sandboxFiles[file.SandboxID] = append(files, &copied)
	return nil
}

// ListSandboxFiles returns sandbox file metadata, most recent first.
func (m *MockStore) ListSandboxFiles(ctx context.Context, sandboxID string) ([]*SandboxFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("ListSandboxFiles"); err != nil {
		return nil, err
	}

	files := make([]*SandboxFile, 0, len(m.sandboxFiles[sandboxID]))
	for _, f := range m.sandboxFiles[sandboxID] {
		copied := *f
		files = append(files, &copied)
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

// DeleteSandboxFile removes a sandbox file metadata row.
func (m *MockStore) DeleteSandboxFile(ctx context.Context, sandboxID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("DeleteSandboxFile"); err != nil {
		return err
	}

	files := m.sandboxFiles[sandboxID]
	for i, f := range files {
		if f.FilePath == path {
			m.sandboxFiles[sandboxID] = append(files[:i], files[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
