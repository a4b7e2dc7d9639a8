// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers thread CRUD, message ordering, run transitions, and sandbox files

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndListThreads(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		thread := &Thread{
			ID:        fmt.Sprintf("thread-%d", i),
			Title:     fmt.Sprintf("Chat %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.CreateThread(ctx, thread); err != nil {
			t.Fatalf("CreateThread failed: %v", err)
		}
	}

	threads, err := store.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(threads) != 3 {
		t.Fatalf("expected 3 threads, got %d", len(threads))
	}

	// Most recently updated first
	if threads[0].ID != "thread-2" || threads[2].ID != "thread-0" {
		t.Errorf("threads out of order: %s, %s, %s", threads[0].ID, threads[1].ID, threads[2].ID)
	}
	if threads[0].Title != "Chat 2" {
		t.Errorf("Title mismatch: got %q, want %q", threads[0].Title, "Chat 2")
	}
}

func TestDeleteThread(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	thread := &Thread{ID: "thread-1", Title: "New Chat", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := store.CreateThread(ctx, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	if err := store.DeleteThread(ctx, "thread-1"); err != nil {
		t.Fatalf("DeleteThread failed: %v", err)
	}

	threads, err := store.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(threads) != 0 {
		t.Errorf("expected 0 threads after delete, got %d", len(threads))
	}
}

func TestDeleteThread_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.DeleteThread(context.Background(), "no-such-thread")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMessageOrdering(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	thread := &Thread{ID: "thread-1", Title: "New Chat", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := store.CreateThread(ctx, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	// Insert out of order; sub-second apart
	base := time.Now()
	times := []time.Duration{200 * time.Millisecond, 0, 100 * time.Millisecond}
	for i, offset := range times {
		msg := &Message{
			ID:        fmt.Sprintf("msg-%d", i),
			ThreadID:  "thread-1",
			Type:      MessageTypeUser,
			Content:   fmt.Sprintf("message %d", i),
			Metadata:  "{}",
			CreatedAt: base.Add(offset),
			UpdatedAt: base.Add(offset),
		}
		if err := store.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	msgs, err := store.ListThreadMessages(ctx, "thread-1")
	if err != nil {
		t.Fatalf("ListThreadMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	// Ascending by creation time, even at sub-second granularity
	want := []string{"msg-1", "msg-2", "msg-0"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Errorf("position %d: got %q, want %q", i, msgs[i].ID, id)
		}
	}
}

func TestDeleteThreadMessages(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	thread := &Thread{ID: "thread-1", Title: "New Chat", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := store.CreateThread(ctx, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	msg := &Message{
		ID: "msg-1", ThreadID: "thread-1", Type: MessageTypeUser,
		Content: "hello", Metadata: "{}",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := store.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	if err := store.DeleteThreadMessages(ctx, "thread-1"); err != nil {
		t.Fatalf("DeleteThreadMessages failed: %v", err)
	}

	msgs, err := store.ListThreadMessages(ctx, "thread-1")
	if err != nil {
		t.Fatalf("ListThreadMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected 0 messages after delete, got %d", len(msgs))
	}
}

func insertTestRun(t *testing.T, store *SQLiteStore, runID string) {
	t.Helper()
	ctx := context.Background()
	thread := &Thread{ID: "thread-1", Title: "New Chat", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	_ = store.CreateThread(ctx, thread)

	run := &AgentRun{
		ID:              runID,
		ThreadID:        "thread-1",
		ModelName:       "claude-3-5-sonnet-20241022",
		ReasoningEffort: "low",
		Stream:          true,
		Status:          RunStatusRunning,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := store.InsertAgentRun(ctx, run); err != nil {
		t.Fatalf("InsertAgentRun failed: %v", err)
	}
}

func TestAgentRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	insertTestRun(t, store, "run-1")

	got, err := store.GetAgentRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetAgentRun failed: %v", err)
	}
	if got.Status != RunStatusRunning {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, RunStatusRunning)
	}
	if !got.Stream {
		t.Error("Stream flag not persisted")
	}

	if err := store.UpdateAgentRunStatus(ctx, "run-1", RunStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateAgentRunStatus failed: %v", err)
	}

	got, err = store.GetAgentRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetAgentRun failed: %v", err)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, RunStatusCompleted)
	}
}

func TestAgentRunTerminalStatusIsImmutable(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	insertTestRun(t, store, "run-1")

	if err := store.UpdateAgentRunStatus(ctx, "run-1", RunStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateAgentRunStatus failed: %v", err)
	}

	// Cancel after completion is a silent no-op
	if err := store.UpdateAgentRunStatus(ctx, "run-1", RunStatusCancelled, ""); err != nil {
		t.Fatalf("second UpdateAgentRunStatus should be a no-op, got: %v", err)
	}

	got, err := store.GetAgentRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetAgentRun failed: %v", err)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("terminal status overwritten: got %q, want %q", got.Status, RunStatusCompleted)
	}
}

func TestUpdateAgentRunStatus_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.UpdateAgentRunStatus(context.Background(), "no-such-run", RunStatusCancelled, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAgentRun_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetAgentRun(context.Background(), "no-such-run")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAgentRunErrorMessagePersisted(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	insertTestRun(t, store, "run-1")

	if err := store.UpdateAgentRunStatus(ctx, "run-1", RunStatusError, "model unavailable"); err != nil {
		t.Fatalf("UpdateAgentRunStatus failed: %v", err)
	}

	got, err := store.GetAgentRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetAgentRun failed: %v", err)
	}
	if got.ErrorMessage != "model unavailable" {
		t.Errorf("ErrorMessage mismatch: got %q", got.ErrorMessage)
	}
}

func TestDeleteThreadRuns(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	insertTestRun(t, store, "run-1")

	if err := store.DeleteThreadRuns(ctx, "thread-1"); err != nil {
		t.Fatalf("DeleteThreadRuns failed: %v", err)
	}

	_, err := store.GetAgentRun(ctx, "run-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSandboxFileUpsert(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	file := &SandboxFile{
		SandboxID: "sb-1",
		FilePath:  "docs/readme.md",
		FileName:  "readme.md",
		FileSize:  42,
		FileType:  "text/markdown",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.InsertSandboxFile(ctx, file); err != nil {
		t.Fatalf("InsertSandboxFile failed: %v", err)
	}

	// Re-upload to the same path replaces the row
	file.FileSize = 100
	if err := store.InsertSandboxFile(ctx, file); err != nil {
		t.Fatalf("second InsertSandboxFile failed: %v", err)
	}

	files, err := store.ListSandboxFiles(ctx, "sb-1")
	if err != nil {
		t.Fatalf("ListSandboxFiles failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file after upsert, got %d", len(files))
	}
	if files[0].FileSize != 100 {
		t.Errorf("FileSize mismatch: got %d, want 100", files[0].FileSize)
	}
}

func TestDeleteSandboxFile(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	file := &SandboxFile{
		SandboxID: "sb-1", FilePath: "a.txt", FileName: "a.txt",
		FileSize: 1, FileType: "text/plain", CreatedAt: now, UpdatedAt: now,
	}
	if err := store.InsertSandboxFile(ctx, file); err != nil {
		t.Fatalf("InsertSandboxFile failed: %v", err)
	}

	if err := store.DeleteSandboxFile(ctx, "sb-1", "a.txt"); err != nil {
		t.Fatalf("DeleteSandboxFile failed: %v", err)
	}

	err := store.DeleteSandboxFile(ctx, "sb-1", "a.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

// recordingNotifier captures published changes for assertions.
type recordingNotifier struct {
	keys    []string
	changes []*Change
}

func (r *recordingNotifier) Publish(key string, change *Change) {
	r.keys = append(r.keys, key)
	r.changes = append(r.changes, change)
}

func TestNotificationsPublishedOnRunLifecycle(t *testing.T) {
	notifier := &recordingNotifier{}
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath, notifier)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	thread := &Thread{ID: "thread-1", Title: "New Chat", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := store.CreateThread(ctx, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	run := &AgentRun{
		ID: "run-1", ThreadID: "thread-1", ModelName: "m",
		ReasoningEffort: "low", Stream: true, Status: RunStatusRunning,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := store.InsertAgentRun(ctx, run); err != nil {
		t.Fatalf("InsertAgentRun failed: %v", err)
	}
	resp := &AgentResponse{ID: "resp-1", AgentRunID: "run-1", Content: "Hello", CreatedAt: time.Now()}
	if err := store.InsertAgentResponse(ctx, resp); err != nil {
		t.Fatalf("InsertAgentResponse failed: %v", err)
	}
	if err := store.UpdateAgentRunStatus(ctx, "run-1", RunStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateAgentRunStatus failed: %v", err)
	}

	wantKeys := []string{KeyRunCreated, RunKey("run-1"), RunKey("run-1")}
	if len(notifier.keys) != len(wantKeys) {
		t.Fatalf("expected %d notifications, got %d", len(wantKeys), len(notifier.keys))
	}
	for i, want := range wantKeys {
		if notifier.keys[i] != want {
			t.Errorf("notification %d: got key %q, want %q", i, notifier.keys[i], want)
		}
	}
	if notifier.changes[2].Run.Status != RunStatusCompleted {
		t.Errorf("status update notification carries %q, want %q", notifier.changes[2].Run.Status, RunStatusCompleted)
	}

	// Terminal no-op updates publish nothing
	before := len(notifier.keys)
	if err := store.UpdateAgentRunStatus(ctx, "run-1", RunStatusCancelled, ""); err != nil {
		t.Fatalf("no-op UpdateAgentRunStatus failed: %v", err)
	}
	if len(notifier.keys) != before {
		t.Error("no-op status update published a notification")
	}
}
