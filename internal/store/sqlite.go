// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists threads/messages/agent runs and publishes row-change notifications

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db       *sql.DB
	notifier Notifier
	logger   *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Pass a nil notifier to
// disable change notifications.
func NewSQLiteStore(path string, notifier Notifier) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		notifier: notifier,
		logger:   logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			thread_id  TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_threads_updated ON threads(updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			message_id     TEXT PRIMARY KEY,
			thread_id      TEXT NOT NULL,
			type           TEXT NOT NULL,
			is_llm_message INTEGER NOT NULL DEFAULT 0,
			content        TEXT NOT NULL,
			metadata       TEXT NOT NULL DEFAULT '{}',
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,

			CHECK (type IN ('user', 'assistant', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_thread_created
			ON messages(thread_id, created_at);

		CREATE TABLE IF NOT EXISTS agent_runs (
			agent_run_id           TEXT PRIMARY KEY,
			thread_id              TEXT NOT NULL,
			model_name             TEXT NOT NULL,
			enable_thinking        INTEGER NOT NULL DEFAULT 0,
			reasoning_effort       TEXT NOT NULL DEFAULT 'low',
			stream                 INTEGER NOT NULL DEFAULT 1,
			agent_id               TEXT,
			enable_context_manager INTEGER NOT NULL DEFAULT 0,
			status                 TEXT NOT NULL,
			error_message          TEXT,
			created_at             TEXT NOT NULL,
			updated_at             TEXT NOT NULL,

			CHECK (status IN ('running', 'completed', 'error', 'cancelled')),
			CHECK (reasoning_effort IN ('low', 'medium', 'high'))
		);

		CREATE INDEX IF NOT EXISTS idx_agent_runs_thread ON agent_runs(thread_id);

		CREATE TABLE IF NOT EXISTS agent_responses (
			response_id  TEXT PRIMARY KEY,
			agent_run_id TEXT NOT NULL,
			content      TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agent_responses_run
			ON agent_responses(agent_run_id, created_at);

		CREATE TABLE IF NOT EXISTS sandbox_files (
			sandbox_id TEXT NOT NULL,
			file_path  TEXT NOT NULL,
			file_name  TEXT NOT NULL,
			file_size  INTEGER NOT NULL DEFAULT 0,
			file_type  TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			PRIMARY KEY (sandbox_id, file_path)
		);

		CREATE INDEX IF NOT EXISTS idx_sandbox_files_created
			ON sandbox_files(sandbox_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// publish sends a change notification if a notifier is configured
func (s *SQLiteStore) publish(key string, change *Change) {
	if s.notifier != nil {
		s.notifier.Publish(key, change)
	}
}

// formatTime serializes timestamps with sub-second precision so that
// lexicographic ordering of the stored string matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateThread creates a new thread row.
func (s *SQLiteStore) CreateThread(ctx context.Context, thread *Thread) error {
	query := `
		INSERT INTO threads (thread_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.Title,
		formatTime(thread.CreatedAt),
		formatTime(thread.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting thread: %w", err)
	}

	s.logger.Debug("created thread", "thread_id", thread.ID, "title", thread.Title)
	return nil
}

// ListThreads returns all threads ordered by most recent activity.
func (s *SQLiteStore) ListThreads(ctx context.Context) ([]*Thread, error) {
	query := `
		SELECT thread_id, title, created_at, updated_at
		FROM threads
		ORDER BY updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		var t Thread
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		threads = append(threads, &t)
	}
	return threads, rows.Err()
}

// DeleteThread removes the thread row itself.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted thread", "thread_id", threadID)
	return nil
}

// DeleteThreadMessages removes all messages belonging to a thread.
func (s *SQLiteStore) DeleteThreadMessages(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("deleting thread messages: %w", err)
	}
	return nil
}

// DeleteThreadRuns removes all agent runs belonging to a thread.
func (s *SQLiteStore) DeleteThreadRuns(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agent_runs WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("deleting thread runs: %w", err)
	}
	return nil
}

// InsertMessage persists a message row.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (message_id, thread_id, type, is_llm_message, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	metadata := msg.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ThreadID,
		msg.Type,
		msg.IsLLMMessage,
		msg.Content,
		metadata,
		formatTime(msg.CreatedAt),
		formatTime(msg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("inserted message", "message_id", msg.ID, "thread_id", msg.ThreadID, "type", msg.Type)
	return nil
}

// ListThreadMessages returns a thread's messages ordered by creation time
// ascending, the canonical rendering order.
func (s *SQLiteStore) ListThreadMessages(ctx context.Context, threadID string) ([]*Message, error) {
	query := `
		SELECT message_id, thread_id, type, is_llm_message, content, metadata, created_at, updated_at
		FROM messages
		WHERE thread_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Type, &m.IsLLMMessage, &m.Content, &m.Metadata, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		m.UpdatedAt = parseTime(updatedAt)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// InsertAgentRun persists a new agent run row and notifies workers that a
// run is waiting to be fulfilled.
func (s *SQLiteStore) InsertAgentRun(ctx context.Context, run *AgentRun) error {
	query := `
		INSERT INTO agent_runs (agent_run_id, thread_id, model_name, enable_thinking, reasoning_effort,
			stream, agent_id, enable_context_manager, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var agentID any
	if run.AgentID != "" {
		agentID = run.AgentID
	}

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.ThreadID,
		run.ModelName,
		run.EnableThinking,
		run.ReasoningEffort,
		run.Stream,
		agentID,
		run.EnableContextManager,
		run.Status,
		run.ErrorMessage,
		formatTime(run.CreatedAt),
		formatTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting agent run: %w", err)
	}

	s.logger.Debug("inserted agent run", "agent_run_id", run.ID, "thread_id", run.ThreadID, "model", run.ModelName)

	copied := *run
	s.publish(KeyRunCreated, &Change{Op: OpInsert, Table: TableAgentRuns, Run: &copied})
	return nil
}

// GetAgentRun retrieves an agent run by ID.
// Returns ErrNotFound if the run doesn't exist.
func (s *SQLiteStore) GetAgentRun(ctx context.Context, agentRunID string) (*AgentRun, error) {
	query := `
		SELECT agent_run_id, thread_id, model_name, enable_thinking, reasoning_effort,
			stream, agent_id, enable_context_manager, status, error_message, created_at, updated_at
		FROM agent_runs
		WHERE agent_run_id = ?
	`

	var run AgentRun
	var agentID, errorMessage sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, query, agentRunID).Scan(
		&run.ID,
		&run.ThreadID,
		&run.ModelName,
		&run.EnableThinking,
		&run.ReasoningEffort,
		&run.Stream,
		&agentID,
		&run.EnableContextManager,
		&run.Status,
		&errorMessage,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent run: %w", err)
	}

	run.AgentID = agentID.String
	run.ErrorMessage = errorMessage.String
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	return &run, nil
}

// UpdateAgentRunStatus transitions a run to a new status and publishes the
// update to the run's subscription key. Terminal states are immutable: an
// update against an already-terminal run is a no-op and publishes nothing.
// Returns ErrNotFound if the run doesn't exist.
func (s *SQLiteStore) UpdateAgentRunStatus(ctx context.Context, agentRunID, status, errorMessage string) error {
	query := `
		UPDATE agent_runs
		SET status = ?, error_message = ?, updated_at = ?
		WHERE agent_run_id = ? AND status = 'running'
	`

	result, err := s.db.ExecContext(ctx, query, status, errorMessage, formatTime(time.Now()), agentRunID)
	if err != nil {
		return fmt.Errorf("updating agent run status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		// Either the run doesn't exist or it already reached a terminal state
		if _, err := s.GetAgentRun(ctx, agentRunID); err != nil {
			return err
		}
		s.logger.Debug("skipped status update on terminal run", "agent_run_id", agentRunID, "status", status)
		return nil
	}

	s.logger.Debug("updated agent run status", "agent_run_id", agentRunID, "status", status)

	run, err := s.GetAgentRun(ctx, agentRunID)
	if err != nil {
		return err
	}
	s.publish(RunKey(agentRunID), &Change{Op: OpUpdate, Table: TableAgentRuns, Run: run})
	return nil
}

// InsertAgentResponse persists a streamed response chunk and publishes it
// to the run's subscription key.
func (s *SQLiteStore) InsertAgentResponse(ctx context.Context, resp *AgentResponse) error {
	query := `
		INSERT INTO agent_responses (response_id, agent_run_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		resp.ID,
		resp.AgentRunID,
		resp.Content,
		formatTime(resp.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting agent response: %w", err)
	}

	copied := *resp
	s.publish(RunKey(resp.AgentRunID), &Change{Op: OpInsert, Table: TableAgentResponses, Response: &copied})
	return nil
}

// InsertSandboxFile persists a sandbox file metadata row.
func (s *SQLiteStore) InsertSandboxFile(ctx context.Context, file *SandboxFile) error {
	query := `
		INSERT INTO sandbox_files (sandbox_id, file_path, file_name, file_size, file_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sandbox_id, file_path) DO UPDATE SET
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			file_type = excluded.file_type,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		file.SandboxID,
		file.FilePath,
		file.FileName,
		file.FileSize,
		file.FileType,
		formatTime(file.CreatedAt),
		formatTime(file.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting sandbox file: %w", err)
	}

	s.logger.Debug("inserted sandbox file", "sandbox_id", file.SandboxID, "path", file.FilePath)
	return nil
}

// ListSandboxFiles returns a sandbox's file metadata, most recent first.
func (s *SQLiteStore) ListSandboxFiles(ctx context.Context, sandboxID string) ([]*SandboxFile, error) {
	query := `
		SELECT sandbox_id, file_path, file_name, file_size, file_type, created_at, updated_at
		FROM sandbox_files
		WHERE sandbox_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("querying sandbox files: %w", err)
	}
	defer rows.Close()

	var files []*SandboxFile
	for rows.Next() {
		var f SandboxFile
		var createdAt, updatedAt string
		if err := rows.Scan(&f.SandboxID, &f.FilePath, &f.FileName, &f.FileSize, &f.FileType, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning sandbox file: %w", err)
		}
		f.CreatedAt = parseTime(createdAt)
		f.UpdatedAt = parseTime(updatedAt)
		files = append(files, &f)
	}
	return files, rows.Err()
}

// DeleteSandboxFile removes a sandbox file metadata row.
// Returns ErrNotFound if the row doesn't exist.
func (s *SQLiteStore) DeleteSandboxFile(ctx context.Context, sandboxID, path string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sandbox_files WHERE sandbox_id = ? AND file_path = ?`, sandboxID, path)
	if err != nil {
		return fmt.Errorf("deleting sandbox file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted sandbox file", "sandbox_id", sandboxID, "path", path)
	return nil
}
