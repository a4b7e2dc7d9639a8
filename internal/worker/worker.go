// ABOUTME: In-process agent run worker that observes new runs and streams echo replies
// ABOUTME: Stand-in for a remote inference worker; honors cancellation between chunks

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentchat/internal/realtime"
	"github.com/2389/agentchat/internal/store"
)

// defaultChunkDelay paces chunk inserts to simulate streaming.
const defaultChunkDelay = 50 * time.Millisecond

// maxChunkLen bounds the size of each streamed response chunk.
const maxChunkLen = 24

// Worker fulfills agent runs: it watches for newly created runs, streams a
// chunked reply into agent_responses, and finalizes the run status. It
// re-reads the run between chunks so a cancel lands between writes.
type Worker struct {
	store      store.Store
	feed       *realtime.Feed
	chunkDelay time.Duration
	logger     *slog.Logger
}

// New creates a worker. chunkDelay <= 0 uses the default pacing; pass nil
// logger for default.
func New(st store.Store, feed *realtime.Feed, chunkDelay time.Duration, logger *slog.Logger) *Worker {
	if chunkDelay <= 0 {
		chunkDelay = defaultChunkDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:      st,
		feed:       feed,
		chunkDelay: chunkDelay,
		logger:     logger.With("component", "worker"),
	}
}

// Run subscribes to run-created events and fulfills each run until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	ch, _ := w.feed.Subscribe(ctx, store.KeyRunCreated)
	w.logger.Info("worker started")

	for change := range ch {
		if change.Table != store.TableAgentRuns || change.Op != store.OpInsert || change.Run == nil {
			continue
		}
		go w.fulfill(ctx, change.Run)
	}

	w.logger.Info("worker stopped")
}

// fulfill streams an echo reply for one run and marks it completed. If the
// run reaches a terminal state underneath us (cancelled), streaming stops
// and the status is left untouched.
func (w *Worker) fulfill(ctx context.Context, run *store.AgentRun) {
	w.logger.Debug("fulfilling run", "agent_run_id", run.ID, "thread_id", run.ThreadID, "model", run.ModelName)

	prompt, err := w.latestUserPrompt(ctx, run.ThreadID)
	if err != nil {
		w.logger.Error("failed to read prompt", "error", err, "agent_run_id", run.ID)
		w.finish(ctx, run.ID, store.RunStatusError, "failed to read prompt")
		return
	}

	// Give the subscriber that created the run one pacing interval to
	// attach before the first chunk lands; the feed drops events published
	// before a subscription exists.
	select {
	case <-time.After(w.chunkDelay):
	case <-ctx.Done():
		return
	}

	for _, chunk := range chunkReply(echoReply(prompt)) {
		current, err := w.store.GetAgentRun(ctx, run.ID)
		if err != nil {
			w.logger.Error("failed to re-read run", "error", err, "agent_run_id", run.ID)
			return
		}
		if current.Terminal() {
			w.logger.Debug("run reached terminal state mid-stream", "agent_run_id", run.ID, "status", current.Status)
			return
		}

		resp := &store.AgentResponse{
			ID:         uuid.New().String(),
			AgentRunID: run.ID,
			Content:    chunk,
			CreatedAt:  time.Now(),
		}
		if err := w.store.InsertAgentResponse(ctx, resp); err != nil {
			w.logger.Error("failed to insert response chunk", "error", err, "agent_run_id", run.ID)
			w.finish(ctx, run.ID, store.RunStatusError, "failed to write response")
			return
		}

		select {
		case <-time.After(w.chunkDelay):
		case <-ctx.Done():
			return
		}
	}

	w.finish(ctx, run.ID, store.RunStatusCompleted, "")
}

// finish transitions the run with a persistence context detached from the
// worker's, so shutdown doesn't strand a run mid-status.
func (w *Worker) finish(ctx context.Context, agentRunID, status, errorMessage string) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := w.store.UpdateAgentRunStatus(saveCtx, agentRunID, status, errorMessage); err != nil {
		w.logger.Error("failed to finalize run", "error", err, "agent_run_id", agentRunID, "status", status)
		return
	}
	w.logger.Debug("run finalized", "agent_run_id", agentRunID, "status", status)
}

// latestUserPrompt returns the content of the thread's most recent user
// message, unwrapping the role/content envelope when present.
func (w *Worker) latestUserPrompt(ctx context.Context, threadID string) (string, error) {
	msgs, err := w.store.ListThreadMessages(ctx, threadID)
	if err != nil {
		return "", err
	}

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type != store.MessageTypeUser {
			continue
		}
		var envelope struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(msgs[i].Content), &envelope); err == nil && envelope.Content != "" {
			return envelope.Content, nil
		}
		return msgs[i].Content, nil
	}
	return "", fmt.Errorf("thread %s has no user message", threadID)
}

// echoReply produces a canned reply for a prompt.
func echoReply(prompt string) string {
	lower := strings.ToLower(prompt)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n\n> This is a blockquote.\n"
	}
	return fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", prompt)
}

// chunkReply splits a reply on word boundaries into streaming-sized chunks.
func chunkReply(reply string) []string {
	words := strings.SplitAfter(reply, " ")

	var chunks []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() > 0 && current.Len()+len(word) > maxChunkLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
