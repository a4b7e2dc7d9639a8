// ABOUTME: Streaming subscription manager for one agent run
// ABOUTME: Demultiplexes status transitions and response chunks into callbacks

package chatapi

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2389/agentchat/internal/store"
)

// completionMessage is the synthetic message emitted when a run completes.
const completionMessage = "Agent run completed"

// genericRunFailure is the fallback when an errored run carries no message.
const genericRunFailure = "Agent run failed"

// StreamCallbacks receive streamed events for one agent run. Any nil
// callback is ignored.
type StreamCallbacks struct {
	OnMessage func(content string)
	OnError   func(errMsg string)
	OnClose   func()
}

// runStream is the per-run subscription state machine: OPEN until the first
// terminal event or explicit unsubscribe, then CLOSED forever.
type runStream struct {
	agentRunID  string
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
	done        chan struct{}
	onClose     func()
	logger      *slog.Logger
}

// close tears down the subscription synchronously and fires OnClose.
// Reachable exactly once regardless of how many paths race to it; once it
// returns, no further callbacks fire for this stream.
func (s *runStream) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.unsubscribe()
		s.cancel()
		s.logger.Debug("stream closed", "agent_run_id", s.agentRunID)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// StreamAgent opens a change-notification subscription scoped to one agent
// run and dispatches events to the callbacks: response-chunk inserts with
// non-empty content invoke OnMessage; a status update to completed emits a
// synthetic completion via OnMessage then closes; a status update to error
// invokes OnError (with the carried message or a generic fallback) then
// closes. Other status values are intentionally ignored; only terminal
// statuses matter to the caller.
//
// The returned unsubscribe function cancels the subscription early and is
// idempotent: calling it after the stream auto-closed, or calling it twice,
// produces no callbacks and no error. OnClose fires exactly once per
// subscription however the stream terminates.
func (c *Client) StreamAgent(agentRunID string, cb StreamCallbacks) func() {
	ctx, cancel := context.WithCancel(context.Background())
	key := store.RunKey(agentRunID)
	ch, subID := c.feed.Subscribe(ctx, key)

	s := &runStream{
		agentRunID:  agentRunID,
		cancel:      cancel,
		unsubscribe: func() { c.feed.Unsubscribe(key, subID) },
		done:        make(chan struct{}),
		onClose:     cb.OnClose,
		logger:      c.logger,
	}

	go s.dispatch(ch, cb)

	c.logger.Debug("stream opened", "agent_run_id", agentRunID)
	return s.close
}

// dispatch consumes the subscription channel until a terminal event arrives
// or the stream is torn down by unsubscribe.
func (s *runStream) dispatch(ch <-chan *store.Change, cb StreamCallbacks) {
	for {
		var change *store.Change
		select {
		case <-s.done:
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			change = c
		}

		// Buffered events lose the race against an explicit unsubscribe
		select {
		case <-s.done:
			return
		default:
		}

		switch {
		case change.Table == store.TableAgentRuns && change.Op == store.OpUpdate && change.Run != nil:
			switch change.Run.Status {
			case store.RunStatusCompleted:
				if cb.OnMessage != nil {
					cb.OnMessage(completionMessage)
				}
				s.close()
				return

			case store.RunStatusError:
				msg := change.Run.ErrorMessage
				if msg == "" {
					msg = genericRunFailure
				}
				if cb.OnError != nil {
					cb.OnError(msg)
				}
				s.close()
				return
			}
			// Non-terminal statuses carry no information for the caller

		case change.Table == store.TableAgentResponses && change.Op == store.OpInsert && change.Response != nil:
			if change.Response.Content != "" && cb.OnMessage != nil {
				cb.OnMessage(change.Response.Content)
			}
		}
	}
}
