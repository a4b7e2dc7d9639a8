// ABOUTME: In-memory fan-out change feed for row-level store notifications
// ABOUTME: Delivers store.Change events to all subscribers of a subscription key

package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/agentchat/internal/store"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Feed provides in-memory pub/sub for row-level change events. Subscribers
// register for a subscription key (store.RunKey or store.KeyRunCreated) and
// receive changes in the order they are published. Feed implements
// store.Notifier so it can be injected directly into a store.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.Change // key -> subID -> ch
	logger      *slog.Logger
}

// NewFeed creates a change feed. Pass nil logger for default.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		subscribers: make(map[string]map[string]chan *store.Change),
		logger:      logger.With("component", "feed"),
	}
}

// Subscribe registers a subscriber for changes on the given key. Returns a
// channel that receives changes and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (f *Feed) Subscribe(ctx context.Context, key string) (<-chan *store.Change, string) {
	subID := uuid.New().String()
	ch := make(chan *store.Change, subscriberBufferSize)

	f.mu.Lock()
	if _, ok := f.subscribers[key]; !ok {
		f.subscribers[key] = make(map[string]chan *store.Change)
	}
	f.subscribers[key][subID] = ch
	f.mu.Unlock()

	f.logger.Debug("subscriber added", "key", key, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		f.Unsubscribe(key, subID)
	}()

	return ch, subID
}

// Publish sends a change to all subscribers of the given key.
// Non-blocking: changes are dropped for subscribers whose channels are full.
func (f *Feed) Publish(key string, change *store.Change) {
	f.mu.RLock()
	subs, ok := f.subscribers[key]
	if !ok || len(subs) == 0 {
		f.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan *store.Change, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	f.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- change:
			// Sent
		default:
			// Subscriber channel full, drop change for this subscriber
			f.logger.Debug("dropped change for slow subscriber",
				"key", key,
				"table", change.Table,
				"op", change.Op)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times for the same subscription.
func (f *Feed) Unsubscribe(key, subID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subscribers[key]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty key entries
	if len(subs) == 0 {
		delete(f.subscribers, key)
	}

	f.logger.Debug("subscriber removed", "key", key, "sub_id", subID)
}

// Close shuts down the feed and closes all subscriber channels.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key, subs := range f.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(f.subscribers, key)
	}

	f.logger.Debug("feed closed")
}
