// Package realtime provides in-memory pub/sub for row-change notifications.
//
// Feed fans out store.Change events to all subscribers of a subscription
// key. Delivery is non-blocking: a subscriber that falls behind its buffer
// loses events rather than stalling publishers. Feed implements
// store.Notifier so it can be injected directly into a store.
package realtime
