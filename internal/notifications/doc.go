// Package notifications sends operator alerts to an ntfy topic.
//
// Alerts cover the events that need a human: an item banned after exhausting
// its attempts, and orphaned items recovered at startup. When no topic is
// configured NewService returns a no-op, so callers never branch on it.
package notifications
