package queue

import "errors"

var (
	// ErrNotFound is returned when no item matches the requested hash.
	ErrNotFound = errors.New("queue item not found")

	// ErrInvalidItem rejects publish requests that cannot produce a runnable item.
	ErrInvalidItem = errors.New("invalid queue item")

	// ErrHookFailed wraps ban hook failures. The ban itself is already persisted
	// when this error is returned.
	ErrHookFailed = errors.New("ban hook failed")
)
