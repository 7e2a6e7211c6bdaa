package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Lease atomically claims up to limit items that are neither banned nor
// running, ordered by priority and then by completion time, and marks them
// running with a fresh start time. An empty queueName leases across queues.
func (s *Store) Lease(ctx context.Context, limit int, queueName string) ([]*Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := formatTime(s.timestamp())
	queueName = strings.TrimSpace(queueName)
	items, err := s.queryItemsWithRetry(ctx,
		`UPDATE queue_items
         SET running = 1, started_at = ?, changed_at = ?
         WHERE id IN (
             SELECT id FROM queue_items
             WHERE banned = 0 AND running = 0 AND (? = '' OR queue = ?)
               AND (available_at IS NULL OR available_at <= ?)
             ORDER BY priority ASC, completed_at ASC, id ASC
             LIMIT ?
         )
         RETURNING `+itemColumns,
		now, now, queueName, queueName, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lease items: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.Before(b.CompletedAt)
		}
		return a.ID < b.ID
	})
	return items, nil
}

// Ack records a successful run. The row is deleted unless the item persists,
// in which case it returns to pending with its attempts budget restored.
func (s *Store) Ack(ctx context.Context, item *Item) error {
	now := s.timestamp()
	if item.Persist {
		s.mu.RLock()
		available := now.Add(s.persistDelay)
		s.mu.RUnlock()
		if _, err := s.execWithRetry(ctx,
			`UPDATE queue_items
             SET running = 0, banned = 0, attempts = max_attempts, completed_at = ?, changed_at = ?, available_at = ?
             WHERE id = ?`,
			formatTime(now), formatTime(now), formatTime(available), item.ID,
		); err != nil {
			return fmt.Errorf("ack %s: %w", item.Hash, err)
		}
		item.Running = false
		item.Banned = false
		item.Attempts = item.MaxAttempts
		item.CompletedAt = now
		item.ChangedAt = now
		item.AvailableAt = available
		return nil
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE id = ?`, item.ID); err != nil {
		return fmt.Errorf("ack %s: %w", item.Hash, err)
	}
	item.Running = false
	item.CompletedAt = now
	return nil
}

// Nack returns a failed item to pending with the attempts count it carries. An
// item whose budget is exhausted is banned instead.
func (s *Store) Nack(ctx context.Context, item *Item) error {
	if item.Attempts <= 0 {
		return s.Ban(ctx, item)
	}
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET running = 0, attempts = ?, completed_at = ?, changed_at = ?
         WHERE id = ?`,
		item.Attempts, formatTime(now), formatTime(now), item.ID,
	); err != nil {
		return fmt.Errorf("nack %s: %w", item.Hash, err)
	}
	item.Running = false
	item.CompletedAt = now
	item.ChangedAt = now
	return nil
}

// Ban marks an item terminally failed and then runs the ban hook, if any.
func (s *Store) Ban(ctx context.Context, item *Item) error {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET banned = 1, running = 0, attempts = 0, completed_at = ?, changed_at = ?
         WHERE id = ?`,
		formatTime(now), formatTime(now), item.ID,
	); err != nil {
		return fmt.Errorf("ban %s: %w", item.Hash, err)
	}
	item.Banned = true
	item.Running = false
	item.Attempts = 0
	item.CompletedAt = now
	item.ChangedAt = now

	s.mu.RLock()
	hook := s.banHook
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(ensureContext(ctx), item); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrHookFailed, item.Hash, err)
		}
	}
	return nil
}

// RequeueOrphans releases items left running by a manager that started before
// since. An empty queueName sweeps every queue.
func (s *Store) RequeueOrphans(ctx context.Context, since time.Time, queueName string) (int64, error) {
	queueName = strings.TrimSpace(queueName)
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET running = 0, changed_at = ?
         WHERE running = 1 AND (started_at IS NULL OR started_at < ?) AND (? = '' OR queue = ?)`,
		formatTime(s.timestamp()), formatTime(since), queueName, queueName,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue orphans: %w", err)
	}
	return res.RowsAffected()
}

// Retry unbans an item and restores its attempts budget.
func (s *Store) Retry(ctx context.Context, hash string) (*Item, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET banned = 0, running = 0, attempts = max_attempts, available_at = NULL, changed_at = ?
         WHERE hash = ? AND running = 0`,
		formatTime(s.timestamp()), hash,
	)
	if err != nil {
		return nil, fmt.Errorf("retry %s: %w", hash, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		item, err := s.GetByHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("retry %s: item is running", item.Hash)
	}
	return s.GetByHash(ctx, hash)
}

// RetryBanned unbans every banned item, optionally limited to one queue.
func (s *Store) RetryBanned(ctx context.Context, queueName string) (int64, error) {
	queueName = strings.TrimSpace(queueName)
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET banned = 0, attempts = max_attempts, changed_at = ?
         WHERE banned = 1 AND (? = '' OR queue = ?)`,
		formatTime(s.timestamp()), queueName, queueName,
	)
	if err != nil {
		return 0, fmt.Errorf("retry banned: %w", err)
	}
	return res.RowsAffected()
}
