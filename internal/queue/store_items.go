package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Publish upserts an item keyed by the hash of its task and record. A new item
// takes its attempts, priority and bindings from the request. An existing item
// keeps its stored settings unless the clamp rule demands a reset.
func (s *Store) Publish(ctx context.Context, req PublishRequest, queueName string) (*Item, error) {
	ctx = ensureContext(ctx)
	if err := req.normalize(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	check := s.check
	s.mu.RUnlock()
	if check != nil {
		if err := check(req.Settings); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidItem, err)
		}
	}
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		return nil, fmt.Errorf("%w: queue name is required", ErrInvalidItem)
	}

	payload := req.Payload()
	encoded, err := payload.Encode()
	if err != nil {
		return nil, err
	}
	hash := payload.Hash()

	var published *Item
	err = retryOnBusy(ctx, func() error {
		item, txErr := s.publishTx(ctx, hash, encoded, queueName, req.Settings)
		published = item
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", hash, err)
	}
	return published, nil
}

func (s *Store) publishTx(ctx context.Context, hash, payload, queueName string, set Settings) (*Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(s.timestamp())
	existing, err := scanItem(tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE hash = ?`, hash))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO queue_items (
                hash, queue, payload, worker, broker, container, job,
                priority, attempts, max_attempts, banned, running, persist,
                created_at, changed_at, completed_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?)`,
			hash, queueName, payload,
			set.Worker, set.Broker, set.Container, set.Job,
			set.Priority, set.Attempts, set.Attempts, boolToInt(set.Persist),
			now, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert item: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("load item: %w", err)
	case needsReset(existing, set):
		_, err = tx.ExecContext(ctx,
			`UPDATE queue_items
             SET queue = ?, payload = ?, worker = ?, broker = ?, container = ?, job = ?,
                 priority = ?, attempts = ?, max_attempts = ?, banned = 0, persist = ?, changed_at = ?,
                 available_at = NULL
             WHERE id = ?`,
			queueName, payload,
			set.Worker, set.Broker, set.Container, set.Job,
			set.Priority, set.Attempts, set.Attempts, boolToInt(set.Persist || existing.Persist), now,
			existing.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("reset item: %w", err)
		}
	default:
		if _, err = tx.ExecContext(ctx,
			`UPDATE queue_items SET payload = ?, changed_at = ? WHERE id = ?`,
			payload, now, existing.ID,
		); err != nil {
			return nil, fmt.Errorf("touch item: %w", err)
		}
	}

	item, err := scanItem(tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE hash = ?`, hash))
	if err != nil {
		return nil, fmt.Errorf("reload item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return item, nil
}

// GetByHash fetches one item by its hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*Item, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE hash = ?`, hash)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns items in lease order, filtered by queue and state.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	var (
		clauses []string
		args    []any
	)
	if filter.Queue != "" {
		clauses = append(clauses, "queue = ?")
		args = append(args, filter.Queue)
	}
	switch filter.State {
	case StatePending:
		clauses = append(clauses, "banned = 0 AND running = 0")
	case StateRunning:
		clauses = append(clauses, "banned = 0 AND running = 1")
	case StateBanned:
		clauses = append(clauses, "banned = 1")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY priority ASC, completed_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	items, err := s.queryItemsWithRetry(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Remove deletes the items with the given hashes and reports how many rows went away.
func (s *Store) Remove(ctx context.Context, hashes ...string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM queue_items WHERE hash IN (`+makePlaceholders(len(hashes))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("remove items: %w", err)
	}
	return res.RowsAffected()
}
