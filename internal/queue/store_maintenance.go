package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var expectedColumns = []string{
	"id",
	"hash",
	"queue",
	"payload",
	"worker",
	"broker",
	"container",
	"job",
	"priority",
	"attempts",
	"max_attempts",
	"banned",
	"running",
	"persist",
	"created_at",
	"started_at",
	"changed_at",
	"completed_at",
	"available_at",
}

// Stats returns a count of items grouped by state, optionally for one queue.
func (s *Store) Stats(ctx context.Context, queueName string) (map[State]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT banned, running, COUNT(1) FROM queue_items
         WHERE (? = '' OR queue = ?)
         GROUP BY banned, running`,
		queueName, queueName,
	)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int, len(allStates))
	for rows.Next() {
		var banned, running, count int
		if err := rows.Scan(&banned, &running, &count); err != nil {
			return nil, err
		}
		item := Item{Banned: banned != 0, Running: running != 0}
		stats[item.State()] += count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context, queueName string) (HealthSummary, error) {
	stats, err := s.Stats(ctx, queueName)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{
		Pending: stats[StatePending],
		Running: stats[StateRunning],
		Banned:  stats[StateBanned],
	}
	health.Total = health.Pending + health.Running + health.Banned

	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM queue_items WHERE persist = 1 AND (? = '' OR queue = ?)`,
		queueName, queueName,
	)
	if err := row.Scan(&health.Persist); err != nil {
		return health, fmt.Errorf("count persistent items: %w", err)
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "PRAGMA user_version").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	var tableName string
	err = s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'queue_items'").Scan(&tableName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		health.MissingColumns = append(health.MissingColumns, expectedColumns...)
	case err != nil:
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	default:
		health.TableExists = true
		missing, err := s.missingColumns(connCtx)
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		health.MissingColumns = missing
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM queue_items").Scan(&health.TotalItems); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count queue items: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	return health, nil
}

func (s *Store) missingColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(queue_items)")
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	present := make(map[string]struct{}, len(expectedColumns))
	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		present[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}

	var missing []string
	for _, col := range expectedColumns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing, nil
}
