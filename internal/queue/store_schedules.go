package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ScheduleState returns the bookkeeping row for a schedule. A schedule that has
// never been seen yields a zero state with the name filled in.
func (s *Store) ScheduleState(ctx context.Context, name string) (ScheduleState, error) {
	ctx = ensureContext(ctx)
	state := ScheduleState{Name: name}
	var (
		nextRaw, lastRaw, reason sql.NullString
		disabled                 int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT next_run, last_published, disabled, disabled_reason FROM schedules WHERE name = ?`,
		name,
	).Scan(&nextRaw, &lastRaw, &disabled, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("load schedule %s: %w", name, err)
	}
	state.NextRun, _ = parseTimeString(nextRaw.String)
	state.LastPublished, _ = parseTimeString(lastRaw.String)
	state.Disabled = disabled != 0
	state.DisabledReason = reason.String
	return state, nil
}

// Schedules lists every schedule bookkeeping row by name.
func (s *Store) Schedules(ctx context.Context) ([]ScheduleState, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, next_run, last_published, disabled, disabled_reason FROM schedules ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var states []ScheduleState
	for rows.Next() {
		var (
			state                    ScheduleState
			nextRaw, lastRaw, reason sql.NullString
			disabled                 int
		)
		if err := rows.Scan(&state.Name, &nextRaw, &lastRaw, &disabled, &reason); err != nil {
			return nil, err
		}
		state.NextRun, _ = parseTimeString(nextRaw.String)
		state.LastPublished, _ = parseTimeString(lastRaw.String)
		state.Disabled = disabled != 0
		state.DisabledReason = reason.String
		states = append(states, state)
	}
	return states, rows.Err()
}

// SetNextRun stores when a schedule is next due. A non-zero published time
// records the publish that advanced it.
func (s *Store) SetNextRun(ctx context.Context, name string, next, published time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO schedules (name, next_run, last_published) VALUES (?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET
             next_run = excluded.next_run,
             last_published = COALESCE(excluded.last_published, schedules.last_published)`,
		name, nullableTime(next), nullableTime(published),
	); err != nil {
		return fmt.Errorf("set next run for %s: %w", name, err)
	}
	return nil
}

// DisableSchedule stops the refresher from publishing a schedule.
func (s *Store) DisableSchedule(ctx context.Context, name, reason string) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO schedules (name, disabled, disabled_reason) VALUES (?, 1, ?)
         ON CONFLICT(name) DO UPDATE SET disabled = 1, disabled_reason = excluded.disabled_reason`,
		name, nullableString(reason),
	); err != nil {
		return fmt.Errorf("disable schedule %s: %w", name, err)
	}
	return nil
}

// EnableSchedule clears a previous disable.
func (s *Store) EnableSchedule(ctx context.Context, name string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE schedules SET disabled = 0, disabled_reason = NULL WHERE name = ?`,
		name,
	); err != nil {
		return fmt.Errorf("enable schedule %s: %w", name, err)
	}
	return nil
}
