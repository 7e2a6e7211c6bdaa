package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, hash, queue, payload, worker, broker, container, job, priority, attempts, max_attempts, banned, running, persist, created_at, started_at, changed_at, completed_at, available_at"

// timeLayout is fixed width so stored timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item         Item
		banned       int
		running      int
		persist      int
		createdRaw   string
		startedRaw   sql.NullString
		changedRaw   string
		completedRaw string
		availableRaw sql.NullString
	)
	if err := scanner.Scan(
		&item.ID,
		&item.Hash,
		&item.Queue,
		&item.Payload,
		&item.Worker,
		&item.Broker,
		&item.Container,
		&item.Job,
		&item.Priority,
		&item.Attempts,
		&item.MaxAttempts,
		&banned,
		&running,
		&persist,
		&createdRaw,
		&startedRaw,
		&changedRaw,
		&completedRaw,
		&availableRaw,
	); err != nil {
		return nil, err
	}
	item.Banned = banned != 0
	item.Running = running != 0
	item.Persist = persist != 0
	item.CreatedAt, _ = parseTimeString(createdRaw)
	item.StartedAt, _ = parseTimeString(startedRaw.String)
	item.ChangedAt, _ = parseTimeString(changedRaw)
	item.CompletedAt, _ = parseTimeString(completedRaw)
	item.AvailableAt, _ = parseTimeString(availableRaw.String)
	return &item, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
