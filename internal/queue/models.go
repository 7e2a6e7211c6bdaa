package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// State is the derived lifecycle position of an item.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateBanned  State = "banned"
)

var allStates = []State{StatePending, StateRunning, StateBanned}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range allStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// Item is one unit of deferred work persisted in SQLite.
type Item struct {
	ID      int64
	Hash    string
	Queue   string
	Payload string

	Worker    string
	Broker    string
	Container string
	Job       string

	Priority    int
	Attempts    int
	MaxAttempts int
	Banned      bool
	Running     bool
	Persist     bool

	CreatedAt   time.Time
	StartedAt   time.Time
	ChangedAt   time.Time
	CompletedAt time.Time
	// AvailableAt delays the next lease of a persistent item after it succeeds.
	AvailableAt time.Time
}

// State reports where the item sits in its lifecycle.
func (i Item) State() State {
	switch {
	case i.Banned:
		return StateBanned
	case i.Running:
		return StateRunning
	default:
		return StatePending
	}
}

// Payload names the task an item runs and the record it operates on. The
// manager never looks inside it; only the subprocess decodes it.
type Payload struct {
	Task   string `json:"task"`
	Record string `json:"record"`
}

// Hash is the deterministic identity of a task and record pair.
func (p Payload) Hash() string {
	return p.Task + "_" + p.Record
}

// Encode serializes the payload for storage.
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload parses a stored payload.
func DecodePayload(raw string) (Payload, error) {
	var p Payload
	if strings.TrimSpace(raw) == "" {
		return p, fmt.Errorf("decode payload: empty")
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if p.Task == "" {
		return p, fmt.Errorf("decode payload: missing task")
	}
	return p, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Queue string
	State State
	Limit int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated counts per lifecycle state.
type HealthSummary struct {
	Total   int
	Pending int
	Running int
	Banned  int
	Persist int
}

// ScheduleState is the persisted bookkeeping for one recurring schedule.
type ScheduleState struct {
	Name           string
	NextRun        time.Time
	LastPublished  time.Time
	Disabled       bool
	DisabledReason string
}
