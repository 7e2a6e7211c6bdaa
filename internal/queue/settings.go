package queue

import (
	"fmt"
	"strings"

	"procqueue/internal/config"
)

// RefresherTask and RefresherRecord identify the persistent item that drives
// recurring schedules.
const (
	RefresherTask   = "refresher"
	RefresherRecord = "schedules"
)

// ScheduleTask and ScheduleBroker mark items published for a configured
// schedule; the record carries the schedule name.
const (
	ScheduleTask   = "schedule"
	ScheduleBroker = "schedule"
)

// Settings are the scheduling attributes and strategy bindings applied when an
// item is published.
type Settings struct {
	Attempts  int
	Priority  int
	Worker    string
	Broker    string
	Container string
	Job       string
	Persist   bool
	// Reset forces the stored attempts and bindings to be replaced on republish.
	Reset bool
}

// DefaultSettings derives settings from the [items] configuration block.
func DefaultSettings(items config.Items) Settings {
	return Settings{
		Attempts:  items.Attempts,
		Priority:  items.Priority,
		Worker:    items.Worker,
		Broker:    items.Broker,
		Container: items.Container,
		Job:       items.Job,
	}
}

// ScheduleSettings applies the overrides of a configured schedule on top of the
// defaults and binds the schedule broker.
func ScheduleSettings(items config.Items, sched config.Schedule) Settings {
	s := DefaultSettings(items)
	s.Broker = ScheduleBroker
	if sched.Priority != nil {
		s.Priority = *sched.Priority
	}
	if sched.Attempts > 0 {
		s.Attempts = sched.Attempts
	}
	if sched.Job != "" {
		s.Job = sched.Job
	}
	if sched.Container != "" {
		s.Container = sched.Container
	}
	return s
}

// RefresherSettings returns the settings of the persistent refresher item.
func RefresherSettings(items config.Items) Settings {
	s := DefaultSettings(items)
	s.Persist = true
	return s
}

// RefresherRequest is the publish request for the persistent refresher item.
func RefresherRequest(items config.Items) PublishRequest {
	return PublishRequest{
		Task:     RefresherTask,
		Record:   RefresherRecord,
		Settings: RefresherSettings(items),
	}
}

// ScheduleRequest is the publish request for one due schedule.
func ScheduleRequest(items config.Items, sched config.Schedule) PublishRequest {
	return PublishRequest{
		Task:     ScheduleTask,
		Record:   sched.Name,
		Settings: ScheduleSettings(items, sched),
	}
}

// PublishRequest describes an item to upsert.
type PublishRequest struct {
	Task     string
	Record   string
	Settings Settings
}

// Payload returns the payload carried by the request.
func (r PublishRequest) Payload() Payload {
	return Payload{Task: r.Task, Record: r.Record}
}

func (r *PublishRequest) normalize() error {
	r.Task = strings.TrimSpace(r.Task)
	if r.Task == "" {
		return fmt.Errorf("%w: task is required", ErrInvalidItem)
	}
	s := &r.Settings
	s.Worker = strings.ToLower(strings.TrimSpace(s.Worker))
	s.Broker = strings.ToLower(strings.TrimSpace(s.Broker))
	s.Container = strings.ToLower(strings.TrimSpace(s.Container))
	s.Job = strings.ToLower(strings.TrimSpace(s.Job))
	bindings := []struct{ name, value string }{
		{"worker", s.Worker},
		{"broker", s.Broker},
		{"container", s.Container},
		{"job", s.Job},
	}
	for _, b := range bindings {
		if b.value == "" {
			return fmt.Errorf("%w: %s binding is required", ErrInvalidItem, b.name)
		}
	}
	if s.Attempts <= 0 {
		return fmt.Errorf("%w: attempts must be positive, got %d", ErrInvalidItem, s.Attempts)
	}
	if s.Priority < config.MinPriority || s.Priority > config.MaxPriority {
		return fmt.Errorf("%w: priority %d outside %d..%d", ErrInvalidItem, s.Priority, config.MinPriority, config.MaxPriority)
	}
	return nil
}

// needsReset applies the clamp rule: the stored budget is replaced when the
// desired budget grew, when the stored attempts exceed the desired budget, for
// persistent items, or when the caller forces it.
func needsReset(existing *Item, s Settings) bool {
	switch {
	case s.Reset, s.Persist, existing.Persist:
		return true
	case s.Attempts > existing.MaxAttempts:
		return true
	case existing.Attempts > s.Attempts:
		return true
	default:
		return false
	}
}
