package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"procqueue/internal/queue"
)

var stateCaser = cases.Title(language.English)

// itemJSON is the machine-readable view of a queue item.
type itemJSON struct {
	ID          int64  `json:"id"`
	Hash        string `json:"hash"`
	Queue       string `json:"queue"`
	State       string `json:"state"`
	Task        string `json:"task"`
	Record      string `json:"record"`
	Worker      string `json:"worker"`
	Broker      string `json:"broker"`
	Container   string `json:"container"`
	Job         string `json:"job"`
	Priority    int    `json:"priority"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Persist     bool   `json:"persist"`
	CreatedAt   string `json:"created_at,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	ChangedAt   string `json:"changed_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	AvailableAt string `json:"available_at,omitempty"`
}

func itemView(item *queue.Item) itemJSON {
	payload, _ := queue.DecodePayload(item.Payload)
	return itemJSON{
		ID:          item.ID,
		Hash:        item.Hash,
		Queue:       item.Queue,
		State:       string(item.State()),
		Task:        payload.Task,
		Record:      payload.Record,
		Worker:      item.Worker,
		Broker:      item.Broker,
		Container:   item.Container,
		Job:         item.Job,
		Priority:    item.Priority,
		Attempts:    item.Attempts,
		MaxAttempts: item.MaxAttempts,
		Persist:     item.Persist,
		CreatedAt:   formatStamp(item.CreatedAt),
		StartedAt:   formatStamp(item.StartedAt),
		ChangedAt:   formatStamp(item.ChangedAt),
		CompletedAt: formatStamp(item.CompletedAt),
		AvailableAt: formatStamp(item.AvailableAt),
	}
}

func stateLabel(state queue.State) string {
	return stateCaser.String(string(state))
}

func buildListRows(items []*queue.Item, now time.Time) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		state := stateLabel(item.State())
		if item.Persist {
			state += " (persist)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Hash,
			item.Queue,
			state,
			strconv.Itoa(item.Priority),
			fmt.Sprintf("%d/%d", item.Attempts, item.MaxAttempts),
			item.Job,
			formatAge(now, item.ChangedAt),
		})
	}
	return rows
}

func printItem(out io.Writer, item *queue.Item) {
	view := itemView(item)
	fmt.Fprintf(out, "Hash: %s\n", view.Hash)
	fmt.Fprintf(out, "ID: %d\n", view.ID)
	fmt.Fprintf(out, "Queue: %s\n", view.Queue)
	fmt.Fprintf(out, "State: %s\n", stateLabel(item.State()))
	fmt.Fprintf(out, "Task: %s\n", view.Task)
	fmt.Fprintf(out, "Record: %s\n", view.Record)
	fmt.Fprintf(out, "Bindings: worker=%s broker=%s container=%s job=%s\n", view.Worker, view.Broker, view.Container, view.Job)
	fmt.Fprintf(out, "Priority: %d\n", view.Priority)
	fmt.Fprintf(out, "Attempts: %d/%d\n", view.Attempts, view.MaxAttempts)
	fmt.Fprintf(out, "Persist: %s\n", yesNo(view.Persist))
	for _, field := range []struct{ label, value string }{
		{"Created", view.CreatedAt},
		{"Started", view.StartedAt},
		{"Changed", view.ChangedAt},
		{"Completed", view.CompletedAt},
		{"Available", view.AvailableAt},
	} {
		if field.value != "" {
			fmt.Fprintf(out, "%s: %s\n", field.label, field.value)
		}
	}
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatAge(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := now.Sub(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}
