package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"procqueue/internal/preflight"
	"procqueue/internal/queue"
)

type checkJSON struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

type healthJSON struct {
	Checks    []checkJSON           `json:"checks"`
	Database  queue.DatabaseHealth  `json:"database"`
	Summary   queue.HealthSummary   `json:"summary"`
	Schedules []queue.ScheduleState `json:"schedules"`
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health and per-state counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checks := preflight.RunAll(cmd.Context(), cfg, ctx.queueName())
			return ctx.withStore(func(store *queue.Store) error {
				db, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				summary, err := store.Health(cmd.Context(), ctx.queueName())
				if err != nil {
					return err
				}
				schedules, err := store.Schedules(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, healthJSON{Checks: checksJSON(checks), Database: db, Summary: summary, Schedules: schedules})
				}

				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(out, []string{"Check", "Status", "Detail"}, buildCheckRows(checks), nil))
				fmt.Fprintf(out, "Database path: %s\n", db.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(db.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(db.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %d\n", db.SchemaVersion)
				fmt.Fprintf(out, "queue_items table present: %s\n", yesNo(db.TableExists))
				if len(db.MissingColumns) > 0 {
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(db.MissingColumns, ", "))
				} else {
					fmt.Fprintln(out, "Missing columns: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(db.IntegrityCheck))
				if db.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", db.Error)
				}

				rows := [][]string{
					{stateLabel(queue.StatePending), strconv.Itoa(summary.Pending)},
					{stateLabel(queue.StateRunning), strconv.Itoa(summary.Running)},
					{stateLabel(queue.StateBanned), strconv.Itoa(summary.Banned)},
					{"Persistent", strconv.Itoa(summary.Persist)},
					{"Total", strconv.Itoa(summary.Total)},
				}
				fmt.Fprint(out, renderTable(out, []string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

				if len(schedules) > 0 {
					fmt.Fprint(out, renderTable(out,
						[]string{"Schedule", "Next run", "Last published", "Disabled"},
						buildScheduleRows(schedules),
						nil,
					))
				}
				return nil
			})
		},
	}
}

func buildCheckRows(results []preflight.Result) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if !r.Passed {
			status = "FAIL"
		}
		rows = append(rows, []string{r.Name, status, r.Detail})
	}
	return rows
}

func checksJSON(results []preflight.Result) []checkJSON {
	out := make([]checkJSON, 0, len(results))
	for _, r := range results {
		out = append(out, checkJSON{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

func buildScheduleRows(states []queue.ScheduleState) [][]string {
	rows := make([][]string, 0, len(states))
	for _, st := range states {
		disabled := yesNo(st.Disabled)
		if st.Disabled && st.DisabledReason != "" {
			disabled += ": " + st.DisabledReason
		}
		rows = append(rows, []string{
			st.Name,
			orDash(formatStamp(st.NextRun)),
			orDash(formatStamp(st.LastPublished)),
			disabled,
		})
	}
	return rows
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
