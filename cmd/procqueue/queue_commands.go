package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"procqueue/internal/manager"
	"procqueue/internal/queue"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var (
		attempts  int
		priority  int
		workerKey string
		broker    string
		container string
		job       string
		persist   bool
		reset     bool
	)

	cmd := &cobra.Command{
		Use:   "publish <task> [record]",
		Short: "Publish an item (idempotent by task and record)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			settings := queue.DefaultSettings(cfg.Items)
			flags := cmd.Flags()
			if flags.Changed("attempts") {
				settings.Attempts = attempts
			}
			if flags.Changed("priority") {
				settings.Priority = priority
			}
			if flags.Changed("worker") {
				settings.Worker = workerKey
			}
			if flags.Changed("broker") {
				settings.Broker = broker
			}
			if flags.Changed("container") {
				settings.Container = container
			}
			if flags.Changed("job") {
				settings.Job = job
			}
			settings.Persist = persist
			settings.Reset = reset

			req := queue.PublishRequest{Task: args[0], Settings: settings}
			if len(args) > 1 {
				req.Record = args[1]
			}
			reg := newRegistry()
			return ctx.withStore(func(store *queue.Store) error {
				store.SetBindingCheck(reg.ValidateBindings)
				item, err := store.Publish(cmd.Context(), req, ctx.publishQueue())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, itemView(item))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s (attempts %d/%d, priority %d)\n",
					item.Hash, item.Queue, item.Attempts, item.MaxAttempts, item.Priority)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&attempts, "attempts", 0, "Attempt budget (default from [items])")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority 0-9, lower runs first (default from [items])")
	cmd.Flags().StringVar(&workerKey, "worker", "", "Worker strategy")
	cmd.Flags().StringVar(&broker, "broker", "", "Broker strategy")
	cmd.Flags().StringVar(&container, "container", "", "Container strategy")
	cmd.Flags().StringVar(&job, "job", "", "Job strategy")
	cmd.Flags().BoolVar(&persist, "persist", false, "Keep the item after success and run it again")
	cmd.Flags().BoolVar(&reset, "reset", false, "Replace stored attempts and bindings of an existing item")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		stateFlag string
		banned    bool
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.Filter{Queue: ctx.queueName(), Limit: limit}
			if banned {
				stateFlag = string(queue.StateBanned)
			}
			if strings.TrimSpace(stateFlag) != "" {
				state, ok := queue.ParseState(stateFlag)
				if !ok {
					return fmt.Errorf("unknown state %q", stateFlag)
				}
				filter.State = state
			}
			return ctx.withStore(func(store *queue.Store) error {
				items, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					views := make([]itemJSON, 0, len(items))
					for _, item := range items {
						views = append(views, itemView(item))
					}
					return writeJSON(cmd, views)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Hash", "Queue", "State", "Priority", "Attempts", "Job", "Changed"},
					buildListRows(items, time.Now()),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stateFlag, "state", "", "Filter by state (pending, running, banned)")
	cmd.Flags().BoolVar(&banned, "banned", false, "Only show banned items")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of items")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <hash>",
		Short: "Show one queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				item, err := store.GetByHash(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, itemView(item))
				}
				printItem(cmd.OutOrStdout(), item)
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var allBanned bool

	cmd := &cobra.Command{
		Use:   "retry [hash]",
		Short: "Unban an item and restore its attempt budget",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !allBanned && len(args) == 0 {
				return errors.New("specify an item hash or --all-banned")
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				if allBanned {
					count, err := store.RetryBanned(cmd.Context(), ctx.queueName())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %d banned item(s)\n", count)
					return nil
				}
				item, err := store.Retry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Retried %s (attempts %d)\n", item.Hash, item.Attempts)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&allBanned, "all-banned", false, "Retry every banned item in the queue")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <hash>...",
		Short: "Delete items from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s)\n", removed)
				return nil
			})
		},
	}
}

func newOrphansCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "Requeue items left running by a manager that is gone",
		Long: "Orphans releases every running item of the queue back to pending. " +
			"Only use it while no manager serves the queue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := manager.Lock(cfg, ctx.queueName())
			if errors.Is(err, manager.ErrLocked) {
				return errors.New("a manager is running for this queue; stop it before requeueing orphans")
			}
			if err != nil {
				return fmt.Errorf("check manager lock: %w", err)
			}
			defer lock.Unlock() //nolint:errcheck

			return ctx.withStore(func(store *queue.Store) error {
				count, err := store.RequeueOrphans(cmd.Context(), time.Now(), ctx.queueName())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d orphaned item(s)\n", count)
				return nil
			})
		},
	}
}
