package tasks

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"procqueue/internal/logging"
	"procqueue/internal/queue"
	"procqueue/internal/refresher"
	"procqueue/internal/strategy"
)

// Task names.
const (
	CommandTask   = "command"
	NoopTask      = "noop"
	RefresherTask = queue.RefresherTask
)

const commandWaitDelay = 2 * time.Second

// Register adds the built-in tasks to reg.
func Register(reg *strategy.Registry) {
	reg.RegisterTask(CommandTask, strategy.TaskFunc(Command))
	reg.RegisterTask(NoopTask, strategy.TaskFunc(Noop))
	reg.RegisterTask(RefresherTask, strategy.TaskFunc(Refresh))
}

// Command runs record with /bin/sh -c, wiring its output to the task's streams.
func Command(ctx context.Context, env *strategy.Env, record string) error {
	if strings.TrimSpace(record) == "" {
		return errors.New("command: empty record")
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", record)
	cmd.Stdout = env.Stdout
	cmd.Stderr = env.Stderr
	cmd.WaitDelay = commandWaitDelay
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %q: %w", record, err)
	}
	return nil
}

// Noop succeeds immediately.
func Noop(_ context.Context, env *strategy.Env, record string) error {
	if env != nil && env.Logger != nil {
		env.Logger.Debug("noop", logging.String("record", record))
	}
	return nil
}

// Refresh opens the queue store and publishes due schedules.
func Refresh(ctx context.Context, env *strategy.Env, _ string) error {
	if env == nil || env.Config == nil {
		return errors.New("refresher: configuration unavailable")
	}
	store, err := queue.Open(env.Config)
	if err != nil {
		return fmt.Errorf("refresher: %w", err)
	}
	defer store.Close()

	_, err = refresher.New(store, env.Config, env.Logger).Run(ctx)
	return err
}
