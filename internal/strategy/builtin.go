package strategy

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"procqueue/internal/logging"
	"procqueue/internal/queue"
	"procqueue/internal/worker"
)

// SubprocessWorker is the default worker factory: one OS process per item.
func SubprocessWorker(item *queue.Item, opts worker.Options) (Worker, error) {
	return worker.New(item, opts)
}

// TaskBroker resolves the payload's task by name and binds its record.
type TaskBroker struct {
	Tasks TaskLookup
}

// Resolve implements Broker.
func (b TaskBroker) Resolve(_ context.Context, _ *Env, payload queue.Payload) (Runnable, error) {
	task, err := b.Tasks.Task(payload.Task)
	if err != nil {
		return nil, err
	}
	record := payload.Record
	return func(ctx context.Context, env *Env) error {
		return task.Run(ctx, env, record)
	}, nil
}

// ScheduleBroker treats the payload record as the name of a configured
// schedule and runs that schedule's task and record.
type ScheduleBroker struct {
	Tasks TaskLookup
}

// Resolve implements Broker.
func (b ScheduleBroker) Resolve(ctx context.Context, env *Env, payload queue.Payload) (Runnable, error) {
	if env == nil || env.Config == nil {
		return nil, fmt.Errorf("schedule broker: configuration unavailable")
	}
	sched, ok := env.Config.Schedule(payload.Record)
	if !ok {
		return nil, fmt.Errorf("schedule broker: schedule %q not configured", payload.Record)
	}
	return TaskBroker(b).Resolve(ctx, env, queue.Payload{Task: sched.Task, Record: sched.Record})
}

// DefaultJob runs the task as is.
type DefaultJob struct{}

// Run implements Job.
func (DefaultJob) Run(ctx context.Context, env *Env, run Runnable) error {
	return run(ctx, env)
}

// VerboseJob reports start, finish and duration on the task's output.
type VerboseJob struct{}

// Run implements Job.
func (VerboseJob) Run(ctx context.Context, env *Env, run Runnable) error {
	start := time.Now()
	fmt.Fprintf(env.Stdout, "start %s run=%s\n", env.Hash, env.RunID)
	err := run(ctx, env)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		fmt.Fprintf(env.Stdout, "failed %s after %s\n", env.Hash, elapsed)
		return err
	}
	fmt.Fprintf(env.Stdout, "finish %s in %s\n", env.Hash, elapsed)
	return nil
}

// SilentJob discards everything the task writes to standard output.
type SilentJob struct{}

// Run implements Job.
func (SilentJob) Run(ctx context.Context, env *Env, run Runnable) error {
	quiet := *env
	quiet.Stdout = io.Discard
	quiet.Logger = logging.NewNop()
	return run(ctx, &quiet)
}

// RecoveringContainer runs the job and turns a panic into an error.
type RecoveringContainer struct{}

// Execute implements Container.
func (RecoveringContainer) Execute(ctx context.Context, env *Env, job Job, run Runnable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return job.Run(ctx, env, run)
}
