package strategy

import (
	"context"
	"io"
	"log/slog"
	"time"

	"procqueue/internal/config"
	"procqueue/internal/queue"
	"procqueue/internal/worker"
)

// Env is what a task sees inside the runner subprocess.
type Env struct {
	Hash    string
	RunID   string
	Payload queue.Payload
	Config  *config.Config
	Logger  *slog.Logger
	Stdout  io.Writer
	Stderr  io.Writer
}

// Runnable is a materialized unit of work.
type Runnable func(ctx context.Context, env *Env) error

// Task is business logic addressed by name from an item payload.
type Task interface {
	Run(ctx context.Context, env *Env, record string) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context, env *Env, record string) error

// Run calls f.
func (f TaskFunc) Run(ctx context.Context, env *Env, record string) error {
	return f(ctx, env, record)
}

// TaskLookup resolves tasks by name.
type TaskLookup interface {
	Task(name string) (Task, error)
}

// Broker turns a decoded payload into something runnable.
type Broker interface {
	Resolve(ctx context.Context, env *Env, payload queue.Payload) (Runnable, error)
}

// Job wraps execution with a lifecycle policy.
type Job interface {
	Run(ctx context.Context, env *Env, run Runnable) error
}

// Container invokes a job around a runnable.
type Container interface {
	Execute(ctx context.Context, env *Env, job Job, run Runnable) error
}

// Worker is the manager-side handle on one in-flight item.
type Worker interface {
	Item() *queue.Item
	Hash() string
	StartTime() time.Time
	Begin(ctx context.Context) error
	Running() bool
	Report() worker.Report
	Finish() error
}

// WorkerFactory builds an unstarted worker for a leased item.
type WorkerFactory func(item *queue.Item, opts worker.Options) (Worker, error)
