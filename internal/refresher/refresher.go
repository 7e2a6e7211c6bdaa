package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"procqueue/internal/config"
	"procqueue/internal/logging"
	"procqueue/internal/queue"
)

// Store is the slice of queue.Store the refresher needs.
type Store interface {
	Publish(ctx context.Context, req queue.PublishRequest, queueName string) (*queue.Item, error)
	ScheduleState(ctx context.Context, name string) (queue.ScheduleState, error)
	SetNextRun(ctx context.Context, name string, next, published time.Time) error
}

// Result summarizes one refresh pass.
type Result struct {
	Published []string
	Scheduled []string
	Skipped   []string
}

// Refresher publishes due schedules.
type Refresher struct {
	store  Store
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a refresher for the schedules in cfg.
func New(store Store, cfg *config.Config, logger *slog.Logger, opts ...Option) *Refresher {
	r := &Refresher{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "refresher"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run makes one pass over the configured schedules. A schedule seen for the
// first time is only scheduled; it publishes once its next run has passed.
// Failures of individual schedules do not stop the pass and are joined into
// the returned error.
func (r *Refresher) Run(ctx context.Context) (Result, error) {
	var (
		result Result
		errs   []error
	)
	now := r.now().UTC()
	for _, sched := range r.cfg.Schedules {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		outcome, err := r.refresh(ctx, sched, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", sched.Name, err))
			logging.ErrorWithContext(r.logger, "schedule refresh failed", "schedule_refresh_failed",
				logging.String("schedule", sched.Name),
				logging.Error(err),
			)
			continue
		}
		switch outcome {
		case outcomePublished:
			result.Published = append(result.Published, sched.Name)
		case outcomeScheduled:
			result.Scheduled = append(result.Scheduled, sched.Name)
		case outcomeSkipped:
			result.Skipped = append(result.Skipped, sched.Name)
		}
	}
	r.logger.Info("schedules refreshed",
		logging.String(logging.FieldEventType, "schedules_refreshed"),
		logging.Int("published", len(result.Published)),
		logging.Int("scheduled", len(result.Scheduled)),
		logging.Int("skipped", len(result.Skipped)),
	)
	return result, errors.Join(errs...)
}

type outcome int

const (
	outcomeIdle outcome = iota
	outcomePublished
	outcomeScheduled
	outcomeSkipped
)

func (r *Refresher) refresh(ctx context.Context, sched config.Schedule, now time.Time) (outcome, error) {
	if sched.Disabled {
		return outcomeSkipped, nil
	}
	state, err := r.store.ScheduleState(ctx, sched.Name)
	if err != nil {
		return outcomeIdle, err
	}
	if state.Disabled {
		r.logger.Debug("schedule disabled",
			logging.String("schedule", sched.Name),
			logging.String("reason", state.DisabledReason),
		)
		return outcomeSkipped, nil
	}
	spec, err := cron.ParseStandard(sched.Spec)
	if err != nil {
		return outcomeIdle, fmt.Errorf("parse spec %q: %w", sched.Spec, err)
	}
	next := spec.Next(now)

	if state.NextRun.IsZero() {
		if err := r.store.SetNextRun(ctx, sched.Name, next, time.Time{}); err != nil {
			return outcomeIdle, err
		}
		return outcomeScheduled, nil
	}
	if state.NextRun.After(now) {
		return outcomeIdle, nil
	}

	item, err := r.store.Publish(ctx, queue.ScheduleRequest(r.cfg.Items, sched), sched.Queue)
	if err != nil {
		return outcomeIdle, fmt.Errorf("publish: %w", err)
	}
	if err := r.store.SetNextRun(ctx, sched.Name, next, now); err != nil {
		return outcomeIdle, err
	}
	r.logger.Info("schedule published",
		logging.String("schedule", sched.Name),
		logging.String(logging.FieldItemHash, item.Hash),
		logging.String(logging.FieldQueue, item.Queue),
		logging.String("next_run", next.Format(time.RFC3339)),
	)
	return outcomePublished, nil
}
