package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"procqueue/internal/logging"
	"procqueue/internal/queue"
	"procqueue/internal/strategy"
	"procqueue/internal/worker"
)

// Tick runs one scheduling cycle: settle workers already in flight, lease up
// to the free capacity, wait on the new workers, poll the background set and
// pause. Store failures and context cancellation are returned. A failed store
// write never stops the remaining items of the cycle from being handled.
func (m *Manager) Tick(ctx context.Context) error {
	m.LoadConfiguration()
	logger := m.logger.With(logging.String(logging.FieldCorrelationID, uuid.NewString()))

	if len(m.unsettled) > 0 {
		if err := m.replay(ctx, logger); err != nil {
			return err
		}
	}
	if m.Used() > 0 {
		if err := m.settle(ctx, logger); err != nil {
			return err
		}
	}

	leased := 0
	held := m.hold != nil && m.hold.Held()
	m.noteHold(logger, held)
	if slots := m.Free(); slots > 0 && !held {
		items, err := m.store.Lease(ctx, slots, m.queue)
		if err != nil {
			return fmt.Errorf("lease: %w", err)
		}
		var errs []error
		for _, item := range items {
			if err := m.dispatch(ctx, logger, item); err != nil {
				errs = append(errs, err)
				continue
			}
			leased++
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}

	if err := m.settle(ctx, logger); err != nil {
		return err
	}

	m.status(logger, "cycle complete",
		logging.Int("leased", leased),
		logging.Int("foreground", m.Foreground()),
		logging.Int("background", m.Background()),
		logging.Int("free", m.Free()),
		logging.Bool("held", held),
	)

	pause := m.tickInterval
	if leased == 0 && m.Used() == 0 {
		pause = m.waitTime
		if held {
			pause = m.maintenanceWait
		}
	}
	return m.sleep(ctx, pause)
}

func (m *Manager) settle(ctx context.Context, logger *slog.Logger) error {
	if len(m.foreground) > 0 && !m.inForeground {
		if err := m.processForeground(ctx, logger); err != nil {
			return err
		}
	}
	if len(m.background) > 0 {
		if err := m.processBackground(ctx, logger); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) noteHold(logger *slog.Logger, held bool) {
	if held == m.wasHeld {
		return
	}
	m.wasHeld = held
	if held {
		logger.Info("leasing held for maintenance", logging.String(logging.FieldEventType, "maintenance_hold"))
	} else {
		logger.Info("maintenance hold released", logging.String(logging.FieldEventType, "maintenance_release"))
	}
}

func (m *Manager) status(logger *slog.Logger, msg string, attrs ...logging.Attr) {
	level := slog.LevelInfo
	if !m.mechanics {
		level = slog.LevelDebug
	}
	logger.Log(context.Background(), level, msg, logging.Args(attrs...)...)
}

// dispatch builds and starts a worker for a leased item. Items that cannot be
// launched are charged an attempt and requeued or banned so a misconfigured
// item cannot loop forever.
func (m *Manager) dispatch(ctx context.Context, logger *slog.Logger, item *queue.Item) error {
	w, err := m.launch(ctx, item)
	if err != nil {
		return m.reject(ctx, logger, item, err)
	}
	m.foreground[item.Hash] = w
	m.status(logger, "worker dispatched",
		logging.String(logging.FieldItemHash, item.Hash),
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Int("priority", item.Priority),
		logging.Int("attempts", item.Attempts),
	)
	return nil
}

func (m *Manager) launch(ctx context.Context, item *queue.Item) (strategy.Worker, error) {
	factory, err := m.resolver.Worker(item.Worker)
	if err != nil {
		return nil, err
	}
	w, err := factory(item, m.workerOpts)
	if err != nil {
		return nil, err
	}
	if err := w.Begin(ctx); err != nil {
		_ = w.Finish()
		return nil, err
	}
	return w, nil
}

func (m *Manager) reject(ctx context.Context, logger *slog.Logger, item *queue.Item, cause error) error {
	if ctx.Err() != nil {
		if err := m.store.Nack(context.WithoutCancel(ctx), item); err != nil {
			return fmt.Errorf("release %s: %w", item.Hash, err)
		}
		return ctx.Err()
	}

	item.Attempts--
	action := worker.ActionNack
	if item.Attempts <= 0 {
		action = worker.ActionBan
	}
	logging.ErrorWithContext(logger, "item could not be dispatched", "dispatch_rejected",
		logging.String(logging.FieldItemHash, item.Hash),
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("worker", item.Worker),
		logging.String("action", string(action)),
		logging.Int("attempts", item.Attempts),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check the item's strategy bindings and the runner command"),
	)
	return m.apply(ctx, logger, item, action)
}

// processForeground waits on each foreground worker until it exits or its
// hand-off timeout passes. Workers still running at the deadline move to the
// background set unresolved.
func (m *Manager) processForeground(ctx context.Context, logger *slog.Logger) error {
	m.inForeground = true
	defer func() { m.inForeground = false }()

	var errs []error
	for _, w := range ordered(m.foreground) {
		deadline := w.StartTime().Add(m.handoff)
		for {
			if !w.Running() {
				delete(m.foreground, w.Hash())
				if err := m.resolve(ctx, logger, w); err != nil {
					errs = append(errs, err)
				}
				break
			}
			now := m.now()
			if now.After(deadline) {
				delete(m.foreground, w.Hash())
				m.background[w.Hash()] = w
				m.stillRunning[w.Hash()] = &rate.Sometimes{Interval: stillRunningInterval}
				m.status(logger, "worker moved to background",
					logging.String(logging.FieldItemHash, w.Hash()),
					logging.Duration("elapsed", now.Sub(w.StartTime())),
				)
				break
			}
			pause := m.pollInterval
			if remaining := deadline.Sub(now); remaining < pause {
				pause = remaining + time.Millisecond
			}
			if err := m.sleep(ctx, pause); err != nil {
				return errors.Join(append(errs, err)...)
			}
		}
	}
	return errors.Join(errs...)
}

// processBackground polls each background worker once.
func (m *Manager) processBackground(ctx context.Context, logger *slog.Logger) error {
	var errs []error
	for _, w := range ordered(m.background) {
		hash := w.Hash()
		if w.Running() {
			if s := m.stillRunning[hash]; s != nil {
				s.Do(func() {
					m.status(logger, "worker still running",
						logging.String(logging.FieldItemHash, hash),
						logging.Duration("elapsed", m.now().Sub(w.StartTime())),
					)
				})
			}
			continue
		}
		delete(m.background, hash)
		delete(m.stillRunning, hash)
		if err := m.resolve(ctx, logger, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resolve applies a finished worker's report to the store, releases the
// worker and streams its captures.
func (m *Manager) resolve(ctx context.Context, logger *slog.Logger, w strategy.Worker) error {
	report := w.Report()
	item := w.Item()
	storeErr := m.apply(ctx, logger, item, report.Action)

	if err := w.Finish(); err != nil {
		logger.Warn("failed to release worker",
			logging.String(logging.FieldItemHash, item.Hash),
			logging.Error(err),
			logging.String(logging.FieldEventType, "worker_release_failed"),
		)
	}
	if m.sink != nil {
		m.stream(logger, report.OutputPath, item.Hash)
		if report.Failed {
			m.stream(logger, report.ErrorPath, item.Hash)
		}
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldItemHash, item.Hash),
		logging.String("action", string(report.Action)),
		logging.Int("attempts", item.Attempts),
		logging.Duration("elapsed", m.now().Sub(w.StartTime())),
	}
	switch report.Action {
	case worker.ActionBan:
		logger.Warn("item banned", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "item_banned"),
			logging.String(logging.FieldErrorHint, "inspect the error capture, then run procqueue retry"),
		)...)...)
	case worker.ActionNack:
		m.status(logger, "item failed; requeued", attrs...)
	default:
		m.status(logger, "item completed", attrs...)
	}
	return storeErr
}

func (m *Manager) apply(ctx context.Context, logger *slog.Logger, item *queue.Item, action worker.Action) error {
	var err error
	switch action {
	case worker.ActionAck:
		err = m.store.Ack(ctx, item)
	case worker.ActionBan:
		err = m.store.Ban(ctx, item)
	default:
		err = m.store.Nack(ctx, item)
	}
	if errors.Is(err, queue.ErrHookFailed) {
		logger.Warn("ban hook failed",
			logging.String(logging.FieldItemHash, item.Hash),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ban_hook_failed"),
		)
		return nil
	}
	if err != nil {
		m.unsettled[item.Hash] = pendingWrite{item: item, action: action}
		return fmt.Errorf("%s %s: %w", action, item.Hash, err)
	}
	return nil
}

// replay retries store writes that failed in an earlier cycle.
func (m *Manager) replay(ctx context.Context, logger *slog.Logger) error {
	hashes := make([]string, 0, len(m.unsettled))
	for hash := range m.unsettled {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)

	var errs []error
	for _, hash := range hashes {
		p := m.unsettled[hash]
		delete(m.unsettled, hash)
		if err := m.apply(ctx, logger, p.item, p.action); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Info("deferred store write applied",
			logging.String(logging.FieldItemHash, hash),
			logging.String("action", string(p.action)),
			logging.String(logging.FieldEventType, "write_replayed"),
		)
	}
	return errors.Join(errs...)
}

func (m *Manager) stream(logger *slog.Logger, path, hash string) {
	if path == "" {
		return
	}
	if err := m.sink.Stream(path, hash); err != nil {
		logger.Warn("failed to stream captured output",
			logging.String(logging.FieldItemHash, hash),
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "capture_stream_failed"),
		)
	}
}

// Run ticks until ctx is cancelled. A failed cycle is logged and followed by
// a full idle pause before the next attempt.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("manager started",
		logging.Int("pool_size", m.poolSize),
		logging.Duration("handoff_timeout", m.handoff),
		logging.String(logging.FieldEventType, "manager_started"),
	)
	for {
		err := m.Tick(ctx)
		if ctx.Err() != nil {
			m.logger.Info("manager stopping",
				logging.Int("in_flight", m.Used()),
				logging.String(logging.FieldEventType, "manager_stopped"),
			)
			return nil
		}
		if err == nil {
			continue
		}
		logging.ErrorWithContext(m.logger, "scheduling cycle failed", "cycle_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		if err := m.sleep(ctx, m.waitTime); err != nil {
			return nil
		}
	}
}
