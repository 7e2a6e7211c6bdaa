package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"procqueue/internal/config"
	"procqueue/internal/logging"
	"procqueue/internal/manager"
	"procqueue/internal/notifications"
	"procqueue/internal/preflight"
	"procqueue/internal/queue"
	"procqueue/internal/refresher"
	"procqueue/internal/strategy"
)

// ErrAlreadyRunning is returned when another manager holds an overlapping queue lock.
var ErrAlreadyRunning = manager.ErrLocked

// Options configures a Daemon.
type Options struct {
	// Queue is the queue to serve. Empty serves every queue.
	Queue    string
	Registry *strategy.Registry
	// Output receives streamed worker output. Defaults to stdout.
	Output io.Writer
	// Notify reports service state. Defaults to sd_notify.
	Notify func(state string) error
	// Alerts receives ban and orphan alerts. Defaults to the configured ntfy topic.
	Alerts notifications.Service
}

// Daemon coordinates the manager loop and enforces a single instance per queue.
type Daemon struct {
	provider *config.Provider
	logger   *slog.Logger
	opts     Options

	lockPath string

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Queue        string
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon for the configuration held by provider.
func New(provider *config.Provider, logger *slog.Logger, opts Options) (*Daemon, error) {
	if provider == nil || provider.Current() == nil {
		return nil, errors.New("daemon requires a configuration")
	}
	if opts.Registry == nil {
		return nil, errors.New("daemon requires a strategy registry")
	}
	opts.Queue = strings.TrimSpace(opts.Queue)
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Notify == nil {
		opts.Notify = notifySystemd
	}
	lockPath := provider.Current().LockPath(opts.Queue)
	return &Daemon{
		provider: provider,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		opts:     opts,
		lockPath: lockPath,
	}, nil
}

// Run serves the queue until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	cfg := d.provider.Current()
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	lock, err := manager.Lock(cfg, d.opts.Queue)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Warn("failed to release manager lock", logging.Error(err))
		}
	}()
	boot := time.Now()

	for _, check := range preflight.Failed(preflight.RunAll(ctx, cfg, d.opts.Queue)) {
		d.logger.Warn("preflight check failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
		)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(d.logger, "open queue store", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.data_dir permissions"),
		)
		return err
	}
	defer store.Close()

	store.SetBindingCheck(d.opts.Registry.ValidateBindings)
	alerts := d.opts.Alerts
	if alerts == nil {
		alerts = notifications.NewService(cfg)
	}
	store.SetBanHook(queue.ChainBanHooks(
		refresher.DisableOnBan(store),
		notifications.BanHook(alerts, d.logger),
	))
	store.SetPersistDelay(cfg.PersistInterval())

	if err := d.prepare(ctx, cfg, store, alerts, boot); err != nil {
		return err
	}

	sink := logging.NewOutputStreamer(d.opts.Output, cfg.Manager.KeepLogs)
	mgr := manager.New(d.opts.Queue, store, d.provider, d.opts.Registry, d.logger,
		manager.WithHold(manager.FileHold{Source: d.provider}),
		manager.WithOutputSink(sink),
		manager.WithConfigPath(d.provider.Path()),
	)

	d.notify(sddaemon.SdNotifyReady)
	d.logger.Info("procqueue daemon started",
		logging.String(logging.FieldQueue, d.opts.Queue),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mgr.Run(gctx)
	})
	g.Go(func() error {
		if err := d.provider.Watch(gctx); err != nil {
			d.logger.Warn("config watcher stopped; reloads disabled",
				logging.Error(err),
				logging.String(logging.FieldEventType, "config_watch_failed"),
			)
		}
		return nil
	})
	err = g.Wait()

	d.notify(sddaemon.SdNotifyStopping)
	d.logger.Info("procqueue daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

// prepare recovers orphans, clears stale captures and publishes the refresher.
func (d *Daemon) prepare(ctx context.Context, cfg *config.Config, store *queue.Store, alerts notifications.Service, boot time.Time) error {
	requeued, err := store.RequeueOrphans(ctx, boot, d.opts.Queue)
	if err != nil {
		return fmt.Errorf("requeue orphans: %w", err)
	}
	if requeued > 0 {
		d.logger.Warn("requeued orphaned items",
			logging.Int64("count", requeued),
			logging.String(logging.FieldEventType, "orphans_requeued"),
			logging.String(logging.FieldErrorHint, "a previous manager exited with workers in flight"),
		)
		if err := alerts.NotifyOrphansRequeued(ctx, d.opts.Queue, requeued); err != nil {
			d.logger.Warn("orphan notification failed", logging.Error(err))
		}
	}

	if !cfg.Manager.KeepLogs {
		for _, dir := range cfg.CaptureDirs(d.opts.Queue) {
			if err := os.RemoveAll(dir); err != nil {
				d.logger.Warn("failed to clear capture directory", logging.String("path", dir), logging.Error(err))
			}
		}
	}

	refresherQueue := d.opts.Queue
	if refresherQueue == "" {
		refresherQueue = config.DefaultQueue
	}
	item, err := store.Publish(ctx, queue.RefresherRequest(cfg.Items), refresherQueue)
	if err != nil {
		return fmt.Errorf("publish refresher: %w", err)
	}
	d.logger.Debug("refresher published",
		logging.String(logging.FieldItemHash, item.Hash),
		logging.String(logging.FieldQueue, item.Queue),
	)
	return nil
}

func (d *Daemon) notify(state string) {
	if err := d.opts.Notify(state); err != nil {
		d.logger.Debug("service notification failed", logging.String("state", state), logging.Error(err))
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	cfg := d.provider.Current()
	return Status{
		Running:      d.running.Load(),
		Queue:        d.opts.Queue,
		QueueDBPath:  cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
	}
}

func notifySystemd(state string) error {
	_, err := sddaemon.SdNotify(false, state)
	return err
}
