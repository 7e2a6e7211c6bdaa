package manager

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"procqueue/internal/config"
	"procqueue/internal/logging"
	"procqueue/internal/queue"
	"procqueue/internal/strategy"
	"procqueue/internal/worker"
)

// Store is the subset of the queue store the manager depends on.
type Store interface {
	Lease(ctx context.Context, limit int, queueName string) ([]*queue.Item, error)
	Ack(ctx context.Context, item *queue.Item) error
	Nack(ctx context.Context, item *queue.Item) error
	Ban(ctx context.Context, item *queue.Item) error
}

// ConfigSource supplies the configuration in effect for the next cycle.
type ConfigSource interface {
	Current() *config.Config
}

// StaticConfig is a ConfigSource that never changes.
type StaticConfig struct{ Config *config.Config }

// Current implements ConfigSource.
func (s StaticConfig) Current() *config.Config { return s.Config }

// WorkerResolver maps an item's worker binding to a factory.
type WorkerResolver interface {
	Worker(key string) (strategy.WorkerFactory, error)
}

// Hold reports whether leasing is suspended, for example during maintenance.
type Hold interface {
	Held() bool
}

// OutputSink receives captured subprocess output once a worker is resolved.
type OutputSink interface {
	Stream(path, hash string) error
	SetKeep(keep bool)
}

const stillRunningInterval = 30 * time.Second

// Manager schedules leased items onto subprocess workers.
type Manager struct {
	queue      string
	store      Store
	source     ConfigSource
	resolver   WorkerResolver
	hold       Hold
	sink       OutputSink
	logger     *slog.Logger
	configPath string
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	poolSize        int
	handoff         time.Duration
	waitTime        time.Duration
	tickInterval    time.Duration
	pollInterval    time.Duration
	maintenanceWait time.Duration
	mechanics       bool
	workerOpts      worker.Options

	foreground   map[string]strategy.Worker
	background   map[string]strategy.Worker
	inForeground bool
	stillRunning map[string]*rate.Sometimes
	unsettled    map[string]pendingWrite
	wasHeld      bool
}

// pendingWrite is a final store write that failed and is replayed each cycle
// until it lands. The item stays running in the store meanwhile.
type pendingWrite struct {
	item   *queue.Item
	action worker.Action
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithHold installs a maintenance hold.
func WithHold(h Hold) Option {
	return func(m *Manager) { m.hold = h }
}

// WithOutputSink sets where captured output is streamed.
func WithOutputSink(s OutputSink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithConfigPath is passed to subprocesses so the runner reads the same file.
func WithConfigPath(path string) Option {
	return func(m *Manager) { m.configPath = path }
}

// WithClock replaces the time source and the sleep used between polls.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// New constructs a Manager for one queue. An empty queue name leases from all queues.
func New(queueName string, store Store, source ConfigSource, resolver WorkerResolver, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		queue:        queueName,
		store:        store,
		source:       source,
		resolver:     resolver,
		logger:       logging.NewComponentLogger(logger, "manager").With(logging.String(logging.FieldQueue, queueName)),
		now:          time.Now,
		sleep:        sleepContext,
		foreground:   make(map[string]strategy.Worker),
		background:   make(map[string]strategy.Worker),
		stillRunning: make(map[string]*rate.Sometimes),
		unsettled:    make(map[string]pendingWrite),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.LoadConfiguration()
	return m
}

// LoadConfiguration re-reads pool size, timeouts and logging flags.
func (m *Manager) LoadConfiguration() {
	cfg := m.source.Current()
	if cfg == nil {
		return
	}
	m.poolSize = cfg.Manager.PoolSize
	m.handoff = cfg.HandoffTimeout()
	m.waitTime = cfg.WaitTime()
	m.tickInterval = cfg.TickInterval()
	m.pollInterval = cfg.PollInterval()
	m.maintenanceWait = cfg.MaintenanceWait()
	m.mechanics = cfg.Manager.Mechanics
	m.workerOpts = worker.OptionsFromConfig(cfg, m.configPath, m.logger)
	if m.pollInterval <= 0 {
		m.pollInterval = 100 * time.Millisecond
	}
	if m.sink != nil {
		m.sink.SetKeep(cfg.Manager.KeepLogs)
	}
}

// Used is the number of workers in flight across both sets.
func (m *Manager) Used() int {
	return len(m.foreground) + len(m.background)
}

// Free is the number of workers that may still be dispatched.
func (m *Manager) Free() int {
	return m.poolSize - m.Used()
}

// Foreground returns the number of workers being waited on synchronously.
func (m *Manager) Foreground() int { return len(m.foreground) }

// Background returns the number of long-running workers polled each cycle.
func (m *Manager) Background() int { return len(m.background) }

// Unsettled returns the number of finished items whose store write is still pending.
func (m *Manager) Unsettled() int { return len(m.unsettled) }

// Queue returns the queue this manager leases from.
func (m *Manager) Queue() string { return m.queue }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ordered returns the workers of a set sorted by start time, then hash.
func ordered(set map[string]strategy.Worker) []strategy.Worker {
	workers := make([]strategy.Worker, 0, len(set))
	for _, w := range set {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		a, b := workers[i], workers[j]
		if !a.StartTime().Equal(b.StartTime()) {
			return a.StartTime().Before(b.StartTime())
		}
		return a.Hash() < b.Hash()
	})
	return workers
}
