package testsupport

import (
	"path/filepath"
	"testing"

	"procqueue/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Cycle pauses are shortened so manager tests do not sleep for seconds.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Manager.WaitTime = 1
	cfgVal.Manager.TickIntervalMS = 10
	cfgVal.Manager.PollIntervalMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithPoolSize sets the manager pool size.
func WithPoolSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Manager.PoolSize = n
	}
}

// WithHandoffTimeout sets the foreground hand-off timeout in seconds.
func WithHandoffTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Manager.HandoffTimeout = seconds
	}
}

// WithRunner overrides the launch command used by subprocess workers.
func WithRunner(args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Manager.Runner = append([]string(nil), args...)
	}
}

// WithKeepLogs toggles retention of captured output.
func WithKeepLogs(keep bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Manager.KeepLogs = keep
	}
}

// WithSchedules replaces the configured schedules.
func WithSchedules(schedules ...config.Schedule) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Schedules = append([]config.Schedule(nil), schedules...)
	}
}

// WithMaintenanceFile points the maintenance hold at a file under the temp dir.
func WithMaintenanceFile(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.MaintenanceFile = filepath.Join(b.baseDir, name)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
