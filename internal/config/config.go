package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"procqueue/internal/textutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir         string `toml:"data_dir"`
	LogDir          string `toml:"log_dir"`
	MaintenanceFile string `toml:"maintenance_file"`
}

// Manager contains scheduling loop configuration.
type Manager struct {
	PoolSize        int      `toml:"pool_size"`
	HandoffTimeout  int      `toml:"handoff_timeout"`
	WaitTime        int      `toml:"wait_time"`
	TickIntervalMS  int      `toml:"tick_interval_ms"`
	PollIntervalMS  int      `toml:"poll_interval_ms"`
	MaintenanceWait int      `toml:"maintenance_wait"`
	UseNice         bool     `toml:"use_nice"`
	KeepLogs        bool     `toml:"keep_logs"`
	Mechanics       bool     `toml:"mechanics"`
	ForgiveSignaled bool     `toml:"forgive_signaled"`
	Runner          []string `toml:"runner"`
}

// Items contains the defaults applied to newly published queue items.
type Items struct {
	Attempts  int    `toml:"attempts"`
	Priority  int    `toml:"priority"`
	Worker    string `toml:"worker"`
	Broker    string `toml:"broker"`
	Container string `toml:"container"`
	Job       string `toml:"job"`
	// PersistInterval is how many seconds a persistent item rests after succeeding.
	PersistInterval int `toml:"persist_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains ntfy alert configuration.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Schedule describes a recurring item published by the refresher.
type Schedule struct {
	Name   string `toml:"name"`
	Spec   string `toml:"spec"`
	Queue  string `toml:"queue"`
	Task   string `toml:"task"`
	Record string `toml:"record"`
	// Priority is nil when the schedule does not set one; 0 is a valid value.
	Priority  *int   `toml:"priority,omitempty"`
	Attempts  int    `toml:"attempts"`
	Job       string `toml:"job"`
	Container string `toml:"container"`
	Disabled  bool   `toml:"disabled"`
}

// Config encapsulates all configuration values for procqueue.
//
// Configuration sections by subsystem:
//   - Paths: queue database, capture logs, maintenance hold file
//   - Manager: pool size, hand-off timeout, cycle pauses, launch command
//   - Items: default attempts, priority, and strategy bindings
//   - Logging: log format and level
//   - Notifications: ntfy alerts for banned items and orphan recovery
//   - Schedules: recurring items published by the refresher task
type Config struct {
	Paths         Paths         `toml:"paths"`
	Manager       Manager       `toml:"manager"`
	Items         Items         `toml:"items"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Schedules     []Schedule    `toml:"schedules"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("procqueue.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for manager operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the lock file guarding a single manager per queue. The
// empty name is the all-queues lock, which per-queue managers also hold shared.
func (c *Config) LockPath(queueName string) string {
	name := strings.TrimSpace(queueName)
	if name == "" {
		return filepath.Join(c.Paths.DataDir, "manager.lock")
	}
	return filepath.Join(c.Paths.DataDir, "manager-"+textutil.PathToken(name)+".lock")
}

// LogFilePath is the manager's own log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "procqueue.log")
}

// OutputDir is where subprocess standard output captures are written.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Paths.LogDir, "output")
}

// ErrorDir is where subprocess standard error captures are written.
func (c *Config) ErrorDir() string {
	return filepath.Join(c.Paths.LogDir, "errors")
}

// CaptureDirs returns the capture directories owned by queueName, or both
// capture roots when queueName is empty.
func (c *Config) CaptureDirs(queueName string) []string {
	name := strings.TrimSpace(queueName)
	if name == "" {
		return []string{c.OutputDir(), c.ErrorDir()}
	}
	token := textutil.PathToken(name)
	return []string{filepath.Join(c.OutputDir(), token), filepath.Join(c.ErrorDir(), token)}
}

// HandoffTimeout is how long the manager blocks on a new worker before backgrounding it.
func (c *Config) HandoffTimeout() time.Duration {
	return time.Duration(c.Manager.HandoffTimeout) * time.Second
}

// WaitTime is the pause between idle cycles.
func (c *Config) WaitTime() time.Duration {
	return time.Duration(c.Manager.WaitTime) * time.Second
}

// TickInterval is the short pause after a cycle that had work in flight.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Manager.TickIntervalMS) * time.Millisecond
}

// PollInterval is the granularity of foreground block-polling.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Manager.PollIntervalMS) * time.Millisecond
}

// MaintenanceWait is the pause between checks while leasing is held.
func (c *Config) MaintenanceWait() time.Duration {
	return time.Duration(c.Manager.MaintenanceWait) * time.Second
}

// NotifyTimeout bounds a single ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// PersistInterval is the rest period of persistent items between runs.
func (c *Config) PersistInterval() time.Duration {
	return time.Duration(c.Items.PersistInterval) * time.Second
}

// Schedule returns the named schedule, if configured.
func (c *Config) Schedule(name string) (Schedule, bool) {
	for _, sched := range c.Schedules {
		if sched.Name == name {
			return sched, true
		}
	}
	return Schedule{}, false
}

// Clone returns a deep copy so hot reloads never mutate a config in use.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Manager.Runner = append([]string(nil), c.Manager.Runner...)
	cp.Schedules = append([]Schedule(nil), c.Schedules...)
	for i := range cp.Schedules {
		if p := cp.Schedules[i].Priority; p != nil {
			v := *p
			cp.Schedules[i].Priority = &v
		}
	}
	return &cp
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
