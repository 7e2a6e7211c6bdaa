package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeManager()
	c.normalizeItems()
	c.normalizeLogging()
	c.normalizeNotifications()
	c.normalizeSchedules()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MaintenanceFile) != "" {
		if c.Paths.MaintenanceFile, err = expandPath(c.Paths.MaintenanceFile); err != nil {
			return fmt.Errorf("paths.maintenance_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeManager() {
	if c.Manager.TickIntervalMS <= 0 {
		c.Manager.TickIntervalMS = defaultTickIntervalMS
	}
	if c.Manager.PollIntervalMS <= 0 {
		c.Manager.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Manager.MaintenanceWait <= 0 {
		c.Manager.MaintenanceWait = defaultMaintenanceWait
	}
	runner := c.Manager.Runner[:0]
	for _, arg := range c.Manager.Runner {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			runner = append(runner, trimmed)
		}
	}
	c.Manager.Runner = runner
}

func (c *Config) normalizeItems() {
	c.Items.Worker = normalizeKey(c.Items.Worker)
	c.Items.Broker = normalizeKey(c.Items.Broker)
	c.Items.Container = normalizeKey(c.Items.Container)
	c.Items.Job = normalizeKey(c.Items.Job)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeSchedules() {
	for i := range c.Schedules {
		sched := &c.Schedules[i]
		sched.Name = strings.TrimSpace(sched.Name)
		sched.Spec = strings.TrimSpace(sched.Spec)
		sched.Task = strings.TrimSpace(sched.Task)
		sched.Queue = strings.TrimSpace(sched.Queue)
		if sched.Queue == "" {
			sched.Queue = DefaultQueue
		}
		if sched.Priority == nil {
			priority := c.Items.Priority
			sched.Priority = &priority
		}
		if sched.Attempts == 0 {
			sched.Attempts = c.Items.Attempts
		}
		if strings.TrimSpace(sched.Job) == "" {
			sched.Job = c.Items.Job
		}
		if strings.TrimSpace(sched.Container) == "" {
			sched.Container = c.Items.Container
		}
	}
}

func normalizeKey(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return defaultStrategy
	}
	return value
}

// DefaultQueue is the queue name used when none is given.
const DefaultQueue = "cron"
