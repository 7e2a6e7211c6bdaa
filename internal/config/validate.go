package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ErrInvalid marks configuration validation failures.
var ErrInvalid = errors.New("invalid configuration")

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateManager(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateItems(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateNotifications(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateSchedules(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c *Config) validateManager() error {
	if c.Manager.PoolSize <= 0 {
		return errors.New("manager.pool_size must be positive")
	}
	if c.Manager.HandoffTimeout < 0 {
		return errors.New("manager.handoff_timeout must be zero or positive")
	}
	if c.Manager.WaitTime < 0 {
		return errors.New("manager.wait_time must be zero or positive")
	}
	return nil
}

func (c *Config) validateItems() error {
	if c.Items.Attempts <= 0 {
		return errors.New("items.attempts must be positive")
	}
	if c.Items.Priority < MinPriority || c.Items.Priority > MaxPriority {
		return fmt.Errorf("items.priority must be between %d and %d", MinPriority, MaxPriority)
	}
	if c.Items.PersistInterval < 0 {
		return errors.New("items.persist_interval must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateSchedules() error {
	seen := make(map[string]struct{}, len(c.Schedules))
	for i, sched := range c.Schedules {
		if sched.Name == "" {
			return fmt.Errorf("schedules[%d].name must be set", i)
		}
		if _, ok := seen[sched.Name]; ok {
			return fmt.Errorf("schedules[%d].name %q is duplicated", i, sched.Name)
		}
		seen[sched.Name] = struct{}{}
		if sched.Spec == "" {
			return fmt.Errorf("schedule %q: spec must be set", sched.Name)
		}
		if _, err := cron.ParseStandard(sched.Spec); err != nil {
			return fmt.Errorf("schedule %q: spec %q: %w", sched.Name, sched.Spec, err)
		}
		if sched.Task == "" {
			return fmt.Errorf("schedule %q: task must be set", sched.Name)
		}
		if strings.ContainsAny(sched.Task, "/\\") {
			return fmt.Errorf("schedule %q: task %q must not contain path separators", sched.Name, sched.Task)
		}
		if p := sched.Priority; p != nil && (*p < MinPriority || *p > MaxPriority) {
			return fmt.Errorf("schedule %q: priority must be between %d and %d", sched.Name, MinPriority, MaxPriority)
		}
		if sched.Attempts <= 0 {
			return fmt.Errorf("schedule %q: attempts must be positive", sched.Name)
		}
	}
	return nil
}
