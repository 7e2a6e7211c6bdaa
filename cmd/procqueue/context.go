package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"procqueue/internal/config"
	"procqueue/internal/queue"
	"procqueue/internal/strategy"
	"procqueue/internal/tasks"
)

type commandContext struct {
	configFlag *string
	queueFlag  *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, queueFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		queueFlag:  queueFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// queueName is the --queue flag; empty means every queue.
func (c *commandContext) queueName() string {
	if c.queueFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.queueFlag)
}

// publishQueue is the queue new items go to.
func (c *commandContext) publishQueue() string {
	if name := c.queueName(); name != "" {
		return name
	}
	return config.DefaultQueue
}

func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withStore opens the queue database for the duration of fn.
func (c *commandContext) withStore(fn func(*queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// newRegistry returns the strategies and tasks this binary knows.
func newRegistry() *strategy.Registry {
	reg := strategy.NewDefaultRegistry()
	tasks.Register(reg)
	return reg
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
