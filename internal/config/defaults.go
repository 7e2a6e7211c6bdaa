package config

const (
	defaultConfigPath      = "~/.config/procqueue/config.toml"
	defaultDataDir         = "~/.local/share/procqueue"
	defaultLogDir          = "~/.local/state/procqueue/logs"
	defaultPoolSize        = 10
	defaultHandoffTimeout  = 2
	defaultWaitTime        = 30
	defaultTickIntervalMS  = 1000
	defaultPollIntervalMS  = 100
	defaultMaintenanceWait = 10
	defaultAttempts        = 10
	defaultPriority        = 5
	defaultPersistInterval = 60
	defaultStrategy        = "default"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultNotifyTimeout   = 10

	// MinPriority and MaxPriority bound item priorities; lower runs first.
	MinPriority = 0
	MaxPriority = 9
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Manager: Manager{
			PoolSize:        defaultPoolSize,
			HandoffTimeout:  defaultHandoffTimeout,
			WaitTime:        defaultWaitTime,
			TickIntervalMS:  defaultTickIntervalMS,
			PollIntervalMS:  defaultPollIntervalMS,
			MaintenanceWait: defaultMaintenanceWait,
			Mechanics:       true,
			ForgiveSignaled: true,
		},
		Items: Items{
			Attempts:  defaultAttempts,
			Priority:  defaultPriority,
			Worker:    defaultStrategy,
			Broker:    defaultStrategy,
			Container: defaultStrategy,
			Job:       defaultStrategy,

			PersistInterval: defaultPersistInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
	}
}
