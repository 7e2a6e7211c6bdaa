package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"procqueue/internal/config"
	"procqueue/internal/daemon"
	"procqueue/internal/logging"
	"procqueue/internal/runner"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the queue manager in the foreground",
		Long: "Run leases items from the queue and executes each in its own subprocess " +
			"until interrupted. Only one manager may serve a queue at a time.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			provider := config.NewProvider(cfg, ctx.configPath)
			provider.SetLogger(logging.NewComponentLogger(logger, "config"))

			d, err := daemon.New(provider, logger, daemon.Options{
				Queue:    ctx.queueName(),
				Registry: newRegistry(),
				Output:   cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			return d.Run(signalCtx)
		},
	}
}

func newExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "exec",
		Short:       "Run one queue item (invoked by the manager)",
		Hidden:      true,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			code := runner.Main(signalCtx, newRegistry(), runner.InputsFromEnv(os.Getenv), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code != runner.ExitOK {
				return exitCodeError{code: code}
			}
			return nil
		},
	}
}
