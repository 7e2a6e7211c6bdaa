package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"procqueue/internal/manager"
)

func newMaintenanceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Hold or release leasing of new items",
		Long: "While maintenance is on, running managers finish their in-flight items but " +
			"lease nothing new. Requires paths.maintenance_file to be configured.",
	}
	cmd.AddCommand(newMaintenanceToggleCommand(ctx, "on", true))
	cmd.AddCommand(newMaintenanceToggleCommand(ctx, "off", false))
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether maintenance is on",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(cfg.Paths.MaintenanceFile)
			out := cmd.OutOrStdout()
			if path == "" {
				fmt.Fprintln(out, "Maintenance file not configured")
				return nil
			}
			_, statErr := os.Stat(path)
			fmt.Fprintf(out, "Maintenance file: %s\n", path)
			fmt.Fprintf(out, "Maintenance: %s\n", onOff(statErr == nil))
			return nil
		},
	})
	return cmd
}

func newMaintenanceToggleCommand(ctx *commandContext, use string, on bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Turn maintenance %s", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := manager.SetMaintenance(cfg.Paths.MaintenanceFile, on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Maintenance %s\n", onOff(on))
			return nil
		},
	}
}

func onOff(value bool) string {
	if value {
		return "on"
	}
	return "off"
}
