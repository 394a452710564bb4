package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"veribatch/internal/client"
	"veribatch/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon lifecycle commands",
	}

	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))

	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon runtime status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				status, err := c.Status(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Running:       %s\n", yesNo(status.Running))
				fmt.Fprintf(out, "PID:           %d\n", status.PID)
				fmt.Fprintf(out, "Active jobs:   %d\n", status.ActiveJobs)
				fmt.Fprintf(out, "Retained jobs: %d\n", status.RetainedJobs)
				if status.StatsDBPath != "" {
					fmt.Fprintf(out, "Stats DB:      %s\n", status.StatsDBPath)
				}
				fmt.Fprintf(out, "Lock file:     %s\n", status.LockFilePath)
				return nil
			})
		},
	}
}
