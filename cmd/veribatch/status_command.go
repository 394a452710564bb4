package main

import (
	"github.com/spf13/cobra"

	"veribatch/internal/client"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of one batch job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				snap, err := c.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				writeJob(cmd.OutOrStdout(), snap)
				return nil
			})
		},
	}
}
