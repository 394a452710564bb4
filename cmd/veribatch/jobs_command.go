package main

import (
	"github.com/spf13/cobra"

	"veribatch/internal/client"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List retained batch jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				jobs, err := c.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				writeJobList(cmd.OutOrStdout(), jobs)
				return nil
			})
		},
	}
}
