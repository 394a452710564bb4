package main

import (
	"github.com/spf13/cobra"

	"veribatch/internal/client"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var requester string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show submission and outcome statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				stats, err := c.Stats(cmd.Context(), requester)
				if err != nil {
					return err
				}
				writeStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&requester, "requester", "", "Limit statistics to one requester")
	return cmd
}
