package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"veribatch/internal/client"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id> [identifier...]",
		Short: "Cancel a whole job or a subset of its identifiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				if err := c.Cancel(cmd.Context(), args[0], args[1:]...); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(args) > 1 {
					fmt.Fprintf(out, "Cancellation requested for %d identifier(s) in job %s\n", len(args)-1, args[0])
				} else {
					fmt.Fprintf(out, "Cancellation requested for job %s\n", args[0])
				}
				return nil
			})
		},
	}
}
