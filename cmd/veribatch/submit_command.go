package main

import (
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"veribatch/internal/client"
	"veribatch/internal/identifier"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var requester string
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <id|url|text>...",
		Short: "Submit verification identifiers as one batch",
		Long: "Submit accepts raw 24-character identifiers, URLs carrying them, " +
			"or free text; identifiers are extracted and deduplicated before submission.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := identifier.ExtractAll(strings.Join(args, " "))
			if len(ids) == 0 {
				return fmt.Errorf("no verification identifiers found in arguments")
			}
			raw := make([]string, len(ids))
			for i, id := range ids {
				raw[i] = string(id)
			}

			name := strings.TrimSpace(requester)
			if name == "" {
				name = currentUsername()
			}

			return ctx.withClient(func(c *client.Client) error {
				jobID, err := c.Submit(cmd.Context(), name, raw)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Submitted job %s with %d identifier(s)\n", jobID, len(raw))
				if !wait {
					return nil
				}
				return waitForJob(cmd, c, jobID)
			})
		},
	}

	cmd.Flags().StringVar(&requester, "requester", "", "Requester name recorded with the batch")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job reaches a terminal state")
	return cmd
}

func waitForJob(cmd *cobra.Command, c *client.Client, jobID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		snap, err := c.Job(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		switch snap.State {
		case "completed", "failed", "cancelled":
			writeJob(cmd.OutOrStdout(), snap)
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "anonymous"
}
