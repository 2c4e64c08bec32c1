package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"collider/internal/api"
	"collider/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
				fmt.Fprintln(out, renderDetailLine("health", colorizeStatus(health.Status, colorize)))

				list, err := client.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				counts := make(map[string]int, len(list))
				for _, job := range list {
					counts[job.Status]++
				}

				fmt.Fprintln(out, renderSectionHeader("Jobs", colorize))
				fmt.Fprintln(out, renderDetailLine("total", fmt.Sprintf("%d", len(list))))
				for _, status := range jobs.AllStatuses() {
					if count := counts[string(status)]; count > 0 {
						fmt.Fprintln(out, renderDetailLine(string(status), fmt.Sprintf("%d", count)))
					}
				}
				return nil
			})
		},
	}
}
