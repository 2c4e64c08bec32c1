package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"collider/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List pipeline jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.Jobs(cmd.Context(), statusFilter...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}

				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					rows = append(rows, []string{
						job.ID,
						colorizeStatus(job.Status, colorize),
						fmt.Sprintf("%.0f%%", job.Progress),
						videoCell(job),
						job.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "STATUS", "PROGRESS", "VIDEO", "UPDATED"},
					rows, 2))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Filter by job status (repeatable)")
	return cmd
}

func videoCell(job api.Job) string {
	if job.HasVideo {
		return "yes"
	}
	if strings.TrimSpace(job.Error) != "" {
		return "-"
	}
	return "pending"
}
