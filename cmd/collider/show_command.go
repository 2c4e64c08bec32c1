package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"collider/internal/api"
	"collider/internal/jobs"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Display one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				fmt.Fprintln(out, renderSectionHeader("Job "+job.ID, colorize))
				fmt.Fprintln(out, renderDetailLine("status", colorizeStatus(job.Status, colorize)))
				fmt.Fprintln(out, renderDetailLine("progress", fmt.Sprintf("%.0f%%", job.Progress)))
				if job.Error != "" {
					fmt.Fprintln(out, renderDetailLine("error", job.Error))
				}
				fmt.Fprintln(out, renderDetailLine("created", job.CreatedAt.Local().Format("2006-01-02 15:04:05")))
				fmt.Fprintln(out, renderDetailLine("updated", job.UpdatedAt.Local().Format("2006-01-02 15:04:05")))

				fmt.Fprintln(out, renderSectionHeader("Stages", colorize))
				for _, key := range jobs.StageOrder() {
					stage, ok := job.Stages[key]
					if !ok {
						continue
					}
					value := colorizeStatus(stage.Status, colorize)
					if stage.Message != "" {
						value += " (" + stage.Message + ")"
					}
					fmt.Fprintln(out, renderDetailLine(key, value))
				}

				printProperties(cmd, job, colorize)
				return nil
			})
		},
	}
}

func printProperties(cmd *cobra.Command, job api.Job, colorize bool) {
	out := cmd.OutOrStdout()
	objects := []struct {
		label string
		props *api.ObjectProperties
	}{
		{"object A", job.Properties.ObjectA},
		{"object B", job.Properties.ObjectB},
	}
	for _, obj := range objects {
		if obj.props == nil {
			continue
		}
		fmt.Fprintln(out, renderSectionHeader("Properties: "+obj.label, colorize))
		fmt.Fprintln(out, renderDetailLine("mass", fmt.Sprintf("%.2f", obj.props.Mass)))
		fmt.Fprintln(out, renderDetailLine("bounciness", fmt.Sprintf("%.2f", obj.props.Bounciness)))
		fmt.Fprintln(out, renderDetailLine("friction", fmt.Sprintf("%.2f", obj.props.Friction)))
		fmt.Fprintln(out, renderDetailLine("facing", obj.props.Facing))
	}
}
