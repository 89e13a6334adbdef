package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"casework/internal/api"
	"casework/internal/ipc"
	"casework/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *jobs.Store) error {
				if client != nil {
					resp, err := client.Status()
					if err != nil {
						return err
					}
					if jsonOutput {
						return writeJSON(cmd, resp)
					}
					renderStatus(cmd, resp.Status, true)
					return nil
				}

				// Daemon down: report what the database alone can tell us.
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				status := api.DaemonStatus{
					Running:    false,
					QueueStats: api.StatsMap(stats),
					Health:     health,
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}
				renderStatus(cmd, status, false)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func renderStatus(cmd *cobra.Command, status api.DaemonStatus, daemonUp bool) {
	out := cmd.OutOrStdout()
	if daemonUp {
		fmt.Fprintf(out, "Daemon: running (version %s, started %s)\n", status.Version, formatWhen(status.StartedAt))
	} else {
		fmt.Fprintln(out, "Daemon: not running (showing job database directly)")
	}
	if len(status.RegisteredJobs) > 0 {
		fmt.Fprintf(out, "Job types: %v\n", status.RegisteredJobs)
	}

	rows := buildStatusRows(status.QueueStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
	} else {
		fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if !status.Health.IntegrityCheck || len(status.Health.MissingColumns) > 0 || status.Health.Error != "" {
		fmt.Fprintf(out, "Database health: DEGRADED (%s)\n", status.Health.Error)
	} else {
		fmt.Fprintf(out, "Database health: ok (%d jobs at %s)\n", status.Health.TotalJobs, status.Health.DBPath)
	}
}

func buildStatusRows(stats map[string]int) [][]string {
	if stats["total"] == 0 {
		return nil
	}
	order := append([]string{}, statusDisplayOrder...)
	rows := make([][]string, 0, len(order))
	for _, status := range order {
		if count := stats[status]; count > 0 {
			rows = append(rows, []string{status, fmt.Sprintf("%d", count)})
		}
	}
	rows = append(rows, []string{"total", fmt.Sprintf("%d", stats["total"])})
	return rows
}

var statusDisplayOrder = func() []string {
	order := make([]string, 0, 6)
	for _, status := range jobs.AllStatuses() {
		order = append(order, string(status))
	}
	return order
}()
