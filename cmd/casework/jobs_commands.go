package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"casework/internal/api"
	"casework/internal/ipc"
	"casework/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage background jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var caseID, evidenceID string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *jobs.Store) error {
				listed, err := listJobs(cmd.Context(), client, store, caseID, evidenceID, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, listed)
				}
				if len(listed) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(jobTableHeaders, buildJobRows(listed), jobTableAligns))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Filter by case identifier")
	cmd.Flags().StringVar(&evidenceID, "evidence", "", "Filter by evidence identifier")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum jobs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit jobs as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *jobs.Store) error {
				job, err := resolveJob(cmd.Context(), client, store, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				renderJobDetail(cmd, job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the job as JSON")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				job, err := resolveJob(cmd.Context(), client, nil, args[0])
				if err != nil {
					return err
				}
				resp, err := client.Cancel(job.ID)
				if err != nil {
					return err
				}
				if resp.Applied {
					fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for %s (%s)\n", shortID(resp.Job.ID), resp.Job.Status)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s already finished: %s\n", shortID(resp.Job.ID), resp.Job.StatusMessage)
				}
				return nil
			})
		},
	}
}

func listJobs(ctx context.Context, client *ipc.Client, store *jobs.Store, caseID, evidenceID string, limit int) ([]ipc.Job, error) {
	if client != nil {
		resp, err := client.JobsList(ipc.JobsListRequest{CaseID: caseID, EvidenceID: evidenceID, Limit: limit})
		if err != nil {
			return nil, err
		}
		return resp.Jobs, nil
	}
	records, err := store.ListRecent(ctx, jobs.Scope{CaseID: caseID, EvidenceID: evidenceID}, limit)
	if err != nil {
		return nil, err
	}
	return api.FromRecords(records), nil
}

// resolveJob fetches a job by full id, falling back to unique-prefix match
// so the shortened ids printed by `jobs list` work as arguments.
func resolveJob(ctx context.Context, client *ipc.Client, store *jobs.Store, id string) (ipc.Job, error) {
	id = strings.TrimSpace(id)
	if client != nil {
		if resp, err := client.JobGet(id); err == nil {
			return resp.Job, nil
		}
	} else if store != nil {
		if record, err := store.GetByID(ctx, id); err == nil && record != nil {
			return api.FromRecord(record), nil
		}
	}

	listed, err := listJobs(ctx, client, store, "", "", 0)
	if err != nil {
		return ipc.Job{}, err
	}
	var matches []ipc.Job
	for _, job := range listed {
		if strings.HasPrefix(job.ID, id) {
			matches = append(matches, job)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return ipc.Job{}, fmt.Errorf("no job with id %q", id)
	default:
		return ipc.Job{}, fmt.Errorf("job id prefix %q is ambiguous (%d matches)", id, len(matches))
	}
}

func renderJobDetail(cmd *cobra.Command, job ipc.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:         %s\n", job.ID)
	fmt.Fprintf(out, "Type:        %s\n", job.Type)
	fmt.Fprintf(out, "Scope:       %s\n", formatScope(job))
	fmt.Fprintf(out, "Status:      %s\n", job.Status)
	fmt.Fprintf(out, "Progress:    %s\n", formatProgress(job))
	if job.StatusMessage != "" {
		fmt.Fprintf(out, "Message:     %s\n", job.StatusMessage)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:       %s\n", job.ErrorMessage)
	}
	fmt.Fprintf(out, "Created:     %s\n", formatWhen(job.CreatedAt))
	if job.StartedAt != "" {
		fmt.Fprintf(out, "Started:     %s\n", formatWhen(job.StartedAt))
	}
	if job.CompletedAt != "" {
		fmt.Fprintf(out, "Completed:   %s\n", formatWhen(job.CompletedAt))
	}
	if job.CorrelationID != "" {
		fmt.Fprintf(out, "Correlation: %s\n", job.CorrelationID)
	}
	if job.Operator != "" {
		fmt.Fprintf(out, "Operator:    %s\n", job.Operator)
	}
}
