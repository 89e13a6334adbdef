package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"casework/internal/evidence"
	"casework/internal/ipc"
)

func newEvidenceCommand(ctx *commandContext) *cobra.Command {
	evidenceCmd := &cobra.Command{
		Use:   "evidence",
		Short: "Import and verify evidence files",
	}
	evidenceCmd.AddCommand(newEvidenceImportCommand(ctx))
	evidenceCmd.AddCommand(newEvidenceVerifyCommand(ctx))
	return evidenceCmd
}

func newEvidenceImportCommand(ctx *commandContext) *cobra.Command {
	var caseID, evidenceID, correlationID string

	cmd := &cobra.Command{
		Use:   "import <source-file>",
		Short: "Queue an evidence file for import into the case vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve source path: %w", err)
			}
			payload, err := json.Marshal(evidence.ImportPayload{SourcePath: source})
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enqueue(ipc.EnqueueRequest{
					Type:          evidence.TypeImport,
					CaseID:        caseID,
					EvidenceID:    evidenceID,
					Payload:       payload,
					CorrelationID: correlationID,
				})
				if err != nil {
					return err
				}
				reportEnqueue(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case identifier (required)")
	cmd.Flags().StringVar(&evidenceID, "evidence", "", "Evidence identifier (required)")
	cmd.Flags().StringVar(&correlationID, "correlation", "", "Correlation identifier for tracing")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("evidence")
	return cmd
}

func newEvidenceVerifyCommand(ctx *commandContext) *cobra.Command {
	var caseID, evidenceID, expected string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Queue an integrity check of an imported evidence file",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(evidence.VerifyPayload{ExpectedSHA256: expected})
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enqueue(ipc.EnqueueRequest{
					Type:       evidence.TypeVerify,
					CaseID:     caseID,
					EvidenceID: evidenceID,
					Payload:    payload,
				})
				if err != nil {
					return err
				}
				reportEnqueue(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case identifier (required)")
	cmd.Flags().StringVar(&evidenceID, "evidence", "", "Evidence identifier (required)")
	cmd.Flags().StringVar(&expected, "sha256", "", "Expected digest (defaults to the one recorded at import)")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("evidence")
	return cmd
}

func reportEnqueue(cmd *cobra.Command, resp *ipc.EnqueueResponse) {
	if resp.Created {
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s job %s\n", resp.Job.Type, shortID(resp.Job.ID))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Job already active: %s (%s)\n", shortID(resp.Job.ID), resp.Job.Status)
	}
}
