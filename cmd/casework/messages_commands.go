package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"casework/internal/ipc"
	"casework/internal/messages"
)

func newMessagesCommand(ctx *commandContext) *cobra.Command {
	messagesCmd := &cobra.Command{
		Use:   "messages",
		Short: "Work with communication exports",
	}
	messagesCmd.AddCommand(newMessagesIngestCommand(ctx))
	return messagesCmd
}

func newMessagesIngestCommand(ctx *commandContext) *cobra.Command {
	var caseID, evidenceID, format string

	cmd := &cobra.Command{
		Use:   "ingest <export-file>",
		Short: "Queue a CSV or JSON message export for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve export path: %w", err)
			}
			if format == "" {
				if format, err = messages.DetectFormat(source); err != nil {
					return err
				}
			}
			payload, err := json.Marshal(messages.IngestPayload{SourcePath: source, Format: format})
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enqueue(ipc.EnqueueRequest{
					Type:       messages.TypeIngest,
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
	cmd.Flags().StringVar(&format, "format", "", "Export format: csv or json (inferred from extension when omitted)")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("evidence")
	return cmd
}
