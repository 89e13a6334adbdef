package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"casework/internal/ipc"
)

// writeJSON renders v for the --json output paths, indented for piping into
// files and pagers.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatWhen renders an RFC3339 timestamp as a relative age for tables.
func formatWhen(value string) string {
	if value == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return humanize.Time(parsed)
}

func formatProgress(job ipc.Job) string {
	switch job.Status {
	case "queued":
		return "-"
	case "running":
		return fmt.Sprintf("%3.0f%%", job.Progress*100)
	default:
		return "100%"
	}
}

func formatScope(job ipc.Job) string {
	switch {
	case job.CaseID != "" && job.EvidenceID != "":
		return job.CaseID + "/" + job.EvidenceID
	case job.CaseID != "":
		return job.CaseID
	case job.EvidenceID != "":
		return job.EvidenceID
	default:
		return "-"
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return truncate(id, 8)
}

func buildJobRows(items []ipc.Job) [][]string {
	rows := make([][]string, 0, len(items))
	for _, job := range items {
		message := job.StatusMessage
		if message == "" {
			message = "-"
		}
		rows = append(rows, []string{
			shortID(job.ID),
			job.Type,
			formatScope(job),
			job.Status,
			formatProgress(job),
			formatWhen(job.CreatedAt),
			truncate(message, 60),
		})
	}
	return rows
}

var jobTableHeaders = []string{"ID", "Type", "Scope", "Status", "Progress", "Created", "Message"}

var jobTableAligns = []columnAlignment{
	alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft,
}
