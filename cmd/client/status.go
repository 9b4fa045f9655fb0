package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mediagrab/internal/models"
	"mediagrab/internal/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a download job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatusCmd,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)
	job, err := client.Progress(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	if jsonOutput {
		printJSON(job)
		return nil
	}
	printJob(cmd.OutOrStdout(), job)
	return nil
}

func printJob(out io.Writer, job *models.Job) {
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "URL:      %s\n", job.URL)
	fmt.Fprintf(out, "Format:   %s\n", job.FormatID)
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	fmt.Fprintf(out, "Progress: %.1f%%\n", job.Progress*100)

	if job.TotalBytes != nil {
		fmt.Fprintf(out, "Bytes:    %s / %s\n", humanBytes(job.DownloadedBytes), humanBytes(*job.TotalBytes))
	} else if job.DownloadedBytes > 0 {
		fmt.Fprintf(out, "Bytes:    %s\n", humanBytes(job.DownloadedBytes))
	}
	if job.Speed != nil {
		fmt.Fprintf(out, "Speed:    %s\n", utils.FormatSpeed(*job.Speed))
	}
	if job.ETA != nil {
		fmt.Fprintf(out, "ETA:      %s\n", utils.FormatETA(*job.ETA))
	}
	if job.FileName != nil {
		fmt.Fprintf(out, "File:     %s\n", *job.FileName)
	}
	if job.Error != nil {
		fmt.Fprintf(out, "Error:    %s\n", *job.Error)
	}
}
