package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mediagrab/internal/models"
)

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "List the formats a media page offers",
	Long: `List the title and downloadable formats of a media page.

Examples:
  mediagrab info https://www.youtube.com/watch?v=dQw4w9WgXcQ
  mediagrab info --json https://example.com/clip`,
	Args: cobra.ExactArgs(1),
	RunE: runInfoCmd,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfoCmd(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)
	meta, err := client.Info(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("info failed: %w", err)
	}
	if jsonOutput {
		printJSON(meta)
		return nil
	}
	printMetadata(cmd.OutOrStdout(), meta)
	return nil
}

func printMetadata(out io.Writer, meta *models.Metadata) {
	fmt.Fprintf(out, "Title:    %s\n", orDash(meta.Title))
	fmt.Fprintf(out, "Uploader: %s\n", orDash(meta.Uploader))
	if meta.Duration != nil {
		fmt.Fprintf(out, "Duration: %.0fs\n", *meta.Duration)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "  %-10s %-6s %-12s %-10s %-14s %s\n", "FORMAT", "EXT", "RESOLUTION", "SIZE", "VCODEC", "ACODEC")
	for _, f := range meta.Formats {
		size := "-"
		if f.FileSize != nil {
			size = humanBytes(*f.FileSize)
		}
		fmt.Fprintf(out, "  %-10s %-6s %-12s %-10s %-14s %s\n",
			f.FormatID, orDash(f.Ext), orDash(f.Resolution), size, orDash(f.VCodec), orDash(f.ACodec))
	}
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
