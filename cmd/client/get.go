package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"mediagrab/internal/models"
)

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Download a format and save it locally",
	Long: `Start a download on the server, follow its progress and save the
finished file.

Examples:
  mediagrab get --format 18 https://www.youtube.com/watch?v=dQw4w9WgXcQ
  mediagrab get -f best -o ~/Videos https://example.com/clip
  mediagrab get -f 18 --no-fetch https://example.com/clip`,
	Args: cobra.ExactArgs(1),
	RunE: runGetCmd,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringP("format", "f", "", "Format id as listed by 'info' (required)")
	getCmd.Flags().StringP("output", "o", ".", "Directory to save the file into")
	getCmd.Flags().Duration("interval", time.Second, "Progress polling interval")
	getCmd.Flags().Bool("no-fetch", false, "Only start the job and print its id")
	_ = getCmd.MarkFlagRequired("format")
}

func runGetCmd(cmd *cobra.Command, args []string) error {
	formatID, _ := cmd.Flags().GetString("format")
	outDir, _ := cmd.Flags().GetString("output")
	interval, _ := cmd.Flags().GetDuration("interval")
	noFetch, _ := cmd.Flags().GetBool("no-fetch")

	client := NewClient(serverURL)
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	jobID, err := client.Start(ctx, args[0], formatID)
	if err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	if noFetch {
		fmt.Fprintln(out, jobID)
		return nil
	}
	fmt.Fprintf(errOut, "Job %s started\n", jobID)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(errOut),
		progressbar.OptionSetDescription("downloading"),
	)
	job, err := client.Wait(ctx, jobID, interval, func(j *models.Job) {
		_ = bar.Set(int(j.Progress * 100))
	})
	_ = bar.Finish()
	fmt.Fprintln(errOut)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if job.Status == models.StatusError {
		msg := "unknown error"
		if job.Error != nil {
			msg = *job.Error
		}
		return errors.New("download failed: " + msg)
	}

	path, err := client.Download(ctx, jobID, outDir, func(size int64, w io.Writer) io.Writer {
		fileBar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(errOut),
			progressbar.OptionSetDescription("saving"),
			progressbar.OptionShowBytes(true),
		)
		return io.MultiWriter(w, fileBar)
	})
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	fmt.Fprintln(errOut)
	fmt.Fprintln(out, path)
	return nil
}
