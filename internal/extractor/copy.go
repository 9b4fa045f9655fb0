package extractor

import (
	"context"
	"io"
	"time"

	"mediagrab/internal/models"
)

const (
	// ChunkSize is the read size used by CopyWithProgress.
	ChunkSize     = 256 * 1024
	progressDelay = 500 * time.Millisecond
)

// CopyWithProgress streams src into dst, reporting at most every half second
// and once more at EOF, followed by a finished event. total may be nil.
func CopyWithProgress(ctx context.Context, src io.Reader, dst io.Writer, total *int64, onProgress ProgressFunc) error {
	var written int64
	buf := make([]byte, ChunkSize)
	started := time.Now()
	var lastReport time.Time

	report := func() {
		ev := models.ProgressEvent{
			Status:          models.ProgressDownloading,
			DownloadedBytes: models.Ptr(written),
			TotalBytes:      total,
		}
		if elapsed := time.Since(started).Seconds(); elapsed > 0 && written > 0 {
			speed := float64(written) / elapsed
			ev.Speed = models.Ptr(speed)
			if total != nil {
				ev.ETA = models.Ptr(int64(float64(*total-written) / speed))
			}
		}
		onProgress(ev)
		lastReport = time.Now()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			written += int64(n)
			if time.Since(lastReport) >= progressDelay {
				report()
			}
		}
		if err == io.EOF {
			report()
			onProgress(models.ProgressEvent{Status: models.ProgressFinished})
			return nil
		}
		if err != nil {
			return err
		}
	}
}
