// Package ytdlp is the default extractor, driving the yt-dlp executable
// through github.com/lrstanley/go-ytdlp.
package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	goytdlp "github.com/lrstanley/go-ytdlp"

	"mediagrab/internal/extractor"
	"mediagrab/internal/models"
)

const (
	progressInterval = 500 * time.Millisecond
	// artifactTemplate prints a JSON object once the final file is in place.
	artifactTemplate = "%(.{title,filepath})j"
)

type Extractor struct {
	mergeFormat string
}

func New(mergeFormat string) *Extractor {
	if mergeFormat == "" {
		mergeFormat = "mp4"
	}
	return &Extractor{mergeFormat: mergeFormat}
}

// Install downloads a yt-dlp executable into the cache when none is available.
func Install(ctx context.Context) error {
	if _, err := goytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

func (e *Extractor) Describe(ctx context.Context, url string) (*models.Metadata, error) {
	res, err := goytdlp.New().
		DumpSingleJSON().
		NoPlaylist().
		Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", extractor.ErrExtraction, failureMessage(res, err))
	}

	meta, err := parseInfo([]byte(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrExtraction, err)
	}
	return meta, nil
}

func (e *Extractor) Fetch(ctx context.Context, req extractor.FetchRequest, onProgress extractor.ProgressFunc) (*models.Artifact, error) {
	tmpl := req.OutputTemplate
	if tmpl == "" {
		tmpl = extractor.DefaultOutputTemplate
	}

	dl := goytdlp.New().
		Format(req.FormatID).
		Output(tmpl).
		NoPlaylist().
		MergeOutputFormat(e.mergeFormat).
		Print("after_move:" + artifactTemplate)

	dl.ProgressFunc(progressInterval, func(update goytdlp.ProgressUpdate) {
		if ev, ok := translateProgress(update, time.Now()); ok {
			onProgress(ev)
		}
	})

	res, err := dl.Run(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", extractor.ErrTransfer, failureMessage(res, err))
	}

	art, err := parseArtifact(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrTransfer, err)
	}
	slog.Debug("yt-dlp finished", "url", req.URL, "path", art.FilePath)
	return art, nil
}

func translateProgress(update goytdlp.ProgressUpdate, now time.Time) (models.ProgressEvent, bool) {
	switch update.Status {
	case goytdlp.ProgressStatusDownloading:
		ev := models.ProgressEvent{
			Status:          models.ProgressDownloading,
			DownloadedBytes: models.Ptr(int64(update.DownloadedBytes)),
		}
		if update.TotalBytes > 0 {
			ev.TotalBytes = models.Ptr(int64(update.TotalBytes))
		}
		if !update.Started.IsZero() {
			if elapsed := now.Sub(update.Started).Seconds(); elapsed > 0 {
				ev.Speed = models.Ptr(float64(update.DownloadedBytes) / elapsed)
			}
		}
		if eta := update.ETA(); eta > 0 {
			ev.ETA = models.Ptr(int64(eta.Seconds()))
		}
		return ev, true
	case goytdlp.ProgressStatusFinished:
		return models.ProgressEvent{Status: models.ProgressFinished}, true
	default:
		return models.ProgressEvent{}, false
	}
}

type rawInfo struct {
	ID         *string `json:"id"`
	Title      *string `json:"title"`
	Thumbnail  *string `json:"thumbnail"`
	Thumbnails []struct {
		URL *string `json:"url"`
	} `json:"thumbnails"`
	Duration *float64    `json:"duration"`
	Uploader *string     `json:"uploader"`
	Formats  []rawFormat `json:"formats"`
}

type rawFormat struct {
	FormatID       any      `json:"format_id"`
	Ext            *string  `json:"ext"`
	Resolution     *string  `json:"resolution"`
	Height         *float64 `json:"height"`
	FileSize       *float64 `json:"filesize"`
	FileSizeApprox *float64 `json:"filesize_approx"`
	VCodec         *string  `json:"vcodec"`
	ACodec         *string  `json:"acodec"`
}

func parseInfo(data []byte) (*models.Metadata, error) {
	var info rawInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp output: %w", err)
	}

	meta := &models.Metadata{
		ID:        info.ID,
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
		Uploader:  info.Uploader,
		Formats:   make([]models.Format, 0, len(info.Formats)),
	}
	if meta.Thumbnail == nil && len(info.Thumbnails) > 0 {
		meta.Thumbnail = info.Thumbnails[len(info.Thumbnails)-1].URL
	}

	for _, f := range info.Formats {
		out := models.Format{
			FormatID:   formatID(f.FormatID),
			Ext:        f.Ext,
			Resolution: f.Resolution,
			VCodec:     f.VCodec,
			ACodec:     f.ACodec,
		}
		if (out.Resolution == nil || *out.Resolution == "") && f.Height != nil && *f.Height > 0 {
			out.Resolution = models.Ptr(fmt.Sprintf("%dp", int64(*f.Height)))
		}
		switch {
		case f.FileSize != nil && *f.FileSize > 0:
			out.FileSize = models.Ptr(int64(*f.FileSize))
		case f.FileSizeApprox != nil && *f.FileSizeApprox > 0:
			out.FileSize = models.Ptr(int64(*f.FileSizeApprox))
		}
		meta.Formats = append(meta.Formats, out)
	}
	return meta, nil
}

func formatID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// parseArtifact finds the after_move print line among yt-dlp's stdout.
func parseArtifact(stdout string) (*models.Artifact, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var out struct {
			Title    string `json:"title"`
			FilePath string `json:"filepath"`
		}
		if err := json.Unmarshal([]byte(line), &out); err != nil || out.FilePath == "" {
			continue
		}
		return &models.Artifact{FilePath: out.FilePath, Title: out.Title}, nil
	}
	return nil, errors.New("yt-dlp did not report an output file")
}

// failureMessage prefers yt-dlp's own ERROR line over the exit status.
func failureMessage(res *goytdlp.Result, err error) string {
	if res != nil {
		lines := strings.Split(strings.TrimSpace(res.Stderr), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if line := strings.TrimSpace(lines[i]); strings.HasPrefix(line, "ERROR:") {
				return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
			}
		}
	}
	return err.Error()
}
