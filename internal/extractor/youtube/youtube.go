// Package youtube extracts YouTube media natively with
// github.com/kkdai/youtube/v2, without an external yt-dlp binary. Format ids
// are YouTube itag numbers.
package youtube

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"

	"mediagrab/internal/extractor"
	"mediagrab/internal/models"
	"mediagrab/internal/utils"
)

// Client is the subset of youtube.Client used here.
type Client interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

type Extractor struct {
	client Client
}

func New(client Client) *Extractor {
	if client == nil {
		client = &youtube.Client{}
	}
	return &Extractor{client: client}
}

func (e *Extractor) Describe(ctx context.Context, url string) (*models.Metadata, error) {
	video, err := e.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrExtraction, err)
	}
	return metadata(video), nil
}

func metadata(video *youtube.Video) *models.Metadata {
	meta := &models.Metadata{
		ID:      models.Ptr(video.ID),
		Title:   models.Ptr(video.Title),
		Formats: make([]models.Format, 0, len(video.Formats)),
	}
	if video.Author != "" {
		meta.Uploader = models.Ptr(video.Author)
	}
	if video.Duration > 0 {
		meta.Duration = models.Ptr(video.Duration.Seconds())
	}
	if n := len(video.Thumbnails); n > 0 {
		meta.Thumbnail = models.Ptr(video.Thumbnails[n-1].URL)
	}
	for i := range video.Formats {
		meta.Formats = append(meta.Formats, format(&video.Formats[i]))
	}
	return meta
}

func format(f *youtube.Format) models.Format {
	out := models.Format{FormatID: strconv.Itoa(f.ItagNo)}
	mediaType, params, _ := mime.ParseMediaType(f.MimeType)
	kind, sub, _ := strings.Cut(mediaType, "/")
	if sub != "" {
		out.Ext = models.Ptr(sub)
	}
	if f.ContentLength > 0 {
		out.FileSize = models.Ptr(f.ContentLength)
	}

	codecs := splitCodecs(params["codecs"])
	switch {
	case kind == "audio":
		out.Resolution = models.Ptr("audio only")
		out.VCodec = models.Ptr("none")
		out.ACodec = first(codecs)
	case f.AudioChannels > 0:
		out.VCodec = first(codecs)
		if len(codecs) > 1 {
			out.ACodec = models.Ptr(codecs[1])
		}
	default:
		out.VCodec = first(codecs)
		out.ACodec = models.Ptr("none")
	}
	if kind == "video" {
		switch {
		case f.QualityLabel != "":
			out.Resolution = models.Ptr(f.QualityLabel)
		case f.Height > 0:
			out.Resolution = models.Ptr(fmt.Sprintf("%dp", f.Height))
		}
	}
	return out
}

func splitCodecs(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func first(s []string) *string {
	if len(s) == 0 {
		return nil
	}
	return models.Ptr(s[0])
}

func (e *Extractor) Fetch(ctx context.Context, req extractor.FetchRequest, onProgress extractor.ProgressFunc) (*models.Artifact, error) {
	video, err := e.client.GetVideoContext(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrTransfer, err)
	}

	itag, err := strconv.Atoi(req.FormatID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %q", extractor.ErrTransfer, extractor.ErrUnknownFormat, req.FormatID)
	}
	var chosen *youtube.Format
	for i := range video.Formats {
		if video.Formats[i].ItagNo == itag {
			chosen = &video.Formats[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: %w: %q", extractor.ErrTransfer, extractor.ErrUnknownFormat, req.FormatID)
	}

	ext := "bin"
	if f := format(chosen); f.Ext != nil {
		ext = *f.Ext
	}
	tmpl := req.OutputTemplate
	if tmpl == "" {
		tmpl = extractor.DefaultOutputTemplate
	}
	filePath := extractor.ExpandTemplate(tmpl, utils.SanitizeName(video.Title), ext)

	if err := e.save(ctx, video, chosen, filePath, onProgress); err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrTransfer, err)
	}
	return &models.Artifact{FilePath: filePath, Title: video.Title}, nil
}

func (e *Extractor) save(ctx context.Context, video *youtube.Video, f *youtube.Format, filePath string, onProgress extractor.ProgressFunc) error {
	stream, size, err := e.client.GetStreamContext(ctx, video, f)
	if err != nil {
		return fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return err
	}
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var total *int64
	if size > 0 {
		total = models.Ptr(size)
	}

	return extractor.CopyWithProgress(ctx, stream, file, total, onProgress)
}
