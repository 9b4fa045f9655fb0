package youtube

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagrab/internal/extractor"
	"mediagrab/internal/models"
)

type fakeClient struct {
	video   *youtube.Video
	err     error
	payload string
}

func (f *fakeClient) GetVideoContext(ctx context.Context, url string) (*youtube.Video, error) {
	return f.video, f.err
}

func (f *fakeClient) GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader(f.payload)), int64(len(f.payload)), nil
}

func testVideo() *youtube.Video {
	return &youtube.Video{
		ID:       "abc123",
		Title:    "Some Clip",
		Author:   "uploader",
		Duration: 90 * time.Second,
		Thumbnails: youtube.Thumbnails{
			{URL: "https://i.example.com/small.jpg"},
			{URL: "https://i.example.com/large.jpg"},
		},
		Formats: youtube.FormatList{
			{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, QualityLabel: "360p", AudioChannels: 2, ContentLength: 2048},
			{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, Height: 1080},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioChannels: 2},
		},
	}
}

func TestDescribe(t *testing.T) {
	e := New(&fakeClient{video: testVideo()})

	meta, err := e.Describe(context.Background(), "https://www.youtube.com/watch?v=abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", *meta.ID)
	assert.Equal(t, "Some Clip", *meta.Title)
	assert.Equal(t, "uploader", *meta.Uploader)
	assert.Equal(t, 90.0, *meta.Duration)
	assert.Equal(t, "https://i.example.com/large.jpg", *meta.Thumbnail)

	require.Len(t, meta.Formats, 3)

	muxed := meta.Formats[0]
	assert.Equal(t, "18", muxed.FormatID)
	assert.Equal(t, "mp4", *muxed.Ext)
	assert.Equal(t, "360p", *muxed.Resolution)
	assert.Equal(t, "avc1.42001E", *muxed.VCodec)
	assert.Equal(t, "mp4a.40.2", *muxed.ACodec)
	assert.Equal(t, int64(2048), *muxed.FileSize)

	videoOnly := meta.Formats[1]
	assert.Equal(t, "1080p", *videoOnly.Resolution)
	assert.Equal(t, "none", *videoOnly.ACodec)

	audio := meta.Formats[2]
	assert.Equal(t, "audio only", *audio.Resolution)
	assert.Equal(t, "none", *audio.VCodec)
	assert.Equal(t, "mp4a.40.2", *audio.ACodec)
}

func TestDescribe_Error(t *testing.T) {
	e := New(&fakeClient{err: errors.New("video unavailable")})
	_, err := e.Describe(context.Background(), "https://www.youtube.com/watch?v=gone")
	assert.ErrorIs(t, err, extractor.ErrExtraction)
	assert.Contains(t, err.Error(), "video unavailable")
}

func TestFetch(t *testing.T) {
	e := New(&fakeClient{video: testVideo(), payload: "media-bytes"})
	dir := t.TempDir()

	var events []models.ProgressEvent
	art, err := e.Fetch(context.Background(), extractor.FetchRequest{
		URL:            "https://www.youtube.com/watch?v=abc123",
		FormatID:       "18",
		OutputTemplate: filepath.Join(dir, extractor.DefaultOutputTemplate),
	}, func(ev models.ProgressEvent) { events = append(events, ev) })
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Some Clip.mp4"), art.FilePath)
	got, err := os.ReadFile(art.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "media-bytes", string(got))

	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, models.ProgressFinished, events[len(events)-1].Status)
	last := events[len(events)-2]
	assert.Equal(t, int64(11), *last.DownloadedBytes)
	assert.Equal(t, int64(11), *last.TotalBytes)
}

func TestFetch_UnknownFormat(t *testing.T) {
	e := New(&fakeClient{video: testVideo()})
	for _, id := range []string{"999", "best"} {
		_, err := e.Fetch(context.Background(), extractor.FetchRequest{
			URL:            "https://www.youtube.com/watch?v=abc123",
			FormatID:       id,
			OutputTemplate: filepath.Join(t.TempDir(), extractor.DefaultOutputTemplate),
		}, func(models.ProgressEvent) {})
		assert.ErrorIs(t, err, extractor.ErrUnknownFormat, id)
		assert.ErrorIs(t, err, extractor.ErrTransfer, id)
	}
}
