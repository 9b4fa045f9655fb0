package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mediagrab/internal/download"
	"mediagrab/internal/extractor"
	"mediagrab/internal/extractor/mocks"
	"mediagrab/internal/handler"
	"mediagrab/internal/models"
	"mediagrab/internal/storage"
)

// newServer runs the real API handlers against a mocked extractor.
func newServer(t *testing.T, ext *mocks.MockExtractor) *httptest.Server {
	t.Helper()
	store := storage.New()
	d := download.New(context.Background(), store, ext, download.Config{TempDir: t.TempDir()})

	r := chi.NewRouter()
	r.Get("/info", handler.InfoHandler(ext, nil))
	r.Post("/start_download", handler.StartDownloadHandler(store, d))
	r.Get("/progress", handler.ProgressHandler(store))
	r.Get("/download_file", handler.DownloadFileHandler(store))

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Wait(ctx)
	})
	return srv
}

// writesFile makes the mocked Fetch create the artifact it returns.
func writesFile(art *models.Artifact, content string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		req := args.Get(1).(extractor.FetchRequest)
		art.FilePath = extractor.ExpandTemplate(req.OutputTemplate, art.Title, "mp4")
		_ = os.WriteFile(art.FilePath, []byte(content), 0o644)
		args.Get(2).(extractor.ProgressFunc)(models.ProgressEvent{
			Status:          models.ProgressDownloading,
			DownloadedBytes: models.Ptr(int64(len(content))),
			TotalBytes:      models.Ptr(int64(len(content))),
		})
	}
}

func TestClient_Info(t *testing.T) {
	ext := &mocks.MockExtractor{}
	ext.On("Describe", mock.Anything, "https://example.com/v?a=1&b=2").Return(&models.Metadata{
		Title:   models.Ptr("Clip"),
		Formats: []models.Format{{FormatID: "18", Ext: models.Ptr("mp4")}},
	}, nil)
	ext.On("Describe", mock.Anything, "https://example.com/bad").
		Return(nil, errors.New("Unsupported URL"))
	srv := newServer(t, ext)
	client := NewClient(srv.URL)

	meta, err := client.Info(context.Background(), "https://example.com/v?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, "Clip", *meta.Title)
	require.Len(t, meta.Formats, 1)

	_, err = client.Info(context.Background(), "https://example.com/bad")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Unsupported URL", apiErr.Detail)
}

func TestClient_StartWaitDownload(t *testing.T) {
	ext := &mocks.MockExtractor{}
	art := &models.Artifact{Title: "clip"}
	ext.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Run(writesFile(art, "hello media")).
		Return(art, nil)
	srv := newServer(t, ext)
	client := NewClient(srv.URL)
	ctx := context.Background()

	id, err := client.Start(ctx, "https://example.com/v", "18")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var updates int
	job, err := client.Wait(ctx, id, 10*time.Millisecond, func(*models.Job) { updates++ })
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, job.Status)
	assert.GreaterOrEqual(t, updates, 1)

	dir := t.TempDir()
	path, err := client.Download(ctx, id, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clip.mp4"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello media", string(data))
}

func TestClient_Errors(t *testing.T) {
	srv := newServer(t, &mocks.MockExtractor{})
	client := NewClient(srv.URL)
	ctx := context.Background()

	_, err := client.Start(ctx, "", "")
	assert.ErrorContains(t, err, "Missing 'url' or 'format_id'")

	_, err = client.Progress(ctx, "nope")
	assert.ErrorContains(t, err, "Job not found")

	_, err = client.Download(ctx, "nope", t.TempDir(), nil)
	assert.ErrorContains(t, err, "404")
}

func TestClient_WaitStopsWithContext(t *testing.T) {
	ext := &mocks.MockExtractor{}
	release := make(chan struct{})
	ext.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil, errors.New("stopped"))
	srv := newServer(t, ext)
	defer close(release)
	client := NewClient(srv.URL)

	id, err := client.Start(context.Background(), "u", "f")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Wait(ctx, id, 10*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetCommand(t *testing.T) {
	ext := &mocks.MockExtractor{}
	art := &models.Artifact{Title: "song"}
	ext.On("Fetch", mock.Anything, mock.MatchedBy(func(r extractor.FetchRequest) bool { return r.FormatID == "140" }), mock.Anything).
		Run(writesFile(art, "la la la")).
		Return(art, nil)
	ext.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("requested format is not available"))
	srv := newServer(t, ext)
	dir := t.TempDir()

	run := func(args ...string) (string, error) {
		var out, errOut bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&errOut)
		rootCmd.SetArgs(append([]string{"--server", srv.URL}, args...))
		err := rootCmd.Execute()
		return out.String(), err
	}
	t.Cleanup(func() { getCmd.Flags().Set("format", "") })

	out, err := run("get", "-f", "140", "-o", dir, "--interval", "10ms", "https://example.com/v")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "song.mp4"), strings.TrimSpace(out))

	_, err = run("get", "-f", "999", "-o", dir, "--interval", "10ms", "https://example.com/v")
	assert.ErrorContains(t, err, "requested format is not available")
}

func TestPrintMetadata(t *testing.T) {
	var buf bytes.Buffer
	printMetadata(&buf, &models.Metadata{
		Title:    models.Ptr("Clip"),
		Duration: models.Ptr(61.0),
		Formats: []models.Format{
			{FormatID: "18", Ext: models.Ptr("mp4"), Resolution: models.Ptr("360p"), FileSize: models.Ptr(int64(2048))},
			{FormatID: "140", Ext: models.Ptr("m4a"), Resolution: models.Ptr("audio only")},
		},
	})
	s := buf.String()
	assert.Contains(t, s, "Title:    Clip")
	assert.Contains(t, s, "Uploader: -")
	assert.Contains(t, s, "Duration: 61s")
	assert.Contains(t, s, "2.0 KiB")
	assert.Contains(t, s, "audio only")
}

func TestPrintJob(t *testing.T) {
	var buf bytes.Buffer
	printJob(&buf, &models.Job{
		ID:              "abc",
		Status:          models.StatusError,
		Progress:        0.25,
		DownloadedBytes: 512,
		TotalBytes:      models.Ptr(int64(2048)),
		Error:           models.Ptr("HTTP Error 403"),
	})
	s := buf.String()
	assert.Contains(t, s, "Status:   error")
	assert.Contains(t, s, "Progress: 25.0%")
	assert.Contains(t, s, "512 B / 2.0 KiB")
	assert.Contains(t, s, "Error:    HTTP Error 403")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "0 B", humanBytes(0))
	assert.Equal(t, "1023 B", humanBytes(1023))
	assert.Equal(t, "1.0 KiB", humanBytes(1024))
	assert.Equal(t, "1.5 MiB", humanBytes(1536*1024))
}
