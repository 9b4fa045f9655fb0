// Package download runs download jobs. Each job gets one goroutine that calls
// the extractor and turns its progress reports into registry updates; that
// goroutine is the only writer of its job.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"mediagrab/internal/extractor"
	"mediagrab/internal/metrics"
	"mediagrab/internal/models"
	"mediagrab/internal/storage"
)

const tempDirPrefix = "job_"

// Notifier receives every committed job change.
type Notifier interface {
	BroadcastJob(job models.Job)
}

type Config struct {
	TempDir  string
	Notifier Notifier
	Metrics  *metrics.Metrics
}

type Downloader struct {
	ctx       context.Context
	store     *storage.Storage
	extractor extractor.Extractor
	notifier  Notifier
	metrics   *metrics.Metrics
	tempDir   string

	wg      sync.WaitGroup
	tasksMu sync.Mutex
	tasks   map[string]*task
	dirs    map[string]string
}

// task is the handle of one running job.
type task struct {
	startedAt time.Time
	done      chan struct{}
}

// New returns a Downloader whose runners inherit ctx; cancelling it aborts
// every in-flight transfer.
func New(ctx context.Context, store *storage.Storage, ext extractor.Extractor, cfg Config) *Downloader {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, os.ModePerm); err != nil {
		slog.Warn("Could not create temp dir", "dir", tempDir, "error", err)
	}
	return &Downloader{
		ctx:       ctx,
		store:     store,
		extractor: ext,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		tempDir:   tempDir,
		tasks:     make(map[string]*task),
		dirs:      make(map[string]string),
	}
}

// Start launches the runner for a job created in the registry. It returns
// immediately; the outcome is recorded on the job.
func (d *Downloader) Start(id, url, formatID string) {
	t := &task{startedAt: time.Now(), done: make(chan struct{})}

	d.tasksMu.Lock()
	d.tasks[id] = t
	d.tasksMu.Unlock()

	d.wg.Add(1)
	d.metrics.JobStarted()
	go d.run(t, id, url, formatID)
}

func (d *Downloader) run(t *task, id, url, formatID string) {
	defer d.wg.Done()
	defer func() {
		d.tasksMu.Lock()
		delete(d.tasks, id)
		d.tasksMu.Unlock()
		close(t.done)
	}()

	slog.Info("Downloading", "id", id, "url", url, "format", formatID)

	art, err := d.fetch(id, url, formatID)
	if err != nil {
		d.fail(id, err)
		d.metrics.JobFinished(string(models.StatusError), time.Since(t.startedAt))
		return
	}
	d.complete(id, art)
	d.metrics.JobFinished(string(models.StatusFinished), time.Since(t.startedAt))
}

func (d *Downloader) fetch(id, url, formatID string) (art *models.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Runner panicked", "id", id, "panic", r, "stack", string(debug.Stack()))
			art, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()

	dir, err := os.MkdirTemp(d.tempDir, tempDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	d.tasksMu.Lock()
	d.dirs[id] = dir
	d.tasksMu.Unlock()

	req := extractor.FetchRequest{
		URL:            url,
		FormatID:       formatID,
		OutputTemplate: filepath.Join(dir, extractor.DefaultOutputTemplate),
	}
	art, err = d.extractor.Fetch(d.ctx, req, func(ev models.ProgressEvent) {
		if d.update(id, func(j *models.Job) { applyProgress(j, ev) }) {
			d.metrics.ProgressUpdated()
		}
	})
	if err != nil {
		return nil, err
	}
	if art == nil || art.FilePath == "" {
		return nil, fmt.Errorf("%w: no output file", extractor.ErrTransfer)
	}
	return art, nil
}

// applyProgress folds one extractor report into the job. Missing values stay
// missing, and progress never moves backwards.
func applyProgress(j *models.Job, ev models.ProgressEvent) {
	switch ev.Status {
	case models.ProgressDownloading:
		j.Status = models.StatusDownloading

		j.DownloadedBytes = 0
		if b := firstNonNil(ev.DownloadedBytes, ev.DownloadedBytesApprox); b != nil {
			j.DownloadedBytes = *b
		}
		j.TotalBytes = firstNonNil(ev.TotalBytes, ev.TotalBytesApprox)
		j.Speed = ev.Speed
		j.ETA = ev.ETA

		if j.TotalBytes != nil && *j.TotalBytes > 0 {
			p := min(1.0, float64(j.DownloadedBytes)/float64(*j.TotalBytes))
			j.Progress = max(j.Progress, p)
		}
	case models.ProgressFinished:
		if j.Status == models.StatusQueued {
			j.Status = models.StatusDownloading
		}
		j.Progress = 1.0
	}
}

func firstNonNil[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func (d *Downloader) complete(id string, art *models.Artifact) {
	// A transfer that never reported progress still passes through downloading.
	if job, err := d.store.Get(id); err == nil && job.Status == models.StatusQueued {
		d.update(id, func(j *models.Job) { j.Status = models.StatusDownloading })
	}

	ok := d.update(id, func(j *models.Job) {
		j.Status = models.StatusFinished
		j.Progress = 1.0
		j.FilePath = models.Ptr(art.FilePath)
		j.FileName = models.Ptr(filepath.Base(art.FilePath))
		if art.Title != "" {
			j.Title = models.Ptr(art.Title)
		}
	})
	if !ok {
		slog.Warn("Could not record finished job", "id", id)
		return
	}
	slog.Info("Download complete", "id", id, "file", art.FilePath)
}

func (d *Downloader) fail(id string, err error) {
	ok := d.update(id, func(j *models.Job) {
		j.Status = models.StatusError
		j.Error = models.Ptr(err.Error())
	})
	if !ok {
		slog.Warn("Could not record failed job", "id", id, "error", err)
	}
	slog.Error("Download failed", "id", id, "error", err)

	d.tasksMu.Lock()
	dir := d.dirs[id]
	delete(d.dirs, id)
	d.tasksMu.Unlock()
	if dir != "" {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Warn("Could not remove temp dir", "id", id, "dir", dir, "error", rmErr)
		}
	}
}

func (d *Downloader) update(id string, mutate func(*models.Job)) bool {
	if !d.store.Update(id, mutate) {
		return false
	}
	if d.notifier != nil {
		if job, err := d.store.Get(id); err == nil {
			d.notifier.BroadcastJob(job)
		}
	}
	return true
}

// Active reports how many runners are executing.
func (d *Downloader) Active() int {
	d.tasksMu.Lock()
	defer d.tasksMu.Unlock()
	return len(d.tasks)
}

// taskDone returns a channel closed when the job's runner exits, or nil when
// no runner is active for id.
func (d *Downloader) taskDone(id string) <-chan struct{} {
	d.tasksMu.Lock()
	defer d.tasksMu.Unlock()
	if t, ok := d.tasks[id]; ok {
		return t.done
	}
	return nil
}

// Wait blocks until every runner has exited or ctx ends.
func (d *Downloader) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep evicts terminal jobs that finished more than ttl ago and deletes
// their temp directories.
func (d *Downloader) Sweep(ttl time.Duration) (int, error) {
	removed := d.store.Sweep(time.Now().Add(-ttl))

	var result *multierror.Error
	for _, job := range removed {
		d.tasksMu.Lock()
		dir := d.dirs[job.ID]
		delete(d.dirs, job.ID)
		d.tasksMu.Unlock()

		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", dir, err))
		}
	}
	d.metrics.JobsSwept(len(removed))
	return len(removed), result.ErrorOrNil()
}

// RunSweeper calls Sweep every interval until ctx ends. A non-positive ttl
// disables eviction.
func (d *Downloader) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.Sweep(ttl)
			if err != nil {
				slog.Warn("Sweep left files behind", "error", err)
			}
			if n > 0 {
				slog.Info("Swept expired jobs", "count", n)
			}
		}
	}
}
