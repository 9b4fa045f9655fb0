package models

import "time"

type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
)

// validTransitions lists, per status, the statuses a job may move to.
// Re-asserting downloading is allowed; terminal statuses have no exits.
var validTransitions = map[Status][]Status{
	StatusQueued:      {StatusQueued, StatusDownloading, StatusError},
	StatusDownloading: {StatusDownloading, StatusFinished, StatusError},
	StatusFinished:    {},
	StatusError:       {},
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, v := range validTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusError
}

type Job struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	FormatID        string     `json:"format_id"`
	Status          Status     `json:"status"`
	Progress        float64    `json:"progress"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	TotalBytes      *int64     `json:"total_bytes"`
	Speed           *float64   `json:"speed"`
	ETA             *int64     `json:"eta"`
	FilePath        *string    `json:"filepath"`
	FileName        *string    `json:"filename"`
	Title           *string    `json:"title"`
	Error           *string    `json:"error"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	FinishedAt      *time.Time `json:"finished_at"`
}

// Clone returns a deep copy so callers never share pointer fields with the registry.
func (j Job) Clone() Job {
	c := j
	c.TotalBytes = clonePtr(j.TotalBytes)
	c.Speed = clonePtr(j.Speed)
	c.ETA = clonePtr(j.ETA)
	c.FilePath = clonePtr(j.FilePath)
	c.FileName = clonePtr(j.FileName)
	c.Title = clonePtr(j.Title)
	c.Error = clonePtr(j.Error)
	c.FinishedAt = clonePtr(j.FinishedAt)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type ProgressStatus string

const (
	ProgressDownloading ProgressStatus = "downloading"
	ProgressFinished    ProgressStatus = "finished"
)

// ProgressEvent is what an extractor reports while a transfer runs.
// Nil fields mean the extractor does not know the value.
type ProgressEvent struct {
	Status                ProgressStatus
	DownloadedBytes       *int64
	DownloadedBytesApprox *int64
	TotalBytes            *int64
	TotalBytesApprox      *int64
	Speed                 *float64
	ETA                   *int64
}

type Artifact struct {
	FilePath string
	Title    string
}

type Format struct {
	FormatID   string  `json:"format_id"`
	Ext        *string `json:"ext"`
	Resolution *string `json:"resolution"`
	FileSize   *int64  `json:"filesize"`
	VCodec     *string `json:"vcodec"`
	ACodec     *string `json:"acodec"`
}

type Metadata struct {
	ID        *string  `json:"id"`
	Title     *string  `json:"title"`
	Thumbnail *string  `json:"thumbnail"`
	Duration  *float64 `json:"duration"`
	Uploader  *string  `json:"uploader"`
	Formats   []Format `json:"formats"`
}

func Ptr[T any](v T) *T {
	return &v
}
