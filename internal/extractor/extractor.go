// Package extractor defines the contract between the job runner and the
// engines that look up media metadata and transfer media files.
package extractor

import (
	"context"
	"errors"
	"strings"

	"mediagrab/internal/models"
)

var (
	// ErrExtraction wraps failures while looking up metadata.
	ErrExtraction = errors.New("extraction failed")
	// ErrTransfer wraps failures while downloading a format.
	ErrTransfer = errors.New("transfer failed")
	// ErrUnknownFormat is returned when the requested format id is not offered.
	ErrUnknownFormat = errors.New("requested format is not available")
	// ErrUnsupported is returned when a backend cannot handle the locator.
	ErrUnsupported = errors.New("unsupported url")
)

// DefaultOutputTemplate names output files after the media title.
const DefaultOutputTemplate = "%(title)s.%(ext)s"

// ProgressFunc receives progress reports from inside Fetch, on the caller's
// goroutine or one owned by the backend.
type ProgressFunc func(models.ProgressEvent)

type FetchRequest struct {
	URL            string
	FormatID       string
	OutputTemplate string
}

type Extractor interface {
	Describe(ctx context.Context, url string) (*models.Metadata, error)
	Fetch(ctx context.Context, req FetchRequest, onProgress ProgressFunc) (*models.Artifact, error)
}

// ExpandTemplate fills the %(title)s and %(ext)s fields of an output template
// for backends that do not understand yt-dlp templates natively.
func ExpandTemplate(tmpl, title, ext string) string {
	return strings.NewReplacer("%(title)s", title, "%(ext)s", ext).Replace(tmpl)
}
