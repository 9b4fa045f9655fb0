package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/singleflight"

	"mediagrab/internal/extractor"
	"mediagrab/internal/metrics"
	"mediagrab/internal/models"
	"mediagrab/internal/storage"
)

const describeTimeout = 2 * time.Minute

// JobStarter launches the runner for a freshly created job.
type JobStarter interface {
	Start(id, url, formatID string)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// InfoHandler serves GET /info?url=. Concurrent lookups of the same url share
// one extractor call.
func InfoHandler(ext extractor.Extractor, m *metrics.Metrics) http.HandlerFunc {
	var group singleflight.Group

	return func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeError(w, http.StatusBadRequest, "Missing 'url' parameter")
			return
		}

		// The lookup outlives any single caller; each caller only stops
		// waiting when its own request ends.
		ch := group.DoChan(url, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), describeTimeout)
			defer cancel()

			start := time.Now()
			meta, err := ext.Describe(ctx, url)
			m.DescribeObserved(time.Since(start), err)
			return meta, err
		})

		var res singleflight.Result
		select {
		case <-r.Context().Done():
			slog.Debug("Client left before describe finished", "url", url)
			return
		case res = <-ch:
		}
		if res.Err != nil {
			slog.Warn("Describe failed", "url", url, "error", res.Err)
			writeError(w, http.StatusBadRequest, res.Err.Error())
			return
		}
		if res.Shared {
			slog.Debug("Describe result shared", "url", url)
		}

		writeJSON(w, http.StatusOK, publicMetadata(res.Val.(*models.Metadata)))
	}
}

// publicMetadata drops formats that cannot be requested by id. The shared
// value from singleflight is never modified.
func publicMetadata(meta *models.Metadata) models.Metadata {
	out := *meta
	out.Formats = make([]models.Format, 0, len(meta.Formats))
	for _, f := range meta.Formats {
		if f.FormatID != "" {
			out.Formats = append(out.Formats, f)
		}
	}
	return out
}

type startRequest struct {
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
}

type startResponse struct {
	JobID string `json:"job_id"`
}

func StartDownloadHandler(store *storage.Storage, starter JobStarter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" || req.FormatID == "" {
			writeError(w, http.StatusBadRequest, "Missing 'url' or 'format_id'")
			return
		}

		id := store.Create(req.URL, req.FormatID)
		starter.Start(id, req.URL, req.FormatID)
		slog.Info("Job created", "id", id, "url", req.URL, "format", req.FormatID)

		writeJSON(w, http.StatusOK, startResponse{JobID: id})
	}
}

// lookupJob resolves the job_id query parameter, writing the error response
// itself when it fails.
func lookupJob(w http.ResponseWriter, r *http.Request, store *storage.Storage) (models.Job, bool) {
	id := r.URL.Query().Get("job_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing 'job_id'")
		return models.Job{}, false
	}
	job, err := store.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return models.Job{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return models.Job{}, false
	}
	return job, true
}

func ProgressHandler(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := lookupJob(w, r, store)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func DownloadFileHandler(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := lookupJob(w, r, store)
		if !ok {
			return
		}
		if job.Status != models.StatusFinished || job.FilePath == nil {
			writeError(w, http.StatusBadRequest, "Not ready")
			return
		}

		f, err := os.Open(*job.FilePath)
		if err != nil {
			slog.Warn("Artifact missing", "id", job.ID, "path", *job.FilePath, "error", err)
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}

		name := info.Name()
		if job.FileName != nil {
			name = *job.FileName
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

func ListJobsHandler(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.List())
	}
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequestLogger logs one line per request through slog.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
