package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"mediagrab/internal/models"
	"mediagrab/internal/utils"
)

// Client wraps HTTP calls to the mediagrab server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// fileClient has no timeout; artifacts can be large.
	fileClient *http.Client
}

func NewClient(serverURL string) *Client {
	return &Client{
		baseURL: serverURL,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		fileClient: &http.Client{},
	}
}

// apiError carries the server's {"detail": ...} message.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Detail)
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return &apiError{Status: resp.StatusCode, Detail: payload.Detail}
	}
	return &apiError{Status: resp.StatusCode, Detail: string(bytes.TrimSpace(body))}
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (c *Client) Info(ctx context.Context, mediaURL string) (*models.Metadata, error) {
	var meta models.Metadata
	if err := c.get(ctx, "/info?url="+url.QueryEscape(mediaURL), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) Start(ctx context.Context, mediaURL, formatID string) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	body := map[string]string{"url": mediaURL, "format_id": formatID}
	if err := c.post(ctx, "/start_download", body, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

func (c *Client) Progress(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := c.get(ctx, "/progress?job_id="+url.QueryEscape(jobID), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Wait polls the job until it reaches a terminal status, calling onUpdate
// with every snapshot.
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration, onUpdate func(*models.Job)) (*models.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Progress(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download saves the job's artifact into dir and returns the written path.
// newSink wraps the file writer once the size is known, e.g. with a
// progress bar; it may be nil.
func (c *Client) Download(ctx context.Context, jobID, dir string, newSink func(size int64, w io.Writer) io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download_file?job_id="+url.QueryEscape(jobID), nil)
	if err != nil {
		return "", fmt.Errorf("request creation failed: %w", err)
	}
	resp, err := c.fileClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", readError(resp)
	}

	name := jobID
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	path := filepath.Join(dir, utils.SanitizeName(filepath.Base(name)))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	var w io.Writer = f
	if newSink != nil {
		w = newSink(resp.ContentLength, f)
	}
	_, copyErr := io.Copy(w, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("saving %s: %w", path, err)
	}
	return path, nil
}
