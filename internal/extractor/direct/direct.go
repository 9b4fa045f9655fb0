// Package direct is an extractor for plain HTTP media: either a URL that
// serves the file itself, or an HTML page that embeds media through Open
// Graph tags or <video>/<audio> elements.
package direct

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"mediagrab/internal/extractor"
	"mediagrab/internal/models"
	"mediagrab/internal/utils"
)

const (
	describeTimeout = 30 * time.Second
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// FileFormatID is the only format offered for a URL that is itself a media file.
	FileFormatID = "file"
)

var mediaSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="og:video:secure_url"]`, "content"},
	{`meta[property="og:video:url"]`, "content"},
	{`meta[property="og:video"]`, "content"},
	{`meta[property="og:audio"]`, "content"},
	{`video[src]`, "src"},
	{`video source[src]`, "src"},
	{`audio[src]`, "src"},
	{`audio source[src]`, "src"},
}

type Extractor struct {
	client *http.Client
}

func New(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{}
	}
	return &Extractor{client: client}
}

// source is a resolved page: its metadata plus the media URL behind each format id.
type source struct {
	meta  models.Metadata
	media map[string]string
}

func (e *Extractor) Describe(ctx context.Context, rawURL string) (*models.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, describeTimeout)
	defer cancel()

	src, err := e.resolve(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrExtraction, err)
	}
	return &src.meta, nil
}

func (e *Extractor) resolve(ctx context.Context, rawURL string) (*source, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return nil, fmt.Errorf("%w: %s", extractor.ErrUnsupported, rawURL)
	}

	resp, err := e.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" {
		return fileSource(pageURL, mediaType, resp.ContentLength), nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	return pageSource(pageURL, doc), nil
}

func fileSource(u *url.URL, mediaType string, size int64) *source {
	base := path.Base(u.Path)
	ext := strings.TrimPrefix(path.Ext(base), ".")
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			ext = strings.TrimPrefix(exts[0], ".")
		}
	}
	title := strings.TrimSuffix(base, path.Ext(base))
	if title == "" || title == "/" || title == "." {
		title = u.Host
	}

	f := models.Format{FormatID: FileFormatID}
	if ext != "" {
		f.Ext = models.Ptr(ext)
	}
	if size > 0 {
		f.FileSize = models.Ptr(size)
	}
	switch {
	case strings.HasPrefix(mediaType, "video/"):
		f.VCodec = models.Ptr("unknown")
	case strings.HasPrefix(mediaType, "audio/"):
		f.VCodec = models.Ptr("none")
		f.ACodec = models.Ptr("unknown")
	}

	src := &source{
		meta: models.Metadata{
			Title:   models.Ptr(title),
			Formats: []models.Format{f},
		},
		media: map[string]string{FileFormatID: u.String()},
	}
	if base != "/" && base != "." {
		src.meta.ID = models.Ptr(base)
	}
	return src
}

func pageSource(pageURL *url.URL, doc *goquery.Document) *source {
	src := &source{media: make(map[string]string)}

	title := attr(doc, `meta[property="og:title"]`, "content")
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title != "" {
		src.meta.Title = models.Ptr(title)
	}
	if thumb := attr(doc, `meta[property="og:image"]`, "content"); thumb != "" {
		src.meta.Thumbnail = resolveRef(pageURL, thumb)
	}
	if id := path.Base(pageURL.Path); id != "/" && id != "." {
		src.meta.ID = models.Ptr(id)
	}
	if d := attr(doc, `meta[property="video:duration"]`, "content"); d != "" {
		if secs, err := strconv.ParseFloat(d, 64); err == nil {
			src.meta.Duration = models.Ptr(secs)
		}
	}
	if author := attr(doc, `meta[name="author"]`, "content"); author != "" {
		src.meta.Uploader = models.Ptr(author)
	}

	seen := make(map[string]bool)
	for _, m := range mediaSelectors {
		doc.Find(m.selector).Each(func(_ int, s *goquery.Selection) {
			ref, _ := s.Attr(m.attr)
			abs := resolveRef(pageURL, strings.TrimSpace(ref))
			if abs == nil || seen[*abs] {
				return
			}
			seen[*abs] = true

			id := strconv.Itoa(len(src.meta.Formats))
			f := models.Format{FormatID: id}
			if u, err := url.Parse(*abs); err == nil {
				if ext := strings.TrimPrefix(path.Ext(u.Path), "."); ext != "" {
					f.Ext = models.Ptr(ext)
				}
			}
			if h, ok := s.Attr("height"); ok && h != "" {
				f.Resolution = models.Ptr(h + "p")
			}
			src.meta.Formats = append(src.meta.Formats, f)
			src.media[id] = *abs
		})
	}
	return src
}

func attr(doc *goquery.Document, selector, name string) string {
	v, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func resolveRef(base *url.URL, ref string) *string {
	if ref == "" {
		return nil
	}
	u, err := base.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	return models.Ptr(u.String())
}

func (e *Extractor) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("server error: %s", resp.Status)
	}
	return resp, nil
}

func (e *Extractor) Fetch(ctx context.Context, req extractor.FetchRequest, onProgress extractor.ProgressFunc) (*models.Artifact, error) {
	src, err := e.resolve(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrTransfer, err)
	}
	mediaURL, ok := src.media[req.FormatID]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", extractor.ErrTransfer, extractor.ErrUnknownFormat, req.FormatID)
	}

	title := "download"
	if src.meta.Title != nil {
		title = *src.meta.Title
	}
	ext := "bin"
	for _, f := range src.meta.Formats {
		if f.FormatID == req.FormatID && f.Ext != nil {
			ext = *f.Ext
		}
	}

	tmpl := req.OutputTemplate
	if tmpl == "" {
		tmpl = extractor.DefaultOutputTemplate
	}
	filePath := extractor.ExpandTemplate(tmpl, utils.SanitizeName(title), utils.SanitizeName(ext))

	slog.Debug("Direct transfer", "url", mediaURL, "path", filePath)
	if err := e.download(ctx, mediaURL, filePath, onProgress); err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrTransfer, err)
	}
	return &models.Artifact{FilePath: filePath, Title: title}, nil
}

func (e *Extractor) download(ctx context.Context, mediaURL, filePath string, onProgress extractor.ProgressFunc) error {
	resp, err := e.get(ctx, mediaURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return err
	}
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var total *int64
	if resp.ContentLength > 0 {
		total = models.Ptr(resp.ContentLength)
	}
	return extractor.CopyWithProgress(ctx, resp.Body, file, total, onProgress)
}
