// Package media downloads referenced media files with per-category size
// caps, uploads blobs to the object store, and records metadata rows.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/use-agent/splinter/config"
	"github.com/use-agent/splinter/metrics"
	"github.com/use-agent/splinter/models"
	"github.com/use-agent/splinter/store"
	"github.com/use-agent/splinter/transport"
)

// Blobs at or below this size are additionally inlined in the metadata
// row; larger blobs live only in the object store.
const inlineLimit = 1 << 20

// Bodies are streamed in chunks so an over-cap download is abandoned
// mid-transfer instead of buffered whole.
const chunkSize = 8 << 10

// OutcomeKind classifies what happened to one media reference.
type OutcomeKind int

const (
	OutcomeStored OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

// Skip reasons.
const (
	SkipTooLarge  = "too_large"
	SkipDuplicate = "duplicate"
)

// Outcome is the per-reference result. Failed outcomes carry the error;
// skipped outcomes carry the reason.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

// MetadataStore is the slice of the relational store the pipeline needs.
type MetadataStore interface {
	InsertMediaMetadata(ctx context.Context, m *models.MediaFile) (int64, error)
	MediaExists(ctx context.Context, pageID int64, url string) (bool, error)
}

// ObjectPutter uploads one blob and returns the bucket used.
type ObjectPutter interface {
	Put(ctx context.Context, category, key string, r io.Reader, size int64, contentType string) (string, error)
}

// Pipeline processes the media references of crawled pages.
type Pipeline struct {
	registry *transport.Registry
	db       MetadataStore
	objects  ObjectPutter
	cfg      config.MediaConfig
}

// NewPipeline wires a media pipeline.
func NewPipeline(registry *transport.Registry, db MetadataStore, objects ObjectPutter, cfg config.MediaConfig) *Pipeline {
	return &Pipeline{registry: registry, db: db, objects: objects, cfg: cfg}
}

// ProcessPage runs every reference of a page through the pipeline and
// returns the number stored. Individual failures are logged and
// absorbed; media loss never fails a page.
func (p *Pipeline) ProcessPage(ctx context.Context, pageID int64, refs []models.MediaRef) int {
	if !p.cfg.DownloadAll {
		return 0
	}
	count := 0
	for _, ref := range refs {
		if p.cfg.MaxPerPage > 0 && count >= p.cfg.MaxPerPage {
			slog.Debug("media cap reached for page", "pageID", pageID, "cap", p.cfg.MaxPerPage)
			break
		}
		out := p.Process(ctx, pageID, ref)
		switch out.Kind {
		case OutcomeStored:
			count++
		case OutcomeFailed:
			slog.Warn("media download failed", "pageID", pageID, "url", ref.URL, "error", out.Err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return count
}

// Process handles one media reference end to end: dedup check,
// download with size caps, object upload, metadata insert.
func (p *Pipeline) Process(ctx context.Context, pageID int64, ref models.MediaRef) Outcome {
	exists, err := p.db.MediaExists(ctx, pageID, ref.URL)
	if err != nil {
		return failed(models.NewCrawlError(models.ErrCodeStorage, "media dedup check", err))
	}
	if exists {
		return skipped(SkipDuplicate)
	}

	tr, _, ok := p.registry.Select(ref.URL)
	if !ok {
		return failed(models.NewCrawlError(models.ErrCodeNoTransport,
			fmt.Sprintf("no transport for media %s", ref.URL), nil))
	}

	resp, err := tr.Get(ctx, ref.URL)
	if err != nil {
		return failed(models.NewCrawlError(models.ErrCodeTransport,
			fmt.Sprintf("download %s", ref.URL), err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(models.NewStatusError(resp.StatusCode, ref.URL))
	}

	contentType := resp.Header.Get("Content-Type")
	category, fileType := Categorize(ref.URL, contentType)
	limit := p.cfg.SizeCapFor(category)

	// Trust an honest Content-Length to skip the download entirely.
	if resp.ContentLength > 0 && resp.ContentLength > limit {
		slog.Debug("media over size cap", "url", ref.URL, "category", category,
			"size", resp.ContentLength, "cap", limit)
		return skipped(SkipTooLarge)
	}

	data, overCap, err := readCapped(resp.Body, limit)
	if err != nil {
		return failed(models.NewCrawlError(models.ErrCodeTransport,
			fmt.Sprintf("read media %s", ref.URL), err))
	}
	if overCap {
		return skipped(SkipTooLarge)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := store.ObjectKey(pageID, ref.URL)
	bucket, err := p.objects.Put(ctx, category, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return failed(models.NewCrawlError(models.ErrCodeUpload,
			fmt.Sprintf("upload media %s", ref.URL), err))
	}

	mf := &models.MediaFile{
		PageID:        pageID,
		URL:           ref.URL,
		FileType:      fileType,
		MediaCategory: category,
		Description:   ref.AltText,
		SizeBytes:     int64(len(data)),
		Filename:      store.FilenameFromURL(ref.URL),
		MinioBucket:   bucket,
		MinioObject:   key,
	}
	if len(data) <= inlineLimit {
		mf.Content = data
	}

	if _, err := p.db.InsertMediaMetadata(ctx, mf); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return skipped(SkipDuplicate)
		case errors.Is(err, store.ErrTooLong):
			// The blob is already safe in the object store; keep the
			// metadata row without the inline copy.
			mf.Content = nil
			if _, rerr := p.db.InsertMediaMetadata(ctx, mf); rerr != nil {
				return failed(models.NewCrawlError(models.ErrCodeStorage,
					fmt.Sprintf("insert media metadata %s", ref.URL), rerr))
			}
			return stored(category)
		default:
			return failed(models.NewCrawlError(models.ErrCodeStorage,
				fmt.Sprintf("insert media metadata %s", ref.URL), err))
		}
	}
	return stored(category)
}

func stored(category string) Outcome {
	metrics.MediaStored.WithLabelValues(category).Inc()
	return Outcome{Kind: OutcomeStored}
}

func skipped(reason string) Outcome {
	metrics.MediaSkipped.WithLabelValues(reason).Inc()
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

func failed(err error) Outcome {
	metrics.MediaFailed.Inc()
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// readCapped reads r in chunks, giving up as soon as the total exceeds
// limit. overCap=true means the download was abandoned mid-stream.
func readCapped(r io.Reader, limit int64) ([]byte, bool, error) {
	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if int64(buf.Len()) > limit {
				return nil, true, nil
			}
		}
		if err == io.EOF {
			return buf.Bytes(), false, nil
		}
		if err != nil {
			return nil, false, err
		}
	}
}

// Extension sets used for URL-based categorization, checked before the
// Content-Type fallback.
var (
	imageExts    = extSet("jpg", "jpeg", "png", "gif", "bmp", "webp", "svg")
	videoExts    = extSet("mp4", "avi", "mov", "wmv", "flv", "webm", "mkv")
	audioExts    = extSet("mp3", "wav", "ogg", "m4a", "flac", "aac")
	documentExts = extSet("pdf", "doc", "docx", "txt", "zip", "rar")
)

func extSet(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return m
}

// HasKnownExtension reports whether a URL path ends in any recognized
// media extension. The crawl worker uses it to keep media URLs out of
// the page frontier.
func HasKnownExtension(rawURL string) bool {
	ext := urlExtension(rawURL)
	return ext != "" && (imageExts[ext] || videoExts[ext] || audioExts[ext] || documentExts[ext])
}

// Categorize assigns the media category and file type, preferring the
// URL extension and falling back to the Content-Type prefix.
func Categorize(rawURL, contentType string) (category, fileType string) {
	if ext := urlExtension(rawURL); ext != "" {
		switch {
		case imageExts[ext]:
			return models.CategoryImage, ext
		case videoExts[ext]:
			return models.CategoryVideo, ext
		case audioExts[ext]:
			return models.CategoryAudio, ext
		case documentExts[ext]:
			return models.CategoryDocument, ext
		}
	}

	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.CategoryImage, mime
	case strings.HasPrefix(mime, "video/"):
		return models.CategoryVideo, mime
	case strings.HasPrefix(mime, "audio/"):
		return models.CategoryAudio, mime
	}
	if mime == "" {
		mime = "unknown"
	}
	return models.CategoryOther, mime
}

func urlExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if len(ext) > 10 {
		return ""
	}
	return ext
}
