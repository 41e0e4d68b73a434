package models

import (
	"database/sql"
	"time"
)

// Media categories assigned by the media pipeline.
const (
	CategoryImage    = "image"
	CategoryAudio    = "audio"
	CategoryVideo    = "video"
	CategoryDocument = "document"
	CategoryOther    = "other"
)

// Site is a crawl target from the configured site list.
// is_onion and is_i2p are derived from the hostname suffix and are
// mutually exclusive; the URL never changes after creation.
type Site struct {
	ID          int64        `db:"id"`
	URL         string       `db:"url"`
	IsOnion     bool         `db:"is_onion"`
	IsI2P       bool         `db:"is_i2p"`
	LastCrawled sql.NullTime `db:"last_crawled"`
	CreatedAt   time.Time    `db:"created_at"`
}

// Page is one fetched document. A new row is appended on every fetch of
// the URL within a crawl; rows are never mutated afterwards.
type Page struct {
	ID          int64     `db:"id"`
	SiteID      int64     `db:"site_id"`
	URL         string    `db:"url"`
	Title       string    `db:"title"`
	ContentText string    `db:"content_text"`
	HTMLContent string    `db:"html_content"`
	Depth       int       `db:"depth"`
	CrawledAt   time.Time `db:"crawled_at"`
}

// MediaFile records one downloaded blob. Content holds the inline bytes
// only when the blob is at most 1 MiB; above that the object store key
// is authoritative and Content is nil.
type MediaFile struct {
	ID            int64     `db:"id"`
	PageID        int64     `db:"page_id"`
	URL           string    `db:"url"`
	FileType      string    `db:"file_type"`
	MediaCategory string    `db:"media_category"`
	Description   string    `db:"description"`
	Content       []byte    `db:"content"`
	SizeBytes     int64     `db:"size_bytes"`
	Filename      string    `db:"filename"`
	MinioBucket   string    `db:"minio_bucket"`
	MinioObject   string    `db:"minio_object_name"`
	DownloadedAt  time.Time `db:"downloaded_at"`
}

// MediaRef is a media reference extracted from a page, in DOM order.
type MediaRef struct {
	// URL is the absolute source URL.
	URL string

	// Kind is the category hinted by the referencing element
	// (img → image, video → video, audio → audio, document anchor →
	// document). The pipeline re-categorizes from the URL and
	// Content-Type; Kind only seeds the description.
	Kind string

	// AltText is the alt attribute or anchor text, kept as the
	// description slot for external analyzers.
	AltText string
}

// PageRecord is the result of fetching and parsing one page.
type PageRecord struct {
	URL         string
	Title       string
	VisibleText string
	HTML        string
	Links       []string
	Media       []MediaRef
}
