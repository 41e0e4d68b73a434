// Package store persists crawl results: page and media metadata in
// MySQL, media blobs in an S3-compatible object store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/use-agent/splinter/config"
	"github.com/use-agent/splinter/models"
)

// Sentinel errors mapped from MySQL error codes so callers can branch
// without importing the driver.
var (
	// ErrDuplicate maps error 1062: the (page_id, url) pair already exists.
	ErrDuplicate = errors.New("store: duplicate row")

	// ErrTooLong maps error 1406: a value exceeded its column size.
	ErrTooLong = errors.New("store: data too long for column")
)

const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrDataTooLong    = 1406
)

// DB wraps the MySQL connection pool with the crawler's queries.
type DB struct {
	conn *sqlx.DB
}

// Open connects to MySQL and verifies the connection. The pool is sized
// from the site-worker count so parallel crawls never starve on
// connections.
func Open(ctx context.Context, cfg config.DBConfig, workers int) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	conn, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open mysql: %w", err)
	}
	conn.SetMaxOpenConns(workers*2 + 4)
	conn.SetMaxIdleConns(workers + 2)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping mysql: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// EnsureSchema creates the crawler tables when they do not exist yet.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertSite returns the id for url, inserting the row on first sight.
// The onion/i2p flags are derived once at insert and never updated.
func (d *DB) UpsertSite(ctx context.Context, url string, isOnion, isI2P bool) (int64, error) {
	var id int64
	err := d.conn.GetContext(ctx, &id, `SELECT id FROM sites WHERE url = ?`, url)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("store: lookup site: %w", err)
	}

	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO sites (url, is_onion, is_i2p) VALUES (?, ?, ?)`,
		url, isOnion, isI2P)
	if err != nil {
		if mapError(err) == ErrDuplicate {
			// Lost a race with another worker; the row exists now.
			if gerr := d.conn.GetContext(ctx, &id, `SELECT id FROM sites WHERE url = ?`, url); gerr == nil {
				return id, nil
			}
		}
		return 0, fmt.Errorf("store: insert site: %w", err)
	}
	return res.LastInsertId()
}

// SiteLastCrawled returns the last crawl completion time for url, or
// ok=false when the site is unknown or never completed a crawl.
func (d *DB) SiteLastCrawled(ctx context.Context, url string) (time.Time, bool, error) {
	var last sql.NullTime
	err := d.conn.GetContext(ctx, &last, `SELECT last_crawled FROM sites WHERE url = ?`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: site last_crawled: %w", err)
	}
	return last.Time, last.Valid, nil
}

// TouchSiteLastCrawled records the completion of a site crawl.
func (d *DB) TouchSiteLastCrawled(ctx context.Context, siteID int64) error {
	_, err := d.conn.ExecContext(ctx,
		`UPDATE sites SET last_crawled = ? WHERE id = ?`,
		time.Now().UTC(), siteID)
	if err != nil {
		return fmt.Errorf("store: touch last_crawled: %w", err)
	}
	return nil
}

// InsertPage appends a page row and returns its id. Page rows are
// append-only; re-fetching a URL in a later crawl adds a new row.
func (d *DB) InsertPage(ctx context.Context, p *models.Page) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `
		INSERT INTO pages (site_id, url, title, content_text, html_content, depth, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SiteID, p.URL, p.Title, p.ContentText, p.HTMLContent, p.Depth, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: insert page: %w", err)
	}
	return res.LastInsertId()
}

// InsertMediaMetadata appends a media row. Returns ErrDuplicate when the
// (page_id, url) pair already exists and ErrTooLong when a value exceeds
// its column; callers retry the latter with Content dropped.
func (d *DB) InsertMediaMetadata(ctx context.Context, m *models.MediaFile) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `
		INSERT INTO media_files
			(page_id, url, file_type, media_category, description, content,
			 size_bytes, filename, minio_bucket, minio_object_name, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.PageID, m.URL, m.FileType, m.MediaCategory, m.Description, m.Content,
		m.SizeBytes, m.Filename, m.MinioBucket, m.MinioObject, time.Now().UTC())
	if err != nil {
		if mapped := mapError(err); mapped != nil {
			return 0, mapped
		}
		return 0, fmt.Errorf("store: insert media: %w", err)
	}
	return res.LastInsertId()
}

// MediaExists reports whether a media row for (pageID, url) is already
// recorded. Used for within-page deduplication before any download.
func (d *DB) MediaExists(ctx context.Context, pageID int64, url string) (bool, error) {
	var one int
	err := d.conn.GetContext(ctx, &one,
		`SELECT 1 FROM media_files WHERE page_id = ? AND url = ? LIMIT 1`,
		pageID, url)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: media exists: %w", err)
	}
	return true, nil
}

// mapError translates driver error codes to the package sentinels,
// returning nil for errors with no mapping.
func mapError(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return nil
	}
	switch me.Number {
	case mysqlErrDuplicateEntry:
		return ErrDuplicate
	case mysqlErrDataTooLong:
		return ErrTooLong
	default:
		return nil
	}
}
