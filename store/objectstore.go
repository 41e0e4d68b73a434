package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/use-agent/splinter/config"
)

// ObjectStore uploads media blobs to an S3-compatible endpoint. Keys are
// deterministic per source URL but unique per fetch.
type ObjectStore struct {
	client *minio.Client
	cfg    config.ObjectStoreConfig
}

// NewObjectStore connects to the configured endpoint. No network call is
// made until EnsureBuckets or Put.
func NewObjectStore(cfg config.ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("store: minio client: %w", err)
	}
	return &ObjectStore{client: client, cfg: cfg}, nil
}

// EnsureBuckets creates the per-category buckets when missing. Safe to
// call on every startup.
func (o *ObjectStore) EnsureBuckets(ctx context.Context) error {
	buckets := []string{
		o.cfg.BucketImages,
		o.cfg.BucketAudio,
		o.cfg.BucketVideo,
		o.cfg.BucketOther,
	}
	for _, bucket := range buckets {
		exists, err := o.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("store: check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := o.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			// Another instance may have won the race.
			exists, eerr := o.client.BucketExists(ctx, bucket)
			if eerr == nil && exists {
				continue
			}
			return fmt.Errorf("store: make bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// BucketFor returns the configured bucket for a media category.
func (o *ObjectStore) BucketFor(category string) string {
	return o.cfg.BucketFor(category)
}

// Put uploads one blob and returns the bucket it landed in.
func (o *ObjectStore) Put(ctx context.Context, category, key string, r io.Reader, size int64, contentType string) (string, error) {
	bucket := o.cfg.BucketFor(category)
	_, err := o.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store: put %s/%s: %w", bucket, key, err)
	}
	return bucket, nil
}

// ObjectKey derives the object name for a media URL fetched for a page:
// page_{id}/{unix}_{md5(url)}{ext}. The timestamp keeps re-fetches in
// later crawls from overwriting earlier blobs.
func ObjectKey(pageID int64, rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return fmt.Sprintf("page_%d/%d_%s%s",
		pageID, time.Now().Unix(), hex.EncodeToString(sum[:]), urlExt(rawURL))
}

// urlExt extracts a sane file extension from a URL path, ignoring the
// query string. Extensions longer than 10 characters are treated as not
// being extensions at all.
func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) > 10 {
		return ""
	}
	return ext
}

// FilenameFromURL returns the last path segment of a media URL, for the
// filename metadata column. Falls back to "file" for bare hosts.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "file"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
