package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/splinter/config"
	"github.com/use-agent/splinter/media"
	"github.com/use-agent/splinter/metrics"
	"github.com/use-agent/splinter/models"
)

// PageFetcher fetches and parses one page.
type PageFetcher interface {
	FetchAndParse(ctx context.Context, rawURL string) (*models.PageRecord, error)
}

// PageStore is the slice of the relational store the crawl needs.
type PageStore interface {
	UpsertSite(ctx context.Context, url string, isOnion, isI2P bool) (int64, error)
	InsertPage(ctx context.Context, p *models.Page) (int64, error)
	TouchSiteLastCrawled(ctx context.Context, siteID int64) error
	SiteLastCrawled(ctx context.Context, url string) (time.Time, bool, error)
}

// MediaProcessor runs the media references of one page.
type MediaProcessor interface {
	ProcessPage(ctx context.Context, pageID int64, refs []models.MediaRef) int
}

// Stats summarizes one site crawl.
type Stats struct {
	PagesCrawled int
	PagesFailed  int
	MediaStored  int
}

// Worker crawls one site breadth-first up to the configured depth and
// page cap, staying on the seed's host.
type Worker struct {
	fetcher PageFetcher
	db      PageStore
	media   MediaProcessor
	cfg     config.CrawlConfig
}

// NewWorker wires a site worker. media may be nil when the media
// pipeline is disabled.
func NewWorker(fetcher PageFetcher, db PageStore, media MediaProcessor, cfg config.CrawlConfig) *Worker {
	return &Worker{fetcher: fetcher, db: db, media: media, cfg: cfg}
}

type frontierItem struct {
	url   string
	depth int
}

// CrawlSite crawls seedURL. The crawl fails only when the seed page
// itself cannot be fetched and stored; interior page failures are
// logged and absorbed. On success the site's last_crawled is updated.
func (w *Worker) CrawlSite(ctx context.Context, seedURL string) (Stats, error) {
	var stats Stats

	isOnion, isI2P := classifyHost(seedURL)
	siteID, err := w.db.UpsertSite(ctx, seedURL, isOnion, isI2P)
	if err != nil {
		return stats, fmt.Errorf("crawler: upsert site %s: %w", seedURL, err)
	}

	log := slog.With("site", seedURL)
	visited := map[string]bool{seedURL: true}
	frontier := []frontierItem{{url: seedURL, depth: 0}}

	for len(frontier) > 0 {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if stats.PagesCrawled >= w.cfg.MaxPagesPerSite {
			log.Info("page cap reached", "cap", w.cfg.MaxPagesPerSite)
			break
		}

		item := frontier[0]
		frontier = frontier[1:]

		rec, err := w.fetcher.FetchAndParse(ctx, item.url)
		if err != nil {
			if item.depth == 0 {
				// An unreachable seed means the whole site failed; the
				// orchestrator requeues it.
				return stats, fmt.Errorf("crawler: seed fetch %s: %w", item.url, err)
			}
			stats.PagesFailed++
			metrics.PagesFailed.WithLabelValues(errCodeOf(err)).Inc()
			log.Warn("page fetch failed", "url", item.url, "depth", item.depth, "error", err)
			continue
		}

		pageID, err := w.db.InsertPage(ctx, &models.Page{
			SiteID:      siteID,
			URL:         item.url,
			Title:       rec.Title,
			ContentText: rec.VisibleText,
			HTMLContent: rec.HTML,
			Depth:       item.depth,
		})
		if err != nil {
			if item.depth == 0 {
				return stats, fmt.Errorf("crawler: store seed page %s: %w", item.url, err)
			}
			stats.PagesFailed++
			log.Warn("page store failed", "url", item.url, "error", err)
			continue
		}
		stats.PagesCrawled++
		metrics.PagesCrawled.WithLabelValues(networkLabel(seedURL)).Inc()

		if w.media != nil {
			stats.MediaStored += w.media.ProcessPage(ctx, pageID, rec.Media)
		}

		if item.depth >= w.cfg.Depth {
			continue
		}
		for _, link := range rec.Links {
			if visited[link] || !sameHost(seedURL, link) || media.HasKnownExtension(link) {
				continue
			}
			visited[link] = true
			frontier = append(frontier, frontierItem{url: link, depth: item.depth + 1})
		}
	}

	if err := w.db.TouchSiteLastCrawled(ctx, siteID); err != nil {
		log.Warn("failed to update last_crawled", "error", err)
	}
	log.Info("site crawl complete",
		"pages", stats.PagesCrawled,
		"failed", stats.PagesFailed,
		"media", stats.MediaStored,
	)
	return stats, nil
}

func errCodeOf(err error) string {
	var ce *models.CrawlError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return models.ErrCodeInternal
}

func networkLabel(seedURL string) string {
	isOnion, isI2P := classifyHost(seedURL)
	switch {
	case isOnion:
		return "tor"
	case isI2P:
		return "i2p"
	default:
		return "clearnet"
	}
}
