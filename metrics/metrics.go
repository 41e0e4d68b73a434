// Package metrics exposes crawl counters over Prometheus. The listener
// is optional; the counters are registered either way and cost nothing
// when unscraped.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesCrawled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splinter_pages_crawled_total",
		Help: "Pages fetched and stored, by transport network.",
	}, []string{"network"})

	PagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splinter_pages_failed_total",
		Help: "Page fetches that errored, by error code.",
	}, []string{"code"})

	MediaStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splinter_media_stored_total",
		Help: "Media files uploaded and recorded, by category.",
	}, []string{"category"})

	MediaSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splinter_media_skipped_total",
		Help: "Media references skipped, by reason.",
	}, []string{"reason"})

	MediaFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splinter_media_failed_total",
		Help: "Media downloads that errored.",
	})

	SiteOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splinter_site_crawls_total",
		Help: "Site crawl outcomes per cycle (success, failed, abandoned, skipped_fresh).",
	}, []string{"outcome"})

	CyclesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splinter_cycles_completed_total",
		Help: "Completed crawl cycles.",
	})
)

// Serve starts the /metrics listener on addr. A listen failure is
// logged, not fatal; the crawler runs fine without metrics.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics listener failed", "addr", addr, "error", err)
		}
	}()
}
