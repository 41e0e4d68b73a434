package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/splinter/config"
	"github.com/use-agent/splinter/metrics"
)

// SiteCrawler crawls one site. Satisfied by *Worker.
type SiteCrawler interface {
	CrawlSite(ctx context.Context, seedURL string) (Stats, error)
}

// CycleSummary is the outcome of one full crawl cycle.
type CycleSummary struct {
	Succeeded    int
	Abandoned    int
	SkippedFresh int
	Pages        int
	Media        int
	Elapsed      time.Duration
}

// Orchestrator schedules crawl cycles: freshness filtering, bounded
// parallel dispatch, and retry rounds with per-site failure budgets.
type Orchestrator struct {
	worker SiteCrawler
	db     PageStore
	cfg    config.CrawlConfig
	sites  []string
}

// NewOrchestrator wires an orchestrator over a fixed seed list.
func NewOrchestrator(worker SiteCrawler, db PageStore, cfg config.CrawlConfig, sites []string) *Orchestrator {
	return &Orchestrator{worker: worker, db: db, cfg: cfg, sites: sites}
}

// Run crawls in a loop, sleeping FrequencyHours between cycles, until
// the context is canceled.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := time.Duration(o.cfg.FrequencyHours) * time.Hour
	for {
		summary := o.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		metrics.CyclesCompleted.Inc()
		slog.Info("crawl cycle complete",
			"succeeded", summary.Succeeded,
			"abandoned", summary.Abandoned,
			"skippedFresh", summary.SkippedFresh,
			"pages", summary.Pages,
			"media", summary.Media,
			"elapsed", summary.Elapsed.Round(time.Second),
			"nextCycleIn", interval,
		)
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
	}
}

// RunCycle crawls every stale site once, retrying failed sites in
// subsequent rounds until they succeed or exhaust MaxSiteRetries.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleSummary {
	start := time.Now()
	var summary CycleSummary

	pending := o.filterFresh(ctx, &summary)
	failures := map[string]int{}

	for len(pending) > 0 && ctx.Err() == nil {
		failed := o.runRound(ctx, pending, &summary)

		pending = pending[:0]
		for _, site := range failed {
			failures[site]++
			if failures[site] >= o.cfg.MaxSiteRetries {
				slog.Warn("abandoning site for this cycle",
					"site", site, "failures", failures[site])
				summary.Abandoned++
				metrics.SiteOutcomes.WithLabelValues("abandoned").Inc()
				continue
			}
			pending = append(pending, site)
		}

		if len(pending) > 0 {
			slog.Info("retry round pending",
				"sites", len(pending), "delay", o.cfg.RetryRoundDelay)
			select {
			case <-time.After(o.cfg.RetryRoundDelay):
			case <-ctx.Done():
			}
		}
	}

	summary.Elapsed = time.Since(start)
	return summary
}

// filterFresh drops sites crawled within the cycle frequency window.
func (o *Orchestrator) filterFresh(ctx context.Context, summary *CycleSummary) []string {
	freshness := time.Duration(o.cfg.FrequencyHours) * time.Hour
	var stale []string
	for _, site := range o.sites {
		last, ok, err := o.db.SiteLastCrawled(ctx, site)
		if err != nil {
			slog.Warn("freshness check failed, crawling anyway", "site", site, "error", err)
			stale = append(stale, site)
			continue
		}
		if ok && time.Since(last) < freshness {
			slog.Debug("skipping fresh site", "site", site, "lastCrawled", last)
			summary.SkippedFresh++
			metrics.SiteOutcomes.WithLabelValues("skipped_fresh").Inc()
			continue
		}
		stale = append(stale, site)
	}
	return stale
}

// runRound dispatches one batch of sites with at most ParallelSites in
// flight and returns the sites that failed.
func (o *Orchestrator) runRound(ctx context.Context, sites []string, summary *CycleSummary) []string {
	sem := make(chan struct{}, o.cfg.ParallelSites)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []string

	for _, site := range sites {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(site string) {
			defer wg.Done()
			defer func() { <-sem }()

			stats, err := o.worker.CrawlSite(ctx, site)

			mu.Lock()
			defer mu.Unlock()
			summary.Pages += stats.PagesCrawled
			summary.Media += stats.MediaStored
			if err != nil {
				slog.Warn("site crawl failed", "site", site, "error", err)
				metrics.SiteOutcomes.WithLabelValues("failed").Inc()
				failed = append(failed, site)
				return
			}
			summary.Succeeded++
			metrics.SiteOutcomes.WithLabelValues("success").Inc()
		}(site)
	}
	wg.Wait()
	return failed
}
