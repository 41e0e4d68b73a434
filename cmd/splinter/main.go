package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/splinter/config"
	"github.com/use-agent/splinter/crawler"
	"github.com/use-agent/splinter/fetcher"
	"github.com/use-agent/splinter/media"
	"github.com/use-agent/splinter/metrics"
	"github.com/use-agent/splinter/overlay"
	"github.com/use-agent/splinter/store"
	"github.com/use-agent/splinter/transport"
)

const (
	// Startup tolerates a bootstrapping router; both proxies must come
	// up within 30 rounds of 30 seconds or the crawler refuses to run.
	proxyWaitCycles = 30

	i2pReadyBudget = 8 * time.Minute
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("splinter starting",
		"sitesFile", cfg.Sites.File,
		"parallelSites", cfg.Crawl.ParallelSites,
		"depth", cfg.Crawl.Depth,
		"tor", cfg.Proxy.EnableTor,
		"i2p", cfg.Proxy.EnableI2P,
	)

	// Clearnet traffic only ever leaves through Tor; running without it
	// would leak the crawler's address on the very first request.
	if !cfg.Proxy.EnableTor {
		slog.Error("tor is mandatory; refusing to start with ENABLE_TOR=false")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Connect relational store ─────────────────────────────────
	db, err := store.Open(ctx, cfg.DB, cfg.Crawl.ParallelSites)
	if err != nil {
		slog.Error("failed to connect to mysql", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// ── 4. Connect object store ─────────────────────────────────────
	objects, err := store.NewObjectStore(cfg.ObjectStore)
	if err != nil {
		slog.Error("failed to connect to object store", "error", err)
		os.Exit(1)
	}
	if err := objects.EnsureBuckets(ctx); err != nil {
		slog.Error("failed to ensure buckets", "error", err)
		os.Exit(1)
	}

	// ── 5. Build transports ─────────────────────────────────────────
	opts := transport.Options{
		TorSocksAddr:   fmt.Sprintf("127.0.0.1:%d", cfg.Proxy.TorSocksPort),
		I2PProxyURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Proxy.I2PHTTPProxyPort),
		RequestTimeout: cfg.Proxy.RequestTimeout,
		RateRPS:        cfg.Proxy.RateRPS,
		RateBurst:      cfg.Proxy.RateBurst,
	}

	tor, err := transport.NewTor(opts)
	if err != nil {
		slog.Error("failed to build tor transport", "error", err)
		os.Exit(1)
	}

	var i2p *transport.Transport
	if cfg.Proxy.EnableI2P {
		i2p, err = transport.NewI2P(opts)
		if err != nil {
			slog.Error("failed to build i2p transport", "error", err)
			os.Exit(1)
		}
	}

	// ── 6. Overlay health: probe Tor, wait for I2P ──────────────────
	manager := overlay.NewManager(cfg.Proxy.I2PConsoleURL, cfg.Proxy.I2PDataDir,
		opts.TorSocksAddr, tor, i2p)

	torOK := manager.ProbeTor()
	i2pOK := false
	if i2p != nil {
		i2pOK = manager.WaitUntilReady(ctx, i2pReadyBudget)
	}
	slog.Info("overlay status", "tor", torOK, "i2p", i2pOK)

	if !torOK && !i2pOK {
		slog.Warn("no overlay network reachable, waiting for one to come up")
		if !manager.WaitForProxies(ctx, proxyWaitCycles) {
			slog.Error("neither tor nor i2p became reachable; refusing to crawl")
			os.Exit(1)
		}
	}

	registry := transport.NewRegistry(transport.NewDirect(opts), tor, i2p,
		func() bool { return manager.IsHealthy(transport.KindI2P) })

	// ── 7. Load seed list ───────────────────────────────────────────
	sites, err := crawler.LoadSiteList(cfg.Sites.File)
	if err != nil {
		slog.Error("failed to load site list", "error", err)
		os.Exit(1)
	}
	if len(sites) == 0 {
		slog.Error("site list is empty", "file", cfg.Sites.File)
		os.Exit(1)
	}
	slog.Info("site list loaded", "sites", len(sites))

	// ── 8. Wire pipeline and orchestrator ───────────────────────────
	pipeline := media.NewPipeline(registry, db, objects, cfg.Media)
	worker := crawler.NewWorker(fetcher.New(registry), db, pipeline, cfg.Crawl)
	orchestrator := crawler.NewOrchestrator(worker, db, cfg.Crawl, sites)

	// ── 9. Metrics listener (optional) ──────────────────────────────
	metrics.Serve(cfg.Metrics.Addr)

	// ── 10. Crawl until signalled ───────────────────────────────────
	orchestrator.Run(ctx)

	slog.Info("splinter stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
