package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all crawler configuration.
type Config struct {
	Sites       SitesConfig
	Crawl       CrawlConfig
	Media       MediaConfig
	Proxy       ProxyConfig
	ObjectStore ObjectStoreConfig
	DB          DBConfig
	Log         LogConfig
	Metrics     MetricsConfig
}

// SitesConfig locates the seed list.
type SitesConfig struct {
	// File is the newline-delimited site list. Blank lines and lines
	// starting with '#' are ignored.
	File string // default: "/mnt/config/sites.txt"
}

// CrawlConfig controls traversal and scheduling.
type CrawlConfig struct {
	// ParallelSites is the number of sites crawled concurrently.
	ParallelSites int // default: 3

	// Depth is the maximum BFS depth per site (seed is depth 0).
	Depth int // default: 3

	// MaxPagesPerSite is the hard page cap per site per cycle.
	MaxPagesPerSite int // default: 500

	// MaxSiteRetries is the number of failures after which a site is
	// abandoned for the current cycle.
	MaxSiteRetries int // default: 10

	// FrequencyHours is the interval between full crawl cycles; sites
	// crawled more recently than this are skipped.
	FrequencyHours int // default: 24

	// RetryRoundDelay is the pause before promoting the retry queue.
	RetryRoundDelay time.Duration // default: 30s
}

// MediaConfig controls the media download pipeline.
type MediaConfig struct {
	// DownloadAll toggles the media pipeline entirely.
	DownloadAll bool // default: true

	// MaxImageSize, MaxAudioSize, MaxVideoSize, MaxOtherSize are the
	// per-category byte caps.
	MaxImageSize int64 // default: 10 MiB
	MaxAudioSize int64 // default: 10 MiB
	MaxVideoSize int64 // default: 50 MiB
	MaxOtherSize int64 // default: 10 MiB

	// MaxPerPage caps media downloads per page; 0 means unlimited.
	MaxPerPage int // default: 0
}

// ProxyConfig controls the overlay transports.
type ProxyConfig struct {
	// EnableTor toggles the Tor SOCKS transport. Tor is mandatory for
	// clearnet traffic; the crawler refuses to start without it.
	EnableTor bool // default: true

	// TorSocksPort is the local Tor SOCKS5 listener port.
	TorSocksPort int // default: 9050

	// EnableI2P toggles the I2P HTTP-proxy transport.
	EnableI2P bool // default: true

	// I2PHTTPProxyPort is the local I2P HTTP-CONNECT proxy port.
	I2PHTTPProxyPort int // default: 4444

	// I2PConsoleURL is the router console probed for health.
	I2PConsoleURL string // default: "http://127.0.0.1:7070"

	// I2PDataDir is preserved across router restarts.
	I2PDataDir string // default: "/var/lib/i2pd"

	// RequestTimeout is the per-request deadline on every transport.
	RequestTimeout time.Duration // default: 30s

	// RateRPS and RateBurst bound the sustained request rate per transport.
	RateRPS   float64 // default: 4
	RateBurst int     // default: 8
}

// ObjectStoreConfig wires the S3-compatible media store.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool // default: false

	BucketImages string // default: "crawler-images"
	BucketAudio  string // default: "crawler-audio"
	BucketVideo  string // default: "crawler-videos"
	BucketOther  string // default: "crawler-media"
}

// DBConfig wires the relational store.
type DBConfig struct {
	Host     string
	Port     int // default: 3306
	User     string
	Password string
	Database string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the listener.
	Addr string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Sites: SitesConfig{
			File: envOr("SITES_FILE", "/mnt/config/sites.txt"),
		},
		Crawl: CrawlConfig{
			ParallelSites:   envIntOr("PARALLEL_SITES", 3),
			Depth:           envIntOr("CRAWL_DEPTH", 3),
			MaxPagesPerSite: envIntOr("MAX_PAGES_PER_SITE", 500),
			MaxSiteRetries:  envIntOr("MAX_SITE_RETRIES", 10),
			FrequencyHours:  envIntOr("RESEARCH_FREQUENCY_HOURS", 24),
			RetryRoundDelay: envDurationOr("RETRY_ROUND_DELAY", 30*time.Second),
		},
		Media: MediaConfig{
			DownloadAll:  envBoolOr("DOWNLOAD_ALL_MEDIA", true),
			MaxImageSize: envInt64Or("MAX_IMAGE_SIZE", 10*1024*1024),
			MaxAudioSize: envInt64Or("MAX_AUDIO_SIZE", 10*1024*1024),
			MaxVideoSize: envInt64Or("MAX_VIDEO_SIZE", 50*1024*1024),
			MaxOtherSize: envInt64Or("MAX_OTHER_SIZE", 10*1024*1024),
			MaxPerPage:   envIntOr("MAX_MEDIA_PER_PAGE", 0),
		},
		Proxy: ProxyConfig{
			EnableTor:        envBoolOr("ENABLE_TOR", true),
			TorSocksPort:     envIntOr("TOR_SOCKS_PORT", 9050),
			EnableI2P:        envBoolOr("ENABLE_I2P", true),
			I2PHTTPProxyPort: envIntOr("I2P_HTTP_PROXY_PORT", 4444),
			I2PConsoleURL:    envOr("I2P_CONSOLE_URL", "http://127.0.0.1:7070"),
			I2PDataDir:       envOr("I2P_DATA_DIR", "/var/lib/i2pd"),
			RequestTimeout:   envDurationOr("REQUEST_TIMEOUT", 30*time.Second),
			RateRPS:          envFloatOr("REQUEST_RATE_RPS", 4.0),
			RateBurst:        envIntOr("REQUEST_RATE_BURST", 8),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:     envOr("MINIO_ENDPOINT", "127.0.0.1:9000"),
			AccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey:    os.Getenv("MINIO_SECRET_KEY"),
			Secure:       envBoolOr("MINIO_SECURE", false),
			BucketImages: envOr("MINIO_BUCKET_IMAGES", "crawler-images"),
			BucketAudio:  envOr("MINIO_BUCKET_AUDIO", "crawler-audio"),
			BucketVideo:  envOr("MINIO_BUCKET_VIDEO", "crawler-videos"),
			BucketOther:  envOr("MINIO_BUCKET_OTHER", "crawler-media"),
		},
		DB: DBConfig{
			Host:     envOr("MYSQL_HOST", "127.0.0.1"),
			Port:     envIntOr("MYSQL_PORT", 3306),
			User:     envOr("MYSQL_USER", "splinter"),
			Password: os.Getenv("MYSQL_PASSWORD"),
			Database: envOr("MYSQL_DATABASE", "splinter"),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Addr: os.Getenv("METRICS_ADDR"),
		},
	}
}

// SizeCapFor returns the byte cap for a media category.
func (m MediaConfig) SizeCapFor(category string) int64 {
	switch category {
	case "image":
		return m.MaxImageSize
	case "audio":
		return m.MaxAudioSize
	case "video":
		return m.MaxVideoSize
	default:
		return m.MaxOtherSize
	}
}

// BucketFor returns the bucket name for a media category.
func (o ObjectStoreConfig) BucketFor(category string) string {
	switch category {
	case "image":
		return o.BucketImages
	case "audio":
		return o.BucketAudio
	case "video":
		return o.BucketVideo
	default:
		return o.BucketOther
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
