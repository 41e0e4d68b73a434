// Package transport owns the per-network HTTP transports (direct,
// Tor SOCKS, I2P HTTP proxy) and the registry that selects one per URL.
// Transports are created once at startup and are immutable and safe for
// concurrent use; only the overlay health manager writes health state.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// Kind identifies a transport network.
type Kind string

const (
	KindDirect Kind = "direct"
	KindTor    Kind = "tor"
	KindI2P    Kind = "i2p"
)

// Health is the overlay-reported transport health.
type Health int32

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthDegraded
	HealthDead
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only. Computed once at init time and reused for every
// connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Replace h2 with http/1.1 only in the ALPN extension so the server
	// never negotiates HTTP/2 (which Go's http.Transport cannot handle
	// over a utls connection).
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// Transport wraps one network's HTTP client. The client owns a
// concurrency-safe connection pool; the retry and rate-limit policy live
// in its round tripper.
type Transport struct {
	Kind   Kind
	Client *http.Client

	health atomic.Int32
}

// Health returns the overlay-reported health of this transport.
func (t *Transport) Health() Health {
	return Health(t.health.Load())
}

// SetHealth records the transport health. Only the overlay health
// manager calls this.
func (t *Transport) SetHealth(h Health) {
	t.health.Store(int32(h))
}

// Options configures transport construction.
type Options struct {
	TorSocksAddr   string // host:port of the local Tor SOCKS5 listener
	I2PProxyURL    string // URL of the local I2P HTTP-CONNECT proxy
	RequestTimeout time.Duration
	RateRPS        float64
	RateBurst      int
}

// NewDirect builds the direct (no proxy) transport. It exists in every
// registry but is never selected while Tor is enabled.
func NewDirect(opts Options) *Transport {
	base := cleanhttp.DefaultPooledTransport()
	base.ForceAttemptHTTP2 = false
	base.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := &net.Dialer{Timeout: 10 * time.Second}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return chromeHandshake(ctx, conn, addr)
	}
	return newTransport(KindDirect, base, opts)
}

// NewTor builds the Tor transport. Both plain and TLS connections are
// dialed through the local SOCKS5 listener; hostname resolution happens
// inside the proxy (socks5h semantics), so .onion names never touch the
// local resolver.
func NewTor(opts Options) (*Transport, error) {
	socks, err := proxy.SOCKS5("tcp", opts.TorSocksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("transport: socks5 dialer: %w", err)
	}
	dialer, ok := socks.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("transport: socks5 dialer lacks context support")
	}

	base := cleanhttp.DefaultPooledTransport()
	base.ForceAttemptHTTP2 = false
	base.Proxy = nil
	base.DialContext = dialer.DialContext
	base.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return chromeHandshake(ctx, conn, addr)
	}
	return newTransport(KindTor, base, opts), nil
}

// NewI2P builds the I2P transport over the local HTTP-CONNECT proxy.
// Eepsites are plain HTTP, so no TLS dial override is needed.
func NewI2P(opts Options) (*Transport, error) {
	proxyURL, err := url.Parse(opts.I2PProxyURL)
	if err != nil {
		return nil, fmt.Errorf("transport: i2p proxy url: %w", err)
	}
	base := cleanhttp.DefaultPooledTransport()
	base.ForceAttemptHTTP2 = false
	base.Proxy = http.ProxyURL(proxyURL)
	return newTransport(KindI2P, base, opts), nil
}

func newTransport(kind Kind, base *http.Transport, opts Options) *Transport {
	rt := &retryRoundTripper{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(opts.RateRPS), opts.RateBurst),
	}
	t := &Transport{
		Kind: kind,
		Client: &http.Client{
			Transport: rt,
			Timeout:   opts.RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
	t.SetHealth(HealthUnknown)
	return t
}

// chromeHandshake upgrades a raw connection with a Chrome-fingerprint
// TLS handshake locked to http/1.1.
func chromeHandshake(ctx context.Context, conn net.Conn, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// Get issues a GET with browser-like headers through this transport.
func (t *Transport) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	return t.Client.Do(req)
}
