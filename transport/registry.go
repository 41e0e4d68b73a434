package transport

import (
	"net/url"
	"strings"
)

// Registry holds the per-kind transports and selects one per URL.
// Selection is determined exclusively by the hostname suffix:
//
//   - .onion → Tor if enabled, else none.
//   - .i2p   → I2P if enabled and healthy; else Tor if enabled; else none.
//   - other  → Tor. Clearnet traffic is never issued through the direct
//     transport while Tor is enabled; without Tor the crawler refuses
//     to start, so the direct transport is never selected here.
type Registry struct {
	direct *Transport
	tor    *Transport
	i2p    *Transport

	// i2pHealthy reports the overlay manager's current view of the I2P
	// router. It must be non-blocking.
	i2pHealthy func() bool
}

// NewRegistry builds a registry. tor and i2p may be nil when the
// corresponding network is disabled. i2pHealthy may be nil, in which
// case the I2P transport's own health state is consulted.
func NewRegistry(direct, tor, i2p *Transport, i2pHealthy func() bool) *Registry {
	r := &Registry{direct: direct, tor: tor, i2p: i2p, i2pHealthy: i2pHealthy}
	if r.i2pHealthy == nil {
		r.i2pHealthy = func() bool {
			return i2p != nil && i2p.Health() == HealthHealthy
		}
	}
	return r
}

// Tor returns the Tor transport, or nil when disabled.
func (r *Registry) Tor() *Transport { return r.tor }

// I2P returns the I2P transport, or nil when disabled.
func (r *Registry) I2P() *Transport { return r.i2p }

// Select returns the transport for rawURL, or ok=false when no enabled
// transport may carry it.
func (r *Registry) Select(rawURL string) (*Transport, Kind, bool) {
	host := hostnameOf(rawURL)

	switch {
	case strings.HasSuffix(host, ".onion"):
		if r.tor != nil {
			return r.tor, KindTor, true
		}
		return nil, "", false

	case strings.HasSuffix(host, ".i2p"):
		if r.i2p != nil && r.i2pHealthy() {
			return r.i2p, KindI2P, true
		}
		if r.tor != nil {
			return r.tor, KindTor, true
		}
		return nil, "", false

	default:
		if r.tor != nil {
			return r.tor, KindTor, true
		}
		return nil, "", false
	}
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
