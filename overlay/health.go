// Package overlay probes, waits for, and as a last resort restarts the
// I2P router, and classifies Tor reachability. It is the only writer of
// transport health; everything else reads it through IsHealthy.
package overlay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/splinter/transport"
)

// State is the I2P router lifecycle state within a run.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateDegraded
	StateRestarting
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateRestarting:
		return "restarting"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

const (
	probeTimeout      = 10 * time.Second
	probeInterval     = 30 * time.Second
	patientWaitBudget = 8 * time.Minute
	restartGrace      = 15 * time.Second
	minUptimeRestart  = 20 * time.Minute

	// Console bodies smaller than this are a router that is still
	// binding its web server, not a ready one.
	minConsoleBody = 100
)

// Manager owns the router-process handle and the overlay health state.
type Manager struct {
	consoleURL string
	dataDir    string
	torAddr    string

	// Console probes go out directly; the router console is local.
	client *http.Client

	tor *transport.Transport
	i2p *transport.Transport

	mu         sync.Mutex
	state      State
	torHealthy bool

	// probeEvery is the re-probe interval, shortened in tests.
	probeEvery time.Duration

	// Stubbed in tests.
	processAlive  func() bool
	processUptime func() time.Duration
	restartRouter func() error
}

// NewManager creates a health manager. tor and i2p may be nil when the
// corresponding transport is disabled.
func NewManager(consoleURL, dataDir, torAddr string, tor, i2p *transport.Transport) *Manager {
	m := &Manager{
		consoleURL: consoleURL,
		dataDir:    dataDir,
		torAddr:    torAddr,
		client:     &http.Client{Timeout: probeTimeout},
		tor:        tor,
		i2p:        i2p,
		state:      StateInitializing,
		probeEvery: probeInterval,
	}
	m.processAlive = m.i2pProcessAlive
	m.processUptime = m.i2pProcessUptime
	m.restartRouter = m.gentleRestart
	return m
}

// State returns the current I2P state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsHealthy reports, without blocking, whether the given network is
// believed usable. The registry consults this at selection time.
func (m *Manager) IsHealthy(kind transport.Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case transport.KindTor:
		return m.torHealthy
	case transport.KindI2P:
		return m.state == StateReady
	default:
		return true
	}
}

// ProbeTor classifies Tor reachability by dialing the local SOCKS
// listener. Called at startup and before each cycle.
func (m *Manager) ProbeTor() bool {
	if m.tor == nil {
		return false
	}
	conn, err := net.DialTimeout("tcp", m.torAddr, probeTimeout)
	ok := err == nil
	if ok {
		conn.Close()
	}

	m.mu.Lock()
	m.torHealthy = ok
	m.mu.Unlock()

	if ok {
		m.tor.SetHealth(transport.HealthHealthy)
	} else {
		m.tor.SetHealth(transport.HealthDead)
	}
	return ok
}

// WaitUntilReady runs the startup state machine for the I2P router:
// a gentle health check, then a patient wait, then (only when the
// process is confirmed alive and has run long enough) a gentle restart
// followed by another patient wait. Each wait phase blocks up to
// waitBudget, capped at 8 minutes. Called once at startup.
func (m *Manager) WaitUntilReady(ctx context.Context, waitBudget time.Duration) bool {
	if m.i2p == nil {
		return false
	}
	if waitBudget > patientWaitBudget {
		waitBudget = patientWaitBudget
	}

	if m.gentleHealthCheck(ctx) {
		m.setState(StateReady)
		return true
	}

	slog.Info("i2p not yet responsive, waiting patiently")
	if m.patientWait(ctx, waitBudget) {
		m.setState(StateReady)
		return true
	}

	if m.processAlive() && m.processUptime() >= minUptimeRestart {
		slog.Warn("i2p unresponsive past uptime threshold, attempting gentle restart",
			"uptime", m.processUptime().Round(time.Minute),
		)
		m.setState(StateRestarting)
		if err := m.restartRouter(); err != nil {
			slog.Error("i2p restart failed", "error", err)
		} else if m.patientWait(ctx, waitBudget) {
			m.setState(StateReady)
			return true
		}
	}

	slog.Warn("i2p did not become ready within budget, marking unavailable")
	m.setState(StateUnavailable)
	return false
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s {
		slog.Info("i2p state change", "from", prev.String(), "to", s.String())
	}
	if m.i2p == nil {
		return
	}
	switch s {
	case StateReady:
		m.i2p.SetHealth(transport.HealthHealthy)
	case StateDegraded, StateRestarting:
		m.i2p.SetHealth(transport.HealthDegraded)
	case StateUnavailable:
		m.i2p.SetHealth(transport.HealthDead)
	}
}

// gentleHealthCheck GETs the router console and succeeds when the body
// is big enough to be a rendered console and carries a recognizable
// marker. It never disturbs a bootstrapping router.
func (m *Manager) gentleHealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.consoleURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) < minConsoleBody {
		return false
	}
	content := strings.ToLower(string(body))
	return strings.Contains(content, "router console") || strings.Contains(content, "i2p")
}

// patientWait re-probes every 30 seconds up to budget. It stays quiet
// between probes; state changes are logged by the caller via setState.
func (m *Manager) patientWait(ctx context.Context, budget time.Duration) bool {
	if budget <= 0 {
		return false
	}
	deadline := time.Now().Add(budget)

	for time.Now().Before(deadline) {
		if m.gentleHealthCheck(ctx) {
			return true
		}

		select {
		case <-time.After(m.probeEvery):
		case <-ctx.Done():
			return false
		}
	}
	return false
}

// gentleRestart sends a graceful shutdown, waits for exit, forces
// termination on timeout, and respawns the router with its data
// directory preserved. Persistent router state is never deleted.
func (m *Manager) gentleRestart() error {
	_ = exec.Command("pkill", "-TERM", "-f", "i2pd").Run()

	stopped := false
	for i := 0; i < int(restartGrace/time.Second); i++ {
		if !m.processAlive() {
			stopped = true
			break
		}
		time.Sleep(time.Second)
	}
	if !stopped {
		slog.Warn("i2p did not exit gracefully, forcing termination")
		_ = exec.Command("pkill", "-KILL", "-f", "i2pd").Run()
		time.Sleep(2 * time.Second)
	}

	cmd := exec.Command("i2pd", "--conf=/etc/i2pd/i2pd.conf", "--datadir="+m.dataDir)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("overlay: respawn i2pd: %w", err)
	}
	// Reparented; the router outlives the crawler process.
	go func() { _ = cmd.Wait() }()

	time.Sleep(restartGrace)
	return nil
}

func (m *Manager) i2pProcessAlive() bool {
	out, err := exec.Command("pgrep", "-f", "i2pd").Output()
	return err == nil && len(strings.TrimSpace(string(out))) > 0
}

func (m *Manager) i2pProcessUptime() time.Duration {
	out, err := exec.Command("pgrep", "-o", "-f", "i2pd").Output()
	if err != nil {
		return 0
	}
	pid := strings.TrimSpace(string(out))
	if i := strings.IndexByte(pid, '\n'); i >= 0 {
		pid = pid[:i]
	}
	etimes, err := exec.Command("ps", "-o", "etimes=", "-p", pid).Output()
	if err != nil {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(string(etimes)))
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// WaitForProxies blocks until at least one of Tor and I2P is usable,
// re-probing every 30 seconds up to maxCycles rounds. It returns false
// when both stay dead for the whole window; the caller refuses to
// proceed in that case.
func (m *Manager) WaitForProxies(ctx context.Context, maxCycles int) bool {
	for cycle := 0; cycle < maxCycles; cycle++ {
		torOK := m.ProbeTor()
		i2pOK := m.IsHealthy(transport.KindI2P)
		if torOK || i2pOK {
			return true
		}
		slog.Warn("both tor and i2p unavailable, waiting",
			"cycle", cycle+1,
			"maxCycles", maxCycles,
		)
		select {
		case <-time.After(m.probeEvery):
		case <-ctx.Done():
			return false
		}
	}
	return false
}
