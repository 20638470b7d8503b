// Package proxymgr rotates the proxies extractor calls are routed through.
// Proxies failing repeatedly are benched with exponential backoff and re-probed in the background.
package proxymgr

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"sync"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/errs"
	"vidfetch/internal/observability"
)

// State represents the current state of a proxy.
type State int

const (
	// StateAvailable indicates the proxy is available for use.
	StateAvailable State = iota
	// StateBenched indicates the proxy has failed too often and is in backoff.
	StateBenched
)

const (
	healthCheckTimeout = 10 * time.Second
	maxBackoff         = time.Hour
)

type proxyInfo struct {
	state         State
	failureCount  int
	lastFailure   time.Time
	backoffUntil  time.Time
	lastHealthChk time.Time
}

// Stats is a snapshot of a single proxy.
type Stats struct {
	State         State
	FailureCount  int
	LastFailure   time.Time
	BackoffUntil  time.Time
	LastHealthChk time.Time
}

// DialFunc opens a connection to a proxy address.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Manager manages proxy rotation and health.
type Manager struct {
	log     *slog.Logger
	cfg     config.Proxy
	metrics *observability.Metrics
	dial    DialFunc

	mu      sync.Mutex
	proxies map[string]*proxyInfo
	order   []string
}

// New creates a proxy manager for cfg.Proxies. metrics may be nil.
func New(log *slog.Logger, cfg config.Proxy, metrics *observability.Metrics) *Manager {
	dialer := &net.Dialer{Timeout: healthCheckTimeout}

	mgr := &Manager{
		log:     log.With(slog.String("package", "proxymgr")),
		cfg:     cfg,
		metrics: metrics,
		dial:    dialer.DialContext,
		proxies: make(map[string]*proxyInfo, len(cfg.Proxies)),
		order:   make([]string, 0, len(cfg.Proxies)),
	}

	for _, proxy := range cfg.Proxies {
		if _, dup := mgr.proxies[proxy]; dup {
			continue
		}

		mgr.proxies[proxy] = &proxyInfo{state: StateAvailable}
		mgr.order = append(mgr.order, proxy)
	}

	metrics.SetProxiesAvailable(len(mgr.order))

	return mgr
}

// WithDialer replaces the dialer used for health checks.
func (m *Manager) WithDialer(dial DialFunc) *Manager {
	m.dial = dial

	return m
}

// Pick returns a random available proxy URL or errs.ErrNoProxiesAvailable.
func (m *Manager) Pick() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	available := m.available(time.Now())
	if len(available) == 0 {
		return "", errs.ErrNoProxiesAvailable
	}

	return available[rand.IntN(len(available))], nil //nolint:gosec
}

// GetRandomProxy returns a random available proxy URL, or "" when none is available.
func (m *Manager) GetRandomProxy() string {
	proxy, err := m.Pick()
	if err != nil {
		return ""
	}

	return proxy
}

// MarkFailed records a failure and benches the proxy once MaxFailures is reached.
func (m *Manager) MarkFailed(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.proxies[proxyURL]
	if !exists {
		return
	}

	now := time.Now()

	info.failureCount++
	info.lastFailure = now

	maxFailures := max(m.cfg.MaxFailures, 1)
	if info.failureCount < maxFailures {
		return
	}

	backoff := min(m.cfg.FailureBackoff*time.Duration(1<<min(info.failureCount-maxFailures, 16)), maxBackoff)

	info.state = StateBenched
	info.backoffUntil = now.Add(backoff)

	m.metrics.SetProxiesAvailable(len(m.available(now)))

	m.log.Warn("proxy benched",
		slog.String("proxy", proxyURL),
		slog.Int("failure_count", info.failureCount),
		slog.Duration("backoff", backoff))
}

// MarkSuccess resets the failure state of a proxy.
func (m *Manager) MarkSuccess(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.proxies[proxyURL]
	if !exists {
		return
	}

	info.state = StateAvailable
	info.failureCount = 0
	info.backoffUntil = time.Time{}

	m.metrics.SetProxiesAvailable(len(m.available(time.Now())))
}

// HealthCheck dials the proxy host and records the outcome.
func (m *Manager) HealthCheck(ctx context.Context, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("parse proxy URL: %w", err)
	}

	conn, err := m.dial(ctx, "tcp", parsedURL.Host)
	if err != nil {
		m.MarkFailed(proxyURL)
		m.metrics.RecordProxyFailure(proxyURL)

		return fmt.Errorf("dial proxy: %w", err)
	}
	defer conn.Close()

	m.mu.Lock()

	if info, exists := m.proxies[proxyURL]; exists {
		info.lastHealthChk = time.Now()
	}

	m.mu.Unlock()

	m.MarkSuccess(proxyURL)

	return nil
}

// StartHealthChecker probes all proxies every HealthCheckInterval until ctx is done.
func (m *Manager) StartHealthChecker(ctx context.Context) {
	if m.cfg.HealthCheckInterval <= 0 || len(m.order) == 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.cfg.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAll(ctx)
			}
		}
	}()

	m.log.Info("proxy health checker started",
		slog.Duration("interval", m.cfg.HealthCheckInterval),
		slog.Int("proxy_count", len(m.order)))
}

// Stats returns a snapshot of every proxy.
func (m *Manager) Stats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]Stats, len(m.proxies))
	for proxyURL, info := range m.proxies {
		stats[proxyURL] = Stats{
			State:         info.state,
			FailureCount:  info.failureCount,
			LastFailure:   info.lastFailure,
			BackoffUntil:  info.backoffUntil,
			LastHealthChk: info.lastHealthChk,
		}
	}

	return stats
}

// Count returns the number of configured proxies.
func (m *Manager) Count() int {
	return len(m.order)
}

// AvailableCount returns the number of currently available proxies.
func (m *Manager) AvailableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.available(time.Now()))
}

// available must be called with m.mu held.
func (m *Manager) available(now time.Time) []string {
	out := make([]string, 0, len(m.order))

	for _, proxyURL := range m.order {
		info := m.proxies[proxyURL]
		if info.state == StateAvailable || now.After(info.backoffUntil) {
			out = append(out, proxyURL)
		}
	}

	return out
}

func (m *Manager) checkAll(ctx context.Context) {
	for _, proxy := range m.order {
		if ctx.Err() != nil {
			return
		}

		if err := m.HealthCheck(ctx, proxy); err != nil {
			m.log.Debug("proxy health check failed", slog.String("proxy", proxy), slog.Any("error", err))
		}
	}
}
