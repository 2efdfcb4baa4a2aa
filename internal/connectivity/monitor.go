// Package connectivity tracks whether the network is reachable so
// persistence can decide between remote and local backends without paying
// for a timeout on every save.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultProbeInterval is how often the monitor probes when the config
// does not say
const DefaultProbeInterval = 30 * time.Second

const probeTimeout = 5 * time.Second

// Monitor periodically probes an endpoint and exposes the verdict through
// Online. Before the first probe completes the monitor reports online, so
// a slow start never forces the application offline.
type Monitor struct {
	probeURL string
	client   *http.Client
	interval time.Duration
	logger   *zap.Logger

	online atomic.Bool

	// State
	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewMonitor creates a connectivity monitor probing the given URL
func NewMonitor(probeURL string, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	m := &Monitor{
		probeURL: probeURL,
		client:   &http.Client{Timeout: probeTimeout},
		interval: interval,
		logger:   logger,
	}
	m.online.Store(true)
	return m
}

// Online reports the last probe's verdict
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Start starts the probe loop
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("connectivity monitor is already running")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.isRunning = true

	m.logger.Info("ConnectivityMonitor started",
		zap.String("probe_url", m.probeURL),
		zap.Duration("interval", m.interval))

	go m.probeLoop()

	return nil
}

// Stop stops the probe loop
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}

	m.isRunning = false
	if m.cancel != nil {
		m.cancel()
	}

	m.logger.Info("ConnectivityMonitor stopped")
}

// Name returns the worker name for identification
func (m *Monitor) Name() string {
	return "ConnectivityMonitor"
}

func (m *Monitor) probeLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Probe immediately on start
	m.probe()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Debug("Probe loop context cancelled")
			return

		case <-ticker.C:
			m.probe()
		}
	}
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(m.ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.setOnline(false)
		return
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.setOnline(false)
		return
	}
	resp.Body.Close()

	// Server-side errors mean the backend is unusable even though the
	// network is up.
	m.setOnline(resp.StatusCode < http.StatusInternalServerError)
}

func (m *Monitor) setOnline(online bool) {
	if m.online.Swap(online) != online {
		m.logger.Info("Connectivity changed",
			zap.Bool("online", online))
	}
}
