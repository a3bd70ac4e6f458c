// Package apistatus periodically probes each external provider the system
// depends on, caches its health, and demotes non-critical failures to
// warnings when the critical provider backing the same chain is healthy.
package apistatus

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/pkg/types"
)

// Prober performs a cheap health check against one provider.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a plain function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// Provider describes one monitored external dependency.
type Provider struct {
	Name string
	Tier types.ProviderTier
	// DependsOn names another registered provider; a failure here is
	// demoted from critical to a warning status when that provider is
	// currently healthy, since the two together back the same chain and
	// the healthy one can carry traffic.
	DependsOn string
	Probe     Prober
}

const (
	statusHealthy  = "healthy"
	statusWarning  = "warning"
	statusDown     = "down"
	statusUnknown  = "unknown"
)

// Monitor runs the periodic probe loop and serves cached ProviderStatus
// results to the boundary API, C10 of the system.
type Monitor struct {
	logger    *zap.Logger
	providers []Provider

	mu    sync.RWMutex
	cache map[string]types.ProviderStatus

	probeLatency *prometheus.HistogramVec
	probeResult  *prometheus.CounterVec
}

// New constructs a Monitor over the given providers.
func New(providers []Provider, logger *zap.Logger) *Monitor {
	m := &Monitor{
		logger:    logger.Named("apistatus"),
		providers: providers,
		cache:     make(map[string]types.ProviderStatus, len(providers)),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "walletrader_provider_probe_latency_seconds",
			Help:    "Latency of external provider health probes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		probeResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletrader_provider_probe_total",
			Help: "Count of external provider health probes by result.",
		}, []string{"provider", "status"}),
	}
	for _, p := range providers {
		m.cache[p.Name] = types.ProviderStatus{Provider: p.Name, Status: statusUnknown, Tier: p.Tier}
	}
	return m
}

// Collectors returns the Prometheus collectors the caller should register.
func (m *Monitor) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.probeLatency, m.probeResult}
}

// ProbeAll probes every registered provider once. Callers should not call
// this more than once per minute per the probe budget.
func (m *Monitor) ProbeAll(ctx context.Context) {
	results := make(map[string]types.ProviderStatus, len(m.providers))
	for _, p := range m.providers {
		results[p.Name] = m.probeOne(ctx, p)
	}

	// Second pass: demote a critical failure to a warning when the
	// provider it depends on is currently healthy.
	for name, status := range results {
		if status.Status != statusDown {
			continue
		}
		for _, p := range m.providers {
			if p.Name != name || p.DependsOn == "" {
				continue
			}
			if dep, ok := results[p.DependsOn]; ok && dep.Status == statusHealthy {
				status.Status = statusWarning
				results[name] = status
			}
		}
	}

	m.mu.Lock()
	for name, status := range results {
		m.cache[name] = status
	}
	m.mu.Unlock()
}

func (m *Monitor) probeOne(ctx context.Context, p Provider) types.ProviderStatus {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := p.Probe.Probe(probeCtx)
	latency := time.Since(start)
	m.probeLatency.WithLabelValues(p.Name).Observe(latency.Seconds())

	prev, _ := m.Status(p.Name)
	status := types.ProviderStatus{
		Provider:  p.Name,
		Tier:      p.Tier,
		LatencyMS: latency.Milliseconds(),
		LastOK:    prev.LastOK,
	}

	if err != nil {
		status.Status = statusDown
		m.probeResult.WithLabelValues(p.Name, statusDown).Inc()
		m.logger.Warn("provider probe failed",
			zap.String("provider", p.Name), zap.String("tier", string(p.Tier)), zap.Error(err))
		return status
	}

	status.Status = statusHealthy
	status.LastOK = time.Now()
	m.probeResult.WithLabelValues(p.Name, statusHealthy).Inc()
	return status
}

// Status returns the cached status for a single provider.
func (m *Monitor) Status(name string) (types.ProviderStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.cache[name]
	return s, ok
}

// All returns the cached status for every registered provider.
func (m *Monitor) All() []types.ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ProviderStatus, 0, len(m.cache))
	for _, s := range m.cache {
		out = append(out, s)
	}
	return out
}
