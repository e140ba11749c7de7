package health

import (
	"sort"
	"sync"
	"time"
)

// Probe reports the current health of one component. Probes must be
// cheap; readiness runs all of them on every request.
type Probe func() Status

// LivenessSnapshot is the /healthz response body.
type LivenessSnapshot struct {
	Status string        `json:"status"`
	Uptime time.Duration `json:"uptime"`
}

// ReadinessSnapshot is the /readyz response body.
type ReadinessSnapshot struct {
	Ready      bool     `json:"ready"`
	Status     string   `json:"status"`
	Components []Status `json:"components,omitempty"`
}

// Monitor aggregates component probes into liveness and readiness
// snapshots. Safe for concurrent use.
type Monitor struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	started time.Time
}

// NewMonitor creates a monitor. Uptime counts from this call.
func NewMonitor() *Monitor {
	return &Monitor{
		probes:  make(map[string]Probe),
		started: time.Now(),
	}
}

// RegisterProbe adds or replaces the probe for a named component.
func (m *Monitor) RegisterProbe(name string, probe Probe) {
	if probe == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = probe
}

// RemoveProbe stops checking a component.
func (m *Monitor) RemoveProbe(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.probes, name)
}

// Liveness reports that the process is up. It never runs probes.
func (m *Monitor) Liveness() LivenessSnapshot {
	return LivenessSnapshot{
		Status: "ok",
		Uptime: time.Since(m.started),
	}
}

// Readiness runs all probes and aggregates with worst-case rules: any
// unhealthy component makes the service not ready, degraded components
// are reported but keep it ready.
func (m *Monitor) Readiness() ReadinessSnapshot {
	m.mu.RLock()
	probes := make(map[string]Probe, len(m.probes))
	for name, probe := range m.probes {
		probes[name] = probe
	}
	m.mu.RUnlock()

	components := make([]Status, 0, len(probes))
	for name, probe := range probes {
		status := probe()
		status.Component = name
		if status.Timestamp.IsZero() {
			status.Timestamp = time.Now()
		}
		components = append(components, status)
	}
	sort.Slice(components, func(i, j int) bool {
		return components[i].Component < components[j].Component
	})

	overall := StateHealthy
	for _, c := range components {
		switch {
		case c.IsUnhealthy():
			overall = StateUnhealthy
		case c.IsDegraded() && overall == StateHealthy:
			overall = StateDegraded
		}
	}

	return ReadinessSnapshot{
		Ready:      overall != StateUnhealthy,
		Status:     overall,
		Components: components,
	}
}
