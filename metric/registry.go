package metric

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/convstreams/errors"
)

// Registrar is the interface subsystems use to register their metrics
type Registrar interface {
	Register(subsystem, name string, collector prometheus.Collector) error
	Unregister(subsystem, name string) bool
}

// Registry manages the registration and lifecycle of metrics
type Registry struct {
	prometheusRegistry *prometheus.Registry
	registered         map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewRegistry creates a new metrics registry with Go runtime and process
// collectors pre-registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Registry{
		prometheusRegistry: reg,
		registered:         make(map[string]prometheus.Collector),
	}
}

func metricKey(subsystem, name string) string {
	return subsystem + "/" + name
}

// Register registers a collector under a subsystem-scoped name. Registering
// the same name twice is a configuration error.
func (r *Registry) Register(subsystem, name string, collector prometheus.Collector) error {
	if subsystem == "" || name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "subsystem and name required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(subsystem, name)
	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %q: %w", key, errors.ErrDuplicateRegistration),
			"Registry", "Register", "duplicate metric")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		return errors.WrapInvalid(err, "Registry", "Register", "prometheus registration")
	}

	r.registered[key] = collector
	return nil
}

// Unregister removes a previously registered collector. Returns false when
// the metric was never registered.
func (r *Registry) Unregister(subsystem, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(subsystem, name)
	collector, exists := r.registered[key]
	if !exists {
		return false
	}

	delete(r.registered, key)
	return r.prometheusRegistry.Unregister(collector)
}

// Handler returns an http.Handler serving the metrics in Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying prometheus gatherer, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prometheusRegistry
}
