package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/convstreams/errors"
)

func TestRegisterAndGather(t *testing.T) {
	reg := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_committed_total",
		Help: "Total committed analysis tasks",
	})
	require.NoError(t, reg.Register("dispatch", "dispatch_committed_total", counter))
	counter.Inc()

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "dispatch_committed_total" {
			found = true
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "x_total", Help: "x"})
	require.NoError(t, reg.Register("s", "x_total", c))

	err := reg.Register("s", "x_total", prometheus.NewCounter(prometheus.CounterOpts{Name: "x_total", Help: "x"}))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "y_total", Help: "y"})
	assert.Error(t, reg.Register("", "y_total", c))
	assert.Error(t, reg.Register("s", "", c))
}

func TestUnregister(t *testing.T) {
	reg := NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "z_total", Help: "z"})
	require.NoError(t, reg.Register("s", "z_total", c))

	assert.True(t, reg.Unregister("s", "z_total"))
	assert.False(t, reg.Unregister("s", "z_total"))

	// name is free again after unregister
	assert.NoError(t, reg.Register("s", "z_total", prometheus.NewCounter(prometheus.CounterOpts{Name: "z_total", Help: "z"})))
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := NewRegistry()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
