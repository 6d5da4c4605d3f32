package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "test",
		Name:      name,
	})
}

func TestRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()

	counter := newTestCounter("ops_total")
	require.NoError(t, r.RegisterCounter("comp", "ops", counter))

	assert.True(t, r.Unregister("comp", "ops"))
	assert.False(t, r.Unregister("comp", "ops"), "second unregister finds nothing")
}

func TestRegisterDuplicateKeyFails(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterCounter("comp", "ops", newTestCounter("a_total")))
	err := r.RegisterCounter("comp", "ops", newTestCounter("b_total"))
	assert.Error(t, err)
}

func TestRegisterPrometheusConflictFails(t *testing.T) {
	r := NewRegistry()

	// Same metric name under different registry keys still collides in
	// prometheus itself.
	require.NoError(t, r.RegisterCounter("comp_a", "ops", newTestCounter("dup_total")))
	err := r.RegisterCounter("comp_b", "ops", newTestCounter("dup_total"))
	assert.Error(t, err)
}

func TestRegisterGaugeAndHistogram(t *testing.T) {
	r := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: "test", Name: "level",
	})
	require.NoError(t, r.RegisterGauge("comp", "level", gauge))

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace, Subsystem: "test", Name: "latency_seconds",
	})
	require.NoError(t, r.RegisterHistogram("comp", "latency", hist))
}

func TestReregisterAfterUnregister(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterCounter("comp", "ops", newTestCounter("cycle_total")))
	require.True(t, r.Unregister("comp", "ops"))
	assert.NoError(t, r.RegisterCounter("comp", "ops", newTestCounter("cycle_total")))
}
