package valuestore

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/paramsync/metric"
)

// storeMetrics holds prometheus metrics for one value store.
type storeMetrics struct {
	eventsIngested prometheus.Counter
	eventsApplied  prometheus.Counter
}

func newStoreMetrics(registry *metric.Registry, prefix string) *storeMetrics {
	if registry == nil {
		return nil
	}

	labels := prometheus.Labels{"component": prefix}
	m := &storeMetrics{
		eventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "values",
			Name:        "events_ingested_total",
			ConstLabels: labels,
			Help:        "Total control events accepted by the store",
		}),
		eventsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "values",
			Name:        "events_applied_total",
			ConstLabels: labels,
			Help:        "Total control events folded into the value map",
		}),
	}

	// Registration failures mean a duplicate prefix; the store still works
	// without metrics in that case.
	if err := registry.RegisterCounter(prefix, "events_ingested", m.eventsIngested); err != nil {
		return nil
	}
	if err := registry.RegisterCounter(prefix, "events_applied", m.eventsApplied); err != nil {
		return nil
	}

	return m
}
