package registry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/paramsync/metric"
)

type controllerMetrics struct {
	updateCycles  prometheus.Counter
	eventsDrained prometheus.Counter
	savesTotal    prometheus.Counter
	saveErrors    prometheus.Counter
	typesActive   prometheus.Gauge
	updateLatency prometheus.Histogram
}

func newControllerMetrics(registry *metric.Registry) *controllerMetrics {
	if registry == nil {
		return nil
	}

	m := &controllerMetrics{
		updateCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "controller",
			Name:      "update_cycles_total",
			Help:      "Update cycles executed",
		}),
		eventsDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "controller",
			Name:      "events_drained_total",
			Help:      "Control events folded into value stores",
		}),
		savesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "controller",
			Name:      "saves_total",
			Help:      "Successful document saves",
		}),
		saveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "controller",
			Name:      "save_errors_total",
			Help:      "Failed document saves",
		}),
		typesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "controller",
			Name:      "types_active",
			Help:      "Registered parameter types",
		}),
		updateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "controller",
			Name:      "update_duration_seconds",
			Help:      "Duration of one update cycle",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 10, 6),
		}),
	}

	const component = "controller"
	if err := registry.RegisterCounter(component, "update_cycles", m.updateCycles); err != nil {
		return nil
	}
	if err := registry.RegisterCounter(component, "events_drained", m.eventsDrained); err != nil {
		return nil
	}
	if err := registry.RegisterCounter(component, "saves_total", m.savesTotal); err != nil {
		return nil
	}
	if err := registry.RegisterCounter(component, "save_errors", m.saveErrors); err != nil {
		return nil
	}
	if err := registry.RegisterGauge(component, "types_active", m.typesActive); err != nil {
		return nil
	}
	if err := registry.RegisterHistogram(component, "update_latency", m.updateLatency); err != nil {
		return nil
	}
	return m
}
