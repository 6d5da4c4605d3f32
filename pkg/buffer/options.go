package buffer

import (
	"github.com/c360/paramsync/metric"
)

// Option configures buffer behavior using the functional options pattern.
type Option[T any] func(*options[T])

// options holds internal configuration for buffer instances.
type options[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]

	// metricsReg is optional - if provided, buffer stats are also exposed
	// as prometheus metrics under the prefix component label
	metricsReg    *metric.Registry
	metricsPrefix string
}

// WithOverflowPolicy sets the overflow behavior for the buffer.
// Defaults to DropOldest if not specified.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *options[T]) {
		o.overflowPolicy = policy
	}
}

// WithMetrics enables prometheus metrics export for buffer statistics.
// A nil registry or empty prefix disables the option.
func WithMetrics[T any](registry *metric.Registry, prefix string) Option[T] {
	return func(o *options[T]) {
		if registry != nil && prefix != "" {
			o.metricsReg = registry
			o.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback invoked with each dropped item.
// The callback runs while the buffer lock is held and must not call
// back into the buffer.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(o *options[T]) {
		o.dropCallback = callback
	}
}

func applyOptions[T any](opts ...Option[T]) *options[T] {
	o := &options[T]{
		overflowPolicy: DropOldest,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
