// Package input defines the contract between control-surface drivers and
// the reconciliation controller. Concrete drivers live in subpackages:
// udp listens for raw control-change datagrams, websocket accepts JSON
// events from browser surfaces.
package input

import (
	"context"
	"time"
)

// Sink receives normalized control events. The reconciliation controller
// implements it; drivers call Ingest from their read loops, so
// implementations must be safe for concurrent use.
type Sink interface {
	Ingest(control uint8, value float64)
}

// Source is one control-surface driver. Start binds the transport and
// spawns the read loop; it does not block. Stop shuts the loop down,
// waiting up to timeout for in-flight work.
type Source interface {
	Name() string
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
