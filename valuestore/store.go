// Package valuestore holds the latest normalized value per control
// identifier for one parameter type.
//
// Ingestion and consumption run on different goroutines: the input driver
// calls Ingest as events arrive, while the sync engine reads via Get once
// per update cycle. Events land in a circular hand-off buffer and Drain
// folds them, latest wins, into the value map at the top of each cycle, so
// a single sync pass always sees a consistent snapshot.
package valuestore

import (
	"log/slog"
	"sync"

	"github.com/c360/paramsync/mapping"
	"github.com/c360/paramsync/metric"
	"github.com/c360/paramsync/pkg/buffer"
)

// Event is one raw control change: a channel identifier and the control's
// normalized position in [0, 1].
type Event struct {
	Control uint8
	Value   float64
}

// pendingCapacity bounds the ingest hand-off buffer. Control surfaces emit
// at most a few hundred events between cycles; older events for the same
// control are superseded anyway, so DropOldest is the right overflow policy.
const pendingCapacity = 1024

// Deps holds construction dependencies for a Store.
type Deps struct {
	Table           *mapping.Table   // required
	MetricsRegistry *metric.Registry // optional
	MetricsPrefix   string           // component label for metrics, e.g. "values_gamesettings"
	Logger          *slog.Logger     // optional, defaults to slog.Default
}

// Store maps control identifiers to their latest normalized value.
type Store struct {
	mu      sync.RWMutex
	values  map[uint8]float64
	touched map[uint8]bool
	table   *mapping.Table
	pending buffer.Buffer[Event]
	logger  *slog.Logger
	metrics *storeMetrics
}

// New creates a value store over a mapping table. Entries for every live
// mapping are created eagerly with value 0.0, so Get never needs a
// sentinel. Returns nil if Deps.Table is nil.
func New(deps Deps) *Store {
	if deps.Table == nil {
		return nil
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "valuestore")
	}

	var metrics *storeMetrics
	var bufferOpts []buffer.Option[Event]
	bufferOpts = append(bufferOpts, buffer.WithOverflowPolicy[Event](buffer.DropOldest))
	if deps.MetricsRegistry != nil && deps.MetricsPrefix != "" {
		metrics = newStoreMetrics(deps.MetricsRegistry, deps.MetricsPrefix)
		bufferOpts = append(bufferOpts, buffer.WithMetrics[Event](deps.MetricsRegistry, deps.MetricsPrefix))
	}

	pending, err := buffer.NewCircularBuffer(pendingCapacity, bufferOpts...)
	if err != nil {
		logger.Error("Failed to create ingest buffer", "error", err)
		return nil
	}

	s := &Store{
		values:  make(map[uint8]float64),
		touched: make(map[uint8]bool),
		table:   deps.Table,
		pending: pending,
		logger:  logger,
		metrics: metrics,
	}

	for _, c := range deps.Table.Controls() {
		s.values[c] = 0.0
	}

	return s
}

// Ingest records a raw control event. Values outside [0, 1] are clamped;
// a control at rest reports 0.0 and at full throw 1.0, anything else is
// driver noise. This is the sole mutation path and runs at event rate, so
// it stays O(1) and allocation-free after warm-up.
func (s *Store) Ingest(control uint8, raw float64) {
	if raw < 0.0 {
		raw = 0.0
	} else if raw > 1.0 {
		raw = 1.0
	}

	_ = s.pending.Write(Event{Control: control, Value: raw})
	if s.metrics != nil {
		s.metrics.eventsIngested.Inc()
	}
}

// Drain folds all pending events into the value map, latest value wins per
// control. Called once at the top of each update cycle by the controller.
// Returns the number of events applied.
func (s *Store) Drain() int {
	applied := 0

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		batch := s.pending.ReadBatch(64)
		if len(batch) == 0 {
			break
		}
		for _, ev := range batch {
			s.values[ev.Control] = ev.Value
			s.touched[ev.Control] = true
			applied++
		}
	}

	if applied > 0 && s.metrics != nil {
		s.metrics.eventsApplied.Add(float64(applied))
	}

	return applied
}

// Get returns the latest normalized value for a control, or 0.0 if the
// control has never been seen.
func (s *Store) Get(control uint8) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[control]
}

// Touched reports whether the control has received at least one real
// event since startup. Eagerly created entries start untouched, which
// lets the sync engine leave seeded fields alone until the operator
// actually moves the control.
func (s *Store) Touched(control uint8) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.touched[control]
}

// GetScaled returns the control's value scaled through its mapping.
// The second return is false when no live mapping exists for the control.
func (s *Store) GetScaled(control uint8) (float64, bool) {
	m, ok := s.table.Lookup(control)
	if !ok {
		return 0, false
	}
	return m.Scale(s.Get(control)), true
}

// Register adds a mapping to the table and, for live mappings, eagerly
// creates its value entry at 0.0. Re-registering a control id replaces the
// prior binding; this is logged rather than rejected because a reused
// control id usually means a configuration bug worth surfacing.
func (s *Store) Register(m mapping.Mapping) error {
	replaced, err := s.table.Add(m)
	if err != nil {
		return err
	}
	if replaced {
		s.logger.Warn("Mapping replaced for control; reused control id?",
			"control", *m.Control,
			"field", m.Field)
	}

	if m.Live() {
		s.mu.Lock()
		if _, exists := s.values[*m.Control]; !exists {
			s.values[*m.Control] = 0.0
		}
		s.mu.Unlock()
	}

	return nil
}

// Table returns the store's mapping table.
func (s *Store) Table() *mapping.Table {
	return s.table
}

// Close releases the ingest buffer.
func (s *Store) Close() error {
	return s.pending.Close()
}
