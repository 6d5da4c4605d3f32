// Package registry holds the registered parameter types and reconciles
// them against control input and persistence.
//
// Lifecycle: construct, Register each type during bootstrap, Seed once to
// restore persisted state, then drive Update on a cadence (or hand the
// loop to Run). Each update cycle drains buffered control events, syncs
// every registered type, and persists any type whose document changed,
// whether the change came from control input or from direct edits to the
// live struct.
package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/paramsync/errors"
	"github.com/c360/paramsync/input"
	"github.com/c360/paramsync/mapping"
	"github.com/c360/paramsync/metric"
	"github.com/c360/paramsync/param"
	"github.com/c360/paramsync/persist"
	"github.com/c360/paramsync/valuestore"
)

// Deps holds construction dependencies for a Controller.
type Deps struct {
	Docs            persist.Store // required
	MetricsRegistry *metric.Registry
	Logger          *slog.Logger
}

// registration is one parameter type under management.
type registration struct {
	params param.Params
	store  *valuestore.Store

	// lastDoc is the document as of the last seed or successful save.
	// Comparing against it detects both control-driven changes and
	// direct edits to the live struct, and leaving it stale on a failed
	// save makes the next cycle retry naturally.
	lastDoc persist.Document
}

// Controller reconciles registered parameter types with control input
// and the document store.
type Controller struct {
	mu      sync.RWMutex
	docs    persist.Store
	types   map[string]*registration
	ordered []*registration
	seeded  bool
	logger  *slog.Logger
	metrics *controllerMetrics
	metricsRegistry *metric.Registry
}

// New creates a controller over a document store.
func New(deps Deps) (*Controller, error) {
	if deps.Docs == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: nil document store", errors.ErrInvalidConfig),
			"Controller", "New", "validate deps")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "controller")
	}
	return &Controller{
		docs:            deps.Docs,
		types:           make(map[string]*registration),
		logger:          logger,
		metrics:         newControllerMetrics(deps.MetricsRegistry),
		metricsRegistry: deps.MetricsRegistry,
	}, nil
}

// Register adds a parameter type with its mapping table. Every type must
// be registered before Seed; the type name is the persistence key and
// must be unique.
func (c *Controller) Register(p param.Params, table *mapping.Table) error {
	if p == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nil params", errors.ErrInvalidConfig),
			"Controller", "Register", "validate params")
	}
	typeName := p.TypeName()
	if typeName == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: empty type name", errors.ErrInvalidConfig),
			"Controller", "Register", "validate type name")
	}
	if table == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nil mapping table for type %s", errors.ErrInvalidMapping, typeName),
			"Controller", "Register", "validate table")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seeded {
		return errors.WrapInvalid(
			fmt.Errorf("%w: type %s registered after seeding", errors.ErrAlreadyStarted, typeName),
			"Controller", "Register", "check lifecycle")
	}
	if _, exists := c.types[typeName]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrDuplicateType, typeName),
			"Controller", "Register", "check uniqueness")
	}

	store := valuestore.New(valuestore.Deps{
		Table:           table,
		MetricsRegistry: c.metricsRegistry,
		MetricsPrefix:   "values_" + typeName,
		Logger:          c.logger,
	})
	if store == nil {
		return errors.WrapFatal(
			fmt.Errorf("value store construction failed for type %s", typeName),
			"Controller", "Register", "build value store")
	}

	reg := &registration{params: p, store: store}
	c.types[typeName] = reg
	c.ordered = append(c.ordered, reg)
	if c.metrics != nil {
		c.metrics.typesActive.Set(float64(len(c.ordered)))
	}

	c.logger.Info("Parameter type registered",
		"type", typeName,
		"mappings", table.Len(),
		"controls", len(table.Controls()))
	return nil
}

// Ingest implements input.Sink, fanning a control event out to every
// registered type whose table maps that control. Safe for concurrent use.
func (c *Controller) Ingest(control uint8, value float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, reg := range c.ordered {
		if _, ok := reg.store.Table().Lookup(control); ok {
			reg.store.Ingest(control, value)
		}
	}
}

// Seed restores every registered type from the document store. Runs
// exactly once; later calls are no-ops. Types with no stored document
// keep their defaults. A corrupt store is a hard error and leaves the
// controller unseeded.
func (c *Controller) Seed(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seeded {
		return nil
	}

	file, err := c.docs.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "Controller", "Seed", "load documents")
	}

	for _, reg := range c.ordered {
		name := reg.params.TypeName()
		if doc, ok := file.Document(name); ok {
			reg.params.FromDocument(doc)
			c.logger.Info("Parameter type seeded", "type", name, "fields", len(doc))
		} else {
			c.logger.Debug("No stored document, keeping defaults", "type", name)
		}
		reg.lastDoc = reg.params.ToDocument()
	}

	c.seeded = true
	return nil
}

// Update runs one reconciliation cycle: drain buffered events, sync every
// type, and persist each type whose document moved since the last save.
// Save failures are logged and joined into the returned error; the cycle
// continues past them so one failing type cannot starve the others.
func (c *Controller) Update(ctx context.Context) error {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, reg := range c.ordered {
		name := reg.params.TypeName()
		drained := reg.store.Drain()
		if drained > 0 && c.metrics != nil {
			c.metrics.eventsDrained.Add(float64(drained))
		}

		param.Sync(reg.params, reg.store)

		// Snapshot comparison rather than the sync engine's change flag:
		// this also catches fields edited directly on the live struct.
		doc := reg.params.ToDocument()
		if doc.Equal(reg.lastDoc) {
			continue
		}
		if err := c.saveLocked(ctx, name, doc); err != nil {
			errs = append(errs, err)
			continue
		}
		reg.lastDoc = doc
	}

	if c.metrics != nil {
		c.metrics.updateCycles.Inc()
		c.metrics.updateLatency.Observe(time.Since(start).Seconds())
	}
	return stderrors.Join(errs...)
}

// saveLocked merges one type's document into the stored file with a
// read-modify-write round trip, preserving sibling types. Callers hold mu.
func (c *Controller) saveLocked(ctx context.Context, typeName string, doc persist.Document) error {
	file, err := c.docs.Load(ctx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.saveErrors.Inc()
		}
		c.logger.Error("Document load before save failed", "type", typeName, "error", err)
		return err
	}
	file.SetDocument(typeName, doc)
	if err := c.docs.Save(ctx, file); err != nil {
		if c.metrics != nil {
			c.metrics.saveErrors.Inc()
		}
		c.logger.Error("Document save failed", "type", typeName, "error", err)
		return err
	}
	if c.metrics != nil {
		c.metrics.savesTotal.Inc()
	}
	c.logger.Debug("Document saved", "type", typeName)
	return nil
}

// Flush persists every registered type unconditionally. Used at shutdown
// so direct struct edits since the last cycle are not lost.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, reg := range c.ordered {
		name := reg.params.TypeName()
		doc := reg.params.ToDocument()
		if err := c.saveLocked(ctx, name, doc); err != nil {
			errs = append(errs, err)
			continue
		}
		reg.lastDoc = doc
	}
	return stderrors.Join(errs...)
}

// ControlInfo describes one mapped field for inspection surfaces.
type ControlInfo struct {
	Type    string
	Field   string
	Control *uint8
	Domain  string
	Value   float64
}

// Controls lists every mapping of every registered type in registration
// order. Value carries the scaled current value for live mappings.
func (c *Controller) Controls() []ControlInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var infos []ControlInfo
	for _, reg := range c.ordered {
		typeName := reg.params.TypeName()
		for _, m := range reg.store.Table().Mappings() {
			info := ControlInfo{
				Type:    typeName,
				Field:   m.Field,
				Control: m.Control,
				Domain:  m.Domain.String(),
			}
			if m.Live() {
				if v, ok := reg.store.GetScaled(*m.Control); ok {
					info.Value = v
				}
			}
			infos = append(infos, info)
		}
	}
	return infos
}

// Close releases per-type resources.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, reg := range c.ordered {
		if err := reg.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Run seeds, starts the given sources, and drives Update on the given
// interval until ctx is canceled, then stops the sources and flushes.
func (c *Controller) Run(ctx context.Context, interval time.Duration, sources ...input.Source) error {
	if interval <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: non-positive update interval %v", errors.ErrInvalidConfig, interval),
			"Controller", "Run", "validate interval")
	}

	if err := c.Seed(ctx); err != nil {
		return err
	}

	// A source that fails to start is logged and skipped rather than
	// aborting the loop: persisted values still load and save without
	// live input.
	var startMu sync.Mutex
	var started []input.Source
	var g errgroup.Group
	for _, src := range sources {
		src := src
		g.Go(func() error {
			if err := src.Start(ctx); err != nil {
				c.logger.Warn("Input source unavailable, continuing without it",
					"source", src.Name(),
					"error", err)
				return nil
			}
			startMu.Lock()
			started = append(started, src)
			startMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if len(sources) > 0 && len(started) == 0 {
		c.logger.Warn("Running persistence-only", "error", errors.ErrNoInputSource)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.stopSources(started)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.Flush(flushCtx); err != nil {
				c.logger.Error("Final flush failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := c.Update(ctx); err != nil {
				c.logger.Warn("Update cycle had errors", "error", err)
			}
		}
	}
}

func (c *Controller) stopSources(sources []input.Source) {
	for _, src := range sources {
		if err := src.Stop(5 * time.Second); err != nil {
			c.logger.Warn("Source stop failed", "source", src.Name(), "error", err)
		}
	}
}
