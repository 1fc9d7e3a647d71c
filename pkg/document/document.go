// Package document is the single owner of a part being modeled. Every
// mutation is a Command applied under an exclusive lock; after each
// command the document publishes an immutable Snapshot that readers on
// other goroutines load without blocking.
//
// The convenience methods (CreateSketch, AddEntity, ...) wrap the
// matching command. For ordered, asynchronous submission from several
// goroutines use a Queue.
package document

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/sketch"
	"github.com/chazu/kerf/pkg/solver"
)

// Document owns a feature history and serializes access to it.
type Document struct {
	mu         sync.Mutex
	h          *history.History
	log        *slog.Logger
	version    uint64
	lastReport *history.Report

	snap atomic.Pointer[Snapshot]
}

type options struct {
	cfg     history.Config
	ids     ident.Generator
	log     *slog.Logger
	history *history.History
}

// Option configures a Document.
type Option func(*options)

// WithLogger sets the document's logger; the history logs through it too.
// The default is history.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithConfig sets the rebuild configuration.
func WithConfig(cfg history.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithIDs sets the identifier generator.
func WithIDs(g ident.Generator) Option {
	return func(o *options) { o.ids = g }
}

// WithHistory adopts an existing history, such as one restored from disk.
// The kernel, configuration and generator options are then ignored.
func WithHistory(h *history.History) Option {
	return func(o *options) { o.history = h }
}

// New creates an empty document building with k.
func New(k kernel.Kernel, opts ...Option) *Document {
	o := options{cfg: history.DefaultConfig(), ids: ident.Default}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = history.Logger()
	}
	h := o.history
	if h == nil {
		h = history.New(k,
			history.WithConfig(o.cfg),
			history.WithIDs(o.ids),
			history.WithLogger(o.log),
		)
	}
	d := &Document{h: h, log: o.log}
	d.publish()
	return d
}

// Do applies cmd under the document lock and publishes a new snapshot. A
// failed command leaves the document as it was.
func (d *Document) Do(ctx context.Context, cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	err := cmd.apply(ctx, d)
	d.version++
	d.publish()

	if err != nil {
		d.log.Debug("command failed", "cmd", cmd.Name(), "version", d.version, "err", err)
	} else {
		d.log.Debug("command applied", "cmd", cmd.Name(), "version", d.version, "elapsed", time.Since(start))
	}
	return err
}

// Read runs fn with the history while holding the document lock. fn must
// not retain the history or mutate it.
func (d *Document) Read(fn func(h *history.History) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.h)
}

// Snapshot returns the state published by the last command.
func (d *Document) Snapshot() *Snapshot {
	return d.snap.Load()
}

// Assembly returns the bodies of the part as of the last rebuild.
func (d *Document) Assembly() []history.Body {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.h.Assembly()
}

// Kernel returns the active backend.
func (d *Document) Kernel() kernel.Kernel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.h.Kernel()
}

// ---------------------------------------------------------------------------
// Command wrappers
// ---------------------------------------------------------------------------

// CreateSketch adds an empty sketch on plane.
func (d *Document) CreateSketch(name string, plane geom.Plane) sketch.SketchID {
	c := &CreateSketch{SketchName: name, Plane: plane}
	_ = d.Do(context.Background(), c)
	return c.ID
}

// CreateSketchOnFace adds an empty sketch attached to a face of feature.
func (d *Document) CreateSketchOnFace(name string, feature history.FeatureID, role string) (sketch.SketchID, error) {
	c := &CreateSketchOnFace{SketchName: name, Feature: feature, Role: role}
	err := d.Do(context.Background(), c)
	return c.ID, err
}

// AddEntity adds geometry to a sketch.
func (d *Document) AddEntity(s sketch.SketchID, e sketch.Entity) (sketch.EntityID, error) {
	c := &AddEntity{Sketch: s, Entity: e}
	err := d.Do(context.Background(), c)
	return c.ID, err
}

// AddRectangle adds a constrained axis-aligned rectangle to a sketch.
func (d *Document) AddRectangle(s sketch.SketchID, x0, y0, x1, y1 float64) ([4]sketch.EntityID, error) {
	c := &AddRectangle{Sketch: s, X0: x0, Y0: y0, X1: x1, Y1: y1}
	err := d.Do(context.Background(), c)
	return c.Lines, err
}

// RemoveEntity removes geometry from a sketch.
func (d *Document) RemoveEntity(s sketch.SketchID, e sketch.EntityID) ([]sketch.ConstraintID, error) {
	c := &RemoveEntity{Sketch: s, Entity: e}
	err := d.Do(context.Background(), c)
	return c.Removed, err
}

// SetParams replaces an entity's parameters.
func (d *Document) SetParams(s sketch.SketchID, e sketch.EntityID, params []float64) error {
	return d.Do(context.Background(), &SetParams{Sketch: s, Entity: e, Params: params})
}

// AddConstraint relates sketch geometry; pass target for dimensional
// kinds only.
func (d *Document) AddConstraint(s sketch.SketchID, kind sketch.ConstraintKind, refs []sketch.Ref, target ...float64) (sketch.ConstraintID, error) {
	if len(target) > 1 {
		return "", caderr.New(caderr.ArityMismatch, "AddConstraint", "%d targets given, want at most 1", len(target))
	}
	c := &AddConstraint{Sketch: s, Kind: kind, Refs: refs}
	if len(target) == 1 {
		c.Target = &target[0]
	}
	err := d.Do(context.Background(), c)
	return c.ID, err
}

// RemoveConstraint drops a constraint.
func (d *Document) RemoveConstraint(s sketch.SketchID, id sketch.ConstraintID) error {
	return d.Do(context.Background(), &RemoveConstraint{Sketch: s, Constraint: id})
}

// Solve solves a sketch.
func (d *Document) Solve(s sketch.SketchID) (solver.Result, error) {
	c := &Solve{Sketch: s}
	err := d.Do(context.Background(), c)
	return c.Result, err
}

// AddFeature inserts a feature at the rollback index.
func (d *Document) AddFeature(spec history.Spec) (history.FeatureID, error) {
	c := &AddFeature{Spec: spec}
	err := d.Do(context.Background(), c)
	return c.ID, err
}

// EditFeature replaces a feature's parameters.
func (d *Document) EditFeature(id history.FeatureID, params history.Params) error {
	return d.Do(context.Background(), &EditFeature{ID: id, Params: params})
}

// DeleteFeature removes an unreferenced feature.
func (d *Document) DeleteFeature(id history.FeatureID) error {
	return d.Do(context.Background(), &DeleteFeature{ID: id})
}

// SetRollback moves the rollback index.
func (d *Document) SetRollback(k int) error {
	return d.Do(context.Background(), &SetRollback{Index: k})
}

// SetSuppressed switches feature id off or back on.
func (d *Document) SetSuppressed(id history.FeatureID, on bool) error {
	return d.Do(context.Background(), &SetSuppressed{ID: id, Suppressed: on})
}

// SetKernel switches backends; the next rebuild rebuilds everything.
func (d *Document) SetKernel(k kernel.Kernel) error {
	return d.Do(context.Background(), &SetKernel{Kernel: k})
}

// Rebuild brings the active features up to date.
func (d *Document) Rebuild(ctx context.Context) (*history.Report, error) {
	c := &Rebuild{}
	err := d.Do(ctx, c)
	return c.Report, err
}
