package document

import (
	"context"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/sketch"
	"github.com/chazu/kerf/pkg/solver"
)

// Command is one mutation of a document. Commands carry their inputs as
// exported fields and receive their results in the same struct once
// applied.
type Command interface {
	// Name identifies the command in logs.
	Name() string
	apply(ctx context.Context, d *Document) error
}

// CreateSketch adds an empty sketch on a fixed plane.
type CreateSketch struct {
	SketchName string
	Plane      geom.Plane

	ID sketch.SketchID
}

func (c *CreateSketch) Name() string { return "create-sketch" }

func (c *CreateSketch) apply(_ context.Context, d *Document) error {
	c.ID = d.h.CreateSketch(c.SketchName, c.Plane)
	return nil
}

// CreateSketchOnFace adds an empty sketch attached to a feature face.
type CreateSketchOnFace struct {
	SketchName string
	Feature    history.FeatureID
	Role       string

	ID sketch.SketchID
}

func (c *CreateSketchOnFace) Name() string { return "create-sketch-on-face" }

func (c *CreateSketchOnFace) apply(_ context.Context, d *Document) error {
	id, err := d.h.CreateSketchOnFace(c.SketchName, c.Feature, c.Role)
	c.ID = id
	return err
}

// AddEntity adds geometry to a sketch.
type AddEntity struct {
	Sketch sketch.SketchID
	Entity sketch.Entity

	ID sketch.EntityID
}

func (c *AddEntity) Name() string { return "add-entity" }

func (c *AddEntity) apply(_ context.Context, d *Document) error {
	s, err := d.h.Sketch(c.Sketch)
	if err != nil {
		return err
	}
	if _, err := sketch.NewEntity(c.Entity.Kind, c.Entity.Params); err != nil {
		return err
	}
	c.ID = s.AddEntity(c.Entity)
	return nil
}

// AddRectangle adds four lines forming an axis-aligned rectangle, held
// closed and square by constraints.
type AddRectangle struct {
	Sketch         sketch.SketchID
	X0, Y0, X1, Y1 float64

	// Lines run bottom, right, top, left.
	Lines [4]sketch.EntityID
}

func (c *AddRectangle) Name() string { return "add-rectangle" }

func (c *AddRectangle) apply(_ context.Context, d *Document) error {
	s, err := d.h.Sketch(c.Sketch)
	if err != nil {
		return err
	}
	c.Lines, err = s.AddRectangle(c.X0, c.Y0, c.X1, c.Y1)
	return err
}

// RemoveEntity removes geometry under the sketch's removal policy.
type RemoveEntity struct {
	Sketch sketch.SketchID
	Entity sketch.EntityID

	// Removed lists the constraints a cascade removed with the entity.
	Removed []sketch.ConstraintID
}

func (c *RemoveEntity) Name() string { return "remove-entity" }

func (c *RemoveEntity) apply(_ context.Context, d *Document) error {
	s, err := d.h.Sketch(c.Sketch)
	if err != nil {
		return err
	}
	c.Removed, err = s.RemoveEntity(c.Entity)
	return err
}

// SetParams moves an entity by replacing its parameter vector.
type SetParams struct {
	Sketch sketch.SketchID
	Entity sketch.EntityID
	Params []float64
}

func (c *SetParams) Name() string { return "set-params" }

func (c *SetParams) apply(_ context.Context, d *Document) error {
	s, err := d.h.Sketch(c.Sketch)
	if err != nil {
		return err
	}
	return s.SetParams(c.Entity, c.Params)
}

// AddConstraint relates sketch geometry. Target is required for
// dimensional kinds only.
type AddConstraint struct {
	Sketch sketch.SketchID
	Kind   sketch.ConstraintKind
	Refs   []sketch.Ref
	Target *float64

	ID sketch.ConstraintID
}

func (c *AddConstraint) Name() string { return "add-constraint" }

func (c *AddConstraint) apply(_ context.Context, d *Document) error {
	s, err := d.h.Sketch(c.Sketch)
	if err != nil {
		return err
	}
	var target []float64
	if c.Target != nil {
		target = append(target, *c.Target)
	}
	c.ID, err = s.AddConstraint(c.Kind, c.Refs, target...)
	return err
}

// RemoveConstraint drops a constraint.
type RemoveConstraint struct {
	Sketch     sketch.SketchID
	Constraint sketch.ConstraintID
}

func (c *RemoveConstraint) Name() string { return "remove-constraint" }

func (c *RemoveConstraint) apply(_ context.Context, d *Document) error {
	s, err := d.h.Sketch(c.Sketch)
	if err != nil {
		return err
	}
	return s.RemoveConstraint(c.Constraint)
}

// Solve solves one sketch with the document's solver settings.
type Solve struct {
	Sketch sketch.SketchID

	Result solver.Result
}

func (c *Solve) Name() string { return "solve" }

func (c *Solve) apply(_ context.Context, d *Document) error {
	s, err := d.h.Sketch(c.Sketch)
	if err != nil {
		return err
	}
	c.Result, err = solver.Solve(s, d.h.Config().Solver)
	return err
}

// AddFeature inserts a feature at the rollback index.
type AddFeature struct {
	Spec history.Spec

	ID history.FeatureID
}

func (c *AddFeature) Name() string { return "add-feature" }

func (c *AddFeature) apply(_ context.Context, d *Document) error {
	id, err := d.h.AddFeature(c.Spec)
	c.ID = id
	return err
}

// EditFeature replaces a feature's parameters.
type EditFeature struct {
	ID     history.FeatureID
	Params history.Params
}

func (c *EditFeature) Name() string { return "edit-feature" }

func (c *EditFeature) apply(_ context.Context, d *Document) error {
	return d.h.EditFeature(c.ID, c.Params)
}

// DeleteFeature removes an unreferenced feature.
type DeleteFeature struct {
	ID history.FeatureID
}

func (c *DeleteFeature) Name() string { return "delete-feature" }

func (c *DeleteFeature) apply(_ context.Context, d *Document) error {
	return d.h.DeleteFeature(c.ID)
}

// SetRollback moves the rollback index.
type SetRollback struct {
	Index int
}

func (c *SetRollback) Name() string { return "set-rollback" }

func (c *SetRollback) apply(_ context.Context, d *Document) error {
	return d.h.SetRollback(c.Index)
}

// SetSuppressed switches one feature off or back on.
type SetSuppressed struct {
	ID         history.FeatureID
	Suppressed bool
}

func (c *SetSuppressed) Name() string { return "set-suppressed" }

func (c *SetSuppressed) apply(_ context.Context, d *Document) error {
	return d.h.SetSuppressed(c.ID, c.Suppressed)
}

// SetKernel switches the geometry backend.
type SetKernel struct {
	Kernel kernel.Kernel
}

func (c *SetKernel) Name() string { return "set-kernel" }

func (c *SetKernel) apply(_ context.Context, d *Document) error {
	if c.Kernel == nil {
		return caderr.New(caderr.InvalidReference, "SetKernel", "no kernel given")
	}
	d.h.SetKernel(c.Kernel)
	return nil
}

// Rebuild brings the active features up to date.
type Rebuild struct {
	Report *history.Report
}

func (c *Rebuild) Name() string { return "rebuild" }

func (c *Rebuild) apply(ctx context.Context, d *Document) error {
	rep, err := d.h.Rebuild(ctx)
	c.Report = rep
	d.lastReport = rep
	return err
}
