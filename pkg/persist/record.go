// Package persist converts a feature history to and from its saved
// layout. JSON is the canonical encoding; YAML is accepted for projects
// edited by hand.
//
// A Record holds sketches and features by stable identifier. Restore
// replays the public history operations, so a saved project that breaks
// an invariant is rejected on load rather than trusted.
package persist

import (
	"fmt"

	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/sketch"
)

// Version is the layout written by this package.
//
//	1: no rollback field (everything active), no construction flags
//	2: rollback index, construction flags, sketch attachments
const Version = 2

// Record is one saved project.
type Record struct {
	Version int    `json:"version" yaml:"version"`
	Kernel  string `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	// Rollback is nil in version 1 layouts.
	Rollback *int            `json:"rollback,omitempty" yaml:"rollback,omitempty"`
	Sketches []SketchRecord  `json:"sketches" yaml:"sketches"`
	Features []FeatureRecord `json:"features" yaml:"features"`
}

// SketchRecord is a saved sketch.
type SketchRecord struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Plane       geom.Plane         `json:"plane" yaml:"plane"`
	Attachment  *sketch.Attachment `json:"attachment,omitempty" yaml:"attachment,omitempty"`
	Policy      string             `json:"policy,omitempty" yaml:"policy,omitempty"`
	Entities    []EntityRecord     `json:"entities" yaml:"entities"`
	Constraints []ConstraintRecord `json:"constraints" yaml:"constraints"`
}

// EntityRecord is a saved sketch entity.
type EntityRecord struct {
	ID           string    `json:"id" yaml:"id"`
	Kind         string    `json:"kind" yaml:"kind"`
	Construction bool      `json:"construction,omitempty" yaml:"construction,omitempty"`
	Params       []float64 `json:"params" yaml:"params,flow"`
}

// ConstraintRecord is a saved constraint.
type ConstraintRecord struct {
	ID     string      `json:"id" yaml:"id"`
	Kind   string      `json:"kind" yaml:"kind"`
	Refs   []RefRecord `json:"refs" yaml:"refs"`
	Target *float64    `json:"target,omitempty" yaml:"target,omitempty"`
}

// RefRecord is a saved entity reference. Pos is empty for the whole
// entity.
type RefRecord struct {
	Entity string `json:"entity" yaml:"entity"`
	Pos    string `json:"pos,omitempty" yaml:"pos,omitempty"`
}

// FeatureRecord is a saved feature. Only the fields of its kind are set.
type FeatureRecord struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`
	// Suppressed is absent for enabled features.
	Suppressed bool `json:"suppressed,omitempty" yaml:"suppressed,omitempty"`

	// extrude, revolve
	Sketch    string     `json:"sketch,omitempty" yaml:"sketch,omitempty"`
	Distance  float64    `json:"distance,omitempty" yaml:"distance,omitempty"`
	Direction string     `json:"direction,omitempty" yaml:"direction,omitempty"`
	Axis      *geom.Axis `json:"axis,omitempty" yaml:"axis,omitempty"`
	Angle     float64    `json:"angle,omitempty" yaml:"angle,omitempty"`
	// Op is the body op of a sweep or the boolean op of a boolean.
	Op     string `json:"op,omitempty" yaml:"op,omitempty"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// boolean
	Operands []string `json:"operands,omitempty" yaml:"operands,omitempty,flow"`

	// fillet, chamfer
	Input string   `json:"input,omitempty" yaml:"input,omitempty"`
	Size  float64  `json:"size,omitempty" yaml:"size,omitempty"`
	Edges []string `json:"edges,omitempty" yaml:"edges,omitempty,flow"`
}

// Capture records the current state of h.
func Capture(h *history.History) *Record {
	rollback := h.Rollback()
	rec := &Record{
		Version:  Version,
		Kernel:   h.Kernel().Name(),
		Rollback: &rollback,
		Sketches: []SketchRecord{},
		Features: []FeatureRecord{},
	}
	for _, s := range h.Sketches() {
		rec.Sketches = append(rec.Sketches, captureSketch(s))
	}
	for _, f := range h.Features() {
		rec.Features = append(rec.Features, captureFeature(f))
	}
	return rec
}

func captureSketch(s *sketch.Sketch) SketchRecord {
	r := SketchRecord{
		ID:          string(s.ID),
		Name:        s.Name,
		Plane:       s.Plane,
		Policy:      s.Policy().String(),
		Entities:    []EntityRecord{},
		Constraints: []ConstraintRecord{},
	}
	if s.Attachment != nil {
		a := *s.Attachment
		r.Attachment = &a
	}
	for _, e := range s.Entities() {
		r.Entities = append(r.Entities, EntityRecord{
			ID:           string(e.ID),
			Kind:         e.Kind.String(),
			Construction: e.Construction,
			Params:       e.Params,
		})
	}
	for _, c := range s.Constraints() {
		cr := ConstraintRecord{ID: string(c.ID), Kind: c.Kind.String(), Target: c.Target}
		for _, ref := range c.Refs {
			rr := RefRecord{Entity: string(ref.Entity)}
			if ref.Pos != sketch.PosWhole {
				rr.Pos = ref.Pos.String()
			}
			cr.Refs = append(cr.Refs, rr)
		}
		r.Constraints = append(r.Constraints, cr)
	}
	return r
}

func captureFeature(f *history.Feature) FeatureRecord {
	r := FeatureRecord{ID: string(f.ID), Name: f.Name, Kind: f.Kind().String(), Suppressed: f.Suppressed()}
	switch p := f.Params().(type) {
	case *history.ExtrudeParams:
		r.Sketch = string(p.Sketch)
		r.Distance = p.Distance
		r.Direction = p.Direction.String()
		r.Op = p.Op.String()
		r.Target = string(p.Target)
	case *history.RevolveParams:
		r.Sketch = string(p.Sketch)
		axis := p.Axis
		r.Axis = &axis
		r.Angle = p.Angle
		r.Op = p.Op.String()
		r.Target = string(p.Target)
	case *history.BooleanParams:
		r.Op = p.Op.String()
		for _, id := range p.Operands {
			r.Operands = append(r.Operands, string(id))
		}
	case *history.BlendParams:
		r.Input = string(p.Input)
		r.Size = p.Size
		r.Edges = append([]string(nil), p.Edges...)
	default:
		panic(fmt.Sprintf("persist: unknown params %T", p))
	}
	return r
}

// Restore rebuilds a history from rec on kernel k. Features are added in
// saved order with their suppression, then the rollback index is applied;
// nothing is rebuilt.
func Restore(rec *Record, k kernel.Kernel, opts ...history.Option) (*history.History, error) {
	if err := checkVersion(rec.Version); err != nil {
		return nil, err
	}
	h := history.New(k, opts...)

	for i := range rec.Sketches {
		s, err := restoreSketch(rec.Version, &rec.Sketches[i], h)
		if err != nil {
			return nil, fmt.Errorf("sketch %q: %w", rec.Sketches[i].ID, err)
		}
		if err := h.AddSketch(s); err != nil {
			return nil, err
		}
	}

	for i := range rec.Features {
		fr := &rec.Features[i]
		params, err := restoreParams(fr)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", fr.ID, err)
		}
		if fr.ID == "" {
			return nil, fmt.Errorf("feature %d has no identifier", i)
		}
		id, err := h.AddFeatureWithID(history.FeatureID(fr.ID), history.Spec{Name: fr.Name, Params: params})
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", fr.ID, err)
		}
		if err := h.SetSuppressed(id, fr.Suppressed); err != nil {
			return nil, err
		}
	}

	rollback := h.Len()
	if rec.Rollback != nil {
		rollback = *rec.Rollback
	}
	if err := h.SetRollback(rollback); err != nil {
		return nil, err
	}
	return h, nil
}

func restoreSketch(version int, r *SketchRecord, h *history.History) (*sketch.Sketch, error) {
	if err := r.Plane.Validate(1e-6); err != nil {
		return nil, err
	}
	policy, err := sketch.ParseRemovalPolicy(r.Policy)
	if err != nil {
		return nil, err
	}
	opts := []sketch.Option{
		sketch.WithName(r.Name),
		sketch.WithPolicy(policy),
		sketch.WithIDs(h.IDs()),
	}
	if r.Attachment != nil {
		opts = append(opts, sketch.WithAttachment(*r.Attachment))
	}
	s := sketch.New(sketch.SketchID(r.ID), r.Plane, opts...)

	for _, er := range r.Entities {
		kind, err := sketch.ParseEntityKind(er.Kind)
		if err != nil {
			return nil, err
		}
		e := sketch.Entity{ID: sketch.EntityID(er.ID), Kind: kind, Params: er.Params}
		if version >= 2 {
			e.Construction = er.Construction
		}
		if err := s.RestoreEntity(e); err != nil {
			return nil, err
		}
	}

	for _, cr := range r.Constraints {
		kind, err := sketch.ParseConstraintKind(cr.Kind)
		if err != nil {
			return nil, err
		}
		c := sketch.Constraint{ID: sketch.ConstraintID(cr.ID), Kind: kind, Target: cr.Target}
		for _, rr := range cr.Refs {
			pos := sketch.PosWhole
			if rr.Pos != "" {
				if pos, err = sketch.ParsePointPos(rr.Pos); err != nil {
					return nil, err
				}
			}
			c.Refs = append(c.Refs, sketch.Ref{Entity: sketch.EntityID(rr.Entity), Pos: pos})
		}
		if err := s.RestoreConstraint(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func restoreParams(r *FeatureRecord) (history.Params, error) {
	kind, err := history.ParseKind(r.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case history.KindExtrude:
		dir, err := history.ParseDirection(r.Direction)
		if err != nil {
			return nil, err
		}
		op, err := history.ParseBodyOp(r.Op)
		if err != nil {
			return nil, err
		}
		return &history.ExtrudeParams{
			Sketch:    sketch.SketchID(r.Sketch),
			Distance:  r.Distance,
			Direction: dir,
			Op:        op,
			Target:    history.FeatureID(r.Target),
		}, nil

	case history.KindRevolve:
		op, err := history.ParseBodyOp(r.Op)
		if err != nil {
			return nil, err
		}
		p := &history.RevolveParams{
			Sketch: sketch.SketchID(r.Sketch),
			Angle:  r.Angle,
			Op:     op,
			Target: history.FeatureID(r.Target),
		}
		if r.Axis != nil {
			p.Axis = *r.Axis
		}
		return p, nil

	case history.KindBoolean:
		op, err := kernel.ParseBooleanOp(r.Op)
		if err != nil {
			return nil, err
		}
		p := &history.BooleanParams{Op: op}
		for _, id := range r.Operands {
			p.Operands = append(p.Operands, history.FeatureID(id))
		}
		return p, nil

	case history.KindFillet, history.KindChamfer:
		return &history.BlendParams{
			Chamfer: kind == history.KindChamfer,
			Input:   history.FeatureID(r.Input),
			Size:    r.Size,
			Edges:   append([]string(nil), r.Edges...),
		}, nil
	}
	return nil, fmt.Errorf("unknown feature kind %q", r.Kind)
}
