package sketch

import (
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/ident"
)

// SketchID identifies a sketch.
type SketchID string

// EntityID identifies an entity within a sketch.
type EntityID string

// ConstraintID identifies a constraint within a sketch.
type ConstraintID string

// Short returns a truncated form for log output.
func (id SketchID) Short() string     { return ident.Short(string(id)) }
func (id EntityID) Short() string     { return ident.Short(string(id)) }
func (id ConstraintID) Short() string { return ident.Short(string(id)) }

// EntityKind enumerates the geometric primitives of a sketch.
type EntityKind int

const (
	KindPoint EntityKind = iota
	KindLine
	KindCircle
	KindArc
)

var entityKindNames = map[EntityKind]string{
	KindPoint:  "point",
	KindLine:   "line",
	KindCircle: "circle",
	KindArc:    "arc",
}

func (k EntityKind) String() string {
	if s, ok := entityKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EntityKind(%d)", int(k))
}

// ParseEntityKind converts a name produced by String back to a kind.
func ParseEntityKind(s string) (EntityKind, error) {
	for k, name := range entityKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// ParamCount returns the length of the parameter vector for a kind.
//
//	point:  x, y
//	line:   x1, y1, x2, y2
//	circle: cx, cy, r
//	arc:    cx, cy, r, a0, a1 (counter-clockwise from a0 to a1)
func (k EntityKind) ParamCount() int {
	switch k {
	case KindPoint:
		return 2
	case KindLine:
		return 4
	case KindCircle:
		return 3
	case KindArc:
		return 5
	}
	return 0
}

// Entity is one geometric primitive. Params are in the sketch's local
// frame; construction entities take part in solving but not in profiles.
type Entity struct {
	ID           EntityID   `json:"id"`
	Kind         EntityKind `json:"kind"`
	Construction bool       `json:"construction,omitempty"`
	Params       []float64  `json:"params"`
}

// Point returns a point entity.
func Point(x, y float64) Entity {
	return Entity{Kind: KindPoint, Params: []float64{x, y}}
}

// Line returns a line entity from (x1, y1) to (x2, y2).
func Line(x1, y1, x2, y2 float64) Entity {
	return Entity{Kind: KindLine, Params: []float64{x1, y1, x2, y2}}
}

// Circle returns a circle entity.
func Circle(cx, cy, r float64) Entity {
	return Entity{Kind: KindCircle, Params: []float64{cx, cy, r}}
}

// Arc returns an arc entity sweeping counter-clockwise from angle a0 to
// a1 (radians).
func Arc(cx, cy, r, a0, a1 float64) Entity {
	return Entity{Kind: KindArc, Params: []float64{cx, cy, r, a0, a1}}
}

// AsConstruction returns a copy of e flagged as construction geometry.
func (e Entity) AsConstruction() Entity {
	e.Construction = true
	return e
}

// NewEntity builds an entity from a kind and a raw parameter vector.
func NewEntity(kind EntityKind, params []float64) (Entity, error) {
	want := kind.ParamCount()
	if want == 0 {
		return Entity{}, caderr.New(caderr.ArityMismatch, "NewEntity", "unknown entity kind %v", kind)
	}
	if len(params) != want {
		return Entity{}, caderr.New(caderr.ArityMismatch, "NewEntity",
			"%s takes %d parameters, got %d", kind, want, len(params))
	}
	return Entity{Kind: kind, Params: append([]float64(nil), params...)}, nil
}

func (e Entity) clone() *Entity {
	e.Params = append([]float64(nil), e.Params...)
	return &e
}

// ---------------------------------------------------------------------------
// Point references
// ---------------------------------------------------------------------------

// PointPos selects an entity as a whole or one of its characteristic
// points.
type PointPos int

const (
	PosWhole PointPos = iota
	PosStart
	PosEnd
	PosCenter
)

var pointPosNames = map[PointPos]string{
	PosWhole:  "whole",
	PosStart:  "start",
	PosEnd:    "end",
	PosCenter: "center",
}

func (p PointPos) String() string {
	if s, ok := pointPosNames[p]; ok {
		return s
	}
	return fmt.Sprintf("PointPos(%d)", int(p))
}

// ParsePointPos converts a name produced by String back to a position.
func ParsePointPos(s string) (PointPos, error) {
	for p, name := range pointPosNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown point position %q", s)
}

// Ref names an entity, or one of its points, from a constraint.
type Ref struct {
	Entity EntityID `json:"entity"`
	Pos    PointPos `json:"pos,omitempty"`
}

// On refers to a whole entity.
func On(id EntityID) Ref { return Ref{Entity: id} }

// StartOf refers to the start point of a line or arc.
func StartOf(id EntityID) Ref { return Ref{Entity: id, Pos: PosStart} }

// EndOf refers to the end point of a line or arc.
func EndOf(id EntityID) Ref { return Ref{Entity: id, Pos: PosEnd} }

// CenterOf refers to the center of a circle or arc.
func CenterOf(id EntityID) Ref { return Ref{Entity: id, Pos: PosCenter} }

func (r Ref) String() string {
	if r.Pos == PosWhole {
		return string(r.Entity)
	}
	return string(r.Entity) + "." + r.Pos.String()
}

// isPointRef reports whether pos on an entity of kind k names a point.
func isPointRef(k EntityKind, pos PointPos) bool {
	switch k {
	case KindPoint:
		return pos == PosWhole
	case KindLine:
		return pos == PosStart || pos == PosEnd
	case KindCircle:
		return pos == PosCenter
	case KindArc:
		return pos == PosStart || pos == PosEnd || pos == PosCenter
	}
	return false
}

// PointParams returns the indices of the x and y parameters that store
// the referenced point directly. ok is false for points derived from
// other parameters (arc ends) and for non-point refs.
func PointParams(k EntityKind, pos PointPos) (ix, iy int, ok bool) {
	switch {
	case k == KindPoint && pos == PosWhole:
		return 0, 1, true
	case k == KindLine && pos == PosStart:
		return 0, 1, true
	case k == KindLine && pos == PosEnd:
		return 2, 3, true
	case (k == KindCircle || k == KindArc) && pos == PosCenter:
		return 0, 1, true
	}
	return 0, 0, false
}

// PointOf evaluates the point named by pos on an entity with the given
// kind and parameter vector.
func PointOf(k EntityKind, params []float64, pos PointPos) (geom.Vec2, bool) {
	if ix, iy, ok := PointParams(k, pos); ok {
		return geom.Vec2{X: params[ix], Y: params[iy]}, true
	}
	if k == KindArc && (pos == PosStart || pos == PosEnd) {
		a := params[3]
		if pos == PosEnd {
			a = params[4]
		}
		return geom.Vec2{
			X: params[0] + params[2]*math.Cos(a),
			Y: params[1] + params[2]*math.Sin(a),
		}, true
	}
	return geom.Vec2{}, false
}
