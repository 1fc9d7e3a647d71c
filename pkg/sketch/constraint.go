package sketch

import (
	"fmt"

	"github.com/chazu/kerf/pkg/caderr"
)

// ConstraintKind enumerates the relations the solver understands.
type ConstraintKind int

const (
	Coincident ConstraintKind = iota
	Horizontal
	Vertical
	Parallel
	Perpendicular
	Equal
	Distance
	Angle
	Radius
	Fixed
	PointOnLine
	PointOnCircle
	Tangent
)

var constraintKindNames = map[ConstraintKind]string{
	Coincident:    "coincident",
	Horizontal:    "horizontal",
	Vertical:      "vertical",
	Parallel:      "parallel",
	Perpendicular: "perpendicular",
	Equal:         "equal",
	Distance:      "distance",
	Angle:         "angle",
	Radius:        "radius",
	Fixed:         "fixed",
	PointOnLine:   "point-on-line",
	PointOnCircle: "point-on-circle",
	Tangent:       "tangent",
}

func (k ConstraintKind) String() string {
	if s, ok := constraintKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ConstraintKind(%d)", int(k))
}

// ParseConstraintKind converts a name produced by String back to a kind.
func ParseConstraintKind(s string) (ConstraintKind, error) {
	for k, name := range constraintKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown constraint kind %q", s)
}

// Dimensional reports whether the kind carries a target value.
func (k ConstraintKind) Dimensional() bool {
	return k == Distance || k == Angle || k == Radius
}

// Constraint relates one or more entity references, optionally to a
// target value.
type Constraint struct {
	ID     ConstraintID   `json:"id"`
	Kind   ConstraintKind `json:"kind"`
	Refs   []Ref          `json:"refs"`
	Target *float64       `json:"target,omitempty"`
}

// TargetValue returns the target, or 0 for non-dimensional constraints.
func (c *Constraint) TargetValue() float64 {
	if c.Target == nil {
		return 0
	}
	return *c.Target
}

// References reports whether the constraint names entity id.
func (c *Constraint) References(id EntityID) bool {
	for _, r := range c.Refs {
		if r.Entity == id {
			return true
		}
	}
	return false
}

func (c Constraint) clone() *Constraint {
	c.Refs = append([]Ref(nil), c.Refs...)
	if c.Target != nil {
		t := *c.Target
		c.Target = &t
	}
	return &c
}

// Equations returns how many residual equations the constraint
// contributes once its references are resolved. Fixed on a directly
// stored point removes unknowns instead and contributes none.
func (c *Constraint) Equations(kinds func(EntityID) EntityKind) int {
	switch c.Kind {
	case Coincident:
		return 2
	case Fixed:
		r := c.Refs[0]
		if _, _, ok := PointParams(kinds(r.Entity), r.Pos); ok || r.Pos == PosWhole {
			return 0
		}
		return 2
	}
	return 1
}

// shape classifies a resolved reference for arity checking.
type shape int

const (
	shapePoint shape = iota
	shapeLine
	shapeRound // circle or arc
	shapeOther
)

func classify(k EntityKind, pos PointPos) shape {
	if isPointRef(k, pos) {
		return shapePoint
	}
	if pos != PosWhole {
		return shapeOther
	}
	switch k {
	case KindLine:
		return shapeLine
	case KindCircle, KindArc:
		return shapeRound
	}
	return shapeOther
}

func shapesMatch(got []shape, want ...shape) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// checkArity validates the resolved reference shapes and target against
// the constraint kind.
func checkArity(kind ConstraintKind, shapes []shape, refs []Ref, kinds []EntityKind, target *float64) error {
	bad := func(format string, args ...any) error {
		return caderr.New(caderr.ArityMismatch, "AddConstraint", "%s: "+format, append([]any{kind}, args...)...)
	}

	if kind.Dimensional() {
		if target == nil {
			return bad("requires a target value")
		}
	} else if target != nil {
		return bad("does not take a target value")
	}

	ok := false
	switch kind {
	case Coincident:
		ok = shapesMatch(shapes, shapePoint, shapePoint)
	case Horizontal, Vertical:
		ok = shapesMatch(shapes, shapeLine) || shapesMatch(shapes, shapePoint, shapePoint)
	case Parallel, Perpendicular, Angle:
		ok = shapesMatch(shapes, shapeLine, shapeLine)
	case Equal:
		ok = shapesMatch(shapes, shapeLine, shapeLine) || shapesMatch(shapes, shapeRound, shapeRound)
	case Distance:
		ok = shapesMatch(shapes, shapePoint, shapePoint) ||
			shapesMatch(shapes, shapeLine) ||
			shapesMatch(shapes, shapePoint, shapeLine)
		if ok && *target < 0 {
			return bad("target %g must not be negative", *target)
		}
	case Radius:
		ok = shapesMatch(shapes, shapeRound)
		if ok && *target <= 0 {
			return bad("target %g must be positive", *target)
		}
	case Fixed:
		ok = len(refs) == 1 && (refs[0].Pos == PosWhole || shapes[0] == shapePoint)
	case PointOnLine:
		ok = shapesMatch(shapes, shapePoint, shapeLine)
	case PointOnCircle:
		ok = shapesMatch(shapes, shapePoint, shapeRound)
	case Tangent:
		ok = shapesMatch(shapes, shapeLine, shapeRound)
	default:
		return bad("unknown constraint kind")
	}
	if !ok {
		desc := make([]string, len(refs))
		for i, r := range refs {
			desc[i] = kinds[i].String()
			if r.Pos != PosWhole {
				desc[i] += "." + r.Pos.String()
			}
		}
		return bad("unsupported references %v", desc)
	}
	return nil
}
