package solver

import (
	"math"

	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/sketch"
)

// tiny guards normalisations against zero-length directions.
const tiny = 1e-12

// entityState is the working copy of an entity while solving.
type entityState struct {
	kind   sketch.EntityKind
	params []float64
}

// view resolves references against the working parameters.
type view map[sketch.EntityID]*entityState

func (v view) point(r sketch.Ref) geom.Vec2 {
	e := v[r.Entity]
	p, ok := sketch.PointOf(e.kind, e.params, r.Pos)
	if !ok {
		panic("solver: reference " + r.String() + " is not a point")
	}
	return p
}

// line returns the endpoints of a line entity.
func (v view) line(r sketch.Ref) (a, b geom.Vec2) {
	p := v[r.Entity].params
	return geom.Vec2{X: p[0], Y: p[1]}, geom.Vec2{X: p[2], Y: p[3]}
}

// round returns the center and radius of a circle or arc.
func (v view) round(r sketch.Ref) (c geom.Vec2, radius float64) {
	p := v[r.Entity].params
	return geom.Vec2{X: p[0], Y: p[1]}, p[2]
}

func (v view) isLine(r sketch.Ref) bool {
	return r.Pos == sketch.PosWhole && v[r.Entity].kind == sketch.KindLine
}

// residual evaluates one constraint into dst, which has the length
// reported by the constraint's equation count.
type residual struct {
	id   sketch.ConstraintID
	n    int
	eval func(v view, dst []float64)
}

// buildResidual returns the residual for c, or nil when the constraint is
// satisfied structurally (Fixed on stored parameters).
func buildResidual(c sketch.Constraint, v view) *residual {
	refs := c.Refs
	target := c.TargetValue()
	res := &residual{id: c.ID, n: 1}

	switch c.Kind {
	case sketch.Coincident:
		res.n = 2
		res.eval = func(v view, dst []float64) {
			d := v.point(refs[0]).Sub(v.point(refs[1]))
			dst[0], dst[1] = d.X, d.Y
		}

	case sketch.Horizontal, sketch.Vertical:
		horizontal := c.Kind == sketch.Horizontal
		res.eval = func(v view, dst []float64) {
			var a, b geom.Vec2
			if len(refs) == 1 {
				a, b = v.line(refs[0])
			} else {
				a, b = v.point(refs[0]), v.point(refs[1])
			}
			if horizontal {
				dst[0] = b.Y - a.Y
			} else {
				dst[0] = b.X - a.X
			}
		}

	case sketch.Parallel:
		res.eval = func(v view, dst []float64) {
			d1, d2 := direction(v, refs[0]), direction(v, refs[1])
			dst[0] = d1.Cross(d2) / math.Max(d1.Len()*d2.Len(), tiny)
		}

	case sketch.Perpendicular:
		res.eval = func(v view, dst []float64) {
			d1, d2 := direction(v, refs[0]), direction(v, refs[1])
			dst[0] = d1.Dot(d2) / math.Max(d1.Len()*d2.Len(), tiny)
		}

	case sketch.Equal:
		res.eval = func(v view, dst []float64) {
			if v.isLine(refs[0]) {
				dst[0] = direction(v, refs[0]).Len() - direction(v, refs[1]).Len()
				return
			}
			_, r1 := v.round(refs[0])
			_, r2 := v.round(refs[1])
			dst[0] = r1 - r2
		}

	case sketch.Distance:
		res.eval = func(v view, dst []float64) {
			switch {
			case len(refs) == 1:
				dst[0] = direction(v, refs[0]).Len() - target
			case v.isLine(refs[1]):
				a, b := v.line(refs[1])
				dst[0] = pointLineDistance(v.point(refs[0]), a, b) - target
			default:
				dst[0] = v.point(refs[0]).Dist(v.point(refs[1])) - target
			}
		}

	case sketch.Angle:
		res.eval = func(v view, dst []float64) {
			d1, d2 := direction(v, refs[0]), direction(v, refs[1])
			dst[0] = wrapAngle(math.Atan2(d1.Cross(d2), d1.Dot(d2)) - target)
		}

	case sketch.Radius:
		res.eval = func(v view, dst []float64) {
			_, r := v.round(refs[0])
			dst[0] = r - target
		}

	case sketch.Fixed:
		r := refs[0]
		if r.Pos == sketch.PosWhole {
			return nil
		}
		if _, _, ok := sketch.PointParams(v[r.Entity].kind, r.Pos); ok {
			return nil
		}
		pin := v.point(r)
		res.n = 2
		res.eval = func(v view, dst []float64) {
			d := v.point(r).Sub(pin)
			dst[0], dst[1] = d.X, d.Y
		}

	case sketch.PointOnLine:
		res.eval = func(v view, dst []float64) {
			a, b := v.line(refs[1])
			ab := b.Sub(a)
			dst[0] = v.point(refs[0]).Sub(a).Cross(ab) / math.Max(ab.Len(), tiny)
		}

	case sketch.PointOnCircle:
		res.eval = func(v view, dst []float64) {
			c, r := v.round(refs[1])
			dst[0] = v.point(refs[0]).Dist(c) - r
		}

	case sketch.Tangent:
		res.eval = func(v view, dst []float64) {
			a, b := v.line(refs[0])
			c, r := v.round(refs[1])
			dst[0] = pointLineDistance(c, a, b) - r
		}

	default:
		panic("solver: unhandled constraint kind " + c.Kind.String())
	}
	return res
}

// direction returns the vector from a line's start to its end.
func direction(v view, r sketch.Ref) geom.Vec2 {
	a, b := v.line(r)
	return b.Sub(a)
}

func pointLineDistance(p, a, b geom.Vec2) float64 {
	ab := b.Sub(a)
	return math.Abs(p.Sub(a).Cross(ab)) / math.Max(ab.Len(), tiny)
}

// wrapAngle maps an angle into (-π, π].
func wrapAngle(a float64) float64 {
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
