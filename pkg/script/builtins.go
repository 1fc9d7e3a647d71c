package script

import (
	"fmt"
	"math"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/kerf/pkg/document"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/sketch"
)

// builtins are the modeling functions of one evaluation. Each call is
// one document command.
type builtins struct {
	doc *document.Document
}

type builtin func(args []zygo.Sexp) (zygo.Sexp, error)

// registerBuiltins installs the modeling functions into env. Source must
// go through preprocessSource first so keywords arrive as "__kw_" strings
// and kebab-case names as snake_case.
func registerBuiltins(env *zygo.Zlisp, doc *document.Document) {
	b := &builtins{doc: doc}
	table := map[string]builtin{
		"sketch":    b.sketch,
		"sketch_on": b.sketchOn,
		"point":     b.entity(sketch.KindPoint),
		"line":      b.entity(sketch.KindLine),
		"circle":    b.entity(sketch.KindCircle),
		"arc":       b.entity(sketch.KindArc),
		"rect":      b.rect,
		"start":     b.pointRef(sketch.PosStart),
		"end":       b.pointRef(sketch.PosEnd),
		"center":    b.pointRef(sketch.PosCenter),
		"constrain": b.constrain,
		"solve":     b.solve,
		"dof":       b.dof,
		"extrude":   b.extrude,
		"revolve":   b.revolve,
		"union":     b.boolean(kernel.Union),
		"subtract":  b.boolean(kernel.Subtract),
		"intersect": b.boolean(kernel.Intersect),
		"fillet":    b.blend(false),
		"chamfer":   b.blend(true),
		"rollback":  b.rollback,
		"suppress":  b.suppress,
		"vec":       vec,
	}
	for name, fn := range table {
		display := strings.ReplaceAll(name, "_", "-")
		env.AddFunction(name, func(_ *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
			out, err := fn(args)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", display, err)
			}
			return out, nil
		})
	}
}

// (sketch "name" :plane :xy|:xz|:yz :offset d)
func (b *builtins) sketch(args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)
	if err := pa.need("sketch", 1, "a name"); err != nil {
		return nil, err
	}
	name, err := toString(pa.positional[0])
	if err != nil {
		return nil, err
	}
	which, err := pa.keyword("plane", "xy")
	if err != nil {
		return nil, err
	}
	var plane geom.Plane
	switch which {
	case "xy":
		plane = geom.PlaneXY()
	case "xz":
		plane = geom.PlaneXZ()
	case "yz":
		plane = geom.PlaneYZ()
	default:
		return nil, fmt.Errorf("unknown plane %q, expected xy, xz or yz", which)
	}
	offset, err := pa.float("offset", 0)
	if err != nil {
		return nil, err
	}
	if offset != 0 {
		plane = plane.Offset(offset)
	}
	return &sexpSketch{id: b.doc.CreateSketch(name, plane), name: name}, nil
}

// (sketch-on "name" feature "face/end")
func (b *builtins) sketchOn(args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)
	if err := pa.need("sketch-on", 3, "a name, a feature and a face role"); err != nil {
		return nil, err
	}
	name, err := toString(pa.positional[0])
	if err != nil {
		return nil, err
	}
	f, err := toFeature(pa.positional[1])
	if err != nil {
		return nil, err
	}
	role, err := toKeywordString(pa.positional[2])
	if err != nil {
		return nil, err
	}
	id, err := b.doc.CreateSketchOnFace(name, f, role)
	if err != nil {
		return nil, err
	}
	return &sexpSketch{id: id, name: name}, nil
}

// (point s x y), (line s x1 y1 x2 y2), (circle s cx cy r),
// (arc s cx cy r a0 a1); any of them with :construction true.
func (b *builtins) entity(kind sketch.EntityKind) builtin {
	return func(args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		n := kind.ParamCount()
		if err := pa.need(kind.String(), n+1, fmt.Sprintf("a sketch and %d numbers", n)); err != nil {
			return nil, err
		}
		s, err := toSketch(pa.positional[0])
		if err != nil {
			return nil, err
		}
		params, err := toFloats(pa.positional[1:])
		if err != nil {
			return nil, err
		}
		e, err := sketch.NewEntity(kind, params)
		if err != nil {
			return nil, err
		}
		if pa.flag("construction") {
			e = e.AsConstruction()
		}
		id, err := b.doc.AddEntity(s.id, e)
		if err != nil {
			return nil, err
		}
		return &sexpEntity{sketch: s.id, id: id, kind: kind}, nil
	}
}

// (rect s x0 y0 x1 y1) returns the bottom, right, top and left lines.
func (b *builtins) rect(args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 5 {
		return nil, fmt.Errorf("got %d arguments, want a sketch and 4 numbers", len(args))
	}
	s, err := toSketch(args[0])
	if err != nil {
		return nil, err
	}
	c, err := toFloats(args[1:])
	if err != nil {
		return nil, err
	}
	lines, err := b.doc.AddRectangle(s.id, c[0], c[1], c[2], c[3])
	if err != nil {
		return nil, err
	}
	out := make([]zygo.Sexp, len(lines))
	for i, id := range lines {
		out[i] = &sexpEntity{sketch: s.id, id: id, kind: sketch.KindLine}
	}
	return zygo.MakeList(out), nil
}

// (start e), (end e), (center e)
func (b *builtins) pointRef(pos sketch.PointPos) builtin {
	return func(args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("got %d arguments, want an entity", len(args))
		}
		e, err := toEntity(args[0])
		if err != nil {
			return nil, err
		}
		if _, ok := sketch.PointOf(e.kind, make([]float64, e.kind.ParamCount()), pos); !ok {
			return nil, fmt.Errorf("a %s has no %s point", e.kind, pos)
		}
		return &sexpRef{ref: sketch.Ref{Entity: e.id, Pos: pos}}, nil
	}
}

// (constrain s :kind ref... [target])
//
// Keywords are not paired with values here: the kind is followed by its
// references, and a trailing number is the dimensional target.
func (b *builtins) constrain(args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("got %d arguments, want a sketch, a kind and references", len(args))
	}
	s, err := toSketch(args[0])
	if err != nil {
		return nil, err
	}
	name, err := toKeywordString(args[1])
	if err != nil {
		return nil, err
	}
	kind, err := sketch.ParseConstraintKind(name)
	if err != nil {
		return nil, err
	}

	rest := args[2:]
	var target []float64
	if v, err := toFloat64(rest[len(rest)-1]); err == nil {
		target = append(target, v)
		rest = rest[:len(rest)-1]
	}
	refs := make([]sketch.Ref, len(rest))
	for i, a := range rest {
		if refs[i], err = toRef(a); err != nil {
			return nil, err
		}
	}
	id, err := b.doc.AddConstraint(s.id, kind, refs, target...)
	if err != nil {
		return nil, err
	}
	return &sexpConstraint{id: id, kind: kind}, nil
}

// (solve s) returns "converged" or "under-constrained".
func (b *builtins) solve(args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("got %d arguments, want a sketch", len(args))
	}
	s, err := toSketch(args[0])
	if err != nil {
		return nil, err
	}
	res, err := b.doc.Solve(s.id)
	if err != nil {
		return nil, err
	}
	return &zygo.SexpStr{S: res.Status.String()}, nil
}

// (dof s)
func (b *builtins) dof(args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("got %d arguments, want a sketch", len(args))
	}
	s, err := toSketch(args[0])
	if err != nil {
		return nil, err
	}
	v, ok := b.doc.Snapshot().Sketch(s.id)
	if !ok {
		return nil, fmt.Errorf("sketch %q is gone", s.name)
	}
	return &zygo.SexpInt{Val: int64(v.DOF)}, nil
}

// bodyOp reads :op and :target.
func bodyOp(pa kwArgs) (history.BodyOp, history.FeatureID, error) {
	name, err := pa.keyword("op", history.NewBody.String())
	if err != nil {
		return 0, "", err
	}
	op, err := history.ParseBodyOp(name)
	if err != nil {
		return 0, "", err
	}
	var target history.FeatureID
	if v, ok := pa.kw["target"]; ok {
		if target, err = toFeature(v); err != nil {
			return 0, "", fmt.Errorf(":target: %w", err)
		}
	}
	return op, target, nil
}

func (b *builtins) add(name string, p history.Params) (zygo.Sexp, error) {
	id, err := b.doc.AddFeature(history.Spec{Name: name, Params: p})
	if err != nil {
		return nil, err
	}
	return &sexpFeature{id: id, name: name}, nil
}

// (extrude "name" s distance :direction :positive :op :join :target f)
func (b *builtins) extrude(args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)
	if err := pa.need("extrude", 3, "a name, a sketch and a distance"); err != nil {
		return nil, err
	}
	name, err := toString(pa.positional[0])
	if err != nil {
		return nil, err
	}
	s, err := toSketch(pa.positional[1])
	if err != nil {
		return nil, err
	}
	dist, err := toFloat64(pa.positional[2])
	if err != nil {
		return nil, err
	}
	dirName, err := pa.keyword("direction", history.Positive.String())
	if err != nil {
		return nil, err
	}
	dir, err := history.ParseDirection(dirName)
	if err != nil {
		return nil, err
	}
	op, target, err := bodyOp(pa)
	if err != nil {
		return nil, err
	}
	return b.add(name, &history.ExtrudeParams{
		Sketch:    s.id,
		Distance:  dist,
		Direction: dir,
		Op:        op,
		Target:    target,
	})
}

// (revolve "name" s :origin (vec x y z) :axis (vec x y z) :angle a)
//
// The axis defaults to world Y through the origin and the angle to a
// full turn.
func (b *builtins) revolve(args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)
	if err := pa.need("revolve", 2, "a name and a sketch"); err != nil {
		return nil, err
	}
	name, err := toString(pa.positional[0])
	if err != nil {
		return nil, err
	}
	s, err := toSketch(pa.positional[1])
	if err != nil {
		return nil, err
	}
	origin, err := pa.vec("origin", geom.Vec3{})
	if err != nil {
		return nil, err
	}
	dir, err := pa.vec("axis", geom.YAxis)
	if err != nil {
		return nil, err
	}
	angle, err := pa.float("angle", 2*math.Pi)
	if err != nil {
		return nil, err
	}
	op, target, err := bodyOp(pa)
	if err != nil {
		return nil, err
	}
	return b.add(name, &history.RevolveParams{
		Sketch: s.id,
		Axis:   geom.Axis{Origin: origin, Direction: dir},
		Angle:  angle,
		Op:     op,
		Target: target,
	})
}

// (union "name" a b), (subtract "name" a b), (intersect "name" a b)
func (b *builtins) boolean(op kernel.BooleanOp) builtin {
	return func(args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("got %d arguments, want a name and two features", len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return nil, err
		}
		operands := make([]history.FeatureID, 2)
		for i, a := range args[1:] {
			if operands[i], err = toFeature(a); err != nil {
				return nil, err
			}
		}
		return b.add(name, &history.BooleanParams{Op: op, Operands: operands})
	}
}

// (fillet "name" f radius "edge/0" ...), (chamfer "name" f distance "edge/0" ...)
func (b *builtins) blend(chamfer bool) builtin {
	return func(args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 4 {
			return nil, fmt.Errorf("got %d arguments, want a name, a feature, a size and edge roles", len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return nil, err
		}
		f, err := toFeature(args[1])
		if err != nil {
			return nil, err
		}
		size, err := toFloat64(args[2])
		if err != nil {
			return nil, err
		}
		edges := make([]string, 0, len(args)-3)
		for _, a := range args[3:] {
			role, err := toString(a)
			if err != nil {
				return nil, err
			}
			edges = append(edges, role)
		}
		return b.add(name, &history.BlendParams{Chamfer: chamfer, Input: f, Size: size, Edges: edges})
	}
}

// (rollback n)
func (b *builtins) rollback(args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("got %d arguments, want an index", len(args))
	}
	k, err := toInt(args[0])
	if err != nil {
		return nil, err
	}
	if err := b.doc.SetRollback(k); err != nil {
		return nil, err
	}
	return zygo.SexpNull, nil
}

// (suppress f), (suppress f false)
func (b *builtins) suppress(args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, fmt.Errorf("got %d arguments, want a feature and an optional flag", len(args))
	}
	f, err := toFeature(args[0])
	if err != nil {
		return nil, err
	}
	on := true
	if len(args) == 2 {
		if on, err = toBool(args[1]); err != nil {
			return nil, err
		}
	}
	if err := b.doc.SetSuppressed(f, on); err != nil {
		return nil, err
	}
	return zygo.SexpNull, nil
}

// (vec x y z)
func vec(args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("got %d arguments, want x y z", len(args))
	}
	c, err := toFloats(args)
	if err != nil {
		return nil, err
	}
	return &sexpVec{v: geom.Vec3{X: c[0], Y: c[1], Z: c[2]}}, nil
}
