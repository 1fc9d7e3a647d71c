package solver

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/sketch"
)

const eps = 1e-9

func newSketch() *sketch.Sketch {
	return sketch.New("s", geom.PlaneXY(), sketch.WithIDs(ident.NewSequence()))
}

func mustConstrain(t *testing.T, s *sketch.Sketch, kind sketch.ConstraintKind, refs []sketch.Ref, target ...float64) sketch.ConstraintID {
	t.Helper()
	id, err := s.AddConstraint(kind, refs, target...)
	require.NoError(t, err)
	return id
}

func point(t *testing.T, s *sketch.Sketch, r sketch.Ref) geom.Vec2 {
	t.Helper()
	p, err := s.PointAt(r)
	require.NoError(t, err)
	return p
}

func TestCoincidentPoints(t *testing.T) {
	s := newSketch()
	a := s.AddEntity(sketch.Point(0, 0))
	b := s.AddEntity(sketch.Point(3, 4))
	mustConstrain(t, s, sketch.Coincident, []sketch.Ref{sketch.On(a), sketch.On(b)})

	res, err := Solve(s, DefaultConfig())
	require.NoError(t, err)

	pa, pb := point(t, s, sketch.On(a)), point(t, s, sketch.On(b))
	assert.Less(t, pa.Dist(pb), eps)
	assert.Equal(t, UnderConstrained, res.Status)
	assert.Equal(t, 2, res.DOF)
	assert.False(t, s.Stale())
}

func TestDistanceFromRandomStarts(t *testing.T) {
	const want = 7.5
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 3; i++ {
		s := newSketch()
		seg := s.AddEntity(sketch.Line(
			rng.Float64()*20-10, rng.Float64()*20-10,
			rng.Float64()*20-10, rng.Float64()*20-10,
		))
		mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(seg)}, want)

		_, err := Solve(s, DefaultConfig())
		require.NoError(t, err, "start %d", i)

		length := point(t, s, sketch.StartOf(seg)).Dist(point(t, s, sketch.EndOf(seg)))
		assert.InDelta(t, want, length, eps, "start %d", i)
	}
}

func TestDistanceBetweenPointsFromRandomStarts(t *testing.T) {
	const want = 12
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 3; i++ {
		s := newSketch()
		p := s.AddEntity(sketch.Point(0, 0))
		q := s.AddEntity(sketch.Point(rng.Float64()*50-25, rng.Float64()*50-25))
		mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.On(p)})
		mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(p), sketch.On(q)}, want)

		res, err := Solve(s, DefaultConfig())
		require.NoError(t, err)
		assert.InDelta(t, want, point(t, s, sketch.On(q)).Len(), eps)
		assert.Equal(t, 1, res.DOF)
		assert.Equal(t, geom.Vec2{}, point(t, s, sketch.On(p)), "fixed point must not move")
	}
}

// rectangleSketch builds a fully constrained 4×2 rectangle anchored at
// the origin, drawn slightly skewed.
func rectangleSketch(t *testing.T) (*sketch.Sketch, [4]sketch.EntityID) {
	s := newSketch()
	lines, err := s.AddRectangle(0, 0, 3, 3)
	require.NoError(t, err)
	require.NoError(t, s.SetParams(lines[1], []float64{3, 0, 3.2, 3.1}))
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.StartOf(lines[0])})
	mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(lines[0])}, 4)
	mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(lines[1])}, 2)
	return s, lines
}

func TestFullyConstrainedRectangle(t *testing.T) {
	s, lines := rectangleSketch(t)

	res, err := Solve(s, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Status)
	assert.Equal(t, 0, res.DOF)
	assert.Equal(t, 14, res.Unknowns)
	assert.Equal(t, 14, res.Equations)

	corner := point(t, s, sketch.EndOf(lines[1]))
	assert.InDelta(t, 4, corner.X, 1e-7)
	assert.InDelta(t, 2, corner.Y, 1e-7)
}

func TestResolveIsStable(t *testing.T) {
	s, _ := rectangleSketch(t)

	first, err := Solve(s, DefaultConfig())
	require.NoError(t, err)
	assert.Less(t, first.Residual, eps)
	rev := s.Revision()

	second, err := Solve(s, DefaultConfig())
	require.NoError(t, err)
	assert.Less(t, second.Residual, eps)
	assert.Equal(t, 0, second.Iterations)
	assert.Equal(t, rev, s.Revision(), "a no-op solve must not count as an edit")
}

func TestSolveIsDeterministic(t *testing.T) {
	a, _ := rectangleSketch(t)
	b := a.Clone()

	_, err := Solve(a, DefaultConfig())
	require.NoError(t, err)
	_, err = Solve(b, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, a.Entities(), b.Entities())
}

func TestConflictNamesConstraintsAndRestores(t *testing.T) {
	s := newSketch()
	p := s.AddEntity(sketch.Point(0, 0))
	q := s.AddEntity(sketch.Point(1, 0))
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.On(p)})
	c5 := mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(p), sketch.On(q)}, 5)
	c7 := mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(p), sketch.On(q)}, 7)
	rev := s.Revision()

	_, err := Solve(s, DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, caderr.ErrConstraintConflict)
	assert.ElementsMatch(t, []string{string(c5), string(c7)}, caderr.IDsOf(err))

	assert.Equal(t, geom.Vec2{X: 1}, point(t, s, sketch.On(q)), "pre-solve values must be kept")
	assert.Equal(t, rev, s.Revision())
	assert.True(t, s.Stale())
}

func TestConflictWithNoUnknowns(t *testing.T) {
	s := newSketch()
	p := s.AddEntity(sketch.Point(0, 0))
	q := s.AddEntity(sketch.Point(1, 0))
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.On(p)})
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.On(q)})
	c := mustConstrain(t, s, sketch.Coincident, []sketch.Ref{sketch.On(p), sketch.On(q)})

	_, err := Solve(s, DefaultConfig())
	assert.ErrorIs(t, err, caderr.ErrConstraintConflict)
	assert.Equal(t, []string{string(c)}, caderr.IDsOf(err))
}

func TestDivergedKeepsPreSolveState(t *testing.T) {
	s := newSketch()
	p := s.AddEntity(sketch.Point(0, 0))
	q := s.AddEntity(sketch.Point(1, 0.5))
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.On(p)})
	mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(p), sketch.On(q)}, 1000)
	before := s.Entities()

	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	res, err := Solve(s, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, caderr.ErrSolverDiverged)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, Unsolved, res.Status)
	assert.Equal(t, before, s.Entities())
	assert.True(t, s.Stale())
}

func TestDistanceFromCoincidentStart(t *testing.T) {
	s := newSketch()
	p := s.AddEntity(sketch.Point(1, 1))
	q := s.AddEntity(sketch.Point(1, 1))
	mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(p), sketch.On(q)}, 5)

	res, err := Solve(s, DefaultConfig())
	require.NoError(t, err)
	assert.InDelta(t, 5, point(t, s, sketch.On(p)).Dist(point(t, s, sketch.On(q))), 1e-6)
	assert.Equal(t, UnderConstrained, res.Status)
	assert.Equal(t, 3, res.DOF)
}

func TestTangentFromCenterOnLine(t *testing.T) {
	s := newSketch()
	l := s.AddEntity(sketch.Line(0, 0, 10, 0))
	c := s.AddEntity(sketch.Circle(5, 0, 2))
	mustConstrain(t, s, sketch.Tangent, []sketch.Ref{sketch.On(l), sketch.On(c)})
	mustConstrain(t, s, sketch.Radius, []sketch.Ref{sketch.On(c)}, 2)

	res, err := Solve(s, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, UnderConstrained, res.Status)

	e, ok := s.Entity(c)
	require.True(t, ok)
	assert.InDelta(t, 2, e.Params[2], 1e-6)
	ln, ok := s.Entity(l)
	require.True(t, ok)
	a := geom.Vec2{X: ln.Params[0], Y: ln.Params[1]}
	b := geom.Vec2{X: ln.Params[2], Y: ln.Params[3]}
	center := geom.Vec2{X: e.Params[0], Y: e.Params[1]}
	dist := math.Abs(center.Sub(a).Cross(b.Sub(a))) / b.Sub(a).Len()
	assert.InDelta(t, 2, dist, 1e-6)
}

func TestRedundantDistancesAreNotAConflict(t *testing.T) {
	s := newSketch()
	p := s.AddEntity(sketch.Point(0, 0))
	q := s.AddEntity(sketch.Point(1, 0))
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.On(p)})
	mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(p), sketch.On(q)}, 5)
	mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(p), sketch.On(q)}, 5)

	res, err := Solve(s, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, UnderConstrained, res.Status)
	assert.InDelta(t, 5, point(t, s, sketch.On(q)).Dist(geom.Vec2{}), 1e-6)
}

func TestFailedSolveIsUnsolved(t *testing.T) {
	s := newSketch()
	p := s.AddEntity(sketch.Point(0, 0))
	q := s.AddEntity(sketch.Point(1, 0))
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.On(p)})
	mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(p), sketch.On(q)}, 5)
	mustConstrain(t, s, sketch.Distance, []sketch.Ref{sketch.On(p), sketch.On(q)}, 7)

	res, err := Solve(s, DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, Unsolved, res.Status)
	assert.Equal(t, "unsolved", res.Status.String())
	assert.Greater(t, res.Residual, eps)
}

func TestGeometricConstraints(t *testing.T) {
	s := newSketch()
	base := s.AddEntity(sketch.Line(0, 0, 10, 0))
	other := s.AddEntity(sketch.Line(0, 2, 9, 5))
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.On(base)})

	t.Run("parallel", func(t *testing.T) {
		c := s.Clone()
		mustConstrain(t, c, sketch.Parallel, []sketch.Ref{sketch.On(base), sketch.On(other)})
		_, err := Solve(c, DefaultConfig())
		require.NoError(t, err)
		a, b := point(t, c, sketch.StartOf(other)), point(t, c, sketch.EndOf(other))
		assert.InDelta(t, a.Y, b.Y, 1e-8)
	})

	t.Run("perpendicular", func(t *testing.T) {
		c := s.Clone()
		mustConstrain(t, c, sketch.Perpendicular, []sketch.Ref{sketch.On(base), sketch.On(other)})
		_, err := Solve(c, DefaultConfig())
		require.NoError(t, err)
		a, b := point(t, c, sketch.StartOf(other)), point(t, c, sketch.EndOf(other))
		assert.InDelta(t, a.X, b.X, 1e-8)
	})

	t.Run("angle", func(t *testing.T) {
		c := s.Clone()
		mustConstrain(t, c, sketch.Angle, []sketch.Ref{sketch.On(base), sketch.On(other)}, math.Pi/4)
		_, err := Solve(c, DefaultConfig())
		require.NoError(t, err)
		a, b := point(t, c, sketch.StartOf(other)), point(t, c, sketch.EndOf(other))
		d := b.Sub(a)
		assert.InDelta(t, math.Pi/4, math.Atan2(d.Y, d.X), 1e-8)
	})

	t.Run("point on line", func(t *testing.T) {
		c := s.Clone()
		mustConstrain(t, c, sketch.PointOnLine, []sketch.Ref{sketch.StartOf(other), sketch.On(base)})
		_, err := Solve(c, DefaultConfig())
		require.NoError(t, err)
		assert.InDelta(t, 0, point(t, c, sketch.StartOf(other)).Y, 1e-8)
	})
}

func TestCircleConstraints(t *testing.T) {
	s := newSketch()
	floor := s.AddEntity(sketch.Line(-10, 0, 10, 0))
	circle := s.AddEntity(sketch.Circle(1, 3, 1))
	p := s.AddEntity(sketch.Point(6, 6))
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.On(floor)})
	mustConstrain(t, s, sketch.Radius, []sketch.Ref{sketch.On(circle)}, 2.5)
	mustConstrain(t, s, sketch.Tangent, []sketch.Ref{sketch.On(floor), sketch.On(circle)})
	mustConstrain(t, s, sketch.PointOnCircle, []sketch.Ref{sketch.On(p), sketch.On(circle)})

	_, err := Solve(s, DefaultConfig())
	require.NoError(t, err)

	e, _ := s.Entity(circle)
	assert.InDelta(t, 2.5, e.Params[2], 1e-8)
	assert.InDelta(t, 2.5, math.Abs(e.Params[1]), 1e-8)
	center := geom.Vec2{X: e.Params[0], Y: e.Params[1]}
	assert.InDelta(t, 2.5, point(t, s, sketch.On(p)).Dist(center), 1e-8)
}

func TestFixedArcEndPinsPoint(t *testing.T) {
	s := newSketch()
	arc := s.AddEntity(sketch.Arc(0, 0, 1, 0, math.Pi/2))
	start := point(t, s, sketch.StartOf(arc))
	mustConstrain(t, s, sketch.Fixed, []sketch.Ref{sketch.StartOf(arc)})
	mustConstrain(t, s, sketch.Radius, []sketch.Ref{sketch.On(arc)}, 3)

	_, err := Solve(s, DefaultConfig())
	require.NoError(t, err)

	assert.Less(t, point(t, s, sketch.StartOf(arc)).Dist(start), 1e-8)
	e, _ := s.Entity(arc)
	assert.InDelta(t, 3, e.Params[2], 1e-8)
}

func TestEmptySketchConverges(t *testing.T) {
	s := newSketch()
	s.AddEntity(sketch.Point(1, 1))

	res, err := Solve(s, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, UnderConstrained, res.Status)
	assert.Equal(t, 2, res.DOF)
	assert.False(t, s.Stale())
}
