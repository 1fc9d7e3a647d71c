package nop

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/kernel"
)

func rect(x0, y0, x1, y1 float64) kernel.Profile {
	return kernel.Profile{
		Plane: geom.PlaneXY(),
		Outer: []geom.Vec2{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}},
	}
}

func TestExtrudeBounds(t *testing.T) {
	k := New()
	s, err := k.Extrude(rect(0, 0, 4, 2), 3, geom.ZAxis)
	require.NoError(t, err)
	min, max := s.BoundingBox()
	assert.Equal(t, [3]float64{0, 0, 0}, min)
	assert.Equal(t, [3]float64{4, 2, 3}, max)
	assert.Equal(t, 1, k.Calls("Extrude"))

	topo, err := k.Topology(s)
	require.NoError(t, err)
	assert.Len(t, topo.Faces, 6)
	assert.Len(t, topo.Edges, 12)
}

func TestRevolveBounds(t *testing.T) {
	k := New()
	s, err := k.Revolve(rect(1, 0, 2, 1), geom.Axis{Direction: geom.YAxis}, 2*math.Pi)
	require.NoError(t, err)
	min, max := s.BoundingBox()
	assert.InDelta(t, -2, min[0], 1e-9)
	assert.InDelta(t, 2, max[0], 1e-9)
	assert.InDelta(t, 0, min[1], 1e-9)
	assert.InDelta(t, 1, max[1], 1e-9)
	assert.InDelta(t, -2, min[2], 1e-9)
	assert.InDelta(t, 2, max[2], 1e-9)
}

func TestBooleans(t *testing.T) {
	k := New()
	a, err := k.Extrude(rect(0, 0, 10, 10), 10, geom.ZAxis)
	require.NoError(t, err)
	b, err := k.Extrude(rect(5, 0, 15, 10), 10, geom.ZAxis)
	require.NoError(t, err)

	u, err := k.Boolean(kernel.Union, a, b)
	require.NoError(t, err)
	min, max := u.BoundingBox()
	assert.Equal(t, [3]float64{0, 0, 0}, min)
	assert.Equal(t, [3]float64{15, 10, 10}, max)
	topo, _ := k.Topology(u)
	assert.Len(t, topo.Faces, 12)

	i, err := k.Boolean(kernel.Intersect, a, b)
	require.NoError(t, err)
	min, max = i.BoundingBox()
	assert.Equal(t, [3]float64{5, 0, 0}, min)
	assert.Equal(t, [3]float64{10, 10, 10}, max)

	d, err := k.Boolean(kernel.Subtract, a, b)
	require.NoError(t, err)
	min, max = d.BoundingBox()
	assert.Equal(t, [3]float64{0, 0, 0}, min)
	assert.Equal(t, [3]float64{10, 10, 10}, max)
	topo, _ = k.Topology(d)
	for _, f := range topo.Faces {
		assert.LessOrEqual(t, f.Centroid.X, 10.0)
	}
	assert.Equal(t, 3, k.Calls("Boolean"))
}

func TestIntersectDisjointFails(t *testing.T) {
	k := New()
	a, _ := k.Extrude(rect(0, 0, 1, 1), 1, geom.ZAxis)
	b, _ := k.Extrude(rect(5, 5, 6, 6), 1, geom.ZAxis)
	_, err := k.Boolean(kernel.Intersect, a, b)
	assert.True(t, errors.Is(err, caderr.ErrKernelFailure))
}

func TestFilletAddsFaces(t *testing.T) {
	k := New()
	s, _ := k.Extrude(rect(0, 0, 1, 1), 1, geom.ZAxis)
	f, err := k.Fillet(s, []int{0, 1}, 0.1)
	require.NoError(t, err)
	topo, _ := k.Topology(f)
	assert.Len(t, topo.Faces, 8)

	_, err = k.Chamfer(s, []int{42}, 0.1)
	assert.True(t, errors.Is(err, caderr.ErrKernelFailure))
	_, err = k.Chamfer(s, []int{0}, 0)
	assert.True(t, errors.Is(err, caderr.ErrKernelFailure))
}

func TestWithCapabilities(t *testing.T) {
	k := New(WithCapabilities(kernel.CapExtrude | kernel.CapMesh))
	assert.False(t, k.Capabilities().Has(kernel.CapRevolve))

	_, err := k.Revolve(rect(1, 0, 2, 1), geom.Axis{Direction: geom.YAxis}, math.Pi)
	assert.True(t, errors.Is(err, caderr.ErrUnsupportedOperation))

	s, err := k.Extrude(rect(0, 0, 1, 1), 1, geom.ZAxis)
	require.NoError(t, err)
	_, err = k.Fillet(s, []int{0}, 0.1)
	assert.True(t, errors.Is(err, caderr.ErrUnsupportedOperation))
}

func TestFailNext(t *testing.T) {
	k := New()
	boom := caderr.New(caderr.KernelFailure, "Extrude", "boom")
	k.FailNext("Extrude", boom)

	_, err := k.Extrude(rect(0, 0, 1, 1), 1, geom.ZAxis)
	assert.ErrorIs(t, err, boom)

	_, err = k.Extrude(rect(0, 0, 1, 1), 1, geom.ZAxis)
	assert.NoError(t, err)
	assert.Equal(t, 2, k.Calls("Extrude"))

	k.ResetCalls()
	assert.Equal(t, 0, k.Calls("Extrude"))
}

func TestToMeshIsBox(t *testing.T) {
	k := New()
	s, _ := k.Extrude(rect(0, 0, 1, 1), 1, geom.ZAxis)
	m, err := k.ToMesh(s)
	require.NoError(t, err)
	assert.Equal(t, 12, m.TriangleCount())
}

type foreign struct{}

func (foreign) BoundingBox() (min, max [3]float64) { return }

func TestForeignSolid(t *testing.T) {
	k := New()
	_, err := k.Topology(foreign{})
	assert.True(t, errors.Is(err, caderr.ErrKernelFailure))
}
