//go:build manifold

package manifold

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/kernel"
)

func mustNew(t *testing.T) kernel.Kernel {
	t.Helper()
	k, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return k
}

func rect(x0, y0, x1, y1 float64) []geom.Vec2 {
	return []geom.Vec2{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func extrude(t *testing.T, k kernel.Kernel, plane geom.Plane, outer []geom.Vec2, d float64, dir geom.Vec3) kernel.Solid {
	t.Helper()
	s, err := k.Extrude(kernel.Profile{Plane: plane, Outer: outer}, d, dir)
	if err != nil {
		t.Fatalf("Extrude() error = %v", err)
	}
	return s
}

func checkBounds(t *testing.T, s kernel.Solid, wantMin, wantMax [3]float64) {
	t.Helper()
	min, max := s.BoundingBox()
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-wantMin[i]) > 1e-6 {
			t.Errorf("min[%d] = %f, want %f", i, min[i], wantMin[i])
		}
		if math.Abs(max[i]-wantMax[i]) > 1e-6 {
			t.Errorf("max[%d] = %f, want %f", i, max[i], wantMax[i])
		}
	}
}

func TestExtrude(t *testing.T) {
	k := mustNew(t)
	s := extrude(t, k, geom.PlaneXY(), rect(0, 0, 4, 6), 8, geom.ZAxis)
	checkBounds(t, s, [3]float64{0, 0, 0}, [3]float64{4, 6, 8})

	topo, err := k.Topology(s)
	if err != nil {
		t.Fatalf("Topology() error = %v", err)
	}
	if len(topo.Faces) != 6 {
		t.Errorf("faces = %d, want 6", len(topo.Faces))
	}
}

func TestExtrudeNegativeOnXZ(t *testing.T) {
	k := mustNew(t)
	pl := geom.PlaneXZ()
	s := extrude(t, k, pl, rect(0, 0, 4, 6), 8, pl.Normal.Neg())
	// Normal is -Y, so the reversed sweep goes towards +Y.
	checkBounds(t, s, [3]float64{0, 0, 0}, [3]float64{4, 8, 6})
}

func TestExtrudeWithHole(t *testing.T) {
	k := mustNew(t)
	s, err := k.Extrude(kernel.Profile{
		Plane: geom.PlaneXY(),
		Outer: rect(0, 0, 10, 10),
		Holes: [][]geom.Vec2{rect(3, 3, 7, 7)},
	}, 2, geom.ZAxis)
	if err != nil {
		t.Fatalf("Extrude() error = %v", err)
	}
	mesh, err := k.ToMesh(s)
	if err != nil {
		t.Fatalf("ToMesh() error = %v", err)
	}
	// A plain block has 12 triangles; the hole adds walls and splits caps.
	if mesh.TriangleCount() <= 12 {
		t.Errorf("triangle count = %d, want > 12", mesh.TriangleCount())
	}
}

func TestDifference(t *testing.T) {
	k := mustNew(t)
	block := extrude(t, k, geom.PlaneXY(), rect(-5, -5, 5, 5), 10, geom.ZAxis)
	tool := extrude(t, k, geom.PlaneXY(), rect(-2, -2, 2, 2), 10, geom.ZAxis)
	result, err := k.Boolean(kernel.Subtract, block, tool)
	if err != nil {
		t.Fatalf("Boolean() error = %v", err)
	}
	// The hole is contained within the block footprint.
	checkBounds(t, result, [3]float64{-5, -5, 0}, [3]float64{5, 5, 10})
}

func TestUnion(t *testing.T) {
	k := mustNew(t)
	a := extrude(t, k, geom.PlaneXY(), rect(0, 0, 10, 10), 10, geom.ZAxis)
	b := extrude(t, k, geom.PlaneXY(), rect(5, 0, 15, 10), 10, geom.ZAxis)
	u, err := k.Boolean(kernel.Union, a, b)
	if err != nil {
		t.Fatalf("Boolean() error = %v", err)
	}
	checkBounds(t, u, [3]float64{0, 0, 0}, [3]float64{15, 10, 10})
}

func TestIntersectDisjointFails(t *testing.T) {
	k := mustNew(t)
	a := extrude(t, k, geom.PlaneXY(), rect(0, 0, 1, 1), 1, geom.ZAxis)
	b := extrude(t, k, geom.PlaneXY(), rect(5, 5, 6, 6), 1, geom.ZAxis)
	if _, err := k.Boolean(kernel.Intersect, a, b); !errors.Is(err, caderr.ErrKernelFailure) {
		t.Fatalf("Boolean() error = %v, want KERNEL_FAILURE", err)
	}
}

func TestUnsupported(t *testing.T) {
	k := mustNew(t)
	if k.Capabilities().Has(kernel.CapRevolve) {
		t.Fatal("manifold claims revolve support")
	}
	p := kernel.Profile{Plane: geom.PlaneXY(), Outer: rect(1, 0, 2, 1)}
	if _, err := k.Revolve(p, geom.Axis{Direction: geom.YAxis}, math.Pi); !errors.Is(err, caderr.ErrUnsupportedOperation) {
		t.Errorf("Revolve() error = %v, want UNSUPPORTED_OPERATION", err)
	}
}

func TestRelease(t *testing.T) {
	k := mustNew(t)
	s := extrude(t, k, geom.PlaneXY(), rect(0, 0, 1, 1), 1, geom.ZAxis)
	s.(kernel.Releaser).Release()
	if _, err := k.Topology(s); !errors.Is(err, caderr.ErrKernelFailure) {
		t.Fatalf("Topology() after Release = %v, want KERNEL_FAILURE", err)
	}
}

func TestToMesh(t *testing.T) {
	k := mustNew(t)
	box := extrude(t, k, geom.PlaneXY(), rect(0, 0, 10, 10), 10, geom.ZAxis)
	mesh, err := k.ToMesh(box)
	if err != nil {
		t.Fatalf("ToMesh() error = %v", err)
	}
	if mesh.IsEmpty() {
		t.Error("ToMesh() returned empty mesh for a box")
	}

	// Manifold may produce more vertices due to sharp edges requiring
	// separate normals, but a box needs at least 12 triangles.
	if mesh.TriangleCount() < 12 {
		t.Errorf("ToMesh() triangle count = %d, want >= 12", mesh.TriangleCount())
	}
	if len(mesh.Normals) != len(mesh.Vertices) {
		t.Errorf("ToMesh() normals length = %d, vertices length = %d, want equal",
			len(mesh.Normals), len(mesh.Vertices))
	}
}
