//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold provides
// guaranteed-manifold mesh boolean operations.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
//
// Revolve, fillet and chamfer are not exposed. Topology is the analytic
// topology of the extrusions that built a solid, filtered to the result's
// bounding box after booleans.
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/kernel"
)

// Compile-time interface checks.
var (
	_ kernel.Kernel   = (*ManifoldKernel)(nil)
	_ kernel.Solid    = (*manifoldSolid)(nil)
	_ kernel.Releaser = (*manifoldSolid)(nil)
)

// manifoldSolid wraps a C ManifoldManifold pointer and implements kernel.Solid.
type manifoldSolid struct {
	ptr  *C.ManifoldManifold
	topo kernel.Topology
}

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *manifoldSolid) BoundingBox() (min, max [3]float64) {
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	min[0] = float64(C.manifold_box_min_x(bbox))
	min[1] = float64(C.manifold_box_min_y(bbox))
	min[2] = float64(C.manifold_box_min_z(bbox))
	max[0] = float64(C.manifold_box_max_x(bbox))
	max[1] = float64(C.manifold_box_max_y(bbox))
	max[2] = float64(C.manifold_box_max_z(bbox))
	return min, max
}

// Release frees the C manifold immediately instead of waiting for the
// finalizer.
func (s *manifoldSolid) Release() {
	if s.ptr != nil {
		C.manifold_delete_manifold(s.ptr)
		s.ptr = nil
	}
	runtime.SetFinalizer(s, nil)
}

// newSolid wraps a C ManifoldManifold pointer with Go-side finalizer
// for automatic memory management.
func newSolid(ptr *C.ManifoldManifold, topo kernel.Topology) *manifoldSolid {
	s := &manifoldSolid{ptr: ptr, topo: topo}
	runtime.SetFinalizer(s, func(s *manifoldSolid) {
		if s.ptr != nil {
			C.manifold_delete_manifold(s.ptr)
			s.ptr = nil
		}
	})
	return s
}

// ManifoldKernel implements kernel.Kernel using the Manifold C library.
type ManifoldKernel struct{}

// New creates a new ManifoldKernel. Returns an error if the Manifold
// C library cannot be initialized.
func New() (kernel.Kernel, error) {
	return &ManifoldKernel{}, nil
}

// Name implements kernel.Kernel.
func (k *ManifoldKernel) Name() string { return Name }

// Capabilities implements kernel.Kernel.
func (k *ManifoldKernel) Capabilities() kernel.Capabilities {
	return kernel.CapExtrude | kernel.CapBoolean | kernel.CapMesh
}

func unwrap(op string, s kernel.Solid) (*manifoldSolid, error) {
	ms, ok := s.(*manifoldSolid)
	if !ok || ms == nil || ms.ptr == nil {
		return nil, caderr.New(caderr.KernelFailure, op, "solid %T is not a live manifold solid", s)
	}
	return ms, nil
}

// simplePolygon copies a loop into a C simple polygon.
func simplePolygon(loop []geom.Vec2, reverse bool) *C.ManifoldSimplePolygon {
	n := len(loop)
	size := C.size_t(n) * C.size_t(unsafe.Sizeof(C.ManifoldVec2{}))
	buf := C.malloc(size)
	defer C.free(buf)
	pts := unsafe.Slice((*C.ManifoldVec2)(buf), n)
	for i, v := range loop {
		if reverse {
			v = loop[n-1-i]
		}
		pts[i] = C.ManifoldVec2{x: C.double(v.X), y: C.double(v.Y)}
	}
	return C.manifold_simple_polygon(C.manifold_alloc_simple_polygon(), &pts[0], C.size_t(n))
}

// Extrude implements kernel.Kernel. Manifold extrudes along +Z from the
// XY plane; the result is then placed on the sketch plane.
func (k *ManifoldKernel) Extrude(p kernel.Profile, distance float64, direction geom.Vec3) (kernel.Solid, error) {
	if err := kernel.ValidateExtrude(p, distance, direction); err != nil {
		return nil, err
	}
	dir := direction.Normalize()
	along := dir.Dot(p.Plane.Normal)
	if along < 1e-9 && along > -1e-9 {
		return nil, caderr.New(caderr.KernelFailure, "Extrude", "direction lies in the profile plane")
	}

	// Holes are wound clockwise for manifold's positive fill rule.
	loops := make([]*C.ManifoldSimplePolygon, 0, 1+len(p.Holes))
	loops = append(loops, simplePolygon(p.Outer, false))
	for _, h := range p.Holes {
		loops = append(loops, simplePolygon(h, true))
	}
	defer func() {
		for _, l := range loops {
			C.manifold_delete_simple_polygon(l)
		}
	}()
	polys := C.manifold_polygons(C.manifold_alloc_polygons(), &loops[0], C.size_t(len(loops)))
	defer C.manifold_delete_polygons(polys)

	// Height along the normal; an oblique sweep becomes a shear in the
	// placement transform.
	height := distance * along
	prism := C.manifold_extrude(C.manifold_alloc_manifold(), polys,
		C.double(abs(height)), C.int(0), C.double(0), C.double(1), C.double(1))
	defer C.manifold_delete_manifold(prism)

	// Local z in [0, |h|] maps to origin + z/|h| * sweep.
	sweep := dir.Scale(distance)
	zcol := sweep.Scale(1 / abs(height))
	x, y, o := p.Plane.XDir, p.Plane.YDir(), p.Plane.Origin
	ptr := C.manifold_transform(C.manifold_alloc_manifold(), prism,
		C.double(x.X), C.double(x.Y), C.double(x.Z),
		C.double(y.X), C.double(y.Y), C.double(y.Z),
		C.double(zcol.X), C.double(zcol.Y), C.double(zcol.Z),
		C.double(o.X), C.double(o.Y), C.double(o.Z),
	)
	if C.manifold_is_empty(ptr) != 0 {
		C.manifold_delete_manifold(ptr)
		return nil, caderr.New(caderr.KernelFailure, "Extrude", "manifold produced an empty solid")
	}
	return newSolid(ptr, kernel.ExtrudeTopology(p, distance, dir)), nil
}

// Revolve implements kernel.Kernel.
func (k *ManifoldKernel) Revolve(kernel.Profile, geom.Axis, float64) (kernel.Solid, error) {
	return nil, kernel.Unsupported(Name, kernel.CapRevolve)
}

// Boolean implements kernel.Kernel.
func (k *ManifoldKernel) Boolean(op kernel.BooleanOp, a, b kernel.Solid) (kernel.Solid, error) {
	sa, err := unwrap("Boolean", a)
	if err != nil {
		return nil, err
	}
	sb, err := unwrap("Boolean", b)
	if err != nil {
		return nil, err
	}

	alloc := C.manifold_alloc_manifold()
	var ptr *C.ManifoldManifold
	switch op {
	case kernel.Union:
		ptr = C.manifold_union(alloc, sa.ptr, sb.ptr)
	case kernel.Subtract:
		ptr = C.manifold_difference(alloc, sa.ptr, sb.ptr)
	case kernel.Intersect:
		ptr = C.manifold_intersection(alloc, sa.ptr, sb.ptr)
	default:
		C.free(alloc)
		return nil, caderr.New(caderr.KernelFailure, "Boolean", "unknown boolean op %v", op)
	}
	if C.manifold_is_empty(ptr) != 0 {
		C.manifold_delete_manifold(ptr)
		return nil, caderr.New(caderr.KernelFailure, "Boolean", "%s produced an empty solid", op)
	}

	out := newSolid(ptr, kernel.Topology{})
	min, max := out.BoundingBox()
	out.topo = kernel.Filter(kernel.Concat(sa.topo, sb.topo), func(e kernel.Element) bool {
		c := [3]float64{e.Centroid.X, e.Centroid.Y, e.Centroid.Z}
		for i := range c {
			if c[i] < min[i]-1e-6 || c[i] > max[i]+1e-6 {
				return false
			}
		}
		return true
	})
	return out, nil
}

// Fillet implements kernel.Kernel.
func (k *ManifoldKernel) Fillet(kernel.Solid, []int, float64) (kernel.Solid, error) {
	return nil, kernel.Unsupported(Name, kernel.CapFillet)
}

// Chamfer implements kernel.Kernel.
func (k *ManifoldKernel) Chamfer(kernel.Solid, []int, float64) (kernel.Solid, error) {
	return nil, kernel.Unsupported(Name, kernel.CapChamfer)
}

// Topology implements kernel.Kernel.
func (k *ManifoldKernel) Topology(s kernel.Solid) (kernel.Topology, error) {
	ms, err := unwrap("Topology", s)
	if err != nil {
		return kernel.Topology{}, err
	}
	return ms.topo, nil
}

// ToMesh extracts a triangle mesh from the solid using Manifold's MeshGL
// format. Vertex positions and normals are interleaved in MeshGL; this
// method separates them into the kernel.Mesh flat-array layout.
func (k *ManifoldKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	ms, err := unwrap("ToMesh", s)
	if err != nil {
		return nil, err
	}

	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_get_meshgl(meshAlloc, ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))

	if numVert == 0 || numTri == 0 {
		return &kernel.Mesh{}, nil
	}

	// The first 3 properties are always position; normals, when present,
	// follow at 3, 4, 5.
	numProp := int(C.manifold_meshgl_num_prop(meshGL))

	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)

	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&indices[0])),
		meshGL,
	)

	vertices := make([]float32, numVert*3)
	var normals []float32
	hasNormals := numProp >= 6
	if hasNormals {
		normals = make([]float32, numVert*3)
	}

	for i := 0; i < numVert; i++ {
		base := i * numProp
		vertices[i*3+0] = propData[base+0]
		vertices[i*3+1] = propData[base+1]
		vertices[i*3+2] = propData[base+2]
		if hasNormals {
			normals[i*3+0] = propData[base+3]
			normals[i*3+1] = propData[base+4]
			normals[i*3+2] = propData[base+5]
		}
	}

	if !hasNormals {
		normals = kernel.VertexNormals(vertices, indices)
	}

	mesh := &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}

	if mesh.VertexCount() != numVert {
		return nil, fmt.Errorf("manifold: vertex count mismatch: got %d, expected %d",
			mesh.VertexCount(), numVert)
	}

	return mesh, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
