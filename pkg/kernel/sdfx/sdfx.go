// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
//
// Signed distance fields carry no boundary representation, so each solid
// also carries the analytic topology of the sweeps that built it. Boolean
// results keep only the elements whose centroids still lie on the
// combined surface.
package sdfx

import (
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/kernel"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// Name is the backend name recorded in documents.
const Name = "sdfx"

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 200

// parallelTol is how far from ±1 the dot product of an extrude direction
// and the profile normal may stray.
const parallelTol = 1e-9

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s    sdf.SDF3
	topo kernel.Topology
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	cells int
}

// Option configures an SdfxKernel.
type Option func(*SdfxKernel)

// WithMeshCells sets the marching cubes resolution along the longest
// bounding box axis.
func WithMeshCells(n int) Option {
	return func(k *SdfxKernel) {
		if n > 0 {
			k.cells = n
		}
	}
}

// New returns a new SdfxKernel.
func New(opts ...Option) *SdfxKernel {
	k := &SdfxKernel{cells: defaultMeshCells}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Name implements kernel.Kernel.
func (k *SdfxKernel) Name() string { return Name }

// Capabilities implements kernel.Kernel. Fillet and chamfer have no SDF
// equivalent that preserves edge identity.
func (k *SdfxKernel) Capabilities() kernel.Capabilities {
	return kernel.CapExtrude | kernel.CapRevolve | kernel.CapBoolean | kernel.CapMesh
}

// unwrap extracts the underlying solid, rejecting handles from other
// backends.
func unwrap(op string, s kernel.Solid) (*sdfxSolid, error) {
	ss, ok := s.(*sdfxSolid)
	if !ok || ss == nil {
		return nil, caderr.New(caderr.KernelFailure, op, "solid %T was not built by sdfx", s)
	}
	return ss, nil
}

// profile2D converts a profile's loops into a 2D SDF using the mapping
// to place each vertex.
func profile2D(op string, p kernel.Profile, mapping func(geom.Vec2) v2.Vec) (sdf.SDF2, error) {
	toVecs := func(loop []geom.Vec2) []v2.Vec {
		out := make([]v2.Vec, len(loop))
		for i, v := range loop {
			out[i] = mapping(v)
		}
		return out
	}
	s, err := sdf.Polygon2D(toVecs(p.Outer))
	if err != nil {
		return nil, caderr.Wrap(caderr.KernelFailure, op, err)
	}
	for _, h := range p.Holes {
		hole, err := sdf.Polygon2D(toVecs(h))
		if err != nil {
			return nil, caderr.Wrap(caderr.KernelFailure, op, err)
		}
		s = sdf.Difference2D(s, hole)
	}
	return s, nil
}

// Extrude implements kernel.Kernel. Only extrusions parallel to the
// profile normal can be expressed as an sdfx prism.
func (k *SdfxKernel) Extrude(p kernel.Profile, distance float64, direction geom.Vec3) (kernel.Solid, error) {
	if err := kernel.ValidateExtrude(p, distance, direction); err != nil {
		return nil, err
	}
	dir := direction.Normalize()
	along := dir.Dot(p.Plane.Normal)
	if math.Abs(math.Abs(along)-1) > parallelTol {
		return nil, caderr.New(caderr.UnsupportedOperation, "Extrude",
			"sdfx can only extrude along the sketch normal, got direction %v", direction)
	}

	s2, err := profile2D("Extrude", p, func(v geom.Vec2) v2.Vec { return v2.Vec{X: v.X, Y: v.Y} })
	if err != nil {
		return nil, err
	}
	// Extrude3D is centered on z=0; shift so the prism starts on the plane.
	shift := distance / 2
	if along < 0 {
		shift = -shift
	}
	prism := sdf.Extrude3D(s2, distance)
	m := frame(p.Plane.Origin, p.Plane.XDir, p.Plane.YDir(), p.Plane.Normal).
		Mul(sdf.Translate3d(v3.Vec{Z: shift}))

	return &sdfxSolid{
		s:    sdf.Transform3D(prism, m),
		topo: kernel.ExtrudeTopology(p, distance, dir),
	}, nil
}

// Revolve implements kernel.Kernel. The profile is re-expressed in
// (radius, height) coordinates about the axis and swept with sdfx's
// revolve, which turns about its own Z axis starting at +X.
func (k *SdfxKernel) Revolve(p kernel.Profile, axis geom.Axis, angle float64) (kernel.Solid, error) {
	if err := kernel.ValidateRevolve(p, axis, angle); err != nil {
		return nil, err
	}
	a := axis.Direction.Normalize()
	u := p.Plane.Normal.Cross(a).Normalize()
	// Point u at the side of the axis the profile lies on.
	c := p.Plane.ToWorld(p.Centroid())
	if c.Sub(axis.Origin).Dot(u) < 0 {
		u = u.Neg()
	}

	s2, err := profile2D("Revolve", p, func(v geom.Vec2) v2.Vec {
		w := p.Plane.ToWorld(v).Sub(axis.Origin)
		return v2.Vec{X: w.Dot(u), Y: w.Dot(a)}
	})
	if err != nil {
		return nil, err
	}

	var s3 sdf.SDF3
	if angle >= 2*math.Pi-1e-9 {
		s3, err = sdf.Revolve3D(s2)
	} else {
		s3, err = sdf.RevolveTheta3D(s2, angle)
	}
	if err != nil {
		return nil, caderr.Wrap(caderr.KernelFailure, "Revolve", err)
	}

	m := frame(axis.Origin, u, a.Cross(u), a)
	return &sdfxSolid{
		s:    sdf.Transform3D(s3, m),
		topo: kernel.RevolveTopology(p, axis, angle),
	}, nil
}

// Boolean implements kernel.Kernel.
func (k *SdfxKernel) Boolean(op kernel.BooleanOp, a, b kernel.Solid) (kernel.Solid, error) {
	sa, err := unwrap("Boolean", a)
	if err != nil {
		return nil, err
	}
	sb, err := unwrap("Boolean", b)
	if err != nil {
		return nil, err
	}

	var s sdf.SDF3
	switch op {
	case kernel.Union:
		s = sdf.Union3D(sa.s, sb.s)
	case kernel.Subtract:
		s = sdf.Difference3D(sa.s, sb.s)
	case kernel.Intersect:
		s = sdf.Intersect3D(sa.s, sb.s)
	default:
		return nil, caderr.New(caderr.KernelFailure, "Boolean", "unknown boolean op %v", op)
	}

	tol := surfaceTol(s)
	topo := kernel.Filter(kernel.Concat(sa.topo, sb.topo), func(e kernel.Element) bool {
		c := e.Centroid
		return math.Abs(s.Evaluate(v3.Vec{X: c.X, Y: c.Y, Z: c.Z})) <= tol
	})
	if len(topo.Faces) == 0 {
		return nil, caderr.New(caderr.KernelFailure, "Boolean", "%s produced an empty solid", op)
	}
	return &sdfxSolid{s: s, topo: topo}, nil
}

// Fillet implements kernel.Kernel.
func (k *SdfxKernel) Fillet(kernel.Solid, []int, float64) (kernel.Solid, error) {
	return nil, kernel.Unsupported(Name, kernel.CapFillet)
}

// Chamfer implements kernel.Kernel.
func (k *SdfxKernel) Chamfer(kernel.Solid, []int, float64) (kernel.Solid, error) {
	return nil, kernel.Unsupported(Name, kernel.CapChamfer)
}

// Topology implements kernel.Kernel.
func (k *SdfxKernel) Topology(s kernel.Solid) (kernel.Topology, error) {
	ss, err := unwrap("Topology", s)
	if err != nil {
		return kernel.Topology{}, err
	}
	return ss.topo, nil
}

// ToMesh converts a solid to a triangle mesh using marching cubes.
func (k *SdfxKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	ss, err := unwrap("ToMesh", s)
	if err != nil {
		return nil, err
	}

	renderer := render.NewMarchingCubesUniform(k.cells)
	triangles := render.ToTriangles(ss.s, renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		// Compute face normal.
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}

// surfaceTol scales the on-surface test to the size of the solid.
func surfaceTol(s sdf.SDF3) float64 {
	bb := s.BoundingBox()
	size := bb.Max.Sub(bb.Min)
	return 1e-6 * math.Max(1, math.Max(size.X, math.Max(size.Y, size.Z)))
}

// frame returns the transform taking sdfx's local axes onto the
// orthonormal basis (x, y, z) placed at origin. sdfx only exposes
// rotations about the principal axes, so the basis is decomposed into
// Z-Y-X Euler angles.
func frame(origin, x, y, z geom.Vec3) sdf.M44 {
	// Rotation matrix columns are x, y, z.
	r00, r10, r20 := x.X, x.Y, x.Z
	r01, r11, r21 := y.X, y.Y, y.Z
	r22 := z.Z

	var rx, ry, rz float64
	ry = math.Asin(math.Max(-1, math.Min(1, -r20)))
	if math.Abs(math.Cos(ry)) > 1e-9 {
		rx = math.Atan2(r21, r22)
		rz = math.Atan2(r10, r00)
	} else {
		// Gimbal lock: fold the X rotation into Z.
		rx = 0
		rz = math.Atan2(-r01, r11)
	}

	return sdf.Translate3d(v3.Vec{X: origin.X, Y: origin.Y, Z: origin.Z}).
		Mul(sdf.RotateZ(rz)).
		Mul(sdf.RotateY(ry)).
		Mul(sdf.RotateX(rx))
}
