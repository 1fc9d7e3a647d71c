// Package kernel defines the abstract geometry kernel interface.
// Implementations (nop, sdfx, manifold) provide solid construction and
// boolean operations behind this interface. The rebuild engine consults
// Capabilities before every call and never branches on which backend is
// active.
package kernel

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
)

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Releaser is implemented by solids holding resources outside the Go
// heap. The owner calls Release when the solid is replaced.
type Releaser interface {
	Release()
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Name identifies the backend in logs and persisted documents.
	Name() string

	// Capabilities reports which operations the backend implements.
	Capabilities() Capabilities

	// Extrude sweeps a planar profile by distance along direction.
	Extrude(p Profile, distance float64, direction geom.Vec3) (Solid, error)

	// Revolve sweeps a planar profile about an axis lying in its plane.
	Revolve(p Profile, axis geom.Axis, angle float64) (Solid, error)

	// Boolean combines a and b.
	Boolean(op BooleanOp, a, b Solid) (Solid, error)

	// Fillet rounds the edges with the given topology indices.
	Fillet(s Solid, edges []int, radius float64) (Solid, error)

	// Chamfer bevels the edges with the given topology indices.
	Chamfer(s Solid, edges []int, distance float64) (Solid, error)

	// Topology enumerates the faces and edges of a solid.
	Topology(s Solid) (Topology, error)

	// ToMesh tessellates a solid for display or export.
	ToMesh(s Solid) (*Mesh, error)
}

// ---------------------------------------------------------------------------
// Capabilities
// ---------------------------------------------------------------------------

// Capabilities is a set of supported operations.
type Capabilities uint32

const (
	CapExtrude Capabilities = 1 << iota
	CapRevolve
	CapBoolean
	CapFillet
	CapChamfer
	CapMesh

	// CapAll is every capability.
	CapAll = CapExtrude | CapRevolve | CapBoolean | CapFillet | CapChamfer | CapMesh
)

var capNames = []struct {
	c    Capabilities
	name string
}{
	{CapExtrude, "extrude"},
	{CapRevolve, "revolve"},
	{CapBoolean, "boolean"},
	{CapFillet, "fillet"},
	{CapChamfer, "chamfer"},
	{CapMesh, "mesh"},
}

// Has reports whether every capability in want is present.
func (c Capabilities) Has(want Capabilities) bool { return c&want == want }

// Missing returns the capabilities in want that c lacks.
func (c Capabilities) Missing(want Capabilities) Capabilities { return want &^ c }

func (c Capabilities) String() string {
	var names []string
	for _, n := range capNames {
		if c&n.c != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Unsupported returns the error a backend reports for an operation it
// does not implement.
func Unsupported(backend string, c Capabilities) error {
	return caderr.New(caderr.UnsupportedOperation, backend, "%s is not supported", c)
}

// ---------------------------------------------------------------------------
// Boolean operations
// ---------------------------------------------------------------------------

// BooleanOp selects a boolean combination.
type BooleanOp int

const (
	Union BooleanOp = iota
	Subtract
	Intersect
)

func (op BooleanOp) String() string {
	switch op {
	case Union:
		return "union"
	case Subtract:
		return "subtract"
	case Intersect:
		return "intersect"
	}
	return fmt.Sprintf("BooleanOp(%d)", int(op))
}

// ParseBooleanOp converts a name produced by String back to an op.
func ParseBooleanOp(s string) (BooleanOp, error) {
	switch s {
	case "union":
		return Union, nil
	case "subtract":
		return Subtract, nil
	case "intersect":
		return Intersect, nil
	}
	return 0, fmt.Errorf("unknown boolean op %q", s)
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

// Profile is a closed planar region: an outer loop and optional holes,
// all counter-clockwise in the plane's local frame.
type Profile struct {
	Plane geom.Plane
	Outer []geom.Vec2
	Holes [][]geom.Vec2
}

// Area returns the outer area minus the hole areas.
func (p Profile) Area() float64 {
	a := math.Abs(geom.PolygonArea(p.Outer))
	for _, h := range p.Holes {
		a -= math.Abs(geom.PolygonArea(h))
	}
	return a
}

// Centroid returns the area centroid in local coordinates.
func (p Profile) Centroid() geom.Vec2 {
	ao := math.Abs(geom.PolygonArea(p.Outer))
	c := geom.PolygonCentroid(p.Outer).Scale(ao)
	total := ao
	for _, h := range p.Holes {
		ah := math.Abs(geom.PolygonArea(h))
		c = c.Sub(geom.PolygonCentroid(h).Scale(ah))
		total -= ah
	}
	if total < geom.Epsilon {
		return geom.PolygonCentroid(p.Outer)
	}
	return c.Scale(1 / total)
}

// Validate rejects profiles no backend can build from.
func (p Profile) Validate(op string) error {
	if len(p.Outer) < 3 {
		return caderr.New(caderr.KernelFailure, op, "profile has %d vertices", len(p.Outer))
	}
	if p.Area() < geom.Epsilon {
		return caderr.New(caderr.KernelFailure, op, "profile has zero area")
	}
	return nil
}

// Loops returns the outer loop followed by the holes.
func (p Profile) Loops() [][]geom.Vec2 {
	return append([][]geom.Vec2{p.Outer}, p.Holes...)
}

// ValidateExtrude checks the common extrude preconditions.
func ValidateExtrude(p Profile, distance float64, direction geom.Vec3) error {
	if err := p.Validate("Extrude"); err != nil {
		return err
	}
	if distance <= 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return caderr.New(caderr.KernelFailure, "Extrude", "distance %g must be positive", distance)
	}
	if direction.IsZero() {
		return caderr.New(caderr.KernelFailure, "Extrude", "direction is zero")
	}
	if math.Abs(direction.Normalize().Dot(p.Plane.Normal)) < 1e-9 {
		return caderr.New(caderr.KernelFailure, "Extrude", "direction lies in the profile plane")
	}
	return nil
}

// ValidateRevolve checks the common revolve preconditions: the axis lies
// in the profile plane and the profile stays on one side of it.
func ValidateRevolve(p Profile, axis geom.Axis, angle float64) error {
	if err := p.Validate("Revolve"); err != nil {
		return err
	}
	if angle <= 0 || angle > 2*math.Pi+1e-9 {
		return caderr.New(caderr.KernelFailure, "Revolve", "angle %g must be in (0, 2π]", angle)
	}
	dir := axis.Direction.Normalize()
	if dir.IsZero() {
		return caderr.New(caderr.KernelFailure, "Revolve", "axis direction is zero")
	}
	const planar = 1e-9
	if math.Abs(dir.Dot(p.Plane.Normal)) > planar ||
		math.Abs(axis.Origin.Sub(p.Plane.Origin).Dot(p.Plane.Normal)) > 1e-6 {
		return caderr.New(caderr.KernelFailure, "Revolve", "axis does not lie in the profile plane")
	}

	origin := p.Plane.ToLocal(axis.Origin)
	d := p.Plane.DirToLocal(dir).Normalize()
	var pos, neg bool
	for _, loop := range p.Loops() {
		for _, v := range loop {
			side := d.Cross(v.Sub(origin))
			if side > 1e-9 {
				pos = true
			} else if side < -1e-9 {
				neg = true
			}
		}
	}
	if pos && neg {
		return caderr.New(caderr.KernelFailure, "Revolve", "profile crosses the axis")
	}
	return nil
}
