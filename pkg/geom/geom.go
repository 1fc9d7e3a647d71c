// Package geom provides the small vector and plane algebra shared by
// sketches, the solver and the kernel backends.
package geom

import (
	"fmt"
	"math"
)

// Epsilon is the length below which a vector is treated as zero.
const Epsilon = 1e-12

// Vec2 is a point or direction in a sketch's local frame.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) Dot(o Vec2) float64   { return v.X*o.X + v.Y*o.Y }
func (v Vec2) Cross(o Vec2) float64 { return v.X*o.Y - v.Y*o.X }
func (v Vec2) Len() float64         { return math.Hypot(v.X, v.Y) }
func (v Vec2) Dist(o Vec2) float64  { return v.Sub(o).Len() }
func (v Vec2) Perp() Vec2           { return Vec2{-v.Y, v.X} }
func (v Vec2) String() string       { return fmt.Sprintf("(%g, %g)", v.X, v.Y) }

// Near reports whether v and o are within tol of each other.
func (v Vec2) Near(o Vec2, tol float64) bool { return v.Dist(o) <= tol }

// Normalize returns the unit vector in the direction of v, or the zero
// vector when v is degenerate.
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l < Epsilon {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Vec3 is a point or direction in world space.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Basis vectors.
var (
	XAxis = Vec3{1, 0, 0}
	YAxis = Vec3{0, 1, 0}
	ZAxis = Vec3{0, 0, 1}
)

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Neg() Vec3            { return Vec3{-v.X, -v.Y, -v.Z} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Len() float64         { return math.Sqrt(v.Dot(v)) }
func (v Vec3) Dist(o Vec3) float64  { return v.Sub(o).Len() }
func (v Vec3) String() string       { return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z) }

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Normalize returns the unit vector in the direction of v, or the zero
// vector when v is degenerate.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < Epsilon {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// IsZero reports whether v is shorter than Epsilon.
func (v Vec3) IsZero() bool { return v.Len() < Epsilon }

// Near reports whether v and o are within tol of each other.
func (v Vec3) Near(o Vec3, tol float64) bool { return v.Dist(o) <= tol }

// Axis is an infinite line in world space, used by revolve.
type Axis struct {
	Origin    Vec3 `json:"origin" yaml:"origin"`
	Direction Vec3 `json:"direction" yaml:"direction"`
}

// Rotate turns p about the axis by angle radians, counter-clockwise when
// looking down the axis direction (Rodrigues' formula).
func (a Axis) Rotate(p Vec3, angle float64) Vec3 {
	k := a.Direction.Normalize()
	v := p.Sub(a.Origin)
	cos, sin := math.Cos(angle), math.Sin(angle)
	r := v.Scale(cos).Add(k.Cross(v).Scale(sin)).Add(k.Scale(k.Dot(v) * (1 - cos)))
	return a.Origin.Add(r)
}

// Project returns the foot of the perpendicular from p to the axis.
func (a Axis) Project(p Vec3) Vec3 {
	k := a.Direction.Normalize()
	return a.Origin.Add(k.Scale(p.Sub(a.Origin).Dot(k)))
}

// Plane is an orthonormal frame mapping a sketch's local 2D coordinates
// into world space. YDir is derived as Normal × XDir.
type Plane struct {
	Origin Vec3 `json:"origin" yaml:"origin"`
	Normal Vec3 `json:"normal" yaml:"normal"`
	XDir   Vec3 `json:"xDir" yaml:"xDir"`
}

// PlaneXY returns the world XY plane (normal +Z).
func PlaneXY() Plane { return Plane{Normal: ZAxis, XDir: XAxis} }

// PlaneXZ returns the world XZ plane (normal -Y, so local y maps to +Z).
func PlaneXZ() Plane { return Plane{Normal: YAxis.Neg(), XDir: XAxis} }

// PlaneYZ returns the world YZ plane (normal +X).
func PlaneYZ() Plane { return Plane{Normal: XAxis, XDir: YAxis} }

// NewPlane builds an orthonormal plane through origin with the given
// normal. xHint is projected into the plane to become the local x axis;
// when it is parallel to the normal a stable fallback is chosen.
func NewPlane(origin, normal, xHint Vec3) (Plane, error) {
	n := normal.Normalize()
	if n.IsZero() {
		return Plane{}, fmt.Errorf("plane normal %v is degenerate", normal)
	}
	x := xHint.Sub(n.Scale(xHint.Dot(n))).Normalize()
	if x.IsZero() {
		x = fallbackXDir(n)
	}
	return Plane{Origin: origin, Normal: n, XDir: x}, nil
}

// fallbackXDir picks the world axis least aligned with n and projects it
// into the plane.
func fallbackXDir(n Vec3) Vec3 {
	candidates := []Vec3{XAxis, YAxis, ZAxis}
	best := candidates[0]
	bestDot := math.Inf(1)
	for _, c := range candidates {
		if d := math.Abs(c.Dot(n)); d < bestDot {
			best, bestDot = c, d
		}
	}
	return best.Sub(n.Scale(best.Dot(n))).Normalize()
}

// YDir returns the local y axis in world space.
func (p Plane) YDir() Vec3 { return p.Normal.Cross(p.XDir) }

// ToWorld maps a local point onto the plane in world space.
func (p Plane) ToWorld(v Vec2) Vec3 {
	return p.Origin.Add(p.XDir.Scale(v.X)).Add(p.YDir().Scale(v.Y))
}

// ToLocal projects a world point onto the plane's local frame.
func (p Plane) ToLocal(w Vec3) Vec2 {
	d := w.Sub(p.Origin)
	return Vec2{d.Dot(p.XDir), d.Dot(p.YDir())}
}

// DirToLocal projects a world direction into the plane's local frame.
func (p Plane) DirToLocal(w Vec3) Vec2 {
	return Vec2{w.Dot(p.XDir), w.Dot(p.YDir())}
}

// Offset returns the plane translated by d along its normal.
func (p Plane) Offset(d float64) Plane {
	p.Origin = p.Origin.Add(p.Normal.Scale(d))
	return p
}

// Validate checks the frame is orthonormal within tol.
func (p Plane) Validate(tol float64) error {
	if math.Abs(p.Normal.Len()-1) > tol || math.Abs(p.XDir.Len()-1) > tol {
		return fmt.Errorf("plane axes are not unit length")
	}
	if math.Abs(p.Normal.Dot(p.XDir)) > tol {
		return fmt.Errorf("plane x direction is not perpendicular to its normal")
	}
	return nil
}

// PolygonArea returns the signed area of a closed polygon (positive for
// counter-clockwise winding).
func PolygonArea(pts []Vec2) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].Cross(pts[j])
	}
	return a / 2
}

// PolygonCentroid returns the area centroid of a simple polygon. Degenerate
// polygons fall back to the vertex average.
func PolygonCentroid(pts []Vec2) Vec2 {
	area := PolygonArea(pts)
	if math.Abs(area) < Epsilon {
		var sum Vec2
		for _, p := range pts {
			sum = sum.Add(p)
		}
		if len(pts) == 0 {
			return sum
		}
		return sum.Scale(1 / float64(len(pts)))
	}
	var cx, cy float64
	for i := range pts {
		j := (i + 1) % len(pts)
		c := pts[i].Cross(pts[j])
		cx += (pts[i].X + pts[j].X) * c
		cy += (pts[i].Y + pts[j].Y) * c
	}
	return Vec2{cx / (6 * area), cy / (6 * area)}
}

// PointInPolygon reports whether p lies inside the closed polygon using
// the even-odd rule.
func PointInPolygon(p Vec2, poly []Vec2) bool {
	inside := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}
