package kernel

import (
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/geom"
)

// ElementKind distinguishes faces from edges.
type ElementKind int

const (
	Face ElementKind = iota
	Edge
)

func (k ElementKind) String() string {
	switch k {
	case Face:
		return "face"
	case Edge:
		return "edge"
	}
	return fmt.Sprintf("ElementKind(%d)", int(k))
}

// ParseElementKind converts "face" or "edge" to a kind.
func ParseElementKind(s string) (ElementKind, error) {
	switch s {
	case "face":
		return Face, nil
	case "edge":
		return Edge, nil
	}
	return 0, fmt.Errorf("unknown element kind %q", s)
}

// Element is one face or edge as reported by a kernel. Index is the
// kernel-native position and is only meaningful for the build that
// produced it; stable naming happens above the kernel.
type Element struct {
	Kind     ElementKind `json:"kind"`
	Index    int         `json:"index"`
	Centroid geom.Vec3   `json:"centroid"`
	// Measure is the area of a face or the length of an edge.
	Measure float64 `json:"measure"`
	// Normal is the outward normal of a face or the direction of an edge.
	Normal geom.Vec3 `json:"normal"`
	// Tag is a construction hint such as "start" or "end" for the caps of
	// a sweep. Empty when the kernel has nothing to say.
	Tag string `json:"tag,omitempty"`
}

// Topology is the face and edge enumeration of a solid.
type Topology struct {
	Faces []Element `json:"faces"`
	Edges []Element `json:"edges"`
}

// Elements returns the faces or edges.
func (t Topology) Elements(kind ElementKind) []Element {
	if kind == Edge {
		return t.Edges
	}
	return t.Faces
}

// Lookup returns the element of the given kind at index.
func (t Topology) Lookup(kind ElementKind, index int) (Element, bool) {
	els := t.Elements(kind)
	if index < 0 || index >= len(els) {
		return Element{}, false
	}
	return els[index], true
}

// Concat appends b's elements after a's and renumbers. Tags from a are
// cleared so only the most recent sweep keeps its cap hints.
func Concat(a, b Topology) Topology {
	var out Topology
	for _, f := range a.Faces {
		f.Tag = ""
		out.add(f)
	}
	for _, f := range b.Faces {
		out.add(f)
	}
	for _, e := range a.Edges {
		e.Tag = ""
		out.add(e)
	}
	for _, e := range b.Edges {
		out.add(e)
	}
	return out
}

// Filter keeps the elements for which keep returns true and renumbers.
func Filter(t Topology, keep func(Element) bool) Topology {
	var out Topology
	for _, f := range t.Faces {
		if keep(f) {
			out.add(f)
		}
	}
	for _, e := range t.Edges {
		if keep(e) {
			out.add(e)
		}
	}
	return out
}

func (t *Topology) add(e Element) {
	if e.Kind == Edge {
		e.Index = len(t.Edges)
		t.Edges = append(t.Edges, e)
		return
	}
	e.Index = len(t.Faces)
	t.Faces = append(t.Faces, e)
}

// ExtrudeTopology enumerates the faces and edges of a prism swept from p
// by distance along direction. Faces come in the order start cap, end
// cap, then one side face per profile segment; edges are the start loop,
// the end loop, then the lateral edges at each vertex.
func ExtrudeTopology(p Profile, distance float64, direction geom.Vec3) Topology {
	dir := direction.Normalize()
	sweep := dir.Scale(distance)
	plane := p.Plane
	var t Topology

	area := p.Area()
	start := plane.ToWorld(p.Centroid())
	t.add(Element{Kind: Face, Centroid: start, Measure: area, Normal: dir.Neg(), Tag: "start"})
	t.add(Element{Kind: Face, Centroid: start.Add(sweep), Measure: area, Normal: dir, Tag: "end"})

	loops := p.Loops()
	for li, loop := range loops {
		for i := range loop {
			a := plane.ToWorld(loop[i])
			b := plane.ToWorld(loop[(i+1)%len(loop)])
			seg := b.Sub(a)
			n := seg.Cross(plane.Normal).Normalize()
			if li > 0 {
				// Hole walls face into the hole.
				n = n.Neg()
			}
			t.add(Element{
				Kind:     Face,
				Centroid: a.Add(b).Scale(0.5).Add(sweep.Scale(0.5)),
				Measure:  seg.Cross(sweep).Len(),
				Normal:   n,
			})
		}
	}

	for _, offset := range []geom.Vec3{{}, sweep} {
		for _, loop := range loops {
			for i := range loop {
				a := plane.ToWorld(loop[i]).Add(offset)
				b := plane.ToWorld(loop[(i+1)%len(loop)]).Add(offset)
				t.add(Element{
					Kind:     Edge,
					Centroid: a.Add(b).Scale(0.5),
					Measure:  a.Dist(b),
					Normal:   b.Sub(a).Normalize(),
				})
			}
		}
	}
	for _, loop := range loops {
		for _, v := range loop {
			a := plane.ToWorld(v)
			t.add(Element{
				Kind:     Edge,
				Centroid: a.Add(sweep.Scale(0.5)),
				Measure:  distance,
				Normal:   dir,
			})
		}
	}
	return t
}

// RevolveTopology enumerates the faces and edges of p revolved about axis
// by angle. Each profile segment sweeps a face of revolution and each
// off-axis vertex sweeps a circular edge. Partial revolutions add planar
// start and end caps together with their boundary edges.
func RevolveTopology(p Profile, axis geom.Axis, angle float64) Topology {
	plane := p.Plane
	full := angle >= 2*math.Pi-1e-9
	loops := p.Loops()
	var t Topology

	// sweepCentroid places the centroid of the arc traced by w.
	sweepCentroid := func(w geom.Vec3) (geom.Vec3, float64) {
		foot := axis.Project(w)
		r := w.Dist(foot)
		half := angle / 2
		mid := axis.Rotate(w, half)
		if r < geom.Epsilon {
			return foot, 0
		}
		factor := math.Sin(half) / half
		return foot.Add(mid.Sub(foot).Scale(factor)), r
	}

	if !full {
		start := plane.ToWorld(p.Centroid())
		tangent := axis.Direction.Normalize().Cross(start.Sub(axis.Project(start))).Normalize()
		t.add(Element{Kind: Face, Centroid: start, Measure: p.Area(), Normal: tangent.Neg(), Tag: "start"})
		end := axis.Rotate(start, angle)
		endNormal := axis.Rotate(axis.Origin.Add(tangent), angle).Sub(axis.Origin)
		t.add(Element{Kind: Face, Centroid: end, Measure: p.Area(), Normal: endNormal, Tag: "end"})
	}

	for li, loop := range loops {
		for i := range loop {
			a := plane.ToWorld(loop[i])
			b := plane.ToWorld(loop[(i+1)%len(loop)])
			mid := a.Add(b).Scale(0.5)
			c, r := sweepCentroid(mid)
			n := b.Sub(a).Cross(plane.Normal).Normalize()
			if li > 0 {
				n = n.Neg()
			}
			t.add(Element{
				Kind:     Face,
				Centroid: c,
				Measure:  angle * r * a.Dist(b),
				Normal:   axis.Rotate(axis.Origin.Add(n), angle/2).Sub(axis.Origin),
			})
		}
	}

	for _, loop := range loops {
		for _, v := range loop {
			w := plane.ToWorld(v)
			c, r := sweepCentroid(w)
			if r < 1e-9 {
				continue
			}
			tangent := axis.Direction.Normalize().Cross(w.Sub(axis.Project(w))).Normalize()
			t.add(Element{
				Kind:     Edge,
				Centroid: c,
				Measure:  angle * r,
				Normal:   axis.Rotate(axis.Origin.Add(tangent), angle/2).Sub(axis.Origin),
			})
		}
	}
	if !full {
		for _, rot := range []float64{0, angle} {
			for _, loop := range loops {
				for i := range loop {
					a := axis.Rotate(plane.ToWorld(loop[i]), rot)
					b := axis.Rotate(plane.ToWorld(loop[(i+1)%len(loop)]), rot)
					t.add(Element{
						Kind:     Edge,
						Centroid: a.Add(b).Scale(0.5),
						Measure:  a.Dist(b),
						Normal:   b.Sub(a).Normalize(),
					})
				}
			}
		}
	}
	return t
}

// BlendTopology returns t with one additional face per blended edge, as
// produced by a fillet or chamfer of the given size.
func BlendTopology(t Topology, edges []int, size float64) Topology {
	out := Concat(Topology{}, t)
	for _, idx := range edges {
		e, ok := t.Lookup(Edge, idx)
		if !ok {
			continue
		}
		out.add(Element{
			Kind:     Face,
			Centroid: e.Centroid,
			Measure:  e.Measure * size,
			Normal:   e.Normal,
		})
	}
	return out
}

// Bounds returns the axis-aligned box enclosing points.
func Bounds(points []geom.Vec3) (min, max [3]float64) {
	if len(points) == 0 {
		return
	}
	min = [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	max = [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, p := range points {
		c := [3]float64{p.X, p.Y, p.Z}
		for i := range c {
			min[i] = math.Min(min[i], c[i])
			max[i] = math.Max(max[i], c[i])
		}
	}
	return
}
