// Package nop implements kernel.Kernel without any real geometry. Solids
// are bounding boxes with analytic topology, which is enough to drive the
// rebuild engine, topology correlation and tests without a solid modeler.
package nop

import (
	"math"
	"sync"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/kernel"
)

// Name is the backend name recorded in documents.
const Name = "nop"

// Compile-time interface checks.
var (
	_ kernel.Kernel = (*Kernel)(nil)
	_ kernel.Solid  = (*solid)(nil)
)

// revolveSamples is the number of angular samples used to bound a
// revolved solid.
const revolveSamples = 32

type solid struct {
	min, max [3]float64
	topo     kernel.Topology
}

func (s *solid) BoundingBox() (min, max [3]float64) { return s.min, s.max }

// Kernel is the no-op backend. It is safe for concurrent use.
type Kernel struct {
	caps kernel.Capabilities

	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithCapabilities restricts the advertised capabilities. Operations
// outside the set fail with UnsupportedOperation.
func WithCapabilities(c kernel.Capabilities) Option {
	return func(k *Kernel) { k.caps = c }
}

// New returns a nop kernel advertising every capability.
func New(opts ...Option) *Kernel {
	k := &Kernel{
		caps:     kernel.CapAll,
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Name implements kernel.Kernel.
func (k *Kernel) Name() string { return Name }

// Capabilities implements kernel.Kernel.
func (k *Kernel) Capabilities() kernel.Capabilities { return k.caps }

// FailNext makes the next call to op ("Extrude", "Revolve", "Boolean",
// "Fillet", "Chamfer") return err. A nil err clears it.
func (k *Kernel) FailNext(op string, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err == nil {
		delete(k.failures, op)
		return
	}
	k.failures[op] = err
}

// Calls reports how many times op has been invoked.
func (k *Kernel) Calls(op string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls[op]
}

// ResetCalls zeroes the call counters.
func (k *Kernel) ResetCalls() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = make(map[string]int)
}

// enter records a call and returns an injected or capability error.
func (k *Kernel) enter(op string, c kernel.Capabilities) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls[op]++
	if err, ok := k.failures[op]; ok {
		delete(k.failures, op)
		return err
	}
	if !k.caps.Has(c) {
		return kernel.Unsupported(Name, c)
	}
	return nil
}

func unwrap(op string, s kernel.Solid) (*solid, error) {
	ns, ok := s.(*solid)
	if !ok || ns == nil {
		return nil, caderr.New(caderr.KernelFailure, op, "solid %T was not built by nop", s)
	}
	return ns, nil
}

// Extrude implements kernel.Kernel.
func (k *Kernel) Extrude(p kernel.Profile, distance float64, direction geom.Vec3) (kernel.Solid, error) {
	if err := k.enter("Extrude", kernel.CapExtrude); err != nil {
		return nil, err
	}
	if err := kernel.ValidateExtrude(p, distance, direction); err != nil {
		return nil, err
	}
	sweep := direction.Normalize().Scale(distance)
	var pts []geom.Vec3
	for _, v := range p.Outer {
		w := p.Plane.ToWorld(v)
		pts = append(pts, w, w.Add(sweep))
	}
	min, max := kernel.Bounds(pts)
	return &solid{min: min, max: max, topo: kernel.ExtrudeTopology(p, distance, direction)}, nil
}

// Revolve implements kernel.Kernel.
func (k *Kernel) Revolve(p kernel.Profile, axis geom.Axis, angle float64) (kernel.Solid, error) {
	if err := k.enter("Revolve", kernel.CapRevolve); err != nil {
		return nil, err
	}
	if err := kernel.ValidateRevolve(p, axis, angle); err != nil {
		return nil, err
	}
	var pts []geom.Vec3
	for i := 0; i <= revolveSamples; i++ {
		a := angle * float64(i) / revolveSamples
		for _, v := range p.Outer {
			pts = append(pts, axis.Rotate(p.Plane.ToWorld(v), a))
		}
	}
	min, max := kernel.Bounds(pts)
	return &solid{min: min, max: max, topo: kernel.RevolveTopology(p, axis, angle)}, nil
}

// Boolean implements kernel.Kernel on bounding boxes. Union keeps every
// element; subtract and intersect keep the elements inside the result
// box.
func (k *Kernel) Boolean(op kernel.BooleanOp, a, b kernel.Solid) (kernel.Solid, error) {
	if err := k.enter("Boolean", kernel.CapBoolean); err != nil {
		return nil, err
	}
	sa, err := unwrap("Boolean", a)
	if err != nil {
		return nil, err
	}
	sb, err := unwrap("Boolean", b)
	if err != nil {
		return nil, err
	}

	out := &solid{}
	switch op {
	case kernel.Union:
		for i := 0; i < 3; i++ {
			out.min[i] = math.Min(sa.min[i], sb.min[i])
			out.max[i] = math.Max(sa.max[i], sb.max[i])
		}
	case kernel.Subtract:
		out.min, out.max = sa.min, sa.max
	case kernel.Intersect:
		for i := 0; i < 3; i++ {
			out.min[i] = math.Max(sa.min[i], sb.min[i])
			out.max[i] = math.Min(sa.max[i], sb.max[i])
			if out.min[i] > out.max[i] {
				return nil, caderr.New(caderr.KernelFailure, "Boolean", "intersect produced an empty solid")
			}
		}
	default:
		return nil, caderr.New(caderr.KernelFailure, "Boolean", "unknown boolean op %v", op)
	}

	topo := kernel.Concat(sa.topo, sb.topo)
	if op != kernel.Union {
		topo = kernel.Filter(topo, func(e kernel.Element) bool { return out.contains(e.Centroid) })
	}
	out.topo = topo
	return out, nil
}

func (s *solid) contains(p geom.Vec3) bool {
	const tol = 1e-9
	c := [3]float64{p.X, p.Y, p.Z}
	for i := range c {
		if c[i] < s.min[i]-tol || c[i] > s.max[i]+tol {
			return false
		}
	}
	return true
}

// Fillet implements kernel.Kernel.
func (k *Kernel) Fillet(s kernel.Solid, edges []int, radius float64) (kernel.Solid, error) {
	if err := k.enter("Fillet", kernel.CapFillet); err != nil {
		return nil, err
	}
	return blend("Fillet", s, edges, radius)
}

// Chamfer implements kernel.Kernel.
func (k *Kernel) Chamfer(s kernel.Solid, edges []int, distance float64) (kernel.Solid, error) {
	if err := k.enter("Chamfer", kernel.CapChamfer); err != nil {
		return nil, err
	}
	return blend("Chamfer", s, edges, distance)
}

func blend(op string, s kernel.Solid, edges []int, size float64) (kernel.Solid, error) {
	ns, err := unwrap(op, s)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, caderr.New(caderr.KernelFailure, op, "size %g must be positive", size)
	}
	for _, e := range edges {
		if _, ok := ns.topo.Lookup(kernel.Edge, e); !ok {
			return nil, caderr.New(caderr.KernelFailure, op, "edge %d does not exist", e)
		}
	}
	return &solid{min: ns.min, max: ns.max, topo: kernel.BlendTopology(ns.topo, edges, size)}, nil
}

// Topology implements kernel.Kernel.
func (k *Kernel) Topology(s kernel.Solid) (kernel.Topology, error) {
	ns, err := unwrap("Topology", s)
	if err != nil {
		return kernel.Topology{}, err
	}
	return ns.topo, nil
}

// ToMesh renders the bounding box.
func (k *Kernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	if err := k.enter("ToMesh", kernel.CapMesh); err != nil {
		return nil, err
	}
	ns, err := unwrap("ToMesh", s)
	if err != nil {
		return nil, err
	}
	return kernel.BoxMesh(ns.min, ns.max), nil
}
