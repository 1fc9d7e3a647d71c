package history

import (
	"context"
	"fmt"
	"time"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/sketch"
	"github.com/chazu/kerf/pkg/solver"
)

// Rebuild brings every active feature up to date.
//
// Features are visited in history order. A feature whose cached output is
// current is reported Unchanged; the rest are rebuilt. The pass stops at
// the first failure: the failing feature keeps its previous output and
// every later active feature is reported Skipped. Suppressed features are
// reported Suppressed and left alone; a feature consuming one fails. The
// context is checked between features only. The returned error is
// Report.Err.
func (h *History) Rebuild(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep := &Report{Kernel: h.kern.Name()}

	var latest uint64
	stopped := Outcome(-1)
	stale := false
	for i, f := range h.features {
		if i >= h.rollback || f.suppressed {
			rep.add(f, Suppressed, nil)
			continue
		}
		if stopped < 0 && ctx.Err() != nil {
			h.log.Info("rebuild cancelled", "at", f.ID.Short(), "err", ctx.Err())
			stopped = Cancelled
		}
		switch stopped {
		case Skipped:
			f.dirty = true
			rep.add(f, Skipped, nil)
			continue
		case Cancelled:
			// Dirty from the first out-of-date feature on: its consumers
			// hold outputs built from the old input.
			if stale || h.outOfDate(f, latest) {
				stale = true
				f.dirty = true
			}
			rep.add(f, Cancelled, nil)
			continue
		}

		if err := h.suppressedInput(f); err != nil {
			f.dirty = true
			f.err = err
			stopped = Skipped
			h.log.Warn("feature failed", "id", f.ID.Short(), "name", f.Name, "code", caderr.CodeOf(err), "err", err)
			rep.add(f, Failed, err)
			continue
		}

		if !h.outOfDate(f, latest) {
			h.log.Debug("reusing feature output", "id", f.ID.Short(), "name", f.Name)
			rep.add(f, Unchanged, nil)
			latest = max(latest, f.builtAt)
			continue
		}

		f.dirty = true
		dropped, err := h.rebuildFeature(f, rep)
		if err != nil {
			f.err = err
			stopped = Skipped
			h.log.Warn("feature failed", "id", f.ID.Short(), "name", f.Name, "code", caderr.CodeOf(err), "err", err)
			rep.add(f, Failed, err)
			continue
		}
		fr := rep.add(f, Rebuilt, nil)
		fr.Dropped = dropped
		latest = max(latest, f.builtAt)
	}

	rep.Elapsed = time.Since(start)
	h.log.Info("rebuild finished", "kernel", rep.Kernel, "summary", rep.Summary(), "elapsed", rep.Elapsed)
	return rep, rep.Err()
}

// suppressedInput returns an error when f consumes a suppressed feature,
// either directly or through the face its sketch is attached to.
func (h *History) suppressedInput(f *Feature) error {
	sid, feats := f.params.Inputs()
	for _, in := range feats {
		if g, _, err := h.lookup("Rebuild", in); err == nil && g.suppressed {
			return caderr.New(caderr.InvalidReference, "Rebuild",
				"input feature %s is suppressed", in.Short()).WithIDs(string(in))
		}
	}
	if s, ok := h.sketches[sid]; ok && s.Attachment != nil {
		owner := FeatureID(s.Attachment.Feature)
		if g, _, err := h.lookup("Rebuild", owner); err == nil && g.suppressed {
			return caderr.New(caderr.BrokenTopologyReference, "Rebuild",
				"sketch %s is attached to %s of suppressed feature %s",
				sid.Short(), s.Attachment.Role, owner.Short()).WithIDs(s.Attachment.Role)
		}
	}
	return nil
}

// outOfDate reports whether f needs a build. latest is the newest build
// among the active features before f.
func (h *History) outOfDate(f *Feature, latest uint64) bool {
	if f.dirty || f.out == nil || latest > f.builtAt {
		return true
	}
	if sid, _ := f.params.Inputs(); sid != "" {
		s, ok := h.sketches[sid]
		if !ok || s.Revision() != f.sketchRev || s.Stale() {
			return true
		}
	}
	return false
}

// rebuildFeature builds f and on success installs the new output. It
// returns the roles that no longer resolve.
func (h *History) rebuildFeature(f *Feature, rep *Report) ([]string, error) {
	h.log.Debug("rebuilding feature", "id", f.ID.Short(), "name", f.Name, "kind", f.Kind())

	need := f.Kind().capability()
	if op, ok := bodyOp(f.params); ok && op != NewBody {
		need |= kernel.CapBoolean
	}
	if missing := h.kern.Capabilities().Missing(need); missing != 0 {
		return nil, kernel.Unsupported(h.kern.Name(), missing)
	}

	b := &build{h: h, rep: rep}
	solid, err := b.run(f)
	for _, t := range b.temps {
		if t != solid {
			release(t)
		}
	}
	if err != nil {
		if solid != nil {
			release(solid)
		}
		return nil, err
	}

	topo, err := h.kern.Topology(solid)
	if err != nil {
		release(solid)
		return nil, err
	}
	var prev *Table
	if f.out != nil {
		prev = f.out.Table
	}
	table := correlate(prev, topo, h.cfg.Topology, f.Kind().useTags())

	var dropped []string
	for _, r := range prev.Roles() {
		if _, ok := table.Resolve(r); !ok {
			dropped = append(dropped, r)
		}
	}
	if len(dropped) > 0 {
		h.log.Warn("topology roles dropped", "id", f.ID.Short(), "roles", dropped)
	}

	old := f.out
	f.out = &Output{Solid: solid, Kernel: h.kern.Name(), Table: table}
	f.dirty = false
	f.err = nil
	f.sketchRev = b.sketchRev
	h.seq++
	f.builtAt = h.seq
	if old != nil && old.Solid != solid {
		release(old.Solid)
	}
	return dropped, nil
}

func bodyOp(p Params) (BodyOp, bool) {
	switch p := p.(type) {
	case *ExtrudeParams:
		return p.Op, true
	case *RevolveParams:
		return p.Op, true
	}
	return 0, false
}

// build carries the state of one feature build.
type build struct {
	h   *History
	rep *Report
	// temps are intermediate solids released once the build ends.
	temps     []kernel.Solid
	sketchRev uint64
}

func (b *build) run(f *Feature) (kernel.Solid, error) {
	k := b.h.kern
	switch p := f.params.(type) {
	case *ExtrudeParams:
		tool, err := b.sweep(p.Sketch, func(prof kernel.Profile) (kernel.Solid, error) {
			dir := prof.Plane.Normal
			switch p.Direction {
			case Negative:
				dir = dir.Neg()
			case Symmetric:
				prof.Plane = prof.Plane.Offset(-p.Distance / 2)
			}
			return k.Extrude(prof, p.Distance, dir)
		})
		if err != nil {
			return nil, err
		}
		return b.combine(p.Op, p.Target, tool)

	case *RevolveParams:
		tool, err := b.sweep(p.Sketch, func(prof kernel.Profile) (kernel.Solid, error) {
			return k.Revolve(prof, p.Axis, p.Angle)
		})
		if err != nil {
			return nil, err
		}
		return b.combine(p.Op, p.Target, tool)

	case *BooleanParams:
		a := b.h.output(p.Operands[0])
		c := b.h.output(p.Operands[1])
		return k.Boolean(p.Op, a.Solid, c.Solid)

	case *BlendParams:
		in := b.h.output(p.Input)
		edges := make([]int, 0, len(p.Edges))
		for _, role := range p.Edges {
			e, ok := in.Table.Resolve(role)
			if !ok {
				return nil, caderr.New(caderr.BrokenTopologyReference, "Rebuild",
					"edge %s of feature %s no longer exists", role, p.Input.Short()).WithIDs(role)
			}
			edges = append(edges, e.Index)
		}
		if p.Chamfer {
			return k.Chamfer(in.Solid, edges, p.Size)
		}
		return k.Fillet(in.Solid, edges, p.Size)
	}
	panic(fmt.Sprintf("history: unknown params %T", f.params))
}

// sweep prepares the sketch and builds one solid per region, unioning
// them when there are several.
func (b *build) sweep(id sketch.SketchID, one func(kernel.Profile) (kernel.Solid, error)) (kernel.Solid, error) {
	h := b.h
	s, ok := h.sketches[id]
	if !ok {
		return nil, caderr.New(caderr.InvalidReference, "Rebuild", "unknown sketch %s", id).WithIDs(string(id))
	}
	if err := h.placeAttached(s); err != nil {
		return nil, err
	}
	if s.Stale() {
		if _, err := solver.Solve(s, h.cfg.Solver); err != nil {
			return nil, err
		}
		b.rep.solved(s.ID)
	}
	b.sketchRev = s.Revision()

	regions, err := s.Regions(h.cfg.ProfileTolerance, h.cfg.ArcSegments)
	if err != nil {
		return nil, err
	}
	if len(regions) > 1 && !h.kern.Capabilities().Has(kernel.CapBoolean) {
		return nil, kernel.Unsupported(h.kern.Name(), kernel.CapBoolean)
	}

	var acc kernel.Solid
	for _, r := range regions {
		solid, err := one(kernel.Profile{Plane: s.Plane, Outer: r.Outer, Holes: r.Holes})
		if err != nil {
			if acc != nil {
				b.temps = append(b.temps, acc)
			}
			return nil, err
		}
		if acc == nil {
			acc = solid
			continue
		}
		b.temps = append(b.temps, acc, solid)
		if acc, err = h.kern.Boolean(kernel.Union, acc, solid); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// combine applies a body op between a swept tool and its target.
func (b *build) combine(op BodyOp, target FeatureID, tool kernel.Solid) (kernel.Solid, error) {
	if op == NewBody {
		return tool, nil
	}
	t := b.h.output(target)
	b.temps = append(b.temps, tool)
	return b.h.kern.Boolean(op.boolean(), t.Solid, tool)
}

// placeAttached re-derives the plane of a sketch attached to a face.
func (h *History) placeAttached(s *sketch.Sketch) error {
	a := s.Attachment
	if a == nil {
		return nil
	}
	owner := h.output(FeatureID(a.Feature))
	e, ok := owner.Table.Resolve(a.Role)
	if !ok || e.Kind != kernel.Face {
		return caderr.New(caderr.BrokenTopologyReference, "Rebuild",
			"sketch %s is attached to %s of feature %s, which no longer exists",
			s.ID.Short(), a.Role, FeatureID(a.Feature).Short()).WithIDs(a.Role)
	}
	plane, err := planeOnFace(e)
	if err != nil {
		return caderr.Wrap(caderr.BrokenTopologyReference, "Rebuild", err).WithIDs(a.Role)
	}
	s.UpdateAttachedPlane(plane)
	return nil
}

// output returns the current output of an input feature. Inputs precede
// their consumers and the pass stops at the first failure, so an input
// reached here has been built by the active kernel.
func (h *History) output(id FeatureID) *Output {
	f, _, err := h.lookup("Rebuild", id)
	if err != nil {
		panic(fmt.Sprintf("history: input %s vanished", id))
	}
	if f.out == nil || f.dirty {
		panic(fmt.Sprintf("history: input %s used before it was built", id))
	}
	if f.out.Kernel != h.kern.Name() {
		panic(fmt.Sprintf("history: input %s was built by %s, not %s", id, f.out.Kernel, h.kern.Name()))
	}
	return f.out
}
