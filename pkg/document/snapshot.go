package document

import (
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/sketch"
)

// Snapshot is an immutable view of a document after one command. Readers
// may hold it as long as they like; later commands publish new snapshots
// instead of changing this one.
type Snapshot struct {
	// Version counts the commands applied so far, failed ones included.
	Version  uint64        `json:"version"`
	Kernel   string        `json:"kernel"`
	Rollback int           `json:"rollback"`
	Sketches []SketchView  `json:"sketches"`
	Features []FeatureView `json:"features"`
	Report   *ReportView   `json:"report,omitempty"`
}

// SketchView summarizes a sketch.
type SketchView struct {
	ID          sketch.SketchID     `json:"id"`
	Name        string              `json:"name"`
	Plane       geom.Plane          `json:"plane"`
	Attachment  *sketch.Attachment  `json:"attachment,omitempty"`
	Entities    []sketch.Entity     `json:"entities"`
	Constraints []sketch.Constraint `json:"constraints"`
	DOF         int                 `json:"dof"`
	Stale       bool                `json:"stale"`
}

// FeatureView summarizes a feature.
type FeatureView struct {
	ID     history.FeatureID `json:"id"`
	Name   string            `json:"name"`
	Kind   string            `json:"kind"`
	Active bool              `json:"active"`
	Dirty  bool              `json:"dirty"`
	// Suppressed is set for features switched off on their own; features
	// past the rollback index are only inactive.
	Suppressed bool `json:"suppressed,omitempty"`
	// Built names the kernel of the cached output, empty if never built.
	Built string   `json:"built,omitempty"`
	Roles []string `json:"roles,omitempty"`
	Error string   `json:"error,omitempty"`
}

// ReportView is the outcome summary of the most recent rebuild.
type ReportView struct {
	Kernel   string            `json:"kernel"`
	Summary  string            `json:"summary"`
	Outcomes map[string]string `json:"outcomes"`
	Solved   []sketch.SketchID `json:"solved,omitempty"`
}

// publish builds a snapshot from the current state. Callers hold d.mu.
func (d *Document) publish() {
	h := d.h
	snap := &Snapshot{
		Version:  d.version,
		Kernel:   h.Kernel().Name(),
		Rollback: h.Rollback(),
	}

	for _, s := range h.Sketches() {
		v := SketchView{
			ID:          s.ID,
			Name:        s.Name,
			Plane:       s.Plane,
			Entities:    s.Entities(),
			Constraints: s.Constraints(),
			DOF:         s.DegreesOfFreedom(),
			Stale:       s.Stale(),
		}
		if s.Attachment != nil {
			a := *s.Attachment
			v.Attachment = &a
		}
		snap.Sketches = append(snap.Sketches, v)
	}

	for i, f := range h.Features() {
		v := FeatureView{
			ID:     f.ID,
			Name:   f.Name,
			Kind:   f.Kind().String(),
			Active: i < h.Rollback() && !f.Suppressed(),
			Dirty:  f.Dirty(),

			Suppressed: f.Suppressed(),
		}
		if out := f.Output(); out != nil {
			v.Built = out.Kernel
			v.Roles = out.Table.Roles()
		}
		if err := f.Err(); err != nil {
			v.Error = err.Error()
		}
		snap.Features = append(snap.Features, v)
	}

	if r := d.lastReport; r != nil {
		rv := &ReportView{
			Kernel:   r.Kernel,
			Summary:  r.Summary(),
			Outcomes: make(map[string]string, len(r.Features)),
			Solved:   append([]sketch.SketchID(nil), r.Solved...),
		}
		for _, fr := range r.Features {
			rv.Outcomes[string(fr.ID)] = fr.Outcome.String()
		}
		snap.Report = rv
	}

	d.snap.Store(snap)
}

// Feature returns the view of feature id.
func (s *Snapshot) Feature(id history.FeatureID) (FeatureView, bool) {
	for _, f := range s.Features {
		if f.ID == id {
			return f, true
		}
	}
	return FeatureView{}, false
}

// Sketch returns the view of sketch id.
func (s *Snapshot) Sketch(id sketch.SketchID) (SketchView, bool) {
	for _, v := range s.Sketches {
		if v.ID == id {
			return v, true
		}
	}
	return SketchView{}, false
}
