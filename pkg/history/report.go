package history

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/sketch"
)

// Outcome is what a rebuild pass did with one feature.
type Outcome int

const (
	// Rebuilt means the kernel produced a new output.
	Rebuilt Outcome = iota
	// Unchanged means the cached output was still current.
	Unchanged
	// Suppressed means the feature is at or beyond the rollback index, or
	// was switched off with SetSuppressed.
	Suppressed
	// Failed means the build raised an error; the previous output is kept.
	Failed
	// Skipped means an earlier feature failed and the pass stopped.
	Skipped
	// Cancelled means the context was done before the feature was reached.
	Cancelled
)

var outcomeNames = map[Outcome]string{
	Rebuilt:    "rebuilt",
	Unchanged:  "unchanged",
	Suppressed: "suppressed",
	Failed:     "failed",
	Skipped:    "skipped",
	Cancelled:  "cancelled",
}

func (o Outcome) String() string {
	if n, ok := outcomeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// FeatureReport is the outcome of one feature in a pass.
type FeatureReport struct {
	ID      FeatureID `json:"id"`
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	Outcome Outcome   `json:"outcome"`
	Err     error     `json:"-"`
	Error   string    `json:"error,omitempty"`
	// Dropped lists roles of the previous build that no longer resolve.
	Dropped []string `json:"dropped,omitempty"`
}

// Report summarizes a rebuild pass.
type Report struct {
	Kernel   string            `json:"kernel"`
	Features []FeatureReport   `json:"features"`
	Solved   []sketch.SketchID `json:"solved"`
	Elapsed  time.Duration     `json:"elapsed"`
}

func (r *Report) add(f *Feature, o Outcome, err error) *FeatureReport {
	fr := FeatureReport{ID: f.ID, Name: f.Name, Kind: f.Kind().String(), Outcome: o, Err: err}
	if err != nil {
		fr.Error = err.Error()
	}
	r.Features = append(r.Features, fr)
	return &r.Features[len(r.Features)-1]
}

func (r *Report) solved(id sketch.SketchID) {
	for _, s := range r.Solved {
		if s == id {
			return
		}
	}
	r.Solved = append(r.Solved, id)
}

// Outcome returns the outcome recorded for id.
func (r *Report) Outcome(id FeatureID) (Outcome, bool) {
	for _, f := range r.Features {
		if f.ID == id {
			return f.Outcome, true
		}
	}
	return 0, false
}

// Count returns how many features had outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, f := range r.Features {
		if f.Outcome == o {
			n++
		}
	}
	return n
}

// Err joins the errors of failed features, plus a Cancelled error when
// the pass was cut short. It is nil for a clean pass.
func (r *Report) Err() error {
	var errs []error
	cancelled := 0
	for _, f := range r.Features {
		switch f.Outcome {
		case Failed:
			errs = append(errs, fmt.Errorf("feature %s (%s): %w", f.Name, f.ID.Short(), f.Err))
		case Cancelled:
			cancelled++
		}
	}
	if cancelled > 0 {
		errs = append(errs, caderr.New(caderr.Cancelled, "Rebuild", "%d features not rebuilt", cancelled))
	}
	return errors.Join(errs...)
}

// Summary renders counts such as "2 rebuilt, 1 unchanged".
func (r *Report) Summary() string {
	var parts []string
	for o := Rebuilt; o <= Cancelled; o++ {
		if n := r.Count(o); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	if len(parts) == 0 {
		return "empty history"
	}
	return strings.Join(parts, ", ")
}
