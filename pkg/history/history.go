// Package history keeps the ordered feature history of a part and rebuilds
// it incrementally against a geometry kernel.
//
// A History owns the part's sketches and features. Features reference
// sketches and earlier features only; the ordering is enforced when a
// feature is inserted, so the history is acyclic by construction. The
// rollback index suppresses a suffix of the history without deleting it,
// and new features are inserted at the rollback index.
//
// Rebuild walks the active features in order, reusing cached outputs that
// are still current and rebuilding the rest. Faces and edges are named by
// logical roles that survive rebuilds through geometric correlation, so
// attached sketches and fillets keep pointing at the same geometry while
// upstream parameters change.
//
// A History is not safe for concurrent use; package document serializes
// access to it.
package history

import (
	"fmt"
	"log/slog"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/sketch"
	"github.com/chazu/kerf/pkg/solver"
)

// Config collects the tunables a rebuild uses.
type Config struct {
	Solver   solver.Config  `toml:"solver" json:"solver"`
	Topology TopologyConfig `toml:"topology" json:"topology"`
	// ProfileTolerance is the distance within which sketch segment ends
	// chain into a loop.
	ProfileTolerance float64 `toml:"profile_tolerance" json:"profileTolerance"`
	// ArcSegments discretizes a full circle when extracting profiles.
	ArcSegments int `toml:"arc_segments" json:"arcSegments"`
	// Policy is the removal policy of new sketches.
	Policy sketch.RemovalPolicy `toml:"-" json:"-"`
}

// DefaultConfig returns the default rebuild settings.
func DefaultConfig() Config {
	return Config{
		Solver:           solver.DefaultConfig(),
		Topology:         DefaultTopologyConfig(),
		ProfileTolerance: 1e-6,
		ArcSegments:      sketch.DefaultArcSegments,
		Policy:           sketch.Cascade,
	}
}

// History is the ordered feature history of one part.
type History struct {
	kern kernel.Kernel
	cfg  Config
	ids  ident.Generator
	log  *slog.Logger

	sketches    map[sketch.SketchID]*sketch.Sketch
	sketchOrder []sketch.SketchID

	features []*Feature
	rollback int

	// seq numbers successful builds.
	seq uint64
}

// Option configures a History.
type Option func(*History)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(h *History) { h.cfg = cfg }
}

// WithIDs sets the identifier generator for sketches, features and the
// entities of sketches created through the history.
func WithIDs(g ident.Generator) Option {
	return func(h *History) { h.ids = g }
}

// WithLogger sets the logger. The default is the package Logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *History) { h.log = l }
}

// New creates an empty history building with k.
func New(k kernel.Kernel, opts ...Option) *History {
	if k == nil {
		panic("history: nil kernel")
	}
	h := &History{
		kern:     k,
		cfg:      DefaultConfig(),
		ids:      ident.Default,
		sketches: make(map[sketch.SketchID]*sketch.Sketch),
	}
	for _, o := range opts {
		o(h)
	}
	if h.log == nil {
		h.log = Logger()
	}
	return h
}

// Kernel returns the active backend.
func (h *History) Kernel() kernel.Kernel { return h.kern }

// Config returns the configuration.
func (h *History) Config() Config { return h.cfg }

// IDs returns the identifier generator, for sketches built outside the
// history and added with AddSketch.
func (h *History) IDs() ident.Generator { return h.ids }

// SetKernel switches backends. Every feature becomes dirty; cached
// outputs stay in place until their feature rebuilds successfully.
func (h *History) SetKernel(k kernel.Kernel) {
	if k == nil {
		panic("history: nil kernel")
	}
	h.log.Info("switching kernel", "from", h.kern.Name(), "to", k.Name())
	h.kern = k
	for _, f := range h.features {
		f.dirty = true
	}
}

// ---------------------------------------------------------------------------
// Sketches
// ---------------------------------------------------------------------------

// CreateSketch adds an empty sketch on a fixed plane.
func (h *History) CreateSketch(name string, plane geom.Plane) sketch.SketchID {
	id := h.freshSketchID()
	s := sketch.New(id, plane,
		sketch.WithName(name),
		sketch.WithPolicy(h.cfg.Policy),
		sketch.WithIDs(h.ids),
	)
	h.insertSketch(s)
	return id
}

// CreateSketchOnFace adds an empty sketch attached to a planar face of
// feature, named by a face role such as "face/end". The plane follows the
// face every time a consumer of the sketch is rebuilt.
func (h *History) CreateSketchOnFace(name string, feature FeatureID, role string) (sketch.SketchID, error) {
	f, _, err := h.lookup("CreateSketchOnFace", feature)
	if err != nil {
		return "", err
	}
	r, err := ParseRole(role)
	if err != nil || r.Kind != kernel.Face {
		return "", caderr.New(caderr.ArityMismatch, "CreateSketchOnFace", "%q is not a face role", role)
	}

	plane := geom.PlaneXY()
	if f.out != nil {
		if e, ok := f.out.Table.Resolve(role); ok {
			if p, err := planeOnFace(e); err == nil {
				plane = p
			}
		}
	}

	id := h.freshSketchID()
	s := sketch.New(id, plane,
		sketch.WithName(name),
		sketch.WithPolicy(h.cfg.Policy),
		sketch.WithIDs(h.ids),
		sketch.WithAttachment(sketch.Attachment{Feature: string(feature), Role: role}),
	)
	h.insertSketch(s)
	return id, nil
}

// AddSketch adds a sketch built elsewhere, such as one restored from a
// saved project. Its identifier must be unused.
func (h *History) AddSketch(s *sketch.Sketch) error {
	if s == nil || s.ID == "" {
		return caderr.New(caderr.InvalidReference, "AddSketch", "sketch has no identifier")
	}
	if _, dup := h.sketches[s.ID]; dup {
		return caderr.New(caderr.InvalidReference, "AddSketch", "sketch %s already exists", s.ID).WithIDs(string(s.ID))
	}
	h.insertSketch(s)
	return nil
}

func (h *History) freshSketchID() sketch.SketchID {
	for {
		id := sketch.SketchID(h.ids.Next("sketch"))
		if _, taken := h.sketches[id]; !taken {
			return id
		}
	}
}

func (h *History) insertSketch(s *sketch.Sketch) {
	h.sketches[s.ID] = s
	h.sketchOrder = append(h.sketchOrder, s.ID)
}

// Sketch returns the live sketch for id. Callers mutate it through its
// own methods; the next rebuild picks the edits up by revision.
func (h *History) Sketch(id sketch.SketchID) (*sketch.Sketch, error) {
	s, ok := h.sketches[id]
	if !ok {
		return nil, caderr.New(caderr.InvalidReference, "Sketch", "unknown sketch %s", id).WithIDs(string(id))
	}
	return s, nil
}

// Sketches returns every sketch in creation order.
func (h *History) Sketches() []*sketch.Sketch {
	out := make([]*sketch.Sketch, 0, len(h.sketchOrder))
	for _, id := range h.sketchOrder {
		out = append(out, h.sketches[id])
	}
	return out
}

// ---------------------------------------------------------------------------
// Features
// ---------------------------------------------------------------------------

// Len returns the number of features, active or not.
func (h *History) Len() int { return len(h.features) }

// Rollback returns the rollback index: features before it are active.
func (h *History) Rollback() int { return h.rollback }

// Features returns the features in history order.
func (h *History) Features() []*Feature {
	return append([]*Feature(nil), h.features...)
}

// Feature returns the feature with id.
func (h *History) Feature(id FeatureID) (*Feature, error) {
	f, _, err := h.lookup("Feature", id)
	return f, err
}

// Position returns the index of id in the history.
func (h *History) Position(id FeatureID) (int, error) {
	_, i, err := h.lookup("Position", id)
	return i, err
}

// Active reports whether id is before the rollback index.
func (h *History) Active(id FeatureID) bool {
	f, i, err := h.lookup("Active", id)
	return err == nil && i < h.rollback && !f.suppressed
}

func (h *History) lookup(op string, id FeatureID) (*Feature, int, error) {
	for i, f := range h.features {
		if f.ID == id {
			return f, i, nil
		}
	}
	return nil, -1, caderr.New(caderr.InvalidReference, op, "unknown feature %s", id).WithIDs(string(id))
}

// AddFeature inserts a feature at the rollback index and advances the
// rollback index past it. Inputs must be known and come earlier in the
// history.
func (h *History) AddFeature(spec Spec) (FeatureID, error) {
	return h.AddFeatureWithID(h.freshFeatureID(), spec)
}

func (h *History) freshFeatureID() FeatureID {
	for {
		id := FeatureID(h.ids.Next("feature"))
		if _, _, err := h.lookup("", id); err != nil {
			return id
		}
	}
}

// AddFeatureWithID is AddFeature with a caller-chosen identifier, for
// restoring saved projects.
func (h *History) AddFeatureWithID(id FeatureID, spec Spec) (FeatureID, error) {
	const op = "AddFeature"
	if id == "" {
		return "", caderr.New(caderr.InvalidReference, op, "feature has no identifier")
	}
	if _, _, err := h.lookup(op, id); err == nil {
		return "", caderr.New(caderr.InvalidReference, op, "feature %s already exists", id).WithIDs(string(id))
	}
	if spec.Params == nil {
		return "", caderr.New(caderr.ArityMismatch, op, "feature has no parameters")
	}
	if err := spec.Params.validate(); err != nil {
		return "", err
	}
	pos := h.rollback
	if err := h.checkInputs(op, spec.Params, pos); err != nil {
		return "", err
	}

	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("%s%d", spec.Params.Kind(), len(h.features)+1)
	}
	f := &Feature{ID: id, Name: name, params: spec.Params.clone(), dirty: true}

	h.features = append(h.features, nil)
	copy(h.features[pos+1:], h.features[pos:])
	h.features[pos] = f
	h.rollback = pos + 1

	h.log.Debug("added feature", "id", id.Short(), "kind", f.Kind(), "position", pos)
	return id, nil
}

// checkInputs verifies every input of p exists and precedes pos.
func (h *History) checkInputs(op string, p Params, pos int) error {
	sid, feats := p.Inputs()
	if sid != "" {
		s, ok := h.sketches[sid]
		if !ok {
			return caderr.New(caderr.InvalidReference, op, "unknown sketch %s", sid).WithIDs(string(sid))
		}
		if s.Attachment != nil {
			owner := FeatureID(s.Attachment.Feature)
			_, i, err := h.lookup(op, owner)
			if err != nil {
				return err
			}
			if i >= pos {
				return caderr.New(caderr.InvalidReference, op,
					"sketch %s is attached to %s, which does not come earlier", sid, owner.Short()).WithIDs(string(owner))
			}
		}
	}
	for _, in := range feats {
		_, i, err := h.lookup(op, in)
		if err != nil {
			return err
		}
		if i >= pos {
			return caderr.New(caderr.InvalidReference, op,
				"feature %s does not come earlier in the history", in.Short()).WithIDs(string(in))
		}
	}
	return nil
}

// EditFeature replaces a feature's parameters with params of the same
// kind and marks it dirty.
func (h *History) EditFeature(id FeatureID, params Params) error {
	const op = "EditFeature"
	f, pos, err := h.lookup(op, id)
	if err != nil {
		return err
	}
	if params == nil || params.Kind() != f.Kind() {
		return caderr.New(caderr.ArityMismatch, op, "feature %s is a %s", id.Short(), f.Kind())
	}
	if err := params.validate(); err != nil {
		return err
	}
	if err := h.checkInputs(op, params, pos); err != nil {
		return err
	}
	f.params = params.clone()
	f.dirty = true
	return nil
}

// Rename changes a feature's display name.
func (h *History) Rename(id FeatureID, name string) error {
	f, _, err := h.lookup("Rename", id)
	if err != nil {
		return err
	}
	f.Name = name
	return nil
}

// DeleteFeature removes a feature nothing references.
func (h *History) DeleteFeature(id FeatureID) error {
	const op = "DeleteFeature"
	f, pos, err := h.lookup(op, id)
	if err != nil {
		return err
	}
	var users []string
	for _, other := range h.features {
		if other.references(id) {
			users = append(users, string(other.ID))
		}
	}
	for _, sid := range h.sketchOrder {
		if a := h.sketches[sid].Attachment; a != nil && FeatureID(a.Feature) == id {
			users = append(users, string(sid))
		}
	}
	if len(users) > 0 {
		return caderr.New(caderr.EntityInUse, op, "feature %s is still referenced", id.Short()).WithIDs(users...)
	}

	h.features = append(h.features[:pos], h.features[pos+1:]...)
	if pos < h.rollback {
		h.rollback--
	}
	if f.out != nil {
		release(f.out.Solid)
	}
	return nil
}

// SetRollback moves the rollback index to k in [0, Len()]. Features from
// k on are suppressed; moving forward re-enables them.
func (h *History) SetRollback(k int) error {
	if k < 0 || k > len(h.features) {
		return caderr.New(caderr.InvalidReference, "SetRollback", "rollback %d outside [0, %d]", k, len(h.features))
	}
	h.rollback = k
	return nil
}

// SetSuppressed switches feature id off or back on. A suppressed feature
// is not evaluated and contributes no body; features consuming it fail on
// the next rebuild until it is re-enabled. Toggling marks the feature
// dirty, so re-enabling rebuilds it against its current inputs.
func (h *History) SetSuppressed(id FeatureID, on bool) error {
	f, _, err := h.lookup("SetSuppressed", id)
	if err != nil {
		return err
	}
	if f.suppressed == on {
		return nil
	}
	f.suppressed = on
	f.dirty = true
	h.log.Debug("feature suppression changed", "id", id.Short(), "suppressed", on)
	return nil
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// Body is one solid of the assembled part.
type Body struct {
	Feature FeatureID
	Name    string
	Solid   kernel.Solid
}

// Assembly returns the part's bodies: clean active features whose output
// no later clean active feature consumes, in history order. Suppressed
// features are not active.
func (h *History) Assembly() []Body {
	active := h.features[:h.rollback]
	var bodies []Body
	for i, f := range active {
		if f.dirty || f.suppressed || f.out == nil {
			continue
		}
		consumed := false
		for _, later := range active[i+1:] {
			if !later.dirty && !later.suppressed && later.out != nil && later.references(f.ID) {
				consumed = true
				break
			}
		}
		if !consumed {
			bodies = append(bodies, Body{Feature: f.ID, Name: f.Name, Solid: f.out.Solid})
		}
	}
	return bodies
}

// release frees s when its backend holds external resources.
func release(s kernel.Solid) {
	if r, ok := s.(kernel.Releaser); ok {
		r.Release()
	}
}

// useTags reports whether a kind names its caps face/start and face/end.
func (k Kind) useTags() bool {
	return k == KindExtrude || k == KindRevolve
}
