// Package sketch holds the 2D sketch data model: entities, constraints
// referencing them, and the plane that maps the sketch into world space.
// It is pure data; solving lives in package solver.
package sketch

import (
	"fmt"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/ident"
)

// RemovalPolicy decides what RemoveEntity does when constraints still
// reference the entity.
type RemovalPolicy int

const (
	// Cascade removes the entity together with exactly the constraints
	// that reference it.
	Cascade RemovalPolicy = iota
	// Reject fails with EntityInUse and leaves the sketch untouched.
	Reject
)

func (p RemovalPolicy) String() string {
	switch p {
	case Cascade:
		return "cascade"
	case Reject:
		return "reject"
	}
	return fmt.Sprintf("RemovalPolicy(%d)", int(p))
}

// ParseRemovalPolicy converts "cascade" or "reject" to a policy.
func ParseRemovalPolicy(s string) (RemovalPolicy, error) {
	switch s {
	case "cascade", "":
		return Cascade, nil
	case "reject":
		return Reject, nil
	}
	return 0, fmt.Errorf("unknown removal policy %q", s)
}

// Attachment binds a sketch's plane to a planar face of a feature. The
// plane is re-derived from the face every time a consumer is rebuilt.
type Attachment struct {
	Feature string `json:"feature" yaml:"feature"`
	Role    string `json:"role" yaml:"role"`
}

// Sketch owns an ordered set of entities and constraints on a plane.
type Sketch struct {
	ID         SketchID
	Name       string
	Plane      geom.Plane
	Attachment *Attachment

	policy RemovalPolicy
	ids    ident.Generator

	entities    []*Entity
	entityIdx   map[EntityID]*Entity
	constraints []*Constraint
	constrIdx   map[ConstraintID]*Constraint

	revision uint64
	stale    bool
}

// Option configures a Sketch.
type Option func(*Sketch)

// WithPolicy sets the entity removal policy. The default is Cascade.
func WithPolicy(p RemovalPolicy) Option {
	return func(s *Sketch) { s.policy = p }
}

// WithIDs sets the identifier generator for entities and constraints.
func WithIDs(g ident.Generator) Option {
	return func(s *Sketch) { s.ids = g }
}

// WithName sets a human-readable name.
func WithName(name string) Option {
	return func(s *Sketch) { s.Name = name }
}

// WithAttachment attaches the sketch to a feature face.
func WithAttachment(a Attachment) Option {
	return func(s *Sketch) { s.Attachment = &a }
}

// New creates an empty sketch on plane.
func New(id SketchID, plane geom.Plane, opts ...Option) *Sketch {
	s := &Sketch{
		ID:        id,
		Plane:     plane,
		ids:       ident.Default,
		entityIdx: make(map[EntityID]*Entity),
		constrIdx: make(map[ConstraintID]*Constraint),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Policy returns the configured removal policy.
func (s *Sketch) Policy() RemovalPolicy { return s.policy }

// Revision increases on every change to entities, constraints, plane or
// parameters, including solves.
func (s *Sketch) Revision() uint64 { return s.revision }

// Stale reports whether the sketch was edited since its last successful
// solve.
func (s *Sketch) Stale() bool { return s.stale }

func (s *Sketch) touch() {
	s.revision++
	s.stale = true
}

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

// AddEntity adds e under a fresh identifier. Any ID already set on e is
// ignored.
func (s *Sketch) AddEntity(e Entity) EntityID {
	e.ID = s.freshEntityID()
	s.insertEntity(e.clone())
	return e.ID
}

// freshEntityID skips identifiers already taken, which a deterministic
// generator can hand out again after a restore.
func (s *Sketch) freshEntityID() EntityID {
	for {
		id := EntityID(s.ids.Next("entity"))
		if _, taken := s.entityIdx[id]; !taken {
			return id
		}
	}
}

func (s *Sketch) freshConstraintID() ConstraintID {
	for {
		id := ConstraintID(s.ids.Next("constraint"))
		if _, taken := s.constrIdx[id]; !taken {
			return id
		}
	}
}

// RestoreEntity adds e under its existing identifier.
func (s *Sketch) RestoreEntity(e Entity) error {
	if e.ID == "" {
		return caderr.New(caderr.InvalidReference, "RestoreEntity", "entity has no identifier")
	}
	if _, dup := s.entityIdx[e.ID]; dup {
		return caderr.New(caderr.InvalidReference, "RestoreEntity", "duplicate entity %s", e.ID)
	}
	if _, err := NewEntity(e.Kind, e.Params); err != nil {
		return err
	}
	s.insertEntity(e.clone())
	return nil
}

func (s *Sketch) insertEntity(e *Entity) {
	s.entities = append(s.entities, e)
	s.entityIdx[e.ID] = e
	s.touch()
}

// Entity returns a copy of the entity with the given id.
func (s *Sketch) Entity(id EntityID) (Entity, bool) {
	e, ok := s.entityIdx[id]
	if !ok {
		return Entity{}, false
	}
	return *e.clone(), true
}

// Entities returns copies of all entities in insertion order.
func (s *Sketch) Entities() []Entity {
	out := make([]Entity, len(s.entities))
	for i, e := range s.entities {
		out[i] = *e.clone()
	}
	return out
}

// EntityCount returns the number of entities.
func (s *Sketch) EntityCount() int { return len(s.entities) }

// RemoveEntity removes an entity. Under Cascade it also removes, and
// returns, the constraints that referenced it; under Reject it fails with
// EntityInUse if any constraint references it.
func (s *Sketch) RemoveEntity(id EntityID) ([]ConstraintID, error) {
	if _, ok := s.entityIdx[id]; !ok {
		return nil, caderr.New(caderr.InvalidReference, "RemoveEntity", "unknown entity %s", id)
	}

	var users []ConstraintID
	for _, c := range s.constraints {
		if c.References(id) {
			users = append(users, c.ID)
		}
	}
	if len(users) > 0 && s.policy == Reject {
		ids := make([]string, len(users))
		for i, u := range users {
			ids[i] = string(u)
		}
		return nil, caderr.New(caderr.EntityInUse, "RemoveEntity",
			"entity %s is referenced by %d constraint(s)", id, len(users)).WithIDs(ids...)
	}

	for _, cid := range users {
		s.dropConstraint(cid)
	}
	delete(s.entityIdx, id)
	for i, e := range s.entities {
		if e.ID == id {
			s.entities = append(s.entities[:i], s.entities[i+1:]...)
			break
		}
	}
	s.touch()
	return users, nil
}

// SetParams replaces an entity's parameter vector.
func (s *Sketch) SetParams(id EntityID, params []float64) error {
	e, ok := s.entityIdx[id]
	if !ok {
		return caderr.New(caderr.InvalidReference, "SetParams", "unknown entity %s", id)
	}
	if len(params) != e.Kind.ParamCount() {
		return caderr.New(caderr.ArityMismatch, "SetParams",
			"%s takes %d parameters, got %d", e.Kind, e.Kind.ParamCount(), len(params))
	}
	e.Params = append(e.Params[:0], params...)
	s.touch()
	return nil
}

// SetConstruction flags or unflags an entity as construction geometry.
func (s *Sketch) SetConstruction(id EntityID, construction bool) error {
	e, ok := s.entityIdx[id]
	if !ok {
		return caderr.New(caderr.InvalidReference, "SetConstruction", "unknown entity %s", id)
	}
	if e.Construction != construction {
		e.Construction = construction
		s.touch()
	}
	return nil
}

// SetPlane moves the sketch to another plane.
func (s *Sketch) SetPlane(p geom.Plane) {
	s.Plane = p
	s.revision++
}

// UpdateAttachedPlane records the plane re-derived from the attachment
// face. It does not count as an edit.
func (s *Sketch) UpdateAttachedPlane(p geom.Plane) {
	s.Plane = p
}

// ApplySolution writes solved parameter vectors back and clears the stale
// flag. Every id must exist with a matching parameter count.
func (s *Sketch) ApplySolution(values map[EntityID][]float64) {
	for id, params := range values {
		e, ok := s.entityIdx[id]
		if !ok || len(params) != len(e.Params) {
			panic(fmt.Sprintf("sketch: solution does not match entity %s", id))
		}
		copy(e.Params, params)
	}
	s.revision++
	s.stale = false
}

// MarkSolved clears the stale flag without changing any parameter, for a
// solve that had nothing to move.
func (s *Sketch) MarkSolved() {
	s.stale = false
}

// ---------------------------------------------------------------------------
// Constraints
// ---------------------------------------------------------------------------

// AddConstraint validates and adds a constraint. target is required for
// dimensional kinds (Distance, Angle, Radius) and rejected otherwise.
func (s *Sketch) AddConstraint(kind ConstraintKind, refs []Ref, target ...float64) (ConstraintID, error) {
	if len(target) > 1 {
		return "", caderr.New(caderr.ArityMismatch, "AddConstraint", "%s: at most one target value", kind)
	}
	c := Constraint{Kind: kind, Refs: append([]Ref(nil), refs...)}
	if len(target) == 1 {
		t := target[0]
		c.Target = &t
	}
	if err := s.validate(&c); err != nil {
		return "", err
	}
	c.ID = s.freshConstraintID()
	s.insertConstraint(c.clone())
	return c.ID, nil
}

// RestoreConstraint adds c under its existing identifier.
func (s *Sketch) RestoreConstraint(c Constraint) error {
	if c.ID == "" {
		return caderr.New(caderr.InvalidReference, "RestoreConstraint", "constraint has no identifier")
	}
	if _, dup := s.constrIdx[c.ID]; dup {
		return caderr.New(caderr.InvalidReference, "RestoreConstraint", "duplicate constraint %s", c.ID)
	}
	if err := s.validate(&c); err != nil {
		return err
	}
	s.insertConstraint(c.clone())
	return nil
}

func (s *Sketch) validate(c *Constraint) error {
	if len(c.Refs) == 0 {
		return caderr.New(caderr.ArityMismatch, "AddConstraint", "%s: no references", c.Kind)
	}
	shapes := make([]shape, len(c.Refs))
	kinds := make([]EntityKind, len(c.Refs))
	for i, r := range c.Refs {
		e, ok := s.entityIdx[r.Entity]
		if !ok {
			return caderr.New(caderr.InvalidReference, "AddConstraint", "unknown entity %s", r.Entity)
		}
		kinds[i] = e.Kind
		shapes[i] = classify(e.Kind, r.Pos)
	}
	return checkArity(c.Kind, shapes, c.Refs, kinds, c.Target)
}

func (s *Sketch) insertConstraint(c *Constraint) {
	s.constraints = append(s.constraints, c)
	s.constrIdx[c.ID] = c
	s.touch()
}

// RemoveConstraint removes a constraint.
func (s *Sketch) RemoveConstraint(id ConstraintID) error {
	if _, ok := s.constrIdx[id]; !ok {
		return caderr.New(caderr.InvalidReference, "RemoveConstraint", "unknown constraint %s", id)
	}
	s.dropConstraint(id)
	s.touch()
	return nil
}

func (s *Sketch) dropConstraint(id ConstraintID) {
	delete(s.constrIdx, id)
	for i, c := range s.constraints {
		if c.ID == id {
			s.constraints = append(s.constraints[:i], s.constraints[i+1:]...)
			return
		}
	}
}

// Constraint returns a copy of the constraint with the given id.
func (s *Sketch) Constraint(id ConstraintID) (Constraint, bool) {
	c, ok := s.constrIdx[id]
	if !ok {
		return Constraint{}, false
	}
	return *c.clone(), true
}

// Constraints returns copies of all constraints in insertion order.
func (s *Sketch) Constraints() []Constraint {
	out := make([]Constraint, len(s.constraints))
	for i, c := range s.constraints {
		out[i] = *c.clone()
	}
	return out
}

// ConstraintCount returns the number of constraints.
func (s *Sketch) ConstraintCount() int { return len(s.constraints) }

// ---------------------------------------------------------------------------
// Queries and helpers
// ---------------------------------------------------------------------------

// PointAt evaluates a point reference.
func (s *Sketch) PointAt(r Ref) (geom.Vec2, error) {
	e, ok := s.entityIdx[r.Entity]
	if !ok {
		return geom.Vec2{}, caderr.New(caderr.InvalidReference, "PointAt", "unknown entity %s", r.Entity)
	}
	p, ok := PointOf(e.Kind, e.Params, r.Pos)
	if !ok {
		return geom.Vec2{}, caderr.New(caderr.ArityMismatch, "PointAt", "%s does not name a point", r)
	}
	return p, nil
}

// WorldPointAt evaluates a point reference in world space.
func (s *Sketch) WorldPointAt(r Ref) (geom.Vec3, error) {
	p, err := s.PointAt(r)
	if err != nil {
		return geom.Vec3{}, err
	}
	return s.Plane.ToWorld(p), nil
}

// DegreesOfFreedom is a structural estimate: parameter count minus the
// unknowns removed by Fixed minus the equation count, floored at zero.
// The solver reports the exact figure from the Jacobian rank.
func (s *Sketch) DegreesOfFreedom() int {
	fixed := make(map[EntityID]map[int]bool)
	equations := 0
	kindOf := func(id EntityID) EntityKind { return s.entityIdx[id].Kind }
	for _, c := range s.constraints {
		if c.Kind == Fixed {
			r := c.Refs[0]
			e := s.entityIdx[r.Entity]
			if fixed[r.Entity] == nil {
				fixed[r.Entity] = make(map[int]bool)
			}
			if r.Pos == PosWhole {
				for i := range e.Params {
					fixed[r.Entity][i] = true
				}
			} else if ix, iy, ok := PointParams(e.Kind, r.Pos); ok {
				fixed[r.Entity][ix] = true
				fixed[r.Entity][iy] = true
			}
		}
		equations += c.Equations(kindOf)
	}
	free := 0
	for _, e := range s.entities {
		free += len(e.Params) - len(fixed[e.ID])
	}
	if dof := free - equations; dof > 0 {
		return dof
	}
	return 0
}

// AddRectangle adds four lines forming an axis-aligned rectangle between
// corners (x0, y0) and (x1, y1), joined by coincident constraints and
// held square by horizontal and vertical constraints. The lines run
// bottom, right, top, left.
func (s *Sketch) AddRectangle(x0, y0, x1, y1 float64) ([4]EntityID, error) {
	var lines [4]EntityID
	if x0 == x1 || y0 == y1 {
		return lines, caderr.New(caderr.ArityMismatch, "AddRectangle", "rectangle has zero width or height")
	}
	lines[0] = s.AddEntity(Line(x0, y0, x1, y0))
	lines[1] = s.AddEntity(Line(x1, y0, x1, y1))
	lines[2] = s.AddEntity(Line(x1, y1, x0, y1))
	lines[3] = s.AddEntity(Line(x0, y1, x0, y0))

	type rel struct {
		kind ConstraintKind
		refs []Ref
	}
	rels := []rel{
		{Coincident, []Ref{EndOf(lines[0]), StartOf(lines[1])}},
		{Coincident, []Ref{EndOf(lines[1]), StartOf(lines[2])}},
		{Coincident, []Ref{EndOf(lines[2]), StartOf(lines[3])}},
		{Coincident, []Ref{EndOf(lines[3]), StartOf(lines[0])}},
		{Horizontal, []Ref{On(lines[0])}},
		{Horizontal, []Ref{On(lines[2])}},
		{Vertical, []Ref{On(lines[1])}},
		{Vertical, []Ref{On(lines[3])}},
	}
	for _, r := range rels {
		if _, err := s.AddConstraint(r.kind, r.refs); err != nil {
			panic(fmt.Sprintf("sketch: rectangle constraint rejected: %v", err))
		}
	}
	return lines, nil
}

// Clone returns a deep copy sharing the identifier generator.
func (s *Sketch) Clone() *Sketch {
	c := New(s.ID, s.Plane, WithPolicy(s.policy), WithIDs(s.ids), WithName(s.Name))
	if s.Attachment != nil {
		a := *s.Attachment
		c.Attachment = &a
	}
	for _, e := range s.entities {
		ce := e.clone()
		c.entities = append(c.entities, ce)
		c.entityIdx[ce.ID] = ce
	}
	for _, k := range s.constraints {
		ck := k.clone()
		c.constraints = append(c.constraints, ck)
		c.constrIdx[ck.ID] = ck
	}
	c.revision = s.revision
	c.stale = s.stale
	return c
}
