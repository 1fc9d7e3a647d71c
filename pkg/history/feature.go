package history

import (
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/sketch"
)

// FeatureID identifies a feature for its whole lifetime.
type FeatureID string

func (id FeatureID) Short() string { return ident.Short(string(id)) }

// Kind is the operation a feature performs.
type Kind int

const (
	KindExtrude Kind = iota
	KindRevolve
	KindBoolean
	KindFillet
	KindChamfer
)

var kindNames = map[Kind]string{
	KindExtrude: "extrude",
	KindRevolve: "revolve",
	KindBoolean: "boolean",
	KindFillet:  "fillet",
	KindChamfer: "chamfer",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a name produced by String back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown feature kind %q", s)
}

// capability is the kernel capability a kind needs, not counting the
// boolean a body op adds.
func (k Kind) capability() kernel.Capabilities {
	switch k {
	case KindExtrude:
		return kernel.CapExtrude
	case KindRevolve:
		return kernel.CapRevolve
	case KindBoolean:
		return kernel.CapBoolean
	case KindFillet:
		return kernel.CapFillet
	case KindChamfer:
		return kernel.CapChamfer
	}
	return 0
}

// Direction selects which side of the sketch plane an extrusion grows.
type Direction int

const (
	Positive Direction = iota
	Negative
	Symmetric
)

func (d Direction) String() string {
	switch d {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	case Symmetric:
		return "symmetric"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection converts a name produced by String back to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "positive", "":
		return Positive, nil
	case "negative":
		return Negative, nil
	case "symmetric":
		return Symmetric, nil
	}
	return 0, fmt.Errorf("unknown extrude direction %q", s)
}

// BodyOp combines a sweep with an existing body.
type BodyOp int

const (
	// NewBody keeps the sweep as its own solid.
	NewBody BodyOp = iota
	// Join unions the sweep into the target.
	Join
	// Cut subtracts the sweep from the target.
	Cut
	// IntersectBody keeps the overlap of sweep and target.
	IntersectBody
)

func (op BodyOp) String() string {
	switch op {
	case NewBody:
		return "new"
	case Join:
		return "join"
	case Cut:
		return "cut"
	case IntersectBody:
		return "intersect"
	}
	return fmt.Sprintf("BodyOp(%d)", int(op))
}

// ParseBodyOp converts a name produced by String back to a BodyOp.
func ParseBodyOp(s string) (BodyOp, error) {
	switch s {
	case "new", "":
		return NewBody, nil
	case "join":
		return Join, nil
	case "cut":
		return Cut, nil
	case "intersect":
		return IntersectBody, nil
	}
	return 0, fmt.Errorf("unknown body op %q", s)
}

func (op BodyOp) boolean() kernel.BooleanOp {
	switch op {
	case Cut:
		return kernel.Subtract
	case IntersectBody:
		return kernel.Intersect
	}
	return kernel.Union
}

// ---------------------------------------------------------------------------
// Parameters
// ---------------------------------------------------------------------------

// Params are the kind-specific parameters and input references of a
// feature. Implementations are the *Params structs in this package.
type Params interface {
	Kind() Kind
	// Inputs lists the sketch (if any) and the features the operation
	// consumes, in the order the kernel receives them.
	Inputs() (sketch.SketchID, []FeatureID)
	validate() error
	clone() Params
}

// ExtrudeParams sweeps a sketch's regions along its normal.
type ExtrudeParams struct {
	Sketch    sketch.SketchID
	Distance  float64
	Direction Direction
	Op        BodyOp
	// Target is the body combined with the sweep when Op is not NewBody.
	Target FeatureID
}

func (p *ExtrudeParams) Kind() Kind { return KindExtrude }

func (p *ExtrudeParams) Inputs() (sketch.SketchID, []FeatureID) {
	if p.Op == NewBody {
		return p.Sketch, nil
	}
	return p.Sketch, []FeatureID{p.Target}
}

func (p *ExtrudeParams) validate() error {
	if p.Sketch == "" {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "extrude needs a sketch")
	}
	if !(p.Distance > 0) || math.IsInf(p.Distance, 0) {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "extrude distance %g must be positive", p.Distance)
	}
	return validateBody(p.Op, p.Target)
}

func (p *ExtrudeParams) clone() Params { c := *p; return &c }

// RevolveParams sweeps a sketch's regions about an axis in its plane.
type RevolveParams struct {
	Sketch sketch.SketchID
	Axis   geom.Axis
	// Angle is in radians, in (0, 2π].
	Angle  float64
	Op     BodyOp
	Target FeatureID
}

func (p *RevolveParams) Kind() Kind { return KindRevolve }

func (p *RevolveParams) Inputs() (sketch.SketchID, []FeatureID) {
	if p.Op == NewBody {
		return p.Sketch, nil
	}
	return p.Sketch, []FeatureID{p.Target}
}

func (p *RevolveParams) validate() error {
	if p.Sketch == "" {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "revolve needs a sketch")
	}
	if !(p.Angle > 0) || p.Angle > 2*math.Pi+1e-9 {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "revolve angle %g must be in (0, 2π]", p.Angle)
	}
	if p.Axis.Direction.IsZero() {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "revolve axis direction is zero")
	}
	return validateBody(p.Op, p.Target)
}

func (p *RevolveParams) clone() Params { c := *p; return &c }

func validateBody(op BodyOp, target FeatureID) error {
	if op < NewBody || op > IntersectBody {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "unknown body op %d", int(op))
	}
	if op == NewBody && target != "" {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "a new body takes no target")
	}
	if op != NewBody && target == "" {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "%s needs a target body", op)
	}
	return nil
}

// BooleanParams combines exactly two earlier features.
type BooleanParams struct {
	Op       kernel.BooleanOp
	Operands []FeatureID
}

func (p *BooleanParams) Kind() Kind { return KindBoolean }

func (p *BooleanParams) Inputs() (sketch.SketchID, []FeatureID) {
	return "", append([]FeatureID(nil), p.Operands...)
}

func (p *BooleanParams) validate() error {
	if len(p.Operands) != 2 {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "boolean needs exactly two features, got %d", len(p.Operands))
	}
	if p.Operands[0] == p.Operands[1] {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "boolean operands must differ")
	}
	return nil
}

func (p *BooleanParams) clone() Params {
	c := *p
	c.Operands = append([]FeatureID(nil), p.Operands...)
	return &c
}

// BlendParams rounds (fillet) or bevels (chamfer) edges of one feature,
// selected by logical edge role.
type BlendParams struct {
	Chamfer bool
	Input   FeatureID
	// Size is the fillet radius or chamfer distance.
	Size  float64
	Edges []string
}

func (p *BlendParams) Kind() Kind {
	if p.Chamfer {
		return KindChamfer
	}
	return KindFillet
}

func (p *BlendParams) Inputs() (sketch.SketchID, []FeatureID) {
	return "", []FeatureID{p.Input}
}

func (p *BlendParams) validate() error {
	if p.Input == "" {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "%s needs one feature", p.Kind())
	}
	if !(p.Size > 0) || math.IsInf(p.Size, 0) {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "%s size %g must be positive", p.Kind(), p.Size)
	}
	if len(p.Edges) == 0 {
		return caderr.New(caderr.ArityMismatch, "AddFeature", "%s needs at least one edge", p.Kind())
	}
	for _, e := range p.Edges {
		r, err := ParseRole(e)
		if err != nil || r.Kind != kernel.Edge {
			return caderr.New(caderr.ArityMismatch, "AddFeature", "%q is not an edge role", e)
		}
	}
	return nil
}

func (p *BlendParams) clone() Params {
	c := *p
	c.Edges = append([]string(nil), p.Edges...)
	return &c
}

// Spec describes a feature to add.
type Spec struct {
	Name   string
	Params Params
}

// ---------------------------------------------------------------------------
// Features
// ---------------------------------------------------------------------------

// Output is the cached result of a feature build.
type Output struct {
	Solid kernel.Solid
	// Kernel names the backend that produced Solid.
	Kernel string
	Table  *Table
}

// Feature is one record of the history.
type Feature struct {
	ID     FeatureID
	Name   string
	params Params

	dirty      bool
	suppressed bool
	err        error
	out        *Output

	// sketchRev is the revision of the input sketch at the last build.
	sketchRev uint64
	// builtAt orders builds; a feature built before an earlier feature's
	// latest build is out of date.
	builtAt uint64
}

// Kind returns the feature's operation.
func (f *Feature) Kind() Kind { return f.params.Kind() }

// Params returns a copy of the parameters.
func (f *Feature) Params() Params { return f.params.clone() }

// Dirty reports whether the feature needs rebuilding.
func (f *Feature) Dirty() bool { return f.dirty }

// Suppressed reports whether the feature is switched off on its own,
// independent of the rollback index.
func (f *Feature) Suppressed() bool { return f.suppressed }

// Err returns the error of the last failed build attempt, or nil.
func (f *Feature) Err() error { return f.err }

// Output returns the cached output, which survives failures and
// suppression. It is nil until the first successful build.
func (f *Feature) Output() *Output { return f.out }

// references reports whether f consumes id.
func (f *Feature) references(id FeatureID) bool {
	_, feats := f.params.Inputs()
	for _, in := range feats {
		if in == id {
			return true
		}
	}
	return false
}
