package script

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/sketch"
)

// Handles returned by builtins. Scripts pass them back to other builtins
// but never look inside.

type sexpSketch struct {
	id   sketch.SketchID
	name string
}

func (s *sexpSketch) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(sketch %q)", s.name)
}
func (s *sexpSketch) Type() *zygo.RegisteredType { return nil }

type sexpEntity struct {
	sketch sketch.SketchID
	id     sketch.EntityID
	kind   sketch.EntityKind
}

func (e *sexpEntity) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %s)", e.kind, e.id.Short())
}
func (e *sexpEntity) Type() *zygo.RegisteredType { return nil }

type sexpRef struct {
	ref sketch.Ref
}

func (r *sexpRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %s)", r.ref.Pos, r.ref.Entity.Short())
}
func (r *sexpRef) Type() *zygo.RegisteredType { return nil }

type sexpConstraint struct {
	id   sketch.ConstraintID
	kind sketch.ConstraintKind
}

func (c *sexpConstraint) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(constraint %s %s)", c.kind, c.id.Short())
}
func (c *sexpConstraint) Type() *zygo.RegisteredType { return nil }

type sexpFeature struct {
	id   history.FeatureID
	name string
}

func (f *sexpFeature) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(feature %q)", f.name)
}
func (f *sexpFeature) Type() *zygo.RegisteredType { return nil }

type sexpVec struct {
	v geom.Vec3
}

func (v *sexpVec) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec %g %g %g)", v.v.X, v.v.Y, v.v.Z)
}
func (v *sexpVec) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Argument parsing
// ---------------------------------------------------------------------------

// isKW reports whether s is a preprocessed keyword and returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs is an argument list split into positional and keyword values.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs pairs each keyword with the value after it. A trailing
// keyword maps to SexpNull.
func parseArgs(args []zygo.Sexp) kwArgs {
	out := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			out.positional = append(out.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			out.kw[name] = args[i+1]
			i++
		} else {
			out.kw[name] = zygo.SexpNull
		}
	}
	return out
}

// need checks the positional count.
func (a kwArgs) need(fn string, n int, usage string) error {
	if len(a.positional) != n {
		return fmt.Errorf("%s: got %d arguments, want %s", fn, len(a.positional), usage)
	}
	return nil
}

func (a kwArgs) float(key string, def float64) (float64, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf(":%s: %w", key, err)
	}
	return f, nil
}

func (a kwArgs) keyword(key, def string) (string, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	s, err := toKeywordString(v)
	if err != nil {
		return "", fmt.Errorf(":%s: %w", key, err)
	}
	return s, nil
}

func (a kwArgs) vec(key string, def geom.Vec3) (geom.Vec3, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	out, err := toVec(v)
	if err != nil {
		return geom.Vec3{}, fmt.Errorf(":%s: %w", key, err)
	}
	return out, nil
}

func (a kwArgs) flag(key string) bool {
	v, ok := a.kw[key]
	if !ok {
		return false
	}
	if b, ok := v.(*zygo.SexpBool); ok {
		return b.Val
	}
	return true
}

// ---------------------------------------------------------------------------
// Value extraction
// ---------------------------------------------------------------------------

func describe(s zygo.Sexp) string {
	if s == nil {
		return "nothing"
	}
	return fmt.Sprintf("%T (%s)", s, s.SexpString(nil))
}

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %s", describe(s))
}

func toFloats(args []zygo.Sexp) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := toFloat64(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = f
	}
	return out, nil
}

func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %s", describe(s))
}

func toBool(s zygo.Sexp) (bool, error) {
	if v, ok := s.(*zygo.SexpBool); ok {
		return v.Val, nil
	}
	return false, fmt.Errorf("expected boolean, got %s", describe(s))
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %s", describe(s))
}

// toKeywordString accepts :name or "name".
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %s", describe(s))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

func toSketch(s zygo.Sexp) (*sexpSketch, error) {
	if v, ok := s.(*sexpSketch); ok {
		return v, nil
	}
	return nil, fmt.Errorf("expected sketch, got %s", describe(s))
}

func toEntity(s zygo.Sexp) (*sexpEntity, error) {
	if v, ok := s.(*sexpEntity); ok {
		return v, nil
	}
	return nil, fmt.Errorf("expected sketch entity, got %s", describe(s))
}

// toRef accepts a point ref from start/end/center or a whole entity.
func toRef(s zygo.Sexp) (sketch.Ref, error) {
	switch v := s.(type) {
	case *sexpRef:
		return v.ref, nil
	case *sexpEntity:
		return sketch.On(v.id), nil
	}
	return sketch.Ref{}, fmt.Errorf("expected entity or point reference, got %s", describe(s))
}

func toFeature(s zygo.Sexp) (history.FeatureID, error) {
	if v, ok := s.(*sexpFeature); ok {
		return v.id, nil
	}
	return "", fmt.Errorf("expected feature, got %s", describe(s))
}

func toVec(s zygo.Sexp) (geom.Vec3, error) {
	if v, ok := s.(*sexpVec); ok {
		return v.v, nil
	}
	return geom.Vec3{}, fmt.Errorf("expected vec, got %s", describe(s))
}
