package script

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/ident"
)

func newEngine() *Engine {
	return NewEngine(WithIDs(func() ident.Generator { return ident.NewSequence() }))
}

func TestEvaluateEmptyString(t *testing.T) {
	for _, src := range []string{"", "   \n\t  \n  "} {
		doc, evalErrs, err := newEngine().Evaluate(context.Background(), src)
		if err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		if len(evalErrs) > 0 {
			t.Fatalf("unexpected eval errors: %v", evalErrs)
		}
		if doc == nil {
			t.Fatal("expected a document")
		}
		if n := len(doc.Snapshot().Sketches); n != 0 {
			t.Errorf("expected no sketches, got %d", n)
		}
	}
}

func TestEvaluatePlainLisp(t *testing.T) {
	src := `
(def x 10)
(def y 20)
(+ x y)
`
	doc, evalErrs, err := newEngine().Evaluate(context.Background(), src)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("Evaluate: %v %v", err, evalErrs)
	}
	if doc == nil {
		t.Fatal("expected a document")
	}
}

const bracket = `
; a plate with a round boss on its top face
(def base (sketch "base" :plane :xy))
(rect base 0 0 20 10)
(def plate (extrude "plate" base 4))

(def top (sketch-on "top" plate "face/end"))
(def hole (circle top 10 5 2))
(constrain top :radius hole 2)
(def boss (extrude "boss" top 3 :op :join :target plate))

(fillet "round" boss 0.5 "edge/0")
`

func TestEvaluateBuildsDocument(t *testing.T) {
	doc, evalErrs, err := newEngine().Evaluate(context.Background(), bracket)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}

	snap := doc.Snapshot()
	if len(snap.Sketches) != 2 {
		t.Fatalf("expected 2 sketches, got %d", len(snap.Sketches))
	}
	base := snap.Sketches[0]
	if len(base.Entities) != 4 || len(base.Constraints) == 0 {
		t.Errorf("rect should add 4 related lines, got %d entities, %d constraints", len(base.Entities), len(base.Constraints))
	}
	if top := snap.Sketches[1]; top.Attachment == nil || top.Attachment.Role != "face/end" {
		t.Errorf("top sketch attachment = %+v", top.Attachment)
	}

	want := []struct {
		name string
		kind history.Kind
	}{
		{"plate", history.KindExtrude},
		{"boss", history.KindExtrude},
		{"round", history.KindFillet},
	}
	if len(snap.Features) != len(want) {
		t.Fatalf("expected %d features, got %d", len(want), len(snap.Features))
	}
	for i, w := range want {
		f := snap.Features[i]
		if f.Name != w.name || f.Kind != w.kind.String() {
			t.Errorf("feature %d = %s %s, want %s %s", i, f.Name, f.Kind, w.name, w.kind)
		}
	}

	rep, err := doc.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if n := rep.Count(history.Rebuilt); n != 3 {
		t.Errorf("rebuilt %d features, want 3", n)
	}
	if n := len(doc.Assembly()); n != 1 {
		t.Errorf("expected one body, got %d", n)
	}
}

func TestEvaluateSolveAndRollback(t *testing.T) {
	src := `
(def s (sketch "s" :plane :xz))
(def a (line s 0 0 10 1))
(constrain s :horizontal a)
(constrain s :distance (start a) (end a) 12)
(solve s)

(def c (sketch "c"))
(circle c 0 0 3)
(def pad (extrude "pad" c 2 :direction :symmetric))
(revolve "spun" c :origin (vec 5 0 0) :axis (vec 0 1 0) :angle 3.14)
(rollback 1)
`
	doc, evalErrs, err := newEngine().Evaluate(context.Background(), src)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("Evaluate: %v %v", err, evalErrs)
	}
	snap := doc.Snapshot()
	s := snap.Sketches[0]
	if s.Stale {
		t.Error("solved sketch should not be stale")
	}
	if s.DOF != 2 {
		t.Errorf("DOF = %d, want 2", s.DOF)
	}
	if snap.Rollback != 1 {
		t.Errorf("rollback = %d, want 1", snap.Rollback)
	}
	if !snap.Features[0].Active || snap.Features[1].Active {
		t.Errorf("only the first feature should be active: %+v", snap.Features)
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "(+ 1 2"},
		{"undefined symbol", "(+ 1 undefined-symbol)"},
		{"unknown plane", `(sketch "s" :plane :uv)`},
		{"wrong arity", "(def s (sketch \"s\"))\n(point s 1)"},
		{"bad constraint kind", "(def s (sketch \"s\"))\n(def p (point s 0 0))\n(constrain s :glued p p)"},
		{"forward reference", "(def s (sketch \"s\"))\n(circle s 0 0 1)\n(def a (extrude \"a\" s 1))\n(rollback 0)\n(def b (extrude \"b\" s 1))\n(union \"u\" a b)"},
		{"rollback out of range", "(rollback 3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, evalErrs, err := newEngine().Evaluate(context.Background(), tt.src)
			if err != nil {
				t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
			}
			if doc != nil {
				t.Error("expected no document on eval error")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected at least one eval error")
			}
			if evalErrs[0].Message == "" {
				t.Error("eval error message should not be empty")
			}
		})
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := newEngine()
	var first []string
	for i := 0; i < 3; i++ {
		doc, evalErrs, err := eng.Evaluate(context.Background(), bracket)
		if err != nil || len(evalErrs) > 0 {
			t.Fatalf("iteration %d: %v %v", i, err, evalErrs)
		}
		var ids []string
		for _, f := range doc.Snapshot().Features {
			ids = append(ids, string(f.ID))
		}
		if first == nil {
			first = ids
			continue
		}
		if strings.Join(ids, ",") != strings.Join(first, ",") {
			t.Errorf("iteration %d: ids %v, want %v", i, ids, first)
		}
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	if s := e.Error(); !strings.Contains(s, "line 5") || !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() = %q", s)
	}
	e2 := EvalError{Message: "no location"}
	if s := e2.Error(); strings.Contains(s, "line") {
		t.Errorf("Error() with no line should not mention a line, got %q", s)
	}
}

func TestWaitTimesOut(t *testing.T) {
	eng := NewEngine(WithTimeout(20 * time.Millisecond))
	eng.generation = 1
	ch := make(chan evalResult) // never sends

	start := time.Now()
	_, err := eng.wait(context.Background(), ch, 1)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestWaitCancelled(t *testing.T) {
	eng := NewEngine(WithTimeout(time.Minute))
	eng.generation = 1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.wait(ctx, make(chan evalResult), 1)
	if caderr.CodeOf(err) != caderr.Cancelled {
		t.Fatalf("expected Cancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the context error to be wrapped, got %v", err)
	}
}

func TestWaitDiscardsStaleGeneration(t *testing.T) {
	eng := NewEngine()
	eng.generation = 2
	ch := make(chan evalResult, 1)
	ch <- evalResult{}

	_, err := eng.wait(context.Background(), ch, 1)
	if err == nil || !strings.Contains(err.Error(), "superseded") {
		t.Fatalf("expected superseded error, got %v", err)
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{"error on line format", "Error on line 5: unexpected token\n", 5, "unexpected token"},
		{"no line info", "some generic error", 0, "some generic error"},
		{"line format lowercase", "error on line 12: missing paren", 12, "missing paren"},
		{"short line format", "line 3: extrude: distance -1 must be positive", 3, "extrude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errors.New(tt.msg))
			if len(errs) != 1 {
				t.Fatalf("expected one error, got %d", len(errs))
			}
			if errs[0].Line != tt.wantLine {
				t.Errorf("line = %d, want %d", errs[0].Line, tt.wantLine)
			}
			if !strings.Contains(errs[0].Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", errs[0].Message, tt.wantMsg)
			}
		})
	}
}
