package studio

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/kerf/pkg/config"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/ident"
)

func newStudio() *Studio {
	cfg := config.Default()
	cfg.Kernel.Backend = "nop"
	return New(cfg, WithIDs(func() ident.Generator { return ident.NewSequence() }))
}

func readExample(t *testing.T, name string) string {
	t.Helper()
	src, err := os.ReadFile(filepath.Join("..", "..", "examples", name))
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(src)
}

func requireClean(t *testing.T, res *Result) {
	t.Helper()
	for _, e := range res.Errors {
		t.Errorf("error (line %d): %s", e.Line, e.Message)
	}
	for _, w := range res.Warnings {
		t.Errorf("warning (%s): %s", w.Feature, w.Message)
	}
	if t.Failed() {
		t.FailNow()
	}
}

// TestE2EExamples runs the shipped scripts through the whole pipeline:
// script, document, rebuild, meshes.
func TestE2EExamples(t *testing.T) {
	tests := []struct {
		file    string
		rebuilt int
		body    string
	}{
		{"bracket.kerf", 4, "soften"},
		{"flange.kerf", 4, "edge-break"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			res := newStudio().Evaluate(context.Background(), readExample(t, tt.file), true)
			requireClean(t, res)

			if n := res.Report.Count(history.Rebuilt); n != tt.rebuilt {
				t.Errorf("rebuilt %d features, want %d", n, tt.rebuilt)
			}
			if len(res.Meshes) != 1 {
				t.Fatalf("expected 1 mesh, got %d", len(res.Meshes))
			}
			m := res.Meshes[0]
			if m.Feature != tt.body {
				t.Errorf("mesh feature = %q, want %q", m.Feature, tt.body)
			}
			if len(m.Vertices) == 0 || len(m.Normals) == 0 || len(m.Indices) == 0 {
				t.Error("mesh has no geometry")
			}
			if m.Color == "" {
				t.Error("mesh has no color")
			}
		})
	}
}

func TestE2EEmptySource(t *testing.T) {
	res := newStudio().Evaluate(context.Background(), "", true)
	requireClean(t, res)
	if res.Meshes == nil || res.Errors == nil || res.Warnings == nil {
		t.Error("result slices should be empty, not nil")
	}
	if len(res.Meshes) != 0 {
		t.Errorf("expected 0 meshes, got %d", len(res.Meshes))
	}
	if !res.OK() {
		t.Error("empty source should be OK")
	}
}

func TestE2ESyntaxError(t *testing.T) {
	res := newStudio().Evaluate(context.Background(), "(+ 1 2)\n(sketch \"s\"", true)
	if len(res.Errors) == 0 {
		t.Fatal("expected eval errors")
	}
	if res.Errors[0].Message == "" {
		t.Error("error should have a message")
	}
	if res.Document != nil || len(res.Meshes) != 0 {
		t.Error("a failed script produces no document and no meshes")
	}
}

func TestE2EFailedFeatureIsWarning(t *testing.T) {
	src := `
(def s (sketch "s"))
(rect s 0 0 10 10)
(def pad (extrude "pad" s 2))
(fillet "round" pad 1 "edge/99")
`
	res := newStudio().Evaluate(context.Background(), src, true)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Feature != "round" {
		t.Fatalf("expected one warning for round, got %+v", res.Warnings)
	}
	if res.OK() {
		t.Error("a failed feature is not OK")
	}
	// The fillet's input is the last good body.
	if len(res.Meshes) != 1 || res.Meshes[0].Feature != "pad" {
		t.Errorf("expected the pad mesh, got %d meshes", len(res.Meshes))
	}
}

func TestE2EWithoutMeshes(t *testing.T) {
	res := newStudio().Evaluate(context.Background(), readExample(t, "bracket.kerf"), false)
	requireClean(t, res)
	if len(res.Meshes) != 0 {
		t.Errorf("expected no meshes, got %d", len(res.Meshes))
	}
	if res.Report == nil || res.Document == nil {
		t.Fatal("expected a report and a document")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newStudio()
	first := st.Evaluate(ctx, readExample(t, "bracket.kerf"), true)
	requireClean(t, first)
	rec := Capture(first.Document)

	again, err := st.Restore(ctx, rec, true)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	requireClean(t, again)
	if n := again.Report.Count(history.Rebuilt); n != 4 {
		t.Errorf("rebuilt %d features, want 4", n)
	}
	if len(again.Meshes) != len(first.Meshes) {
		t.Errorf("restored %d meshes, want %d", len(again.Meshes), len(first.Meshes))
	}
	if !reflect.DeepEqual(Capture(again.Document), rec) {
		t.Error("restored document differs from the saved record")
	}
}

func TestRestoreUnknownKernelFallsBack(t *testing.T) {
	ctx := context.Background()
	st := newStudio()
	first := st.Evaluate(ctx, readExample(t, "flange.kerf"), false)
	requireClean(t, first)

	rec := Capture(first.Document)
	rec.Kernel = "occt"
	res, err := st.Restore(ctx, rec, false)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	requireClean(t, res)
	if res.Report.Kernel != "nop" {
		t.Errorf("kernel = %q, want the configured nop", res.Report.Kernel)
	}
}
