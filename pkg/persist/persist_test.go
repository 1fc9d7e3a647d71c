package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/kernel/nop"
	"github.com/chazu/kerf/pkg/sketch"
)

// project builds a small history touching every feature kind.
func project(t *testing.T) *history.History {
	t.Helper()
	h := history.New(nop.New(), history.WithIDs(ident.NewSequence()))

	sk := h.CreateSketch("base", geom.PlaneXY())
	s, err := h.Sketch(sk)
	require.NoError(t, err)
	c := s.AddEntity(sketch.Circle(0, 0, 5))
	p := s.AddEntity(sketch.Point(10, 0))
	require.NoError(t, s.SetConstruction(p, true))
	_, err = s.AddConstraint(sketch.Radius, []sketch.Ref{sketch.On(c)}, 5)
	require.NoError(t, err)

	pad, err := h.AddFeature(history.Spec{Name: "pad", Params: &history.ExtrudeParams{Sketch: sk, Distance: 10}})
	require.NoError(t, err)
	lid, err := h.AddFeature(history.Spec{Name: "cap", Params: &history.RevolveParams{
		Sketch: sk,
		Axis:   geom.Axis{Origin: geom.Vec3{X: 10}, Direction: geom.YAxis},
		Angle:  3.5,
	}})
	require.NoError(t, err)
	fused, err := h.AddFeature(history.Spec{Name: "fused", Params: &history.BooleanParams{
		Op:       kernel.Union,
		Operands: []history.FeatureID{pad, lid},
	}})
	require.NoError(t, err)
	_, err = h.AddFeature(history.Spec{Name: "round", Params: &history.BlendParams{
		Input: fused,
		Size:  0.5,
		Edges: []string{"edge/0", "edge/3"},
	}})
	require.NoError(t, err)
	require.NoError(t, h.SetRollback(3))
	return h
}

func TestCaptureGolden(t *testing.T) {
	data, err := Marshal(Capture(project(t)), JSON)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "project_v2", data)
}

func TestRoundTripPreservesProject(t *testing.T) {
	for _, f := range []Format{JSON, YAML} {
		t.Run(f.String(), func(t *testing.T) {
			want := Capture(project(t))
			data, err := Marshal(want, f)
			require.NoError(t, err)

			rec, err := Unmarshal(data, f)
			require.NoError(t, err)
			h, err := Restore(rec, nop.New())
			require.NoError(t, err)

			assert.Equal(t, want, Capture(h))
			assert.Equal(t, 3, h.Rollback())
			assert.Equal(t, 4, h.Len())

			s, err := h.Sketch("sketch-0001")
			require.NoError(t, err)
			e, ok := s.Entity("entity-0002")
			require.True(t, ok)
			assert.True(t, e.Construction)
		})
	}
}

func TestSuppressionSurvivesRoundTrip(t *testing.T) {
	h := project(t)
	lid := h.Features()[1].ID
	require.NoError(t, h.SetSuppressed(lid, true))

	rec := Capture(h)
	assert.True(t, rec.Features[1].Suppressed)
	assert.False(t, rec.Features[0].Suppressed)

	data, err := Marshal(rec, YAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "suppressed: true")
	back, err := Unmarshal(data, YAML)
	require.NoError(t, err)

	restored, err := Restore(back, nop.New())
	require.NoError(t, err)
	f, err := restored.Feature(lid)
	require.NoError(t, err)
	assert.True(t, f.Suppressed())
	assert.False(t, restored.Active(lid))
}

func TestRestoredProjectRebuilds(t *testing.T) {
	rec := Capture(project(t))
	h, err := Restore(rec, nop.New(), history.WithIDs(ident.NewSequence()))
	require.NoError(t, err)

	rep, err := h.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Count(history.Rebuilt))
	assert.Equal(t, 1, rep.Count(history.Suppressed))

	// New geometry after a restore must not collide with saved identifiers.
	s, err := h.Sketch("sketch-0001")
	require.NoError(t, err)
	id := s.AddEntity(sketch.Point(1, 1))
	assert.NotEqual(t, sketch.EntityID("entity-0001"), id)
	assert.NotEqual(t, sketch.EntityID("entity-0002"), id)
}

func TestLoadVersion1(t *testing.T) {
	rec, err := Load(filepath.Join("testdata", "bracket_v1.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version)
	assert.Nil(t, rec.Rollback)

	h, err := Restore(rec, nop.New())
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 2, h.Rollback(), "version 1 projects are fully active")

	f, err := h.Feature("f2")
	require.NoError(t, err)
	p := f.Params().(*history.ExtrudeParams)
	assert.Equal(t, history.Symmetric, p.Direction)
	assert.Equal(t, history.Join, p.Op)
	assert.Equal(t, history.FeatureID("f1"), p.Target)

	_, err = h.Rebuild(context.Background())
	require.NoError(t, err)
}

func TestLoadHandEditedYAML(t *testing.T) {
	rec, err := Load(filepath.Join("testdata", "washer.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sdfx", rec.Kernel)

	h, err := Restore(rec, nop.New())
	require.NoError(t, err)
	assert.Equal(t, 1, h.Rollback())

	s, err := h.Sketch("s1")
	require.NoError(t, err)
	assert.Equal(t, sketch.Reject, s.Policy())
	assert.Equal(t, 2, s.EntityCount())

	f, err := h.Feature("f2")
	require.NoError(t, err)
	assert.Equal(t, history.KindChamfer, f.Kind())
}

func TestUnmarshalRejectsUnknownVersions(t *testing.T) {
	for _, data := range []string{
		`{"version": 3, "sketches": [], "features": []}`,
		`{"sketches": [], "features": []}`,
	} {
		_, err := Unmarshal([]byte(data), JSON)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrVersion), "got %v", err)
	}
}

func TestRestoreRevalidates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Record)
		code   caderr.Code
	}{
		{"forward reference", func(r *Record) {
			r.Features[2].Operands = []string{"feature-0001", "feature-0004"}
		}, caderr.InvalidReference},
		{"unknown entity in constraint", func(r *Record) {
			r.Sketches[0].Constraints[0].Refs[0].Entity = "ghost"
		}, caderr.InvalidReference},
		{"bad parameter count", func(r *Record) {
			r.Sketches[0].Entities[0].Params = []float64{1}
		}, caderr.ArityMismatch},
		{"rollback out of range", func(r *Record) {
			k := 9
			r.Rollback = &k
		}, caderr.InvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Capture(project(t))
			tt.mutate(rec)
			_, err := Restore(rec, nop.New())
			require.Error(t, err)
			assert.Equal(t, tt.code, caderr.CodeOf(err))
		})
	}
}

func TestSaveAndLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	rec := Capture(project(t))
	for _, name := range []string{"p.json", "p.yaml", "p.yml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, rec))
		got, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, rec, got, name)
	}
	assert.Equal(t, YAML, FormatOf("a.YML"))
	assert.Equal(t, JSON, FormatOf("a.kerf"))
}
