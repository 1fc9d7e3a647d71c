package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/sketch"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sdfx", cfg.Kernel.Backend)
	assert.Equal(t, 5*time.Second, cfg.Script.Timeout.Duration)
	assert.Equal(t, sketch.Cascade, cfg.History().Policy)
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse(`
[solver]
max_iterations = 250

[kernel]
backend = "nop"

[sketch]
policy = "reject"
arc_segments = 96

[script]
timeout = "750ms"

[log]
level = "debug"
format = "json"
`)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Solver.MaxIterations)
	assert.Equal(t, Default().Solver.Tolerance, cfg.Solver.Tolerance, "untouched keys keep their defaults")
	assert.Equal(t, "nop", cfg.Kernel.Backend)
	assert.Equal(t, 750*time.Millisecond, cfg.Script.Timeout.Duration)

	hc := cfg.History()
	assert.Equal(t, sketch.Reject, hc.Policy)
	assert.Equal(t, 96, hc.ArcSegments)
	assert.Equal(t, 250, hc.Solver.MaxIterations)

	k, err := cfg.NewKernel()
	require.NoError(t, err)
	assert.Equal(t, "nop", k.Name())
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"unknown key", "[solver]\ntolerence = 1e-9\n"},
		{"unknown section", "[render]\nfps = 60\n"},
		{"negative tolerance", "[solver]\ntolerance = -1.0\n"},
		{"zero iterations", "[solver]\nmax_iterations = 0\n"},
		{"unknown backend", "[kernel]\nbackend = \"occt\"\n"},
		{"unknown policy", "[sketch]\npolicy = \"maybe\"\n"},
		{"few arc segments", "[sketch]\narc_segments = 3\n"},
		{"bad duration", "[script]\ntimeout = \"soon\"\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
		{"bad format", "[log]\nformat = \"xml\"\n"},
		{"syntax", "[solver\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.toml)
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "kerf.toml")
	require.NoError(t, os.WriteFile(path, []byte("[topology]\nmax_score = 0.5\n"), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cfg.Topology.MaxScore, 0)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestOpenKernel(t *testing.T) {
	k, err := OpenKernel("sdfx", 64)
	require.NoError(t, err)
	assert.Equal(t, "sdfx", k.Name())

	_, err = OpenKernel("occt", 0)
	assert.Error(t, err)

	// Without the manifold build tag the backend reports itself missing.
	if _, err := OpenKernel("manifold", 0); err != nil {
		assert.Equal(t, caderr.UnsupportedOperation, caderr.CodeOf(err))
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"
	log := cfg.Logger(&buf)

	log.Info("hidden")
	log.Warn("shown", "feature", "pad")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"feature":"pad"`)
}
