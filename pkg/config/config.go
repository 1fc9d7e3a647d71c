// Package config loads kerf settings from TOML.
//
// A file only needs the keys it changes; everything else keeps the value
// from Default. Unknown keys are rejected so typos do not pass silently.
//
//	[solver]
//	tolerance = 1e-9
//	max_iterations = 100
//
//	[kernel]
//	backend = "sdfx"
//	mesh_cells = 120
//
//	[script]
//	timeout = "2s"
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/kernel/manifold"
	"github.com/chazu/kerf/pkg/kernel/nop"
	"github.com/chazu/kerf/pkg/kernel/sdfx"
	"github.com/chazu/kerf/pkg/sketch"
	"github.com/chazu/kerf/pkg/solver"
)

// Config is the full settings tree.
type Config struct {
	Solver   solver.Config          `toml:"solver"`
	Topology history.TopologyConfig `toml:"topology"`
	Kernel   KernelConfig           `toml:"kernel"`
	Sketch   SketchConfig           `toml:"sketch"`
	Script   ScriptConfig           `toml:"script"`
	Log      LogConfig              `toml:"log"`
}

// KernelConfig selects the geometry backend.
type KernelConfig struct {
	// Backend is "nop", "sdfx" or "manifold".
	Backend string `toml:"backend"`
	// MeshCells is the sdfx marching cubes resolution.
	MeshCells int `toml:"mesh_cells"`
}

// SketchConfig holds sketch and profile settings.
type SketchConfig struct {
	// Policy is "cascade" or "reject".
	Policy           string  `toml:"policy"`
	ProfileTolerance float64 `toml:"profile_tolerance"`
	ArcSegments      int     `toml:"arc_segments"`
}

// ScriptConfig holds modeling-script settings.
type ScriptConfig struct {
	Timeout Duration `toml:"timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in settings.
func Default() Config {
	hc := history.DefaultConfig()
	return Config{
		Solver:   hc.Solver,
		Topology: hc.Topology,
		Kernel:   KernelConfig{Backend: sdfx.Name, MeshCells: 200},
		Sketch: SketchConfig{
			Policy:           sketch.Cascade.String(),
			ProfileTolerance: hc.ProfileTolerance,
			ArcSegments:      hc.ArcSegments,
		},
		Script: ScriptConfig{Timeout: Duration{5 * time.Second}},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load overlays the TOML file at path on Default and validates the
// result. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()
	if err := cfg.decode(f); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse overlays TOML text on Default and validates the result.
func Parse(text string) (Config, error) {
	cfg := Default()
	if err := cfg.decode(strings.NewReader(text)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return fmt.Errorf("parsing config: %w", err)
	}
	return c.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case !(c.Solver.Tolerance > 0):
		return fmt.Errorf("solver.tolerance must be positive, got %g", c.Solver.Tolerance)
	case c.Solver.MaxIterations <= 0:
		return fmt.Errorf("solver.max_iterations must be positive, got %d", c.Solver.MaxIterations)
	case c.Solver.Damping < 0:
		return fmt.Errorf("solver.damping must not be negative, got %g", c.Solver.Damping)
	case !(c.Solver.Step > 0):
		return fmt.Errorf("solver.step must be positive, got %g", c.Solver.Step)
	case !(c.Topology.MaxScore > 0):
		return fmt.Errorf("topology.max_score must be positive, got %g", c.Topology.MaxScore)
	case !(c.Sketch.ProfileTolerance > 0):
		return fmt.Errorf("sketch.profile_tolerance must be positive, got %g", c.Sketch.ProfileTolerance)
	case c.Sketch.ArcSegments < 8:
		return fmt.Errorf("sketch.arc_segments must be at least 8, got %d", c.Sketch.ArcSegments)
	case c.Kernel.MeshCells <= 0:
		return fmt.Errorf("kernel.mesh_cells must be positive, got %d", c.Kernel.MeshCells)
	case c.Script.Timeout.Duration <= 0:
		return fmt.Errorf("script.timeout must be positive, got %s", c.Script.Timeout)
	}
	switch c.Kernel.Backend {
	case nop.Name, sdfx.Name, manifold.Name:
	default:
		return fmt.Errorf("kernel.backend %q is not one of nop, sdfx, manifold", c.Kernel.Backend)
	}
	if _, err := sketch.ParseRemovalPolicy(c.Sketch.Policy); err != nil {
		return fmt.Errorf("sketch.policy: %w", err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not text or json", c.Log.Format)
	}
	return nil
}

// History returns the rebuild settings.
func (c Config) History() history.Config {
	policy, _ := sketch.ParseRemovalPolicy(c.Sketch.Policy)
	return history.Config{
		Solver:           c.Solver,
		Topology:         c.Topology,
		ProfileTolerance: c.Sketch.ProfileTolerance,
		ArcSegments:      c.Sketch.ArcSegments,
		Policy:           policy,
	}
}

// NewKernel opens the configured backend.
func (c Config) NewKernel() (kernel.Kernel, error) {
	return OpenKernel(c.Kernel.Backend, c.Kernel.MeshCells)
}

// OpenKernel opens a backend by name. meshCells applies to sdfx only.
func OpenKernel(name string, meshCells int) (kernel.Kernel, error) {
	switch name {
	case nop.Name:
		return nop.New(), nil
	case sdfx.Name:
		return sdfx.New(sdfx.WithMeshCells(meshCells)), nil
	case manifold.Name:
		return manifold.New()
	}
	return nil, fmt.Errorf("unknown kernel backend %q", name)
}

// Logger builds a slog logger writing to w at the configured level and
// format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}
