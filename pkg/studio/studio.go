// Package studio is the evaluation pipeline shared by kerf front ends:
// script source goes in, a rebuilt document and display meshes come out.
// It also restores saved projects through the same rebuild path.
package studio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chazu/kerf/pkg/config"
	"github.com/chazu/kerf/pkg/document"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/persist"
	"github.com/chazu/kerf/pkg/script"
	"github.com/chazu/kerf/pkg/tessellate"
)

// colorPalette assigns distinct colors to bodies.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// MeshData is the JSON form of one body's mesh.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	Feature  string    `json:"feature"`
	Color    string    `json:"color"`
}

// Problem is a script error or a feature that failed to build.
type Problem struct {
	Line    int    `json:"line,omitempty"`
	Col     int    `json:"col,omitempty"`
	Feature string `json:"feature,omitempty"`
	Message string `json:"message"`
}

// Result is the output of one evaluation.
type Result struct {
	// Document is nil when the script did not run to completion.
	Document *document.Document `json:"-"`
	Report   *history.Report    `json:"report,omitempty"`
	Meshes   []MeshData         `json:"meshes"`
	// Errors stop the pipeline; Warnings are failed features of a
	// document that still produced a (partial) part.
	Errors   []Problem `json:"errors"`
	Warnings []Problem `json:"warnings"`
}

// OK reports whether the pipeline finished without errors or warnings.
func (r *Result) OK() bool { return len(r.Errors) == 0 && len(r.Warnings) == 0 }

// Studio runs the pipeline with one configuration.
type Studio struct {
	cfg    config.Config
	engine *script.Engine
	log    *slog.Logger
	newIDs func() ident.Generator
}

// Option configures a Studio.
type Option func(*Studio)

// WithLogger sets the logger for the studio and every document it makes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Studio) { s.log = l }
}

// WithIDs sets the identifier generator factory, one generator per
// document.
func WithIDs(fn func() ident.Generator) Option {
	return func(s *Studio) { s.newIDs = fn }
}

// New creates a Studio.
func New(cfg config.Config, opts ...Option) *Studio {
	s := &Studio{cfg: cfg, newIDs: func() ident.Generator { return ident.Default }}
	for _, fn := range opts {
		fn(s)
	}
	if s.log == nil {
		s.log = history.Logger()
	}
	s.engine = script.NewEngine(
		script.WithTimeout(cfg.Script.Timeout.Duration),
		script.WithKernel(cfg.NewKernel),
		script.WithConfig(cfg.History()),
		script.WithIDs(s.newIDs),
		script.WithLogger(s.log),
	)
	return s
}

// Config returns the studio's configuration.
func (s *Studio) Config() config.Config { return s.cfg }

// Evaluate runs source, rebuilds the resulting document and, when mesh
// is set, tessellates its bodies.
func (s *Studio) Evaluate(ctx context.Context, source string, mesh bool) *Result {
	res := &Result{Meshes: []MeshData{}, Errors: []Problem{}, Warnings: []Problem{}}

	doc, evalErrs, err := s.engine.Evaluate(ctx, source)
	if err != nil {
		s.log.Error("evaluation failed", "err", err)
		res.Errors = append(res.Errors, Problem{Message: err.Error()})
		return res
	}
	for _, e := range evalErrs {
		res.Errors = append(res.Errors, Problem{Line: e.Line, Col: e.Col, Message: e.Message})
	}
	if len(evalErrs) > 0 {
		return res
	}

	res.Document = doc
	s.finish(ctx, res, mesh)
	return res
}

// Restore rebuilds a saved project. The backend recorded in rec is used
// when it is known, otherwise the configured one.
func (s *Studio) Restore(ctx context.Context, rec *persist.Record, mesh bool) (*Result, error) {
	k, err := s.kernelFor(rec.Kernel)
	if err != nil {
		return nil, err
	}
	h, err := persist.Restore(rec, k,
		history.WithConfig(s.cfg.History()),
		history.WithIDs(s.newIDs()),
		history.WithLogger(s.log),
	)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Document: document.New(k, document.WithHistory(h), document.WithLogger(s.log)),
		Meshes:   []MeshData{},
		Errors:   []Problem{},
		Warnings: []Problem{},
	}
	s.finish(ctx, res, mesh)
	return res, nil
}

func (s *Studio) kernelFor(name string) (kernel.Kernel, error) {
	if name == "" {
		return s.cfg.NewKernel()
	}
	k, err := config.OpenKernel(name, s.cfg.Kernel.MeshCells)
	if err != nil {
		s.log.Warn("recorded kernel unavailable, using configured backend", "kernel", name, "err", err)
		return s.cfg.NewKernel()
	}
	return k, nil
}

// Capture returns the persisted form of doc.
func Capture(doc *document.Document) *persist.Record {
	var rec *persist.Record
	_ = doc.Read(func(h *history.History) error {
		rec = persist.Capture(h)
		return nil
	})
	return rec
}

// finish rebuilds res.Document, records failures as warnings and meshes
// the bodies that did build.
func (s *Studio) finish(ctx context.Context, res *Result, mesh bool) {
	rep, err := res.Document.Rebuild(ctx)
	res.Report = rep
	if err != nil {
		for _, f := range rep.Features {
			if f.Outcome == history.Failed {
				res.Warnings = append(res.Warnings, Problem{Feature: f.Name, Message: f.Error})
			}
		}
		if rep.Count(history.Cancelled) > 0 {
			res.Errors = append(res.Errors, Problem{Message: fmt.Sprintf("rebuild cancelled: %v", ctx.Err())})
			return
		}
	}
	if !mesh {
		return
	}

	meshes, err := tessellate.Document(ctx, res.Document)
	if err != nil {
		s.log.Error("tessellation failed", "err", err)
		res.Errors = append(res.Errors, Problem{Message: "tessellation failed: " + err.Error()})
		return
	}
	for i, m := range meshes {
		res.Meshes = append(res.Meshes, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			Feature:  m.Feature,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
}
