// Package script evaluates kerf modeling scripts.
//
// A script is a zygomys program run in a sandbox. Its builtins (sketch,
// line, constrain, extrude, fillet, ...) drive a fresh document.Document
// through commands, so a script can do nothing the public document API
// could not. The document comes back unbuilt; callers rebuild it.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/kerf/pkg/document"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/kernel/nop"
)

// EvalError is a parse or runtime error in a script.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Engine evaluates scripts. It is safe for concurrent use; only the
// result of the most recent Evaluate is delivered.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	timeout   time.Duration
	newKernel func() (kernel.Kernel, error)
	newIDs    func() ident.Generator
	cfg       history.Config
	log       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds a single evaluation. The default is DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithKernel sets the factory for the backend each document builds with.
// The default is the nop kernel.
func WithKernel(fn func() (kernel.Kernel, error)) Option {
	return func(e *Engine) { e.newKernel = fn }
}

// WithIDs sets the factory for each document's identifier generator.
func WithIDs(fn func() ident.Generator) Option {
	return func(e *Engine) { e.newIDs = fn }
}

// WithConfig sets the rebuild configuration of each document.
func WithConfig(cfg history.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger handed to each document.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeout:   DefaultTimeout,
		newKernel: func() (kernel.Kernel, error) { return nop.New(), nil },
		newIDs:    func() ident.Generator { return ident.Default },
		cfg:       history.DefaultConfig(),
	}
	for _, fn := range opts {
		fn(e)
	}
	if e.log == nil {
		e.log = history.Logger()
	}
	return e
}

// Evaluate runs source against a fresh document.
//
//   - On success: document, nil, nil.
//   - On a parse or runtime error in the script: nil, errors, nil.
//   - On timeout, cancellation, a superseded run or a panic: nil, nil, error.
func (e *Engine) Evaluate(ctx context.Context, source string) (*document.Document, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	k, err := e.newKernel()
	if err != nil {
		return nil, nil, fmt.Errorf("opening kernel: %w", err)
	}
	doc := document.New(k,
		document.WithConfig(e.cfg),
		document.WithIDs(e.newIDs()),
		document.WithLogger(e.log),
	)

	ch := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		errs := run(source, doc)
		ch <- evalResult{errors: errs}
	}()

	res, err := e.wait(ctx, ch, gen)
	if err != nil {
		return nil, nil, err
	}
	if res.err != nil {
		return nil, nil, res.err
	}
	if len(res.errors) > 0 {
		e.log.Debug("script failed", "errors", len(res.errors), "first", res.errors[0].Error())
		return nil, res.errors, nil
	}
	return doc, nil, nil
}

// run evaluates source in a new sandbox wired to doc.
func run(source string, doc *document.Document) []EvalError {
	if strings.TrimSpace(source) == "" {
		return nil
	}

	// The sandbox has no filesystem or system access.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, doc)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return parseZygomysError(err)
	}
	if _, err := env.Run(); err != nil {
		return parseZygomysError(err)
	}
	return nil
}

// zygomys reports positions as "Error on line N: ..." or "line N: ...".
var (
	linePattern      = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)
	linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)
)

func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
