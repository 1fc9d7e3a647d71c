// Package solver solves sketch constraints as a non-linear least-squares
// problem using damped Gauss-Newton (Levenberg-Marquardt) steps.
//
// Unknowns are the free scalar parameters of all entities, minus those
// pinned by Fixed constraints. Every constraint contributes one or more
// residual equations; the solver drives the residual norm below the
// configured tolerance. A successful solve writes the solution back to
// the sketch; a failed one leaves the sketch exactly as it was.
package solver

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/sketch"
)

// Config controls convergence.
type Config struct {
	// Tolerance is the residual norm below which the system is solved.
	Tolerance float64 `toml:"tolerance" json:"tolerance"`
	// MaxIterations bounds the number of accepted or rejected steps.
	MaxIterations int `toml:"max_iterations" json:"maxIterations"`
	// Damping is the initial Levenberg-Marquardt damping factor.
	Damping float64 `toml:"damping" json:"damping"`
	// Step is the relative finite-difference step for the Jacobian.
	Step float64 `toml:"step" json:"step"`
}

// DefaultConfig returns the default solver settings.
func DefaultConfig() Config {
	return Config{
		Tolerance:     1e-9,
		MaxIterations: 100,
		Damping:       1e-3,
		Step:          1e-7,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Damping <= 0 {
		c.Damping = d.Damping
	}
	if c.Step <= 0 {
		c.Step = d.Step
	}
	return c
}

// Status describes the outcome of a solve.
type Status int

const (
	// Unsolved is the status of a failed solve.
	Unsolved Status = iota
	// Converged means every degree of freedom is determined.
	Converged
	// UnderConstrained means the residual is satisfied but DOF > 0; the
	// solution is the one nearest the starting values.
	UnderConstrained
)

func (s Status) String() string {
	switch s {
	case Unsolved:
		return "unsolved"
	case Converged:
		return "converged"
	case UnderConstrained:
		return "under-constrained"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result reports a solve. Failed solves return Status Unsolved with the
// iteration count and the residual where the solver stopped.
type Result struct {
	Status     Status  `json:"status"`
	Iterations int     `json:"iterations"`
	Residual   float64 `json:"residual"`
	Unknowns   int     `json:"unknowns"`
	Equations  int     `json:"equations"`
	DOF        int     `json:"dof"`
}

// variable addresses one unknown scalar.
type variable struct {
	entity sketch.EntityID
	index  int
}

// system is the least-squares problem built from a sketch snapshot.
type system struct {
	order     []sketch.EntityID
	state     view
	vars      []variable
	residuals []*residual
	m         int
}

func newSystem(s *sketch.Sketch) *system {
	sys := &system{state: make(view)}
	for _, e := range s.Entities() {
		sys.order = append(sys.order, e.ID)
		sys.state[e.ID] = &entityState{kind: e.Kind, params: e.Params}
	}

	pinned := make(map[variable]bool)
	for _, c := range s.Constraints() {
		if c.Kind == sketch.Fixed {
			r := c.Refs[0]
			e := sys.state[r.Entity]
			if r.Pos == sketch.PosWhole {
				for i := range e.params {
					pinned[variable{r.Entity, i}] = true
				}
			} else if ix, iy, ok := sketch.PointParams(e.kind, r.Pos); ok {
				pinned[variable{r.Entity, ix}] = true
				pinned[variable{r.Entity, iy}] = true
			}
		}
		if res := buildResidual(c, sys.state); res != nil {
			sys.residuals = append(sys.residuals, res)
			sys.m += res.n
		}
	}

	for _, id := range sys.order {
		for i := range sys.state[id].params {
			v := variable{id, i}
			if !pinned[v] {
				sys.vars = append(sys.vars, v)
			}
		}
	}
	return sys
}

func (sys *system) get() []float64 {
	x := make([]float64, len(sys.vars))
	for i, v := range sys.vars {
		x[i] = sys.state[v.entity].params[v.index]
	}
	return x
}

func (sys *system) set(x []float64) {
	for i, v := range sys.vars {
		sys.state[v.entity].params[v.index] = x[i]
	}
}

// eval computes the residual vector at x into dst.
func (sys *system) eval(x, dst []float64) {
	sys.set(x)
	off := 0
	for _, r := range sys.residuals {
		r.eval(sys.state, dst[off:off+r.n])
		off += r.n
	}
}

// jacobian computes the m×n Jacobian at x by central differences.
func (sys *system) jacobian(x []float64, step float64) *mat.Dense {
	m, n := sys.m, len(x)
	J := mat.NewDense(m, n, nil)
	plus := make([]float64, m)
	minus := make([]float64, m)
	xs := append([]float64(nil), x...)
	for j := 0; j < n; j++ {
		h := step * math.Max(1, math.Abs(x[j]))
		xs[j] = x[j] + h
		sys.eval(xs, plus)
		xs[j] = x[j] - h
		sys.eval(xs, minus)
		xs[j] = x[j]
		for i := 0; i < m; i++ {
			J.Set(i, j, (plus[i]-minus[i])/(2*h))
		}
	}
	sys.set(x)
	return J
}

// Solve solves the sketch's constraints in place.
//
// On success the solved values are written back and the sketch is no
// longer stale. On ConstraintConflict or SolverDiverged the sketch keeps
// its pre-solve values.
func Solve(s *sketch.Sketch, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()
	sys := newSystem(s)
	n, m := len(sys.vars), sys.m

	x := sys.get()
	x0 := append([]float64(nil), x...)
	r := make([]float64, m)
	sys.eval(x, r)
	norm := norm2(r)

	iterations, kicks := 0, 0
	lambda := cfg.Damping
	trial := make([]float64, m)
	stalled := n == 0

	for norm >= cfg.Tolerance && iterations < cfg.MaxIterations && n > 0 {
		iterations++
		J := sys.jacobian(x, cfg.Step)

		var jtj mat.SymDense
		jtj.SymOuterK(1, J.T())
		var g mat.VecDense
		g.MulVec(J.T(), mat.NewVecDense(m, append([]float64(nil), r...)))

		// A vanishing gradient with a nonzero residual is either a true
		// least-squares minimum or a kink of a distance residual (two
		// coincident points, a center on its tangent line). Step off it a
		// few times before giving up.
		if mat.Norm(&g, 2) <= stationary*math.Max(1, norm) {
			if kicks == maxKicks {
				stalled = true
				break
			}
			kicks++
			x = perturb(x, kicks)
			sys.eval(x, r)
			norm = norm2(r)
			lambda = cfg.Damping
			continue
		}

		accepted := false
		for lambda < 1e16 {
			A := mat.NewSymDense(n, nil)
			A.CopySym(&jtj)
			for i := 0; i < n; i++ {
				A.SetSym(i, i, A.At(i, i)+lambda)
			}
			var chol mat.Cholesky
			if !chol.Factorize(A) {
				lambda *= 10
				continue
			}
			var d mat.VecDense
			if err := chol.SolveVecTo(&d, &g); err != nil {
				lambda *= 10
				continue
			}

			xn := make([]float64, n)
			for i := range xn {
				xn[i] = x[i] - d.AtVec(i)
			}
			sys.eval(xn, trial)
			if tn := norm2(trial); tn < norm {
				x, norm = xn, tn
				r, trial = trial, r
				lambda = math.Max(lambda/10, 1e-15)
				accepted = true
				break
			}
			lambda *= 10
		}
		if !accepted {
			stalled = true
			break
		}
	}
	sys.set(x)

	res := Result{
		Iterations: iterations,
		Residual:   norm,
		Unknowns:   n,
		Equations:  m,
	}

	if norm >= cfg.Tolerance {
		// Conflict needs a stall and equations that stay dependent away
		// from the stall point; anything else ran out of budget or got
		// stuck in a local minimum.
		if stalled || sys.stationaryAt(x, cfg.Step) {
			if rank := sys.genericRank(x, cfg.Step); rank < m {
				return res, caderr.New(caderr.ConstraintConflict, "Solve",
					"sketch %s is over-constrained: residual %.3g with %d independent of %d equations",
					s.ID, norm, rank, m).WithIDs(sys.implicated(cfg.Tolerance)...)
			}
		}
		return res, caderr.New(caderr.SolverDiverged, "Solve",
			"sketch %s did not converge after %d iterations (residual %.3g)", s.ID, iterations, norm)
	}

	rank := 0
	if n > 0 && m > 0 {
		rank = jacobianRank(sys.jacobian(x, cfg.Step))
	}
	res.DOF = n - rank
	res.Status = Converged
	if res.DOF > 0 {
		res.Status = UnderConstrained
	}

	if equal(x, x0) {
		s.MarkSolved()
		return res, nil
	}
	values := make(map[sketch.EntityID][]float64, len(sys.order))
	for _, id := range sys.order {
		values[id] = sys.state[id].params
	}
	s.ApplySolution(values)
	return res, nil
}

// implicated lists constraints whose residual exceeds tol, largest
// first. If the error is spread thinly, the single largest is returned.
func (sys *system) implicated(tol float64) []string {
	type contrib struct {
		id  sketch.ConstraintID
		mag float64
	}
	var all []contrib
	buf := make([]float64, 2)
	for _, r := range sys.residuals {
		r.eval(sys.state, buf[:r.n])
		all = append(all, contrib{r.id, norm2(buf[:r.n])})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].mag > all[j].mag })

	var ids []string
	for _, c := range all {
		if c.mag > tol {
			ids = append(ids, string(c.id))
		}
	}
	if len(ids) == 0 && len(all) > 0 {
		ids = append(ids, string(all[0].id))
	}
	return ids
}

const (
	// stationary bounds the gradient norm, relative to the residual norm,
	// below which no descent direction is left.
	stationary = 1e-12
	// maxKicks bounds the perturbations tried from stationary points.
	maxKicks = 3
	// kickScale is the relative size of a perturbation.
	kickScale = 1e-3
)

// perturb returns x moved by a small deterministic offset. Each round k
// uses a different pattern so repeated kicks do not retrace each other.
func perturb(x []float64, k int) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = v + kickScale*math.Max(1, math.Abs(v))*math.Sin(float64(j+1)*(1+0.618*float64(k)))
	}
	return out
}

// stationaryAt reports whether the residual at x is orthogonal to the
// Jacobian's columns, so no step can reduce it further.
func (sys *system) stationaryAt(x []float64, step float64) bool {
	if len(x) == 0 || sys.m == 0 {
		return true
	}
	r := make([]float64, sys.m)
	sys.eval(x, r)
	J := sys.jacobian(x, step)
	var g mat.VecDense
	g.MulVec(J.T(), mat.NewVecDense(sys.m, r))
	return mat.Norm(&g, 2) <= 1e-6*mat.Norm(J, 2)*norm2(r)
}

// genericRank is the Jacobian rank at a point near x, so that a kink or
// symmetric configuration at x itself does not hide independent
// equations. The working state is left at x.
func (sys *system) genericRank(x []float64, step float64) int {
	if len(x) == 0 || sys.m == 0 {
		return 0
	}
	rank := jacobianRank(sys.jacobian(perturb(x, maxKicks+1), step))
	sys.set(x)
	return rank
}

// jacobianRank counts singular values above a relative threshold.
func jacobianRank(J *mat.Dense) int {
	var svd mat.SVD
	if !svd.Factorize(J, mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	if len(values) == 0 {
		return 0
	}
	threshold := 1e-8 * math.Max(1, values[0])
	rank := 0
	for _, v := range values {
		if v > threshold {
			rank++
		}
	}
	return rank
}

func norm2(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func equal(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
