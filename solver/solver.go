// Package solver implements the damped Newton-Raphson iteration used to
// drive an assembled equation system to its root.
//
// The update solves J·Δx = −F with a dense LU factorization, then applies
// per-variable relative step limits, variable bounds and an adaptive global
// damping factor. Convergence is judged on the scaled maximum residual, so
// one tolerance covers equations in Pa, J/kg and kg/s alike.
package solver

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/pinchsim/pinch/equation"
)

// damping adaptation factors: shrink fast on residual growth, recover slowly
const (
	dampingShrink = 0.5
	dampingGrow   = 1.25
)

// EquationResidual is one entry of a per-equation diagnostic breakdown.
// Value is the scaled absolute residual.
type EquationResidual struct {
	Owner string
	Name  string
	Value float64
}

// Result is the outcome of a solve, returned for failures as well so callers
// can inspect the last iterate and the residual breakdown.
type Result struct {
	Status     Status
	X          []float64
	Iterations int
	Residual   float64 // scaled maximum residual at X
	Breakdown  []EquationResidual
}

// ConvergenceError reports a solve that terminated without converging.
type ConvergenceError struct {
	Status     Status
	Iterations int
	Residual   float64
	Breakdown  []EquationResidual // worst offender first
	Cause      error
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("solver: %s after %d iterations, residual %.6g", e.Status, e.Iterations, e.Residual)
	if len(e.Breakdown) > 0 {
		w := e.Breakdown[0]
		msg += fmt.Sprintf(", worst equation %q of %s (%.6g)", w.Name, w.Owner, w.Value)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConvergenceError) Unwrap() error { return e.Cause }

// Solve drives sys to F(x) = 0 starting from x0. The system must be
// finalized. x0 is not mutated.
//
// Solve returns a Result for every terminal status; when the status is not
// Converged the error is a *ConvergenceError carrying the same diagnostics.
func Solve(sys *equation.System, x0 []float64, opts ...Option) (*Result, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	return SolveWithConfig(sys, x0, cfg)
}

// SolveWithConfig is Solve with an already materialized configuration.
func SolveWithConfig(sys *equation.System, x0 []float64, cfg Config) (*Result, error) {
	n := sys.GetNbVariables()
	if sys.GetNbEquations() != n || sys.Scales() == nil {
		return nil, fmt.Errorf("solver: system must be finalized before solving")
	}
	if len(x0) != n {
		return nil, fmt.Errorf("solver: got %d starting values for %d unknowns", len(x0), n)
	}
	log := cfg.Logger

	lo, hi := sys.Bounds()
	vscale := sys.VarScales()
	scales := sys.Scales()

	x := make([]float64, n)
	copy(x, x0)
	for i := range x { // starting point must sit inside the property domain
		x[i] = math.Min(math.Max(x[i], lo[i]), hi[i])
	}

	r := make([]float64, n)
	result := &Result{Status: Initialized, X: x}

	if err := sys.Residuals(x, r); err != nil {
		result.Status = Diverged
		return result, &ConvergenceError{Status: Diverged, Cause: err}
	}
	res := scaledMax(r, scales)
	result.Residual = res
	if res < cfg.Tolerance {
		// warm start on an already converged state
		result.Status = Converged
		result.Breakdown = breakdown(sys, r, scales)
		return result, nil
	}

	jac := mat.NewDense(n, n, nil)
	delta := mat.NewVecDense(n, nil)
	negr := mat.NewVecDense(n, nil)
	var lu mat.LU

	damping := cfg.Damping
	growth := 0
	prev := res
	result.Status = Iterating

	for it := 1; it <= cfg.MaxIterations; it++ {
		result.Iterations = it

		if err := sys.Jacobian(x, jac, cfg.NbTasks); err != nil {
			return fail(result, sys, r, scales, Diverged, err)
		}
		lu.Factorize(jac)
		for i := 0; i < n; i++ {
			negr.SetVec(i, -r[i])
		}
		if err := lu.SolveVecTo(delta, false, negr); err != nil {
			cond, nearSingular := err.(mat.Condition)
			if !nearSingular || math.IsInf(float64(cond), 0) {
				return fail(result, sys, r, scales, Diverged,
					fmt.Errorf("singular jacobian: %w", err))
			}
			// ill-conditioned but solvable; the damped step may still help
		}

		for i := 0; i < n; i++ {
			d := damping * delta.AtVec(i)
			limit := cfg.MaxRelStep * math.Max(math.Abs(x[i]), vscale[i])
			if d > limit {
				d = limit
			} else if d < -limit {
				d = -limit
			}
			x[i] = math.Min(math.Max(x[i]+d, lo[i]), hi[i])
		}

		if err := sys.Residuals(x, r); err != nil {
			return fail(result, sys, r, scales, Diverged, err)
		}
		res = scaledMax(r, scales)
		result.Residual = res
		if math.IsNaN(res) || math.IsInf(res, 0) {
			return fail(result, sys, r, scales, Diverged,
				fmt.Errorf("residual is not finite"))
		}

		log.Debug().Int("iteration", it).Float64("residual", res).Float64("damping", damping).Msg("newton step")

		if res < cfg.Tolerance {
			result.Status = Converged
			result.Breakdown = breakdown(sys, r, scales)
			return result, nil
		}

		if res > prev {
			growth++
			damping = math.Max(cfg.MinDamping, damping*dampingShrink)
			if growth >= cfg.DivergenceWindow {
				return fail(result, sys, r, scales, Diverged, nil)
			}
		} else {
			growth = 0
			damping = math.Min(1, damping*dampingGrow)
		}
		prev = res
	}

	return fail(result, sys, r, scales, MaxIterationsExceeded, nil)
}

func fail(result *Result, sys *equation.System, r, scales []float64, status Status, cause error) (*Result, error) {
	result.Status = status
	result.Breakdown = breakdown(sys, r, scales)
	return result, &ConvergenceError{
		Status:     status,
		Iterations: result.Iterations,
		Residual:   result.Residual,
		Breakdown:  result.Breakdown,
		Cause:      cause,
	}
}

func scaledMax(r, scales []float64) float64 {
	m := 0.0
	for i := range r {
		if v := math.Abs(r[i]) / scales[i]; v > m {
			m = v
		}
	}
	return m
}

func breakdown(sys *equation.System, r, scales []float64) []EquationResidual {
	out := make([]EquationResidual, len(r))
	for i := range r {
		owner, name := sys.EquationName(i)
		out[i] = EquationResidual{Owner: owner, Name: name, Value: math.Abs(r[i]) / scales[i]}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Value > out[b].Value })
	return out
}
