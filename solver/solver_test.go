package solver

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pinchsim/pinch/equation"
)

// buildSystem assembles nonlinear equations over fresh variables and
// finalizes the system.
func buildSystem(t *testing.T, nbVars int, eqs ...func(vars []equation.Variable) equation.Equation) (*equation.System, []equation.Variable) {
	t.Helper()
	sys := equation.New()
	vars := make([]equation.Variable, nbVars)
	for i := range vars {
		vars[i] = sys.AddVariable("x", -1e6, 1e6, 1)
	}
	for _, mk := range eqs {
		if err := sys.AddEquation(mk(vars)); err != nil {
			t.Fatal(err)
		}
	}
	if err := sys.Finalize(); err != nil {
		t.Fatal(err)
	}
	return sys, vars
}

func TestConvergesOnNonlinearSystem(t *testing.T) {
	assert := require.New(t)
	// x0^2 + x1 = 3, x0*x1 = 2; x0 = 1, x1 = 2 is a root
	sys, _ := buildSystem(t, 2,
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "f0", Owner: "t", Kind: equation.Mass, Deps: v,
				Fn: func(x []float64) (float64, error) { return x[0]*x[0] + x[1] - 3, nil },
			}
		},
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "f1", Owner: "t", Kind: equation.Mass, Deps: v,
				Fn: func(x []float64) (float64, error) { return x[0]*x[1] - 2, nil },
			}
		},
	)

	res, err := Solve(sys, []float64{1.4, 1.6})
	assert.NoError(err)
	assert.Equal(Converged, res.Status)
	assert.Less(res.Residual, 1e-6)
	assert.Greater(res.Iterations, 0)

	// the iterate actually satisfies both equations
	assert.InDelta(3, res.X[0]*res.X[0]+res.X[1], 1e-5)
	assert.InDelta(2, res.X[0]*res.X[1], 1e-5)
}

func TestResolveFromConvergedStateIsFree(t *testing.T) {
	assert := require.New(t)
	sys, _ := buildSystem(t, 1,
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "f", Owner: "t", Kind: equation.Mass, Deps: v,
				Fn: func(x []float64) (float64, error) { return x[0]*x[0] - 4, nil },
			}
		},
	)

	first, err := Solve(sys, []float64{1})
	assert.NoError(err)
	assert.Equal(Converged, first.Status)

	second, err := Solve(sys, first.X)
	assert.NoError(err)
	assert.Equal(Converged, second.Status)
	assert.Zero(second.Iterations, "re-solving a converged state must not iterate")
}

func TestMaxIterationsExceeded(t *testing.T) {
	assert := require.New(t)
	// x^2 + 1 has no real root; keep the divergence window out of reach so
	// the iteration cap is what fires
	sys, _ := buildSystem(t, 1,
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "no root", Owner: "t", Kind: equation.Mass, Deps: v,
				Fn: func(x []float64) (float64, error) { return x[0]*x[0] + 1, nil },
			}
		},
	)

	res, err := Solve(sys, []float64{0.5},
		WithMaxIterations(5), WithDivergenceWindow(10))
	assert.Error(err)
	assert.Equal(MaxIterationsExceeded, res.Status)
	assert.Equal(5, res.Iterations)

	var cerr *ConvergenceError
	assert.ErrorAs(err, &cerr)
	assert.Equal(MaxIterationsExceeded, cerr.Status)
	assert.NotEmpty(cerr.Breakdown)
	assert.Equal(cerr.Breakdown[0].Name, "no root")
}

func TestDivergedOnResidualGrowth(t *testing.T) {
	assert := require.New(t)
	sys, _ := buildSystem(t, 1,
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "no root", Owner: "t", Kind: equation.Mass, Deps: v,
				Fn: func(x []float64) (float64, error) { return x[0]*x[0] + 1, nil },
			}
		},
	)

	res, err := Solve(sys, []float64{0.5}, WithDivergenceWindow(1))
	assert.Error(err)
	assert.Equal(Diverged, res.Status)

	var cerr *ConvergenceError
	assert.ErrorAs(err, &cerr)
	assert.Equal(Diverged, cerr.Status)
}

func TestDivergedOnPropertyError(t *testing.T) {
	assert := require.New(t)
	domainEdge := errors.New("query outside fluid domain")
	// root at x = 5, but the model stops existing above 3
	sys, _ := buildSystem(t, 1,
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "wall", Owner: "t", Kind: equation.Mass, Deps: v,
				Fn: func(x []float64) (float64, error) {
					if x[0] > 3 {
						return 0, domainEdge
					}
					return 5 - x[0], nil
				},
			}
		},
	)

	res, err := Solve(sys, []float64{0})
	assert.Error(err)
	assert.Equal(Diverged, res.Status)
	assert.ErrorIs(err, domainEdge, "the failing query must be preserved in the chain")
}

func TestSingularJacobian(t *testing.T) {
	assert := require.New(t)
	// second row is the negative of the first: structurally singular
	sys, _ := buildSystem(t, 2,
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "f0", Owner: "t", Kind: equation.Mass, Deps: v,
				Fn: func(x []float64) (float64, error) { return x[0]*x[0] - x[1] - 1, nil },
			}
		},
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "f1", Owner: "t", Kind: equation.Mass, Deps: v,
				Fn: func(x []float64) (float64, error) { return -x[0]*x[0] + x[1] - 1, nil },
			}
		},
	)

	res, err := Solve(sys, []float64{1, 1})
	assert.Error(err)
	assert.Equal(Diverged, res.Status)
	assert.Contains(err.Error(), "singular")
}

func TestScaledConvergence(t *testing.T) {
	assert := require.New(t)
	// a pressure-kind residual of 0.05 Pa is converged relative to 1e5 Pa
	sys := equation.New()
	v := sys.AddVariable("p", 0, 1e7, 1e5)
	err := sys.AddEquation(equation.Equation{
		Name: "almost there", Owner: "t", Kind: equation.Pressure,
		Deps: []equation.Variable{v},
		Fn:   func(x []float64) (float64, error) { return (x[0] - 2e5) * 1e-3, nil },
	})
	assert.NoError(err)
	assert.NoError(sys.Finalize())

	res, err := Solve(sys, []float64{2e5 + 50})
	assert.NoError(err)
	assert.Equal(Converged, res.Status)
	assert.Zero(res.Iterations)
}

func TestOptionValidation(t *testing.T) {
	sys, _ := buildSystem(t, 1,
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "f", Owner: "t", Kind: equation.Mass, Deps: v,
				Fn: func(x []float64) (float64, error) { return x[0], nil },
			}
		},
	)

	cases := []Option{
		WithTolerance(0),
		WithTolerance(-1),
		WithMaxIterations(0),
		WithDamping(1.5, 0.1),
		WithDamping(0.5, 0.7),
		WithDamping(0.5, 0),
		WithMaxRelStep(0),
		WithDivergenceWindow(0),
		WithNbTasks(0),
		WithNbTasks(1024),
	}
	for i, opt := range cases {
		if _, err := Solve(sys, []float64{1}, opt); err == nil {
			t.Fatalf("case %d: invalid option accepted", i)
		}
	}
}

func TestSolveInputValidation(t *testing.T) {
	assert := require.New(t)
	sys, _ := buildSystem(t, 2,
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "f0", Owner: "t", Kind: equation.Mass, Deps: v[:1],
				Fn: func(x []float64) (float64, error) { return x[0], nil },
			}
		},
		func(v []equation.Variable) equation.Equation {
			return equation.Equation{
				Name: "f1", Owner: "t", Kind: equation.Mass, Deps: v[1:],
				Fn: func(x []float64) (float64, error) { return x[1], nil },
			}
		},
	)

	_, err := Solve(sys, []float64{1})
	assert.Error(err)

	notFinalized := equation.New()
	notFinalized.AddVariable("x", -1, 1, 1)
	_, err = Solve(notFinalized, []float64{0})
	assert.Error(err)
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{
		Initialized:           "initialized",
		Iterating:             "iterating",
		Converged:             "converged",
		Diverged:              "diverged",
		MaxIterationsExceeded: "max iterations exceeded",
		Status(99):            "unknown",
	} {
		if s.String() != want {
			t.Fatalf("Status(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestBoundsRespected(t *testing.T) {
	assert := require.New(t)
	// root at -5 but the variable is bounded to stay positive
	sys := equation.New()
	v := sys.AddVariable("x", 0.1, 10, 1)
	assert.NoError(sys.AddEquation(equation.Equation{
		Name: "f", Owner: "t", Kind: equation.Mass,
		Deps: []equation.Variable{v},
		Fn:   func(x []float64) (float64, error) { return x[0] + 5, nil },
	}))
	assert.NoError(sys.Finalize())

	res, err := Solve(sys, []float64{5}, WithMaxIterations(20))
	assert.Error(err)
	assert.GreaterOrEqual(res.X[0], 0.1, "iterates must never leave the variable bounds")
	assert.True(!math.IsNaN(res.Residual))
}
