// Package equation holds the assembled nonlinear system of a thermodynamic
// network: the ordered set of unknowns, the residual equations contributed
// by components and stream specifications, and the machinery to evaluate
// residual vectors and the Jacobian.
//
// Variables and equations keep their insertion order, so the same network
// always assembles the same system and solver runs are reproducible.
package equation

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Variable is an opaque handle to one unknown of a System.
type Variable struct {
	index int
}

// Index returns the position of the unknown in the solution vector.
func (v Variable) Index() int { return v.index }

// Kind classifies an equation's physical dimension; it fixes the scale that
// turns a raw residual into a relative one.
type Kind uint8

const (
	Mass        Kind = iota + 1 // kg/s
	Pressure                    // Pa
	Enthalpy                    // J/kg
	Energy                      // W
	Temperature                 // K
	Quality                     // kg/kg
)

// Scale returns the characteristic magnitude of the kind's dimension.
func (k Kind) Scale() float64 {
	switch k {
	case Pressure:
		return 1e5
	case Enthalpy, Energy:
		return 1e4
	default:
		return 1
	}
}

// Func evaluates a residual at the given solution vector.
type Func func(x []float64) (float64, error)

// Equation is a single residual contribution. Deps lists every unknown the
// residual reads; the Jacobian only differentiates along them.
type Equation struct {
	Name  string
	Owner string
	Kind  Kind
	Scale float64 // optional override of Kind.Scale
	Deps  []Variable
	Fn    Func
}

type variableRecord struct {
	name     string
	min, max float64
	scale    float64 // characteristic magnitude for steps and clipping
}

// System is the assembled square system F(x) = 0.
type System struct {
	vars []variableRecord
	eqs  []Equation

	// built by Finalize
	finalized bool
	touch     [][]int // variable index -> equations depending on it
	scales    []float64
	lbuf      sync.Pool // jacobian work vectors
}

// New returns an empty system.
func New() *System {
	return &System{}
}

// AddVariable registers an unknown. min and max bound the value during
// iteration; scale is its characteristic magnitude (used for relative step
// limits and finite-difference steps) and defaults to 1.
func (s *System) AddVariable(name string, min, max, scale float64) Variable {
	if scale <= 0 {
		scale = 1
	}
	s.vars = append(s.vars, variableRecord{name: name, min: min, max: max, scale: scale})
	return Variable{index: len(s.vars) - 1}
}

// AddEquation registers a residual equation.
func (s *System) AddEquation(eq Equation) error {
	if eq.Fn == nil {
		return fmt.Errorf("equation %q of %s has no residual function", eq.Name, eq.Owner)
	}
	if len(eq.Deps) == 0 {
		return fmt.Errorf("equation %q of %s depends on no unknown", eq.Name, eq.Owner)
	}
	deps := make([]Variable, len(eq.Deps))
	copy(deps, eq.Deps)
	slices.SortFunc(deps, func(a, b Variable) int { return a.index - b.index })
	deps = slices.Compact(deps)
	for _, d := range deps {
		if d.index < 0 || d.index >= len(s.vars) {
			return fmt.Errorf("equation %q of %s references unknown variable %d", eq.Name, eq.Owner, d.index)
		}
	}
	eq.Deps = deps
	s.eqs = append(s.eqs, eq)
	return nil
}

func (s *System) GetNbVariables() int { return len(s.vars) }

func (s *System) GetNbEquations() int { return len(s.eqs) }

// NotSquareError reports an equation/unknown count mismatch.
type NotSquareError struct {
	NbVariables, NbEquations int
}

func (e *NotSquareError) Error() string {
	return fmt.Sprintf("equation: system is not square: %d unknowns, %d equations", e.NbVariables, e.NbEquations)
}

// UnconstrainedError reports unknowns no equation depends on. Such a system
// has a structurally singular Jacobian no matter the counts.
type UnconstrainedError struct {
	Variables []string
}

func (e *UnconstrainedError) Error() string {
	return fmt.Sprintf("equation: no equation constrains %v", e.Variables)
}

// Finalize checks the system is square and every unknown is covered by at
// least one equation, then builds the dependency index. The system is
// immutable afterwards.
func (s *System) Finalize() error {
	if s.finalized {
		return errors.New("equation: system already finalized")
	}
	if len(s.vars) != len(s.eqs) {
		return &NotSquareError{NbVariables: len(s.vars), NbEquations: len(s.eqs)}
	}
	if len(s.vars) == 0 {
		return errors.New("equation: empty system")
	}

	covered := bitset.New(uint(len(s.vars)))
	s.touch = make([][]int, len(s.vars))
	for i, eq := range s.eqs {
		for _, d := range eq.Deps {
			covered.Set(uint(d.index))
			s.touch[d.index] = append(s.touch[d.index], i)
		}
	}
	if covered.Count() != uint(len(s.vars)) {
		var names []string
		for i, ok := covered.NextClear(0); ok && i < uint(len(s.vars)); i, ok = covered.NextClear(i + 1) {
			names = append(names, s.vars[i].name)
		}
		return &UnconstrainedError{Variables: names}
	}

	s.scales = make([]float64, len(s.eqs))
	for i, eq := range s.eqs {
		if eq.Scale > 0 {
			s.scales[i] = eq.Scale
		} else {
			s.scales[i] = eq.Kind.Scale()
		}
	}

	n := len(s.vars)
	s.lbuf.New = func() any {
		b := make([]float64, n)
		return &b
	}
	s.finalized = true
	return nil
}

// Residuals evaluates every equation at x into r. Both slices must have
// length GetNbEquations. A property evaluation failure aborts and is
// annotated with the owning equation.
func (s *System) Residuals(x, r []float64) error {
	for i := range s.eqs {
		v, err := s.eqs[i].Fn(x)
		if err != nil {
			return fmt.Errorf("equation %q of %s: %w", s.eqs[i].Name, s.eqs[i].Owner, err)
		}
		r[i] = v
	}
	return nil
}

// Scales returns the per-equation residual scales. The slice is owned by the
// system.
func (s *System) Scales() []float64 { return s.scales }

// Bounds returns newly allocated per-variable lower and upper bound vectors.
func (s *System) Bounds() (lo, hi []float64) {
	lo = make([]float64, len(s.vars))
	hi = make([]float64, len(s.vars))
	for i, v := range s.vars {
		lo[i], hi[i] = v.min, v.max
	}
	return lo, hi
}

// VarScales returns the per-variable characteristic magnitudes.
func (s *System) VarScales() []float64 {
	sc := make([]float64, len(s.vars))
	for i, v := range s.vars {
		sc[i] = v.scale
	}
	return sc
}

// VariableName returns the name of unknown i, for diagnostics.
func (s *System) VariableName(i int) string { return s.vars[i].name }

// EquationName returns owner and name of equation i, for diagnostics.
func (s *System) EquationName(i int) (owner, name string) {
	return s.eqs[i].Owner, s.eqs[i].Name
}

func (s *System) getBuffer() *[]float64 {
	return s.lbuf.Get().(*[]float64)
}

func (s *System) putBuffer(b *[]float64) {
	s.lbuf.Put(b)
}
