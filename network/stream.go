package network

import (
	"math"
	"sort"

	"github.com/pinchsim/pinch/equation"
	"github.com/pinchsim/pinch/fluid"
)

// quantity is one stream property that is either fixed by the user or a
// solver unknown. When free, v is bound to a system variable during
// assembly and at reads the current iterate; when fixed, at returns the
// specified value regardless of x.
type quantity struct {
	fixed bool
	value float64

	guess    float64
	hasGuess bool

	v equation.Variable
}

func (q *quantity) at(x []float64) float64 {
	if q.fixed {
		return q.value
	}
	return x[q.v.Index()]
}

// deps collects the quantities that are unknowns into a dependency list.
func deps(qs ...*quantity) []equation.Variable {
	ds := make([]equation.Variable, 0, len(qs))
	for _, q := range qs {
		if !q.fixed {
			ds = append(ds, q.v)
		}
	}
	return ds
}

// StreamState is the resolved thermodynamic state of a stream after a
// converged solve. X is NaN where the vapor quality is undefined for the
// working fluid at the solved pressure.
type StreamState struct {
	M float64 // mass flow rate, kg/s
	P float64 // pressure, Pa
	H float64 // specific enthalpy, J/kg
	T float64 // temperature, K
	X float64 // vapor quality
	S float64 // specific entropy, J/(kg.K)
}

// Stream connects an outlet port of one component to an inlet port of
// another and carries the mass flow, pressure and enthalpy unknowns of the
// flow between them. Temperature and quality are not unknowns; specifying
// them adds an equation tying them to (p, h).
type Stream struct {
	label string

	src     Component
	srcPort string
	dst     Component
	dstPort string

	m, p, h quantity

	tSpec *float64
	xSpec *float64

	designSpecs    []string
	offdesignSpecs []string

	composition map[string]float64
	compSet     bool   // user-set on this stream, a propagation source
	fluidID     string // resolved during validation

	state  StreamState
	solved bool

	nw *Network
}

// Label returns the stream identifier, unique within its network.
func (s *Stream) Label() string { return s.label }

// Source returns the component and port the stream leaves from.
func (s *Stream) Source() (Component, string) { return s.src, s.srcPort }

// Target returns the component and port the stream enters.
func (s *Stream) Target() (Component, string) { return s.dst, s.dstPort }

// State returns the resolved stream state of the last converged solve.
func (s *Stream) State() (StreamState, error) {
	if !s.solved {
		return StreamState{}, &SpecificationError{Context: "stream " + s.label, Reason: "no converged solution available"}
	}
	return s.state, nil
}

// nbStateSpecs counts the independent thermodynamic state constraints
// among {p, h, T, x}. Mass flow is not a state property.
func (s *Stream) nbStateSpecs() int {
	n := 0
	if s.p.fixed {
		n++
	}
	if s.h.fixed {
		n++
	}
	if s.tSpec != nil {
		n++
	}
	if s.xSpec != nil {
		n++
	}
	return n
}

func (s *Stream) checkStateSpec(name string) error {
	if s.nbStateSpecs() >= 2 {
		return &SpecificationError{
			Context: "stream " + s.label,
			Reason:  "cannot fix " + name + ", two state properties are already specified",
		}
	}
	return nil
}

// SetMassFlow fixes the mass flow rate in kg/s.
func (s *Stream) SetMassFlow(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &SpecificationError{Context: "stream " + s.label, Reason: "mass flow must be finite"}
	}
	s.m.fixed, s.m.value = true, v
	s.nw.invalidate()
	return nil
}

// SetPressure fixes the pressure in Pa.
func (s *Stream) SetPressure(v float64) error {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return &SpecificationError{Context: "stream " + s.label, Reason: "pressure must be positive and finite"}
	}
	if !s.p.fixed {
		if err := s.checkStateSpec("pressure"); err != nil {
			return err
		}
	}
	s.p.fixed, s.p.value = true, v
	s.nw.invalidate()
	return nil
}

// SetEnthalpy fixes the specific enthalpy in J/kg.
func (s *Stream) SetEnthalpy(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &SpecificationError{Context: "stream " + s.label, Reason: "enthalpy must be finite"}
	}
	if !s.h.fixed {
		if err := s.checkStateSpec("enthalpy"); err != nil {
			return err
		}
	}
	s.h.fixed, s.h.value = true, v
	s.nw.invalidate()
	return nil
}

// SetTemperature constrains the stream temperature in K. The constraint is
// enforced through an equation T(p, h) = v, so pressure and enthalpy may
// stay free.
func (s *Stream) SetTemperature(v float64) error {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return &SpecificationError{Context: "stream " + s.label, Reason: "temperature must be positive and finite"}
	}
	if s.tSpec == nil {
		if err := s.checkStateSpec("temperature"); err != nil {
			return err
		}
	}
	t := v
	s.tSpec = &t
	s.nw.invalidate()
	return nil
}

// SetQuality constrains the vapor quality, 0 for saturated liquid and 1 for
// saturated vapor.
func (s *Stream) SetQuality(v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return &SpecificationError{Context: "stream " + s.label, Reason: "quality must be in [0, 1]"}
	}
	if s.xSpec == nil {
		if err := s.checkStateSpec("quality"); err != nil {
			return err
		}
	}
	x := v
	s.xSpec = &x
	s.nw.invalidate()
	return nil
}

// ClearMassFlow turns the mass flow back into an unknown.
func (s *Stream) ClearMassFlow() { s.m.fixed = false; s.nw.invalidate() }

// ClearPressure turns the pressure back into an unknown.
func (s *Stream) ClearPressure() { s.p.fixed = false; s.nw.invalidate() }

// ClearEnthalpy turns the enthalpy back into an unknown.
func (s *Stream) ClearEnthalpy() { s.h.fixed = false; s.nw.invalidate() }

// ClearTemperature removes a temperature constraint.
func (s *Stream) ClearTemperature() { s.tSpec = nil; s.nw.invalidate() }

// ClearQuality removes a quality constraint.
func (s *Stream) ClearQuality() { s.xSpec = nil; s.nw.invalidate() }

// SetDesignSpecs lists stream specifications that apply in design mode
// only, so off-design solves let them float. Only the equation-backed
// specifications "T" and "x" can be listed.
func (s *Stream) SetDesignSpecs(props ...string) error {
	if err := s.checkSpecList(props); err != nil {
		return err
	}
	s.designSpecs = append([]string(nil), props...)
	s.nw.invalidate()
	return nil
}

// SetOffdesignSpecs lists stream specifications that apply in off-design
// mode only.
func (s *Stream) SetOffdesignSpecs(props ...string) error {
	if err := s.checkSpecList(props); err != nil {
		return err
	}
	s.offdesignSpecs = append([]string(nil), props...)
	s.nw.invalidate()
	return nil
}

func (s *Stream) checkSpecList(props []string) error {
	for _, p := range props {
		if p != "T" && p != "x" {
			return &SpecificationError{
				Context: "stream " + s.label,
				Reason:  "only T and x can appear in design/off-design lists, not " + p,
			}
		}
	}
	return nil
}

// specActive reports whether a specification applies in the given mode.
func (s *Stream) specActive(prop string, mode Mode) bool {
	if mode == Offdesign {
		return !contains(s.designSpecs, prop)
	}
	return !contains(s.offdesignSpecs, prop)
}

// GuessMassFlow sets the starting value used for the mass flow unknown.
func (s *Stream) GuessMassFlow(v float64) { s.m.guess, s.m.hasGuess = v, true }

// GuessPressure sets the starting value used for the pressure unknown.
func (s *Stream) GuessPressure(v float64) { s.p.guess, s.p.hasGuess = v, true }

// GuessEnthalpy sets the starting value used for the enthalpy unknown.
func (s *Stream) GuessEnthalpy(v float64) { s.h.guess, s.h.hasGuess = v, true }

// SetComposition fixes the fluid composition of the stream as mass
// fractions per fluid name. Fractions must be non-negative and sum to one.
// The composition propagates to all streams of the same fluid circuit
// during validation.
func (s *Stream) SetComposition(fractions map[string]float64) error {
	if len(fractions) == 0 {
		return &SpecificationError{Context: "stream " + s.label, Reason: "composition must name at least one fluid"}
	}
	sum := 0.0
	for name, f := range fractions {
		if name == "" {
			return &SpecificationError{Context: "stream " + s.label, Reason: "composition contains an empty fluid name"}
		}
		if f < 0 || math.IsNaN(f) {
			return &SpecificationError{Context: "stream " + s.label, Reason: "mass fraction of " + name + " must be non-negative"}
		}
		sum += f
	}
	if math.Abs(sum-1) > 1e-9 {
		return &SpecificationError{Context: "stream " + s.label, Reason: "mass fractions must sum to one"}
	}
	c := make(map[string]float64, len(fractions))
	for name, f := range fractions {
		if f > 0 {
			c[name] = f
		}
	}
	s.composition = c
	s.compSet = true
	s.nw.invalidate()
	return nil
}

// SetFluid is shorthand for a pure working fluid.
func (s *Stream) SetFluid(name string) error {
	return s.SetComposition(map[string]float64{name: 1})
}

// Composition returns the resolved composition of the stream. It is empty
// until set or propagated by validation.
func (s *Stream) Composition() map[string]float64 {
	out := make(map[string]float64, len(s.composition))
	for k, v := range s.composition {
		out[k] = v
	}
	return out
}

// Fluids returns the fluid names of the composition in lexicographic order.
func (s *Stream) Fluids() []string {
	names := make([]string, 0, len(s.composition))
	for name := range s.composition {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Stream) fluid() string { return s.fluidID }

// sameComposition reports whether two resolved compositions match.
func sameComposition(a, b map[string]float64) bool {
	return fluid.CompositionString(a) == fluid.CompositionString(b)
}
