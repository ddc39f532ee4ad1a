package network

import (
	"math"

	"github.com/pinchsim/pinch/equation"
)

// Param is an optional component parameter. It is unset by default, can be
// fixed to a value, or declared free so that the solver determines it.
type Param struct {
	mode  paramMode
	value float64

	v equation.Variable // bound when free and assembled
}

type paramMode uint8

const (
	paramUnset paramMode = iota
	paramFixed
	paramFree
)

// Fixed returns a parameter pinned to the given value.
func Fixed(v float64) Param { return Param{mode: paramFixed, value: v} }

// Free returns a parameter the solver determines. Its equation stays
// active and the parameter becomes an additional unknown.
func Free() Param { return Param{mode: paramFree} }

// IsSet reports whether the parameter is fixed or free.
func (p Param) IsSet() bool { return p.mode != paramUnset }

// IsFixed reports whether the parameter is pinned to a value.
func (p Param) IsFixed() bool { return p.mode == paramFixed }

// IsFree reports whether the parameter is a solver unknown.
func (p Param) IsFree() bool { return p.mode == paramFree }

// Value returns the fixed value, or the solved value after a converged
// solve for free parameters.
func (p Param) Value() float64 { return p.value }

func (p *Param) at(x []float64) float64 {
	if p.mode == paramFree {
		return x[p.v.Index()]
	}
	return p.value
}

// Component is a process unit of the network. Concrete types expose their
// parameters as Param fields; the equations they contribute depend on which
// parameters are set and on the solve mode.
type Component interface {
	// Label returns the component identifier, unique within its network.
	Label() string
	// Inlets returns the inlet port names in order.
	Inlets() []string
	// Outlets returns the outlet port names in order.
	Outlets() []string
	// Equations contributes the residual equations of the component.
	// All ports are bound to streams when it is called.
	Equations(ctx *EquationContext) error
	// SetDesignParams lists parameters whose equations apply only in
	// design mode.
	SetDesignParams(names ...string) error
	// SetOffdesignParams lists parameters whose equations apply only in
	// off-design mode.
	SetOffdesignParams(names ...string) error

	// fluidCircuits groups ports that share one working fluid.
	fluidCircuits() [][]string
	// seedLinks describes how starting values propagate across the
	// component during initialization.
	seedLinks() []seedLink
	// references returns the design-point values recorded into a
	// snapshot for off-design characteristics. Streams are resolved
	// when it is called.
	references() (map[string]float64, error)

	bind(port string, s *Stream) error
	unbind(port string)
	stream(port string) *Stream
	attach(nw *Network)
	network() *Network
}

// seedLink marks two streams of a component as sharing starting values for
// the flagged properties during initialization.
type seedLink struct {
	a, b                *Stream
	copyM, copyP, copyH bool
}

// base carries the identity, ports and parameter lists shared by all
// component types.
type base struct {
	label   string
	inlets  []string
	outlets []string
	params  []string // parameter names valid in design/off-design lists

	streams map[string]*Stream

	design    []string
	offdesign []string

	nw *Network
}

func newBase(label string, inlets, outlets, params []string) base {
	return base{
		label:   label,
		inlets:  inlets,
		outlets: outlets,
		params:  params,
		streams: make(map[string]*Stream, len(inlets)+len(outlets)),
	}
}

func (b *base) Label() string { return b.label }

func (b *base) Inlets() []string { return b.inlets }

func (b *base) Outlets() []string { return b.outlets }

// SetDesignParams lists parameters whose equations are dropped in
// off-design mode, typically because a characteristic replaces them.
func (b *base) SetDesignParams(names ...string) error {
	if err := b.checkParams(names); err != nil {
		return err
	}
	b.design = append([]string(nil), names...)
	b.invalidate()
	return nil
}

// SetOffdesignParams lists parameters that only contribute equations in
// off-design mode.
func (b *base) SetOffdesignParams(names ...string) error {
	if err := b.checkParams(names); err != nil {
		return err
	}
	b.offdesign = append([]string(nil), names...)
	b.invalidate()
	return nil
}

func (b *base) checkParams(names []string) error {
	for _, name := range names {
		ok := false
		for _, p := range b.params {
			if p == name {
				ok = true
				break
			}
		}
		if !ok {
			return &SpecificationError{
				Context: b.label,
				Reason:  "unknown parameter " + name + " in design/off-design list",
			}
		}
	}
	return nil
}

func (b *base) designListed(name string) bool {
	for _, p := range b.design {
		if p == name {
			return true
		}
	}
	return false
}

func (b *base) offdesignListed(name string) bool {
	for _, p := range b.offdesign {
		if p == name {
			return true
		}
	}
	return false
}

// active reports whether a parameter equation applies in the given mode,
// honoring the design and off-design lists.
func (b *base) active(p Param, name string, mode Mode) bool {
	switch mode {
	case Offdesign:
		if b.designListed(name) {
			return false
		}
		return p.IsSet() || b.offdesignListed(name)
	default:
		if b.offdesignListed(name) {
			return false
		}
		return p.IsSet()
	}
}

func (b *base) bind(port string, s *Stream) error {
	if !b.hasPort(port) {
		return &StructuralError{Context: b.label, Reason: "no port named " + port}
	}
	if _, taken := b.streams[port]; taken {
		return &StructuralError{Context: b.label, Reason: "port " + port + " is already connected"}
	}
	b.streams[port] = s
	return nil
}

func (b *base) unbind(port string) { delete(b.streams, port) }

func (b *base) stream(port string) *Stream { return b.streams[port] }

func (b *base) hasPort(port string) bool {
	for _, p := range b.inlets {
		if p == port {
			return true
		}
	}
	for _, p := range b.outlets {
		if p == port {
			return true
		}
	}
	return false
}

func (b *base) attach(nw *Network) { b.nw = nw }

func (b *base) network() *Network { return b.nw }

func (b *base) invalidate() {
	if b.nw != nil {
		b.nw.invalidate()
	}
}

// references is overridden by components that record design-point values.
func (b *base) references() (map[string]float64, error) { return nil, nil }

// logMeanTemperatureDifference returns the log mean of two terminal
// temperature differences. Both must have the same sign; the limit value is
// returned when they are nearly equal.
func logMeanTemperatureDifference(tu, tl float64) (float64, error) {
	if tu == tl {
		return tu, nil
	}
	if tu*tl <= 0 {
		return 0, &temperatureCrossoverError{tu: tu, tl: tl}
	}
	if math.Abs(tu-tl) < 1e-9*math.Abs(tu) {
		return tu, nil
	}
	return (tu - tl) / math.Log(tu/tl), nil
}

// temperatureCrossoverError reports terminal temperature differences of
// opposite sign in a heat transfer equation. The solver treats it like any
// other residual evaluation failure.
type temperatureCrossoverError struct {
	tu, tl float64
}

func (e *temperatureCrossoverError) Error() string {
	return "temperature crossover in heat exchanger"
}
