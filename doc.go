// Package pinch provides steady-state solvers for vapor-compression
// thermodynamic networks (heat pumps, refrigeration and organic Rankine
// cycles) and a high level API to describe them.
//
// A network is a directed graph of components joined by streams. Each stream
// carries mass flow, pressure and enthalpy; components contribute balance
// and performance equations. The assembled nonlinear system is solved with a
// damped Newton-Raphson iteration against a pluggable fluid property
// provider.
//
// pinch supports the following component types:
//   - Source, Sink, CycleCloser
//   - Compressor, Pump, Valve
//   - SimpleHeatExchanger, HeatExchanger, Condenser
//   - Drum, Splitter, Merger
//
// The main entry points are:
//   - network: topology construction, specifications, design and off-design
//     solves
//   - fluid: the property provider interface and a built-in ideal two-phase
//     backend
//   - charline: characteristic curves for off-design component behavior
//   - solver: the Newton engine and its options
package pinch

import (
	"sort"

	"github.com/blang/semver/v4"

	"github.com/pinchsim/pinch/fluid"
)

var Version = semver.MustParse("0.3.0")

// Fluids returns the working fluids known to the built-in property backend.
func Fluids() []string {
	names := fluid.Registered()
	sort.Strings(names)
	return names
}
