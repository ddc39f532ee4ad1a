// Package fluid defines the thermophysical property interface queried by the
// network solver, and a built-in ideal two-phase backend suitable for cycle
// calculations.
//
// All quantities are SI: pressure in Pa, temperature in K, specific enthalpy
// in J/kg, specific entropy in J/(kg·K), quality in kg/kg.
package fluid

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a thermodynamic state property.
type Kind uint8

const (
	Pressure Kind = iota + 1
	Temperature
	Enthalpy
	Entropy
	Quality
)

func (k Kind) String() string {
	switch k {
	case Pressure:
		return "pressure"
	case Temperature:
		return "temperature"
	case Enthalpy:
		return "enthalpy"
	case Entropy:
		return "entropy"
	case Quality:
		return "quality"
	default:
		return "unknown"
	}
}

// Provider computes thermophysical properties of a fluid from two known
// state properties. Implementations must be pure (no state mutated by
// Property) and safe for concurrent use: the solver evaluates residuals and
// Jacobian columns in parallel.
//
// A provider must fail with *DomainError when a query falls outside the
// fluid's valid phase or temperature range; it must never clamp silently.
type Provider interface {
	// Property returns the target property at the state fixed by the two
	// input properties (kA, vA) and (kB, vB) of the named fluid.
	Property(target Kind, kA Kind, vA float64, kB Kind, vB float64, fluid string) (float64, error)

	// Critical returns the critical temperature and pressure of the fluid.
	Critical(fluid string) (tCrit, pCrit float64, err error)
}

// Limits describe the window over which a fluid model is valid. Bounds are
// used by the solver to clamp Newton updates; they are not a substitute for
// the provider's own domain checks.
type Limits struct {
	TMin, TMax float64
	PMin, PMax float64
	HMin, HMax float64
}

// Limiter is an optional Provider capability. When implemented, the network
// uses the reported limits as variable bounds during iteration.
type Limiter interface {
	Limits(fluid string) (Limits, error)
}

var (
	// ErrUnknownFluid is returned when a fluid name is not registered with
	// the backend.
	ErrUnknownFluid = errors.New("fluid: unknown fluid")

	// ErrUnsupportedPair is returned when a backend cannot resolve a state
	// from the given pair of input properties.
	ErrUnsupportedPair = errors.New("fluid: unsupported input pair")
)

// DomainError reports a property query outside the valid region of the
// fluid model. The solver treats it as a divergence cause, not a bug.
type DomainError struct {
	Fluid  string
	Target Kind
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("fluid: %s of %s out of domain: %s", e.Target, e.Fluid, e.Reason)
}

// CompositionString renders a composition map as a provider fluid
// identifier. A pure composition maps to the bare fluid name; mixtures use
// the name[fraction]&name[fraction] form, components sorted by name so the
// identifier is deterministic.
func CompositionString(comp map[string]float64) string {
	if len(comp) == 1 {
		for name := range comp {
			return name
		}
	}
	names := make([]string, 0, len(comp))
	for name := range comp {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte('&')
		}
		fmt.Fprintf(&sb, "%s[%g]", name, comp[name])
	}
	return sb.String()
}

// Convenience wrappers for the query pairs the component library uses.

func TemperaturePH(p Provider, fluid string, pr, h float64) (float64, error) {
	return p.Property(Temperature, Pressure, pr, Enthalpy, h, fluid)
}

func EnthalpyPT(p Provider, fluid string, pr, t float64) (float64, error) {
	return p.Property(Enthalpy, Pressure, pr, Temperature, t, fluid)
}

func EnthalpyPS(p Provider, fluid string, pr, s float64) (float64, error) {
	return p.Property(Enthalpy, Pressure, pr, Entropy, s, fluid)
}

func EnthalpyPQ(p Provider, fluid string, pr, q float64) (float64, error) {
	return p.Property(Enthalpy, Pressure, pr, Quality, q, fluid)
}

func EntropyPH(p Provider, fluid string, pr, h float64) (float64, error) {
	return p.Property(Entropy, Pressure, pr, Enthalpy, h, fluid)
}

func QualityPH(p Provider, fluid string, pr, h float64) (float64, error) {
	return p.Property(Quality, Pressure, pr, Enthalpy, h, fluid)
}

func SaturationPressure(p Provider, fluid string, t float64) (float64, error) {
	return p.Property(Pressure, Temperature, t, Quality, 1, fluid)
}

func SaturationTemperature(p Provider, fluid string, pr float64) (float64, error) {
	return p.Property(Temperature, Pressure, pr, Quality, 1, fluid)
}
