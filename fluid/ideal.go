package fluid

import (
	"fmt"
	"math"
	"strings"
)

// reference pressure of the saturation anchor (normal boiling point)
const pAtm = 101325.0

// Ideal is the built-in property backend: incompressible liquid with
// constant heat capacity, ideal-gas vapor with constant heat capacity, and a
// saturation line obtained from equality of the phase Gibbs energies. All
// three regions share one reference state, so enthalpy, entropy and the
// saturation curve are mutually consistent and a solved cycle can never beat
// the Carnot limit.
//
// The model is pure-fluid only and valid inside the registered [TMin, TMax]
// window; queries outside it fail with *DomainError.
type Ideal struct{}

// NewIdeal returns the built-in backend. It is stateless and safe for
// concurrent use.
func NewIdeal() *Ideal {
	return &Ideal{}
}

// resolved state of a query; x is the smooth quality extension and may lie
// outside [0,1], or be NaN when the saturation line is not reachable at the
// query pressure.
type state struct {
	t, p, h, s, x float64
}

// Property implements Provider.
func (ideal *Ideal) Property(target Kind, kA Kind, vA float64, kB Kind, vB float64, fluid string) (float64, error) {
	c, err := ideal.coeffs(fluid)
	if err != nil {
		return 0, err
	}

	// canonical input order
	if kA > kB {
		kA, kB, vA, vB = kB, kA, vB, vA
	}

	var st state
	switch {
	case kA == Pressure && kB == Enthalpy:
		st, err = c.statePH(vA, vB)
	case kA == Pressure && kB == Temperature:
		st, err = c.statePT(vA, vB)
	case kA == Pressure && kB == Entropy:
		st, err = c.statePS(vA, vB)
	case kA == Pressure && kB == Quality:
		st, err = c.statePQ(vA, vB)
	case kA == Temperature && kB == Quality:
		st, err = c.stateTQ(vA, vB)
	default:
		return 0, fmt.Errorf("%w: (%s, %s)", ErrUnsupportedPair, kA, kB)
	}
	if err != nil {
		return 0, err
	}

	switch target {
	case Pressure:
		return st.p, nil
	case Temperature:
		return st.t, nil
	case Enthalpy:
		return st.h, nil
	case Entropy:
		return st.s, nil
	case Quality:
		if math.IsNaN(st.x) {
			return 0, &DomainError{Fluid: c.Name, Target: Quality,
				Reason: "saturation line not defined at this pressure"}
		}
		return st.x, nil
	default:
		return 0, fmt.Errorf("fluid: unknown target property %d", target)
	}
}

// Critical implements Provider.
func (ideal *Ideal) Critical(fluid string) (float64, float64, error) {
	c, err := ideal.coeffs(fluid)
	if err != nil {
		return 0, 0, err
	}
	return c.TCrit, c.PCrit, nil
}

// Limits implements Limiter.
func (ideal *Ideal) Limits(fluid string) (Limits, error) {
	c, err := ideal.coeffs(fluid)
	if err != nil {
		return Limits{}, err
	}
	return Limits{
		TMin: c.TMin, TMax: c.TMax,
		PMin: c.psat(c.TMin), PMax: c.PMax,
		HMin: c.hLiq(c.TMin), HMax: c.hVap(c.TMax),
	}, nil
}

func (ideal *Ideal) coeffs(fluid string) (Coefficients, error) {
	if strings.ContainsAny(fluid, "&[") {
		return Coefficients{}, fmt.Errorf("fluid: ideal backend is pure-fluid only, cannot evaluate mixture %q", fluid)
	}
	return lookup(fluid)
}

// region formulas; reference state is saturated liquid at TBoil

func (c Coefficients) dcp() float64 { return c.CpVap - c.CpLiq }

// latent heat of vaporization, linear in T by Kirchhoff's law
func (c Coefficients) latent(t float64) float64 { return c.HVap + c.dcp()*(t-c.TBoil) }

func (c Coefficients) hLiq(t float64) float64 { return c.CpLiq * (t - c.TBoil) }

func (c Coefficients) sLiq(t float64) float64 { return c.CpLiq * math.Log(t/c.TBoil) }

func (c Coefficients) hVap(t float64) float64 { return c.HVap + c.CpVap*(t-c.TBoil) }

func (c Coefficients) sVap(t, p float64) float64 {
	return c.HVap/c.TBoil + c.CpVap*math.Log(t/c.TBoil) - c.R*math.Log(p/pAtm)
}

// lnPsat returns ln(psat(T)/pAtm), derived from g_liq(T) = g_vap(T, psat):
// equal Gibbs energies pin the saturation pressure to the same h and s
// functions used in the single-phase regions.
func (c Coefficients) lnPsat(t float64) float64 {
	return (c.HVap/c.TBoil + c.dcp()*math.Log(t/c.TBoil) - c.latent(t)/t) / c.R
}

func (c Coefficients) psat(t float64) float64 {
	return pAtm * math.Exp(c.lnPsat(t))
}

// tCap is the highest temperature the saturation line is evaluated at; the
// linear latent heat crosses zero above it and the model stops making sense.
func (c Coefficients) tCap() float64 {
	if c.dcp() >= 0 {
		return 4 * c.TMax
	}
	return 0.999 * (c.TBoil - c.HVap/c.dcp())
}

// tsat inverts the saturation line with Newton iteration.
// d lnPsat/dT = latent/(R·T²) > 0, so the line is strictly monotone on
// (0, tCap) and the iteration is safe once clamped into that interval.
func (c Coefficients) tsat(p float64) (float64, error) {
	lo, hi := 0.5*c.TMin, c.tCap()
	target := math.Log(p / pAtm)
	if target < c.lnPsat(lo) || target > c.lnPsat(hi) {
		return 0, &DomainError{Fluid: c.Name, Target: Temperature,
			Reason: fmt.Sprintf("no saturation temperature at %.6g Pa", p)}
	}

	// Clausius-Clapeyron start with constant latent heat
	t := 1 / (1/c.TBoil - c.R*target/c.HVap)
	t = math.Min(math.Max(t, lo), hi)

	for i := 0; i < 100; i++ {
		f := c.lnPsat(t) - target
		if math.Abs(f) < 1e-13 {
			return t, nil
		}
		dt := f * c.R * t * t / c.latent(t)
		t -= dt
		t = math.Min(math.Max(t, lo), hi)
		if math.Abs(dt) < 1e-10*t {
			return t, nil
		}
	}
	return 0, &DomainError{Fluid: c.Name, Target: Temperature,
		Reason: fmt.Sprintf("saturation inversion did not converge at %.6g Pa", p)}
}

func (c Coefficients) checkT(t float64) error {
	if t < c.TMin || t > c.TMax || math.IsNaN(t) {
		return &DomainError{Fluid: c.Name, Target: Temperature,
			Reason: fmt.Sprintf("%.2f K outside [%.2f, %.2f] K", t, c.TMin, c.TMax)}
	}
	return nil
}

func (c Coefficients) checkP(p float64) error {
	if p <= 0 || p > c.PMax || math.IsNaN(p) {
		return &DomainError{Fluid: c.Name, Target: Pressure,
			Reason: fmt.Sprintf("%.6g Pa outside (0, %.6g] Pa", p, c.PMax)}
	}
	return nil
}

// saturationAt resolves the dome at pressure p. ok is false when p is below
// the saturation pressure at TMin, i.e. only superheated vapor exists inside
// the window.
func (c Coefficients) saturationAt(p float64) (ts, hl, hv float64, ok bool, err error) {
	if p < c.psat(c.TMin) {
		return 0, 0, 0, false, nil
	}
	ts, err = c.tsat(p)
	if err != nil {
		return 0, 0, 0, false, err
	}
	return ts, c.hLiq(ts), c.hVap(ts), true, nil
}

func (c Coefficients) statePH(p, h float64) (state, error) {
	if err := c.checkP(p); err != nil {
		return state{}, err
	}
	ts, hl, hv, wet, err := c.saturationAt(p)
	if err != nil {
		return state{}, err
	}
	if !wet {
		t := c.TBoil + (h-c.HVap)/c.CpVap
		if err := c.checkT(t); err != nil {
			return state{}, err
		}
		return state{t: t, p: p, h: h, s: c.sVap(t, p), x: math.NaN()}, nil
	}

	x := (h - hl) / (hv - hl)
	switch {
	case h < hl: // subcooled liquid
		t := c.TBoil + h/c.CpLiq
		if err := c.checkT(t); err != nil {
			return state{}, err
		}
		return state{t: t, p: p, h: h, s: c.sLiq(t), x: x}, nil
	case h > hv: // superheated vapor
		t := c.TBoil + (h-c.HVap)/c.CpVap
		if err := c.checkT(t); err != nil {
			return state{}, err
		}
		return state{t: t, p: p, h: h, s: c.sVap(t, p), x: x}, nil
	default: // two-phase
		if err := c.checkT(ts); err != nil {
			return state{}, err
		}
		return state{t: ts, p: p, h: h, s: c.sLiq(ts) + x*c.latent(ts)/ts, x: x}, nil
	}
}

func (c Coefficients) statePT(p, t float64) (state, error) {
	if err := c.checkP(p); err != nil {
		return state{}, err
	}
	if err := c.checkT(t); err != nil {
		return state{}, err
	}
	ts, hl, hv, wet, err := c.saturationAt(p)
	if err != nil {
		return state{}, err
	}
	if !wet || t >= ts {
		x := math.NaN()
		if wet {
			x = (c.hVap(t) - hl) / (hv - hl)
		}
		return state{t: t, p: p, h: c.hVap(t), s: c.sVap(t, p), x: x}, nil
	}
	return state{t: t, p: p, h: c.hLiq(t), s: c.sLiq(t), x: (c.hLiq(t) - hl) / (hv - hl)}, nil
}

func (c Coefficients) statePS(p, s float64) (state, error) {
	if err := c.checkP(p); err != nil {
		return state{}, err
	}
	ts, hl, hv, wet, err := c.saturationAt(p)
	if err != nil {
		return state{}, err
	}
	if !wet {
		t := c.TBoil * math.Exp((s-c.HVap/c.TBoil+c.R*math.Log(p/pAtm))/c.CpVap)
		if err := c.checkT(t); err != nil {
			return state{}, err
		}
		return state{t: t, p: p, h: c.hVap(t), s: s, x: math.NaN()}, nil
	}

	sl, sv := c.sLiq(ts), c.sVap(ts, p)
	switch {
	case s < sl: // subcooled liquid
		t := c.TBoil * math.Exp(s/c.CpLiq)
		if err := c.checkT(t); err != nil {
			return state{}, err
		}
		h := c.hLiq(t)
		return state{t: t, p: p, h: h, s: s, x: (h - hl) / (hv - hl)}, nil
	case s > sv: // superheated vapor
		t := c.TBoil * math.Exp((s-c.HVap/c.TBoil+c.R*math.Log(p/pAtm))/c.CpVap)
		if err := c.checkT(t); err != nil {
			return state{}, err
		}
		h := c.hVap(t)
		return state{t: t, p: p, h: h, s: s, x: (h - hl) / (hv - hl)}, nil
	default: // two-phase
		if err := c.checkT(ts); err != nil {
			return state{}, err
		}
		x := (s - sl) / (sv - sl)
		return state{t: ts, p: p, h: hl + x*(hv-hl), s: s, x: x}, nil
	}
}

func (c Coefficients) statePQ(p, q float64) (state, error) {
	if err := c.checkP(p); err != nil {
		return state{}, err
	}
	ts, hl, hv, wet, err := c.saturationAt(p)
	if err != nil {
		return state{}, err
	}
	if !wet {
		return state{}, &DomainError{Fluid: c.Name, Target: Quality,
			Reason: fmt.Sprintf("no saturation state at %.6g Pa", p)}
	}
	if err := c.checkT(ts); err != nil {
		return state{}, err
	}
	return state{t: ts, p: p, h: hl + q*(hv-hl), s: c.sLiq(ts) + q*c.latent(ts)/ts, x: q}, nil
}

func (c Coefficients) stateTQ(t, q float64) (state, error) {
	if err := c.checkT(t); err != nil {
		return state{}, err
	}
	p := c.psat(t)
	if err := c.checkP(p); err != nil {
		return state{}, err
	}
	return state{t: t, p: p, h: c.hLiq(t) + q*c.latent(t), s: c.sLiq(t) + q*c.latent(t)/t, x: q}, nil
}
