package network

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pinchsim/pinch/equation"
	"github.com/pinchsim/pinch/fluid"
)

// fallback variable bounds when the provider reports no limits
const (
	defaultPMin = 1e2
	defaultPMax = 1e9
	defaultHMin = -1e7
	defaultHMax = 1e7

	massFlowBound = 1e6
)

// assembly binds a validated network to an equation system: stream
// quantities and free parameters become variables, components and stream
// specifications contribute equations.
type assembly struct {
	nw   *Network
	sys  *equation.System
	mode Mode
	snap *Snapshot

	freeParams []*Param
	seeds      map[int]float64 // variable index -> starting value
}

func (nw *Network) assemble(mode Mode, snap *Snapshot) (*assembly, error) {
	a := &assembly{
		nw:    nw,
		sys:   equation.New(),
		mode:  mode,
		snap:  snap,
		seeds: make(map[int]float64),
	}

	for _, s := range nw.streams {
		lim := nw.streamLimits(s.fluidID)
		if !s.m.fixed {
			s.m.v = a.sys.AddVariable(s.label+".m", -massFlowBound, massFlowBound, 1)
		}
		if !s.p.fixed {
			s.p.v = a.sys.AddVariable(s.label+".p", lim.PMin, lim.PMax, 1e5)
		}
		if !s.h.fixed {
			s.h.v = a.sys.AddVariable(s.label+".h", lim.HMin, lim.HMax, 1e5)
		}
	}

	ctx := &EquationContext{asm: a}
	for _, c := range nw.components {
		ctx.comp = c
		if err := c.Equations(ctx); err != nil {
			return nil, err
		}
	}
	for _, s := range nw.streams {
		if err := a.streamSpecEquations(s); err != nil {
			return nil, err
		}
	}

	if err := a.sys.Finalize(); err != nil {
		return nil, mapFinalizeError(err)
	}
	return a, nil
}

// streamLimits returns the variable bounds for a stream's fluid, falling
// back to wide defaults when the provider does not report limits.
func (nw *Network) streamLimits(fluidID string) fluid.Limits {
	lim := fluid.Limits{PMin: defaultPMin, PMax: defaultPMax, HMin: defaultHMin, HMax: defaultHMax}
	if l, ok := nw.provider.(fluid.Limiter); ok {
		if got, err := l.Limits(fluidID); err == nil {
			lim = got
		}
	}
	return lim
}

// streamSpecEquations adds the equations tying a stream's (p, h) pair to a
// specified temperature or quality, honoring the stream's design and
// off-design lists.
func (a *assembly) streamSpecEquations(s *Stream) error {
	prov, fl := a.nw.provider, s.fluidID
	p, h := &s.p, &s.h

	if s.tSpec != nil && s.specActive("T", a.mode) {
		t := *s.tSpec
		ds := deps(p, h)
		if len(ds) == 0 {
			return &SpecificationError{Context: "stream " + s.label, Reason: "temperature specification relates only fixed quantities"}
		}
		err := a.sys.AddEquation(equation.Equation{
			Name:  "temperature specification",
			Owner: "stream " + s.label,
			Kind:  equation.Temperature,
			Deps:  ds,
			Fn: func(x []float64) (float64, error) {
				tx, err := fluid.TemperaturePH(prov, fl, p.at(x), h.at(x))
				if err != nil {
					return 0, err
				}
				return tx - t, nil
			},
		})
		if err != nil {
			return err
		}
	}
	if s.xSpec != nil && s.specActive("x", a.mode) {
		q := *s.xSpec
		ds := deps(p, h)
		if len(ds) == 0 {
			return &SpecificationError{Context: "stream " + s.label, Reason: "quality specification relates only fixed quantities"}
		}
		err := a.sys.AddEquation(equation.Equation{
			Name:  "quality specification",
			Owner: "stream " + s.label,
			Kind:  equation.Quality,
			Deps:  ds,
			Fn: func(x []float64) (float64, error) {
				qx, err := fluid.QualityPH(prov, fl, p.at(x), h.at(x))
				if err != nil {
					return 0, err
				}
				return qx - q, nil
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// mapFinalizeError turns the equation package's structural verdicts into
// user-facing specification errors.
func mapFinalizeError(err error) error {
	var nse *equation.NotSquareError
	if errors.As(err, &nse) {
		reason := "underspecified system, add specifications"
		if nse.NbEquations > nse.NbVariables {
			reason = "overspecified system, remove specifications"
		}
		return &SpecificationError{
			Context:     "system",
			Reason:      reason,
			NbUnknowns:  nse.NbVariables,
			NbEquations: nse.NbEquations,
		}
	}
	var ue *equation.UnconstrainedError
	if errors.As(err, &ue) {
		return &SpecificationError{
			Context: "system",
			Reason:  "no equation constrains " + strings.Join(ue.Variables, ", "),
		}
	}
	return err
}

// EquationContext is handed to a component while the system is assembled.
// It scopes equation registration to that component and exposes the fluid
// and characteristic providers, the solve mode and the design references.
type EquationContext struct {
	asm  *assembly
	comp Component
}

// Mode returns the solve mode being assembled.
func (ctx *EquationContext) Mode() Mode { return ctx.asm.mode }

func (ctx *EquationContext) provider() fluid.Provider { return ctx.asm.nw.provider }

// add registers a residual equation owned by the current component. An
// equation relating only fixed values indicates an over-specification and
// is rejected here, before the square check would report it less precisely.
func (ctx *EquationContext) add(kind equation.Kind, name string, ds []equation.Variable, fn equation.Func) error {
	if len(ds) == 0 {
		return &SpecificationError{Context: ctx.comp.Label(), Reason: name + " relates only fixed quantities"}
	}
	return ctx.asm.sys.AddEquation(equation.Equation{
		Name:  name,
		Owner: ctx.comp.Label(),
		Kind:  kind,
		Deps:  ds,
		Fn:    fn,
	})
}

// paramVar turns a free parameter into a system unknown with the given
// bounds, characteristic scale and starting value. Fixed or unset
// parameters are left untouched.
func (ctx *EquationContext) paramVar(p *Param, name string, lo, hi, scale, guess float64) {
	if !p.IsFree() {
		return
	}
	p.v = ctx.asm.sys.AddVariable(ctx.comp.Label()+"."+name, lo, hi, scale)
	ctx.asm.freeParams = append(ctx.asm.freeParams, p)
	ctx.asm.seeds[p.v.Index()] = guess
}

// resolveParam returns the parameter to build an equation from. An unset
// parameter that is active in off-design mode is listed in the component's
// off-design set, which means it holds its design-point value: the design
// reference is pulled from the snapshot and pinned.
func (ctx *EquationContext) resolveParam(p *Param, name string) (*Param, error) {
	if ctx.asm.mode == Offdesign && !p.IsSet() {
		ref, err := ctx.reference(name)
		if err != nil {
			return nil, err
		}
		pinned := Fixed(ref)
		return &pinned, nil
	}
	return p, nil
}

// reference looks up a design value recorded for the current component.
func (ctx *EquationContext) reference(param string) (float64, error) {
	if ctx.asm.snap == nil {
		return 0, ErrNoDesignSnapshot
	}
	v, ok := ctx.asm.snap.Reference(ctx.comp.Label(), param)
	if !ok {
		return 0, &SpecificationError{Context: ctx.comp.Label(), Reason: "design snapshot lacks reference " + param}
	}
	return v, nil
}

// checkCurve probes a characteristic curve identifier once during assembly
// so a missing curve fails before iterating starts.
func (ctx *EquationContext) checkCurve(id string) error {
	if _, err := ctx.asm.nw.chars.Evaluate(id, 1); err != nil {
		return fmt.Errorf("network: %s: %w", ctx.comp.Label(), err)
	}
	return nil
}

func withParam(ds []equation.Variable, p *Param) []equation.Variable {
	if p != nil && p.IsFree() {
		return append(ds, p.v)
	}
	return ds
}

// massBalance equates the mass flows of two streams.
func (ctx *EquationContext) massBalance(in, out *Stream) error {
	mi, mo := &in.m, &out.m
	return ctx.add(equation.Mass, "mass flow balance", deps(mi, mo), func(x []float64) (float64, error) {
		return mi.at(x) - mo.at(x), nil
	})
}

// pressureEquality equates the pressures of two streams.
func (ctx *EquationContext) pressureEquality(a, b *Stream, name string) error {
	pa, pb := &a.p, &b.p
	return ctx.add(equation.Pressure, name, deps(pa, pb), func(x []float64) (float64, error) {
		return pa.at(x) - pb.at(x), nil
	})
}

// enthalpyEquality equates the specific enthalpies of two streams.
func (ctx *EquationContext) enthalpyEquality(a, b *Stream, name string) error {
	ha, hb := &a.h, &b.h
	return ctx.add(equation.Enthalpy, name, deps(ha, hb), func(x []float64) (float64, error) {
		return ha.at(x) - hb.at(x), nil
	})
}

// pressureRatio constrains p_out = pr * p_in.
func (ctx *EquationContext) pressureRatio(in, out *Stream, pr *Param, name string) error {
	pi, po := &in.p, &out.p
	ds := withParam(deps(pi, po), pr)
	return ctx.add(equation.Pressure, name, ds, func(x []float64) (float64, error) {
		return pr.at(x)*pi.at(x) - po.at(x), nil
	})
}

// initialVector builds the starting point. Per variable, the most recent
// converged solution wins, then the snapshot solution, then the seed
// derived from specifications and propagation.
func (a *assembly) initialVector() []float64 {
	a.streamSeeds()
	n := a.sys.GetNbVariables()
	x0 := make([]float64, n)
	for i := 0; i < n; i++ {
		name := a.sys.VariableName(i)
		if v, ok := a.nw.warm[name]; ok {
			x0[i] = v
			continue
		}
		if a.snap != nil {
			if v, ok := a.snap.Solution[name]; ok {
				x0[i] = v
				continue
			}
		}
		x0[i] = a.seeds[i]
	}
	return x0
}

// seedState holds the starting values of one stream while they are derived.
// NaN marks a property still undetermined.
type seedState struct {
	m, p, h float64
}

// streamSeeds derives starting values for every free stream quantity:
// fixed values and user guesses first, then hints from temperature and
// quality specifications, then propagation across components that preserve
// a property, and finally fluid-dependent defaults.
func (a *assembly) streamSeeds() {
	prov := a.nw.provider
	seed := make(map[*Stream]*seedState, len(a.nw.streams))
	for _, s := range a.nw.streams {
		st := &seedState{m: math.NaN(), p: math.NaN(), h: math.NaN()}
		switch {
		case s.m.fixed:
			st.m = s.m.value
		case s.m.hasGuess:
			st.m = s.m.guess
		}
		switch {
		case s.p.fixed:
			st.p = s.p.value
		case s.p.hasGuess:
			st.p = s.p.guess
		}
		switch {
		case s.h.fixed:
			st.h = s.h.value
		case s.h.hasGuess:
			st.h = s.h.guess
		}
		seed[s] = st
	}

	hint := func() {
		for _, s := range a.nw.streams {
			st := seed[s]
			if math.IsNaN(st.p) && s.tSpec != nil && s.xSpec != nil {
				if p, err := fluid.SaturationPressure(prov, s.fluidID, *s.tSpec); err == nil {
					st.p = p
				}
			}
			if math.IsNaN(st.h) && !math.IsNaN(st.p) {
				switch {
				case s.xSpec != nil:
					if h, err := fluid.EnthalpyPQ(prov, s.fluidID, st.p, *s.xSpec); err == nil {
						st.h = h
					}
				case s.tSpec != nil:
					if h, err := fluid.EnthalpyPT(prov, s.fluidID, st.p, *s.tSpec); err == nil {
						st.h = h
					}
				}
			}
		}
	}
	propagate := func() {
		for pass := 0; pass < len(a.nw.streams); pass++ {
			changed := false
			for _, c := range a.nw.components {
				for _, l := range c.seedLinks() {
					sa, sb := seed[l.a], seed[l.b]
					if sa == nil || sb == nil {
						continue
					}
					if l.copyM {
						changed = copyKnown(&sa.m, &sb.m) || changed
					}
					if l.copyP {
						changed = copyKnown(&sa.p, &sb.p) || changed
					}
					if l.copyH {
						changed = copyKnown(&sa.h, &sb.h) || changed
					}
				}
			}
			if !changed {
				break
			}
		}
	}

	hint()
	propagate()
	hint()
	propagate()

	for _, s := range a.nw.streams {
		st := seed[s]
		lim := a.nw.streamLimits(s.fluidID)
		if math.IsNaN(st.p) {
			st.p = math.Sqrt(lim.PMin * lim.PMax)
		}
		if math.IsNaN(st.h) {
			switch {
			case s.xSpec != nil:
				if h, err := fluid.EnthalpyPQ(prov, s.fluidID, st.p, *s.xSpec); err == nil {
					st.h = h
				}
			case s.tSpec != nil:
				if h, err := fluid.EnthalpyPT(prov, s.fluidID, st.p, *s.tSpec); err == nil {
					st.h = h
				}
			}
			if math.IsNaN(st.h) {
				st.h = 0.5 * (lim.HMin + lim.HMax)
			}
		}
		if math.IsNaN(st.m) {
			st.m = 1
		}
		if !s.m.fixed {
			a.seeds[s.m.v.Index()] = st.m
		}
		if !s.p.fixed {
			a.seeds[s.p.v.Index()] = st.p
		}
		if !s.h.fixed {
			a.seeds[s.h.v.Index()] = st.h
		}
	}
}

// copyKnown fills whichever of the two values is NaN from the other.
func copyKnown(a, b *float64) bool {
	switch {
	case math.IsNaN(*a) && !math.IsNaN(*b):
		*a = *b
		return true
	case math.IsNaN(*b) && !math.IsNaN(*a):
		*b = *a
		return true
	}
	return false
}

// writeBack stores the converged solution on streams and free parameters.
func (a *assembly) writeBack(x []float64) error {
	for _, p := range a.freeParams {
		p.value = x[p.v.Index()]
	}
	prov := a.nw.provider
	for _, s := range a.nw.streams {
		m, pr, h := s.m.at(x), s.p.at(x), s.h.at(x)
		t, err := fluid.TemperaturePH(prov, s.fluidID, pr, h)
		if err != nil {
			return fmt.Errorf("network: resolving state of stream %s: %w", s.label, err)
		}
		sp, err := fluid.EntropyPH(prov, s.fluidID, pr, h)
		if err != nil {
			return fmt.Errorf("network: resolving state of stream %s: %w", s.label, err)
		}
		q, err := fluid.QualityPH(prov, s.fluidID, pr, h)
		if err != nil {
			var de *fluid.DomainError
			if !errors.As(err, &de) {
				return fmt.Errorf("network: resolving state of stream %s: %w", s.label, err)
			}
			q = math.NaN() // quality undefined at this pressure
		}
		s.state = StreamState{M: m, P: pr, H: h, T: t, X: q, S: sp}
		s.solved = true
	}
	return nil
}

// solutionMap keys the solution vector by variable name for warm starts.
func (a *assembly) solutionMap(x []float64) map[string]float64 {
	m := make(map[string]float64, len(x))
	for i := range x {
		m[a.sys.VariableName(i)] = x[i]
	}
	return m
}
