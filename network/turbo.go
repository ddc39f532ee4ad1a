package network

import (
	"github.com/pinchsim/pinch/charline"
	"github.com/pinchsim/pinch/equation"
	"github.com/pinchsim/pinch/fluid"
)

// turbo is the shared core of adiabatic one-stage turbomachines. The
// isentropic efficiency relates real to ideal specific work; in off-design
// mode a characteristic line scales the design efficiency with the relative
// mass flow.
type turbo struct {
	base

	// EtaS is the isentropic efficiency.
	EtaS Param
	// PR is the outlet to inlet pressure ratio.
	PR Param
	// P is the shaft power in W.
	P Param

	// EtaSCharID overrides the default efficiency characteristic curve.
	EtaSCharID string

	defaultChar string
}

func newTurbo(label, defaultChar string) turbo {
	return turbo{
		base:        newBase(label, []string{"in1"}, []string{"out1"}, []string{"eta_s", "pr", "P", "eta_s_char"}),
		defaultChar: defaultChar,
	}
}

func (t *turbo) charID() string {
	if t.EtaSCharID != "" {
		return t.EtaSCharID
	}
	return t.defaultChar
}

func (t *turbo) Equations(ctx *EquationContext) error {
	in, out := t.stream("in1"), t.stream("out1")
	if err := ctx.massBalance(in, out); err != nil {
		return err
	}
	if t.active(t.EtaS, "eta_s", ctx.Mode()) {
		eta, err := ctx.resolveParam(&t.EtaS, "eta_s")
		if err != nil {
			return err
		}
		ctx.paramVar(eta, "eta_s", 0.01, 1, 1, 0.7)
		if err := ctx.isentropicEfficiency(in, out, eta); err != nil {
			return err
		}
	}
	if ctx.Mode() == Offdesign && t.offdesignListed("eta_s_char") {
		if err := ctx.isentropicEfficiencyChar(in, out, t.charID()); err != nil {
			return err
		}
	}
	if t.active(t.PR, "pr", ctx.Mode()) {
		pr, err := ctx.resolveParam(&t.PR, "pr")
		if err != nil {
			return err
		}
		ctx.paramVar(pr, "pr", 1e-4, 1e4, 1, 2)
		if err := ctx.pressureRatio(in, out, pr, "pressure ratio"); err != nil {
			return err
		}
	}
	if t.active(t.P, "P", ctx.Mode()) {
		power, err := ctx.resolveParam(&t.P, "P")
		if err != nil {
			return err
		}
		ctx.paramVar(power, "P", -1e12, 1e12, 1e4, 0)
		if err := ctx.shaftPower(in, out, power); err != nil {
			return err
		}
	}
	return nil
}

func (t *turbo) fluidCircuits() [][]string {
	return [][]string{{"in1", "out1"}}
}

func (t *turbo) seedLinks() []seedLink {
	return []seedLink{{a: t.stream("in1"), b: t.stream("out1"), copyM: true}}
}

func (t *turbo) references() (map[string]float64, error) {
	in, err := t.stream("in1").State()
	if err != nil {
		return nil, err
	}
	out, err := t.stream("out1").State()
	if err != nil {
		return nil, err
	}
	refs := map[string]float64{
		"m": in.M,
		"P": in.M * (out.H - in.H),
	}
	if in.P != 0 {
		refs["pr"] = out.P / in.P
	}
	switch {
	case t.EtaS.IsSet():
		refs["eta_s"] = t.EtaS.Value()
	case out.H != in.H:
		prov, fl := t.nw.provider, t.stream("in1").fluid()
		s, err := fluid.EntropyPH(prov, fl, in.P, in.H)
		if err != nil {
			return nil, err
		}
		hs, err := fluid.EnthalpyPS(prov, fl, out.P, s)
		if err != nil {
			return nil, err
		}
		refs["eta_s"] = (hs - in.H) / (out.H - in.H)
	}
	return refs, nil
}

// Power returns the shaft power of the last converged solve in W.
func (t *turbo) Power() (float64, error) {
	in, err := t.stream("in1").State()
	if err != nil {
		return 0, err
	}
	out, err := t.stream("out1").State()
	if err != nil {
		return 0, err
	}
	return in.M * (out.H - in.H), nil
}

// isentropicEfficiency constrains eta_s * (h_out - h_in) to the isentropic
// enthalpy rise at the outlet pressure.
func (ctx *EquationContext) isentropicEfficiency(in, out *Stream, eta *Param) error {
	prov, fl := ctx.provider(), in.fluid()
	pi, hi, po, ho := &in.p, &in.h, &out.p, &out.h
	ds := withParam(deps(pi, hi, po, ho), eta)
	return ctx.add(equation.Enthalpy, "isentropic efficiency", ds, func(x []float64) (float64, error) {
		s, err := fluid.EntropyPH(prov, fl, pi.at(x), hi.at(x))
		if err != nil {
			return 0, err
		}
		hs, err := fluid.EnthalpyPS(prov, fl, po.at(x), s)
		if err != nil {
			return 0, err
		}
		return eta.at(x)*(ho.at(x)-hi.at(x)) - (hs - hi.at(x)), nil
	})
}

// isentropicEfficiencyChar is the off-design variant: the efficiency is the
// design value scaled by the characteristic at the relative mass flow.
func (ctx *EquationContext) isentropicEfficiencyChar(in, out *Stream, charID string) error {
	if err := ctx.checkCurve(charID); err != nil {
		return err
	}
	etaRef, err := ctx.reference("eta_s")
	if err != nil {
		return err
	}
	mRef, err := ctx.reference("m")
	if err != nil {
		return err
	}
	if mRef == 0 {
		return &SpecificationError{Context: ctx.comp.Label(), Reason: "design mass flow reference is zero"}
	}
	prov, fl, chars := ctx.provider(), in.fluid(), ctx.asm.nw.chars
	m, pi, hi, po, ho := &in.m, &in.p, &in.h, &out.p, &out.h
	ds := deps(m, pi, hi, po, ho)
	return ctx.add(equation.Enthalpy, "isentropic efficiency characteristic", ds, func(x []float64) (float64, error) {
		f, err := chars.Evaluate(charID, m.at(x)/mRef)
		if err != nil {
			return 0, err
		}
		s, err := fluid.EntropyPH(prov, fl, pi.at(x), hi.at(x))
		if err != nil {
			return 0, err
		}
		hs, err := fluid.EnthalpyPS(prov, fl, po.at(x), s)
		if err != nil {
			return 0, err
		}
		return etaRef*f*(ho.at(x)-hi.at(x)) - (hs - hi.at(x)), nil
	})
}

// shaftPower constrains m * (h_out - h_in) to the shaft power parameter.
func (ctx *EquationContext) shaftPower(in, out *Stream, power *Param) error {
	m, hi, ho := &in.m, &in.h, &out.h
	ds := withParam(deps(m, hi, ho), power)
	return ctx.add(equation.Energy, "shaft power", ds, func(x []float64) (float64, error) {
		return m.at(x)*(ho.at(x)-hi.at(x)) - power.at(x), nil
	})
}

// Compressor raises the pressure of a gas flow. Its parameters follow the
// turbomachine convention: EtaS, PR and P may be fixed or free, and the
// design/off-design lists switch between them and the efficiency
// characteristic.
type Compressor struct{ turbo }

// NewCompressor returns a compressor with ports in1 and out1.
func NewCompressor(label string) *Compressor {
	return &Compressor{turbo: newTurbo(label, charline.IDCompressorEtaS)}
}

// Pump raises the pressure of a liquid flow.
type Pump struct{ turbo }

// NewPump returns a pump with ports in1 and out1.
func NewPump(label string) *Pump {
	return &Pump{turbo: newTurbo(label, charline.IDPumpEtaS)}
}
