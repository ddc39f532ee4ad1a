package network

import (
	"github.com/pinchsim/pinch/charline"
	"github.com/pinchsim/pinch/equation"
	"github.com/pinchsim/pinch/fluid"
)

// SimpleHeatExchanger transfers heat between one flow and an unmodeled
// ambient side. Q fixes the duty directly; the kA model relates the duty to
// a fixed ambient temperature TAmb through the log mean temperature
// difference.
type SimpleHeatExchanger struct {
	base

	// Q is the heat duty in W, negative when the flow is cooled.
	Q Param
	// PR is the outlet to inlet pressure ratio.
	PR Param
	// KA is the area-weighted heat transfer coefficient in W/K.
	KA Param
	// TAmb is the ambient side temperature in K, required by the kA model.
	TAmb Param

	// KACharID overrides the default heat transfer characteristic curve.
	KACharID string
}

// NewSimpleHeatExchanger returns a single-flow heat exchanger with ports
// in1 and out1.
func NewSimpleHeatExchanger(label string) *SimpleHeatExchanger {
	return &SimpleHeatExchanger{
		base: newBase(label, []string{"in1"}, []string{"out1"},
			[]string{"Q", "pr", "kA", "kA_char", "Tamb"}),
	}
}

func (h *SimpleHeatExchanger) charID() string {
	if h.KACharID != "" {
		return h.KACharID
	}
	return charline.IDHeatTransfer
}

func (h *SimpleHeatExchanger) Equations(ctx *EquationContext) error {
	in, out := h.stream("in1"), h.stream("out1")
	if err := ctx.massBalance(in, out); err != nil {
		return err
	}
	if h.active(h.PR, "pr", ctx.Mode()) {
		pr, err := ctx.resolveParam(&h.PR, "pr")
		if err != nil {
			return err
		}
		ctx.paramVar(pr, "pr", 1e-6, 1, 1, 0.98)
		if err := ctx.pressureRatio(in, out, pr, "pressure ratio"); err != nil {
			return err
		}
	}
	if h.active(h.Q, "Q", ctx.Mode()) {
		q, err := ctx.resolveParam(&h.Q, "Q")
		if err != nil {
			return err
		}
		ctx.paramVar(q, "Q", -1e12, 1e12, 1e4, 0)
		if err := ctx.heatDuty(in, out, q); err != nil {
			return err
		}
	}
	if h.active(h.KA, "kA", ctx.Mode()) {
		if !h.TAmb.IsFixed() {
			return &SpecificationError{Context: h.label, Reason: "kA model requires a fixed Tamb"}
		}
		kA, err := ctx.resolveParam(&h.KA, "kA")
		if err != nil {
			return err
		}
		ctx.paramVar(kA, "kA", 1e-9, 1e12, 1e3, 1e3)
		if err := h.ambientTransfer(ctx, in, out, kA, nil); err != nil {
			return err
		}
	}
	if ctx.Mode() == Offdesign && h.offdesignListed("kA_char") {
		if !h.TAmb.IsFixed() {
			return &SpecificationError{Context: h.label, Reason: "kA characteristic requires a fixed Tamb"}
		}
		if err := ctx.checkCurve(h.charID()); err != nil {
			return err
		}
		kARef, err := ctx.reference("kA")
		if err != nil {
			return err
		}
		mRef, err := ctx.reference("m")
		if err != nil {
			return err
		}
		if mRef == 0 {
			return &SpecificationError{Context: h.label, Reason: "design mass flow reference is zero"}
		}
		scaled := scaledKA{id: h.charID(), kARef: kARef, mRef: mRef}
		if err := h.ambientTransfer(ctx, in, out, nil, &scaled); err != nil {
			return err
		}
	}
	return nil
}

// scaledKA resolves the off-design heat transfer coefficient from the
// design reference and a characteristic curve.
type scaledKA struct {
	id    string
	kARef float64
	mRef  float64
}

// ambientTransfer adds the kA equation m*(h_out-h_in) + kA*dT_log = 0
// against the fixed ambient temperature. With scaled set, kA follows the
// off-design characteristic instead of the kA parameter.
func (h *SimpleHeatExchanger) ambientTransfer(ctx *EquationContext, in, out *Stream, kaParam *Param, scaled *scaledKA) error {
	prov, fl, chars := ctx.provider(), in.fluid(), ctx.asm.nw.chars
	tamb := h.TAmb.Value()
	m, pi, hi, po, ho := &in.m, &in.p, &in.h, &out.p, &out.h

	ds := deps(m, pi, hi, po, ho)
	name := "ambient heat transfer"
	if scaled == nil {
		ds = withParam(ds, kaParam)
	} else {
		name = "heat transfer characteristic"
	}
	return ctx.add(equation.Energy, name, ds, func(x []float64) (float64, error) {
		ti, err := fluid.TemperaturePH(prov, fl, pi.at(x), hi.at(x))
		if err != nil {
			return 0, err
		}
		to, err := fluid.TemperaturePH(prov, fl, po.at(x), ho.at(x))
		if err != nil {
			return 0, err
		}
		dtLog, err := logMeanTemperatureDifference(ti-tamb, to-tamb)
		if err != nil {
			return 0, err
		}
		var kA float64
		if scaled != nil {
			f, err := chars.Evaluate(scaled.id, m.at(x)/scaled.mRef)
			if err != nil {
				return 0, err
			}
			kA = scaled.kARef * f
		} else {
			kA = kaParam.at(x)
		}
		return m.at(x)*(ho.at(x)-hi.at(x)) + kA*dtLog, nil
	})
}

func (h *SimpleHeatExchanger) fluidCircuits() [][]string {
	return [][]string{{"in1", "out1"}}
}

func (h *SimpleHeatExchanger) seedLinks() []seedLink {
	return []seedLink{{a: h.stream("in1"), b: h.stream("out1"), copyM: true, copyP: true}}
}

func (h *SimpleHeatExchanger) references() (map[string]float64, error) {
	in, err := h.stream("in1").State()
	if err != nil {
		return nil, err
	}
	out, err := h.stream("out1").State()
	if err != nil {
		return nil, err
	}
	q := in.M * (out.H - in.H)
	refs := map[string]float64{"m": in.M, "Q": q}
	if in.P != 0 {
		refs["pr"] = out.P / in.P
	}
	if h.TAmb.IsFixed() {
		tamb := h.TAmb.Value()
		if dtLog, err := logMeanTemperatureDifference(in.T-tamb, out.T-tamb); err == nil && dtLog != 0 {
			refs["kA"] = -q / dtLog
		}
	}
	return refs, nil
}

// Duty returns the heat duty of the last converged solve in W, negative
// when the flow was cooled.
func (h *SimpleHeatExchanger) Duty() (float64, error) {
	in, err := h.stream("in1").State()
	if err != nil {
		return 0, err
	}
	out, err := h.stream("out1").State()
	if err != nil {
		return 0, err
	}
	return in.M * (out.H - in.H), nil
}

// heatDuty constrains m * (h_out - h_in) to the duty parameter.
func (ctx *EquationContext) heatDuty(in, out *Stream, q *Param) error {
	m, hi, ho := &in.m, &in.h, &out.h
	ds := withParam(deps(m, hi, ho), q)
	return ctx.add(equation.Energy, "heat duty", ds, func(x []float64) (float64, error) {
		return m.at(x)*(ho.at(x)-hi.at(x)) - q.at(x), nil
	})
}

// hxCore is the shared core of counterflow two-stream heat exchangers.
// Side 1 is the hot side, side 2 the cold side. With condensing set the hot
// outlet is pinned to saturated liquid and the upper terminal temperature
// difference references the hot-side saturation temperature, which is the
// condenser convention.
type hxCore struct {
	base

	// Q is the hot side heat duty in W, negative in normal operation.
	Q Param
	// PR1 and PR2 are per-side outlet to inlet pressure ratios.
	PR1 Param
	PR2 Param
	// TTDU is the upper terminal temperature difference in K.
	TTDU Param
	// TTDL is the lower terminal temperature difference in K.
	TTDL Param

	// KAChar1ID and KAChar2ID override the default per-side heat transfer
	// characteristic curves.
	KAChar1ID string
	KAChar2ID string

	condensing bool
}

func newHXCore(label string, condensing bool) hxCore {
	return hxCore{
		base: newBase(label, []string{"in1", "in2"}, []string{"out1", "out2"},
			[]string{"Q", "pr1", "pr2", "ttd_u", "ttd_l", "kA_char"}),
		condensing: condensing,
	}
}

func (h *hxCore) charID(side int) string {
	id := h.KAChar1ID
	if side == 2 {
		id = h.KAChar2ID
	}
	if id != "" {
		return id
	}
	return charline.IDHeatTransfer
}

func (h *hxCore) Equations(ctx *EquationContext) error {
	in1, out1 := h.stream("in1"), h.stream("out1")
	in2, out2 := h.stream("in2"), h.stream("out2")

	for _, side := range []struct {
		in, out *Stream
		name    string
	}{
		{in1, out1, "hot side mass flow balance"},
		{in2, out2, "cold side mass flow balance"},
	} {
		mi, mo := &side.in.m, &side.out.m
		err := ctx.add(equation.Mass, side.name, deps(mi, mo), func(x []float64) (float64, error) {
			return mi.at(x) - mo.at(x), nil
		})
		if err != nil {
			return err
		}
	}

	m1, hi1, ho1 := &in1.m, &in1.h, &out1.h
	m2, hi2, ho2 := &in2.m, &in2.h, &out2.h
	err := ctx.add(equation.Energy, "energy balance", deps(m1, hi1, ho1, m2, hi2, ho2),
		func(x []float64) (float64, error) {
			return m1.at(x)*(ho1.at(x)-hi1.at(x)) + m2.at(x)*(ho2.at(x)-hi2.at(x)), nil
		})
	if err != nil {
		return err
	}

	if h.active(h.PR1, "pr1", ctx.Mode()) {
		pr, err := ctx.resolveParam(&h.PR1, "pr1")
		if err != nil {
			return err
		}
		ctx.paramVar(pr, "pr1", 1e-6, 1, 1, 0.98)
		if err := ctx.pressureRatio(in1, out1, pr, "hot side pressure ratio"); err != nil {
			return err
		}
	}
	if h.active(h.PR2, "pr2", ctx.Mode()) {
		pr, err := ctx.resolveParam(&h.PR2, "pr2")
		if err != nil {
			return err
		}
		ctx.paramVar(pr, "pr2", 1e-6, 1, 1, 0.98)
		if err := ctx.pressureRatio(in2, out2, pr, "cold side pressure ratio"); err != nil {
			return err
		}
	}
	if h.active(h.Q, "Q", ctx.Mode()) {
		q, err := ctx.resolveParam(&h.Q, "Q")
		if err != nil {
			return err
		}
		ctx.paramVar(q, "Q", -1e12, 1e12, 1e4, 0)
		if err := ctx.heatDuty(in1, out1, q); err != nil {
			return err
		}
	}
	if h.active(h.TTDU, "ttd_u", ctx.Mode()) {
		ttd, err := ctx.resolveParam(&h.TTDU, "ttd_u")
		if err != nil {
			return err
		}
		ctx.paramVar(ttd, "ttd_u", 1e-3, 1e3, 1, 5)
		if err := h.upperTerminal(ctx, ttd); err != nil {
			return err
		}
	}
	if h.active(h.TTDL, "ttd_l", ctx.Mode()) {
		ttd, err := ctx.resolveParam(&h.TTDL, "ttd_l")
		if err != nil {
			return err
		}
		ctx.paramVar(ttd, "ttd_l", 1e-3, 1e3, 1, 5)
		if err := h.lowerTerminal(ctx, ttd); err != nil {
			return err
		}
	}
	if ctx.Mode() == Offdesign && h.offdesignListed("kA_char") {
		if err := h.transferChar(ctx); err != nil {
			return err
		}
	}
	if h.condensing {
		prov, fl := ctx.provider(), in1.fluid()
		po1 := &out1.p
		err := ctx.add(equation.Enthalpy, "saturated liquid at hot outlet", deps(po1, ho1),
			func(x []float64) (float64, error) {
				hl, err := fluid.EnthalpyPQ(prov, fl, po1.at(x), 0)
				if err != nil {
					return 0, err
				}
				return ho1.at(x) - hl, nil
			})
		if err != nil {
			return err
		}
	}
	return nil
}

// hotInletTemperature returns the temperature the upper terminal references
// on the hot side: the saturation temperature at the hot inlet pressure for
// condensers, the real inlet temperature otherwise.
func (h *hxCore) hotInletTemperature(prov fluid.Provider, fl string, p, hEnth float64) (float64, error) {
	if h.condensing {
		return fluid.SaturationTemperature(prov, fl, p)
	}
	return fluid.TemperaturePH(prov, fl, p, hEnth)
}

func (h *hxCore) upperTerminal(ctx *EquationContext, ttd *Param) error {
	in1, out2 := h.stream("in1"), h.stream("out2")
	prov, fl1, fl2 := ctx.provider(), in1.fluid(), out2.fluid()
	pi1, hi1 := &in1.p, &in1.h
	po2, ho2 := &out2.p, &out2.h

	var ds []equation.Variable
	if h.condensing {
		ds = deps(pi1, po2, ho2)
	} else {
		ds = deps(pi1, hi1, po2, ho2)
	}
	ds = withParam(ds, ttd)
	return ctx.add(equation.Temperature, "upper terminal temperature difference", ds,
		func(x []float64) (float64, error) {
			tHot, err := h.hotInletTemperature(prov, fl1, pi1.at(x), hi1.at(x))
			if err != nil {
				return 0, err
			}
			tCold, err := fluid.TemperaturePH(prov, fl2, po2.at(x), ho2.at(x))
			if err != nil {
				return 0, err
			}
			return tHot - tCold - ttd.at(x), nil
		})
}

func (h *hxCore) lowerTerminal(ctx *EquationContext, ttd *Param) error {
	out1, in2 := h.stream("out1"), h.stream("in2")
	prov, fl1, fl2 := ctx.provider(), out1.fluid(), in2.fluid()
	po1, ho1 := &out1.p, &out1.h
	pi2, hi2 := &in2.p, &in2.h

	ds := withParam(deps(po1, ho1, pi2, hi2), ttd)
	return ctx.add(equation.Temperature, "lower terminal temperature difference", ds,
		func(x []float64) (float64, error) {
			tHot, err := fluid.TemperaturePH(prov, fl1, po1.at(x), ho1.at(x))
			if err != nil {
				return 0, err
			}
			tCold, err := fluid.TemperaturePH(prov, fl2, pi2.at(x), hi2.at(x))
			if err != nil {
				return 0, err
			}
			return tHot - tCold - ttd.at(x), nil
		})
}

// transferChar adds the off-design heat transfer equation. The design kA is
// scaled by the harmonic mean of the per-side characteristics at their
// relative mass flows and balanced against the log mean temperature
// difference of the terminal differences.
func (h *hxCore) transferChar(ctx *EquationContext) error {
	if err := ctx.checkCurve(h.charID(1)); err != nil {
		return err
	}
	if err := ctx.checkCurve(h.charID(2)); err != nil {
		return err
	}
	kARef, err := ctx.reference("kA")
	if err != nil {
		return err
	}
	m1Ref, err := ctx.reference("m1")
	if err != nil {
		return err
	}
	m2Ref, err := ctx.reference("m2")
	if err != nil {
		return err
	}
	if m1Ref == 0 || m2Ref == 0 {
		return &SpecificationError{Context: h.label, Reason: "design mass flow reference is zero"}
	}

	in1, out1 := h.stream("in1"), h.stream("out1")
	in2, out2 := h.stream("in2"), h.stream("out2")
	prov, chars := ctx.provider(), ctx.asm.nw.chars
	fl1, fl2 := in1.fluid(), in2.fluid()
	id1, id2 := h.charID(1), h.charID(2)
	m1, pi1, hi1, po1, ho1 := &in1.m, &in1.p, &in1.h, &out1.p, &out1.h
	m2, pi2, hi2, po2, ho2 := &in2.m, &in2.p, &in2.h, &out2.p, &out2.h

	var ds []equation.Variable
	if h.condensing {
		ds = deps(m1, m2, pi1, po1, ho1, pi2, hi2, po2, ho2)
	} else {
		ds = deps(m1, m2, pi1, hi1, po1, ho1, pi2, hi2, po2, ho2)
	}
	return ctx.add(equation.Energy, "heat transfer characteristic", ds,
		func(x []float64) (float64, error) {
			f1, err := chars.Evaluate(id1, m1.at(x)/m1Ref)
			if err != nil {
				return 0, err
			}
			f2, err := chars.Evaluate(id2, m2.at(x)/m2Ref)
			if err != nil {
				return 0, err
			}
			if f1 <= 0 || f2 <= 0 {
				return 0, &SpecificationError{Context: h.label, Reason: "heat transfer characteristic must stay positive"}
			}
			tHotIn, err := h.hotInletTemperature(prov, fl1, pi1.at(x), hi1.at(x))
			if err != nil {
				return 0, err
			}
			tHotOut, err := fluid.TemperaturePH(prov, fl1, po1.at(x), ho1.at(x))
			if err != nil {
				return 0, err
			}
			tColdIn, err := fluid.TemperaturePH(prov, fl2, pi2.at(x), hi2.at(x))
			if err != nil {
				return 0, err
			}
			tColdOut, err := fluid.TemperaturePH(prov, fl2, po2.at(x), ho2.at(x))
			if err != nil {
				return 0, err
			}
			dtLog, err := logMeanTemperatureDifference(tHotIn-tColdOut, tHotOut-tColdIn)
			if err != nil {
				return 0, err
			}
			kA := kARef * 2 / (1/f1 + 1/f2)
			return m1.at(x)*(ho1.at(x)-hi1.at(x)) + kA*dtLog, nil
		})
}

func (h *hxCore) fluidCircuits() [][]string {
	return [][]string{{"in1", "out1"}, {"in2", "out2"}}
}

func (h *hxCore) seedLinks() []seedLink {
	return []seedLink{
		{a: h.stream("in1"), b: h.stream("out1"), copyM: true, copyP: true},
		{a: h.stream("in2"), b: h.stream("out2"), copyM: true, copyP: true},
	}
}

// terminalDifferences computes the terminal temperature differences from
// resolved stream states.
func (h *hxCore) terminalDifferences() (tu, tl float64, err error) {
	in1, err := h.stream("in1").State()
	if err != nil {
		return 0, 0, err
	}
	out1, err := h.stream("out1").State()
	if err != nil {
		return 0, 0, err
	}
	in2, err := h.stream("in2").State()
	if err != nil {
		return 0, 0, err
	}
	out2, err := h.stream("out2").State()
	if err != nil {
		return 0, 0, err
	}
	tHotIn := in1.T
	if h.condensing {
		tHotIn, err = fluid.SaturationTemperature(h.nw.provider, h.stream("in1").fluid(), in1.P)
		if err != nil {
			return 0, 0, err
		}
	}
	return tHotIn - out2.T, out1.T - in2.T, nil
}

func (h *hxCore) references() (map[string]float64, error) {
	in1, err := h.stream("in1").State()
	if err != nil {
		return nil, err
	}
	out1, err := h.stream("out1").State()
	if err != nil {
		return nil, err
	}
	in2, err := h.stream("in2").State()
	if err != nil {
		return nil, err
	}
	out2, err := h.stream("out2").State()
	if err != nil {
		return nil, err
	}
	q := in1.M * (out1.H - in1.H)
	refs := map[string]float64{"m1": in1.M, "m2": in2.M, "Q": q}
	if in1.P != 0 {
		refs["pr1"] = out1.P / in1.P
	}
	if in2.P != 0 {
		refs["pr2"] = out2.P / in2.P
	}
	tu, tl, err := h.terminalDifferences()
	if err == nil {
		refs["ttd_u"], refs["ttd_l"] = tu, tl
		if dtLog, lerr := logMeanTemperatureDifference(tu, tl); lerr == nil && dtLog != 0 {
			refs["kA"] = -q / dtLog
		}
	}
	return refs, nil
}

// Duty returns the hot side heat duty of the last converged solve in W,
// negative when heat leaves the hot side.
func (h *hxCore) Duty() (float64, error) {
	in1, err := h.stream("in1").State()
	if err != nil {
		return 0, err
	}
	out1, err := h.stream("out1").State()
	if err != nil {
		return 0, err
	}
	return in1.M * (out1.H - in1.H), nil
}

// KA returns the heat transfer coefficient implied by the last converged
// solve in W/K.
func (h *hxCore) KA() (float64, error) {
	q, err := h.Duty()
	if err != nil {
		return 0, err
	}
	tu, tl, err := h.terminalDifferences()
	if err != nil {
		return 0, err
	}
	dtLog, err := logMeanTemperatureDifference(tu, tl)
	if err != nil {
		return 0, err
	}
	if dtLog == 0 {
		return 0, &SpecificationError{Context: h.label, Reason: "zero log mean temperature difference"}
	}
	return -q / dtLog, nil
}

// TTDUpper returns the upper terminal temperature difference of the last
// converged solve in K.
func (h *hxCore) TTDUpper() (float64, error) {
	tu, _, err := h.terminalDifferences()
	return tu, err
}

// TTDLower returns the lower terminal temperature difference of the last
// converged solve in K.
func (h *hxCore) TTDLower() (float64, error) {
	_, tl, err := h.terminalDifferences()
	return tl, err
}

// HeatExchanger transfers heat between a hot flow (in1 to out1) and a cold
// flow (in2 to out2) in counterflow.
type HeatExchanger struct{ hxCore }

// NewHeatExchanger returns a two-stream heat exchanger with hot side ports
// in1/out1 and cold side ports in2/out2.
func NewHeatExchanger(label string) *HeatExchanger {
	return &HeatExchanger{hxCore: newHXCore(label, false)}
}

// Condenser is a two-stream heat exchanger whose hot side condenses: the
// hot outlet leaves as saturated liquid and the upper terminal temperature
// difference is referenced to the condensation temperature.
type Condenser struct{ hxCore }

// NewCondenser returns a condenser with hot side ports in1/out1 and cold
// side ports in2/out2.
func NewCondenser(label string) *Condenser {
	return &Condenser{hxCore: newHXCore(label, true)}
}
