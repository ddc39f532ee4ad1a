package network

import (
	"github.com/pinchsim/pinch/equation"
	"github.com/pinchsim/pinch/fluid"
)

// Drum separates a two-phase inlet into saturated liquid (out1) and
// saturated vapor (out2) at the drum pressure. The phase split follows from
// the inlet state; the drum holds no inventory at steady state.
type Drum struct{ base }

// NewDrum returns a drum with inlet in1 and outlets out1 (liquid) and out2
// (vapor).
func NewDrum(label string) *Drum {
	return &Drum{base: newBase(label, []string{"in1"}, []string{"out1", "out2"}, nil)}
}

func (d *Drum) Equations(ctx *EquationContext) error {
	in := d.stream("in1")
	liq, vap := d.stream("out1"), d.stream("out2")
	prov, fl := ctx.provider(), in.fluid()

	mi, ml, mv := &in.m, &liq.m, &vap.m
	err := ctx.add(equation.Mass, "mass flow balance", deps(mi, ml, mv), func(x []float64) (float64, error) {
		return mi.at(x) - ml.at(x) - mv.at(x), nil
	})
	if err != nil {
		return err
	}

	hi, hl, hv := &in.h, &liq.h, &vap.h
	err = ctx.add(equation.Energy, "energy balance", deps(mi, hi, ml, hl, mv, hv), func(x []float64) (float64, error) {
		return mi.at(x)*hi.at(x) - ml.at(x)*hl.at(x) - mv.at(x)*hv.at(x), nil
	})
	if err != nil {
		return err
	}

	if err := ctx.pressureEquality(in, liq, "pressure equality at liquid outlet"); err != nil {
		return err
	}
	if err := ctx.pressureEquality(in, vap, "pressure equality at vapor outlet"); err != nil {
		return err
	}

	pl := &liq.p
	err = ctx.add(equation.Enthalpy, "saturated liquid at out1", deps(pl, hl), func(x []float64) (float64, error) {
		hsat, err := fluid.EnthalpyPQ(prov, fl, pl.at(x), 0)
		if err != nil {
			return 0, err
		}
		return hl.at(x) - hsat, nil
	})
	if err != nil {
		return err
	}

	pv := &vap.p
	return ctx.add(equation.Enthalpy, "saturated vapor at out2", deps(pv, hv), func(x []float64) (float64, error) {
		hsat, err := fluid.EnthalpyPQ(prov, fl, pv.at(x), 1)
		if err != nil {
			return 0, err
		}
		return hv.at(x) - hsat, nil
	})
}

func (d *Drum) fluidCircuits() [][]string {
	return [][]string{{"in1", "out1", "out2"}}
}

func (d *Drum) seedLinks() []seedLink {
	return []seedLink{
		{a: d.stream("in1"), b: d.stream("out1"), copyP: true},
		{a: d.stream("in1"), b: d.stream("out2"), copyP: true},
	}
}
