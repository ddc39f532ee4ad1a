package network

import (
	"fmt"

	"github.com/pinchsim/pinch/equation"
)

// Splitter divides a flow onto several outlets at identical state. The
// split ratios follow from downstream specifications.
type Splitter struct{ base }

// NewSplitter returns a splitter with inlet in1 and outlets out1..outN.
// Fewer than two outlets make no sense; nb is raised to two if needed.
func NewSplitter(label string, nb int) *Splitter {
	if nb < 2 {
		nb = 2
	}
	outlets := make([]string, nb)
	for i := range outlets {
		outlets[i] = fmt.Sprintf("out%d", i+1)
	}
	return &Splitter{base: newBase(label, []string{"in1"}, outlets, nil)}
}

func (sp *Splitter) Equations(ctx *EquationContext) error {
	in := sp.stream("in1")
	outs := make([]*Stream, len(sp.outlets))
	qs := []*quantity{&in.m}
	for i, port := range sp.outlets {
		outs[i] = sp.stream(port)
		qs = append(qs, &outs[i].m)
	}

	mi := &in.m
	err := ctx.add(equation.Mass, "mass flow balance", deps(qs...), func(x []float64) (float64, error) {
		r := mi.at(x)
		for _, out := range outs {
			r -= out.m.at(x)
		}
		return r, nil
	})
	if err != nil {
		return err
	}

	for i, out := range outs {
		if err := ctx.pressureEquality(in, out, "pressure equality at "+sp.outlets[i]); err != nil {
			return err
		}
		if err := ctx.enthalpyEquality(in, out, "enthalpy equality at "+sp.outlets[i]); err != nil {
			return err
		}
	}
	return nil
}

func (sp *Splitter) fluidCircuits() [][]string {
	return [][]string{append([]string{"in1"}, sp.outlets...)}
}

func (sp *Splitter) seedLinks() []seedLink {
	links := make([]seedLink, 0, len(sp.outlets))
	for _, port := range sp.outlets {
		links = append(links, seedLink{a: sp.stream("in1"), b: sp.stream(port), copyP: true, copyH: true})
	}
	return links
}

// Merger mixes several inlets into one outlet. The outlet enthalpy follows
// from the energy balance; all pressures are equal, so merging streams at
// different pressures needs valves upstream.
type Merger struct{ base }

// NewMerger returns a merger with inlets in1..inN and outlet out1. Fewer
// than two inlets make no sense; nb is raised to two if needed.
func NewMerger(label string, nb int) *Merger {
	if nb < 2 {
		nb = 2
	}
	inlets := make([]string, nb)
	for i := range inlets {
		inlets[i] = fmt.Sprintf("in%d", i+1)
	}
	return &Merger{base: newBase(label, inlets, []string{"out1"}, nil)}
}

func (mg *Merger) Equations(ctx *EquationContext) error {
	out := mg.stream("out1")
	ins := make([]*Stream, len(mg.inlets))
	massQs := []*quantity{&out.m}
	energyQs := []*quantity{&out.m, &out.h}
	for i, port := range mg.inlets {
		ins[i] = mg.stream(port)
		massQs = append(massQs, &ins[i].m)
		energyQs = append(energyQs, &ins[i].m, &ins[i].h)
	}

	mo := &out.m
	err := ctx.add(equation.Mass, "mass flow balance", deps(massQs...), func(x []float64) (float64, error) {
		r := -mo.at(x)
		for _, in := range ins {
			r += in.m.at(x)
		}
		return r, nil
	})
	if err != nil {
		return err
	}

	ho := &out.h
	err = ctx.add(equation.Energy, "energy balance", deps(energyQs...), func(x []float64) (float64, error) {
		r := -mo.at(x) * ho.at(x)
		for _, in := range ins {
			r += in.m.at(x) * in.h.at(x)
		}
		return r, nil
	})
	if err != nil {
		return err
	}

	for i, in := range ins {
		if err := ctx.pressureEquality(in, out, "pressure equality at "+mg.inlets[i]); err != nil {
			return err
		}
	}
	return nil
}

func (mg *Merger) fluidCircuits() [][]string {
	return [][]string{append(append([]string(nil), mg.inlets...), "out1")}
}

func (mg *Merger) seedLinks() []seedLink {
	links := make([]seedLink, 0, len(mg.inlets))
	for _, port := range mg.inlets {
		links = append(links, seedLink{a: mg.stream(port), b: mg.stream("out1"), copyP: true})
	}
	return links
}
