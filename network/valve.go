package network

// Valve throttles the flow at constant enthalpy. PR optionally pins the
// outlet to inlet pressure ratio; without it the pressure drop follows from
// the surrounding specifications.
type Valve struct {
	base
	PR Param
}

// NewValve returns a valve with ports in1 and out1.
func NewValve(label string) *Valve {
	return &Valve{base: newBase(label, []string{"in1"}, []string{"out1"}, []string{"pr"})}
}

func (v *Valve) Equations(ctx *EquationContext) error {
	in, out := v.stream("in1"), v.stream("out1")
	if err := ctx.massBalance(in, out); err != nil {
		return err
	}
	if err := ctx.enthalpyEquality(in, out, "isenthalpic throttling"); err != nil {
		return err
	}
	if v.active(v.PR, "pr", ctx.Mode()) {
		pr, err := ctx.resolveParam(&v.PR, "pr")
		if err != nil {
			return err
		}
		ctx.paramVar(pr, "pr", 1e-6, 1, 1, 0.5)
		if err := ctx.pressureRatio(in, out, pr, "pressure ratio"); err != nil {
			return err
		}
	}
	return nil
}

func (v *Valve) references() (map[string]float64, error) {
	in, err := v.stream("in1").State()
	if err != nil {
		return nil, err
	}
	out, err := v.stream("out1").State()
	if err != nil {
		return nil, err
	}
	refs := map[string]float64{"m": in.M}
	if in.P != 0 {
		refs["pr"] = out.P / in.P
	}
	return refs, nil
}

func (v *Valve) fluidCircuits() [][]string {
	return [][]string{{"in1", "out1"}}
}

func (v *Valve) seedLinks() []seedLink {
	return []seedLink{{a: v.stream("in1"), b: v.stream("out1"), copyM: true, copyH: true}}
}
