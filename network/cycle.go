package network

// CycleCloser joins the two loose ends of a closed loop. It forces pressure
// and enthalpy equality between its inlet and outlet but deliberately adds
// no mass balance: the loop already carries a single mass flow, and a
// redundant balance would make the Jacobian singular.
type CycleCloser struct{ base }

// NewCycleCloser returns a cycle closer with ports in1 and out1.
func NewCycleCloser(label string) *CycleCloser {
	return &CycleCloser{base: newBase(label, []string{"in1"}, []string{"out1"}, nil)}
}

func (c *CycleCloser) Equations(ctx *EquationContext) error {
	in, out := c.stream("in1"), c.stream("out1")
	if err := ctx.pressureEquality(in, out, "pressure equality"); err != nil {
		return err
	}
	return ctx.enthalpyEquality(in, out, "enthalpy equality")
}

func (c *CycleCloser) fluidCircuits() [][]string {
	return [][]string{{"in1", "out1"}}
}

func (c *CycleCloser) seedLinks() []seedLink {
	return []seedLink{{a: c.stream("in1"), b: c.stream("out1"), copyM: true, copyP: true, copyH: true}}
}
