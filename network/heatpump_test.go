package network

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pinchsim/pinch/fluid"
	"github.com/pinchsim/pinch/solver"
)

// heatPumpRig is a four-component ammonia heat pump closed by a cycle
// closer: evaporation at 263.15 K, condensation at 313.15 K, 200 kW
// condenser duty and an isentropic compressor efficiency of 0.8.
type heatPumpRig struct {
	nw   *Network
	prov fluid.Provider

	cc *CycleCloser
	cp *Compressor
	cd *SimpleHeatExchanger
	va *Valve
	ev *SimpleHeatExchanger

	s1, s2, s3, s4, s5 *Stream
}

func buildHeatPump(t *testing.T) *heatPumpRig {
	t.Helper()
	assert := require.New(t)

	prov := fluid.NewIdeal()
	nw, err := New(prov)
	assert.NoError(err)

	r := &heatPumpRig{nw: nw, prov: prov}
	r.cc = NewCycleCloser("cycle closer")
	r.cp = NewCompressor("compressor")
	r.cp.EtaS = Fixed(0.8)
	r.cd = NewSimpleHeatExchanger("condenser")
	r.cd.PR = Fixed(1)
	r.cd.Q = Fixed(-2e5)
	r.va = NewValve("expansion valve")
	r.ev = NewSimpleHeatExchanger("evaporator")
	r.ev.PR = Fixed(1)
	r.ev.TAmb = Fixed(276.15)

	r.s1, err = nw.Connect(r.cc, "out1", r.cp, "in1", "1")
	assert.NoError(err)
	r.s2, err = nw.Connect(r.cp, "out1", r.cd, "in1", "2")
	assert.NoError(err)
	r.s3, err = nw.Connect(r.cd, "out1", r.va, "in1", "3")
	assert.NoError(err)
	r.s4, err = nw.Connect(r.va, "out1", r.ev, "in1", "4")
	assert.NoError(err)
	r.s5, err = nw.Connect(r.ev, "out1", r.cc, "in1", "5")
	assert.NoError(err)

	assert.NoError(r.s1.SetFluid("ammonia"))
	assert.NoError(r.s1.SetTemperature(263.15))
	assert.NoError(r.s1.SetQuality(1))
	assert.NoError(r.s3.SetTemperature(313.15))
	assert.NoError(r.s3.SetQuality(0))

	return r
}

func (r *heatPumpRig) state(t *testing.T, s *Stream) StreamState {
	t.Helper()
	st, err := s.State()
	require.NoError(t, err)
	return st
}

func (r *heatPumpRig) cop(t *testing.T) float64 {
	t.Helper()
	duty, err := r.cd.Duty()
	require.NoError(t, err)
	power, err := r.cp.Power()
	require.NoError(t, err)
	return -duty / power
}

func TestHeatPumpDesign(t *testing.T) {
	assert := require.New(t)
	r := buildHeatPump(t)

	res, err := r.nw.SolveDesign()
	assert.NoError(err)
	assert.Equal(solver.Converged, res.Status)
	assert.Equal(Design, res.Mode)
	assert.Equal(15, res.NbUnknowns)
	assert.Equal(15, res.NbEquations)
	assert.LessOrEqual(res.Residual, 1e-6)

	st1 := r.state(t, r.s1)
	st2 := r.state(t, r.s2)
	st3 := r.state(t, r.s3)
	st4 := r.state(t, r.s4)
	st5 := r.state(t, r.s5)

	// suction state pinned to saturated vapor at the evaporation temperature
	assert.InDelta(263.15, st1.T, 1e-5)
	assert.InDelta(1, st1.X, 1e-6)
	pSat, err := fluid.SaturationPressure(r.prov, "ammonia", 263.15)
	assert.NoError(err)
	assert.InDelta(pSat, st1.P, 1)
	hSat, err := fluid.EnthalpyPQ(r.prov, "ammonia", st1.P, 1)
	assert.NoError(err)
	assert.InDelta(hSat, st1.H, 5)

	// condensate pinned to saturated liquid at the condensation temperature
	assert.InDelta(313.15, st3.T, 1e-5)
	assert.InDelta(0, st3.X, 1e-6)
	pCond, err := fluid.SaturationPressure(r.prov, "ammonia", 313.15)
	assert.NoError(err)
	assert.InDelta(pCond, st3.P, 1)

	// one mass flow around the loop
	assert.InDelta(st1.M, st2.M, 1e-5)
	assert.InDelta(st1.M, st3.M, 1e-5)
	assert.InDelta(st1.M, st4.M, 1e-5)
	assert.InDelta(st1.M, st5.M, 1e-5)

	// unit pressure ratios hold both levels flat
	assert.InDelta(st2.P, st3.P, 0.5)
	assert.InDelta(st4.P, st1.P, 0.5)
	assert.InDelta(st5.P, st1.P, 0.5)

	// compressor discharge is superheated, throttling is isenthalpic
	assert.Greater(st2.T, 313.15)
	assert.InDelta(406.5, st2.T, 0.5)
	assert.InDelta(st3.H, st4.H, 0.1)
	assert.InDelta(0.1755, st4.X, 1e-3)
	assert.Greater(st4.S, st3.S)

	duty, err := r.cd.Duty()
	assert.NoError(err)
	assert.InDelta(-2e5, duty, 0.05)
	power, err := r.cp.Power()
	assert.NoError(err)
	assert.InDelta(43574, power, 500)
	qEvap, err := r.ev.Duty()
	assert.NoError(err)
	assert.InDelta(0, duty+qEvap+power, 0.5)

	cop := r.cop(t)
	carnot := 313.15 / (313.15 - 263.15)
	assert.Greater(cop, 1.0)
	assert.Less(cop, carnot)
	assert.InDelta(4.59, cop, 0.05)

	// the design solve captures a snapshot with component references
	snap := r.nw.DesignSnapshot()
	assert.NotNil(snap)
	assert.Equal(r.nw.Revision(), snap.Revision)
	eta, ok := snap.Reference("compressor", "eta_s")
	assert.True(ok)
	assert.InDelta(0.8, eta, 1e-12)
	kA, ok := snap.Reference("evaporator", "kA")
	assert.True(ok)
	assert.InDelta(qEvap, kA*13, 0.5) // both terminal differences are -13 K

	// a converged network warm starts from its own solution
	res2, err := r.nw.SolveDesign()
	assert.NoError(err)
	assert.Equal(solver.Converged, res2.Status)
	assert.LessOrEqual(res2.Iterations, 1)
}

func TestHeatPumpRespecWarmStart(t *testing.T) {
	assert := require.New(t)
	r := buildHeatPump(t)

	_, err := r.nw.SolveDesign()
	assert.NoError(err)
	rev := r.nw.Revision()

	// changing a parameter value keeps topology, snapshot and warm start
	r.cd.Q = Fixed(-2.1e5)
	assert.Equal(rev, r.nw.Revision())
	assert.NotNil(r.nw.DesignSnapshot())

	res, err := r.nw.SolveDesign()
	assert.NoError(err)
	assert.Equal(solver.Converged, res.Status)
	assert.Less(res.Iterations, 10)

	duty, err := r.cd.Duty()
	assert.NoError(err)
	assert.InDelta(-2.1e5, duty, 0.05)

	q, ok := r.nw.DesignSnapshot().Reference("condenser", "Q")
	assert.True(ok)
	assert.InDelta(-2.1e5, q, 0.05)
}

func TestSolvedLifecycle(t *testing.T) {
	assert := require.New(t)
	r := buildHeatPump(t)
	assert.False(r.nw.Solved())

	_, err := r.nw.SolveDesign()
	assert.NoError(err)
	assert.True(r.nw.Solved())

	// respecifying a boundary condition marks the results stale
	assert.NoError(r.s3.SetTemperature(314.15))
	assert.False(r.nw.Solved())

	_, err = r.nw.SolveDesign()
	assert.NoError(err)
	assert.True(r.nw.Solved())

	// so does any topology edit
	assert.NoError(r.nw.RemoveStream("5"))
	assert.False(r.nw.Solved())
}

func TestHeatPumpOffDesignFlat(t *testing.T) {
	assert := require.New(t)
	r := buildHeatPump(t)

	// swap the fixed efficiency for its characteristic in off-design
	assert.NoError(r.cp.SetDesignParams("eta_s"))
	assert.NoError(r.cp.SetOffdesignParams("eta_s_char"))

	_, err := r.nw.SolveDesign()
	assert.NoError(err)

	design := make(map[string]StreamState, 5)
	for _, s := range r.nw.Streams() {
		design[s.Label()] = r.state(t, s)
	}

	// at the design point the characteristic evaluates to one, so the
	// off-design system is satisfied by the design solution as-is
	res, err := r.nw.SolveOffDesign(r.nw.DesignSnapshot())
	assert.NoError(err)
	assert.Equal(solver.Converged, res.Status)
	assert.Equal(Offdesign, res.Mode)
	assert.Equal(15, res.NbEquations)
	assert.LessOrEqual(res.Iterations, 1)

	for _, s := range r.nw.Streams() {
		before := design[s.Label()]
		after := r.state(t, s)
		assert.InDelta(before.M, after.M, 1e-9)
		assert.InDelta(before.P, after.P, 1e-9)
		assert.InDelta(before.H, after.H, 1e-9)
		assert.InDelta(before.T, after.T, 1e-9)
		assert.InDelta(before.X, after.X, 1e-9)
		assert.InDelta(before.S, after.S, 1e-9)
	}
}

func TestHeatPumpOffDesignColdAmbient(t *testing.T) {
	assert := require.New(t)
	r := buildHeatPump(t)

	// off-design lets the evaporation temperature float: the kA
	// characteristic replaces the design temperature specification
	assert.NoError(r.ev.SetOffdesignParams("kA_char"))
	assert.NoError(r.s1.SetDesignSpecs("T"))

	_, err := r.nw.SolveDesign()
	assert.NoError(err)
	designCOP := r.cop(t)
	designP1 := r.state(t, r.s1).P

	r.ev.TAmb = Fixed(271.15)
	res, err := r.nw.SolveOffDesign(r.nw.DesignSnapshot(), solver.WithMaxIterations(100))
	assert.NoError(err)
	assert.Equal(solver.Converged, res.Status)
	assert.Equal(15, res.NbUnknowns)
	assert.Equal(15, res.NbEquations)

	// a colder source pulls the evaporation pressure down
	st1 := r.state(t, r.s1)
	assert.InDelta(1, st1.X, 1e-6)
	assert.Less(st1.T, 262.0)
	assert.InDelta(258.3, st1.T, 0.5)
	assert.Less(st1.P, designP1)

	// the condenser still delivers its duty, at a worse COP
	duty, err := r.cd.Duty()
	assert.NoError(err)
	assert.InDelta(-2e5, duty, 0.05)
	cop := r.cop(t)
	assert.Less(cop, designCOP)
	assert.InDelta(4.15, cop, 0.1)
}

// TestDrumEconomizerCycle solves a two-stage ammonia cycle with a flash
// drum economizer: condensate is expanded to an intermediate pressure, the
// flash vapor joins the low stage discharge ahead of the high stage, and
// only the liquid continues to the evaporator.
func TestDrumEconomizerCycle(t *testing.T) {
	assert := require.New(t)

	prov := fluid.NewIdeal()
	nw, err := New(prov)
	assert.NoError(err)

	cc := NewCycleCloser("cycle closer")
	cp1 := NewCompressor("lp compressor")
	cp1.EtaS = Fixed(0.8)
	cp2 := NewCompressor("hp compressor")
	cp2.EtaS = Fixed(0.8)
	mg := NewMerger("merger", 2)
	cd := NewSimpleHeatExchanger("condenser")
	cd.PR = Fixed(1)
	cd.Q = Fixed(-2e5)
	va1 := NewValve("hp valve")
	dr := NewDrum("flash drum")
	va2 := NewValve("lp valve")
	ev := NewSimpleHeatExchanger("evaporator")
	ev.PR = Fixed(1)

	s1, err := nw.Connect(cc, "out1", cp1, "in1", "1")
	assert.NoError(err)
	s2, err := nw.Connect(cp1, "out1", mg, "in1", "2")
	assert.NoError(err)
	s3, err := nw.Connect(dr, "out2", mg, "in2", "3")
	assert.NoError(err)
	s4, err := nw.Connect(mg, "out1", cp2, "in1", "4")
	assert.NoError(err)
	s5, err := nw.Connect(cp2, "out1", cd, "in1", "5")
	assert.NoError(err)
	s6, err := nw.Connect(cd, "out1", va1, "in1", "6")
	assert.NoError(err)
	s7, err := nw.Connect(va1, "out1", dr, "in1", "7")
	assert.NoError(err)
	s8, err := nw.Connect(dr, "out1", va2, "in1", "8")
	assert.NoError(err)
	s9, err := nw.Connect(va2, "out1", ev, "in1", "9")
	assert.NoError(err)
	s10, err := nw.Connect(ev, "out1", cc, "in1", "10")
	assert.NoError(err)

	assert.NoError(s1.SetFluid("ammonia"))
	assert.NoError(s1.SetTemperature(253.15))
	assert.NoError(s1.SetQuality(1))
	assert.NoError(s6.SetTemperature(313.15))
	assert.NoError(s6.SetQuality(0))
	assert.NoError(s7.SetPressure(5e5))

	// vapor-region starting points keep the isentropic lookups of both
	// stages inside the fluid domain from the first iterate on
	s1.GuessMassFlow(0.12)
	s3.GuessMassFlow(0.02)
	s5.GuessMassFlow(0.14)
	s2.GuessEnthalpy(1.57e6)
	s3.GuessEnthalpy(1.45e6)
	s4.GuessEnthalpy(1.55e6)
	s5.GuessEnthalpy(1.77e6)
	s8.GuessEnthalpy(1.8e5)

	res, err := nw.SolveDesign(solver.WithMaxIterations(100), solver.WithDivergenceWindow(8))
	assert.NoError(err)
	assert.Equal(solver.Converged, res.Status)
	assert.Equal(29, res.NbUnknowns)
	assert.Equal(29, res.NbEquations)

	state := func(s *Stream) StreamState {
		st, err := s.State()
		require.NoError(t, err)
		return st
	}
	st1, st2, st3 := state(s1), state(s2), state(s3)
	st4, st5 := state(s4), state(s5)
	st7, st8 := state(s7), state(s8)
	st9, st10 := state(s9), state(s10)

	// drum outlets sit on the saturation lines at the drum pressure
	assert.InDelta(5e5, st3.P, 1)
	assert.InDelta(5e5, st8.P, 1)
	assert.InDelta(1, st3.X, 1e-6)
	assert.InDelta(0, st8.X, 1e-6)
	assert.InDelta(st3.T, st8.T, 1e-3)

	// the low stage valve throttles the drum liquid isenthalpically down to
	// the evaporation pressure, and the closer hands the evaporator outlet
	// back to the suction state
	assert.InDelta(st8.H, st9.H, 0.1)
	assert.InDelta(st1.P, st9.P, 1)
	assert.InDelta(0.0900, st9.X, 1e-3)
	assert.InDelta(st1.P, st10.P, 1)
	assert.InDelta(st1.H, st10.H, 0.5)
	assert.InDelta(1, st10.X, 1e-6)

	// the flash split matches the inlet quality
	x7, err := fluid.QualityPH(prov, "ammonia", st7.P, st7.H)
	assert.NoError(err)
	assert.InDelta(x7, st3.M/st7.M, 1e-5)
	assert.InDelta(st7.M, st3.M+st8.M, 1e-5)
	assert.InDelta(0.1226, x7, 5e-4)

	// mixing the cooler flash vapor in desuperheats the low stage discharge
	assert.Greater(st2.T, st4.T)
	assert.Greater(st4.T, st3.T)
	assert.Less(st5.T, 450.0)

	pw1, err := cp1.Power()
	assert.NoError(err)
	pw2, err := cp2.Power()
	assert.NoError(err)
	qcd, err := cd.Duty()
	assert.NoError(err)
	qev, err := ev.Duty()
	assert.NoError(err)

	// the high stage carries the full flow, the low stage only the liquid
	assert.InDelta(0.1222, st1.M, 5e-4)
	assert.InDelta(0.1393, st5.M, 5e-4)
	assert.InDelta(0.01707, st3.M, 2e-4)
	assert.Greater(pw2, pw1)

	assert.InDelta(-2e5, qcd, 0.05)
	assert.InDelta(0, qcd+qev+pw1+pw2, 1.0)

	cop := -qcd / (pw1 + pw2)
	carnot := 313.15 / (313.15 - 253.15)
	assert.Greater(cop, 1.0)
	assert.Less(cop, carnot)
	assert.InDelta(3.885, cop, 0.08)
}

func TestSquareCheck(t *testing.T) {
	t.Run("underspecified", func(t *testing.T) {
		assert := require.New(t)
		r := buildHeatPump(t)
		r.cd.Q = Param{} // drop the duty specification

		var spErr *SpecificationError
		_, err := r.nw.SolveDesign()
		assert.ErrorAs(err, &spErr)
		assert.Equal("system", spErr.Context)
		assert.Contains(spErr.Reason, "underspecified")
		assert.Equal(15, spErr.NbUnknowns)
		assert.Equal(14, spErr.NbEquations)
	})

	t.Run("overspecified", func(t *testing.T) {
		assert := require.New(t)
		r := buildHeatPump(t)
		assert.NoError(r.s2.SetMassFlow(0.15))

		var spErr *SpecificationError
		_, err := r.nw.SolveDesign()
		assert.ErrorAs(err, &spErr)
		assert.Equal("system", spErr.Context)
		assert.Contains(spErr.Reason, "overspecified")
		assert.Equal(14, spErr.NbUnknowns)
		assert.Equal(15, spErr.NbEquations)
	})
}
