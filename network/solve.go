package network

import (
	"fmt"
	"time"

	"github.com/pinchsim/pinch/debug"
	"github.com/pinchsim/pinch/logger"
	"github.com/pinchsim/pinch/solver"
)

// Result summarizes a network solve. It is returned for failed solves too,
// so callers can inspect the residual breakdown of the last iterate.
type Result struct {
	Mode        Mode
	Status      solver.Status
	Iterations  int
	Residual    float64
	NbUnknowns  int
	NbEquations int

	// Breakdown lists per-equation scaled residuals, worst first, for
	// solves that did not converge.
	Breakdown []solver.EquationResidual
}

// SolveDesign assembles and solves the network with its design
// specifications. On success the converged state is written back to the
// streams and free parameters, and a snapshot of the design point is
// captured for off-design solves.
func (nw *Network) SolveDesign(opts ...solver.Option) (*Result, error) {
	return nw.solve(Design, nil, opts...)
}

// SolveOffDesign solves the network with its off-design parameter sets,
// scaling listed parameters from the given design snapshot. The snapshot
// must stem from the same topology revision; pass nw.DesignSnapshot() in
// the common same-session case.
func (nw *Network) SolveOffDesign(snap *Snapshot, opts ...solver.Option) (*Result, error) {
	if snap == nil {
		return nil, ErrNoDesignSnapshot
	}
	if snap.Revision != nw.revision {
		return nil, fmt.Errorf("%w: snapshot revision %d, network revision %d", ErrStaleSnapshot, snap.Revision, nw.revision)
	}
	return nw.solve(Offdesign, snap, opts...)
}

func (nw *Network) solve(mode Mode, snap *Snapshot, opts ...solver.Option) (res *Result, err error) {
	log := logger.Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("network: solve panicked: %v\n%s", r, debug.Stack())
		}
	}()

	if err := nw.Validate(); err != nil {
		return nil, err
	}
	asm, err := nw.assemble(mode, snap)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("mode", mode.String()).
		Int("nbComponents", len(nw.components)).
		Int("nbStreams", len(nw.streams)).
		Int("nbUnknowns", asm.sys.GetNbVariables()).
		Msg("assembled equation system")

	x0 := asm.initialVector()
	sres, serr := solver.Solve(asm.sys, x0, opts...)

	res = &Result{
		Mode:        mode,
		NbUnknowns:  asm.sys.GetNbVariables(),
		NbEquations: asm.sys.GetNbEquations(),
	}
	if sres != nil {
		res.Status = sres.Status
		res.Iterations = sres.Iterations
		res.Residual = sres.Residual
		res.Breakdown = sres.Breakdown
	}
	if serr != nil {
		return res, serr
	}

	if err := asm.writeBack(sres.X); err != nil {
		return res, err
	}
	nw.warm = asm.solutionMap(sres.X)
	nw.solved = true
	if mode == Design {
		captured, err := nw.captureSnapshot(sres.X, asm)
		if err != nil {
			return res, err
		}
		nw.designSnap = captured
	}

	log.Info().
		Str("mode", mode.String()).
		Int("iterations", res.Iterations).
		Float64("residual", res.Residual).
		Dur("took", time.Since(start)).
		Msg("network converged")
	return res, nil
}
