package equation

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// relative finite-difference step, near the central-difference optimum of
// cbrt(machine epsilon)
const fdRelStep = 1e-6

// Jacobian fills dst with ∂F_i/∂x_j at x using central finite differences.
// Only entries listed in the equations' Deps are written, so dst is zeroed
// first. Columns are differentiated in parallel on up to nbTasks goroutines;
// residual functions must be pure for this to be sound.
//
// When x sits on a variable bound the stencil degrades to a one-sided
// difference instead of stepping outside the property domain.
func (s *System) Jacobian(x []float64, dst *mat.Dense, nbTasks int) error {
	if !s.finalized {
		return errors.New("equation: Jacobian of a system that is not finalized")
	}
	if nbTasks < 1 {
		nbTasks = 1
	}
	dst.Zero()

	g := new(errgroup.Group)
	g.SetLimit(nbTasks)
	for j := 0; j < len(s.vars); j++ {
		g.Go(func() error {
			eqs := s.touch[j]
			buf := s.getBuffer()
			defer s.putBuffer(buf)
			w := *buf
			copy(w, x)

			xj := x[j]
			step := fdRelStep * math.Max(math.Abs(xj), s.vars[j].scale)
			up := math.Min(xj+step, s.vars[j].max)
			dn := math.Max(xj-step, s.vars[j].min)
			if up-dn <= 0 {
				return fmt.Errorf("equation: empty finite-difference interval for %s", s.vars[j].name)
			}

			plus := make([]float64, len(eqs))
			w[j] = up
			for k, i := range eqs {
				v, err := s.eqs[i].Fn(w)
				if err != nil {
					return fmt.Errorf("jacobian of %q (%s): %w", s.eqs[i].Name, s.eqs[i].Owner, err)
				}
				plus[k] = v
			}
			w[j] = dn
			for k, i := range eqs {
				v, err := s.eqs[i].Fn(w)
				if err != nil {
					return fmt.Errorf("jacobian of %q (%s): %w", s.eqs[i].Name, s.eqs[i].Owner, err)
				}
				dst.Set(i, j, (plus[k]-v)/(up-dn))
			}
			return nil
		})
	}
	return g.Wait()
}
