// Package charline provides one-dimensional characteristic lines used to
// scale component performance away from its design point (isentropic
// efficiency over relative mass flow, heat transfer coefficient over
// relative flow, ...).
//
// Lines are evaluated with linear interpolation between sample points and
// clamped to the sampled domain: the solver may probe far outside it during
// iteration and extrapolated characteristics are meaningless.
package charline

import (
	"errors"
	"fmt"
	"sort"
)

// Well-known curve identifiers, bound to default lines at package init.
// Components reference curves by identifier so a snapshot stays a flat,
// serializable structure.
const (
	IDCompressorEtaS = "compressor:eta_s_char"
	IDPumpEtaS       = "pump:eta_s_char"
	IDHeatTransfer   = "heat exchanger:kA_char"
)

// ErrUnknownCurve is returned when an identifier is not registered.
var ErrUnknownCurve = errors.New("charline: unknown curve")

// Provider resolves curve identifiers at off-design assembly time.
// Implementations must be pure and safe for concurrent use.
type Provider interface {
	// Evaluate returns the curve value at x, clamped to the curve domain.
	Evaluate(id string, x float64) (float64, error)
}

// Line is an immutable piecewise-linear characteristic.
type Line struct {
	x, y []float64
}

// New builds a line from sample points. x must be strictly increasing and at
// least two points long. The slices are copied.
func New(x, y []float64) (*Line, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("charline: %d x samples vs %d y samples", len(x), len(y))
	}
	if len(x) < 2 {
		return nil, errors.New("charline: need at least two sample points")
	}
	for i := 1; i < len(x); i++ {
		if x[i] <= x[i-1] {
			return nil, fmt.Errorf("charline: x samples not strictly increasing at index %d", i)
		}
	}
	l := &Line{x: make([]float64, len(x)), y: make([]float64, len(y))}
	copy(l.x, x)
	copy(l.y, y)
	return l, nil
}

// MustNew is New for package-level defaults; it panics on invalid samples.
func MustNew(x, y []float64) *Line {
	l, err := New(x, y)
	if err != nil {
		panic(err)
	}
	return l
}

// Flat returns the constant-1 line: off-design behavior identical to design.
func Flat() *Line {
	return MustNew([]float64{0, 1}, []float64{1, 1})
}

// Identity returns y = x on [0, 1], clamped outside.
func Identity() *Line {
	return MustNew([]float64{0, 1}, []float64{0, 1})
}

// Evaluate interpolates the line at x, clamped to the sampled domain.
func (l *Line) Evaluate(x float64) float64 {
	n := len(l.x)
	if x <= l.x[0] {
		return l.y[0]
	}
	if x >= l.x[n-1] {
		return l.y[n-1]
	}
	// first index with l.x[i] >= x; the clamps above keep it in [1, n-1]
	i := sort.SearchFloat64s(l.x, x)
	if l.x[i] == x {
		return l.y[i]
	}
	w := (x - l.x[i-1]) / (l.x[i] - l.x[i-1])
	return l.y[i-1] + w*(l.y[i]-l.y[i-1])
}

// Domain returns the sampled interval.
func (l *Line) Domain() (lo, hi float64) {
	return l.x[0], l.x[len(l.x)-1]
}
