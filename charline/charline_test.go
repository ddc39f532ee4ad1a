package charline

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	assert := require.New(t)

	_, err := New([]float64{0, 1}, []float64{1})
	assert.Error(err)

	_, err = New([]float64{0}, []float64{1})
	assert.Error(err)

	_, err = New([]float64{0, 1, 1}, []float64{1, 2, 3})
	assert.Error(err)

	_, err = New([]float64{0, 1, 0.5}, []float64{1, 2, 3})
	assert.Error(err)

	l, err := New([]float64{0, 1}, []float64{1, 2})
	assert.NoError(err)
	assert.NotNil(l)
}

func TestEvaluate(t *testing.T) {
	assert := require.New(t)
	l := MustNew([]float64{0, 1, 2}, []float64{0, 1, 0})

	assert.Equal(0.0, l.Evaluate(0))
	assert.Equal(1.0, l.Evaluate(1))
	assert.Equal(0.5, l.Evaluate(0.5))
	assert.Equal(0.5, l.Evaluate(1.5))

	// clamped, never extrapolated
	assert.Equal(0.0, l.Evaluate(-10))
	assert.Equal(0.0, l.Evaluate(10))

	lo, hi := l.Domain()
	assert.Equal(0.0, lo)
	assert.Equal(2.0, hi)
}

func TestEvaluateClampProperty(t *testing.T) {
	l := MustNew(
		[]float64{0.25, 0.5, 0.75, 1.0, 1.25, 1.5},
		[]float64{0.88, 0.95, 0.99, 1.0, 0.99, 0.95},
	)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("values stay inside the sampled range", prop.ForAll(
		func(x float64) bool {
			y := l.Evaluate(x)
			return y >= 0.88 && y <= 1.0
		},
		gen.Float64Range(-100, 100),
	))

	properties.Property("evaluation equals evaluation of the clamped input", prop.ForAll(
		func(x float64) bool {
			clamped := math.Min(math.Max(x, 0.25), 1.5)
			return l.Evaluate(x) == l.Evaluate(clamped)
		},
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFlatAndIdentity(t *testing.T) {
	assert := require.New(t)

	f := Flat()
	assert.Equal(1.0, f.Evaluate(-5))
	assert.Equal(1.0, f.Evaluate(0.33))
	assert.Equal(1.0, f.Evaluate(42))

	id := Identity()
	assert.Equal(0.25, id.Evaluate(0.25))
	assert.Equal(1.0, id.Evaluate(7)) // clamped
}

func TestRegistry(t *testing.T) {
	assert := require.New(t)

	for _, id := range []string{IDCompressorEtaS, IDPumpEtaS, IDHeatTransfer} {
		l, ok := Lookup(id)
		assert.True(ok, "default curve %s must be registered", id)
		assert.InDelta(1.0, l.Evaluate(1.0), 1e-12, "defaults are unity at the design point")
	}

	p := Default()
	v, err := p.Evaluate(IDHeatTransfer, 1.0)
	assert.NoError(err)
	assert.InDelta(1.0, v, 1e-12)

	_, err = p.Evaluate("no such curve", 1.0)
	assert.ErrorIs(err, ErrUnknownCurve)

	Register("custom", Flat())
	v, err = p.Evaluate("custom", 123)
	assert.NoError(err)
	assert.Equal(1.0, v)
}
