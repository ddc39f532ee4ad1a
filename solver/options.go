package solver

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/pinchsim/pinch/logger"
)

// Option defines an option for altering the behavior of the Newton solver.
// See the descriptions of functions returning instances of this type for
// implemented options.
type Option func(*Config) error

// Config is the solver configuration with all options applied.
type Config struct {
	Tolerance        float64 // convergence threshold on the scaled residual maximum
	MaxIterations    int
	Damping          float64 // initial damping factor of the Newton update
	MinDamping       float64 // floor the adaptive damping never goes below
	MaxRelStep       float64 // per-variable relative update limit
	DivergenceWindow int     // consecutive residual growths before declaring divergence
	NbTasks          int     // parallelism of Jacobian assembly, defaults to runtime.NumCPU()
	Logger           zerolog.Logger
}

// WithTolerance sets the convergence threshold on the scaled maximum
// residual. Defaults to 1e-6.
func WithTolerance(tol float64) Option {
	return func(opt *Config) error {
		if tol <= 0 {
			return fmt.Errorf("tolerance must be positive, got %v", tol)
		}
		opt.Tolerance = tol
		return nil
	}
}

// WithMaxIterations caps the number of Newton iterations. Defaults to 50.
func WithMaxIterations(n int) Option {
	return func(opt *Config) error {
		if n < 1 {
			return fmt.Errorf("max iterations must be at least 1, got %d", n)
		}
		opt.MaxIterations = n
		return nil
	}
}

// WithDamping sets the initial and minimum damping factor of the Newton
// update. The factor adapts between min and 1 during iteration. Defaults to
// initial 1.0, min 0.1.
func WithDamping(initial, min float64) Option {
	return func(opt *Config) error {
		if min <= 0 || initial < min || initial > 1 {
			return fmt.Errorf("damping must satisfy 0 < min <= initial <= 1, got %v, %v", initial, min)
		}
		opt.Damping = initial
		opt.MinDamping = min
		return nil
	}
}

// WithMaxRelStep limits how much a variable may change in one iteration,
// relative to max(|value|, scale). Defaults to 0.4.
func WithMaxRelStep(s float64) Option {
	return func(opt *Config) error {
		if s <= 0 {
			return fmt.Errorf("max relative step must be positive, got %v", s)
		}
		opt.MaxRelStep = s
		return nil
	}
}

// WithDivergenceWindow sets how many consecutive iterations the residual may
// grow before the solve is declared diverged. Defaults to 3.
func WithDivergenceWindow(n int) Option {
	return func(opt *Config) error {
		if n < 1 {
			return fmt.Errorf("divergence window must be at least 1, got %d", n)
		}
		opt.DivergenceWindow = n
		return nil
	}
}

// WithNbTasks sets the number of goroutines differentiating Jacobian columns.
func WithNbTasks(nbTasks int) Option {
	return func(opt *Config) error {
		if nbTasks < 1 || nbTasks > 512 {
			return fmt.Errorf("nbTasks must be between 1 and 512, got %d", nbTasks)
		}
		opt.NbTasks = nbTasks
		return nil
	}
}

// WithLogger specifies a zerolog.Logger for iteration traces. By default the
// global pinch logger is used.
func WithLogger(l zerolog.Logger) Option {
	return func(opt *Config) error {
		opt.Logger = l
		return nil
	}
}

// NewConfig returns the default configuration with the given options applied.
func NewConfig(opts ...Option) (Config, error) {
	config := Config{
		Tolerance:        1e-6,
		MaxIterations:    50,
		Damping:          1.0,
		MinDamping:       0.1,
		MaxRelStep:       0.4,
		DivergenceWindow: 3,
		NbTasks:          runtime.NumCPU(),
		Logger:           logger.Logger(),
	}
	for _, option := range opts {
		if err := option(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}
