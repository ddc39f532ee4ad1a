package fluid

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pinchsim/pinch/logger"
)

func init() {
	// working fluids of the stock heat pump cases, anchored at their normal
	// boiling points; critical data from literature
	MustRegister(Coefficients{
		Name: "ammonia", R: 488.2, CpVap: 2100, CpLiq: 4600,
		TBoil: 239.82, HVap: 1369e3,
		TCrit: 405.40, PCrit: 11.333e6,
		TMin: 196, TMax: 450, PMax: 11e6,
	})
	MustRegister(Coefficients{
		Name: "propane", R: 188.6, CpVap: 1630, CpLiq: 2500,
		TBoil: 231.04, HVap: 425.6e3,
		TCrit: 369.89, PCrit: 4.2512e6,
		TMin: 160, TMax: 355, PMax: 3.5e6,
	})
	MustRegister(Coefficients{
		Name: "isobutane", R: 143.0, CpVap: 1660, CpLiq: 2400,
		TBoil: 261.40, HVap: 366.0e3,
		TCrit: 407.81, PCrit: 3.629e6,
		TMin: 180, TMax: 395, PMax: 3.2e6,
	})
	MustRegister(Coefficients{
		Name: "water", R: 461.5, CpVap: 1900, CpLiq: 4180,
		TBoil: 373.12, HVap: 2256.5e3,
		TCrit: 647.10, PCrit: 22.064e6,
		TMin: 274, TMax: 620, PMax: 2.1e7,
	})
}

// Coefficients parameterize the built-in ideal two-phase model for one
// fluid: an incompressible liquid joined to an ideal-gas vapor through a
// saturation line derived from phase equilibrium, anchored at the normal
// boiling point. The reference state is saturated liquid at TBoil
// (h = 0, s = 0).
type Coefficients struct {
	Name  string  // canonical name, lower case
	R     float64 // specific gas constant [J/(kg·K)]
	CpVap float64 // vapor isobaric heat capacity [J/(kg·K)]
	CpLiq float64 // liquid heat capacity [J/(kg·K)]
	TBoil float64 // normal boiling temperature [K]
	HVap  float64 // heat of vaporization at TBoil [J/kg]
	TCrit float64 // critical temperature [K], reported by Critical queries
	PCrit float64 // critical pressure [Pa]
	TMin  float64 // validity window of the model
	TMax  float64
	PMax  float64
}

var aliases = map[string]string{
	"nh3":   "ammonia",
	"r717":  "ammonia",
	"r290":  "propane",
	"r600a": "isobutane",
	"h2o":   "water",
}

var (
	registry  = make(map[string]Coefficients)
	registryM sync.RWMutex
)

// Register adds a fluid to the global registry of the built-in backend.
// Registering a name twice overwrites the previous entry.
func Register(c Coefficients) error {
	if err := c.validate(); err != nil {
		return err
	}
	name := strings.ToLower(c.Name)
	registryM.Lock()
	defer registryM.Unlock()
	if _, ok := registry[name]; ok {
		log := logger.Logger()
		log.Debug().Str("name", name).Msg("fluid registered multiple times")
	}
	registry[name] = c
	return nil
}

// MustRegister is Register for coefficient sets that are known good, such
// as the built-ins; it panics instead of returning the validation error.
func MustRegister(c Coefficients) {
	if err := Register(c); err != nil {
		panic(err)
	}
}

// RegisterAlias maps an alternative name (e.g. a refrigerant code) onto a
// registered fluid.
func RegisterAlias(alias, canonical string) {
	registryM.Lock()
	defer registryM.Unlock()
	aliases[strings.ToLower(alias)] = strings.ToLower(canonical)
}

// Registered returns the canonical names of all registered fluids, for
// diagnostics.
func Registered() []string {
	registryM.RLock()
	defer registryM.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

func lookup(name string) (Coefficients, error) {
	key := strings.ToLower(name)
	registryM.RLock()
	defer registryM.RUnlock()
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	c, ok := registry[key]
	if !ok {
		return Coefficients{}, fmt.Errorf("%w: %q", ErrUnknownFluid, name)
	}
	return c, nil
}

func (c Coefficients) validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("fluid: coefficients need a name")
	case c.R <= 0 || c.CpVap <= 0 || c.CpLiq <= 0 || c.HVap <= 0:
		return fmt.Errorf("fluid %s: R, CpVap, CpLiq and HVap must be positive", c.Name)
	case c.TMin <= 0 || c.TMax <= c.TMin:
		return fmt.Errorf("fluid %s: need 0 < TMin < TMax", c.Name)
	case c.TBoil <= c.TMin || c.TBoil >= c.TMax:
		return fmt.Errorf("fluid %s: TBoil must lie inside (TMin, TMax)", c.Name)
	case c.latent(c.TMax) <= 0:
		return fmt.Errorf("fluid %s: latent heat vanishes below TMax", c.Name)
	}
	return nil
}
