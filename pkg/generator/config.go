package generator

import (
	"errors"
	"fmt"
	"math"

	"github.com/mohammadijoo/WalkingPG_Go/pkg/constraint"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/footstep"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/qp"
)

// ErrConfig marks an invalid generator configuration or setter argument.
var ErrConfig = errors.New("generator: invalid configuration")

// Strategy selects how orientations and positions are solved.
type Strategy int

const (
	// Decoupled solves the orientation QP first, then the position QP
	// with support polygons rotated by the new orientations.
	Decoupled Strategy = iota
	// Coupled solves one QP over x, y and yaw; polygons are rotated by
	// the orientations of the previous cycle.
	Coupled
)

func (s Strategy) String() string {
	switch s {
	case Decoupled:
		return "decoupled"
	case Coupled:
		return "coupled"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy accepts the names returned by String.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "decoupled", "":
		return Decoupled, nil
	case "coupled":
		return Coupled, nil
	}
	return Decoupled, fmt.Errorf("%w: unknown strategy %q", ErrConfig, s)
}

// Weights of the objective terms.
type Weights struct {
	Velocity float64 // a: CoM velocity tracking
	ZMP      float64 // c: ZMP centring over the support foot
	Jerk     float64 // d: jerk regularisation
}

// Config holds every parameter of a generator. It is fixed for the
// generator's lifetime except for the fields changed through setters.
type Config struct {
	// Horizon
	N     int     // preview samples
	T     float64 // sample period (s)
	TStep float64 // single-support duration (s)
	NF    int     // future footsteps in the horizon

	// Robot
	HCom float64 // CoM height (m)
	G    float64 // gravity (m/s^2)

	FootLength, FootWidth float64 // sole rectangle (m)

	// Security margins shrink the sole on each side.
	SecurityMarginX, SecurityMarginY float64

	// Reach is where the left foot may land relative to a right support
	// foot; the right foot uses its mirror image.
	Reach      constraint.Polygon
	MaxFootYaw float64 // max yaw change between consecutive steps (rad)

	// Support is the initial support foot.
	Support footstep.Foot

	Weights  Weights
	Strategy Strategy
	Limits   qp.Limits
}

// DefaultReach is the reachable region of the HRP-2 left foot.
func DefaultReach() constraint.Polygon {
	return constraint.Polygon{Vertices: [][2]float64{
		{0.28, 0.2},
		{0.2, 0.3},
		{-0.2, 0.3},
		{-0.28, 0.2},
		{0, 0.15},
	}}
}

// DefaultConfig returns the HRP-2 setup: 16 samples of 0.1 s, steps of
// 0.8 s, starting on the left foot.
func DefaultConfig() Config {
	return Config{
		N:     16,
		T:     0.1,
		TStep: 0.8,
		NF:    2,

		HCom: 0.814,
		G:    9.81,

		FootLength: 0.2172,
		FootWidth:  0.1380,

		SecurityMarginX: 0.04,
		SecurityMarginY: 0.04,

		Reach:      DefaultReach(),
		MaxFootYaw: 0.1,

		Support: footstep.Left,

		Weights: Weights{
			Velocity: 1.0,
			ZMP:      1e-6,
			Jerk:     1e-5,
		},
		Strategy: Decoupled,
		Limits:   qp.DefaultLimits(),
	}
}

// LongHorizonConfig previews three footsteps over 2.4 s.
func LongHorizonConfig() Config {
	cfg := DefaultConfig()
	cfg.N = 24
	cfg.NF = 3
	return cfg
}

// CoupledConfig is DefaultConfig solving a single QP per cycle.
func CoupledConfig() Config {
	cfg := DefaultConfig()
	cfg.Strategy = Coupled
	return cfg
}

// NStep returns the number of samples per single-support phase.
func (c *Config) NStep() int { return int(math.Round(c.TStep / c.T)) }

// SupportPolygon returns the sole rectangle shrunk by the margins.
func (c *Config) SupportPolygon() constraint.Polygon {
	return constraint.Rectangle(c.FootLength/2-c.SecurityMarginX, c.FootWidth/2-c.SecurityMarginY)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.N <= 0 || c.NF <= 0 {
		return fmt.Errorf("%w: N=%d NF=%d must be positive", ErrConfig, c.N, c.NF)
	}
	if !(c.T > 0) || !(c.TStep > 0) {
		return fmt.Errorf("%w: T=%v TStep=%v must be positive", ErrConfig, c.T, c.TStep)
	}
	ratio := c.TStep / c.T
	if math.Abs(ratio-math.Round(ratio)) > 1e-9 {
		return fmt.Errorf("%w: TStep/T = %v is not an integer", ErrConfig, ratio)
	}
	nstep := c.NStep()
	if c.N < nstep {
		return fmt.Errorf("%w: horizon N=%d shorter than a step (%d samples)", ErrConfig, c.N, nstep)
	}
	if c.N > c.NF*nstep+1 {
		return fmt.Errorf("%w: horizon N=%d needs more than NF=%d future steps", ErrConfig, c.N, c.NF)
	}
	if !(c.HCom > 0) || !(c.G > 0) {
		return fmt.Errorf("%w: HCom=%v G=%v must be positive", ErrConfig, c.HCom, c.G)
	}
	if err := c.checkMargins(c.SecurityMarginX, c.SecurityMarginY); err != nil {
		return err
	}
	if c.Weights.Velocity < 0 || c.Weights.ZMP < 0 || !(c.Weights.Jerk > 0) {
		return fmt.Errorf("%w: weights %+v", ErrConfig, c.Weights)
	}
	if c.Strategy != Decoupled && c.Strategy != Coupled {
		return fmt.Errorf("%w: strategy %v", ErrConfig, c.Strategy)
	}
	if _, err := constraint.NewBuilder(c.SupportPolygon(), c.Reach, c.MaxFootYaw); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

func (c *Config) checkMargins(x, y float64) error {
	if !(x >= 0) || !(y >= 0) || x >= c.FootLength/2 || y >= c.FootWidth/2 {
		return fmt.Errorf("%w: security margins (%v, %v) do not fit a %vx%v sole",
			ErrConfig, x, y, c.FootLength, c.FootWidth)
	}
	return nil
}
