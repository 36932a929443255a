// Package config loads the walkgen command configuration from YAML, with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mohammadijoo/WalkingPG_Go/pkg/constraint"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/footstep"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/generator"
)

// Environment overrides.
const (
	EnvLogLevel = "WALKGEN_LOG_LEVEL"
	EnvOutDir   = "WALKGEN_OUT"
)

// ─── Sections ───────────────────────────────────────────────────────────

type HorizonConfig struct {
	N     int     `yaml:"n"`
	T     float64 `yaml:"t"`
	TStep float64 `yaml:"t_step"`
	NF    int     `yaml:"nf"`
}

type RobotConfig struct {
	HCom       float64     `yaml:"h_com"`
	Gravity    float64     `yaml:"gravity"`
	FootLength float64     `yaml:"foot_length"`
	FootWidth  float64     `yaml:"foot_width"`
	MarginX    float64     `yaml:"margin_x"`
	MarginY    float64     `yaml:"margin_y"`
	MaxFootYaw float64     `yaml:"max_foot_yaw"`
	Support    string      `yaml:"support"` // "left"/"right" or "L"/"R"
	Reach      [][]float64 `yaml:"reach"`   // left-foot landing hull, CCW
}

type WeightsConfig struct {
	Velocity float64 `yaml:"velocity"`
	ZMP      float64 `yaml:"zmp"`
	Jerk     float64 `yaml:"jerk"`
}

type SolverConfig struct {
	Strategy      string        `yaml:"strategy"`
	MaxIterations int           `yaml:"max_iterations"`
	CPUTime       time.Duration `yaml:"cpu_time"`
}

type VelocityConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Q float64 `yaml:"q"`
}

type SimulationConfig struct {
	Cycles   int            `yaml:"cycles"`
	Velocity VelocityConfig `yaml:"velocity"`
	OutDir   string         `yaml:"out_dir"`
	Plots    bool           `yaml:"plots"`
	LogLevel string         `yaml:"log_level"`
}

// Config is the top-level structure of walkgen.yaml.
type Config struct {
	Horizon    HorizonConfig    `yaml:"horizon"`
	Robot      RobotConfig      `yaml:"robot"`
	Weights    WeightsConfig    `yaml:"weights"`
	Solver     SolverConfig     `yaml:"solver"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// Default mirrors generator.DefaultConfig and a short forward walk.
func Default() *Config {
	g := generator.DefaultConfig()
	reach := make([][]float64, len(g.Reach.Vertices))
	for i, v := range g.Reach.Vertices {
		reach[i] = []float64{v[0], v[1]}
	}
	return &Config{
		Horizon: HorizonConfig{N: g.N, T: g.T, TStep: g.TStep, NF: g.NF},
		Robot: RobotConfig{
			HCom:       g.HCom,
			Gravity:    g.G,
			FootLength: g.FootLength,
			FootWidth:  g.FootWidth,
			MarginX:    g.SecurityMarginX,
			MarginY:    g.SecurityMarginY,
			MaxFootYaw: g.MaxFootYaw,
			Support:    g.Support.String(),
			Reach:      reach,
		},
		Weights: WeightsConfig{
			Velocity: g.Weights.Velocity,
			ZMP:      g.Weights.ZMP,
			Jerk:     g.Weights.Jerk,
		},
		Solver: SolverConfig{
			Strategy:      g.Strategy.String(),
			MaxIterations: g.Limits.MaxWorkingSetRecalculations,
			CPUTime:       g.Limits.CPUTime,
		},
		Simulation: SimulationConfig{
			Cycles:   80,
			Velocity: VelocityConfig{X: 0.2},
			OutDir:   "output/walksim",
			Plots:    true,
			LogLevel: "info",
		},
	}
}

// ─── Loaders ────────────────────────────────────────────────────────────

// Load reads path over the defaults and applies environment overrides.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read walkgen config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse walkgen config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Simulation.LogLevel = v
	}
	if v := os.Getenv(EnvOutDir); v != "" {
		c.Simulation.OutDir = v
	}
}

// Generator converts the file sections into a validated generator
// configuration.
func (c *Config) Generator() (generator.Config, error) {
	support, err := footstep.ParseFoot(c.Robot.Support)
	if err != nil {
		return generator.Config{}, fmt.Errorf("%w: %v", generator.ErrConfig, err)
	}
	strategy, err := generator.ParseStrategy(c.Solver.Strategy)
	if err != nil {
		return generator.Config{}, err
	}
	reach := constraint.Polygon{Vertices: make([][2]float64, len(c.Robot.Reach))}
	for i, v := range c.Robot.Reach {
		if len(v) != 2 {
			return generator.Config{}, fmt.Errorf("%w: reach vertex %d has %d coordinates", generator.ErrConfig, i, len(v))
		}
		reach.Vertices[i] = [2]float64{v[0], v[1]}
	}

	g := generator.Config{
		N:     c.Horizon.N,
		T:     c.Horizon.T,
		TStep: c.Horizon.TStep,
		NF:    c.Horizon.NF,

		HCom:            c.Robot.HCom,
		G:               c.Robot.Gravity,
		FootLength:      c.Robot.FootLength,
		FootWidth:       c.Robot.FootWidth,
		SecurityMarginX: c.Robot.MarginX,
		SecurityMarginY: c.Robot.MarginY,
		Reach:           reach,
		MaxFootYaw:      c.Robot.MaxFootYaw,
		Support:         support,

		Weights: generator.Weights{
			Velocity: c.Weights.Velocity,
			ZMP:      c.Weights.ZMP,
			Jerk:     c.Weights.Jerk,
		},
		Strategy: strategy,
	}
	g.Limits.MaxWorkingSetRecalculations = c.Solver.MaxIterations
	g.Limits.CPUTime = c.Solver.CPUTime

	if err := g.Validate(); err != nil {
		return generator.Config{}, err
	}
	return g, nil
}
