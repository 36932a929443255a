// Package generator drives the walking pattern generator: it owns the CoM
// and footstep state, rebuilds the QP data every control cycle and commits
// the solver's answer back into the state.
//
// A cycle is Solve followed by Step. Step integrates the first jerk sample,
// advances time and the footstep selection, promotes the first planned
// footstep when a new step starts, re-plans the support feet and rebuilds
// the QP data. A Generator is not safe for concurrent use.
package generator

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/mohammadijoo/WalkingPG_Go/pkg/constraint"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/footstep"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/preview"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/qp"
)

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger used for step and solve events.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// WithBackend sets the factory used to create one solver backend per QP.
func WithBackend(newBackend func() qp.Backend) Option {
	return func(g *Generator) { g.newBackend = newBackend }
}

// Generator is the walking pattern generator.
type Generator struct {
	cfg        Config
	nstep      int
	log        *slog.Logger
	newBackend func() qp.Backend
	sessions   map[string]*qp.Session

	model   *preview.Model
	builder *constraint.Builder

	time float64

	// CoM states (p, p', p'') and jerk over the horizon
	cx, cy, cq *mat.VecDense
	ux, uy, uq *mat.VecDense

	// placed foot and the NF planned footsteps
	fx, fy, fq          float64
	planX, planY, planQ *mat.VecDense

	ref [3]float64

	sel     footstep.Selection
	current footstep.Support
	deque   []footstep.Support

	trajX, trajY, trajQ preview.Trajectory

	cop    constraint.CoP
	foot   constraint.Bounds
	ori    constraint.Bounds
	posObj Objective
	oriObj Objective
}

// New validates cfg and builds a generator standing still on the
// configured support foot with the first step planned.
func New(cfg Config, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		cfg:        cfg,
		nstep:      cfg.NStep(),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		newBackend: func() qp.Backend { return qp.NewPenaltySolver() },
		sessions:   make(map[string]*qp.Session),
	}
	for _, opt := range opts {
		opt(g)
	}

	b, err := constraint.NewBuilder(cfg.SupportPolygon(), cfg.Reach, cfg.MaxFootYaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	g.builder = b
	g.model = preview.New(cfg.N, cfg.T, cfg.HCom, cfg.G)

	n, nf := cfg.N, cfg.NF
	g.cx, g.cy, g.cq = mat.NewVecDense(3, nil), mat.NewVecDense(3, nil), mat.NewVecDense(3, nil)
	g.ux, g.uy, g.uq = mat.NewVecDense(n, nil), mat.NewVecDense(n, nil), mat.NewVecDense(n, nil)
	g.planX, g.planY, g.planQ = mat.NewVecDense(nf, nil), mat.NewVecDense(nf, nil), mat.NewVecDense(nf, nil)

	g.sel, _ = footstep.NewSelection(n, nf, g.nstep).Advance()
	g.current = footstep.Support{Foot: cfg.Support, TimeLimit: g.time + cfg.TStep}
	g.deque = footstep.Plan(g.sel, g.current, g.time, cfg.TStep)

	g.Simulate()
	g.Update()
	return g, nil
}

// SetSecurityMargin shrinks the support polygon by x (front/back) and y
// (sides).
func (g *Generator) SetSecurityMargin(x, y float64) error {
	if err := g.cfg.checkMargins(x, y); err != nil {
		return err
	}
	cfg := g.cfg
	cfg.SecurityMarginX, cfg.SecurityMarginY = x, y
	b, err := constraint.NewBuilder(cfg.SupportPolygon(), cfg.Reach, cfg.MaxFootYaw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	g.cfg, g.builder = cfg, b
	g.Update()
	return nil
}

// SetInitialValues sets the CoM states, the CoM height and the placed
// foot. The preview model is rebuilt for the new height.
func (g *Generator) SetInitialValues(comX, comY [3]float64, comZ, footX, footY, footQ float64) error {
	if !(comZ > 0) {
		return fmt.Errorf("%w: CoM height %v must be positive", ErrConfig, comZ)
	}
	g.cfg.HCom = comZ
	g.model = preview.New(g.cfg.N, g.cfg.T, comZ, g.cfg.G)

	g.cx = mat.NewVecDense(3, comX[:])
	g.cy = mat.NewVecDense(3, comY[:])
	g.cq = mat.NewVecDense(3, []float64{footQ, 0, 0})
	g.fx, g.fy, g.fq = footX, footY, footQ

	g.Simulate()
	g.Update()
	return nil
}

// SetVelocityReference sets the CoM velocity tracked over the horizon.
func (g *Generator) SetVelocityReference(x, y, q float64) {
	g.ref = [3]float64{x, y, q}
	g.Update()
}

// Simulate recomputes the predicted trajectories from the current states
// and jerks.
func (g *Generator) Simulate() {
	g.trajX = g.model.Predict(g.cx, g.ux)
	g.trajY = g.model.Predict(g.cy, g.uy)
	g.trajQ = g.model.Predict(g.cq, g.uq)
}

// Update rebuilds constraints and objectives from the current state.
// Orientations of the planned footsteps are those of the last solve.
func (g *Generator) Update() {
	in := g.input(g.yaws(g.planQ))
	g.cop = g.builder.CoP(in)
	g.foot = g.builder.Foot(in)
	g.ori = g.builder.Orientation(g.orientationLayout(), 0, g.fq)

	tx, ty := g.positionTerms()
	g.posObj = assemble(g.positionLayout(), tx, ty)
	g.oriObj = assemble(g.orientationLayout(), g.orientationTerm())
}

func (g *Generator) positionTerms() (x, y axisTerm) {
	m, w := g.model, g.cfg.Weights
	x = axisCost(m, g.sel, w, m.Pzu, m.Pzs, g.cx, g.fx, g.ref[0])
	y = axisCost(m, g.sel, w, m.Pzu, m.Pzs, g.cy, g.fy, g.ref[1])
	return x, y
}

func (g *Generator) orientationTerm() axisTerm {
	m := g.model
	return axisCost(m, g.sel, g.cfg.Weights, m.Ppu, m.Pps, g.cq, g.fq, g.ref[2])
}

// yaws returns the orientations of the placed foot followed by fq.
func (g *Generator) yaws(fq *mat.VecDense) []float64 {
	out := make([]float64, 0, g.cfg.NF+1)
	out = append(out, g.fq)
	return append(out, fq.RawVector().Data...)
}

func (g *Generator) input(yaw []float64) constraint.Input {
	return constraint.Input{
		Model:     g.model,
		Selection: g.sel,
		Plan:      g.deque,
		Support:   g.current.Foot,
		CX:        g.cx,
		CY:        g.cy,
		FX:        g.fx,
		FY:        g.fy,
		Yaw:       yaw,
		Layout:    g.positionLayout(),
	}
}

// Step integrates the first jerk sample and moves the horizon one sample
// forward.
func (g *Generator) Step() {
	g.model.Integrate(g.cx, g.ux.AtVec(0))
	g.model.Integrate(g.cy, g.uy.AtVec(0))
	g.model.Integrate(g.cq, g.uq.AtVec(0))
	g.time += g.cfg.T

	var newStep bool
	g.sel, newStep = g.sel.Advance()
	if newStep {
		g.promote()
	}
	g.deque = footstep.Plan(g.sel, g.current, g.time, g.cfg.TStep)

	g.Simulate()
	g.Update()
}

// promote places the first planned footstep and switches support to it.
func (g *Generator) promote() {
	g.fx, g.fy, g.fq = g.planX.AtVec(0), g.planY.AtVec(0), g.planQ.AtVec(0)
	for _, F := range []*mat.VecDense{g.planX, g.planY, g.planQ} {
		shift(F)
	}
	g.current = footstep.Support{
		Foot:      g.current.Foot.Opposite(),
		DS:        1,
		TimeLimit: g.time + g.cfg.TStep,
	}
	g.log.Debug("new step",
		"time", g.time,
		"support", g.current.Foot,
		"x", g.fx, "y", g.fy, "q", g.fq,
	)
}

// shift drops the first entry and repeats the last one.
func shift(v *mat.VecDense) {
	n := v.Len()
	for i := 0; i < n-1; i++ {
		v.SetVec(i, v.AtVec(i+1))
	}
}

// Cycle solves and steps.
func (g *Generator) Cycle(ctx context.Context) error {
	if err := g.Solve(ctx); err != nil {
		return err
	}
	g.Step()
	return nil
}

// session returns the solver session of the named problem.
func (g *Generator) session(name string) *qp.Session {
	s, ok := g.sessions[name]
	if !ok {
		s = qp.NewSession(g.newBackend(), g.cfg.Limits)
		g.sessions[name] = s
	}
	return s
}

// ResetSolver forces the next solve to start cold.
func (g *Generator) ResetSolver() {
	for _, s := range g.sessions {
		s.Reset()
	}
}

// Accessors. Vectors are copies.

// Config returns the configuration in use.
func (g *Generator) Config() Config { return g.cfg }

// Time returns the generator time (s).
func (g *Generator) Time() float64 { return g.time }

// Model returns the preview model.
func (g *Generator) Model() *preview.Model { return g.model }

// Selection returns the current selection matrices.
func (g *Generator) Selection() footstep.Selection { return g.sel }

// CurrentSupport returns the support state of the placed foot.
func (g *Generator) CurrentSupport() footstep.Support { return g.current }

// SupportDeque returns the support state of every horizon sample.
func (g *Generator) SupportDeque() []footstep.Support {
	return append([]footstep.Support(nil), g.deque...)
}

// CoM returns the CoM states c_k of each axis.
func (g *Generator) CoM() (x, y, q *mat.VecDense) {
	return mat.VecDenseCopyOf(g.cx), mat.VecDenseCopyOf(g.cy), mat.VecDenseCopyOf(g.cq)
}

// Jerk returns the jerk controls over the horizon.
func (g *Generator) Jerk() (x, y, q *mat.VecDense) {
	return mat.VecDenseCopyOf(g.ux), mat.VecDenseCopyOf(g.uy), mat.VecDenseCopyOf(g.uq)
}

// Foot returns the placed foot.
func (g *Generator) Foot() (x, y, q float64) { return g.fx, g.fy, g.fq }

// Footsteps returns the planned footsteps.
func (g *Generator) Footsteps() (x, y, q *mat.VecDense) {
	return mat.VecDenseCopyOf(g.planX), mat.VecDenseCopyOf(g.planY), mat.VecDenseCopyOf(g.planQ)
}

// VelocityReference returns the tracked CoM velocity.
func (g *Generator) VelocityReference() (x, y, q float64) { return g.ref[0], g.ref[1], g.ref[2] }

// Predicted returns the trajectories computed by the last Simulate.
func (g *Generator) Predicted() (x, y, q preview.Trajectory) { return g.trajX, g.trajY, g.trajQ }

// CoPConstraints returns the ZMP constraints over the position layout.
func (g *Generator) CoPConstraints() constraint.CoP { return g.cop }

// FootConstraints returns the reachability constraints over the position
// layout.
func (g *Generator) FootConstraints() constraint.Bounds { return g.foot }

// OrientationConstraints returns the yaw-change limits over the
// orientation layout.
func (g *Generator) OrientationConstraints() constraint.Bounds { return g.ori }

// PositionObjective returns the x/y cost.
func (g *Generator) PositionObjective() Objective { return g.posObj }

// OrientationObjective returns the yaw cost.
func (g *Generator) OrientationObjective() Objective { return g.oriObj }

func (g *Generator) positionLayout() constraint.Layout {
	return constraint.Layout{N: g.cfg.N, NF: g.cfg.NF, Axes: 2}
}

func (g *Generator) orientationLayout() constraint.Layout {
	return constraint.Layout{N: g.cfg.N, NF: g.cfg.NF, Axes: 1}
}

func (g *Generator) coupledLayout() constraint.Layout {
	return constraint.Layout{N: g.cfg.N, NF: g.cfg.NF, Axes: 3}
}

// PositionLayout returns the layout of the x/y decision vector.
func (g *Generator) PositionLayout() constraint.Layout { return g.positionLayout() }

// OrientationLayout returns the layout of the decoupled yaw problem.
func (g *Generator) OrientationLayout() constraint.Layout { return g.orientationLayout() }

// CoupledLayout returns the layout of the single x/y/yaw problem.
func (g *Generator) CoupledLayout() constraint.Layout { return g.coupledLayout() }
