package qp

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// PenaltySolver is a reference backend: quadratic-penalty continuation
// where each penalised subproblem is minimised by Newton iterations with
// the exact Hessian. The penalty weight grows by Growth from Rho0 until the
// iterate violates no row by more than Tolerance.
//
// Hotstart continues from the previous solution, which on a receding
// horizon is usually feasible or nearly so.
type PenaltySolver struct {
	Rho0, RhoMax, Growth float64
	Tolerance            float64

	last []float64
}

// NewPenaltySolver returns a solver with the default continuation.
func NewPenaltySolver() *PenaltySolver {
	return &PenaltySolver{
		Rho0:      1e2,
		RhoMax:    1e12,
		Growth:    10,
		Tolerance: 1e-5,
	}
}

// Init solves p starting from x0, or from the origin when x0 is nil.
func (s *PenaltySolver) Init(ctx context.Context, p *Problem, x0 []float64, lim Limits) (Result, error) {
	nv, _ := p.Dims()
	x := make([]float64, nv)
	if x0 != nil {
		if len(x0) != nv {
			return Result{}, fmt.Errorf("%w: start point has %d entries, want %d", ErrInvalidProblem, len(x0), nv)
		}
		copy(x, x0)
	}
	res, err := s.solve(ctx, p, x, lim)
	if err != nil {
		return Result{}, err
	}
	s.last = append(s.last[:0], res.X...)
	return res, nil
}

// Hotstart solves p starting from the last solution. If the problem size
// changed, it starts from the origin.
func (s *PenaltySolver) Hotstart(ctx context.Context, p *Problem, lim Limits) (Result, error) {
	if s.last == nil {
		return Result{}, ErrNotInitialized
	}
	nv, _ := p.Dims()
	x := make([]float64, nv)
	if len(s.last) == nv {
		copy(x, s.last)
	}
	res, err := s.solve(ctx, p, x, lim)
	if err != nil {
		return Result{}, err
	}
	s.last = append(s.last[:0], res.X...)
	return res, nil
}

func (s *PenaltySolver) solve(ctx context.Context, p *Problem, x []float64, lim Limits) (Result, error) {
	start := time.Now()
	budget := lim.MaxWorkingSetRecalculations
	if budget <= 0 {
		budget = DefaultLimits().MaxWorkingSetRecalculations
	}
	used := 0

	for rho := s.Rho0; ; rho *= s.Growth {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		settings := &optimize.Settings{
			MajorIterations:   budget - used,
			GradientThreshold: 1e-12 * math.Max(1, rho),
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-14,
				Relative:   1e-14,
				Iterations: 5,
			},
		}
		if lim.CPUTime > 0 {
			left := lim.CPUTime - time.Since(start)
			if left <= 0 {
				return Result{}, fmt.Errorf("%w: cpu time %v exhausted", ErrIterationLimit, lim.CPUTime)
			}
			settings.Runtime = left
		}

		// Line-search failures near the optimum are expected with large
		// penalties; the feasibility check below decides.
		r, err := optimize.Minimize(s.penalized(p, rho), x, settings, &optimize.Newton{})
		if r == nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidProblem, err)
		}
		used += max(1, r.Stats.MajorIterations)
		x = append([]float64(nil), r.X...)

		viol := p.Violation(x)
		if viol <= s.Tolerance {
			return Result{X: x, Objective: p.Objective(x), Iterations: used}, nil
		}
		if r.Status == optimize.RuntimeLimit || used >= budget {
			return Result{}, fmt.Errorf("%w: %d iterations, violation %.3g", ErrIterationLimit, used, viol)
		}
		if rho >= s.RhoMax {
			return Result{}, fmt.Errorf("%w: violation %.3g at penalty %.0e", ErrInfeasible, viol, rho)
		}
	}
}

// excess is how far val lies outside [lo, hi], signed.
func excess(val, lo, hi float64) float64 {
	switch {
	case val > hi:
		return val - hi
	case val < lo:
		return val - lo
	}
	return 0
}

// violated calls fn for every violated row. row is nil for a variable
// bound on x[i].
func violated(p *Problem, x []float64, fn func(i int, row []float64, e float64)) {
	if p.LB != nil {
		for i, xi := range x {
			if e := excess(xi, p.LB.AtVec(i), p.UB.AtVec(i)); e != 0 {
				fn(i, nil, e)
			}
		}
	}
	if p.A != nil {
		nc, _ := p.A.Dims()
		for i := 0; i < nc; i++ {
			row := p.A.RawRowView(i)
			if e := excess(floats.Dot(row, x), p.LBA.AtVec(i), p.UBA.AtVec(i)); e != 0 {
				fn(i, row, e)
			}
		}
	}
}

// penalized returns 1/2 x'Hx + g'x + rho/2 sum(excess^2).
func (s *PenaltySolver) penalized(p *Problem, rho float64) optimize.Problem {
	nv, _ := p.Dims()
	return optimize.Problem{
		Func: func(x []float64) float64 {
			f := p.Objective(x)
			violated(p, x, func(_ int, _ []float64, e float64) {
				f += 0.5 * rho * e * e
			})
			return f
		},
		Grad: func(grad, x []float64) {
			g := mat.NewVecDense(nv, grad)
			g.MulVec(p.H, mat.NewVecDense(nv, x))
			g.AddVec(g, p.G)
			violated(p, x, func(i int, row []float64, e float64) {
				if row == nil {
					grad[i] += rho * e
					return
				}
				floats.AddScaled(grad, rho*e, row)
			})
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			hess.CopySym(p.H)
			violated(p, x, func(i int, row []float64, _ float64) {
				if row == nil {
					hess.SetSym(i, i, hess.At(i, i)+rho)
					return
				}
				hess.SymRankOne(hess, rho, mat.NewVecDense(nv, row))
			})
		},
	}
}
