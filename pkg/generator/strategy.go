package generator

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mohammadijoo/WalkingPG_Go/pkg/constraint"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/qp"
)

// Problem names, also used as solver session keys.
const (
	problemOrientation = "orientation"
	problemPosition    = "position"
	problemCoupled     = "coupled"
)

// solution holds the decision values of one solve before they are
// committed.
type solution struct {
	ux, uy, uq []float64
	fx, fy, fq []float64
}

// Solve runs the configured strategy and commits jerks and footsteps.
// On error the generator state is left as it was.
func (g *Generator) Solve(ctx context.Context) error {
	var (
		sol solution
		err error
	)
	switch g.cfg.Strategy {
	case Coupled:
		sol, err = g.solveCoupled(ctx)
	default:
		sol, err = g.solveDecoupled(ctx)
	}
	if err != nil {
		g.log.Debug("solve failed", "time", g.time, "strategy", g.cfg.Strategy, "err", err)
		return err
	}

	g.ux, g.uy, g.uq = vec(sol.ux), vec(sol.uy), vec(sol.uq)
	g.planX, g.planY, g.planQ = vec(sol.fx), vec(sol.fy), vec(sol.fq)
	g.Simulate()
	return nil
}

// solveDecoupled solves the orientations, then the positions with the
// polygons rotated by the new orientations.
func (g *Generator) solveDecoupled(ctx context.Context) (solution, error) {
	ol := g.orientationLayout()
	xq, err := g.run(ctx, problemOrientation, g.oriObj, g.ori,
		pack(ol, []*mat.VecDense{g.uq}, []*mat.VecDense{g.planQ}))
	if err != nil {
		return solution{}, err
	}
	fq := constraint.Segment(xq, ol.Feet(0))

	in := g.input(g.yaws(mat.NewVecDense(len(fq), fq)))
	cons := constraint.Stack(g.builder.CoP(in).Bounds(), g.builder.Foot(in))

	pl := g.positionLayout()
	xp, err := g.run(ctx, problemPosition, g.posObj, cons,
		pack(pl, []*mat.VecDense{g.ux, g.uy}, []*mat.VecDense{g.planX, g.planY}))
	if err != nil {
		return solution{}, err
	}
	return solution{
		ux: constraint.Segment(xp, pl.Jerk(0)),
		uy: constraint.Segment(xp, pl.Jerk(1)),
		uq: constraint.Segment(xq, ol.Jerk(0)),
		fx: constraint.Segment(xp, pl.Feet(0)),
		fy: constraint.Segment(xp, pl.Feet(1)),
		fq: fq,
	}, nil
}

// solveCoupled solves x, y and yaw in one problem. Polygons keep the
// orientations of the previous solve, which keeps the problem linear.
func (g *Generator) solveCoupled(ctx context.Context) (solution, error) {
	pl, cl := g.positionLayout(), g.coupledLayout()
	tx, ty := g.positionTerms()
	obj := assemble(cl, tx, ty, g.orientationTerm())
	cons := constraint.Stack(
		g.cop.Bounds().Project(pl, cl),
		g.foot.Project(pl, cl),
		g.builder.Orientation(cl, 2, g.fq),
	)

	x, err := g.run(ctx, problemCoupled, obj, cons, pack(cl,
		[]*mat.VecDense{g.ux, g.uy, g.uq},
		[]*mat.VecDense{g.planX, g.planY, g.planQ}))
	if err != nil {
		return solution{}, err
	}
	return solution{
		ux: constraint.Segment(x, cl.Jerk(0)),
		uy: constraint.Segment(x, cl.Jerk(1)),
		uq: constraint.Segment(x, cl.Jerk(2)),
		fx: constraint.Segment(x, cl.Feet(0)),
		fy: constraint.Segment(x, cl.Feet(1)),
		fq: constraint.Segment(x, cl.Feet(2)),
	}, nil
}

func (g *Generator) run(ctx context.Context, name string, obj Objective, cons constraint.Bounds, x0 []float64) ([]float64, error) {
	s := g.session(name)
	res, err := s.Solve(ctx, &qp.Problem{
		H:   obj.Q,
		G:   obj.P,
		A:   cons.A,
		LBA: cons.LB,
		UBA: cons.UB,
	}, x0)
	if err != nil {
		return nil, fmt.Errorf("generator: %s problem at t=%.3f: %w", name, g.time, err)
	}
	g.log.Debug("solved",
		"problem", name,
		"session", s.ID,
		"iterations", res.Iterations,
		"objective", res.Objective,
	)
	return res.X, nil
}

// pack lays jerks and footsteps out as a decision vector of l.
func pack(l constraint.Layout, u, f []*mat.VecDense) []float64 {
	x := make([]float64, l.Width())
	for ax := 0; ax < l.Axes; ax++ {
		jerk := constraint.Segment(x, l.Jerk(ax))
		for i := range jerk {
			jerk[i] = u[ax].AtVec(i)
		}
		feet := constraint.Segment(x, l.Feet(ax))
		for j := range feet {
			feet[j] = f[ax].AtVec(j)
		}
	}
	return x
}

func vec(x []float64) *mat.VecDense {
	return mat.NewVecDense(len(x), append([]float64(nil), x...))
}
