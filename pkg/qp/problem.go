// Package qp carries the numeric description of a walking QP to a solver
// backend and keeps the backend's warm-start state between control cycles.
//
//	min  1/2 x'Hx + g'x
//	s.t. lb  <= x  <= ub
//	     lbA <= Ax <= ubA
package qp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidProblem reports inconsistent problem dimensions or bounds.
	ErrInvalidProblem = errors.New("qp: invalid problem")
	// ErrInfeasible reports that no point satisfies the constraints.
	ErrInfeasible = errors.New("qp: infeasible")
	// ErrIterationLimit reports that the iteration or time budget ran out.
	ErrIterationLimit = errors.New("qp: iteration limit reached")
	// ErrNotInitialized reports a hot start without a prior Init.
	ErrNotInitialized = errors.New("qp: backend not initialized")
)

// Problem is one QP instance. A, LBA and UBA may be nil when there are no
// general constraints; LB and UB may be nil for free variables.
type Problem struct {
	H *mat.SymDense
	G *mat.VecDense

	LB, UB *mat.VecDense

	A        *mat.Dense
	LBA, UBA *mat.VecDense
}

// Dims returns the number of variables and of general constraints.
func (p *Problem) Dims() (nv, nc int) {
	if p.H != nil {
		nv = p.H.SymmetricDim()
	}
	if p.A != nil {
		nc, _ = p.A.Dims()
	}
	return nv, nc
}

// Validate checks dimensions, finiteness and bound ordering.
func (p *Problem) Validate() error {
	if p.H == nil || p.G == nil {
		return fmt.Errorf("%w: missing Hessian or gradient", ErrInvalidProblem)
	}
	nv, nc := p.Dims()
	if p.G.Len() != nv {
		return fmt.Errorf("%w: gradient has %d entries, want %d", ErrInvalidProblem, p.G.Len(), nv)
	}
	if err := checkPair("bound", p.LB, p.UB, nv); err != nil {
		return err
	}
	if p.A != nil {
		if _, c := p.A.Dims(); c != nv {
			return fmt.Errorf("%w: constraint matrix has %d columns, want %d", ErrInvalidProblem, c, nv)
		}
		if p.LBA == nil || p.UBA == nil {
			return fmt.Errorf("%w: constraint matrix without bounds", ErrInvalidProblem)
		}
		if err := checkPair("constraint", p.LBA, p.UBA, nc); err != nil {
			return err
		}
	}
	if !finite(p.H.RawSymmetric().Data) || !finite(p.G.RawVector().Data) {
		return fmt.Errorf("%w: non-finite objective", ErrInvalidProblem)
	}
	if p.A != nil && !finite(p.A.RawMatrix().Data) {
		return fmt.Errorf("%w: non-finite constraint matrix", ErrInvalidProblem)
	}
	return nil
}

func checkPair(what string, lo, hi *mat.VecDense, n int) error {
	if lo == nil && hi == nil {
		return nil
	}
	if lo == nil || hi == nil {
		return fmt.Errorf("%w: %s bounds must be given in pairs", ErrInvalidProblem, what)
	}
	if lo.Len() != n || hi.Len() != n {
		return fmt.Errorf("%w: %s bounds have %d/%d entries, want %d", ErrInvalidProblem, what, lo.Len(), hi.Len(), n)
	}
	for i := 0; i < n; i++ {
		l, h := lo.AtVec(i), hi.AtVec(i)
		if math.IsNaN(l) || math.IsNaN(h) || l > h {
			return fmt.Errorf("%w: %s %d has bounds [%v, %v]", ErrInvalidProblem, what, i, l, h)
		}
	}
	return nil
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Objective evaluates 1/2 x'Hx + g'x.
func (p *Problem) Objective(x []float64) float64 {
	v := mat.NewVecDense(len(x), x)
	return 0.5*mat.Inner(v, p.H, v) + mat.Dot(p.G, v)
}

// Violation returns the largest bound or constraint violation at x.
func (p *Problem) Violation(x []float64) float64 {
	worst := 0.0
	over := func(val, lo, hi float64) {
		worst = math.Max(worst, math.Max(lo-val, val-hi))
	}
	if p.LB != nil {
		for i, xi := range x {
			over(xi, p.LB.AtVec(i), p.UB.AtVec(i))
		}
	}
	if p.A != nil {
		var ax mat.VecDense
		ax.MulVec(p.A, mat.NewVecDense(len(x), x))
		for i := 0; i < ax.Len(); i++ {
			over(ax.AtVec(i), p.LBA.AtVec(i), p.UBA.AtVec(i))
		}
	}
	return worst
}
