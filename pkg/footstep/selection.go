package footstep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Selection attributes every horizon sample to a foot.
//
// v[i] == 1 marks samples still supported by the placed foot; V[i,j] == 1
// marks samples supported by the j-th future footstep. Each row of [v | V]
// holds exactly one 1.
type Selection struct {
	nstep int
	v     *mat.VecDense // v_kp1, length N
	V     *mat.Dense    // V_kp1, N x nf
}

// NewSelection returns the all-zero selection used before the first cycle.
func NewSelection(n, nf, nstep int) Selection {
	return Selection{
		nstep: nstep,
		v:     mat.NewVecDense(n, nil),
		V:     mat.NewDense(n, nf, nil),
	}
}

// Dims returns the horizon length and the number of future footsteps.
func (s Selection) Dims() (n, nf int) { return s.V.Dims() }

// NStep returns the number of samples per single-support phase.
func (s Selection) NStep() int { return s.nstep }

// Vec returns v_kp1. The caller must not modify it.
func (s Selection) Vec() *mat.VecDense { return s.v }

// Mat returns V_kp1. The caller must not modify it.
func (s Selection) Mat() *mat.Dense { return s.V }

// Advance moves the selection one sample forward in time. newStep reports
// that the placed foot's phase ended and the selection was re-seeded.
func (s Selection) Advance() (next Selection, newStep bool) {
	n, nf := s.Dims()
	next = NewSelection(n, nf, s.nstep)

	// shift v left, trailing zero
	for i := 0; i < n-1; i++ {
		next.v.SetVec(i, s.v.AtVec(i+1))
	}

	if next.v.AtVec(0) == 0 {
		for i := 0; i < n; i++ {
			if i < s.nstep {
				next.v.SetVec(i, 1)
				continue
			}
			step := i / s.nstep
			for j := 0; j < nf; j++ {
				if i+1 > s.nstep && j == step-1 {
					next.V.Set(i, j, 1)
				}
			}
		}
		next.check()
		return next, true
	}

	// shift V up, fill the last row into the first incomplete column
	for i := 0; i < n-1; i++ {
		next.V.SetRow(i, s.V.RawRowView(i+1))
	}
	for j := 0; j < nf; j++ {
		if mat.Sum(next.V.ColView(j)) < float64(s.nstep) {
			next.V.Set(n-1, j, 1)
			break
		}
	}
	next.check()
	return next, false
}

// check panics unless every row of [v | V] sums to exactly one.
func (s Selection) check() {
	n, _ := s.Dims()
	for i := 0; i < n; i++ {
		sum := s.v.AtVec(i) + mat.Sum(s.V.RowView(i))
		if sum != 1 {
			panic(fmt.Sprintf("footstep: selection row %d sums to %v, want 1", i, sum))
		}
	}
}

// Column returns the foot attributed to sample i: 0 for the placed foot,
// j+1 for the j-th future footstep, -1 if the row is empty.
func (s Selection) Column(i int) int {
	if s.v.AtVec(i) == 1 {
		return 0
	}
	_, nf := s.Dims()
	for j := 0; j < nf; j++ {
		if s.V.At(i, j) == 1 {
			return j + 1
		}
	}
	return -1
}

// Active returns how many future footsteps fall inside the horizon.
func (s Selection) Active() int {
	_, nf := s.Dims()
	k := 0
	for j := 0; j < nf; j++ {
		if mat.Sum(s.V.ColView(j)) > 0 {
			k++
		}
	}
	return k
}

// SelectionFromPlan rebuilds the selection matrices from a support plan.
func SelectionFromPlan(plan []Support, nf, nstep int) Selection {
	s := NewSelection(len(plan), nf, nstep)
	for i, sp := range plan {
		if sp.StepNumber == 0 {
			s.v.SetVec(i, 1)
			continue
		}
		s.V.Set(i, sp.StepNumber-1, 1)
	}
	return s
}
