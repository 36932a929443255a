package generator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/mohammadijoo/WalkingPG_Go/pkg/constraint"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/footstep"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/preview"
)

// Objective is the cost 1/2 x'Qx + p'x over a layout.
type Objective struct {
	Q *mat.SymDense
	P *mat.VecDense
}

// axisTerm is the (N+NF)-sized cost block of one axis.
type axisTerm struct {
	Q *mat.Dense
	P *mat.VecDense
}

// axisCost builds, with pu/ps the ZMP (or position) recursion,
//
//	Q = | a Pvu'Pvu + c Pu'Pu + d I   -c Pu'V |
//	    | -c V'Pu                      c V'V  |
//
//	p = | a Pvu'(Pvs c - ref) + c Pu'(Ps c - v f) |
//	    | -c V'(Ps c - v f)                       |
func axisCost(m *preview.Model, sel footstep.Selection, w Weights, pu, ps *mat.Dense, c mat.Vector, f, ref float64) axisTerm {
	n, nf := sel.Dims()
	V := sel.Mat()
	a, cz, d := w.Velocity, w.ZMP, w.Jerk

	q := mat.NewDense(n+nf, n+nf, nil)
	jj := q.Slice(0, n, 0, n).(*mat.Dense)
	var tmp mat.Dense
	jj.Mul(m.Pvu.T(), m.Pvu)
	jj.Scale(a, jj)
	tmp.Mul(pu.T(), pu)
	jj.Add(jj, scaled(cz, &tmp))
	for i := 0; i < n; i++ {
		jj.Set(i, i, jj.At(i, i)+d)
	}

	var cross mat.Dense
	cross.Mul(pu.T(), V)
	cross.Scale(-cz, &cross)
	q.Slice(0, n, n, n+nf).(*mat.Dense).Copy(&cross)
	q.Slice(n, n+nf, 0, n).(*mat.Dense).Copy(cross.T())

	ff := q.Slice(n, n+nf, n, n+nf).(*mat.Dense)
	ff.Mul(V.T(), V)
	ff.Scale(cz, ff)

	// velocity error and ZMP offset of the free response
	var dv, dz mat.VecDense
	dv.MulVec(m.Pvs, c)
	for i := 0; i < n; i++ {
		dv.SetVec(i, dv.AtVec(i)-ref)
	}
	dz.MulVec(ps, c)
	dz.AddScaledVec(&dz, -f, sel.Vec())

	p := mat.NewVecDense(n+nf, nil)
	pj := p.SliceVec(0, n).(*mat.VecDense)
	var t2 mat.VecDense
	pj.MulVec(m.Pvu.T(), &dv)
	pj.ScaleVec(a, pj)
	t2.MulVec(pu.T(), &dz)
	pj.AddScaledVec(pj, cz, &t2)

	pf := p.SliceVec(n, n+nf).(*mat.VecDense)
	pf.MulVec(V.T(), &dz)
	pf.ScaleVec(-cz, pf)

	return axisTerm{Q: q, P: p}
}

func scaled(s float64, a mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(s, a)
	return &out
}

// assemble places one term per axis on the block diagonal of layout l.
// The upper triangle of each block is taken as authoritative.
func assemble(l constraint.Layout, terms ...axisTerm) Objective {
	if len(terms) != l.Axes {
		panic("generator: one cost term per layout axis")
	}
	w := l.Width()
	obj := Objective{
		Q: mat.NewSymDense(w, nil),
		P: mat.NewVecDense(w, nil),
	}
	size := l.N + l.NF
	for ax, t := range terms {
		off := l.Jerk(ax).Off
		for i := 0; i < size; i++ {
			for j := i; j < size; j++ {
				obj.Q.SetSym(off+i, off+j, t.Q.At(i, j))
			}
			obj.P.SetVec(off+i, t.P.AtVec(i))
		}
	}
	return obj
}
