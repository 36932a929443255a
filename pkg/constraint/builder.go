// Package constraint assembles the linear inequalities of the walking QP:
// the ZMP must stay inside the support polygon of the foot supporting each
// horizon sample, and every planned footstep must land inside the
// reachable region of its predecessor.
package constraint

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mohammadijoo/WalkingPG_Go/pkg/footstep"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/preview"
)

// Infinity bounds unconstrained sides of a row.
const Infinity = 1e8

// Edge counts of the support and reachability polygons.
const (
	CoPEdges  = 4
	FootEdges = 5
)

// Position axes inside a layout.
const (
	AxisX = 0
	AxisY = 1
)

// Builder holds the constraint geometry.
type Builder struct {
	cop    [2]Polygon // indexed by footstep.Foot
	reach  [2]Polygon // reachable region of the moving foot, by its side
	maxYaw float64
}

// NewBuilder validates the geometry. cop is the left foot's support
// polygon and reach the region the left foot may land in relative to a
// right support foot; the right-foot versions are mirror images.
func NewBuilder(cop, reach Polygon, maxYaw float64) (*Builder, error) {
	if err := cop.Validate(CoPEdges); err != nil {
		return nil, fmt.Errorf("support polygon: %w", err)
	}
	if err := reach.Validate(FootEdges); err != nil {
		return nil, fmt.Errorf("reachability polygon: %w", err)
	}
	if !(maxYaw > 0) {
		return nil, fmt.Errorf("%w: max foot yaw %v must be positive", ErrPolygon, maxYaw)
	}
	b := &Builder{maxYaw: maxYaw}
	b.cop[footstep.Left] = cop
	b.cop[footstep.Right] = cop.Mirror()
	b.reach[footstep.Left] = reach
	b.reach[footstep.Right] = reach.Mirror()
	return b, nil
}

// SupportPolygon returns the support polygon of the given foot.
func (b *Builder) SupportPolygon(f footstep.Foot) Polygon { return b.cop[f] }

// ReachPolygon returns the landing region of the given moving foot.
func (b *Builder) ReachPolygon(f footstep.Foot) Polygon { return b.reach[f] }

// Input is the per-cycle state the constraints depend on.
type Input struct {
	Model     *preview.Model
	Selection footstep.Selection
	Plan      []footstep.Support
	Support   footstep.Foot // side of the placed foot

	CX, CY mat.Vector // CoM states (p, p', p'')
	FX, FY float64    // placed foot position

	// Yaw[0] is the placed foot's orientation, Yaw[j+1] that of future
	// footstep j.
	Yaw []float64

	Layout Layout
}

func (in Input) check() {
	n, nf := in.Selection.Dims()
	if in.Layout.N != n || in.Layout.NF != nf || in.Layout.Axes < 2 {
		panic(fmt.Sprintf("constraint: layout %+v does not match selection %dx%d", in.Layout, n, nf))
	}
	if len(in.Plan) != n || len(in.Yaw) != nf+1 {
		panic(fmt.Sprintf("constraint: plan %d / yaw %d entries for N=%d nf=%d", len(in.Plan), len(in.Yaw), n, nf))
	}
}

// side returns the foot that performs step number s.
func (in Input) side(s int) footstep.Foot {
	if s%2 == 0 {
		return in.Support
	}
	return in.Support.Opposite()
}

// CoP is the ZMP-in-support-polygon inequality LB <= A x <= UB.
type CoP struct {
	A      *mat.Dense
	LB, UB *mat.VecDense

	// Elemental blocks: rotated edge normals per sample (block diagonal,
	// CoPEdges*N x N) and the tiled edge offsets.
	DX, DY *mat.Dense
	B      *mat.VecDense
}

// CoP builds one row per (sample, edge), sample-major:
//
//	dx (Pzu_i Ux - V_i Fx) + dy (Pzu_i Uy - V_i Fy)
//	  <= b - dx (Pzs_i cx - v_i fx) - dy (Pzs_i cy - v_i fy)
func (b *Builder) CoP(in Input) CoP {
	in.check()
	m := in.Model
	n := m.N
	rows := CoPEdges * n

	out := CoP{
		A:  mat.NewDense(rows, in.Layout.Width(), nil),
		LB: mat.NewVecDense(rows, nil),
		UB: mat.NewVecDense(rows, nil),
		DX: mat.NewDense(rows, n, nil),
		DY: mat.NewDense(rows, n, nil),
		B:  mat.NewVecDense(rows, nil),
	}

	for i := 0; i < n; i++ {
		sp := in.Plan[i]
		normals, offsets := b.cop[sp.Foot].HalfPlanes()
		q := in.Yaw[sp.StepNumber]
		for k := 0; k < CoPEdges; k++ {
			r := i*CoPEdges + k
			dx, dy := rotate(normals[k], q)
			out.DX.Set(r, i, dx)
			out.DY.Set(r, i, dy)
			out.B.SetVec(r, offsets[k])
		}
	}

	V := in.Selection.Mat()
	v := in.Selection.Vec()
	for _, ax := range []struct {
		axis int
		D    *mat.Dense
		c    mat.Vector
		f    float64
	}{
		{AxisX, out.DX, in.CX, in.FX},
		{AxisY, out.DY, in.CY, in.FY},
	} {
		Columns(out.A, in.Layout.Jerk(ax.axis)).Mul(ax.D, m.Pzu)

		feet := Columns(out.A, in.Layout.Feet(ax.axis))
		feet.Mul(ax.D, V)
		feet.Scale(-1, feet)

		// free ZMP relative to the placed foot
		var z mat.VecDense
		z.MulVec(m.Pzs, ax.c)
		z.AddScaledVec(&z, -ax.f, v)

		var dz mat.VecDense
		dz.MulVec(ax.D, &z)
		out.UB.SubVec(out.UB, &dz)
	}
	out.UB.AddVec(out.UB, out.B)

	for r := 0; r < rows; r++ {
		out.LB.SetVec(r, -Infinity)
	}
	return out
}

// Bounds is a generic two-sided inequality LB <= A x <= UB.
type Bounds struct {
	A      *mat.Dense
	LB, UB *mat.VecDense
}

// Rows returns the number of inequality rows.
func (c Bounds) Rows() int {
	r, _ := c.A.Dims()
	return r
}

// Bounds drops the elemental blocks.
func (c CoP) Bounds() Bounds { return Bounds{A: c.A, LB: c.LB, UB: c.UB} }

// Stack concatenates inequalities over the same decision vector.
func Stack(bs ...Bounds) Bounds {
	rows, cols := 0, -1
	for _, b := range bs {
		r, c := b.A.Dims()
		if cols >= 0 && c != cols {
			panic(fmt.Sprintf("constraint: stacking %d columns onto %d", c, cols))
		}
		rows, cols = rows+r, c
	}
	out := Bounds{
		A:  mat.NewDense(rows, cols, nil),
		LB: mat.NewVecDense(rows, nil),
		UB: mat.NewVecDense(rows, nil),
	}
	off := 0
	for _, b := range bs {
		r := b.Rows()
		out.A.Slice(off, off+r, 0, cols).(*mat.Dense).Copy(b.A)
		out.LB.SliceVec(off, off+r).(*mat.VecDense).CopyVec(b.LB)
		out.UB.SliceVec(off, off+r).(*mat.VecDense).CopyVec(b.UB)
		off += r
	}
	return out
}

// Project re-lays the columns of c onto layout to.
func (c Bounds) Project(from, to Layout) Bounds {
	return Bounds{A: Project(c.A, from, to), LB: c.LB, UB: c.UB}
}

// Foot bounds every future footstep to the reachable region of its
// predecessor, rotated by the predecessor's yaw. Rows are
// footstep-major, FootEdges per footstep.
func (b *Builder) Foot(in Input) Bounds {
	in.check()
	nf := in.Layout.NF
	rows := FootEdges * nf

	out := Bounds{
		A:  mat.NewDense(rows, in.Layout.Width(), nil),
		LB: mat.NewVecDense(rows, nil),
		UB: mat.NewVecDense(rows, nil),
	}
	fx := in.Layout.Feet(AxisX)
	fy := in.Layout.Feet(AxisY)

	for j := 0; j < nf; j++ {
		normals, offsets := b.reach[in.side(j+1)].HalfPlanes()
		q := in.Yaw[j]
		for k := 0; k < FootEdges; k++ {
			r := j*FootEdges + k
			dx, dy := rotate(normals[k], q)

			out.A.Set(r, fx.Off+j, dx)
			out.A.Set(r, fy.Off+j, dy)
			ub := offsets[k]
			if j == 0 {
				ub += dx*in.FX + dy*in.FY
			} else {
				out.A.Set(r, fx.Off+j-1, -dx)
				out.A.Set(r, fy.Off+j-1, -dy)
			}
			out.UB.SetVec(r, ub)
			out.LB.SetVec(r, -Infinity)
		}
	}
	return out
}

// Orientation limits the yaw change between consecutive footsteps on the
// given axis of layout l: |Fq_j - Fq_j-1| <= maxYaw, with Fq_-1 = fq.
func (b *Builder) Orientation(l Layout, axis int, fq float64) Bounds {
	nf := l.NF
	out := Bounds{
		A:  mat.NewDense(nf, l.Width(), nil),
		LB: mat.NewVecDense(nf, nil),
		UB: mat.NewVecDense(nf, nil),
	}
	feet := l.Feet(axis)
	for j := 0; j < nf; j++ {
		out.A.Set(j, feet.Off+j, 1)
		lo, hi := -b.maxYaw, b.maxYaw
		if j == 0 {
			lo += fq
			hi += fq
		} else {
			out.A.Set(j, feet.Off+j-1, -1)
		}
		out.LB.SetVec(j, lo)
		out.UB.SetVec(j, hi)
	}
	return out
}
