package constraint

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Block is a contiguous run of decision-vector columns.
type Block struct {
	Off, Len int
}

// End returns the index one past the block.
func (b Block) End() int { return b.Off + b.Len }

// Layout describes a decision vector made of Axes repetitions of
// (jerk over N samples, NF footstep coordinates).
//
// Position problems use Axes = 2 (x then y), the orientation problem
// Axes = 1 and the coupled problem Axes = 3 (x, y, q).
type Layout struct {
	N, NF, Axes int
}

// Width returns the decision-vector length.
func (l Layout) Width() int { return l.Axes * (l.N + l.NF) }

// Jerk returns the jerk block of the given axis.
func (l Layout) Jerk(axis int) Block {
	l.checkAxis(axis)
	return Block{Off: axis * (l.N + l.NF), Len: l.N}
}

// Feet returns the footstep block of the given axis.
func (l Layout) Feet(axis int) Block {
	l.checkAxis(axis)
	return Block{Off: axis*(l.N+l.NF) + l.N, Len: l.NF}
}

func (l Layout) checkAxis(axis int) {
	if axis < 0 || axis >= l.Axes {
		panic(fmt.Sprintf("constraint: axis %d outside layout with %d axes", axis, l.Axes))
	}
}

// Columns returns the sub-matrix of a holding the columns of block b.
func Columns(a *mat.Dense, b Block) *mat.Dense {
	r, _ := a.Dims()
	return a.Slice(0, r, b.Off, b.End()).(*mat.Dense)
}

// Segment returns the part of x covered by block b.
func Segment(x []float64, b Block) []float64 { return x[b.Off:b.End():b.End()] }

// Project copies the columns of a, laid out as from, into a new matrix laid
// out as to. Blocks are matched per axis; when their lengths differ the
// leading columns are kept.
func Project(a *mat.Dense, from, to Layout) *mat.Dense {
	r, c := a.Dims()
	if c != from.Width() {
		panic(fmt.Sprintf("constraint: matrix has %d columns, layout wants %d", c, from.Width()))
	}
	out := mat.NewDense(r, to.Width(), nil)
	axes := min(from.Axes, to.Axes)
	for ax := 0; ax < axes; ax++ {
		for _, pair := range [][2]Block{
			{from.Jerk(ax), to.Jerk(ax)},
			{from.Feet(ax), to.Feet(ax)},
		} {
			n := min(pair[0].Len, pair[1].Len)
			if n == 0 {
				continue
			}
			src := a.Slice(0, r, pair[0].Off, pair[0].Off+n)
			out.Slice(0, r, pair[1].Off, pair[1].Off+n).(*mat.Dense).Copy(src)
		}
	}
	return out
}
