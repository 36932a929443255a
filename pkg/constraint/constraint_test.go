package constraint

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mohammadijoo/WalkingPG_Go/pkg/footstep"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/preview"
)

const (
	horizon = 16
	feet    = 2
	nstep   = 8
	tStep   = 0.8
)

func testReach() Polygon {
	return Polygon{Vertices: [][2]float64{
		{0.28, 0.2}, {0.2, 0.3}, {-0.2, 0.3}, {-0.28, 0.2}, {0, 0.15},
	}}
}

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(Rectangle(0.2172/2-0.04, 0.1380/2-0.04), testReach(), 0.1)
	require.NoError(t, err)
	return b
}

// testInput advances the selection `cycles` times past the initial reseed.
func testInput(cycles int, support footstep.Foot) Input {
	sel, _ := footstep.NewSelection(horizon, feet, nstep).Advance()
	for k := 0; k < cycles; k++ {
		sel, _ = sel.Advance()
	}
	return Input{
		Model:     preview.New(horizon, 0.1, 0.814, 9.81),
		Selection: sel,
		Plan:      footstep.Plan(sel, footstep.Support{Foot: support, TimeLimit: tStep}, 0, tStep),
		Support:   support,
		CX:        mat.NewVecDense(3, []float64{0.01, 0.1, -0.2}),
		CY:        mat.NewVecDense(3, []float64{-0.02, 0.05, 0.3}),
		FX:        0.03,
		FY:        -0.01,
		Yaw:       []float64{0.05, -0.04, 0.08},
		Layout:    Layout{N: horizon, NF: feet, Axes: 2},
	}
}

func randomDecision(r *rand.Rand, l Layout) *mat.VecDense {
	x := mat.NewVecDense(l.Width(), nil)
	for i := 0; i < l.Width(); i++ {
		x.SetVec(i, r.NormFloat64()*0.1)
	}
	return x
}

func TestPolygon_Validate(t *testing.T) {
	assert.NoError(t, Rectangle(0.1, 0.05).Validate(4))
	assert.NoError(t, testReach().Validate(5))
	assert.NoError(t, testReach().Mirror().Validate(5))

	assert.ErrorIs(t, Rectangle(0.1, 0.05).Validate(5), ErrPolygon)

	cw := Polygon{Vertices: [][2]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}}}
	assert.ErrorIs(t, cw.Validate(4), ErrPolygon)

	notch := Polygon{Vertices: [][2]float64{{1, 0}, {1, 1}, {0.5, 0.2}, {0, 1}, {0, 0}}}
	assert.ErrorIs(t, notch.Validate(5), ErrPolygon)
}

func TestPolygon_HalfPlanesOfRectangle(t *testing.T) {
	normals, offsets := Rectangle(0.0686, 0.029).HalfPlanes()
	want := [][2]float64{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	for k := range want {
		assert.InDelta(t, want[k][0], normals[k][0], 1e-15, "edge %d", k)
		assert.InDelta(t, want[k][1], normals[k][1], 1e-15, "edge %d", k)
	}
	assert.InDeltaSlice(t, []float64{0.0686, 0.029, 0.0686, 0.029}, offsets, 1e-15)
}

func TestPolygon_MirrorFlipsLateralSide(t *testing.T) {
	normals, offsets := testReach().Mirror().HalfPlanes()
	// mirrored hull lies at negative y
	inside := [2]float64{0, -0.22}
	outside := [2]float64{0, 0.22}
	for k := range normals {
		assert.LessOrEqual(t, normals[k][0]*inside[0]+normals[k][1]*inside[1], offsets[k])
	}
	violated := false
	for k := range normals {
		if normals[k][0]*outside[0]+normals[k][1]*outside[1] > offsets[k] {
			violated = true
		}
	}
	assert.True(t, violated)
}

func TestLayout_BlocksTileTheVector(t *testing.T) {
	l := Layout{N: horizon, NF: feet, Axes: 3}
	seen := make([]int, l.Width())
	for ax := 0; ax < l.Axes; ax++ {
		for _, b := range []Block{l.Jerk(ax), l.Feet(ax)} {
			for c := b.Off; c < b.End(); c++ {
				seen[c]++
			}
		}
	}
	for c, n := range seen {
		require.Equal(t, 1, n, "column %d", c)
	}
	assert.Equal(t, 54, l.Width())
	assert.Panics(t, func() { l.Jerk(3) })
}

func TestProject_DropsTrailingFootColumns(t *testing.T) {
	from := Layout{N: horizon, NF: feet, Axes: 2}
	to := Layout{N: horizon, NF: feet - 1, Axes: 2}

	r := rand.New(rand.NewSource(3))
	a := mat.NewDense(5, from.Width(), nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < from.Width(); j++ {
			a.Set(i, j, r.Float64())
		}
	}

	p := Project(a, from, to)
	_, c := p.Dims()
	require.Equal(t, to.Width(), c)
	for ax := 0; ax < 2; ax++ {
		assert.True(t, mat.Equal(Columns(a, from.Jerk(ax)), Columns(p, to.Jerk(ax))))
		assert.Equal(t, a.At(2, from.Feet(ax).Off), p.At(2, to.Feet(ax).Off))
	}

	back := Project(p, to, from)
	for ax := 0; ax < 2; ax++ {
		assert.Equal(t, 0.0, back.At(4, from.Feet(ax).Off+1))
		assert.Equal(t, a.At(4, from.Feet(ax).Off), back.At(4, from.Feet(ax).Off))
	}
}

func TestCoP_ScenarioShape(t *testing.T) {
	b := testBuilder(t)
	in := testInput(0, footstep.Left)
	c := b.CoP(in)

	r, cols := c.A.Dims()
	assert.Equal(t, 64, r)
	assert.Equal(t, 36, cols)
	assert.Equal(t, 64, c.UB.Len())
	assert.Equal(t, -Infinity, c.LB.AtVec(17))

	// sample 0, front edge of the left foot rotated by the placed yaw
	dx, dy := rotate([2]float64{1, 0}, in.Yaw[0])
	assert.InDelta(t, dx, c.DX.At(0, 0), 1e-15)
	assert.InDelta(t, dy, c.DY.At(0, 0), 1e-15)
	assert.InDelta(t, 0.0686, c.B.AtVec(0), 1e-12)

	// samples on the placed foot have no footstep columns
	fx := in.Layout.Feet(AxisX)
	for j := 0; j < feet; j++ {
		assert.Equal(t, 0.0, c.A.At(3, fx.Off+j))
	}
	// first sample on the first future foot
	row := nstep * CoPEdges
	assert.InDelta(t, -c.DX.At(row, nstep), c.A.At(row, fx.Off), 1e-15)
}

// Each CoP row measures the signed distance of the predicted ZMP to one
// edge of the support polygon of the foot under it.
func TestCoP_RowsMatchZMPGeometry(t *testing.T) {
	b := testBuilder(t)
	r := rand.New(rand.NewSource(7))

	for _, tc := range []struct {
		cycles  int
		support footstep.Foot
	}{
		{0, footstep.Left},
		{3, footstep.Right},
		{7, footstep.Left},
	} {
		in := testInput(tc.cycles, tc.support)
		c := b.CoP(in)
		l := in.Layout
		x := randomDecision(r, l)

		var ax mat.VecDense
		ax.MulVec(c.A, x)

		ux := mat.NewVecDense(horizon, Segment(x.RawVector().Data, l.Jerk(AxisX)))
		uy := mat.NewVecDense(horizon, Segment(x.RawVector().Data, l.Jerk(AxisY)))
		Fx := Segment(x.RawVector().Data, l.Feet(AxisX))
		Fy := Segment(x.RawVector().Data, l.Feet(AxisY))
		zx := in.Model.Predict(in.CX, ux).ZMP
		zy := in.Model.Predict(in.CY, uy).ZMP

		for i := 0; i < horizon; i++ {
			sp := in.Plan[i]
			px, py := in.FX, in.FY
			if sp.StepNumber > 0 {
				px, py = Fx[sp.StepNumber-1], Fy[sp.StepNumber-1]
			}
			normals, offsets := b.SupportPolygon(sp.Foot).HalfPlanes()
			for k := 0; k < CoPEdges; k++ {
				dx, dy := rotate(normals[k], in.Yaw[sp.StepNumber])
				want := dx*(zx.AtVec(i)-px) + dy*(zy.AtVec(i)-py) - offsets[k]
				got := ax.AtVec(i*CoPEdges+k) - c.UB.AtVec(i*CoPEdges+k)
				require.InDelta(t, want, got, 1e-9, "cycles %d sample %d edge %d", tc.cycles, i, k)
			}
		}
	}
}

func TestFoot_ScenarioFirstBlock(t *testing.T) {
	b := testBuilder(t)
	in := testInput(0, footstep.Left)
	in.Yaw = []float64{0, 0, 0}
	in.FX, in.FY = 0, 0
	c := b.Foot(in)

	r, cols := c.A.Dims()
	require.Equal(t, FootEdges*feet, r)
	require.Equal(t, 36, cols)

	// the first future foot is the right one: mirrored hull
	normals, offsets := testReach().Mirror().HalfPlanes()
	fx := in.Layout.Feet(AxisX).Off
	fy := in.Layout.Feet(AxisY).Off
	for k := 0; k < FootEdges; k++ {
		assert.InDelta(t, normals[k][0], c.A.At(k, fx), 1e-15)
		assert.InDelta(t, normals[k][1], c.A.At(k, fy), 1e-15)
		assert.Equal(t, 0.0, c.A.At(k, fx+1))
		assert.InDelta(t, offsets[k], c.UB.AtVec(k), 1e-15)
		assert.Equal(t, -Infinity, c.LB.AtVec(k))
	}
}

func TestFoot_RowsMatchReachGeometry(t *testing.T) {
	b := testBuilder(t)
	r := rand.New(rand.NewSource(11))
	in := testInput(2, footstep.Right)
	c := b.Foot(in)
	x := randomDecision(r, in.Layout)

	var ax mat.VecDense
	ax.MulVec(c.A, x)
	Fx := Segment(x.RawVector().Data, in.Layout.Feet(AxisX))
	Fy := Segment(x.RawVector().Data, in.Layout.Feet(AxisY))

	side := footstep.Left
	px, py := in.FX, in.FY
	for j := 0; j < feet; j++ {
		normals, offsets := b.ReachPolygon(side).HalfPlanes()
		for k := 0; k < FootEdges; k++ {
			dx, dy := rotate(normals[k], in.Yaw[j])
			want := dx*(Fx[j]-px) + dy*(Fy[j]-py) - offsets[k]
			got := ax.AtVec(j*FootEdges+k) - c.UB.AtVec(j*FootEdges+k)
			require.InDelta(t, want, got, 1e-12, "foot %d edge %d", j, k)
		}
		side = side.Opposite()
		px, py = Fx[j], Fy[j]
	}
}

func TestOrientation_Bounds(t *testing.T) {
	b := testBuilder(t)
	l := Layout{N: horizon, NF: feet, Axes: 1}
	c := b.Orientation(l, 0, 0.3)

	require.Equal(t, feet, c.Rows())
	off := l.Feet(0).Off
	assert.Equal(t, 1.0, c.A.At(0, off))
	assert.Equal(t, 1.0, c.A.At(1, off+1))
	assert.Equal(t, -1.0, c.A.At(1, off))
	assert.InDelta(t, 0.2, c.LB.AtVec(0), 1e-15)
	assert.InDelta(t, 0.4, c.UB.AtVec(0), 1e-15)
	assert.Equal(t, -0.1, c.LB.AtVec(1))
	assert.Equal(t, 0.1, c.UB.AtVec(1))
}

func TestNewBuilder_RejectsBadGeometry(t *testing.T) {
	_, err := NewBuilder(testReach(), testReach(), 0.1)
	assert.ErrorIs(t, err, ErrPolygon)

	_, err = NewBuilder(Rectangle(0.1, 0.05), Rectangle(0.1, 0.05), 0.1)
	assert.ErrorIs(t, err, ErrPolygon)

	_, err = NewBuilder(Rectangle(0.1, 0.05), testReach(), math.NaN())
	assert.ErrorIs(t, err, ErrPolygon)
}

func TestStack_ConcatenatesRows(t *testing.T) {
	b := testBuilder(t)
	in := testInput(1, footstep.Left)
	cop, foot := b.CoP(in).Bounds(), b.Foot(in)

	s := Stack(cop, foot)
	require.Equal(t, cop.Rows()+foot.Rows(), s.Rows())
	assert.Equal(t, cop.UB.AtVec(5), s.UB.AtVec(5))
	assert.Equal(t, foot.UB.AtVec(2), s.UB.AtVec(cop.Rows()+2))
	assert.Equal(t, foot.A.At(3, 16), s.A.At(cop.Rows()+3, 16))

	l3 := Layout{N: horizon, NF: feet, Axes: 3}
	p := s.Project(in.Layout, l3)
	_, c := p.A.Dims()
	assert.Equal(t, l3.Width(), c)
	assert.Equal(t, s.A.At(70, 34), p.A.At(70, 34))
	assert.Panics(t, func() { Stack(cop, p) })
}
