// ------------------------------------------------------------
// Preview model of the cart-table (linear inverted pendulum)
// ------------------------------------------------------------
// The CoM is modelled per axis as a triple integrator driven by jerk:
//
//   p''' = u
//
// sampled with period T and zero-order hold on u. Over a horizon of N
// samples the state c_k = (p, p', p'') maps to
//
//   C_k+1   = Pps c_k + Ppu U_k
//   dC_k+1  = Pvs c_k + Pvu U_k
//   ddC_k+1 = Pas c_k + Pau U_k
//   Z_k+1   = Pzs c_k + Pzu U_k      (ZMP = p - h_com/g p'')
// ------------------------------------------------------------

package preview

import (
	"gonum.org/v1/gonum/mat"
)

// Model holds the horizon-invariant recursion matrices.
type Model struct {
	N     int     // number of preview samples
	T     float64 // sample period (s)
	HCom  float64 // CoM height (m)
	G     float64 // gravity (m/s^2)
	ratio float64 // HCom / G

	// State-transition matrices (N x 3)
	Pps, Pvs, Pas, Pzs *mat.Dense

	// Control-influence matrices (N x N), lower triangular
	Ppu, Pvu, Pau, Pzu *mat.Dense
}

// New builds the preview matrices for the given horizon and pendulum.
func New(n int, t, hCom, g float64) *Model {
	m := &Model{
		N:     n,
		T:     t,
		HCom:  hCom,
		G:     g,
		ratio: hCom / g,
		Pps:   mat.NewDense(n, 3, nil),
		Pvs:   mat.NewDense(n, 3, nil),
		Pas:   mat.NewDense(n, 3, nil),
		Pzs:   mat.NewDense(n, 3, nil),
		Ppu:   mat.NewDense(n, n, nil),
		Pvu:   mat.NewDense(n, n, nil),
		Pau:   mat.NewDense(n, n, nil),
		Pzu:   mat.NewDense(n, n, nil),
	}
	m.computeDerived()
	return m
}

// computeDerived fills every matrix from (N, T, ratio).
func (m *Model) computeDerived() {
	T := m.T
	for i := 0; i < m.N; i++ {
		j := float64(i + 1)

		m.Pps.SetRow(i, []float64{1, j * T, j * j * T * T / 2})
		m.Pvs.SetRow(i, []float64{0, 1, j * T})
		m.Pas.SetRow(i, []float64{0, 0, 1})

		for k := 0; k <= i; k++ {
			d := float64(i - k)
			m.Ppu.Set(i, k, (3*d*d+3*d+1)*T*T*T/6)
			m.Pvu.Set(i, k, (2*d+1)*T*T/2)
			m.Pau.Set(i, k, T)
		}
	}

	// ZMP rows are formed element by element so that the identity
	// Pz = Pp - (h/g) Pa holds bit for bit.
	for i := 0; i < m.N; i++ {
		for c := 0; c < 3; c++ {
			m.Pzs.Set(i, c, m.Pps.At(i, c)-m.ratio*m.Pas.At(i, c))
		}
		for k := 0; k < m.N; k++ {
			m.Pzu.Set(i, k, m.Ppu.At(i, k)-m.ratio*m.Pau.At(i, k))
		}
	}
}

// HeightRatio returns h_com/g as used in the ZMP rows.
func (m *Model) HeightRatio() float64 { return m.ratio }

// Dims returns the horizon length and the state width.
func (m *Model) Dims() (n, state int) { return m.N, 3 }

// Trajectory is the predicted response of one axis over the horizon.
type Trajectory struct {
	Pos, Vel, Acc, ZMP *mat.VecDense
}

// Predict evaluates the four recursions for state c and jerk controls u.
// A nil u is treated as zero jerk.
func (m *Model) Predict(c, u mat.Vector) Trajectory {
	tr := Trajectory{
		Pos: mat.NewVecDense(m.N, nil),
		Vel: mat.NewVecDense(m.N, nil),
		Acc: mat.NewVecDense(m.N, nil),
		ZMP: mat.NewVecDense(m.N, nil),
	}
	apply := func(dst *mat.VecDense, s, cu *mat.Dense) {
		dst.MulVec(s, c)
		if u != nil {
			var tmp mat.VecDense
			tmp.MulVec(cu, u)
			dst.AddVec(dst, &tmp)
		}
	}
	apply(tr.Pos, m.Pps, m.Ppu)
	apply(tr.Vel, m.Pvs, m.Pvu)
	apply(tr.Acc, m.Pas, m.Pau)
	apply(tr.ZMP, m.Pzs, m.Pzu)
	return tr
}

// Integrate advances the state c by one sample under constant jerk,
// using the first row of each recursion. c is updated in place.
func (m *Model) Integrate(c *mat.VecDense, jerk float64) {
	row := func(s, u *mat.Dense) float64 {
		return mat.Dot(s.RowView(0), c) + u.At(0, 0)*jerk
	}
	p := row(m.Pps, m.Ppu)
	v := row(m.Pvs, m.Pvu)
	a := row(m.Pas, m.Pau)
	c.SetVec(0, p)
	c.SetVec(1, v)
	c.SetVec(2, a)
}
