package constraint

import (
	"errors"
	"fmt"
	"math"
)

// ErrPolygon marks a malformed support or reachability polygon.
var ErrPolygon = errors.New("constraint: malformed polygon")

// Polygon is a convex polygon in a foot frame, vertices counter-clockwise.
type Polygon struct {
	Vertices [][2]float64
}

// Rectangle returns the axis-aligned rectangle with half extents hx, hy.
// Edges come out in the order front, left, back, right.
func Rectangle(hx, hy float64) Polygon {
	return Polygon{Vertices: [][2]float64{
		{hx, -hy},
		{hx, hy},
		{-hx, hy},
		{-hx, -hy},
	}}
}

// Mirror reflects the polygon across the x axis, keeping the vertex order
// counter-clockwise.
func (p Polygon) Mirror() Polygon {
	n := len(p.Vertices)
	out := make([][2]float64, n)
	for i, v := range p.Vertices {
		out[n-1-i] = [2]float64{v[0], -v[1]}
	}
	return Polygon{Vertices: out}
}

// Edges returns the number of edges.
func (p Polygon) Edges() int { return len(p.Vertices) }

// Validate checks the edge count and that the polygon is strictly convex
// and counter-clockwise.
func (p Polygon) Validate(nedges int) error {
	n := len(p.Vertices)
	if n != nedges {
		return fmt.Errorf("%w: %d edges, want %d", ErrPolygon, n, nedges)
	}
	if n < 3 {
		return fmt.Errorf("%w: %d vertices", ErrPolygon, n)
	}
	for i := 0; i < n; i++ {
		a, b, c := p.Vertices[i], p.Vertices[(i+1)%n], p.Vertices[(i+2)%n]
		cross := (b[0]-a[0])*(c[1]-b[1]) - (b[1]-a[1])*(c[0]-b[0])
		if !(cross > 0) {
			return fmt.Errorf("%w: turn at vertex %d is not counter-clockwise", ErrPolygon, (i+1)%n)
		}
	}
	return nil
}

// HalfPlanes returns unit outward normals and offsets such that a point z
// lies inside the polygon iff normals[k]·z <= offsets[k] for every edge k.
func (p Polygon) HalfPlanes() (normals [][2]float64, offsets []float64) {
	n := len(p.Vertices)
	normals = make([][2]float64, n)
	offsets = make([]float64, n)
	for k := 0; k < n; k++ {
		a, b := p.Vertices[k], p.Vertices[(k+1)%n]
		dx, dy := b[0]-a[0], b[1]-a[1]
		l := math.Hypot(dx, dy)
		nx, ny := dy/l, -dx/l
		normals[k] = [2]float64{nx, ny}
		offsets[k] = nx*a[0] + ny*a[1]
	}
	return normals, offsets
}

// rotate turns a foot-frame normal into the world frame for a foot with
// yaw q.
func rotate(n [2]float64, q float64) (float64, float64) {
	s, c := math.Sincos(q)
	return c*n[0] - s*n[1], s*n[0] + c*n[1]
}
