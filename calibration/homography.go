package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when the four source points do not define a
// projective transform, eg: three or more of them are collinear
var ErrDegenerate = errors.New("calibration points are degenerate")

// Point is a 2D coordinate in camera or canonical image space
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the vector p+q
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the vector p-q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist returns the Euclidean distance between p and q
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Homography is a 3x3 projective transform stored in row major order
type Homography [9]float64

// Identity returns the identity transform
func Identity() Homography {
	return Homography{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// Valid reports whether the homography has been computed, a zero matrix is
// the uninitialised value
func (h Homography) Valid() bool {
	return h != Homography{}
}

// Apply maps p through the homography.  The returned bool is false when p
// maps to the line at infinity
func (h Homography) Apply(p Point) (Point, bool) {

	w := h[6]*p.X + h[7]*p.Y + h[8]

	if w == 0 {
		return Point{}, false
	}

	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Inverse returns the transform mapping canonical space back to camera space
func (h Homography) Inverse() (Homography, error) {

	src := mat.NewDense(3, 3, h[:])

	var inv mat.Dense

	if err := inv.Inverse(src); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	var out Homography

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = inv.At(r, c) / inv.At(2, 2)
		}
	}

	return out, nil
}

// ComputeHomography solves for the transform mapping each src point onto the
// dst point with the same index.  The last matrix element is fixed at 1
// leaving an 8x8 linear system, two rows per correspondence.
func ComputeHomography(src, dst [4]Point) (Homography, error) {

	if hasCollinear(src) || hasCollinear(dst) {
		return Homography{}, ErrDegenerate
	}

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		a.SetRow(i*2, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(i*2+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})

		b.SetVec(i*2, u)
		b.SetVec(i*2+1, v)
	}

	var sol mat.VecDense

	if err := sol.SolveVec(a, b); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	var h Homography

	for i := 0; i < 8; i++ {
		h[i] = sol.AtVec(i)

		if math.IsNaN(h[i]) || math.IsInf(h[i], 0) {
			return Homography{}, ErrDegenerate
		}
	}

	h[8] = 1

	return h, nil
}

// hasCollinear reports whether any three of the four points lie on one line,
// in which case no projective transform exists
func hasCollinear(pts [4]Point) bool {

	triples := [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}}

	for _, tr := range triples {
		a, b, c := pts[tr[0]], pts[tr[1]], pts[tr[2]]

		ab := b.Sub(a)
		ac := c.Sub(a)
		cross := ab.X*ac.Y - ab.Y*ac.X

		if math.Abs(cross) < 1e-9 {
			return true
		}
	}

	return false
}
