package tracker

import "math"

// Point represents the x,y coordinates of a track centre in canonical space
type Point struct {
	X, Y float64
}

// Trail is a bounded history of smoothed centre points kept for drawing a
// track's recent path.  It plays no part in matching.
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// points in the order they were added, oldest first
	points []Point
}

// NewTrail returns a new trail that keeps at most size points
func NewTrail(size int) *Trail {
	return &Trail{
		size:   size,
		points: make([]Point, 0, size+1),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.points = t.points[:0]
}

// Add appends a point to the history
func (t *Trail) Add(p Point) {

	t.points = append(t.points, p)

	// check if history is exceeded and drop oldest point
	if len(t.points) > t.size {
		copy(t.points, t.points[1:])
		t.points = t.points[:len(t.points)-1]
	}
}

// Len returns the number of points held
func (t *Trail) Len() int {
	return len(t.points)
}

// Points returns a copy of the point history, oldest first
func (t *Trail) Points() []Point {

	out := make([]Point, len(t.points))
	copy(out, t.points)

	return out
}

// clone returns an independent copy of the trail
func (t *Trail) clone() *Trail {

	c := NewTrail(t.size)
	c.points = append(c.points, t.points...)

	return c
}

// distance returns the Euclidean distance between two points
func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
