/*
Package calibration holds the perspective calibration geometry of the touch
table: the four corner points the operator places over the camera image and
the homography that rectifies that quadrilateral onto the canonical output
rectangle.

A Quad is not safe for concurrent use, the pipeline guards it with its own
lock.
*/
package calibration

import (
	"errors"
	"fmt"
)

// ErrPointCount is returned by SetPoints when not given exactly four points
var ErrPointCount = errors.New("calibration requires exactly 4 points")

// ErrFrameSize is returned for a canonical frame too small to calibrate
var ErrFrameSize = errors.New("frame must be at least 2x2 pixels")

// NoPick is the picked index reported when no point is being dragged
const NoPick = -1

// Quad is the ordered source quadrilateral (top-left, top-right,
// bottom-right, bottom-left) in camera space and its derived homography
type Quad struct {
	// width and height of the canonical output rectangle
	width  int
	height int
	// points are the source corners in camera image coordinates
	points [4]Point
	// h maps points onto the canonical rectangle, refreshed on every
	// SetPoints, Reset and Commit
	h Homography
	// picked is the index of the point being dragged or NoPick
	picked int
	// offset between the picked point and the cursor that picked it
	offset Point
}

// NewQuad returns a quad covering the full width x height frame
func NewQuad(width, height int) (*Quad, error) {

	if width < 2 || height < 2 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrFrameSize, width, height)
	}

	q := &Quad{
		width:  width,
		height: height,
		picked: NoPick,
	}

	if err := q.Reset(); err != nil {
		return nil, err
	}

	return q, nil
}

// Canonical returns the destination rectangle corners (0,0)-(W-1,H-1) in
// the same order as the source points
func (q *Quad) Canonical() [4]Point {

	w := float64(q.width - 1)
	h := float64(q.height - 1)

	return [4]Point{
		{0, 0},
		{w, 0},
		{w, h},
		{0, h},
	}
}

// Reset places the four points on the frame corners which yields the
// identity homography
func (q *Quad) Reset() error {
	corners := q.Canonical()
	return q.SetPoints(corners[:])
}

// SetPoints replaces the quad and recomputes the homography.  Anything other
// than four points, or a degenerate quad, leaves the quad untouched.
func (q *Quad) SetPoints(pts []Point) error {

	if len(pts) != 4 {
		return fmt.Errorf("%w: got %d", ErrPointCount, len(pts))
	}

	var src [4]Point
	copy(src[:], pts)

	h, err := ComputeHomography(src, q.Canonical())

	if err != nil {
		return err
	}

	q.points = src
	q.h = h

	return nil
}

// Points returns a copy of the four source points
func (q *Quad) Points() [4]Point {
	return q.points
}

// Homography returns the transform computed at the last SetPoints, Reset
// or Commit.  Points moved by Drag since then are not reflected.
func (q *Quad) Homography() Homography {
	return q.h
}

// Size returns the canonical output dimensions
func (q *Quad) Size() (width, height int) {
	return q.width, q.height
}

// Pick selects the point closest to cursor for dragging and returns its
// index.  The offset from the cursor is kept so the point does not jump to
// the cursor position on the first Drag.
func (q *Quad) Pick(cursor Point) int {

	best := NoPick
	bestDist := 0.0

	for i, p := range q.points {
		d := p.Dist(cursor)

		if best == NoPick || d < bestDist {
			best = i
			bestDist = d
		}
	}

	q.picked = best
	q.offset = q.points[best].Sub(cursor)

	return best
}

// Picked returns the index of the point being dragged or NoPick
func (q *Quad) Picked() int {
	return q.picked
}

// ClearPick drops any in progress drag without recomputing the homography
func (q *Quad) ClearPick() {
	q.picked = NoPick
	q.offset = Point{}
}

// Drag moves the picked point to cursor plus the pick offset.  It returns
// false when no point is picked.
func (q *Quad) Drag(cursor Point) bool {

	if q.picked == NoPick {
		return false
	}

	q.points[q.picked] = cursor.Add(q.offset)

	return true
}

// Commit recomputes the homography from the current points and ends the
// drag.  On a degenerate quad the previous homography is retained.
func (q *Quad) Commit() error {

	q.ClearPick()

	h, err := ComputeHomography(q.points, q.Canonical())

	if err != nil {
		return err
	}

	q.h = h

	return nil
}
