package render

import (
	"image"
	"image/color"
	"math"
	"strconv"
	"time"

	"github.com/swdee/go-touchtable/postprocess"
	"github.com/swdee/go-touchtable/tracker"
	"gocv.io/x/gocv"
)

// TrackStyle defines the parameters used for rendering tracks
type TrackStyle struct {
	// Radius of the circle drawn on a healthy track, a dying track's circle
	// shrinks to nothing over the fade window
	Radius int
	// DyingColor is used for the circle of a dying track
	DyingColor color.RGBA
	// StateColor is the color of the state name drawn above the track
	StateColor    color.RGBA
	LineThickness int
	Font          Font
}

// DefaultTrackStyle returns default track style settings
func DefaultTrackStyle() TrackStyle {
	return TrackStyle{
		Radius:        16,
		DyingColor:    Red,
		StateColor:    Cyan,
		LineThickness: 1,
		Font:          DefaultFont(),
	}
}

// Tracks draws a circle, label and state for every Alive track.  Tracks that
// are not yet alive are not drawn.
func Tracks(img *gocv.Mat, tracks []tracker.Track, now time.Time, style TrackStyle) {

	for _, trk := range tracks {

		if !trk.IsAlive() {
			continue
		}

		centre := toImagePt(trk.GetCenter())
		clr := trk.GetColor()
		radius := style.Radius

		if trk.IsDying() {
			clr = style.DyingColor
			radius = int(math.Round(float64(style.Radius) * (1 - trk.FadeProgress(now))))
		}

		if radius > 0 {
			gocv.Circle(img, centre, radius, clr, style.LineThickness)
		}

		style.Font.text(img, strconv.Itoa(trk.GetLabel()), centre, clr)
		style.Font.text(img, trk.GetState().String(), centre.Add(image.Pt(0, -10)),
			style.StateColor)
	}
}

// ContourStyle defines the parameters used for rendering detection outlines
type ContourStyle struct {
	Color         color.RGBA
	LineThickness int
	// Halo is the distance in pixels the outer outline is drawn from the
	// contour, zero disables it
	Halo      float64
	HaloColor color.RGBA
}

// DefaultContourStyle returns default contour style settings
func DefaultContourStyle() ContourStyle {
	return ContourStyle{
		Color:         White,
		LineThickness: 2,
		Halo:          4,
		HaloColor:     Grey,
	}
}

// Contours draws the outline of each detection with an optional halo
// around it
func Contours(img *gocv.Mat, dets []postprocess.Detection, style ContourStyle) {

	if len(dets) == 0 {
		return
	}

	outlines := make([][]image.Point, 0, len(dets))
	halos := make([][]image.Point, 0, len(dets))

	for _, det := range dets {

		if len(det.Contour) == 0 {
			continue
		}

		outlines = append(outlines, det.Contour)

		if style.Halo > 0 {
			if halo := postprocess.Expand(det.Contour, style.Halo); len(halo) > 0 {
				halos = append(halos, halo)
			}
		}
	}

	if len(halos) > 0 {
		polylines(img, halos, style.HaloColor, 1)
	}

	if len(outlines) > 0 {
		polylines(img, outlines, style.Color, style.LineThickness)
	}
}

// polylines draws each point list as a closed polygon
func polylines(img *gocv.Mat, pts [][]image.Point, clr color.RGBA, thickness int) {

	ptsVec := gocv.NewPointsVectorFromPoints(pts)
	defer ptsVec.Close()

	gocv.Polylines(img, ptsVec, true, clr, thickness)
}

// CalibrationHandles draws the four calibration corners as numbered circles
// joined into the quad outline, each edge in the color of its start corner
func CalibrationHandles(img *gocv.Mat, corners [4]image.Point, picked int, font Font) {

	for i, pt := range corners {
		clr := handleColors[i]
		next := corners[(i+1)%4]

		thickness := 1

		if i == picked {
			thickness = 2
		}

		gocv.Circle(img, pt, 10, clr, thickness)
		gocv.Line(img, pt, next, clr, 1)
		font.text(img, strconv.Itoa(i), pt, clr)
	}
}
