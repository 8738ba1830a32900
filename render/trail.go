package render

import (
	"image"
	"image/color"
	"math"

	"github.com/swdee/go-touchtable/tracker"
	"gocv.io/x/gocv"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame defines if the color of the trail line should be the
	// same color as that of the track.  If set to false then use the color
	// specified at LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      true,
		LineColor:     Yellow,
		LineThickness: 1,
	}
}

// Trail draws the smoothed position history of each Alive track
func Trail(img *gocv.Mat, tracks []tracker.Track, style TrailStyle) {

	for _, trk := range tracks {

		if !trk.IsAlive() {
			continue
		}

		lineClr := style.LineColor

		if style.LineSame {
			lineClr = trk.GetColor()
		}

		points := trk.GetTrail()

		for i := 1; i < len(points); i++ {
			gocv.Line(img, toImagePt(points[i-1]), toImagePt(points[i]),
				lineClr, style.LineThickness)
		}
	}
}

// toImagePt rounds a tracker point to the nearest pixel
func toImagePt(p tracker.Point) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
