package postprocess

import (
	"image"

	clipper "github.com/ctessum/go.clipper"
)

// Expand offsets a closed contour outwards by delta pixels with rounded
// joins, a negative delta shrinks it.  The overlay uses it to draw a halo
// around a blob without covering the blob itself.  Contours with less than
// three points are returned unchanged.
func Expand(contour []image.Point, delta float64) []image.Point {

	if len(contour) < 3 || delta == 0 {
		return contour
	}

	var path clipper.Path

	for _, pt := range contour {
		path = append(path, &clipper.IntPoint{X: clipper.CInt(pt.X), Y: clipper.CInt(pt.Y)})
	}

	co := clipper.NewClipperOffset()
	co.AddPath(path, clipper.JtRound, clipper.EtClosedPolygon)

	solution := co.Execute(delta)

	// shrinking can split an outline, keep the polygon with the most points
	var best []image.Point

	for _, sol := range solution {
		if len(sol) <= len(best) {
			continue
		}

		best = best[:0]

		for _, pt := range sol {
			best = append(best, image.Point{X: int(pt.X), Y: int(pt.Y)})
		}
	}

	return best
}
