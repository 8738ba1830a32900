package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Thickness int
	LineType  gocv.LineType
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.4,
		Thickness: 1,
		LineType:  gocv.LineAA,
	}
}

// text draws str with its baseline starting at pos
func (f Font) text(img *gocv.Mat, str string, pos image.Point, clr color.RGBA) {
	gocv.PutTextWithParams(img, str, pos, f.Face, f.Scale, clr, f.Thickness,
		f.LineType, false)
}
