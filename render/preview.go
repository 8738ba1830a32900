package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/swdee/go-touchtable/stream"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// previewColors cycle through the contours of a wire preview
var previewColors = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 203, G: 56, B: 255, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
}

// WirePreview rasterises a received wire message back onto a width x height
// canvas, filling each contour and numbering it.  It needs no OpenCV so a
// consumer can preview the stream on any machine.
func WirePreview(msg stream.Message, width, height int, caption string) *image.RGBA {

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(Black), image.Point{}, draw.Src)

	z := vector.NewRasterizer(width, height)

	for i, c := range msg.Contours {

		if len(c.Vertices) < 3 {
			continue
		}

		clr := previewColors[i%len(previewColors)]

		z.Reset(width, height)

		for j, v := range c.Vertices {
			x, y := stream.FromWire(v, width, height)

			if j == 0 {
				z.MoveTo(float32(x), float32(y))
				continue
			}

			z.LineTo(float32(x), float32(y))
		}

		z.ClosePath()
		z.Draw(img, img.Bounds(), image.NewUniform(clr), image.Point{})

		x, y := stream.FromWire(c.Vertices[0], width, height)
		drawLabel(img, fmt.Sprintf("%d", i), int(x), int(y), White)
	}

	header := fmt.Sprintf("contours: %d", len(msg.Contours))

	if caption != "" {
		header = caption + "  " + header
	}

	drawLabel(img, header, 10, 20, Yellow)

	return img
}

// drawLabel writes text with its baseline starting at x,y
func drawLabel(img *image.RGBA, text string, x, y int, clr color.RGBA) {

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}

	d.DrawString(text)
}
