package preprocess

import (
	"image"

	"gocv.io/x/gocv"
)

// Resizer fits camera frames into the processing frame size.  Cameras that
// ignore the requested capture size deliver frames of another shape, these
// are scaled keeping their aspect and padded with black.
type Resizer struct {
	// destWidth and destHeight are the processing frame dimensions
	destWidth  int
	destHeight int
	// srcSize is the camera frame size the padding was calculated for
	srcSize image.Point
	// scaled frame dimensions and the padding placed around them
	resizeW int
	resizeH int
	xPad    int
	yPad    int
	scale   float64
	// tempMat holds the scaled frame before padding
	tempMat gocv.Mat
}

// NewResizer returns a resizer producing destWidth x destHeight frames
func NewResizer(destWidth, destHeight int) *Resizer {
	return &Resizer{
		destWidth:  destWidth,
		destHeight: destHeight,
		scale:      1,
		tempMat:    gocv.NewMat(),
	}
}

// Close frees memory allocated by the resizer
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// Fit writes src into dest at the processing size.  A frame already the
// right size is copied as is.
func (r *Resizer) Fit(src gocv.Mat, dest *gocv.Mat) {

	if src.Cols() == r.destWidth && src.Rows() == r.destHeight {
		src.CopyTo(dest)
		return
	}

	r.calc(src.Cols(), src.Rows())

	gocv.Resize(src, &r.tempMat, image.Pt(r.resizeW, r.resizeH),
		0, 0, gocv.InterpolationArea)

	gocv.CopyMakeBorder(r.tempMat, dest, r.yPad, r.destHeight-r.resizeH-r.yPad,
		r.xPad, r.destWidth-r.resizeW-r.xPad, gocv.BorderConstant, black)
}

// calc works out the scale and padding for a srcWidth x srcHeight frame,
// results are kept until the camera frame size changes
func (r *Resizer) calc(srcWidth, srcHeight int) {

	if r.srcSize == image.Pt(srcWidth, srcHeight) {
		return
	}

	r.srcSize = image.Pt(srcWidth, srcHeight)
	r.resizeW = r.destWidth
	r.resizeH = r.destHeight

	scaleW := float64(r.destWidth) / float64(srcWidth)
	scaleH := float64(r.destHeight) / float64(srcHeight)
	r.scale = scaleH

	if scaleW < scaleH {
		r.scale = scaleW
		r.resizeH = int(float64(srcHeight) * r.scale)
	} else {
		r.resizeW = int(float64(srcWidth) * r.scale)
	}

	r.yPad = (r.destHeight - r.resizeH) / 2
	r.xPad = (r.destWidth - r.resizeW) / 2
}

// ScaleFactor returns the scale applied to the last resized frame
func (r *Resizer) ScaleFactor() float64 {
	return r.scale
}

// XPad returns the horizontal padding of the last resized frame
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the vertical padding of the last resized frame
func (r *Resizer) YPad() int {
	return r.yPad
}
