package preprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/swdee/go-touchtable/calibration"
	"gocv.io/x/gocv"
)

var (
	// darkLower and darkUpper bound the HSV band treated as a touch, any hue
	// and saturation with a low value
	darkLower = gocv.NewScalar(0, 0, 0, 0)
	darkUpper = gocv.NewScalar(180, 255, 50, 0)
	black     = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// blurKernel is the Gaussian blur kernel size applied to the mask
var blurKernel = image.Pt(11, 11)

// Segmenter defines the struct used for turning a camera frame into the
// blurred, gamma adjusted, single channel mask that contours are found in
type Segmenter struct {
	// width and height of the canonical output
	width  int
	height int
	// scratch Mats reused on every frame
	hsvMat   gocv.Mat
	maskMat  gocv.Mat
	warpMat  gocv.Mat
	blurMat  gocv.Mat
	homogMat gocv.Mat
	lutMat   gocv.Mat
	// gamma the lutMat was last built for
	gamma float64
}

// NewSegmenter returns a segmenter producing masks of width x height
func NewSegmenter(width, height int) *Segmenter {
	return &Segmenter{
		width:    width,
		height:   height,
		hsvMat:   gocv.NewMat(),
		maskMat:  gocv.NewMat(),
		warpMat:  gocv.NewMat(),
		blurMat:  gocv.NewMat(),
		homogMat: gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F),
		lutMat:   gocv.NewMatWithSize(1, 256, gocv.MatTypeCV8U),
		gamma:    math.NaN(),
	}
}

// Close frees memory allocated by the segmenter
func (s *Segmenter) Close() error {

	for _, m := range []*gocv.Mat{&s.hsvMat, &s.maskMat, &s.warpMat,
		&s.blurMat, &s.homogMat, &s.lutMat} {

		if err := m.Close(); err != nil {
			return err
		}
	}

	return nil
}

// Segment runs the colour segmentation on the BGR src frame and writes the
// mask to dest.  When warp is true and h is valid the mask is rectified into
// canonical coordinates first.  It returns false when src is empty.
func (s *Segmenter) Segment(src gocv.Mat, dest *gocv.Mat, h calibration.Homography,
	warp bool, gamma float64) bool {

	if src.Empty() {
		return false
	}

	gocv.CvtColor(src, &s.hsvMat, gocv.ColorBGRToHSV)
	gocv.InRangeWithScalar(s.hsvMat, darkLower, darkUpper, &s.maskMat)

	mask := s.maskMat

	if warp && h.Valid() {
		s.setHomography(h)

		gocv.WarpPerspectiveWithParams(s.maskMat, &s.warpMat, s.homogMat,
			image.Pt(s.width, s.height), gocv.InterpolationNearestNeighbor,
			gocv.BorderConstant, black)

		mask = s.warpMat
	}

	gocv.GaussianBlur(mask, &s.blurMat, blurKernel, 0, 0, gocv.BorderDefault)

	s.setGamma(gamma)
	gocv.LUT(s.blurMat, s.lutMat, dest)

	return true
}

// setHomography copies h into the 3x3 warp matrix
func (s *Segmenter) setHomography(h calibration.Homography) {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			s.homogMat.SetDoubleAt(r, c, h[r*3+c])
		}
	}
}

// setGamma rebuilds the lookup table when the gamma value changes
func (s *Segmenter) setGamma(gamma float64) {

	if gamma == s.gamma {
		return
	}

	table := GammaTable(gamma)

	for i, v := range table {
		s.lutMat.SetUCharAt(0, i, v)
	}

	s.gamma = gamma
}

// GammaTable returns the 256 entry lookup table for out = (in/255)^gamma*255
// with the result truncated towards zero
func GammaTable(gamma float64) [256]uint8 {

	var table [256]uint8

	for i := range table {
		v := math.Pow(float64(i)/255, gamma) * 255

		switch {
		case math.IsNaN(v) || v < 0:
			v = 0
		case v > 255:
			v = 255
		}

		table[i] = uint8(v)
	}

	return table
}
