package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/swdee/go-touchtable/calibration"
	"gocv.io/x/gocv"
)

// newTouchFrame returns a white BGR frame with a filled black square, the
// square is what the segmenter picks out as a touch
func newTouchFrame(square image.Rectangle) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0),
		480, 640, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&img, square, color.RGBA{A: 255}, -1)
	return img
}

func TestGammaTable(t *testing.T) {

	tests := []struct {
		gamma    float64
		in       int
		expected uint8
	}{
		{1, 0, 0},
		{1, 100, 100},
		{1, 255, 255},
		{0.5, 64, 127},
		{0.5, 255, 255},
		{2, 128, 64},
		{2, 0, 0},
	}

	for _, tc := range tests {
		table := GammaTable(tc.gamma)

		if table[tc.in] != tc.expected {
			t.Errorf("GammaTable(%v)[%d] = %d, expected %d",
				tc.gamma, tc.in, table[tc.in], tc.expected)
		}
	}
}

func TestSegmentIdentity(t *testing.T) {

	img := newTouchFrame(image.Rect(270, 190, 370, 290))
	defer img.Close()

	seg := NewSegmenter(640, 480)
	defer seg.Close()

	dest := gocv.NewMat()
	defer dest.Close()

	if !seg.Segment(img, &dest, calibration.Identity(), true, 0.5) {
		t.Fatal("Segment returned false for a valid frame")
	}

	if dest.Cols() != 640 || dest.Rows() != 480 {
		t.Fatalf("mask size %dx%d, expected 640x480", dest.Cols(), dest.Rows())
	}

	if v := dest.GetUCharAt(240, 320); v != 255 {
		t.Errorf("centre of touch = %d, expected 255", v)
	}

	if v := dest.GetUCharAt(10, 10); v != 0 {
		t.Errorf("background = %d, expected 0", v)
	}
}

func TestSegmentWarpShiftsMask(t *testing.T) {

	img := newTouchFrame(image.Rect(270, 190, 370, 290))
	defer img.Close()

	seg := NewSegmenter(640, 480)
	defer seg.Close()

	dest := gocv.NewMat()
	defer dest.Close()

	// translate 50 pixels to the left
	h := calibration.Homography{1, 0, -50, 0, 1, 0, 0, 0, 1}

	seg.Segment(img, &dest, h, true, 1)

	if v := dest.GetUCharAt(240, 250); v != 255 {
		t.Errorf("warped touch = %d, expected 255", v)
	}

	if v := dest.GetUCharAt(240, 350); v != 0 {
		t.Errorf("area the touch moved away from = %d, expected 0", v)
	}

	// warp disabled leaves the mask in camera space
	seg.Segment(img, &dest, h, false, 1)

	if v := dest.GetUCharAt(240, 350); v != 255 {
		t.Errorf("unwarped touch = %d, expected 255", v)
	}
}

func TestSegmentEmptyFrame(t *testing.T) {

	seg := NewSegmenter(640, 480)
	defer seg.Close()

	src := gocv.NewMat()
	defer src.Close()

	dest := gocv.NewMat()
	defer dest.Close()

	if seg.Segment(src, &dest, calibration.Identity(), true, 0.5) {
		t.Error("Segment returned true for an empty frame")
	}
}
