package postprocess

import (
	"gocv.io/x/gocv"
)

// ContourFinder extracts blob outlines from a segmented mask frame
type ContourFinder struct {
	// threshMat is the binary image contours are traced in
	threshMat gocv.Mat
	// nextID is the last ID handed to a detection
	nextID int64
}

// NewContourFinder returns a contour finder, Close must be called when done
func NewContourFinder() *ContourFinder {
	return &ContourFinder{
		threshMat: gocv.NewMat(),
	}
}

// Close frees memory allocated by the contour finder
func (c *ContourFinder) Close() error {
	return c.threshMat.Close()
}

// Find thresholds the single channel mask and returns every external contour
// whose area lies within the options area range, in the order they were
// traced
func (c *ContourFinder) Find(mask gocv.Mat, opts FindOptions) []Detection {

	if mask.Empty() {
		return nil
	}

	gocv.Threshold(mask, &c.threshMat, float32(opts.Threshold), 255,
		gocv.ThresholdBinary)

	contours := gocv.FindContours(c.threshMat, gocv.RetrievalExternal,
		gocv.ChainApproxSimple)
	defer contours.Close()

	minArea := opts.MinArea()
	maxArea := opts.MaxArea()

	dets := make([]Detection, 0, contours.Size())

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)

		area := gocv.ContourArea(contour)

		if area < minArea || area > maxArea {
			continue
		}

		c.nextID++

		dets = append(dets, Detection{
			ID:      c.nextID,
			Box:     gocv.BoundingRect(contour),
			Contour: contour.ToPoints(),
			Area:    area,
		})
	}

	return dets
}
