package postprocess

import (
	"image"
	"math"
)

// Detection defines the attributes of a single blob found in a mask frame
type Detection struct {
	// ID is a unique ID assigned to the detection by its ContourFinder
	ID int64
	// Box is the bounding box of the contour
	Box image.Rectangle
	// Contour is the outline of the blob in canonical coordinates
	Contour []image.Point
	// Area enclosed by the contour in square pixels
	Area float64
}

// Center returns the centre of the detection bounding box
func (d Detection) Center() (float64, float64) {
	return float64(d.Box.Min.X) + float64(d.Box.Dx())/2,
		float64(d.Box.Min.Y) + float64(d.Box.Dy())/2
}

// Boxes returns the bounding boxes of dets in the same order
func Boxes(dets []Detection) []image.Rectangle {

	out := make([]image.Rectangle, len(dets))

	for i, d := range dets {
		out[i] = d.Box
	}

	return out
}

// Contours returns the outlines of dets in the same order
func Contours(dets []Detection) [][]image.Point {

	out := make([][]image.Point, len(dets))

	for i, d := range dets {
		out[i] = d.Contour
	}

	return out
}

// FindOptions are the live tunable contour filter values
type FindOptions struct {
	// Threshold is the binary threshold level applied to the mask
	Threshold float64
	// MinAreaRadius and MaxAreaRadius bound the contour area to that of
	// circles with these radii
	MinAreaRadius float64
	MaxAreaRadius float64
}

// MinArea returns the smallest accepted contour area
func (o FindOptions) MinArea() float64 {
	return math.Pi * o.MinAreaRadius * o.MinAreaRadius
}

// MaxArea returns the largest accepted contour area
func (o FindOptions) MaxArea() float64 {
	return math.Pi * o.MaxAreaRadius * o.MaxAreaRadius
}
