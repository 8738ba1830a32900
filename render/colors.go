package render

import "image/color"

var (
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red    = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Blue   = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Cyan   = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Grey   = color.RGBA{R: 96, G: 96, B: 96, A: 255}

	// handleColors are the calibration corner colors, in corner order
	// top-left, top-right, bottom-right, bottom-left
	handleColors = [4]color.RGBA{Red, Green, Blue, Yellow}
)
