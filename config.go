package touchtable

import (
	"time"

	"github.com/swdee/go-touchtable/postprocess"
	"github.com/swdee/go-touchtable/timeutil"
	"github.com/swdee/go-touchtable/tracker"
)

const (
	// DefaultWidth and DefaultHeight are the processing frame dimensions
	DefaultWidth  = 640
	DefaultHeight = 480
	// DefaultPollInterval is the pause between pipeline iterations
	DefaultPollInterval = 2 * time.Millisecond
	// DefaultStreamAddr is where the contour stream is sent
	DefaultStreamAddr = "127.0.0.1:2001"
)

// Params are the live tunable segmentation values
type Params struct {
	// MinAreaRadius and MaxAreaRadius bound accepted blobs to the area of
	// circles with these radii
	MinAreaRadius float64
	MaxAreaRadius float64
	// Threshold is the binary threshold applied to the gamma adjusted mask
	Threshold float64
	// Gamma is the exponent of the mask lookup table
	Gamma float64
}

// DefaultParams returns the segmentation values used when no settings file
// exists
func DefaultParams() Params {
	return Params{
		MinAreaRadius: 10,
		MaxAreaRadius: 100,
		Threshold:     128,
		Gamma:         0.5,
	}
}

// clamp returns p with negative values raised to zero and the names of the
// fields that were changed
func (p Params) clamp() (Params, []string) {

	var fixed []string

	fields := []struct {
		name string
		v    *float64
	}{
		{"MinAreaRadius", &p.MinAreaRadius},
		{"MaxAreaRadius", &p.MaxAreaRadius},
		{"Threshold", &p.Threshold},
		{"Gamma", &p.Gamma},
	}

	for _, f := range fields {
		if *f.v < 0 || *f.v != *f.v {
			*f.v = 0
			fixed = append(fixed, f.name)
		}
	}

	return p, fixed
}

// findOptions returns the contour filter values for p
func (p Params) findOptions() postprocess.FindOptions {
	return postprocess.FindOptions{
		Threshold:     p.Threshold,
		MinAreaRadius: p.MinAreaRadius,
		MaxAreaRadius: p.MaxAreaRadius,
	}
}

// Config holds the fixed settings of a Pipeline
type Config struct {
	// Width and Height of the canonical processing frame, camera frames of
	// other sizes are letterboxed into it
	Width  int
	Height int
	// Params are the initial segmentation values
	Params Params
	// PollInterval is the sleep between loop iterations
	PollInterval time.Duration
	// Tracker matching and lifecycle values
	Tracker tracker.Config
	// WriteTimeout bounds each stream write, zero waits indefinitely
	WriteTimeout time.Duration
	// CPUCores pins the pipeline goroutine's thread to these cores when set,
	// Linux only
	CPUCores []int
	// Clock drives the loop sleep and tracker timers, nil uses the wall clock
	Clock timeutil.Clock
}

// DefaultConfig returns the configuration of a 640x480 touch table
func DefaultConfig() Config {
	return Config{
		Width:        DefaultWidth,
		Height:       DefaultHeight,
		Params:       DefaultParams(),
		PollInterval: DefaultPollInterval,
		Tracker:      tracker.DefaultConfig(),
	}
}
