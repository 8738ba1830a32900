package tracker

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"time"
)

// State represents the lifecycle state of a tracked blob
type State int

const (
	// Nascent is a freshly detected blob that has not yet settled
	Nascent State = 0
	// Born is the single update between settling and becoming alive
	Born State = 1
	// Alive is a settled blob reported to consumers
	Alive State = 2
	// Dead is terminal, the track is removed from the live set
	Dead State = 3
)

// String returns the upper case state name used in overlays and logs
func (s State) String() string {
	switch s {
	case Nascent:
		return "NASCENT"
	case Born:
		return "BORN"
	case Alive:
		return "ALIVE"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Lifecycle holds the timing and smoothing values a Track advances by
type Lifecycle struct {
	// SettleTime is how long a track stays Nascent before it is Born
	SettleTime time.Duration
	// FadeTime is how long an Alive track may go unmatched before it dies
	FadeTime time.Duration
	// Smoothing is the interpolation factor towards the newest centre
	Smoothing float64
	// TrailSize is the maximum number of trail points kept
	TrailSize int
}

// DefaultLifecycle returns the settle, fade, smoothing and trail values
// used by the touch table
func DefaultLifecycle() Lifecycle {
	return Lifecycle{
		SettleTime: 200 * time.Millisecond,
		FadeTime:   500 * time.Millisecond,
		Smoothing:  0.5,
		TrailSize:  50,
	}
}

// Track represents a single blob followed across frames
type Track struct {
	// label is the identity assigned at creation
	label int
	// rect is the bounding box of the last matched detection, used for
	// matching in every state
	rect image.Rectangle
	// cur is the raw centre of the detection, refreshed while Alive
	cur Point
	// smooth is the exponentially smoothed centre
	smooth Point
	// trail of smoothed centres
	trail *Trail
	// state is the current lifecycle state
	state State
	// created is when the track was first seen
	created time.Time
	// dyingSince is when an Alive track first went unmatched, zero when
	// the track is not dying
	dyingSince time.Time
	// clr is derived from the label
	clr color.RGBA
	// lc are the lifecycle timings
	lc Lifecycle
}

// NewTrack creates a Nascent track for an unmatched detection
func NewTrack(label int, rect image.Rectangle, now time.Time, lc Lifecycle) *Track {

	c := rectCenter(rect)

	return &Track{
		label:   label,
		rect:    rect,
		cur:     c,
		smooth:  c,
		trail:   NewTrail(lc.TrailSize),
		state:   Nascent,
		created: now,
		clr:     LabelColor(label),
		lc:      lc,
	}
}

// GetLabel returns the identity of the track
func (t *Track) GetLabel() int {
	return t.label
}

// GetState returns the current lifecycle state
func (t *Track) GetState() State {
	return t.state
}

// GetRect returns the bounding box of the last matched detection
func (t *Track) GetRect() image.Rectangle {
	return t.rect
}

// GetCenter returns the raw centre of the current detection
func (t *Track) GetCenter() Point {
	return t.cur
}

// GetSmoothed returns the smoothed centre
func (t *Track) GetSmoothed() Point {
	return t.smooth
}

// GetTrail returns a copy of the smoothed centre history, oldest first
func (t *Track) GetTrail() []Point {
	return t.trail.Points()
}

// GetColor returns the display color derived from the label
func (t *Track) GetColor() color.RGBA {
	return t.clr
}

// GetCreated returns when the track was first seen
func (t *Track) GetCreated() time.Time {
	return t.created
}

// GetDyingSince returns when the track started dying or the zero time
func (t *Track) GetDyingSince() time.Time {
	return t.dyingSince
}

// IsDying reports whether an Alive track is inside its fade out window
func (t *Track) IsDying() bool {
	return !t.dyingSince.IsZero()
}

// IsAlive reports whether the track is reported to consumers
func (t *Track) IsAlive() bool {
	return t.state == Alive
}

// FadeProgress returns how far through the fade out window a dying track is
// in the range 0 to 1, or 0 when not dying
func (t *Track) FadeProgress(now time.Time) float64 {

	if !t.IsDying() || t.lc.FadeTime <= 0 {
		return 0
	}

	p := float64(now.Sub(t.dyingSince)) / float64(t.lc.FadeTime)

	return math.Max(0, math.Min(1, p))
}

// Update advances the track for a frame in which it matched rect
func (t *Track) Update(rect image.Rectangle, now time.Time) {

	if t.state == Dead {
		return
	}

	t.rect = rect

	if t.state == Born {
		t.state = Alive
	}

	switch t.state {
	case Alive:
		t.dyingSince = time.Time{}

		t.cur = rectCenter(rect)
		t.smooth = lerp(t.smooth, t.cur, t.lc.Smoothing)
		t.trail.Add(t.smooth)

	case Nascent:
		if now.Sub(t.created) >= t.lc.SettleTime {
			t.state = Born
		}
	}
}

// Kill advances the track for a frame in which it had no match.  Only an
// Alive track survives, and only until it has been dying for FadeTime.
func (t *Track) Kill(now time.Time) {

	if t.state != Alive {
		t.state = Dead
		return
	}

	if t.dyingSince.IsZero() {
		t.dyingSince = now
		return
	}

	if now.Sub(t.dyingSince) >= t.lc.FadeTime {
		t.state = Dead
	}
}

// Terminate kills the track immediately and clears its trail
func (t *Track) Terminate() {
	t.state = Dead
	t.trail.Reset()
}

// snapshot returns a copy that shares no mutable state with t
func (t *Track) snapshot() Track {
	c := *t
	c.trail = t.trail.clone()
	return c
}

// rectCenter returns the centre of a bounding box
func rectCenter(r image.Rectangle) Point {
	return Point{
		X: float64(r.Min.X) + float64(r.Dx())/2,
		Y: float64(r.Min.Y) + float64(r.Dy())/2,
	}
}

// lerp interpolates from a towards b by f
func lerp(a, b Point, f float64) Point {
	return Point{
		X: a.X + (b.X-a.X)*f,
		Y: a.Y + (b.Y-a.Y)*f,
	}
}

// LabelColor returns a fully saturated color with a pseudo random hue seeded
// from the label, so a label keeps its color for its whole life
func LabelColor(label int) color.RGBA {

	rng := rand.New(rand.NewSource(int64(label) << 24))
	hue := rng.Float64() * 360

	return hsvToRGBA(hue, 1, 1)
}

// hsvToRGBA converts hue in degrees, saturation and value in 0..1
func hsvToRGBA(h, s, v float64) color.RGBA {

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64

	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 255,
	}
}
