package tracker

import (
	"image"
	"sort"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/swdee/go-touchtable/timeutil"
)

// DefaultMaxDistance is the furthest, in canonical pixels, a detection may be
// from a track's last position and still be matched to it
const DefaultMaxDistance = 60

// Config holds the Tracker parameters
type Config struct {
	// MaxDistance is the match cutoff between track and detection centres
	MaxDistance float64
	// Lifecycle timings applied to every track
	Lifecycle Lifecycle
}

// DefaultConfig returns the tracker parameters used by the touch table
func DefaultConfig() Config {
	return Config{
		MaxDistance: DefaultMaxDistance,
		Lifecycle:   DefaultLifecycle(),
	}
}

// Tracker follows detections across frames, giving each blob a stable label
// and advancing it through its lifecycle.  It is not safe for concurrent use.
type Tracker struct {
	cfg   Config
	clock timeutil.Clock
	// tracks holds the live tracks in creation order
	tracks []*Track
	// labelCount is the last label handed out in this session
	labelCount int
	// session identifies the current calibration session, labels are only
	// unique within a session
	session uuid.UUID
	logger  *log.Entry
}

// NewTracker returns a tracker using clock for lifecycle timing
func NewTracker(cfg Config, clock timeutil.Clock) *Tracker {

	if clock == nil {
		clock = timeutil.RealClock{}
	}

	t := &Tracker{
		cfg:     cfg,
		clock:   clock,
		session: uuid.New(),
	}

	t.logger = log.WithFields(log.Fields{
		"component": "tracker",
		"session":   t.session.String(),
	})

	return t
}

// Session returns the id of the current calibration session
func (t *Tracker) Session() uuid.UUID {
	return t.session
}

// Len returns the number of live tracks
func (t *Tracker) Len() int {
	return len(t.tracks)
}

// Update matches this frame's detection boxes to the live tracks.  Matched
// tracks are updated, unmatched tracks are killed, unmatched detections
// start new Nascent tracks and dead tracks are dropped.
func (t *Tracker) Update(rects []image.Rectangle) {

	now := t.clock.Now()

	trackCentres := make([]Point, len(t.tracks))
	for i, trk := range t.tracks {
		trackCentres[i] = rectCenter(trk.rect)
	}

	detCentres := make([]Point, len(rects))
	for i, r := range rects {
		detCentres[i] = rectCenter(r)
	}

	matches, unmatchTrackIdx, unmatchDetectionIdx := GreedyMatch(
		trackCentres, detCentres, t.cfg.MaxDistance)

	for _, m := range matches {
		t.tracks[m[0]].Update(rects[m[1]], now)
	}

	for _, idx := range unmatchTrackIdx {
		t.tracks[idx].Kill(now)
	}

	for _, idx := range unmatchDetectionIdx {
		t.labelCount++
		t.tracks = append(t.tracks, NewTrack(t.labelCount, rects[idx], now, t.cfg.Lifecycle))
	}

	t.removeDead()
}

// Tracks returns copies of the live tracks in creation order
func (t *Tracker) Tracks() []Track {

	out := make([]Track, 0, len(t.tracks))

	for _, trk := range t.tracks {
		out = append(out, trk.snapshot())
	}

	return out
}

// Reset terminates every track and starts a new session, used when the
// calibration changes and existing positions no longer mean anything
func (t *Tracker) Reset() {

	for _, trk := range t.tracks {
		trk.Terminate()
	}

	n := len(t.tracks)
	t.tracks = nil
	t.labelCount = 0
	t.session = uuid.New()

	t.logger = log.WithFields(log.Fields{
		"component": "tracker",
		"session":   t.session.String(),
	})

	t.logger.WithField("terminated", n).Debug("tracker reset")
}

// removeDead drops dead tracks keeping the order of the rest
func (t *Tracker) removeDead() {

	live := t.tracks[:0]

	for _, trk := range t.tracks {
		if trk.state != Dead {
			live = append(live, trk)
		}
	}

	// clear the tail so dropped tracks can be collected
	for i := len(live); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}

	t.tracks = live
}

// pairDistance is a candidate pairing between a track and a detection
type pairDistance struct {
	track int
	det   int
	dist  float64
}

// GreedyMatch pairs tracks with detections by repeatedly taking the closest
// remaining pair while its distance is within maxDistance.  Equal distances
// are resolved by lower track index, then lower detection index.
func GreedyMatch(tracks, dets []Point, maxDistance float64) (matchesIdx [][2]int,
	unmatchTrackIdx, unmatchDetectionIdx []int) {

	pairs := make([]pairDistance, 0, len(tracks)*len(dets))

	for ti, tp := range tracks {
		for di, dp := range dets {

			d := distance(tp, dp)

			if d > maxDistance {
				continue
			}

			pairs = append(pairs, pairDistance{track: ti, det: di, dist: d})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].dist != pairs[j].dist {
			return pairs[i].dist < pairs[j].dist
		}
		if pairs[i].track != pairs[j].track {
			return pairs[i].track < pairs[j].track
		}
		return pairs[i].det < pairs[j].det
	})

	trackUsed := make([]bool, len(tracks))
	detUsed := make([]bool, len(dets))

	for _, p := range pairs {
		if trackUsed[p.track] || detUsed[p.det] {
			continue
		}

		trackUsed[p.track] = true
		detUsed[p.det] = true
		matchesIdx = append(matchesIdx, [2]int{p.track, p.det})
	}

	for i, used := range trackUsed {
		if !used {
			unmatchTrackIdx = append(unmatchTrackIdx, i)
		}
	}

	for i, used := range detUsed {
		if !used {
			unmatchDetectionIdx = append(unmatchDetectionIdx, i)
		}
	}

	return matchesIdx, unmatchTrackIdx, unmatchDetectionIdx
}
