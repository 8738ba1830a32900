package touchtable

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/swdee/go-touchtable/calibration"
	"github.com/swdee/go-touchtable/postprocess"
	"github.com/swdee/go-touchtable/preprocess"
	"github.com/swdee/go-touchtable/render"
	"github.com/swdee/go-touchtable/stream"
	"github.com/swdee/go-touchtable/timeutil"
	"github.com/swdee/go-touchtable/tracker"
	"gocv.io/x/gocv"
)

var (
	// ErrAlreadyRunning is returned by Start on a running pipeline
	ErrAlreadyRunning = errors.New("pipeline already running")
	// ErrNotRunning is returned by Stop on a pipeline that is not running
	ErrNotRunning = errors.New("pipeline not running")
	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("pipeline closed")
)

var logger = log.WithField("component", "pipeline")

// Pipeline runs segmentation, contour finding, tracking and streaming on
// each new camera frame.  All state is guarded by one mutex which the
// processing loop holds for a whole frame and the accessors hold only for
// their own read or change.
type Pipeline struct {
	cfg   Config
	clock timeutil.Clock

	mu sync.Mutex

	source    Source
	resizer   *preprocess.Resizer
	segmenter *preprocess.Segmenter
	finder    *postprocess.ContourFinder
	tracker   *tracker.Tracker
	emitter   *stream.Emitter
	quad      *calibration.Quad

	// camMat is the frame as delivered by the source, frame is it fitted to
	// the processing size
	camMat gocv.Mat
	frame  gocv.Mat
	mask   gocv.Mat
	// result is the gamma mask, or the camera frame in calibration mode
	result gocv.Mat

	params    Params
	calibMode bool
	dets      []postprocess.Detection
	frames    uint64

	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New returns a stopped pipeline reading from src and writing to emitter.
// Either may be nil, a nil source never yields frames and a nil emitter is
// replaced by a disconnected one.
func New(cfg Config, src Source, emitter *stream.Emitter) (*Pipeline, error) {

	quad, err := calibration.NewQuad(cfg.Width, cfg.Height)

	if err != nil {
		return nil, fmt.Errorf("error creating calibration: %w", err)
	}

	clock := cfg.Clock

	if clock == nil {
		clock = timeutil.RealClock{}
	}

	if emitter == nil {
		emitter = stream.NewEmitter(cfg.Width, cfg.Height, cfg.WriteTimeout)
	}

	params, fixed := cfg.Params.clamp()

	if len(fixed) > 0 {
		logger.WithField("fields", fixed).Warn("negative parameters clamped to 0")
	}

	return &Pipeline{
		cfg:       cfg,
		clock:     clock,
		source:    src,
		resizer:   preprocess.NewResizer(cfg.Width, cfg.Height),
		segmenter: preprocess.NewSegmenter(cfg.Width, cfg.Height),
		finder:    postprocess.NewContourFinder(),
		tracker:   tracker.NewTracker(cfg.Tracker, clock),
		emitter:   emitter,
		quad:      quad,
		camMat:    gocv.NewMat(),
		frame:     gocv.NewMat(),
		mask:      gocv.NewMat(),
		result:    gocv.NewMat(),
		params:    params,
	}, nil
}

// Start launches the processing loop, it runs until ctx is cancelled or
// Stop is called
func (p *Pipeline) Start(ctx context.Context) error {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if p.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.cancel = cancel
	p.done = done

	go p.run(ctx, done)

	logger.WithFields(log.Fields{
		"width":  p.cfg.Width,
		"height": p.cfg.Height,
		"stream": p.emitter.State().String(),
	}).Info("pipeline started")

	return nil
}

// Stop cancels the processing loop, waits for it to exit and closes the
// stream connection
func (p *Pipeline) Stop() error {

	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if done == nil {
		return ErrNotRunning
	}

	cancel()
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancel = nil
	p.done = nil

	err := p.emitter.Close()

	logger.WithField("frames", p.frames).Info("pipeline stopped")

	if err != nil {
		return fmt.Errorf("error closing stream: %w", err)
	}

	return nil
}

// Close stops the pipeline if running and frees its resources
func (p *Pipeline) Close() error {

	if err := p.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		logger.WithError(err).Warn("error stopping pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	p.emitter.Close()
	p.resizer.Close()
	p.segmenter.Close()
	p.finder.Close()

	for _, m := range []*gocv.Mat{&p.camMat, &p.frame, &p.mask, &p.result} {
		m.Close()
	}

	return nil
}

// run is the processing loop
func (p *Pipeline) run(ctx context.Context, done chan struct{}) {

	defer close(done)

	if len(p.cfg.CPUCores) > 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := SetCPUAffinity(p.cfg.CPUCores); err != nil {
			logger.WithError(err).Warn("running without CPU pinning")
		} else if cores, err := GetCPUAffinity(); err == nil {
			logger.WithField("cores", cores).Info("processing loop pinned")
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		p.step()
		p.mu.Unlock()

		p.clock.Sleep(p.cfg.PollInterval)
	}
}

// step processes one frame, the caller must hold the lock.  It returns false
// when there was no new frame to process.
func (p *Pipeline) step() bool {

	if p.source == nil || !p.source.Read(&p.camMat) || p.camMat.Empty() {
		return false
	}

	p.resizer.Fit(p.camMat, &p.frame)

	if !p.segmenter.Segment(p.frame, &p.mask, p.quad.Homography(), !p.calibMode,
		p.params.Gamma) {
		return false
	}

	if p.calibMode {
		p.frame.CopyTo(&p.result)
	} else {
		p.mask.CopyTo(&p.result)
	}

	p.dets = p.finder.Find(p.mask, p.params.findOptions())
	p.tracker.Update(postprocess.Boxes(p.dets))

	// a failed write is logged by the emitter and leaves it disconnected
	_ = p.emitter.Emit(postprocess.Contours(p.dets))

	p.frames++

	if log.IsLevelEnabled(log.DebugLevel) {
		logger.WithFields(log.Fields{
			"frame":      p.frames,
			"detections": len(p.dets),
			"tracks":     p.tracker.Len(),
		}).Debug("frame processed")
	}

	return true
}

// Params returns the current segmentation values
func (p *Pipeline) Params() Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

// SetParams replaces the segmentation values, negative values are clamped
// to zero.  The new values apply from the next frame.
func (p *Pipeline) SetParams(params Params) {

	params, fixed := params.clamp()

	if len(fixed) > 0 {
		logger.WithField("fields", fixed).Warn("negative parameters clamped to 0")
	}

	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
}

// CalibrationMode reports whether calibration mode is on
func (p *Pipeline) CalibrationMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calibMode
}

// SetCalibrationMode turns calibration mode on or off.  While on, frames are
// not rectified and the result image is the camera frame.  Changing the mode
// drops any in progress corner drag.
func (p *Pipeline) SetCalibrationMode(on bool) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.calibMode == on {
		return
	}

	p.calibMode = on
	p.quad.ClearPick()

	logger.WithField("on", on).Info("calibration mode changed")
}

// ResetCalibration places the calibration corners on the frame corners
func (p *Pipeline) ResetCalibration() error {

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.quad.Reset(); err != nil {
		logger.WithError(err).Warn("calibration reset rejected")
		return err
	}

	p.recalibrated()

	return nil
}

// SetCalibration replaces the four calibration corners, ordered top-left,
// top-right, bottom-right, bottom-left in camera coordinates.  Anything but
// four points, or a degenerate quad, is rejected and the prior calibration
// kept.
func (p *Pipeline) SetCalibration(points []calibration.Point) error {

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.quad.SetPoints(points); err != nil {
		logger.WithError(err).Warn("calibration rejected")
		return err
	}

	p.recalibrated()

	return nil
}

// PickCalibrationPoint selects the corner nearest x,y for dragging and
// returns its index.  Outside calibration mode nothing is picked and
// calibration.NoPick is returned.
func (p *Pipeline) PickCalibrationPoint(x, y float64) int {

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.calibMode {
		return calibration.NoPick
	}

	return p.quad.Pick(calibration.Pt(x, y))
}

// DragCalibrationPoint moves the picked corner with the cursor at x,y.  The
// homography is not updated until CommitCalibration.
func (p *Pipeline) DragCalibrationPoint(x, y float64) bool {

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.calibMode {
		return false
	}

	return p.quad.Drag(calibration.Pt(x, y))
}

// CommitCalibration ends a corner drag and recomputes the homography from
// the current corners
func (p *Pipeline) CommitCalibration() error {

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.quad.Commit(); err != nil {
		logger.WithError(err).Warn("calibration rejected, keeping previous transform")
		return err
	}

	p.recalibrated()

	return nil
}

// CalibrationPoints returns the four calibration corners in camera space
func (p *Pipeline) CalibrationPoints() [4]calibration.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quad.Points()
}

// recalibrated ends all tracks since their positions are in the old
// canonical space, the caller must hold the lock
func (p *Pipeline) recalibrated() {

	p.tracker.Reset()

	logger.WithFields(log.Fields{
		"points":  p.quad.Points(),
		"session": p.tracker.Session().String(),
	}).Info("calibration updated")
}

// ResultImage copies the latest result image into dst, it returns false
// before the first frame has been processed
func (p *Pipeline) ResultImage(dst *gocv.Mat) bool {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.result.Empty() {
		return false
	}

	p.result.CopyTo(dst)

	return true
}

// Tracks returns a copy of the live tracks
func (p *Pipeline) Tracks() []tracker.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracker.Tracks()
}

// Detections returns a copy of the latest frame's detections
func (p *Pipeline) Detections() []postprocess.Detection {

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]postprocess.Detection, len(p.dets))
	copy(out, p.dets)

	return out
}

// Frames returns the number of frames processed
func (p *Pipeline) Frames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Draw renders the latest detections and tracks onto img, plus the
// calibration corners when in calibration mode
func (p *Pipeline) Draw(img *gocv.Mat) {

	p.mu.Lock()
	defer p.mu.Unlock()

	render.Contours(img, p.dets, render.DefaultContourStyle())

	tracks := p.tracker.Tracks()
	render.Tracks(img, tracks, p.clock.Now(), render.DefaultTrackStyle())
	render.Trail(img, tracks, render.DefaultTrailStyle())

	if p.calibMode {
		var corners [4]image.Point

		for i, pt := range p.quad.Points() {
			corners[i] = image.Pt(int(math.Round(pt.X)), int(math.Round(pt.Y)))
		}

		render.CalibrationHandles(img, corners, p.quad.Picked(), render.DefaultFont())
	}
}

// StreamState returns the state of the stream connection
func (p *Pipeline) StreamState() stream.ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emitter.State()
}

// RedialStream connects to addr and attaches the connection to the
// emitter.  The dial happens without the lock so the loop keeps running.
// It returns ErrClosed, and drops any new connection, once the pipeline has
// been closed.
func (p *Pipeline) RedialStream(ctx context.Context, addr string) error {

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return ErrClosed
	}

	conn, err := stream.Dial(ctx, addr)

	if err != nil {
		logger.WithError(err).Warn("stream redial failed")
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Close may have run while dialing
	if p.closed {
		conn.Close()
		return ErrClosed
	}

	p.emitter.Attach(conn)

	return nil
}
