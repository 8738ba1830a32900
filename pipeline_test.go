package touchtable

import (
	"bufio"
	"context"
	"image"
	"image/color"
	"net"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-touchtable/calibration"
	"github.com/swdee/go-touchtable/stream"
	"github.com/swdee/go-touchtable/timeutil"
	"github.com/swdee/go-touchtable/tracker"
	"gocv.io/x/gocv"
)

// fakeSource hands out a copy of its current frame on every Read, like a
// camera that always has a new frame ready
type fakeSource struct {
	mu    sync.Mutex
	frame gocv.Mat
	reads int
}

func (f *fakeSource) Read(dst *gocv.Mat) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++

	if f.frame.Empty() {
		return false
	}

	f.frame.CopyTo(dst)

	return true
}

// set replaces the frame, closing the previous one
func (f *fakeSource) set(m gocv.Mat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame.Close()
	f.frame = m
}

func (f *fakeSource) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame.Close()
}

// tableFrame returns a white 640x480 BGR frame with a black disc for each
// centre given
func tableFrame(centres ...image.Point) gocv.Mat {

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0),
		480, 640, gocv.MatTypeCV8UC3)

	for _, c := range centres {
		gocv.Circle(&img, c, 30, color.RGBA{A: 255}, -1)
	}

	return img
}

// lineCollector reads wire lines from conn until it closes
func lineCollector(conn net.Conn) <-chan string {

	lines := make(chan string, 256)

	go func() {
		defer close(lines)
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	return lines
}

type testRig struct {
	p      *Pipeline
	src    *fakeSource
	clock  *timeutil.MockClock
	lines  <-chan string
	server net.Conn
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))

	cfg := DefaultConfig()
	cfg.Clock = clock

	client, server := net.Pipe()

	emitter := stream.NewEmitter(cfg.Width, cfg.Height, 0)
	emitter.Attach(client)

	src := &fakeSource{frame: gocv.NewMat()}

	p, err := New(cfg, src, emitter)
	require.NoError(t, err)

	rig := &testRig{
		p:      p,
		src:    src,
		clock:  clock,
		lines:  lineCollector(server),
		server: server,
	}

	t.Cleanup(func() {
		p.Close()
		server.Close()
		src.Close()
	})

	return rig
}

// frame advances the clock and processes one frame under the lock
func (r *testRig) frame(t *testing.T, d time.Duration) {
	t.Helper()

	r.clock.Advance(d)

	r.p.mu.Lock()
	ok := r.p.step()
	r.p.mu.Unlock()

	require.True(t, ok, "step did not process a frame")
}

// nextMessage returns the next decoded wire message
func (r *testRig) nextMessage(t *testing.T) stream.Message {
	t.Helper()

	select {
	case line, ok := <-r.lines:
		require.True(t, ok, "stream closed")
		msg, err := stream.Decode([]byte(line))
		require.NoError(t, err)
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for wire message")
	}

	return stream.Message{}
}

// centroid returns the mean vertex of a contour
func centroid(c stream.Contour) (float64, float64) {

	var x, y float64

	for _, v := range c.Vertices {
		x += v.X
		y += v.Y
	}

	n := float64(len(c.Vertices))

	return x / n, y / n
}

func TestPipelineTouchAtCentre(t *testing.T) {

	rig := newTestRig(t)
	rig.src.set(tableFrame(image.Pt(320, 240)))

	rig.frame(t, 0)

	tracks := rig.p.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, tracker.Nascent, tracks[0].GetState())

	msg := rig.nextMessage(t)
	require.Len(t, msg.Contours, 1)

	// blob at the canonical centre is at the wire origin
	x, y := centroid(msg.Contours[0])
	assert.InDelta(t, 0, x, 2)
	assert.InDelta(t, 0, y, 2)

	rig.frame(t, 200*time.Millisecond)
	rig.nextMessage(t)
	assert.Equal(t, tracker.Born, rig.p.Tracks()[0].GetState())

	rig.frame(t, 50*time.Millisecond)
	rig.nextMessage(t)

	tracks = rig.p.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, tracker.Alive, tracks[0].GetState())
	assert.Equal(t, 1, tracks[0].GetLabel())

	dets := rig.p.Detections()
	require.Len(t, dets, 1)
	cx, cy := dets[0].Center()
	assert.InDelta(t, 320, cx, 2)
	assert.InDelta(t, 240, cy, 2)
}

func TestPipelineTouchLiftedDies(t *testing.T) {

	rig := newTestRig(t)
	rig.src.set(tableFrame(image.Pt(200, 200)))

	rig.frame(t, 0)
	rig.frame(t, 200*time.Millisecond)
	rig.frame(t, 50*time.Millisecond)
	require.Equal(t, tracker.Alive, rig.p.Tracks()[0].GetState())

	// empty table for 0.6s
	rig.src.set(tableFrame())

	for i := 0; i < 12; i++ {
		rig.frame(t, 50*time.Millisecond)
	}

	assert.Empty(t, rig.p.Tracks())

	// every frame produced exactly one line, the last with no contours
	var last stream.Message

	for i := 0; i < 15; i++ {
		last = rig.nextMessage(t)
	}

	assert.NotNil(t, last.Contours)
	assert.Empty(t, last.Contours)
}

func TestPipelineStreamFailureKeepsTracking(t *testing.T) {

	rig := newTestRig(t)
	rig.src.set(tableFrame(image.Pt(200, 200)))

	rig.server.Close()

	rig.frame(t, 0)
	assert.Equal(t, stream.Disconnected, rig.p.StreamState())

	rig.frame(t, 200*time.Millisecond)
	rig.frame(t, 50*time.Millisecond)
	assert.Equal(t, tracker.Alive, rig.p.Tracks()[0].GetState())
}

func TestPipelineRedialStream(t *testing.T) {

	rig := newTestRig(t)
	rig.server.Close()
	rig.src.set(tableFrame())
	rig.frame(t, 0)
	require.Equal(t, stream.Disconnected, rig.p.StreamState())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, rig.p.RedialStream(ctx, ln.Addr().String()))
	assert.Equal(t, stream.Connected, rig.p.StreamState())

	srv := <-accepted
	defer srv.Close()

	rig.frame(t, 10*time.Millisecond)

	line, err := bufio.NewReader(srv).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"contours\":[]}\n", line)
}

func TestPipelineRedialAfterClose(t *testing.T) {

	rig := newTestRig(t)
	require.NoError(t, rig.p.Close())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = rig.p.RedialStream(ctx, ln.Addr().String())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, stream.Disconnected, rig.p.StreamState())
}

func TestPipelineFrameLoggedAtDebug(t *testing.T) {

	hook := logtest.NewLocal(log.StandardLogger())
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)

	t.Cleanup(func() {
		log.SetLevel(level)
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	})

	rig := newTestRig(t)
	rig.src.set(tableFrame(image.Pt(320, 240)))
	rig.frame(t, 0)

	var found *log.Entry

	for _, e := range hook.AllEntries() {
		if e.Message == "frame processed" {
			found = e
		}
	}

	require.NotNil(t, found, "no per frame log entry")
	assert.Equal(t, log.DebugLevel, found.Level)
	assert.Equal(t, 1, found.Data["detections"])
	assert.Equal(t, uint64(1), found.Data["frame"])
}

func TestPipelineNoFrame(t *testing.T) {

	rig := newTestRig(t)

	rig.p.mu.Lock()
	ok := rig.p.step()
	rig.p.mu.Unlock()

	assert.False(t, ok)
	assert.Equal(t, uint64(0), rig.p.Frames())

	dst := gocv.NewMat()
	defer dst.Close()
	assert.False(t, rig.p.ResultImage(&dst))
}

func TestPipelineResultImage(t *testing.T) {

	rig := newTestRig(t)
	rig.src.set(tableFrame(image.Pt(320, 240)))

	dst := gocv.NewMat()
	defer dst.Close()

	rig.frame(t, 0)
	require.True(t, rig.p.ResultImage(&dst))
	assert.Equal(t, 1, dst.Channels())
	assert.Equal(t, uint8(255), dst.GetUCharAt(240, 320))

	rig.p.SetCalibrationMode(true)
	rig.frame(t, 10*time.Millisecond)
	require.True(t, rig.p.ResultImage(&dst))
	assert.Equal(t, 3, dst.Channels())
}

func TestPipelineParams(t *testing.T) {

	rig := newTestRig(t)
	assert.Equal(t, DefaultParams(), rig.p.Params())

	rig.p.SetParams(Params{MinAreaRadius: -5, MaxAreaRadius: 50, Threshold: 90, Gamma: -1})

	assert.Equal(t, Params{MinAreaRadius: 0, MaxAreaRadius: 50, Threshold: 90, Gamma: 0},
		rig.p.Params())
}

func TestPipelineParamsFilterDetections(t *testing.T) {

	rig := newTestRig(t)
	rig.src.set(tableFrame(image.Pt(320, 240)))

	// disc of radius 30 is smaller than the minimum
	rig.p.SetParams(Params{MinAreaRadius: 40, MaxAreaRadius: 100, Threshold: 128, Gamma: 0.5})
	rig.frame(t, 0)
	assert.Empty(t, rig.p.Detections())
	assert.Empty(t, rig.p.Tracks())

	rig.p.SetParams(DefaultParams())
	rig.frame(t, 10*time.Millisecond)
	assert.Len(t, rig.p.Detections(), 1)
}

func TestPipelineCalibration(t *testing.T) {

	rig := newTestRig(t)

	// wrong point count is rejected and nothing changes
	before := rig.p.CalibrationPoints()
	err := rig.p.SetCalibration([]calibration.Point{{0, 0}, {1, 1}})
	assert.ErrorIs(t, err, calibration.ErrPointCount)
	assert.Equal(t, before, rig.p.CalibrationPoints())

	err = rig.p.SetCalibration([]calibration.Point{{0, 0}, {5, 5}, {10, 10}, {20, 20}})
	assert.ErrorIs(t, err, calibration.ErrDegenerate)
	assert.Equal(t, before, rig.p.CalibrationPoints())

	// picking only works in calibration mode
	assert.Equal(t, calibration.NoPick, rig.p.PickCalibrationPoint(630, 10))
	assert.False(t, rig.p.DragCalibrationPoint(600, 40))

	rig.p.SetCalibrationMode(true)
	assert.True(t, rig.p.CalibrationMode())
	assert.Equal(t, 1, rig.p.PickCalibrationPoint(630, 10))

	// toggling the mode drops the pick
	rig.p.SetCalibrationMode(false)
	rig.p.SetCalibrationMode(true)
	assert.False(t, rig.p.DragCalibrationPoint(600, 40))

	assert.Equal(t, 1, rig.p.PickCalibrationPoint(630, 10))
	assert.True(t, rig.p.DragCalibrationPoint(600, 40))
	require.NoError(t, rig.p.CommitCalibration())
	assert.Equal(t, calibration.Pt(609, 30), rig.p.CalibrationPoints()[1])

	require.NoError(t, rig.p.ResetCalibration())
	assert.Equal(t, before, rig.p.CalibrationPoints())
}

func TestPipelineRecalibrationEndsTracks(t *testing.T) {

	rig := newTestRig(t)
	rig.src.set(tableFrame(image.Pt(200, 200), image.Pt(400, 300)))

	rig.frame(t, 0)
	require.Len(t, rig.p.Tracks(), 2)

	require.NoError(t, rig.p.SetCalibration([]calibration.Point{
		{10, 10}, {630, 10}, {630, 470}, {10, 470},
	}))
	assert.Empty(t, rig.p.Tracks())

	// labels start again in the new session
	rig.frame(t, 10*time.Millisecond)
	tracks := rig.p.Tracks()
	require.Len(t, tracks, 2)
	assert.ElementsMatch(t, []int{1, 2}, []int{tracks[0].GetLabel(), tracks[1].GetLabel()})
}

func TestPipelineDraw(t *testing.T) {

	rig := newTestRig(t)
	rig.src.set(tableFrame(image.Pt(320, 240)))

	rig.frame(t, 0)
	rig.frame(t, 200*time.Millisecond)
	rig.frame(t, 50*time.Millisecond)
	rig.p.SetCalibrationMode(true)

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640,
		gocv.MatTypeCV8UC3)
	defer img.Close()

	rig.p.Draw(&img)

	// top calibration edge runs along row 0
	px := img.GetVecbAt(0, 320)
	assert.Equal(t, uint8(255), px[2])

	green := channel(img, 1)
	defer green.Close()
	assert.Greater(t, gocv.CountNonZero(green), 0)
}

// channel returns a single channel of img
func channel(img gocv.Mat, idx int) gocv.Mat {
	chans := gocv.Split(img)
	for i, c := range chans {
		if i != idx {
			c.Close()
		}
	}
	return chans[idx]
}

func TestPipelineStartStop(t *testing.T) {

	rig := newTestRig(t)
	rig.src.set(tableFrame(image.Pt(320, 240)))

	ctx := context.Background()

	// keep the consumer reading so writes never block the loop
	go func() {
		for range rig.lines {
		}
	}()

	require.NoError(t, rig.p.Start(ctx))
	assert.ErrorIs(t, rig.p.Start(ctx), ErrAlreadyRunning)

	deadline := time.Now().Add(5 * time.Second)
	for rig.p.Frames() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.GreaterOrEqual(t, rig.p.Frames(), uint64(3))
	assert.Greater(t, rig.clock.Sleeps(), 0)

	require.NoError(t, rig.p.Stop())
	assert.Equal(t, stream.Disconnected, rig.p.StreamState())
	assert.ErrorIs(t, rig.p.Stop(), ErrNotRunning)

	// restart after stop
	require.NoError(t, rig.p.Start(ctx))
	require.NoError(t, rig.p.Stop())

	require.NoError(t, rig.p.Close())
	assert.ErrorIs(t, rig.p.Start(ctx), ErrClosed)
}

func TestPipelineContextCancelStopsLoop(t *testing.T) {

	rig := newTestRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, rig.p.Start(ctx))

	cancel()

	// Stop still joins the already exited loop
	require.NoError(t, rig.p.Stop())
}
