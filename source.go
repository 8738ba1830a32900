package touchtable

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Source provides camera frames to a Pipeline
type Source interface {
	// Read copies the newest frame into dst.  It returns false without
	// blocking when no frame has arrived since the last Read.
	Read(dst *gocv.Mat) bool
}

// DefaultGrabberCloseTimeout is how long Close waits for a pending camera
// Read to return, once before and once after closing the reader
const DefaultGrabberCloseTimeout = 2 * time.Second

// ErrReadStalled is returned by Grabber.Close when the reader's Read did not
// return even after the reader was closed
var ErrReadStalled = errors.New("camera read stalled")

// FrameReader is a blocking frame producer such as *gocv.VideoCapture.
// Read should return once Close has been called.
type FrameReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Grabber reads frames from a FrameReader on its own goroutine and keeps only
// the newest one, so a slow Pipeline never falls behind the camera
type Grabber struct {
	reader FrameReader
	mu     sync.Mutex
	// latest is the newest frame and fresh reports it has not been Read yet
	latest gocv.Mat
	fresh  bool
	// frames counts frames taken from the reader
	frames uint64
	done   chan struct{}
	stop   chan struct{}
	close  sync.Once
	// closeTimeout bounds each wait for the read goroutine in Close
	closeTimeout time.Duration
}

// OpenGrabber opens a camera device, either an index like "0" or a file or
// stream URL, requesting width x height frames
func OpenGrabber(device string, width, height int) (*Grabber, error) {

	vc, err := gocv.OpenVideoCapture(device)

	if err != nil {
		return nil, fmt.Errorf("error opening capture device %s: %w", device, err)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))

	return NewGrabber(vc), nil
}

// NewGrabber starts reading frames from reader
func NewGrabber(reader FrameReader) *Grabber {

	g := &Grabber{
		reader:       reader,
		latest:       gocv.NewMat(),
		done:         make(chan struct{}),
		stop:         make(chan struct{}),
		closeTimeout: DefaultGrabberCloseTimeout,
	}

	go g.run()

	return g
}

// run pulls frames until Close or the reader fails
func (g *Grabber) run() {

	defer close(g.done)

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		select {
		case <-g.stop:
			return
		default:
		}

		if !g.reader.Read(&frame) {
			logger.WithField("frames", g.Frames()).Warn("camera stopped delivering frames")
			return
		}

		if frame.Empty() {
			continue
		}

		g.mu.Lock()
		frame.CopyTo(&g.latest)
		g.fresh = true
		g.frames++
		g.mu.Unlock()
	}
}

// Read copies the newest frame into dst if it has not been read before
func (g *Grabber) Read(dst *gocv.Mat) bool {

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.fresh {
		return false
	}

	g.latest.CopyTo(dst)
	g.fresh = false

	return true
}

// Frames returns the number of frames taken from the reader
func (g *Grabber) Frames() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frames
}

// Close stops the grabber and closes its reader.  A reader stuck in Read is
// closed to unblock it, and if Read still does not return Close gives up
// with ErrReadStalled and leaves the read goroutine behind.
func (g *Grabber) Close() error {

	var err error

	g.close.Do(func() {
		close(g.stop)

		select {
		case <-g.done:
			err = g.reader.Close()

		case <-time.After(g.closeTimeout):
			logger.Warn("camera read did not return, closing reader")
			err = g.reader.Close()

			select {
			case <-g.done:
			case <-time.After(g.closeTimeout):
				// the goroutine still owns latest so it is not freed
				err = ErrReadStalled
				return
			}
		}

		g.mu.Lock()
		g.latest.Close()
		g.mu.Unlock()
	})

	return err
}
