package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrDisconnected is returned by Emit when the write fails and the emitter
// drops its connection
var ErrDisconnected = errors.New("stream disconnected")

var logger = log.WithField("component", "stream")

// ConnState is the connection state of an Emitter
type ConnState int

const (
	// Disconnected emitters discard messages until a connection is attached
	Disconnected ConnState = 0
	// Connected emitters write every message to their connection
	Connected ConnState = 1
)

// String returns the lower case state name
func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Emitter writes one message per frame to a persistent outbound connection.
// It never reconnects by itself, after a failed write it stays disconnected
// until Attach is called.  An Emitter is not safe for concurrent use.
type Emitter struct {
	// width and height of the canonical frame used for the wire transform
	width  int
	height int
	// writeTimeout bounds each write when greater than zero
	writeTimeout time.Duration
	conn         net.Conn
	state        ConnState
	// sent counts messages written since the last Attach
	sent uint64
}

// NewEmitter returns a disconnected emitter for width x height frames
func NewEmitter(width, height int, writeTimeout time.Duration) *Emitter {
	return &Emitter{
		width:        width,
		height:       height,
		writeTimeout: writeTimeout,
		state:        Disconnected,
	}
}

// Dial opens the outbound TCP connection to addr
func Dial(ctx context.Context, addr string) (net.Conn, error) {

	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)

	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", addr, err)
	}

	return conn, nil
}

// Attach makes conn the emitter's connection, closing any previous one
func (e *Emitter) Attach(conn net.Conn) {

	if e.conn != nil && e.conn != conn {
		e.conn.Close()
	}

	e.conn = conn
	e.sent = 0

	if conn == nil {
		e.state = Disconnected
		return
	}

	e.state = Connected

	logger.WithField("remote", conn.RemoteAddr().String()).Info("stream connected")
}

// State returns the connection state
func (e *Emitter) State() ConnState {
	return e.state
}

// Sent returns the number of messages written on the current connection
func (e *Emitter) Sent() uint64 {
	return e.sent
}

// Emit writes the contours of one frame.  A disconnected emitter discards the
// message and returns nil.  A failed write closes the connection and returns
// ErrDisconnected.
func (e *Emitter) Emit(contours [][]image.Point) error {

	if e.state != Connected {
		return nil
	}

	data, err := Encode(contours, e.width, e.height)

	if err != nil {
		return err
	}

	if e.writeTimeout > 0 {
		e.conn.SetWriteDeadline(time.Now().Add(e.writeTimeout))
	}

	if _, err := e.conn.Write(data); err != nil {
		logger.WithError(err).WithField("sent", e.sent).Error("stream write failed, streaming disabled")
		e.drop()
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	e.sent++

	return nil
}

// Close closes the connection if any and leaves the emitter disconnected
func (e *Emitter) Close() error {

	if e.conn == nil {
		e.state = Disconnected
		return nil
	}

	err := e.conn.Close()
	e.conn = nil
	e.state = Disconnected

	return err
}

// drop closes and forgets the connection after a failed write
func (e *Emitter) drop() {
	e.conn.Close()
	e.conn = nil
	e.state = Disconnected
}
