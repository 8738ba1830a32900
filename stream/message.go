/*
Package stream implements the line delimited JSON protocol the touch table
uses to send blob outlines to a consumer, one message per processed frame:

	{"contours":[{"vertices":[{"x":12,"y":-40},...]},...]}\n

Vertex coordinates are relative to the centre of the canonical frame with
both axes flipped, x' = W/2 - x and y' = H/2 - y.
*/
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/tidwall/gjson"
)

// ErrInvalidMessage is returned by Decode for a line that is not a contours
// message
var ErrInvalidMessage = errors.New("invalid contours message")

// Vertex is a single outline point in wire coordinates
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Contour is the outline of one detected blob
type Contour struct {
	Vertices []Vertex `json:"vertices"`
}

// Message is the per frame payload
type Message struct {
	Contours []Contour `json:"contours"`
}

// ToWire converts a canonical pixel position into wire coordinates for a
// width x height frame
func ToWire(p image.Point, width, height int) Vertex {
	return Vertex{
		X: float64(width)/2 - float64(p.X),
		Y: float64(height)/2 - float64(p.Y),
	}
}

// FromWire converts wire coordinates back to a canonical position
func FromWire(v Vertex, width, height int) (float64, float64) {
	return float64(width)/2 - v.X, float64(height)/2 - v.Y
}

// NewMessage builds the message for the contours of one frame.  Contours is
// never nil so an empty frame still encodes as an empty array.
func NewMessage(contours [][]image.Point, width, height int) Message {

	msg := Message{
		Contours: make([]Contour, 0, len(contours)),
	}

	for _, c := range contours {
		verts := make([]Vertex, len(c))

		for i, p := range c {
			verts[i] = ToWire(p, width, height)
		}

		msg.Contours = append(msg.Contours, Contour{Vertices: verts})
	}

	return msg
}

// Encode returns the newline terminated wire form of the contours of one
// width x height frame
func Encode(contours [][]image.Point, width, height int) ([]byte, error) {

	data, err := json.Marshal(NewMessage(contours, width, height))

	if err != nil {
		return nil, fmt.Errorf("error encoding contours: %w", err)
	}

	return append(data, '\n'), nil
}

// Decode parses a single wire line, the trailing newline is optional
func Decode(line []byte) (Message, error) {

	if !gjson.ValidBytes(line) {
		return Message{}, fmt.Errorf("%w: not valid JSON", ErrInvalidMessage)
	}

	contours := gjson.GetBytes(line, "contours")

	if !contours.IsArray() {
		return Message{}, fmt.Errorf("%w: missing contours array", ErrInvalidMessage)
	}

	msg := Message{
		Contours: make([]Contour, 0),
	}

	var err error

	contours.ForEach(func(_, contour gjson.Result) bool {

		verts := contour.Get("vertices")

		if !verts.IsArray() {
			err = fmt.Errorf("%w: contour %d has no vertices array",
				ErrInvalidMessage, len(msg.Contours))
			return false
		}

		c := Contour{Vertices: make([]Vertex, 0)}

		verts.ForEach(func(_, v gjson.Result) bool {
			c.Vertices = append(c.Vertices, Vertex{
				X: v.Get("x").Float(),
				Y: v.Get("y").Float(),
			})
			return true
		})

		msg.Contours = append(msg.Contours, c)

		return true
	})

	if err != nil {
		return Message{}, err
	}

	return msg, nil
}
