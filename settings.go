package touchtable

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/swdee/go-touchtable/calibration"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// ErrSettings is returned for a settings file that can not be understood
var ErrSettings = errors.New("invalid settings")

// settings file keys, the misspelt max radius key is kept so existing files
// still load
const (
	keyRect      = "rect"
	keyThreshold = "tracker.threshold"
	keyMinRadius = "tracker.minAreaRadius"
	keyMaxRadius = "tracker.maxArearaduis"
	keyGamma     = "tracker.gamma"
)

// Settings are the values persisted between runs
type Settings struct {
	// Points are the calibration corners in camera space, nil when the file
	// holds no calibration
	Points []calibration.Point
	Params Params
}

// LoadSettings reads the settings file at path.  Values missing from the
// file are taken from defaults.  A missing file returns an error matching
// fs.ErrNotExist along with the defaults.
func LoadSettings(path string, defaults Params) (Settings, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return Settings{Params: defaults}, fmt.Errorf("error reading settings: %w", err)
	}

	return ParseSettings(data, defaults)
}

// ParseSettings decodes a settings document
func ParseSettings(data []byte, defaults Params) (Settings, error) {

	s := Settings{Params: defaults}

	if !gjson.ValidBytes(data) {
		return s, fmt.Errorf("%w: not valid JSON", ErrSettings)
	}

	doc := gjson.ParseBytes(data)

	if rect := doc.Get(keyRect); rect.Exists() {

		vals := rect.Array()

		if !rect.IsArray() || len(vals) != 8 {
			return s, fmt.Errorf("%w: %s must hold 8 numbers", ErrSettings, keyRect)
		}

		s.Points = make([]calibration.Point, 4)

		for i := range s.Points {
			s.Points[i] = calibration.Pt(vals[i*2].Float(), vals[i*2+1].Float())
		}
	}

	fields := []struct {
		key string
		v   *float64
	}{
		{keyThreshold, &s.Params.Threshold},
		{keyMinRadius, &s.Params.MinAreaRadius},
		{keyMaxRadius, &s.Params.MaxAreaRadius},
		{keyGamma, &s.Params.Gamma},
	}

	for _, f := range fields {
		if r := doc.Get(f.key); r.Exists() {
			*f.v = r.Float()
		}
	}

	return s, nil
}

// SaveSettings writes s to path.  Keys already in the file that are not
// settings are left as they are.
func SaveSettings(path string, s Settings) error {

	data, err := os.ReadFile(path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = []byte("{}")
	case err != nil:
		return fmt.Errorf("error reading settings: %w", err)
	case !gjson.ValidBytes(data):
		data = []byte("{}")
	}

	data, err = MergeSettings(data, s)

	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing settings: %w", err)
	}

	return nil
}

// MergeSettings sets the values of s into the JSON document data and returns
// the indented result
func MergeSettings(data []byte, s Settings) ([]byte, error) {

	var err error

	if len(s.Points) == 4 {
		rect := make([]float64, 0, 8)

		for _, p := range s.Points {
			rect = append(rect, p.X, p.Y)
		}

		if data, err = sjson.SetBytes(data, keyRect, rect); err != nil {
			return nil, fmt.Errorf("error setting %s: %w", keyRect, err)
		}
	}

	values := []struct {
		key string
		v   float64
	}{
		{keyThreshold, s.Params.Threshold},
		{keyMinRadius, s.Params.MinAreaRadius},
		{keyMaxRadius, s.Params.MaxAreaRadius},
		{keyGamma, s.Params.Gamma},
	}

	for _, kv := range values {
		if data, err = sjson.SetBytes(data, kv.key, kv.v); err != nil {
			return nil, fmt.Errorf("error setting %s: %w", kv.key, err)
		}
	}

	return pretty.Pretty(data), nil
}
