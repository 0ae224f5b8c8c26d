// internal/ingest/decode.go
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"collision-hub/internal/apperr"
	"collision-hub/internal/models"
)

// wireReport is the inbound schema. Pointer fields tell an absent (or null)
// field apart from a zero value.
type wireReport struct {
	DeviceID     *string         `json:"device_id"`
	X            *float64        `json:"x"`
	Y            *float64        `json:"y"`
	Theta        *float64        `json:"theta"`
	Loaded       *bool           `json:"loaded"`
	Timestamp    *int64          `json:"timestamp"`
	Path         *[]wireWaypoint `json:"path"`
	BatteryLevel *float64        `json:"battery_level"`
	State        *string         `json:"state"`
}

type wireWaypoint struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Theta *float64 `json:"theta"`
}

func (w *wireReport) missing() string {
	switch {
	case w.DeviceID == nil:
		return "device_id"
	case w.X == nil:
		return "x"
	case w.Y == nil:
		return "y"
	case w.Theta == nil:
		return "theta"
	case w.Loaded == nil:
		return "loaded"
	case w.Timestamp == nil:
		return "timestamp"
	case w.Path == nil:
		return "path"
	case w.BatteryLevel == nil:
		return "battery_level"
	}
	for i, wp := range *w.Path {
		switch {
		case wp.X == nil:
			return fmt.Sprintf("path[%d].x", i)
		case wp.Y == nil:
			return fmt.Sprintf("path[%d].y", i)
		case wp.Theta == nil:
			return fmt.Sprintf("path[%d].theta", i)
		}
	}
	return ""
}

func (w *wireReport) report() models.Report {
	path := make([]models.Waypoint, len(*w.Path))
	for i, wp := range *w.Path {
		path[i] = models.Waypoint{X: *wp.X, Y: *wp.Y, Theta: *wp.Theta}
	}
	return models.Report{
		DeviceID:     *w.DeviceID,
		X:            *w.X,
		Y:            *w.Y,
		Theta:        *w.Theta,
		Loaded:       *w.Loaded,
		Timestamp:    *w.Timestamp,
		Path:         path,
		BatteryLevel: *w.BatteryLevel,
	}
}

// DecodeReport strictly decodes one report. Missing or null fields, unknown
// fields, trailing data, wrong types and out-of-range values all fail with
// a 2103 error. A state field is accepted and ignored.
func DecodeReport(data []byte) (models.Report, error) {
	var w wireReport

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return models.Report{}, apperr.NewDeserializationFailure(
			fmt.Sprintf("Malformed report: %v", err), err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return models.Report{}, apperr.NewDeserializationFailure(
			"Malformed report: trailing data after JSON object", err)
	}
	if field := w.missing(); field != "" {
		return models.Report{}, apperr.NewDeserializationFailure(
			fmt.Sprintf("Malformed report: missing field %s", field), nil)
	}

	r := w.report()
	if err := r.Validate(); err != nil {
		return models.Report{}, apperr.NewDeserializationFailure(
			fmt.Sprintf("Invalid report: %v", err), err)
	}
	return r, nil
}
