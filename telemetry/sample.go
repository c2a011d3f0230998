// Package telemetry defines the sensor sample model, the inbound frame codec,
// and the bounded sample buffer shared by the scheduled loops.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/c360/edgetwin/errors"
)

// Sample is one decoded telemetry frame. A Sample is immutable once created;
// consumers receive it by pointer and must not modify the slices.
type Sample struct {
	ID           string             `json:"id"`
	Timestamp    time.Time          `json:"timestamp"`
	DeviceID     string             `json:"device_id"`
	Temperatures []float64          `json:"temperatures"`
	Pressures    []float64          `json:"pressures"`
	Vibrations   []float64          `json:"vibrations"`
	Forces       []float64          `json:"forces"`
	Positions    []float64          `json:"positions"`
	Power        map[string]float64 `json:"power"`
	DataQuality  float64            `json:"data_quality"`
}

// Frame is the inbound wire representation of one sensor cycle.
type Frame struct {
	Timestamp    float64            `json:"timestamp"` // unix seconds, fractional
	DeviceID     string             `json:"device_id"`
	Temperatures []float64          `json:"temperatures"`
	Pressures    []float64          `json:"pressures"`
	Vibration    VibrationFrame     `json:"vibration"`
	Power        map[string]float64 `json:"power"`
	Positions    []float64          `json:"positions"`
	Forces       []float64          `json:"forces"`
	DataQuality  float64            `json:"data_quality"`
}

// VibrationFrame carries accelerometer readings inside a frame.
type VibrationFrame struct {
	Accelerations []float64 `json:"accelerations"`
}

// DecodeFrame parses and validates a raw JSON telemetry frame into a Sample.
// Non-finite readings are rejected rather than admitted into shared state.
func DecodeFrame(data []byte) (*Sample, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, errors.WrapInvalid(err, "telemetry", "DecodeFrame", "json parse")
	}
	return SampleFromFrame(frame)
}

// SampleFromFrame validates a decoded frame and builds an immutable Sample.
func SampleFromFrame(frame Frame) (*Sample, error) {
	if frame.DeviceID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidFrame,
			"telemetry", "SampleFromFrame", "device id validation")
	}

	series := map[string][]float64{
		"temperatures": frame.Temperatures,
		"pressures":    frame.Pressures,
		"vibrations":   frame.Vibration.Accelerations,
		"forces":       frame.Forces,
		"positions":    frame.Positions,
	}
	for name, values := range series {
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.WrapInvalid(
					fmt.Errorf("%w in %s", errors.ErrNonFiniteData, name),
					"telemetry", "SampleFromFrame", "finite check")
			}
		}
	}
	for key, v := range frame.Power {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w in power[%s]", errors.ErrNonFiniteData, key),
				"telemetry", "SampleFromFrame", "finite check")
		}
	}

	ts := time.Now()
	if frame.Timestamp > 0 {
		sec, frac := math.Modf(frame.Timestamp)
		ts = time.Unix(int64(sec), int64(frac*1e9))
	}

	quality := frame.DataQuality
	if math.IsNaN(quality) || quality < 0 {
		quality = 0
	} else if quality > 1 {
		quality = 1
	}

	power := make(map[string]float64, len(frame.Power))
	for k, v := range frame.Power {
		power[k] = v
	}

	return &Sample{
		ID:           uuid.NewString(),
		Timestamp:    ts,
		DeviceID:     frame.DeviceID,
		Temperatures: append([]float64(nil), frame.Temperatures...),
		Pressures:    append([]float64(nil), frame.Pressures...),
		Vibrations:   append([]float64(nil), frame.Vibration.Accelerations...),
		Forces:       append([]float64(nil), frame.Forces...),
		Positions:    append([]float64(nil), frame.Positions...),
		Power:        power,
		DataQuality:  quality,
	}, nil
}

// ActivePower returns the active power draw reported with the sample, or 0.
func (s *Sample) ActivePower() float64 {
	if s == nil || s.Power == nil {
		return 0
	}
	return s.Power["active"]
}

// PowerFactor returns the reported power factor, defaulting to 1 when absent.
func (s *Sample) PowerFactor() float64 {
	if s == nil || s.Power == nil {
		return 1
	}
	if pf, ok := s.Power["factor"]; ok {
		return pf
	}
	return 1
}

// Age returns how old the sample is relative to now.
func (s *Sample) Age() time.Duration {
	return time.Since(s.Timestamp)
}
