package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	raw := []byte(`{
		"timestamp": 1700000000.5,
		"device_id": "cnc-01",
		"temperatures": [20, 21, 19.5, 20.2],
		"pressures": [1.0, 1.1],
		"vibration": {"accelerations": [0.1, 0.2, 0.15]},
		"power": {"active": 1500, "factor": 0.92},
		"positions": [10.5, 3.2, 0.0],
		"forces": [100, 102],
		"data_quality": 0.97
	}`)

	sample, err := DecodeFrame(raw)
	require.NoError(t, err)

	assert.NotEmpty(t, sample.ID)
	assert.Equal(t, "cnc-01", sample.DeviceID)
	assert.Equal(t, []float64{20, 21, 19.5, 20.2}, sample.Temperatures)
	assert.Equal(t, []float64{0.1, 0.2, 0.15}, sample.Vibrations)
	assert.Equal(t, 1500.0, sample.ActivePower())
	assert.Equal(t, 0.92, sample.PowerFactor())
	assert.Equal(t, 0.97, sample.DataQuality)
	assert.Equal(t, time.Unix(1700000000, 5e8).Unix(), sample.Timestamp.Unix())
}

func TestDecodeFrameRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeFrame([]byte(`{not json`))
	require.Error(t, err)
}

func TestDecodeFrameRejectsNonFinite(t *testing.T) {
	// JSON cannot carry NaN/Inf literals, so exercise the validation directly.
	frame := Frame{
		DeviceID:     "cnc-01",
		Temperatures: []float64{20, inf()},
		DataQuality:  1.0,
	}
	_, err := SampleFromFrame(frame)
	require.Error(t, err)
}

func inf() float64 {
	var zero float64
	return 1 / zero
}

func TestSampleFromFrameRequiresDeviceID(t *testing.T) {
	_, err := SampleFromFrame(Frame{DataQuality: 1.0})
	require.Error(t, err)
}

func TestSampleFromFrameClampsDataQuality(t *testing.T) {
	s, err := SampleFromFrame(Frame{DeviceID: "d", DataQuality: 1.7})
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.DataQuality)

	s, err = SampleFromFrame(Frame{DeviceID: "d", DataQuality: -0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.DataQuality)
}

func TestSampleFromFrameCopiesSlices(t *testing.T) {
	temps := []float64{20, 21}
	frame := Frame{DeviceID: "d", Temperatures: temps, DataQuality: 1}

	s, err := SampleFromFrame(frame)
	require.NoError(t, err)

	temps[0] = 999
	assert.Equal(t, 20.0, s.Temperatures[0], "sample must own its readings")
}

func TestPowerDefaults(t *testing.T) {
	s := &Sample{}
	assert.Equal(t, 0.0, s.ActivePower())
	assert.Equal(t, 1.0, s.PowerFactor())
}

func makeSample(i int) *Sample {
	return &Sample{
		ID:        fmt.Sprintf("s-%d", i),
		Timestamp: time.Now(),
		DeviceID:  "dev",
	}
}
