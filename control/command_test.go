package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"physics feedback", PhysicsFeedback{
			ProcessID: "cnc-001", MaxStress: 1.2e8, SafetyFactor: 2.1,
			MeanTemp: 45.3, Timestamp: time.Now(),
		}},
		{"prediction update", PredictionUpdate{
			ProcessID: "printer-001", PredictedQuality: 92.5,
			PredictedCycleTime: 3500, Confidence: 0.8, Timestamp: time.Now(),
		}},
		{"optimization update", OptimizationUpdate{
			ProcessID: "molding-001", SpeedFactor: 1.2, FeedFactor: 0.9,
			Objective: -30.5, Timestamp: time.Now(),
		}},
		{"start process", StartProcess{ProcessID: "cnc-001", Timestamp: time.Now()}},
		{"stop process", StopProcess{ProcessID: "cnc-001", Timestamp: time.Now()}},
		{"set parameters", SetParameters{
			ProcessID:  "assembly-001",
			Parameters: map[string]float64{"speed_factor": 1.1},
			Timestamp:  time.Now(),
		}},
		{"emergency stop", EmergencyStop{Reason: "overtemperature", Timestamp: time.Now()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.cmd)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.cmd.Kind(), decoded.Kind())
		})
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	_, err := Encode(StartProcess{})
	assert.Error(t, err)

	_, err = Encode(OptimizationUpdate{ProcessID: "cnc-001", SpeedFactor: 3.0, FeedFactor: 1.0})
	assert.Error(t, err)

	_, err = Encode(SetParameters{ProcessID: "cnc-001"})
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"reboot_universe","payload":{}}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
