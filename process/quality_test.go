package process

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/edgetwin/telemetry"
)

func nominalSample() *telemetry.Sample {
	return &telemetry.Sample{
		DeviceID:     "dev",
		Temperatures: []float64{20, 20, 20, 20},
		Pressures:    []float64{1.0, 1.0},
		Vibrations:   []float64{0, 0, 0},
		Forces:       []float64{100, 100},
		DataQuality:  1.0,
	}
}

func TestScoreNominalIsPerfect(t *testing.T) {
	assert.Equal(t, 100.0, Score(nominalSample(), TypeCNC))
}

func TestScoreVibrationPenalty(t *testing.T) {
	s := nominalSample()
	s.Vibrations = []float64{5.0, 5.0, 5.0}

	// mean 5.0 -> penalty min(25, 5*5) = 25
	assert.InDelta(t, 75.0, Score(s, TypeCNC), 1e-9)
}

func TestScoreVibrationBelowThresholdNoPenalty(t *testing.T) {
	s := nominalSample()
	s.Vibrations = []float64{1.9, 1.9}
	assert.Equal(t, 100.0, Score(s, TypeCNC))
}

func TestScoreMonotoneInVariance(t *testing.T) {
	prev := 101.0
	for _, spread := range []float64{0, 5, 10, 20, 40} {
		s := nominalSample()
		s.Temperatures = []float64{20 - spread, 20, 20, 20 + spread}
		got := Score(s, TypeAssembly)
		assert.LessOrEqual(t, got, prev, "quality must not increase with temperature spread %v", spread)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
		prev = got
	}
}

func TestScoreScaledByDataQuality(t *testing.T) {
	s := nominalSample()
	s.DataQuality = 0.5
	assert.Equal(t, 50.0, Score(s, TypeCNC))
}

func TestScoreClampedToZero(t *testing.T) {
	s := nominalSample()
	s.Temperatures = []float64{-500, 0, 500, 1000}
	s.Vibrations = []float64{100, 100}
	s.Pressures = []float64{0, 500}
	s.Forces = []float64{0, 1000}
	got := Score(s, TypeCNC)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 100.0)
}

func TestScoreCNCForceInstability(t *testing.T) {
	s := nominalSample()
	s.Forces = []float64{50, 150} // std ~70.7, well over the limit

	cnc := Score(s, TypeCNC)
	assembly := Score(s, TypeAssembly)
	assert.Less(t, cnc, assembly, "force instability penalizes CNC only")
}

func TestScoreInjectionMoldingPressureWindow(t *testing.T) {
	inWindow := nominalSample()
	inWindow.Pressures = []float64{100, 100}
	assert.Equal(t, 100.0, Score(inWindow, TypeInjectionMolding))

	low := nominalSample()
	low.Pressures = []float64{50, 50}
	assert.Less(t, Score(low, TypeInjectionMolding), 100.0)

	high := nominalSample()
	high.Pressures = []float64{140, 140}
	assert.Less(t, Score(high, TypeInjectionMolding), 100.0)
}

func TestScoreNilSample(t *testing.T) {
	assert.Equal(t, 0.0, Score(nil, TypeCNC))
}
