package optimize

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/edgetwin/ml"
)

func testPrediction(id string) ml.Prediction {
	return ml.Prediction{
		ProcessID:          id,
		PredictedQuality:   90,
		PredictedCycleTime: 180,
		EnergyForecast:     2000,
		Confidence:         0.8,
		Timestamp:          time.Now(),
	}
}

func TestOptimizeStaysInBounds(t *testing.T) {
	o := New(slog.Default())

	res, err := o.Optimize(testPrediction("cnc-001"))
	require.NoError(t, err)

	assert.Equal(t, "cnc-001", res.ProcessID)
	assert.GreaterOrEqual(t, res.SpeedFactor, FactorMin)
	assert.LessOrEqual(t, res.SpeedFactor, FactorMax)
	assert.GreaterOrEqual(t, res.FeedFactor, FactorMin)
	assert.LessOrEqual(t, res.FeedFactor, FactorMax)
}

func TestOptimizeImprovesOnNeutralFactors(t *testing.T) {
	o := New(slog.Default())
	pred := testPrediction("cnc-001")

	res, err := o.Optimize(pred)
	require.NoError(t, err)

	neutral := objective(pred, 1.0, 1.0)
	assert.LessOrEqual(t, res.Objective, neutral+1e-6)
}

func TestObjectiveMonotonicity(t *testing.T) {
	pred := testPrediction("cnc-001")

	// Simulated cycle time falls as speed rises, energy rises with speed.
	lo := objective(pred, 0.6, 1.0)
	hi := objective(pred, 1.4, 1.0)
	assert.NotEqual(t, lo, hi)

	// Quality term: higher speed lowers simulated quality.
	qLo := pred.PredictedQuality * (1 - 0.15*(0.6-1))
	qHi := pred.PredictedQuality * (1 - 0.15*(1.4-1))
	assert.Greater(t, qLo, qHi)
}

func TestOptimizeAllIsolatesFailures(t *testing.T) {
	o := New(slog.Default())

	preds := map[string]ml.Prediction{
		"cnc-001":     testPrediction("cnc-001"),
		"printer-001": testPrediction("printer-001"),
	}

	results := o.OptimizeAll(preds)
	assert.Len(t, results, 2)
	for id, res := range results {
		assert.Equal(t, id, res.ProcessID)
	}
}

func TestOptimizeZeroPrediction(t *testing.T) {
	o := New(slog.Default())

	// An all-zero prediction still yields an in-bounds recommendation.
	res, err := o.Optimize(ml.Prediction{ProcessID: "assembly-001"})
	if err == nil {
		assert.GreaterOrEqual(t, res.SpeedFactor, FactorMin)
		assert.LessOrEqual(t, res.SpeedFactor, FactorMax)
	}
}
