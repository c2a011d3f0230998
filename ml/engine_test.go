package ml

import (
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/telemetry"
)

func nominalSample() *telemetry.Sample {
	return &telemetry.Sample{
		ID:           "s-1",
		Timestamp:    time.Now(),
		DeviceID:     "edge-device-01",
		Temperatures: []float64{25, 25.5, 24.8, 25.2},
		Pressures:    []float64{100, 100.5, 99.8, 100.1},
		Vibrations:   []float64{0.5, 0.6, 0.4},
		Forces:       []float64{50, 51, 49, 50},
		Positions:    []float64{1, 2, 3},
		Power:        map[string]float64{"active": 2000, "power_factor": 0.95},
		DataQuality:  1.0,
	}
}

func cncState() process.State {
	return process.State{
		ID:              "cnc-001",
		Type:            process.TypeCNC,
		Active:          true,
		CycleTime:       170,
		TargetCycleTime: 180,
		Efficiency:      105,
		QualityScore:    95,
	}
}

// syntheticRecords builds n records with a learnable linear relation from
// the temperature-mean feature to every target.
func syntheticRecords(n int) []TrainingRecord {
	rng := rand.New(rand.NewSource(12))
	records := make([]TrainingRecord, 0, n)
	for i := 0; i < n; i++ {
		s := nominalSample()
		shift := rng.Float64() * 20
		for j := range s.Temperatures {
			s.Temperatures[j] += shift
		}
		s.Vibrations = []float64{rng.Float64() * 3, rng.Float64() * 3}

		st := cncState()
		st.CycleTime = 150 + shift
		f := ExtractFeatures(s, st)
		records = append(records, TrainingRecord{
			Features:    f,
			Quality:     100 - shift,
			CycleTime:   150 + shift,
			Maintenance: shift / 40,
			Energy:      2000 + shift*10,
		})
	}
	return records
}

func TestExtractFeaturesLength(t *testing.T) {
	tests := []struct {
		name   string
		sample *telemetry.Sample
	}{
		{"nominal", nominalSample()},
		{"empty series", &telemetry.Sample{DataQuality: 0.5}},
		{"oversized series", &telemetry.Sample{
			Temperatures: make([]float64, 100),
			Pressures:    make([]float64, 100),
			Vibrations:   make([]float64, 100),
			Forces:       make([]float64, 100),
			Positions:    make([]float64, 100),
			DataQuality:  1.0,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ExtractFeatures(tt.sample, cncState())
			assert.Len(t, f, FeatureCount)
		})
	}
}

func TestPredictUntrainedDefaults(t *testing.T) {
	e := NewEngine(slog.Default())
	require.False(t, e.IsTrained())

	pred := e.Predict(nominalSample(), cncState())

	assert.Equal(t, 95.0, pred.PredictedQuality)
	assert.Equal(t, 180.0, pred.PredictedCycleTime)
	assert.Equal(t, 0.1, pred.MaintenanceProbability)
	assert.Equal(t, 2000.0, pred.EnergyForecast)
	assert.LessOrEqual(t, pred.Confidence, 0.5)
}

func TestPredictClampsAlways(t *testing.T) {
	e := NewEngine(slog.Default())

	check := func(p Prediction) {
		assert.GreaterOrEqual(t, p.PredictedQuality, 0.0)
		assert.LessOrEqual(t, p.PredictedQuality, 100.0)
		assert.GreaterOrEqual(t, p.PredictedCycleTime, 10.0)
		assert.GreaterOrEqual(t, p.MaintenanceProbability, 0.0)
		assert.LessOrEqual(t, p.MaintenanceProbability, 1.0)
		assert.GreaterOrEqual(t, p.EnergyForecast, 0.0)
	}

	check(e.Predict(nominalSample(), cncState()))

	_, err := e.Train(syntheticRecords(100))
	require.NoError(t, err)

	// Extreme inputs must still land inside the valid domains.
	s := nominalSample()
	s.Temperatures = []float64{900, 900, 900, 900}
	s.Vibrations = []float64{50, 50, 50}
	check(e.Predict(s, cncState()))
}

func TestTrainRefusesSmallBatch(t *testing.T) {
	e := NewEngine(slog.Default())

	res, err := e.Train(syntheticRecords(10))
	assert.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 10, res.SamplesUsed)
	assert.False(t, e.IsTrained())

	// A prior trained state survives a refused batch.
	_, err = e.Train(syntheticRecords(80))
	require.NoError(t, err)
	_, err = e.Train(syntheticRecords(5))
	assert.Error(t, err)
	assert.True(t, e.IsTrained())
}

func TestTrainFitsAndRaisesConfidence(t *testing.T) {
	e := NewEngine(slog.Default())
	untrained := e.Predict(nominalSample(), cncState())

	res, err := e.Train(syntheticRecords(200))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 200, res.SamplesUsed)
	assert.True(t, e.IsTrained())

	// The synthetic relation is linear, so the fit should be strong.
	assert.Greater(t, res.TestScores[TargetQuality], 0.9)

	trained := e.Predict(nominalSample(), cncState())
	assert.Greater(t, trained.Confidence, untrained.Confidence)
}

func TestPredictLowVarianceDiscount(t *testing.T) {
	e := NewEngine(slog.Default())
	_, err := e.Train(syntheticRecords(100))
	require.NoError(t, err)

	full := e.Predict(nominalSample(), cncState())

	// A near-constant feature vector signals a sensor fault.
	flat := &telemetry.Sample{DataQuality: 0}
	discounted := e.Predict(flat, process.State{ID: "cnc-001", Type: process.TypeCNC})
	assert.Less(t, discounted.Confidence, full.Confidence)
}

func TestBuildRecords(t *testing.T) {
	samples := []*telemetry.Sample{nominalSample(), nil, nominalSample()}
	records := BuildRecords(samples, cncState())

	require.Len(t, records, 2)
	for _, r := range records {
		assert.Len(t, r.Features, FeatureCount)
		assert.GreaterOrEqual(t, r.Quality, 0.0)
		assert.LessOrEqual(t, r.Quality, 100.0)
		assert.Equal(t, 2000.0, r.Energy)
	}
}

func TestBuildRecordsReconstructsStateAtCapture(t *testing.T) {
	state := cncState()
	state.StartedAt = time.Now().Add(-10 * time.Minute)

	samples := make([]*telemetry.Sample, 0, 3)
	for i := 0; i < 3; i++ {
		s := nominalSample()
		s.Timestamp = state.StartedAt.Add(time.Duration(i+1) * time.Minute)
		samples = append(samples, s)
	}

	records := BuildRecords(samples, state)
	require.Len(t, records, 3)

	// The cycle-time target follows each sample's capture time instead
	// of repeating the state handed in at call time.
	assert.InDelta(t, 60, records[0].CycleTime, 1e-9)
	assert.InDelta(t, 120, records[1].CycleTime, 1e-9)
	assert.InDelta(t, 180, records[2].CycleTime, 1e-9)

	// The state-derived features vary with the reconstruction too.
	assert.NotEqual(t, records[0].Features, records[1].Features)
	assert.NotEqual(t, records[1].Features, records[2].Features)
}

func TestBuildRecordsWithoutStartTimeKeepsGivenState(t *testing.T) {
	state := cncState() // no StartedAt recorded
	records := BuildRecords([]*telemetry.Sample{nominalSample()}, state)
	require.Len(t, records, 1)
	assert.Equal(t, state.CycleTime, records[0].CycleTime)
}

func TestAnomalyDetectorSeparatesOutliers(t *testing.T) {
	records := syntheticRecords(200)

	d := newAnomalyDetector()
	x := featureMatrix(records, seq(len(records)))
	sc := fitScaler(x)
	d.fit(sc.transformMatrix(x), rand.New(rand.NewSource(34)))

	inlier := sc.transform(records[0].Features)

	outlierFeatures := make([]float64, FeatureCount)
	for i := range outlierFeatures {
		outlierFeatures[i] = 1e6
	}
	outlier := sc.transform(outlierFeatures)

	assert.Greater(t, d.score(outlier), d.score(inlier))
	assert.Greater(t, d.score(outlier), AnomalyThreshold)
}

func TestPredictConcurrentWithTraining(t *testing.T) {
	e := NewEngine(slog.Default())
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_, _ = e.Train(syntheticRecords(60))
		}
	}()

	for i := 0; i < 200; i++ {
		p := e.Predict(nominalSample(), cncState())
		assert.GreaterOrEqual(t, p.PredictedQuality, 0.0)
		assert.LessOrEqual(t, p.PredictedQuality, 100.0)
	}
	<-done
}

func seq(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
