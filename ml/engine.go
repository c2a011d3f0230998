package ml

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/telemetry"
)

// Training and prediction bounds.
const (
	// MinTrainingSamples is the smallest batch Train accepts.
	MinTrainingSamples = 50

	testSplitFraction = 0.2

	minCycleTime = 10.0

	// untrainedConfidence is reported before any model is fitted.
	untrainedConfidence = 0.3

	// lowVarianceThreshold flags a near-constant feature vector as a
	// possible sensor fault and discounts confidence.
	lowVarianceThreshold = 1e-3

	anomalyQualityDiscount = 0.8
)

// Target names used in training score maps.
const (
	TargetQuality     = "quality"
	TargetCycleTime   = "cycle_time"
	TargetMaintenance = "maintenance"
	TargetEnergy      = "energy"
)

var targetNames = []string{TargetQuality, TargetCycleTime, TargetMaintenance, TargetEnergy}

// Prediction is one inference output for a process. Values are always
// clamped to their valid domains, trained or not.
type Prediction struct {
	ProcessID              string    `json:"process_id"`
	PredictedQuality       float64   `json:"predicted_quality"`        // 0..100
	PredictedCycleTime     float64   `json:"predicted_cycle_time"`     // >= 10
	PredictedDefectRate    float64   `json:"predicted_defect_rate"`    // 0..1
	MaintenanceProbability float64   `json:"maintenance_probability"`  // 0..1
	EnergyForecast         float64   `json:"energy_forecast"`          // >= 0
	Confidence             float64   `json:"confidence"`               // 0..1
	Anomaly                bool      `json:"anomaly"`
	AnomalyScore           float64   `json:"anomaly_score"`
	Timestamp              time.Time `json:"timestamp"`
}

// TrainingRecord pairs one feature vector with its observed targets.
type TrainingRecord struct {
	Features    []float64
	Quality     float64
	CycleTime   float64
	Maintenance float64
	Energy      float64
}

// TrainingResult reports one training run.
type TrainingResult struct {
	Success      bool               `json:"success"`
	SamplesUsed  int                `json:"samples_used"`
	TrainScores  map[string]float64 `json:"train_scores,omitempty"`
	TestScores   map[string]float64 `json:"test_scores,omitempty"`
	Duration     time.Duration      `json:"duration"`
	Error        string             `json:"error,omitempty"`
}

type targetModel struct {
	scaler    *scaler
	regressor *regressor
}

// Engine predicts process outcomes from sensor features and retrains on
// demand. Safe for concurrent use: inference holds a read lock, training
// swaps the fitted models under the write lock.
type Engine struct {
	logger     *slog.Logger
	minSamples int

	mu         sync.RWMutex
	models     map[string]*targetModel
	detector   *anomalyDetector
	trained    bool
	confidence float64
	rng        *rand.Rand
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithMinTrainingSamples overrides the smallest batch Train accepts.
func WithMinTrainingSamples(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.minSamples = n
		}
	}
}

// NewEngine creates an untrained engine.
func NewEngine(logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:     logger.With("component", "ml-engine"),
		minSamples: MinTrainingSamples,
		models:     make(map[string]*targetModel),
		detector:   newAnomalyDetector(),
		confidence: untrainedConfidence,
		rng:        rand.New(rand.NewSource(int64(rand.Uint64()))),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsTrained reports whether a training run has fitted the models.
func (e *Engine) IsTrained() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trained
}

// Predict produces a clamped prediction for the process from the sample.
// Untrained engines return the process's own quality and target cycle time
// with conservative constants and low confidence.
func (e *Engine) Predict(sample *telemetry.Sample, state process.State) Prediction {
	features := ExtractFeatures(sample, state)

	e.mu.RLock()
	defer e.mu.RUnlock()

	pred := Prediction{
		ProcessID: state.ID,
		Timestamp: time.Now(),
	}

	if !e.trained {
		pred.PredictedQuality = clampRange(state.QualityScore, 0, 100)
		pred.PredictedCycleTime = math.Max(minCycleTime, state.TargetCycleTime)
		pred.MaintenanceProbability = 0.1
		pred.EnergyForecast = math.Max(0, sample.ActivePower())
		pred.PredictedDefectRate = clampRange((100-pred.PredictedQuality)/100, 0, 1)
		pred.Confidence = untrainedConfidence
		return pred
	}

	pred.PredictedQuality = clampRange(e.predictTarget(TargetQuality, features), 0, 100)
	pred.PredictedCycleTime = math.Max(minCycleTime, e.predictTarget(TargetCycleTime, features))
	pred.MaintenanceProbability = clampRange(e.predictTarget(TargetMaintenance, features), 0, 1)
	pred.EnergyForecast = math.Max(0, e.predictTarget(TargetEnergy, features))

	pred.AnomalyScore = e.detector.score(e.models[TargetQuality].scaler.transform(features))
	if pred.AnomalyScore > AnomalyThreshold {
		pred.Anomaly = true
		pred.PredictedQuality *= anomalyQualityDiscount
		e.logger.Warn("anomalous feature vector, discounting predicted quality",
			"process_id", state.ID, "anomaly_score", pred.AnomalyScore)
	}

	pred.PredictedDefectRate = clampRange((100-pred.PredictedQuality)/100, 0, 1)

	pred.Confidence = e.confidence
	if featureVariance(features) < lowVarianceThreshold {
		pred.Confidence *= 0.5
		e.logger.Warn("abnormally low feature variance, discounting confidence",
			"process_id", state.ID)
	}
	return pred
}

func (e *Engine) predictTarget(target string, features []float64) float64 {
	m, ok := e.models[target]
	if !ok {
		return 0
	}
	out := m.regressor.predict(m.scaler.transform(features))
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0
	}
	return out
}

// Train fits the per-target scalers and regressors and the anomaly
// detector from the batch. Undersized batches are refused and the
// existing models are left untouched.
func (e *Engine) Train(records []TrainingRecord) (TrainingResult, error) {
	start := time.Now()

	if len(records) < e.minSamples {
		res := TrainingResult{
			Success:     false,
			SamplesUsed: len(records),
			Duration:    time.Since(start),
			Error:       "insufficient training samples",
		}
		return res, errors.WrapInvalid(errors.ErrInsufficientSamples,
			"Engine", "Train", "batch size check")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Shuffled train/test split.
	idx := e.rng.Perm(len(records))
	testN := int(float64(len(records)) * testSplitFraction)
	if testN < 1 {
		testN = 1
	}
	testIdx, trainIdx := idx[:testN], idx[testN:]

	trainX := featureMatrix(records, trainIdx)
	testX := featureMatrix(records, testIdx)

	targets := map[string]func(TrainingRecord) float64{
		TargetQuality:     func(r TrainingRecord) float64 { return r.Quality },
		TargetMaintenance: func(r TrainingRecord) float64 { return r.Maintenance },
		TargetEnergy:      func(r TrainingRecord) float64 { return r.Energy },
		TargetCycleTime:   func(r TrainingRecord) float64 { return r.CycleTime },
	}

	models := make(map[string]*targetModel, len(targets))
	trainScores := make(map[string]float64, len(targets))
	testScores := make(map[string]float64, len(targets))

	for _, name := range targetNames {
		get := targets[name]
		trainY := targetVector(records, trainIdx, get)
		testY := targetVector(records, testIdx, get)

		sc := fitScaler(trainX)
		reg, err := fitRegressor(sc.transformMatrix(trainX), trainY)
		if err != nil {
			res := TrainingResult{
				Success:     false,
				SamplesUsed: len(records),
				Duration:    time.Since(start),
				Error:       err.Error(),
			}
			return res, errors.Wrap(err, "Engine", "Train", "fitting "+name+" model")
		}
		models[name] = &targetModel{scaler: sc, regressor: reg}

		trainScores[name] = scoreModel(models[name], trainX, trainY)
		testScores[name] = scoreModel(models[name], testX, testY)
	}

	detector := newAnomalyDetector()
	detector.fit(models[TargetQuality].scaler.transformMatrix(trainX), e.rng)

	e.models = models
	e.detector = detector
	e.trained = true
	e.confidence = clampRange(testScores[TargetQuality], 0, 1)

	e.logger.Info("training complete",
		"samples", len(records),
		"test_quality_r2", testScores[TargetQuality],
		"confidence", e.confidence)

	return TrainingResult{
		Success:     true,
		SamplesUsed: len(records),
		TrainScores: trainScores,
		TestScores:  testScores,
		Duration:    time.Since(start),
	}, nil
}

func scoreModel(m *targetModel, x *mat.Dense, y []float64) float64 {
	rows, _ := x.Dims()
	predicted := make([]float64, rows)
	for i := 0; i < rows; i++ {
		predicted[i] = m.regressor.predict(m.scaler.transform(mat.Row(nil, i, x)))
	}
	return rSquared(predicted, y)
}

func featureMatrix(records []TrainingRecord, idx []int) *mat.Dense {
	x := mat.NewDense(len(idx), FeatureCount, nil)
	for i, r := range idx {
		f := records[r].Features
		for j := 0; j < FeatureCount && j < len(f); j++ {
			x.Set(i, j, f[j])
		}
	}
	return x
}

func targetVector(records []TrainingRecord, idx []int, get func(TrainingRecord) float64) []float64 {
	y := make([]float64, len(idx))
	for i, r := range idx {
		y[i] = get(records[r])
	}
	return y
}

func featureVariance(features []float64) float64 {
	if len(features) < 2 {
		return 0
	}
	return stat.Variance(features, nil)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
