package runtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/edgetwin/control"
	"github.com/c360/edgetwin/ml"
	"github.com/c360/edgetwin/optimize"
	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/telemetry"
)

func testRuntime(t *testing.T) *Runtime {
	t.Helper()
	logger := slog.Default()
	r := New(Deps{
		Buffer:    telemetry.NewSampleBuffer(1000),
		Registry:  process.NewRegistry(process.DefaultCatalog(), logger),
		MLEngine:  ml.NewEngine(logger),
		Optimizer: optimize.New(logger),
		Logger:    logger,
		Periods: Periods{
			Ingest:    5 * time.Millisecond,
			Physics:   10 * time.Millisecond,
			Inference: 20 * time.Millisecond,
			Monitor:   time.Second,
		},
	})
	require.NoError(t, r.Initialize())
	return r
}

func calmSample() *telemetry.Sample {
	return &telemetry.Sample{
		ID:           "s-calm",
		Timestamp:    time.Now(),
		DeviceID:     "edge-device-01",
		Temperatures: []float64{20, 20, 20, 20},
		Pressures:    []float64{100, 100, 100, 100},
		Vibrations:   []float64{0, 0, 0},
		Forces:       []float64{0, 0, 0, 0},
		Power:        map[string]float64{"active": 1500, "power_factor": 0.95},
		DataQuality:  1.0,
	}
}

func TestInitializeRequiresDeps(t *testing.T) {
	r := New(Deps{})
	assert.Error(t, r.Initialize())
}

func TestStartStop(t *testing.T) {
	r := testRuntime(t)

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background())) // idempotent
	assert.True(t, r.Health().Healthy)

	require.NoError(t, r.Stop(2*time.Second))
	require.NoError(t, r.Stop(2*time.Second)) // idempotent
	assert.False(t, r.Health().Healthy)
}

// Feeding calm samples to an active CNC process must produce a perfect
// quality score, a thermal field pinned to the 20 degC boundaries, and
// untrained-default predictions.
func TestEndToEndCalmScenario(t *testing.T) {
	r := testRuntime(t)
	require.NoError(t, r.StartProcess("cnc-001"))

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Buffer().Append(calmSample()))
	}

	require.NoError(t, r.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, r.Stop(2*time.Second))

	st, ok := r.Registry().Get("cnc-001")
	require.True(t, ok)
	assert.Equal(t, 100.0, st.QualityScore)

	phys, ok := r.PhysicsState("cnc-001")
	require.True(t, ok)
	assert.False(t, phys.Degraded)
	assert.InDelta(t, 20.0, phys.Thermal.Field.At(0, 25), 1e-9)
	assert.Less(t, phys.Thermal.Mean, 25.0)

	pred, ok := r.Prediction("cnc-001")
	require.True(t, ok)
	assert.Equal(t, st.QualityScore, pred.PredictedQuality)
	assert.Equal(t, st.TargetCycleTime, pred.PredictedCycleTime)
	assert.LessOrEqual(t, pred.Confidence, 0.5)
}

func TestVibrationDropsQuality(t *testing.T) {
	r := testRuntime(t)
	require.NoError(t, r.StartProcess("cnc-001"))

	noisy := calmSample()
	noisy.Vibrations = []float64{5, 5, 5}
	require.NoError(t, r.Buffer().Append(noisy))

	require.NoError(t, r.ingestTick())

	st, ok := r.Registry().Get("cnc-001")
	require.True(t, ok)
	assert.InDelta(t, 75.0, st.QualityScore, 1e-9)
}

func TestTrainModelsRequiresActiveProcess(t *testing.T) {
	r := testRuntime(t)

	res, err := r.TrainModels()
	assert.Error(t, err)
	assert.False(t, res.Success)
}

func TestTrainModelsSmallBufferFails(t *testing.T) {
	r := testRuntime(t)
	require.NoError(t, r.StartProcess("cnc-001"))

	for i := 0; i < 10; i++ {
		require.NoError(t, r.Buffer().Append(calmSample()))
	}

	res, err := r.TrainModels()
	assert.Error(t, err)
	assert.False(t, res.Success)
	assert.False(t, r.MLTrained())
}

func TestTrainModelsLargeBufferSucceeds(t *testing.T) {
	r := testRuntime(t)
	require.NoError(t, r.StartProcess("cnc-001"))

	for i := 0; i < 120; i++ {
		s := calmSample()
		s.Temperatures = []float64{20 + float64(i%30), 20, 20, 20}
		s.Vibrations = []float64{float64(i%5) * 0.8}
		require.NoError(t, r.Buffer().Append(s))
	}

	res, err := r.TrainModels()
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, r.MLTrained())
}

func TestOptimizeProcessesAppliesParameters(t *testing.T) {
	r := testRuntime(t)
	require.NoError(t, r.StartProcess("cnc-001"))
	require.NoError(t, r.Buffer().Append(calmSample()))

	require.NoError(t, r.ingestTick())
	require.NoError(t, r.inferenceTick())

	results := r.OptimizeProcesses()
	require.Contains(t, results, "cnc-001")

	st, _ := r.Registry().Get("cnc-001")
	speed, ok := st.Parameters["speed_factor"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, speed, optimize.FactorMin)
	assert.LessOrEqual(t, speed, optimize.FactorMax)

	stored := r.Optimizations()
	assert.Contains(t, stored, "cnc-001")
}

func TestOptimizeProcessesSkipsStoppedProcesses(t *testing.T) {
	r := testRuntime(t)
	require.NoError(t, r.StartProcess("cnc-001"))
	require.NoError(t, r.Buffer().Append(calmSample()))

	require.NoError(t, r.ingestTick())
	require.NoError(t, r.inferenceTick())
	require.Contains(t, r.Predictions(), "cnc-001")

	// The prediction snapshot survives the stop, but a deactivated
	// process must not be optimized from it.
	require.NoError(t, r.StopProcess("cnc-001"))

	results := r.OptimizeProcesses()
	assert.NotContains(t, results, "cnc-001")
	assert.NotContains(t, r.Optimizations(), "cnc-001")

	st, _ := r.Registry().Get("cnc-001")
	_, ok := st.Parameters["speed_factor"]
	assert.False(t, ok)
}

func TestHandleCommands(t *testing.T) {
	r := testRuntime(t)

	require.NoError(t, r.HandleCommand(&control.StartProcess{ProcessID: "cnc-001"}))
	st, _ := r.Registry().Get("cnc-001")
	assert.True(t, st.Active)

	require.NoError(t, r.HandleCommand(&control.SetParameters{
		ProcessID:  "cnc-001",
		Parameters: map[string]float64{"speed_factor": 1.2},
	}))
	st, _ = r.Registry().Get("cnc-001")
	assert.Equal(t, 1.2, st.Parameters["speed_factor"])

	require.NoError(t, r.HandleCommand(&control.StopProcess{ProcessID: "cnc-001"}))
	st, _ = r.Registry().Get("cnc-001")
	assert.False(t, st.Active)

	err := r.HandleCommand(&control.PhysicsFeedback{ProcessID: "cnc-001"})
	assert.Error(t, err)
}

func TestEmergencyStopDeactivatesAll(t *testing.T) {
	r := testRuntime(t)
	require.NoError(t, r.StartProcess("cnc-001"))
	require.NoError(t, r.StartProcess("printer-001"))

	r.EmergencyStop("overtemperature")
	assert.Equal(t, 0, r.Registry().ActiveCount())
}

func TestSnapshotAlwaysAvailable(t *testing.T) {
	r := testRuntime(t)

	// Before start, with an empty buffer, the snapshot still answers.
	s := r.Snapshot()
	assert.False(t, s.Running)
	assert.Len(t, s.Processes, 4)

	require.NoError(t, r.StartProcess("cnc-001"))
	s = r.Snapshot()
	assert.Equal(t, 1, s.ActiveProcesses)
}

// Concurrent readers against the running loops must always observe
// complete, valid snapshots.
func TestConcurrentReadersUnderLoad(t *testing.T) {
	r := testRuntime(t)
	require.NoError(t, r.StartProcess("cnc-001"))
	require.NoError(t, r.StartProcess("molding-001"))
	require.NoError(t, r.Start(context.Background()))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Writer feeding samples.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = r.Buffer().Append(calmSample())
				time.Sleep(time.Millisecond)
			}
		}
	}()

	// Readers hammering every accessor.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					if p, ok := r.Prediction("cnc-001"); ok {
						assert.GreaterOrEqual(t, p.PredictedQuality, 0.0)
						assert.LessOrEqual(t, p.PredictedQuality, 100.0)
					}
					if s, ok := r.PhysicsState("cnc-001"); ok {
						assert.NotNil(t, s.Thermal.Field)
					}
					snap := r.Snapshot()
					assert.LessOrEqual(t, snap.BufferLen, 1000)
				}
			}
		}()
	}

	time.Sleep(300 * time.Millisecond)
	close(stop)
	wg.Wait()
	require.NoError(t, r.Stop(2*time.Second))
}
