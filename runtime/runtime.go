// Package runtime owns the shared state of the digital twin and drives the
// four periodic loops: ingestion, physics, inference, and monitoring. All
// shared snapshots follow a replace-whole-value discipline: writers build a
// complete new value and swap it in under the lock, readers get copies.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/edgetwin/component"
	"github.com/c360/edgetwin/control"
	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/health"
	"github.com/c360/edgetwin/metric"
	"github.com/c360/edgetwin/ml"
	"github.com/c360/edgetwin/optimize"
	"github.com/c360/edgetwin/physics"
	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/publisher"
	"github.com/c360/edgetwin/telemetry"
)

// Loop periods. Each loop self-paces: it measures its own work and sleeps
// the remainder of the period, so a slow tick delays only itself.
const (
	DefaultIngestPeriod    = 50 * time.Millisecond
	DefaultPhysicsPeriod   = 100 * time.Millisecond
	DefaultInferencePeriod = time.Second
	DefaultMonitorPeriod   = 10 * time.Second
)

// Periods configures the four loop intervals.
type Periods struct {
	Ingest    time.Duration
	Physics   time.Duration
	Inference time.Duration
	Monitor   time.Duration
}

// DefaultPeriods returns the standard loop intervals.
func DefaultPeriods() Periods {
	return Periods{
		Ingest:    DefaultIngestPeriod,
		Physics:   DefaultPhysicsPeriod,
		Inference: DefaultInferencePeriod,
		Monitor:   DefaultMonitorPeriod,
	}
}

func (p Periods) withDefaults() Periods {
	d := DefaultPeriods()
	if p.Ingest <= 0 {
		p.Ingest = d.Ingest
	}
	if p.Physics <= 0 {
		p.Physics = d.Physics
	}
	if p.Inference <= 0 {
		p.Inference = d.Inference
	}
	if p.Monitor <= 0 {
		p.Monitor = d.Monitor
	}
	return p
}

// Deps carries everything a Runtime needs.
type Deps struct {
	Buffer    *telemetry.SampleBuffer
	Registry  *process.Registry
	MLEngine  *ml.Engine
	Optimizer *optimize.Optimizer
	Publisher *publisher.Publisher
	Logger    *slog.Logger
	Metrics   *metric.CoreMetrics
	Health    *health.Monitor
	Periods   Periods
}

// Runtime is the explicit context object owning all shared twin state.
type Runtime struct {
	buffer    *telemetry.SampleBuffer
	registry  *process.Registry
	mlEngine  *ml.Engine
	optimizer *optimize.Optimizer
	pub       *publisher.Publisher
	logger    *slog.Logger
	metrics   *metric.CoreMetrics
	health    *health.Monitor
	periods   Periods

	// engines is touched only by the physics loop after Start.
	engines map[string]*physics.Engine

	// Snapshot maps guarded by mu. Values are immutable once stored.
	mu            sync.RWMutex
	physicsStates map[string]physics.State
	predictions   map[string]ml.Prediction
	optimizations map[string]optimize.Result

	running   atomic.Bool
	startTime time.Time
	shutdown  chan struct{}
	wg        sync.WaitGroup
	lifeMu    sync.Mutex
}

var _ component.Lifecycle = (*Runtime)(nil)

// New creates a runtime. Buffer, registry, ML engine, and optimizer are
// required; publisher, metrics, and health are optional.
func New(deps Deps) *Runtime {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		buffer:        deps.Buffer,
		registry:      deps.Registry,
		mlEngine:      deps.MLEngine,
		optimizer:     deps.Optimizer,
		pub:           deps.Publisher,
		logger:        logger.With("component", "runtime"),
		metrics:       deps.Metrics,
		health:        deps.Health,
		periods:       deps.Periods.withDefaults(),
		engines:       make(map[string]*physics.Engine),
		physicsStates: make(map[string]physics.State),
		predictions:   make(map[string]ml.Prediction),
		optimizations: make(map[string]optimize.Result),
	}
}

// Meta implements component.Discoverable.
func (r *Runtime) Meta() component.Metadata {
	return component.Metadata{
		Name:        "runtime",
		Type:        "core",
		Description: "digital twin scheduler and shared state owner",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (r *Runtime) Health() component.HealthStatus {
	h := component.HealthStatus{
		Healthy:   r.running.Load(),
		LastCheck: time.Now(),
	}
	if !r.startTime.IsZero() {
		h.Uptime = time.Since(r.startTime)
	}
	return h
}

// Initialize validates the wiring.
func (r *Runtime) Initialize() error {
	if r.buffer == nil || r.registry == nil || r.mlEngine == nil || r.optimizer == nil {
		return errors.WrapInvalid(fmt.Errorf("missing required dependency"),
			"runtime", "Initialize", "dependency validation")
	}
	return nil
}

// Start launches the four loops. Idempotent.
func (r *Runtime) Start(ctx context.Context) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if r.running.Load() {
		return nil
	}

	r.shutdown = make(chan struct{})
	r.running.Store(true)
	r.startTime = time.Now()

	loops := []struct {
		name   string
		period time.Duration
		tick   func() error
	}{
		{"ingest", r.periods.Ingest, r.ingestTick},
		{"physics", r.periods.Physics, r.physicsTick},
		{"inference", r.periods.Inference, r.inferenceTick},
		{"monitor", r.periods.Monitor, r.monitorTick},
	}
	for _, l := range loops {
		r.wg.Add(1)
		go r.runLoop(ctx, l.name, l.period, l.tick)
	}

	r.logger.Info("runtime started",
		"ingest_period", r.periods.Ingest,
		"physics_period", r.periods.Physics,
		"inference_period", r.periods.Inference,
		"monitor_period", r.periods.Monitor)
	return nil
}

// Stop signals the loops and waits up to timeout for them to drain.
func (r *Runtime) Stop(timeout time.Duration) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if !r.running.Load() {
		return nil
	}
	r.running.Store(false)
	close(r.shutdown)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("runtime stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"runtime", "Stop", "loop drain")
	}
}

// runLoop drives one periodic task. A panicking or erroring tick backs
// the loop off, doubling up to ten seconds, and a clean tick resets the
// backoff. One sick loop never takes down its siblings.
func (r *Runtime) runLoop(ctx context.Context, name string, period time.Duration, tick func() error) {
	defer r.wg.Done()

	logger := r.logger.With("loop", name)
	retryCfg := errors.RetryConfig{
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
	failures := 0

	for {
		select {
		case <-r.shutdown:
			return
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		err := r.safeTick(logger, tick)
		elapsed := time.Since(start)

		if r.metrics != nil {
			r.metrics.LoopIterations.WithLabelValues(name).Inc()
			r.metrics.LoopDuration.WithLabelValues(name).Observe(elapsed.Seconds())
			if err != nil {
				r.metrics.LoopErrors.WithLabelValues(name).Inc()
			}
		}

		backoff := time.Duration(0)
		if err != nil {
			backoff = retryCfg.BackoffDelay(failures)
			failures++
			logger.Error("loop tick failed", "error", err, "backoff", backoff)
		} else {
			failures = 0
		}

		sleep := period - elapsed
		if sleep < 0 {
			sleep = 0
		}
		sleep += backoff

		select {
		case <-r.shutdown:
			return
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (r *Runtime) safeTick(logger *slog.Logger, tick func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("loop tick panicked", "panic", fmt.Sprint(rec))
			err = errors.WrapTransient(fmt.Errorf("tick panic: %v", rec),
				"runtime", "safeTick", "panic recovery")
		}
	}()
	return tick()
}

// ingestTick refreshes every active process from the newest sample.
func (r *Runtime) ingestTick() error {
	sample, ok := r.buffer.Latest()
	if !ok {
		return nil
	}
	r.registry.UpdateFromSample(sample)
	return nil
}

// physicsTick advances one engine per active process and swaps in fresh
// state snapshots. Engines for deactivated processes are kept so their
// fields resume when the process restarts.
func (r *Runtime) physicsTick() error {
	sample, ok := r.buffer.Latest()
	if !ok {
		return nil
	}
	dt := r.periods.Physics.Seconds()

	for _, st := range r.registry.Active() {
		engine, exists := r.engines[st.ID]
		if !exists {
			engine = physics.NewEngine(st.ID, r.logger)
			r.engines[st.ID] = engine
		}

		state := engine.Step(sample, dt)
		if state.Degraded && r.metrics != nil {
			r.metrics.PhysicsStepsDegraded.Inc()
		}

		r.mu.Lock()
		r.physicsStates[st.ID] = state
		r.mu.Unlock()

		if r.pub != nil {
			_ = r.pub.Publish(control.PhysicsFeedback{
				ProcessID:    st.ID,
				MaxStress:    state.Mechanical.MaxVonMises,
				SafetyFactor: state.Mechanical.SafetyFactor,
				MeanTemp:     state.Thermal.Mean,
				Degraded:     state.Degraded,
				Timestamp:    state.Timestamp,
			})
		}
	}
	return nil
}

// inferenceTick predicts outcomes for every active process.
func (r *Runtime) inferenceTick() error {
	sample, ok := r.buffer.Latest()
	if !ok {
		return nil
	}

	for _, st := range r.registry.Active() {
		pred := r.mlEngine.Predict(sample, st)

		if r.metrics != nil {
			r.metrics.PredictionsTotal.Inc()
			if pred.Anomaly {
				r.metrics.AnomaliesTotal.Inc()
			}
		}

		r.mu.Lock()
		r.predictions[st.ID] = pred
		r.mu.Unlock()

		if r.pub != nil {
			_ = r.pub.Publish(control.PredictionUpdate{
				ProcessID:              st.ID,
				PredictedQuality:       pred.PredictedQuality,
				PredictedCycleTime:     pred.PredictedCycleTime,
				MaintenanceProbability: pred.MaintenanceProbability,
				Confidence:             pred.Confidence,
				Anomaly:                pred.Anomaly,
				Timestamp:              pred.Timestamp,
			})
		}
	}
	return nil
}

// monitorTick reports aggregate health and headline figures.
func (r *Runtime) monitorTick() error {
	active := r.registry.ActiveCount()
	stats := r.buffer.Stats().Summary()

	if r.metrics != nil {
		r.metrics.ActiveProcesses.Set(float64(active))
	}
	if r.health != nil {
		r.health.UpdateHealthy("runtime",
			fmt.Sprintf("%d active processes", active))
	}

	r.logger.Info("runtime status",
		"active_processes", active,
		"buffer_len", r.buffer.Len(),
		"buffer_evictions", stats.Evictions,
		"ml_trained", r.mlEngine.IsTrained())
	return nil
}
