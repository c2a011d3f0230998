package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics contains runtime-level metrics shared across the scheduled loops.
// Component-specific metrics are registered separately via the Registrar interface.
type CoreMetrics struct {
	// Scheduler loop metrics
	LoopIterations *prometheus.CounterVec
	LoopDuration   *prometheus.HistogramVec
	LoopErrors     *prometheus.CounterVec

	// Telemetry metrics
	SamplesIngested prometheus.Counter
	SamplesDropped  prometheus.Counter

	// Simulation and inference metrics
	PhysicsStepsDegraded prometheus.Counter
	PredictionsTotal     prometheus.Counter
	AnomaliesTotal       prometheus.Counter
	TrainingRuns         *prometheus.CounterVec
	OptimizationRuns     *prometheus.CounterVec

	// Process metrics
	ActiveProcesses prometheus.Gauge

	// Transport metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewCoreMetrics creates a new CoreMetrics instance with all runtime metrics
func NewCoreMetrics() *CoreMetrics {
	return &CoreMetrics{
		LoopIterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "scheduler",
				Name:      "loop_iterations_total",
				Help:      "Total iterations completed per scheduled loop",
			},
			[]string{"loop"},
		),

		LoopDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edgetwin",
				Subsystem: "scheduler",
				Name:      "loop_duration_seconds",
				Help:      "Duration of one loop iteration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"loop"},
		),

		LoopErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "scheduler",
				Name:      "loop_errors_total",
				Help:      "Total iteration errors recovered per scheduled loop",
			},
			[]string{"loop"},
		),

		SamplesIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "telemetry",
				Name:      "samples_ingested_total",
				Help:      "Total sensor samples appended to the buffer",
			},
		),

		SamplesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "telemetry",
				Name:      "samples_dropped_total",
				Help:      "Total sensor samples evicted or rejected",
			},
		),

		PhysicsStepsDegraded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "physics",
				Name:      "steps_degraded_total",
				Help:      "Physics steps that substituted a degraded default state",
			},
		),

		PredictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "ml",
				Name:      "predictions_total",
				Help:      "Total predictions produced by the inference loop",
			},
		),

		AnomaliesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "ml",
				Name:      "anomalies_total",
				Help:      "Feature vectors flagged as anomalous",
			},
		),

		TrainingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "ml",
				Name:      "training_runs_total",
				Help:      "Training attempts by outcome",
			},
			[]string{"status"},
		),

		OptimizationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "optimizer",
				Name:      "runs_total",
				Help:      "Optimization runs by outcome",
			},
			[]string{"status"},
		),

		ActiveProcesses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "edgetwin",
				Subsystem: "process",
				Name:      "active",
				Help:      "Number of currently active manufacturing processes",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "edgetwin",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "edgetwin",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total NATS reconnect events",
			},
		),
	}
}
