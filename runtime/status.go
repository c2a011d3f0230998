package runtime

import (
	"time"

	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/telemetry"
)

// Status is the aggregate snapshot served by the query surface. It is
// always assembled from the best currently-available values; a stale or
// default-valued snapshot beats an error.
type Status struct {
	Running         bool                   `json:"running"`
	Uptime          time.Duration          `json:"uptime"`
	ActiveProcesses int                    `json:"active_processes"`
	Processes       []process.State        `json:"processes"`
	Buffer          telemetry.StatsSummary `json:"buffer"`
	BufferLen       int                    `json:"buffer_len"`
	MLTrained       bool                   `json:"ml_trained"`
	PredictionCount int                    `json:"prediction_count"`
	Timestamp       time.Time              `json:"timestamp"`
}

// Snapshot assembles the current status.
func (r *Runtime) Snapshot() Status {
	s := Status{
		Running:         r.running.Load(),
		ActiveProcesses: r.registry.ActiveCount(),
		Processes:       r.registry.List(),
		Buffer:          r.buffer.Stats().Summary(),
		BufferLen:       r.buffer.Len(),
		MLTrained:       r.mlEngine.IsTrained(),
		Timestamp:       time.Now(),
	}
	if !r.startTime.IsZero() && s.Running {
		s.Uptime = time.Since(r.startTime)
	}

	r.mu.RLock()
	s.PredictionCount = len(r.predictions)
	r.mu.RUnlock()
	return s
}
