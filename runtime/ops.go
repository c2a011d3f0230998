package runtime

import (
	"fmt"
	"time"

	"github.com/c360/edgetwin/control"
	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/ml"
	"github.com/c360/edgetwin/optimize"
	"github.com/c360/edgetwin/physics"
	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/telemetry"
)

// PhysicsState returns the latest physics snapshot for one process.
func (r *Runtime) PhysicsState(id string) (physics.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.physicsStates[id]
	return s, ok
}

// Prediction returns the latest prediction for one process.
func (r *Runtime) Prediction(id string) (ml.Prediction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predictions[id]
	return p, ok
}

// Predictions returns a copy of all current predictions.
func (r *Runtime) Predictions() map[string]ml.Prediction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ml.Prediction, len(r.predictions))
	for id, p := range r.predictions {
		out[id] = p
	}
	return out
}

// Optimizations returns a copy of the latest optimization results.
func (r *Runtime) Optimizations() map[string]optimize.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]optimize.Result, len(r.optimizations))
	for id, res := range r.optimizations {
		out[id] = res
	}
	return out
}

// Registry exposes the process registry for the query surface.
func (r *Runtime) Registry() *process.Registry {
	return r.registry
}

// Buffer exposes the sample buffer for the query surface.
func (r *Runtime) Buffer() *telemetry.SampleBuffer {
	return r.buffer
}

// MLTrained reports whether the ML models have been fitted.
func (r *Runtime) MLTrained() bool {
	return r.mlEngine.IsTrained()
}

// TrainModels assembles a training batch from the whole buffer paired with
// the first active process and fits the models. Returns the structured
// result; an undersized batch is a failure that leaves existing models
// intact.
func (r *Runtime) TrainModels() (ml.TrainingResult, error) {
	active := r.registry.Active()
	if len(active) == 0 {
		return ml.TrainingResult{Success: false, Error: "no active process"},
			errors.WrapInvalid(errors.ErrProcessNotFound,
				"runtime", "TrainModels", "active process lookup")
	}

	samples := r.buffer.Snapshot()
	records := ml.BuildRecords(samples, active[0])

	res, err := r.mlEngine.Train(records)
	if r.metrics != nil {
		if res.Success {
			r.metrics.TrainingRuns.WithLabelValues("success").Inc()
		} else {
			r.metrics.TrainingRuns.WithLabelValues("failure").Inc()
		}
	}
	return res, err
}

// OptimizeProcesses runs the bounded search for every active process with
// a current prediction, stores the results, applies the recommended
// factors as process parameters, and publishes the updates. Failures for
// one process never block the others. Predictions retained for stopped
// processes are skipped: a deactivated process must not have parameters
// re-applied from a stale snapshot.
func (r *Runtime) OptimizeProcesses() map[string]optimize.Result {
	preds := r.Predictions()
	candidates := make(map[string]ml.Prediction, len(preds))
	for _, st := range r.registry.Active() {
		if pred, ok := preds[st.ID]; ok {
			candidates[st.ID] = pred
		}
	}
	results := r.optimizer.OptimizeAll(candidates)

	if r.metrics != nil {
		if len(results) > 0 {
			r.metrics.OptimizationRuns.WithLabelValues("success").Inc()
		} else {
			r.metrics.OptimizationRuns.WithLabelValues("failure").Inc()
		}
	}

	r.mu.Lock()
	for id, res := range results {
		r.optimizations[id] = res
	}
	r.mu.Unlock()

	for id, res := range results {
		_ = r.registry.SetParameters(id, map[string]float64{
			"speed_factor": res.SpeedFactor,
			"feed_factor":  res.FeedFactor,
		})
		if r.pub != nil {
			_ = r.pub.Publish(control.OptimizationUpdate{
				ProcessID:   id,
				SpeedFactor: res.SpeedFactor,
				FeedFactor:  res.FeedFactor,
				Objective:   res.Objective,
				Timestamp:   res.Timestamp,
			})
		}
	}
	return results
}

// HandleCommand applies one inbound control command to the runtime.
func (r *Runtime) HandleCommand(cmd control.Command) error {
	switch c := cmd.(type) {
	case *control.StartProcess:
		return r.StartProcess(c.ProcessID)
	case *control.StopProcess:
		return r.StopProcess(c.ProcessID)
	case *control.SetParameters:
		return r.registry.SetParameters(c.ProcessID, c.Parameters)
	case *control.EmergencyStop:
		r.EmergencyStop(c.Reason)
		return nil
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unsupported command kind %q", cmd.Kind()),
			"runtime", "HandleCommand", "command dispatch")
	}
}

// StartProcess activates a catalog process.
func (r *Runtime) StartProcess(id string) error {
	if err := r.registry.Start(id); err != nil {
		return err
	}
	if r.pub != nil {
		_ = r.pub.Publish(control.StartProcess{ProcessID: id, Timestamp: time.Now()})
	}
	return nil
}

// StopProcess deactivates a catalog process. Its physics engine and last
// snapshots are retained.
func (r *Runtime) StopProcess(id string) error {
	if err := r.registry.Stop(id); err != nil {
		return err
	}
	if r.pub != nil {
		_ = r.pub.Publish(control.StopProcess{ProcessID: id, Timestamp: time.Now()})
	}
	return nil
}

// EmergencyStop deactivates every process immediately and broadcasts the
// stop on the control channel.
func (r *Runtime) EmergencyStop(reason string) {
	r.registry.StopAll()
	r.logger.Warn("emergency stop", "reason", reason)
	if r.pub != nil {
		_ = r.pub.Publish(control.EmergencyStop{Reason: reason, Timestamp: time.Now()})
	}
}
