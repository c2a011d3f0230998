package process

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/telemetry"
)

// Registry owns one State per catalogued process. The ingestion loop is the
// only writer; other loops and the gateway read copies.
type Registry struct {
	mu     sync.RWMutex
	states map[string]*State
	logger *slog.Logger
}

// NewRegistry creates a registry from a fixed catalog. Processes are created
// inactive and are never destroyed, only deactivated.
func NewRegistry(catalog []CatalogEntry, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default().With("component", "process-registry")
	}

	states := make(map[string]*State, len(catalog))
	for _, entry := range catalog {
		states[entry.ID] = &State{
			ID:              entry.ID,
			Type:            entry.Type,
			TargetCycleTime: entry.TargetCycleTime,
			QualityScore:    100,
			Parameters:      make(map[string]float64),
		}
	}

	return &Registry{states: states, logger: logger}
}

// Get returns a copy of one process state.
func (r *Registry) Get(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[id]
	if !ok {
		return State{}, false
	}
	return s.clone(), true
}

// List returns copies of all process states.
func (r *Registry) List() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]State, 0, len(r.states))
	for _, s := range r.states {
		result = append(result, s.clone())
	}
	return result
}

// Active returns copies of all currently active process states.
func (r *Registry) Active() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]State, 0, len(r.states))
	for _, s := range r.states {
		if s.Active {
			result = append(result, s.clone())
		}
	}
	return result
}

// ActiveCount returns the number of active processes.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.states {
		if s.Active {
			n++
		}
	}
	return n
}

// Start activates a process and resets its cycle tracking.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrProcessNotFound, "Registry", "Start", "lookup "+id)
	}
	if s.Active {
		return nil // idempotent
	}

	s.Active = true
	s.StartedAt = time.Now()
	s.CycleTime = 0
	s.QualityScore = 100
	r.logger.Info("Process started", "process_id", id, "type", s.Type)
	return nil
}

// Stop deactivates a process. The state is retained for inspection.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrProcessNotFound, "Registry", "Stop", "lookup "+id)
	}
	if !s.Active {
		return nil
	}

	s.Active = false
	r.logger.Info("Process stopped", "process_id", id, "cycle_time", s.CycleTime)
	return nil
}

// StopAll deactivates every process. Used by the emergency-stop command.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.states {
		if s.Active {
			s.Active = false
			r.logger.Warn("Process halted", "process_id", s.ID)
		}
	}
}

// SetParameters merges control parameters into a process's parameter map.
func (r *Registry) SetParameters(id string, params map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrProcessNotFound, "Registry", "SetParameters", "lookup "+id)
	}

	for k, v := range params {
		s.Parameters[k] = v
	}
	return nil
}

// UpdateFromSample refreshes cycle time, efficiency, and quality score for
// every active process from the given sample. Called once per ingestion cycle.
func (r *Registry) UpdateFromSample(sample *telemetry.Sample) {
	if sample == nil {
		return
	}

	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.states {
		if !s.Active {
			continue
		}

		s.CycleTime = now.Sub(s.StartedAt).Seconds()

		if s.CycleTime > 0 {
			eff := s.TargetCycleTime / s.CycleTime * 100
			if eff > 150 {
				eff = 150
			}
			s.Efficiency = eff
		}

		s.QualityScore = Score(sample, s.Type)
		s.LastUpdate = now
	}
}
