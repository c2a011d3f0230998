package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/c360/edgetwin/errors"
)

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("response encoding failed", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, msg string) {
	g.writeJSON(w, status, map[string]string{"error": msg})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.rt.Snapshot())
}

func (g *Gateway) handleLatestSample(w http.ResponseWriter, _ *http.Request) {
	sample, ok := g.rt.Buffer().Latest()
	if !ok {
		g.writeError(w, http.StatusNotFound, "no samples ingested yet")
		return
	}
	g.writeJSON(w, http.StatusOK, sample)
}

func (g *Gateway) handleProcesses(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.rt.Registry().List())
}

func (g *Gateway) handleStartProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := g.rt.StartProcess(id); err != nil {
		g.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "started", "process_id": id})
}

func (g *Gateway) handleStopProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := g.rt.StopProcess(id); err != nil {
		g.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "process_id": id})
}

func (g *Gateway) handlePredictions(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.rt.Predictions())
}

// physicsSummary is the wire form of a physics snapshot. The dense grids
// stay internal; the surface reports derived figures.
type physicsSummary struct {
	ProcessID      string  `json:"process_id"`
	Degraded       bool    `json:"degraded"`
	DegradedReason string  `json:"degraded_reason,omitempty"`
	TempMin        float64 `json:"temp_min"`
	TempMax        float64 `json:"temp_max"`
	TempMean       float64 `json:"temp_mean"`
	SimTime        float64 `json:"sim_time"`
	MaxVonMises    float64 `json:"max_von_mises"`
	SafetyFactor   float64 `json:"safety_factor"`
	MaxVelocity    float64 `json:"max_velocity"`
	Reynolds       float64 `json:"reynolds"`
	PressureDrop   float64 `json:"pressure_drop"`
	Degradation    float64 `json:"degradation_factor"`
	FatigueDamage  float64 `json:"accumulated_damage"`
	Timestamp      string  `json:"timestamp"`
}

func (g *Gateway) handlePhysics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, ok := g.rt.PhysicsState(id)
	if !ok {
		g.writeError(w, http.StatusNotFound, "no physics state for process "+id)
		return
	}
	g.writeJSON(w, http.StatusOK, physicsSummary{
		ProcessID:      state.ProcessID,
		Degraded:       state.Degraded,
		DegradedReason: state.DegradedReason,
		TempMin:        state.Thermal.Min,
		TempMax:        state.Thermal.Max,
		TempMean:       state.Thermal.Mean,
		SimTime:        state.Thermal.SimTime,
		MaxVonMises:    state.Mechanical.MaxVonMises,
		SafetyFactor:   state.Mechanical.SafetyFactor,
		MaxVelocity:    state.Fluid.MaxVelocity,
		Reynolds:       state.Fluid.Reynolds,
		PressureDrop:   state.Fluid.PressureDrop,
		Degradation:    state.Material.DegradationFactor,
		FatigueDamage:  state.Material.AccumulatedDamage,
		Timestamp:      state.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// handleTrain triggers a training run. Unlike the query endpoints this
// returns an explicit success or failure.
func (g *Gateway) handleTrain(w http.ResponseWriter, _ *http.Request) {
	res, err := g.rt.TrainModels()
	if err != nil {
		status := http.StatusUnprocessableEntity
		if !errors.IsInvalid(err) {
			status = http.StatusInternalServerError
		}
		g.writeJSON(w, status, res)
		return
	}
	g.writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleOptimize(w http.ResponseWriter, _ *http.Request) {
	results := g.rt.OptimizeProcesses()
	g.writeJSON(w, http.StatusOK, results)
}

// handleConfig reports the running configuration. The SafeConfig hands
// out a deep copy, so the response never races a live update.
func (g *Gateway) handleConfig(w http.ResponseWriter, _ *http.Request) {
	if g.cfg == nil {
		g.writeError(w, http.StatusNotFound, "no configuration attached")
		return
	}
	g.writeJSON(w, http.StatusOK, g.cfg.Get())
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if g.health == nil {
		g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	agg := g.health.AggregateHealth("edgetwin")
	status := http.StatusOK
	if !agg.Healthy {
		status = http.StatusServiceUnavailable
	}
	g.writeJSON(w, status, agg)
}
