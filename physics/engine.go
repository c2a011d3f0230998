package physics

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/edgetwin/telemetry"
)

// Engine composes the four sub-models for one process. One call to Step
// advances all four with the same sample and dt and assembles a State.
// Engines are not safe for concurrent use; the physics loop owns exactly
// one engine per process.
type Engine struct {
	processID string
	logger    *slog.Logger

	thermal    *ThermalModel
	mechanical *MechanicalModel
	fluid      *FluidModel
	material   *MaterialModel

	lastGood State
}

// NewEngine creates an engine with freshly seeded sub-model fields.
func NewEngine(processID string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		processID:  processID,
		logger:     logger.With("component", "physics-engine", "process_id", processID),
		thermal:    NewThermalModel(),
		mechanical: NewMechanicalModel(),
		fluid:      NewFluidModel(),
		material:   NewMaterialModel(),
	}
	e.lastGood = e.defaultState("")
	return e
}

// ProcessID returns the process this engine simulates.
func (e *Engine) ProcessID() string {
	return e.processID
}

// Step advances all sub-models one tick. It never panics and never returns
// an error: on any sub-model failure it logs and returns a Degraded state
// carrying the last good fields.
func (e *Engine) Step(sample *telemetry.Sample, dt float64) (state State) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("physics step panicked, substituting degraded state",
				"panic", fmt.Sprint(r))
			state = e.degradedState(fmt.Sprintf("panic: %v", r))
		}
	}()

	thermal, err := e.thermal.Update(sample, dt)
	if err != nil {
		e.logger.Error("thermal update failed", "error", err)
		return e.degradedState(err.Error())
	}

	mech, err := e.mechanical.Update(sample)
	if err != nil {
		e.logger.Error("mechanical update failed", "error", err)
		return e.degradedState(err.Error())
	}

	fluid, err := e.fluid.Update(sample, dt)
	if err != nil {
		e.logger.Error("fluid update failed", "error", err)
		return e.degradedState(err.Error())
	}

	material := e.material.Update(sample, mech.MaxVonMises)

	// Degraded yield strength feeds the next tick's safety factor.
	e.mechanical.SetYieldStrength(material.YieldStrength)

	state = State{
		ProcessID:  e.processID,
		Thermal:    thermal,
		Mechanical: mech,
		Fluid:      fluid,
		Material:   material,
		Timestamp:  time.Now(),
	}
	e.lastGood = state
	return state
}

// degradedState returns the last good fields tagged Degraded with a fresh
// timestamp so readers can tell substituted output from live output.
func (e *Engine) degradedState(reason string) State {
	s := e.lastGood
	s.Degraded = true
	s.DegradedReason = reason
	s.Timestamp = time.Now()
	return s
}

// defaultState builds the documented all-ambient default used before the
// first successful step.
func (e *Engine) defaultState(reason string) State {
	return State{
		ProcessID: e.processID,
		Thermal: ThermalResult{
			Field:    newGrid(GridRows, GridCols, AmbientTemperature),
			Gradient: newGrid(GridRows, GridCols, 0),
			Min:      AmbientTemperature,
			Max:      AmbientTemperature,
			Mean:     AmbientTemperature,
		},
		Mechanical: MechanicalResult{
			StressXX:     newGrid(GridRows, GridCols, 0),
			StressYY:     newGrid(GridRows, GridCols, 0),
			StressXY:     newGrid(GridRows, GridCols, 0),
			StrainXX:     newGrid(GridRows, GridCols, 0),
			StrainYY:     newGrid(GridRows, GridCols, 0),
			DispX:        newGrid(GridRows, GridCols, 0),
			DispY:        newGrid(GridRows, GridCols, 0),
			VonMises:     newGrid(GridRows, GridCols, 0),
			SafetyFactor: defaultYieldStrength / safetyFactorFloor,
		},
		Fluid: FluidResult{
			VelocityU: newGrid(GridRows, GridCols, 0),
			VelocityV: newGrid(GridRows, GridCols, 0),
			Pressure:  newGrid(GridRows, GridCols, 0),
		},
		Material: MaterialResult{
			DegradationFactor: 1,
			ElasticModulus:    defaultElasticModulus,
			YieldStrength:     defaultYieldStrength,
			UltimateStrength:  baseUltimateStrength,
			Conductivity:      baseConductivity,
			SpecificHeat:      baseSpecificHeat,
			FatigueLimit:      baseFatigueLimit,
		},
		DegradedReason: reason,
		Timestamp:      time.Now(),
	}
}
