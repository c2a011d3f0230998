// Package physics implements the multi-physics simulation of the equipment:
// thermal, mechanical, fluid, and material sub-models composed by an Engine.
// Grids are dense 2-D fields advanced by explicit finite-difference steps.
package physics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Grid geometry shared by all sub-models.
const (
	GridRows = 50
	GridCols = 50

	// Cell spacing in meters
	DX = 0.01
	DY = 0.01

	// AmbientTemperature is the seed temperature of the thermal field in degC.
	AmbientTemperature = 25.0
)

// State is the per-process snapshot assembled on every physics tick. A new
// State replaces the previous one wholesale; readers hold immutable values.
type State struct {
	ProcessID  string           `json:"process_id"`
	Thermal    ThermalResult    `json:"thermal"`
	Mechanical MechanicalResult `json:"mechanical"`
	Fluid      FluidResult      `json:"fluid"`
	Material   MaterialResult   `json:"material"`

	// Degraded marks a snapshot whose sub-model update failed and was
	// substituted with defaults. Tests and operators can tell degraded
	// output from a genuine all-zero field.
	Degraded       bool      `json:"degraded"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// newGrid returns a rows x cols dense grid filled with the given value.
func newGrid(rows, cols int, fill float64) *mat.Dense {
	g := mat.NewDense(rows, cols, nil)
	if fill != 0 {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				g.Set(i, j, fill)
			}
		}
	}
	return g
}

// gridFinite reports whether every cell of the grid is a finite number.
func gridFinite(g *mat.Dense) bool {
	if g == nil {
		return false
	}
	rows, cols := g.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := g.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// gridStats returns min, max, and mean over all cells.
func gridStats(g *mat.Dense) (gridMin, gridMax, gridMean float64) {
	rows, cols := g.Dims()
	gridMin = math.Inf(1)
	gridMax = math.Inf(-1)
	sum := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := g.At(i, j)
			if v < gridMin {
				gridMin = v
			}
			if v > gridMax {
				gridMax = v
			}
			sum += v
		}
	}
	gridMean = sum / float64(rows*cols)
	return gridMin, gridMax, gridMean
}

// gridMaxAbs returns the maximum absolute value over all cells.
func gridMaxAbs(g *mat.Dense) float64 {
	rows, cols := g.Dims()
	m := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := math.Abs(g.At(i, j)); v > m {
				m = v
			}
		}
	}
	return m
}
