package physics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/telemetry"
)

// Thermal material defaults (structural steel).
const (
	defaultConductivity = 50.0   // W/(m K)
	defaultDensity      = 7850.0 // kg/m^3
	defaultSpecificHeat = 500.0  // J/(kg K)

	// stabilityLimit is the explicit FTCS bound: alpha*dt*(1/dx^2+1/dy^2) <= limit.
	stabilityLimit = 0.25

	// heatSourceRadius bounds the center region receiving internal heat generation.
	heatSourceRadius = 5
)

// ThermalResult reports one thermal step.
type ThermalResult struct {
	Field    *mat.Dense `json:"-"`
	Gradient *mat.Dense `json:"-"`

	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`

	// EffectiveDt is the time step actually integrated; it is smaller than
	// the requested dt whenever the stability bound required shrinking it.
	EffectiveDt float64 `json:"effective_dt"`

	// SimTime is the cumulative simulated time, which drifts behind wall
	// clock when the stability bound clamps dt.
	SimTime float64 `json:"sim_time"`
}

// ThermalModel advances a 2-D temperature field by one explicit
// finite-difference step of the heat equation per update.
type ThermalModel struct {
	field *mat.Dense

	conductivity float64
	density      float64
	specificHeat float64

	simTime float64
}

// NewThermalModel creates a thermal model seeded at ambient temperature.
func NewThermalModel() *ThermalModel {
	return &ThermalModel{
		field:        newGrid(GridRows, GridCols, AmbientTemperature),
		conductivity: defaultConductivity,
		density:      defaultDensity,
		specificHeat: defaultSpecificHeat,
	}
}

// Diffusivity returns alpha = k/(rho*cp).
func (m *ThermalModel) Diffusivity() float64 {
	return m.conductivity / (m.density * m.specificHeat)
}

// StableDt returns the largest time step satisfying the stability bound.
func (m *ThermalModel) StableDt() float64 {
	alpha := m.Diffusivity()
	return stabilityLimit / (alpha * (1/(DX*DX) + 1/(DY*DY)))
}

// Update applies boundary readings, internal heat generation, and one
// finite-difference step. A dt violating the stability bound is silently
// reduced before integrating; the result reports the dt actually used.
func (m *ThermalModel) Update(sample *telemetry.Sample, dt float64) (ThermalResult, error) {
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return ThermalResult{}, errors.WrapInvalid(errors.ErrNonFiniteData,
			"ThermalModel", "Update", "time step validation")
	}

	// Impose boundary temperatures when at least four readings are present:
	// top, bottom, left, right edges in reading order.
	if sample != nil && len(sample.Temperatures) >= 4 {
		t := sample.Temperatures
		for j := 0; j < GridCols; j++ {
			m.field.Set(0, j, t[0])
			m.field.Set(GridRows-1, j, t[1])
		}
		for i := 0; i < GridRows; i++ {
			m.field.Set(i, 0, t[2])
			m.field.Set(i, GridCols-1, t[3])
		}
	}

	// Internal heat generation proportional to active power draw, localized
	// to the center region. Units: W/m^3 over a unit depth.
	var q float64
	if sample != nil {
		q = sample.ActivePower() / (DX * DY * float64(heatSourceRadius*heatSourceRadius) * 4)
	}

	alpha := m.Diffusivity()
	effDt := dt
	if limit := m.StableDt(); effDt > limit {
		effDt = limit
	}

	next := mat.DenseCopyOf(m.field)
	ci, cj := GridRows/2, GridCols/2
	for i := 1; i < GridRows-1; i++ {
		for j := 1; j < GridCols-1; j++ {
			lap := (m.field.At(i+1, j)-2*m.field.At(i, j)+m.field.At(i-1, j))/(DX*DX) +
				(m.field.At(i, j+1)-2*m.field.At(i, j)+m.field.At(i, j-1))/(DY*DY)

			val := m.field.At(i, j) + alpha*effDt*lap

			if abs(i-ci) <= heatSourceRadius && abs(j-cj) <= heatSourceRadius {
				val += q / (m.density * m.specificHeat) * effDt
			}

			next.Set(i, j, val)
		}
	}
	m.field = next
	m.simTime += effDt

	if !gridFinite(m.field) {
		return ThermalResult{}, errors.WrapInvalid(errors.ErrNonFiniteData,
			"ThermalModel", "Update", "field finite check")
	}

	gridMin, gridMax, gridMean := gridStats(m.field)

	return ThermalResult{
		Field:       mat.DenseCopyOf(m.field),
		Gradient:    m.gradientMagnitude(),
		Min:         gridMin,
		Max:         gridMax,
		Mean:        gridMean,
		EffectiveDt: effDt,
		SimTime:     m.simTime,
	}, nil
}

// Field returns the current temperature field.
func (m *ThermalModel) Field() *mat.Dense {
	return mat.DenseCopyOf(m.field)
}

// gradientMagnitude computes |grad T| with central differences in the
// interior and one-sided differences at the edges.
func (m *ThermalModel) gradientMagnitude() *mat.Dense {
	g := mat.NewDense(GridRows, GridCols, nil)
	for i := 0; i < GridRows; i++ {
		for j := 0; j < GridCols; j++ {
			var gx, gy float64
			switch {
			case i == 0:
				gx = (m.field.At(1, j) - m.field.At(0, j)) / DX
			case i == GridRows-1:
				gx = (m.field.At(GridRows-1, j) - m.field.At(GridRows-2, j)) / DX
			default:
				gx = (m.field.At(i+1, j) - m.field.At(i-1, j)) / (2 * DX)
			}
			switch {
			case j == 0:
				gy = (m.field.At(i, 1) - m.field.At(i, 0)) / DY
			case j == GridCols-1:
				gy = (m.field.At(i, GridCols-1) - m.field.At(i, GridCols-2)) / DY
			default:
				gy = (m.field.At(i, j+1) - m.field.At(i, j-1)) / (2 * DY)
			}
			g.Set(i, j, math.Hypot(gx, gy))
		}
	}
	return g
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
