package physics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/telemetry"
)

// Fluid defaults: water-like coolant, incompressible.
const (
	defaultFluidDensity   = 1000.0 // kg/m^3
	defaultFluidViscosity = 0.001  // Pa*s
	characteristicLength  = 0.05   // m, Reynolds length scale
	pressureScale         = 100.0  // sample pressure units to Pa
)

// FluidResult reports one fluid step.
type FluidResult struct {
	VelocityU *mat.Dense `json:"-"`
	VelocityV *mat.Dense `json:"-"`
	Pressure  *mat.Dense `json:"-"`

	MaxVelocity  float64 `json:"max_velocity"`
	Reynolds     float64 `json:"reynolds"`
	PressureDrop float64 `json:"pressure_drop"`
}

// FluidModel advances a simplified incompressible momentum equation driven
// by boundary pressure readings. Velocity fields persist between calls.
type FluidModel struct {
	density   float64
	viscosity float64

	u *mat.Dense
	v *mat.Dense
	p *mat.Dense
}

// NewFluidModel creates a fluid model with quiescent initial fields.
func NewFluidModel() *FluidModel {
	return &FluidModel{
		density:   defaultFluidDensity,
		viscosity: defaultFluidViscosity,
		u:         newGrid(GridRows, GridCols, 0),
		v:         newGrid(GridRows, GridCols, 0),
		p:         newGrid(GridRows, GridCols, 0),
	}
}

// Update imposes boundary pressures from the sample and advances the
// velocity field one step of size dt.
func (m *FluidModel) Update(sample *telemetry.Sample, dt float64) (FluidResult, error) {
	if dt <= 0 {
		return FluidResult{}, errors.WrapInvalid(errors.ErrInvalidFrame,
			"FluidModel", "Update", "time step validation")
	}

	// Boundary pressures in top/bottom/left/right order, scaled to Pa.
	if sample != nil && len(sample.Pressures) > 0 {
		pr := sample.Pressures
		setEdge := func(edge int, val float64) {
			switch edge {
			case 0:
				for j := 0; j < GridCols; j++ {
					m.p.Set(0, j, val)
				}
			case 1:
				for j := 0; j < GridCols; j++ {
					m.p.Set(GridRows-1, j, val)
				}
			case 2:
				for i := 0; i < GridRows; i++ {
					m.p.Set(i, 0, val)
				}
			case 3:
				for i := 0; i < GridRows; i++ {
					m.p.Set(i, GridCols-1, val)
				}
			}
		}
		for k := 0; k < len(pr) && k < 4; k++ {
			setEdge(k, pr[k]*pressureScale)
		}
	}

	// Relax interior pressure toward the neighbor average so boundary
	// readings propagate inward.
	pNext := mat.DenseCopyOf(m.p)
	for i := 1; i < GridRows-1; i++ {
		for j := 1; j < GridCols-1; j++ {
			avg := (m.p.At(i-1, j) + m.p.At(i+1, j) +
				m.p.At(i, j-1) + m.p.At(i, j+1)) / 4
			pNext.Set(i, j, avg)
		}
	}
	m.p = pNext

	// Momentum: du/dt = -(1/rho)*dp/dx + (mu/rho)*laplacian(u)
	nu := m.viscosity / m.density
	uNext := mat.DenseCopyOf(m.u)
	vNext := mat.DenseCopyOf(m.v)
	for i := 1; i < GridRows-1; i++ {
		for j := 1; j < GridCols-1; j++ {
			dpdx := (m.p.At(i, j+1) - m.p.At(i, j-1)) / (2 * DX)
			dpdy := (m.p.At(i+1, j) - m.p.At(i-1, j)) / (2 * DY)

			lapU := (m.u.At(i, j+1)-2*m.u.At(i, j)+m.u.At(i, j-1))/(DX*DX) +
				(m.u.At(i+1, j)-2*m.u.At(i, j)+m.u.At(i-1, j))/(DY*DY)
			lapV := (m.v.At(i, j+1)-2*m.v.At(i, j)+m.v.At(i, j-1))/(DX*DX) +
				(m.v.At(i+1, j)-2*m.v.At(i, j)+m.v.At(i-1, j))/(DY*DY)

			uNext.Set(i, j, m.u.At(i, j)+dt*(-dpdx/m.density+nu*lapU))
			vNext.Set(i, j, m.v.At(i, j)+dt*(-dpdy/m.density+nu*lapV))
		}
	}

	// No-slip walls
	for j := 0; j < GridCols; j++ {
		uNext.Set(0, j, 0)
		uNext.Set(GridRows-1, j, 0)
		vNext.Set(0, j, 0)
		vNext.Set(GridRows-1, j, 0)
	}
	for i := 0; i < GridRows; i++ {
		uNext.Set(i, 0, 0)
		uNext.Set(i, GridCols-1, 0)
		vNext.Set(i, 0, 0)
		vNext.Set(i, GridCols-1, 0)
	}

	m.u = uNext
	m.v = vNext

	for _, g := range []*mat.Dense{m.u, m.v, m.p} {
		if !gridFinite(g) {
			return FluidResult{}, errors.WrapInvalid(errors.ErrNonFiniteData,
				"FluidModel", "Update", "field finite check")
		}
	}

	maxVel := 0.0
	for i := 0; i < GridRows; i++ {
		for j := 0; j < GridCols; j++ {
			speed := math.Hypot(m.u.At(i, j), m.v.At(i, j))
			if speed > maxVel {
				maxVel = speed
			}
		}
	}

	reynolds := m.density * maxVel * characteristicLength / m.viscosity

	// Pressure drop across the domain, inlet (left) minus outlet (right).
	mid := GridRows / 2
	drop := m.p.At(mid, 0) - m.p.At(mid, GridCols-1)

	return FluidResult{
		VelocityU:    mat.DenseCopyOf(m.u),
		VelocityV:    mat.DenseCopyOf(m.v),
		Pressure:     mat.DenseCopyOf(m.p),
		MaxVelocity:  maxVel,
		Reynolds:     reynolds,
		PressureDrop: drop,
	}, nil
}
