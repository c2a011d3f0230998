package physics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/telemetry"
)

// Mechanical material defaults (structural steel, plane stress).
const (
	defaultElasticModulus   = 200e9  // Pa
	defaultPoissonRatio     = 0.3
	defaultThermalExpansion = 12e-6  // 1/K
	defaultYieldStrength    = 250e6  // Pa
	defaultCrossSection     = 0.01   // m^2, assumed edge cross-section
	safetyFactorFloor       = 1e6    // Pa, floor divisor for the safety factor
	edgeBandWidth           = 3      // rows/cols affected by an edge force
)

// MechanicalResult reports one mechanical step.
type MechanicalResult struct {
	StressXX *mat.Dense `json:"-"`
	StressYY *mat.Dense `json:"-"`
	StressXY *mat.Dense `json:"-"`
	StrainXX *mat.Dense `json:"-"`
	StrainYY *mat.Dense `json:"-"`
	DispX    *mat.Dense `json:"-"`
	DispY    *mat.Dense `json:"-"`
	VonMises *mat.Dense `json:"-"`

	MaxVonMises     float64 `json:"max_von_mises"`
	MaxDisplacement float64 `json:"max_displacement"`
	SafetyFactor    float64 `json:"safety_factor"`
}

// MechanicalModel derives stress, strain, and displacement fields from
// boundary temperatures and edge forces under plane-stress assumptions.
type MechanicalModel struct {
	elasticModulus   float64
	poissonRatio     float64
	thermalExpansion float64
	yieldStrength    float64
}

// NewMechanicalModel creates a mechanical model with steel defaults.
func NewMechanicalModel() *MechanicalModel {
	return &MechanicalModel{
		elasticModulus:   defaultElasticModulus,
		poissonRatio:     defaultPoissonRatio,
		thermalExpansion: defaultThermalExpansion,
		yieldStrength:    defaultYieldStrength,
	}
}

// SetYieldStrength overrides the yield strength, normally with the
// temperature-degraded value from the material model.
func (m *MechanicalModel) SetYieldStrength(yield float64) {
	if yield > 0 {
		m.yieldStrength = yield
	}
}

// Update computes the stress/strain/displacement state from the sample.
func (m *MechanicalModel) Update(sample *telemetry.Sample) (MechanicalResult, error) {
	sxx := newGrid(GridRows, GridCols, 0)
	syy := newGrid(GridRows, GridCols, 0)
	sxy := newGrid(GridRows, GridCols, 0)

	// Thermal-expansion stress from the mean of the boundary temperatures:
	// sigma = E*alpha*dT/(1-nu), biaxial.
	if sample != nil && len(sample.Temperatures) >= 4 {
		meanT := (sample.Temperatures[0] + sample.Temperatures[1] +
			sample.Temperatures[2] + sample.Temperatures[3]) / 4
		deltaT := meanT - AmbientTemperature
		sigmaTh := m.elasticModulus * m.thermalExpansion * deltaT / (1 - m.poissonRatio)

		for i := 0; i < GridRows; i++ {
			for j := 0; j < GridCols; j++ {
				sxx.Set(i, j, sigmaTh)
				syy.Set(i, j, sigmaTh)
			}
		}
	}

	// Edge force stress: applied force over the assumed cross-section, one
	// edge per reading in top/bottom/left/right order.
	if sample != nil && len(sample.Forces) > 0 {
		f := sample.Forces
		addEdge := func(edge int, sigma float64) {
			switch edge {
			case 0: // top rows load syy
				for i := 0; i < edgeBandWidth; i++ {
					for j := 0; j < GridCols; j++ {
						syy.Set(i, j, syy.At(i, j)+sigma)
					}
				}
			case 1: // bottom rows load syy
				for i := GridRows - edgeBandWidth; i < GridRows; i++ {
					for j := 0; j < GridCols; j++ {
						syy.Set(i, j, syy.At(i, j)+sigma)
					}
				}
			case 2: // left cols load sxx
				for i := 0; i < GridRows; i++ {
					for j := 0; j < edgeBandWidth; j++ {
						sxx.Set(i, j, sxx.At(i, j)+sigma)
					}
				}
			case 3: // right cols load sxx
				for i := 0; i < GridRows; i++ {
					for j := GridCols - edgeBandWidth; j < GridCols; j++ {
						sxx.Set(i, j, sxx.At(i, j)+sigma)
					}
				}
			}
		}
		for k := 0; k < len(f) && k < 4; k++ {
			addEdge(k, f[k]/defaultCrossSection)
		}
	}

	// Plane-stress constitutive relations
	exx := mat.NewDense(GridRows, GridCols, nil)
	eyy := mat.NewDense(GridRows, GridCols, nil)
	for i := 0; i < GridRows; i++ {
		for j := 0; j < GridCols; j++ {
			exx.Set(i, j, (sxx.At(i, j)-m.poissonRatio*syy.At(i, j))/m.elasticModulus)
			eyy.Set(i, j, (syy.At(i, j)-m.poissonRatio*sxx.At(i, j))/m.elasticModulus)
		}
	}

	// Displacement by forward integration of strain along each axis
	ux := mat.NewDense(GridRows, GridCols, nil)
	uy := mat.NewDense(GridRows, GridCols, nil)
	for i := 0; i < GridRows; i++ {
		for j := 0; j < GridCols; j++ {
			if j > 0 {
				ux.Set(i, j, ux.At(i, j-1)+exx.At(i, j)*DX)
			}
			if i > 0 {
				uy.Set(i, j, uy.At(i-1, j)+eyy.At(i, j)*DY)
			}
		}
	}

	// Von Mises equivalent stress for plane stress
	vm := mat.NewDense(GridRows, GridCols, nil)
	for i := 0; i < GridRows; i++ {
		for j := 0; j < GridCols; j++ {
			a := sxx.At(i, j)
			b := syy.At(i, j)
			c := sxy.At(i, j)
			vm.Set(i, j, math.Sqrt(a*a-a*b+b*b+3*c*c))
		}
	}

	for _, g := range []*mat.Dense{sxx, syy, exx, eyy, ux, uy, vm} {
		if !gridFinite(g) {
			return MechanicalResult{}, errors.WrapInvalid(errors.ErrNonFiniteData,
				"MechanicalModel", "Update", "field finite check")
		}
	}

	_, maxVM, _ := gridStats(vm)
	maxDisp := math.Max(gridMaxAbs(ux), gridMaxAbs(uy))

	// Safety factor with a floor divisor so an unloaded part reports a
	// large but finite margin.
	safety := m.yieldStrength / math.Max(maxVM, safetyFactorFloor)

	return MechanicalResult{
		StressXX:        sxx,
		StressYY:        syy,
		StressXY:        sxy,
		StrainXX:        exx,
		StrainYY:        eyy,
		DispX:           ux,
		DispY:           uy,
		VonMises:        vm,
		MaxVonMises:     maxVM,
		MaxDisplacement: maxDisp,
		SafetyFactor:    safety,
	}, nil
}
