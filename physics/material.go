package physics

import (
	"math"

	"github.com/c360/edgetwin/telemetry"
)

// Baseline material constants (structural steel).
const (
	baseUltimateStrength = 400e6  // Pa
	baseConductivity     = 50.0   // W/(m*K)
	baseSpecificHeat     = 500.0  // J/(kg*K)
	baseFatigueLimit     = 180e6  // Pa

	degradationCoeff      = -0.0005 // per degree C above ambient
	degradationFloor      = 0.1
	conductivityTempCoeff = 0.02 // W/(m*K) lost per degree C
	snExponent            = 3.0  // Basquin slope
	snReferenceCycles     = 1e6
)

// MaterialResult reports temperature-adjusted properties and fatigue state.
type MaterialResult struct {
	DegradationFactor float64 `json:"degradation_factor"`
	ElasticModulus    float64 `json:"elastic_modulus"`
	YieldStrength     float64 `json:"yield_strength"`
	UltimateStrength  float64 `json:"ultimate_strength"`
	Conductivity      float64 `json:"conductivity"`
	SpecificHeat      float64 `json:"specific_heat"`
	FatigueLimit      float64 `json:"fatigue_limit"`
	FatigueDamage     float64 `json:"fatigue_damage"`
	AccumulatedDamage float64 `json:"accumulated_damage"`
}

// MaterialModel tracks temperature-dependent property degradation and
// cumulative fatigue damage. Damage persists for the model's lifetime.
type MaterialModel struct {
	accumulated float64
}

// NewMaterialModel creates a material model with zero accumulated damage.
func NewMaterialModel() *MaterialModel {
	return &MaterialModel{}
}

// Update recomputes degraded properties at the sample's mean boundary
// temperature and, when force readings are present, adds one cycle of
// fatigue damage from the given stress amplitude.
func (m *MaterialModel) Update(sample *telemetry.Sample, stressAmplitude float64) MaterialResult {
	temp := AmbientTemperature
	if sample != nil && len(sample.Temperatures) > 0 {
		n := len(sample.Temperatures)
		if n > 4 {
			n = 4
		}
		sum := 0.0
		for _, t := range sample.Temperatures[:n] {
			sum += t
		}
		temp = sum / float64(n)
	}

	factor := 1 + degradationCoeff*(temp-AmbientTemperature)
	if factor < degradationFloor {
		factor = degradationFloor
	}

	conductivity := baseConductivity - conductivityTempCoeff*(temp-AmbientTemperature)
	if conductivity < 1 {
		conductivity = 1
	}

	res := MaterialResult{
		DegradationFactor: factor,
		ElasticModulus:    defaultElasticModulus * factor,
		YieldStrength:     defaultYieldStrength * factor,
		UltimateStrength:  baseUltimateStrength * factor,
		Conductivity:      conductivity,
		SpecificHeat:      baseSpecificHeat,
		FatigueLimit:      baseFatigueLimit * factor,
	}

	// Simplified Basquin S-N relation: damage per cycle is 1/N where
	// N = 1e6*(limit/amplitude)^3. Below the limit no damage accrues.
	hasForces := sample != nil && len(sample.Forces) > 0
	if hasForces && stressAmplitude > res.FatigueLimit && stressAmplitude > 0 {
		cycles := snReferenceCycles * math.Pow(res.FatigueLimit/stressAmplitude, snExponent)
		if cycles > 0 {
			res.FatigueDamage = 1 / cycles
		}
	}

	m.accumulated += res.FatigueDamage
	res.AccumulatedDamage = m.accumulated

	return res
}
