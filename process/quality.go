package process

import (
	"gonum.org/v1/gonum/stat"

	"github.com/c360/edgetwin/telemetry"
)

// Quality scoring thresholds and penalty weights. The score starts at 100 and
// is reduced by each penalty, scaled by the sample's data quality, and clamped
// to [0,100].
const (
	tempVariationLimit = 5.0 // degC std dev before penalizing
	tempPenaltyPerDeg  = 2.0
	tempPenaltyCap     = 20.0

	vibrationMeanLimit = 2.0
	vibPenaltyPerUnit  = 5.0
	vibPenaltyCap      = 25.0

	pressureVariationLimit = 2.0
	pressPenaltyPerUnit    = 3.0
	pressPenaltyCap        = 15.0

	cncForceStdLimit    = 10.0
	cncPenaltyPerUnit   = 2.0
	cncPenaltyCap       = 15.0
	moldPressureMin     = 80.0
	moldPressureMax     = 120.0
	moldPenaltyPerUnit  = 0.5
	moldPenaltyCap      = 20.0
	printTempRangeLimit = 3.0
	printPenaltyPerDeg  = 4.0
	printPenaltyCap     = 20.0
)

// Score derives a quality score in [0,100] for one process type from a sample.
func Score(sample *telemetry.Sample, procType Type) float64 {
	if sample == nil {
		return 0
	}

	score := 100.0

	// Temperature stability
	if len(sample.Temperatures) > 1 {
		tempStd := stat.StdDev(sample.Temperatures, nil)
		if tempStd > tempVariationLimit {
			score -= capped((tempStd-tempVariationLimit)*tempPenaltyPerDeg, tempPenaltyCap)
		}
	}

	// Vibration level: the whole mean is penalized once the threshold is crossed
	if len(sample.Vibrations) > 0 {
		vibMean := stat.Mean(sample.Vibrations, nil)
		if vibMean > vibrationMeanLimit {
			score -= capped(vibMean*vibPenaltyPerUnit, vibPenaltyCap)
		}
	}

	// Pressure stability
	if len(sample.Pressures) > 1 {
		pressStd := stat.StdDev(sample.Pressures, nil)
		if pressStd > pressureVariationLimit {
			score -= capped((pressStd-pressureVariationLimit)*pressPenaltyPerUnit, pressPenaltyCap)
		}
	}

	score -= typePenalty(sample, procType)

	score *= sample.DataQuality

	return clamp(score, 0, 100)
}

// typePenalty applies process-type-specific quality penalties.
func typePenalty(sample *telemetry.Sample, procType Type) float64 {
	switch procType {
	case TypeCNC:
		// Cutting force instability
		if len(sample.Forces) > 1 {
			forceStd := stat.StdDev(sample.Forces, nil)
			if forceStd > cncForceStdLimit {
				return capped((forceStd-cncForceStdLimit)*cncPenaltyPerUnit, cncPenaltyCap)
			}
		}

	case TypeInjectionMolding:
		// Injection pressure must stay in the process window
		if len(sample.Pressures) > 0 {
			pressMean := stat.Mean(sample.Pressures, nil)
			if pressMean < moldPressureMin {
				return capped((moldPressureMin-pressMean)*moldPenaltyPerUnit, moldPenaltyCap)
			}
			if pressMean > moldPressureMax {
				return capped((pressMean-moldPressureMax)*moldPenaltyPerUnit, moldPenaltyCap)
			}
		}

	case TypePrint3D:
		// Nozzle/bed temperature drift
		if len(sample.Temperatures) > 1 {
			span := maxOf(sample.Temperatures) - minOf(sample.Temperatures)
			if span > printTempRangeLimit {
				return capped((span-printTempRangeLimit)*printPenaltyPerDeg, printPenaltyCap)
			}
		}
	}

	return 0
}

func capped(penalty, cap float64) float64 {
	if penalty > cap {
		return cap
	}
	return penalty
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
