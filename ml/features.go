package ml

import (
	"gonum.org/v1/gonum/stat"

	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/telemetry"
)

// FeatureCount is the fixed length of every feature vector. Vectors built
// from partial samples are zero-padded; longer ones are truncated.
const FeatureCount = 20

// ExtractFeatures maps a sample and its process state to a fixed-length
// numeric vector. The layout is positional: temperature mean/std/max/min,
// vibration mean/std/max, pressure mean/std, power active/factor, process
// cycle time/efficiency/quality, force mean/std, position mean/std, data
// quality, then zero padding to FeatureCount.
func ExtractFeatures(sample *telemetry.Sample, state process.State) []float64 {
	features := make([]float64, 0, FeatureCount)

	tMean, tStd := seriesStats(sample.Temperatures)
	features = append(features, tMean, tStd,
		seriesMax(sample.Temperatures), seriesMin(sample.Temperatures))

	vMean, vStd := seriesStats(sample.Vibrations)
	features = append(features, vMean, vStd, seriesMax(sample.Vibrations))

	pMean, pStd := seriesStats(sample.Pressures)
	features = append(features, pMean, pStd)

	features = append(features, sample.ActivePower(), sample.PowerFactor())

	features = append(features, state.CycleTime, state.Efficiency, state.QualityScore)

	fMean, fStd := seriesStats(sample.Forces)
	features = append(features, fMean, fStd)

	posMean, posStd := seriesStats(sample.Positions)
	features = append(features, posMean, posStd)

	features = append(features, sample.DataQuality)

	for len(features) < FeatureCount {
		features = append(features, 0)
	}
	return features[:FeatureCount]
}

func seriesStats(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean = stat.Mean(xs, nil)
	if len(xs) > 1 {
		std = stat.StdDev(xs, nil)
	}
	return mean, std
}

func seriesMax(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	return max
}

func seriesMin(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	min := xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
	}
	return min
}
