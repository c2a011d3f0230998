package ml

import (
	"gonum.org/v1/gonum/stat"

	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/telemetry"
)

// BuildRecords assembles a training batch from buffered samples observed
// while the given process was active. Each sample is paired with the
// process state reconstructed at its capture time, not the state at call
// time: cycle time, efficiency, and quality are recomputed per sample so
// the state-derived features and the cycle-time target actually vary
// across the batch. Targets are the observables the runtime already
// derives: the quality score recomputed per sample, the capture-time
// cycle time, a vibration-driven maintenance proxy, and the sample's
// active power draw.
func BuildRecords(samples []*telemetry.Sample, state process.State) []TrainingRecord {
	records := make([]TrainingRecord, 0, len(samples))
	for _, s := range samples {
		if s == nil {
			continue
		}
		captured := stateAtCapture(s, state)
		records = append(records, TrainingRecord{
			Features:    ExtractFeatures(s, captured),
			Quality:     captured.QualityScore,
			CycleTime:   captured.CycleTime,
			Maintenance: maintenanceProxy(s),
			Energy:      s.ActivePower(),
		})
	}
	return records
}

// stateAtCapture rewinds the process state to a sample's capture time,
// applying the same formulas the registry uses on ingestion. When the
// sample predates the process start or carries no usable timestamp, the
// handed-in state is used as is.
func stateAtCapture(s *telemetry.Sample, state process.State) process.State {
	captured := state
	if !state.StartedAt.IsZero() && s.Timestamp.After(state.StartedAt) {
		captured.CycleTime = s.Timestamp.Sub(state.StartedAt).Seconds()
		if captured.CycleTime > 0 {
			eff := state.TargetCycleTime / captured.CycleTime * 100
			if eff > 150 {
				eff = 150
			}
			captured.Efficiency = eff
		}
	}
	captured.QualityScore = process.Score(s, state.Type)
	return captured
}

// maintenanceProxy maps vibration severity to a 0..1 maintenance need.
// Sustained vibration above 2.0 is the wear signal the quality score
// also penalizes.
func maintenanceProxy(s *telemetry.Sample) float64 {
	if len(s.Vibrations) == 0 {
		return 0
	}
	mean := stat.Mean(s.Vibrations, nil)
	return clampRange(mean/10, 0, 1)
}
