// Package optimize searches process-control parameters against the latest
// prediction, recommending speed and feed adjustments that trade off
// quality, cycle time, and energy.
package optimize

import (
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/ml"
)

// Parameter bounds and objective weights.
const (
	FactorMin = 0.5
	FactorMax = 1.5

	weightQuality   = 0.4
	weightCycleTime = 0.3
	weightEnergy    = 0.3

	// boundsPenalty dominates the objective outside the feasible box.
	boundsPenalty = 1e9
)

// Result is one per-process optimization outcome.
type Result struct {
	ProcessID   string    `json:"process_id"`
	SpeedFactor float64   `json:"speed_factor"`
	FeedFactor  float64   `json:"feed_factor"`
	Objective   float64   `json:"objective"`
	Iterations  int       `json:"iterations"`
	Timestamp   time.Time `json:"timestamp"`
}

// Optimizer minimizes a weighted objective over the two control factors.
// Each call is independent; failures for one process never block others.
type Optimizer struct {
	logger *slog.Logger
}

// New creates an optimizer.
func New(logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{logger: logger.With("component", "optimizer")}
}

// objective evaluates the weighted trade-off at (speed, feed). Simulated
// quality falls with aggressive factors, cycle time shrinks as either
// factor grows, and energy rises superlinearly with speed.
func objective(pred ml.Prediction, speed, feed float64) float64 {
	simQuality := pred.PredictedQuality * (1 - 0.15*(speed-1) - 0.05*(feed-1))
	simCycle := pred.PredictedCycleTime / (speed * feed)
	simEnergy := pred.EnergyForecast * (0.4 + 0.4*speed*speed + 0.2*feed)

	return -weightQuality*simQuality + weightCycleTime*simCycle + weightEnergy*simEnergy
}

// Optimize searches the bounded factor box for the prediction's process.
// Non-convergence returns a wrapped errors.ErrNoConvergence.
func (o *Optimizer) Optimize(pred ml.Prediction) (Result, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			speed, feed := x[0], x[1]
			if speed < FactorMin || speed > FactorMax || feed < FactorMin || feed > FactorMax {
				return boundsPenalty + math.Abs(speed-1) + math.Abs(feed-1)
			}
			return objective(pred, speed, feed)
		},
	}

	initial := []float64{1.0, 1.0}
	res, err := optimize.Minimize(problem, initial, nil, &optimize.NelderMead{})
	if err != nil {
		o.logger.Error("optimization failed",
			"process_id", pred.ProcessID, "error", err)
		return Result{}, errors.WrapTransient(errors.ErrNoConvergence,
			"Optimizer", "Optimize", "minimizing control objective")
	}
	if res.Status != optimize.GradientThreshold &&
		res.Status != optimize.FunctionConvergence &&
		res.Status != optimize.Success {
		o.logger.Warn("optimization did not converge",
			"process_id", pred.ProcessID, "status", res.Status.String())
		return Result{}, errors.WrapTransient(errors.ErrNoConvergence,
			"Optimizer", "Optimize", "convergence check")
	}

	speed := clampFactor(res.X[0])
	feed := clampFactor(res.X[1])

	return Result{
		ProcessID:   pred.ProcessID,
		SpeedFactor: speed,
		FeedFactor:  feed,
		Objective:   objective(pred, speed, feed),
		Iterations:  res.Stats.MajorIterations,
		Timestamp:   time.Now(),
	}, nil
}

// OptimizeAll runs per-process searches. Processes whose search fails are
// omitted from the result map.
func (o *Optimizer) OptimizeAll(preds map[string]ml.Prediction) map[string]Result {
	results := make(map[string]Result, len(preds))
	for id, pred := range preds {
		res, err := o.Optimize(pred)
		if err != nil {
			o.logger.Warn("skipping process after failed optimization",
				"process_id", id, "error", err)
			continue
		}
		results[id] = res
	}
	return results
}

func clampFactor(v float64) float64 {
	if v < FactorMin {
		return FactorMin
	}
	if v > FactorMax {
		return FactorMax
	}
	return v
}
