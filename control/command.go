// Package control defines the tagged command variants published on the
// control channel. Each kind carries named, typed fields; the envelope's
// kind tag selects the variant on decode.
package control

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/optimize"
)

// Kind identifies one command variant.
type Kind string

const (
	KindPhysicsFeedback    Kind = "physics_feedback"
	KindPredictionUpdate   Kind = "prediction_update"
	KindOptimizationUpdate Kind = "optimization_update"
	KindStartProcess       Kind = "start_process"
	KindStopProcess        Kind = "stop_process"
	KindSetParameters      Kind = "set_parameters"
	KindEmergencyStop      Kind = "emergency_stop"
)

// Command is one control-channel message.
type Command interface {
	Kind() Kind
	Validate() error
}

// PhysicsFeedback reports simulation-derived safety margins back to the
// equipment controller.
type PhysicsFeedback struct {
	ProcessID    string    `json:"process_id"`
	MaxStress    float64   `json:"max_stress"`
	SafetyFactor float64   `json:"safety_factor"`
	MeanTemp     float64   `json:"mean_temp"`
	Degraded     bool      `json:"degraded"`
	Timestamp    time.Time `json:"timestamp"`
}

func (PhysicsFeedback) Kind() Kind { return KindPhysicsFeedback }

func (c PhysicsFeedback) Validate() error {
	if c.ProcessID == "" {
		return errors.WrapInvalid(errors.ErrProcessNotFound,
			"PhysicsFeedback", "Validate", "process id check")
	}
	return nil
}

// PredictionUpdate publishes the latest inference output for a process.
type PredictionUpdate struct {
	ProcessID              string    `json:"process_id"`
	PredictedQuality       float64   `json:"predicted_quality"`
	PredictedCycleTime     float64   `json:"predicted_cycle_time"`
	MaintenanceProbability float64   `json:"maintenance_probability"`
	Confidence             float64   `json:"confidence"`
	Anomaly                bool      `json:"anomaly"`
	Timestamp              time.Time `json:"timestamp"`
}

func (PredictionUpdate) Kind() Kind { return KindPredictionUpdate }

func (c PredictionUpdate) Validate() error {
	if c.ProcessID == "" {
		return errors.WrapInvalid(errors.ErrProcessNotFound,
			"PredictionUpdate", "Validate", "process id check")
	}
	return nil
}

// OptimizationUpdate recommends new control factors for a process.
type OptimizationUpdate struct {
	ProcessID   string    `json:"process_id"`
	SpeedFactor float64   `json:"speed_factor"`
	FeedFactor  float64   `json:"feed_factor"`
	Objective   float64   `json:"objective"`
	Timestamp   time.Time `json:"timestamp"`
}

func (OptimizationUpdate) Kind() Kind { return KindOptimizationUpdate }

func (c OptimizationUpdate) Validate() error {
	if c.ProcessID == "" {
		return errors.WrapInvalid(errors.ErrProcessNotFound,
			"OptimizationUpdate", "Validate", "process id check")
	}
	if c.SpeedFactor < optimize.FactorMin || c.SpeedFactor > optimize.FactorMax ||
		c.FeedFactor < optimize.FactorMin || c.FeedFactor > optimize.FactorMax {
		return errors.WrapInvalid(errors.ErrInvalidFrame,
			"OptimizationUpdate", "Validate", "factor bounds check")
	}
	return nil
}

// StartProcess activates a catalog process.
type StartProcess struct {
	ProcessID string    `json:"process_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (StartProcess) Kind() Kind { return KindStartProcess }

func (c StartProcess) Validate() error {
	if c.ProcessID == "" {
		return errors.WrapInvalid(errors.ErrProcessNotFound,
			"StartProcess", "Validate", "process id check")
	}
	return nil
}

// StopProcess deactivates a catalog process.
type StopProcess struct {
	ProcessID string    `json:"process_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (StopProcess) Kind() Kind { return KindStopProcess }

func (c StopProcess) Validate() error {
	if c.ProcessID == "" {
		return errors.WrapInvalid(errors.ErrProcessNotFound,
			"StopProcess", "Validate", "process id check")
	}
	return nil
}

// SetParameters replaces named control parameters on a process.
type SetParameters struct {
	ProcessID  string             `json:"process_id"`
	Parameters map[string]float64 `json:"parameters"`
	Timestamp  time.Time          `json:"timestamp"`
}

func (SetParameters) Kind() Kind { return KindSetParameters }

func (c SetParameters) Validate() error {
	if c.ProcessID == "" {
		return errors.WrapInvalid(errors.ErrProcessNotFound,
			"SetParameters", "Validate", "process id check")
	}
	if len(c.Parameters) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidFrame,
			"SetParameters", "Validate", "parameter map check")
	}
	return nil
}

// EmergencyStop halts every active process immediately.
type EmergencyStop struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (EmergencyStop) Kind() Kind { return KindEmergencyStop }

func (EmergencyStop) Validate() error { return nil }

// envelope is the wire form: a kind tag plus the raw variant payload.
type envelope struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps a command in its tagged envelope. Each envelope carries a
// fresh correlation id so controller logs can be matched to twin logs.
func Encode(cmd Command) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, errors.Wrap(err, "control", "Encode", "command validation")
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, errors.WrapInvalid(err, "control", "Encode", "payload marshal")
	}
	return json.Marshal(envelope{ID: uuid.NewString(), Kind: cmd.Kind(), Payload: payload})
}

// Decode parses a tagged envelope into its concrete variant.
func Decode(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapInvalid(err, "control", "Decode", "envelope unmarshal")
	}

	var cmd Command
	switch env.Kind {
	case KindPhysicsFeedback:
		cmd = &PhysicsFeedback{}
	case KindPredictionUpdate:
		cmd = &PredictionUpdate{}
	case KindOptimizationUpdate:
		cmd = &OptimizationUpdate{}
	case KindStartProcess:
		cmd = &StartProcess{}
	case KindStopProcess:
		cmd = &StopProcess{}
	case KindSetParameters:
		cmd = &SetParameters{}
	case KindEmergencyStop:
		cmd = &EmergencyStop{}
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown command kind %q", env.Kind),
			"control", "Decode", "kind dispatch")
	}

	if err := json.Unmarshal(env.Payload, cmd); err != nil {
		return nil, errors.WrapInvalid(err, "control", "Decode", "payload unmarshal")
	}
	if err := cmd.Validate(); err != nil {
		return nil, errors.Wrap(err, "control", "Decode", "command validation")
	}
	return cmd, nil
}
