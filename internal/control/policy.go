package control

import (
	"time"

	"dronetrack/internal/bus"
	"dronetrack/internal/config"
)

// Tuning is the live controller configuration.
type Tuning struct {
	XThreshold float32
	ZThreshold float32
	// PulseDuration is how long each correction is re-sent.
	PulseDuration time.Duration
	// RepeatInterval pauses the loop between policy evaluations.
	RepeatInterval time.Duration
	// ReissueInterval spaces the sends within a pulse; zero sends back to
	// back.
	ReissueInterval time.Duration
	ManualGain      float32
}

// DefaultTuning matches the historical controller.
func DefaultTuning() Tuning {
	return TuningFromConfig(config.Default().Controller)
}

// TuningFromConfig converts the controller config section.
func TuningFromConfig(c config.Controller) Tuning {
	return Tuning{
		XThreshold:      float32(c.XThreshold),
		ZThreshold:      float32(c.ZThreshold),
		PulseDuration:   c.PulseDuration(),
		RepeatInterval:  c.RepeatInterval(),
		ReissueInterval: c.ReissueInterval(),
		ManualGain:      float32(c.ManualGain),
	}
}

// Correction is one planned pulse.
type Correction struct {
	Axis    string
	Command Command
}

// Plan applies the priority policy to v:
//  1. |x| above XThreshold corrects x alone;
//  2. else |z| above ZThreshold corrects z alone;
//  3. else x, y and z are corrected in that order.
func Plan(v bus.ErrorVector, t Tuning) []Correction {
	switch {
	case abs(v.X) > t.XThreshold:
		return []Correction{{Axis: AxisX, Command: AxisCommand(AxisX, v.X)}}
	case abs(v.Z) > t.ZThreshold:
		return []Correction{{Axis: AxisZ, Command: AxisCommand(AxisZ, v.Z)}}
	default:
		return []Correction{
			{Axis: AxisX, Command: AxisCommand(AxisX, v.X)},
			{Axis: AxisY, Command: AxisCommand(AxisY, v.Y)},
			{Axis: AxisZ, Command: AxisCommand(AxisZ, v.Z)},
		}
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
