package core

import (
	"math"
	"time"
)

// PulseAnimator drives the cosmetic scale pulse applied to every marker dot.
type PulseAnimator struct {
	Amplitude float64
	Frequency float64 // radians per second
}

// DefaultPulse is a ±30% pulse at 3 rad/s.
func DefaultPulse() PulseAnimator {
	return PulseAnimator{Amplitude: 0.3, Frequency: 3}
}

// Scale returns 1 + Amplitude·sin(elapsed·Frequency).
func (p PulseAnimator) Scale(elapsed time.Duration) float64 {
	return 1 + p.Amplitude*math.Sin(elapsed.Seconds()*p.Frequency)
}
