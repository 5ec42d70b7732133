package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// RotationModel yields the globe's spin about its polar axis for a frame.
type RotationModel interface {
	// Angle returns the rotation in radians given the scene's elapsed time and
	// the frame's wall-clock time.
	Angle(elapsed time.Duration, now time.Time) float64
}

// StaticRotation keeps the globe still.
type StaticRotation struct{}

// Angle always returns 0.
func (StaticRotation) Angle(time.Duration, time.Time) float64 { return 0 }

// SpinRotation turns the globe at a constant rate from the scene start.
type SpinRotation struct {
	RadiansPerSecond float64
}

// Angle returns rate·elapsed, wrapped to [0, 2π).
func (s SpinRotation) Angle(elapsed time.Duration, _ time.Time) float64 {
	a := math.Mod(elapsed.Seconds()*s.RadiansPerSecond, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// SiderealRotation orients the globe by Greenwich mean sidereal time so the
// prime meridian faces where it does relative to the stars at that instant.
type SiderealRotation struct{}

// Angle returns GMST in radians for now (UTC).
func (SiderealRotation) Angle(_ time.Duration, now time.Time) float64 {
	now = now.UTC()
	year, month, day := now.Date()
	hour, min, sec := now.Clock()

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	return satellite.ThetaG_JD(jd)
}

// Rotation mode names accepted by NewRotationModel.
const (
	RotationNone     = "none"
	RotationSpin     = "spin"
	RotationSidereal = "sidereal"
)

// DefaultSpinRate is the idle spin of the viewer, in rad/s.
const DefaultSpinRate = 0.1

// NewRotationModel chooses a RotationModel by name. spinRate is used by the
// spin mode only.
func NewRotationModel(mode string, spinRate float64) (RotationModel, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", RotationNone, "static":
		return StaticRotation{}, nil
	case RotationSpin:
		return SpinRotation{RadiansPerSecond: spinRate}, nil
	case RotationSidereal, "gmst":
		return SiderealRotation{}, nil
	default:
		return nil, fmt.Errorf("unknown rotation mode %q", mode)
	}
}
