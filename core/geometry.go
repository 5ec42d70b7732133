package core

import (
	"errors"
	"math"
)

// ErrZeroVector is returned when a direction or position of zero length is
// used where a finite direction is required.
var ErrZeroVector = errors.New("zero-length vector")

// Vec3 is a point or direction in the globe's world (or local) frame, in the
// same unit as the sphere radius.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns v × other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Normalize returns the unit vector along v, or ErrZeroVector.
func (v Vec3) Normalize() (Vec3, error) {
	n := v.Norm()
	if n == 0 || math.IsNaN(n) {
		return Vec3{}, ErrZeroVector
	}
	return v.Scale(1 / n), nil
}

// RotateY rotates the vector by angle radians about the polar (Y) axis,
// right-handed, matching a scene-graph rotation.y.
func (v Vec3) RotateY(angle float64) Vec3 {
	sin, cos := math.Sincos(angle)
	return Vec3{
		X: v.X*cos + v.Z*sin,
		Y: v.Y,
		Z: -v.X*sin + v.Z*cos,
	}
}

// AngleDegrees returns the angle between two directions in degrees. Zero
// vectors yield 0.
func AngleDegrees(a, b Vec3) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	cosGamma := a.Dot(b) / (na * nb)
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	return math.Acos(cosGamma) * radToDeg
}
