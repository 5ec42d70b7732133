package core

import (
	"fmt"
	"math"
)

// Sphere is the globe body: a ball of Radius centred at the world origin.
// Every projection and raycast in a session must use the same radius;
// changing it invalidates all derived Cartesian positions.
type Sphere struct {
	Radius float64
}

// Validate rejects non-positive or non-finite radii.
func (s Sphere) Validate() error {
	if !(s.Radius > 0) || math.IsInf(s.Radius, 0) {
		return fmt.Errorf("sphere radius must be positive, got %v", s.Radius)
	}
	return nil
}

// Ray is a half-line starting at Origin along the unit vector Direction.
type Ray struct {
	Origin    Vec3
	Direction Vec3
}

// NewRay builds a ray from origin toward target. It fails with ErrZeroVector
// when the two points coincide.
func NewRay(origin, target Vec3) (Ray, error) {
	dir, err := target.Sub(origin).Normalize()
	if err != nil {
		return Ray{}, err
	}
	return Ray{Origin: origin, Direction: dir}, nil
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// Hit is the nearest intersection of a ray with a surface.
type Hit struct {
	// Distance from the ray origin to Point.
	Distance float64
	Point    Vec3
}

// Intersect returns the nearest intersection of r with the sphere's outward
// facing surface.
func (s Sphere) Intersect(r Ray) (Hit, bool) {
	return intersectBall(Vec3{}, s.Radius, r)
}

// intersectBall intersects r with the ball (center, radius). Only entry
// points in front of the origin count: a ray starting inside the ball sees
// the back of the surface and misses, as does a ball behind the origin.
// A tangent ray counts as a hit.
func intersectBall(center Vec3, radius float64, r Ray) (Hit, bool) {
	l := center.Sub(r.Origin)
	tca := l.Dot(r.Direction)
	d2 := l.Dot(l) - tca*tca
	r2 := radius * radius
	if d2 > r2 {
		return Hit{}, false
	}
	thc := math.Sqrt(r2 - d2)
	t := tca - thc
	if t < 0 {
		return Hit{}, false
	}
	return Hit{Distance: t, Point: r.At(t)}, true
}
