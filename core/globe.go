package core

import "github.com/signalsfoundry/globe-poi/model"

const (
	// DefaultRadius is the globe radius used by the scene.
	DefaultRadius = 2.0
	// DefaultMarkerOffset lifts marker anchors above the surface so their own
	// line of sight does not graze the sphere on the visible hemisphere.
	DefaultMarkerOffset = 0.05
	// DefaultMarkerSize is the radius of a marker's clickable dot.
	DefaultMarkerSize = 0.05
	// DefaultLabelLift is how far above the dot its text label is drawn.
	DefaultLabelLift = 0.1
)

// Globe is the sphere plus its current spin about the polar axis. Markers are
// anchored in the globe's local frame and move with it.
type Globe struct {
	Sphere   Sphere
	Rotation float64 // radians about +Y
}

// NewGlobe returns an unrotated globe of the given radius.
func NewGlobe(radius float64) Globe {
	return Globe{Sphere: Sphere{Radius: radius}}
}

// LocalToWorld maps a globe-local point into world space.
func (g Globe) LocalToWorld(v Vec3) Vec3 {
	return v.RotateY(g.Rotation)
}

// WorldToLocal maps a world point into the globe's local frame.
func (g Globe) WorldToLocal(v Vec3) Vec3 {
	return v.RotateY(-g.Rotation)
}

// Intersect casts a world-space ray against the globe body.
func (g Globe) Intersect(r Ray) (Hit, bool) {
	return g.Sphere.Intersect(r)
}

// Anchor returns the local-frame position of a marker at loc lifted offset
// units above the surface.
func (g Globe) Anchor(loc model.GeoCoordinate, offset float64) Vec3 {
	return Project(loc, g.Sphere.Radius+offset)
}

// Locate resolves a world-space point on (or near) the globe to the
// geographic coordinate beneath it, undoing the globe's spin.
func (g Globe) Locate(world Vec3) (model.GeoCoordinate, error) {
	return ToGeo(g.WorldToLocal(world))
}
