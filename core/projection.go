package core

import (
	"math"

	"github.com/signalsfoundry/globe-poi/model"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// ToCartesian projects a geographic coordinate onto a sphere of the given
// radius centred at the origin.
//
// Axis convention: Y is the polar axis (north pole at +Y) and the azimuth is
// offset by 180° so the longitude seam (±180°) lies on -X. Surface textures
// must be authored to this convention.
func ToCartesian(lat, lon, radius float64) Vec3 {
	phi := (90 - lat) * degToRad
	theta := (lon + 180) * degToRad

	return Vec3{
		X: -radius * math.Sin(phi) * math.Cos(theta),
		Y: radius * math.Cos(phi),
		Z: radius * math.Sin(phi) * math.Sin(theta),
	}
}

// Project is ToCartesian for a model.GeoCoordinate.
func Project(g model.GeoCoordinate, radius float64) Vec3 {
	return ToCartesian(g.Lat, g.Lon, radius)
}

// ToGeo is the inverse of ToCartesian. The radius is recovered from the point
// itself, so any point along the same direction maps to the same coordinate.
//
// Longitude is undefined at the poles; whatever atan2 yields there is returned.
// The zero vector has no direction and returns ErrZeroVector.
func ToGeo(p Vec3) (model.GeoCoordinate, error) {
	r := p.Norm()
	if r == 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return model.GeoCoordinate{}, ErrZeroVector
	}

	cosPhi := p.Y / r
	if cosPhi > 1 {
		cosPhi = 1
	} else if cosPhi < -1 {
		cosPhi = -1
	}

	lat := 90 - math.Acos(cosPhi)*radToDeg
	// atan2(z, x) = 180° - theta, and theta = lon + 180°. The older form
	// (atan2·180/π - 180)·-1 is this value plus 180° and does not invert
	// ToCartesian.
	lon := -math.Atan2(p.Z, p.X) * radToDeg

	return model.GeoCoordinate{Lat: lat, Lon: lon}, nil
}

// NormalizeLongitude folds any longitude into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	l := math.Mod(lon+180, 360)
	if l < 0 {
		l += 360
	}
	return l - 180
}
