package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/globe-poi/model"
)

func TestSphereValidate(t *testing.T) {
	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := (Sphere{Radius: r}).Validate(); err == nil {
			t.Fatalf("radius %v accepted", r)
		}
	}
	if err := (Sphere{Radius: 2}).Validate(); err != nil {
		t.Fatalf("radius 2 rejected: %v", err)
	}
}

func TestSphereIntersectNearestPoint(t *testing.T) {
	s := Sphere{Radius: 2}
	ray, err := NewRay(Vec3{Z: 6}, Vec3{})
	if err != nil {
		t.Fatalf("NewRay: %v", err)
	}
	hit, ok := s.Intersect(ray)
	if !ok {
		t.Fatalf("expected a hit")
	}
	if math.Abs(hit.Distance-4) > 1e-12 || math.Abs(hit.Point.Z-2) > 1e-12 {
		t.Fatalf("hit = %+v, want distance 4 at z=2", hit)
	}
}

func TestSphereIntersectFromInsideOrBehindMisses(t *testing.T) {
	s := Sphere{Radius: 2}
	inside := Ray{Origin: Vec3{}, Direction: Vec3{Z: 1}}
	if _, ok := s.Intersect(inside); ok {
		t.Fatalf("ray from the centre should not hit the outer surface")
	}
	away := Ray{Origin: Vec3{Z: 6}, Direction: Vec3{Z: 1}}
	if _, ok := s.Intersect(away); ok {
		t.Fatalf("ray pointing away should miss")
	}
}

func TestNewRayZeroLength(t *testing.T) {
	if _, err := NewRay(Vec3{X: 1}, Vec3{X: 1}); err == nil {
		t.Fatalf("expected ErrZeroVector")
	}
}

func TestGlobeFramesAreInverse(t *testing.T) {
	g := NewGlobe(2)
	g.Rotation = 1.234
	p := Vec3{X: 0.3, Y: -1.1, Z: 1.6}
	back := g.WorldToLocal(g.LocalToWorld(p))
	if back.DistanceTo(p) > 1e-12 {
		t.Fatalf("round trip = %+v, want %+v", back, p)
	}
}

func TestGlobeAnchorAndLocate(t *testing.T) {
	g := NewGlobe(2)
	loc := model.GeoCoordinate{Lat: -33.8688, Lon: 151.2093}
	anchor := g.Anchor(loc, DefaultMarkerOffset)
	if math.Abs(anchor.Norm()-(2+DefaultMarkerOffset)) > 1e-9 {
		t.Fatalf("anchor radius = %v", anchor.Norm())
	}

	g.Rotation = math.Pi / 3
	got, err := g.Locate(g.LocalToWorld(anchor))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if math.Abs(got.Lat-loc.Lat) > 1e-6 || math.Abs(got.Lon-loc.Lon) > 1e-6 {
		t.Fatalf("Locate = %+v, want %+v", got, loc)
	}
}
