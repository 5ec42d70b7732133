package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/globe-poi/model"
)

// PickKind classifies the outcome of a pointer pick.
type PickKind int

const (
	// PickMiss means the pointer ray hit nothing; callers treat it as a no-op.
	PickMiss PickKind = iota
	// PickMarker means a marker dot was hit.
	PickMarker
	// PickSurface means the globe surface was hit.
	PickSurface
)

func (k PickKind) String() string {
	switch k {
	case PickMarker:
		return "marker"
	case PickSurface:
		return "surface"
	default:
		return "miss"
	}
}

// MarshalText renders the kind by name.
func (k PickKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (k *PickKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "miss":
		*k = PickMiss
	case "marker":
		*k = PickMarker
	case "surface":
		*k = PickSurface
	default:
		return fmt.Errorf("unknown pick kind %q", b)
	}
	return nil
}

// PickResult is produced once per click and never stored.
type PickResult struct {
	Kind     PickKind            `json:"kind"`
	MarkerID string              `json:"marker_id,omitempty"`
	Location model.GeoCoordinate `json:"location"`
	// Point is the world-space hit point and Distance its distance from the
	// camera; both are zero for a miss.
	Point    Vec3    `json:"point"`
	Distance float64 `json:"distance"`
}

// MarkerTarget is a marker dot as seen by the hit test.
type MarkerTarget struct {
	ID       string
	World    Vec3
	Location model.GeoCoordinate
}

// SurfacePicker resolves pointer clicks against the globe body and, when
// configured with a dot size, against marker dots.
type SurfacePicker struct {
	Globe Globe
	// DotRadius is the hit radius of marker dots; zero disables marker hits.
	DotRadius float64
}

// Pick casts the ray for (ndcX, ndcY) against the globe only.
func (p SurfacePicker) Pick(cam Camera, ndcX, ndcY float64) (PickResult, error) {
	ray, err := cam.RayThrough(ndcX, ndcY)
	if err != nil {
		return PickResult{}, err
	}
	return p.PickRay(ray), nil
}

// PickRay intersects a world-space ray with the globe and resolves the
// nearest hit to a geographic coordinate.
func (p SurfacePicker) PickRay(ray Ray) PickResult {
	hit, ok := p.Globe.Intersect(ray)
	if !ok {
		return PickResult{Kind: PickMiss}
	}
	loc, err := p.Globe.Locate(hit.Point)
	if err != nil {
		// Only reachable for a zero-radius globe.
		return PickResult{Kind: PickMiss}
	}
	return PickResult{
		Kind:     PickSurface,
		Location: loc,
		Point:    hit.Point,
		Distance: hit.Distance,
	}
}

// PickWithMarkers tests marker dots first and falls back to the globe. A dot
// only wins when it is nearer than the globe hit along the same ray.
func (p SurfacePicker) PickWithMarkers(cam Camera, ndcX, ndcY float64, markers []MarkerTarget) (PickResult, error) {
	ray, err := cam.RayThrough(ndcX, ndcY)
	if err != nil {
		return PickResult{}, err
	}

	surface := p.PickRay(ray)
	if p.DotRadius <= 0 {
		return surface, nil
	}

	limit := math.Inf(1)
	if surface.Kind == PickSurface {
		limit = surface.Distance
	}

	best := PickResult{Kind: PickMiss}
	for _, m := range markers {
		hit, ok := intersectBall(m.World, p.DotRadius, ray)
		if !ok || hit.Distance >= limit {
			continue
		}
		limit = hit.Distance
		best = PickResult{
			Kind:     PickMarker,
			MarkerID: m.ID,
			Location: m.Location,
			Point:    hit.Point,
			Distance: hit.Distance,
		}
	}
	if best.Kind == PickMarker {
		return best, nil
	}
	return surface, nil
}
