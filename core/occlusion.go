package core

// LabelVisible reports whether the globe body leaves the line of sight from
// the camera to a marker clear. The marker is visible when the ray toward it
// misses the globe, or when the marker is strictly nearer than the first
// globe intersection. A marker at the camera position is visible.
//
// Both positions are world space.
func LabelVisible(g Globe, camera, marker Vec3) bool {
	ray, err := NewRay(camera, marker)
	if err != nil {
		return true
	}
	hit, ok := g.Intersect(ray)
	if !ok {
		return true
	}
	return camera.DistanceTo(marker) < hit.Distance
}
