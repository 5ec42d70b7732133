package core

import (
	"time"

	"github.com/signalsfoundry/globe-poi/model"
)

// MarkerAnchor is a marker's fixed position in the globe frame.
type MarkerAnchor struct {
	ID       string
	Location model.GeoCoordinate
	Local    Vec3
}

// MarkerState is the per-frame result for one marker.
type MarkerState struct {
	ID      string
	World   Vec3
	Visible bool
	Scale   float64
}

// MarkerStore is the slice of the marker knowledge base the visibility pass
// needs: read the anchors, write back the frame.
type MarkerStore interface {
	Anchors() []MarkerAnchor
	ApplyFrame(states []MarkerState)
}

// FrameResult summarises one visibility pass.
type FrameResult struct {
	Rotation float64
	Visible  int
	States   []MarkerState
}

// VisibilityService evaluates, once per frame, where every marker sits in
// world space, whether its label clears the globe and how large its dot is.
// It is driven by the render loop and is not safe for concurrent use.
type VisibilityService struct {
	Store    MarkerStore
	Rotation RotationModel
	Pulse    PulseAnimator

	globe Globe
}

// NewVisibilityService wires a store to a static globe of the given radius
// and the default pulse.
func NewVisibilityService(store MarkerStore, radius float64) *VisibilityService {
	return &VisibilityService{
		Store:    store,
		Rotation: StaticRotation{},
		Pulse:    DefaultPulse(),
		globe:    NewGlobe(radius),
	}
}

// Globe returns the globe as oriented on the last Update.
func (vs *VisibilityService) Globe() Globe {
	return vs.globe
}

// Update spins the globe to its orientation for the frame, then tests each
// marker against the camera and writes the states back to the store.
// O(markers); no I/O.
func (vs *VisibilityService) Update(cam Camera, elapsed time.Duration, now time.Time) FrameResult {
	if vs.Rotation != nil {
		vs.globe.Rotation = vs.Rotation.Angle(elapsed, now)
	}
	scale := vs.Pulse.Scale(elapsed)

	anchors := vs.Store.Anchors()
	res := FrameResult{
		Rotation: vs.globe.Rotation,
		States:   make([]MarkerState, 0, len(anchors)),
	}
	for _, a := range anchors {
		world := vs.globe.LocalToWorld(a.Local)
		visible := LabelVisible(vs.globe, cam.Position, world)
		if visible {
			res.Visible++
		}
		res.States = append(res.States, MarkerState{
			ID:      a.ID,
			World:   world,
			Visible: visible,
			Scale:   scale,
		})
	}
	vs.Store.ApplyFrame(res.States)
	return res
}
