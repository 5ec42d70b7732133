package scene

import (
	"time"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/interaction"
	"github.com/signalsfoundry/globe-poi/kb"
	"github.com/signalsfoundry/globe-poi/model"
)

// MarkerView is one marker as the presentation layer draws it. The dot is
// always drawn; LabelVisible gates only the text label.
type MarkerView struct {
	ID           string              `json:"id"`
	Location     model.GeoCoordinate `json:"location"`
	Position     core.Vec3           `json:"position"`
	Label        core.Vec3           `json:"label"`
	LabelVisible bool                `json:"label_visible"`
	Hovered      bool                `json:"hovered"`
	Scale        float64             `json:"scale"`
}

// FrameSnapshot is the full per-frame output handed to the presentation
// layer.
type FrameSnapshot struct {
	Index     uint64                `json:"index"`
	Elapsed   time.Duration         `json:"elapsed_ns"`
	Time      time.Time             `json:"time"`
	Rotation  float64               `json:"rotation"`
	Camera    core.Camera           `json:"camera"`
	Markers   []MarkerView          `json:"markers"`
	Visible   int                   `json:"visible_labels"`
	Selection interaction.Selection `json:"selection"`
}

func markerView(m kb.Marker) MarkerView {
	return MarkerView{
		ID:       m.ID,
		Location: m.Location,
		Position: m.World,
		// Spinning about Y leaves the lift direction unchanged.
		Label:        m.World.Add(core.Vec3{Y: core.DefaultLabelLift}),
		LabelVisible: m.Visible,
		Hovered:      m.Hovered,
		Scale:        m.Scale,
	}
}

// Marker finds a marker by ID in the snapshot.
func (f FrameSnapshot) Marker(id string) (MarkerView, bool) {
	for _, m := range f.Markers {
		if m.ID == id {
			return m, true
		}
	}
	return MarkerView{}, false
}
