package interaction

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/globe-poi/model"
)

// State is the phase of the selection cycle.
type State int

const (
	StateEmpty State = iota
	StatePendingName
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePendingName:
		return "pending"
	case StateResolved:
		return "resolved"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "empty":
		*s = StateEmpty
	case "pending":
		*s = StatePendingName
	case "resolved":
		*s = StateResolved
	default:
		return fmt.Errorf("unknown selection state %q", b)
	}
	return nil
}

// TargetKind says what was selected.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetMarker
	TargetSurface
)

func (k TargetKind) String() string {
	switch k {
	case TargetMarker:
		return "marker"
	case TargetSurface:
		return "surface"
	default:
		return "none"
	}
}

// MarshalText renders the kind by name.
func (k TargetKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText parses a name produced by MarshalText.
func (k *TargetKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*k = TargetNone
	case "marker":
		*k = TargetMarker
	case "surface":
		*k = TargetSurface
	default:
		return fmt.Errorf("unknown target kind %q", b)
	}
	return nil
}

// Selection is the controller's owned record of what the user picked.
// RequestID identifies the selection cycle; zero means no cycle is active.
type Selection struct {
	State      State               `json:"state"`
	Kind       TargetKind          `json:"kind"`
	RequestID  uint64              `json:"request_id"`
	MarkerID   string              `json:"marker_id,omitempty"`
	Location   model.GeoCoordinate `json:"location"`
	Name       string              `json:"name,omitempty"`
	Fallback   bool                `json:"fallback,omitempty"` // Name is the failed-lookup placeholder
	SelectedAt time.Time           `json:"selected_at"`
}

// Active reports whether anything is selected.
func (s Selection) Active() bool { return s.State != StateEmpty }

// ModalView is what the overlay displays: the name and the coordinate to
// four decimal places.
type ModalView struct {
	Name    string `json:"name"`
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Pending bool   `json:"pending"`
}

// View formats the selection for the modal. ok is false when nothing is
// selected and the modal should be closed.
func (s Selection) View() (view ModalView, ok bool) {
	if !s.Active() {
		return ModalView{}, false
	}
	return ModalView{
		Name:    s.Name,
		Lat:     fmt.Sprintf("%.4f", s.Location.Lat),
		Lon:     fmt.Sprintf("%.4f", s.Location.Lon),
		Pending: s.State == StatePendingName,
	}, true
}

// NameResult is the outcome of one asynchronous lookup, tagged with the
// cycle that requested it.
type NameResult struct {
	RequestID uint64
	Location  model.GeoCoordinate
	Name      string
	Err       error
	Duration  time.Duration
}
