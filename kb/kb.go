package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/model"
)

var (
	// ErrMarkerNotFound is returned when an ID is not in the store.
	ErrMarkerNotFound = errors.New("marker not found")
	// ErrMarkerExists is returned when adding a marker whose ID is taken.
	ErrMarkerExists = errors.New("marker already exists")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventMarkersLoaded EventType = iota
	EventMarkerAdded
	EventMarkerHovered
	EventMarkersCleared
)

func (t EventType) String() string {
	switch t {
	case EventMarkersLoaded:
		return "loaded"
	case EventMarkerAdded:
		return "added"
	case EventMarkerHovered:
		return "hovered"
	case EventMarkersCleared:
		return "cleared"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted to subscribers when the marker set or hover state changes.
// Per-frame updates are not published here; the scene snapshots cover them.
type Event struct {
	Type   EventType
	Marker Marker // set for EventMarkerAdded and EventMarkerHovered
	Count  int    // markers in the store after the change
}

// Marker is a point of interest anchored to the globe. The record name is
// its ID for the whole session.
type Marker struct {
	ID       string              `json:"id"`
	Location model.GeoCoordinate `json:"location"`
	// Local is the anchor in the globe frame at radius plus offset; World is
	// where it sat on the last applied frame.
	Local   core.Vec3 `json:"local"`
	World   core.Vec3 `json:"world"`
	Visible bool      `json:"visible"`
	Hovered bool      `json:"hovered"`
	Scale   float64   `json:"scale"`
}

// Option configures a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithGlobeRadius sets the sphere radius marker anchors are projected onto.
func WithGlobeRadius(r float64) Option {
	return func(kb *KnowledgeBase) { kb.radius = r }
}

// WithMarkerOffset sets how far above the surface anchors are lifted.
func WithMarkerOffset(offset float64) Option {
	return func(kb *KnowledgeBase) { kb.offset = offset }
}

// KnowledgeBase is an in-memory, thread-safe store for the session's markers.
// Iteration follows load order.
type KnowledgeBase struct {
	mu sync.RWMutex

	radius float64
	offset float64

	order   []string
	markers map[string]*Marker

	subs    map[int]func(Event)
	nextSub int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase(opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		radius:  core.DefaultRadius,
		offset:  core.DefaultMarkerOffset,
		markers: make(map[string]*Marker),
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

func (kb *KnowledgeBase) newMarker(rec model.MarkerRecord) *Marker {
	loc := rec.Location()
	local := core.Project(loc, kb.radius+kb.offset)
	return &Marker{
		ID:       rec.Name,
		Location: loc,
		Local:    local,
		World:    local,
		Scale:    1,
	}
}

// Load replaces the whole marker set. The previous markers are destroyed,
// including their hover state.
func (kb *KnowledgeBase) Load(records []model.MarkerRecord) error {
	if err := model.ValidateRecords(records); err != nil {
		return fmt.Errorf("load markers: %w", err)
	}

	kb.mu.Lock()
	kb.order = make([]string, 0, len(records))
	kb.markers = make(map[string]*Marker, len(records))
	for _, rec := range records {
		kb.order = append(kb.order, rec.Name)
		kb.markers[rec.Name] = kb.newMarker(rec)
	}
	event := Event{Type: EventMarkersLoaded, Count: len(kb.order)}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// Add appends a single marker. It returns ErrMarkerExists if the name is taken.
func (kb *KnowledgeBase) Add(rec model.MarkerRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	kb.mu.Lock()
	if _, exists := kb.markers[rec.Name]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrMarkerExists, rec.Name)
	}
	m := kb.newMarker(rec)
	kb.order = append(kb.order, rec.Name)
	kb.markers[rec.Name] = m
	event := Event{Type: EventMarkerAdded, Marker: *m, Count: len(kb.order)}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// Get returns a copy of the marker with the given ID.
func (kb *KnowledgeBase) Get(id string) (Marker, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	m, ok := kb.markers[id]
	if !ok {
		return Marker{}, fmt.Errorf("%w: %q", ErrMarkerNotFound, id)
	}
	return *m, nil
}

// List returns a snapshot of all markers in load order.
func (kb *KnowledgeBase) List() []Marker {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]Marker, 0, len(kb.order))
	for _, id := range kb.order {
		res = append(res, *kb.markers[id])
	}
	return res
}

// Len returns the number of markers.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.order)
}

// SetHovered records pointer over/out for a marker. Subscribers are only
// notified when the flag actually changes.
func (kb *KnowledgeBase) SetHovered(id string, hovered bool) error {
	kb.mu.Lock()
	m, ok := kb.markers[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrMarkerNotFound, id)
	}
	if m.Hovered == hovered {
		kb.mu.Unlock()
		return nil
	}
	m.Hovered = hovered
	event := Event{Type: EventMarkerHovered, Marker: *m, Count: len(kb.order)}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// Anchors lists every marker's local anchor in load order.
func (kb *KnowledgeBase) Anchors() []core.MarkerAnchor {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]core.MarkerAnchor, 0, len(kb.order))
	for _, id := range kb.order {
		m := kb.markers[id]
		res = append(res, core.MarkerAnchor{ID: m.ID, Location: m.Location, Local: m.Local})
	}
	return res
}

// ApplyFrame stores the per-frame state computed for each marker. States for
// IDs no longer in the store are ignored; a reload may race a frame.
func (kb *KnowledgeBase) ApplyFrame(states []core.MarkerState) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	for _, s := range states {
		m, ok := kb.markers[s.ID]
		if !ok {
			continue
		}
		m.World = s.World
		m.Visible = s.Visible
		m.Scale = s.Scale
	}
}

// Targets returns the hit-test targets for the markers at their last world
// positions.
func (kb *KnowledgeBase) Targets() []core.MarkerTarget {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]core.MarkerTarget, 0, len(kb.order))
	for _, id := range kb.order {
		m := kb.markers[id]
		res = append(res, core.MarkerTarget{ID: m.ID, World: m.World, Location: m.Location})
	}
	return res
}

// Clear removes every marker, as when the view unmounts.
func (kb *KnowledgeBase) Clear() {
	kb.mu.Lock()
	kb.order = nil
	kb.markers = make(map[string]*Marker)
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventMarkersCleared})
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	return subs
}

// notify runs outside the lock so callbacks may call back into the KB.
func notify(subs []func(Event), event Event) {
	for _, sub := range subs {
		sub(event)
	}
}
