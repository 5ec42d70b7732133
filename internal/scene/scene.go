// Package scene runs the globe's render loop. A single goroutine owns the
// camera, the selection and the per-frame marker state; transports talk to
// it through blocking command methods and read frames from snapshots.
package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/interaction"
	"github.com/signalsfoundry/globe-poi/internal/logging"
	"github.com/signalsfoundry/globe-poi/kb"
	"github.com/signalsfoundry/globe-poi/model"
	"github.com/signalsfoundry/globe-poi/timectrl"
)

var (
	// ErrClosed is returned by commands issued after Run has returned.
	ErrClosed = errors.New("scene closed")
	// ErrAlreadyRunning is returned by Run when it is called twice.
	ErrAlreadyRunning = errors.New("scene already running")
	// ErrMarkerNotFound re-exports the store's sentinel.
	ErrMarkerNotFound = kb.ErrMarkerNotFound
)

// Metrics receives render-loop telemetry. *observability.GlobeCollector
// satisfies it.
type Metrics interface {
	ObserveFrame(d time.Duration, markers, visible int)
	ObservePick(kind string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveFrame(time.Duration, int, int) {}
func (noopMetrics) ObservePick(string)                   {}

// ClickResult is what a pointer click produced.
type ClickResult struct {
	Pick      core.PickResult       `json:"pick"`
	Selection interaction.Selection `json:"selection"`
}

// Option customises Scene construction.
type Option func(*Scene)

// WithRadius sets the globe radius.
func WithRadius(r float64) Option { return func(s *Scene) { s.radius = r } }

// WithMarkerOffset sets how far markers float above the surface.
func WithMarkerOffset(o float64) Option { return func(s *Scene) { s.offset = o } }

// WithMarkerSize sets the clickable dot radius; zero leaves marker hit
// testing to the presentation layer.
func WithMarkerSize(r float64) Option { return func(s *Scene) { s.dotRadius = r } }

// WithCamera sets the initial camera.
func WithCamera(c core.Camera) Option { return func(s *Scene) { s.camera = c } }

// WithRotation sets the globe's rotation model.
func WithRotation(m core.RotationModel) Option { return func(s *Scene) { s.rotation = m } }

// WithPulse sets the marker pulse.
func WithPulse(p core.PulseAnimator) Option { return func(s *Scene) { s.pulse = p } }

// WithFrameClock replaces the default 16ms real-time clock.
func WithFrameClock(c *timectrl.FrameClock) Option { return func(s *Scene) { s.clock = c } }

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option { return func(s *Scene) { s.log = l } }

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option { return func(s *Scene) { s.metrics = m } }

// Scene ties the marker store, the visibility pass, the picker and the
// interaction controller to one event loop.
type Scene struct {
	radius    float64
	offset    float64
	dotRadius float64
	rotation  core.RotationModel
	pulse     core.PulseAnimator

	store  *kb.KnowledgeBase
	vis    *core.VisibilityService
	ctrl   *interaction.Controller
	clock  *timectrl.FrameClock
	camera core.Camera

	log     logging.Logger
	metrics Metrics

	cmds    chan func()
	done    chan struct{}
	started atomic.Bool

	latest atomic.Pointer[FrameSnapshot]

	subsMu     sync.Mutex
	subs       map[int]chan FrameSnapshot
	nextSub    int
	subsClosed bool
}

// New builds a scene around ctrl. The marker store is created here so its
// anchors share the globe's radius.
func New(ctrl *interaction.Controller, opts ...Option) *Scene {
	s := &Scene{
		radius:    core.DefaultRadius,
		offset:    core.DefaultMarkerOffset,
		dotRadius: core.DefaultMarkerSize,
		rotation:  core.StaticRotation{},
		pulse:     core.DefaultPulse(),
		ctrl:      ctrl,
		camera:    core.DefaultCamera(),
		log:       logging.Noop(),
		metrics:   noopMetrics{},
		cmds:      make(chan func()),
		done:      make(chan struct{}),
		subs:      make(map[int]chan FrameSnapshot),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.ctrl == nil {
		s.ctrl = interaction.NewController(nil)
	}
	if s.clock == nil {
		s.clock = timectrl.NewFrameClock(16*time.Millisecond, timectrl.RealTime)
	}
	if s.log == nil {
		s.log = logging.Noop()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}

	s.store = kb.NewKnowledgeBase(kb.WithGlobeRadius(s.radius), kb.WithMarkerOffset(s.offset))
	s.vis = core.NewVisibilityService(s.store, s.radius)
	s.vis.Rotation = s.rotation
	s.vis.Pulse = s.pulse
	return s
}

// Store exposes the marker knowledge base for read access and event
// subscriptions.
func (s *Scene) Store() *kb.KnowledgeBase { return s.store }

// Run drives the loop until ctx is done. A first frame is rendered before
// any command is served.
func (s *Scene) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)
	defer s.ctrl.Shutdown()
	defer s.closeSubscribers()

	s.log.Info(ctx, "scene started",
		logging.Int("markers", s.store.Len()),
		logging.Float64("radius", s.radius),
		logging.Duration("frame_interval", s.clock.Interval),
	)

	frames := s.clock.Frames(ctx)
	s.renderFrame(s.clock.Step())

	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "scene stopped")
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			s.renderFrame(f)
		case cmd := <-s.cmds:
			cmd()
		case r := <-s.ctrl.Results():
			if sel, applied := s.ctrl.Apply(ctx, r); applied {
				s.log.Debug(ctx, "selection resolved",
					logging.Uint64("request_id", sel.RequestID),
					logging.String("name", sel.Name),
					logging.Bool("fallback", sel.Fallback),
				)
			}
		}
	}
}

func (s *Scene) renderFrame(f timectrl.Frame) {
	// Frames can sit in the ticker channel across a Remount.
	if s.clock.Stale(f) {
		return
	}
	start := time.Now()
	res := s.vis.Update(s.camera, f.Elapsed, f.Time)

	markers := s.store.List()
	views := make([]MarkerView, 0, len(markers))
	for _, m := range markers {
		views = append(views, markerView(m))
	}
	snap := FrameSnapshot{
		Index:     f.Index,
		Elapsed:   f.Elapsed,
		Time:      f.Time,
		Rotation:  res.Rotation,
		Camera:    s.camera,
		Markers:   views,
		Visible:   res.Visible,
		Selection: s.ctrl.Selection(),
	}
	s.latest.Store(&snap)
	s.metrics.ObserveFrame(time.Since(start), len(res.States), res.Visible)
	s.publish(snap)
}

// do runs fn on the loop goroutine and waits for it.
func (s *Scene) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.cmds <- wrapped:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Accepted commands run to completion before the loop looks at anything
	// else.
	<-finished
	return nil
}

// Click handles a pointer click at normalised device coordinates. Marker
// dots are tested first, then the globe. A miss is a no-op.
func (s *Scene) Click(ctx context.Context, ndcX, ndcY float64) (ClickResult, error) {
	var (
		out  ClickResult
		perr error
	)
	err := s.do(ctx, func() {
		picker := core.SurfacePicker{Globe: s.vis.Globe(), DotRadius: s.dotRadius}
		pick, err := picker.PickWithMarkers(s.camera, ndcX, ndcY, s.store.Targets())
		if err != nil {
			perr = fmt.Errorf("pick: %w", err)
			return
		}
		s.metrics.ObservePick(pick.Kind.String())
		out.Pick = pick

		switch pick.Kind {
		case core.PickMarker:
			out.Selection = s.ctrl.SelectMarker(pick.MarkerID, pick.Location)
		case core.PickSurface:
			out.Selection = s.ctrl.SelectSurface(ctx, pick.Location)
			s.log.Debug(ctx, "surface picked",
				logging.String("location", pick.Location.String()),
				logging.Uint64("request_id", out.Selection.RequestID),
			)
		default:
			out.Selection = s.ctrl.Selection()
		}
	})
	if err != nil {
		return ClickResult{}, err
	}
	return out, perr
}

// ClickPixels converts a click in viewport pixels and handles it like Click.
func (s *Scene) ClickPixels(ctx context.Context, px, py, width, height float64) (ClickResult, error) {
	x, y, err := core.NDCFromPixels(px, py, width, height)
	if err != nil {
		return ClickResult{}, err
	}
	return s.Click(ctx, x, y)
}

// ClickMarker selects a marker the presentation layer hit-tested itself.
func (s *Scene) ClickMarker(ctx context.Context, id string) (interaction.Selection, error) {
	var (
		sel  interaction.Selection
		merr error
	)
	err := s.do(ctx, func() {
		m, err := s.store.Get(id)
		if err != nil {
			merr = err
			return
		}
		s.metrics.ObservePick(core.PickMarker.String())
		sel = s.ctrl.SelectMarker(m.ID, m.Location)
	})
	if err != nil {
		return interaction.Selection{}, err
	}
	return sel, merr
}

// Hover sets a marker's hovered flag (pointer over/out).
func (s *Scene) Hover(ctx context.Context, id string, hovered bool) error {
	var herr error
	if err := s.do(ctx, func() { herr = s.store.SetHovered(id, hovered) }); err != nil {
		return err
	}
	return herr
}

// HoverAt moves the pointer to normalised device coordinates: the marker
// under it, if any, becomes hovered and every other marker is un-hovered.
// It returns the hovered marker's ID or "".
func (s *Scene) HoverAt(ctx context.Context, ndcX, ndcY float64) (string, error) {
	var (
		id   string
		herr error
	)
	err := s.do(ctx, func() {
		picker := core.SurfacePicker{Globe: s.vis.Globe(), DotRadius: s.dotRadius}
		pick, err := picker.PickWithMarkers(s.camera, ndcX, ndcY, s.store.Targets())
		if err != nil {
			herr = err
			return
		}
		if pick.Kind == core.PickMarker {
			id = pick.MarkerID
		}
		for _, m := range s.store.List() {
			if err := s.store.SetHovered(m.ID, m.ID == id); err != nil {
				herr = err
				return
			}
		}
	})
	if err != nil {
		return "", err
	}
	return id, herr
}

// CloseSelection clears the selection; a pending lookup is discarded when it
// lands.
func (s *Scene) CloseSelection(ctx context.Context) (interaction.Selection, error) {
	var sel interaction.Selection
	err := s.do(ctx, func() { sel = s.ctrl.Close() })
	return sel, err
}

// Selection returns the current selection.
func (s *Scene) Selection(ctx context.Context) (interaction.Selection, error) {
	var sel interaction.Selection
	err := s.do(ctx, func() { sel = s.ctrl.Selection() })
	return sel, err
}

// SetCamera replaces the camera used from the next frame on.
func (s *Scene) SetCamera(ctx context.Context, cam core.Camera) error {
	if err := cam.Validate(); err != nil {
		return err
	}
	return s.do(ctx, func() { s.camera = cam })
}

// Camera returns the current camera.
func (s *Scene) Camera(ctx context.Context) (core.Camera, error) {
	var cam core.Camera
	err := s.do(ctx, func() { cam = s.camera })
	return cam, err
}

// LoadMarkers replaces the marker set. A selected marker that is no longer
// present is deselected.
func (s *Scene) LoadMarkers(ctx context.Context, records []model.MarkerRecord) error {
	var lerr error
	err := s.do(ctx, func() {
		if lerr = s.store.Load(records); lerr != nil {
			return
		}
		sel := s.ctrl.Selection()
		if sel.Kind == interaction.TargetMarker {
			if _, err := s.store.Get(sel.MarkerID); err != nil {
				s.ctrl.Close()
			}
		}
		s.log.Info(ctx, "markers loaded", logging.Int("markers", len(records)))
	})
	if err != nil {
		return err
	}
	return lerr
}

// Remount simulates the view being torn down and rebuilt: markers are
// recreated from the same records, the selection is closed and elapsed time
// restarts, which restarts the pulse.
func (s *Scene) Remount(ctx context.Context) error {
	var rerr error
	err := s.do(ctx, func() {
		markers := s.store.List()
		records := make([]model.MarkerRecord, 0, len(markers))
		for _, m := range markers {
			records = append(records, model.MarkerRecord{Name: m.ID, Lat: m.Location.Lat, Lon: m.Location.Lon})
		}
		if rerr = s.store.Load(records); rerr != nil {
			return
		}
		s.ctrl.Close()
		s.clock.Reset()
		s.renderFrame(s.clock.Step())
	})
	if err != nil {
		return err
	}
	return rerr
}

// Snapshot returns the most recent frame. ok is false before the first
// frame. Safe from any goroutine.
func (s *Scene) Snapshot() (FrameSnapshot, bool) {
	p := s.latest.Load()
	if p == nil {
		return FrameSnapshot{}, false
	}
	return *p, true
}

// Subscribe streams frames. A subscriber that falls behind misses frames
// rather than stalling the loop. The channel is closed on unsubscribe or when
// the scene stops.
func (s *Scene) Subscribe(buffer int) (<-chan FrameSnapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan FrameSnapshot, buffer)

	s.subsMu.Lock()
	if s.subsClosed {
		s.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Scene) publish(snap FrameSnapshot) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Scene) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subsClosed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
