package scene

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/geocode"
	"github.com/signalsfoundry/globe-poi/internal/interaction"
	"github.com/signalsfoundry/globe-poi/model"
	"github.com/signalsfoundry/globe-poi/timectrl"
)

var (
	paris  = model.GeoCoordinate{Lat: 48.8566, Lon: 2.3522}
	cities = []model.MarkerRecord{
		{Name: "Paris", Lat: 48.8566, Lon: 2.3522},
		{Name: "Tokyo", Lat: 35.6762, Lon: 139.6503},
	}
)

func startScene(t *testing.T, resolver geocode.Resolver, opts ...Option) *Scene {
	t.Helper()
	ctrl := interaction.NewController(resolver, interaction.WithLookupTimeout(time.Second))
	opts = append([]Option{
		WithFrameClock(timectrl.NewFrameClock(2*time.Millisecond, timectrl.Accelerated)),
		WithCamera(core.DefaultCamera().Orbit(paris, 6)),
	}, opts...)
	s := New(ctrl, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("scene did not stop")
		}
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClickOnMarkerSelectsIt(t *testing.T) {
	s := startScene(t, nil)
	ctx := context.Background()
	if err := s.LoadMarkers(ctx, cities); err != nil {
		t.Fatalf("LoadMarkers: %v", err)
	}

	res, err := s.Click(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if res.Pick.Kind != core.PickMarker || res.Pick.MarkerID != "Paris" {
		t.Fatalf("pick = %+v, want marker Paris", res.Pick)
	}
	if res.Selection.State != interaction.StateResolved || res.Selection.Name != "Paris" {
		t.Fatalf("selection = %+v", res.Selection)
	}
}

func TestSurfaceClickResolvesName(t *testing.T) {
	resolver := geocode.ResolverFunc(func(_ context.Context, loc model.GeoCoordinate) (geocode.Address, error) {
		return geocode.Address{DisplayName: "Paris, France"}, nil
	})
	s := startScene(t, resolver)
	ctx := context.Background()

	// No markers: the centre ray lands on the globe under Paris.
	res, err := s.Click(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if res.Pick.Kind != core.PickSurface {
		t.Fatalf("pick = %+v, want surface", res.Pick)
	}
	if math.Abs(res.Pick.Location.Lat-paris.Lat) > 1e-3 || math.Abs(res.Pick.Location.Lon-paris.Lon) > 1e-3 {
		t.Fatalf("picked %v, want %v", res.Pick.Location, paris)
	}
	if res.Selection.State != interaction.StatePendingName {
		t.Fatalf("selection state = %v, want pending", res.Selection.State)
	}

	waitFor(t, "name resolution", func() bool {
		sel, err := s.Selection(ctx)
		return err == nil && sel.State == interaction.StateResolved
	})
	sel, _ := s.Selection(ctx)
	if sel.Name != "Paris, France" {
		t.Fatalf("name = %q", sel.Name)
	}
	view, _ := sel.View()
	if view.Lat != "48.8566" || view.Lon != "2.3522" {
		t.Fatalf("modal = %+v", view)
	}
}

func TestMissLeavesSelectionAlone(t *testing.T) {
	s := startScene(t, nil)
	ctx := context.Background()
	if err := s.LoadMarkers(ctx, cities); err != nil {
		t.Fatalf("LoadMarkers: %v", err)
	}
	if _, err := s.ClickMarker(ctx, "Tokyo"); err != nil {
		t.Fatalf("ClickMarker: %v", err)
	}

	res, err := s.Click(ctx, 0.99, 0.99)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if res.Pick.Kind != core.PickMiss || res.Selection.MarkerID != "Tokyo" {
		t.Fatalf("miss changed state: %+v", res)
	}

	sel, err := s.CloseSelection(ctx)
	if err != nil || sel.Active() {
		t.Fatalf("CloseSelection = %+v, %v", sel, err)
	}
	if _, err := s.ClickMarker(ctx, "Atlantis"); !errors.Is(err, ErrMarkerNotFound) {
		t.Fatalf("ClickMarker(Atlantis) err = %v", err)
	}
}

func TestFramesCarryVisibilityAndScale(t *testing.T) {
	s := startScene(t, nil)
	ctx := context.Background()
	if err := s.LoadMarkers(ctx, cities); err != nil {
		t.Fatalf("LoadMarkers: %v", err)
	}

	frames, unsubscribe := s.Subscribe(4)
	defer unsubscribe()

	var snap FrameSnapshot
	for snap = range frames {
		if len(snap.Markers) == 2 && snap.Elapsed > 0 {
			break
		}
	}
	p, _ := snap.Marker("Paris")
	tk, _ := snap.Marker("Tokyo")
	if !p.LabelVisible || tk.LabelVisible {
		t.Fatalf("Paris visible=%v Tokyo visible=%v; camera faces Paris", p.LabelVisible, tk.LabelVisible)
	}
	if snap.Visible != 1 {
		t.Fatalf("visible labels = %d, want 1", snap.Visible)
	}
	want := core.DefaultPulse().Scale(snap.Elapsed)
	if math.Abs(p.Scale-want) > 1e-9 {
		t.Fatalf("scale = %v, want %v", p.Scale, want)
	}
	if math.Abs(p.Label.Y-p.Position.Y-core.DefaultLabelLift) > 1e-9 {
		t.Fatalf("label not lifted above the dot")
	}
}

func TestHoverAtAndHover(t *testing.T) {
	s := startScene(t, nil)
	ctx := context.Background()
	if err := s.LoadMarkers(ctx, cities); err != nil {
		t.Fatalf("LoadMarkers: %v", err)
	}

	id, err := s.HoverAt(ctx, 0, 0)
	if err != nil || id != "Paris" {
		t.Fatalf("HoverAt = %q, %v; want Paris", id, err)
	}
	if m, _ := s.Store().Get("Paris"); !m.Hovered {
		t.Fatalf("Paris not hovered")
	}
	if id, _ := s.HoverAt(ctx, 0.99, 0.99); id != "" {
		t.Fatalf("HoverAt off-globe = %q", id)
	}
	if m, _ := s.Store().Get("Paris"); m.Hovered {
		t.Fatalf("pointer out did not clear hover")
	}

	if err := s.Hover(ctx, "Tokyo", true); err != nil {
		t.Fatalf("Hover: %v", err)
	}
	if err := s.Hover(ctx, "Atlantis", true); !errors.Is(err, ErrMarkerNotFound) {
		t.Fatalf("Hover(Atlantis) err = %v", err)
	}
}

func TestSetCameraValidates(t *testing.T) {
	s := startScene(t, nil)
	ctx := context.Background()

	bad := core.DefaultCamera()
	bad.Position = bad.Target
	if err := s.SetCamera(ctx, bad); err == nil {
		t.Fatalf("degenerate camera accepted")
	}
	cam := core.DefaultCamera().Orbit(model.GeoCoordinate{Lat: 10, Lon: 20}, 8)
	if err := s.SetCamera(ctx, cam); err != nil {
		t.Fatalf("SetCamera: %v", err)
	}
	got, err := s.Camera(ctx)
	if err != nil || got.Position != cam.Position {
		t.Fatalf("Camera = %+v, %v", got, err)
	}
}

func TestRemountRestartsElapsedAndClearsSelection(t *testing.T) {
	s := startScene(t, nil)
	ctx := context.Background()
	if err := s.LoadMarkers(ctx, cities); err != nil {
		t.Fatalf("LoadMarkers: %v", err)
	}
	if _, err := s.ClickMarker(ctx, "Paris"); err != nil {
		t.Fatalf("ClickMarker: %v", err)
	}
	if err := s.Hover(ctx, "Paris", true); err != nil {
		t.Fatalf("Hover: %v", err)
	}
	waitFor(t, "frames to advance", func() bool {
		snap, ok := s.Snapshot()
		return ok && snap.Index > 20
	})
	before, _ := s.Snapshot()

	if err := s.Remount(ctx); err != nil {
		t.Fatalf("Remount: %v", err)
	}
	waitFor(t, "elapsed to restart", func() bool {
		snap, _ := s.Snapshot()
		return snap.Elapsed < before.Elapsed
	})
	if sel, _ := s.Selection(ctx); sel.Active() {
		t.Fatalf("remount kept the selection")
	}
	if m, _ := s.Store().Get("Paris"); m.Hovered {
		t.Fatalf("remount kept hover state")
	}
	if s.Store().Len() != 2 {
		t.Fatalf("remount lost markers")
	}
}

func TestFrameSteppedBeforeResetIsNotRendered(t *testing.T) {
	clock := timectrl.NewFrameClock(10*time.Millisecond, timectrl.Accelerated)
	s := New(nil, WithFrameClock(clock))
	for i := 0; i < 5; i++ {
		clock.Step()
	}
	pending := clock.Step()

	clock.Reset()
	fresh := clock.Step()
	s.renderFrame(fresh)
	s.renderFrame(pending)

	snap, ok := s.Snapshot()
	if !ok {
		t.Fatalf("no snapshot after rendering")
	}
	if snap.Index != fresh.Index || snap.Elapsed != fresh.Elapsed {
		t.Fatalf("snapshot index=%d elapsed=%v, want index=%d elapsed=%v",
			snap.Index, snap.Elapsed, fresh.Index, fresh.Elapsed)
	}
}

func TestCommandsAfterStopReturnErrClosed(t *testing.T) {
	s := New(nil, WithFrameClock(timectrl.NewFrameClock(time.Millisecond, timectrl.Accelerated)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	frames, _ := s.Subscribe(1)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	for range frames {
	}
	if _, err := s.Click(context.Background(), 0, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("Click after stop err = %v, want ErrClosed", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run err = %v, want ErrAlreadyRunning", err)
	}
}
