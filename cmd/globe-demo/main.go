package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/geocode"
	"github.com/signalsfoundry/globe-poi/internal/interaction"
	"github.com/signalsfoundry/globe-poi/kb"
	"github.com/signalsfoundry/globe-poi/model"
	"github.com/signalsfoundry/globe-poi/timectrl"
)

// sampleMarkers is used when no marker file is given.
var sampleMarkers = []model.MarkerRecord{
	{Name: "Paris", Lat: 48.8566, Lon: 2.3522},
	{Name: "New York", Lat: 40.7128, Lon: -74.0060},
	{Name: "Tokyo", Lat: 35.6762, Lon: 139.6503},
	{Name: "Sydney", Lat: -33.8688, Lon: 151.2093},
	{Name: "Nairobi", Lat: -1.2921, Lon: 36.8219},
}

type demoOptions struct {
	markers   []model.MarkerRecord
	duration  time.Duration
	tick      time.Duration
	orbitStep float64 // degrees of camera longitude per frame
	cameraLat float64
	distance  float64
	rotation  core.RotationModel
}

func main() {
	duration := flag.Duration("duration", 2*time.Second, "total demo duration")
	tick := flag.Duration("tick", 100*time.Millisecond, "frame interval")
	markersPath := flag.String("markers", "", "marker JSON file (built-in sample cities when empty)")
	orbitStep := flag.Float64("orbit-step", 15, "camera longitude step per frame, degrees")
	cameraLat := flag.Float64("camera-lat", 20, "camera latitude, degrees")
	distance := flag.Float64("distance", 6, "camera distance from the globe centre")
	rotation := flag.String("rotation", core.RotationNone, "globe rotation: none, spin or sidereal")
	flag.Parse()

	records := sampleMarkers
	if *markersPath != "" {
		f, err := os.Open(*markersPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open markers: %v\n", err)
			os.Exit(1)
		}
		records, err = core.LoadMarkers(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load markers: %v\n", err)
			os.Exit(1)
		}
	}

	rot, err := core.NewRotationModel(*rotation, core.DefaultSpinRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	err = runDemo(context.Background(), os.Stdout, demoOptions{
		markers:   records,
		duration:  *duration,
		tick:      *tick,
		orbitStep: *orbitStep,
		cameraLat: *cameraLat,
		distance:  *distance,
		rotation:  rot,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}
}

// runDemo orbits a camera around the globe, printing which labels face it on
// every frame, then clicks the centre of the view.
func runDemo(ctx context.Context, w io.Writer, opts demoOptions) error {
	store := kb.NewKnowledgeBase()
	if err := store.Load(opts.markers); err != nil {
		return err
	}

	vis := core.NewVisibilityService(store, core.DefaultRadius)
	if opts.rotation != nil {
		vis.Rotation = opts.rotation
	}

	cam := core.DefaultCamera()
	clock := timectrl.NewFrameClock(opts.tick, timectrl.Accelerated)
	clock.AddListener(func(f timectrl.Frame) {
		lon := core.NormalizeLongitude(opts.orbitStep * float64(f.Index-1))
		cam = cam.Orbit(model.GeoCoordinate{Lat: opts.cameraLat, Lon: lon}, opts.distance)
		res := vis.Update(cam, f.Elapsed, f.Time)

		var labels []string
		for _, m := range store.List() {
			if m.Visible {
				labels = append(labels, m.ID)
			}
		}
		fmt.Fprintf(w, "[frame %3d] t=%-6s camera=(%.1f, %.1f) rotation=%.3f visible=%d/%d %s\n",
			f.Index, f.Elapsed.Truncate(time.Millisecond), opts.cameraLat, lon,
			res.Rotation, res.Visible, len(res.States), strings.Join(labels, ", "))
	})

	fmt.Fprintf(w, "Starting globe demo: markers=%d duration=%s tick=%s\n", store.Len(), opts.duration, opts.tick)
	<-clock.Start(ctx, opts.duration)

	return clickCentre(ctx, w, vis, store, cam)
}

// clickCentre picks through the middle of the final view and resolves the
// selection the way the server does, with a fixed name for surface hits.
func clickCentre(ctx context.Context, w io.Writer, vis *core.VisibilityService, store *kb.KnowledgeBase, cam core.Camera) error {
	picker := core.SurfacePicker{Globe: vis.Globe(), DotRadius: core.DefaultMarkerSize}
	pick, err := picker.PickWithMarkers(cam, 0, 0, store.Targets())
	if err != nil {
		return err
	}

	ctrl := interaction.NewController(geocode.Static("somewhere on the globe"))
	defer ctrl.Shutdown()

	var sel interaction.Selection
	switch pick.Kind {
	case core.PickMarker:
		sel = ctrl.SelectMarker(pick.MarkerID, pick.Location)
	case core.PickSurface:
		ctrl.SelectSurface(ctx, pick.Location)
		select {
		case r := <-ctrl.Results():
			sel, _ = ctrl.Apply(ctx, r)
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		fmt.Fprintln(w, "Centre click missed the globe.")
		return nil
	}

	view, _ := sel.View()
	fmt.Fprintf(w, "Centre click: %s hit -> %q at (%s, %s)\n", pick.Kind, view.Name, view.Lat, view.Lon)
	return nil
}
