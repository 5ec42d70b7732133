package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/globe-poi/model"
)

func TestDefaultCameraCentreRay(t *testing.T) {
	cam := DefaultCamera()
	ray, err := cam.RayThrough(0, 0)
	if err != nil {
		t.Fatalf("RayThrough: %v", err)
	}
	if ray.Origin != cam.Position {
		t.Fatalf("ray origin = %+v, want camera position %+v", ray.Origin, cam.Position)
	}
	if !vecNear(ray.Direction, Vec3{Z: -1}, 1e-9) {
		t.Fatalf("centre ray direction = %+v, want (0,0,-1)", ray.Direction)
	}
}

func TestProjectUnprojectRoundTrip(t *testing.T) {
	cam := DefaultCamera().WithViewport(1280, 720)
	for _, ndc := range []Vec3{{X: 0, Y: 0, Z: -1}, {X: 0.5, Y: -0.25, Z: -1}, {X: -0.9, Y: 0.9, Z: 0.3}} {
		world, err := cam.Unproject(ndc)
		if err != nil {
			t.Fatalf("Unproject(%+v): %v", ndc, err)
		}
		back, ok := cam.ProjectPoint(world)
		if !ok {
			t.Fatalf("ProjectPoint(%+v) reported behind camera", world)
		}
		if !vecNear(back, ndc, 1e-6) {
			t.Fatalf("round trip %+v -> %+v -> %+v", ndc, world, back)
		}
	}
}

func TestProjectPointBehindCamera(t *testing.T) {
	cam := DefaultCamera()
	if _, ok := cam.ProjectPoint(Vec3{Z: 10}); ok {
		t.Fatalf("point behind the camera should not project")
	}
}

func TestOrbitOverPoleStillProjects(t *testing.T) {
	cam := DefaultCamera().Orbit(model.GeoCoordinate{Lat: 90, Lon: 0}, 6)
	ndc, ok := cam.ProjectPoint(Vec3{Y: 2})
	if !ok {
		t.Fatalf("north pole should be in front of a camera above it")
	}
	if math.Abs(ndc.X) > 1e-9 || math.Abs(ndc.Y) > 1e-9 {
		t.Fatalf("north pole projects to %+v, want screen centre", ndc)
	}
}

func TestNDCFromPixels(t *testing.T) {
	x, y, err := NDCFromPixels(400, 300, 800, 600)
	if err != nil || x != 0 || y != 0 {
		t.Fatalf("centre pixel = (%v, %v, %v), want (0, 0, nil)", x, y, err)
	}
	x, y, _ = NDCFromPixels(0, 0, 800, 600)
	if x != -1 || y != 1 {
		t.Fatalf("top-left pixel = (%v, %v), want (-1, 1)", x, y)
	}
	if _, _, err := NDCFromPixels(1, 1, 0, 600); !errors.Is(err, ErrDegenerateCamera) {
		t.Fatalf("zero-width viewport err = %v, want ErrDegenerateCamera", err)
	}
}

func TestCameraValidate(t *testing.T) {
	if err := DefaultCamera().Validate(); err != nil {
		t.Fatalf("default camera invalid: %v", err)
	}
	bad := DefaultCamera()
	bad.FovY = 0
	if err := bad.Validate(); !errors.Is(err, ErrDegenerateCamera) {
		t.Fatalf("fov 0 err = %v, want ErrDegenerateCamera", err)
	}
	bad = DefaultCamera()
	bad.Far = bad.Near
	if err := bad.Validate(); !errors.Is(err, ErrDegenerateCamera) {
		t.Fatalf("far == near err = %v, want ErrDegenerateCamera", err)
	}
}
