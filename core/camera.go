package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/globe-poi/model"
)

// ErrDegenerateCamera is returned when the camera matrices cannot be inverted
// or a point cannot be mapped through them.
var ErrDegenerateCamera = errors.New("degenerate camera")

// Camera is a perspective camera looking at Target. The core only reads it;
// the presentation layer owns and updates it.
type Camera struct {
	Position Vec3    `json:"position"`
	Target   Vec3    `json:"target"`
	Up       Vec3    `json:"up"`
	FovY     float64 `json:"fov"` // vertical field of view, degrees
	Aspect   float64 `json:"aspect"`
	Near     float64 `json:"near"`
	Far      float64 `json:"far"`
}

// DefaultCamera matches the viewer's initial framing: six units out on +Z,
// 45° vertical field of view, looking at the globe centre.
func DefaultCamera() Camera {
	return Camera{
		Position: Vec3{X: 0, Y: 0, Z: 6},
		Up:       Vec3{X: 0, Y: 1, Z: 0},
		FovY:     45,
		Aspect:   1,
		Near:     0.1,
		Far:      2000,
	}
}

// Validate checks the frustum parameters.
func (c Camera) Validate() error {
	switch {
	case !(c.FovY > 0 && c.FovY < 180):
		return fmt.Errorf("%w: fov %v outside (0, 180)", ErrDegenerateCamera, c.FovY)
	case !(c.Aspect > 0):
		return fmt.Errorf("%w: aspect %v must be positive", ErrDegenerateCamera, c.Aspect)
	case !(c.Near > 0 && c.Far > c.Near):
		return fmt.Errorf("%w: near %v / far %v", ErrDegenerateCamera, c.Near, c.Far)
	case c.Position == c.Target:
		return fmt.Errorf("%w: position equals target", ErrDegenerateCamera)
	}
	return nil
}

// WithViewport returns a copy of c with the aspect ratio of a width×height
// viewport.
func (c Camera) WithViewport(width, height float64) Camera {
	if width > 0 && height > 0 {
		c.Aspect = width / height
	}
	return c
}

// Orbit places the camera distance units from the origin above the given
// geographic location, looking at the globe centre.
func (c Camera) Orbit(at model.GeoCoordinate, distance float64) Camera {
	c.Position = Project(at, distance)
	c.Target = Vec3{}
	return c
}

// View returns the world-to-camera matrix.
func (c Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(toMgl(c.Position), toMgl(c.Target), toMgl(c.safeUp()))
}

// Projection returns the OpenGL-style clip matrix.
func (c Camera) Projection() mgl64.Mat4 {
	return mgl64.Perspective(mgl64.DegToRad(c.FovY), c.Aspect, c.Near, c.Far)
}

// Unproject maps a normalized device coordinate (each axis in [-1, 1], z=-1
// on the near plane) back into world space.
func (c Camera) Unproject(ndc Vec3) (Vec3, error) {
	viewProj := c.Projection().Mul4(c.View())
	if viewProj.Det() == 0 {
		return Vec3{}, ErrDegenerateCamera
	}
	p := viewProj.Inv().Mul4x1(mgl64.Vec4{ndc.X, ndc.Y, ndc.Z, 1})
	w := p.W()
	if w == 0 || math.IsNaN(w) {
		return Vec3{}, ErrDegenerateCamera
	}
	return fromMgl(p.Vec3().Mul(1 / w)), nil
}

// ProjectPoint maps a world point to normalized device coordinates. The bool
// is false when the point lies behind the camera.
func (c Camera) ProjectPoint(p Vec3) (Vec3, bool) {
	clip := c.Projection().Mul4(c.View()).Mul4x1(toMgl(p).Vec4(1))
	w := clip.W()
	if w <= 0 {
		return Vec3{}, false
	}
	return fromMgl(clip.Vec3().Mul(1 / w)), true
}

// RayThrough builds the pick ray for a pointer at (ndcX, ndcY): it starts at
// the camera and passes through the unprojected point on the near plane.
func (c Camera) RayThrough(ndcX, ndcY float64) (Ray, error) {
	near, err := c.Unproject(Vec3{X: ndcX, Y: ndcY, Z: -1})
	if err != nil {
		return Ray{}, err
	}
	return NewRay(c.Position, near)
}

// NDCFromPixels converts a pointer position in pixels (origin top-left) within
// a width×height viewport to normalized device coordinates.
func NDCFromPixels(px, py, width, height float64) (x, y float64, err error) {
	if !(width > 0 && height > 0) {
		return 0, 0, fmt.Errorf("%w: viewport %vx%v", ErrDegenerateCamera, width, height)
	}
	x = (px/width)*2 - 1
	y = -(py/height)*2 + 1
	return x, y, nil
}

// safeUp swaps in an alternative up vector when the view direction is
// parallel to Up, which would otherwise make LookAt singular.
func (c Camera) safeUp() Vec3 {
	up := c.Up
	if up == (Vec3{}) {
		up = Vec3{Y: 1}
	}
	forward := c.Target.Sub(c.Position)
	if forward.Cross(up).Norm() < 1e-9*forward.Norm()*up.Norm() {
		if math.Abs(forward.Y) > math.Abs(forward.Z) {
			return Vec3{Z: -1}
		}
		return Vec3{Y: 1}
	}
	return up
}

func toMgl(v Vec3) mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

func fromMgl(v mgl64.Vec3) Vec3 { return Vec3{X: v[0], Y: v[1], Z: v[2]} }
