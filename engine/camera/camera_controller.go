package camera

import (
	"math"
	"sync"

	"golang.org/x/image/math/f32"
)

// CameraController owns a camera's positional state. The position is derived from
// spherical coordinates (radius, azimuth, elevation) around a target point.
type CameraController interface {
	// Position returns the camera's world-space position.
	Position() f32.Vec3

	// Target returns the look-at point.
	Target() f32.Vec3

	// SetTarget sets the pivot point and recomputes the position.
	SetTarget(target f32.Vec3)

	// Orbit rotates the camera around the target. Elevation is clamped to its bounds.
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves the camera towards the target. Positive delta zooms in.
	Zoom(delta float32)

	// Radius returns the current distance from the target.
	Radius() float32
}

type cameraControllerImpl struct {
	mu *sync.Mutex

	position f32.Vec3
	target   f32.Vec3

	radius    float32
	azimuth   float32 // around Y
	elevation float32 // from the horizontal plane

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates an orbit controller.
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:           &sync.Mutex{},
		radius:       10.0,
		elevation:    float32(math.Pi / 6),
		minRadius:    0.5,
		maxRadius:    5000.0,
		minElevation: float32(-math.Pi/2 + 0.05),
		maxElevation: float32(math.Pi/2 - 0.05),
	}
	for _, option := range options {
		option(cc)
	}
	cc.updatePosition()
	return cc
}

// updatePosition recomputes the position from spherical coordinates. Caller must hold the mutex.
func (cc *cameraControllerImpl) updatePosition() {
	cosElev := float32(math.Cos(float64(cc.elevation)))
	sinElev := float32(math.Sin(float64(cc.elevation)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	sinAzim := float32(math.Sin(float64(cc.azimuth)))

	cc.position = f32.Vec3{
		cc.target[0] + cc.radius*cosElev*sinAzim,
		cc.target[1] + cc.radius*sinElev,
		cc.target[2] + cc.radius*cosElev*cosAzim,
	}
}

func (cc *cameraControllerImpl) Position() f32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *cameraControllerImpl) Target() f32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *cameraControllerImpl) SetTarget(target f32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = target
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Orbit(dAzimuth, dElevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth += dAzimuth
	cc.elevation = min(max(cc.elevation+dElevation, cc.minElevation), cc.maxElevation)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = min(max(cc.radius-delta, cc.minRadius), cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

// CameraControllerOption is a functional option for NewCameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithTarget sets the initial pivot point.
func WithTarget(target f32.Vec3) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.target = target
	}
}

// WithOrbit sets the initial spherical coordinates around the target.
func WithOrbit(radius, azimuth, elevation float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.radius = radius
		cc.azimuth = azimuth
		cc.elevation = elevation
	}
}

// WithRadiusBounds sets the zoom limits.
func WithRadiusBounds(minRadius, maxRadius float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minRadius = minRadius
		cc.maxRadius = maxRadius
	}
}
