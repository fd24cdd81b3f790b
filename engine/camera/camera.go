// Package camera produces the per-frame view snapshots the culling stages consume.
package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"golang.org/x/image/math/f32"
)

// Projection selects the camera's projection model.
type Projection int

const (
	Perspective Projection = iota
	Orthographic
)

type cameraImpl struct {
	mu *sync.Mutex

	up         f32.Vec3
	projection Projection

	fov        float32
	aspect     float32
	near       float32
	far        float32
	halfHeight float32 // orthographic half extent
	depthClamp bool

	current     View
	previous    View
	hasPrevious bool

	controller CameraController
}

// Camera turns a controller's eye and target into reverse-Z view snapshots. Each Update
// keeps the matrices it replaces so the first occlusion pass of the next frame can
// project with them.
type Camera interface {
	Up() f32.Vec3
	Projection() Projection

	// Fov is vertical, in radians.
	Fov() float32

	// Aspect is width over height.
	Aspect() float32
	Near() float32
	Far() float32

	// Controller is nil until one is attached.
	Controller() CameraController
	SetController(ctrl CameraController)

	// SetAspect recomputes the current matrices without touching the previous ones.
	SetAspect(aspect float32)

	// Update rolls the current snapshot into the previous slot and rebuilds it from the
	// controller. Call it once per frame. Without a controller it does nothing.
	Update()

	// View returns the current snapshot. Until the first Update its previous-frame
	// matrices equal the current ones.
	View() View
}

var _ Camera = &cameraImpl{}

// NewCamera returns a perspective camera with a 45 degree field of view, a square aspect
// and planes at 0.1 and 1000 unless options say otherwise.
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:         &sync.Mutex{},
		up:         f32.Vec3{0, 1, 0},
		fov:        45.0 * (math.Pi / 180.0), // radians
		aspect:     1.0,
		near:       0.1,
		far:        1000.0,
		halfHeight: 10,
	}
	for _, option := range options {
		option(c)
	}
	if c.controller != nil {
		c.updateMatrices()
	}
	return c
}

func (c *cameraImpl) Up() f32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Projection() Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.previous = c.current
	c.hasPrevious = true
	c.updateMatrices()
}

func (c *cameraImpl) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.current
	if c.hasPrevious {
		v.PreviousViewProjection = c.previous.ViewProjection
		v.PreviousPosition = c.previous.Position
	}
	return v
}

// updateMatrices rebuilds c.current. Caller holds mu.
func (c *cameraImpl) updateMatrices() {
	if c.controller == nil {
		return
	}

	eye := c.controller.Position()
	view := common.LookAt(eye, c.controller.Target(), c.up)

	var proj f32.Mat4
	switch c.projection {
	case Orthographic:
		proj = common.OrthographicReverseZ(c.halfHeight*c.aspect, c.halfHeight, c.near, c.far)
	default:
		proj = common.PerspectiveReverseZ(c.fov, c.aspect, c.near, c.far)
	}

	c.current = NewView(view, proj, eye)
	c.current.DepthClamp = c.depthClamp && c.projection == Orthographic
}
