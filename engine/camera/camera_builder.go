package camera

import "golang.org/x/image/math/f32"

// CameraBuilderOption configures NewCamera.
type CameraBuilderOption func(*cameraImpl)

// WithUp sets the camera's up vector.
func WithUp(up f32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = up
	}
}

// WithFov sets the camera's vertical field of view in radians.
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithAspect sets the camera's aspect ratio (width / height).
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithClipPlanes sets the near and far clipping plane distances.
func WithClipPlanes(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
		c.far = far
	}
}

// WithOrthographic switches to an orthographic projection halfHeight world units tall
// above and below the axis. depthClamp is for views, such as shadow views, whose
// occluders may lie in front of the near plane.
func WithOrthographic(halfHeight float32, depthClamp bool) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.projection = Orthographic
		c.halfHeight = halfHeight
		c.depthClamp = depthClamp
	}
}

// WithController attaches a controller that owns the camera position and target.
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
