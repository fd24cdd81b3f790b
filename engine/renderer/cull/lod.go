package cull

import (
	"math"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"golang.org/x/image/math/f32"
)

// ProjectedError returns the size in pixels of a simplification error measured at a
// local-space LOD sphere once the instance transform and view are applied.
//
// World scale is the largest axis scale of the transform. Perspective views divide by
// the distance to the sphere's nearest point, clamped to the near plane; orthographic
// views keep the error as is. The result is scaled by proj[1][1] and half the viewport
// height.
//
// Parameters:
//   - sphere: the LOD sphere in local space
//   - lodError: the simplification error in local units
//   - transform: the instance's world-from-local matrix
//   - view: the camera
//   - viewportHeight: the viewport height in pixels
//
// Returns:
//   - float32: the projected error in pixels
func ProjectedError(sphere common.Sphere, lodError float32, transform f32.Mat4, view camera.View, viewportHeight float32) float32 {
	if lodError == 0 {
		return 0
	}
	scale := common.MaxScale(transform)
	e := lodError * scale
	if !view.Orthographic {
		center := common.TransformPosition(transform, sphere.Center)
		d := common.Distance3(center, view.Position) - sphere.Radius*scale
		e /= max(d, view.Near)
	}
	return e * view.ProjectionScaleY() * 0.5 * viewportHeight
}

// IsImperceptible reports whether an error projects to less than one pixel.
// A zero error is always imperceptible and an infinite one never is.
func IsImperceptible(sphere common.Sphere, lodError float32, transform f32.Mat4, view camera.View, viewportHeight float32) bool {
	if math.IsInf(float64(lodError), 1) {
		return false
	}
	return ProjectedError(sphere, lodError, transform, view, viewportHeight) < 1
}
