package camera

import (
	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"golang.org/x/image/math/f32"
)

// View is an immutable snapshot of a camera for one frame.
type View struct {
	ViewMatrix     f32.Mat4
	Projection     f32.Mat4
	ViewProjection f32.Mat4
	// PreviousViewProjection and PreviousPosition describe the camera of the last frame.
	// They equal the current values on the first frame.
	PreviousViewProjection f32.Mat4
	PreviousPosition       f32.Vec3

	Position f32.Vec3
	Frustum  common.Frustum
	// Near is the near plane distance recovered from the projection.
	Near float32
	// Orthographic is true for orthographic projections.
	Orthographic bool
	// DepthClamp marks orthographic views whose casters may sit in front of the near plane
	// (shadow views). Depth stored for those uses an unclamped reciprocal encoding.
	DepthClamp bool
}

// NewView builds a snapshot from a view matrix and a reverse-Z projection with no motion history.
//
// Parameters:
//   - view: the view-from-world matrix
//   - proj: a reverse-Z projection from common.PerspectiveReverseZ or common.OrthographicReverseZ
//   - position: the camera position in world space
//
// Returns:
//   - View: the snapshot
func NewView(view, proj f32.Mat4, position f32.Vec3) View {
	vp := common.Mul4(proj, view)
	v := View{
		ViewMatrix:             view,
		Projection:             proj,
		ViewProjection:         vp,
		PreviousViewProjection: vp,
		PreviousPosition:       position,
		Position:               position,
		Frustum:                common.ExtractFrustum(vp),
		Orthographic:           common.IsOrthographic(proj),
	}
	if v.Orthographic {
		// z_ndc = m10*z + m11 reaches 1 at z = -near.
		v.Near = (proj[11] - 1) / proj[10]
	} else {
		v.Near = perspectiveNear(proj)
	}
	return v
}

// WithPrevious returns a copy of v carrying prev as its last-frame camera.
func (v View) WithPrevious(prev View) View {
	v.PreviousViewProjection = prev.ViewProjection
	v.PreviousPosition = prev.Position
	return v
}

// ProjectionScaleY returns proj[1][1], the factor turning view-space heights at unit distance into NDC.
func (v View) ProjectionScaleY() float32 {
	return v.Projection[5]
}

// perspectiveNear recovers the near distance of a reverse-Z perspective projection.
// With a = near/(far-near) and b = near*far/(far-near), near = b/(1+a).
func perspectiveNear(proj f32.Mat4) float32 {
	a, b := proj[10], proj[11]
	if a == 0 {
		return 0
	}
	return b / (1 + a)
}
