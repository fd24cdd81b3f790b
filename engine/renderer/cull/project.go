package cull

import (
	"math"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
	"golang.org/x/image/math/f32"
)

// screenLimit keeps projected coordinates of nearly degenerate w inside int32 range.
const screenLimit = 1 << 24

// ScreenBounds is the screen footprint of a projected box.
type ScreenBounds struct {
	// Rect is the inclusive pixel rect covered by the box, not clipped to the viewport.
	Rect common.Rect
	// NearestDepth is the largest NDC depth of the box corners.
	NearestDepth float32
	// NearClipped is set when part of the box lies in front of the near plane or behind
	// the camera. The rect and depth are then meaningless and the box is never occluded.
	NearClipped bool
}

// ProjectAABB projects the eight corners of a world-space box.
//
// Parameters:
//   - box: the world-space box
//   - viewProj: the view-projection to project with
//   - width, height: the viewport size in pixels
//   - depthClamp: when set, corners in front of the near plane do not count as clipped
//
// Returns:
//   - ScreenBounds: the box's screen rect and nearest depth
func ProjectAABB(box common.AABB, viewProj f32.Mat4, width, height uint32, depthClamp bool) ScreenBounds {
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	nearest := float32(math.Inf(-1))

	for _, corner := range box.Corners() {
		clip := common.TransformPoint(viewProj, corner)
		if clip[3] <= 0 || (!depthClamp && clip[2] > clip[3]) {
			return ScreenBounds{
				Rect:         common.Rect{MinX: 0, MinY: 0, MaxX: int32(width) - 1, MaxY: int32(height) - 1},
				NearestDepth: float32(math.Inf(1)),
				NearClipped:  true,
			}
		}
		invW := 1 / clip[3]
		x, y, z := clip[0]*invW, clip[1]*invW, clip[2]*invW
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
		nearest = max(nearest, z)
	}

	w, h := float32(width), float32(height)
	return ScreenBounds{
		Rect: common.Rect{
			MinX: toPixel((minX*0.5 + 0.5) * w),
			MaxX: toPixel((maxX*0.5 + 0.5) * w),
			MinY: toPixel((0.5 - maxY*0.5) * h),
			MaxY: toPixel((0.5 - minY*0.5) * h),
		},
		NearestDepth: nearest,
	}
}

func toPixel(v float32) int32 {
	return int32(math.Floor(float64(min(max(v, -screenLimit), screenLimit))))
}

// frustum returns the planes to cull against for this frame.
func (f *Frame) frustum() common.Frustum {
	if f.View.DepthClamp {
		return f.View.Frustum.WithoutNear()
	}
	return f.View.Frustum
}

// occluded tests a local-space box of an instance against the depth pyramid. The first
// pass projects with last frame's transform and view, the second with the current ones.
func (f *Frame) occluded(pass Pass, local common.AABB, inst *scene.Instance) bool {
	transform, viewProj := inst.Transform, f.View.ViewProjection
	if pass == FirstPass {
		transform, viewProj = inst.PreviousTransform, f.View.PreviousViewProjection
	}
	return f.occludedWorld(local.Transform(transform), viewProj)
}

func (f *Frame) occludedWorld(world common.AABB, viewProj f32.Mat4) bool {
	if f.HZB == nil {
		return false
	}
	sb := ProjectAABB(world, viewProj, f.Width, f.Height, f.View.DepthClamp)
	if sb.NearClipped {
		return false
	}
	return f.HZB.Occluded(sb.Rect, sb.NearestDepth)
}
