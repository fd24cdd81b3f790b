package visbuffer

import (
	"math"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
	"golang.org/x/image/math/f32"
)

// ClusterTable maps a raster cluster slot stored in a key back to what was drawn there.
type ClusterTable interface {
	// RasterCluster returns the index of the instance in the frame's instance snapshot and
	// the global meshlet id drawn into slot, or false if the slot holds nothing this frame.
	RasterCluster(slot uint32) (instance, meshlet uint32, ok bool)
}

// SurfaceAttributes is everything shading needs about the surface seen through a pixel.
// Derivatives are the change of each attribute one pixel to the right (Ddx) and one
// pixel down (Ddy).
type SurfaceAttributes struct {
	Position     f32.Vec3 // world space
	DdxPosition  f32.Vec3
	DdyPosition  f32.Vec3
	Normal       f32.Vec3 // world space, normalized
	DdxNormal    f32.Vec3
	DdyNormal    f32.Vec3
	UV           f32.Vec2
	DdxUV        f32.Vec2
	DdyUV        f32.Vec2
	Barycentrics f32.Vec3
	Depth        float32

	InstanceID uint32
	MeshletID  uint32
	TriangleID uint32
	MaterialID uint32
}

// Resolver reconstructs surface attributes from the visibility buffer. It stores nothing
// per pixel beyond the key, so resolving the same pixel twice yields the same result.
type Resolver struct {
	buffer    *Buffer
	library   asset.Library
	clusters  ClusterTable
	instances []scene.Instance
	viewProj  f32.Mat4
}

// NewResolver binds a resolver to one frame's buffer, cluster table, instances and view.
func NewResolver(buffer *Buffer, library asset.Library, clusters ClusterTable, instances []scene.Instance, view camera.View) *Resolver {
	if buffer == nil || library == nil || clusters == nil {
		panic("visbuffer: NewResolver requires a buffer, library and cluster table")
	}
	return &Resolver{
		buffer:    buffer,
		library:   library,
		clusters:  clusters,
		instances: instances,
		viewProj:  view.ViewProjection,
	}
}

// Resolve returns the surface attributes at a pixel.
//
// Parameters:
//   - x, y: the pixel
//
// Returns:
//   - SurfaceAttributes: the attributes of the visible triangle
//   - bool: false if the pixel is empty, out of range or its triangle is degenerate on screen
func (r *Resolver) Resolve(x, y uint32) (SurfaceAttributes, bool) {
	if x >= r.buffer.width || y >= r.buffer.height {
		return SurfaceAttributes{}, false
	}
	k := r.buffer.Load(x, y)
	if k.IsEmpty() {
		return SurfaceAttributes{}, false
	}
	instIdx, meshlet, ok := r.clusters.RasterCluster(k.Cluster())
	if !ok || int(instIdx) >= len(r.instances) {
		return SurfaceAttributes{}, false
	}
	inst := &r.instances[instIdx]
	verts, _ := r.library.TriangleVertices(meshlet, k.Triangle())

	normalMatrix := common.Identity()
	if inv, ok := common.Invert4(inst.Transform); ok {
		normalMatrix = common.Transpose(inv)
	}

	var (
		world  [3]f32.Vec3
		normal [3]f32.Vec3
		uv     [3]f32.Vec2
		ndc    [3]f32.Vec2
		invW   [3]float32
	)
	for i, v := range verts {
		world[i] = common.TransformPosition(inst.Transform, v.Position)
		normal[i] = common.TransformDirection(normalMatrix, v.Normal)
		uv[i] = v.UV
		clip := common.TransformPoint(r.viewProj, world[i])
		w := clip[3]
		if float32(math.Abs(float64(w))) < 1e-12 {
			w = float32(math.Copysign(1e-12, float64(w)))
		}
		invW[i] = 1 / w
		ndc[i] = f32.Vec2{clip[0] * invW[i], clip[1] * invW[i]}
	}

	tri, ok := newScreenTriangle(ndc, invW)
	if !ok {
		return SurfaceAttributes{}, false
	}

	w, h := float32(r.buffer.width), float32(r.buffer.height)
	center := pixelNDC(float32(x)+0.5, float32(y)+0.5, w, h)
	right := pixelNDC(float32(x)+1.5, float32(y)+0.5, w, h)
	down := pixelNDC(float32(x)+0.5, float32(y)+1.5, w, h)

	b := tri.barycentrics(center)
	bx := tri.barycentrics(right)
	by := tri.barycentrics(down)
	dbx := f32.Vec3{bx[0] - b[0], bx[1] - b[1], bx[2] - b[2]}
	dby := f32.Vec3{by[0] - b[0], by[1] - b[1], by[2] - b[2]}

	n := interpolate3(normal, b)
	return SurfaceAttributes{
		Position:     interpolate3(world, b),
		DdxPosition:  interpolate3(world, dbx),
		DdyPosition:  interpolate3(world, dby),
		Normal:       common.Normalize3(n),
		DdxNormal:    common.Sub3(common.Normalize3(interpolate3(normal, bx)), common.Normalize3(n)),
		DdyNormal:    common.Sub3(common.Normalize3(interpolate3(normal, by)), common.Normalize3(n)),
		UV:           interpolate2(uv, b),
		DdxUV:        interpolate2(uv, dbx),
		DdyUV:        interpolate2(uv, dby),
		Barycentrics: b,
		Depth:        DecodeDepth(k.Depth(), r.buffer.DepthClamp()),
		InstanceID:   inst.ID,
		MeshletID:    meshlet,
		TriangleID:   k.Triangle(),
		MaterialID:   inst.MaterialID,
	}, true
}

// pixelNDC converts a viewport position (origin top-left, y down) to NDC.
func pixelNDC(px, py, width, height float32) f32.Vec2 {
	return f32.Vec2{px/width*2 - 1, 1 - py/height*2}
}

// screenTriangle holds the inverse of the 2x2 edge matrix [n1-n0, n2-n0] of a projected
// triangle, so screen-space barycentrics of any point cost one matrix-vector product.
type screenTriangle struct {
	origin f32.Vec2
	inv    [4]float32 // row-major 2x2
	invW   [3]float32
}

func newScreenTriangle(ndc [3]f32.Vec2, invW [3]float32) (screenTriangle, bool) {
	a, c := ndc[1][0]-ndc[0][0], ndc[2][0]-ndc[0][0]
	b, d := ndc[1][1]-ndc[0][1], ndc[2][1]-ndc[0][1]
	det := a*d - c*b
	if det == 0 || math.IsNaN(float64(det)) || math.IsInf(float64(det), 0) {
		return screenTriangle{}, false
	}
	inv := 1 / det
	return screenTriangle{
		origin: ndc[0],
		inv:    [4]float32{d * inv, -c * inv, -b * inv, a * inv},
		invW:   invW,
	}, true
}

// barycentrics returns perspective-correct barycentrics of an NDC point.
func (t screenTriangle) barycentrics(p f32.Vec2) f32.Vec3 {
	dx, dy := p[0]-t.origin[0], p[1]-t.origin[1]
	s1 := t.inv[0]*dx + t.inv[1]*dy
	s2 := t.inv[2]*dx + t.inv[3]*dy
	s0 := 1 - s1 - s2

	p0, p1, p2 := s0*t.invW[0], s1*t.invW[1], s2*t.invW[2]
	sum := p0 + p1 + p2
	if sum == 0 {
		return f32.Vec3{s0, s1, s2}
	}
	return f32.Vec3{p0 / sum, p1 / sum, p2 / sum}
}

func interpolate3(v [3]f32.Vec3, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		v[0][0]*b[0] + v[1][0]*b[1] + v[2][0]*b[2],
		v[0][1]*b[0] + v[1][1]*b[1] + v[2][1]*b[2],
		v[0][2]*b[0] + v[1][2]*b[1] + v[2][2]*b[2],
	}
}

func interpolate2(v [3]f32.Vec2, b f32.Vec3) f32.Vec2 {
	return f32.Vec2{
		v[0][0]*b[0] + v[1][0]*b[1] + v[2][0]*b[2],
		v[0][1]*b[0] + v[1][1]*b[1] + v[2][1]*b[2],
	}
}
