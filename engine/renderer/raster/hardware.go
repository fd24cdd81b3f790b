package raster

import (
	"context"
	"math"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/visbuffer"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

// Hardware emulates the indirect instanced draw used for large or near-clipped clusters:
// one instance per cluster, 3*MaxMeshletTriangles vertices per instance. Vertices of
// triangles past the meshlet's count are emitted as NaN and culled by primitive assembly.
type Hardware struct {
	rasterizer
}

// NewHardware creates the hardware rasterizer. scanline 0 uses DefaultScanlineThreshold.
func NewHardware(d dispatcher.Dispatcher, frame *cull.Frame, queues *cull.Queues, buffer *visbuffer.Buffer, limits gputypes.Limits, scanline uint32) *Hardware {
	return &Hardware{rasterizer: newRasterizer(d, frame, queues, buffer, limits, scanline)}
}

// Run executes the pass's draw. Instance i of the draw is the cluster at right-end index
// FirstInstance+i of the raster cluster buffer.
func (h *Hardware) Run(ctx context.Context, pass cull.Pass) error {
	draw := h.queues.Raster[pass].Hardware.Snapshot()
	rc := h.queues.RasterClusters
	tgt := newTarget(h.buffer, h.scanline)

	return h.dispatcher.Dispatch(ctx, "hardware_raster", draw.InstanceCount, asset.MaxMeshletTriangles, func(g dispatcher.Group) {
		slot := rc.RightSlot(draw.FirstInstance + g.Linear)
		h.drawInstance(g, draw.VertexCount, slot, rc.Slot(slot), tgt)
	})
}

func (h *Hardware) drawInstance(g dispatcher.Group, vertexCount, slot uint32, cl cull.Cluster, tgt target) {
	f := h.frame
	lib := f.Library
	m := &lib.Meshlets()[cl.Meshlet]
	inst := &f.Instances[cl.Instance]
	vertices, vertexIDs, triangles := lib.Vertices(), lib.VertexIDs(), lib.Triangles()
	mvp := common.Mul4(f.View.ViewProjection, inst.Transform)
	nan := float32(math.NaN())

	// vertex stage
	clip := make([]f32.Vec4, vertexCount)
	g.Invocations(func(local uint32) {
		for corner := uint32(0); corner < 3; corner++ {
			vi := 3*local + corner
			if vi >= vertexCount {
				return
			}
			if local >= m.TriangleCount {
				clip[vi] = f32.Vec4{nan, nan, nan, nan}
				continue
			}
			id := vertexIDs[m.VertexOffset+uint32(triangles[m.TriangleOffset+vi])]
			clip[vi] = common.TransformPoint(mvp, vertices[id].Position)
		}
	})

	// primitive assembly and rasterization
	w, hgt := float64(f.Width), float64(f.Height)
	var covered uint64
	g.Invocations(func(local uint32) {
		if 3*local+2 >= vertexCount {
			return
		}
		tri := [3]f32.Vec4{clip[3*local], clip[3*local+1], clip[3*local+2]}
		if isNaN(tri[0][3]) || isNaN(tri[1][3]) || isNaN(tri[2][3]) {
			return
		}
		poly, n := tri[:], 3
		var clipped [4]f32.Vec4
		if !tgt.depthClamp {
			n = clipNear(tri, &clipped)
			poly = clipped[:n]
		}
		if n < 3 {
			return
		}
		v0 := toScreen(poly[0], w, hgt)
		for i := 1; i+1 < n; i++ {
			covered += uint64(tgt.drawTriangle([3]screenVertex{v0, toScreen(poly[i], w, hgt), toScreen(poly[i+1], w, hgt)}, slot, local))
		}
	})
	h.pixels.Add(covered)
}

// clipNear clips a clip-space triangle against the reverse-Z near plane z <= w
// (Sutherland-Hodgman). A triangle crossing the plane becomes at most a quad.
//
// Returns:
//   - int: the number of vertices written to out, 0 when the triangle is fully in front of the plane
func clipNear(tri [3]f32.Vec4, out *[4]f32.Vec4) int {
	dist := func(v f32.Vec4) float32 { return v[3] - v[2] }
	n := 0
	for i := range 3 {
		a, b := tri[i], tri[(i+1)%3]
		da, db := dist(a), dist(b)
		if da >= 0 {
			out[n] = a
			n++
		}
		if (da >= 0) != (db >= 0) {
			t := da / (da - db)
			out[n] = f32.Vec4{
				a[0] + (b[0]-a[0])*t,
				a[1] + (b[1]-a[1])*t,
				a[2] + (b[2]-a[2])*t,
				a[3] + (b[3]-a[3])*t,
			}
			n++
		}
	}
	return n
}

func isNaN(v float32) bool {
	return v != v
}
