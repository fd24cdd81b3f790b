package raster

import (
	"context"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/visbuffer"
	"github.com/gogpu/gputypes"
)

// SoftwareGroupSize is the workgroup size of the software rasterizer: one invocation per
// triangle of the largest meshlet.
const SoftwareGroupSize = asset.MaxMeshletTriangles

// rasterizer is the state shared by both raster paths.
type rasterizer struct {
	dispatcher dispatcher.Dispatcher
	frame      *cull.Frame
	queues     *cull.Queues
	buffer     *visbuffer.Buffer
	limit      uint32
	scanline   uint32
	pixels     atomic.Uint64
}

func newRasterizer(d dispatcher.Dispatcher, frame *cull.Frame, queues *cull.Queues, buffer *visbuffer.Buffer, limits gputypes.Limits, scanline uint32) rasterizer {
	if d == nil || frame == nil || queues == nil || buffer == nil {
		panic("raster: a dispatcher, frame, queues and buffer are required")
	}
	if scanline == 0 {
		scanline = DefaultScanlineThreshold
	}
	return rasterizer{
		dispatcher: d,
		frame:      frame,
		queues:     queues,
		buffer:     buffer,
		limit:      limits.MaxComputeWorkgroupsPerDimension,
		scanline:   scanline,
	}
}

// Pixels returns the number of covered pixel writes since the last ResetPixels.
func (r *rasterizer) Pixels() uint64 { return r.pixels.Load() }

// ResetPixels zeroes the pixel counter.
func (r *rasterizer) ResetPixels() { r.pixels.Store(0) }

// Software rasterizes small clusters, one workgroup per cluster.
type Software struct {
	rasterizer
}

// NewSoftware creates the software rasterizer. scanline 0 uses DefaultScanlineThreshold.
func NewSoftware(d dispatcher.Dispatcher, frame *cull.Frame, queues *cull.Queues, buffer *visbuffer.Buffer, limits gputypes.Limits, scanline uint32) *Software {
	return &Software{rasterizer: newRasterizer(d, frame, queues, buffer, limits, scanline)}
}

// Run rasterizes the software clusters of a pass.
func (s *Software) Run(ctx context.Context, pass cull.Pass) error {
	raster := s.queues.Raster[pass]
	raster.Software.Remap(s.limit)
	base := raster.SoftwareBase
	tgt := newTarget(s.buffer, s.scanline)

	return s.dispatcher.DispatchIndirect(ctx, "software_raster", raster.Software, SoftwareGroupSize, func(g dispatcher.Group) {
		slot := base + g.Linear
		s.drawCluster(g, slot, s.queues.RasterClusters.Slot(slot), tgt)
	})
}

func (s *Software) drawCluster(g dispatcher.Group, slot uint32, cl cull.Cluster, tgt target) {
	f := s.frame
	lib := f.Library
	m := &lib.Meshlets()[cl.Meshlet]
	inst := &f.Instances[cl.Instance]
	vertices, vertexIDs, triangles := lib.Vertices(), lib.VertexIDs(), lib.Triangles()
	mvp := common.Mul4(f.View.ViewProjection, inst.Transform)
	w, h := float64(f.Width), float64(f.Height)

	// group-local memory
	var projected [asset.MaxMeshletVertices]screenVertex

	g.Invocations(func(local uint32) {
		if local >= m.VertexCount {
			return
		}
		v := vertices[vertexIDs[m.VertexOffset+local]]
		projected[local] = toScreen(common.TransformPoint(mvp, v.Position), w, h)
	})

	var covered uint64
	g.Invocations(func(local uint32) {
		if local >= m.TriangleCount {
			return
		}
		base := m.TriangleOffset + 3*local
		tri := [3]screenVertex{
			projected[triangles[base]],
			projected[triangles[base+1]],
			projected[triangles[base+2]],
		}
		covered += uint64(tgt.drawTriangle(tri, slot, local))
	})
	s.pixels.Add(covered)
}
