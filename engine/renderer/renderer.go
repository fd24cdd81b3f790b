package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/profiler"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/hzb"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/raster"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/visbuffer"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
	"github.com/gogpu/gputypes"
)

// ErrInvalidViewport is returned by NewRenderer when the viewport has a zero extent.
var ErrInvalidViewport = errors.New("renderer: invalid viewport")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	// configuration collected from builder options
	width, height     uint32
	capacities        queue.Capacities
	limits            gputypes.Limits
	workers           int
	softwareThreshold uint32
	scanline          uint32
	maxBVHDepth       int
	loadKernels       bool
	compileKernels    bool
	profiler          *profiler.Profiler

	library    asset.Library
	dispatcher dispatcher.Dispatcher
	plan       []gputypes.BufferDescriptor
	kernels    map[string]shader.Kernel

	frame    *cull.Frame
	queues   *cull.Queues
	buffer   *visbuffer.Buffer
	pyramid  *hzb.Pyramid
	instance *cull.InstanceCuller
	bvh      *cull.BVHCuller
	meshlet  *cull.MeshletCuller
	software *raster.Software
	hardware *raster.Hardware

	frameIndex uint64
	stats      FrameStats
	resolver   *visbuffer.Resolver
}

// Renderer runs the two-pass occlusion culling pipeline and rasterizes the surviving
// clusters into a visibility buffer.
//
// Each frame tests the instances against the depth pyramid of the previous frame, draws
// what is visible, rebuilds the pyramid from that partial depth and re-tests everything the
// first pass rejected. The rebuilt pyramid of the finished frame is kept for the next one.
// A Renderer is not safe for concurrent RenderFrame calls; they are serialized.
type Renderer interface {
	// RenderFrame culls and rasterizes one frame.
	//
	// Parameters:
	//   - ctx: checked between stages
	//   - view: the camera snapshot, including the previous frame's view-projection
	//   - instances: the instance snapshot; BVH roots index the renderer's asset library
	//
	// Returns:
	//   - FrameStats: the frame's counts and timings
	//   - error: ctx's error or a dispatcher error, the buffers are then left partially drawn
	RenderFrame(ctx context.Context, view camera.View, instances []scene.Instance) (FrameStats, error)

	// VisibilityBuffer returns the buffer written by the last frame.
	VisibilityBuffer() *visbuffer.Buffer

	// Resolver returns the attribute resolver for the last rendered frame, nil before the
	// first frame. It is invalidated by the next RenderFrame call.
	Resolver() *visbuffer.Resolver

	// DepthPyramid returns the depth pyramid built from the last frame's final depth.
	DepthPyramid() *hzb.Pyramid

	// Stats returns the statistics of the last rendered frame.
	Stats() FrameStats

	// Plan returns the GPU buffer plan validated at construction.
	Plan() []gputypes.BufferDescriptor

	// Kernels returns the GPU kernels loaded at construction, nil unless WithKernels was used.
	// RenderFrame does not dispatch them; they are the GPU form of its bookkeeping steps
	// for a host that binds the Plan buffers itself.
	Kernels() map[string]shader.Kernel

	// Viewport returns the viewport size in pixels.
	Viewport() (uint32, uint32)

	// Release stops the renderer's workers. The renderer must not be used afterwards.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer for the meshes of library.
//
// The buffer plan for the configured capacities and viewport is validated against the
// device limits here, so an oversized configuration fails at setup rather than mid-frame.
//
// Parameters:
//   - library: the asset library every instance's BVH root points into
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the configured renderer
//   - error: ErrInvalidViewport, a wrapped queue.ErrCapacityExceedsLimits, or a kernel load error
func NewRenderer(library asset.Library, options ...RendererBuilderOption) (Renderer, error) {
	if library == nil {
		panic("renderer: a library is required")
	}
	r := &renderer{
		mu:                &sync.Mutex{},
		library:           library,
		capacities:        queue.DefaultCapacities(),
		limits:            gputypes.DefaultLimits(),
		softwareThreshold: cull.DefaultSoftwareRasterThreshold,
		scanline:          raster.DefaultScanlineThreshold,
		maxBVHDepth:       cull.DefaultMaxBVHDepth,
	}
	for _, opt := range options {
		opt(r)
	}

	if r.width == 0 || r.height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidViewport, r.width, r.height)
	}
	r.plan = queue.Plan(r.capacities, r.width, r.height)
	if err := queue.Validate(r.capacities, r.plan, r.limits); err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	if r.loadKernels {
		kernels, err := shader.LoadKernels(r.compileKernels)
		if err != nil {
			return nil, fmt.Errorf("renderer: %w", err)
		}
		r.kernels = kernels
	}

	r.dispatcher = dispatcher.NewDispatcher(r.workers)
	r.queues = cull.NewQueues(r.capacities)
	r.buffer = visbuffer.NewBuffer(r.width, r.height)
	r.pyramid = hzb.NewPyramid(r.width, r.height)
	r.frame = &cull.Frame{
		Library:                 library,
		Width:                   r.width,
		Height:                  r.height,
		HZB:                     r.pyramid,
		SoftwareRasterThreshold: r.softwareThreshold,
	}
	r.instance = cull.NewInstanceCuller(r.dispatcher, r.frame, r.queues, r.limits)
	r.bvh = cull.NewBVHCuller(r.dispatcher, r.frame, r.queues, r.limits, r.maxBVHDepth)
	r.meshlet = cull.NewMeshletCuller(r.dispatcher, r.frame, r.queues, r.limits)
	r.software = raster.NewSoftware(r.dispatcher, r.frame, r.queues, r.buffer, r.limits, r.scanline)
	r.hardware = raster.NewHardware(r.dispatcher, r.frame, r.queues, r.buffer, r.limits, r.scanline)

	var planned uint64
	for _, d := range r.plan {
		planned += d.Size
	}
	common.Logger().Info("renderer created",
		"width", r.width,
		"height", r.height,
		"workers", r.dispatcher.Workers(),
		"buffers", len(r.plan),
		"planned_bytes", planned,
		"kernels", len(r.kernels),
	)
	return r, nil
}

func (r *renderer) VisibilityBuffer() *visbuffer.Buffer {
	return r.buffer
}

func (r *renderer) Resolver() *visbuffer.Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolver
}

func (r *renderer) DepthPyramid() *hzb.Pyramid {
	return r.pyramid
}

func (r *renderer) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *renderer) Plan() []gputypes.BufferDescriptor {
	return r.plan
}

func (r *renderer) Kernels() map[string]shader.Kernel {
	return r.kernels
}

func (r *renderer) Viewport() (uint32, uint32) {
	return r.width, r.height
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatcher.Release()
}
