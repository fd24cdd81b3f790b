package renderer

import (
	"github.com/Carmen-Shannon/oxy-meshlet/engine/profiler"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
	"github.com/gogpu/gputypes"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithViewport sets the size of the visibility buffer and depth pyramid in pixels.
func WithViewport(width, height uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.width, r.height = width, height
	}
}

// WithCapacities sets the fixed queue capacities. Defaults to queue.DefaultCapacities.
func WithCapacities(c queue.Capacities) RendererBuilderOption {
	return func(r *renderer) {
		r.capacities = c
	}
}

// WithWorkers sets the number of dispatcher workers. Values <= 0 use GOMAXPROCS.
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.workers = n
	}
}

// WithSoftwareRasterThreshold sets the largest screen extent, in pixels on both axes, of
// clusters routed to the software rasterizer. Defaults to cull.DefaultSoftwareRasterThreshold.
func WithSoftwareRasterThreshold(px uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.softwareThreshold = px
	}
}

// WithScanlineThreshold sets the bounding box width above which triangles are walked by
// per-row intervals. Defaults to raster.DefaultScanlineThreshold.
func WithScanlineThreshold(px uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.scanline = px
	}
}

// WithMaxBVHDepth bounds the number of hierarchy levels walked per pass. Defaults to cull.DefaultMaxBVHDepth.
func WithMaxBVHDepth(levels int) RendererBuilderOption {
	return func(r *renderer) {
		r.maxBVHDepth = levels
	}
}

// WithLimits sets the device limits the resource plan is validated against and the
// dispatch remap uses. Defaults to gputypes.DefaultLimits.
func WithLimits(limits gputypes.Limits) RendererBuilderOption {
	return func(r *renderer) {
		r.limits = limits
	}
}

// WithKernels loads the embedded GPU kernels at construction and, when compile is true,
// compiles them to SPIR-V.
func WithKernels(compile bool) RendererBuilderOption {
	return func(r *renderer) {
		r.loadKernels = true
		r.compileKernels = compile
	}
}

// WithProfiler reports stage timings and counts to p and ticks it once per frame.
func WithProfiler(p *profiler.Profiler) RendererBuilderOption {
	return func(r *renderer) {
		r.profiler = p
	}
}
