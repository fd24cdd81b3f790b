package queue

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// ErrCapacityExceedsLimits is returned when a planned buffer does not fit the device limits.
var ErrCapacityExceedsLimits = errors.New("queue: capacity exceeds device limits")

// MaxRasterClusters is the number of raster cluster slots addressable by the cluster id
// field of a visibility key.
const MaxRasterClusters = 1 << 25

// Entry sizes of the planned buffers, in bytes.
const (
	instanceEntrySize = 4  // instance index
	nodeEntrySize     = 8  // instance index, node index
	clusterEntrySize  = 8  // instance index, meshlet index
	visibilityTexel   = 8  // packed 64-bit visibility key
	argsEntrySize     = 16 // GPUDispatchArgs / GPUDrawArgs
)

// Capacities are the fixed per-frame queue sizes. They are chosen at setup from worst-case
// scene bounds; the pipeline never grows a queue.
type Capacities struct {
	// Instances bounds the second-pass instance candidate list.
	Instances uint32
	// Nodes bounds each per-level BVH work queue and the deferred node list.
	Nodes uint32
	// Clusters bounds the cluster split buffer shared by both passes.
	Clusters uint32
	// RasterClusters bounds the raster cluster split buffer shared by both passes.
	RasterClusters uint32
}

// DefaultCapacities returns capacities sized for a medium scene.
func DefaultCapacities() Capacities {
	return Capacities{
		Instances:      1 << 16,
		Nodes:          1 << 18,
		Clusters:       1 << 20,
		RasterClusters: 1 << 20,
	}
}

// CapacitiesFor derives worst-case capacities from scene bounds: every instance may defer,
// every BVH node may be queued on one level, and every meshlet may be selected.
//
// Parameters:
//   - instances: the maximum instance count
//   - nodes: the maximum total BVH nodes referenced by all instances
//   - meshlets: the maximum total meshlets referenced by all instances
//
// Returns:
//   - Capacities: capacities covering the worst case
func CapacitiesFor(instances, nodes, meshlets uint32) Capacities {
	return Capacities{
		Instances:      max(instances, 1),
		Nodes:          max(nodes, instances, 1),
		Clusters:       max(meshlets, 1),
		RasterClusters: max(meshlets, 1),
	}
}

// Plan lists the storage buffers one frame needs for the given capacities and viewport.
//
// Parameters:
//   - c: the queue capacities
//   - width, height: the viewport size in pixels
//
// Returns:
//   - []gputypes.BufferDescriptor: one descriptor per buffer
func Plan(c Capacities, width, height uint32) []gputypes.BufferDescriptor {
	storage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	indirect := storage | gputypes.BufferUsageIndirect
	return []gputypes.BufferDescriptor{
		{Label: "second_pass_instances", Size: uint64(c.Instances) * instanceEntrySize, Usage: storage},
		{Label: "bvh_nodes_front", Size: uint64(c.Nodes) * nodeEntrySize, Usage: storage},
		{Label: "bvh_nodes_back", Size: uint64(c.Nodes) * nodeEntrySize, Usage: storage},
		{Label: "bvh_nodes_deferred", Size: uint64(c.Nodes) * nodeEntrySize, Usage: storage},
		{Label: "clusters", Size: uint64(c.Clusters) * clusterEntrySize, Usage: storage},
		{Label: "raster_clusters", Size: uint64(c.RasterClusters) * clusterEntrySize, Usage: storage},
		// instance, bvh, meshlet and software raster dispatches for both passes
		{Label: "dispatch_args", Size: 8 * argsEntrySize, Usage: indirect},
		{Label: "draw_args", Size: 2 * argsEntrySize, Usage: indirect},
		{Label: "pass_totals", Size: 8, Usage: storage},
		{Label: "visibility_buffer", Size: uint64(width) * uint64(height) * visibilityTexel, Usage: storage | gputypes.BufferUsageCopySrc},
	}
}

// Validate checks the planned buffers and capacities against the device limits.
//
// Parameters:
//   - c: the queue capacities
//   - descs: the planned buffers, as returned by Plan
//   - limits: the device limits
//
// Returns:
//   - error: wraps ErrCapacityExceedsLimits naming the first offending buffer, nil if all fit
func Validate(c Capacities, descs []gputypes.BufferDescriptor, limits gputypes.Limits) error {
	if c.RasterClusters >= MaxRasterClusters {
		return fmt.Errorf("%w: %d raster clusters exceed the %d addressable by a visibility key",
			ErrCapacityExceedsLimits, c.RasterClusters, MaxRasterClusters-1)
	}
	for _, d := range descs {
		if d.Size > limits.MaxBufferSize {
			return fmt.Errorf("%w: buffer %q is %d bytes, max buffer size is %d",
				ErrCapacityExceedsLimits, d.Label, d.Size, limits.MaxBufferSize)
		}
		if d.Usage&gputypes.BufferUsageStorage != 0 && d.Size > limits.MaxStorageBufferBindingSize {
			return fmt.Errorf("%w: buffer %q is %d bytes, max storage binding is %d",
				ErrCapacityExceedsLimits, d.Label, d.Size, limits.MaxStorageBufferBindingSize)
		}
	}
	return nil
}
