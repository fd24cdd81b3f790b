// Package cull implements the three culling stages of the two-pass occlusion pipeline:
// instances, BVH nodes level by level, and meshlets. Stages communicate only through the
// fixed-capacity queues and indirect arguments in Queues.
//
// Pass 1 tests occlusion with last frame's transforms, view and depth pyramid. Anything
// it finds occluded is deferred rather than dropped. Pass 2 retests the deferred work with
// the current frame's data against a pyramid rebuilt from pass 1's depth, and drops what
// is still occluded.
package cull

import (
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/hzb"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
)

// Workgroup sizes of the culling kernels.
const (
	InstanceGroupSize = 64
	BVHGroupSize      = 64
	MeshletGroupSize  = 64

	// bvhItemsPerGroup is how many queued nodes one BVH workgroup covers, one invocation per slot.
	bvhItemsPerGroup = BVHGroupSize / asset.BVHWidth
)

// DefaultMaxBVHDepth bounds the number of BVH levels walked per pass.
const DefaultMaxBVHDepth = 24

// DefaultSoftwareRasterThreshold is the largest screen extent, in pixels, of a cluster sent
// to the software rasterizer.
const DefaultSoftwareRasterThreshold = 64

// Pass selects which of the two occlusion passes a stage runs.
type Pass int

const (
	FirstPass Pass = iota
	SecondPass
)

func (p Pass) String() string {
	if p == FirstPass {
		return "first"
	}
	return "second"
}

// NodeItem is a queued BVH node of one instance.
type NodeItem struct {
	Instance uint32 // index into Frame.Instances
	Node     uint32 // global node index
}

// Cluster is one meshlet of one instance selected for further culling or rasterization.
type Cluster struct {
	Instance      uint32 // index into Frame.Instances
	Meshlet       uint32 // global meshlet index
	TriangleCount uint32
}

// Frame is the read-only input shared by every stage for one frame.
type Frame struct {
	Library   asset.Library
	Instances []scene.Instance
	View      camera.View
	Width     uint32
	Height    uint32
	// HZB is the depth pyramid occlusion is tested against: last frame's depth during the
	// first pass, this frame's first-pass depth during the second.
	HZB *hzb.Pyramid
	// SoftwareRasterThreshold routes clusters whose screen extents are both at or below
	// it to the software rasterizer.
	SoftwareRasterThreshold uint32
}

// Queues holds every work queue and indirect argument block of one frame.
type Queues struct {
	SecondPassInstances *queue.Queue[uint32]
	SecondPassArgs      *queue.DispatchArgs

	// Nodes is the BVH level being culled and NextNodes receives the level below it.
	Nodes        *queue.Queue[NodeItem]
	NodeArgs     *queue.DispatchArgs
	NextNodes    *queue.Queue[NodeItem]
	NextNodeArgs *queue.DispatchArgs
	// DeferredNodes holds internal nodes found occluded in the first pass.
	DeferredNodes *queue.Queue[NodeItem]

	// Clusters is filled from the left by the first pass and from the right by deferrals
	// and the second pass. ClusterArgs[p] sizes pass p's meshlet cull dispatch.
	Clusters    *queue.SplitBuffer[Cluster]
	ClusterArgs [2]*queue.DispatchArgs

	// RasterClusters holds software clusters on the left and hardware clusters on the
	// right for both passes. A cluster's slot is the cluster id written to the
	// visibility buffer.
	RasterClusters *queue.SplitBuffer[Cluster]
	Raster         [2]*queue.RasterArgs
	Totals         queue.PassTotals

	// NodesPastMaxDepth counts nodes still queued when the level limit was reached.
	NodesPastMaxDepth uint32
	// nodeOverflow carries node queue drops across the per-level queue resets.
	nodeOverflow uint32
}

// NewQueues allocates the queues for the given capacities.
func NewQueues(c queue.Capacities) *Queues {
	q := &Queues{
		SecondPassInstances: queue.NewQueue[uint32](c.Instances),
		SecondPassArgs:      queue.NewDispatchArgs(),
		Nodes:               queue.NewQueue[NodeItem](c.Nodes),
		NodeArgs:            queue.NewDispatchArgs(),
		NextNodes:           queue.NewQueue[NodeItem](c.Nodes),
		NextNodeArgs:        queue.NewDispatchArgs(),
		DeferredNodes:       queue.NewQueue[NodeItem](c.Nodes),
		Clusters:            queue.NewSplitBuffer[Cluster](c.Clusters),
		RasterClusters:      queue.NewSplitBuffer[Cluster](c.RasterClusters),
	}
	for p := range q.ClusterArgs {
		q.ClusterArgs[p] = queue.NewDispatchArgs()
		q.Raster[p] = queue.NewRasterArgs(3 * asset.MaxMeshletTriangles)
	}
	return q
}

// Reset empties every queue at the start of a frame.
func (q *Queues) Reset() {
	q.SecondPassInstances.Reset()
	q.SecondPassArgs.Reset()
	q.Nodes.Reset()
	q.NodeArgs.Reset()
	q.NextNodes.Reset()
	q.NextNodeArgs.Reset()
	q.DeferredNodes.Reset()
	q.Clusters.Reset()
	q.RasterClusters.Reset()
	for p := range q.ClusterArgs {
		q.ClusterArgs[p].Reset()
		q.Raster[p].Software.Reset()
		q.Raster[p].Hardware.Reset()
		q.Raster[p].SoftwareBase = 0
		q.Raster[p].HardwareBase = 0
	}
	q.Totals.Reset()
	q.NodesPastMaxDepth = 0
	q.nodeOverflow = 0
}

// Dropped returns the number of items skipped this frame because a queue was full.
func (q *Queues) Dropped() uint32 {
	return q.SecondPassInstances.Dropped() + q.nodeOverflow + q.Nodes.Dropped() +
		q.DeferredNodes.Dropped() + q.Clusters.Dropped() + q.RasterClusters.Dropped()
}

// RasterCluster resolves a raster cluster slot to the instance and meshlet drawn there.
func (q *Queues) RasterCluster(slot uint32) (uint32, uint32, bool) {
	rc := q.RasterClusters
	if slot >= rc.Cap() {
		return 0, 0, false
	}
	if slot < rc.LeftLen() || slot >= rc.Cap()-rc.RightLen() {
		c := rc.Slot(slot)
		return c.Instance, c.Meshlet, true
	}
	return 0, 0, false
}
