package cull

import (
	"context"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
	"github.com/gogpu/gputypes"
)

// BVHCuller walks the cluster hierarchies breadth first, one dispatch per level, and
// emits the meshlets of surviving leaves to the cluster queue.
type BVHCuller struct {
	stage
	maxDepth int
}

// NewBVHCuller creates the BVH stage. maxDepth <= 0 uses DefaultMaxBVHDepth.
func NewBVHCuller(d dispatcher.Dispatcher, frame *Frame, queues *Queues, limits gputypes.Limits, maxDepth int) *BVHCuller {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxBVHDepth
	}
	return &BVHCuller{stage: newStage(d, frame, queues, limits), maxDepth: maxDepth}
}

// Run walks the BVH levels queued by the instance stage. The second pass first merges the
// nodes the first pass deferred into its starting level.
//
// Returns:
//   - int: the number of levels dispatched
//   - error: the dispatcher's error
func (c *BVHCuller) Run(ctx context.Context, pass Pass) (int, error) {
	q := c.queues
	if pass == SecondPass {
		if err := c.mergeDeferred(ctx); err != nil {
			return 0, err
		}
	}

	levels := 0
	for ; levels < c.maxDepth && q.Nodes.Len() > 0; levels++ {
		q.NextNodes.Reset()
		q.NextNodeArgs.Reset()
		q.NodeArgs.Remap(c.limit)

		n := q.Nodes.Len()
		err := c.dispatcher.DispatchIndirect(ctx, "bvh_cull", q.NodeArgs, BVHGroupSize, func(g dispatcher.Group) {
			g.Invocations(func(local uint32) {
				id := g.GlobalID(local)
				item, slot := id/asset.BVHWidth, int(id%asset.BVHWidth)
				if item < n {
					c.cullSlot(q.Nodes.At(item), slot, pass)
				}
			})
		})
		if err != nil {
			return levels, err
		}

		q.nodeOverflow += q.Nodes.Dropped()
		q.Nodes.Swap(q.NextNodes)
		q.NodeArgs, q.NextNodeArgs = q.NextNodeArgs, q.NodeArgs
	}

	q.NodesPastMaxDepth += q.Nodes.Len()
	q.nodeOverflow += q.Nodes.Dropped()
	q.Nodes.Reset()
	q.NodeArgs.Reset()
	q.NextNodes.Reset()
	q.NextNodeArgs.Reset()
	return levels, nil
}

// mergeDeferred appends the first pass's deferred nodes to the starting level.
func (c *BVHCuller) mergeDeferred(ctx context.Context) error {
	q := c.queues
	n := q.DeferredNodes.Len()
	return c.dispatcher.Dispatch(ctx, "bvh_merge_deferred", common.DivCeil(n, BVHGroupSize), BVHGroupSize, func(g dispatcher.Group) {
		g.Invocations(func(local uint32) {
			if id := g.GlobalID(local); id < n {
				q.Nodes.PushCounted(q.DeferredNodes.At(id), q.NodeArgs, bvhItemsPerGroup)
			}
		})
	})
}

func (c *BVHCuller) cullSlot(item NodeItem, slot int, pass Pass) {
	f, q := c.frame, c.queues
	node := &f.Library.Nodes()[item.Node]
	if node.IsEmpty(slot) {
		return
	}
	inst := &f.Instances[item.Instance]

	// every meshlet below an imperceptible slot already has an imperceptible parent
	if IsImperceptible(node.LODSpheres[slot], node.LODErrors[slot], inst.Transform, f.View, float32(f.Height)) {
		return
	}
	if !f.frustum().IntersectsAABB(node.AABBs[slot].Transform(inst.Transform)) {
		return
	}

	if f.occluded(pass, node.AABBs[slot], inst) {
		if pass == SecondPass {
			return
		}
		if node.IsNode(slot) {
			q.DeferredNodes.Push(NodeItem{Instance: item.Instance, Node: node.ChildNode(slot)})
		} else {
			c.emitClusters(item.Instance, node, slot, SecondPass)
		}
		return
	}

	if node.IsNode(slot) {
		q.NextNodes.PushCounted(NodeItem{Instance: item.Instance, Node: node.ChildNode(slot)}, q.NextNodeArgs, bvhItemsPerGroup)
		return
	}
	c.emitClusters(item.Instance, node, slot, pass)
}

// emitClusters queues a leaf's meshlets for the meshlet stage of the given pass: the left
// end of the cluster buffer for the first pass, the right end for the second.
func (c *BVHCuller) emitClusters(instance uint32, node *asset.BVHNode, slot int, target Pass) {
	q := c.queues
	meshlets := c.frame.Library.Meshlets()
	first, count := node.ChildMeshlets(slot)
	args := q.ClusterArgs[target]
	for m := first; m < first+count; m++ {
		cl := Cluster{Instance: instance, Meshlet: m, TriangleCount: meshlets[m].TriangleCount}
		if target == FirstPass {
			q.Clusters.PushLeftCounted(cl, args, MeshletGroupSize)
		} else {
			q.Clusters.PushRightCounted(cl, args, MeshletGroupSize)
		}
	}
}
