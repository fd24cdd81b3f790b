package cull

import (
	"context"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
	"github.com/gogpu/gputypes"
)

// stage is the state shared by every culling stage.
type stage struct {
	dispatcher dispatcher.Dispatcher
	frame      *Frame
	queues     *Queues
	// limit is the device's maximum workgroups per dispatch dimension.
	limit uint32
}

func newStage(d dispatcher.Dispatcher, frame *Frame, queues *Queues, limits gputypes.Limits) stage {
	if d == nil || frame == nil || queues == nil {
		panic("cull: a dispatcher, frame and queues are required")
	}
	return stage{dispatcher: d, frame: frame, queues: queues, limit: limits.MaxComputeWorkgroupsPerDimension}
}

// InstanceCuller tests whole instances and seeds the BVH walk with their root nodes.
type InstanceCuller struct {
	stage
}

// NewInstanceCuller creates the instance stage.
func NewInstanceCuller(d dispatcher.Dispatcher, frame *Frame, queues *Queues, limits gputypes.Limits) *InstanceCuller {
	return &InstanceCuller{stage: newStage(d, frame, queues, limits)}
}

// Run culls every instance in the first pass and the deferred candidates in the second.
func (c *InstanceCuller) Run(ctx context.Context, pass Pass) error {
	q := c.queues
	if pass == FirstPass {
		n := uint32(len(c.frame.Instances))
		return c.dispatcher.Dispatch(ctx, "instance_cull", common.DivCeil(n, InstanceGroupSize), InstanceGroupSize, func(g dispatcher.Group) {
			g.Invocations(func(local uint32) {
				if i := g.GlobalID(local); i < n {
					c.cullInstance(i, FirstPass)
				}
			})
		})
	}

	q.SecondPassArgs.Remap(c.limit)
	n := q.SecondPassInstances.Len()
	return c.dispatcher.DispatchIndirect(ctx, "instance_cull_second", q.SecondPassArgs, InstanceGroupSize, func(g dispatcher.Group) {
		g.Invocations(func(local uint32) {
			if id := g.GlobalID(local); id < n {
				c.cullInstance(q.SecondPassInstances.At(id), SecondPass)
			}
		})
	})
}

func (c *InstanceCuller) cullInstance(i uint32, pass Pass) {
	f, q := c.frame, c.queues
	inst := &f.Instances[i]
	if !inst.Visible {
		return
	}
	if !f.frustum().IntersectsAABB(inst.WorldAABB) {
		return
	}

	var occluded bool
	if pass == FirstPass {
		occluded = f.occludedWorld(inst.PreviousWorldAABB, f.View.PreviousViewProjection)
	} else {
		occluded = f.occludedWorld(inst.WorldAABB, f.View.ViewProjection)
	}
	if occluded {
		if pass == FirstPass {
			q.SecondPassInstances.PushCounted(i, q.SecondPassArgs, InstanceGroupSize)
		}
		return
	}
	q.Nodes.PushCounted(NodeItem{Instance: i, Node: inst.BVHRoot}, q.NodeArgs, bvhItemsPerGroup)
}
