package cull

import (
	"context"

	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
	"github.com/gogpu/gputypes"
)

// MeshletCuller selects the meshlets on the LOD cut, culls them, and routes the survivors
// to the software or hardware rasterizer.
type MeshletCuller struct {
	stage
}

// NewMeshletCuller creates the meshlet stage.
func NewMeshletCuller(d dispatcher.Dispatcher, frame *Frame, queues *Queues, limits gputypes.Limits) *MeshletCuller {
	return &MeshletCuller{stage: newStage(d, frame, queues, limits)}
}

// Run culls the pass's clusters: the left end of the cluster buffer in the first pass,
// the right end in the second.
func (c *MeshletCuller) Run(ctx context.Context, pass Pass) error {
	q := c.queues
	args := q.ClusterArgs[pass]
	args.Remap(c.limit)

	var n uint32
	if pass == FirstPass {
		n = q.Clusters.LeftLen()
	} else {
		n = q.Clusters.RightLen()
	}
	return c.dispatcher.DispatchIndirect(ctx, "meshlet_cull", args, MeshletGroupSize, func(g dispatcher.Group) {
		g.Invocations(func(local uint32) {
			id := g.GlobalID(local)
			if id >= n {
				return
			}
			if pass == FirstPass {
				c.cullCluster(q.Clusters.Slot(id), pass)
			} else {
				c.cullCluster(q.Clusters.Slot(q.Clusters.RightSlot(id)), pass)
			}
		})
	})
}

func (c *MeshletCuller) cullCluster(cl Cluster, pass Pass) {
	f, q := c.frame, c.queues
	m := &f.Library.Meshlets()[cl.Meshlet]
	inst := &f.Instances[cl.Instance]
	h := float32(f.Height)

	// on the cut: fine enough itself, and its coarser parent is not
	if !IsImperceptible(m.LODSphere, m.LODError, inst.Transform, f.View, h) ||
		IsImperceptible(m.ParentLODSphere, m.ParentLODError, inst.Transform, f.View, h) {
		return
	}

	world := m.Bounds.Transform(inst.Transform)
	if !f.frustum().IntersectsAABB(world) {
		return
	}
	if f.occluded(pass, m.Bounds, inst) {
		if pass == FirstPass {
			q.Clusters.PushRightCounted(cl, q.ClusterArgs[SecondPass], MeshletGroupSize)
		}
		return
	}

	raster := q.Raster[pass]
	if c.software(ProjectAABB(world, f.View.ViewProjection, f.Width, f.Height, f.View.DepthClamp)) {
		if _, ok := q.RasterClusters.PushLeft(cl); ok {
			raster.Software.X.Add(1)
		}
		return
	}
	if _, ok := q.RasterClusters.PushRight(cl); ok {
		raster.Hardware.InstanceCount.Add(1)
	}
}

// software reports whether a cluster is small enough for the software rasterizer.
func (c *MeshletCuller) software(sb ScreenBounds) bool {
	t := int32(c.frame.SoftwareRasterThreshold)
	return !sb.NearClipped && sb.Rect.Width() <= t && sb.Rect.Height() <= t
}
