package renderer

import (
	"context"
	"time"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/visbuffer"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
)

// timed runs fn and adds its duration to the stage's total.
func (f *FrameStats) timed(s Stage, fn func() error) (err error) {
	f.timedStep(s, func() { err = fn() })
	return err
}

// timedStep is timed for steps that cannot fail.
func (f *FrameStats) timedStep(s Stage, fn func()) {
	start := time.Now()
	fn()
	f.Stages[s] += time.Since(start)
}

func (r *renderer) RenderFrame(ctx context.Context, view camera.View, instances []scene.Instance) (FrameStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	stats := FrameStats{Frame: r.frameIndex}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	r.frameIndex++
	r.resolver = nil

	q := r.queues
	if err := stats.timed(StageClear, func() error {
		r.buffer.SetDepthClamp(view.DepthClamp)
		q.Reset()
		return r.buffer.Clear(ctx, r.dispatcher)
	}); err != nil {
		return stats, err
	}
	r.frame.Instances = instances
	r.frame.View = view

	// first pass: test against the pyramid of the previous frame
	if err := r.runPass(ctx, cull.FirstPass, &stats); err != nil {
		return stats, err
	}
	stats.Passes[cull.FirstPass].SecondPassCandidates = q.SecondPassInstances.Len()
	stats.Passes[cull.FirstPass].DeferredClusters = q.Clusters.RightLen()
	stats.timedStep(StageFillCounts, func() {
		queue.FillCounts(&q.Totals, q.Raster[cull.FirstPass], q.Raster[cull.SecondPass])
	})
	if err := stats.timed(StageHZBBuild, func() error {
		return r.pyramid.Build(ctx, r.dispatcher, r.buffer)
	}); err != nil {
		return stats, err
	}

	// second pass: re-test what the first pass rejected against this frame's partial depth
	if err := r.runPass(ctx, cull.SecondPass, &stats); err != nil {
		return stats, err
	}
	stats.timedStep(StageFillCounts, func() {
		queue.FillCounts(&q.Totals, q.Raster[cull.SecondPass], nil)
	})
	if err := stats.timed(StageHZBBuild, func() error {
		return r.pyramid.Build(ctx, r.dispatcher, r.buffer)
	}); err != nil {
		return stats, err
	}

	stats.Dropped = q.Dropped()
	stats.NodesPastMaxDepth = q.NodesPastMaxDepth
	stats.Covered = r.buffer.Covered()
	stats.Duration = time.Since(start)
	if stats.Dropped > 0 || stats.NodesPastMaxDepth > 0 {
		common.Logger().Warn("frame work was skipped",
			"frame", stats.Frame,
			"dropped", stats.Dropped,
			"nodes_past_max_depth", stats.NodesPastMaxDepth,
		)
	}
	common.Logger().Debug("frame rendered",
		"frame", stats.Frame,
		"instances", len(instances),
		"second_pass_candidates", stats.Passes[cull.FirstPass].SecondPassCandidates,
		"raster_clusters", stats.RasterClusters(),
		"covered", stats.Covered,
		"duration", stats.Duration,
	)

	snapshot := make([]scene.Instance, len(instances))
	copy(snapshot, instances)
	r.resolver = visbuffer.NewResolver(r.buffer, r.library, q, snapshot, view)
	r.stats = stats
	r.report(stats)
	return stats, nil
}

// runPass runs the cull and raster stages of one pass and records its counts.
func (r *renderer) runPass(ctx context.Context, pass cull.Pass, stats *FrameStats) error {
	q := r.queues
	ps := &stats.Passes[pass]
	r.software.ResetPixels()
	r.hardware.ResetPixels()

	if err := stats.timed(StageInstanceCull, func() error {
		return r.instance.Run(ctx, pass)
	}); err != nil {
		return err
	}
	if err := stats.timed(StageBVHCull, func() error {
		levels, err := r.bvh.Run(ctx, pass)
		ps.BVHLevels = levels
		return err
	}); err != nil {
		return err
	}
	if pass == cull.FirstPass {
		ps.Clusters = q.Clusters.LeftLen()
	} else {
		ps.Clusters = q.Clusters.RightLen()
	}
	if err := stats.timed(StageMeshletCull, func() error {
		return r.meshlet.Run(ctx, pass)
	}); err != nil {
		return err
	}
	if err := stats.timed(StageSoftwareRaster, func() error {
		return r.software.Run(ctx, pass)
	}); err != nil {
		return err
	}
	if err := stats.timed(StageHardwareRaster, func() error {
		return r.hardware.Run(ctx, pass)
	}); err != nil {
		return err
	}

	raster := q.Raster[pass]
	ps.SoftwareClusters = raster.Software.Count()
	ps.HardwareClusters = raster.Hardware.InstanceCount.Load()
	ps.Pixels = r.software.Pixels() + r.hardware.Pixels()
	return nil
}

// report forwards a frame's timings and counts to the profiler, if one is set.
func (r *renderer) report(stats FrameStats) {
	if r.profiler == nil {
		return
	}
	for s := Stage(0); s < stageCount; s++ {
		r.profiler.Observe(s.String(), stats.Stages[s])
	}
	r.profiler.Observe("frame", stats.Duration)
	r.profiler.Count("raster_clusters", uint64(stats.RasterClusters()))
	r.profiler.Count("second_pass_candidates", uint64(stats.Passes[cull.FirstPass].SecondPassCandidates))
	r.profiler.Count("covered", uint64(stats.Covered))
	r.profiler.Count("dropped", uint64(stats.Dropped))
	r.profiler.Tick()
}
