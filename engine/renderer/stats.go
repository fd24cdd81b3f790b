package renderer

import "time"

// Stage identifies a timed step of a frame.
type Stage int

const (
	StageClear Stage = iota
	StageInstanceCull
	StageBVHCull
	StageMeshletCull
	StageSoftwareRaster
	StageHardwareRaster
	StageFillCounts
	StageHZBBuild
	stageCount
)

var stageNames = [stageCount]string{
	"clear",
	"instance_cull",
	"bvh_cull",
	"meshlet_cull",
	"software_raster",
	"hardware_raster",
	"fill_counts",
	"hzb_build",
}

func (s Stage) String() string {
	if s < 0 || s >= stageCount {
		return "unknown"
	}
	return stageNames[s]
}

// PassStats holds the work counts of one occlusion pass.
type PassStats struct {
	// SecondPassCandidates is the number of instances deferred by the pass (first pass only).
	SecondPassCandidates uint32
	// BVHLevels is the number of hierarchy levels walked.
	BVHLevels int
	// Clusters is the number of clusters queued for meshlet culling.
	Clusters uint32
	// DeferredClusters is the number of clusters deferred to the second pass (first pass only).
	DeferredClusters uint32
	SoftwareClusters uint32
	HardwareClusters uint32
	// Pixels is the number of pixel writes that passed coverage and depth range.
	Pixels uint64
}

// FrameStats describes one rendered frame.
type FrameStats struct {
	Frame  uint64
	Passes [2]PassStats
	// Dropped counts items skipped because a fixed-capacity queue was full.
	Dropped uint32
	// NodesPastMaxDepth counts BVH nodes left when the level limit was reached.
	NodesPastMaxDepth uint32
	// Covered is the number of visibility buffer pixels holding a key.
	Covered  int
	Stages   [stageCount]time.Duration
	Duration time.Duration
}

// Stage returns the time spent in s across both passes.
func (f FrameStats) Stage(s Stage) time.Duration {
	if s < 0 || s >= stageCount {
		return 0
	}
	return f.Stages[s]
}

// RasterClusters returns the total clusters drawn by both passes and both paths.
func (f FrameStats) RasterClusters() uint32 {
	var n uint32
	for _, p := range f.Passes {
		n += p.SoftwareClusters + p.HardwareClusters
	}
	return n
}
