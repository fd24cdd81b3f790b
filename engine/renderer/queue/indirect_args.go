package queue

import (
	"math"
	"sync/atomic"
)

// DispatchArgs is the mutable form of an indirect compute dispatch. X is bumped with atomic
// adds by producers; Remap folds an oversized X into two dimensions before the dispatch.
type DispatchArgs struct {
	X         atomic.Uint32
	Y         atomic.Uint32
	Z         atomic.Uint32
	OriginalX atomic.Uint32
}

// NewDispatchArgs returns args reset to an empty 1D dispatch.
func NewDispatchArgs() *DispatchArgs {
	d := &DispatchArgs{}
	d.Reset()
	return d
}

// Reset sets the args to (0, 1, 1).
func (d *DispatchArgs) Reset() {
	d.X.Store(0)
	d.Y.Store(1)
	d.Z.Store(1)
	d.OriginalX.Store(0)
}

// Remap records the linear workgroup count in OriginalX and splits X across two dimensions
// when it exceeds the per-dimension limit. Args already remapped are left unchanged.
//
// Parameters:
//   - limit: the device's maximum workgroups per dimension
func (d *DispatchArgs) Remap(limit uint32) {
	if d.OriginalX.Load() != 0 {
		return
	}
	count := d.X.Load()
	d.OriginalX.Store(count)
	x, y := Remap1DTo2D(count, limit)
	d.X.Store(x)
	d.Y.Store(y)
}

// Count returns the linear workgroup count. Before Remap it is X, after it is OriginalX.
func (d *DispatchArgs) Count() uint32 {
	if o := d.OriginalX.Load(); o != 0 {
		return o
	}
	return d.X.Load()
}

// Grid returns the dispatch dimensions.
func (d *DispatchArgs) Grid() (x, y, z uint32) {
	return d.X.Load(), d.Y.Load(), d.Z.Load()
}

// Snapshot returns the GPU layout of the current values.
func (d *DispatchArgs) Snapshot() GPUDispatchArgs {
	return GPUDispatchArgs{
		X:         d.X.Load(),
		Y:         d.Y.Load(),
		Z:         d.Z.Load(),
		OriginalX: d.OriginalX.Load(),
	}
}

// Remap1DTo2D splits a linear workgroup count into a grid whose dimensions both fit under
// limit. Counts within the limit are returned as (count, 1).
//
// Parameters:
//   - count: the linear workgroup count
//   - limit: the maximum workgroups per dimension
//
// Returns:
//   - uint32: workgroups along x
//   - uint32: workgroups along y
func Remap1DTo2D(count, limit uint32) (uint32, uint32) {
	if count <= limit || limit == 0 {
		return count, 1
	}
	y := uint32(math.Ceil(math.Sqrt(float64(count))))
	x := (count + y - 1) / y
	return x, y
}

// LinearGroup recovers the linear workgroup index from a 2D group id of a remapped dispatch.
func LinearGroup(gx, gy, gridX uint32) uint32 {
	return gy*gridX + gx
}

// DrawArgs is the mutable form of an indirect non-indexed instanced draw.
// Producers bump InstanceCount; one instance is one raster cluster.
type DrawArgs struct {
	VertexCount   uint32
	InstanceCount atomic.Uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// NewDrawArgs returns draw args with the given per-instance vertex count and no instances.
func NewDrawArgs(vertexCount uint32) *DrawArgs {
	return &DrawArgs{VertexCount: vertexCount}
}

// Reset clears the instance count.
func (d *DrawArgs) Reset() {
	d.InstanceCount.Store(0)
	d.FirstInstance = 0
}

// Snapshot returns the GPU layout of the current values.
func (d *DrawArgs) Snapshot() GPUDrawArgs {
	return GPUDrawArgs{
		VertexCount:   d.VertexCount,
		InstanceCount: d.InstanceCount.Load(),
		FirstVertex:   d.FirstVertex,
		FirstInstance: d.FirstInstance,
	}
}

// RasterArgs holds the per-pass raster work counts. Software is dispatched with one
// workgroup per cluster, Hardware draws one instance per cluster.
type RasterArgs struct {
	Software *DispatchArgs
	Hardware *DrawArgs
	// SoftwareBase and HardwareBase are the number of clusters earlier passes wrote to
	// each end of the raster split buffer; a pass's i-th cluster lives at base+i.
	SoftwareBase uint32
	HardwareBase uint32
}

// NewRasterArgs allocates empty raster args for a draw of vertexCount vertices per cluster.
func NewRasterArgs(vertexCount uint32) *RasterArgs {
	return &RasterArgs{
		Software: NewDispatchArgs(),
		Hardware: NewDrawArgs(vertexCount),
	}
}

// PassTotals accumulates raster cluster counts across the passes of one frame.
type PassTotals struct {
	Software uint32
	Hardware uint32
}

// Reset zeroes the totals at the start of a frame.
func (p *PassTotals) Reset() {
	*p = PassTotals{}
}

// FillCounts closes a pass: the finished pass's counts are added into totals, the next
// pass's bases are set to the new totals, and the next pass's counters are reset so its
// indirect commands only cover clusters it produces.
//
// Parameters:
//   - totals: the running per-frame totals
//   - done: the raster args of the pass that just finished
//   - next: the raster args of the following pass, may be nil after the last pass
func FillCounts(totals *PassTotals, done, next *RasterArgs) {
	totals.Software += done.Software.Count()
	totals.Hardware += done.Hardware.InstanceCount.Load()
	if next == nil {
		return
	}
	next.Software.Reset()
	next.Hardware.Reset()
	next.SoftwareBase = totals.Software
	next.HardwareBase = totals.Hardware
	next.Hardware.FirstInstance = totals.Hardware
}
