package queue

import (
	_ "embed"
	"encoding/binary"
	"unsafe"
)

// GPUDispatchArgsSource is the canonical WGSL definition of the DispatchArgs struct.
// Matches GPUDispatchArgs layout exactly (16 bytes).
//
//go:embed assets/dispatch_args.wgsl
var GPUDispatchArgsSource string

// GPUDispatchArgs is the byte layout consumed by dispatchWorkgroupsIndirect, followed by
// the linear workgroup count kernels use to skip padding groups of a 2D remap.
// Size: 16 bytes.
type GPUDispatchArgs struct {
	X         uint32 // offset  0
	Y         uint32 // offset  4
	Z         uint32 // offset  8
	OriginalX uint32 // offset 12
}

// Size returns the size of the GPUDispatchArgs struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUDispatchArgs) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUDispatchArgs struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload.
func (g *GPUDispatchArgs) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], g.X)
	binary.LittleEndian.PutUint32(buf[4:], g.Y)
	binary.LittleEndian.PutUint32(buf[8:], g.Z)
	binary.LittleEndian.PutUint32(buf[12:], g.OriginalX)
	return buf
}

// GPUDrawArgsSource is the canonical WGSL definition of the DrawArgs struct.
//
//go:embed assets/draw_args.wgsl
var GPUDrawArgsSource string

// GPUDrawArgs matches the drawIndirect argument layout.
// Size: 16 bytes.
type GPUDrawArgs struct {
	VertexCount   uint32 // offset  0
	InstanceCount uint32 // offset  4
	FirstVertex   uint32 // offset  8
	FirstInstance uint32 // offset 12
}

// Size returns the size of the GPUDrawArgs struct in bytes.
func (g *GPUDrawArgs) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUDrawArgs struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload.
func (g *GPUDrawArgs) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], g.VertexCount)
	binary.LittleEndian.PutUint32(buf[4:], g.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:], g.FirstVertex)
	binary.LittleEndian.PutUint32(buf[12:], g.FirstInstance)
	return buf
}

// GPUPassTotalsSource is the canonical WGSL definition of the PassTotals struct.
//
//go:embed assets/pass_totals.wgsl
var GPUPassTotalsSource string

// GPUPassTotals is the GPU layout of PassTotals.
// Size: 8 bytes.
type GPUPassTotals struct {
	Software uint32 // offset 0
	Hardware uint32 // offset 4
}

// NewGPUPassTotals converts PassTotals to its GPU layout.
func NewGPUPassTotals(p PassTotals) GPUPassTotals {
	return GPUPassTotals{Software: p.Software, Hardware: p.Hardware}
}

// Size returns the size of the GPUPassTotals struct in bytes.
func (g *GPUPassTotals) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPassTotals struct into a byte buffer suitable for GPU upload.
func (g *GPUPassTotals) Marshal() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], g.Software)
	binary.LittleEndian.PutUint32(buf[4:], g.Hardware)
	return buf
}
