package hzb

import (
	_ "embed"
	"encoding/binary"
	"unsafe"
)

// GPUParamsSource is the canonical WGSL definition of the HZBParams struct.
// Matches GPUParams layout exactly (32 bytes).
//
//go:embed assets/hzb_params.wgsl
var GPUParamsSource string

// GPUParams is the uniform block of one downsample dispatch.
// Size: 32 bytes.
type GPUParams struct {
	SrcSize   [2]uint32 // offset  0
	DstSize   [2]uint32 // offset  8
	SrcOffset uint32    // offset 16: first texel of the source level
	DstOffset uint32    // offset 20: first texel of the destination level
	Level     uint32    // offset 24
	_pad      uint32    // offset 28
}

// Params returns the downsample parameters writing the given level from the one above it.
// Level 0 has no source level and reports its own extent for both.
func (p *Pyramid) Params(level int) GPUParams {
	dst := p.mips[level]
	src := dst
	if level > 0 {
		src = p.mips[level-1]
	}
	return GPUParams{
		SrcSize:   [2]uint32{src.Width, src.Height},
		DstSize:   [2]uint32{dst.Width, dst.Height},
		SrcOffset: src.Offset,
		DstOffset: dst.Offset,
		Level:     uint32(level),
	}
}

// Size returns the size of the GPUParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUParams) Marshal() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:], g.SrcSize[0])
	binary.LittleEndian.PutUint32(buf[4:], g.SrcSize[1])
	binary.LittleEndian.PutUint32(buf[8:], g.DstSize[0])
	binary.LittleEndian.PutUint32(buf[12:], g.DstSize[1])
	binary.LittleEndian.PutUint32(buf[16:], g.SrcOffset)
	binary.LittleEndian.PutUint32(buf[20:], g.DstOffset)
	binary.LittleEndian.PutUint32(buf[24:], g.Level)
	return buf
}
