package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
)

// GPUCullViewSource is the canonical WGSL definition of the CullView struct.
// Matches GPUCullView layout exactly (240 bytes, std430 aligned).
//
//go:embed assets/cull_view.wgsl
var GPUCullViewSource string

const (
	// CullViewFlagOrthographic is set in GPUCullView.Flags for orthographic views.
	CullViewFlagOrthographic uint32 = 1 << iota
	// CullViewFlagDepthClamp is set for orthographic views using the reciprocal depth encoding.
	CullViewFlagDepthClamp
)

// GPUCullView is the GPU-aligned representation of the view uniform shared by every culling kernel.
// Matrices are stored column-major as WGSL expects, the transpose of the row-major View matrices.
// Size: 240 bytes (std430 / WGSL aligned).
type GPUCullView struct {
	ViewProj         [16]float32   // offset   0: mat4x4<f32>, column-major
	PreviousViewProj [16]float32   // offset  64: mat4x4<f32>, column-major
	Frustum          [5][4]float32 // offset 128: normal xyz, distance w
	PositionNear     [4]float32    // offset 208: camera position xyz, near distance w
	ViewportSize     [2]float32    // offset 224: viewport width, height in pixels
	ProjectionScaleY float32       // offset 232: proj[1][1]
	Flags            uint32        // offset 236: CullViewFlag bits
}

// NewGPUCullView packs a view snapshot for upload.
//
// Parameters:
//   - v: the view snapshot
//   - width, height: the viewport size in pixels
//
// Returns:
//   - GPUCullView: the packed uniform
func NewGPUCullView(v View, width, height uint32) GPUCullView {
	g := GPUCullView{
		ViewProj:         [16]float32(common.Transpose(v.ViewProjection)),
		PreviousViewProj: [16]float32(common.Transpose(v.PreviousViewProjection)),
		PositionNear:     [4]float32{v.Position[0], v.Position[1], v.Position[2], v.Near},
		ViewportSize:     [2]float32{float32(width), float32(height)},
		ProjectionScaleY: v.ProjectionScaleY(),
	}
	for i, p := range v.Frustum.Planes {
		g.Frustum[i] = [4]float32{p.Normal[0], p.Normal[1], p.Normal[2], p.Distance}
	}
	if v.Orthographic {
		g.Flags |= CullViewFlagOrthographic
	}
	if v.DepthClamp {
		g.Flags |= CullViewFlagDepthClamp
	}
	return g
}

// Size returns the size of the GPUCullView struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (240)
func (g *GPUCullView) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCullView struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCullView) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.ViewProj[i]))
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(g.PreviousViewProj[i]))
	}
	for p := range 5 {
		for i := range 4 {
			binary.LittleEndian.PutUint32(buf[128+p*16+i*4:], math.Float32bits(g.Frustum[p][i]))
		}
	}
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[208+i*4:], math.Float32bits(g.PositionNear[i]))
	}
	binary.LittleEndian.PutUint32(buf[224:], math.Float32bits(g.ViewportSize[0]))
	binary.LittleEndian.PutUint32(buf[228:], math.Float32bits(g.ViewportSize[1]))
	binary.LittleEndian.PutUint32(buf[232:], math.Float32bits(g.ProjectionScaleY))
	binary.LittleEndian.PutUint32(buf[236:], g.Flags)
	return buf
}
