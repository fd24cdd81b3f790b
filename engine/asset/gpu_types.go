package asset

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
)

// GPUVertexSource is the canonical WGSL definition of the Vertex struct.
// Matches GPUVertex layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/vertex.wgsl
var GPUVertexSource string

// GPUVertex is the GPU-aligned representation of a single vertex record.
// Size: 32 bytes (scalar fields only, no padding required).
type GPUVertex struct {
	Position [3]float32 // offset  0: model-space position (12 bytes)
	Normal   [3]float32 // offset 12: model-space normal (12 bytes)
	UV       [2]float32 // offset 24: texture coordinate (8 bytes)
}

// NewGPUVertex converts a Vertex to its GPU layout.
func NewGPUVertex(v Vertex) GPUVertex {
	return GPUVertex{
		Position: [3]float32(v.Position),
		Normal:   [3]float32(v.Normal),
		UV:       [2]float32(v.UV),
	}
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, 32)
	putFloats(buf[0:], g.Position[:]...)
	putFloats(buf[12:], g.Normal[:]...)
	putFloats(buf[24:], g.UV[:]...)
	return buf
}

// GPUMeshletSource is the canonical WGSL definition of the Meshlet struct.
// Matches GPUMeshlet layout exactly (96 bytes, std430 aligned).
//
//go:embed assets/meshlet.wgsl
var GPUMeshletSource string

// GPUMeshlet is the GPU-aligned representation of a Meshlet.
// Size: 96 bytes (std430 aligned).
type GPUMeshlet struct {
	VertexOffset    uint32     // offset  0
	TriangleOffset  uint32     // offset  4
	VertexCount     uint32     // offset  8
	TriangleCount   uint32     // offset 12
	AABBMin         [3]float32 // offset 16: local bounds min (vec3)
	LODError        float32    // offset 28: packed into the bounds min w
	AABBMax         [3]float32 // offset 32: local bounds max (vec3)
	ParentLODError  float32    // offset 44: packed into the bounds max w
	LODSphere       [4]float32 // offset 48: center xyz, radius w
	ParentLODSphere [4]float32 // offset 64
	CullSphere      [4]float32 // offset 80
}

// NewGPUMeshlet converts a Meshlet to its GPU layout.
func NewGPUMeshlet(m Meshlet) GPUMeshlet {
	return GPUMeshlet{
		VertexOffset:    m.VertexOffset,
		TriangleOffset:  m.TriangleOffset,
		VertexCount:     m.VertexCount,
		TriangleCount:   m.TriangleCount,
		AABBMin:         [3]float32(m.Bounds.Min),
		LODError:        m.LODError,
		AABBMax:         [3]float32(m.Bounds.Max),
		ParentLODError:  m.ParentLODError,
		LODSphere:       sphere4(m.LODSphere),
		ParentLODSphere: sphere4(m.ParentLODSphere),
		CullSphere:      sphere4(m.CullSphere),
	}
}

// Size returns the size of the GPUMeshlet struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUMeshlet) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMeshlet struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload.
func (g *GPUMeshlet) Marshal() []byte {
	buf := make([]byte, 96)
	binary.LittleEndian.PutUint32(buf[0:4], g.VertexOffset)
	binary.LittleEndian.PutUint32(buf[4:8], g.TriangleOffset)
	binary.LittleEndian.PutUint32(buf[8:12], g.VertexCount)
	binary.LittleEndian.PutUint32(buf[12:16], g.TriangleCount)
	putFloats(buf[16:], g.AABBMin[:]...)
	putFloats(buf[28:], g.LODError)
	putFloats(buf[32:], g.AABBMax[:]...)
	putFloats(buf[44:], g.ParentLODError)
	putFloats(buf[48:], g.LODSphere[:]...)
	putFloats(buf[64:], g.ParentLODSphere[:]...)
	putFloats(buf[80:], g.CullSphere[:]...)
	return buf
}

// GPUBVHNodeSource is the canonical WGSL definition of the BVHNode struct.
// Matches GPUBVHNode layout exactly (208 bytes, std430 aligned).
//
//go:embed assets/bvh_node.wgsl
var GPUBVHNodeSource string

// GPUBVHNode is the GPU-aligned representation of a BVHNode.
// Size: 208 bytes (std430 aligned).
type GPUBVHNode struct {
	AABBMinLODError [BVHWidth][4]float32 // offset   0: per slot bounds min xyz, LOD error w
	AABBMax         [BVHWidth][4]float32 // offset  64: per slot bounds max xyz, w unused
	LODSpheres      [BVHWidth][4]float32 // offset 128: per slot LOD sphere
	ChildOffset     uint32               // offset 192
	ChildCounts     uint32               // offset 196
	_pad            [2]uint32            // offset 200: padding to 208 bytes
}

// NewGPUBVHNode converts a BVHNode to its GPU layout.
func NewGPUBVHNode(n BVHNode) GPUBVHNode {
	g := GPUBVHNode{ChildOffset: n.ChildOffset, ChildCounts: n.ChildCounts}
	for s := range BVHWidth {
		g.AABBMinLODError[s] = [4]float32{n.AABBs[s].Min[0], n.AABBs[s].Min[1], n.AABBs[s].Min[2], n.LODErrors[s]}
		g.AABBMax[s] = [4]float32{n.AABBs[s].Max[0], n.AABBs[s].Max[1], n.AABBs[s].Max[2], 0}
		g.LODSpheres[s] = sphere4(n.LODSpheres[s])
	}
	return g
}

// Size returns the size of the GPUBVHNode struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUBVHNode) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUBVHNode struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 208-byte buffer ready for GPU upload.
func (g *GPUBVHNode) Marshal() []byte {
	buf := make([]byte, 208)
	for s := range BVHWidth {
		putFloats(buf[s*16:], g.AABBMinLODError[s][:]...)
		putFloats(buf[64+s*16:], g.AABBMax[s][:]...)
		putFloats(buf[128+s*16:], g.LODSpheres[s][:]...)
	}
	binary.LittleEndian.PutUint32(buf[192:], g.ChildOffset)
	binary.LittleEndian.PutUint32(buf[196:], g.ChildCounts)
	return buf
}

func sphere4(s common.Sphere) [4]float32 {
	return [4]float32{s.Center[0], s.Center[1], s.Center[2], s.Radius}
}

func putFloats(buf []byte, values ...float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}
