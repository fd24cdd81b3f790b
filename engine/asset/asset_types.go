// Package asset holds the read-only, pre-built geometry consumed by the culling pipeline:
// vertices, meshlets and the per-mesh cluster BVH. Building real LOD hierarchies is done
// offline; this package only validates, merges and serves them.
package asset

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"golang.org/x/image/math/f32"
)

const (
	// MaxMeshletVertices is the vertex budget of a single meshlet.
	MaxMeshletVertices = 64
	// MaxMeshletTriangles is the triangle budget of a single meshlet. Triangle ids must fit in 7 bits.
	MaxMeshletTriangles = 128
	// BVHWidth is the number of child slots per BVH node.
	BVHWidth = 4
	// NodeSentinel marks a child slot whose child is another BVH node.
	NodeSentinel = 0xFF
	// MaxLeafMeshlets is the largest meshlet run a single leaf slot can reference.
	MaxLeafMeshlets = NodeSentinel - 1
)

var (
	ErrEmptyMesh        = errors.New("asset: mesh has no geometry")
	ErrMeshletBudget    = errors.New("asset: meshlet exceeds vertex or triangle budget")
	ErrIndexOutOfRange  = errors.New("asset: index out of range")
	ErrInvalidHierarchy = errors.New("asset: invalid BVH hierarchy")
)

// Vertex is a single vertex record.
type Vertex struct {
	Position f32.Vec3
	Normal   f32.Vec3
	UV       f32.Vec2
}

// Meshlet is a small cluster of triangles with its culling and LOD bounds.
// Triangles are stored as three local vertex indices (bytes) each, and local vertex indices
// resolve through the meshlet vertex id pool to the shared vertex pool.
type Meshlet struct {
	VertexOffset   uint32 // first entry in the meshlet vertex id pool
	VertexCount    uint32
	TriangleOffset uint32 // first byte in the packed triangle pool
	TriangleCount  uint32

	Bounds     common.AABB
	CullSphere common.Sphere

	// LODSphere and LODError describe the simplification error of this meshlet.
	LODSphere common.Sphere
	LODError  float32
	// ParentLODSphere and ParentLODError describe the coarser group this meshlet was simplified into.
	// Root meshlets carry an infinite parent error.
	ParentLODSphere common.Sphere
	ParentLODError  float32
}

// BVHNode is a 4-wide node of a mesh's cluster hierarchy.
//
// ChildCounts packs one byte per slot (slot 0 in the low byte): 0 is an empty slot,
// NodeSentinel means the child is the node at ChildOffset+slot, and any other value n means
// the child is a leaf run of n meshlets starting at ChildOffset plus the counts of the slots before it.
// A node's slots are either all nodes or all leaves.
type BVHNode struct {
	AABBs      [BVHWidth]common.AABB
	LODSpheres [BVHWidth]common.Sphere
	// LODErrors bounds the parent error of every meshlet below the slot. When it is already
	// imperceptible, nothing below the slot can be part of the LOD cut.
	LODErrors   [BVHWidth]float32
	ChildOffset uint32
	ChildCounts uint32
}

// PackChildCounts packs per-slot counts into a node's ChildCounts word.
func PackChildCounts(lanes [BVHWidth]uint8) uint32 {
	var packed uint32
	for i, l := range lanes {
		packed |= uint32(l) << (8 * i)
	}
	return packed
}

// Lane returns the raw count byte of a slot.
func (n *BVHNode) Lane(slot int) uint8 {
	return uint8(n.ChildCounts >> (8 * slot))
}

// IsEmpty reports whether the slot holds no child.
func (n *BVHNode) IsEmpty(slot int) bool {
	return n.Lane(slot) == 0
}

// IsNode reports whether the slot's child is another BVH node.
func (n *BVHNode) IsNode(slot int) bool {
	return n.Lane(slot) == NodeSentinel
}

// HasNodeChildren reports whether the node's slots reference other nodes rather than meshlets.
func (n *BVHNode) HasNodeChildren() bool {
	for s := range BVHWidth {
		if n.IsNode(s) {
			return true
		}
	}
	return false
}

// ChildNode returns the node index of a node slot.
func (n *BVHNode) ChildNode(slot int) uint32 {
	return n.ChildOffset + uint32(slot)
}

// ChildMeshlets returns the meshlet run of a leaf slot.
//
// Parameters:
//   - slot: the child slot
//
// Returns:
//   - uint32: the first meshlet index
//   - uint32: the number of meshlets
func (n *BVHNode) ChildMeshlets(slot int) (uint32, uint32) {
	offset := n.ChildOffset
	for s := 0; s < slot; s++ {
		if l := n.Lane(s); l != NodeSentinel {
			offset += uint32(l)
		}
	}
	return offset, uint32(n.Lane(slot))
}

// Mesh is one mesh's geometry and hierarchy with mesh-relative offsets. Nodes[0] is the root.
type Mesh struct {
	Vertices  []Vertex
	VertexIDs []uint32
	Triangles []uint8
	Meshlets  []Meshlet
	Nodes     []BVHNode
	Bounds    common.AABB
}

// MeshHandle identifies a mesh merged into a Library.
type MeshHandle struct {
	// Root is the global index of the mesh's root BVH node.
	Root   uint32
	Bounds common.AABB
	// Depth is the number of BVH levels below and including the root.
	Depth int
}
