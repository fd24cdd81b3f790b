package asset

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
)

// flatLeafMeshlets is the number of consecutive meshlets a flat leaf slot references.
const flatLeafMeshlets = 2

// BuildFlatMesh packs an indexed triangle list into meshlets in submission order and
// wraps them in a single-LOD, 4-wide BVH. Every meshlet has zero simplification error and
// an infinite parent error, so it is always part of the LOD cut. It is meant for tests,
// tools and debug geometry; real hierarchies come from the offline builder.
//
// Parameters:
//   - vertices: the vertex pool
//   - indices: three vertex indices per triangle
//
// Returns:
//   - *Mesh: the packed mesh
//   - error: ErrEmptyMesh or ErrIndexOutOfRange wrapped with context
func BuildFlatMesh(vertices []Vertex, indices []uint32) (*Mesh, error) {
	if len(vertices) == 0 || len(indices) < 3 {
		return nil, ErrEmptyMesh
	}
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("index count %d is not a multiple of 3: %w", len(indices), ErrIndexOutOfRange)
	}

	m := &Mesh{Vertices: vertices, Bounds: common.EmptyAABB()}
	for _, v := range vertices {
		m.Bounds = m.Bounds.Extend(v.Position)
	}

	local := make(map[uint32]uint8, MaxMeshletVertices)
	current := Meshlet{}
	flush := func() {
		if current.TriangleCount == 0 {
			return
		}
		current.Bounds = common.EmptyAABB()
		for _, id := range m.VertexIDs[current.VertexOffset:] {
			current.Bounds = current.Bounds.Extend(vertices[id].Position)
		}
		current.CullSphere = current.Bounds.BoundingSphere()
		current.LODSphere = current.CullSphere
		current.ParentLODSphere = current.CullSphere
		current.ParentLODError = float32(math.Inf(1))
		m.Meshlets = append(m.Meshlets, current)
		current = Meshlet{
			VertexOffset:   uint32(len(m.VertexIDs)),
			TriangleOffset: uint32(len(m.Triangles)),
		}
		clear(local)
	}

	for t := 0; t < len(indices); t += 3 {
		tri := indices[t : t+3]
		fresh := 0
		for _, id := range tri {
			if int(id) >= len(vertices) {
				return nil, fmt.Errorf("triangle %d vertex %d: %w", t/3, id, ErrIndexOutOfRange)
			}
			if _, ok := local[id]; !ok {
				fresh++
			}
		}
		if current.TriangleCount == MaxMeshletTriangles || int(current.VertexCount)+fresh > MaxMeshletVertices {
			flush()
		}
		for _, id := range tri {
			l, ok := local[id]
			if !ok {
				l = uint8(current.VertexCount)
				local[id] = l
				m.VertexIDs = append(m.VertexIDs, id)
				current.VertexCount++
			}
			m.Triangles = append(m.Triangles, l)
		}
		current.TriangleCount++
	}
	flush()

	m.Nodes = buildFlatHierarchy(m.Meshlets)
	return m, nil
}

// protoNode is a BVH node before its children have been given final indices.
type protoNode struct {
	node   BVHNode
	bounds common.AABB
}

// buildFlatHierarchy groups meshlets into leaf nodes and leaf nodes into parents until a
// single root remains. Levels are emitted root first so children always follow their parent.
func buildFlatHierarchy(meshlets []Meshlet) []BVHNode {
	inf := float32(math.Inf(1))

	var level []protoNode
	perLeaf := BVHWidth * flatLeafMeshlets
	for first := 0; first < len(meshlets); first += perLeaf {
		p := protoNode{bounds: common.EmptyAABB()}
		p.node.ChildOffset = uint32(first)
		var lanes [BVHWidth]uint8
		for slot := range BVHWidth {
			start := first + slot*flatLeafMeshlets
			if start >= len(meshlets) {
				break
			}
			end := min(start+flatLeafMeshlets, len(meshlets))
			lanes[slot] = uint8(end - start)
			box := common.EmptyAABB()
			for _, ml := range meshlets[start:end] {
				box = box.Union(ml.Bounds)
			}
			p.node.AABBs[slot] = box
			p.node.LODSpheres[slot] = box.BoundingSphere()
			p.node.LODErrors[slot] = inf
			p.bounds = p.bounds.Union(box)
		}
		p.node.ChildCounts = PackChildCounts(lanes)
		level = append(level, p)
	}

	levels := [][]protoNode{level}
	for len(level) > 1 {
		var parents []protoNode
		for first := 0; first < len(level); first += BVHWidth {
			p := protoNode{bounds: common.EmptyAABB()}
			var lanes [BVHWidth]uint8
			for slot := range BVHWidth {
				if first+slot >= len(level) {
					break
				}
				child := level[first+slot]
				lanes[slot] = NodeSentinel
				p.node.AABBs[slot] = child.bounds
				p.node.LODSpheres[slot] = child.bounds.BoundingSphere()
				p.node.LODErrors[slot] = inf
				p.bounds = p.bounds.Union(child.bounds)
			}
			p.node.ChildCounts = PackChildCounts(lanes)
			parents = append(parents, p)
		}
		levels = append(levels, parents)
		level = parents
	}

	// Emit root first. A parent at position i of its level owns children 4i..4i+3 of the level below.
	var out []BVHNode
	starts := make([]int, len(levels))
	offset := 0
	for l := len(levels) - 1; l >= 0; l-- {
		starts[l] = offset
		offset += len(levels[l])
	}
	for l := len(levels) - 1; l >= 0; l-- {
		for i, p := range levels[l] {
			if l > 0 {
				p.node.ChildOffset = uint32(starts[l-1] + i*BVHWidth)
			}
			out = append(out, p.node)
		}
	}
	return out
}
