package asset

import "fmt"

// validateMesh checks a mesh's budgets, ranges and hierarchy shape.
//
// Parameters:
//   - m: the mesh to validate
//
// Returns:
//   - int: the depth of the BVH
//   - error: a wrapped sentinel error describing the first problem found
func validateMesh(m *Mesh) (int, error) {
	if m == nil || len(m.Meshlets) == 0 || len(m.Nodes) == 0 || len(m.Vertices) == 0 {
		return 0, ErrEmptyMesh
	}

	for i, ml := range m.Meshlets {
		if ml.VertexCount == 0 || ml.VertexCount > MaxMeshletVertices ||
			ml.TriangleCount == 0 || ml.TriangleCount > MaxMeshletTriangles {
			return 0, fmt.Errorf("meshlet %d (%d vertices, %d triangles): %w", i, ml.VertexCount, ml.TriangleCount, ErrMeshletBudget)
		}
		if int(ml.VertexOffset+ml.VertexCount) > len(m.VertexIDs) {
			return 0, fmt.Errorf("meshlet %d vertex range: %w", i, ErrIndexOutOfRange)
		}
		if int(ml.TriangleOffset+3*ml.TriangleCount) > len(m.Triangles) {
			return 0, fmt.Errorf("meshlet %d triangle range: %w", i, ErrIndexOutOfRange)
		}
		for _, id := range m.VertexIDs[ml.VertexOffset : ml.VertexOffset+ml.VertexCount] {
			if int(id) >= len(m.Vertices) {
				return 0, fmt.Errorf("meshlet %d vertex id %d: %w", i, id, ErrIndexOutOfRange)
			}
		}
		for _, local := range m.Triangles[ml.TriangleOffset : ml.TriangleOffset+3*ml.TriangleCount] {
			if uint32(local) >= ml.VertexCount {
				return 0, fmt.Errorf("meshlet %d local index %d: %w", i, local, ErrIndexOutOfRange)
			}
		}
	}

	return nodeDepth(m, 0)
}

// nodeDepth walks the hierarchy from a node and returns its depth. Child nodes must
// come after their parent, which rules out cycles.
func nodeDepth(m *Mesh, index uint32) (int, error) {
	n := &m.Nodes[index]
	nodes, leaves := 0, 0
	deepest := 0
	for slot := 0; slot < BVHWidth; slot++ {
		switch {
		case n.IsEmpty(slot):
			continue
		case n.IsNode(slot):
			nodes++
			child := n.ChildNode(slot)
			if int(child) >= len(m.Nodes) || child <= index {
				return 0, fmt.Errorf("node %d slot %d child %d: %w", index, slot, child, ErrInvalidHierarchy)
			}
			d, err := nodeDepth(m, child)
			if err != nil {
				return 0, err
			}
			deepest = max(deepest, d)
		default:
			leaves++
			first, count := n.ChildMeshlets(slot)
			if int(first+count) > len(m.Meshlets) {
				return 0, fmt.Errorf("node %d slot %d meshlets [%d, %d): %w", index, slot, first, first+count, ErrIndexOutOfRange)
			}
		}
	}
	if nodes > 0 && leaves > 0 {
		return 0, fmt.Errorf("node %d mixes node and leaf slots: %w", index, ErrInvalidHierarchy)
	}
	if nodes == 0 && leaves == 0 {
		return 0, fmt.Errorf("node %d has no children: %w", index, ErrInvalidHierarchy)
	}
	return deepest + 1, nil
}
