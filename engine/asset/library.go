package asset

import (
	"fmt"
	"sync"
)

// library is the implementation of the Library interface.
type library struct {
	mu        sync.Mutex
	vertices  []Vertex
	vertexIDs []uint32
	triangles []uint8
	meshlets  []Meshlet
	nodes     []BVHNode
	maxDepth  int
	meshes    []MeshHandle
}

// Library is the global, read-only geometry pool the culling stages index into.
// Meshes are merged at setup; the slices it returns must not be modified, and AddMesh
// must not run while a frame is being culled.
type Library interface {
	// AddMesh validates a mesh and merges it into the pool, rebasing every offset.
	//
	// Parameters:
	//   - m: the mesh to merge
	//
	// Returns:
	//   - MeshHandle: the handle holding the mesh's global root node
	//   - error: a wrapped asset error if the mesh is invalid
	AddMesh(m *Mesh) (MeshHandle, error)

	// Meshes returns the handles of every merged mesh in insertion order.
	Meshes() []MeshHandle

	Vertices() []Vertex
	VertexIDs() []uint32
	Triangles() []uint8
	Meshlets() []Meshlet
	Nodes() []BVHNode

	// MaxDepth returns the deepest BVH merged so far.
	MaxDepth() int

	// TriangleVertices returns the three vertices of a meshlet triangle.
	//
	// Parameters:
	//   - meshlet: global meshlet index
	//   - triangle: triangle index within the meshlet
	//
	// Returns:
	//   - [3]Vertex: the triangle's vertices
	//   - [3]uint32: the global vertex indices
	TriangleVertices(meshlet, triangle uint32) ([3]Vertex, [3]uint32)
}

var _ Library = &library{}

// NewLibrary creates an empty geometry pool.
func NewLibrary() Library {
	return &library{}
}

func (l *library) AddMesh(m *Mesh) (MeshHandle, error) {
	depth, err := validateMesh(m)
	if err != nil {
		return MeshHandle{}, fmt.Errorf("add mesh: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	vertexBase := uint32(len(l.vertices))
	idBase := uint32(len(l.vertexIDs))
	triBase := uint32(len(l.triangles))
	meshletBase := uint32(len(l.meshlets))
	nodeBase := uint32(len(l.nodes))

	l.vertices = append(l.vertices, m.Vertices...)
	for _, id := range m.VertexIDs {
		l.vertexIDs = append(l.vertexIDs, id+vertexBase)
	}
	l.triangles = append(l.triangles, m.Triangles...)
	for _, ml := range m.Meshlets {
		ml.VertexOffset += idBase
		ml.TriangleOffset += triBase
		l.meshlets = append(l.meshlets, ml)
	}
	for _, n := range m.Nodes {
		if n.HasNodeChildren() {
			n.ChildOffset += nodeBase
		} else {
			n.ChildOffset += meshletBase
		}
		l.nodes = append(l.nodes, n)
	}

	handle := MeshHandle{Root: nodeBase, Bounds: m.Bounds, Depth: depth}
	l.meshes = append(l.meshes, handle)
	l.maxDepth = max(l.maxDepth, depth)
	return handle, nil
}

func (l *library) Meshes() []MeshHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MeshHandle(nil), l.meshes...)
}

func (l *library) Vertices() []Vertex   { return l.vertices }
func (l *library) VertexIDs() []uint32  { return l.vertexIDs }
func (l *library) Triangles() []uint8   { return l.triangles }
func (l *library) Meshlets() []Meshlet  { return l.meshlets }
func (l *library) Nodes() []BVHNode     { return l.nodes }

func (l *library) MaxDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxDepth
}

func (l *library) TriangleVertices(meshlet, triangle uint32) ([3]Vertex, [3]uint32) {
	ml := &l.meshlets[meshlet]
	base := ml.TriangleOffset + 3*triangle
	var verts [3]Vertex
	var ids [3]uint32
	for i := range 3 {
		ids[i] = l.vertexIDs[ml.VertexOffset+uint32(l.triangles[base+uint32(i)])]
		verts[i] = l.vertices[ids[i]]
	}
	return verts, ids
}
