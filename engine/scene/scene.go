// Package scene holds the per-instance registry the culling pipeline reads each frame.
package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"golang.org/x/image/math/f32"
)

// Instance is one placement of a mesh in the world. Snapshots of it are read-only to the pipeline.
type Instance struct {
	ID uint32
	// Transform and PreviousTransform are world-from-local matrices for this and the last frame.
	Transform         f32.Mat4
	PreviousTransform f32.Mat4
	// WorldAABB and PreviousWorldAABB are the mesh bounds moved by the matching transform.
	WorldAABB         common.AABB
	PreviousWorldAABB common.AABB
	// LocalAABB is the mesh bounds in local space.
	LocalAABB common.AABB
	// BVHRoot is the global index of the mesh's root BVH node.
	BVHRoot    uint32
	Visible    bool
	MaterialID uint32
}

// Scene manages the set of instances submitted to the renderer.
// Instances are kept densely packed; removal swaps the last instance into the freed slot.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Count returns the number of registered instances.
	Count() int

	// Add places a mesh in the scene. The previous-frame transform starts equal to the current one.
	//
	// Parameters:
	//   - mesh: the handle returned by the asset library
	//   - transform: the world-from-local matrix
	//   - materialID: the material id handed to the shading pass
	//
	// Returns:
	//   - uint32: the assigned instance ID
	Add(mesh asset.MeshHandle, transform f32.Mat4, materialID uint32) uint32

	// Get retrieves a copy of an instance by ID.
	//
	// Parameters:
	//   - id: the instance ID
	//
	// Returns:
	//   - Instance: the instance
	//   - bool: false if the ID is unknown
	Get(id uint32) (Instance, bool)

	// Remove deletes an instance by ID. Unknown IDs are ignored.
	//
	// Parameters:
	//   - id: the instance ID
	Remove(id uint32)

	// SetTransform replaces an instance's current transform and recomputes its world bounds.
	//
	// Parameters:
	//   - id: the instance ID
	//   - transform: the new world-from-local matrix
	//
	// Returns:
	//   - bool: false if the ID is unknown
	SetTransform(id uint32, transform f32.Mat4) bool

	// SetVisible toggles whether the instance is submitted to culling.
	//
	// Parameters:
	//   - id: the instance ID
	//   - visible: the new visibility flag
	//
	// Returns:
	//   - bool: false if the ID is unknown
	SetVisible(id uint32, visible bool) bool

	// Snapshot returns a copy of every instance in slot order. The slot index is the
	// instance index used by the culling stages for this frame.
	Snapshot() []Instance

	// EndFrame makes every current transform the previous-frame transform.
	// Call it after the frame has been rendered.
	EndFrame()

	// Clear removes every instance.
	Clear()
}

type scene struct {
	mu *sync.RWMutex

	name      string
	instances []Instance
	slots     map[uint32]int // instance ID to slot in instances
	nextID    uint32
}

var _ Scene = &scene{}

// NewScene creates an empty Scene.
//
// Parameters:
//   - options: functional options applied in order
//
// Returns:
//   - Scene: the new scene
func NewScene(options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:     &sync.RWMutex{},
		slots:  make(map[uint32]int),
		nextID: 1,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

func (s *scene) Add(mesh asset.MeshHandle, transform f32.Mat4, materialID uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(mesh, transform, materialID)
}

// add registers an instance. Caller must hold the lock.
func (s *scene) add(mesh asset.MeshHandle, transform f32.Mat4, materialID uint32) uint32 {
	world := mesh.Bounds.Transform(transform)
	inst := Instance{
		ID:                s.nextID,
		Transform:         transform,
		PreviousTransform: transform,
		WorldAABB:         world,
		PreviousWorldAABB: world,
		LocalAABB:         mesh.Bounds,
		BVHRoot:           mesh.Root,
		Visible:           true,
		MaterialID:        materialID,
	}
	s.nextID++
	s.slots[inst.ID] = len(s.instances)
	s.instances = append(s.instances, inst)
	return inst.ID
}

func (s *scene) Get(id uint32) (Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return Instance{}, false
	}
	return s.instances[slot], true
}

func (s *scene) Remove(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return
	}
	delete(s.slots, id)

	last := len(s.instances) - 1
	if slot != last {
		s.instances[slot] = s.instances[last]
		s.slots[s.instances[slot].ID] = slot
	}
	s.instances = s.instances[:last]
}

func (s *scene) SetTransform(id uint32, transform f32.Mat4) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return false
	}
	inst := &s.instances[slot]
	inst.Transform = transform
	inst.WorldAABB = inst.LocalAABB.Transform(transform)
	return true
}

func (s *scene) SetVisible(id uint32, visible bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return false
	}
	s.instances[slot].Visible = visible
	return true
}

func (s *scene) Snapshot() []Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Instance(nil), s.instances...)
}

func (s *scene) EndFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.instances {
		s.instances[i].PreviousTransform = s.instances[i].Transform
		s.instances[i].PreviousWorldAABB = s.instances[i].WorldAABB
	}
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = nil
	clear(s.slots)
}
