package scene

import (
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"golang.org/x/image/math/f32"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithName sets the scene's identifier.
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
	}
}

// WithCapacity pre-sizes the instance storage.
func WithCapacity(n int) SceneBuilderOption {
	return func(s *scene) {
		if n > 0 {
			s.instances = make([]Instance, 0, n)
			s.slots = make(map[uint32]int, n)
		}
	}
}

// WithInstances adds initial instances of a mesh, one per transform, all using the same material.
func WithInstances(mesh asset.MeshHandle, materialID uint32, transforms ...f32.Mat4) SceneBuilderOption {
	return func(s *scene) {
		for _, t := range transforms {
			s.add(mesh, t, materialID)
		}
	}
}
