// Package common contains plain math, bounds and logging helpers shared by every stage of the
// culling and rasterization pipeline. They are not interface-wrapped structs, just plain values.
package common

import (
	"math"

	"golang.org/x/image/math/f32"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min f32.Vec3
	Max f32.Vec3
}

// Sphere is a bounding sphere.
type Sphere struct {
	Center f32.Vec3
	Radius float32
}

// Rect is an inclusive pixel rectangle in viewport space (origin top-left).
type Rect struct {
	MinX, MinY, MaxX, MaxY int32
}

// EmptyAABB returns an inverted box that any Extend call will overwrite.
func EmptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: f32.Vec3{inf, inf, inf},
		Max: f32.Vec3{-inf, -inf, -inf},
	}
}

// Extend grows the box to contain p.
func (b AABB) Extend(p f32.Vec3) AABB {
	return AABB{Min: Min3(b.Min, p), Max: Max3(b.Max, p)}
}

// Union returns the smallest box containing both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{Min: Min3(b.Min, o.Min), Max: Max3(b.Max, o.Max)}
}

// IsEmpty reports whether the box contains no points.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

func (b AABB) Center() f32.Vec3 {
	return Scale3(Add3(b.Min, b.Max), 0.5)
}

// Extents returns the half size of the box along each axis.
func (b AABB) Extents() f32.Vec3 {
	return Scale3(Sub3(b.Max, b.Min), 0.5)
}

// Corners returns the eight corners of the box.
func (b AABB) Corners() [8]f32.Vec3 {
	var out [8]f32.Vec3
	for i := range out {
		out[i] = f32.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			out[i][0] = b.Max[0]
		}
		if i&2 != 0 {
			out[i][1] = b.Max[1]
		}
		if i&4 != 0 {
			out[i][2] = b.Max[2]
		}
	}
	return out
}

// Transform returns the world-space box enclosing b after the affine transform m
// (Arvo's method: each output axis sums the min/max contributions of every input axis).
//
// Parameters:
//   - m: an affine world-from-local matrix
//
// Returns:
//   - AABB: the enclosing box in the destination space
func (b AABB) Transform(m f32.Mat4) AABB {
	out := AABB{
		Min: f32.Vec3{m[3], m[7], m[11]},
		Max: f32.Vec3{m[3], m[7], m[11]},
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			e := m[4*r+c] * b.Min[c]
			f := m[4*r+c] * b.Max[c]
			out.Min[r] += min(e, f)
			out.Max[r] += max(e, f)
		}
	}
	return out
}

// BoundingSphere returns the sphere circumscribing the box.
func (b AABB) BoundingSphere() Sphere {
	return Sphere{Center: b.Center(), Radius: Length3(b.Extents())}
}

// Transform moves the sphere through an affine matrix, scaling its radius by the largest axis scale.
func (s Sphere) Transform(m f32.Mat4) Sphere {
	return Sphere{
		Center: TransformPosition(m, s.Center),
		Radius: s.Radius * MaxScale(m),
	}
}

// Width returns the number of pixel columns the rectangle covers.
func (r Rect) Width() int32 { return r.MaxX - r.MinX + 1 }

// Height returns the number of pixel rows the rectangle covers.
func (r Rect) Height() int32 { return r.MaxY - r.MinY + 1 }
