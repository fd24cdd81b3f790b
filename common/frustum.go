package common

import (
	"math"

	"golang.org/x/image/math/f32"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   f32.Vec3
	Distance float32
}

// SignedDistance returns the distance of p from the plane, positive on the inside.
func (p Plane) SignedDistance(pt f32.Vec3) float32 {
	return Dot3(p.Normal, pt) + p.Distance
}

// Frustum holds the five culling planes of a reverse-Z view: the four sides and the near plane.
// The far plane is not tested.
// Planes are oriented so that the positive half-space is inside the frustum.
type Frustum struct {
	Planes [5]Plane // Left, Right, Bottom, Top, Near
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
)

// Containment classifies a volume against a frustum.
type Containment int

const (
	Outside Containment = iota
	Intersecting
	Inside
)

// ExtractFrustum extracts the culling planes from a reverse-Z view-projection matrix
// (Gribb/Hartmann). With row-major storage the rows are read directly, which is the
// transpose of the column-major clip matrix a shader would upload.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the combined Projection * View matrix
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustum(viewProj f32.Mat4) Frustum {
	var f Frustum
	row := func(r int) f32.Vec4 {
		return f32.Vec4{viewProj[4*r], viewProj[4*r+1], viewProj[4*r+2], viewProj[4*r+3]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	f.Planes[FrustumLeft] = planeFrom(r3, r0, 1)
	f.Planes[FrustumRight] = planeFrom(r3, r0, -1)
	f.Planes[FrustumBottom] = planeFrom(r3, r1, 1)
	f.Planes[FrustumTop] = planeFrom(r3, r1, -1)
	// Reverse-Z: inside the near plane means z <= w.
	f.Planes[FrustumNear] = planeFrom(r3, r2, -1)

	for i := range f.Planes {
		f.normalizePlane(i)
	}
	return f
}

func planeFrom(w, axis f32.Vec4, sign float32) Plane {
	return Plane{
		Normal: f32.Vec3{
			w[0] + sign*axis[0],
			w[1] + sign*axis[1],
			w[2] + sign*axis[2],
		},
		Distance: w[3] + sign*axis[3],
	}
}

// normalizePlane normalizes a frustum plane so that the normal has unit length.
func (f *Frustum) normalizePlane(index int) {
	p := &f.Planes[index]
	length := float32(math.Sqrt(float64(Dot3(p.Normal, p.Normal))))
	if length > 0 {
		invLen := 1.0 / length
		p.Normal = Scale3(p.Normal, invLen)
		p.Distance *= invLen
	}
}

// TestAABB classifies a world-space box against the frustum using the positive and
// negative vertex of the box along each plane normal.
//
// Parameters:
//   - b: the box to classify
//
// Returns:
//   - Containment: Outside if the box lies entirely behind any plane, Inside if it lies in front of all of them
func (f Frustum) TestAABB(b AABB) Containment {
	result := Inside
	for _, p := range f.Planes {
		var pos, neg f32.Vec3
		for i := 0; i < 3; i++ {
			if p.Normal[i] >= 0 {
				pos[i], neg[i] = b.Max[i], b.Min[i]
			} else {
				pos[i], neg[i] = b.Min[i], b.Max[i]
			}
		}
		if p.SignedDistance(pos) < 0 {
			return Outside
		}
		if p.SignedDistance(neg) < 0 {
			result = Intersecting
		}
	}
	return result
}

// IntersectsAABB reports whether any part of the box may be inside the frustum.
func (f Frustum) IntersectsAABB(b AABB) bool {
	return f.TestAABB(b) != Outside
}

// IntersectsSphere reports whether any part of the sphere may be inside the frustum.
func (f Frustum) IntersectsSphere(s Sphere) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// WithoutNear returns a copy whose near plane accepts everything. Used for depth-clamped
// views, where geometry in front of the near plane still contributes.
func (f Frustum) WithoutNear() Frustum {
	f.Planes[FrustumNear] = Plane{Distance: 1}
	return f
}
