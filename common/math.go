package common

import (
	"math"

	"golang.org/x/image/math/f32"
)

// Matrices in this module are row-major f32.Mat4 values (element m[4*row+col]) that
// transform column vectors, so clip = M * v and the rows of M are its clip-space planes.

// Identity returns the 4x4 identity matrix.
//
// Returns:
//   - f32.Mat4: the identity matrix
func Identity() f32.Mat4 {
	return f32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul4 multiplies two 4x4 matrices.
// Result: a * b, so b is applied first when transforming a vector.
//
// Parameters:
//   - a: left-hand matrix
//   - b: right-hand matrix
//
// Returns:
//   - f32.Mat4: the product matrix
func Mul4(a, b f32.Mat4) f32.Mat4 {
	var out f32.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[4*r+k] * b[4*k+c]
			}
			out[4*r+c] = sum
		}
	}
	return out
}

// Transpose returns the transpose of m.
func Transpose(m f32.Mat4) f32.Mat4 {
	var out f32.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[4*c+r] = m[4*r+c]
		}
	}
	return out
}

// MulVec4 transforms a homogeneous vector by m.
func MulVec4(m f32.Mat4, v f32.Vec4) f32.Vec4 {
	return f32.Vec4{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2] + m[3]*v[3],
		m[4]*v[0] + m[5]*v[1] + m[6]*v[2] + m[7]*v[3],
		m[8]*v[0] + m[9]*v[1] + m[10]*v[2] + m[11]*v[3],
		m[12]*v[0] + m[13]*v[1] + m[14]*v[2] + m[15]*v[3],
	}
}

// TransformPoint transforms a position (w = 1) by m and returns the homogeneous result.
func TransformPoint(m f32.Mat4, p f32.Vec3) f32.Vec4 {
	return MulVec4(m, f32.Vec4{p[0], p[1], p[2], 1})
}

// TransformPosition transforms a position by an affine matrix, dropping w.
func TransformPosition(m f32.Mat4, p f32.Vec3) f32.Vec3 {
	v := TransformPoint(m, p)
	return f32.Vec3{v[0], v[1], v[2]}
}

// TransformDirection transforms a direction (w = 0) by the upper 3x3 of m.
func TransformDirection(m f32.Mat4, d f32.Vec3) f32.Vec3 {
	v := MulVec4(m, f32.Vec4{d[0], d[1], d[2], 0})
	return f32.Vec3{v[0], v[1], v[2]}
}

// MaxScale returns the largest axis scale encoded in the upper 3x3 of an affine matrix.
// Bounding radii and simplification errors are scaled by it when moved to world space.
//
// Parameters:
//   - m: the world-from-local matrix
//
// Returns:
//   - float32: the length of the longest basis column
func MaxScale(m f32.Mat4) float32 {
	var best float32
	for c := 0; c < 3; c++ {
		l := Length3(f32.Vec3{m[c], m[4+c], m[8+c]})
		if l > best {
			best = l
		}
	}
	return best
}

// PerspectiveReverseZ creates a right-handed perspective projection with reversed depth:
// points on the near plane map to NDC depth 1 and points on the far plane to 0.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - f32.Mat4: the projection matrix
func PerspectiveReverseZ(fovY, aspect, near, far float32) f32.Mat4 {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	a := near / (far - near)
	return f32.Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, a, far * a,
		0, 0, -1, 0,
	}
}

// OrthographicReverseZ creates a right-handed orthographic projection with reversed depth.
//
// Parameters:
//   - halfWidth, halfHeight: half extents of the view volume in view units
//   - near: near clipping plane distance
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - f32.Mat4: the projection matrix
func OrthographicReverseZ(halfWidth, halfHeight, near, far float32) f32.Mat4 {
	inv := 1.0 / (far - near)
	return f32.Mat4{
		1 / halfWidth, 0, 0, 0,
		0, 1 / halfHeight, 0, 0,
		0, 0, inv, far * inv,
		0, 0, 0, 1,
	}
}

// IsOrthographic reports whether a projection matrix is orthographic (its w row is 0 0 0 1).
func IsOrthographic(proj f32.Mat4) bool {
	return proj[15] == 1
}

// BuildModelMatrix constructs a world-from-local matrix from position, Euler rotation and scale.
// The rotation order is Y * X * Z (yaw-pitch-roll).
//
// Parameters:
//   - pos: translation in world space
//   - rot: rotation angles in radians around each axis
//   - scale: scale factors along each axis
//
// Returns:
//   - f32.Mat4: the model matrix
func BuildModelMatrix(pos, rot, scale f32.Vec3) f32.Mat4 {
	cx := float32(math.Cos(float64(rot[0])))
	sx := float32(math.Sin(float64(rot[0])))
	cy := float32(math.Cos(float64(rot[1])))
	sy := float32(math.Sin(float64(rot[1])))
	cz := float32(math.Cos(float64(rot[2])))
	sz := float32(math.Sin(float64(rot[2])))

	return f32.Mat4{
		(cy*cz + sy*sx*sz) * scale[0], (cy*-sz + sy*sx*cz) * scale[1], (sy * cx) * scale[2], pos[0],
		(cx * sz) * scale[0], (cx * cz) * scale[1], (-sx) * scale[2], pos[1],
		(-sy*cz + cy*sx*sz) * scale[0], (sy*sz + cy*sx*cz) * scale[1], (cy * cx) * scale[2], pos[2],
		0, 0, 0, 1,
	}
}

// Invert4 computes the inverse of a 4x4 matrix using the Laplace expansion (cofactor) method.
// The cofactor formulas are layout independent, so they apply to row-major storage unchanged.
//
// Parameters:
//   - m: source matrix
//
// Returns:
//   - f32.Mat4: the inverse, or the zero matrix when m is singular
//   - bool: true if the matrix was successfully inverted, false if singular
func Invert4(m f32.Mat4) (f32.Mat4, bool) {
	var out f32.Mat4

	// 2x2 sub-determinants of the upper-left and lower-right quadrants.
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return out, false
	}
	invDet := 1.0 / det

	out[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * invDet
	out[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * invDet
	out[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * invDet
	out[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * invDet

	out[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * invDet
	out[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * invDet
	out[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * invDet
	out[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * invDet

	out[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * invDet
	out[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * invDet
	out[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * invDet
	out[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * invDet

	out[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * invDet
	out[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * invDet
	out[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * invDet
	out[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * invDet

	return out, true
}

// LookAt creates a right-handed view matrix that transforms world coordinates to view space.
// The camera looks down its local -Z axis.
//
// Parameters:
//   - eye: camera position in world space
//   - center: target point the camera looks at
//   - up: up vector defining camera orientation (typically 0,1,0)
//
// Returns:
//   - f32.Mat4: the view matrix
func LookAt(eye, center, up f32.Vec3) f32.Mat4 {
	z := Normalize3(Sub3(eye, center))
	if z == (f32.Vec3{}) {
		z = f32.Vec3{0, 0, 1}
	}
	x := Normalize3(Cross3(up, z))
	if x == (f32.Vec3{}) {
		x = f32.Vec3{1, 0, 0}
	}
	y := Cross3(z, x)

	return f32.Mat4{
		x[0], x[1], x[2], -Dot3(x, eye),
		y[0], y[1], y[2], -Dot3(y, eye),
		z[0], z[1], z[2], -Dot3(z, eye),
		0, 0, 0, 1,
	}
}

func Add3(a, b f32.Vec3) f32.Vec3 { return f32.Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

func Sub3(a, b f32.Vec3) f32.Vec3 { return f32.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func Scale3(a f32.Vec3, s float32) f32.Vec3 { return f32.Vec3{a[0] * s, a[1] * s, a[2] * s} }

func Dot3(a, b f32.Vec3) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func Cross3(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func Length3(a f32.Vec3) float32 { return float32(math.Sqrt(float64(Dot3(a, a)))) }

func Distance3(a, b f32.Vec3) float32 { return Length3(Sub3(a, b)) }

// Normalize3 returns a unit-length copy of a, or the zero vector when a has no length.
func Normalize3(a f32.Vec3) f32.Vec3 {
	l := Length3(a)
	if l == 0 {
		return f32.Vec3{}
	}
	return Scale3(a, 1/l)
}

func Min3(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

func Max3(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}
