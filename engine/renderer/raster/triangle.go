// Package raster writes clusters into the visibility buffer. Small clusters go through
// a compute-style software rasterizer, everything else through an emulated indirect
// instanced draw. Both share the same triangle setup and coverage rules, so a triangle
// produces the same keys on either path.
package raster

import (
	"math"

	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/visbuffer"
	"golang.org/x/image/math/f32"
)

// DefaultScanlineThreshold is the bounding box width, in pixels, above which a triangle is
// walked row by row over its exact coverage interval instead of over the full box.
const DefaultScanlineThreshold = 16

const (
	// subpixelSteps snaps screen positions to 1/256 pixel.
	subpixelSteps = 256
	// screenLimit keeps snapped coordinates well inside float64 integer precision.
	screenLimit = 1 << 22
)

// screenVertex is a vertex after the viewport transform: pixel position (origin top-left,
// y down) and NDC depth.
type screenVertex struct {
	X, Y float64
	Z    float32
}

// toScreen applies the perspective divide and viewport transform to a clip position.
func toScreen(clip f32.Vec4, width, height float64) screenVertex {
	invW := 1 / float64(clip[3])
	x := (float64(clip[0])*invW*0.5 + 0.5) * width
	y := (0.5 - float64(clip[1])*invW*0.5) * height
	return screenVertex{
		X: snap(x),
		Y: snap(y),
		Z: float32(float64(clip[2]) * invW),
	}
}

func snap(v float64) float64 {
	v = min(max(v, -screenLimit), screenLimit)
	return math.Round(v*subpixelSteps) / subpixelSteps
}

// edge is the line function of a directed triangle edge, positive on the inside.
type edge struct {
	a, b, c float64
	// topLeft edges own the pixel centers that lie exactly on them.
	topLeft bool
}

func newEdge(p, q screenVertex) edge {
	dx, dy := q.X-p.X, q.Y-p.Y
	return edge{
		a:       -dy,
		b:       dx,
		c:       dy*p.X - dx*p.Y,
		topLeft: (dy == 0 && dx > 0) || dy < 0,
	}
}

func (e edge) eval(x, y float64) float64 {
	return e.a*x + e.b*y + e.c
}

func (e edge) covers(w float64) bool {
	return w > 0 || (w == 0 && e.topLeft)
}

// target is where a rasterized triangle lands.
type target struct {
	buffer     *visbuffer.Buffer
	width      int32
	height     int32
	depthClamp bool
	scanline   int32
}

func newTarget(buffer *visbuffer.Buffer, scanline uint32) target {
	w, h := buffer.Size()
	return target{
		buffer:     buffer,
		width:      int32(w),
		height:     int32(h),
		depthClamp: buffer.DepthClamp(),
		scanline:   int32(scanline),
	}
}

// drawTriangle rasterizes one triangle with the top-left fill rule at pixel centers and
// writes a key for every covered pixel. Zero-area triangles draw nothing. Both windings
// are drawn.
//
// Parameters:
//   - v: the screen-space vertices
//   - cluster: the raster cluster slot stored in the keys
//   - triangle: the triangle index stored in the keys
//
// Returns:
//   - int: the number of pixels that passed coverage
func (t target) drawTriangle(v [3]screenVertex, cluster, triangle uint32) int {
	area := newEdge(v[0], v[1]).eval(v[2].X, v[2].Y)
	if area == 0 || math.IsNaN(area) {
		return 0
	}
	if area < 0 {
		v[1], v[2] = v[2], v[1]
		area = -area
	}
	// edges[i] is opposite vertex i, so its value at p is vertex i's weight times area
	edges := [3]edge{newEdge(v[1], v[2]), newEdge(v[2], v[0]), newEdge(v[0], v[1])}

	minX := max(int32(math.Floor(min(v[0].X, v[1].X, v[2].X))), 0)
	maxX := min(int32(math.Ceil(max(v[0].X, v[1].X, v[2].X))), t.width-1)
	minY := max(int32(math.Floor(min(v[0].Y, v[1].Y, v[2].Y))), 0)
	maxY := min(int32(math.Ceil(max(v[0].Y, v[1].Y, v[2].Y))), t.height-1)
	if minX > maxX || minY > maxY {
		return 0
	}

	invArea := 1 / area
	covered := 0
	for py := minY; py <= maxY; py++ {
		cy := float64(py) + 0.5
		x0, x1 := minX, maxX
		if maxX-minX+1 > t.scanline {
			var ok bool
			if x0, x1, ok = rowInterval(edges, cy, minX, maxX); !ok {
				continue
			}
		}
		for px := x0; px <= x1; px++ {
			cx := float64(px) + 0.5
			w0, w1, w2 := edges[0].eval(cx, cy), edges[1].eval(cx, cy), edges[2].eval(cx, cy)
			if !edges[0].covers(w0) || !edges[1].covers(w1) || !edges[2].covers(w2) {
				continue
			}
			z := float32((w0*float64(v[0].Z) + w1*float64(v[1].Z) + w2*float64(v[2].Z)) * invArea)
			if t.write(uint32(px), uint32(py), z, cluster, triangle) {
				covered++
			}
		}
	}
	return covered
}

// rowInterval narrows a row to the pixel range whose centers can satisfy every edge. The
// range is padded by one pixel on each side and the exact test is still applied per pixel.
func rowInterval(edges [3]edge, cy float64, minX, maxX int32) (int32, int32, bool) {
	lo, hi := float64(minX), float64(maxX)+1
	for _, e := range edges {
		// e.a*x + (e.b*cy + e.c) >= 0
		rest := e.b*cy + e.c
		switch {
		case e.a > 0:
			lo = max(lo, -rest/e.a)
		case e.a < 0:
			hi = min(hi, -rest/e.a)
		case rest < 0:
			return 0, 0, false
		}
	}
	x0 := max(int32(math.Floor(lo-0.5))-1, minX)
	x1 := min(int32(math.Ceil(hi-0.5))+1, maxX)
	return x0, x1, x0 <= x1
}

// write stores the key for one covered pixel. Depths beyond the far plane are dropped in
// every mode; only depth clamping keeps depths in front of the near plane.
func (t target) write(x, y uint32, z float32, cluster, triangle uint32) bool {
	if !(z >= 0) || (!t.depthClamp && z == 0) {
		return false
	}
	if !t.depthClamp {
		z = min(z, 1)
	}
	t.buffer.Write(x, y, visbuffer.PackKey(visbuffer.EncodeDepth(z, t.depthClamp), cluster, triangle))
	return true
}
