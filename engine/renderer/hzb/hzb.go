// Package hzb builds and samples the hierarchical depth buffer used by every occlusion test.
//
// Depth is reverse-Z (1 at the near plane, 0 at the far plane). Each texel of mip i+1
// holds the minimum of the clamped 2x2 footprint in mip i, so a texel is the farthest
// depth of the pixels it covers. A fresh pyramid is all zeros, which occludes nothing.
package hzb

import (
	"math/bits"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/gogpu/gputypes"
)

// Mip describes one level of the pyramid inside the flat texel slice.
type Mip struct {
	Offset uint32
	Width  uint32
	Height uint32
}

// DepthSource supplies full-resolution reverse-Z depth for mip 0.
type DepthSource interface {
	Size() (width, height uint32)
	Depth(x, y uint32) float32
}

// Pyramid is a full min-depth mip chain stored in one flat slice.
type Pyramid struct {
	texels []float32
	mips   []Mip
}

// NewPyramid allocates a cleared pyramid for a viewport of the given size. Levels halve
// with rounding up until a 1x1 level is reached.
func NewPyramid(width, height uint32) *Pyramid {
	width, height = max(width, 1), max(height, 1)
	p := &Pyramid{}
	var offset uint32
	w, h := width, height
	for {
		p.mips = append(p.mips, Mip{Offset: offset, Width: w, Height: h})
		offset += w * h
		if w == 1 && h == 1 {
			break
		}
		w, h = common.DivCeil(w, 2), common.DivCeil(h, 2)
	}
	p.texels = make([]float32, offset)
	return p
}

// Width returns the width of mip 0.
func (p *Pyramid) Width() uint32 { return p.mips[0].Width }

// Height returns the height of mip 0.
func (p *Pyramid) Height() uint32 { return p.mips[0].Height }

// Levels returns the number of mip levels.
func (p *Pyramid) Levels() int { return len(p.mips) }

// Mip returns the layout of one level.
func (p *Pyramid) Mip(level int) Mip { return p.mips[level] }

// Texels returns the flat texel storage of all levels.
func (p *Pyramid) Texels() []float32 { return p.texels }

// Texel returns the depth stored at (x, y) of a level.
func (p *Pyramid) Texel(level int, x, y uint32) float32 {
	m := p.mips[level]
	return p.texels[m.Offset+y*m.Width+x]
}

func (p *Pyramid) setTexel(level int, x, y uint32, d float32) {
	m := p.mips[level]
	p.texels[m.Offset+y*m.Width+x] = d
}

// Clear resets every texel to the far plane.
func (p *Pyramid) Clear() {
	clear(p.texels)
}

// SampleLevel returns the mip level whose texels are at least as large as the rect's
// longer side, so the rect touches at most 2x2 texels there.
func (p *Pyramid) SampleLevel(r common.Rect) int {
	extent := uint32(max(r.Width(), r.Height(), 1))
	level := bits.Len32(extent - 1) // ceil(log2(extent))
	return min(level, len(p.mips)-1)
}

// Sample returns the minimum depth over every texel of the chosen level that overlaps
// the rect. The rect is clipped to the viewport; a rect entirely off screen samples 0.
//
// Parameters:
//   - r: the screen rect in mip 0 pixels
//
// Returns:
//   - float32: the farthest occluder depth covering the rect
func (p *Pyramid) Sample(r common.Rect) float32 {
	w, h := int32(p.Width()), int32(p.Height())
	r.MinX, r.MinY = max(r.MinX, 0), max(r.MinY, 0)
	r.MaxX, r.MaxY = min(r.MaxX, w-1), min(r.MaxY, h-1)
	if r.MinX > r.MaxX || r.MinY > r.MaxY {
		return 0
	}

	level := p.SampleLevel(r)
	m := p.mips[level]
	x0, x1 := uint32(r.MinX)>>level, min(uint32(r.MaxX)>>level, m.Width-1)
	y0, y1 := uint32(r.MinY)>>level, min(uint32(r.MaxY)>>level, m.Height-1)

	depth := float32(1)
	for y := y0; y <= y1; y++ {
		row := m.Offset + y*m.Width
		for x := x0; x <= x1; x++ {
			depth = min(depth, p.texels[row+x])
		}
	}
	return depth
}

// Occluded reports whether something at nearestDepth over the rect is hidden behind
// what the pyramid recorded there. A sample at the far plane is empty space and hides
// nothing, not even boxes beyond the far plane; those are the frustum test's to reject.
func (p *Pyramid) Occluded(r common.Rect, nearestDepth float32) bool {
	s := p.Sample(r)
	return s > 0 && nearestDepth < s
}

// TextureDescriptor describes the GPU texture holding the pyramid.
func (p *Pyramid) TextureDescriptor() gputypes.TextureDescriptor {
	return gputypes.TextureDescriptor{
		Label:         "depth_pyramid",
		Size:          gputypes.NewExtent2D(p.Width(), p.Height()),
		MipLevelCount: uint32(len(p.mips)),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatR32Float,
		Usage: gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding |
			gputypes.TextureUsageCopyDst,
	}
}
