package visbuffer

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
	"github.com/gogpu/gputypes"
)

// ClearGroupSize is the workgroup size of the clear kernel.
const ClearGroupSize = 64

// Buffer is the visibility buffer: one atomically maximized key per pixel.
type Buffer struct {
	width, height uint32
	keys          []atomic.Uint64
	depthClamp    atomic.Bool
}

// NewBuffer allocates an empty buffer.
func NewBuffer(width, height uint32) *Buffer {
	return &Buffer{
		width:  width,
		height: height,
		keys:   make([]atomic.Uint64, width*height),
	}
}

// Size returns the buffer extent in pixels.
func (b *Buffer) Size() (uint32, uint32) { return b.width, b.height }

// Width returns the buffer width in pixels.
func (b *Buffer) Width() uint32 { return b.width }

// Height returns the buffer height in pixels.
func (b *Buffer) Height() uint32 { return b.height }

// SetDepthClamp selects whether stored depths use the clamp encoding. Set before rasterizing.
func (b *Buffer) SetDepthClamp(enabled bool) { b.depthClamp.Store(enabled) }

// DepthClamp reports whether stored depths use the clamp encoding.
func (b *Buffer) DepthClamp() bool { return b.depthClamp.Load() }

// Write keeps the larger of the stored key and k.
//
// Parameters:
//   - x, y: the pixel, which must lie inside the buffer
//   - k: the candidate key
//
// Returns:
//   - bool: true if k replaced the stored key
func (b *Buffer) Write(x, y uint32, k Key) bool {
	slot := &b.keys[y*b.width+x]
	for {
		old := slot.Load()
		if uint64(k) <= old {
			return false
		}
		if slot.CompareAndSwap(old, uint64(k)) {
			return true
		}
	}
}

// Load returns the key stored at a pixel.
func (b *Buffer) Load(x, y uint32) Key {
	return Key(b.keys[y*b.width+x].Load())
}

// Depth returns the NDC depth at a pixel, 0 (the far plane) where nothing was drawn.
func (b *Buffer) Depth(x, y uint32) float32 {
	k := b.Load(x, y)
	if k.IsEmpty() {
		return 0
	}
	return DecodeDepth(k.Depth(), b.depthClamp.Load())
}

// Clear empties every pixel with one invocation per pixel.
func (b *Buffer) Clear(ctx context.Context, d dispatcher.Dispatcher) error {
	n := uint32(len(b.keys))
	return d.Dispatch(ctx, "clear_visibility", common.DivCeil(n, ClearGroupSize), ClearGroupSize, func(g dispatcher.Group) {
		g.Invocations(func(local uint32) {
			if i := g.GlobalID(local); i < n {
				b.keys[i].Store(0)
			}
		})
	})
}

// Covered returns the number of pixels holding a key.
func (b *Buffer) Covered() int {
	n := 0
	for i := range b.keys {
		if b.keys[i].Load() != 0 {
			n++
		}
	}
	return n
}

// TextureDescriptor describes the GPU texture the buffer is copied into for shading,
// one key split across two 32-bit channels.
func (b *Buffer) TextureDescriptor() gputypes.TextureDescriptor {
	return gputypes.TextureDescriptor{
		Label:         "visibility_buffer",
		Size:          gputypes.NewExtent2D(b.width, b.height),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRG32Uint,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	}
}

// DebugImage renders each covered pixel in a color derived from its cluster and triangle,
// shaded by depth. Empty pixels are black.
func (b *Buffer) DebugImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, int(b.width), int(b.height)))
	for y := uint32(0); y < b.height; y++ {
		for x := uint32(0); x < b.width; x++ {
			k := b.Load(x, y)
			if k.IsEmpty() {
				img.SetRGBA(int(x), int(y), color.RGBA{A: 255})
				continue
			}
			h := hash(k.Cluster()<<TriangleBits | k.Triangle())
			shade := 0.35 + 0.65*min(max(b.Depth(x, y), 0), 1)
			img.SetRGBA(int(x), int(y), color.RGBA{
				R: uint8(float32(h&0xFF) * shade),
				G: uint8(float32(h>>8&0xFF) * shade),
				B: uint8(float32(h>>16&0xFF) * shade),
				A: 255,
			})
		}
	}
	return img
}

// hash is a small integer mix used for debug colors.
func hash(v uint32) uint32 {
	v ^= v >> 16
	v *= 0x7feb352d
	v ^= v >> 15
	v *= 0x846ca68b
	v ^= v >> 16
	return v | 0x404040
}
