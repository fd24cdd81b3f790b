package hzb

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
)

// TileSize is the edge of the square tile one workgroup downsamples.
const TileSize = 8

// Build fills mip 0 from src and downsamples every following level, one dispatch per
// level. The source must match the pyramid's mip 0 size.
//
// Parameters:
//   - ctx: cancels the build between levels
//   - d: the dispatcher running the downsample kernels
//   - src: full-resolution depth
//
// Returns:
//   - error: a size mismatch or the dispatcher's error
func (p *Pyramid) Build(ctx context.Context, d dispatcher.Dispatcher, src DepthSource) error {
	sw, sh := src.Size()
	if sw != p.Width() || sh != p.Height() {
		return fmt.Errorf("hzb: depth source is %dx%d, pyramid is %dx%d", sw, sh, p.Width(), p.Height())
	}

	if err := p.dispatchLevel(ctx, d, 0, func(x, y uint32) float32 {
		return src.Depth(x, y)
	}); err != nil {
		return err
	}
	for level := 1; level < len(p.mips); level++ {
		prev := level - 1
		pm := p.mips[prev]
		if err := p.dispatchLevel(ctx, d, level, func(x, y uint32) float32 {
			x0, y0 := 2*x, 2*y
			x1, y1 := min(x0+1, pm.Width-1), min(y0+1, pm.Height-1)
			return min(
				p.Texel(prev, x0, y0), p.Texel(prev, x1, y0),
				p.Texel(prev, x0, y1), p.Texel(prev, x1, y1),
			)
		}); err != nil {
			return err
		}
	}
	return nil
}

// dispatchLevel writes one texel per invocation over TileSize x TileSize tiles of a level.
func (p *Pyramid) dispatchLevel(ctx context.Context, d dispatcher.Dispatcher, level int, texel func(x, y uint32) float32) error {
	m := p.mips[level]
	tilesX := common.DivCeil(m.Width, TileSize)
	tilesY := common.DivCeil(m.Height, TileSize)
	return d.Dispatch(ctx, fmt.Sprintf("hzb_mip_%d", level), tilesX*tilesY, TileSize*TileSize, func(g dispatcher.Group) {
		tx, ty := g.Linear%tilesX, g.Linear/tilesX
		g.Invocations(func(local uint32) {
			x := tx*TileSize + local%TileSize
			y := ty*TileSize + local/TileSize
			if x >= m.Width || y >= m.Height {
				return
			}
			p.setTexel(level, x, y, texel(x, y))
		})
	})
}
