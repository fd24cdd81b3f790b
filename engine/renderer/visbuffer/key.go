// Package visbuffer holds the per-pixel visibility buffer written by both rasterizers and
// the resolver that turns a stored key back into surface attributes.
//
// Every pixel stores one 64-bit key. The depth occupies the high bits so an integer max
// of two keys keeps the nearer surface (reverse-Z: larger depth is nearer). Both raster
// paths only ever apply an atomic max, so the result does not depend on write order.
package visbuffer

import "math"

// Key layout.
const (
	TriangleBits = 7
	ClusterBits  = 25

	triangleMask = 1<<TriangleBits - 1
	clusterMask  = 1<<ClusterBits - 1
)

// MaxClusters is the number of raster clusters a key can address.
const MaxClusters = 1 << ClusterBits

// Key packs depth, raster cluster id and triangle id into one comparable word.
// The zero key marks a pixel nothing was drawn to.
type Key uint64

// PackKey builds a key. depth must be non-negative so its float bits order like the value.
//
// Parameters:
//   - depth: the stored depth (reverse-Z, or the clamp encoding)
//   - cluster: the raster cluster slot
//   - triangle: the triangle index within the meshlet
//
// Returns:
//   - Key: the packed key
func PackKey(depth float32, cluster, triangle uint32) Key {
	return Key(uint64(math.Float32bits(depth))<<32 |
		uint64(cluster&clusterMask)<<TriangleBits |
		uint64(triangle&triangleMask))
}

// Depth returns the stored depth.
func (k Key) Depth() float32 { return math.Float32frombits(uint32(k >> 32)) }

// Cluster returns the raster cluster slot.
func (k Key) Cluster() uint32 { return uint32(k>>TriangleBits) & clusterMask }

// Triangle returns the triangle index within the meshlet.
func (k Key) Triangle() uint32 { return uint32(k) & triangleMask }

// IsEmpty reports whether nothing was written.
func (k Key) IsEmpty() bool { return k == 0 }

// EncodeDepth maps NDC depth to the stored depth. With depth clamping (orthographic views
// whose casters may lie in front of the near plane) depth is mapped through 1/(1+2^-z),
// which stays positive and strictly increasing for any z.
func EncodeDepth(z float32, depthClamp bool) float32 {
	if depthClamp {
		return float32(1 / (1 + math.Exp2(-float64(z))))
	}
	return z
}

// DecodeDepth inverts EncodeDepth.
func DecodeDepth(d float32, depthClamp bool) float32 {
	if !depthClamp || d <= 0 {
		return d
	}
	if d >= 1 {
		return float32(math.Inf(1))
	}
	return float32(-math.Log2(1/float64(d) - 1))
}
