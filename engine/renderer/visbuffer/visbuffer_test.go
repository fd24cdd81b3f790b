package visbuffer

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

func approx(a, b, eps float32) bool {
	return float32(math.Abs(float64(a-b))) <= eps
}

// --- Keys ---

func TestPackKeyRoundTrip(t *testing.T) {
	k := PackKey(0.75, MaxClusters-1, 127)
	if k.Depth() != 0.75 || k.Cluster() != MaxClusters-1 || k.Triangle() != 127 {
		t.Errorf("unpacked (%v, %d, %d)", k.Depth(), k.Cluster(), k.Triangle())
	}
	if PackKey(0, 0, 0) != 0 || !Key(0).IsEmpty() {
		t.Error("zero key is not empty")
	}
}

func TestKeyOrdersByDepthFirst(t *testing.T) {
	near := PackKey(0.6, 0, 0)
	far := PackKey(0.5, MaxClusters-1, 127)
	if near <= far {
		t.Errorf("nearer key %x should exceed farther key %x", near, far)
	}
	if PackKey(0.5, 2, 0) <= PackKey(0.5, 1, 127) {
		t.Error("equal depth should order by cluster id")
	}
}

func TestDepthClampEncoding(t *testing.T) {
	prev := float32(-1)
	for _, z := range []float32{-20, -1, 0, 0.5, 1, 3, 10} {
		d := EncodeDepth(z, true)
		if d <= 0 || d >= 1 {
			t.Errorf("EncodeDepth(%v) = %v, want in (0, 1)", z, d)
		}
		if d <= prev {
			t.Errorf("EncodeDepth(%v) = %v not increasing", z, d)
		}
		prev = d
		if back := DecodeDepth(d, true); !approx(back, z, 1e-3) {
			t.Errorf("DecodeDepth(EncodeDepth(%v)) = %v", z, back)
		}
	}
	if EncodeDepth(0.3, false) != 0.3 || DecodeDepth(0.3, false) != 0.3 {
		t.Error("unclamped depth should pass through")
	}
}

// --- Buffer ---

func TestWriteKeepsMaximumRegardlessOfOrder(t *testing.T) {
	keys := make([]Key, 200)
	var want Key
	for i := range keys {
		keys[i] = PackKey(float32(i%37)/37, uint32(i), uint32(i%128))
		want = max(want, keys[i])
	}

	for trial := 0; trial < 5; trial++ {
		rand.New(rand.NewSource(int64(trial))).Shuffle(len(keys), func(i, j int) {
			keys[i], keys[j] = keys[j], keys[i]
		})
		b := NewBuffer(2, 2)
		var wg sync.WaitGroup
		for _, k := range keys {
			wg.Add(1)
			go func(k Key) {
				defer wg.Done()
				b.Write(1, 1, k)
			}(k)
		}
		wg.Wait()
		if got := b.Load(1, 1); got != want {
			t.Fatalf("trial %d: stored %x, want %x", trial, got, want)
		}
	}
}

func TestWriteRejectsFartherKey(t *testing.T) {
	b := NewBuffer(1, 1)
	if !b.Write(0, 0, PackKey(0.8, 1, 1)) {
		t.Fatal("first write rejected")
	}
	if b.Write(0, 0, PackKey(0.2, 5, 5)) {
		t.Error("farther key replaced a nearer one")
	}
	if b.Depth(0, 0) != 0.8 {
		t.Errorf("Depth() = %v, want 0.8", b.Depth(0, 0))
	}
}

func TestClearAndCovered(t *testing.T) {
	d := dispatcher.NewDispatcher(2)
	defer d.Release()

	b := NewBuffer(33, 9)
	b.Write(0, 0, PackKey(0.5, 1, 0))
	b.Write(32, 8, PackKey(0.5, 2, 0))
	if b.Covered() != 2 {
		t.Fatalf("Covered() = %d, want 2", b.Covered())
	}
	if err := b.Clear(context.Background(), d); err != nil {
		t.Fatalf("Clear() = %v", err)
	}
	if b.Covered() != 0 || b.Depth(32, 8) != 0 {
		t.Error("Clear() left keys behind")
	}
}

func TestDebugImageAndDescriptor(t *testing.T) {
	b := NewBuffer(4, 3)
	b.Write(2, 1, PackKey(1, 9, 3))
	img := b.DebugImage()
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Fatalf("image bounds = %v", img.Bounds())
	}
	if c := img.RGBAAt(0, 0); c.R != 0 || c.G != 0 || c.B != 0 || c.A != 255 {
		t.Errorf("empty pixel = %v, want opaque black", c)
	}
	if c := img.RGBAAt(2, 1); c.R == 0 && c.G == 0 && c.B == 0 {
		t.Error("covered pixel rendered black")
	}
	if desc := b.TextureDescriptor(); desc.Format != gputypes.TextureFormatRG32Uint {
		t.Errorf("TextureDescriptor().Format = %v", desc.Format)
	}
}

// --- Resolver ---

type clusterTable map[uint32][2]uint32

func (c clusterTable) RasterCluster(slot uint32) (uint32, uint32, bool) {
	e, ok := c[slot]
	return e[0], e[1], ok
}

func resolverFixture(t *testing.T) (*Buffer, *Resolver) {
	t.Helper()
	verts := []asset.Vertex{
		{Position: f32.Vec3{-1, -1, 0}, Normal: f32.Vec3{0, 0, 1}, UV: f32.Vec2{0, 0}},
		{Position: f32.Vec3{1, -1, 0}, Normal: f32.Vec3{0, 0, 1}, UV: f32.Vec2{1, 0}},
		{Position: f32.Vec3{-1, 1, 0}, Normal: f32.Vec3{0, 0, 1}, UV: f32.Vec2{0, 1}},
	}
	mesh, err := asset.BuildFlatMesh(verts, []uint32{0, 1, 2})
	if err != nil {
		t.Fatalf("BuildFlatMesh() = %v", err)
	}
	lib := asset.NewLibrary()
	if _, err := lib.AddMesh(mesh); err != nil {
		t.Fatalf("AddMesh() = %v", err)
	}

	eye := f32.Vec3{0, 0, 5}
	view := camera.NewView(
		common.LookAt(eye, f32.Vec3{0, 0, 0}, f32.Vec3{0, 1, 0}),
		common.PerspectiveReverseZ(float32(math.Pi/2), 1, 0.1, 100),
		eye,
	)
	instances := []scene.Instance{{ID: 7, Transform: common.Identity(), MaterialID: 2}}

	buf := NewBuffer(64, 64)
	return buf, NewResolver(buf, lib, clusterTable{3: {0, 0}}, instances, view)
}

func TestResolveReconstructsSurface(t *testing.T) {
	buf, r := resolverFixture(t)
	buf.Write(28, 35, PackKey(0.5, 3, 0))

	got, ok := r.Resolve(28, 35)
	if !ok {
		t.Fatal("Resolve() = false")
	}

	// pixel (28, 35) center maps to NDC (-0.109375, -0.109375), 5 units from the camera
	wantXY := float32(-0.546875)
	if !approx(got.Position[0], wantXY, 1e-4) || !approx(got.Position[1], wantXY, 1e-4) || !approx(got.Position[2], 0, 1e-4) {
		t.Errorf("Position = %v", got.Position)
	}
	wantUV := (wantXY + 1) / 2
	if !approx(got.UV[0], wantUV, 1e-4) || !approx(got.UV[1], wantUV, 1e-4) {
		t.Errorf("UV = %v, want (%v, %v)", got.UV, wantUV, wantUV)
	}
	if !approx(got.Normal[2], 1, 1e-5) {
		t.Errorf("Normal = %v", got.Normal)
	}
	if sum := got.Barycentrics[0] + got.Barycentrics[1] + got.Barycentrics[2]; !approx(sum, 1, 1e-5) {
		t.Errorf("barycentrics sum to %v", sum)
	}

	// one pixel is 2/64 NDC, 0.15625 world units at this distance
	if !approx(got.DdxPosition[0], 0.15625, 1e-4) || !approx(got.DdxPosition[1], 0, 1e-4) {
		t.Errorf("DdxPosition = %v", got.DdxPosition)
	}
	if !approx(got.DdyPosition[1], -0.15625, 1e-4) || !approx(got.DdyPosition[0], 0, 1e-4) {
		t.Errorf("DdyPosition = %v", got.DdyPosition)
	}
	if !approx(got.DdxUV[0], 0.078125, 1e-4) || !approx(got.DdyUV[1], -0.078125, 1e-4) {
		t.Errorf("DdxUV = %v DdyUV = %v", got.DdxUV, got.DdyUV)
	}

	if got.InstanceID != 7 || got.MaterialID != 2 || got.MeshletID != 0 || got.TriangleID != 0 {
		t.Errorf("ids = (%d, %d, %d, %d)", got.InstanceID, got.MaterialID, got.MeshletID, got.TriangleID)
	}
	if got.Depth != 0.5 {
		t.Errorf("Depth = %v, want 0.5", got.Depth)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	buf, r := resolverFixture(t)
	buf.Write(20, 40, PackKey(0.4, 3, 0))

	a, okA := r.Resolve(20, 40)
	b, okB := r.Resolve(20, 40)
	if !okA || !okB || a != b {
		t.Errorf("Resolve() not repeatable: %+v vs %+v", a, b)
	}
	if buf.Load(20, 40) != PackKey(0.4, 3, 0) {
		t.Error("Resolve() modified the buffer")
	}
}

func TestResolveRejectsEmptyAndUnknown(t *testing.T) {
	buf, r := resolverFixture(t)
	if _, ok := r.Resolve(1, 1); ok {
		t.Error("empty pixel resolved")
	}
	if _, ok := r.Resolve(100, 1); ok {
		t.Error("out of range pixel resolved")
	}
	buf.Write(2, 2, PackKey(0.5, 11, 0))
	if _, ok := r.Resolve(2, 2); ok {
		t.Error("unknown cluster resolved")
	}
}
