package raster

import (
	"context"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/dispatcher"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/visbuffer"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

func sv(x, y float64, z float32) screenVertex {
	return screenVertex{X: x, Y: y, Z: z}
}

// --- Triangle setup ---

func TestSharedEdgeCoversEachPixelOnce(t *testing.T) {
	buf := visbuffer.NewBuffer(16, 16)
	tgt := newTarget(buf, DefaultScanlineThreshold)

	a, b, c, d := sv(2, 2, 0.5), sv(12, 2, 0.5), sv(12, 10, 0.5), sv(2, 10, 0.5)
	n := tgt.drawTriangle([3]screenVertex{a, b, c}, 1, 0)
	n += tgt.drawTriangle([3]screenVertex{a, c, d}, 1, 1)
	if n != 80 {
		t.Errorf("covered %d pixels, want 80", n)
	}
	if buf.Covered() != 80 {
		t.Errorf("buffer covers %d pixels, want 80", buf.Covered())
	}
	if !buf.Load(1, 1).IsEmpty() || buf.Load(2, 2).IsEmpty() || !buf.Load(12, 10).IsEmpty() {
		t.Error("coverage does not follow pixel centers")
	}
}

func TestWriteDropsDepthBeyondFarPlane(t *testing.T) {
	tests := []struct {
		name       string
		depthClamp bool
		z          float32
		want       bool
	}{
		{"between planes", false, 0.5, true},
		{"at far plane", false, 0, false},
		{"beyond far plane", false, -0.25, false},
		{"before near plane", false, 1.5, true},
		{"clamped between planes", true, 0.5, true},
		{"clamped at far plane", true, 0, true},
		{"clamped beyond far plane", true, -0.25, false},
		{"clamped before near plane", true, 3, true},
		{"nan", true, float32(math.NaN()), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := visbuffer.NewBuffer(2, 2)
			buf.SetDepthClamp(tt.depthClamp)
			if got := newTarget(buf, DefaultScanlineThreshold).write(1, 1, tt.z, 3, 4); got != tt.want {
				t.Errorf("write(z=%v) = %v, want %v", tt.z, got, tt.want)
			}
			if got := !buf.Load(1, 1).IsEmpty(); got != tt.want {
				t.Errorf("pixel written = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDrawTriangleWindingAndDegenerate(t *testing.T) {
	ccw := [3]screenVertex{sv(1, 1, 0.5), sv(9, 1, 0.5), sv(1, 9, 0.5)}
	cw := [3]screenVertex{ccw[0], ccw[2], ccw[1]}

	a := newTarget(visbuffer.NewBuffer(12, 12), DefaultScanlineThreshold)
	b := newTarget(visbuffer.NewBuffer(12, 12), DefaultScanlineThreshold)
	na, nb := a.drawTriangle(ccw, 0, 0), b.drawTriangle(cw, 0, 0)
	if na == 0 || na != nb {
		t.Errorf("windings covered %d and %d pixels", na, nb)
	}

	line := [3]screenVertex{sv(0, 0, 0.5), sv(5, 5, 0.5), sv(10, 10, 0.5)}
	if n := a.drawTriangle(line, 0, 0); n != 0 {
		t.Errorf("degenerate triangle covered %d pixels", n)
	}
}

func TestScanlineMatchesBoundingBoxWalk(t *testing.T) {
	tri := [3]screenVertex{sv(3.3, 1.7, 0.9), sv(60.2, 20.9, 0.4), sv(10.6, 55.1, 0.1)}

	scan := visbuffer.NewBuffer(64, 64)
	box := visbuffer.NewBuffer(64, 64)
	ns := newTarget(scan, DefaultScanlineThreshold).drawTriangle(tri, 3, 7)
	nb := newTarget(box, math.MaxInt32).drawTriangle(tri, 3, 7)
	if ns != nb || ns == 0 {
		t.Fatalf("scanline covered %d, box covered %d", ns, nb)
	}
	for y := uint32(0); y < 64; y++ {
		for x := uint32(0); x < 64; x++ {
			if scan.Load(x, y) != box.Load(x, y) {
				t.Fatalf("pixel (%d, %d) differs", x, y)
			}
		}
	}
}

func TestDepthIsInterpolated(t *testing.T) {
	buf := visbuffer.NewBuffer(32, 4)
	tgt := newTarget(buf, DefaultScanlineThreshold)
	// depth goes from 1 at x=0 to 0 at x=32 across a wide sliver
	tgt.drawTriangle([3]screenVertex{sv(0, 0, 1), sv(32, 0, 0), sv(0, 4, 1)}, 0, 0)
	tgt.drawTriangle([3]screenVertex{sv(32, 0, 0), sv(32, 4, 0), sv(0, 4, 1)}, 0, 1)

	got := buf.Depth(8, 2)
	if want := float32(1 - 8.5/32); math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("depth at x=8 = %v, want %v", got, want)
	}
	if buf.Load(8, 2).Triangle() > 1 {
		t.Errorf("unexpected triangle id %d", buf.Load(8, 2).Triangle())
	}
}

func TestClipNear(t *testing.T) {
	inside := f32.Vec4{0, 0, 0.5, 1}
	front := f32.Vec4{0, 0, 2, 1}
	tests := []struct {
		name string
		tri  [3]f32.Vec4
		want int
	}{
		{"fully behind the near plane", [3]f32.Vec4{inside, {1, 0, 0.5, 1}, {0, 1, 0.5, 1}}, 3},
		{"fully in front", [3]f32.Vec4{front, {1, 0, 2, 1}, {0, 1, 2, 1}}, 0},
		{"one vertex in front", [3]f32.Vec4{front, {1, 0, 0.5, 1}, {0, 1, 0.5, 1}}, 4},
		{"two vertices in front", [3]f32.Vec4{front, {1, 0, 2, 1}, {0, 1, 0.5, 1}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out [4]f32.Vec4
			n := clipNear(tt.tri, &out)
			if n != tt.want {
				t.Fatalf("clipNear() = %d vertices, want %d", n, tt.want)
			}
			for i := 0; i < n; i++ {
				if out[i][2] > out[i][3]+1e-6 {
					t.Errorf("vertex %d = %v lies in front of the near plane", i, out[i])
				}
			}
		})
	}
}

// --- Cluster paths ---

type rasterFixture struct {
	d      dispatcher.Dispatcher
	frame  *cull.Frame
	queues *cull.Queues
}

func newRasterFixture(t *testing.T, eye f32.Vec3) *rasterFixture {
	t.Helper()
	d := dispatcher.NewDispatcher(4)
	t.Cleanup(d.Release)

	verts := []asset.Vertex{
		{Position: f32.Vec3{-1, -1, 0}}, {Position: f32.Vec3{1, -1, 0}},
		{Position: f32.Vec3{1, 1, 0}}, {Position: f32.Vec3{-1, 1, 0}},
		{Position: f32.Vec3{-0.5, -0.5, 0.5}}, {Position: f32.Vec3{0.5, -0.5, 0.5}}, {Position: f32.Vec3{0, 0.6, 0.5}},
	}
	mesh, err := asset.BuildFlatMesh(verts, []uint32{0, 1, 2, 0, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("BuildFlatMesh() = %v", err)
	}
	lib := asset.NewLibrary()
	if _, err := lib.AddMesh(mesh); err != nil {
		t.Fatalf("AddMesh() = %v", err)
	}

	return &rasterFixture{
		d: d,
		frame: &cull.Frame{
			Library: lib,
			Instances: []scene.Instance{{
				Transform: common.Identity(), PreviousTransform: common.Identity(), Visible: true,
			}},
			View: camera.NewView(
				common.LookAt(eye, f32.Vec3{}, f32.Vec3{0, 1, 0}),
				common.PerspectiveReverseZ(float32(math.Pi/2), 1, 0.1, 100),
				eye,
			),
			Width:  64,
			Height: 64,
		},
		queues: cull.NewQueues(queue.Capacities{Instances: 1, Nodes: 1, Clusters: 4, RasterClusters: 4}),
	}
}

func (f *rasterFixture) cluster() cull.Cluster {
	return cull.Cluster{Instance: 0, Meshlet: 0, TriangleCount: f.frame.Library.Meshlets()[0].TriangleCount}
}

func (f *rasterFixture) runSoftware(t *testing.T, buf *visbuffer.Buffer) {
	t.Helper()
	f.queues.RasterClusters.PushLeft(f.cluster())
	f.queues.Raster[cull.FirstPass].Software.X.Add(1)
	sw := NewSoftware(f.d, f.frame, f.queues, buf, gputypes.DefaultLimits(), 0)
	if err := sw.Run(context.Background(), cull.FirstPass); err != nil {
		t.Fatalf("software Run() = %v", err)
	}
}

func (f *rasterFixture) runHardware(t *testing.T, buf *visbuffer.Buffer) {
	t.Helper()
	f.queues.RasterClusters.PushRight(f.cluster())
	f.queues.Raster[cull.FirstPass].Hardware.InstanceCount.Add(1)
	hw := NewHardware(f.d, f.frame, f.queues, buf, gputypes.DefaultLimits(), 0)
	if err := hw.Run(context.Background(), cull.FirstPass); err != nil {
		t.Fatalf("hardware Run() = %v", err)
	}
}

func TestSoftwareAndHardwareProduceSameSurface(t *testing.T) {
	eye := f32.Vec3{0, 0, 3}
	swBuf, hwBuf := visbuffer.NewBuffer(64, 64), visbuffer.NewBuffer(64, 64)
	newRasterFixture(t, eye).runSoftware(t, swBuf)
	newRasterFixture(t, eye).runHardware(t, hwBuf)

	if swBuf.Covered() == 0 {
		t.Fatal("software path drew nothing")
	}
	for y := uint32(0); y < 64; y++ {
		for x := uint32(0); x < 64; x++ {
			s, h := swBuf.Load(x, y), hwBuf.Load(x, y)
			if s.IsEmpty() != h.IsEmpty() || s.Depth() != h.Depth() || s.Triangle() != h.Triangle() {
				t.Fatalf("pixel (%d, %d): software %x, hardware %x", x, y, s, h)
			}
		}
	}
	// the raised triangle is nearer and wins at the center
	if k := swBuf.Load(32, 32); k.Triangle() != 2 {
		t.Errorf("center triangle = %d, want 2", k.Triangle())
	}
}

func TestRasterOrderDoesNotMatter(t *testing.T) {
	eye := f32.Vec3{0.3, 0.2, 3}
	first, second := visbuffer.NewBuffer(64, 64), visbuffer.NewBuffer(64, 64)

	a := newRasterFixture(t, eye)
	a.runSoftware(t, first)
	a.runHardware(t, first)

	b := newRasterFixture(t, eye)
	b.queues.RasterClusters.PushLeft(b.cluster())
	b.queues.Raster[cull.FirstPass].Software.X.Add(1)
	b.runHardware(t, second)
	sw := NewSoftware(b.d, b.frame, b.queues, second, gputypes.DefaultLimits(), 0)
	if err := sw.Run(context.Background(), cull.FirstPass); err != nil {
		t.Fatal(err)
	}

	for y := uint32(0); y < 64; y++ {
		for x := uint32(0); x < 64; x++ {
			if first.Load(x, y) != second.Load(x, y) {
				t.Fatalf("pixel (%d, %d) depends on raster order", x, y)
			}
		}
	}
}

func TestHardwareClipsAtNearPlane(t *testing.T) {
	// the camera sits between the quad and the raised triangle
	f := newRasterFixture(t, f32.Vec3{0, 0, 0.3})
	buf := visbuffer.NewBuffer(64, 64)
	f.runHardware(t, buf)

	if got := buf.Covered(); got != 64*64 {
		t.Fatalf("quad in front of the camera covered %d pixels, want %d", got, 64*64)
	}
	for y := uint32(0); y < 64; y++ {
		for x := uint32(0); x < 64; x++ {
			if k := buf.Load(x, y); !k.IsEmpty() && (k.Depth() > 1 || k.Depth() <= 0) {
				t.Fatalf("pixel (%d, %d) depth %v outside (0, 1]", x, y, k.Depth())
			}
		}
	}
}
