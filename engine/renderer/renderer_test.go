package renderer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/profiler"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/cull"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/visbuffer"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

const viewportSize = 256

func triangleMesh(t *testing.T) *asset.Mesh {
	t.Helper()
	m, err := asset.BuildFlatMesh([]asset.Vertex{
		{Position: f32.Vec3{-1, -1, 0}, Normal: f32.Vec3{0, 0, 1}, UV: f32.Vec2{0, 0}},
		{Position: f32.Vec3{1, -1, 0}, Normal: f32.Vec3{0, 0, 1}, UV: f32.Vec2{1, 0}},
		{Position: f32.Vec3{0, 1, 0}, Normal: f32.Vec3{0, 0, 1}, UV: f32.Vec2{0.5, 1}},
	}, []uint32{0, 1, 2})
	if err != nil {
		t.Fatalf("BuildFlatMesh() = %v", err)
	}
	return m
}

func quadMesh(t *testing.T) *asset.Mesh {
	t.Helper()
	m, err := asset.BuildFlatMesh([]asset.Vertex{
		{Position: f32.Vec3{-1, -1, 0}, Normal: f32.Vec3{0, 0, 1}},
		{Position: f32.Vec3{1, -1, 0}, Normal: f32.Vec3{0, 0, 1}},
		{Position: f32.Vec3{1, 1, 0}, Normal: f32.Vec3{0, 0, 1}},
		{Position: f32.Vec3{-1, 1, 0}, Normal: f32.Vec3{0, 0, 1}},
	}, []uint32{0, 1, 2, 0, 2, 3})
	if err != nil {
		t.Fatalf("BuildFlatMesh() = %v", err)
	}
	return m
}

func lookAt(eye f32.Vec3) camera.View {
	return camera.NewView(
		common.LookAt(eye, f32.Vec3{}, f32.Vec3{0, 1, 0}),
		common.PerspectiveReverseZ(float32(math.Pi/2), 1, 0.1, 100),
		eye,
	)
}

type testScene struct {
	lib      asset.Library
	triangle asset.MeshHandle
	quad     asset.MeshHandle
}

func newTestScene(t *testing.T) *testScene {
	t.Helper()
	lib := asset.NewLibrary()
	tri, err := lib.AddMesh(triangleMesh(t))
	if err != nil {
		t.Fatalf("AddMesh() = %v", err)
	}
	quad, err := lib.AddMesh(quadMesh(t))
	if err != nil {
		t.Fatalf("AddMesh() = %v", err)
	}
	return &testScene{lib: lib, triangle: tri, quad: quad}
}

func newTestRenderer(t *testing.T, lib asset.Library, options ...RendererBuilderOption) Renderer {
	t.Helper()
	options = append([]RendererBuilderOption{
		WithViewport(viewportSize, viewportSize),
		WithCapacities(queue.CapacitiesFor(16, 16, 16)),
		WithWorkers(4),
	}, options...)
	r, err := NewRenderer(lib, options...)
	if err != nil {
		t.Fatalf("NewRenderer() = %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

func TestScenarioVisibleTriangle(t *testing.T) {
	ts := newTestScene(t)
	r := newTestRenderer(t, ts.lib)
	s := scene.NewScene(scene.WithInstances(ts.triangle, 7, common.Identity()))

	stats, err := r.RenderFrame(context.Background(), lookAt(f32.Vec3{0, 0, 5}), s.Snapshot())
	if err != nil {
		t.Fatalf("RenderFrame() = %v", err)
	}

	first := stats.Passes[cull.FirstPass]
	if first.SoftwareClusters+first.HardwareClusters != 1 {
		t.Errorf("first pass raster clusters = %d software + %d hardware, want exactly 1",
			first.SoftwareClusters, first.HardwareClusters)
	}
	if first.SecondPassCandidates != 0 || first.DeferredClusters != 0 {
		t.Errorf("deferred work = %d instances, %d clusters, want none",
			first.SecondPassCandidates, first.DeferredClusters)
	}
	if second := stats.Passes[cull.SecondPass]; second.SoftwareClusters+second.HardwareClusters != 0 {
		t.Errorf("second pass drew %+v, want nothing", second)
	}
	if stats.Covered == 0 {
		t.Fatal("Covered = 0, want the triangle's pixels")
	}

	buf := r.VisibilityBuffer()
	w, h := buf.Size()
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			k := buf.Load(x, y)
			if k.IsEmpty() {
				continue
			}
			if k.Cluster() != 0 || k.Triangle() != 0 {
				t.Fatalf("key at (%d,%d) = cluster %d triangle %d, want 0/0", x, y, k.Cluster(), k.Triangle())
			}
		}
	}

	attrs, ok := r.Resolver().Resolve(viewportSize/2, viewportSize/2)
	if !ok {
		t.Fatal("Resolve(center) found nothing")
	}
	if attrs.TriangleID != 0 || attrs.MaterialID != 7 {
		t.Errorf("Resolve(center) = triangle %d material %d, want 0 and 7", attrs.TriangleID, attrs.MaterialID)
	}
}

func TestScenarioInstanceBehindCamera(t *testing.T) {
	ts := newTestScene(t)
	r := newTestRenderer(t, ts.lib)
	s := scene.NewScene(scene.WithInstances(ts.triangle, 0,
		common.BuildModelMatrix(f32.Vec3{0, 0, 10}, f32.Vec3{}, f32.Vec3{1, 1, 1})))

	stats, err := r.RenderFrame(context.Background(), lookAt(f32.Vec3{0, 0, 5}), s.Snapshot())
	if err != nil {
		t.Fatalf("RenderFrame() = %v", err)
	}
	for p, ps := range stats.Passes {
		if ps != (PassStats{}) {
			t.Errorf("pass %d = %+v, want no work", p, ps)
		}
	}
	if stats.Covered != 0 {
		t.Errorf("Covered = %d, want 0", stats.Covered)
	}
}

func TestScenarioLargeClusterUsesHardware(t *testing.T) {
	ts := newTestScene(t)
	r := newTestRenderer(t, ts.lib)
	s := scene.NewScene(scene.WithInstances(ts.triangle, 0, common.Identity()))

	// two thirds of the viewport on both axes
	stats, err := r.RenderFrame(context.Background(), lookAt(f32.Vec3{0, 0, 1.5}), s.Snapshot())
	if err != nil {
		t.Fatalf("RenderFrame() = %v", err)
	}
	first := stats.Passes[cull.FirstPass]
	if first.SoftwareClusters != 0 || first.HardwareClusters != 1 {
		t.Errorf("raster clusters = %d software, %d hardware, want 0 and 1",
			first.SoftwareClusters, first.HardwareClusters)
	}
	if stats.Covered == 0 {
		t.Error("Covered = 0, want the hardware path to draw the triangle")
	}
}

func TestSoftwareThresholdZeroRoutesEverythingToHardware(t *testing.T) {
	ts := newTestScene(t)
	r := newTestRenderer(t, ts.lib, WithSoftwareRasterThreshold(0))
	s := scene.NewScene(scene.WithInstances(ts.triangle, 0, common.Identity()))

	stats, err := r.RenderFrame(context.Background(), lookAt(f32.Vec3{0, 0, 5}), s.Snapshot())
	if err != nil {
		t.Fatalf("RenderFrame() = %v", err)
	}
	if first := stats.Passes[cull.FirstPass]; first.SoftwareClusters != 0 || first.HardwareClusters != 1 {
		t.Errorf("raster clusters = %+v, want hardware only", first)
	}
}

func TestOcclusionCarriesAcrossFrames(t *testing.T) {
	ts := newTestScene(t)
	r := newTestRenderer(t, ts.lib)
	s := scene.NewScene()
	// a tilted wall filling the view, so its box always reaches in front of its own surface
	s.Add(ts.quad, common.BuildModelMatrix(f32.Vec3{0, 0, 3}, f32.Vec3{0.25, 0, 0}, f32.Vec3{4, 4, 1}), 0)
	s.Add(ts.triangle, common.BuildModelMatrix(f32.Vec3{0, 0, -2}, f32.Vec3{}, f32.Vec3{1, 1, 1}), 0)
	view := lookAt(f32.Vec3{0, 0, 5})
	ctx := context.Background()

	first, err := r.RenderFrame(ctx, view, s.Snapshot())
	if err != nil {
		t.Fatalf("RenderFrame(1) = %v", err)
	}
	if got := first.RasterClusters(); got != 2 {
		t.Errorf("frame 1 raster clusters = %d, want 2 with an empty pyramid", got)
	}
	if first.Covered != viewportSize*viewportSize {
		t.Errorf("frame 1 Covered = %d, want the wall on every pixel", first.Covered)
	}
	s.EndFrame()

	second, err := r.RenderFrame(ctx, view.WithPrevious(view), s.Snapshot())
	if err != nil {
		t.Fatalf("RenderFrame(2) = %v", err)
	}
	if got := second.Passes[cull.FirstPass].SecondPassCandidates; got != 1 {
		t.Errorf("frame 2 second pass candidates = %d, want the hidden triangle", got)
	}
	if got := second.RasterClusters(); got != 1 {
		t.Errorf("frame 2 raster clusters = %d, want only the wall", got)
	}
	if second.Frame != 1 {
		t.Errorf("Frame = %d, want 1", second.Frame)
	}
	if r.Stats() != second {
		t.Error("Stats() does not match the last frame")
	}
}

func TestDisocclusionIsCaughtBySecondPass(t *testing.T) {
	ts := newTestScene(t)
	r := newTestRenderer(t, ts.lib)
	s := scene.NewScene()
	wall := s.Add(ts.quad, common.BuildModelMatrix(f32.Vec3{0, 0, 3}, f32.Vec3{0.25, 0, 0}, f32.Vec3{4, 4, 1}), 0)
	s.Add(ts.triangle, common.BuildModelMatrix(f32.Vec3{0, 0, -2}, f32.Vec3{}, f32.Vec3{1, 1, 1}), 0)
	view := lookAt(f32.Vec3{0, 0, 5})
	ctx := context.Background()

	if _, err := r.RenderFrame(ctx, view, s.Snapshot()); err != nil {
		t.Fatalf("RenderFrame(1) = %v", err)
	}
	s.EndFrame()
	s.SetVisible(wall, false)

	stats, err := r.RenderFrame(ctx, view.WithPrevious(view), s.Snapshot())
	if err != nil {
		t.Fatalf("RenderFrame(2) = %v", err)
	}
	if got := stats.Passes[cull.FirstPass].SecondPassCandidates; got != 1 {
		t.Errorf("second pass candidates = %d, want 1", got)
	}
	if got := stats.Passes[cull.SecondPass].SoftwareClusters + stats.Passes[cull.SecondPass].HardwareClusters; got != 1 {
		t.Errorf("second pass raster clusters = %d, want the uncovered triangle", got)
	}
	if stats.Covered == 0 {
		t.Error("Covered = 0, want the triangle drawn by the second pass")
	}
}

func TestNewRendererErrors(t *testing.T) {
	ts := newTestScene(t)
	tight := gputypes.DefaultLimits()
	tight.MaxStorageBufferBindingSize = 64

	tests := []struct {
		name    string
		options []RendererBuilderOption
		want    error
	}{
		{"no viewport", nil, ErrInvalidViewport},
		{"zero height", []RendererBuilderOption{WithViewport(64, 0)}, ErrInvalidViewport},
		{"limits too small", []RendererBuilderOption{WithViewport(64, 64), WithLimits(tight)}, queue.ErrCapacityExceedsLimits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRenderer(ts.lib, tt.options...)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewRenderer() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRendererLoadsKernels(t *testing.T) {
	ts := newTestScene(t)
	r := newTestRenderer(t, ts.lib, WithKernels(false))
	if got, want := len(r.Kernels()), len(shader.KernelKeys()); got != want {
		t.Errorf("len(Kernels()) = %d, want %d", got, want)
	}
	if len(r.Plan()) == 0 {
		t.Error("Plan() is empty")
	}
	if w, h := r.Viewport(); w != viewportSize || h != viewportSize {
		t.Errorf("Viewport() = %dx%d", w, h)
	}
}

func TestRenderFrameHonorsCanceledContext(t *testing.T) {
	ts := newTestScene(t)
	r := newTestRenderer(t, ts.lib)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderFrame(ctx, lookAt(f32.Vec3{0, 0, 5}), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("RenderFrame() = %v, want context.Canceled", err)
	}
}

func TestRendererFeedsProfiler(t *testing.T) {
	ts := newTestScene(t)
	clock := time.Unix(0, 0)
	p := profiler.NewProfiler(profiler.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	r := newTestRenderer(t, ts.lib, WithProfiler(p))
	s := scene.NewScene(scene.WithInstances(ts.triangle, 0, common.Identity()))

	if _, err := r.RenderFrame(context.Background(), lookAt(f32.Vec3{0, 0, 5}), s.Snapshot()); err != nil {
		t.Fatalf("RenderFrame() = %v", err)
	}
	report := p.Last()
	if report.Counters["raster_clusters"] != 1 {
		t.Errorf("raster_clusters = %v, want 1", report.Counters["raster_clusters"])
	}
	for st := Stage(0); st < stageCount; st++ {
		if _, ok := report.Stages[st.String()]; !ok {
			t.Errorf("report is missing stage %s", st)
		}
	}
}

func TestRasterSlotsFitTheVisibilityKey(t *testing.T) {
	if queue.MaxRasterClusters != visbuffer.MaxClusters {
		t.Errorf("MaxRasterClusters = %d, visbuffer.MaxClusters = %d", queue.MaxRasterClusters, visbuffer.MaxClusters)
	}
}

func TestStageTimers(t *testing.T) {
	var stats FrameStats
	errBuild := errors.New("build failed")

	stats.timedStep(StageFillCounts, func() { time.Sleep(time.Millisecond) })
	stats.timedStep(StageFillCounts, func() { time.Sleep(time.Millisecond) })
	if got := stats.Stage(StageFillCounts); got < 2*time.Millisecond {
		t.Errorf("fill counts = %v, want both steps counted", got)
	}

	if err := stats.timed(StageHZBBuild, func() error { return errBuild }); !errors.Is(err, errBuild) {
		t.Errorf("timed() = %v, want %v", err, errBuild)
	}
	if err := stats.timed(StageHZBBuild, func() error { return nil }); err != nil {
		t.Errorf("timed() = %v, want nil", err)
	}
}
