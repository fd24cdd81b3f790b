package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
	"golang.org/x/image/math/f32"
)

func newTestEngine(t *testing.T, options ...EngineBuilderOption) (Engine, uint32) {
	t.Helper()
	m, err := asset.BuildFlatMesh([]asset.Vertex{
		{Position: f32.Vec3{-1, -1, 0}, Normal: f32.Vec3{0, 0, 1}},
		{Position: f32.Vec3{1, -1, 0}, Normal: f32.Vec3{0, 0, 1}},
		{Position: f32.Vec3{0, 1, 0}, Normal: f32.Vec3{0, 0, 1}},
	}, []uint32{0, 1, 2})
	if err != nil {
		t.Fatalf("BuildFlatMesh() = %v", err)
	}
	lib := asset.NewLibrary()
	handle, err := lib.AddMesh(m)
	if err != nil {
		t.Fatalf("AddMesh() = %v", err)
	}

	r, err := renderer.NewRenderer(lib,
		renderer.WithViewport(64, 64),
		renderer.WithCapacities(queue.CapacitiesFor(4, 4, 4)),
		renderer.WithWorkers(2),
	)
	if err != nil {
		t.Fatalf("NewRenderer() = %v", err)
	}
	t.Cleanup(r.Release)

	s := scene.NewScene()
	id := s.Add(handle, common.Identity(), 0)
	c := camera.NewCamera(camera.WithController(camera.NewCameraController(camera.WithOrbit(5, 0, 0))))
	return NewEngine(r, s, c, options...), id
}

func TestFrameRendersAndRollsTransforms(t *testing.T) {
	e, id := newTestEngine(t)
	moved := common.BuildModelMatrix(f32.Vec3{0.5, 0, 0}, f32.Vec3{}, f32.Vec3{1, 1, 1})
	e.Scene().SetTransform(id, moved)

	stats, err := e.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame() = %v", err)
	}
	if stats.Covered == 0 {
		t.Error("Covered = 0, want the triangle drawn")
	}
	inst, ok := e.Scene().Get(id)
	if !ok {
		t.Fatal("instance disappeared")
	}
	if inst.PreviousTransform != moved {
		t.Error("EndFrame was not applied after the frame")
	}
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	var frames atomic.Int32
	e, _ := newTestEngine(t,
		WithMaxFrames(3),
		WithRenderCallback(func(renderer.FrameStats) { frames.Add(1) }),
	)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := frames.Load(); got != 3 {
		t.Errorf("rendered %d frames, want 3", got)
	}
	if got := e.Renderer().Stats().Frame; got != 2 {
		t.Errorf("last frame index = %d, want 2", got)
	}
}

func TestQuitFromRenderCallback(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetRenderCallback(func(renderer.FrameStats) { e.Quit() })

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Quit")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	var ticks atomic.Int32
	e, _ := newTestEngine(t,
		WithTickRate(1000),
		WithTickCallback(func(float32) { ticks.Add(1) }),
		WithRenderFrameLimit(200),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Errorf("Run() = %v, want nil on cancellation", err)
	}
	if ticks.Load() == 0 {
		t.Error("tick callback never ran")
	}
}

func TestRates(t *testing.T) {
	e, _ := newTestEngine(t, WithTickRate(0), WithRenderFrameLimit(-1))
	impl := e.(*engine)
	if impl.engineTickRate != period(60) || impl.renderFrameLimit != 0 {
		t.Errorf("defaults: tick %v, limit %v", impl.engineTickRate, impl.renderFrameLimit)
	}

	e.SetTickRate(120)
	e.SetRenderFrameLimit(30)
	if impl.engineTickRate != period(120) {
		t.Errorf("tick rate = %v", impl.engineTickRate)
	}
	if impl.renderFrameLimit != period(30) {
		t.Errorf("frame limit = %v", impl.renderFrameLimit)
	}
	if got := period(3); got != 333333333*time.Nanosecond {
		t.Errorf("period(3) = %v", got)
	}
}

func TestCallbacksMayUseSetters(t *testing.T) {
	e, _ := newTestEngine(t, WithTickRate(1000))
	e.SetRenderCallback(func(renderer.FrameStats) {
		e.SetRenderFrameLimit(30)
		e.SetTickRate(500)
		e.SetTickCallback(nil)
	})

	done := make(chan error, 1)
	go func() {
		_, err := e.Frame(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Frame() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Frame() did not return while its render callback changed settings")
	}
	if got := e.(*engine).renderFrameLimit; got != period(30) {
		t.Errorf("frame limit = %v, want %v", got, period(30))
	}

	ticked := make(chan struct{})
	var once sync.Once
	e.SetRenderCallback(nil)
	e.SetTickCallback(func(float32) {
		e.SetRenderFrameLimit(0)
		e.SetTickCallback(nil)
		once.Do(func() { close(ticked) })
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ticked:
		case <-time.After(5 * time.Second):
		}
		cancel()
	}()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	select {
	case <-ticked:
	default:
		t.Error("tick callback never ran")
	}
}

func TestRunCanBeRepeated(t *testing.T) {
	var frames atomic.Int32
	e, _ := newTestEngine(t, WithMaxFrames(2))

	e.SetRenderCallback(func(renderer.FrameStats) { e.Quit() })
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("first Run() = %v", err)
	}

	e.SetRenderCallback(func(renderer.FrameStats) { frames.Add(1) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("canceled Run() = %v", err)
	}

	frames.Store(0)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("third Run() = %v", err)
	}
	if got := frames.Load(); got != 2 {
		t.Errorf("third Run rendered %d frames, want 2", got)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	e, _ := newTestEngine(t)
	nested := make(chan error, 1)
	e.SetRenderCallback(func(renderer.FrameStats) {
		e.SetRenderCallback(nil)
		nested <- e.Run(context.Background())
		e.Quit()
	})
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if err := <-nested; !errors.Is(err, ErrRunning) {
		t.Errorf("nested Run() = %v, want ErrRunning", err)
	}
}
