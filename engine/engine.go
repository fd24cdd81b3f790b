// Package engine drives the renderer frame by frame from a scene and a camera.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/scene"
)

// ErrRunning is returned by Run while another Run of the same engine is in progress.
var ErrRunning = errors.New("engine: already running")

type engine struct {
	// frameMu serializes frames with tick callbacks.
	frameMu sync.Mutex

	// mu guards the settings below and the run state. Callbacks are never called with
	// it held, so they may use the setters.
	mu *sync.Mutex

	// tickRateChannel carries SetTickRate changes to a running tick loop.
	tickRateChannel chan time.Duration

	running bool
	wg      sync.WaitGroup

	// quitChannel belongs to the current Run and is closed to stop it.
	quitChannel chan struct{}

	renderer renderer.Renderer
	scene    scene.Scene
	camera   camera.Camera

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(stats renderer.FrameStats)

	renderFrameLimit time.Duration // shortest frame; 0 is uncapped
	maxFrames        uint64        // per Run; 0 is unbounded
}

// Engine runs frames against a Renderer. A frame advances the camera, snapshots the
// scene, renders it, then rolls the scene's current transforms into the previous-frame
// slot that the next frame's first occlusion pass projects with.
//
// Scene updates belong in the tick callback, which runs at a fixed rate on its own
// goroutine and never overlaps a frame. Callbacks may call the setters and Quit, but not
// Frame.
type Engine interface {
	Renderer() renderer.Renderer
	Scene() scene.Scene
	Camera() camera.Camera

	// SetTickRate changes the tick rate in hertz, also while running. Non-positive rates
	// fall back to 60Hz.
	SetTickRate(hz float64)

	SetTickCallback(callback func(deltaTime float32))
	SetRenderCallback(callback func(stats renderer.FrameStats))

	// SetRenderFrameLimit caps the render loop in hertz. 0 uncaps it.
	SetRenderFrameLimit(hz float64)

	// Frame renders one frame on the calling goroutine. When rendering fails the scene's
	// previous transforms are left as they were.
	Frame(ctx context.Context) (renderer.FrameStats, error)

	// Run blocks rendering frames until ctx is done, Quit is called, the WithMaxFrames
	// count is reached or a frame fails. Only a failed frame, or a Run already in
	// progress, yields an error. An engine can be run again after Run returns.
	Run(ctx context.Context) error

	// Quit stops the current Run. Without one it does nothing.
	Quit()
}

// NewEngine panics if any of r, s or c is nil. The camera needs a controller, and r's
// asset library must hold every mesh s references.
func NewEngine(r renderer.Renderer, s scene.Scene, c camera.Camera, options ...EngineBuilderOption) Engine {
	if r == nil || s == nil || c == nil {
		panic("engine: a renderer, scene and camera are required")
	}
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		renderer:        r,
		scene:           s,
		camera:          c,
		engineTickRate:  period(60),
	}

	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Scene() scene.Scene {
	return e.scene
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Frame(ctx context.Context) (renderer.FrameStats, error) {
	return e.frame(ctx)
}

func (e *engine) frame(ctx context.Context) (renderer.FrameStats, error) {
	e.frameMu.Lock()
	e.camera.Update()
	stats, err := e.renderer.RenderFrame(ctx, e.camera.View(), e.scene.Snapshot())
	if err == nil {
		e.scene.EndFrame()
	}
	e.frameMu.Unlock()
	if err != nil {
		return stats, err
	}

	e.mu.Lock()
	callback := e.renderCallback
	e.mu.Unlock()
	if callback != nil {
		callback(stats)
	}
	return stats, nil
}

func (e *engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrRunning
	}
	e.running = true
	quit := make(chan struct{})
	e.quitChannel = quit
	tickRate := e.engineTickRate
	maxFrames := e.maxFrames
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.quitChannel = nil
		e.mu.Unlock()
	}()

	// drop a rate change left over from a previous Run
	select {
	case <-e.tickRateChannel:
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			e.signalQuit()
		case <-quit:
		}
	}()

	e.wg.Add(1)
	go e.handleEngine(tickRate, quit)
	err := e.handleRender(ctx, quit, maxFrames)
	e.signalQuit()
	e.wg.Wait()
	return err
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the current Run's quit channel once.
func (e *engine) signalQuit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.quitChannel == nil {
		return
	}
	select {
	case <-e.quitChannel:
	default:
		close(e.quitChannel)
	}
}

// handleEngine fires the tick callback until quit.
func (e *engine) handleEngine(rate time.Duration, quit <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-quit:
			return
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now

			e.mu.Lock()
			callback := e.tickCallback
			e.mu.Unlock()
			if callback != nil {
				e.frameMu.Lock()
				callback(dt)
				e.frameMu.Unlock()
			}
		case rate = <-e.tickRateChannel:
			ticker.Reset(rate)
		}
	}
}

// handleRender is the render loop. It runs on Run's goroutine.
func (e *engine) handleRender(ctx context.Context, quit <-chan struct{}, maxFrames uint64) error {
	for rendered := uint64(0); ; {
		select {
		case <-quit:
			return nil
		default:
		}

		start := time.Now()
		if _, err := e.frame(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			common.Logger().Error("frame failed", "rendered", rendered, "error", err)
			return err
		}
		rendered++
		if maxFrames > 0 && rendered >= maxFrames {
			return nil
		}

		e.mu.Lock()
		limit := e.renderFrameLimit
		e.mu.Unlock()
		if wait := limit - time.Since(start); limit > 0 && wait > 0 {
			select {
			case <-quit:
				return nil
			case <-time.After(wait):
			}
		}
	}
}

func (e *engine) SetTickRate(hz float64) {
	if hz <= 0 {
		hz = 60
	}
	rate := period(hz)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.engineTickRate = rate
	if !e.running {
		return
	}

	// keep only the latest pending change
	select {
	case <-e.tickRateChannel:
	default:
	}
	select {
	case e.tickRateChannel <- rate:
	default:
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(stats renderer.FrameStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(hz float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderFrameLimit = 0
	if hz > 0 {
		e.renderFrameLimit = period(hz)
	}
}
