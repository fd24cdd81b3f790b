package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer"
)

// EngineBuilderOption configures an engine before it starts.
type EngineBuilderOption func(*engine)

// period converts a rate in hertz to the time between events.
func period(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}

// WithTickRate sets how often the tick callback runs. Non-positive rates fall back to 60Hz.
func WithTickRate(hz float64) EngineBuilderOption {
	return func(e *engine) {
		if hz <= 0 {
			hz = 60
		}
		e.engineTickRate = period(hz)
	}
}

// WithTickCallback registers the per-tick update. It receives the seconds elapsed since
// the previous tick and runs with the frame lock held, so it never overlaps a frame.
func WithTickCallback(callback func(deltaTime float32)) EngineBuilderOption {
	return func(e *engine) {
		e.tickCallback = callback
	}
}

// WithRenderCallback registers a function that receives each frame's statistics.
func WithRenderCallback(callback func(stats renderer.FrameStats)) EngineBuilderOption {
	return func(e *engine) {
		e.renderCallback = callback
	}
}

// WithRenderFrameLimit caps the render loop at hz frames per second. Zero, the default,
// renders as fast as frames complete.
func WithRenderFrameLimit(hz float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = 0
		if hz > 0 {
			e.renderFrameLimit = period(hz)
		}
	}
}

// WithMaxFrames makes each Run return after n frames. 0 runs until Quit or cancellation.
func WithMaxFrames(n uint64) EngineBuilderOption {
	return func(e *engine) {
		e.maxFrames = n
	}
}
