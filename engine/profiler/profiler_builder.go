package profiler

import "time"

// ProfilerBuilderOption is a functional option applied to a Profiler during construction via NewProfiler.
type ProfilerBuilderOption func(*Profiler)

// WithUpdateInterval sets how often Tick logs a summary.
//
// Parameters:
//   - d: the interval; values <= 0 are ignored
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the interval option to a Profiler
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithClock replaces the wall clock, used by tests to control interval boundaries.
//
// Parameters:
//   - now: the function returning the current time
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the clock option to a Profiler
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMemStats enables or disables reading runtime memory statistics on each report.
//
// Parameters:
//   - enabled: whether to read runtime.MemStats (a stop-the-world call)
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the option to a Profiler
func WithMemStats(enabled bool) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.readMem = enabled
	}
}
