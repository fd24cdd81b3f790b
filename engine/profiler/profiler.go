package profiler

import (
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
)

// Report is the summary of one profiling interval.
type Report struct {
	// FPS is the frame rate over the interval.
	FPS float64
	// Stages holds the average time per frame spent in each observed stage.
	Stages map[string]time.Duration
	// Counters holds the average value per frame of each counter.
	Counters map[string]float64
	HeapMB   float64
	GCCount  uint32
}

// Profiler tracks frame rate, per-stage timings and memory statistics.
// It logs a summary through common.Logger at Info level once per update interval.
// Safe for concurrent use.
type Profiler struct {
	mu             sync.Mutex
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	readMem        bool
	lastGCCount    uint32
	lastTotalAlloc uint64
	now            func() time.Time

	stages   map[string]time.Duration
	counters map[string]uint64
	last     Report
}

// NewProfiler creates a new Profiler with all specified options applied.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic list of ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		readMem:        true,
		now:            time.Now,
		stages:         make(map[string]time.Duration),
		counters:       make(map[string]uint64),
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Observe adds d to the time spent in stage during the current interval.
func (p *Profiler) Observe(stage string, d time.Duration) {
	p.mu.Lock()
	p.stages[stage] += d
	p.mu.Unlock()
}

// Count adds n to the named counter for the current interval.
func (p *Profiler) Count(counter string, n uint64) {
	p.mu.Lock()
	p.counters[counter] += n
	p.mu.Unlock()
}

// Last returns the report of the most recent completed interval.
func (p *Profiler) Last() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Tick should be called once per frame. When the update interval has elapsed it logs the
// interval's statistics: FPS, per-stage average frame time, counters, heap and GC activity.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	frames := float64(p.frameCount)
	r := Report{
		FPS:      frames / elapsed.Seconds(),
		Stages:   make(map[string]time.Duration, len(p.stages)),
		Counters: make(map[string]float64, len(p.counters)),
	}
	for name, d := range p.stages {
		r.Stages[name] = time.Duration(float64(d) / frames)
	}
	for name, n := range p.counters {
		r.Counters[name] = float64(n) / frames
	}

	attrs := []any{slog.Float64("fps", r.FPS)}
	if p.readMem {
		runtime.ReadMemStats(&p.memStats)
		r.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
		r.GCCount = p.memStats.NumGC
		allocRateMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()
		attrs = append(attrs,
			slog.Float64("heap_mb", r.HeapMB),
			slog.Float64("alloc_mb_per_s", allocRateMB),
			slog.Uint64("gc", uint64(r.GCCount-p.lastGCCount)),
		)
		p.lastGCCount = p.memStats.NumGC
		p.lastTotalAlloc = p.memStats.TotalAlloc
	}
	attrs = append(attrs, slog.Group("stages", durationAttrs(r.Stages)...))
	attrs = append(attrs, slog.Group("counters", counterAttrs(r.Counters)...))
	common.Logger().Info("profiler", attrs...)

	p.last = r
	p.frameCount = 0
	p.lastTime = currentTime
	clear(p.stages)
	clear(p.counters)
	return true
}

func durationAttrs(m map[string]time.Duration) []any {
	attrs := make([]any, 0, len(m))
	for _, name := range sortedKeys(m) {
		attrs = append(attrs, slog.Duration(name, m[name]))
	}
	return attrs
}

func counterAttrs(m map[string]float64) []any {
	attrs := make([]any, 0, len(m))
	for _, name := range sortedKeys(m) {
		attrs = append(attrs, slog.Float64(name, m[name]))
	}
	return attrs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
