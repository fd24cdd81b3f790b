package profiler

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-meshlet/common"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTickReportsAverages(t *testing.T) {
	var buf bytes.Buffer
	common.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { common.SetLogger(nil) })

	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProfiler(WithClock(clock.now), WithUpdateInterval(time.Second), WithMemStats(false))

	for range 3 {
		p.Observe("bvh_cull", 2*time.Millisecond)
		p.Count("clusters", 30)
		clock.advance(250 * time.Millisecond)
		if p.Tick() {
			t.Fatal("Tick() logged before the interval elapsed")
		}
	}
	p.Observe("bvh_cull", 2*time.Millisecond)
	p.Count("clusters", 30)
	clock.advance(250 * time.Millisecond)
	if !p.Tick() {
		t.Fatal("Tick() did not log after the interval")
	}

	r := p.Last()
	if r.FPS != 4 {
		t.Errorf("FPS = %v, want 4", r.FPS)
	}
	if r.Stages["bvh_cull"] != 2*time.Millisecond {
		t.Errorf("bvh_cull = %v, want 2ms", r.Stages["bvh_cull"])
	}
	if r.Counters["clusters"] != 30 {
		t.Errorf("clusters = %v, want 30", r.Counters["clusters"])
	}
	if out := buf.String(); !strings.Contains(out, "msg=profiler") || !strings.Contains(out, "stages.bvh_cull=2ms") {
		t.Errorf("unexpected log output %q", out)
	}
}

func TestTickResetsInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProfiler(WithClock(clock.now), WithUpdateInterval(time.Second), WithMemStats(false))

	p.Observe("hzb_build", time.Millisecond)
	clock.advance(time.Second)
	p.Tick()

	clock.advance(time.Second)
	if !p.Tick() {
		t.Fatal("second interval did not report")
	}
	if _, ok := p.Last().Stages["hzb_build"]; ok {
		t.Error("stage timings carried over into the next interval")
	}
}

func TestDefaultInterval(t *testing.T) {
	p := NewProfiler(WithUpdateInterval(-time.Second))
	if p.updateInterval != time.Second {
		t.Errorf("updateInterval = %v, want 1s", p.updateInterval)
	}
}
