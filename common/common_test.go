package common

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"strings"
	"testing"

	"golang.org/x/image/math/f32"
)

func approx(a, b, eps float32) bool {
	return float32(math.Abs(float64(a-b))) <= eps
}

func testViewProj() f32.Mat4 {
	proj := PerspectiveReverseZ(float32(math.Pi/2), 1, 0.1, 100)
	view := LookAt(f32.Vec3{0, 0, 5}, f32.Vec3{0, 0, 0}, f32.Vec3{0, 1, 0})
	return Mul4(proj, view)
}

// --- Matrices ---

func TestPerspectiveReverseZDepthRange(t *testing.T) {
	proj := PerspectiveReverseZ(float32(math.Pi/3), 16.0/9.0, 0.5, 200)

	tests := []struct {
		name  string
		viewZ float32
		want  float32
	}{
		{"near plane", -0.5, 1},
		{"far plane", -200, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip := TransformPoint(proj, f32.Vec3{0, 0, tt.viewZ})
			if got := clip[2] / clip[3]; !approx(got, tt.want, 1e-5) {
				t.Errorf("ndc depth = %v, want %v", got, tt.want)
			}
		})
	}

	mid := TransformPoint(proj, f32.Vec3{0, 0, -10})
	far := TransformPoint(proj, f32.Vec3{0, 0, -50})
	if mid[2]/mid[3] <= far[2]/far[3] {
		t.Errorf("nearer point should have larger depth: %v <= %v", mid[2]/mid[3], far[2]/far[3])
	}
}

func TestOrthographicReverseZDepthRange(t *testing.T) {
	proj := OrthographicReverseZ(4, 3, 1, 11)
	if !IsOrthographic(proj) {
		t.Fatal("IsOrthographic() = false, want true")
	}
	near := TransformPoint(proj, f32.Vec3{4, 3, -1})
	far := TransformPoint(proj, f32.Vec3{0, 0, -11})
	if !approx(near[0], 1, 1e-6) || !approx(near[1], 1, 1e-6) || !approx(near[2], 1, 1e-6) {
		t.Errorf("near corner = %v, want (1, 1, 1)", near)
	}
	if !approx(far[2], 0, 1e-6) {
		t.Errorf("far depth = %v, want 0", far[2])
	}
}

func TestInvert4(t *testing.T) {
	m := BuildModelMatrix(f32.Vec3{1, -2, 3}, f32.Vec3{0.3, 1.1, -0.4}, f32.Vec3{2, 2, 2})
	inv, ok := Invert4(m)
	if !ok {
		t.Fatal("Invert4() reported singular matrix")
	}
	id := Mul4(m, inv)
	want := Identity()
	for i := range id {
		if !approx(id[i], want[i], 1e-5) {
			t.Fatalf("m * inv(m)[%d] = %v, want %v", i, id[i], want[i])
		}
	}

	if _, ok := Invert4(f32.Mat4{}); ok {
		t.Error("Invert4(zero) = ok, want singular")
	}
}

func TestMaxScale(t *testing.T) {
	m := BuildModelMatrix(f32.Vec3{5, 5, 5}, f32.Vec3{0.7, 0, 0}, f32.Vec3{1, 3, 2})
	if got := MaxScale(m); !approx(got, 3, 1e-5) {
		t.Errorf("MaxScale() = %v, want 3", got)
	}
}

func TestLookAtPlacesTargetOnNegativeZ(t *testing.T) {
	view := LookAt(f32.Vec3{3, 4, 5}, f32.Vec3{0, 0, 0}, f32.Vec3{0, 1, 0})
	p := TransformPosition(view, f32.Vec3{0, 0, 0})
	d := Length3(f32.Vec3{3, 4, 5})
	if !approx(p[0], 0, 1e-5) || !approx(p[1], 0, 1e-5) || !approx(p[2], -d, 1e-4) {
		t.Errorf("target in view space = %v, want (0, 0, %v)", p, -d)
	}
}

// --- Bounds ---

func TestAABBTransform(t *testing.T) {
	b := AABB{Min: f32.Vec3{-1, -1, -1}, Max: f32.Vec3{1, 1, 1}}
	m := BuildModelMatrix(f32.Vec3{10, 0, 0}, f32.Vec3{0, float32(math.Pi / 4), 0}, f32.Vec3{1, 1, 1})
	got := b.Transform(m)

	r := float32(math.Sqrt2)
	if !approx(got.Min[0], 10-r, 1e-5) || !approx(got.Max[0], 10+r, 1e-5) {
		t.Errorf("x range = [%v, %v], want [%v, %v]", got.Min[0], got.Max[0], 10-r, 10+r)
	}
	if !approx(got.Min[1], -1, 1e-6) || !approx(got.Max[1], 1, 1e-6) {
		t.Errorf("y range = [%v, %v], want [-1, 1]", got.Min[1], got.Max[1])
	}
}

func TestAABBExtendFromEmpty(t *testing.T) {
	b := EmptyAABB()
	if !b.IsEmpty() {
		t.Fatal("EmptyAABB().IsEmpty() = false")
	}
	b = b.Extend(f32.Vec3{1, 2, 3}).Extend(f32.Vec3{-1, 0, 4})
	want := AABB{Min: f32.Vec3{-1, 0, 3}, Max: f32.Vec3{1, 2, 4}}
	if b != want {
		t.Errorf("Extend() = %v, want %v", b, want)
	}
}

func TestRectSize(t *testing.T) {
	r := Rect{MinX: 2, MinY: 3, MaxX: 2, MaxY: 10}
	if r.Width() != 1 || r.Height() != 8 {
		t.Errorf("size = %dx%d, want 1x8", r.Width(), r.Height())
	}
}

// --- Frustum ---

func TestExtractFrustumPlanesAreNormalized(t *testing.T) {
	f := ExtractFrustum(testViewProj())
	for i, p := range f.Planes {
		if l := Length3(p.Normal); !approx(l, 1, 1e-5) {
			t.Errorf("plane %d normal length = %v, want 1", i, l)
		}
	}
}

func TestFrustumTestAABB(t *testing.T) {
	f := ExtractFrustum(testViewProj())

	tests := []struct {
		name string
		box  AABB
		want Containment
	}{
		{"inside", AABB{Min: f32.Vec3{-0.5, -0.5, -0.5}, Max: f32.Vec3{0.5, 0.5, 0.5}}, Inside},
		{"far left", AABB{Min: f32.Vec3{-100, -1, -1}, Max: f32.Vec3{-90, 1, 1}}, Outside},
		{"far right", AABB{Min: f32.Vec3{90, -1, -1}, Max: f32.Vec3{100, 1, 1}}, Outside},
		{"above", AABB{Min: f32.Vec3{-1, 90, -1}, Max: f32.Vec3{1, 100, 1}}, Outside},
		{"behind camera", AABB{Min: f32.Vec3{-1, -1, 6}, Max: f32.Vec3{1, 1, 8}}, Outside},
		{"straddles left", AABB{Min: f32.Vec3{-10, -0.5, -0.5}, Max: f32.Vec3{0, 0.5, 0.5}}, Intersecting},
		{"straddles near", AABB{Min: f32.Vec3{-0.5, -0.5, 4}, Max: f32.Vec3{0.5, 0.5, 6}}, Intersecting},
		{"beyond far plane is kept", AABB{Min: f32.Vec3{-1, -1, -500}, Max: f32.Vec3{1, 1, -400}}, Inside},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.TestAABB(tt.box); got != tt.want {
				t.Errorf("TestAABB() = %v, want %v", got, tt.want)
			}
			if got := f.IntersectsAABB(tt.box); got != (tt.want != Outside) {
				t.Errorf("IntersectsAABB() = %v", got)
			}
		})
	}
}

func TestFrustumIntersectsSphere(t *testing.T) {
	f := ExtractFrustum(testViewProj())
	if !f.IntersectsSphere(Sphere{Center: f32.Vec3{0, 0, 0}, Radius: 1}) {
		t.Error("sphere at origin should be visible")
	}
	if f.IntersectsSphere(Sphere{Center: f32.Vec3{0, 0, 20}, Radius: 1}) {
		t.Error("sphere behind the camera should be culled")
	}
}

// --- Utils ---

func TestDivCeil(t *testing.T) {
	tests := []struct{ n, d, want uint32 }{
		{0, 64, 0}, {1, 64, 1}, {64, 64, 1}, {65, 64, 2}, {5, 0, 0},
	}
	for _, tt := range tests {
		if got := DivCeil(tt.n, tt.d); got != tt.want {
			t.Errorf("DivCeil(%d, %d) = %d, want %d", tt.n, tt.d, got, tt.want)
		}
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce(0, 0, 7, 9); got != 7 {
		t.Errorf("Coalesce() = %d, want 7", got)
	}
}

// --- Logger ---

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger should not be enabled for %v", level)
		}
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	Logger().Info("stage done", "clusters", 3)
	if !strings.Contains(buf.String(), "stage done") {
		t.Errorf("expected log output to contain 'stage done', got: %s", buf.String())
	}

	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
}
