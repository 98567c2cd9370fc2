package math

import (
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)

	// Translation lives in column 4 (indices 12, 13, 14)
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got (%f, %f, %f), want (5, 10, 15)", m[12], m[13], m[14])
	}
	if got := TranslateVec(Vec3{5, 10, 15}); got != m {
		t.Errorf("TranslateVec: got %v, want %v", got, m)
	}
}

func TestTransformPoint(t *testing.T) {
	m := Translate(10, 20, 30)
	result := m.TransformPoint(Vec3{1, 2, 3})

	expected := Vec3{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestTransformDirectionIgnoresTranslation(t *testing.T) {
	m := Translate(10, 20, 30)
	d := Vec3{0, 1, 0}
	if got := m.TransformDirection(d); got != d {
		t.Errorf("TransformDirection: got %v, want %v", got, d)
	}
}

func TestMulOrderTranslateThenRotate(t *testing.T) {
	// T * R applied to a point rotates first, then translates.
	r := QuatFromAxisAngle(Vec3{0, 0, 1}, float32(math.Pi/2)).ToMat4()
	m := Translate(10, 0, 0).Mul(r)
	got := m.TransformPoint(Vec3{1, 0, 0})

	want := Vec3{10, 1, 0}
	if !got.ApproxEqual(want, 0.0001) {
		t.Errorf("T*R point: got %v, want %v", got, want)
	}
}

func TestFromTRS(t *testing.T) {
	m := FromTRS(Vec3{1, 2, 3}, QuatIdentity(), Vec3{2, 2, 2})
	got := m.TransformPoint(Vec3{1, 1, 1})

	want := Vec3{3, 4, 5}
	if !got.ApproxEqual(want, 0.0001) {
		t.Errorf("FromTRS: got %v, want %v", got, want)
	}
}

func TestInverse(t *testing.T) {
	m := FromTRS(Vec3{4, -2, 7}, QuatFromAxisAngle(Vec3{0, 1, 0}, 0.7), Vec3{1, 1, 1})
	got := m.Mul(m.Inverse())

	if !got.ApproxEqual(Identity(), 0.0001) {
		t.Errorf("M * M^-1 should be identity, got %v", got)
	}
}

func TestInverseSingular(t *testing.T) {
	var zero Mat4
	if got := zero.Inverse(); got != Identity() {
		t.Errorf("singular inverse should fall back to identity, got %v", got)
	}
}

func TestIsFinite(t *testing.T) {
	m := Identity()
	if !m.IsFinite() {
		t.Error("identity should be finite")
	}
	m[5] = float32(math.NaN())
	if m.IsFinite() {
		t.Error("matrix with NaN should not be finite")
	}
	m[5] = float32(math.Inf(1))
	if m.IsFinite() {
		t.Error("matrix with +Inf should not be finite")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want float32
	}{
		{-0.5, 0},
		{0.25, 0.25},
		{1.5, 1},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in, 0, 1); got != tt.want {
			t.Errorf("Clamp(%v, 0, 1) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := Clamp(7, 0, 5); got != 5 {
		t.Errorf("Clamp(7, 0, 5) = %v, want 5", got)
	}
}
