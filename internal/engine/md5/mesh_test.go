package md5

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// testMesh is one triangle on the XY plane: vertex 0 on the origin joint,
// vertex 1 on the bone joint at x=1, vertex 2 split evenly between them.
func testMesh() *formats.MD5Mesh {
	return &formats.MD5Mesh{
		Version: 10,
		Joints: []formats.MD5Joint{
			{Name: "origin", Parent: -1},
			{Name: "bone", Parent: 0, Position: [3]float32{1, 0, 0}},
		},
		Meshes: []formats.MD5SubMesh{{
			Shader: "skin",
			Vertices: []formats.MD5Vertex{
				{UV: [2]float32{0, 0}, WeightStart: 0, WeightCount: 1},
				{UV: [2]float32{1, 0}, WeightStart: 1, WeightCount: 1},
				{UV: [2]float32{0, 1}, WeightStart: 2, WeightCount: 2},
			},
			Triangles: [][3]int{{0, 1, 2}},
			Weights: []formats.MD5Weight{
				{Joint: 0, Bias: 1},
				{Joint: 1, Bias: 1},
				{Joint: 0, Bias: 0.5, Position: [3]float32{0, 1, 0}},
				{Joint: 1, Bias: 0.5, Position: [3]float32{-1, 1, 0}},
			},
		}},
	}
}

func newTestMesh(t *testing.T, maxWeights int) *Mesh {
	t.Helper()
	m, err := NewMesh(testMesh(), maxWeights)
	if err != nil {
		t.Fatalf("NewMesh() error = %v", err)
	}
	return m
}

func vertexAt(buf []float32, i, offset int) math.Vec3 {
	base := i*VertexStride + offset
	return math.Vec3{X: buf[base], Y: buf[base+1], Z: buf[base+2]}
}

func TestNewMesh(t *testing.T) {
	m := newTestMesh(t, 0)
	if m.MaxWeights() != DefaultMaxWeights {
		t.Errorf("MaxWeights() = %d, want %d", m.MaxWeights(), DefaultMaxWeights)
	}
	if m.VertexCount() != 3 || m.JointCount() != 2 {
		t.Errorf("VertexCount() = %d, JointCount() = %d", m.VertexCount(), m.JointCount())
	}
	if got := m.Indices(); len(got) != 3 || got[2] != 2 {
		t.Errorf("Indices() = %v", got)
	}
	if got := m.Shaders(); len(got) != 1 || got[0] != "skin" {
		t.Errorf("Shaders() = %v", got)
	}

	buf := m.NewVertexBuffer()
	if len(buf) != 3*VertexStride {
		t.Fatalf("buffer length = %d, want %d", len(buf), 3*VertexStride)
	}
	if buf[2*VertexStride+UVOffset+1] != 1 {
		t.Errorf("vertex 2 V = %v, want 1", buf[2*VertexStride+UVOffset+1])
	}
}

func TestNewMesh_InvalidWeight(t *testing.T) {
	src := testMesh()
	src.Meshes[0].Weights[1].Joint = 7
	if _, err := NewMesh(src, 4); !errors.Is(err, formats.ErrInvalidMD5Weight) {
		t.Errorf("expected ErrInvalidMD5Weight, got %v", err)
	}
}

func TestSkin_BindPose(t *testing.T) {
	m := newTestMesh(t, 4)
	buf := m.NewVertexBuffer()
	if err := m.Skin(m.BindPose(), buf, 0); err != nil {
		t.Fatalf("Skin() error = %v", err)
	}

	wantPos := []math.Vec3{{}, {X: 1}, {Y: 1}}
	for i, want := range wantPos {
		if got := vertexAt(buf, i, PositionOffset); !got.ApproxEqual(want, eps) {
			t.Errorf("vertex %d position = %v, want %v", i, got, want)
		}
		if got := vertexAt(buf, i, NormalOffset); !got.ApproxEqual(math.Vec3{Z: 1}, eps) {
			t.Errorf("vertex %d normal = %v, want (0,0,1)", i, got)
		}
		if got := vertexAt(buf, i, TangentOffset); !got.ApproxEqual(math.Vec3{X: 1}, eps) {
			t.Errorf("vertex %d tangent = %v, want (1,0,0)", i, got)
		}
	}
}

func TestSkin_RotatedPose(t *testing.T) {
	m := newTestMesh(t, 4)
	rot := math.QuatFromAxisAngle(math.Vec3{Z: 1}, float32(gomath.Pi/2))

	joints := m.BindPose()
	for i := range joints {
		joints[i].Position = rot.Rotate(joints[i].Position).Add(math.Vec3{Z: 5})
		joints[i].Orientation = rot.Mul(joints[i].Orientation)
	}

	buf := m.NewVertexBuffer()
	if err := m.Skin(joints, buf, 0); err != nil {
		t.Fatalf("Skin() error = %v", err)
	}

	wantPos := []math.Vec3{{Z: 5}, {Y: 1, Z: 5}, {X: -1, Z: 5}}
	for i, want := range wantPos {
		if got := vertexAt(buf, i, PositionOffset); !got.ApproxEqual(want, eps) {
			t.Errorf("vertex %d position = %v, want %v", i, got, want)
		}
		// Normals and tangents rotate but never translate
		if got := vertexAt(buf, i, NormalOffset); !got.ApproxEqual(math.Vec3{Z: 1}, eps) {
			t.Errorf("vertex %d normal = %v, want (0,0,1)", i, got)
		}
		if got := vertexAt(buf, i, TangentOffset); !got.ApproxEqual(math.Vec3{Y: 1}, eps) {
			t.Errorf("vertex %d tangent = %v, want (0,1,0)", i, got)
		}
	}
}

func TestSkin_Offset(t *testing.T) {
	m := newTestMesh(t, 4)
	buf := make([]float32, 2*m.VertexCount()*VertexStride)
	if err := m.Skin(m.BindPose(), buf, m.VertexCount()); err != nil {
		t.Fatalf("Skin() error = %v", err)
	}

	for i := 0; i < m.VertexCount()*VertexStride; i++ {
		if buf[i] != 0 {
			t.Fatalf("Skin wrote before its offset at float %d", i)
		}
	}
	if got := vertexAt(buf, m.VertexCount()+1, PositionOffset); !got.ApproxEqual(math.Vec3{X: 1}, eps) {
		t.Errorf("offset vertex 1 = %v, want (1,0,0)", got)
	}
}

func TestSkin_Errors(t *testing.T) {
	m := newTestMesh(t, 4)

	if err := m.Skin(m.BindPose()[:1], m.NewVertexBuffer(), 0); !errors.Is(err, ErrJointCountMismatch) {
		t.Errorf("expected ErrJointCountMismatch, got %v", err)
	}
	if err := m.Skin(m.BindPose(), make([]float32, VertexStride), 0); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}
	if err := m.Skin(m.BindPose(), m.NewVertexBuffer(), 1); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall for offset, got %v", err)
	}
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name       string
		maxWeights int
		mutate     func(m *formats.MD5Mesh)
		wantErr    error
	}{
		{"well formed", 4, func(*formats.MD5Mesh) {}, nil},
		{"bias too low", 4, func(m *formats.MD5Mesh) { m.Meshes[0].Weights[3].Bias = 0.25 }, ErrWeightSum},
		{"influences truncated", 1, func(*formats.MD5Mesh) {}, ErrWeightSum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testMesh()
			tt.mutate(src)
			m, err := NewMesh(src, tt.maxWeights)
			if err != nil {
				t.Fatalf("NewMesh() error = %v", err)
			}
			if err := m.ValidateWeights(0.001); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateWeights() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
