package character

import (
	gomath "math"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/midgard-anim/internal/engine/md5"
	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/internal/engine/skeleton"
	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

var (
	_ Actor = (*TreeSkinned)(nil)
	_ Actor = (*FlatSkinned)(nil)
)

// flatTerrain is 2 units high and blocked from x=5 on.
type flatTerrain struct{}

func (flatTerrain) IsWalkable(worldX, worldZ float32) bool   { return worldX < 5 }
func (flatTerrain) GetHeight(worldX, worldZ float32) float32 { return 2 }

func testActorMesh(t *testing.T) *md5.Mesh {
	t.Helper()
	src := &formats.MD5Mesh{
		Version: formats.MD5Version,
		Joints:  []formats.MD5Joint{{Name: "root", Parent: -1}},
		Meshes: []formats.MD5SubMesh{{
			Vertices: []formats.MD5Vertex{
				{UV: [2]float32{0, 0}, WeightStart: 0, WeightCount: 1},
				{UV: [2]float32{1, 0}, WeightStart: 1, WeightCount: 1},
				{UV: [2]float32{0, 1}, WeightStart: 2, WeightCount: 1},
			},
			Triangles: [][3]int{{0, 1, 2}},
			Weights: []formats.MD5Weight{
				{Joint: 0, Bias: 1},
				{Joint: 0, Bias: 1, Position: [3]float32{1, 0, 0}},
				{Joint: 0, Bias: 1, Position: [3]float32{0, 1, 0}},
			},
		}},
	}
	m, err := md5.NewMesh(src, 4)
	if err != nil {
		t.Fatalf("NewMesh() error = %v", err)
	}
	return m
}

func newFlatActor(t *testing.T, terrain TerrainQuery) *FlatSkinned {
	t.Helper()
	c := NewController(DefaultSettings())
	c.AddTrack(NewTrack("walk", Ready(testClip(t, "walk", 10, 0))))
	c.AddTrack(NewTrack("wait", Ready(testClip(t, "wait", 10, 100))))
	return NewFlatSkinned(c, testActorMesh(t), terrain)
}

func TestFlatSkinned_Advance(t *testing.T) {
	a := newFlatActor(t, nil)

	out, err := a.Advance(tick)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if out.Skinned() {
		t.Fatal("idle actor produced skin output")
	}

	mustRequest(t, a.Controller(), "walk")
	out, err = a.Advance(tick)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if len(out.Vertices) != 3*md5.VertexStride {
		t.Fatalf("vertex buffer length = %d", len(out.Vertices))
	}
	// The root joint sits at x=1 on frame 1; vertex 1 is offset by 1 more.
	if x := out.Vertices[md5.VertexStride+md5.PositionOffset]; x != 2 {
		t.Errorf("vertex 1 x = %v, want 2", x)
	}
	if out.SkinMatrices != nil {
		t.Error("flat actor should not produce skin matrices")
	}
}

func TestFlatSkinned_ActorSpeed(t *testing.T) {
	a := newFlatActor(t, nil)
	mustRequest(t, a.Controller(), "walk")
	a.Body().Speed = 2

	out, err := a.Advance(tick)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if x := out.Vertices[md5.PositionOffset]; x != 2 {
		t.Errorf("vertex 0 x = %v, want 2", x)
	}
}

func TestFlatSkinned_Locomotion(t *testing.T) {
	a := newFlatActor(t, flatTerrain{})
	a.Locomotion = Locomotion{Idle: "wait", Walk: "walk"}
	mustRequest(t, a.Controller(), "wait")

	a.Body().SetDestination(10, 0)
	for i := 0; i < 3; i++ {
		if _, err := a.Advance(tick); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if !a.Controller().IsClipPending("walk") {
			t.Fatalf("tick %d: walk not requested while moving", i)
		}
	}
	for i := 0; i < 40 && a.Body().HasDestination(); i++ {
		if _, err := a.Advance(tick); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
	}
	body := a.Body()
	if body.HasDestination() || body.IsMoving() {
		t.Error("body should stop at the unwalkable boundary")
	}
	if body.Position.X >= 5 || body.Position.Y != 2 {
		t.Errorf("position = %v, want x < 5 on the ground", body.Position)
	}
}

func TestBody_ArrivesAndFaces(t *testing.T) {
	b := newBody(nil)
	b.SetDestination(0, 1)

	for i := 0; i < 10 && b.HasDestination(); i++ {
		b.UpdateMovement(tick)
	}
	if b.HasDestination() {
		t.Fatal("body did not arrive")
	}
	if !b.Position.ApproxEqual(math.Vec3{Z: 1}, ArrivalThreshold) {
		t.Errorf("position = %v, want (0,0,1)", b.Position)
	}
	if b.Facing != 0 {
		t.Errorf("Facing = %v, want 0 for +Z", b.Facing)
	}
}

func TestBody_Transform(t *testing.T) {
	b := newBody(nil)
	b.Position = math.Vec3{X: 1}
	b.Facing = FacingFromDelta(1, 0)

	got := b.Transform().TransformPoint(math.Vec3{Z: 1})
	if !got.ApproxEqual(math.Vec3{X: 2}, 1e-5) {
		t.Errorf("Transform() maps +Z to %v, want (2,0,0)", got)
	}
}

func TestTurnTowards(t *testing.T) {
	tests := []struct {
		name                  string
		current, target, step float32
		want                  float32
	}{
		{"within step", 0, 0.5, 1, 0.5},
		{"clamped", 0, gomath.Pi / 2, 1, 1},
		{"clamped negative", 0, -gomath.Pi / 2, 1, -1},
		{"short way across pi", 3, -3, 1, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TurnTowards(tt.current, tt.target, tt.step)
			if d := got - tt.want; d > 1e-5 || d < -1e-5 {
				t.Errorf("TurnTowards(%v, %v, %v) = %v, want %v", tt.current, tt.target, tt.step, got, tt.want)
			}
		})
	}
}

func TestTreeSkinned_Advance(t *testing.T) {
	skel, err := skeleton.NewSkeleton([]skeleton.Joint{{Name: "root", Parent: -1}})
	if err != nil {
		t.Fatalf("NewSkeleton() error = %v", err)
	}
	pose := func(x float32) []skeleton.JointTransform {
		return []skeleton.JointTransform{{Translation: math.Vec3{X: x}, Rotation: math.QuatIdentity()}}
	}
	clip, err := skeleton.NewClip("slide", skel, []skeleton.Keyframe{
		{Timestamp: 0, Pose: pose(0)},
		{Timestamp: 1, Pose: pose(2)},
	})
	if err != nil {
		t.Fatalf("NewClip() error = %v", err)
	}

	a, err := NewTreeSkinned(clip, nil)
	if err != nil {
		t.Fatalf("NewTreeSkinned() error = %v", err)
	}
	b, err := NewTreeSkinned(clip, nil)
	if err != nil {
		t.Fatalf("NewTreeSkinned() error = %v", err)
	}
	if a.ID() == uuid.Nil || a.ID() == b.ID() {
		t.Errorf("actors need distinct ids, got %v and %v", a.ID(), b.ID())
	}

	a.Body().Speed = 2
	out, err := a.Advance(0.25)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if len(out.SkinMatrices) != 1 || out.Vertices != nil {
		t.Fatalf("unexpected output %+v", out)
	}
	if got := out.SkinMatrices[0].Translation(); !got.ApproxEqual(math.Vec3{X: 1}, 1e-5) {
		t.Errorf("skin translation = %v, want (1,0,0)", got)
	}
	if a.Animator().Elapsed() != 0.5 {
		t.Errorf("Elapsed() = %v, want 0.5", a.Animator().Elapsed())
	}
}

func TestFlatSkinned_LogsActorID(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	a := newFlatActor(t, nil)
	if err := a.Controller().RequestClip("fly", RequestOptions{}); err == nil {
		t.Fatal("RequestClip(fly) should fail")
	}

	entries := logs.FilterMessage("unknown animation clip requested").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d warnings, want 1", len(entries))
	}
	if got := entries[0].LoggerName; got != "animation" {
		t.Errorf("LoggerName = %q, want animation", got)
	}
	if got := entries[0].ContextMap()["actor"]; got != a.ID().String() {
		t.Errorf("logged actor = %v, want %s", got, a.ID())
	}
}
