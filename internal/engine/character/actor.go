package character

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/engine/md5"
	"github.com/Faultbox/midgard-anim/internal/engine/skeleton"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// TerrainQuery provides terrain information for character movement.
type TerrainQuery interface {
	// IsWalkable returns true if the given world position is walkable.
	IsWalkable(worldX, worldZ float32) bool
	// GetHeight returns the terrain height at the given world position.
	GetHeight(worldX, worldZ float32) float32
}

// SkinOutput is one actor's skinning result for a tick. Tree-skinned actors
// fill SkinMatrices; flat-skinned actors fill Vertices. Both are nil when
// nothing was skinned, e.g. while a clip is loading.
type SkinOutput struct {
	SkinMatrices []math.Mat4
	// Vertices aliases the actor's own buffer and is rewritten every tick.
	Vertices []float32
}

// Skinned reports whether the output carries any data.
func (o SkinOutput) Skinned() bool {
	return o.SkinMatrices != nil || o.Vertices != nil
}

// Actor is an animated character that can be advanced once per frame.
type Actor interface {
	ID() uuid.UUID
	Body() *Body
	Advance(dt float32) (SkinOutput, error)
}

// TreeSkinned is an actor driven by a keyframe animator over a joint tree.
type TreeSkinned struct {
	body     Body
	animator *skeleton.Animator
}

// NewTreeSkinned creates an actor playing clip.
func NewTreeSkinned(clip *skeleton.Clip, terrain TerrainQuery) (*TreeSkinned, error) {
	animator, err := skeleton.NewAnimator(clip)
	if err != nil {
		return nil, err
	}
	return &TreeSkinned{
		body:     newBody(terrain),
		animator: animator,
	}, nil
}

// ID returns the actor's identity.
func (a *TreeSkinned) ID() uuid.UUID { return a.body.id }

// Body returns the actor's world state.
func (a *TreeSkinned) Body() *Body { return &a.body }

// Animator returns the actor's animator.
func (a *TreeSkinned) Animator() *skeleton.Animator { return a.animator }

// Advance moves the actor and samples its clip dt seconds later.
func (a *TreeSkinned) Advance(dt float32) (SkinOutput, error) {
	a.body.UpdateMovement(dt)
	if err := a.animator.Update(dt * a.body.Speed); err != nil {
		return SkinOutput{}, err
	}
	return SkinOutput{SkinMatrices: a.animator.SkinMatrices()}, nil
}

// Locomotion names the clips requested automatically while an actor walks.
// An empty Walk disables it.
type Locomotion struct {
	Idle string
	Walk string
}

// FlatSkinned is an actor driven by a clip controller and skinned on the CPU.
type FlatSkinned struct {
	body       Body
	controller *Controller
	mesh       *md5.Mesh
	buf        []float32

	Locomotion Locomotion
}

// NewFlatSkinned creates an actor that skins mesh with the controller's output.
// The controller's log entries are tagged with the actor's ID.
func NewFlatSkinned(controller *Controller, mesh *md5.Mesh, terrain TerrainQuery) *FlatSkinned {
	a := &FlatSkinned{
		body:       newBody(terrain),
		controller: controller,
		mesh:       mesh,
		buf:        mesh.NewVertexBuffer(),
	}
	controller.log = controller.log.With(zap.Stringer("actor", a.body.id))
	return a
}

// ID returns the actor's identity.
func (a *FlatSkinned) ID() uuid.UUID { return a.body.id }

// Body returns the actor's world state.
func (a *FlatSkinned) Body() *Body { return &a.body }

// Controller returns the actor's clip controller.
func (a *FlatSkinned) Controller() *Controller { return a.controller }

// Mesh returns the skinned mesh.
func (a *FlatSkinned) Mesh() *md5.Mesh { return a.mesh }

// Advance moves the actor, ticks its controller and reskins the mesh.
func (a *FlatSkinned) Advance(dt float32) (SkinOutput, error) {
	moving := a.body.UpdateMovement(dt)
	if err := a.locomote(moving); err != nil {
		return SkinOutput{}, err
	}

	a.controller.SetSpeed(a.body.Speed)
	joints, err := a.controller.Tick(dt)
	if err != nil || joints == nil {
		return SkinOutput{}, err
	}
	if err := a.mesh.Skin(joints, a.buf, 0); err != nil {
		return SkinOutput{}, err
	}
	return SkinOutput{Vertices: a.buf}, nil
}

// locomote keeps the controller on the walk or idle clip. It is polled every
// tick, so it only requests clips that are not already pending.
func (a *FlatSkinned) locomote(moving bool) error {
	if a.Locomotion.Walk == "" {
		return nil
	}
	want := a.Locomotion.Idle
	if moving {
		want = a.Locomotion.Walk
	}
	if want == "" || a.controller.IsClipPending(want) {
		return nil
	}
	return a.controller.RequestClip(want, RequestOptions{})
}
