package character

import (
	"github.com/google/uuid"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Body is an actor's world state.
type Body struct {
	id uuid.UUID

	Position math.Vec3
	Facing   float32 // Yaw in radians, 0 faces +Z
	// Speed scales animation playback.
	Speed float32
	// MoveSpeed is in world units per second.
	MoveSpeed float32
	// Terrain may be nil for no walkability or height checks.
	Terrain TerrainQuery

	dest           math.Vec3
	hasDestination bool
	moving         bool
}

func newBody(terrain TerrainQuery) Body {
	return Body{
		id:        uuid.New(),
		Speed:     1,
		MoveSpeed: DefaultMoveSpeed,
		Terrain:   terrain,
	}
}

// IsMoving reports whether the last update moved the body.
func (b *Body) IsMoving() bool { return b.moving }

// HasDestination reports whether a destination is set.
func (b *Body) HasDestination() bool { return b.hasDestination }

// SetDestination sets the click-to-move destination.
func (b *Body) SetDestination(worldX, worldZ float32) {
	b.dest = math.Vec3{X: worldX, Z: worldZ}
	b.hasDestination = true
}

// ClearDestination stops movement.
func (b *Body) ClearDestination() {
	b.hasDestination = false
	b.moving = false
}

// UpdateMovement walks the body toward its destination for dt seconds and
// keeps it on the terrain. It reports whether the body moved.
func (b *Body) UpdateMovement(dt float32) bool {
	if !b.hasDestination {
		b.moving = false
		b.snapToGround()
		return false
	}

	dx := b.dest.X - b.Position.X
	dz := b.dest.Z - b.Position.Z
	dist := math.Vec3{X: dx, Z: dz}.Length()

	// Check if reached destination
	if dist < ArrivalThreshold {
		b.ClearDestination()
		b.snapToGround()
		return false
	}

	dx /= dist
	dz /= dist

	moveAmount := b.MoveSpeed * dt
	if moveAmount > dist {
		moveAmount = dist
	}

	newX := b.Position.X + dx*moveAmount
	newZ := b.Position.Z + dz*moveAmount

	// Stop if hit obstacle
	if b.Terrain != nil && !b.Terrain.IsWalkable(newX, newZ) {
		b.ClearDestination()
		return false
	}

	b.Position.X = newX
	b.Position.Z = newZ
	b.snapToGround()
	b.Facing = TurnTowards(b.Facing, FacingFromDelta(dx, dz), TurnRate*dt)
	b.moving = true
	return true
}

func (b *Body) snapToGround() {
	if b.Terrain != nil {
		b.Position.Y = b.Terrain.GetHeight(b.Position.X, b.Position.Z)
	}
}

// Transform returns the body's model matrix.
func (b *Body) Transform() math.Mat4 {
	rot := math.QuatFromAxisAngle(math.Vec3{Y: 1}, b.Facing)
	return math.TranslateVec(b.Position).Mul(rot.ToMat4())
}

// ArrivalThreshold is the distance at which a character is considered to have arrived.
const ArrivalThreshold = 0.05

// DefaultMoveSpeed is the default movement speed in world units per second.
const DefaultMoveSpeed = 3.0
