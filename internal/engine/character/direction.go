package character

import (
	gomath "math"
)

// FacingFromDelta returns the yaw that faces along (dx, dz).
func FacingFromDelta(dx, dz float32) float32 {
	return float32(gomath.Atan2(float64(dx), float64(dz)))
}

// NormalizeAngle maps an angle to (-π, π].
func NormalizeAngle(a float32) float32 {
	for a > gomath.Pi {
		a -= 2 * gomath.Pi
	}
	for a <= -gomath.Pi {
		a += 2 * gomath.Pi
	}
	return a
}

// TurnTowards rotates current toward target by at most maxStep radians,
// taking the short way round.
func TurnTowards(current, target, maxStep float32) float32 {
	diff := NormalizeAngle(target - current)
	if diff > maxStep {
		diff = maxStep
	} else if diff < -maxStep {
		diff = -maxStep
	}
	return NormalizeAngle(current + diff)
}

// TurnRate is how fast a walking body turns, in radians per second.
const TurnRate = float32(2 * gomath.Pi)
