package skeleton

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// JointTransform is one joint's pose at one instant.
type JointTransform struct {
	Translation math.Vec3
	Rotation    math.Quat
	Joint       int // Index of the joint this sample belongs to
}

// Interpolate blends two samples of the same joint. Translation is linear,
// rotation is a shortest-path slerp. t is not clamped.
func Interpolate(a, b JointTransform, t float32) (JointTransform, error) {
	if a.Joint != b.Joint {
		return JointTransform{}, fmt.Errorf("%w: %d and %d", ErrSkeletonMismatch, a.Joint, b.Joint)
	}
	return JointTransform{
		Translation: a.Translation.Lerp(b.Translation, t),
		Rotation:    a.Rotation.Slerp(b.Rotation, t),
		Joint:       a.Joint,
	}, nil
}

// LocalTransform returns translate(Translation) * rotate(Rotation).
func (jt JointTransform) LocalTransform() math.Mat4 {
	return math.TranslateVec(jt.Translation).Mul(jt.Rotation.ToMat4())
}
