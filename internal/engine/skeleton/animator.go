package skeleton

import (
	"fmt"
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Animator plays one clip in a loop on its own copy of the clip's skeleton.
type Animator struct {
	clip     *Clip
	skeleton *Skeleton
	elapsed  float32
	pose     []JointTransform
}

// NewAnimator attaches a new animator to clip and evaluates the pose at time
// zero. The skeleton is cloned so several animators can share a clip.
func NewAnimator(clip *Clip) (*Animator, error) {
	a := &Animator{
		clip:     clip,
		skeleton: clip.Skeleton().Clone(),
	}
	if err := a.evaluate(0); err != nil {
		return nil, fmt.Errorf("animator for clip %q: %w", clip.Name(), err)
	}
	return a, nil
}

// Update advances elapsed time by dt seconds, wrapping at the clip duration,
// and recomputes the pose and skin matrices. On error the previous skin
// matrices are left untouched.
func (a *Animator) Update(dt float32) error {
	a.elapsed = wrapTime(a.elapsed+dt, a.clip.Duration())
	return a.evaluate(a.elapsed)
}

// SampleAt evaluates the clip at time t without moving the play head.
func (a *Animator) SampleAt(t float32) error {
	return a.evaluate(wrapTime(t, a.clip.Duration()))
}

// Reset rewinds to the start of the clip.
func (a *Animator) Reset() error {
	a.elapsed = 0
	return a.evaluate(0)
}

// Elapsed returns the play head position in seconds.
func (a *Animator) Elapsed() float32 { return a.elapsed }

// Clip returns the clip being played.
func (a *Animator) Clip() *Clip { return a.clip }

// Skeleton returns the animator's own skeleton.
func (a *Animator) Skeleton() *Skeleton { return a.skeleton }

// Pose returns the last sampled pose.
func (a *Animator) Pose() []JointTransform {
	return append([]JointTransform(nil), a.pose...)
}

// SkinMatrices returns the skin matrices from the last evaluation.
func (a *Animator) SkinMatrices() []math.Mat4 {
	return a.skeleton.SkinMatrices()
}

func (a *Animator) evaluate(elapsed float32) error {
	prev, next, t := a.clip.Bracket(elapsed)

	pose := make([]JointTransform, len(prev.Pose))
	for i := range prev.Pose {
		jt, err := Interpolate(prev.Pose[i], next.Pose[i], t)
		if err != nil {
			logger.Error("pose evaluation aborted",
				zap.String("clip", a.clip.Name()),
				zap.Int("joint", i),
				zap.Error(err))
			return fmt.Errorf("clip %q joint %d: %w", a.clip.Name(), i, err)
		}
		pose[i] = jt
	}

	a.pose = pose
	a.compose(a.skeleton.Root, math.Identity())
	return nil
}

// compose walks the joint tree depth-first. Children receive the parent's
// world transform before the inverse bind matrix is applied.
func (a *Animator) compose(idx int, parent math.Mat4) {
	j := &a.skeleton.Joints[idx]
	world := parent.Mul(a.pose[idx].LocalTransform())
	for _, c := range j.Children {
		a.compose(c, world)
	}
	j.Local = world.Mul(j.InverseBind)
}

// wrapTime maps t into [0, duration). A zero duration pins time at 0.
func wrapTime(t, duration float32) float32 {
	if duration <= 0 {
		return 0
	}
	if t >= 0 && t < duration {
		return t
	}
	w := float32(gomath.Mod(float64(t), float64(duration)))
	if w < 0 {
		w += duration
	}
	if w >= duration {
		w = 0
	}
	return w
}
