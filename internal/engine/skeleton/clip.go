package skeleton

import (
	"fmt"
	gomath "math"
	"sort"
)

// Keyframe is a full-skeleton pose anchored at a timestamp in seconds.
// Pose is index-aligned with the skeleton's joints.
type Keyframe struct {
	Timestamp float32
	Pose      []JointTransform
}

// Clip is a named list of keyframes for one skeleton, sorted by timestamp.
type Clip struct {
	name      string
	skeleton  *Skeleton
	keyframes []Keyframe
}

// NewClip validates and sorts keyframes. Keyframes with equal timestamps keep
// their input order.
func NewClip(name string, skel *Skeleton, keyframes []Keyframe) (*Clip, error) {
	if skel == nil {
		return nil, fmt.Errorf("%w: clip %q has no skeleton", ErrInvalidSkeleton, name)
	}
	if len(keyframes) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyClip, name)
	}

	kfs := make([]Keyframe, len(keyframes))
	for i, kf := range keyframes {
		ts := float64(kf.Timestamp)
		if ts < 0 || gomath.IsNaN(ts) || gomath.IsInf(ts, 0) {
			return nil, fmt.Errorf("%w: clip %q keyframe %d has timestamp %v", ErrInvalidKeyframe, name, i, kf.Timestamp)
		}
		if len(kf.Pose) != len(skel.Joints) {
			return nil, fmt.Errorf("%w: clip %q keyframe %d has %d samples for %d joints",
				ErrSkeletonMismatch, name, i, len(kf.Pose), len(skel.Joints))
		}
		for j, sample := range kf.Pose {
			if sample.Joint != j {
				return nil, fmt.Errorf("%w: clip %q keyframe %d sample %d targets joint %d",
					ErrSkeletonMismatch, name, i, j, sample.Joint)
			}
		}
		kfs[i] = Keyframe{Timestamp: kf.Timestamp, Pose: append([]JointTransform(nil), kf.Pose...)}
	}

	sort.SliceStable(kfs, func(i, j int) bool {
		return kfs[i].Timestamp < kfs[j].Timestamp
	})

	return &Clip{name: name, skeleton: skel, keyframes: kfs}, nil
}

// Name returns the clip name.
func (c *Clip) Name() string { return c.name }

// Skeleton returns the skeleton the clip animates.
func (c *Clip) Skeleton() *Skeleton { return c.skeleton }

// Keyframes returns the sorted keyframes. Callers must not modify them.
func (c *Clip) Keyframes() []Keyframe { return c.keyframes }

// Duration returns the last keyframe's timestamp.
func (c *Clip) Duration() float32 {
	return c.keyframes[len(c.keyframes)-1].Timestamp
}

// Bracket returns the keyframes surrounding elapsed and the progression
// between them. prev is the last keyframe with timestamp <= elapsed. Before
// the first or after the last keyframe both ends clamp to that boundary
// keyframe, and a zero-width bracket yields t = 0.
func (c *Clip) Bracket(elapsed float32) (prev, next *Keyframe, t float32) {
	kfs := c.keyframes
	idx := sort.Search(len(kfs), func(i int) bool {
		return kfs[i].Timestamp > elapsed
	})

	switch {
	case idx == 0:
		prev, next = &kfs[0], &kfs[0]
	case idx == len(kfs):
		prev, next = &kfs[idx-1], &kfs[idx-1]
	default:
		prev, next = &kfs[idx-1], &kfs[idx]
	}

	span := next.Timestamp - prev.Timestamp
	if span <= 0 {
		return prev, next, 0
	}
	return prev, next, (elapsed - prev.Timestamp) / span
}
