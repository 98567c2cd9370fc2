package skeleton

import (
	"fmt"
	"sort"

	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// FromGLTF builds a skeleton and one clip per animation from an extracted
// glTF skin. Channels are merged into full-skeleton keyframes at the union of
// their timestamps; joints without a channel hold their rest pose.
func FromGLTF(skin *formats.GLTFSkin) (*Skeleton, []*Clip, error) {
	joints := make([]Joint, len(skin.Joints))
	for i, gj := range skin.Joints {
		joints[i] = Joint{
			Name:        gj.Name,
			Parent:      gj.Parent,
			InverseBind: math.Mat4(gj.InverseBind),
		}
	}
	rest := RestPose(skin)

	skel, err := NewSkeleton(joints)
	if err != nil {
		return nil, nil, fmt.Errorf("glTF skin %q: %w", skin.Name, err)
	}

	clips := make([]*Clip, 0, len(skin.Animations))
	for _, anim := range skin.Animations {
		clip, err := NewClip(anim.Name, skel, mergeChannels(anim.Channels, rest))
		if err != nil {
			return nil, nil, err
		}
		clips = append(clips, clip)
	}

	return skel, clips, nil
}

// RestPose returns the rest pose of a glTF skin as joint transforms.
func RestPose(skin *formats.GLTFSkin) []JointTransform {
	pose := make([]JointTransform, len(skin.Joints))
	for i, gj := range skin.Joints {
		pose[i] = JointTransform{
			Translation: math.Vec3FromArray(gj.Translation),
			Rotation:    math.QuatFromArray(gj.Rotation),
			Joint:       i,
		}
	}
	return pose
}

func mergeChannels(channels []formats.GLTFChannel, rest []JointTransform) []Keyframe {
	seen := make(map[float32]bool)
	var times []float32
	for _, ch := range channels {
		for _, ts := range ch.Times {
			if !seen[ts] {
				seen[ts] = true
				times = append(times, ts)
			}
		}
	}
	if len(times) == 0 {
		times = []float32{0}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	keyframes := make([]Keyframe, len(times))
	for k, ts := range times {
		pose := append([]JointTransform(nil), rest...)
		for _, ch := range channels {
			if ch.Joint < 0 || ch.Joint >= len(pose) || len(ch.Times) == 0 {
				continue
			}
			v := sampleChannel(ch, ts)
			switch ch.Path {
			case formats.GLTFPathTranslation:
				pose[ch.Joint].Translation = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
			case formats.GLTFPathRotation:
				pose[ch.Joint].Rotation = math.QuatFromArray(v).Normalize()
			}
		}
		keyframes[k] = Keyframe{Timestamp: ts, Pose: pose}
	}
	return keyframes
}

// sampleChannel evaluates one channel at ts with the same bracket rules as
// clip playback.
func sampleChannel(ch formats.GLTFChannel, ts float32) [4]float32 {
	idx := sort.Search(len(ch.Times), func(i int) bool { return ch.Times[i] > ts })
	if idx == 0 {
		return ch.Values[0]
	}
	if idx == len(ch.Times) || ch.Interpolation == formats.GLTFInterpolationStep {
		return ch.Values[idx-1]
	}

	t0, t1 := ch.Times[idx-1], ch.Times[idx]
	a, b := ch.Values[idx-1], ch.Values[idx]
	if t1 <= t0 {
		return a
	}
	t := (ts - t0) / (t1 - t0)

	if ch.Path == formats.GLTFPathRotation {
		return math.QuatFromArray(a).Slerp(math.QuatFromArray(b), t).Array()
	}
	return [4]float32{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t, a[2] + (b[2]-a[2])*t, 0}
}
