// Package md5 reconstructs flat-hierarchy joint poses from MD5 clips and skins
// meshes against them on the CPU.
package md5

import (
	"errors"
	"fmt"
	gomath "math"

	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Clip and skinning errors.
var (
	ErrEmptyClip          = errors.New("clip has no frames")
	ErrInvalidHierarchy   = errors.New("parent joint does not precede child")
	ErrInvalidFrameRate   = errors.New("clip frame rate must be positive")
	ErrJointCountMismatch = errors.New("joint count mismatch")
	ErrBufferTooSmall     = errors.New("vertex buffer too small")
	ErrWeightSum          = errors.New("vertex weights do not sum to 1")
)

// Joint is a reconstructed joint in model space.
type Joint struct {
	Name        string
	Parent      int
	Position    math.Vec3
	Orientation math.Quat
}

// baseJoint is a base frame entry with the orientation's w not yet rebuilt.
type baseJoint struct {
	position [3]float32
	orient   [3]float32
}

// Clip is a flat-hierarchy animation: a base pose plus sparse per-frame
// channel overrides.
type Clip struct {
	name      string
	frameRate int
	hierarchy []formats.MD5HierarchyJoint
	base      []baseJoint
	frames    [][]float32
}

// NewClip validates a parsed MD5 anim. A clip without frames is rejected here
// so playback never sees one.
func NewClip(name string, anim *formats.MD5Anim) (*Clip, error) {
	if len(anim.Frames) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyClip, name)
	}
	if anim.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: %q has %d", ErrInvalidFrameRate, name, anim.FrameRate)
	}
	if len(anim.BaseFrame) != len(anim.Hierarchy) {
		return nil, fmt.Errorf("%w: %q has %d hierarchy joints and %d base joints",
			ErrJointCountMismatch, name, len(anim.Hierarchy), len(anim.BaseFrame))
	}

	for i, h := range anim.Hierarchy {
		if h.Parent < -1 || h.Parent >= i {
			return nil, fmt.Errorf("%w: %q joint %d (%s) has parent %d", ErrInvalidHierarchy, name, i, h.Name, h.Parent)
		}
		end := h.StartIndex + h.ChannelCount()
		for f, data := range anim.Frames {
			if h.StartIndex < 0 || end > len(data) {
				return nil, fmt.Errorf("%w: %q frame %d too short for joint %d", formats.ErrMD5CountMismatch, name, f, i)
			}
		}
	}

	c := &Clip{
		name:      name,
		frameRate: anim.FrameRate,
		hierarchy: append([]formats.MD5HierarchyJoint(nil), anim.Hierarchy...),
		base:      make([]baseJoint, len(anim.BaseFrame)),
		frames:    anim.Frames,
	}
	for i, b := range anim.BaseFrame {
		c.base[i] = baseJoint{position: b.Position, orient: b.Orientation}
	}
	return c, nil
}

// Name returns the clip name.
func (c *Clip) Name() string { return c.name }

// FrameCount returns the number of frames.
func (c *Clip) FrameCount() int { return len(c.frames) }

// FrameRate returns frames per second.
func (c *Clip) FrameRate() int { return c.frameRate }

// JointCount returns the number of joints per frame.
func (c *Clip) JointCount() int { return len(c.hierarchy) }

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float32 {
	return float32(len(c.frames)) / float32(c.frameRate)
}

// WrapFrame maps any integer frame, negative included, into [0, FrameCount).
func (c *Clip) WrapFrame(frame int) int {
	n := len(c.frames)
	return ((frame % n) + n) % n
}

// FrameJoints reconstructs the model-space joints of one frame. The frame is
// wrapped into range. Joints are processed in index order so every parent is
// final before its children read it.
func (c *Clip) FrameJoints(frame int) []Joint {
	return c.reconstruct(c.frames[c.WrapFrame(frame)])
}

// BaseJoints returns the base pose in model space with no frame data applied.
func (c *Clip) BaseJoints() []Joint {
	return c.reconstruct(nil)
}

func (c *Clip) reconstruct(data []float32) []Joint {
	out := make([]Joint, len(c.hierarchy))
	for i, h := range c.hierarchy {
		pos, orient := c.base[i].position, c.base[i].orient

		if data != nil {
			k := h.StartIndex
			for bit := 0; bit < 6; bit++ {
				if h.Flags&(1<<bit) == 0 {
					continue
				}
				if bit < 3 {
					pos[bit] = data[k]
				} else {
					orient[bit-3] = data[k]
				}
				k++
			}
		}

		j := Joint{
			Name:        h.Name,
			Parent:      h.Parent,
			Position:    math.Vec3FromArray(pos),
			Orientation: math.QuatFromXYZ(orient[0], orient[1], orient[2]),
		}
		if h.Parent >= 0 {
			p := out[h.Parent]
			j.Position = p.Position.Add(p.Orientation.Rotate(j.Position))
			j.Orientation = p.Orientation.Mul(j.Orientation)
		}
		out[i] = j
	}
	return out
}

// AnimationFrame returns the joints at a fractional frame by blending
// floor(frame) with the following frame. Both wrap.
func (c *Clip) AnimationFrame(frame float32) []Joint {
	f := gomath.Floor(float64(frame))
	a := c.FrameJoints(int(f))
	t := frame - float32(f)
	if t == 0 {
		return a
	}
	return blend(a, c.FrameJoints(int(f)+1), t)
}

// Blend interpolates two joint sets, lerping positions and slerping
// orientations. It is used for fractional frames and for crossfades between
// clips of the same skeleton.
func Blend(a, b []Joint, t float32) ([]Joint, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d and %d", ErrJointCountMismatch, len(a), len(b))
	}
	return blend(a, b, t), nil
}

func blend(a, b []Joint, t float32) []Joint {
	out := make([]Joint, len(a))
	for i := range a {
		out[i] = Joint{
			Name:        a[i].Name,
			Parent:      a[i].Parent,
			Position:    a[i].Position.Lerp(b[i].Position, t),
			Orientation: a[i].Orientation.Slerp(b[i].Orientation, t),
		}
	}
	return out
}
