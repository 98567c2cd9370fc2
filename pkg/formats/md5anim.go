// MD5 anim format parser for flat-hierarchy skeletal clips.
package formats

import (
	"fmt"
	"math/bits"
	"os"
)

// MD5 channel flag bits, tested low to high.
const (
	MD5ChannelPosX   = 1 << iota // Position X stored in frame data
	MD5ChannelPosY               // Position Y stored in frame data
	MD5ChannelPosZ               // Position Z stored in frame data
	MD5ChannelOrientX            // Orientation X stored in frame data
	MD5ChannelOrientY            // Orientation Y stored in frame data
	MD5ChannelOrientZ            // Orientation Z stored in frame data

	MD5ChannelMask = 0x3f
)

// MD5HierarchyJoint describes one joint of an anim's hierarchy block.
type MD5HierarchyJoint struct {
	Name       string
	Parent     int // -1 for a root joint
	Flags      int // MD5Channel* bits
	StartIndex int // Offset of the first animated component in each frame
}

// ChannelCount returns the number of animated components the joint reads.
func (j MD5HierarchyJoint) ChannelCount() int {
	return bits.OnesCount(uint(j.Flags & MD5ChannelMask))
}

// MD5Bounds is a per-frame axis-aligned bounding box.
type MD5Bounds struct {
	Min [3]float32
	Max [3]float32
}

// MD5BaseJoint is the base pose of a joint before frame data is applied.
// Orientation holds only x, y, z; w is reconstructed.
type MD5BaseJoint struct {
	Position    [3]float32
	Orientation [3]float32
}

// MD5Anim represents a parsed .md5anim file.
type MD5Anim struct {
	Version               int
	CommandLine           string
	FrameRate             int
	NumAnimatedComponents int
	Hierarchy             []MD5HierarchyJoint
	Bounds                []MD5Bounds
	BaseFrame             []MD5BaseJoint
	Frames                [][]float32 // One flat component array per frame
}

// ParseMD5Anim parses an MD5 anim from raw text.
func ParseMD5Anim(data []byte) (*MD5Anim, error) {
	l := newMD5Lexer(data)
	anim := &MD5Anim{}

	numFrames, numJoints := -1, -1
	seenFrames := 0

	for !l.done() {
		key, err := l.next()
		if err != nil {
			return nil, err
		}

		switch key {
		case "MD5Version":
			if anim.Version, err = parseMD5Version(l); err != nil {
				return nil, err
			}
		case "commandline":
			if anim.CommandLine, err = l.next(); err != nil {
				return nil, err
			}
		case "numFrames":
			if numFrames, err = l.readCount(key); err != nil {
				return nil, err
			}
			anim.Frames = make([][]float32, numFrames)
		case "numJoints":
			if numJoints, err = l.readInt(); err != nil {
				return nil, err
			}
			if numJoints < 0 {
				return nil, l.errorf("negative numJoints %d", numJoints)
			}
		case "frameRate":
			if anim.FrameRate, err = l.readInt(); err != nil {
				return nil, err
			}
		case "numAnimatedComponents":
			if anim.NumAnimatedComponents, err = l.readInt(); err != nil {
				return nil, err
			}
		case "hierarchy":
			if anim.Hierarchy, err = parseMD5Hierarchy(l); err != nil {
				return nil, err
			}
		case "bounds":
			if anim.Bounds, err = parseMD5Bounds(l); err != nil {
				return nil, err
			}
		case "baseframe":
			if anim.BaseFrame, err = parseMD5BaseFrame(l); err != nil {
				return nil, err
			}
		case "frame":
			idx, err := l.readInt()
			if err != nil {
				return nil, err
			}
			if idx < 0 || idx >= len(anim.Frames) {
				return nil, fmt.Errorf("%w: frame %d outside numFrames %d", ErrMD5CountMismatch, idx, len(anim.Frames))
			}
			values, err := parseMD5FloatBlock(l)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", idx, err)
			}
			if anim.Frames[idx] == nil {
				seenFrames++
			}
			anim.Frames[idx] = values
		default:
			return nil, l.errorf("unknown keyword %q", key)
		}
	}

	if anim.Version == 0 {
		return nil, ErrInvalidMD5Version
	}
	if numFrames <= 0 {
		return nil, ErrEmptyMD5Anim
	}
	if seenFrames != numFrames {
		return nil, fmt.Errorf("%w: %d frames declared, %d present", ErrMD5CountMismatch, numFrames, seenFrames)
	}
	if err := anim.validate(numJoints); err != nil {
		return nil, err
	}

	return anim, nil
}

// ParseMD5AnimFile parses an MD5 anim from a file path.
func ParseMD5AnimFile(path string) (*MD5Anim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MD5 anim file: %w", err)
	}
	return ParseMD5Anim(data)
}

func (a *MD5Anim) validate(numJoints int) error {
	if len(a.Hierarchy) != numJoints {
		return fmt.Errorf("%w: numJoints %d, hierarchy has %d", ErrMD5CountMismatch, numJoints, len(a.Hierarchy))
	}
	if len(a.BaseFrame) != numJoints {
		return fmt.Errorf("%w: numJoints %d, baseframe has %d", ErrMD5CountMismatch, numJoints, len(a.BaseFrame))
	}
	if len(a.Bounds) != 0 && len(a.Bounds) != len(a.Frames) {
		return fmt.Errorf("%w: %d frames, %d bounds", ErrMD5CountMismatch, len(a.Frames), len(a.Bounds))
	}

	for i, j := range a.Hierarchy {
		if j.Parent < -1 || j.Parent >= i {
			return fmt.Errorf("%w: joint %d (%s) has parent %d", ErrInvalidMD5Hierarchy, i, j.Name, j.Parent)
		}
		if j.StartIndex < 0 || j.StartIndex+j.ChannelCount() > a.NumAnimatedComponents {
			return fmt.Errorf("%w: joint %d (%s) reads components [%d, %d) of %d",
				ErrMD5CountMismatch, i, j.Name, j.StartIndex, j.StartIndex+j.ChannelCount(), a.NumAnimatedComponents)
		}
	}

	for i, f := range a.Frames {
		if len(f) != a.NumAnimatedComponents {
			return fmt.Errorf("%w: frame %d has %d components, want %d", ErrMD5CountMismatch, i, len(f), a.NumAnimatedComponents)
		}
	}
	return nil
}

// Duration returns the clip length in seconds.
func (a *MD5Anim) Duration() float32 {
	if a.FrameRate <= 0 {
		return 0
	}
	return float32(len(a.Frames)) / float32(a.FrameRate)
}

// GetJointIndex returns the hierarchy index of a named joint, or -1.
func (a *MD5Anim) GetJointIndex(name string) int {
	for i, j := range a.Hierarchy {
		if j.Name == name {
			return i
		}
	}
	return -1
}

func parseMD5Hierarchy(l *md5Lexer) ([]MD5HierarchyJoint, error) {
	if err := l.expect("{"); err != nil {
		return nil, err
	}
	var joints []MD5HierarchyJoint
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok == "}" {
			return joints, nil
		}

		j := MD5HierarchyJoint{Name: tok}
		if j.Parent, err = l.readInt(); err != nil {
			return nil, err
		}
		if j.Flags, err = l.readInt(); err != nil {
			return nil, err
		}
		if j.StartIndex, err = l.readInt(); err != nil {
			return nil, err
		}
		joints = append(joints, j)
	}
}

func parseMD5Bounds(l *md5Lexer) ([]MD5Bounds, error) {
	if err := l.expect("{"); err != nil {
		return nil, err
	}
	var bounds []MD5Bounds
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok == "}" {
			return bounds, nil
		}
		if tok != "(" {
			return nil, l.errorf("expected bounds, got %q", tok)
		}

		var b MD5Bounds
		for i := range b.Min {
			if b.Min[i], err = l.readFloat(); err != nil {
				return nil, err
			}
		}
		if err := l.expect(")"); err != nil {
			return nil, err
		}
		if b.Max, err = l.vec3(); err != nil {
			return nil, err
		}
		bounds = append(bounds, b)
	}
}

func parseMD5BaseFrame(l *md5Lexer) ([]MD5BaseJoint, error) {
	if err := l.expect("{"); err != nil {
		return nil, err
	}
	var base []MD5BaseJoint
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok == "}" {
			return base, nil
		}
		if tok != "(" {
			return nil, l.errorf("expected base joint, got %q", tok)
		}

		var j MD5BaseJoint
		for i := range j.Position {
			if j.Position[i], err = l.readFloat(); err != nil {
				return nil, err
			}
		}
		if err := l.expect(")"); err != nil {
			return nil, err
		}
		if j.Orientation, err = l.vec3(); err != nil {
			return nil, err
		}
		base = append(base, j)
	}
}

func parseMD5FloatBlock(l *md5Lexer) ([]float32, error) {
	if err := l.expect("{"); err != nil {
		return nil, err
	}
	values := []float32{}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok == "}" {
			return values, nil
		}
		f, err := l.parseFloat(tok)
		if err != nil {
			return nil, err
		}
		values = append(values, f)
	}
}
