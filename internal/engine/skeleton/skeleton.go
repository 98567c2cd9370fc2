// Package skeleton implements tree-hierarchy skeletons sampled from keyframe
// clips and composed into per-joint skin matrices.
package skeleton

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Skeleton errors.
var (
	ErrSkeletonMismatch = errors.New("joints do not match")
	ErrEmptyClip        = errors.New("clip has no keyframes")
	ErrInvalidSkeleton  = errors.New("invalid skeleton")
	ErrInvalidKeyframe  = errors.New("invalid keyframe")
)

// Joint is a node of a skeleton. Children are indices into the owning
// skeleton's joint list.
type Joint struct {
	Name        string
	Index       int
	Parent      int // -1 for the root
	Children    []int
	InverseBind math.Mat4

	// Local holds the skin matrix computed by the last pose evaluation.
	Local math.Mat4
}

// Skeleton is an arena of joints with a single root.
type Skeleton struct {
	Joints []Joint
	Root   int
}

// NewSkeleton builds a skeleton from joints whose Parent fields describe the
// tree. Index and Children are rebuilt from the parent links. A zero
// InverseBind is replaced by identity.
func NewSkeleton(joints []Joint) (*Skeleton, error) {
	if len(joints) == 0 {
		return nil, fmt.Errorf("%w: no joints", ErrInvalidSkeleton)
	}

	s := &Skeleton{Joints: make([]Joint, len(joints)), Root: -1}
	for i, j := range joints {
		if j.Parent < -1 || j.Parent >= len(joints) || j.Parent == i {
			return nil, fmt.Errorf("%w: joint %d (%s) has parent %d", ErrInvalidSkeleton, i, j.Name, j.Parent)
		}
		if j.Parent == -1 {
			if s.Root >= 0 {
				return nil, fmt.Errorf("%w: joints %d and %d are both roots", ErrInvalidSkeleton, s.Root, i)
			}
			s.Root = i
		}

		j.Index = i
		j.Children = nil
		if j.InverseBind == (math.Mat4{}) {
			j.InverseBind = math.Identity()
		}
		j.Local = math.Identity()
		s.Joints[i] = j
	}
	if s.Root < 0 {
		return nil, fmt.Errorf("%w: no root joint", ErrInvalidSkeleton)
	}

	// With one root and every parent in range, a joint is unreachable only
	// if it sits on a cycle.
	for i := range s.Joints {
		p := i
		for steps := 0; p != -1; steps++ {
			if steps > len(s.Joints) {
				return nil, fmt.Errorf("%w: joint %d (%s) is part of a cycle", ErrInvalidSkeleton, i, s.Joints[i].Name)
			}
			p = s.Joints[p].Parent
		}
	}

	for i, j := range s.Joints {
		if j.Parent >= 0 {
			s.Joints[j.Parent].Children = append(s.Joints[j.Parent].Children, i)
		}
	}

	return s, nil
}

// Clone returns a deep copy, so each animated actor can own its mutable
// skin matrices.
func (s *Skeleton) Clone() *Skeleton {
	c := &Skeleton{Joints: make([]Joint, len(s.Joints)), Root: s.Root}
	for i, j := range s.Joints {
		j.Children = append([]int(nil), j.Children...)
		c.Joints[i] = j
	}
	return c
}

// JointCount returns the number of joints.
func (s *Skeleton) JointCount() int {
	return len(s.Joints)
}

// JointByName returns the index of the named joint.
func (s *Skeleton) JointByName(name string) (int, bool) {
	for i := range s.Joints {
		if s.Joints[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// SkinMatrices returns a copy of every joint's current skin matrix in joint
// index order.
func (s *Skeleton) SkinMatrices() []math.Mat4 {
	out := make([]math.Mat4, len(s.Joints))
	for i := range s.Joints {
		out[i] = s.Joints[i].Local
	}
	return out
}
