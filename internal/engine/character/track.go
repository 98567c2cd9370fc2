// Package character drives per-actor animation: a clip controller state
// machine, and actors that turn its output into skinned geometry.
package character

import (
	gomath "math"
	"slices"

	"github.com/Faultbox/midgard-anim/internal/engine/md5"
)

// ClipSource supplies a clip that may still be loading.
type ClipSource interface {
	Loaded() bool
	Clip() *md5.Clip
}

type readyClip struct{ clip *md5.Clip }

func (r readyClip) Loaded() bool    { return r.clip != nil }
func (r readyClip) Clip() *md5.Clip { return r.clip }

// Ready wraps an already parsed clip as a ClipSource.
func Ready(clip *md5.Clip) ClipSource {
	return readyClip{clip: clip}
}

// Track is a named clip slot on an actor.
type Track struct {
	Name              string
	Source            ClipSource
	PlaybackSpeed     float32
	SmoothTransitions []string

	frame float32
	onEnd func()
}

// NewTrack creates a track playing at normal speed.
func NewTrack(name string, src ClipSource, smooth ...string) *Track {
	return &Track{
		Name:              name,
		Source:            src,
		PlaybackSpeed:     1,
		SmoothTransitions: smooth,
	}
}

// Frame returns the fractional playback position.
func (t *Track) Frame() float32 { return t.frame }

func (t *Track) loaded() bool {
	return t.Source != nil && t.Source.Loaded()
}

func (t *Track) clip() *md5.Clip {
	return t.Source.Clip()
}

// smoothWith reports whether either track lists the other as a smooth
// transition partner.
func (t *Track) smoothWith(other *Track) bool {
	return slices.Contains(t.SmoothTransitions, other.Name) ||
		slices.Contains(other.SmoothTransitions, t.Name)
}

// joints samples the track at its current fractional frame.
func (t *Track) joints() []md5.Joint {
	return t.clip().AnimationFrame(t.frame)
}

// advance moves the frame by df and wraps it into [0, frameCount). It
// reports whether a loop boundary was crossed.
func (t *Track) advance(df float32) bool {
	n := float32(t.clip().FrameCount())
	t.frame += df
	if t.frame < n {
		return false
	}
	t.frame -= n * float32(gomath.Floor(float64(t.frame/n)))
	return true
}
