package character

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/engine/md5"
	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// ErrUnknownClip is returned when a request names a clip the actor does not have.
var ErrUnknownClip = errors.New("unknown clip")

// State is the controller's playback state.
type State int

const (
	StateIdle     State = iota // No clip has been set
	StatePlaying               // Looping current
	StateQueued                // Playing current with next waiting
	StateBlending              // Crossfading current into the blend target
	StateEnding                // Rewinding current before switching clips
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateQueued:
		return "queued"
	case StateBlending:
		return "blending"
	case StateEnding:
		return "ending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Settings tunes transitions.
type Settings struct {
	// BlendRate is blend progress per second at unit speed.
	BlendRate float32
	// EndSpeed multiplies the rewind rate while ending.
	EndSpeed float32
	// EndReverseThreshold is the clip fraction below which ending rewinds.
	EndReverseThreshold float32
	// ForceReverseEnd rewinds on every end request regardless of position.
	ForceReverseEnd bool
}

// DefaultSettings returns the stock transition settings.
func DefaultSettings() Settings {
	return Settings{
		BlendRate:           0.4,
		EndSpeed:            2,
		EndReverseThreshold: 0.36,
		ForceReverseEnd:     true,
	}
}

// RequestOptions modify a clip request.
type RequestOptions struct {
	// Force switches immediately and restarts the clip from frame 0.
	Force bool
	// OnEnd runs once, the first time the clip completes a cycle.
	OnEnd func()
}

// Controller is a per-actor animation state machine over a set of named
// tracks. It is not safe for concurrent use; one goroutine ticks it.
type Controller struct {
	settings Settings
	speed    float32
	tracks   map[string]*Track

	current     *Track
	next        *Track
	blendTarget *Track
	ending      *Track

	blendProgress float32
	endDirection  float32
	state         State

	log *zap.Logger
}

// NewController creates an idle controller.
func NewController(settings Settings) *Controller {
	return &Controller{
		settings: settings,
		speed:    1,
		tracks:   make(map[string]*Track),
		log:      logger.Named("animation"),
	}
}

// AddTrack registers a track, replacing any with the same name.
func (c *Controller) AddTrack(t *Track) {
	c.tracks[t.Name] = t
}

// Track returns a registered track.
func (c *Controller) Track(name string) (*Track, bool) {
	t, ok := c.tracks[name]
	return t, ok
}

// SetSpeed sets the actor playback speed multiplier.
func (c *Controller) SetSpeed(speed float32) { c.speed = speed }

// Speed returns the actor playback speed multiplier.
func (c *Controller) Speed() float32 { return c.speed }

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Current returns the name of the playing clip, or "".
func (c *Controller) Current() string { return trackName(c.current) }

// Next returns the name of the queued clip, or "".
func (c *Controller) Next() string { return trackName(c.next) }

// BlendTarget returns the name of the clip being blended in, or "".
func (c *Controller) BlendTarget() string { return trackName(c.blendTarget) }

// Ending returns the name of the clip that follows the rewind, or "".
func (c *Controller) Ending() string { return trackName(c.ending) }

// BlendProgress returns crossfade progress in [0, 1].
func (c *Controller) BlendProgress() float32 { return c.blendProgress }

// EndDirection returns the rewind direction of a pending end request.
func (c *Controller) EndDirection() float32 { return c.endDirection }

func trackName(t *Track) string {
	if t == nil {
		return ""
	}
	return t.Name
}

// IsClipActive reports whether name is the playing clip.
func (c *Controller) IsClipActive(name string) bool {
	return c.current != nil && c.current.Name == name
}

// IsClipQueued reports whether name is waiting to play: queued, blending
// in, or following an end request.
func (c *Controller) IsClipQueued(name string) bool {
	for _, t := range []*Track{c.next, c.blendTarget, c.ending} {
		if t != nil && t.Name == name {
			return true
		}
	}
	return false
}

// IsClipPending reports whether a request for name would be redundant.
func (c *Controller) IsClipPending(name string) bool {
	return c.IsClipActive(name) || c.IsClipQueued(name)
}

// RequestClip asks for a clip to play. With no clip playing, or with Force,
// it switches at once and drops any pending transition. Otherwise the clip
// is queued behind the current one. Requests for a clip that is already
// playing or pending change nothing.
func (c *Controller) RequestClip(name string, opts RequestOptions) error {
	t, err := c.lookup(name)
	if err != nil {
		return err
	}

	if c.current == nil || opts.Force {
		if opts.Force {
			t.frame = 0
		}
		c.current = t
		c.next, c.blendTarget, c.ending = nil, nil, nil
		c.blendProgress, c.endDirection = 0, 0
		t.onEnd = opts.OnEnd
		c.setState(StatePlaying)
		return nil
	}

	if c.IsClipPending(name) {
		return nil
	}

	t.onEnd = opts.OnEnd
	c.next = t
	if c.state == StatePlaying {
		c.setState(StateQueued)
	}
	return nil
}

// RequestEnd finishes the current clip and then switches to name. When the
// current clip is early in its cycle it is rewound to frame 0 first; with
// ForceReverseEnd it always is. Otherwise this is a plain RequestClip.
func (c *Controller) RequestEnd(name string) error {
	t, err := c.lookup(name)
	if err != nil {
		return err
	}
	if c.current == nil || !c.current.loaded() {
		return c.RequestClip(name, RequestOptions{})
	}
	if c.IsClipPending(name) {
		return nil
	}

	dir := c.endHeuristic()
	if c.settings.ForceReverseEnd {
		dir = -1
	}
	if dir == 0 {
		return c.RequestClip(name, RequestOptions{})
	}

	c.ending = t
	c.next, c.blendTarget = nil, nil
	c.blendProgress = 0
	c.endDirection = dir
	c.setState(StateEnding)
	return nil
}

// endHeuristic picks a rewind direction from how far into its cycle the
// current clip is.
func (c *Controller) endHeuristic() float32 {
	fraction := c.current.frame / float32(c.current.clip().FrameCount())
	if fraction < c.settings.EndReverseThreshold {
		return -1
	}
	return 0
}

func (c *Controller) lookup(name string) (*Track, error) {
	t, ok := c.tracks[name]
	if !ok {
		c.log.Warn("unknown animation clip requested",
			zap.String("clip", name),
			zap.String("current", c.Current()))
		return nil, fmt.Errorf("%w: %q", ErrUnknownClip, name)
	}
	return t, nil
}

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	c.log.Debug("animation state change",
		zap.Stringer("from", c.state),
		zap.Stringer("to", s),
		zap.String("current", c.Current()))
	c.state = s
}

// Tick advances playback by dt seconds and returns the joints to skin
// against. It returns nil joints while the current clip is still loading.
func (c *Controller) Tick(dt float32) ([]md5.Joint, error) {
	if c.current == nil || !c.current.loaded() {
		return nil, nil
	}

	switch c.state {
	case StateEnding:
		return c.tickEnding(dt), nil
	case StateQueued:
		return c.tickQueued(dt)
	case StateBlending:
		return c.tickBlending(dt)
	default:
		c.play(c.current, dt)
		return c.current.joints(), nil
	}
}

func (c *Controller) frameStep(t *Track, dt float32) float32 {
	return dt * float32(t.clip().FrameRate()) * t.PlaybackSpeed * c.speed
}

// play advances t forward and reports whether it looped.
func (c *Controller) play(t *Track, dt float32) bool {
	looped := t.advance(c.frameStep(t, dt))
	if looped && t.onEnd != nil {
		fn := t.onEnd
		t.onEnd = nil
		fn()
	}
	return looped
}

func (c *Controller) tickEnding(dt float32) []md5.Joint {
	cur := c.current
	cur.frame += c.frameStep(cur, dt) * c.settings.EndSpeed * c.endDirection
	if int(cur.frame) > 0 {
		return cur.joints()
	}

	cur.frame = 0
	c.current = c.ending
	c.current.frame = 0
	c.ending = nil
	c.endDirection = 0
	if c.next != nil {
		c.setState(StateQueued)
	} else {
		c.setState(StatePlaying)
	}

	if !c.current.loaded() {
		return nil
	}
	return c.current.joints()
}

func (c *Controller) tickQueued(dt float32) ([]md5.Joint, error) {
	if !c.next.loaded() {
		c.play(c.current, dt)
		return c.current.joints(), nil
	}

	if c.current.smoothWith(c.next) {
		looped := c.play(c.current, dt)
		last := c.current.clip().FrameCount() - 1
		if !looped && c.current.clip().WrapFrame(int(c.current.frame)) != last {
			return c.current.joints(), nil
		}
	}

	c.blendTarget = c.next
	c.next = nil
	c.blendProgress = 0
	c.blendTarget.frame = 1
	c.setState(StateBlending)
	return c.tickBlending(0)
}

func (c *Controller) tickBlending(dt float32) ([]md5.Joint, error) {
	target := c.blendTarget
	if !target.loaded() {
		return c.current.joints(), nil
	}

	c.blendProgress = math.Clamp(c.blendProgress+dt*c.settings.BlendRate*target.PlaybackSpeed*c.speed, 0, 1)
	joints, err := md5.Blend(c.current.joints(), target.joints(), c.blendProgress)
	if err != nil {
		from := c.current.Name
		c.log.Error("animation blend aborted",
			zap.String("from", from),
			zap.String("to", target.Name),
			zap.Error(err))
		c.commitBlend()
		return nil, fmt.Errorf("blend %q into %q: %w", from, target.Name, err)
	}

	if c.blendProgress >= 1 {
		c.commitBlend()
	}
	return joints, nil
}

func (c *Controller) commitBlend() {
	c.current = c.blendTarget
	c.blendTarget = nil
	c.blendProgress = 0
	if c.next != nil {
		c.setState(StateQueued)
	} else {
		c.setState(StatePlaying)
	}
}
