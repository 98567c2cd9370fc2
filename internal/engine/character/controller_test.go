package character

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/midgard-anim/internal/engine/md5"
	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/formats"
)

// At 8 fps a 0.125s tick advances exactly one frame.
const (
	testFrameRate = 8
	tick          = float32(0.125)
)

// testClip builds a clip whose root X position equals base+frame, so the
// sampled pose identifies the clip and frame it came from.
func testClip(t *testing.T, name string, frames int, base float32) *md5.Clip {
	t.Helper()
	return testClipJoints(t, name, frames, base, 1)
}

func testClipJoints(t *testing.T, name string, frames int, base float32, joints int) *md5.Clip {
	t.Helper()
	anim := &formats.MD5Anim{
		Version:               formats.MD5Version,
		FrameRate:             testFrameRate,
		NumAnimatedComponents: 1,
		Hierarchy:             []formats.MD5HierarchyJoint{{Name: "root", Parent: -1, Flags: formats.MD5ChannelPosX}},
		BaseFrame:             make([]formats.MD5BaseJoint, joints),
	}
	for i := 1; i < joints; i++ {
		anim.Hierarchy = append(anim.Hierarchy, formats.MD5HierarchyJoint{Name: "bone", Parent: i - 1})
	}
	for f := 0; f < frames; f++ {
		anim.Frames = append(anim.Frames, []float32{base + float32(f)})
	}
	c, err := md5.NewClip(name, anim)
	if err != nil {
		t.Fatalf("NewClip(%q) error = %v", name, err)
	}
	return c
}

type loadingSource struct {
	clip  *md5.Clip
	ready bool
}

func (s *loadingSource) Loaded() bool    { return s.ready }
func (s *loadingSource) Clip() *md5.Clip { return s.clip }

// newTestController has walk (10 frames), wait (10 frames, X from 100),
// run (10 frames) and jump (4 frames, smooth partner of run).
func newTestController(t *testing.T) *Controller {
	t.Helper()
	c := NewController(DefaultSettings())
	c.AddTrack(NewTrack("walk", Ready(testClip(t, "walk", 10, 0))))
	c.AddTrack(NewTrack("wait", Ready(testClip(t, "wait", 10, 100))))
	c.AddTrack(NewTrack("run", Ready(testClip(t, "run", 10, 200))))
	c.AddTrack(NewTrack("jump", Ready(testClip(t, "jump", 4, 300)), "run"))
	return c
}

func mustRequest(t *testing.T, c *Controller, name string) {
	t.Helper()
	if err := c.RequestClip(name, RequestOptions{}); err != nil {
		t.Fatalf("RequestClip(%q) error = %v", name, err)
	}
}

func mustTick(t *testing.T, c *Controller) []md5.Joint {
	t.Helper()
	joints, err := c.Tick(tick)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	return joints
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StatePlaying, "playing"},
		{StateQueued, "queued"},
		{StateBlending, "blending"},
		{StateEnding, "ending"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestController_IdleTick(t *testing.T) {
	c := newTestController(t)
	joints, err := c.Tick(tick)
	if joints != nil || err != nil {
		t.Errorf("idle Tick() = %v, %v; want nil, nil", joints, err)
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %v, want idle", c.State())
	}
}

func TestController_FirstRequestAdopts(t *testing.T) {
	c := newTestController(t)
	mustRequest(t, c, "walk")

	if c.State() != StatePlaying || c.Current() != "walk" {
		t.Fatalf("state = %v current = %q, want playing walk", c.State(), c.Current())
	}

	joints := mustTick(t, c)
	if joints[0].Position.X != 1 {
		t.Errorf("after one tick X = %v, want 1", joints[0].Position.X)
	}
}

func TestController_PlayingLoops(t *testing.T) {
	c := newTestController(t)
	mustRequest(t, c, "jump")

	for i := 0; i < 5; i++ {
		mustTick(t, c)
	}
	track, _ := c.Track("jump")
	if track.Frame() != 1 {
		t.Errorf("frame after 5 ticks of a 4 frame clip = %v, want 1", track.Frame())
	}
}

func TestController_ActorSpeed(t *testing.T) {
	c := newTestController(t)
	mustRequest(t, c, "walk")
	c.SetSpeed(2)

	mustTick(t, c)
	track, _ := c.Track("walk")
	if track.Frame() != 2 {
		t.Errorf("frame at speed 2 = %v, want 2", track.Frame())
	}
}

func TestController_UnknownClip(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	c := newTestController(t)
	mustRequest(t, c, "walk")

	if err := c.RequestClip("fly", RequestOptions{}); !errors.Is(err, ErrUnknownClip) {
		t.Errorf("RequestClip(fly) error = %v, want ErrUnknownClip", err)
	}
	if err := c.RequestEnd("fly"); !errors.Is(err, ErrUnknownClip) {
		t.Errorf("RequestEnd(fly) error = %v, want ErrUnknownClip", err)
	}
	if c.State() != StatePlaying || c.Current() != "walk" || c.Next() != "" {
		t.Errorf("state changed to %v current=%q next=%q", c.State(), c.Current(), c.Next())
	}

	entries := logs.FilterMessage("unknown animation clip requested").All()
	if len(entries) != 2 {
		t.Fatalf("logged %d warnings, want 2", len(entries))
	}
	if got := entries[0].ContextMap()["clip"]; got != "fly" {
		t.Errorf("logged clip = %v, want fly", got)
	}
}

// A non-partner request blends in on the very next tick without waiting for
// the current clip to finish.
func TestController_ImmediateBlend(t *testing.T) {
	c := newTestController(t)
	mustRequest(t, c, "walk")
	for i := 0; i < 3; i++ {
		mustTick(t, c)
	}

	mustRequest(t, c, "wait")
	if c.State() != StateQueued || c.Next() != "wait" {
		t.Fatalf("state = %v next = %q, want queued wait", c.State(), c.Next())
	}

	joints := mustTick(t, c)
	if c.State() != StateBlending || c.BlendTarget() != "wait" || c.Next() != "" {
		t.Fatalf("state = %v target = %q next = %q, want blending into wait", c.State(), c.BlendTarget(), c.Next())
	}
	if c.BlendProgress() != 0 {
		t.Errorf("BlendProgress() = %v, want 0", c.BlendProgress())
	}
	if joints[0].Position.X != 3 {
		t.Errorf("blend start X = %v, want walk frame 3", joints[0].Position.X)
	}

	walk, _ := c.Track("walk")
	wait, _ := c.Track("wait")
	if wait.Frame() != 1 {
		t.Errorf("blend target frame = %v, want 1", wait.Frame())
	}

	var last []md5.Joint
	for i := 0; i < 40 && c.State() == StateBlending; i++ {
		last = mustTick(t, c)
		if c.State() == StateBlending {
			if walk.Frame() != 3 || wait.Frame() != 1 {
				t.Fatalf("frames moved during blend: walk=%v wait=%v", walk.Frame(), wait.Frame())
			}
		}
	}

	if c.State() != StatePlaying || c.Current() != "wait" || c.BlendTarget() != "" {
		t.Fatalf("state = %v current = %q target = %q, want playing wait", c.State(), c.Current(), c.BlendTarget())
	}
	if c.BlendProgress() != 0 {
		t.Errorf("BlendProgress() after commit = %v, want 0", c.BlendProgress())
	}
	if x := last[0].Position.X; x < 100.999 || x > 101.001 {
		t.Errorf("final blend X = %v, want wait frame 1", x)
	}
}

func TestController_BlendProgressRate(t *testing.T) {
	c := newTestController(t)
	mustRequest(t, c, "walk")
	mustRequest(t, c, "wait")
	mustTick(t, c)

	mustTick(t, c)
	want := tick * 0.4
	if got := c.BlendProgress(); got < want-1e-6 || got > want+1e-6 {
		t.Errorf("BlendProgress() = %v, want %v", got, want)
	}
}

// Smooth-transition partners wait for the current clip's last frame.
func TestController_SmoothTransitionWaits(t *testing.T) {
	c := newTestController(t)
	mustRequest(t, c, "run")
	mustRequest(t, c, "jump")

	run, _ := c.Track("run")
	for i := 1; i <= 8; i++ {
		mustTick(t, c)
		if c.State() != StateQueued {
			t.Fatalf("tick %d: state = %v at run frame %v, want queued", i, c.State(), run.Frame())
		}
	}

	mustTick(t, c)
	if c.State() != StateBlending || c.BlendTarget() != "jump" {
		t.Fatalf("state = %v target = %q, want blending into jump", c.State(), c.BlendTarget())
	}
	if int(run.Frame()) != 9 {
		t.Errorf("blend began at run frame %v, want 9", run.Frame())
	}
}

func TestController_SmoothCheckIsSymmetric(t *testing.T) {
	c := newTestController(t)
	// Only jump lists run, so jump to run is smooth as well.
	mustRequest(t, c, "jump")
	mustRequest(t, c, "run")

	mustTick(t, c)
	if c.State() != StateQueued {
		t.Errorf("state = %v, want queued", c.State())
	}
}

func TestController_EndRewindsThenSwitches(t *testing.T) {
	c := NewController(DefaultSettings())
	c.AddTrack(NewTrack("walk", Ready(testClip(t, "walk", 100, 0))))
	c.AddTrack(NewTrack("wait", Ready(testClip(t, "wait", 10, 100))))
	mustRequest(t, c, "walk")
	for i := 0; i < 10; i++ {
		mustTick(t, c)
	}

	if err := c.RequestEnd("wait"); err != nil {
		t.Fatalf("RequestEnd() error = %v", err)
	}
	if c.State() != StateEnding || c.Ending() != "wait" || c.EndDirection() != -1 {
		t.Fatalf("state = %v ending = %q dir = %v", c.State(), c.Ending(), c.EndDirection())
	}

	walk, _ := c.Track("walk")
	prev := walk.Frame()
	for i := 0; i < 20 && c.State() == StateEnding; i++ {
		joints := mustTick(t, c)
		if c.State() != StateEnding {
			break
		}
		if walk.Frame() >= prev {
			t.Fatalf("frame went from %v to %v while ending", prev, walk.Frame())
		}
		if joints[0].Position.X != walk.Frame() {
			t.Errorf("skinned X = %v, want %v", joints[0].Position.X, walk.Frame())
		}
		prev = walk.Frame()
	}

	wait, _ := c.Track("wait")
	if c.State() != StatePlaying || c.Current() != "wait" || wait.Frame() != 0 {
		t.Errorf("state = %v current = %q frame = %v, want playing wait at 0", c.State(), c.Current(), wait.Frame())
	}
}

func TestController_EndDirection(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		ticks     int
		wantState State
	}{
		{"early forced", true, 10, StateEnding},
		{"late forced", true, 50, StateEnding},
		{"early heuristic", false, 10, StateEnding},
		{"late heuristic", false, 50, StateQueued},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			settings.ForceReverseEnd = tt.force
			c := NewController(settings)
			c.AddTrack(NewTrack("walk", Ready(testClip(t, "walk", 100, 0))))
			c.AddTrack(NewTrack("wait", Ready(testClip(t, "wait", 10, 100))))
			mustRequest(t, c, "walk")
			for i := 0; i < tt.ticks; i++ {
				mustTick(t, c)
			}

			if err := c.RequestEnd("wait"); err != nil {
				t.Fatalf("RequestEnd() error = %v", err)
			}
			if c.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", c.State(), tt.wantState)
			}
			if !c.IsClipQueued("wait") {
				t.Error("wait should be queued")
			}
		})
	}
}

func TestController_EndWithoutCurrent(t *testing.T) {
	c := newTestController(t)
	if err := c.RequestEnd("wait"); err != nil {
		t.Fatalf("RequestEnd() error = %v", err)
	}
	if c.State() != StatePlaying || c.Current() != "wait" {
		t.Errorf("state = %v current = %q, want playing wait", c.State(), c.Current())
	}
}

func TestController_RepeatedRequestsAreIdempotent(t *testing.T) {
	c := newTestController(t)
	mustRequest(t, c, "wait")
	for i := 0; i < 5; i++ {
		mustRequest(t, c, "wait")
	}
	if c.State() != StatePlaying || c.Next() != "" {
		t.Fatalf("repeat of current: state = %v next = %q", c.State(), c.Next())
	}

	mustRequest(t, c, "walk")
	mustRequest(t, c, "walk")
	if c.State() != StateQueued || c.Next() != "walk" {
		t.Fatalf("repeat of next: state = %v next = %q", c.State(), c.Next())
	}

	mustTick(t, c)
	for i := 0; i < 5; i++ {
		mustRequest(t, c, "walk")
	}
	if c.State() != StateBlending || c.Next() != "" || c.BlendTarget() != "walk" {
		t.Fatalf("repeat of blend target: state = %v next = %q target = %q", c.State(), c.Next(), c.BlendTarget())
	}
	if !c.IsClipQueued("walk") || c.IsClipActive("walk") || !c.IsClipActive("wait") {
		t.Error("unexpected active/queued report during blend")
	}
}

func TestController_ForceInterruptsBlend(t *testing.T) {
	c := newTestController(t)
	mustRequest(t, c, "walk")
	mustRequest(t, c, "wait")
	mustTick(t, c)
	mustTick(t, c)

	run, _ := c.Track("run")
	run.frame = 5
	if err := c.RequestClip("run", RequestOptions{Force: true}); err != nil {
		t.Fatalf("RequestClip() error = %v", err)
	}
	if c.State() != StatePlaying || c.Current() != "run" || c.BlendTarget() != "" || c.BlendProgress() != 0 {
		t.Errorf("state = %v current = %q target = %q progress = %v", c.State(), c.Current(), c.BlendTarget(), c.BlendProgress())
	}
	if run.Frame() != 0 {
		t.Errorf("forced clip frame = %v, want 0", run.Frame())
	}
}

func TestController_QueueDuringBlend(t *testing.T) {
	c := newTestController(t)
	mustRequest(t, c, "walk")
	mustRequest(t, c, "wait")
	mustTick(t, c)
	mustRequest(t, c, "run")

	for i := 0; i < 40 && c.BlendTarget() == "wait"; i++ {
		mustTick(t, c)
	}
	if c.Current() != "wait" || c.State() != StateQueued || c.Next() != "run" {
		t.Errorf("after blend: state = %v current = %q next = %q, want queued run", c.State(), c.Current(), c.Next())
	}
}

func TestController_UnloadedClipIsSkipped(t *testing.T) {
	src := &loadingSource{clip: testClip(t, "walk", 10, 0)}
	c := NewController(DefaultSettings())
	c.AddTrack(NewTrack("walk", src))
	mustRequest(t, c, "walk")

	for i := 0; i < 3; i++ {
		if joints := mustTick(t, c); joints != nil {
			t.Fatal("Tick() skinned an unloaded clip")
		}
	}
	walk, _ := c.Track("walk")
	if walk.Frame() != 0 {
		t.Errorf("unloaded clip advanced to %v", walk.Frame())
	}

	src.ready = true
	if joints := mustTick(t, c); joints == nil || joints[0].Position.X != 1 {
		t.Errorf("Tick() after load = %v, want X = 1", joints)
	}
}

func TestController_UnloadedNextWaits(t *testing.T) {
	src := &loadingSource{clip: testClip(t, "wait", 10, 100)}
	c := NewController(DefaultSettings())
	c.AddTrack(NewTrack("walk", Ready(testClip(t, "walk", 10, 0))))
	c.AddTrack(NewTrack("wait", src))
	mustRequest(t, c, "walk")
	mustRequest(t, c, "wait")

	mustTick(t, c)
	mustTick(t, c)
	if c.State() != StateQueued {
		t.Fatalf("state = %v, want queued while next loads", c.State())
	}

	src.ready = true
	mustTick(t, c)
	if c.State() != StateBlending {
		t.Errorf("state = %v, want blending once loaded", c.State())
	}
}

func TestController_OnEndFiresOnce(t *testing.T) {
	c := newTestController(t)
	calls := 0
	if err := c.RequestClip("jump", RequestOptions{OnEnd: func() { calls++ }}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		mustTick(t, c)
	}
	if calls != 0 {
		t.Fatalf("OnEnd fired before the cycle completed")
	}
	for i := 0; i < 6; i++ {
		mustTick(t, c)
	}
	if calls != 1 {
		t.Errorf("OnEnd calls = %d, want 1", calls)
	}
}

func TestController_BlendMismatch(t *testing.T) {
	c := NewController(DefaultSettings())
	c.AddTrack(NewTrack("walk", Ready(testClip(t, "walk", 10, 0))))
	c.AddTrack(NewTrack("crawl", Ready(testClipJoints(t, "crawl", 10, 0, 2))))
	mustRequest(t, c, "walk")
	mustRequest(t, c, "crawl")

	joints, err := c.Tick(tick)
	if !errors.Is(err, md5.ErrJointCountMismatch) {
		t.Fatalf("Tick() error = %v, want ErrJointCountMismatch", err)
	}
	if joints != nil {
		t.Error("Tick() returned joints for an aborted blend")
	}
	if c.Current() != "crawl" || c.State() != StatePlaying {
		t.Errorf("state = %v current = %q, want playing crawl", c.State(), c.Current())
	}
}
