package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/assets"
	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/engine/character"
	"github.com/Faultbox/midgard-anim/internal/logger"
)

// request is one scheduled controller call parsed from the command line.
type request struct {
	at   float32
	clip string
	end  bool
}

func parseRequests(args []string, every float32) []request {
	reqs := make([]request, 0, len(args))
	for i, arg := range args {
		r := request{at: float32(i) * every, clip: arg}
		if name, ok := strings.CutPrefix(arg, "end:"); ok {
			r.clip, r.end = name, true
		}
		reqs = append(reqs, r)
	}
	return reqs
}

func settingsFrom(cfg *config.Config) character.Settings {
	return character.Settings{
		BlendRate:           cfg.Animation.BlendRate,
		EndSpeed:            cfg.Animation.EndSpeed,
		EndReverseThreshold: cfg.Animation.EndReverseThreshold,
		ForceReverseEnd:     cfg.Animation.ForceReverseEnd,
	}
}

// newLoader searches the manifest's directory, then the configured clip
// directories, which take priority.
func newLoader(cfg *config.Config) *assets.Loader {
	m := assets.NewManager()
	dirs := append([]string{filepath.Dir(cfg.Assets.Manifest)}, cfg.Assets.ClipDirs...)
	for _, dir := range dirs {
		if err := m.AddDir(dir); err != nil {
			logger.Warn("skipping clip directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	return assets.NewLoader(m, cfg.Assets.LoadWorkers)
}

func cmdPlay(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	duration := fs.Float64("t", 5, "Simulated seconds")
	every := fs.Float64("every", 1, "Seconds between clip requests")
	realtime := fs.Bool("realtime", false, "Tick at wall-clock rate")
	fs.Parse(args)

	if fs.NArg() < 1 {
		usage("play [-t seconds] [-every seconds] [-realtime] <actor> [clip|end:clip ...]")
	}

	manifest, err := assets.LoadManifest(cfg.Assets.Manifest)
	if err != nil {
		fail(err)
	}
	actor, ok := manifest.Actor(fs.Arg(0))
	if !ok {
		fail(fmt.Errorf("actor %q not in %s (have %s)", fs.Arg(0), cfg.Assets.Manifest,
			strings.Join(manifest.ActorNames(), ", ")))
	}

	loader := newLoader(cfg)
	defer loader.Manager().Close()

	a, err := assets.BuildActor(actor, loader, settingsFrom(cfg), cfg.Animation.MaxWeights, nil)
	if err != nil {
		fail(err)
	}
	a.Body().Speed *= cfg.Animation.ActorPlaybackSpeed
	loader.Wait()

	var events <-chan string
	if cfg.Assets.Watch {
		w, err := assets.NewWatcher(loader)
		if err != nil {
			fail(err)
		}
		defer w.Close()
		events = w.Events
		logger.Info("watching clip directories", zap.Strings("dirs", loader.Manager().Dirs()))
	}

	dt := 1 / float32(cfg.Animation.TickRate)
	var ticker *time.Ticker
	if *realtime {
		ticker = time.NewTicker(time.Duration(float64(time.Second) * float64(dt)))
		defer ticker.Stop()
	}

	fmt.Printf("actor %s (%s)\n", fs.Arg(0), a.ID())

	c := a.Controller()
	reqs := parseRequests(fs.Args()[1:], float32(*every))
	lastState, lastClip := c.State(), c.Current()
	fmt.Printf("%7.3fs %-8s %s\n", 0.0, lastState, lastClip)

	for now := float32(0); now < float32(*duration); now += dt {
		for len(reqs) > 0 && reqs[0].at <= now {
			r := reqs[0]
			reqs = reqs[1:]
			if r.end {
				err = c.RequestEnd(r.clip)
			} else {
				err = c.RequestClip(r.clip, character.RequestOptions{})
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}

		if _, err := a.Advance(dt); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		if s, cur := c.State(), c.Current(); s != lastState || cur != lastClip {
			fmt.Printf("%7.3fs %-8s %s", now+dt, s, cur)
			switch s {
			case character.StateQueued:
				fmt.Printf(" -> %s", c.Next())
			case character.StateBlending:
				fmt.Printf(" -> %s", c.BlendTarget())
			case character.StateEnding:
				fmt.Printf(" ~ %s (dir %.0f)", c.Ending(), c.EndDirection())
			}
			fmt.Println()
			lastState, lastClip = s, cur
		}

		if ticker != nil {
			<-ticker.C
		}
	drain:
		for {
			select {
			case path := <-events:
				fmt.Printf("%7.3fs reloaded %s\n", now+dt, path)
			default:
				break drain
			}
		}
	}
}
