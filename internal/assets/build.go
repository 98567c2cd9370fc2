package assets

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/engine/character"
)

// BuildController creates a controller with one track per manifest clip.
// Clips load in the background; the initial clip, if any, is requested
// right away and starts playing once it has loaded.
func BuildController(actor ActorManifest, loader *Loader, settings character.Settings) (*character.Controller, error) {
	c := character.NewController(settings)
	if actor.Speed > 0 {
		c.SetSpeed(actor.Speed)
	}

	for _, cm := range actor.Clips {
		track := character.NewTrack(cm.Name, loader.LoadClip(cm.File), cm.SmoothTransitions...)
		if cm.PlaybackSpeed > 0 {
			track.PlaybackSpeed = cm.PlaybackSpeed
		}
		c.AddTrack(track)
	}

	if actor.Initial != "" {
		if err := c.RequestClip(actor.Initial, character.RequestOptions{}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BuildActor loads an actor's mesh and wires a controller and locomotion
// clips around it.
func BuildActor(actor ActorManifest, loader *Loader, settings character.Settings, maxWeights int, terrain character.TerrainQuery) (*character.FlatSkinned, error) {
	mesh, err := loader.LoadMesh(actor.Mesh, maxWeights)
	if err != nil {
		return nil, fmt.Errorf("loading mesh %s: %w", actor.Mesh, err)
	}
	c, err := BuildController(actor, loader, settings)
	if err != nil {
		return nil, err
	}

	a := character.NewFlatSkinned(c, mesh, terrain)
	a.Body().Speed = c.Speed()
	a.Locomotion = character.Locomotion{
		Idle: actor.Locomotion.Idle,
		Walk: actor.Locomotion.Walk,
	}
	return a, nil
}
