package assets

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalidManifest is returned for manifests that parse but make no sense.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest lists the actors an application can spawn.
type Manifest struct {
	Actors map[string]ActorManifest `yaml:"actors"`
}

// ActorManifest describes one actor's mesh and clips.
type ActorManifest struct {
	Mesh       string             `yaml:"mesh"`
	Initial    string             `yaml:"initial"`
	Speed      float32            `yaml:"speed"`
	Locomotion LocomotionManifest `yaml:"locomotion"`
	Clips      []ClipManifest     `yaml:"clips"`
}

// LocomotionManifest names the clips used while walking and standing.
type LocomotionManifest struct {
	Idle string `yaml:"idle"`
	Walk string `yaml:"walk"`
}

// ClipManifest is one named clip of an actor.
type ClipManifest struct {
	Name              string   `yaml:"name"`
	File              string   `yaml:"file"`
	PlaybackSpeed     float32  `yaml:"playback_speed"`
	SmoothTransitions []string `yaml:"smooth_transitions"`
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest YAML and fills defaults.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	for name, actor := range m.Actors {
		if actor.Speed == 0 {
			actor.Speed = 1
		}
		seen := make(map[string]bool, len(actor.Clips))
		for i := range actor.Clips {
			c := &actor.Clips[i]
			if c.Name == "" {
				c.Name = ClipName(c.File)
			}
			if c.Name == "" || c.File == "" {
				return nil, fmt.Errorf("%w: actor %q clip %d needs a name and a file", ErrInvalidManifest, name, i)
			}
			if seen[c.Name] {
				return nil, fmt.Errorf("%w: actor %q has clip %q twice", ErrInvalidManifest, name, c.Name)
			}
			seen[c.Name] = true
			if c.PlaybackSpeed == 0 {
				c.PlaybackSpeed = 1
			}
		}
		for _, ref := range []string{actor.Initial, actor.Locomotion.Idle, actor.Locomotion.Walk} {
			if ref != "" && !seen[ref] {
				return nil, fmt.Errorf("%w: actor %q references unknown clip %q", ErrInvalidManifest, name, ref)
			}
		}
		m.Actors[name] = actor
	}

	return &m, nil
}

// ActorNames returns the actor names in sorted order.
func (m *Manifest) ActorNames() []string {
	names := make([]string, 0, len(m.Actors))
	for name := range m.Actors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actor returns the named actor.
func (m *Manifest) Actor(name string) (ActorManifest, bool) {
	a, ok := m.Actors[name]
	return a, ok
}
