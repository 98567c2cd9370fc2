// animtool is a CLI utility for inspecting skeletal animation assets and
// simulating actors.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/engine/character"
	"github.com/Faultbox/midgard-anim/internal/engine/md5"
	"github.com/Faultbox/midgard-anim/internal/engine/skeleton"
	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/formats"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := args[0]
	args = args[1:]

	switch command {
	case "info":
		cmdInfo(args)
	case "frame":
		cmdFrame(args)
	case "skin":
		cmdSkin(cfg, args)
	case "sample":
		cmdSample(args)
	case "play":
		cmdPlay(cfg, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`animtool - skeletal animation asset utility

Usage:
  animtool [flags] <command> [options]

Commands:
  info <file>                          Summarize an .md5anim, .md5mesh or .gltf/.glb file
  frame <file.md5anim> <frame>         Print reconstructed joints of one frame
  skin <file.md5mesh> <file.md5anim> <frame>
                                       Skin a mesh and print its first vertices
  sample <file.gltf> <clip> <seconds>  Print skin matrix translations at a time
  play <actor> [clip|end:clip ...]     Simulate a manifest actor, one request per second

Flags:
  --config <path>    Config file
  --debug            Debug logging
  --manifest <path>  Actor manifest for play
  --watch            Reload clips when their files change
  --workers <n>      Clip loader workers
  --speed <x>        Actor playback speed

Examples:
  animtool info walk.md5anim
  animtool frame walk.md5anim 12
  animtool skin -n 8 hero.md5mesh walk.md5anim 3.5
  animtool --manifest actors.yaml play hero walk run end:idle`)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func usage(line string) {
	fmt.Fprintln(os.Stderr, "Usage: animtool "+line)
	os.Exit(1)
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		usage("info <file>")
	}
	path := args[0]

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md5anim":
		anim, err := formats.ParseMD5AnimFile(path)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Anim:       %s\n", path)
		fmt.Printf("Frames:     %d @ %d fps (%.2fs)\n", len(anim.Frames), anim.FrameRate, anim.Duration())
		fmt.Printf("Components: %d\n", anim.NumAnimatedComponents)
		fmt.Printf("Joints:     %d\n", len(anim.Hierarchy))
		for i, j := range anim.Hierarchy {
			fmt.Printf("  %3d %-24s parent=%-3d flags=%06b start=%d\n", i, j.Name, j.Parent, j.Flags, j.StartIndex)
		}

	case ".md5mesh":
		mesh, err := formats.ParseMD5MeshFile(path)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Mesh:      %s\n", path)
		fmt.Printf("Joints:    %d\n", len(mesh.Joints))
		fmt.Printf("Meshes:    %d\n", len(mesh.Meshes))
		fmt.Printf("Vertices:  %d\n", mesh.GetTotalVertexCount())
		fmt.Printf("Triangles: %d\n", mesh.GetTotalTriangleCount())
		for i, m := range mesh.Meshes {
			fmt.Printf("  %3d %-24s verts=%d tris=%d weights=%d\n", i, m.Shader, len(m.Vertices), len(m.Triangles), len(m.Weights))
		}

	case ".gltf", ".glb":
		skin, err := formats.LoadGLTFSkin(path)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Skin:       %s (%s)\n", path, skin.Name)
		fmt.Printf("Joints:     %d\n", len(skin.Joints))
		fmt.Printf("Animations: %d\n", len(skin.Animations))
		for _, a := range skin.Animations {
			fmt.Printf("  %-24s channels=%d\n", a.Name, len(a.Channels))
		}

	default:
		fail(fmt.Errorf("unsupported file type: %s", path))
	}
}

func loadClip(path string) *md5.Clip {
	anim, err := formats.ParseMD5AnimFile(path)
	if err != nil {
		fail(err)
	}
	clip, err := md5.NewClip(filepath.Base(path), anim)
	if err != nil {
		fail(err)
	}
	return clip
}

func parseFloat(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		fail(fmt.Errorf("invalid number %q", s))
	}
	return float32(v)
}

func cmdFrame(args []string) {
	if len(args) < 2 {
		usage("frame <file.md5anim> <frame>")
	}
	clip := loadClip(args[0])
	frame := parseFloat(args[1])

	fmt.Printf("%s frame %.2f of %d\n", clip.Name(), frame, clip.FrameCount())
	for i, j := range clip.AnimationFrame(frame) {
		fmt.Printf("  %3d %-24s pos=(%8.3f %8.3f %8.3f) orient=(%6.3f %6.3f %6.3f %6.3f)\n",
			i, j.Name, j.Position.X, j.Position.Y, j.Position.Z,
			j.Orientation.X, j.Orientation.Y, j.Orientation.Z, j.Orientation.W)
	}
}

func cmdSkin(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("skin", flag.ExitOnError)
	limit := fs.Int("n", 4, "Print the first N vertices")
	fs.Parse(args)

	if fs.NArg() < 3 {
		usage("skin [-n N] <file.md5mesh> <file.md5anim> <frame>")
	}

	src, err := formats.ParseMD5MeshFile(fs.Arg(0))
	if err != nil {
		fail(err)
	}
	mesh, err := md5.NewMesh(src, cfg.Animation.MaxWeights)
	if err != nil {
		fail(err)
	}
	if err := mesh.ValidateWeights(0.001); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	clip := loadClip(fs.Arg(1))
	buf := mesh.NewVertexBuffer()
	if err := mesh.Skin(clip.AnimationFrame(parseFloat(fs.Arg(2))), buf, 0); err != nil {
		fail(err)
	}

	n := min(*limit, mesh.VertexCount())
	fmt.Printf("%d vertices, showing %d\n", mesh.VertexCount(), n)
	for i := 0; i < n; i++ {
		v := buf[i*md5.VertexStride:]
		fmt.Printf("  %4d pos=(%8.3f %8.3f %8.3f) uv=(%5.3f %5.3f) n=(%6.3f %6.3f %6.3f) t=(%6.3f %6.3f %6.3f)\n", i,
			v[md5.PositionOffset], v[md5.PositionOffset+1], v[md5.PositionOffset+2],
			v[md5.UVOffset], v[md5.UVOffset+1],
			v[md5.NormalOffset], v[md5.NormalOffset+1], v[md5.NormalOffset+2],
			v[md5.TangentOffset], v[md5.TangentOffset+1], v[md5.TangentOffset+2])
	}
}

func cmdSample(args []string) {
	if len(args) < 3 {
		usage("sample <file.gltf> <clip> <seconds>")
	}

	skin, err := formats.LoadGLTFSkin(args[0])
	if err != nil {
		fail(err)
	}
	_, clips, err := skeleton.FromGLTF(skin)
	if err != nil {
		fail(err)
	}

	var clip *skeleton.Clip
	for _, c := range clips {
		if c.Name() == args[1] {
			clip = c
		}
	}
	if clip == nil {
		fail(fmt.Errorf("%w: %q", character.ErrUnknownClip, args[1]))
	}

	anim, err := skeleton.NewAnimator(clip)
	if err != nil {
		fail(err)
	}
	if err := anim.SampleAt(parseFloat(args[2])); err != nil {
		fail(err)
	}

	fmt.Printf("%s at %.3fs of %.3fs\n", clip.Name(), anim.Elapsed(), clip.Duration())
	joints := anim.Skeleton().Joints
	for i, m := range anim.SkinMatrices() {
		t := m.Translation()
		fmt.Printf("  %3d %-24s skin.t=(%8.3f %8.3f %8.3f)\n", i, joints[i].Name, t.X, t.Y, t.Z)
	}
}
