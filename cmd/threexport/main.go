// threexport is a CLI utility for exporting 3D scenes to the Three.js JSON
// model format.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/threexport/internal/config"
	"github.com/Faultbox/threexport/internal/logger"
	"github.com/Faultbox/threexport/pkg/gltfscene"
	"github.com/Faultbox/threexport/pkg/scene"
	"github.com/Faultbox/threexport/pkg/threejs"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "export", "x":
		cmdExport(args)
	case "info":
		cmdInfo(args)
	case "options":
		cmdOptions(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`threexport - Three.js JSON model exporter

Usage:
  threexport <command> [options]

Commands:
  export [options] <scene> [out.json]  Export a scene to a Three.js JSON document
  info <scene>                         Show scene contents
  options                              List export option string tokens
  config [-init] [-o path]             Show or write exporter configuration

Scenes are glTF files (.gltf, .glb) or stage files (.yaml, .yml).

Examples:
  threexport export model.glb
  threexport export -options "vertices faces uvs materials diffuseMaps" model.gltf
  threexport export -o rig.json -options "vertices faces bones 2 skeletalAnim" rig.glb
  threexport info rig.glb
  threexport config -init`)
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("o", "", "Output path, - for stdout (default: input name with .json)")
	configPath := fs.String("config", "", "Path to config file")
	options := fs.String("options", "", "Export option string (overrides config)")
	pretty := fs.Bool("pretty", false, "Indent the output document")
	fps := fs.Float64("fps", 0, "Sample rate for glTF animation, frames per second (overrides config)")
	textureDir := fs.String("textures", "", "Directory texture copies are written to (overrides config)")
	logFile := fs.String("log", "", "Log file path (overrides config)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: threexport export [options] <scene> [out.json]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *options != "" {
		cfg.Export.Options = *options
	}
	if *fps > 0 {
		cfg.Gltf.SampleRate = *fps
	}
	if *textureDir != "" {
		cfg.Export.TextureDir = *textureDir
	}
	if *logFile != "" {
		cfg.Logging.LogFile = *logFile
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	opts, err := threejs.ParseOptions(cfg.Export.Options)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *pretty {
		opts.PrettyOutput = true
	}

	input := fs.Arg(0)
	scn, err := loadScene(input, cfg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := &threejs.Writer{
		Logger:     logger.Log,
		TextureDir: cfg.Export.TextureDir,
	}

	out := *output
	if out == "" && fs.NArg() > 1 {
		out = fs.Arg(1)
	}
	if out == "-" {
		if err := w.Write(os.Stdout, scn, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + ".json"
	}

	if err := w.WriteFile(out, scn, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Exported: %s (%d meshes, %d materials, %d joints)\n",
		out, len(scn.Meshes()), len(scn.Materials()), len(scn.Joints()))
}

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: threexport info <scene>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	scn, err := loadScene(fs.Arg(0), cfg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	keyed := 0
	for _, j := range scn.Joints() {
		if len(j.KeyTimes()) > 0 {
			keyed++
		}
	}

	first, last := scn.Playback().Range()
	fmt.Printf("Scene:     %s\n", fs.Arg(0))
	fmt.Printf("Meshes:    %d\n", len(scn.Meshes()))
	fmt.Printf("Materials: %d\n", len(scn.Materials()))
	fmt.Printf("Joints:    %d (%d keyed)\n", len(scn.Joints()), keyed)
	fmt.Printf("Playback:  %g-%g (%s)\n", first, last, scn.Playback().FrameRate())

	if meshes := scn.Meshes(); len(meshes) > 0 {
		fmt.Println()
		fmt.Println("Meshes:")
		for _, m := range meshes {
			extra := ""
			if m.Skin() != nil {
				extra = ", skinned"
			}
			fmt.Printf("  %-24s %d vertices, %d faces%s\n", m.Name(), len(m.Points()), len(m.Faces()), extra)
		}
	}

	if materials := scn.Materials(); len(materials) > 0 {
		fmt.Println()
		fmt.Println("Materials:")
		for _, m := range materials {
			maps := 0
			for _, kind := range scene.MapKinds {
				if m.Map(kind) != nil {
					maps++
				}
			}
			fmt.Printf("  %-24s %s, %d texture map(s)\n", m.Name(), m.ShadingModel(), maps)
		}
	}
}

func cmdOptions(args []string) {
	// Tokens that consume trailing numeric arguments.
	argHints := map[string]string{
		"bones":          "bones <influencesPerVertex>",
		"bakeAnimations": "bakeAnimations <startFrame> <endFrame> <stepFrame>",
	}

	fmt.Println("Export option string tokens:")
	for _, key := range threejs.ComponentKeys {
		if hint, ok := argHints[key]; ok {
			fmt.Printf("  %s\n", hint)
			continue
		}
		fmt.Printf("  %s\n", key)
	}
	fmt.Println()
	fmt.Println(`Tokens combine into a single string, e.g.
  "vertices faces normals uvs materials bones 2 skeletalAnim"`)
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	initCfg := fs.Bool("init", false, "Write the default configuration")
	output := fs.String("o", "", "Write to this path instead of the user config directory")
	configPath := fs.String("config", "", "Path to config file to show")
	fs.Parse(args)

	if *initCfg {
		cfg := config.Default()
		path := *output
		if path == "" {
			path = filepath.Join(config.ConfigDir(), "config.yaml")
			if err := cfg.Save(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		} else if err := cfg.SaveTo(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote: %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(data))
}

// loadScene opens a scene file, picking the loader by extension.
func loadScene(path string, cfg *config.Config, logged bool) (scene.Scene, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb":
		loader := &gltfscene.Loader{SampleRate: cfg.Gltf.SampleRate}
		if logged {
			loader.Logger = logger.Log
		}
		return loader.LoadFile(path)
	case ".yaml", ".yml":
		return scene.LoadStageFile(path)
	default:
		return nil, fmt.Errorf("unsupported scene format %q", ext)
	}
}
