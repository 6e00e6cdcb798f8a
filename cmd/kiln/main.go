// kiln bakes textures and glTF scenes into runtime containers and inspects the results.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/Faultbox/kiln/internal/assets"
	"github.com/Faultbox/kiln/internal/bake"
	"github.com/Faultbox/kiln/internal/config"
	"github.com/Faultbox/kiln/internal/logger"
	"github.com/Faultbox/kiln/pkg/container"
	"go.uber.org/zap"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	args = args[1:]

	switch command {
	case "bake":
		os.Exit(cmdBake(args))
	case "watch":
		os.Exit(cmdWatch(args))
	case "info":
		os.Exit(cmdInfo(args))
	case "verify":
		os.Exit(cmdVerify(args))
	case "config":
		os.Exit(cmdConfig(args))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kiln - offline asset baker

Usage:
  kiln [flags] <command> [arguments]

Commands:
  bake <source> <export>   Bake every texture and scene under source into export
  watch <source> <export>  Bake, then re-bake sources as they change
  info <file>              Show a container's header and metadata
  verify <dir>             Load every container under dir and report failures
  config init [file]       Write the default config (default: user config dir)
  config show              Print the effective config

Flags:
  -config <file>       Config file (default ./kiln.yaml, then the user config dir)
  -debug               Enable debug logging
  -workers <n>         Number of concurrent bake workers
  -compression <mode>  Payload compression: none, lz4 or zlib
  -no-progress         Disable the progress bar
  -log-file <file>     Also write logs to file

Examples:
  kiln bake ./art ./build/assets
  kiln -workers 4 -compression zlib bake ./art ./build/assets
  kiln info ./build/assets/chars/hero.skel`)
}

// setup loads configuration and starts logging.
func setup() (*config.Config, bool) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, false
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, false
	}
	return cfg, true
}

func cmdBake(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: kiln bake <source> <export>")
		return 1
	}
	cfg, ok := setup()
	if !ok {
		return 1
	}
	defer logger.Sync()

	report, err := bake.New(bake.OptionsFromConfig(cfg)).Run(args[0], args[1])
	if err != nil {
		logger.Error("bake aborted", zap.Error(err))
		return 1
	}

	fmt.Printf("Sources:  %d\n", len(report.Results))
	fmt.Printf("Outputs:  %d\n", report.Outputs())
	fmt.Printf("Skipped:  %d\n", report.Failures())
	fmt.Printf("Warnings: %d\n", report.Warnings())
	fmt.Printf("Failed:   %d\n", report.Fatal())
	if !report.OK() {
		return 1
	}
	return 0
}

func cmdWatch(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: kiln watch <source> <export>")
		return 1
	}
	cfg, ok := setup()
	if !ok {
		return 1
	}
	defer logger.Sync()

	b := bake.New(bake.OptionsFromConfig(cfg))
	if _, err := b.Run(args[0], args[1]); err != nil {
		logger.Error("initial bake aborted", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := b.Watch(ctx, args[0], args[1], func(r bake.Result) {
		for _, out := range r.Outputs {
			fmt.Println(out)
		}
	})
	if err != nil {
		logger.Error("watch failed", zap.Error(err))
		return 1
	}
	return 0
}

func cmdConfig(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kiln config <init [file]|show>")
		return 1
	}

	switch args[0] {
	case "init":
		target := ""
		if len(args) > 1 {
			target = args[1]
		}
		path, err := config.WriteDefault(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Wrote %s\n", path)
	case "show":
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		data, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
	default:
		fmt.Fprintf(os.Stderr, "Unknown config command: %s\n", args[0])
		return 1
	}
	return 0
}

func cmdInfo(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kiln info <file>")
		return 1
	}

	c, err := container.Read(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("File:     %s\n", args[0])
	fmt.Printf("Kind:     %s\n", c.Kind)
	fmt.Printf("Version:  %d\n", c.Version)
	fmt.Printf("Metadata: %d bytes\n", len(c.Metadata))
	fmt.Printf("Payload:  %d bytes\n", len(c.Payload))
	fmt.Printf("Size:     %d bytes\n", c.Size())
	fmt.Println()
	fmt.Print(string(c.Metadata))
	return 0
}

// containerExts maps baked file extensions to their kinds.
var containerExts = map[string]container.Kind{
	bake.TextureExt:  container.KindTexture,
	".mesh":          container.KindMesh,
	bake.SkeletonExt: container.KindSkeleton,
}

func cmdVerify(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kiln verify <dir>")
		return 1
	}
	root := args[0]

	m := assets.NewManager()
	defer m.Close()
	if err := m.AddRoot(root); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if _, ok := containerExts[strings.ToLower(filepath.Ext(path))]; ok && !d.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	sort.Strings(files)

	failed := 0
	for _, rel := range files {
		var err error
		switch containerExts[strings.ToLower(filepath.Ext(rel))] {
		case container.KindTexture:
			_, err = m.LoadTexture(rel)
		case container.KindMesh:
			_, err = m.LoadMesh(rel)
		case container.KindSkeleton:
			_, err = m.LoadSkeleton(rel)
		}
		if err != nil {
			fmt.Printf("FAIL %s: %v\n", rel, err)
			failed++
		}
	}

	fmt.Fprintf(os.Stderr, "\n(%d containers checked, %d failed)\n", len(files), failed)
	if failed > 0 {
		return 1
	}
	return 0
}
