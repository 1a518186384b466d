// Package main provides a command-line tool for patching Godot PCK archives.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/goopsie/pckFileTools/pkg/config"
	"github.com/goopsie/pckFileTools/pkg/pck"
	"github.com/goopsie/pckFileTools/pkg/patch"
)

var (
	mode            string
	configPath      string
	assetsDir       string
	entryPath       string
	inputDir        string
	outputDir       string
	takeSnapshot    bool
	continueOnError bool
	verbose         bool
)

func init() {
	flag.StringVar(&mode, "mode", "", "Operation mode: list, extract, apply, restore, build")
	flag.StringVar(&configPath, "config", "", "Replacement plan (TOML) for apply mode")
	flag.StringVar(&assetsDir, "assets", "", "Directory holding replacement assets (default: directory of -config)")
	flag.StringVar(&entryPath, "entry", "", "Logical path to extract (default: all entries)")
	flag.StringVar(&inputDir, "input", "", "Input directory for build mode")
	flag.StringVar(&outputDir, "output", "", "Output directory for extract mode")
	flag.BoolVar(&takeSnapshot, "snapshot", false, "Write <archive>.snap before replacing entries")
	flag.BoolVar(&continueOnError, "continue", false, "Keep replacing after a failed entry")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -mode <mode> [flags] archive.pck...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(archives []string) error {
	if err := validateFlags(archives); err != nil {
		flag.Usage()
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	switch mode {
	case "list":
		return forEach(archives, runList)
	case "extract":
		return forEach(archives, runExtract)
	case "apply":
		return runApply(archives, logger)
	case "restore":
		return forEach(archives, runRestore)
	case "build":
		return runBuild(archives[0])
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

func validateFlags(archives []string) error {
	if mode == "" {
		return fmt.Errorf("mode is required")
	}
	if len(archives) == 0 {
		return fmt.Errorf("at least one archive is required")
	}

	if err := checkDistinct(archives); err != nil {
		return err
	}

	switch mode {
	case "list", "restore":
	case "extract":
		if outputDir == "" {
			return fmt.Errorf("extract mode requires -output")
		}
		if len(archives) > 1 {
			return fmt.Errorf("extract mode takes a single archive")
		}
	case "apply":
		if configPath == "" {
			return fmt.Errorf("apply mode requires -config")
		}
	case "build":
		if inputDir == "" {
			return fmt.Errorf("build mode requires -input")
		}
		if len(archives) > 1 {
			return fmt.Errorf("build mode takes a single output archive")
		}
	default:
		return fmt.Errorf("mode must be 'list', 'extract', 'apply', 'restore' or 'build'")
	}

	return nil
}

// checkDistinct rejects archive arguments that name the same file, since
// sessions on one archive must not run side by side.
func checkDistinct(archives []string) error {
	seen := make(map[string]string, len(archives))
	var infos []os.FileInfo
	var names []string
	for _, a := range archives {
		abs, err := filepath.Abs(a)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", a, err)
		}
		if prev, ok := seen[abs]; ok {
			return fmt.Errorf("archive %s given twice (as %s)", a, prev)
		}
		seen[abs] = a

		// Links and hard links resolve to the same file under different names.
		info, err := os.Stat(a)
		if err != nil {
			continue
		}
		for i, other := range infos {
			if os.SameFile(info, other) {
				return fmt.Errorf("archive %s is the same file as %s", a, names[i])
			}
		}
		infos = append(infos, info)
		names = append(names, a)
	}
	return nil
}

func forEach(archives []string, fn func(string) error) error {
	for _, a := range archives {
		if err := fn(a); err != nil {
			return fmt.Errorf("%s: %w", a, err)
		}
	}
	return nil
}

func snapshotPath(archive string) string {
	return archive + ".snap"
}

func runList(archive string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	t, err := pck.ReadTable(f)
	if err != nil {
		return err
	}

	fmt.Printf("%s: PCK v%d, engine %s, %d entries\n", archive, t.Header.Version, t.Header.EngineVersion(), len(t.Entries))
	for i, e := range t.Entries {
		fmt.Printf("%12d %10d %s %s\n", e.Offset, e.Size, hex.EncodeToString(e.MD5[:]), t.Paths[i])
	}
	return nil
}

func runExtract(archive string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	t, err := pck.ReadTable(f)
	if err != nil {
		return err
	}

	if entryPath != "" {
		e, ok := t.Lookup(entryPath)
		if !ok {
			return &pck.NotFoundError{Path: entryPath}
		}
		return extractEntry(f, entryPath, e)
	}

	fmt.Println("Extracting files...")
	for i, e := range t.Entries {
		if err := extractEntry(f, t.Paths[i], e); err != nil {
			return err
		}
	}
	fmt.Printf("Extraction complete. %d files written to %s\n", len(t.Entries), outputDir)
	return nil
}

func extractEntry(f *os.File, logicalPath string, e *pck.Entry) error {
	rel := strings.TrimPrefix(logicalPath, "res://")
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return fmt.Errorf("refusing to extract %q outside the output directory", logicalPath)
	}
	dst := filepath.Join(outputDir, filepath.FromSlash(rel))

	data, err := pck.ReadContent(f, e)
	if err != nil {
		return fmt.Errorf("read %s: %w", logicalPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", logicalPath, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write file %s: %w", dst, err)
	}
	return nil
}

func runApply(archives []string, logger *slog.Logger) error {
	plan, err := config.Load(configPath, assetsDir)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	fmt.Printf("Plan loaded: %d replacements, %d deletions\n", len(plan.Replacements), len(plan.Deletions))

	// Each archive gets its own session; nothing is shared between them.
	var g errgroup.Group
	for _, archive := range archives {
		archive := archive
		g.Go(func() error {
			if err := applyOne(archive, plan, logger); err != nil {
				return fmt.Errorf("%s: %w", archive, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func applyOne(archive string, plan *config.Plan, logger *slog.Logger) error {
	opts := []patch.Option{
		patch.WithLogger(logger),
		patch.WithContinueOnError(continueOnError),
	}
	if takeSnapshot {
		opts = append(opts, patch.WithSnapshot(snapshotPath(archive)))
	}

	s, err := patch.Open(archive, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.Apply(plan)
	fmt.Printf("%s: %d deleted, %d replaced, %d unchanged, %d failed\n",
		archive, report.Deleted, report.Replaced, report.Unchanged, len(report.Failed))
	if err != nil {
		return err
	}
	return s.Close()
}

func runRestore(archive string) error {
	if err := patch.Restore(archive, snapshotPath(archive)); err != nil {
		return err
	}
	fmt.Printf("%s: restored from %s\n", archive, snapshotPath(archive))
	return nil
}

func runBuild(archive string) error {
	fmt.Println("Scanning input directory...")
	files, err := pck.ScanFiles(inputDir)
	if err != nil {
		return fmt.Errorf("scan files: %w", err)
	}
	fmt.Printf("Found %d files\n", len(files))

	f, err := os.Create(archive)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	if err := pck.NewBuilder().Build(f, files); err != nil {
		os.Remove(archive)
		return fmt.Errorf("build: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	fmt.Printf("Build complete. Archive written to %s\n", archive)
	return nil
}
