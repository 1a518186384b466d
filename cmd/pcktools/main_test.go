package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopsie/pckFileTools/pkg/pck/pcktest"
)

func setFlags(t *testing.T, m, cfg, out string, snap bool) {
	t.Helper()
	oldMode, oldCfg, oldOut, oldSnap := mode, configPath, outputDir, takeSnapshot
	mode, configPath, outputDir, takeSnapshot = m, cfg, out, snap
	t.Cleanup(func() {
		mode, configPath, outputDir, takeSnapshot = oldMode, oldCfg, oldOut, oldSnap
	})
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		cfg      string
		out      string
		archives []string
		wantErr  bool
	}{
		{"NoMode", "", "", "", []string{"a.pck"}, true},
		{"NoArchives", "list", "", "", nil, true},
		{"List", "list", "", "", []string{"a.pck", "b.pck"}, false},
		{"ExtractNeedsOutput", "extract", "", "", []string{"a.pck"}, true},
		{"ExtractSingleArchive", "extract", "", "out", []string{"a.pck", "b.pck"}, true},
		{"Extract", "extract", "", "out", []string{"a.pck"}, false},
		{"ApplyNeedsConfig", "apply", "", "", []string{"a.pck"}, true},
		{"Apply", "apply", "replace.toml", "", []string{"a.pck"}, false},
		{"BuildNeedsInput", "build", "", "", []string{"out.pck"}, true},
		{"UnknownMode", "repack", "", "", []string{"a.pck"}, true},
		{"DuplicateArchive", "apply", "replace.toml", "", []string{"game.pck", "./game.pck"}, true},
		{"DuplicateAfterClean", "list", "", "", []string{"dir/../game.pck", "game.pck"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setFlags(t, tt.mode, tt.cfg, tt.out, false)
			err := validateFlags(tt.archives)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFlagsSameFile(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "game.pck")
	require.NoError(t, os.WriteFile(archive, pcktest.Build(pcktest.File{Path: "res://a.txt", Content: []byte("a")}), 0644))
	link := filepath.Join(dir, "link.pck")
	if err := os.Link(archive, link); err != nil {
		t.Skipf("hard links unsupported: %v", err)
	}

	setFlags(t, "apply", "replace.toml", "", false)
	assert.Error(t, validateFlags([]string{archive, link}))
}

func TestApplyExtractRestore(t *testing.T) {
	dir := t.TempDir()
	original := pcktest.Build(
		pcktest.File{Path: "res://a.txt", Content: []byte("hello")},
		pcktest.File{Path: "res://sub/b.txt", Content: []byte("world")},
	)
	archives := []string{filepath.Join(dir, "one.pck"), filepath.Join(dir, "two.pck")}
	for _, a := range archives {
		require.NoError(t, os.WriteFile(a, original, 0644))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("patched"), 0644))
	cfg := filepath.Join(dir, "replace.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[replace]\n\"res://a.txt\" = \"../assets/a.txt\"\n"), 0644))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	setFlags(t, "apply", cfg, "", true)
	require.NoError(t, runApply(archives, logger))

	out := filepath.Join(dir, "out")
	setFlags(t, "extract", "", out, false)
	require.NoError(t, runExtract(archives[1]))

	got, err := os.ReadFile(filepath.Join(out, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "patched", string(got))
	got, err = os.ReadFile(filepath.Join(out, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))

	require.NoError(t, runRestore(archives[0]))
	restored, err := os.ReadFile(archives[0])
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestExtractRejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.pck")
	require.NoError(t, os.WriteFile(archive, pcktest.Build(
		pcktest.File{Path: "res://../../etc/passwd", Content: []byte("x")},
	), 0644))

	setFlags(t, "extract", "", filepath.Join(dir, "out"), false)
	assert.Error(t, runExtract(archive))
}
