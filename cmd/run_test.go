package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/cwbudde/blockhist/internal/store"
)

// writeFrame writes a constant planar frame for a width x height image.
func writeFrame(t *testing.T, name string, width, height int, value byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	raw := bytes.Repeat([]byte{value}, width*height+2*(width/2)*(height/2))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func geometryArgs(width, height, block, bins string) []string {
	return []string{"--width", width, "--height", height, "--block-width", block, "--block-height", block, "--bins", bins, "--subgroup", "0"}
}

func TestRunCommand(t *testing.T) {
	path := writeFrame(t, "flat.yuv", 64, 32, 100)

	args := append([]string{"run", "--frame", path, "--backend", "cpu", "--validate", "--detail", "--repeat", "2"},
		geometryArgs("64", "32", "8", "16")...)
	out := executeCommand(t, args...)

	for _, want := range []string{
		"Image dimensions: 64x32",
		"Y plane: block size 64, 32 blocks",
		"U plane: block size 16, 32 blocks",
		"Overall: PASS",
		"average in [100.00, 100.00]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	path := writeFrame(t, "flat.nv12", 32, 32, 7)

	args := append([]string{"validate", "--frame", path, "--backend", "reference"}, geometryArgs("32", "32", "4", "8")...)
	out := executeCommand(t, args...)
	if !strings.Contains(out, "Overall: PASS") {
		t.Errorf("unexpected validate output:\n%s", out)
	}
}

func TestFrameFlagsConfig(t *testing.T) {
	f := frameFlags{color: "chromatic", width: 64, height: 32, blockWidth: 8, blockHeight: 8, bins: 16, precision: "integer"}

	cfg, err := f.config("clip.nv12")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if cfg.Format != hist.FormatSemiPlanar {
		t.Errorf("format from extension = %s", cfg.Format)
	}

	cfg, err = f.config("clip.y")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if cfg.Color != hist.Grayscale {
		t.Errorf("luma frame should default to grayscale, got %s", cfg.Color)
	}

	f.bins = 0
	if _, err := f.config("clip.yuv"); !errors.Is(err, hist.ErrInvalidConfig) {
		t.Errorf("config(bins=0) = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadFrameSizeMismatch(t *testing.T) {
	path := writeFrame(t, "flat.yuv", 64, 32, 1)
	cfg := hist.DefaultConfig()
	if _, err := loadFrame(path, cfg); !errors.Is(err, store.ErrSizeMismatch) {
		t.Errorf("loadFrame = %v, want ErrSizeMismatch", err)
	}
}
