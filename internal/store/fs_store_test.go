package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/blockhist/internal/hist"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

func testFrame(n int) []byte {
	raw := make([]byte, n)
	for i := range raw {
		raw[i] = byte(i % 251)
	}
	return raw
}

func TestSaveLoadFrame(t *testing.T) {
	store, tempDir := setupTestStore(t)

	for _, name := range []string{"plain.yuv", "packed.nv12.zst"} {
		raw := testFrame(4096)
		if err := store.SaveFrame(name, raw); err != nil {
			t.Fatalf("SaveFrame(%s) failed: %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(tempDir, "frames", name+".tmp")); !os.IsNotExist(err) {
			t.Errorf("temp file left behind for %s", name)
		}

		got, err := store.LoadFrame(name)
		if err != nil {
			t.Fatalf("LoadFrame(%s) failed: %v", name, err)
		}
		if !bytes.Equal(got, raw) {
			t.Errorf("%s: loaded frame differs from saved frame", name)
		}
	}

	stat, err := os.Stat(filepath.Join(tempDir, "frames", "packed.nv12.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if stat.Size() >= 4096 {
		t.Errorf("compressed frame is %d bytes, expected fewer than 4096", stat.Size())
	}
}

func TestLoadFrameNotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadFrame("missing.yuv")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteFrame("missing.yuv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestInvalidFrameNames(t *testing.T) {
	store, _ := setupTestStore(t)
	for _, name := range []string{"", "../escape.yuv", "a/b.yuv", ".."} {
		if err := store.SaveFrame(name, []byte{1}); err == nil {
			t.Errorf("SaveFrame(%q) accepted an invalid name", name)
		}
	}
}

func TestListFrames(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListFrames()
	if err != nil {
		t.Fatalf("ListFrames failed: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected empty store, got %d frames", len(infos))
	}

	for _, name := range []string{"b.nv12", "a.yuv.zst", "c.y"} {
		if err := store.SaveFrame(name, testFrame(96)); err != nil {
			t.Fatal(err)
		}
	}

	infos, err = store.ListFrames()
	if err != nil {
		t.Fatalf("ListFrames failed: %v", err)
	}
	want := []FrameInfo{
		{Name: "a.yuv.zst", Layout: LayoutPlanar, Compressed: true},
		{Name: "b.nv12", Layout: LayoutSemiPlanar},
		{Name: "c.y", Layout: LayoutLuma},
	}
	if len(infos) != len(want) {
		t.Fatalf("got %d frames, want %d", len(infos), len(want))
	}
	for i, w := range want {
		got := infos[i]
		if got.Name != w.Name || got.Layout != w.Layout || got.Compressed != w.Compressed {
			t.Errorf("frame %d = %+v, want %+v", i, got, w)
		}
	}

	if err := store.DeleteFrame("b.nv12"); err != nil {
		t.Fatalf("DeleteFrame failed: %v", err)
	}
	infos, _ = store.ListFrames()
	if len(infos) != 2 {
		t.Errorf("expected 2 frames after delete, got %d", len(infos))
	}
}

func TestLoadSamplesChecksSize(t *testing.T) {
	store, _ := setupTestStore(t)

	cfg := hist.DefaultConfig()
	cfg.Width, cfg.Height = 16, 8

	full := testFrame(16*8 + 2*8*4)
	if err := store.SaveFrame("ok.yuv", full); err != nil {
		t.Fatal(err)
	}
	samples, err := store.LoadSamples("ok.yuv", cfg)
	if err != nil {
		t.Fatalf("LoadSamples failed: %v", err)
	}
	if len(samples) != len(full) || samples[150] != int32(full[150]) {
		t.Errorf("samples not widened correctly")
	}

	if err := store.SaveFrame("short.yuv", full[:100]); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LoadSamples("short.yuv", cfg); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("expected ErrSizeMismatch, got %v", err)
	}
}
