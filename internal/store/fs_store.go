package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cwbudde/blockhist/internal/hist"
)

// FSStore implements Store on a directory: frames live in <baseDir>/frames/.
//
// Writes go through a temp file and rename, so concurrent readers never
// observe a partial frame.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "frames"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create frames directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) framePath(name string) string {
	return filepath.Join(fs.baseDir, "frames", name)
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("frame name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid frame name %q", name)
	}
	return nil
}

// SaveFrame atomically stores raw under name.
func (fs *FSStore) SaveFrame(name string, raw []byte) error {
	if err := validName(name); err != nil {
		return err
	}

	data := raw
	if IsCompressed(name) {
		data = compressZstd(raw)
	}

	finalPath := fs.framePath(name)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp frame file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename frame file: %w", err)
	}

	slog.Debug("Frame saved", "name", name, "samples", len(raw), "bytes", len(data))
	return nil
}

// LoadFrame returns the decompressed samples of name.
func (fs *FSStore) LoadFrame(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	raw, err := ReadFrameFile(fs.framePath(name))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Name: name}
		}
		return nil, err
	}
	slog.Debug("Frame loaded", "name", name, "samples", len(raw))
	return raw, nil
}

// LoadSamples loads name, checks its size against cfg and widens it to
// the integer frame representation.
func (fs *FSStore) LoadSamples(name string, cfg hist.Config) ([]int32, error) {
	raw, err := fs.LoadFrame(name)
	if err != nil {
		return nil, err
	}
	if err := CheckSize(cfg, len(raw)); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return hist.WidenSamples(raw), nil
}

// ListFrames returns metadata for all stored frames, sorted by name.
func (fs *FSStore) ListFrames() ([]FrameInfo, error) {
	entries, err := os.ReadDir(filepath.Join(fs.baseDir, "frames"))
	if err != nil {
		if os.IsNotExist(err) {
			return []FrameInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read frames directory: %w", err)
	}

	infos := []FrameInfo{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			slog.Warn("Failed to stat frame for listing", "name", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, FrameInfo{
			Name:       entry.Name(),
			Layout:     LayoutOf(entry.Name()),
			Compressed: IsCompressed(entry.Name()),
			Size:       stat.Size(),
			ModTime:    stat.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	slog.Debug("Listed frames", "count", len(infos))
	return infos, nil
}

// DeleteFrame removes the frame.
func (fs *FSStore) DeleteFrame(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	path := fs.framePath(name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{Name: name}
		}
		return fmt.Errorf("failed to remove frame: %w", err)
	}
	slog.Debug("Frame deleted", "name", name)
	return nil
}
