package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/blockhist/internal/hist"
)

// Layout is the sample arrangement implied by a frame's file extension.
type Layout string

const (
	LayoutPlanar     Layout = "planar"
	LayoutSemiPlanar Layout = "semi-planar"
	LayoutLuma       Layout = "luma"
	LayoutUnknown    Layout = "unknown"
)

const compressedExt = ".zst"

// FrameInfo describes a stored frame without loading it.
type FrameInfo struct {
	Name       string    `json:"name"`
	Layout     Layout    `json:"layout"`
	Compressed bool      `json:"compressed"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
}

// ErrSizeMismatch is returned when a frame's sample count does not match
// the configured geometry.
var ErrSizeMismatch = errors.New("frame size mismatch")

// LayoutOf infers the layout from name, ignoring a trailing .zst.
func LayoutOf(name string) Layout {
	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(name, compressedExt)))
	switch ext {
	case ".yuv", ".i420", ".iyuv":
		return LayoutPlanar
	case ".nv12":
		return LayoutSemiPlanar
	case ".y", ".gray", ".grey":
		return LayoutLuma
	default:
		return LayoutUnknown
	}
}

// IsCompressed reports whether name denotes a zstd-compressed frame.
func IsCompressed(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), compressedExt)
}

// Format maps the layout to a hist format. Luma-only and unknown layouts
// report ok == false; the caller's configured format then applies.
func (l Layout) Format() (hist.Format, bool) {
	switch l {
	case LayoutPlanar:
		return hist.FormatPlanar, true
	case LayoutSemiPlanar:
		return hist.FormatSemiPlanar, true
	default:
		return 0, false
	}
}

// ExpectedSamples is the sample count of a full frame for cfg: the luma
// plane plus two quarter-size chroma planes in both layouts.
func ExpectedSamples(cfg hist.Config) int {
	return hist.NewGeometry(cfg).FrameSize
}

// CheckSize verifies that n samples form a frame of cfg. Grayscale
// configurations also accept a bare luma plane.
func CheckSize(cfg hist.Config, n int) error {
	g := hist.NewGeometry(cfg)
	if n == g.FrameSize {
		return nil
	}
	if cfg.Color == hist.Grayscale && n == g.LumaSize {
		return nil
	}
	return fmt.Errorf("%w: got %d samples, expected %d for %dx%d", ErrSizeMismatch, n, g.FrameSize, cfg.Width, cfg.Height)
}
