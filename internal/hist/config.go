package hist

import "fmt"

// MaxGroupLanes is the largest work-group the reduction supports.
const MaxGroupLanes = 1024

// MaxBins bounds NumOfBins to the 8-bit sample domain.
const MaxBins = 256

// Config holds everything a computation needs besides the frame itself.
type Config struct {
	Format      Format
	Color       Color
	Width       int
	Height      int
	BlockWidth  int
	BlockHeight int
	NumOfBins   int
	Precision   Precision

	// SubgroupWidth enables the unsynchronized reduction tail for lanes
	// below this width. Zero keeps a barrier at every halving step.
	SubgroupWidth int
}

// DefaultConfig returns a 1920x1080 planar chromatic setup with 8x8
// blocks and 16 bins.
func DefaultConfig() Config {
	return Config{
		Format:      FormatPlanar,
		Color:       Chromatic,
		Width:       1920,
		Height:      1080,
		BlockWidth:  8,
		BlockHeight: 8,
		NumOfBins:   16,
		Precision:   PrecisionInteger,
	}
}

// Validate checks the geometry constraints of the block reduction.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if !isPowerOfTwo(c.BlockWidth) || !isPowerOfTwo(c.BlockHeight) {
		return fmt.Errorf("%w: block size %dx%d is not a power of two", ErrInvalidConfig, c.BlockWidth, c.BlockHeight)
	}
	if c.NumOfBins < 1 || c.NumOfBins > MaxBins {
		return fmt.Errorf("%w: numOfBins %d outside [1,%d]", ErrInvalidConfig, c.NumOfBins, MaxBins)
	}
	if c.SubgroupWidth != 0 && !isPowerOfTwo(c.SubgroupWidth) {
		return fmt.Errorf("%w: subgroup width %d is not a power of two", ErrInvalidConfig, c.SubgroupWidth)
	}

	switch c.Color {
	case Chromatic:
		if c.BlockWidth < 2 || c.BlockHeight < 2 {
			return fmt.Errorf("%w: chromatic mode needs blocks of at least 2x2, got %dx%d", ErrInvalidConfig, c.BlockWidth, c.BlockHeight)
		}
		if lanes := (c.BlockWidth / 2) * (c.BlockHeight / 2); lanes > MaxGroupLanes {
			return fmt.Errorf("%w: %d lanes per group exceeds %d", ErrInvalidConfig, lanes, MaxGroupLanes)
		}
		if c.Width < c.BlockWidth || c.Height < c.BlockHeight {
			return fmt.Errorf("%w: image %dx%d smaller than block %dx%d", ErrInvalidConfig, c.Width, c.Height, c.BlockWidth, c.BlockHeight)
		}
	case Grayscale:
		if lanes := c.BlockWidth * c.BlockHeight; lanes > MaxGroupLanes {
			return fmt.Errorf("%w: %d lanes per group exceeds %d", ErrInvalidConfig, lanes, MaxGroupLanes)
		}
		if c.Width < c.BlockWidth || c.Height < c.BlockHeight {
			return fmt.Errorf("%w: image %dx%d smaller than block %dx%d", ErrInvalidConfig, c.Width, c.Height, c.BlockWidth, c.BlockHeight)
		}
	default:
		return fmt.Errorf("%w: color mode %d", ErrInvalidConfig, c.Color)
	}

	if c.Format != FormatPlanar && c.Format != FormatSemiPlanar {
		return fmt.Errorf("%w: format %d", ErrInvalidConfig, c.Format)
	}
	if c.Precision != PrecisionInteger && c.Precision != PrecisionFloat {
		return fmt.Errorf("%w: precision %d", ErrInvalidConfig, c.Precision)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
