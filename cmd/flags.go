package main

import (
	"fmt"

	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/cwbudde/blockhist/internal/store"
	"github.com/spf13/cobra"
)

// frameFlags binds the histogram geometry onto a command.
type frameFlags struct {
	format      string
	color       string
	width       int
	height      int
	blockWidth  int
	blockHeight int
	bins        int
	precision   string
	subgroup    int
}

func (f *frameFlags) register(cmd *cobra.Command) {
	def := hist.DefaultConfig()
	cmd.Flags().StringVar(&f.format, "format", "", "Frame layout: planar (I420) or semiplanar (NV12); default from file extension")
	cmd.Flags().StringVar(&f.color, "color", def.Color.String(), "Color mode: chromatic or grayscale")
	cmd.Flags().IntVar(&f.width, "width", def.Width, "Frame width in pixels")
	cmd.Flags().IntVar(&f.height, "height", def.Height, "Frame height in pixels")
	cmd.Flags().IntVar(&f.blockWidth, "block-width", def.BlockWidth, "Block width (power of two)")
	cmd.Flags().IntVar(&f.blockHeight, "block-height", def.BlockHeight, "Block height (power of two)")
	cmd.Flags().IntVar(&f.bins, "bins", def.NumOfBins, "Number of histogram bins (1-256)")
	cmd.Flags().StringVar(&f.precision, "precision", def.Precision.String(), "Variance histogram accumulation: integer or float")
	cmd.Flags().IntVar(&f.subgroup, "subgroup", -1, "Sub-group width for the reduction tail (0 disables, -1 detects)")
}

// config resolves the flags for the frame at path.
func (f *frameFlags) config(path string) (hist.Config, error) {
	cfg := hist.DefaultConfig()
	cfg.Width, cfg.Height = f.width, f.height
	cfg.BlockWidth, cfg.BlockHeight = f.blockWidth, f.blockHeight
	cfg.NumOfBins = f.bins
	cfg.SubgroupWidth = f.subgroup
	if f.subgroup < 0 {
		cfg.SubgroupWidth = hist.DetectSubgroupWidth()
	}

	if f.format != "" {
		format, err := hist.ParseFormat(f.format)
		if err != nil {
			return cfg, err
		}
		cfg.Format = format
	} else if format, ok := store.LayoutOf(path).Format(); ok {
		cfg.Format = format
	}

	color, err := hist.ParseColor(f.color)
	if err != nil {
		return cfg, err
	}
	cfg.Color = color
	if store.LayoutOf(path) == store.LayoutLuma && f.color == hist.DefaultConfig().Color.String() {
		cfg.Color = hist.Grayscale
	}

	precision, err := hist.ParsePrecision(f.precision)
	if err != nil {
		return cfg, err
	}
	cfg.Precision = precision

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFrame reads the frame file at path and checks its size against cfg.
func loadFrame(path string, cfg hist.Config) ([]int32, error) {
	raw, err := store.ReadFrameFile(path)
	if err != nil {
		return nil, err
	}
	if err := store.CheckSize(cfg, len(raw)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return hist.WidenSamples(raw), nil
}
