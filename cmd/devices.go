package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/blockhist/internal/gpu"
	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/spf13/cobra"
)

var showExtensions bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List compute backends and OpenCL devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Backends:")
		for _, b := range hist.SupportedBackends() {
			fmt.Fprintf(out, "  %s\n", b)
		}
		fmt.Fprintf(out, "CPU sub-group width: %d\n\n", hist.DetectSubgroupWidth())

		platforms, err := gpu.EnumeratePlatforms()
		if errors.Is(err, gpu.ErrNotBuilt) {
			fmt.Fprintln(out, "OpenCL: not built (rebuild with -tags gpu)")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to enumerate OpenCL platforms: %w", err)
		}
		if len(platforms) == 0 {
			fmt.Fprintln(out, "OpenCL: no platforms found")
			return nil
		}

		for i, p := range platforms {
			fmt.Fprintf(out, "Platform %d: %s (%s, %s)\n", i, p.Name, p.Vendor, p.Version)
			for j, d := range p.Devices {
				fmt.Fprintf(out, "  Device %d: %s\n", j, d)
				fmt.Fprintf(out, "    Version: %s, local memory %s\n", d.Version, formatBytes(int64(d.LocalMemSize)))
				if showExtensions && len(d.Extensions) > 0 {
					fmt.Fprintf(out, "    Extensions: %s\n", strings.Join(d.Extensions, " "))
				}
			}
		}
		return nil
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&showExtensions, "extensions", false, "Print device extensions")
	rootCmd.AddCommand(devicesCmd)
}
