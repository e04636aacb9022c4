package main

import (
	"fmt"

	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/spf13/cobra"
)

var (
	validateFrame   frameFlags
	validatePath    string
	validateBackend string
	validateDetail  bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compare a backend against the sequential reference",
	Long: `Runs the selected backend and the sequential reference on the same frame
and reports the percent error of every output vector. Exact agreement is
PASS, under one percent is PASS (warning), anything else is FAIL.`,
	RunE: runValidate,
}

func init() {
	validateFrame.register(validateCmd)
	validateCmd.Flags().StringVar(&validatePath, "frame", "", "Raw frame file (required)")
	validateCmd.Flags().StringVar(&validateBackend, "backend", string(hist.BackendCPU), "Backend to validate: cpu, opencl")
	validateCmd.Flags().BoolVar(&validateDetail, "detail", true, "Also compare per-block averages and variances")

	validateCmd.MarkFlagRequired("frame")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := validateFrame.config(validatePath)
	if err != nil {
		return err
	}
	frame, err := loadFrame(validatePath, cfg)
	if err != nil {
		return err
	}

	engine, err := hist.NewEngine(validateBackend)
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := hist.Validate(cmd.Context(), engine, cfg, frame, detailFlag(validateDetail))
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	if report.Verdict() == hist.VerdictFail {
		return fmt.Errorf("%s diverges from the reference", engine.Backend())
	}
	return nil
}
