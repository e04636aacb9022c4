package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/cwbudde/blockhist/internal/store"
	"github.com/cwbudde/blockhist/internal/tune"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	tuneFrame      frameFlags
	tunePath       string
	tuneIters      int
	tunePop        int
	tuneSeed       int64
	tuneRepeats    int
	tuneMaxWorkers int
	tuneDataDir    string
	tuneRunID      string
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search the fastest CPU backend settings for a frame geometry",
	Long: `Uses the mayfly optimizer to search the CPU backend's worker count and
work-groups per task, timing real dispatches of the given frame. Every
timed trial is appended to <data-dir>/traces/<run-id>.jsonl.`,
	RunE: runTune,
}

func init() {
	tuneFrame.register(tuneCmd)
	tuneCmd.Flags().StringVar(&tunePath, "frame", "", "Raw frame file (required)")
	tuneCmd.Flags().IntVar(&tuneIters, "iters", 10, "Optimizer iterations")
	tuneCmd.Flags().IntVar(&tunePop, "pop", tune.MinPopulation, "Population size (at least 20)")
	tuneCmd.Flags().Int64Var(&tuneSeed, "seed", 42, "Random seed")
	tuneCmd.Flags().IntVar(&tuneRepeats, "repeats", 3, "Dispatches per trial; the fastest counts")
	tuneCmd.Flags().IntVar(&tuneMaxWorkers, "max-workers", runtime.GOMAXPROCS(0), "Upper bound of the worker search")
	tuneCmd.Flags().StringVar(&tuneDataDir, "data-dir", "./data", "Base directory for trial traces")
	tuneCmd.Flags().StringVar(&tuneRunID, "run-id", "", "Trace name (default: random UUID)")

	tuneCmd.MarkFlagRequired("frame")
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := tuneFrame.config(tunePath)
	if err != nil {
		return err
	}
	frame, err := loadFrame(tunePath, cfg)
	if err != nil {
		return err
	}

	runID := tuneRunID
	if runID == "" {
		runID = uuid.New().String()
	}
	trace, err := store.NewTraceWriter(tuneDataDir, runID)
	if err != nil {
		return err
	}
	defer trace.Close()

	slog.Info("Starting tuning", "run_id", runID, "iters", tuneIters, "pop", tunePop, "max_workers", tuneMaxWorkers)

	tuner := &tune.Tuner{
		Optimizer:  tune.NewMayfly(tuneIters, tunePop, tuneSeed),
		Config:     cfg,
		Frame:      frame,
		Repeats:    tuneRepeats,
		MaxWorkers: tuneMaxWorkers,
		Trace:      trace,
	}
	result, err := tuner.Tune(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Best: --workers %d --groups-per-task %d\n", result.Best.Workers, result.Best.GroupsPerTask)
	fmt.Fprintf(out, "Dispatch: %s (default %s, %.2fx) over %d trials\n",
		result.Elapsed.Round(time.Microsecond), result.Baseline.Round(time.Microsecond), result.Speedup(), result.Trials)
	fmt.Fprintf(out, "Trace: %s\n", trace.Path())
	return nil
}
