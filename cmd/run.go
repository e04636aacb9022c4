package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/spf13/cobra"
)

var (
	runFrame    frameFlags
	framePath   string
	backendName string
	workers     int
	groupsPer   int
	withDetail  bool
	repeat      int
	validateRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute block histograms of one frame",
	Long: `Loads a raw YUV frame, checks its size against the configured geometry,
computes per-block statistics and histograms on the selected backend and
prints the histograms with timings.`,
	RunE: runHistogram,
}

func init() {
	runFrame.register(runCmd)
	runCmd.Flags().StringVar(&framePath, "frame", "", "Raw frame file (.yuv, .nv12, .y; optionally .zst) (required)")
	runCmd.Flags().StringVar(&backendName, "backend", string(hist.BackendCPU), "Backend: cpu, reference, opencl")
	runCmd.Flags().IntVar(&workers, "workers", 0, "CPU backend workers (0 = GOMAXPROCS)")
	runCmd.Flags().IntVar(&groupsPer, "groups-per-task", hist.DefaultGroupsPerTask, "Work-groups claimed per CPU task")
	runCmd.Flags().BoolVar(&withDetail, "detail", false, "Keep per-block averages and variances")
	runCmd.Flags().IntVar(&repeat, "repeat", 1, "Number of dispatches to time")
	runCmd.Flags().BoolVar(&validateRun, "validate", false, "Validate the result against the reference backend")

	runCmd.MarkFlagRequired("frame")
	rootCmd.AddCommand(runCmd)
}

func detailFlag(include bool) hist.Detail {
	if include {
		return hist.DetailInclude
	}
	return hist.DetailExclude
}

func runHistogram(cmd *cobra.Command, args []string) error {
	cfg, err := runFrame.config(framePath)
	if err != nil {
		return err
	}
	frame, err := loadFrame(framePath, cfg)
	if err != nil {
		return err
	}

	session, err := hist.NewSession(cfg,
		hist.WithBackend(backendName),
		hist.WithCPUOptions(hist.WithWorkers(workers), hist.WithGroupsPerTask(groupsPer)),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Setup(); err != nil {
		return err
	}
	if err := session.WriteFrame(frame); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Using frame file: %s\n", framePath)
	fmt.Fprintln(out, session.Environment())
	printGeometry(out, session.Geometry())

	detail := detailFlag(withDetail)
	var total, best time.Duration
	for i := 0; i < max(repeat, 1); i++ {
		if err := session.Calculate(cmd.Context(), detail); err != nil {
			return err
		}
		elapsed := session.Elapsed()
		total += elapsed
		if i == 0 || elapsed < best {
			best = elapsed
		}
	}

	printHistograms(out, cfg, session.Result())
	if withDetail {
		printDetailSummary(out, cfg, session.Result())
	}

	n := max(repeat, 1)
	fmt.Fprintf(out, "\nDispatch time: best %s, mean %s over %d run(s)\n",
		best.Round(time.Microsecond), (total / time.Duration(n)).Round(time.Microsecond), n)

	slog.Info("Histogram complete",
		"backend", backendName,
		"blocks", session.Geometry().NumGroups(),
		"elapsed", best,
	)

	if validateRun {
		engine, err := hist.NewEngine(backendName, hist.WithWorkers(workers), hist.WithGroupsPerTask(groupsPer))
		if err != nil {
			return err
		}
		defer engine.Close()
		report, err := hist.Validate(cmd.Context(), engine, cfg, frame, detail)
		if err != nil {
			return err
		}
		printReport(out, report)
		if report.Verdict() == hist.VerdictFail {
			return fmt.Errorf("validation failed")
		}
	}
	return nil
}

func printGeometry(w io.Writer, g hist.Geometry) {
	c := g.Config
	fmt.Fprintln(w, "\n=== Image and block configuration ===")
	fmt.Fprintf(w, "Image dimensions: %dx%d (%s, %s)\n", c.Width, c.Height, c.Format, c.Color)
	fmt.Fprintf(w, "Block dimensions: %dx%d\n", c.BlockWidth, c.BlockHeight)
	fmt.Fprintf(w, "Number of bins: %d\n", c.NumOfBins)
	fmt.Fprintf(w, "Work-group: %dx%d (%d lanes), %dx%d groups\n", g.LocalX, g.LocalY, g.Lanes, g.GroupsX, g.GroupsY)
	for _, ch := range c.Color.Channels() {
		p := g.Planes[ch]
		fmt.Fprintf(w, "%s plane: block size %d, %d blocks\n", ch, p.BlockSize, p.NumBlocks)
	}
}

func printHistograms(w io.Writer, cfg hist.Config, out *hist.Output) {
	channels := cfg.Color.Channels()

	fmt.Fprintln(w, "\n=== Histograms ===")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{"BIN"}
	for _, c := range channels {
		header = append(header, c.String()+" AVG", c.String()+" VAR")
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for bin := 0; bin < cfg.NumOfBins; bin++ {
		fmt.Fprintf(tw, "%d\t", bin)
		for _, c := range channels {
			ch := out.Channels[c]
			fmt.Fprintf(tw, "%d\t%.0f\t", ch.AverageHistogram[bin], ch.VarianceHistogram[bin])
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

func printDetailSummary(w io.Writer, cfg hist.Config, out *hist.Output) {
	fmt.Fprintln(w, "\n=== Block statistics ===")
	for _, c := range cfg.Color.Channels() {
		ch := out.Channels[c]
		if len(ch.Average) == 0 {
			continue
		}
		lo, hi := ch.Average[0], ch.Average[0]
		var maxVar float32
		for i, avg := range ch.Average {
			lo, hi = min(lo, avg), max(hi, avg)
			maxVar = max(maxVar, ch.Variance[i])
		}
		fmt.Fprintf(w, "%s: %d blocks, average in [%.2f, %.2f], max variance %.2f\n", c, len(ch.Average), lo, hi, maxVar)
	}
}

func printReport(w io.Writer, r hist.Report) {
	fmt.Fprintln(w, "\n=== Validation against reference ===")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tVECTOR\tLEN\tERROR %\tMAX DIFF\tVERDICT")
	fmt.Fprintln(tw, "-------\t------\t---\t-------\t--------\t-------")
	for _, c := range r.Comparisons {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.6f\t%g\t%s\n", c.Channel, c.Vector, c.Len, c.PercentError, c.MaxAbsDiff, c.Verdict)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%s: %s, reference: %s, speedup %.2fx\n",
		r.Backend, r.Elapsed.Round(time.Microsecond), r.RefElapsed.Round(time.Microsecond), r.Speedup())
	fmt.Fprintf(w, "Overall: %s\n", r.Verdict())
}
