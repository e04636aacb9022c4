package tune

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/cwbudde/blockhist/internal/store"
)

// maxGroupsPerTaskLog2 bounds the chunk size search to 1..256 groups.
const maxGroupsPerTaskLog2 = 8

// Params is one CPU engine setting.
type Params struct {
	Workers       int `json:"workers"`
	GroupsPerTask int `json:"groupsPerTask"`
}

// Result is the outcome of a tuning run.
type Result struct {
	Best     Params        `json:"best"`
	Elapsed  time.Duration `json:"elapsedNs"`
	Baseline time.Duration `json:"baselineNs"`
	Trials   int           `json:"trials"`
}

// Speedup of the best setting over the default CPU engine.
func (r Result) Speedup() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Baseline) / float64(r.Elapsed)
}

// Tuner searches the CPU engine's worker count and chunk size for the
// fastest dispatch of one frame.
type Tuner struct {
	Optimizer  Optimizer
	Config     hist.Config
	Frame      []int32
	Repeats    int
	MaxWorkers int
	// Trace receives every timed trial when set.
	Trace *store.TraceWriter

	trials int
	cache  map[Params]time.Duration
}

// decode maps a point of the unit square to engine parameters.
func (t *Tuner) decode(x []float64) Params {
	workers := 1 + int(math.Round(clamp01(x[0])*float64(t.MaxWorkers-1)))
	shift := int(math.Round(clamp01(x[1]) * maxGroupsPerTaskLog2))
	return Params{Workers: workers, GroupsPerTask: 1 << shift}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// measure returns the fastest of Repeats dispatches with p.
func (t *Tuner) measure(ctx context.Context, p Params) (time.Duration, error) {
	if d, ok := t.cache[p]; ok {
		return d, nil
	}

	engine := hist.NewCPUEngine(hist.WithWorkers(p.Workers), hist.WithGroupsPerTask(p.GroupsPerTask))
	defer engine.Close()

	geo := hist.NewGeometry(t.Config)
	d := &hist.Dispatch{Geometry: geo, Frame: t.Frame, Detail: hist.DetailExclude, Output: hist.NewOutput(geo)}
	best := time.Duration(math.MaxInt64)
	for i := 0; i < t.Repeats; i++ {
		elapsed, err := engine.Run(ctx, d)
		if err != nil {
			return 0, err
		}
		best = min(best, elapsed)
	}

	t.cache[p] = best
	t.trials++
	if t.Trace != nil {
		entry := store.TraceEntry{
			Trial:         t.trials,
			Backend:       string(hist.BackendCPU),
			Workers:       p.Workers,
			GroupsPerTask: p.GroupsPerTask,
			Elapsed:       best,
			Timestamp:     time.Now(),
		}
		if err := t.Trace.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "error", err)
		}
	}
	return best, nil
}

// Tune runs the optimizer and returns the fastest setting found.
func (t *Tuner) Tune(ctx context.Context) (Result, error) {
	if err := t.Config.Validate(); err != nil {
		return Result{}, err
	}
	if need := hist.NewGeometry(t.Config).RequiredSamples(); len(t.Frame) < need {
		return Result{}, fmt.Errorf("%w: frame has %d samples, need %d", hist.ErrInvalidConfig, len(t.Frame), need)
	}
	if t.Repeats < 1 {
		t.Repeats = 1
	}
	if t.MaxWorkers < 1 {
		t.MaxWorkers = runtime.GOMAXPROCS(0)
	}
	t.cache = make(map[Params]time.Duration)
	t.trials = 0

	baseline, err := t.measure(ctx, Params{Workers: runtime.GOMAXPROCS(0), GroupsPerTask: hist.DefaultGroupsPerTask})
	if err != nil {
		return Result{}, fmt.Errorf("baseline: %w", err)
	}

	var runErr error
	eval := func(x []float64) float64 {
		if runErr != nil {
			return math.Inf(1)
		}
		d, err := t.measure(ctx, t.decode(x))
		if err != nil {
			runErr = err
			return math.Inf(1)
		}
		return float64(d) / float64(time.Millisecond)
	}

	lower := []float64{0, 0}
	upper := []float64{1, 1}
	bestX, _, err := t.Optimizer.Run(eval, lower, upper, 2)
	if err != nil {
		return Result{}, err
	}
	if runErr != nil {
		return Result{}, runErr
	}

	best := t.decode(bestX)
	result := Result{
		Best:     best,
		Elapsed:  t.cache[best],
		Baseline: baseline,
		Trials:   t.trials,
	}
	if _, ok := t.cache[best]; !ok {
		if result.Elapsed, err = t.measure(ctx, best); err != nil {
			return Result{}, err
		}
	}

	slog.Info("Tuning complete",
		"workers", best.Workers,
		"groups_per_task", best.GroupsPerTask,
		"elapsed", result.Elapsed,
		"baseline", baseline,
		"trials", t.trials,
	)
	return result, nil
}
