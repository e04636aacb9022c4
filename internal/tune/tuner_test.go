package tune

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/cwbudde/blockhist/internal/store"
)

// gridOptimizer evaluates a fixed list of points and returns the cheapest.
type gridOptimizer struct {
	points [][]float64
}

func (g gridOptimizer) Run(eval func([]float64) float64, _, _ []float64, _ int) ([]float64, float64, error) {
	best, cost := g.points[0], math.Inf(1)
	for _, p := range g.points {
		if c := eval(p); c < cost {
			best, cost = p, c
		}
	}
	return best, cost, nil
}

func testFrame(cfg hist.Config) []int32 {
	rng := rand.New(rand.NewSource(3))
	frame := make([]int32, hist.NewGeometry(cfg).FrameSize)
	for i := range frame {
		frame[i] = int32(rng.Intn(256))
	}
	return frame
}

func smallConfig() hist.Config {
	cfg := hist.DefaultConfig()
	cfg.Width, cfg.Height = 128, 64
	cfg.BlockWidth, cfg.BlockHeight = 8, 8
	return cfg
}

func TestDecode(t *testing.T) {
	tuner := &Tuner{MaxWorkers: 8}
	tests := []struct {
		x    []float64
		want Params
	}{
		{[]float64{0, 0}, Params{Workers: 1, GroupsPerTask: 1}},
		{[]float64{1, 1}, Params{Workers: 8, GroupsPerTask: 256}},
		{[]float64{-3, 2}, Params{Workers: 1, GroupsPerTask: 256}},
		{[]float64{0.5, 0.5}, Params{Workers: 5, GroupsPerTask: 16}},
	}
	for _, tt := range tests {
		if got := tuner.decode(tt.x); got != tt.want {
			t.Errorf("decode(%v) = %+v, want %+v", tt.x, got, tt.want)
		}
	}
}

func TestTuneRecordsTrials(t *testing.T) {
	cfg := smallConfig()
	dir := t.TempDir()
	trace, err := store.NewTraceWriter(dir, "tune-test")
	if err != nil {
		t.Fatal(err)
	}

	tuner := &Tuner{
		Optimizer: gridOptimizer{points: [][]float64{
			{0, 0}, {1, 1}, {0, 0}, {0.5, 0.5},
		}},
		Config:     cfg,
		Frame:      testFrame(cfg),
		Repeats:    2,
		MaxWorkers: 4,
		Trace:      trace,
	}

	result, err := tuner.Tune(context.Background())
	if err != nil {
		t.Fatalf("Tune failed: %v", err)
	}
	if result.Elapsed <= 0 || result.Baseline <= 0 {
		t.Errorf("timings = %v / %v", result.Elapsed, result.Baseline)
	}
	if result.Best.Workers < 1 || result.Best.Workers > 4 {
		t.Errorf("best workers = %d", result.Best.Workers)
	}
	// baseline plus three distinct grid points; the repeated point is cached
	if result.Trials < 3 || result.Trials > 4 {
		t.Errorf("trials = %d", result.Trials)
	}
	if err := trace.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := store.ReadTrace(dir, "tune-test")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) != result.Trials {
		t.Errorf("trace has %d entries, want %d", len(entries), result.Trials)
	}
}

func TestTuneRejectsShortFrame(t *testing.T) {
	cfg := smallConfig()
	tuner := &Tuner{Optimizer: gridOptimizer{points: [][]float64{{0, 0}}}, Config: cfg, Frame: make([]int32, 10)}

	if _, err := tuner.Tune(context.Background()); !errors.Is(err, hist.ErrInvalidConfig) {
		t.Errorf("Tune() = %v, want ErrInvalidConfig", err)
	}
}

func TestTuneCancelled(t *testing.T) {
	cfg := smallConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tuner := &Tuner{Optimizer: gridOptimizer{points: [][]float64{{0, 0}}}, Config: cfg, Frame: testFrame(cfg)}
	if _, err := tuner.Tune(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Tune() = %v, want context.Canceled", err)
	}
}
