package hist

import (
	"context"
	"errors"
	"testing"
	"time"
)

// failingEngine writes garbage into the output before reporting an error.
type failingEngine struct{}

func (failingEngine) Backend() Backend { return Backend("failing") }
func (failingEngine) Describe() string { return "always fails" }
func (failingEngine) Close()           {}

func (failingEngine) Run(_ context.Context, d *Dispatch) (time.Duration, error) {
	for i := range d.Output.Channels {
		for j := range d.Output.Channels[i].AverageHistogram {
			d.Output.Channels[i].AverageHistogram[j] = 42
		}
	}
	return 0, &DispatchError{Backend: "failing", Op: "launch", Err: errors.New("invalid work-group size")}
}

func newTestSession(t *testing.T, cfg Config, opts ...SessionOption) *Session {
	t.Helper()
	s, err := NewSession(cfg, opts...)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSessionLifecycle(t *testing.T) {
	cfg := testConfig(Chromatic, FormatPlanar, 32, 32, 8, 8, 16)
	s := newTestSession(t, cfg)
	ctx := context.Background()
	frame := randomFrame(1, NewGeometry(cfg).FrameSize)

	if s.State() != StateUnconfigured {
		t.Fatalf("initial state = %s", s.State())
	}
	if err := s.WriteFrame(frame); !errors.Is(err, ErrEnvironmentNotReady) {
		t.Fatalf("WriteFrame before Setup: %v", err)
	}
	if err := s.Calculate(ctx, DetailExclude); !errors.Is(err, ErrEnvironmentNotReady) {
		t.Fatalf("Calculate before Setup: %v", err)
	}

	if err := s.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if s.State() != StateEnvironmentReady {
		t.Fatalf("state after Setup = %s", s.State())
	}
	if err := s.Calculate(ctx, DetailExclude); !errors.Is(err, ErrFrameNotWritten) {
		t.Fatalf("Calculate without frame: %v", err)
	}

	if err := s.WriteFrame(frame); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if s.State() != StateBuffersWritten {
		t.Fatalf("state after WriteFrame = %s", s.State())
	}
	if err := s.Calculate(ctx, DetailInclude); err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if s.State() != StateComputationComplete {
		t.Fatalf("state after Calculate = %s", s.State())
	}
	first := s.AverageHistogram(ChannelU)

	// Complete is re-enterable without teardown.
	if err := s.WriteFrame(frame); err != nil {
		t.Fatalf("second WriteFrame failed: %v", err)
	}
	if err := s.Calculate(ctx, DetailInclude); err != nil {
		t.Fatalf("second Calculate failed: %v", err)
	}
	second := s.AverageHistogram(ChannelU)
	if sumCounts(first) != 16 || sumCounts(second) != 16 {
		t.Errorf("histograms accumulated across calls: %v then %v", first, second)
	}
	if got := len(s.Average(ChannelY)); got != 16 {
		t.Errorf("luma detail has %d blocks, want 16", got)
	}
}

func TestSessionResizeResetsState(t *testing.T) {
	cfg := testConfig(Grayscale, FormatPlanar, 32, 32, 8, 8, 16)
	s := newTestSession(t, cfg)
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteFrame(make([]int32, 32*32)); err != nil {
		t.Fatal(err)
	}

	if err := s.SetBlockSize(4, 4); err != nil {
		t.Fatalf("SetBlockSize failed: %v", err)
	}
	if s.State() != StateEnvironmentReady {
		t.Errorf("state after SetBlockSize = %s, want environment-ready", s.State())
	}
	if got := len(s.Average(ChannelY)); got != 64 {
		t.Errorf("detail vector has %d entries after resize, want 64", got)
	}
	if err := s.Calculate(context.Background(), DetailExclude); !errors.Is(err, ErrFrameNotWritten) {
		t.Errorf("Calculate after resize: %v", err)
	}

	if err := s.SetImageSize(64, 16); err != nil {
		t.Fatalf("SetImageSize failed: %v", err)
	}
	if g := s.Geometry(); g.LumaSize != 64*16 {
		t.Errorf("luma size = %d after SetImageSize", g.LumaSize)
	}
	if err := s.SetBlockSize(3, 4); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetBlockSize(3, 4): %v", err)
	}
}

func TestSessionNumOfBinsAppliesOnWrite(t *testing.T) {
	cfg := testConfig(Grayscale, FormatPlanar, 16, 16, 4, 4, 16)
	s := newTestSession(t, cfg)
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetNumOfBins(0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetNumOfBins(0): %v", err)
	}
	if err := s.SetNumOfBins(64); err != nil {
		t.Fatal(err)
	}
	if got := len(s.AverageHistogram(ChannelY)); got != 16 {
		t.Errorf("bin count changed before write: %d", got)
	}
	if err := s.WriteFrame(constantFrame(256, 200)); err != nil {
		t.Fatal(err)
	}
	if err := s.Calculate(context.Background(), DetailExclude); err != nil {
		t.Fatal(err)
	}
	hist := s.AverageHistogram(ChannelY)
	if len(hist) != 64 || hist[50] != 16 {
		t.Errorf("histogram after SetNumOfBins(64): len %d, bin 50 = %d", len(hist), hist[50])
	}
}

func TestSessionFailureZeroesOutputs(t *testing.T) {
	cfg := testConfig(Chromatic, FormatPlanar, 16, 16, 4, 4, 8)
	s := newTestSession(t, cfg, WithEngine(failingEngine{}))
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteFrame(make([]int32, NewGeometry(cfg).FrameSize)); err != nil {
		t.Fatal(err)
	}

	err := s.Calculate(context.Background(), DetailInclude)
	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.Op != "launch" {
		t.Fatalf("expected launch DispatchError, got %v", err)
	}
	for _, c := range cfg.Color.Channels() {
		if n := sumCounts(s.AverageHistogram(c)); n != 0 {
			t.Errorf("%s histogram not zeroed after failure: %v", c, s.AverageHistogram(c))
		}
	}
	if s.State() != StateBuffersWritten {
		t.Errorf("state after failure = %s", s.State())
	}
	if s.Elapsed() != 0 {
		t.Errorf("elapsed after failure = %v", s.Elapsed())
	}
}

func TestSessionClone(t *testing.T) {
	cfg := testConfig(Grayscale, FormatSemiPlanar, 16, 16, 4, 4, 8)
	s := newTestSession(t, cfg, WithBackend("reference"))
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}

	c := s.Clone()
	defer c.Close()
	if c.State() != StateUnconfigured {
		t.Errorf("clone state = %s, want unconfigured", c.State())
	}
	if c.Config() != s.Config() {
		t.Errorf("clone config = %+v, want %+v", c.Config(), s.Config())
	}
	if err := c.Setup(); err != nil {
		t.Fatal(err)
	}
	if got := c.Environment(); got == "environment not set up" {
		t.Errorf("clone environment not ready after Setup")
	}
}

func TestSessionUnknownBackend(t *testing.T) {
	s := newTestSession(t, DefaultConfig(), WithBackend("metal"))
	if err := s.Setup(); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	if s.State() != StateUnconfigured {
		t.Errorf("state after failed setup = %s", s.State())
	}
}

func TestWriteFrameBytes(t *testing.T) {
	cfg := testConfig(Grayscale, FormatPlanar, 8, 8, 8, 8, 16)
	s := newTestSession(t, cfg)
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}
	raw := make([]byte, 64)
	for i := range raw {
		raw[i] = 250
	}
	if err := s.WriteFrameBytes(raw[:10]); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("short frame: %v", err)
	}
	if err := s.WriteFrameBytes(raw); err != nil {
		t.Fatal(err)
	}
	if err := s.Calculate(context.Background(), DetailInclude); err != nil {
		t.Fatal(err)
	}
	if avg := s.Average(ChannelY); avg[0] != 250 {
		t.Errorf("average = %v, want 250 (bytes must not be sign-extended)", avg[0])
	}
}
