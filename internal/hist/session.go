package hist

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Session owns the frame and output buffers of one computation instance
// and walks the lifecycle Unconfigured -> EnvironmentReady ->
// BuffersWritten <-> ComputationComplete.
//
// Output vectors are zeroed whenever a computation fails, so a caller
// never observes results of a dispatch that did not complete.
type Session struct {
	mu sync.Mutex

	cfg     Config
	geo     Geometry
	backend Backend
	cpuOpts []CPUOption
	engine  Engine
	owned   bool

	state       State
	frame       []int32
	out         *Output
	elapsed     time.Duration
	pendingBins int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithBackend selects the engine created by Setup.
func WithBackend(name string) SessionOption {
	return func(s *Session) {
		s.backend = NormalizeBackend(name)
	}
}

// WithCPUOptions forwards options to the CPU engine created by Setup.
func WithCPUOptions(opts ...CPUOption) SessionOption {
	return func(s *Session) {
		s.cpuOpts = append(s.cpuOpts, opts...)
	}
}

// WithEngine makes Setup use engine instead of creating one. The session
// does not close an injected engine.
func WithEngine(engine Engine) SessionOption {
	return func(s *Session) {
		s.engine = engine
		s.backend = engine.Backend()
	}
}

// NewSession validates cfg and allocates the output vectors. The session
// starts Unconfigured; call Setup before writing a frame.
func NewSession(cfg Config, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:     cfg,
		backend: BackendCPU,
		state:   StateUnconfigured,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reallocate()
	return s, nil
}

// Setup prepares the compute environment. It is a no-op when the
// environment is already ready.
func (s *Session) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnconfigured {
		return nil
	}
	if s.engine == nil {
		engine, err := NewEngine(string(s.backend), s.cpuOpts...)
		if err != nil {
			slog.Error("Environment setup failed", "backend", s.backend, "error", err)
			return fmt.Errorf("setup %s environment: %w", s.backend, err)
		}
		s.engine = engine
		s.owned = true
	}
	s.state = StateEnvironmentReady
	slog.Debug("Environment ready", "backend", s.backend, "device", s.engine.Describe())
	return nil
}

// Environment describes the compute device, or reports that it is not set up.
func (s *Session) Environment() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil || s.state == StateUnconfigured {
		return "environment not set up"
	}
	return fmt.Sprintf("%s: %s", s.engine.Backend(), s.engine.Describe())
}

// WriteFrame uploads a frame. frame must hold at least the luma and both
// chroma planes (the luma plane alone in grayscale mode); extra samples
// are ignored. A pending bin count change takes effect here.
func (s *Session) WriteFrame(frame []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUnconfigured {
		return ErrEnvironmentNotReady
	}
	if s.pendingBins != 0 {
		s.cfg.NumOfBins = s.pendingBins
		s.pendingBins = 0
		s.reallocate()
	}
	need := s.geo.RequiredSamples()
	if len(frame) < need {
		return fmt.Errorf("%w: frame has %d samples, need %d", ErrInvalidConfig, len(frame), need)
	}

	if cap(s.frame) < need {
		s.frame = make([]int32, need)
	}
	s.frame = s.frame[:need]
	copy(s.frame, frame)
	s.state = StateBuffersWritten
	return nil
}

// WriteFrameBytes widens 8-bit samples and uploads them like WriteFrame.
func (s *Session) WriteFrameBytes(raw []byte) error {
	return s.WriteFrame(WidenSamples(raw))
}

// SetImageSize changes the frame dimensions. Buffers are reallocated and
// a previously written frame is discarded.
func (s *Session) SetImageSize(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	cfg.Width, cfg.Height = width, height
	return s.reconfigure(cfg)
}

// SetBlockSize changes the block dimensions. Buffers are reallocated and
// a previously written frame is discarded.
func (s *Session) SetBlockSize(blockWidth, blockHeight int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	cfg.BlockWidth, cfg.BlockHeight = blockWidth, blockHeight
	return s.reconfigure(cfg)
}

// SetNumOfBins changes the histogram size from the next frame write on.
func (s *Session) SetNumOfBins(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	cfg.NumOfBins = n
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.pendingBins = n
	return nil
}

// Calculate runs one dispatch over the written frame. On any failure
// every output vector is zeroed and the error is returned.
func (s *Session) Calculate(ctx context.Context, detail Detail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out.Zero()
	s.elapsed = 0

	switch s.state {
	case StateUnconfigured:
		slog.Error("Calculation requested before setup")
		return ErrEnvironmentNotReady
	case StateEnvironmentReady:
		return ErrFrameNotWritten
	}

	d := &Dispatch{
		Geometry: s.geo,
		Frame:    s.frame,
		Detail:   detail,
		Output:   s.out,
	}
	elapsed, err := s.engine.Run(ctx, d)
	if err != nil {
		s.out.Zero()
		s.state = StateBuffersWritten
		slog.Error("Dispatch failed", "backend", s.engine.Backend(), "error", err)
		return err
	}

	s.elapsed = elapsed
	s.state = StateComputationComplete
	slog.Debug("Calculation complete",
		"backend", s.engine.Backend(),
		"blocks", s.geo.Planes[ChannelY].NumBlocks,
		"bins", s.cfg.NumOfBins,
		"elapsed", elapsed,
	)
	return nil
}

// AverageHistogram returns a copy of the block count per bin of c.
func (s *Session) AverageHistogram(c Channel) []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.out.Channels[c].AverageHistogram)
}

// VarianceHistogram returns a copy of the accumulated variance per bin of c.
func (s *Session) VarianceHistogram(c Channel) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.out.Channels[c].VarianceHistogram)
}

// Average returns a copy of the per-block averages of c. They are only
// populated by a detailed calculation.
func (s *Session) Average(c Channel) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.out.Channels[c].Average)
}

// Variance returns a copy of the per-block variances of c. They are only
// populated by a detailed calculation.
func (s *Session) Variance(c Channel) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.out.Channels[c].Variance)
}

// Result returns a deep copy of every output vector.
func (s *Session) Result() *Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Clone()
}

// Elapsed is the dispatch time of the last successful calculation.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Session) Geometry() Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geo
}

// Clone returns a new, unconfigured session with the same settings.
// Buffers and results are not shared.
func (s *Session) Clone() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &Session{
		cfg:     s.cfg,
		backend: s.backend,
		cpuOpts: slices.Clone(s.cpuOpts),
		state:   StateUnconfigured,
	}
	if s.pendingBins != 0 {
		c.cfg.NumOfBins = s.pendingBins
	}
	if !s.owned && s.engine != nil {
		c.engine = s.engine
	}
	c.reallocate()
	return c
}

// Close releases the engine and returns the session to Unconfigured.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owned && s.engine != nil {
		s.engine.Close()
		s.engine = nil
		s.owned = false
	}
	s.state = StateUnconfigured
	s.frame = nil
}

func (s *Session) reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	s.reallocate()
	s.frame = nil
	if s.state > StateEnvironmentReady {
		s.state = StateEnvironmentReady
	}
	return nil
}

func (s *Session) reallocate() {
	s.geo = NewGeometry(s.cfg)
	s.out = NewOutput(s.geo)
	s.elapsed = 0
}

// Compute validates cfg and runs a single dispatch of frame on engine.
// It has no effect beyond the returned output.
func Compute(ctx context.Context, engine Engine, cfg Config, frame []int32, detail Detail) (*Output, time.Duration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}
	geo := NewGeometry(cfg)
	if need := geo.RequiredSamples(); len(frame) < need {
		return nil, 0, fmt.Errorf("%w: frame has %d samples, need %d", ErrInvalidConfig, len(frame), need)
	}
	out := NewOutput(geo)
	elapsed, err := engine.Run(ctx, &Dispatch{Geometry: geo, Frame: frame, Detail: detail, Output: out})
	if err != nil {
		out.Zero()
		return out, 0, err
	}
	return out, elapsed, nil
}

// WidenSamples converts 8-bit samples to the integer frame representation.
func WidenSamples(raw []byte) []int32 {
	frame := make([]int32, len(raw))
	for i, b := range raw {
		frame[i] = int32(b)
	}
	return frame
}
