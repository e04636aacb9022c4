package hist

import (
	"errors"
	"fmt"
	"strings"
)

// Format describes how the chroma planes are laid out after luma.
type Format int

const (
	// FormatPlanar stores U and V as two separate planes (I420).
	FormatPlanar Format = iota
	// FormatSemiPlanar interleaves U and V in one plane (NV12).
	FormatSemiPlanar
)

func (f Format) String() string {
	switch f {
	case FormatPlanar:
		return "planar"
	case FormatSemiPlanar:
		return "semi-planar"
	default:
		return "unknown"
	}
}

// ParseFormat maps user input to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "planar", "yuv", "i420":
		return FormatPlanar, nil
	case "semi-planar", "semiplanar", "nv12":
		return FormatSemiPlanar, nil
	default:
		return 0, fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, name)
	}
}

// Color selects the channel set processed by a dispatch.
type Color int

const (
	// Chromatic processes luma and both chroma channels in one dispatch.
	Chromatic Color = iota
	// Grayscale processes luma alone.
	Grayscale
)

func (c Color) String() string {
	switch c {
	case Chromatic:
		return "chromatic"
	case Grayscale:
		return "grayscale"
	default:
		return "unknown"
	}
}

// ParseColor maps user input to a Color.
func ParseColor(name string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chromatic", "color", "yuv":
		return Chromatic, nil
	case "grayscale", "gray", "luma", "y":
		return Grayscale, nil
	default:
		return 0, fmt.Errorf("%w: unknown color mode %q", ErrInvalidConfig, name)
	}
}

// Channels returns the channels computed in this mode.
func (c Color) Channels() []Channel {
	if c == Grayscale {
		return []Channel{ChannelY}
	}
	return []Channel{ChannelY, ChannelU, ChannelV}
}

// Channel identifies one plane of the frame.
type Channel int

const (
	ChannelY Channel = iota
	ChannelU
	ChannelV
)

// NumChannels is the number of planes in a frame.
const NumChannels = 3

func (c Channel) String() string {
	switch c {
	case ChannelY:
		return "Y"
	case ChannelU:
		return "U"
	case ChannelV:
		return "V"
	default:
		return "?"
	}
}

// Detail selects whether per-block averages and variances are kept.
type Detail int

const (
	DetailExclude Detail = iota
	DetailInclude
)

// Precision selects the accumulator type of the variance histogram.
//
// Integer truncates every block variance before an integer atomic add.
// Float adds the float32 variance with a compare-and-swap loop. The two
// modes differ in the low bits and are not expected to agree exactly.
type Precision int

const (
	PrecisionInteger Precision = iota
	PrecisionFloat
)

func (p Precision) String() string {
	if p == PrecisionFloat {
		return "float"
	}
	return "integer"
}

// ParsePrecision maps user input to a Precision.
func ParsePrecision(name string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "int", "integer":
		return PrecisionInteger, nil
	case "float", "f32":
		return PrecisionFloat, nil
	default:
		return 0, fmt.Errorf("%w: unknown precision %q", ErrInvalidConfig, name)
	}
}

// State is the lifecycle position of a Session.
type State int

const (
	StateUnconfigured State = iota
	StateEnvironmentReady
	StateBuffersWritten
	StateComputationComplete
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateEnvironmentReady:
		return "environment-ready"
	case StateBuffersWritten:
		return "buffers-written"
	case StateComputationComplete:
		return "computation-complete"
	default:
		return "unknown"
	}
}

var (
	// ErrEnvironmentNotReady is returned when a computation is requested
	// before Setup succeeded.
	ErrEnvironmentNotReady = errors.New("environment not set up")
	// ErrFrameNotWritten is returned when Calculate runs before a frame was written.
	ErrFrameNotWritten = errors.New("frame buffer not written")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DispatchError reports a failed launch or readback on a backend.
type DispatchError struct {
	Backend Backend
	Op      string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s dispatch failed at %s: %v", e.Backend, e.Op, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
