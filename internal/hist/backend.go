package hist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend identifies an engine implementation.
type Backend string

const (
	BackendCPU       Backend = "cpu"
	BackendReference Backend = "reference"
	BackendOpenCL    Backend = "opencl"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown histogram backend")
	// ErrBackendUnavailable indicates the backend is not available in this build or host.
	ErrBackendUnavailable = errors.New("histogram backend unavailable")
)

// Dispatch is one launch of the reduction and binning kernel.
type Dispatch struct {
	Geometry Geometry
	Frame    []int32
	Detail   Detail
	Output   *Output
}

// Engine runs dispatches. Implementations reset all histograms on every
// run and write results only into Dispatch.Output.
type Engine interface {
	Backend() Backend
	// Run blocks until every work-group finished and results are read
	// back. It returns the elapsed time of the dispatch itself.
	Run(ctx context.Context, d *Dispatch) (time.Duration, error)
	// Describe returns a human readable description of the device.
	Describe() string
	Close()
}

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cpu", "parallel":
		return BackendCPU
	case "reference", "ref", "sequential", "scalar":
		return BackendReference
	case "gpu", "opencl", "cl":
		return BackendOpenCL
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Backend {
	return []Backend{BackendCPU, BackendReference, BackendOpenCL}
}

// NewEngine constructs the requested engine.
func NewEngine(name string, opts ...CPUOption) (Engine, error) {
	switch backend := NormalizeBackend(name); backend {
	case BackendCPU:
		return NewCPUEngine(opts...), nil
	case BackendReference:
		return NewReferenceEngine(), nil
	case BackendOpenCL:
		return newOpenCLEngine()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
