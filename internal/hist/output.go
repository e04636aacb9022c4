package hist

import (
	"math"
	"slices"
	"sync/atomic"
)

// ChannelOutput holds the host-side result vectors of one channel.
//
// VarianceHistogram carries whole numbers under PrecisionInteger and
// float32-accumulated sums under PrecisionFloat.
type ChannelOutput struct {
	Average           []float32
	Variance          []float32
	AverageHistogram  []int32
	VarianceHistogram []float64
}

// Output is the readback target of a dispatch.
type Output struct {
	Channels [NumChannels]ChannelOutput
}

// NewOutput allocates vectors sized for g. Detail vectors are allocated
// for every processed channel regardless of the detail flag.
func NewOutput(g Geometry) *Output {
	out := &Output{}
	for _, c := range g.Config.Color.Channels() {
		n := g.Planes[c].NumBlocks
		out.Channels[c] = ChannelOutput{
			Average:           make([]float32, n),
			Variance:          make([]float32, n),
			AverageHistogram:  make([]int32, g.Config.NumOfBins),
			VarianceHistogram: make([]float64, g.Config.NumOfBins),
		}
	}
	return out
}

// Zero clears every vector in place.
func (o *Output) Zero() {
	for i := range o.Channels {
		clear(o.Channels[i].Average)
		clear(o.Channels[i].Variance)
		clear(o.Channels[i].AverageHistogram)
		clear(o.Channels[i].VarianceHistogram)
	}
}

// Clone returns a deep copy of o.
func (o *Output) Clone() *Output {
	c := &Output{}
	for i, ch := range o.Channels {
		c.Channels[i] = ChannelOutput{
			Average:           slices.Clone(ch.Average),
			Variance:          slices.Clone(ch.Variance),
			AverageHistogram:  slices.Clone(ch.AverageHistogram),
			VarianceHistogram: slices.Clone(ch.VarianceHistogram),
		}
	}
	return c
}

// accumulator is the device-side state of one channel during a dispatch:
// contended histogram counters plus block-partitioned detail vectors.
type accumulator struct {
	precision Precision
	counts    []atomic.Int32
	intVars   []atomic.Int64
	floatVars []atomic.Uint32

	average  []float32
	variance []float32
}

func newAccumulator(bins, blocks int, precision Precision) *accumulator {
	a := &accumulator{
		precision: precision,
		counts:    make([]atomic.Int32, bins),
		average:   make([]float32, blocks),
		variance:  make([]float32, blocks),
	}
	if precision == PrecisionFloat {
		a.floatVars = make([]atomic.Uint32, bins)
	} else {
		a.intVars = make([]atomic.Int64, bins)
	}
	return a
}

func (a *accumulator) fits(bins, blocks int, precision Precision) bool {
	return a != nil && a.precision == precision && len(a.counts) == bins && len(a.average) == blocks
}

// reset zeroes the histograms so every dispatch starts from scratch.
func (a *accumulator) reset() {
	for i := range a.counts {
		a.counts[i].Store(0)
	}
	for i := range a.intVars {
		a.intVars[i].Store(0)
	}
	for i := range a.floatVars {
		a.floatVars[i].Store(0)
	}
}

// bin records one block: count it in bin and add its variance to the
// matching variance bin.
func (a *accumulator) bin(bin int, variance float32) {
	a.counts[bin].Add(1)
	if a.precision == PrecisionFloat {
		atomicAddFloat32(&a.floatVars[bin], variance)
		return
	}
	a.intVars[bin].Add(int64(variance))
}

func (a *accumulator) readback(dst *ChannelOutput, detail Detail) {
	for i := range a.counts {
		dst.AverageHistogram[i] = a.counts[i].Load()
	}
	if a.precision == PrecisionFloat {
		for i := range a.floatVars {
			dst.VarianceHistogram[i] = float64(math.Float32frombits(a.floatVars[i].Load()))
		}
	} else {
		for i := range a.intVars {
			dst.VarianceHistogram[i] = float64(a.intVars[i].Load())
		}
	}
	if detail == DetailInclude {
		copy(dst.Average, a.average)
		copy(dst.Variance, a.variance)
	}
}

func atomicAddFloat32(addr *atomic.Uint32, delta float32) {
	for {
		old := addr.Load()
		next := math.Float32bits(math.Float32frombits(old) + delta)
		if addr.CompareAndSwap(old, next) {
			return
		}
	}
}
