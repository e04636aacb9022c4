package hist

import (
	"context"
	"time"
)

// ReferenceEngine is the sequential oracle. It visits every block of
// every processed channel in row-major order and sums its samples with a
// plain scalar loop, then applies the same statistics and binning as the
// parallel engines.
type ReferenceEngine struct{}

// NewReferenceEngine returns the sequential engine.
func NewReferenceEngine() *ReferenceEngine {
	return &ReferenceEngine{}
}

func (ReferenceEngine) Backend() Backend {
	return BackendReference
}

func (ReferenceEngine) Describe() string {
	return "sequential reference (single goroutine)"
}

func (ReferenceEngine) Close() {}

func (ReferenceEngine) Run(ctx context.Context, d *Dispatch) (time.Duration, error) {
	geo := &d.Geometry
	start := time.Now()
	for _, c := range geo.Config.Color.Channels() {
		if err := ctx.Err(); err != nil {
			return time.Since(start), &DispatchError{Backend: BackendReference, Op: "run", Err: err}
		}
		referenceChannel(geo, geo.Planes[c], d.Frame, d.Detail, &d.Output.Channels[c])
	}
	return time.Since(start), nil
}

func referenceChannel(geo *Geometry, p Plane, frame []int32, detail Detail, out *ChannelOutput) {
	bins := geo.Config.NumOfBins
	clear(out.AverageHistogram)
	clear(out.VarianceHistogram)

	floatVars := make([]float32, bins)
	intVars := make([]int64, bins)

	for by := 0; by < p.BlocksY; by++ {
		for bx := 0; bx < p.BlocksX; bx++ {
			sum, sq := blockSums(p, frame, bx, by)
			average, variance := blockStats(sum, sq, p.BlockSize)

			if detail == DetailInclude {
				id := by*p.BlocksX + bx
				out.Average[id] = average
				out.Variance[id] = variance
			}

			bin := binIndex(average, bins)
			out.AverageHistogram[bin]++
			if geo.Config.Precision == PrecisionFloat {
				floatVars[bin] += variance
			} else {
				intVars[bin] += int64(variance)
			}
		}
	}

	for i := range bins {
		if geo.Config.Precision == PrecisionFloat {
			out.VarianceHistogram[i] = float64(floatVars[i])
		} else {
			out.VarianceHistogram[i] = float64(intVars[i])
		}
	}
}

// blockSums returns the sum and sum of squares of block (bx, by) of p.
func blockSums(p Plane, frame []int32, bx, by int) (sum, sq int32) {
	x0 := bx * p.BlockWidth
	y0 := by * p.BlockHeight
	for y := y0; y < y0+p.BlockHeight; y++ {
		for x := x0; x < x0+p.BlockWidth; x++ {
			s := frame[p.Index(x, y)]
			sum += s
			sq += s * s
		}
	}
	return sum, sq
}
