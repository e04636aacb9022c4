package hist

import (
	"log/slog"

	"golang.org/x/sys/cpu"
)

// reduceLanes folds the per-lane partial sums of one work-group into
// slot 0 using a halving tree: slot i absorbs slot i+width, width halves
// each round. len(sum) must be a power of two.
//
// With subgroup == 0 every round is separated by a barrier. Otherwise
// rounds stay synchronized while the values being merged span more than
// one sub-group; once all remaining values live in a single sub-group
// lane 0 folds them directly. The result is identical for integer sums.
//
// It returns the number of barriers the schedule needed.
func reduceLanes(sum, sq []int32, subgroup int) (barriers int) {
	n := len(sum)
	for width := n / 2; width > 0; width >>= 1 {
		if subgroup > 0 && 2*width <= subgroup {
			var s, q int32
			for i := 0; i < 2*width; i++ {
				s += sum[i]
				q += sq[i]
			}
			sum[0], sq[0] = s, q
			return barriers
		}

		barriers++
		for i := 0; i < width; i++ {
			sum[i] += sum[i+width]
			sq[i] += sq[i+width]
		}
	}
	return barriers
}

// blockStats derives the block mean and population variance from its
// integer sums: E[X^2] - E[X]^2 in float32. The explicit conversion
// keeps the compiler from fusing the multiply into the subtraction.
func blockStats(sum, sq int32, pixels int) (average, variance float32) {
	n := float32(pixels)
	average = float32(sum) / n
	variance = float32(sq)/n - float32(average*average)
	return average, variance
}

// binIndex maps a block average to its histogram bin. The average is
// truncated before scaling, so (int(avg) * bins) >> 8. Out-of-range
// results are clamped to the first or last bin.
func binIndex(average float32, numOfBins int) int {
	idx := (int(average) * numOfBins) >> 8
	if idx < 0 {
		return 0
	}
	if idx >= numOfBins {
		return numOfBins - 1
	}
	return idx
}

// DetectSubgroupWidth reports a lane width matching the widest integer
// SIMD unit of the host, or 0 when none is known.
func DetectSubgroupWidth() int {
	var width int
	switch {
	case cpu.X86.HasAVX512F:
		width = 16
	case cpu.X86.HasAVX2:
		width = 8
	case cpu.ARM64.HasASIMD:
		width = 4
	}
	slog.Debug("Subgroup width detected", "width", width)
	return width
}
