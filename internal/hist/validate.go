package hist

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Verdict classifies the deviation of a result from the reference.
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictWarn
	VerdictFail
)

// WarnThreshold is the percent error below which a mismatch still passes.
const WarnThreshold = 1.0

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "PASS"
	case VerdictWarn:
		return "PASS (warning)"
	default:
		return "FAIL"
	}
}

// Comparison is the validation outcome of one output vector.
type Comparison struct {
	Channel      Channel
	Vector       string
	Len          int
	PercentError float64
	MaxAbsDiff   float64
	Verdict      Verdict
}

func (c Comparison) String() string {
	if c.Verdict == VerdictPass {
		return fmt.Sprintf("%s %s: %s", c.Channel, c.Vector, c.Verdict)
	}
	return fmt.Sprintf("%s %s: %s error=%.6f%% max|diff|=%g", c.Channel, c.Vector, c.Verdict, c.PercentError, c.MaxAbsDiff)
}

// PercentError is the mean relative deviation of got from want in
// percent. Elements where want is zero contribute nothing but still count
// towards the mean.
func PercentError(want, got []float64) float64 {
	if len(want) == 0 {
		return 0
	}
	diff := make([]float64, len(want))
	floats.SubTo(diff, want, got)

	var sum float64
	for i, w := range want {
		if w != 0 {
			sum += math.Abs(diff[i]) / w
		}
	}
	return sum / float64(len(want)) * 100
}

// Classify maps a percent error to a verdict.
func Classify(percent float64) Verdict {
	switch {
	case percent == 0:
		return VerdictPass
	case percent < WarnThreshold:
		return VerdictWarn
	default:
		return VerdictFail
	}
}

// CompareVectors validates got against want. Vectors of different length
// always fail.
func CompareVectors(c Channel, name string, want, got []float64) Comparison {
	cmp := Comparison{Channel: c, Vector: name, Len: len(want)}
	if len(want) != len(got) {
		cmp.PercentError = 100
		cmp.MaxAbsDiff = math.Inf(1)
		cmp.Verdict = VerdictFail
		return cmp
	}
	cmp.PercentError = PercentError(want, got)
	if len(want) > 0 {
		diff := make([]float64, len(want))
		floats.SubTo(diff, want, got)
		cmp.MaxAbsDiff = floats.Norm(diff, math.Inf(1))
	}
	cmp.Verdict = Classify(cmp.PercentError)
	return cmp
}

// Report is the validation of a dispatch against the reference engine.
type Report struct {
	Backend     Backend
	Elapsed     time.Duration
	RefElapsed  time.Duration
	Comparisons []Comparison
}

// Verdict is the worst verdict of all comparisons.
func (r Report) Verdict() Verdict {
	worst := VerdictPass
	for _, c := range r.Comparisons {
		worst = max(worst, c.Verdict)
	}
	return worst
}

// Speedup is the reference time divided by the engine time.
func (r Report) Speedup() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.RefElapsed) / float64(r.Elapsed)
}

// Validate runs frame on engine and on the reference engine and compares
// every output vector of every processed channel.
func Validate(ctx context.Context, engine Engine, cfg Config, frame []int32, detail Detail) (Report, error) {
	got, elapsed, err := Compute(ctx, engine, cfg, frame, detail)
	if err != nil {
		return Report{}, err
	}
	want, refElapsed, err := Compute(ctx, NewReferenceEngine(), cfg, frame, detail)
	if err != nil {
		return Report{}, fmt.Errorf("reference: %w", err)
	}

	r := Report{Backend: engine.Backend(), Elapsed: elapsed, RefElapsed: refElapsed}
	for _, c := range cfg.Color.Channels() {
		w, g := want.Channels[c], got.Channels[c]
		r.Comparisons = append(r.Comparisons,
			CompareVectors(c, "average histogram", toFloat64(w.AverageHistogram), toFloat64(g.AverageHistogram)),
			CompareVectors(c, "variance histogram", w.VarianceHistogram, g.VarianceHistogram),
		)
		if detail == DetailInclude {
			r.Comparisons = append(r.Comparisons,
				CompareVectors(c, "average", toFloat64(w.Average), toFloat64(g.Average)),
				CompareVectors(c, "variance", toFloat64(w.Variance), toFloat64(g.Variance)),
			)
		}
	}
	return r, nil
}

func toFloat64[T int32 | float32](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
