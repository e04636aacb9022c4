package hist

import (
	"context"
	"math/rand"
	"testing"
)

func testConfig(color Color, format Format, w, h, bw, bh, bins int) Config {
	return Config{
		Format:      format,
		Color:       color,
		Width:       w,
		Height:      h,
		BlockWidth:  bw,
		BlockHeight: bh,
		NumOfBins:   bins,
		Precision:   PrecisionInteger,
	}
}

func randomFrame(seed int64, n int) []int32 {
	r := rand.New(rand.NewSource(seed))
	frame := make([]int32, n)
	for i := range frame {
		frame[i] = int32(r.Intn(256))
	}
	return frame
}

func constantFrame(n int, v int32) []int32 {
	frame := make([]int32, n)
	for i := range frame {
		frame[i] = v
	}
	return frame
}

func mustCompute(t testing.TB, engine Engine, cfg Config, frame []int32, detail Detail) *Output {
	t.Helper()
	out, _, err := Compute(context.Background(), engine, cfg, frame, detail)
	if err != nil {
		t.Fatalf("Compute(%s) failed: %v", engine.Backend(), err)
	}
	return out
}

// exactBlockSums recomputes the sums of every block of plane p with
// 64-bit arithmetic straight from the frame.
func exactBlockSums(p Plane, frame []int32) (sums, squares []int64) {
	for by := 0; by < p.BlocksY; by++ {
		for bx := 0; bx < p.BlocksX; bx++ {
			var s, q int64
			for y := by * p.BlockHeight; y < (by+1)*p.BlockHeight; y++ {
				for x := bx * p.BlockWidth; x < (bx+1)*p.BlockWidth; x++ {
					v := int64(frame[p.Index(x, y)])
					s += v
					q += v * v
				}
			}
			sums = append(sums, s)
			squares = append(squares, q)
		}
	}
	return sums, squares
}

func sumCounts(hist []int32) int {
	var n int
	for _, c := range hist {
		n += int(c)
	}
	return n
}
