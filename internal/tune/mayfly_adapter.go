package tune

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest population mayfly accepts.
const MinPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to Optimizer.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  max(popSize, MinPopulation),
		seed:     seed,
	}
}

// Run executes the optimization. Mayfly takes scalar bounds, so only the
// first entries of lower and upper are used; callers normalize their
// search space to a common range.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}
	return result.GlobalBest.Position, result.GlobalBest.Cost, nil
}
