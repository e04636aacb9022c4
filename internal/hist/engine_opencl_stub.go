//go:build !gpu

package hist

import (
	"fmt"

	"github.com/cwbudde/blockhist/internal/gpu"
)

func newOpenCLEngine() (Engine, error) {
	return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, gpu.ErrNotBuilt)
}
