//go:build !gpu

package gpu

import (
	"errors"
	"testing"
)

func TestStubReportsNotBuilt(t *testing.T) {
	if _, err := InitOpenCL(); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("InitOpenCL() = %v, want ErrNotBuilt", err)
	}
	if _, err := EnumeratePlatforms(); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("EnumeratePlatforms() = %v, want ErrNotBuilt", err)
	}
}
