//go:build !gpu

package gpu

import "unsafe"

// Runtime is a placeholder when GPU support is not compiled.
type Runtime struct {
	Platform PlatformInfo
	Device   DeviceInfo
}

// InitOpenCL returns an error when GPU support is not compiled in.
func InitOpenCL() (*Runtime, error) {
	return nil, ErrNotBuilt
}

// Close is a no-op without GPU support.
func (r *Runtime) Close() {}

func (r *Runtime) ContextPtr() unsafe.Pointer { return nil }
func (r *Runtime) QueuePtr() unsafe.Pointer   { return nil }
func (r *Runtime) DevicePtr() unsafe.Pointer  { return nil }

// EnumeratePlatforms returns an error when GPU support is not compiled in.
func EnumeratePlatforms() ([]PlatformInfo, error) {
	return nil, ErrNotBuilt
}
