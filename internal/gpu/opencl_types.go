package gpu

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotBuilt indicates the binary was built without GPU support.
var ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")

// DeviceType describes the class of an OpenCL device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// DeviceInfo captures metadata about an OpenCL device.
type DeviceInfo struct {
	Name             string
	Vendor           string
	Version          string
	Type             DeviceType
	MaxComputeUnits  uint32
	MaxWorkGroupSize int
	LocalMemSize     uint64
	Extensions       []string
}

// HasExtension reports whether the device advertises ext.
func (d DeviceInfo) HasExtension(ext string) bool {
	for _, e := range d.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s %s (%s, %d CUs, max work-group %d)", d.Vendor, d.Name, d.Type, d.MaxComputeUnits, d.MaxWorkGroupSize)
}

// PlatformInfo captures metadata about an OpenCL platform and its devices.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
	Devices []DeviceInfo
}

func splitExtensions(s string) []string {
	return strings.Fields(s)
}
