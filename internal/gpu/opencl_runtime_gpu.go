//go:build gpu

package gpu

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>

static const char* blockhist_cl_error_string(cl_int status) {
	switch (status) {
	case CL_SUCCESS: return "CL_SUCCESS";
	case CL_DEVICE_NOT_FOUND: return "CL_DEVICE_NOT_FOUND";
	case CL_DEVICE_NOT_AVAILABLE: return "CL_DEVICE_NOT_AVAILABLE";
	case CL_COMPILER_NOT_AVAILABLE: return "CL_COMPILER_NOT_AVAILABLE";
	case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
	case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
	case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
	case CL_PROFILING_INFO_NOT_AVAILABLE: return "CL_PROFILING_INFO_NOT_AVAILABLE";
	case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
	case CL_INVALID_DEVICE_TYPE: return "CL_INVALID_DEVICE_TYPE";
	case CL_INVALID_PLATFORM: return "CL_INVALID_PLATFORM";
	case CL_INVALID_DEVICE: return "CL_INVALID_DEVICE";
	case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
	case CL_INVALID_QUEUE_PROPERTIES: return "CL_INVALID_QUEUE_PROPERTIES";
	case CL_INVALID_COMMAND_QUEUE: return "CL_INVALID_COMMAND_QUEUE";
	default: return "CL_UNKNOWN_ERROR";
	}
}

// Profiling is required to time the dispatch on the device.
static cl_command_queue blockhist_create_queue(cl_context ctx, cl_device_id device, cl_int *status) {
	return clCreateCommandQueue(ctx, device, CL_QUEUE_PROFILING_ENABLE, status);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"
)

// Runtime owns the OpenCL context and a profiling command queue.
type Runtime struct {
	platformID C.cl_platform_id
	deviceID   C.cl_device_id
	context    C.cl_context
	queue      C.cl_command_queue
	Platform   PlatformInfo
	Device     DeviceInfo
}

// ErrNoDevices indicates that no usable OpenCL devices were found.
var ErrNoDevices = errors.New("no OpenCL devices found")

type platformRecord struct {
	id      C.cl_platform_id
	info    PlatformInfo
	devices []deviceRecord
}

type deviceRecord struct {
	id   C.cl_device_id
	info DeviceInfo
}

// InitOpenCL selects a device (GPU preferred, then CPU, then anything)
// and creates a context with a profiling queue on it.
func InitOpenCL() (*Runtime, error) {
	records, err := enumeratePlatformRecords()
	if err != nil {
		return nil, err
	}

	platform, device, ok := pickDevice(records, DeviceTypeGPU)
	if !ok {
		platform, device, ok = pickDevice(records, DeviceTypeCPU)
	}
	if !ok {
		platform, device, ok = pickDevice(records, "")
	}
	if !ok {
		return nil, ErrNoDevices
	}

	var status C.cl_int
	context := C.clCreateContext(nil, 1, &device.id, nil, nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateContext", status)
	}

	queue := C.blockhist_create_queue(context, device.id, &status)
	if status != C.CL_SUCCESS {
		C.clReleaseContext(context)
		return nil, statusError("clCreateCommandQueue", status)
	}

	slog.Debug("OpenCL runtime created", "platform", platform.info.Name, "device", device.info.Name)

	return &Runtime{
		platformID: platform.id,
		deviceID:   device.id,
		context:    context,
		queue:      queue,
		Platform:   platform.info,
		Device:     device.info,
	}, nil
}

// pickDevice returns the first device of type want. An empty want
// matches any device.
func pickDevice(records []platformRecord, want DeviceType) (platformRecord, deviceRecord, bool) {
	for _, platform := range records {
		for _, device := range platform.devices {
			if want == "" || device.info.Type == want {
				return platform, device, true
			}
		}
	}
	return platformRecord{}, deviceRecord{}, false
}

// ContextPtr exposes the cl_context handle to other cgo packages.
func (r *Runtime) ContextPtr() unsafe.Pointer { return unsafe.Pointer(r.context) }

// QueuePtr exposes the cl_command_queue handle to other cgo packages.
func (r *Runtime) QueuePtr() unsafe.Pointer { return unsafe.Pointer(r.queue) }

// DevicePtr exposes the cl_device_id handle to other cgo packages.
func (r *Runtime) DevicePtr() unsafe.Pointer { return unsafe.Pointer(r.deviceID) }

// Close releases OpenCL resources.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	if r.queue != nil {
		C.clReleaseCommandQueue(r.queue)
		r.queue = nil
	}
	if r.context != nil {
		C.clReleaseContext(r.context)
		r.context = nil
	}
}

// EnumeratePlatforms returns discovered platforms with their devices.
func EnumeratePlatforms() ([]PlatformInfo, error) {
	records, err := enumeratePlatformRecords()
	if err != nil {
		return nil, err
	}
	out := make([]PlatformInfo, len(records))
	for i, platform := range records {
		out[i] = platform.info
	}
	return out, nil
}

func enumeratePlatformRecords() ([]platformRecord, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_platform_id, int(count))
	status = C.clGetPlatformIDs(count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}

	records := make([]platformRecord, 0, len(ids))
	for _, pid := range ids {
		var info PlatformInfo
		var err error
		if info.Name, err = platformString(pid, C.CL_PLATFORM_NAME); err != nil {
			return nil, err
		}
		if info.Vendor, err = platformString(pid, C.CL_PLATFORM_VENDOR); err != nil {
			return nil, err
		}
		if info.Version, err = platformString(pid, C.CL_PLATFORM_VERSION); err != nil {
			return nil, err
		}

		rec := platformRecord{id: pid, info: info}
		devices, err := enumerateDevices(pid)
		switch {
		case errors.Is(err, ErrNoDevices):
		case err != nil:
			return nil, err
		default:
			rec.devices = devices
			for _, d := range devices {
				rec.info.Devices = append(rec.info.Devices, d.info)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func enumerateDevices(platform C.cl_platform_id) ([]deviceRecord, error) {
	var count C.cl_uint
	status := C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_ALL, 0, nil, &count)
	if status == C.CL_DEVICE_NOT_FOUND || (status == C.CL_SUCCESS && count == 0) {
		return nil, ErrNoDevices
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}

	ids := make([]C.cl_device_id, int(count))
	status = C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_ALL, count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	devices := make([]deviceRecord, 0, len(ids))
	for _, id := range ids {
		info, err := deviceInfo(id)
		if err != nil {
			return nil, err
		}
		devices = append(devices, deviceRecord{id: id, info: info})
	}
	return devices, nil
}

func deviceInfo(id C.cl_device_id) (DeviceInfo, error) {
	var info DeviceInfo
	var err error
	if info.Name, err = deviceString(id, C.CL_DEVICE_NAME); err != nil {
		return info, err
	}
	if info.Vendor, err = deviceString(id, C.CL_DEVICE_VENDOR); err != nil {
		return info, err
	}
	if info.Version, err = deviceString(id, C.CL_DEVICE_VERSION); err != nil {
		return info, err
	}
	extensions, err := deviceString(id, C.CL_DEVICE_EXTENSIONS)
	if err != nil {
		return info, err
	}
	info.Extensions = splitExtensions(extensions)

	var rawType C.cl_device_type
	if err := deviceScalar(id, C.CL_DEVICE_TYPE, unsafe.Pointer(&rawType), unsafe.Sizeof(rawType)); err != nil {
		return info, err
	}
	info.Type = mapDeviceType(rawType)

	var computeUnits C.cl_uint
	if err := deviceScalar(id, C.CL_DEVICE_MAX_COMPUTE_UNITS, unsafe.Pointer(&computeUnits), unsafe.Sizeof(computeUnits)); err != nil {
		return info, err
	}
	info.MaxComputeUnits = uint32(computeUnits)

	var groupSize C.size_t
	if err := deviceScalar(id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, unsafe.Pointer(&groupSize), unsafe.Sizeof(groupSize)); err != nil {
		return info, err
	}
	info.MaxWorkGroupSize = int(groupSize)

	var localMem C.cl_ulong
	if err := deviceScalar(id, C.CL_DEVICE_LOCAL_MEM_SIZE, unsafe.Pointer(&localMem), unsafe.Sizeof(localMem)); err != nil {
		return info, err
	}
	info.LocalMemSize = uint64(localMem)

	return info, nil
}

func deviceScalar(id C.cl_device_id, param C.cl_device_info, dst unsafe.Pointer, size uintptr) error {
	status := C.clGetDeviceInfo(id, param, C.size_t(size), dst, nil)
	if status != C.CL_SUCCESS {
		return statusError(fmt.Sprintf("clGetDeviceInfo(%d)", int(param)), status)
	}
	return nil
}

func platformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	var size C.size_t
	if status := C.clGetPlatformInfo(id, param, 0, nil, &size); status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, int(size))
	if status := C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil); status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(value)", status)
	}
	return trimNull(buf), nil
}

func deviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	var size C.size_t
	if status := C.clGetDeviceInfo(id, param, 0, nil, &size); status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, int(size))
	if status := C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil); status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(value)", status)
	}
	return trimNull(buf), nil
}

func trimNull(buf []byte) string {
	if n := len(buf); n > 0 && buf[n-1] == 0 {
		buf = buf[:n-1]
	}
	return string(buf)
}

func mapDeviceType(dt C.cl_device_type) DeviceType {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return DeviceTypeGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return DeviceTypeCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return DeviceTypeAccelerator
	case dt&C.CL_DEVICE_TYPE_DEFAULT != 0:
		return DeviceTypeDefault
	default:
		return DeviceTypeUnknown
	}
}

func statusError(prefix string, status C.cl_int) error {
	return fmt.Errorf("%s: %s (%d)", prefix, C.GoString(C.blockhist_cl_error_string(status)), int(status))
}
