//go:build gpu

package hist

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <stdlib.h>

static const char* blockhist_engine_error_string(cl_int status) {
	switch (status) {
	case CL_SUCCESS: return "CL_SUCCESS";
	case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
	case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
	case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
	case CL_PROFILING_INFO_NOT_AVAILABLE: return "CL_PROFILING_INFO_NOT_AVAILABLE";
	case CL_BUILD_PROGRAM_FAILURE: return "CL_BUILD_PROGRAM_FAILURE";
	case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
	case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
	case CL_INVALID_MEM_OBJECT: return "CL_INVALID_MEM_OBJECT";
	case CL_INVALID_BUILD_OPTIONS: return "CL_INVALID_BUILD_OPTIONS";
	case CL_INVALID_PROGRAM_EXECUTABLE: return "CL_INVALID_PROGRAM_EXECUTABLE";
	case CL_INVALID_KERNEL_NAME: return "CL_INVALID_KERNEL_NAME";
	case CL_INVALID_KERNEL: return "CL_INVALID_KERNEL";
	case CL_INVALID_ARG_INDEX: return "CL_INVALID_ARG_INDEX";
	case CL_INVALID_ARG_VALUE: return "CL_INVALID_ARG_VALUE";
	case CL_INVALID_ARG_SIZE: return "CL_INVALID_ARG_SIZE";
	case CL_INVALID_KERNEL_ARGS: return "CL_INVALID_KERNEL_ARGS";
	case CL_INVALID_WORK_DIMENSION: return "CL_INVALID_WORK_DIMENSION";
	case CL_INVALID_WORK_GROUP_SIZE: return "CL_INVALID_WORK_GROUP_SIZE";
	case CL_INVALID_WORK_ITEM_SIZE: return "CL_INVALID_WORK_ITEM_SIZE";
	case CL_INVALID_GLOBAL_WORK_SIZE: return "CL_INVALID_GLOBAL_WORK_SIZE";
	case CL_INVALID_EVENT: return "CL_INVALID_EVENT";
	default: return "CL_UNKNOWN_ERROR";
	}
}
*/
import "C"

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"github.com/cwbudde/blockhist/internal/gpu"
)

const openclKernelName = "block_histogram"

// clStatusError carries a failed OpenCL status code.
type clStatusError struct {
	call   string
	status int
}

func (e *clStatusError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.call, C.GoString(C.blockhist_engine_error_string(C.cl_int(e.status))), e.status)
}

type clChannel struct {
	avgHist C.cl_mem
	varHist C.cl_mem
	average C.cl_mem
	vari    C.cl_mem

	bins   int
	blocks int

	intVars   []int32
	floatVars []float32
}

type openCLEngine struct {
	runtime *gpu.Runtime
	context C.cl_context
	queue   C.cl_command_queue
	device  C.cl_device_id

	program C.cl_program
	kernel  C.cl_kernel
	variant kernelVariant
	built   bool

	frame     C.cl_mem
	frameLen  int
	channels  [NumChannels]clChannel
	precision Precision
}

func newOpenCLEngine() (Engine, error) {
	rt, err := gpu.InitOpenCL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e := &openCLEngine{
		runtime: rt,
		context: C.cl_context(rt.ContextPtr()),
		queue:   C.cl_command_queue(rt.QueuePtr()),
		device:  C.cl_device_id(rt.DevicePtr()),
	}
	if e.context == nil || e.queue == nil {
		rt.Close()
		return nil, fmt.Errorf("%w: failed to access OpenCL context/queue", ErrBackendUnavailable)
	}
	slog.Info("OpenCL backend initialised",
		"device", rt.Device.Name,
		"vendor", rt.Device.Vendor,
		"compute_units", rt.Device.MaxComputeUnits,
		"max_work_group", rt.Device.MaxWorkGroupSize,
	)
	return e, nil
}

func (e *openCLEngine) Backend() Backend {
	return BackendOpenCL
}

func (e *openCLEngine) Describe() string {
	return fmt.Sprintf("%s on %s", e.runtime.Device, e.runtime.Platform.Name)
}

func (e *openCLEngine) Run(ctx context.Context, d *Dispatch) (time.Duration, error) {
	geo := &d.Geometry
	if geo.Lanes > e.runtime.Device.MaxWorkGroupSize {
		return 0, e.fail("workgroup", fmt.Errorf("%d lanes exceed device limit %d", geo.Lanes, e.runtime.Device.MaxWorkGroupSize))
	}
	if err := ctx.Err(); err != nil {
		return 0, e.fail("run", err)
	}

	if err := e.ensureKernel(newKernelVariant(*geo, d.Detail)); err != nil {
		return 0, e.fail("build", err)
	}
	if err := e.ensureBuffers(geo); err != nil {
		return 0, e.fail("alloc", err)
	}
	if err := e.upload(geo, d.Frame); err != nil {
		return 0, e.fail("upload", err)
	}
	if err := e.setArgs(geo); err != nil {
		return 0, e.fail("args", err)
	}

	elapsed, err := e.launch(geo)
	if err != nil {
		return 0, e.fail("launch", err)
	}
	if err := e.readback(geo, d); err != nil {
		return 0, e.fail("readback", err)
	}

	slog.Debug("OpenCL dispatch complete", "groups", geo.NumGroups(), "lanes", geo.Lanes, "elapsed", elapsed)
	return elapsed, nil
}

func (e *openCLEngine) fail(op string, err error) error {
	return &DispatchError{Backend: BackendOpenCL, Op: op, Err: err}
}

func (e *openCLEngine) clError(call string, status C.cl_int) error {
	return &clStatusError{call: call, status: int(status)}
}

func (e *openCLEngine) ensureKernel(v kernelVariant) error {
	if e.built && e.variant == v {
		return nil
	}
	e.releaseProgram()

	source := C.CString(openclKernelSource)
	defer C.free(unsafe.Pointer(source))

	var status C.cl_int
	e.program = C.clCreateProgramWithSource(e.context, 1, &source, nil, &status)
	if status != C.CL_SUCCESS {
		return e.clError("clCreateProgramWithSource", status)
	}

	options := C.CString(v.buildOptions())
	defer C.free(unsafe.Pointer(options))
	status = C.clBuildProgram(e.program, 1, &e.device, options, nil, nil)
	if status != C.CL_SUCCESS {
		e.dumpBuildLog()
		return e.clError("clBuildProgram", status)
	}

	name := C.CString(openclKernelName)
	defer C.free(unsafe.Pointer(name))
	e.kernel = C.clCreateKernel(e.program, name, &status)
	if status != C.CL_SUCCESS {
		return e.clError("clCreateKernel", status)
	}

	e.variant = v
	e.built = true
	slog.Debug("OpenCL kernel built", "options", v.buildOptions())
	return nil
}

func (e *openCLEngine) dumpBuildLog() {
	if e.program == nil || e.device == nil {
		return
	}
	var logSize C.size_t
	if status := C.clGetProgramBuildInfo(e.program, e.device, C.CL_PROGRAM_BUILD_LOG, 0, nil, &logSize); status != C.CL_SUCCESS || logSize == 0 {
		return
	}
	buf := make([]byte, int(logSize))
	if status := C.clGetProgramBuildInfo(e.program, e.device, C.CL_PROGRAM_BUILD_LOG, logSize, unsafe.Pointer(&buf[0]), nil); status != C.CL_SUCCESS {
		slog.Error("OpenCL: failed to fetch build log", "err", status)
		return
	}
	slog.Error("OpenCL build log", "log", string(buf))
}

func (e *openCLEngine) createBuffer(name string, flags C.cl_mem_flags, bytes int) (C.cl_mem, error) {
	var status C.cl_int
	mem := C.clCreateBuffer(e.context, flags, C.size_t(max(bytes, 4)), nil, &status)
	if status != C.CL_SUCCESS {
		return nil, e.clError("clCreateBuffer("+name+")", status)
	}
	return mem, nil
}

func (e *openCLEngine) ensureBuffers(geo *Geometry) error {
	need := geo.RequiredSamples()
	if e.frame == nil || e.frameLen != need {
		releaseMem(&e.frame)
		mem, err := e.createBuffer("frame", C.CL_MEM_READ_ONLY, need*4)
		if err != nil {
			return err
		}
		e.frame, e.frameLen = mem, need
	}

	bins := geo.Config.NumOfBins
	precision := geo.Config.Precision
	for _, c := range geo.Config.Color.Channels() {
		ch := &e.channels[c]
		blocks := geo.Planes[c].NumBlocks
		if ch.avgHist != nil && ch.bins == bins && ch.blocks == blocks && e.precision == precision {
			continue
		}
		ch.release()

		var err error
		if ch.avgHist, err = e.createBuffer("avgHist", C.CL_MEM_READ_WRITE, bins*4); err != nil {
			return err
		}
		if ch.varHist, err = e.createBuffer("varHist", C.CL_MEM_READ_WRITE, bins*4); err != nil {
			return err
		}
		if ch.average, err = e.createBuffer("average", C.CL_MEM_WRITE_ONLY, blocks*4); err != nil {
			return err
		}
		if ch.vari, err = e.createBuffer("variance", C.CL_MEM_WRITE_ONLY, blocks*4); err != nil {
			return err
		}
		ch.bins, ch.blocks = bins, blocks
		ch.intVars = make([]int32, bins)
		ch.floatVars = make([]float32, bins)
	}
	e.precision = precision
	return nil
}

// upload writes the frame and clears every histogram buffer.
func (e *openCLEngine) upload(geo *Geometry, frame []int32) error {
	n := geo.RequiredSamples()
	status := C.clEnqueueWriteBuffer(e.queue, e.frame, C.CL_TRUE, 0, C.size_t(n*4), unsafe.Pointer(&frame[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return e.clError("clEnqueueWriteBuffer(frame)", status)
	}

	var zero C.cl_int
	for _, c := range geo.Config.Color.Channels() {
		ch := &e.channels[c]
		size := C.size_t(ch.bins * 4)
		for _, mem := range []C.cl_mem{ch.avgHist, ch.varHist} {
			status = C.clEnqueueFillBuffer(e.queue, mem, unsafe.Pointer(&zero), C.size_t(unsafe.Sizeof(zero)), 0, size, 0, nil, nil)
			if status != C.CL_SUCCESS {
				return e.clError("clEnqueueFillBuffer", status)
			}
		}
	}
	return nil
}

func (e *openCLEngine) setArgs(geo *Geometry) error {
	scalars := []C.cl_int{
		C.cl_int(geo.Config.NumOfBins),
		C.cl_int(geo.Config.Format),
		C.cl_int(geo.Planes[ChannelY].Stride),
		C.cl_int(geo.LumaSize),
		C.cl_int(geo.ChromaSize),
		C.cl_int(geo.Planes[ChannelU].Stride),
	}

	if status := C.clSetKernelArg(e.kernel, 0, C.size_t(unsafe.Sizeof(e.frame)), unsafe.Pointer(&e.frame)); status != C.CL_SUCCESS {
		return e.clError("clSetKernelArg(frame)", status)
	}
	for i := range scalars {
		if status := C.clSetKernelArg(e.kernel, C.cl_uint(1+i), C.size_t(unsafe.Sizeof(scalars[i])), unsafe.Pointer(&scalars[i])); status != C.CL_SUCCESS {
			return e.clError(fmt.Sprintf("clSetKernelArg(%d)", 1+i), status)
		}
	}

	arg := C.cl_uint(1 + len(scalars))
	for c := ChannelY; c < NumChannels; c++ {
		ch := &e.channels[c]
		if geo.Config.Color == Grayscale {
			// Chroma arguments are unused but must be bound.
			ch = &e.channels[ChannelY]
		}
		for _, mem := range []*C.cl_mem{&ch.avgHist, &ch.varHist, &ch.average, &ch.vari} {
			if status := C.clSetKernelArg(e.kernel, arg, C.size_t(unsafe.Sizeof(*mem)), unsafe.Pointer(mem)); status != C.CL_SUCCESS {
				return e.clError(fmt.Sprintf("clSetKernelArg(%d)", arg), status)
			}
			arg++
		}
	}
	return nil
}

// launch enqueues the dispatch and blocks until every group finished. The
// duration is taken from the profiling counters of the kernel event.
func (e *openCLEngine) launch(geo *Geometry) (time.Duration, error) {
	global := [2]C.size_t{C.size_t(geo.GlobalX), C.size_t(geo.GlobalY)}
	local := [2]C.size_t{C.size_t(geo.LocalX), C.size_t(geo.LocalY)}

	var event C.cl_event
	status := C.clEnqueueNDRangeKernel(e.queue, e.kernel, 2, nil, &global[0], &local[0], 0, nil, &event)
	if status != C.CL_SUCCESS {
		return 0, e.clError("clEnqueueNDRangeKernel", status)
	}
	defer C.clReleaseEvent(event)

	if status = C.clWaitForEvents(1, &event); status != C.CL_SUCCESS {
		return 0, e.clError("clWaitForEvents", status)
	}

	var start, end C.cl_ulong
	if status = C.clGetEventProfilingInfo(event, C.CL_PROFILING_COMMAND_START, C.size_t(unsafe.Sizeof(start)), unsafe.Pointer(&start), nil); status != C.CL_SUCCESS {
		return 0, e.clError("clGetEventProfilingInfo(start)", status)
	}
	if status = C.clGetEventProfilingInfo(event, C.CL_PROFILING_COMMAND_END, C.size_t(unsafe.Sizeof(end)), unsafe.Pointer(&end), nil); status != C.CL_SUCCESS {
		return 0, e.clError("clGetEventProfilingInfo(end)", status)
	}
	return time.Duration(end - start), nil
}

func (e *openCLEngine) read(mem C.cl_mem, dst unsafe.Pointer, bytes int) error {
	if bytes == 0 {
		return nil
	}
	status := C.clEnqueueReadBuffer(e.queue, mem, C.CL_TRUE, 0, C.size_t(bytes), dst, 0, nil, nil)
	if status != C.CL_SUCCESS {
		return e.clError("clEnqueueReadBuffer", status)
	}
	return nil
}

func (e *openCLEngine) readback(geo *Geometry, d *Dispatch) error {
	for _, c := range geo.Config.Color.Channels() {
		ch := &e.channels[c]
		out := &d.Output.Channels[c]

		if err := e.read(ch.avgHist, unsafe.Pointer(&out.AverageHistogram[0]), ch.bins*4); err != nil {
			return err
		}
		if geo.Config.Precision == PrecisionFloat {
			if err := e.read(ch.varHist, unsafe.Pointer(&ch.floatVars[0]), ch.bins*4); err != nil {
				return err
			}
			for i, v := range ch.floatVars {
				out.VarianceHistogram[i] = float64(v)
			}
		} else {
			if err := e.read(ch.varHist, unsafe.Pointer(&ch.intVars[0]), ch.bins*4); err != nil {
				return err
			}
			for i, v := range ch.intVars {
				out.VarianceHistogram[i] = float64(v)
			}
		}

		if d.Detail == DetailInclude && ch.blocks > 0 {
			if err := e.read(ch.average, unsafe.Pointer(&out.Average[0]), ch.blocks*4); err != nil {
				return err
			}
			if err := e.read(ch.vari, unsafe.Pointer(&out.Variance[0]), ch.blocks*4); err != nil {
				return err
			}
		}
	}
	return nil
}

func releaseMem(mem *C.cl_mem) {
	if *mem != nil {
		C.clReleaseMemObject(*mem)
		*mem = nil
	}
}

func (ch *clChannel) release() {
	releaseMem(&ch.avgHist)
	releaseMem(&ch.varHist)
	releaseMem(&ch.average)
	releaseMem(&ch.vari)
}

func (e *openCLEngine) releaseProgram() {
	if e.kernel != nil {
		C.clReleaseKernel(e.kernel)
		e.kernel = nil
	}
	if e.program != nil {
		C.clReleaseProgram(e.program)
		e.program = nil
	}
	e.built = false
}

func (e *openCLEngine) Close() {
	releaseMem(&e.frame)
	for i := range e.channels {
		e.channels[i].release()
	}
	e.releaseProgram()
	if e.runtime != nil {
		e.runtime.Close()
		e.runtime = nil
	}
}
