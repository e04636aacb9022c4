package hist

import "fmt"

// openclKernelSource is the device version of groupKernel. Channel set,
// detail output, variance accumulator type and the reduction schedule are
// selected with -D build options so one source covers every variant.
const openclKernelSource = `
#pragma OPENCL FP_CONTRACT OFF

#if FLOAT_VARHIST
typedef float var_t;

inline void add_variance(volatile __global float *p, float v) {
    union { unsigned int u; float f; } prev, next;
    do {
        prev.f = *p;
        next.f = prev.f + v;
    } while (atomic_cmpxchg((volatile __global unsigned int *)p, prev.u, next.u) != prev.u);
}
#else
typedef int var_t;

inline void add_variance(volatile __global int *p, float v) {
    atomic_add(p, (int)v);
}
#endif

inline void reduce(__local int *sum, __local int *sq, const int lane) {
    int width = LANES / 2;
    for (; width > 0; width >>= 1) {
        if (SUBGROUP_WIDTH > 0 && 2 * width <= SUBGROUP_WIDTH) {
            break;
        }
        if (lane < width) {
            sum[lane] += sum[lane + width];
            sq[lane] += sq[lane + width];
        }
        barrier(CLK_LOCAL_MEM_FENCE);
    }
    if (lane == 0 && width > 0) {
        int s = 0;
        int q = 0;
        for (int i = 0; i < 2 * width; ++i) {
            s += sum[i];
            q += sq[i];
        }
        sum[0] = s;
        sq[0] = q;
    }
}

inline void finish(const int sum, const int sq, const int pixels, const int numOfBins, const int blockID,
                   __global int *avgHist, __global var_t *varHist,
                   __global float *avgOut, __global float *varOut) {
    const float n = (float)pixels;
    const float average = (float)sum / n;
    const float avgSq = average * average;
    const float variance = (float)sq / n - avgSq;
#if DETAIL
    avgOut[blockID] = average;
    varOut[blockID] = variance;
#endif
    int bin = ((int)average * numOfBins) >> 8;
    bin = clamp(bin, 0, numOfBins - 1);
    atomic_inc(&avgHist[bin]);
    add_variance(&varHist[bin], variance);
}

__kernel __attribute__((reqd_work_group_size(LOCAL_X, LOCAL_Y, 1)))
void block_histogram(__global const int *frame,
                     const int numOfBins,
                     const int format,
                     const int lumaStride,
                     const int lumaSize,
                     const int chromaSize,
                     const int chromaStride,
                     __global int *yAvgHist, __global var_t *yVarHist, __global float *yAvg, __global float *yVar,
                     __global int *uAvgHist, __global var_t *uVarHist, __global float *uAvg, __global float *uVar,
                     __global int *vAvgHist, __global var_t *vVarHist, __global float *vAvg, __global float *vVar) {
    __local int ySum[LANES];
    __local int ySq[LANES];

    const int lx = get_local_id(0);
    const int ly = get_local_id(1);
    const int lane = ly * LOCAL_X + lx;
    const int gx = get_group_id(0);
    const int gy = get_group_id(1);
    const int blockID = gy * get_num_groups(0) + gx;

#if CHROMATIC
    __local int uSum[LANES];
    __local int uSq[LANES];
    __local int vSum[LANES];
    __local int vSq[LANES];

    const int base = (gy * 2 * LOCAL_Y + ly) * lumaStride + gx * 2 * LOCAL_X + lx;
    const int down = LOCAL_Y * lumaStride;
    const int a = frame[base];
    const int b = frame[base + LOCAL_X];
    const int c = frame[base + down];
    const int d = frame[base + LOCAL_X + down];
    ySum[lane] = a + b + c + d;
    ySq[lane] = a * a + b * b + c * c + d * d;

    const int linear = get_global_id(1) * chromaStride + get_global_id(0);
    int uIndex;
    int vIndex;
    if (format == 0) {
        uIndex = lumaSize + linear;
        vIndex = lumaSize + chromaSize + linear;
    } else {
        uIndex = lumaSize + 2 * linear;
        vIndex = uIndex + 1;
    }
    const int su = frame[uIndex];
    const int sv = frame[vIndex];
    uSum[lane] = su;
    uSq[lane] = su * su;
    vSum[lane] = sv;
    vSq[lane] = sv * sv;
    barrier(CLK_LOCAL_MEM_FENCE);

    reduce(ySum, ySq, lane);
    reduce(uSum, uSq, lane);
    reduce(vSum, vSq, lane);

    if (lane == 0) {
        finish(ySum[0], ySq[0], 4 * LANES, numOfBins, blockID, yAvgHist, yVarHist, yAvg, yVar);
        finish(uSum[0], uSq[0], LANES, numOfBins, blockID, uAvgHist, uVarHist, uAvg, uVar);
        finish(vSum[0], vSq[0], LANES, numOfBins, blockID, vAvgHist, vVarHist, vAvg, vVar);
    }
#else
    const int s = frame[get_global_id(1) * lumaStride + get_global_id(0)];
    ySum[lane] = s;
    ySq[lane] = s * s;
    barrier(CLK_LOCAL_MEM_FENCE);

    reduce(ySum, ySq, lane);

    if (lane == 0) {
        finish(ySum[0], ySq[0], LANES, numOfBins, blockID, yAvgHist, yVarHist, yAvg, yVar);
    }
#endif
}
`

// kernelVariant identifies one compiled specialization of the kernel.
type kernelVariant struct {
	color     Color
	detail    Detail
	precision Precision
	localX    int
	localY    int
	subgroup  int
}

func newKernelVariant(g Geometry, detail Detail) kernelVariant {
	return kernelVariant{
		color:     g.Config.Color,
		detail:    detail,
		precision: g.Config.Precision,
		localX:    g.LocalX,
		localY:    g.LocalY,
		subgroup:  g.Config.SubgroupWidth,
	}
}

// buildOptions returns the compiler flags selecting v.
func (v kernelVariant) buildOptions() string {
	return fmt.Sprintf("-D CHROMATIC=%d -D DETAIL=%d -D FLOAT_VARHIST=%d -D LOCAL_X=%d -D LOCAL_Y=%d -D LANES=%d -D SUBGROUP_WIDTH=%d",
		boolInt(v.color == Chromatic),
		boolInt(v.detail == DetailInclude),
		boolInt(v.precision == PrecisionFloat),
		v.localX, v.localY, v.localX*v.localY,
		v.subgroup,
	)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
