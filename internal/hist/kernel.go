package hist

// groupKernel executes work-groups on the host. It owns the group's local
// memory, so one instance must not be shared between goroutines.
//
// A work-group of LocalX x LocalY lanes covers one block of every
// processed channel. In chromatic mode each lane stands for a 2x2 luma
// cluster: it loads its own luma sample plus the samples LocalX to the
// right, LocalY rows down, and both, then one U and one V sample. In
// grayscale mode each lane loads a single luma sample.
type groupKernel struct {
	geo      *Geometry
	frame    []int32
	detail   Detail
	subgroup int
	acc      *[NumChannels]*accumulator
	channels []Channel

	sum [NumChannels][]int32
	sq  [NumChannels][]int32

	barriers int
}

func newGroupKernel(geo *Geometry, frame []int32, detail Detail, acc *[NumChannels]*accumulator) *groupKernel {
	k := &groupKernel{
		geo:      geo,
		frame:    frame,
		detail:   detail,
		subgroup: geo.Config.SubgroupWidth,
		acc:      acc,
		channels: geo.Config.Color.Channels(),
	}
	for _, c := range k.channels {
		k.sum[c] = make([]int32, geo.Lanes)
		k.sq[c] = make([]int32, geo.Lanes)
	}
	return k
}

// run processes the work-group at grid position (gx, gy).
func (k *groupKernel) run(gx, gy int) {
	if k.geo.Config.Color == Grayscale {
		k.loadGrayscale(gx, gy)
	} else {
		k.loadChromatic(gx, gy)
	}

	blockID := gy*k.geo.GroupsX + gx
	for _, c := range k.channels {
		k.barriers += reduceLanes(k.sum[c], k.sq[c], k.subgroup)
		k.finish(c, blockID, k.sum[c][0], k.sq[c][0])
	}
}

func (k *groupKernel) loadChromatic(gx, gy int) {
	g := k.geo
	luma := g.Planes[ChannelY]
	u := g.Planes[ChannelU]
	v := g.Planes[ChannelV]
	frame := k.frame

	right := g.LocalX
	down := g.LocalY * luma.Stride
	originX := gx * luma.BlockWidth
	originY := gy * luma.BlockHeight

	for ly := 0; ly < g.LocalY; ly++ {
		for lx := 0; lx < g.LocalX; lx++ {
			lane := ly*g.LocalX + lx

			base := (originY+ly)*luma.Stride + originX + lx
			a := frame[base]
			b := frame[base+right]
			c := frame[base+down]
			d := frame[base+right+down]
			k.sum[ChannelY][lane] = a + b + c + d
			k.sq[ChannelY][lane] = a*a + b*b + c*c + d*d

			x := gx*g.LocalX + lx
			y := gy*g.LocalY + ly
			su := frame[u.Index(x, y)]
			sv := frame[v.Index(x, y)]
			k.sum[ChannelU][lane] = su
			k.sq[ChannelU][lane] = su * su
			k.sum[ChannelV][lane] = sv
			k.sq[ChannelV][lane] = sv * sv
		}
	}
}

func (k *groupKernel) loadGrayscale(gx, gy int) {
	g := k.geo
	luma := g.Planes[ChannelY]

	for ly := 0; ly < g.LocalY; ly++ {
		for lx := 0; lx < g.LocalX; lx++ {
			lane := ly*g.LocalX + lx
			s := k.frame[luma.Index(gx*g.LocalX+lx, gy*g.LocalY+ly)]
			k.sum[ChannelY][lane] = s
			k.sq[ChannelY][lane] = s * s
		}
	}
}

// finish is the lane-0 epilogue: statistics, optional detail write and
// histogram binning.
func (k *groupKernel) finish(c Channel, blockID int, sum, sq int32) {
	average, variance := blockStats(sum, sq, k.geo.Planes[c].BlockSize)
	acc := k.acc[c]
	if k.detail == DetailInclude {
		acc.average[blockID] = average
		acc.variance[blockID] = variance
	}
	acc.bin(binIndex(average, k.geo.Config.NumOfBins), variance)
}
