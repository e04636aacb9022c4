package hist

// Plane describes one channel's plane and its block tiling.
type Plane struct {
	Channel Channel
	// Offset of the plane's first sample in the frame. For semi-planar V
	// this is the U offset plus one; samples then advance by two.
	Offset int
	// Step between horizontally adjacent samples (1 planar, 2 semi-planar chroma).
	Step int
	// Stride is the distance in plane columns between two rows.
	Stride int

	Width, Height           int
	BlockWidth, BlockHeight int
	BlockSize               int
	BlocksX, BlocksY        int
	NumBlocks               int
}

// Index returns the frame index of the sample at plane coordinate (x, y).
func (p Plane) Index(x, y int) int {
	return p.Offset + (y*p.Stride+x)*p.Step
}

// Geometry holds the sizes derived from a Config: plane layout, block
// counts and the work-group grid.
type Geometry struct {
	Config Config

	LumaSize   int
	ChromaSize int
	FrameSize  int

	Planes [NumChannels]Plane

	// Work-group grid. Each group covers exactly one block of every
	// processed channel.
	GlobalX, GlobalY int
	LocalX, LocalY   int
	GroupsX, GroupsY int
	Lanes            int
}

// NewGeometry derives all sizes for cfg. cfg must be valid.
func NewGeometry(cfg Config) Geometry {
	w, h := cfg.Width, cfg.Height
	cw, ch := w/2, h/2

	g := Geometry{
		Config:     cfg,
		LumaSize:   w * h,
		ChromaSize: cw * ch,
	}
	g.FrameSize = g.LumaSize + 2*g.ChromaSize

	g.Planes[ChannelY] = newPlane(ChannelY, 0, 1, w, h, cfg.BlockWidth, cfg.BlockHeight)

	cbw, cbh := cfg.BlockWidth/2, cfg.BlockHeight/2
	if cbw == 0 || cbh == 0 {
		// Grayscale with 1-pixel blocks has no chroma tiling.
		cbw, cbh = 1, 1
	}
	if cfg.Format == FormatSemiPlanar {
		g.Planes[ChannelU] = newPlane(ChannelU, g.LumaSize, 2, cw, ch, cbw, cbh)
		g.Planes[ChannelV] = newPlane(ChannelV, g.LumaSize+1, 2, cw, ch, cbw, cbh)
	} else {
		g.Planes[ChannelU] = newPlane(ChannelU, g.LumaSize, 1, cw, ch, cbw, cbh)
		g.Planes[ChannelV] = newPlane(ChannelV, g.LumaSize+g.ChromaSize, 1, cw, ch, cbw, cbh)
	}

	if cfg.Color == Grayscale {
		g.LocalX, g.LocalY = cfg.BlockWidth, cfg.BlockHeight
		g.GlobalX = adjustDimension(w, g.LocalX)
		g.GlobalY = adjustDimension(h, g.LocalY)
	} else {
		g.LocalX, g.LocalY = cbw, cbh
		g.GlobalX = adjustDimension(cw, g.LocalX)
		g.GlobalY = adjustDimension(ch, g.LocalY)
	}
	g.GroupsX = g.GlobalX / g.LocalX
	g.GroupsY = g.GlobalY / g.LocalY
	g.Lanes = g.LocalX * g.LocalY

	return g
}

// NumGroups is the number of work-groups in one dispatch.
func (g Geometry) NumGroups() int {
	return g.GroupsX * g.GroupsY
}

// RequiredSamples is the minimum frame length accepted for this geometry.
func (g Geometry) RequiredSamples() int {
	if g.Config.Color == Grayscale {
		return g.LumaSize
	}
	return g.FrameSize
}

func newPlane(c Channel, offset, step, width, height, bw, bh int) Plane {
	p := Plane{
		Channel:     c,
		Offset:      offset,
		Step:        step,
		Stride:      width,
		Width:       width,
		Height:      height,
		BlockWidth:  bw,
		BlockHeight: bh,
		BlockSize:   bw * bh,
		BlocksX:     width / bw,
		BlocksY:     height / bh,
	}
	p.NumBlocks = p.BlocksX * p.BlocksY
	return p
}

// adjustDimension floors dimension to a multiple of blockDimension.
func adjustDimension(dimension, blockDimension int) int {
	if blockDimension == 0 {
		return dimension
	}
	return dimension - dimension%blockDimension
}
