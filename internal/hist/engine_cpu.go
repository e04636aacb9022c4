package hist

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultGroupsPerTask is how many work-groups a worker claims at once.
const DefaultGroupsPerTask = 32

// CPUEngine executes the kernel on the host with a pool of goroutines.
// Work-groups are independent; workers claim runs of groups from a shared
// counter and only meet again at the completion barrier.
type CPUEngine struct {
	workers       int
	groupsPerTask int

	acc [NumChannels]*accumulator

	// Barriers counts barrier points of the last dispatch, summed over groups.
	Barriers int64
}

// CPUOption configures a CPUEngine.
type CPUOption func(*CPUEngine)

// WithWorkers sets the number of worker goroutines. Values below one
// select GOMAXPROCS.
func WithWorkers(n int) CPUOption {
	return func(e *CPUEngine) {
		e.workers = n
	}
}

// WithGroupsPerTask sets how many work-groups a worker claims at once.
func WithGroupsPerTask(n int) CPUOption {
	return func(e *CPUEngine) {
		e.groupsPerTask = n
	}
}

// NewCPUEngine creates a parallel host engine.
func NewCPUEngine(opts ...CPUOption) *CPUEngine {
	e := &CPUEngine{groupsPerTask: DefaultGroupsPerTask}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	if e.groupsPerTask < 1 {
		e.groupsPerTask = 1
	}
	return e
}

func (e *CPUEngine) Backend() Backend {
	return BackendCPU
}

func (e *CPUEngine) Describe() string {
	return fmt.Sprintf("host CPU (%s/%s, %d workers, %d groups per task)", runtime.GOOS, runtime.GOARCH, e.workers, e.groupsPerTask)
}

func (e *CPUEngine) Close() {}

// Run dispatches every work-group and waits for all of them.
func (e *CPUEngine) Run(ctx context.Context, d *Dispatch) (time.Duration, error) {
	geo := &d.Geometry
	e.prepare(geo)

	total := int64(geo.NumGroups())
	chunk := int64(e.groupsPerTask)
	workers := e.workers
	if maxWorkers := int((total + chunk - 1) / chunk); workers > maxWorkers {
		workers = max(maxWorkers, 1)
	}

	var (
		next     atomic.Int64
		barriers atomic.Int64
		wg       sync.WaitGroup
		errOnce  sync.Once
		runErr   error
	)
	fail := func(err error) {
		errOnce.Do(func() { runErr = err })
	}

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("work-group panicked: %v", r))
				}
			}()

			k := newGroupKernel(geo, d.Frame, d.Detail, &e.acc)
			defer func() { barriers.Add(int64(k.barriers)) }()

			for {
				if err := ctx.Err(); err != nil {
					fail(err)
					return
				}
				first := next.Add(chunk) - chunk
				if first >= total {
					return
				}
				last := min(first+chunk, total)
				for id := first; id < last; id++ {
					k.run(int(id)%geo.GroupsX, int(id)/geo.GroupsX)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if runErr != nil {
		return elapsed, &DispatchError{Backend: BackendCPU, Op: "run", Err: runErr}
	}

	e.Barriers = barriers.Load()
	for _, c := range geo.Config.Color.Channels() {
		e.acc[c].readback(&d.Output.Channels[c], d.Detail)
	}

	slog.Debug("CPU dispatch complete",
		"groups", total,
		"workers", workers,
		"lanes", geo.Lanes,
		"elapsed", elapsed,
	)
	return elapsed, nil
}

// prepare sizes the device-side accumulators for geo and clears them.
func (e *CPUEngine) prepare(geo *Geometry) {
	cfg := geo.Config
	for _, c := range cfg.Color.Channels() {
		blocks := geo.Planes[c].NumBlocks
		if !e.acc[c].fits(cfg.NumOfBins, blocks, cfg.Precision) {
			e.acc[c] = newAccumulator(cfg.NumOfBins, blocks, cfg.Precision)
		}
		e.acc[c].reset()
	}
}
