package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/cwbudde/blockhist/internal/store"
)

// FrameSource provides the frames jobs run on.
type FrameSource interface {
	LoadSamples(name string, cfg hist.Config) ([]int32, error)
	ListFrames() ([]store.FrameInfo, error)
}

// runJob computes the histograms of a job in the background.
func runJob(ctx context.Context, jm *JobManager, frames FrameSource, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if frames == nil {
		err := errors.New("server has no frame store")
		markJobFailed(jm, jobID, err)
		return err
	}

	layout, hasLayout := store.LayoutOf(job.Config.Frame).Format()
	cfg, err := job.Config.HistConfig(layout, hasLayout)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	jm.broadcaster.Broadcast(JobEvent{JobID: jobID, State: StateRunning, Timestamp: time.Now()})

	slog.Info("Starting job", "job_id", jobID, "frame", job.Config.Frame, "backend", job.Config.Backend)

	frame, err := frames.LoadSamples(job.Config.Frame, cfg)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to load frame: %w", err))
		return err
	}

	backend := job.Config.Backend
	if backend == "" {
		backend = string(hist.BackendCPU)
	}
	engine, err := hist.NewEngine(backend)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	defer engine.Close()

	// Check for cancellation before starting the dispatch
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	detail := hist.DetailExclude
	if job.Config.Detail {
		detail = hist.DetailInclude
	}

	out, elapsed, err := hist.Compute(ctx, engine, cfg, frame, detail)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			markJobCancelled(jm, jobID)
			return err
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	var verdict string
	if job.Config.Validate {
		report, err := hist.Validate(ctx, engine, cfg, frame, detail)
		if err != nil {
			markJobFailed(jm, jobID, fmt.Errorf("validation: %w", err))
			return err
		}
		verdict = report.Verdict().String()
	}

	blocks := hist.NewGeometry(cfg).NumGroups()
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Blocks = blocks
		j.Elapsed = elapsed
		j.Verdict = verdict
		j.EndTime = &endTime
		j.cfg = cfg
		j.result = out
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"backend", engine.Backend(),
		"blocks", blocks,
		"elapsed", elapsed,
		"verdict", verdict,
	)

	jm.broadcaster.Broadcast(JobEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Elapsed:   elapsed,
		Verdict:   verdict,
		Timestamp: time.Now(),
	})
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(JobEvent{JobID: jobID, State: StateFailed, Error: err.Error(), Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(JobEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}
