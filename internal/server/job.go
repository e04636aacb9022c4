package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig describes one histogram computation over a stored frame.
// Zero values fall back to hist.DefaultConfig; the frame layout is taken
// from the frame name when Format is empty.
type JobConfig struct {
	Frame       string `json:"frame"`
	Format      string `json:"format,omitempty"`
	Color       string `json:"color,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	BlockWidth  int    `json:"blockWidth,omitempty"`
	BlockHeight int    `json:"blockHeight,omitempty"`
	NumOfBins   int    `json:"numOfBins,omitempty"`
	Precision   string `json:"precision,omitempty"`
	Backend     string `json:"backend,omitempty"`
	Detail      bool   `json:"detail,omitempty"`
	Validate    bool   `json:"validate,omitempty"`
}

// HistConfig resolves c into a validated histogram configuration.
func (c JobConfig) HistConfig(layout hist.Format, hasLayout bool) (hist.Config, error) {
	cfg := hist.DefaultConfig()
	if hasLayout {
		cfg.Format = layout
	}
	if c.Format != "" {
		f, err := hist.ParseFormat(c.Format)
		if err != nil {
			return cfg, err
		}
		cfg.Format = f
	}
	if c.Color != "" {
		col, err := hist.ParseColor(c.Color)
		if err != nil {
			return cfg, err
		}
		cfg.Color = col
	}
	if c.Precision != "" {
		p, err := hist.ParsePrecision(c.Precision)
		if err != nil {
			return cfg, err
		}
		cfg.Precision = p
	}
	if c.Width > 0 {
		cfg.Width = c.Width
	}
	if c.Height > 0 {
		cfg.Height = c.Height
	}
	if c.BlockWidth > 0 {
		cfg.BlockWidth = c.BlockWidth
	}
	if c.BlockHeight > 0 {
		cfg.BlockHeight = c.BlockHeight
	}
	if c.NumOfBins > 0 {
		cfg.NumOfBins = c.NumOfBins
	}
	return cfg, cfg.Validate()
}

// Job represents a histogram job
type Job struct {
	ID        string        `json:"id"`
	State     JobState      `json:"state"`
	Config    JobConfig     `json:"config"`
	Blocks    int           `json:"blocks"`
	Elapsed   time.Duration `json:"elapsedNs"`
	Verdict   string        `json:"verdict,omitempty"`
	StartTime time.Time     `json:"startTime"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Error     string        `json:"error,omitempty"`

	cfg    hist.Config
	result *hist.Output
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	order       []string
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	jm.order = append(jm.order, job.ID)
	return *job
}

// GetJob returns a snapshot of the job with the given ID.
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// Result returns the histogram output of a completed job.
func (jm *JobManager) Result(id string) (*hist.Output, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists || job.result == nil {
		return nil, false
	}
	return job.result, true
}

// ListJobs returns snapshots of all jobs in creation order.
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.order))
	for _, id := range jm.order {
		jobs = append(jobs, *jm.jobs[id])
	}
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]Job, 0)
	for _, id := range jm.order {
		if job := jm.jobs[id]; job.State == StateRunning {
			running = append(running, *job)
		}
	}
	return running
}
