package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/blockhist/internal/hist"
	"github.com/cwbudde/blockhist/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	frames     FrameSource
	addr       string
	server     *http.Server

	// jobs run under ctx and are cancelled on Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a new HTTP server serving frames from the given source
func NewServer(addr string, frames FrameSource) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		frames:     frames,
		addr:       addr,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Handler returns the routed handler wrapped with middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// UI routes
	mux.HandleFunc("/", s.handleIndex)

	// API routes
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/frames", s.handleListFrames)
	mux.HandleFunc("/api/v1/backends", s.handleListBackends)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancel()
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// submit starts a job worker tied to the server lifetime
func (s *Server) submit(jobID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runJob(s.ctx, s.jobManager, s.frames, jobID)
	}()
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	switch {
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "result":
		s.handleGetJobResult(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if config.Frame == "" {
		http.Error(w, "frame is required", http.StatusBadRequest)
		return
	}
	if config.Backend == "" {
		config.Backend = string(hist.BackendCPU)
	}
	layout, hasLayout := store.LayoutOf(config.Frame).Format()
	if _, err := config.HistConfig(layout, hasLayout); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)
	s.submit(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var wall time.Duration
	if job.EndTime != nil {
		wall = job.EndTime.Sub(job.StartTime)
	} else {
		wall = time.Since(job.StartTime)
	}

	response := map[string]interface{}{
		"id":        job.ID,
		"state":     job.State,
		"config":    job.Config,
		"blocks":    job.Blocks,
		"dispatch":  job.Elapsed.Seconds(),
		"wall":      wall.Seconds(),
		"verdict":   job.Verdict,
		"startTime": job.StartTime,
		"endTime":   job.EndTime,
		"error":     job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// ChannelResult is the JSON form of one channel's output
type ChannelResult struct {
	Channel           string    `json:"channel"`
	AverageHistogram  []int32   `json:"averageHistogram"`
	VarianceHistogram []float64 `json:"varianceHistogram"`
	Average           []float32 `json:"average,omitempty"`
	Variance          []float32 `json:"variance,omitempty"`
}

// handleGetJobResult handles GET /api/v1/jobs/:id/result[?channel=Y|U|V]
func (s *Server) handleGetJobResult(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	out, ok := s.jobManager.Result(jobID)
	if !ok {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}

	channels := job.cfg.Color.Channels()
	if want := r.URL.Query().Get("channel"); want != "" {
		var filtered []hist.Channel
		for _, c := range channels {
			if strings.EqualFold(c.String(), want) {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) == 0 {
			http.Error(w, fmt.Sprintf("unknown channel %q", want), http.StatusBadRequest)
			return
		}
		channels = filtered
	}

	results := make([]ChannelResult, 0, len(channels))
	for _, c := range channels {
		ch := out.Channels[c]
		res := ChannelResult{
			Channel:           c.String(),
			AverageHistogram:  ch.AverageHistogram,
			VarianceHistogram: ch.VarianceHistogram,
		}
		if job.Config.Detail {
			res.Average = ch.Average
			res.Variance = ch.Variance
		}
		results = append(results, res)
	}

	writeJSON(w, http.StatusOK, results)
}

// handleListFrames handles GET /api/v1/frames
func (s *Server) handleListFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.frames == nil {
		writeJSON(w, http.StatusOK, []store.FrameInfo{})
		return
	}
	infos, err := s.frames.ListFrames()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list frames: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleListBackends handles GET /api/v1/backends
func (s *Server) handleListBackends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hist.SupportedBackends())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
