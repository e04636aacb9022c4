package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// JobEvent is a state change of a job
type JobEvent struct {
	JobID     string        `json:"jobId"`
	State     JobState      `json:"state"`
	Elapsed   time.Duration `json:"elapsedNs,omitempty"`
	Verdict   string        `json:"verdict,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// terminal reports whether no further events follow e.
func (e JobEvent) terminal() bool {
	return e.State == StateCompleted || e.State == StateFailed || e.State == StateCancelled
}

// EventBroadcaster manages SSE connections per job
type EventBroadcaster struct {
	mu        sync.Mutex
	clients   map[string]map[chan JobEvent]bool // jobID -> set of client channels
	lastEvent map[string]JobEvent               // jobID -> last event for new clients
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan JobEvent]bool),
		lastEvent: make(map[string]JobEvent),
	}
}

// Subscribe adds a client to receive events for a job
func (eb *EventBroadcaster) Subscribe(jobID string) chan JobEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan JobEvent, 10)

	if eb.clients[jobID] == nil {
		eb.clients[jobID] = make(map[chan JobEvent]bool)
	}
	eb.clients[jobID][ch] = true

	// Replay the last event for late subscribers
	if last, ok := eb.lastEvent[jobID]; ok {
		ch <- last
	}

	slog.Debug("SSE client subscribed", "jobID", jobID, "total_clients", len(eb.clients[jobID]))
	return ch
}

// Unsubscribe removes a client from receiving events
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan JobEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[jobID]; ok {
		if clients[ch] {
			delete(clients, ch)
			close(ch)
		}
		if len(clients) == 0 {
			delete(eb.clients, jobID)
		}
	}

	slog.Debug("SSE client unsubscribed", "jobID", jobID)
}

// Broadcast sends an event to all subscribed clients for a job
func (eb *EventBroadcaster) Broadcast(event JobEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.lastEvent[event.JobID] = event

	clients := eb.clients[event.JobID]
	if len(clients) == 0 {
		return
	}

	slog.Debug("Broadcasting event", "jobID", event.JobID, "clients", len(clients), "state", event.State)

	for ch := range clients {
		select {
		case ch <- event:
		default:
			slog.Warn("SSE channel full, skipping event", "jobID", event.JobID)
		}
	}
}

// CleanupJob removes all clients and cached events for a job
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.clients[jobID] {
		close(ch)
	}
	delete(eb.clients, jobID)
	delete(eb.lastEvent, jobID)
	slog.Debug("Cleaned up SSE resources", "jobID", jobID)
}

// handleJobStream handles SSE connections for job events. The stream ends
// after the job reaches a terminal state.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, eventChan)

	initial := JobEvent{
		JobID:     job.ID,
		State:     job.State,
		Elapsed:   job.Elapsed,
		Verdict:   job.Verdict,
		Error:     job.Error,
		Timestamp: time.Now(),
	}
	if err := writeSSEEvent(w, initial); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()
	if initial.terminal() {
		return
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "jobID", jobID)
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
			if event.terminal() {
				return
			}

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
