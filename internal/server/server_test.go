package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/blockhist/internal/store"
)

func postJob(t *testing.T, s *Server, config JobConfig) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(config)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleCreateJob(w, req)
	return w
}

// waitForState polls until the job reaches a terminal state.
func waitForState(t *testing.T, jm *JobManager, id string) Job {
	t.Helper()
	for i := 0; i < 200; i++ {
		job, _ := jm.GetJob(id)
		switch job.State {
		case StateCompleted, StateFailed, StateCancelled:
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Job did not finish in time")
	return Job{}
}

func TestServer_CreateJob(t *testing.T) {
	s := NewServer(":8080", setupFrames(t, "flat.yuv", 100))
	defer s.Shutdown(context.Background())

	w := postJob(t, s, smallJob("flat.yuv"))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.Config.Backend != "cpu" {
		t.Errorf("backend should default to cpu, got %q", job.Config.Backend)
	}

	done := waitForState(t, s.jobManager, job.ID)
	if done.State != StateCompleted {
		t.Errorf("Job ended in %s: %s", done.State, done.Error)
	}
}

func TestServer_CreateJob_Invalid(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	tests := []struct {
		name   string
		config JobConfig
	}{
		{"missing frame", JobConfig{}},
		{"bad bins", JobConfig{Frame: "a.yuv", NumOfBins: 1000}},
		{"bad block", JobConfig{Frame: "a.yuv", BlockWidth: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := postJob(t, s, tt.config); w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.handleCreateJob(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: expected 400, got %d", w.Code)
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := NewServer(":8080", nil)

	s.jobManager.CreateJob(JobConfig{Frame: "a.yuv"})
	s.jobManager.CreateJob(JobConfig{Frame: "b.yuv"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	s.handleListJobs(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(JobConfig{Frame: "a.yuv"})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/status", job.ID), nil)
	w := httptest.NewRecorder()
	s.handleGetJobStatus(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["id"] != job.ID {
		t.Error("Response should contain job ID")
	}
	if response["state"] != string(StatePending) {
		t.Errorf("Expected pending state, got %v", response["state"])
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/status", nil)
	w := httptest.NewRecorder()
	s.handleGetJobStatus(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_GetJobResult(t *testing.T) {
	frames := setupFrames(t, "flat.yuv", 200)
	s := NewServer(":8080", frames)

	config := smallJob("flat.yuv")
	config.Detail = true
	job := s.jobManager.CreateJob(config)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/result", nil)
	w := httptest.NewRecorder()
	s.handleGetJobResult(w, req, job.ID)
	if w.Code != http.StatusNotFound {
		t.Errorf("pending job: expected 404, got %d", w.Code)
	}

	if err := runJob(context.Background(), s.jobManager, frames, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	w = httptest.NewRecorder()
	s.handleGetJobResult(w, req, job.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var results []ChannelResult
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 channels, got %d", len(results))
	}
	// 200*16>>8 = 12
	for _, r := range results {
		if r.AverageHistogram[12] != 32 {
			t.Errorf("%s bin 12 = %d, want 32", r.Channel, r.AverageHistogram[12])
		}
		if len(r.Average) != 32 || r.Average[0] != 200 {
			t.Errorf("%s detail vector = %v", r.Channel, r.Average)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/result?channel=u", nil)
	w = httptest.NewRecorder()
	s.handleGetJobResult(w, req, job.ID)
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(results) != 1 || results[0].Channel != "U" {
		t.Errorf("channel filter returned %+v", results)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/result?channel=Q", nil)
	w = httptest.NewRecorder()
	s.handleGetJobResult(w, req, job.ID)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown channel: expected 400, got %d", w.Code)
	}
}

func TestServer_ListFrames(t *testing.T) {
	s := NewServer(":8080", setupFrames(t, "flat.yuv", 1))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/frames", nil)
	w := httptest.NewRecorder()
	s.handleListFrames(w, req)

	var infos []store.FrameInfo
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "flat.yuv" {
		t.Errorf("frames = %+v", infos)
	}
}

func TestServer_Index(t *testing.T) {
	frames := setupFrames(t, "flat.yuv", 50)
	s := NewServer(":8080", frames)
	job := s.jobManager.CreateJob(smallJob("flat.yuv"))
	if err := runJob(context.Background(), s.jobManager, frames, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.handleIndex(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"flat.yuv", "completed", "64x32 / 8x8 / 16 bins"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/missing", nil)
	w = httptest.NewRecorder()
	s.handleIndex(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s := NewServer("localhost:0", setupFrames(t, "flat.yuv", 100))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Shutdown(context.Background())

	body, _ := json.Marshal(smallJob("flat.yuv"))
	resp, err := http.Post(srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	var job Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}

	// The stream ends once the job reaches a terminal state.
	resp, err = http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	var last JobEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			if err := json.Unmarshal([]byte(data), &last); err != nil {
				t.Fatalf("bad event %q: %v", data, err)
			}
		}
	}
	if last.State != StateCompleted {
		t.Errorf("last event state = %s (%s)", last.State, last.Error)
	}

	resp, err = http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/result?channel=Y")
	if err != nil {
		t.Fatalf("Failed to get result: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_JobStream_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/stream", nil)
	w := httptest.NewRecorder()
	s.handleJobStream(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	eb.Broadcast(JobEvent{JobID: "job1", State: StateRunning, Timestamp: time.Now()})

	select {
	case received := <-ch:
		if received.JobID != "job1" || received.State != StateRunning {
			t.Errorf("unexpected event %+v", received)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for event")
	}

	// Late subscribers get the last event replayed.
	late := eb.Subscribe("job1")
	if got := <-late; got.State != StateRunning {
		t.Errorf("replayed state = %s", got.State)
	}

	eb.CleanupJob("job1")
	if _, ok := <-late; ok {
		t.Error("channel should be closed after cleanup")
	}
}
