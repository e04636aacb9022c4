package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/blockhist/internal/server"
	"github.com/cwbudde/blockhist/internal/store"
)

func TestStatusAgainstServer(t *testing.T) {
	frames, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := frames.SaveFrame("flat.yuv", bytes.Repeat([]byte{9}, 64*32*3/2)); err != nil {
		t.Fatal(err)
	}

	s := server.NewServer("localhost:0", frames)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Shutdown(context.Background())

	body, _ := json.Marshal(server.JobConfig{Frame: "flat.yuv", Width: 64, Height: 32})
	resp, err := http.Post(srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var job server.Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()

	var out bytes.Buffer
	for i := 0; i < 100; i++ {
		out.Reset()
		if err := getJobStatus(&out, srv.URL+"/api/v1/jobs/"+job.ID+"/status", job.ID); err != nil {
			t.Fatalf("getJobStatus failed: %v", err)
		}
		if strings.Contains(out.String(), "State: completed") {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !strings.Contains(out.String(), "State: completed") || !strings.Contains(out.String(), "Blocks: 32") {
		t.Errorf("unexpected status output:\n%s", out.String())
	}

	out.Reset()
	if err := listJobs(&out, srv.URL+"/api/v1/jobs"); err != nil {
		t.Fatalf("listJobs failed: %v", err)
	}
	if !strings.Contains(out.String(), "Found 1 job(s)") {
		t.Errorf("unexpected list output:\n%s", out.String())
	}

	if err := getJobStatus(&out, srv.URL+"/api/v1/jobs/missing/status", "missing"); err == nil || !strings.Contains(err.Error(), "job not found") {
		t.Errorf("missing job error = %v", err)
	}
}
