package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry records one timed dispatch of a tuning run.
// Each entry is serialized as a JSON line.
type TraceEntry struct {
	Trial         int           `json:"trial"`
	Backend       string        `json:"backend"`
	Workers       int           `json:"workers"`
	GroupsPerTask int           `json:"groupsPerTask"`
	Elapsed       time.Duration `json:"elapsedNs"`
	Timestamp     time.Time     `json:"timestamp"`
}

// TraceWriter appends entries to <baseDir>/traces/<runID>.jsonl.
// It buffers writes and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(baseDir, "traces", runID+".jsonl")
}

// NewTraceWriter creates (or truncates) the trace of runID.
func NewTraceWriter(baseDir, runID string) (*TraceWriter, error) {
	path := tracePath(baseDir, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write buffers one entry.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// ReadTrace returns every entry of the trace of runID.
func ReadTrace(baseDir, runID string) ([]TraceEntry, error) {
	file, err := os.Open(tracePath(baseDir, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Name: runID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	var entries []TraceEntry
	dec := json.NewDecoder(bufio.NewReader(file))
	for {
		var entry TraceEntry
		if err := dec.Decode(&entry); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
