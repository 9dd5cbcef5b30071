package streams

import (
	"sync"
	"time"
)

// Stats tracks data part uploads and execution outcomes of an upload client.
type Stats struct {
	mu            sync.Mutex
	sum           time.Duration
	partsUploaded int64
	bytesUploaded int64
	committed     int64
	aborted       int64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// UpdatePart records a successful data part upload.
func (s *Stats) UpdatePart(size int, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += took
	s.partsUploaded++
	s.bytesUploaded += int64(size)
}

func (s *Stats) incCommitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed++
}

func (s *Stats) incAborted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted++
}

// Average returns the average upload duration of data parts.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.partsUploaded == 0 {
		return 0
	}
	return s.sum / time.Duration(s.partsUploaded)
}

// PartsUploaded ...
func (s *Stats) PartsUploaded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partsUploaded
}

// BytesUploaded ...
func (s *Stats) BytesUploaded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesUploaded
}

// Committed returns the number of committed executions.
func (s *Stats) Committed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Aborted returns the number of aborted executions.
func (s *Stats) Aborted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}
