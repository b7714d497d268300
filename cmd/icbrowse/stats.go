package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	imagecapture "github.com/shaban/imagecapture"
)

// requestStats aggregates controller metrics for the --stats summary.
type requestStats struct {
	mu          sync.Mutex
	requests    map[imagecapture.RequestKind]*kindStats
	transitions int
}

type kindStats struct {
	started  int
	failed   int
	timeouts int
	total    time.Duration
	max      time.Duration
}

func newRequestStats() *requestStats {
	return &requestStats{requests: make(map[imagecapture.RequestKind]*kindStats)}
}

func (s *requestStats) kind(k imagecapture.RequestKind) *kindStats {
	ks := s.requests[k]
	if ks == nil {
		ks = &kindStats{}
		s.requests[k] = ks
	}
	return ks
}

func (s *requestStats) OnStateChange(uuid.UUID, imagecapture.State, imagecapture.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions++
}

func (s *requestStats) OnRequestStart(_ uuid.UUID, k imagecapture.RequestKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind(k).started++
}

func (s *requestStats) OnRequestDone(_ uuid.UUID, k imagecapture.RequestKind, d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks := s.kind(k)
	if err != nil {
		ks.failed++
	}
	ks.total += d
	if d > ks.max {
		ks.max = d
	}
}

func (s *requestStats) OnTimeout(_ uuid.UUID, k imagecapture.RequestKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind(k).timeouts++
}

// print writes one line per request kind, sorted by name.
func (s *requestStats) print(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.requests))
	for k := range s.requests {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	fmt.Fprintf(w, "state transitions: %d\n", s.transitions)
	for _, k := range kinds {
		ks := s.requests[imagecapture.RequestKind(k)]
		avg := time.Duration(0)
		if ks.started > 0 {
			avg = ks.total / time.Duration(ks.started)
		}
		fmt.Fprintf(w, "%-8s started=%d failed=%d timeouts=%d avg=%s max=%s\n",
			k, ks.started, ks.failed, ks.timeouts, avg.Round(time.Millisecond), ks.max.Round(time.Millisecond))
	}
}

var _ imagecapture.MetricsHook = (*requestStats)(nil)
