package transport

import (
	"fmt"
	"sync"
	"time"
)

// Stats mirrors NetworkThread's network_thread_stats_: a running tally
// of DATA_PUT traffic, used for throughput reporting rather than
// correctness.
type Stats struct {
	FirstByteReceived  time.Time
	LastByteReceived   time.Time
	TotalBytesReceived int64
}

// String reports the total bytes and the throughput, in MB/s, observed
// between the first and last DATA_PUT byte seen so far.
//
// (lapis network_thread.cc NetworkThread::PrintStats)
func (s Stats) String() string {
	if s.TotalBytesReceived == 0 || s.FirstByteReceived.IsZero() {
		return "transport stats: no data traffic yet"
	}
	elapsed := s.LastByteReceived.Sub(s.FirstByteReceived).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-6
	}
	mbps := float64(s.TotalBytesReceived) / (1 << 20) / elapsed
	return fmt.Sprintf("transport stats: %d bytes in %.3fs (%.2f MB/s)",
		s.TotalBytesReceived, elapsed, mbps)
}

type statsTracker struct {
	mu sync.Mutex
	s  Stats
}

func (t *statsTracker) observe(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if t.s.FirstByteReceived.IsZero() {
		t.s.FirstByteReceived = now
	}
	t.s.LastByteReceived = now
	t.s.TotalBytesReceived += int64(n)
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
