package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// BufferStats tracks sample buffer activity.
type BufferStats struct {
	writes    int64
	reads     int64
	evictions int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewBufferStats creates a new statistics tracker.
func NewBufferStats() *BufferStats {
	return &BufferStats{startTime: time.Now()}
}

// Write records a buffer write operation.
func (s *BufferStats) Write() {
	atomic.AddInt64(&s.writes, 1)
}

// Read records a buffer read operation.
func (s *BufferStats) Read() {
	atomic.AddInt64(&s.reads, 1)
}

// Evict records an eviction caused by a write to a full buffer.
func (s *BufferStats) Evict() {
	atomic.AddInt64(&s.evictions, 1)
}

// UpdateSize updates the current buffer size.
func (s *BufferStats) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Writes returns the total number of write operations.
func (s *BufferStats) Writes() int64 {
	return atomic.LoadInt64(&s.writes)
}

// Reads returns the total number of read operations.
func (s *BufferStats) Reads() int64 {
	return atomic.LoadInt64(&s.reads)
}

// Evictions returns the total number of evicted samples.
func (s *BufferStats) Evictions() int64 {
	return atomic.LoadInt64(&s.evictions)
}

// CurrentSize returns the current number of buffered samples.
func (s *BufferStats) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the high-water mark of the buffer.
func (s *BufferStats) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// Throughput returns the average number of writes per second.
func (s *BufferStats) Throughput() float64 {
	s.mu.RLock()
	elapsed := time.Since(s.startTime)
	s.mu.RUnlock()

	if elapsed == 0 {
		return 0.0
	}
	return float64(s.Writes()) / elapsed.Seconds()
}

// StatsSummary is a point-in-time snapshot of buffer statistics.
type StatsSummary struct {
	Writes      int64   `json:"writes"`
	Reads       int64   `json:"reads"`
	Evictions   int64   `json:"evictions"`
	CurrentSize int64   `json:"current_size"`
	MaxSize     int64   `json:"max_size"`
	Throughput  float64 `json:"throughput"`
}

// Summary returns a snapshot of all statistics.
func (s *BufferStats) Summary() StatsSummary {
	return StatsSummary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Evictions:   s.Evictions(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		Throughput:  s.Throughput(),
	}
}
