package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/metric"
)

// SampleBuffer is a fixed-capacity, append-only sample store. When full, the
// oldest sample is evicted (FIFO). It is written by the ingestion loop and read
// concurrently by the physics, inference, and training paths; Latest and
// Snapshot return whole immutable values so readers never observe a partial
// write.
type SampleBuffer struct {
	mu       sync.RWMutex
	items    []*Sample
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest item position
	closed   bool

	stats   *BufferStats
	metrics *bufferMetrics
}

// BufferOption configures a SampleBuffer.
type BufferOption func(*SampleBuffer)

// WithBufferMetrics exposes buffer statistics as Prometheus metrics.
func WithBufferMetrics(registry *metric.Registry) BufferOption {
	return func(b *SampleBuffer) {
		if registry != nil {
			b.metrics = newBufferMetrics(registry)
		}
	}
}

// NewSampleBuffer creates a sample buffer with the given capacity.
func NewSampleBuffer(capacity int, opts ...BufferOption) *SampleBuffer {
	if capacity <= 0 {
		capacity = 1
	}

	b := &SampleBuffer{
		items:    make([]*Sample, capacity),
		capacity: capacity,
		stats:    NewBufferStats(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Append adds a sample, evicting the oldest when the buffer is full.
func (b *SampleBuffer) Append(s *Sample) error {
	if s == nil {
		return errors.WrapInvalid(errors.ErrInvalidFrame, "SampleBuffer", "Append", "nil sample")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.WrapInvalid(errors.ErrBufferClosed, "SampleBuffer", "Append", "buffer closed")
	}

	if b.size == b.capacity {
		// FIFO eviction: drop the oldest to make room
		b.items[b.tail] = nil
		b.tail = (b.tail + 1) % b.capacity
		b.size--

		b.stats.Evict()
		if b.metrics != nil {
			b.metrics.evictions.Inc()
		}
	}

	b.items[b.head] = s
	b.head = (b.head + 1) % b.capacity
	b.size++

	b.stats.Write()
	b.stats.UpdateSize(int64(b.size))
	if b.metrics != nil {
		b.metrics.recordWrite(b.size, b.capacity)
	}

	return nil
}

// Latest returns the most recently appended sample, or false when empty.
func (b *SampleBuffer) Latest() (*Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil, false
	}

	idx := (b.head - 1 + b.capacity) % b.capacity
	b.stats.Read()
	return b.items[idx], true
}

// Snapshot returns all buffered samples in insertion order (oldest first).
// The returned slice is a copy; the samples themselves are shared immutable values.
func (b *SampleBuffer) Snapshot() []*Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*Sample, b.size)
	for i := 0; i < b.size; i++ {
		result[i] = b.items[(b.tail+i)%b.capacity]
	}
	return result
}

// Recent returns up to n of the most recent samples, newest first.
func (b *SampleBuffer) Recent(n int) []*Sample {
	if n <= 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.size {
		n = b.size
	}
	result := make([]*Sample, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + 2*b.capacity) % b.capacity
		result[i] = b.items[idx]
	}
	return result
}

// Len returns the current number of buffered samples.
func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of samples the buffer can hold.
func (b *SampleBuffer) Capacity() int {
	return b.capacity // immutable, no lock needed
}

// Stats returns buffer statistics (always available for observability).
func (b *SampleBuffer) Stats() *BufferStats {
	return b.stats
}

// Close marks the buffer closed; subsequent appends fail, reads still succeed.
func (b *SampleBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// bufferMetrics holds Prometheus metrics for the sample buffer.
type bufferMetrics struct {
	writes      prometheus.Counter
	evictions   prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferMetrics(registry *metric.Registry) *bufferMetrics {
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgetwin",
			Subsystem: "buffer",
			Name:      "writes_total",
			Help:      "Total samples written to the buffer",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgetwin",
			Subsystem: "buffer",
			Name:      "evictions_total",
			Help:      "Total samples evicted to make room",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgetwin",
			Subsystem: "buffer",
			Name:      "size",
			Help:      "Current number of buffered samples",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgetwin",
			Subsystem: "buffer",
			Name:      "utilization",
			Help:      "Buffer utilization (0.0 to 1.0)",
		}),
	}

	// Registration conflicts only occur with a second buffer on the same
	// registry; the caller gets stats regardless.
	_ = registry.RegisterCounter("sample_buffer", "writes", m.writes)
	_ = registry.RegisterCounter("sample_buffer", "evictions", m.evictions)
	_ = registry.RegisterGauge("sample_buffer", "size", m.size)
	_ = registry.RegisterGauge("sample_buffer", "utilization", m.utilization)

	return m
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
