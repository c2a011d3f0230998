// Package ingest subscribes to the telemetry subject, decodes incoming
// frames, and appends validated samples to the shared buffer.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/edgetwin/component"
	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/metric"
	"github.com/c360/edgetwin/natsclient"
	"github.com/c360/edgetwin/telemetry"
)

// DefaultSubject is the telemetry subject frames arrive on.
const DefaultSubject = "edgetwin.telemetry.frames"

// Ingestor bridges NATS frames into the sample buffer.
type Ingestor struct {
	subject string
	nats    *natsclient.Client
	buffer  *telemetry.SampleBuffer
	logger  *slog.Logger
	metrics *metric.CoreMetrics

	running    atomic.Bool
	subscribed atomic.Bool
	startTime  time.Time
	mu         sync.RWMutex

	framesReceived atomic.Int64
	framesRejected atomic.Int64
	lastActivity   atomic.Value // time.Time
	lastError      atomic.Value // string
}

var _ component.Lifecycle = (*Ingestor)(nil)

// Deps carries the collaborators an Ingestor needs.
type Deps struct {
	Subject string
	NATS    *natsclient.Client
	Buffer  *telemetry.SampleBuffer
	Logger  *slog.Logger
	Metrics *metric.CoreMetrics
}

// New creates an ingestor.
func New(deps Deps) *Ingestor {
	subject := deps.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		subject: subject,
		nats:    deps.NATS,
		buffer:  deps.Buffer,
		logger:  logger.With("component", "ingest"),
		metrics: deps.Metrics,
	}
}

// Meta implements component.Discoverable.
func (g *Ingestor) Meta() component.Metadata {
	return component.Metadata{
		Name:        "ingest",
		Type:        "input",
		Description: "decodes telemetry frames from NATS into the sample buffer",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (g *Ingestor) Health() component.HealthStatus {
	g.mu.RLock()
	start := g.startTime
	g.mu.RUnlock()

	h := component.HealthStatus{
		Healthy:    g.running.Load() && g.subscribed.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(g.framesRejected.Load()),
	}
	if msg, ok := g.lastError.Load().(string); ok {
		h.LastError = msg
	}
	if !start.IsZero() {
		h.Uptime = time.Since(start)
	}
	return h
}

// Initialize validates the wiring.
func (g *Ingestor) Initialize() error {
	if g.nats == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"ingest", "Initialize", "dependency validation")
	}
	if g.buffer == nil {
		return errors.WrapInvalid(fmt.Errorf("nil sample buffer"),
			"ingest", "Initialize", "dependency validation")
	}
	return nil
}

// Start subscribes to the telemetry subject. A dark broker is not fatal:
// the ingestor starts degraded and subscribes once the client connects.
// Idempotent.
func (g *Ingestor) Start(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running.Load() {
		return nil
	}

	g.running.Store(true)
	g.startTime = time.Now()
	g.nats.OnReconnect(g.resubscribe)

	if err := g.nats.Subscribe(g.subject, g.handleFrame); err != nil {
		g.lastError.Store(err.Error())
		if g.metrics != nil {
			g.metrics.SamplesDropped.Inc()
		}
		g.logger.Warn("telemetry subscription deferred until broker is reachable",
			"subject", g.subject, "error", err)
		return nil
	}

	g.subscribed.Store(true)
	g.logger.Info("subscribed to telemetry", "subject", g.subject)
	return nil
}

// resubscribe establishes the subscription after a connection appears.
// The NATS library replays subscriptions that were made successfully, so
// this only acts when the original subscribe call failed outright.
func (g *Ingestor) resubscribe() {
	if !g.running.Load() || g.subscribed.Load() {
		return
	}
	if err := g.nats.Subscribe(g.subject, g.handleFrame); err != nil {
		g.lastError.Store(err.Error())
		g.logger.Warn("telemetry resubscription failed", "subject", g.subject, "error", err)
		return
	}
	g.subscribed.Store(true)
	g.logger.Info("subscribed to telemetry", "subject", g.subject)
}

// Stop stops accepting frames. The subscription itself is drained when
// the NATS client closes.
func (g *Ingestor) Stop(_ time.Duration) error {
	g.running.Store(false)
	return nil
}

// Flow reports the frame throughput since start.
func (g *Ingestor) Flow() component.FlowMetrics {
	g.mu.RLock()
	start := g.startTime
	g.mu.RUnlock()

	var fm component.FlowMetrics
	received := g.framesReceived.Load()
	rejected := g.framesRejected.Load()
	if total := received + rejected; total > 0 {
		fm.ErrorRate = float64(rejected) / float64(total)
	}
	if !start.IsZero() {
		if secs := time.Since(start).Seconds(); secs > 0 {
			fm.MessagesPerSecond = float64(received) / secs
		}
	}
	if ts, ok := g.lastActivity.Load().(time.Time); ok {
		fm.LastActivity = ts
	}
	return fm
}

// FramesReceived returns the count of frames accepted into the buffer.
func (g *Ingestor) FramesReceived() int64 {
	return g.framesReceived.Load()
}

// FramesRejected returns the count of discarded frames.
func (g *Ingestor) FramesRejected() int64 {
	return g.framesRejected.Load()
}

// handleFrame decodes one wire frame and appends it. Bad frames are
// counted and dropped, never propagated.
func (g *Ingestor) handleFrame(data []byte) {
	if !g.running.Load() {
		return
	}
	g.lastActivity.Store(time.Now())

	sample, err := telemetry.DecodeFrame(data)
	if err != nil {
		g.reject("decoding frame", err)
		return
	}

	if err := g.buffer.Append(sample); err != nil {
		g.reject("appending sample", err)
		return
	}

	g.framesReceived.Add(1)
	if g.metrics != nil {
		g.metrics.SamplesIngested.Inc()
	}
}

func (g *Ingestor) reject(action string, err error) {
	g.framesRejected.Add(1)
	g.lastError.Store(err.Error())
	if g.metrics != nil {
		g.metrics.SamplesDropped.Inc()
	}
	g.logger.Debug("frame rejected", "action", action, "error", err)
}
