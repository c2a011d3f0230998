// Package publisher emits control commands on the outbound NATS subject.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/edgetwin/component"
	"github.com/c360/edgetwin/control"
	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/natsclient"
)

// DefaultSubject is the control subject commands are published on.
const DefaultSubject = "edgetwin.control.commands"

// Publisher encodes tagged commands and publishes them. Publishing while
// disconnected drops the command with a counter; control output is
// advisory, and the loops must not block on the broker.
type Publisher struct {
	subject string
	nats    *natsclient.Client
	logger  *slog.Logger

	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex

	published atomic.Int64
	dropped   atomic.Int64
	lastError atomic.Value // string
}

var _ component.Lifecycle = (*Publisher)(nil)

// Deps carries the collaborators a Publisher needs.
type Deps struct {
	Subject string
	NATS    *natsclient.Client
	Logger  *slog.Logger
}

// New creates a publisher.
func New(deps Deps) *Publisher {
	subject := deps.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		subject: subject,
		nats:    deps.NATS,
		logger:  logger.With("component", "publisher"),
	}
}

// Meta implements component.Discoverable.
func (p *Publisher) Meta() component.Metadata {
	return component.Metadata{
		Name:        "publisher",
		Type:        "output",
		Description: "publishes control commands to the equipment channel",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (p *Publisher) Health() component.HealthStatus {
	p.mu.RLock()
	start := p.startTime
	p.mu.RUnlock()

	h := component.HealthStatus{
		Healthy:    p.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(p.dropped.Load()),
	}
	if msg, ok := p.lastError.Load().(string); ok {
		h.LastError = msg
	}
	if !start.IsZero() {
		h.Uptime = time.Since(start)
	}
	return h
}

// Initialize validates the wiring.
func (p *Publisher) Initialize() error {
	if p.nats == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"publisher", "Initialize", "dependency validation")
	}
	return nil
}

// Start marks the publisher active. Idempotent.
func (p *Publisher) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return nil
	}
	p.running.Store(true)
	p.startTime = time.Now()
	return nil
}

// Stop marks the publisher inactive.
func (p *Publisher) Stop(_ time.Duration) error {
	p.running.Store(false)
	return nil
}

// Publish encodes and sends one command. Invalid commands are returned as
// errors; transport failures are counted and swallowed.
func (p *Publisher) Publish(cmd control.Command) error {
	if !p.running.Load() {
		return nil
	}

	data, err := control.Encode(cmd)
	if err != nil {
		return errors.Wrap(err, "publisher", "Publish", "command encoding")
	}

	if err := p.nats.Publish(p.subject, data); err != nil {
		p.dropped.Add(1)
		p.lastError.Store(err.Error())
		p.logger.Debug("control command dropped",
			"kind", cmd.Kind(), "error", err)
		return nil
	}

	p.published.Add(1)
	return nil
}

// Flow reports the command throughput since start.
func (p *Publisher) Flow() component.FlowMetrics {
	p.mu.RLock()
	start := p.startTime
	p.mu.RUnlock()

	var fm component.FlowMetrics
	published := p.published.Load()
	dropped := p.dropped.Load()
	if total := published + dropped; total > 0 {
		fm.ErrorRate = float64(dropped) / float64(total)
	}
	if !start.IsZero() {
		if secs := time.Since(start).Seconds(); secs > 0 {
			fm.MessagesPerSecond = float64(published) / secs
		}
	}
	return fm
}

// Published returns the count of commands sent.
func (p *Publisher) Published() int64 { return p.published.Load() }

// Dropped returns the count of commands lost to transport failures.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }
