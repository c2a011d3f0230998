// Package gateway serves the HTTP query surface: runtime status, latest
// samples and derived state, training and optimization triggers, health,
// metrics, and a websocket status stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/c360/edgetwin/component"
	"github.com/c360/edgetwin/config"
	edgeerrors "github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/health"
	"github.com/c360/edgetwin/metric"
	"github.com/c360/edgetwin/runtime"
)

// Gateway is the HTTP server component.
type Gateway struct {
	addr    string
	rt      *runtime.Runtime
	logger  *slog.Logger
	metrics *metric.Registry
	health  *health.Monitor
	cfg     *config.SafeConfig

	server  *http.Server
	stream  *statusStream
	running atomic.Bool
}

var _ component.Lifecycle = (*Gateway)(nil)

// Deps carries the collaborators a Gateway needs.
type Deps struct {
	Addr    string
	Runtime *runtime.Runtime
	Logger  *slog.Logger
	Metrics *metric.Registry
	Health  *health.Monitor
	Config  *config.SafeConfig
}

// New creates a gateway.
func New(deps Deps) *Gateway {
	addr := deps.Addr
	if addr == "" {
		addr = ":8080"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		addr:    addr,
		rt:      deps.Runtime,
		logger:  logger.With("component", "gateway"),
		metrics: deps.Metrics,
		health:  deps.Health,
		cfg:     deps.Config,
	}
	g.stream = newStatusStream(g.rt, g.logger)
	return g
}

// Meta implements component.Discoverable.
func (g *Gateway) Meta() component.Metadata {
	return component.Metadata{
		Name:        "gateway",
		Type:        "api",
		Description: "HTTP and websocket query surface",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (g *Gateway) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:   g.running.Load(),
		LastCheck: time.Now(),
	}
}

// Initialize validates the wiring and builds the router.
func (g *Gateway) Initialize() error {
	if g.rt == nil {
		return edgeerrors.WrapInvalid(fmt.Errorf("nil runtime"),
			"gateway", "Initialize", "dependency validation")
	}
	g.server = &http.Server{
		Addr:              g.addr,
		Handler:           g.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// Start begins serving. The listener error, if any, surfaces in the logs;
// startup itself returns immediately.
func (g *Gateway) Start(ctx context.Context) error {
	if g.running.Load() {
		return nil
	}
	g.running.Store(true)
	g.stream.start(ctx)

	go func() {
		g.logger.Info("gateway listening", "addr", g.addr)
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.running.Store(false)
			g.logger.Error("gateway server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(timeout time.Duration) error {
	if !g.running.Load() {
		return nil
	}
	g.running.Store(false)
	g.stream.stop()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		return edgeerrors.WrapTransient(err, "gateway", "Stop", "server shutdown")
	}
	return nil
}

func (g *Gateway) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", g.handleStatus)
		r.Get("/samples/latest", g.handleLatestSample)
		r.Get("/processes", g.handleProcesses)
		r.Post("/processes/{id}/start", g.handleStartProcess)
		r.Post("/processes/{id}/stop", g.handleStopProcess)
		r.Get("/predictions", g.handlePredictions)
		r.Get("/physics/{id}", g.handlePhysics)
		r.Post("/train", g.handleTrain)
		r.Post("/optimize", g.handleOptimize)
		r.Get("/config", g.handleConfig)
	})

	r.Get("/ws", g.stream.handleUpgrade)
	r.Get("/healthz", g.handleHealthz)

	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}
	return r
}
