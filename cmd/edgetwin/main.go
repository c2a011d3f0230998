// Package main is the entry point for the edgetwin service: a digital twin
// runtime that ingests equipment telemetry over NATS, runs multi-physics
// simulation and ML inference per manufacturing process, and serves the
// derived state over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/c360/edgetwin/component"
	"github.com/c360/edgetwin/config"
	"github.com/c360/edgetwin/control"
	"github.com/c360/edgetwin/gateway"
	"github.com/c360/edgetwin/health"
	"github.com/c360/edgetwin/ingest"
	"github.com/c360/edgetwin/metric"
	"github.com/c360/edgetwin/ml"
	"github.com/c360/edgetwin/natsclient"
	"github.com/c360/edgetwin/optimize"
	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/publisher"
	"github.com/c360/edgetwin/runtime"
	"github.com/c360/edgetwin/telemetry"
)

const (
	Version = "1.0.0"
	appName = "edgetwin"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\n%s\n", r, debug.Stack())
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cliCfg.Validate {
		logger.Info("configuration is valid")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared infrastructure
	metrics := metric.NewRegistry()
	core := metrics.Core
	monitor := health.NewMonitor()

	nats := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithLogger(logger),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
		natsclient.WithTimeout(cfg.NATS.Timeout.Std()),
		natsclient.WithMetrics(core),
	)
	if err := nats.Connect(ctx); err != nil {
		// The twin still serves simulated state without a broker; the
		// ingest path stays dark until a connection succeeds.
		logger.Warn("NATS unavailable at startup", "error", err)
	}
	if nats.IsConnected() {
		monitor.UpdateHealthy("natsclient", "connected")
	} else {
		monitor.UpdateDegraded("natsclient", "broker unreachable at startup")
		nats.OnReconnect(func() {
			monitor.UpdateHealthy("natsclient", "connected")
		})
	}
	defer nats.Close()

	// Core state
	buffer := telemetry.NewSampleBuffer(cfg.Buffer.Capacity,
		telemetry.WithBufferMetrics(metrics))
	registry := process.NewRegistry(cfg.Catalog, logger)
	pub := publisher.New(publisher.Deps{
		Subject: cfg.NATS.ControlSubject,
		NATS:    nats,
		Logger:  logger,
	})

	rt := runtime.New(runtime.Deps{
		Buffer:    buffer,
		Registry:  registry,
		MLEngine:  ml.NewEngine(logger, ml.WithMinTrainingSamples(cfg.ML.MinTrainingSamples)),
		Optimizer: optimize.New(logger),
		Publisher: pub,
		Logger:    logger,
		Metrics:   core,
		Health:    monitor,
		Periods: runtime.Periods{
			Ingest:    cfg.Loops.Ingest.Std(),
			Physics:   cfg.Loops.Physics.Std(),
			Inference: cfg.Loops.Inference.Std(),
			Monitor:   cfg.Loops.Monitor.Std(),
		},
	})

	ing := ingest.New(ingest.Deps{
		Subject: cfg.NATS.TelemetrySubject,
		NATS:    nats,
		Buffer:  buffer,
		Logger:  logger,
		Metrics: core,
	})

	gw := gateway.New(gateway.Deps{
		Addr:    cfg.Gateway.Addr,
		Runtime: rt,
		Logger:  logger,
		Metrics: metrics,
		Health:  monitor,
		Config:  config.NewSafeConfig(cfg),
	})

	// Inbound commands from the control channel feed back into the
	// runtime (operator start/stop, emergency stop). A dark broker defers
	// the subscription to the first successful connection.
	var controlSubscribed atomic.Bool
	subscribeControl := func() {
		if controlSubscribed.Load() {
			return
		}
		if err := nats.Subscribe(cfg.NATS.ControlSubject+".inbound", func(data []byte) {
			cmd, err := control.Decode(data)
			if err != nil {
				logger.Debug("discarding malformed control command", "error", err)
				return
			}
			if err := rt.HandleCommand(cmd); err != nil {
				logger.Warn("control command rejected", "kind", cmd.Kind(), "error", err)
			}
		}); err != nil {
			logger.Warn("control subscription deferred", "error", err)
			return
		}
		controlSubscribed.Store(true)
	}
	subscribeControl()
	nats.OnReconnect(subscribeControl)

	// Ordered startup; reverse-ordered shutdown.
	components := []component.Lifecycle{pub, rt, ing, gw}
	for _, c := range components {
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initializing %s: %w", c.Meta().Name, err)
		}
	}
	started := make([]component.Lifecycle, 0, len(components))
	for _, c := range components {
		if err := c.Start(ctx); err != nil {
			stopAll(started, cliCfg.ShutdownTimeout, logger)
			return fmt.Errorf("starting %s: %w", c.Meta().Name, err)
		}
		started = append(started, c)
		logger.Info("component started", "component", c.Meta().Name)
	}

	// Wait for a shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	cancel()
	stopAll(started, cliCfg.ShutdownTimeout, logger)
	logger.Info("shutdown complete")
	return nil
}

func stopAll(components []component.Lifecycle, timeout time.Duration, logger *slog.Logger) {
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.Stop(timeout); err != nil {
			logger.Warn("component stop failed", "component", c.Meta().Name, "error", err)
		} else {
			logger.Info("component stopped", "component", c.Meta().Name)
		}
	}
}
