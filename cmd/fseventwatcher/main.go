package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"fseventwatcher/internal/aggregate"
	"fseventwatcher/internal/config"
	"fseventwatcher/internal/dither"
	"fseventwatcher/internal/event"
	"fseventwatcher/internal/gate"
	"fseventwatcher/internal/logging"
	"fseventwatcher/internal/metrics"
	"fseventwatcher/internal/restart"
	"fseventwatcher/internal/supervisor"
	"fseventwatcher/internal/watch"
)

func main() {
	cfg, showedHelp, err := parseConfig(os.Args[1:])
	if showedHelp {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", map[string]string{
			"error": err.Error(),
		})
		os.Exit(2)
	}

	client, err := supervisor.NewClientFromEnv()
	if err != nil {
		logger.Error("supervisor connection failed", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer client.Close()

	if err := run(cfg, client, logger); err != nil {
		logger.Error("watcher stopped", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func run(cfg config.Config, client restart.ProcessClient, logger *logging.Logger) error {
	registry := metrics.Default
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aggregator := aggregate.New(cfg.Specs, aggregate.Options{
		Logger:   logger.With(map[string]string{"component": "aggregate"}),
		Registry: registry,
	})

	bus := event.NewBus[aggregate.ChangeEvent](ctx, event.BusOptions{
		Name:     "fs_events",
		Registry: registry,
		OnDrop:   aggregator.MarkDirty,
	})
	defer bus.Close()

	changes, cancelChanges := bus.Subscribe()
	defer cancelChanges()
	go func() {
		for change := range changes {
			aggregator.Observe(change)
		}
	}()

	watchErrs := make(chan error, 1)
	watcher, err := watch.New(bus, cfg.Specs, watch.Options{
		Logger:     logger.With(map[string]string{"component": "watch"}),
		Registry:   registry,
		Debounce:   cfg.Debounce,
		OnOverflow: aggregator.MarkDirty,
		ErrorHandler: func(err error) {
			select {
			case watchErrs <- err:
			default:
			}
		},
	})
	if err != nil {
		return fmt.Errorf("start filesystem watcher: %w", err)
	}
	defer watcher.Close()

	coordinator := restart.NewCoordinator(client, restart.Options{
		Logger:   logger.With(map[string]string{"component": "restart"}),
		Registry: registry,
	})
	scheduler := dither.NewScheduler(cfg.DitherMax)
	heartbeatGate := gate.New(aggregator, scheduler, coordinator, cfg.Target(), gate.Options{
		Logger:   logger.With(map[string]string{"component": "gate"}),
		Registry: registry,
	})

	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer stopMetrics()
	}

	for _, spec := range cfg.Specs {
		logger.Info("watching path", map[string]string{
			"spec": spec.String(),
		})
	}
	logger.Info("listening for supervisor events", map[string]string{
		"dither_max": cfg.DitherMax.String(),
	})

	listener := supervisor.NewListener(os.Stdin, os.Stdout, logger.With(map[string]string{"component": "listener"}))
	listenErrs := make(chan error, 1)
	go func() {
		listenErrs <- listener.Run(func(received supervisor.Event) {
			if received.IsTick() {
				heartbeatGate.OnHeartbeat()
			}
		})
	}()

	select {
	case err := <-watchErrs:
		return fmt.Errorf("filesystem source lost: %w", err)
	case err := <-listenErrs:
		if errors.Is(err, io.EOF) {
			logger.Info("supervisor event stream closed", nil)
			return nil
		}
		return err
	}
}

func serveMetrics(addr string, registry *metrics.Registry, logger *logging.Logger) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = registry.WritePrometheus(writer)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", map[string]string{
			"addr": addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", map[string]string{
				"error": err.Error(),
			})
		}
	}()
	return func() {
		_ = server.Close()
	}
}
