// Package main implements the paramsync daemon: it listens for
// control-surface events over UDP and WebSocket, drives the registered
// parameter types, and persists their values across restarts.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/paramsync/input"
	"github.com/c360/paramsync/input/udp"
	"github.com/c360/paramsync/input/websocket"
	"github.com/c360/paramsync/metric"
	"github.com/c360/paramsync/natsclient"
	"github.com/c360/paramsync/param"
	"github.com/c360/paramsync/persist"
	"github.com/c360/paramsync/registry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "paramsync"
)

// VisualParams is the demo parameter set wired by default. Real
// deployments replace this with their own types and bindings.
type VisualParams struct {
	Brightness float64
	Contrast   float64
	Bloom      bool
	Preset     string
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return err
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsRegistry := metric.NewRegistry()
	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Warn("Metrics server stop failed", "error", err)
			}
		}()
	}

	docs, cleanup, err := buildDocStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	controller, err := registry.New(registry.Deps{
		Docs:            docs,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer controller.Close()

	visual := &VisualParams{Brightness: 1.0, Contrast: 1.0, Preset: "default"}
	binder := param.NewBinder("visual").
		Range("brightness", 16, 0.0, 2.0, &visual.Brightness).
		Range("contrast", 17, 0.0, 4.0, &visual.Contrast).
		Toggle("bloom", 24, &visual.Bloom).
		String("preset", &visual.Preset)
	if err := binder.Err(); err != nil {
		return err
	}
	if err := controller.Register(binder, binder.Table()); err != nil {
		return err
	}

	sources := buildSources(cfg, controller, metricsRegistry, logger)

	logger.Info("Starting",
		"backend", cfg.Persistence.Backend,
		"update_interval", cfg.UpdateInterval,
		"sources", len(sources))

	err = controller.Run(ctx, cfg.UpdateInterval, sources...)
	if stderrors.Is(err, context.Canceled) {
		logger.Info("Shutdown complete")
		return nil
	}
	return err
}

// buildDocStore constructs the persistence backend from configuration.
// The returned cleanup releases backend resources and is always safe to
// call.
func buildDocStore(ctx context.Context, cfg *Config, logger *slog.Logger) (persist.Store, func(), error) {
	switch cfg.Persistence.Backend {
	case "nats":
		client, err := natsclient.NewClient(cfg.Persistence.NATS.URL,
			natsclient.WithName(appName),
			natsclient.WithLogger(logger),
		)
		if err != nil {
			return nil, func() {}, err
		}
		if err := client.Connect(); err != nil {
			return nil, func() {}, err
		}
		kv, err := client.KeyValue(ctx, cfg.Persistence.NATS.Bucket)
		if err != nil {
			client.Close()
			return nil, func() {}, err
		}
		store, err := persist.NewKVStore(kv, cfg.Persistence.NATS.Key, logger)
		if err != nil {
			client.Close()
			return nil, func() {}, err
		}
		return store, client.Close, nil

	default:
		store, err := persist.NewFileStore(cfg.Persistence.Path, logger)
		if err != nil {
			return nil, func() {}, err
		}
		return store, func() {}, nil
	}
}

// buildSources constructs the enabled control-surface sources.
func buildSources(cfg *Config, sink input.Sink, metricsRegistry *metric.Registry, logger *slog.Logger) []input.Source {
	var sources []input.Source
	if cfg.Inputs.UDP.Enabled {
		src := udp.New(udp.Deps{
			Config:          udp.Config{Bind: cfg.Inputs.UDP.Bind, Port: cfg.Inputs.UDP.Port},
			Sink:            sink,
			MetricsRegistry: metricsRegistry,
			Logger:          logger,
		})
		if src != nil {
			sources = append(sources, src)
		}
	}
	if cfg.Inputs.WebSocket.Enabled {
		src := websocket.New(websocket.Deps{
			Config: websocket.Config{
				Bind: cfg.Inputs.WebSocket.Bind,
				Port: cfg.Inputs.WebSocket.Port,
				Path: cfg.Inputs.WebSocket.Path,
			},
			Sink:            sink,
			MetricsRegistry: metricsRegistry,
			Logger:          logger,
		})
		if src != nil {
			sources = append(sources, src)
		}
	}
	return sources
}
