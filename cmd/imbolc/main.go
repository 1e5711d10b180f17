// Command imbolc is the entry point for the audio engine orchestrator
// daemon: it loads configuration, starts the observability and health HTTP
// endpoints, constructs the [handle.AudioHandle] cross-thread boundary, and
// watches the config file for changes until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohsenil85/imbolc-engine/internal/config"
	"github.com/mohsenil85/imbolc-engine/internal/handle"
	"github.com/mohsenil85/imbolc-engine/internal/health"
	"github.com/mohsenil85/imbolc-engine/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ──────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "imbolc: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "imbolc: %v\n", err)
		}
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("imbolc starting",
		"config", *configPath,
		"server_port", cfg.Server.Port,
		"health_addr", cfg.Server.HealthAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "imbolc-engine"})
	if err != nil {
		slog.Error("failed to initialise observability providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("observability shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Audio engine ─────────────────────────────────────────────────────
	h := handle.New(cfg)

	// ── Health/readiness/metrics HTTP server ────────────────────────────
	healthHandler := health.New(health.Checker{
		Name: "synth_server",
		Check: func(context.Context) error {
			if !h.ServerRunning() {
				return fmt.Errorf("synth server not running (state: %s)", h.State())
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Server.HealthAddr,
		Handler: observe.Middleware(metrics)(mux),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health/metrics server error", "err", err)
		}
	}()

	// ── Config hot-reload ────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config, diff config.ConfigDiff) {
		if diff.LogLevelChanged {
			slog.SetDefault(newLogger(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.ServerRestartRequired {
			slog.Warn("config change requires a server restart to take effect; call StopServer/StartServer to apply it")
		}
		if diff.SynthSourceChanged {
			slog.Info("synth source changed, recompiling", "path", updated.Synth.SourcePath)
			if err := h.CompileSynthDefs(updated.Synth.SourcePath); err != nil {
				slog.Error("recompile after config change failed", "err", err)
			}
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}

	slog.Info("imbolc ready — press Ctrl+C to shut down")

	// ── Run until signalled ──────────────────────────────────────────────
	<-ctx.Done()

	slog.Info("shutdown signal received, stopping…")
	watcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("health/metrics server shutdown error", "err", err)
	}

	h.Shutdown()

	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
