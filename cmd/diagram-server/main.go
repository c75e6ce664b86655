package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"diagram-go/internal/config"
	"diagram-go/internal/dispatch"
	"diagram-go/internal/logging"
	"diagram-go/internal/server"
	"diagram-go/internal/shutdown"
	"diagram-go/internal/tracing"

	"github.com/gin-gonic/gin"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, "diagram-server")
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()
	shutdownManager := shutdown.NewManager(cfg.ShutdownTimeout, logger)

	tracerCfg := tracing.DefaultTracerConfig()
	tracerCfg.Enabled = cfg.Tracing.Enabled
	tracerCfg.Endpoint = cfg.Tracing.Endpoint
	tracerCfg.SampleRatio = cfg.Tracing.SampleRatio
	tracerCfg.ServiceVersion = version
	shutdownTracer, err := tracing.InitTracer(ctx, tracerCfg)
	if err != nil {
		slog.Error("failed to initialize tracing", "err", err)
		os.Exit(1)
	}
	shutdownManager.Add("tracer", shutdownTracer)

	dispatcher, closeBackends, err := dispatch.FromConfig(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to initialize backends", "err", err)
		os.Exit(1)
	}
	shutdownManager.Add("backends", func(context.Context) error {
		return closeBackends()
	})

	errChan := make(chan error, 2)

	apiServer := server.Start(server.NewHandler(dispatcher, version, logger), cfg.ListenPort, errChan)
	shutdownManager.Add("api server", apiServer.Shutdown)

	metricsServer := server.StartMetricsServer(cfg.MetricsPort, errChan)
	shutdownManager.Add("metrics server", metricsServer.Shutdown)

	slog.Info("diagram server ready", "version", version, "d2_compiler", cfg.D2.Compiler)

	// A server that cannot listen stops the whole process.
	waitCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := <-errChan; err != nil {
			slog.Error("server error", "err", err)
			cancel()
		}
	}()

	if err := shutdownManager.Wait(waitCtx); err != nil {
		os.Exit(1)
	}
}
