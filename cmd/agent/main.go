package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SkynetNext/prof-agent/internal/agent"
	"github.com/SkynetNext/prof-agent/internal/config"
	"github.com/SkynetNext/prof-agent/internal/logger"
	"github.com/SkynetNext/prof-agent/internal/tracing"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	var watchConfig bool
	flag.StringVar(&configPath, "config", "config/config.yaml", "Configuration file path")
	flag.BoolVar(&watchConfig, "watch-config", true, "Reload sampler settings on config file changes")
	flag.Parse()

	// Initialize logger (read from environment variable or use default)
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	if err := logger.Init(logLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.L.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Instance name for metrics/tracing attribution
	instanceName := os.Getenv("INSTANCE_NAME")
	if instanceName == "" {
		hostname, _ := os.Hostname()
		instanceName = hostname
	}

	// Create agent instance
	a, err := agent.New(cfg, instanceName)
	if err != nil {
		logger.L.Fatal("Failed to create agent", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start service
	if err := a.Start(ctx); err != nil {
		logger.L.Fatal("Failed to start agent", zap.Error(err))
	}

	if watchConfig {
		a.WatchConfig(ctx, configPath, 10*time.Second)
	}

	// Initialize tracing (optional, if collector endpoint is provided)
	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint != "" {
		if err := tracing.Init("prof-agent", version, instanceName, otlpEndpoint); err != nil {
			logger.L.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			logger.L.Info("Tracing initialized", zap.String("endpoint", otlpEndpoint))
		}
	}

	logger.L.Info("Profiling agent started successfully",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("git_commit", gitCommit),
		zap.String("instance", instanceName),
		zap.Int("buffer_count", cfg.Pool.BufferCount),
		zap.Int("buffer_size", cfg.Pool.BufferSize),
		zap.String("sink", cfg.Sink.Type),
	)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.L.Info("Received stop signal, starting graceful shutdown...")

	// Stop background loops, then drain
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("Error during agent shutdown", zap.Error(err))
	}

	// Shutdown tracing
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.L.Warn("Error during tracing shutdown", zap.Error(err))
	}

	logger.L.Info("Profiling agent closed")
}
