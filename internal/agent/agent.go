package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SkynetNext/prof-agent/internal/config"
	"github.com/SkynetNext/prof-agent/internal/logger"
	"github.com/SkynetNext/prof-agent/internal/metrics"
	"github.com/SkynetNext/prof-agent/internal/profbuf"
	"github.com/SkynetNext/prof-agent/internal/sampler"
	"github.com/SkynetNext/prof-agent/internal/sink"
	"github.com/SkynetNext/prof-agent/internal/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Agent wires the sampler, buffer pool and sink together and carries the
// operational surface: health endpoints, metrics, config hot reload and
// graceful shutdown with a final pool drain.
type Agent struct {
	config       *config.Config
	instanceName string

	// Components
	pool    *profbuf.Pool
	sink    sink.Sink
	sampler *sampler.Sampler

	// Configuration hot reload
	reloadManager *config.HotReloadManager

	// Network
	metricsServer *http.Server

	// State
	draining int32 // Atomic: 0=Running, 1=Draining
	wg       sync.WaitGroup
}

// New creates a new agent instance
func New(cfg *config.Config, instanceName string) (*Agent, error) {
	pool, err := profbuf.New(cfg.Pool.BufferCount, cfg.Pool.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer pool: %w", err)
	}

	snk, err := buildSink(cfg)
	if err != nil {
		return nil, err
	}

	smp := sampler.New(pool, snk, &cfg.Sampler)

	a := &Agent{
		config:       cfg,
		instanceName: instanceName,
		pool:         pool,
		sink:         snk,
		sampler:      smp,
	}
	a.reloadManager = config.NewHotReloadManager(cfg, a.applyReload)

	return a, nil
}

// buildSink constructs the configured sink
func buildSink(cfg *config.Config) (sink.Sink, error) {
	switch cfg.Sink.Type {
	case config.SinkTypeRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s, err := sink.NewRedisSink(ctx, &cfg.Sink.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis sink: %w", err)
		}
		return s, nil
	default:
		s, err := sink.NewFileSink(cfg.Sink.File.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create file sink: %w", err)
		}
		return s, nil
	}
}

// Start starts the agent
func (a *Agent) Start(ctx context.Context) error {
	// 1. Start the sampler
	a.sampler.Start(ctx)

	// 2. Start the background flush loop. Producers already flush
	// opportunistically; this ticker covers quiet periods so committed
	// data never sits in the pool indefinitely.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.flushLoop(ctx)
	}()

	// 3. Start metrics and health check server
	if err := a.startMetricsServer(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	return nil
}

// WatchConfig starts watching the config file for hot-reloadable changes.
func (a *Agent) WatchConfig(ctx context.Context, configPath string, interval time.Duration) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.reloadManager.WatchConfigFile(ctx, configPath, interval)
	}()
}

// applyReload applies a validated new configuration to running components.
// Reload is idempotent, so it is applied unconditionally.
func (a *Agent) applyReload(newCfg *config.Config) error {
	a.sampler.Reload(&newCfg.Sampler)
	logger.L.Debug("sampler configuration applied",
		zap.Int("hz", newCfg.Sampler.Hz),
		zap.Int("rate_limit", newCfg.Sampler.RateLimit),
	)
	return nil
}

// flushLoop periodically drains ready buffers and refreshes pool gauges
func (a *Agent) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&a.draining) == 1 {
				return
			}
			a.pool.Flush(a.sink)

			st := a.pool.Stats()
			metrics.SlotsReady.Set(float64(st.Ready))
			metrics.SlotsFilling.Set(float64(st.Filling))
		}
	}
}

// Shutdown gracefully shuts down the agent
func (a *Agent) Shutdown(ctx context.Context) error {
	// 1. Enter drain mode
	atomic.StoreInt32(&a.draining, 1)

	// 2. Stop producing samples
	a.sampler.Stop()

	// 3. Drain the pool: permanently seal it and flush everything ready.
	// Slots still mid-fill are abandoned; that loss is part of the
	// non-blocking design and preferable to stalling shutdown.
	drainCtx, span := tracing.StartSpan(ctx, "pool.drain")
	a.pool.Shutdown(a.sink)
	span.End()

	st := a.pool.Stats()
	logger.InfoWithTrace(drainCtx, "buffer pool drained",
		zap.Int("abandoned_filling", st.Filling),
	)

	// 4. Sync and close the sink
	if err := a.sink.Close(); err != nil {
		logger.L.Warn("error closing sink", zap.Error(err))
	}

	// 5. Shutdown metrics server
	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown metrics server: %w", err)
		}
	}

	// 6. Wait for background loops (with timeout)
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	return nil
}

// startMetricsServer starts the metrics and health check HTTP server
func (a *Agent) startMetricsServer(_ context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/ready", a.readyHandler)
	mux.HandleFunc("/stats", a.statsHandler)
	mux.Handle("/metrics", promhttp.Handler()) // Prometheus metrics endpoint

	a.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Server.HealthCheckPort),
		Handler: mux,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Error("metrics server error",
				zap.Error(err),
			)
		}
	}()

	logger.L.Info("metrics server started",
		zap.Int("port", a.config.Server.HealthCheckPort),
	)

	return nil
}

// healthHandler handles health check requests
func (a *Agent) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyHandler handles readiness probe requests
func (a *Agent) readyHandler(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&a.draining) == 1 || a.pool.Closed() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

// statsHandler reports pool occupancy as JSON (for debugging)
func (a *Agent) statsHandler(w http.ResponseWriter, r *http.Request) {
	st := a.pool.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"instance": a.instanceName,
		"unused":   st.Unused,
		"filling":  st.Filling,
		"ready":    st.Ready,
		"closed":   st.Closed,
	})
}
