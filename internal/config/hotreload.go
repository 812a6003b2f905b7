package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SkynetNext/prof-agent/internal/metrics"
)

// HotReloadManager manages hot reloading of configuration.
// Only sampler settings may change at runtime; pool geometry and the sink
// selection are fixed for the agent's lifetime and a reload that touches
// them is rejected.
type HotReloadManager struct {
	config     *Config
	mu         sync.RWMutex
	reloadFunc func(*Config) error
}

// NewHotReloadManager creates a new hot reload manager
func NewHotReloadManager(initialConfig *Config, reloadFunc func(*Config) error) *HotReloadManager {
	return &HotReloadManager{
		config:     initialConfig,
		reloadFunc: reloadFunc,
	}
}

// GetConfig returns the current configuration (thread-safe)
func (h *HotReloadManager) GetConfig() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// UpdateConfig updates the configuration (thread-safe)
func (h *HotReloadManager) UpdateConfig(newConfig *Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Validate new configuration
	if err := validateConfig(newConfig); err != nil {
		return err
	}

	// Pool capacity is fixed for the pool's lifetime
	if newConfig.Pool != h.config.Pool {
		return fmt.Errorf("pool configuration cannot be changed at runtime (restart required)")
	}
	if newConfig.Sink.Type != h.config.Sink.Type {
		return fmt.Errorf("sink type cannot be changed at runtime (restart required)")
	}

	// Call reload function if provided
	if h.reloadFunc != nil {
		if err := h.reloadFunc(newConfig); err != nil {
			return err
		}
	}

	// Update configuration
	h.config = newConfig
	return nil
}

// WatchConfigFile watches for configuration file changes and reloads
func (h *HotReloadManager) WatchConfigFile(ctx context.Context, configPath string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Reload configuration from file
			newConfig, err := Load(configPath)
			if err != nil {
				// Keep running on the existing config
				metrics.ConfigRefreshErrors.WithLabelValues("load").Inc()
				continue
			}

			if err := h.UpdateConfig(newConfig); err != nil {
				metrics.ConfigRefreshErrors.WithLabelValues("apply").Inc()
				continue
			}
		}
	}
}
