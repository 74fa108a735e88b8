package models

import (
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// SafeConfig provides thread-safe access to configuration.
// It uses RWMutex to allow concurrent reads while serializing writes.
//
// SafeConfig enables configuration reload without restarting the exporter:
// operators can point the exporter at another Redis server or rotate its
// password via SIGHUP or by editing the config file.
//
// Usage:
//
//	safeCfg := NewSafeConfig(cfg)
//	current := safeCfg.Get()
//	changed, err := safeCfg.ReloadConfig("/path/to/config.yaml")
type SafeConfig struct {
	mu sync.RWMutex
	C  *Config

	// overlay is re-applied on every reload so that environment variables
	// and command-line flags keep precedence over the file.
	overlay func(*Config) error
}

// NewSafeConfig creates a new SafeConfig with the provided initial config.
// The caller should not modify cfg after passing it to NewSafeConfig.
func NewSafeConfig(cfg *Config) *SafeConfig {
	return &SafeConfig{
		C: cfg,
	}
}

// SetOverlay registers a function applied to every reloaded config before
// validation. An overlay error aborts the reload.
func (sc *SafeConfig) SetOverlay(fn func(*Config) error) {
	sc.mu.Lock()
	sc.overlay = fn
	sc.mu.Unlock()
}

// Get returns the current configuration (read-locked).
// The returned pointer is safe to use until the next reload.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.C
}

// ReloadConfig loads and validates a new configuration from the file.
// Validation happens before the write lock is taken, so an invalid file
// never replaces the running configuration.
//
// Returns:
//   - redisChanged: true if the Redis connection settings changed
//   - err: error if file cannot be read or validation fails
func (sc *SafeConfig) ReloadConfig(configPath string) (redisChanged bool, err error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false, fmt.Errorf("config file not found: %s", configPath)
	}

	f, err := os.Open(configPath)
	if err != nil {
		return false, fmt.Errorf("failed to open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	var newCfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&newCfg); err != nil {
		return false, fmt.Errorf("failed to decode config: %w", err)
	}

	sc.mu.RLock()
	overlay := sc.overlay
	sc.mu.RUnlock()
	if overlay != nil {
		if err := overlay(&newCfg); err != nil {
			return false, fmt.Errorf("config overlay failed: %w", err)
		}
	}

	if err := newCfg.Validate(); err != nil {
		return false, fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	oldRedis := sc.C.Redis
	sc.C = &newCfg
	sc.mu.Unlock()

	redisChanged = !oldRedis.Equal(newCfg.Redis)

	log.Info("Configuration reloaded successfully")
	if redisChanged {
		log.Infof("Redis connection settings changed, reconnecting to %s", newCfg.RedisTarget())
	}

	return redisChanged, nil
}
