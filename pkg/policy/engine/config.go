package engine

import (
	"fmt"
	"time"
)

// EngineConfig contains configuration for the rule engine.
type EngineConfig struct {
	// Workers is the number of files evaluated concurrently.
	// Default: 4.
	Workers int

	// LockDir holds the per-file lock files. Empty disables cross-process
	// locking; the in-process lock is always taken.
	LockDir string

	// StopGrace is how long a cancelled action may take to return before
	// the dispatcher gives up waiting for it.
	// Default: 10s.
	StopGrace time.Duration
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Workers:   4,
		StopGrace: 10 * time.Second,
	}
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.StopGrace <= 0 {
		return fmt.Errorf("%w: stop grace must be positive, got %v", ErrInvalidConfig, c.StopGrace)
	}
	return nil
}

// WithWorkers sets the worker count.
func (c *EngineConfig) WithWorkers(n int) *EngineConfig {
	c.Workers = n
	return c
}

// WithLockDir sets the lock directory.
func (c *EngineConfig) WithLockDir(dir string) *EngineConfig {
	c.LockDir = dir
	return c
}
