package cache

import (
	"fmt"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RunLockFactory creates run locks based on configuration
type RunLockFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RunLockFactoryOption is a functional option for configuring the factory
type RunLockFactoryOption func(*RunLockFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RunLockFactoryOption {
	return func(f *RunLockFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory lock when
// Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) RunLockFactoryOption {
	return func(f *RunLockFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRunLockFactory creates a new factory
func NewRunLockFactory(cfg config.RedisConfig, opts ...RunLockFactoryOption) *RunLockFactory {
	f := &RunLockFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true, // Default to allowing fallback
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisLock creates a Redis-based run lock
func (f *RunLockFactory) CreateRedisLock() (shared.RunLock, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	lock, err := NewRedisRunLock(redisCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis run lock: %w", err)
	}

	return lock, nil
}

// CreateInMemoryLock creates an in-memory run lock.
// This is suitable for single-instance deployments and testing.
// WARNING: In-memory locks do not share state across process instances,
// which can let two instances consolidate the same org and period at once.
func (f *RunLockFactory) CreateInMemoryLock() shared.RunLock {
	return NewInMemoryRunLock()
}

// CreateLock creates a run lock based on whether Redis is available.
// It tries to create a Redis lock first, and falls back to in-memory if Redis
// is not available and AllowInMemoryFallback is true.
func (f *RunLockFactory) CreateLock() (shared.RunLock, error) {
	// Try Redis first
	lock, err := f.CreateRedisLock()
	if err == nil {
		f.logger.Info("using Redis run lock")
		return lock, nil
	}

	// Check if fallback is allowed
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for run locking but unavailable: %w", err)
	}

	// Fall back to in-memory with warning
	f.logger.Warn("Redis unavailable, falling back to in-memory run lock. "+
		"Concurrent runs for the same org and period are only prevented within this instance.",
		zap.Error(err),
	)
	return f.CreateInMemoryLock(), nil
}
