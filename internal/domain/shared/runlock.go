package shared

import (
	"context"
	"time"
)

// RunLock serializes consolidation runs per (org, period). Acquire returns
// false without error when another holder owns the key, so callers can reject
// the run without creating a run record.
type RunLock interface {
	// Acquire takes the lock for key with a TTL guarding against crashed
	// holders. Returns true if the lock was newly taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees the lock. Releasing a key that is not held is a no-op.
	Release(ctx context.Context, key string) error

	// Close closes the lock backend and releases resources.
	Close() error
}

// RunLockConfig holds configuration for run serialization.
type RunLockConfig struct {
	// TTL caps how long a crashed run can keep its period locked.
	// Default: 30 minutes.
	TTL time.Duration

	// Enabled determines whether distributed locking is enforced.
	// Default: true.
	Enabled bool
}

// DefaultRunLockConfig returns the default run lock configuration.
func DefaultRunLockConfig() RunLockConfig {
	return RunLockConfig{
		TTL:     30 * time.Minute,
		Enabled: true,
	}
}
