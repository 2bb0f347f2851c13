// Package lock keeps a single autopdf daemon per data directory.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/harunnryd/autopdf/internal/config"
)

const lockFileName = "autopdf.lock"

type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
	mu         sync.RWMutex
}

type Config struct {
	Timeout  time.Duration
	Retry    time.Duration
	MaxRetry int
}

func DefaultConfig() Config {
	timeout, _ := config.DurationOrDefault(config.DefaultDaemonLockTimeout, config.DefaultDaemonLockTimeout)
	retry, _ := config.DurationOrDefault(config.DefaultDaemonLockRetry, config.DefaultDaemonLockRetry)

	return Config{
		Timeout:  timeout,
		Retry:    retry,
		MaxRetry: config.DefaultDaemonLockMaxRetry,
	}
}

// ConfigFrom reads the lock settings of the daemon section.
func ConfigFrom(cfg config.DaemonConfig) (Config, error) {
	timeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultDaemonLockTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("parse daemon lock timeout: %w", err)
	}
	retry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultDaemonLockRetry)
	if err != nil {
		return Config{}, fmt.Errorf("parse daemon lock retry: %w", err)
	}
	maxRetry := cfg.LockMaxRetry
	if maxRetry <= 0 {
		maxRetry = config.DefaultDaemonLockMaxRetry
	}
	return Config{Timeout: timeout, Retry: retry, MaxRetry: maxRetry}, nil
}

// Acquire takes the lock file in dir, retrying until cfg is exhausted.
func Acquire(ctx context.Context, dir string, cfg Config) (*FileLock, error) {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 1
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	lockPath := filepath.Join(dir, lockFileName)
	fl := &FileLock{
		fileLock: flock.New(lockPath),
		lockPath: lockPath,
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := fl.acquireWithRetry(ctx, cfg); err != nil {
		return nil, err
	}

	fl.acquiredAt = time.Now()
	slog.Info("File lock acquired",
		"path", lockPath,
		"acquired_at", fl.acquiredAt.Format(time.RFC3339Nano),
	)
	return fl, nil
}

func (fl *FileLock) acquireWithRetry(ctx context.Context, cfg Config) error {
	for i := 0; i < cfg.MaxRetry; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("data dir %s is locked by another instance: %w", filepath.Dir(fl.lockPath), ctx.Err())
		default:
		}

		locked, err := fl.fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to attempt lock: %w", err)
		}
		if locked {
			return nil
		}

		if i < cfg.MaxRetry-1 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.Retry):
			}
		}
	}

	return fmt.Errorf("data dir %s is locked by another instance (gave up after %d attempts)",
		filepath.Dir(fl.lockPath), cfg.MaxRetry)
}

func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.fileLock == nil {
		slog.Warn("FileLock already unlocked", "path", fl.lockPath)
		return
	}

	held := time.Since(fl.acquiredAt)
	if err := fl.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release file lock", "path", fl.lockPath, "error", err)
	} else {
		slog.Info("File lock released", "path", fl.lockPath, "held_duration_ms", held.Milliseconds())
	}
	fl.fileLock = nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.fileLock != nil
}

func (fl *FileLock) Path() string {
	return fl.lockPath
}
