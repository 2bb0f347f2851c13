package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/autopdf/internal/config"
	"github.com/harunnryd/autopdf/internal/lock"
)

type timeouts struct {
	shutdown        time.Duration
	startupShutdown time.Duration
	healthInterval  time.Duration
}

// Daemon owns the lifecycle of the serve command: it holds the data
// directory lock, brings components up in dependency order and takes them
// down in reverse once the context ends.
type Daemon struct {
	cfg      *config.Config
	dataDir  string
	timeouts timeouts

	mu           sync.RWMutex
	instanceLock *lock.FileLock
	components   []Component
	// ready holds the components whose Init succeeded, in init order.
	ready     []Component
	health    HealthStatus
	unhealthy map[string]bool
}

func NewDaemon(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Daemon.DataDir == "" {
		return nil, fmt.Errorf("daemon data dir cannot be empty")
	}

	t, err := parseTimeouts(cfg.Daemon)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		cfg:       cfg,
		dataDir:   cfg.Daemon.DataDir,
		timeouts:  t,
		health:    StatusStarting,
		unhealthy: make(map[string]bool),
	}, nil
}

func parseTimeouts(cfg config.DaemonConfig) (timeouts, error) {
	var t timeouts
	var err error
	if t.shutdown, err = config.DurationOrDefault(cfg.ShutdownTimeout, config.DefaultDaemonShutdownTimeout); err != nil {
		return t, fmt.Errorf("daemon.shutdown_timeout: %w", err)
	}
	if t.startupShutdown, err = config.DurationOrDefault(cfg.StartupShutdownTimeout, config.DefaultDaemonStartupShutdownTimeout); err != nil {
		return t, fmt.Errorf("daemon.startup_shutdown_timeout: %w", err)
	}
	if t.healthInterval, err = config.DurationOrDefault(cfg.HealthCheckInterval, config.DefaultDaemonHealthCheckInterval); err != nil {
		return t, fmt.Errorf("daemon.health_check_interval: %w", err)
	}
	return t, nil
}

func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	slog.Info("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

// Start blocks until ctx is cancelled or SIGINT/SIGTERM arrives. A clean
// shutdown returns the context error so callers can tell it apart from a
// startup failure.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("AutoPDF daemon starting...", "data_dir", d.dataDir)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.prepareDataDir(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := d.acquireLock(ctx); err != nil {
		return fmt.Errorf("pre-init checks failed: %w", err)
	}
	defer d.releaseLock()

	order, err := d.startOrder()
	if err != nil {
		return fmt.Errorf("component initialization failed: %w", err)
	}

	if err := d.initComponents(ctx, order); err != nil {
		d.rollback(ctx)
		return fmt.Errorf("component initialization failed: %w", err)
	}

	if err := d.startComponents(ctx, order); err != nil {
		_ = d.shutdown(context.Background(), d.timeouts.startupShutdown)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("AutoPDF daemon is running", "data_dir", d.dataDir, "components", len(order))

	watchCtx, stopWatch := context.WithCancel(ctx)
	go d.watchHealth(watchCtx)

	<-ctx.Done()
	stopWatch()

	slog.Info("Context cancelled, initiating graceful shutdown", "data_dir", d.dataDir, "reason", ctx.Err())
	if err := d.shutdown(context.Background(), d.timeouts.shutdown); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

// ComponentHealth reports every registered component, keyed by name.
func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	return d.componentHealth(context.Background())
}

func (d *Daemon) componentHealth(ctx context.Context) map[string]*ComponentHealth {
	d.mu.RLock()
	components := append([]Component(nil), d.components...)
	d.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		health, err := comp.Health(ctx)
		if health == nil {
			health = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			health.Healthy = false
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) prepareDataDir() error {
	if d.cfg.Server.Port < 1 || d.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", d.cfg.Server.Port)
	}
	if err := os.MkdirAll(d.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	slog.Info("Configuration validated", "data_dir", d.dataDir, "port", d.cfg.Server.Port)
	return nil
}

// acquireLock takes the single-instance lock on the data directory.
func (d *Daemon) acquireLock(ctx context.Context) error {
	lockCfg, err := lock.ConfigFrom(d.cfg.Daemon)
	if err != nil {
		return err
	}
	instanceLock, err := lock.Acquire(ctx, d.dataDir, lockCfg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.instanceLock = instanceLock
	d.mu.Unlock()
	return nil
}

func (d *Daemon) releaseLock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.instanceLock != nil {
		d.instanceLock.Unlock()
		d.instanceLock = nil
	}
}

// startOrder sorts components so that each comes after its dependencies.
// Registration order breaks ties.
func (d *Daemon) startOrder() ([]Component, error) {
	d.mu.RLock()
	components := append([]Component(nil), d.components...)
	d.mu.RUnlock()

	byName := make(map[string]Component, len(components))
	for _, comp := range components {
		byName[comp.Name()] = comp
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(components))
	order := make([]Component, 0, len(components))

	var visit func(comp Component) error
	visit = func(comp Component) error {
		switch state[comp.Name()] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular dependency detected involving %s", comp.Name())
		}
		state[comp.Name()] = visiting
		for _, dep := range comp.Dependencies() {
			next, ok := byName[dep]
			if !ok {
				return fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), dep)
			}
			if err := visit(next); err != nil {
				return err
			}
		}
		state[comp.Name()] = done
		order = append(order, comp)
		return nil
	}

	for _, comp := range components {
		if err := visit(comp); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (d *Daemon) initComponents(ctx context.Context, order []Component) error {
	for _, comp := range order {
		if err := comp.Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", comp.Name(), "error", err)
			return fmt.Errorf("component %s init failed: %w", comp.Name(), err)
		}
		d.mu.Lock()
		d.ready = append(d.ready, comp)
		d.mu.Unlock()
		slog.Info("Component initialized", "component", comp.Name())
	}
	return nil
}

func (d *Daemon) startComponents(ctx context.Context, order []Component) error {
	for _, comp := range order {
		if err := comp.Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", comp.Name(), "error", err)
			return fmt.Errorf("component %s startup failed: %w", comp.Name(), err)
		}
		slog.Info("Component started", "component", comp.Name())
	}
	return nil
}

// stopReady stops initialized components in reverse init order. Stop errors
// are logged and do not keep later components running.
func (d *Daemon) stopReady(ctx context.Context) {
	d.mu.Lock()
	ready := d.ready
	d.ready = nil
	d.mu.Unlock()

	for i := len(ready) - 1; i >= 0; i-- {
		comp := ready[i]
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", comp.Name(), "error", err)
			continue
		}
		slog.Info("Component stopped", "component", comp.Name())
	}
	d.setHealth(StatusStopped)
}

// rollback undoes a partial init. Components that never initialized are left alone.
func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back initialized components...", "data_dir", d.dataDir)
	d.stopReady(ctx)
}

func (d *Daemon) shutdown(ctx context.Context, timeout time.Duration) error {
	d.setHealth(StatusStopping)
	slog.Info("Graceful shutdown initiated", "data_dir", d.dataDir, "timeout", timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.stopReady(ctx)
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Graceful shutdown completed", "data_dir", d.dataDir)
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Error("Shutdown timeout exceeded", "data_dir", d.dataDir, "timeout", timeout)
			return fmt.Errorf("shutdown timeout after %v", timeout)
		}
		return fmt.Errorf("shutdown cancelled: %w", ctx.Err())
	}
}

func (d *Daemon) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(d.timeouts.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkHealth(ctx)
		}
	}
}

// checkHealth logs a component only when it turns unhealthy or recovers, so
// a store outage does not repeat the same warning every interval.
func (d *Daemon) checkHealth(ctx context.Context) {
	healths := d.componentHealth(ctx)
	if ctx.Err() != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for name, h := range healths {
		was := d.unhealthy[name]
		switch {
		case !h.Healthy && !was:
			slog.Warn("Component unhealthy", "component", name, "error", h.Error)
		case h.Healthy && was:
			slog.Info("Component recovered", "component", name)
		}
		d.unhealthy[name] = !h.Healthy
	}
}
