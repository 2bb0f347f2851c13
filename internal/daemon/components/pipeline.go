package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/autopdf/internal/daemon"
)

const PipelineComponentName = "Pipeline"

// BucketEnsurer prepares the report bucket.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// IndexEnsurer prepares the search index.
type IndexEnsurer interface {
	EnsureIndex(ctx context.Context, name string) error
}

// ModelHealth reports whether the drafting models are reachable.
type ModelHealth interface {
	Health(ctx context.Context) error
}

// PipelineComponent prepares the storage bucket and search index before the
// webhook starts accepting deliveries.
type PipelineComponent struct {
	store       BucketEnsurer
	index       IndexEnsurer
	indexName   string
	models      ModelHealth
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewPipelineComponent(store BucketEnsurer, index IndexEnsurer, indexName string, models ModelHealth) *PipelineComponent {
	return &PipelineComponent{
		store:     store,
		index:     index,
		indexName: indexName,
		models:    models,
	}
}

func (p *PipelineComponent) Name() string {
	return PipelineComponentName
}

func (p *PipelineComponent) Dependencies() []string {
	return []string{}
}

func (p *PipelineComponent) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("Pipeline init cancelled: %w", ctx.Err())
	default:
	}

	if err := p.store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	if err := p.index.EnsureIndex(ctx, p.indexName); err != nil {
		return fmt.Errorf("ensure index %s: %w", p.indexName, err)
	}

	p.initialized = true
	slog.Info("Pipeline initialized", "component", p.Name(), "index", p.indexName)
	return nil
}

func (p *PipelineComponent) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return fmt.Errorf("Pipeline not initialized")
	}

	p.started = true
	p.startTime = time.Now()
	slog.Info("Pipeline started", "component", p.Name())
	return nil
}

func (p *PipelineComponent) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		slog.Info("Pipeline not started, skipping stop", "component", p.Name())
		return nil
	}

	p.started = false
	slog.Info("Pipeline stopped", "component", p.Name())
	return nil
}

func (p *PipelineComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return &daemon.ComponentHealth{
			Name:    p.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !p.started {
		return &daemon.ComponentHealth{
			Name:    p.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	if p.models != nil {
		if err := p.models.Health(ctx); err != nil {
			return &daemon.ComponentHealth{
				Name:    p.Name(),
				Healthy: false,
				Error:   fmt.Errorf("models: %w", err),
			}, nil
		}
	}

	return &daemon.ComponentHealth{
		Name:    p.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}
