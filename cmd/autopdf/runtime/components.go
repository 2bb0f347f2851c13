package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/autopdf/internal/config"
	"github.com/harunnryd/autopdf/internal/docextract"
	"github.com/harunnryd/autopdf/internal/generate"
	"github.com/harunnryd/autopdf/internal/glpi"
	"github.com/harunnryd/autopdf/internal/model"
	"github.com/harunnryd/autopdf/internal/objectstore"
	"github.com/harunnryd/autopdf/internal/pipeline"
	"github.com/harunnryd/autopdf/internal/process"
	"github.com/harunnryd/autopdf/internal/render"
	"github.com/harunnryd/autopdf/internal/search"
)

// RuntimeComponents is the wired report pipeline shared by the daemon and the one-shot commands.
type RuntimeComponents struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	Config *config.Config

	Source   *glpi.Client
	Store    *objectstore.Store
	Index    search.Index
	Router   *model.DefaultModelRouter
	Pipeline *pipeline.Orchestrator
}

func NewRuntimeComponents(ctx context.Context, cfg *config.Config) (*RuntimeComponents, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	components := &RuntimeComponents{
		Ctx:    ctx,
		Cancel: cancel,
		Config: cfg,
	}

	if err := components.build(); err != nil {
		cancel()
		return nil, err
	}
	return components, nil
}

func (c *RuntimeComponents) build() error {
	cfg := c.Config

	source, err := glpi.NewFromConfig(cfg.GLPI)
	if err != nil {
		return fmt.Errorf("failed to create GLPI client: %w", err)
	}
	c.Source = source

	store, err := objectstore.NewFromConfig(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}
	c.Store = store

	router, err := model.NewModelRouter(cfg.Models)
	if err != nil {
		return fmt.Errorf("failed to create model router: %w", err)
	}
	c.Router = router

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return router.RouteEmbedding(ctx, cfg.Models.Embedding, text)
	}
	index, err := search.NewFromConfig(cfg.Search, embed)
	if err != nil {
		return fmt.Errorf("failed to create search index: %w", err)
	}
	c.Index = index

	extractTimeout, err := config.DurationOrDefault(cfg.Extract.Timeout, config.DefaultExtractTimeout)
	if err != nil {
		return fmt.Errorf("parse extract timeout: %w", err)
	}

	orch, err := pipeline.New(pipeline.Dependencies{
		Source:      source,
		Processor:   process.New(docextract.New(cfg.Extract.PDFToTextPath, extractTimeout)),
		Drafter:     generate.NewFromConfig(router, cfg),
		Renderer:    render.New(),
		Store:       store,
		Index:       index,
		IndexName:   cfg.Search.Index,
		ReportTitle: cfg.Pipeline.ReportTitle,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	c.Pipeline = orch

	slog.Debug("Runtime components built",
		"storage", store.Backend(),
		"search", index.Name(),
		"models", router.ListModels())
	return nil
}

// Prepare ensures the bucket and the index exist. The daemon does this in its pipeline component.
func (c *RuntimeComponents) Prepare() error {
	if err := c.Store.EnsureBucket(c.Ctx); err != nil {
		return fmt.Errorf("failed to prepare bucket: %w", err)
	}
	if err := c.Index.EnsureIndex(c.Ctx, c.Config.Search.Index); err != nil {
		return fmt.Errorf("failed to prepare index: %w", err)
	}
	return nil
}

func (c *RuntimeComponents) Stop() {
	c.Source.Close(context.WithoutCancel(c.Ctx))
	c.Cancel()
}
