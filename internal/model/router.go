package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/autopdf/internal/config"
	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/logger"
	"github.com/harunnryd/autopdf/internal/model/contract"
	anthropicProvider "github.com/harunnryd/autopdf/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/autopdf/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/autopdf/internal/model/providers/openai"
)

// DefaultModelRouter implements ModelRouter interface
type DefaultModelRouter struct {
	cfg            config.ModelsConfig
	providers      map[string]Provider
	requestTimeout time.Duration
	mu             sync.RWMutex
}

// NewModelRouter creates a new model router
func NewModelRouter(cfg config.ModelsConfig) (*DefaultModelRouter, error) {
	requestTimeout, err := config.DurationOrDefault(cfg.RequestTimeout, config.DefaultModelRequestTimeout)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid models.request_timeout: %v", err))
	}

	router := &DefaultModelRouter{
		cfg:            cfg,
		providers:      make(map[string]Provider),
		requestTimeout: requestTimeout,
	}

	if err := router.initProviders(); err != nil {
		return nil, err
	}

	return router, nil
}

// RegisterProvider adds or replaces the provider serving a model name.
func (r *DefaultModelRouter) RegisterProvider(model string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[model] = provider
}

// Route routes a completion request to the appropriate provider
func (r *DefaultModelRouter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	log := logger.FromContext(ctx)
	log.Debug("Routing completion request", "model", model)

	provider, err := r.resolveProvider(ctx, model)
	if err != nil {
		return nil, err
	}

	resp, err := r.executeWithFallback(ctx, model, provider, req, log)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// RouteEmbedding routes an embedding request to the appropriate provider
func (r *DefaultModelRouter) RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error) {
	log := logger.FromContext(ctx)
	log.Debug("Routing embedding request", "model", model)

	tryModels := r.embeddingTryOrder(model)
	var lastErr error

	for _, tryModel := range tryModels {
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(ctx.Err(), "embedding request cancelled")
		default:
		}

		r.mu.RLock()
		provider, exists := r.providers[tryModel]
		r.mu.RUnlock()
		if !exists {
			continue
		}

		embeddings, err := r.embedWithTimeout(ctx, provider, text)
		if err == nil {
			log.Debug("Embedding completed", "model", tryModel)
			return embeddings, nil
		}

		if isEmbeddingUnsupported(err) {
			log.Debug("Embedding unsupported by provider, trying next model", "model", tryModel, "error", err)
			continue
		}

		lastErr = err
		log.Warn("Embedding failed for model, trying next model", "model", tryModel, "error", err)
	}

	if lastErr != nil {
		return nil, apperrors.WrapWithCategory(lastErr, "embedding failed", apperrors.ErrInternal)
	}

	return nil, apperrors.NotFound("no embedding-capable model configured")
}

func (r *DefaultModelRouter) embeddingTryOrder(requestedModel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.providers)+2)
	order := make([]string, 0, len(r.providers)+2)

	appendUnique := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}

	appendUnique(requestedModel)
	appendUnique(r.cfg.Embedding)
	appendUnique(r.cfg.Fallback)

	registered := make([]string, 0, len(r.providers))
	for name := range r.providers {
		registered = append(registered, name)
	}
	sort.Strings(registered)

	for _, name := range registered {
		appendUnique(name)
	}

	return order
}

func isEmbeddingUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "embedding not supported") ||
		strings.Contains(msg, "embeddings not implemented") ||
		strings.Contains(msg, "not support embeddings")
}

// ListModels returns all registered model names
func (r *DefaultModelRouter) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.providers))
	for name := range r.providers {
		models = append(models, name)
	}
	sort.Strings(models)

	return models
}

// Health checks the health of the router and its providers
func (r *DefaultModelRouter) Health(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, provider := range r.providers {
		if err := provider.Health(ctx); err != nil {
			slog.Warn("Provider unhealthy", "provider", name, "error", err)
			return apperrors.Transient(fmt.Sprintf("provider %s unhealthy", name))
		}
	}

	return nil
}

// initProviders initializes all providers from configuration
func (r *DefaultModelRouter) initProviders() error {
	for _, entry := range r.cfg.Registry {
		provider, err := r.createProvider(entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}

		r.providers[entry.Name] = provider
		slog.Info("Provider initialized", "name", entry.Name, "type", entry.Provider)
	}

	if len(r.providers) == 0 && len(r.cfg.Registry) > 0 {
		return apperrors.Internal("no providers initialized")
	}

	return nil
}

// resolveProvider resolves a provider by model name with fallback
func (r *DefaultModelRouter) resolveProvider(ctx context.Context, model string) (Provider, error) {
	select {
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), "provider resolution cancelled")
	default:
	}

	r.mu.RLock()
	provider, exists := r.providers[model]
	r.mu.RUnlock()

	if !exists {
		slog.Warn("Model not found", "model", model)

		if r.cfg.Fallback != "" && model != r.cfg.Fallback {
			slog.Info("Trying fallback model", "model", model, "fallback", r.cfg.Fallback)

			r.mu.RLock()
			fallbackProvider, fallbackExists := r.providers[r.cfg.Fallback]
			r.mu.RUnlock()
			if !fallbackExists {
				return nil, apperrors.NotFound(fmt.Sprintf("model %s not found", model))
			}

			return fallbackProvider, nil
		}

		return nil, apperrors.NotFound(fmt.Sprintf("model %s not found", model))
	}

	return provider, nil
}

// executeWithFallback executes a request with fallback logic
func (r *DefaultModelRouter) executeWithFallback(ctx context.Context, model string, provider Provider, req contract.CompletionRequest, log *slog.Logger) (*contract.CompletionResponse, error) {
	maxAttempts := r.cfg.MaxFallbackAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultModelMaxFallbackAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	currentModel := model
	currentProvider := provider

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(ctx.Err(), "request execution cancelled")
		default:
		}

		attemptReq := req
		attemptReq.Model = currentModel

		resp, err := r.generateWithTimeout(ctx, currentProvider, attemptReq)
		if err == nil {
			log.Debug("Request completed", "model", currentModel, "attempt", attempt+1)
			return resp, nil
		}

		log.Error("Provider request failed", "model", currentModel, "attempt", attempt+1, "error", err)

		if attempt == 0 && currentModel == r.cfg.Fallback {
			return nil, apperrors.WrapWithCategory(err, "provider request failed", apperrors.ErrInternal)
		}

		if r.cfg.Fallback == "" || currentModel == r.cfg.Fallback {
			return nil, apperrors.WrapWithCategory(err, "provider request failed", apperrors.ErrInternal)
		}

		log.Info("Attempting fallback", "from", currentModel, "to", r.cfg.Fallback)

		r.mu.RLock()
		fallbackProvider, exists := r.providers[r.cfg.Fallback]
		r.mu.RUnlock()
		if !exists {
			return nil, apperrors.NotFound(fmt.Sprintf("fallback model %s not found", r.cfg.Fallback))
		}

		currentModel = r.cfg.Fallback
		currentProvider = fallbackProvider
	}

	return nil, apperrors.Internal("fallback exhausted")
}

// createProvider creates a provider instance based on registry entry
func (r *DefaultModelRouter) createProvider(entry config.ModelRegistry) (Provider, error) {
	switch entry.Provider {
	case "openai":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}

		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for OpenAI provider")
		}

		return &ProviderAdapter{
			provider:     openaiProvider.New(entry.APIKey, baseURL, entry.Name),
			name:         entry.Name,
			providerType: "openai",
		}, nil

	case "ollama":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaBaseURL
		}

		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = config.DefaultOllamaAPIKey
		}

		return &ProviderAdapter{
			provider:     openaiProvider.New(apiKey, baseURL, entry.Name),
			name:         entry.Name,
			providerType: "ollama",
		}, nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for Anthropic provider")
		}

		return &ProviderAdapter{
			provider:     anthropicProvider.New(entry.APIKey, entry.BaseURL),
			name:         entry.Name,
			providerType: "anthropic",
		}, nil

	case "gemini":
		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for Gemini provider")
		}

		provider, err := geminiProvider.New(entry.APIKey)
		if err != nil {
			return nil, apperrors.WrapWithCategory(err, "failed to create Gemini provider", apperrors.ErrInternal)
		}

		return &ProviderAdapter{
			provider:     provider,
			name:         entry.Name,
			providerType: "gemini",
		}, nil

	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}

func (r *DefaultModelRouter) generateWithTimeout(ctx context.Context, provider Provider, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if r.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.requestTimeout)
		defer cancel()
	}
	return provider.Generate(ctx, req)
}

func (r *DefaultModelRouter) embedWithTimeout(ctx context.Context, provider Provider, text string) ([]float32, error) {
	if r.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.requestTimeout)
		defer cancel()
	}
	return provider.Embed(ctx, text)
}
