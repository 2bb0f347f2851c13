package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/autopdf/internal/config"
	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/model/contract"
)

type stubProvider struct {
	name     string
	content  string
	err      error
	embedErr error
	calls    []contract.CompletionRequest
}

func (s *stubProvider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &contract.CompletionResponse{Content: s.content}, nil
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	return []float32{1, 0}, nil
}

func (s *stubProvider) Name() string                     { return s.name }
func (s *stubProvider) Type() string                     { return "stub" }
func (s *stubProvider) Health(ctx context.Context) error { return nil }

func newTestRouter(t *testing.T, cfg config.ModelsConfig) *DefaultModelRouter {
	t.Helper()
	r, err := NewModelRouter(cfg)
	require.NoError(t, err)
	return r
}

func TestNewModelRouter_CreatesConfiguredProviders(t *testing.T) {
	r := newTestRouter(t, config.ModelsConfig{Registry: []config.ModelRegistry{
		{Name: "gpt-4o-mini", Provider: "openai", APIKey: "sk"},
		{Name: "llama3", Provider: "ollama"},
		{Name: "claude", Provider: "anthropic", APIKey: "ant"},
	}})

	assert.Equal(t, []string{"claude", "gpt-4o-mini", "llama3"}, r.ListModels())
}

func TestNewModelRouter_AllProvidersInvalid(t *testing.T) {
	_, err := NewModelRouter(config.ModelsConfig{Registry: []config.ModelRegistry{
		{Name: "gpt-4o-mini", Provider: "openai"},
	}})
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}

func TestNewModelRouter_InvalidTimeout(t *testing.T) {
	_, err := NewModelRouter(config.ModelsConfig{RequestTimeout: "forever"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRoute_UsesRequestedModel(t *testing.T) {
	r := newTestRouter(t, config.ModelsConfig{})
	primary := &stubProvider{name: "primary", content: "report"}
	r.RegisterProvider("primary", primary)

	resp, err := r.Route(context.Background(), "primary", contract.CompletionRequest{Temperature: 0.2, MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "report", resp.Content)
	require.Len(t, primary.calls, 1)
	assert.Equal(t, "primary", primary.calls[0].Model)
	assert.Equal(t, 100, primary.calls[0].MaxTokens)
}

func TestRoute_FallsBackOnFailure(t *testing.T) {
	r := newTestRouter(t, config.ModelsConfig{Fallback: "backup"})
	primary := &stubProvider{name: "primary", err: errors.New("503")}
	backup := &stubProvider{name: "backup", content: "from backup"}
	r.RegisterProvider("primary", primary)
	r.RegisterProvider("backup", backup)

	resp, err := r.Route(context.Background(), "primary", contract.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Content)
	require.Len(t, backup.calls, 1)
	assert.Equal(t, "backup", backup.calls[0].Model)
}

func TestRoute_UnknownModel(t *testing.T) {
	r := newTestRouter(t, config.ModelsConfig{})
	_, err := r.Route(context.Background(), "missing", contract.CompletionRequest{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRoute_FailureWithoutFallbackIsInternal(t *testing.T) {
	r := newTestRouter(t, config.ModelsConfig{})
	r.RegisterProvider("primary", &stubProvider{err: errors.New("boom")})

	_, err := r.Route(context.Background(), "primary", contract.CompletionRequest{})
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}

func TestRouteEmbedding_SkipsUnsupportedProviders(t *testing.T) {
	r := newTestRouter(t, config.ModelsConfig{Embedding: "embedder"})
	r.RegisterProvider("chat", &stubProvider{embedErr: errors.New("embedding not supported by anthropic provider")})
	r.RegisterProvider("embedder", &stubProvider{})

	vec, err := r.RouteEmbedding(context.Background(), "chat", "network outage")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
}

func TestRouteEmbedding_NoCapableModel(t *testing.T) {
	r := newTestRouter(t, config.ModelsConfig{})
	r.RegisterProvider("chat", &stubProvider{embedErr: errors.New("embedding not supported")})

	_, err := r.RouteEmbedding(context.Background(), "chat", "text")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
