package search

import (
	"context"
	"fmt"

	"github.com/harunnryd/autopdf/internal/config"
	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/incident"
)

// Index is an upsert-style metadata index keyed by IndexEntry.ID.
type Index interface {
	// EnsureIndex creates the named index; an existing index is not an error.
	EnsureIndex(ctx context.Context, name string) error
	// Upsert writes or overwrites entry by its id.
	Upsert(ctx context.Context, name string, entry incident.IndexEntry) error
	Search(ctx context.Context, name, query string, limit int) ([]incident.IndexEntry, error)
	Name() string
}

// Embedder turns text into a vector for the embedded backend.
type Embedder func(ctx context.Context, text string) ([]float32, error)

const DefaultSearchLimit = 20

// NewFromConfig builds the configured index backend. embed is only used by the chromem backend.
func NewFromConfig(cfg config.SearchConfig, embed Embedder) (Index, error) {
	switch cfg.Backend {
	case "meilisearch", "":
		timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultSearchTimeout)
		if err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid search timeout: %v", err))
		}
		return NewMeiliIndex(cfg.URL, cfg.MasterKey, timeout)
	case "chromem":
		return NewPersistentChromemIndex(cfg.Path, embed)
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown search backend %q", cfg.Backend))
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}
