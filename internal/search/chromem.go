package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/incident"
)

const entryMetadataKey = "entry"

// ChromemIndex is an embedded vector index. Entries are embedded from their
// title, report text and solution; the full entry rides along as metadata.
type ChromemIndex struct {
	db    *chromem.DB
	embed Embedder
}

// NewChromemIndex wraps an existing database, typically chromem.NewDB() in tests.
func NewChromemIndex(db *chromem.DB, embed Embedder) (*ChromemIndex, error) {
	if embed == nil {
		return nil, apperrors.InvalidInput("chromem index requires an embedding model")
	}
	return &ChromemIndex{db: db, embed: embed}, nil
}

// NewPersistentChromemIndex opens a database persisted below dir.
func NewPersistentChromemIndex(dir string, embed Embedder) (*ChromemIndex, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, apperrors.InvalidInput("search path is required for the chromem backend")
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "open chromem db", apperrors.ErrInternal)
	}
	return NewChromemIndex(db, embed)
}

func (c *ChromemIndex) Name() string {
	return "chromem"
}

func (c *ChromemIndex) EnsureIndex(ctx context.Context, name string) error {
	if _, err := c.db.GetOrCreateCollection(name, nil, nil); err != nil {
		return apperrors.WrapWithCategory(err, "create collection "+name, apperrors.ErrInternal)
	}
	return nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, name string, entry incident.IndexEntry) error {
	if entry.ID == "" {
		return apperrors.InvalidInput("index entry id is required")
	}
	col, err := c.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return apperrors.WrapWithCategory(err, "open collection "+name, apperrors.ErrInternal)
	}

	content := embeddingText(entry)
	vector, err := c.embed(ctx, content)
	if err != nil {
		return apperrors.WrapWithCategory(err, "embed entry "+entry.ID, apperrors.ErrInternal)
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return apperrors.WrapWithCategory(err, "encode entry "+entry.ID, apperrors.ErrInternal)
	}

	// AddDocuments replaces documents with the same id.
	err = col.AddDocuments(ctx, []chromem.Document{{
		ID: entry.ID,
		Metadata: map[string]string{
			entryMetadataKey: string(encoded),
			"incident_id":    fmt.Sprint(entry.IncidentID),
			"incident_type":  string(entry.Category),
		},
		Embedding: vector,
		Content:   content,
	}}, 1)
	if err != nil {
		return apperrors.WrapWithCategory(err, "index entry "+entry.ID, apperrors.ErrInternal)
	}
	return nil
}

func (c *ChromemIndex) Search(ctx context.Context, name, query string, limit int) ([]incident.IndexEntry, error) {
	col := c.db.GetCollection(name, nil)
	if col == nil || col.Count() == 0 {
		return []incident.IndexEntry{}, nil
	}

	n := clampLimit(limit)
	if count := col.Count(); n > count {
		n = count
	}

	vector, err := c.embed(ctx, query)
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "embed query", apperrors.ErrInternal)
	}
	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "query collection "+name, apperrors.ErrInternal)
	}

	entries := make([]incident.IndexEntry, 0, len(results))
	for _, r := range results {
		var entry incident.IndexEntry
		if err := json.Unmarshal([]byte(r.Metadata[entryMetadataKey]), &entry); err != nil {
			return nil, apperrors.WrapWithCategory(err, "decode entry "+r.ID, apperrors.ErrInternal)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func embeddingText(entry incident.IndexEntry) string {
	parts := []string{entry.Title, string(entry.Category), entry.ReportText, entry.SolutionText}
	var b strings.Builder
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p)
	}
	return b.String()
}
