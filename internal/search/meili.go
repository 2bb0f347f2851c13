package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/meilisearch/meilisearch-go"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/incident"
	"github.com/harunnryd/autopdf/internal/logger"
)

const primaryKey = "id"

// meiliAPI is the subset of the meilisearch client the index uses.
type meiliAPI interface {
	indexExists(uid string) (bool, error)
	createIndex(uid string) error
	addDocuments(uid string, docs any) error
	search(uid, query string, limit int64) ([]any, error)
}

// MeiliIndex stores index entries in Meilisearch.
type MeiliIndex struct {
	api meiliAPI

	mu      sync.Mutex
	ensured map[string]bool
}

func NewMeiliIndex(host, apiKey string, timeout time.Duration) (*MeiliIndex, error) {
	if strings.TrimSpace(host) == "" {
		return nil, apperrors.InvalidInput("meilisearch url is required")
	}
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:    host,
		APIKey:  apiKey,
		Timeout: timeout,
	})
	return newMeiliIndex(&meiliClient{client: client, timeout: timeout}), nil
}

func newMeiliIndex(api meiliAPI) *MeiliIndex {
	return &MeiliIndex{api: api, ensured: make(map[string]bool)}
}

func (m *MeiliIndex) Name() string {
	return "meilisearch"
}

func (m *MeiliIndex) EnsureIndex(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ensured[name] {
		return nil
	}

	exists, err := m.api.indexExists(name)
	if err != nil {
		return apperrors.WrapWithCategory(err, "get index "+name, apperrors.ErrInternal)
	}
	if !exists {
		if err := m.api.createIndex(name); err != nil {
			return apperrors.WrapWithCategory(err, "create index "+name, apperrors.ErrInternal)
		}
		logger.FromContext(ctx).Info("Search index created", "index", name)
	}
	m.ensured[name] = true
	return nil
}

func (m *MeiliIndex) Upsert(ctx context.Context, name string, entry incident.IndexEntry) error {
	if entry.ID == "" {
		return apperrors.InvalidInput("index entry id is required")
	}
	if err := m.api.addDocuments(name, []incident.IndexEntry{entry}); err != nil {
		return apperrors.WrapWithCategory(err, "index entry "+entry.ID, apperrors.ErrInternal)
	}
	return nil
}

func (m *MeiliIndex) Search(ctx context.Context, name, query string, limit int) ([]incident.IndexEntry, error) {
	hits, err := m.api.search(name, query, int64(clampLimit(limit)))
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "search "+name, apperrors.ErrInternal)
	}

	entries := make([]incident.IndexEntry, 0, len(hits))
	for _, hit := range hits {
		raw, err := json.Marshal(hit)
		if err != nil {
			return nil, apperrors.WrapWithCategory(err, "encode search hit", apperrors.ErrInternal)
		}
		var entry incident.IndexEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, apperrors.WrapWithCategory(err, "decode search hit", apperrors.ErrInternal)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// meiliClient adapts *meilisearch.Client to meiliAPI. Index writes are
// asynchronous tasks; they are awaited so a returned nil means the write is visible.
type meiliClient struct {
	client  *meilisearch.Client
	timeout time.Duration
}

func (c *meiliClient) indexExists(uid string) (bool, error) {
	_, err := c.client.GetIndex(uid)
	if err == nil {
		return true, nil
	}
	if isIndexNotFound(err) {
		return false, nil
	}
	return false, err
}

func (c *meiliClient) createIndex(uid string) error {
	task, err := c.client.CreateIndex(&meilisearch.IndexConfig{Uid: uid, PrimaryKey: primaryKey})
	if err != nil {
		return err
	}
	return c.wait(task)
}

func (c *meiliClient) addDocuments(uid string, docs any) error {
	task, err := c.client.Index(uid).AddDocuments(docs, primaryKey)
	if err != nil {
		return err
	}
	return c.wait(task)
}

func (c *meiliClient) search(uid, query string, limit int64) ([]any, error) {
	resp, err := c.client.Index(uid).Search(query, &meilisearch.SearchRequest{Limit: limit})
	if err != nil {
		return nil, err
	}
	hits := make([]any, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		hits = append(hits, hit)
	}
	return hits, nil
}

func (c *meiliClient) wait(task *meilisearch.TaskInfo) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result, err := c.client.WaitForTask(task.TaskUID, meilisearch.WaitParams{Context: ctx, Interval: 50 * time.Millisecond})
	if err != nil {
		return err
	}
	if result.Status == meilisearch.TaskStatusFailed {
		if result.Error.Code == "index_already_exists" {
			return nil
		}
		return fmt.Errorf("task %d failed: %s", task.TaskUID, result.Error.Message)
	}
	return nil
}

func isIndexNotFound(err error) bool {
	var meiliErr *meilisearch.Error
	if errors.As(err, &meiliErr) && meiliErr.StatusCode == http.StatusNotFound {
		return true
	}
	return strings.Contains(err.Error(), "index_not_found")
}
