package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/incident"
	"github.com/harunnryd/autopdf/internal/logger"
)

const pdfContentType = "application/pdf"

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string    `json:"key" yaml:"key"`
	Size         int64     `json:"size" yaml:"size"`
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`
}

// Backend is a bucket-scoped blob store.
type Backend interface {
	EnsureBucket(ctx context.Context) error
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns an error matching apperrors.ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Name() string
}

// Store writes report bytes under content-addressed keys. Concurrent producers
// of identical content may both upload; the bytes are identical so the last
// write wins harmlessly.
type Store struct {
	backend Backend

	mu      sync.Mutex
	ensured bool
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Backend names the storage backend in use.
func (s *Store) Backend() string {
	return s.backend.Name()
}

// ContentAddress returns the sha256 hex digest of data.
func ContentAddress(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ObjectKey derives the storage key of a report version.
func ObjectKey(category incident.Category, incidentID int, contentAddress string) string {
	return fmt.Sprintf("%s/%d/%s.pdf", category, incidentID, contentAddress)
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if err := s.backend.EnsureBucket(ctx); err != nil {
		return apperrors.WrapWithCategory(err, "ensure bucket", apperrors.ErrInternal)
	}
	s.ensured = true
	return nil
}

// Put stores data unless an object with the same key already exists. It
// returns the key and whether the object was already present.
func (s *Store) Put(ctx context.Context, category incident.Category, incidentID int, data []byte) (string, bool, error) {
	if len(data) == 0 {
		return "", false, apperrors.InvalidInput("refusing to store empty report")
	}
	if strings.TrimSpace(string(category)) == "" {
		return "", false, apperrors.InvalidInput("category is required")
	}

	address := ContentAddress(data)
	key := ObjectKey(category, incidentID, address)
	log := logger.FromContext(ctx).With("key", key)

	if err := s.EnsureBucket(ctx); err != nil {
		return "", false, err
	}

	exists, err := s.backend.Exists(ctx, key)
	if err != nil {
		return "", false, apperrors.WrapWithCategory(err, "check object "+key, apperrors.ErrInternal)
	}
	if exists {
		log.Info("Report already stored")
		return key, true, nil
	}

	if err := s.backend.Put(ctx, key, data, pdfContentType); err != nil {
		return "", false, apperrors.WrapWithCategory(err, "upload object "+key, apperrors.ErrInternal)
	}
	log.Info("Report stored", "bytes", len(data), "backend", s.backend.Name())
	return key, false, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.backend.Exists(ctx, key)
}

// Get returns the object bytes, or an error matching apperrors.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.backend.Get(ctx, key)
}

// List returns objects whose key starts with prefix, sorted by key.
func (s *Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	return s.backend.List(ctx, prefix)
}
