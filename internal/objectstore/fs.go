package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
)

// FSBackend stores objects as files below root/bucket. Writes are atomic
// renames so readers never observe a partial report.
type FSBackend struct {
	dir string
}

func NewFSBackend(root, bucket string) (*FSBackend, error) {
	if strings.TrimSpace(root) == "" {
		return nil, apperrors.InvalidInput("storage path is required")
	}
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid bucket name %q", bucket))
	}
	return &FSBackend{dir: filepath.Join(root, bucket)}, nil
}

func (b *FSBackend) Name() string {
	return "filesystem"
}

func (b *FSBackend) EnsureBucket(ctx context.Context) error {
	return os.MkdirAll(b.dir, 0755)
}

func (b *FSBackend) Exists(ctx context.Context, key string) (bool, error) {
	p, err := b.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (b *FSBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	return atomic.WriteFile(p, bytes.NewReader(data))
}

func (b *FSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NotFound(fmt.Sprintf("object %s", key))
	}
	return data, err
}

func (b *FSBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.WalkDir(b.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == b.dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (b *FSBackend) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean[1:] != key {
		return "", apperrors.InvalidInput(fmt.Sprintf("invalid object key %q", key))
	}
	return filepath.Join(b.dir, filepath.FromSlash(key)), nil
}
