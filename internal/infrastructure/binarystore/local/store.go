// Package local adapts the teacher's local-disk storage service into
// the three-method Binary Store contract of spec.md §4.B: uuid-keyed
// opaque byte streams, metadata advisory only.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/nodeservice"
)

// Metadata is advisory: a backend may use it to route to a path, but
// the store is otherwise opaque to it (spec.md §4.B). It is an alias
// of nodeservice.BinaryMeta so *Store satisfies nodeservice.BinaryStore
// without an adapter.
type Metadata = nodeservice.BinaryMeta

type Store struct {
	basePath string
}

func NewStore(basePath string) *Store {
	return &Store{basePath: basePath}
}

func (s *Store) path(uuid string) string {
	return filepath.Join(s.basePath, uuid)
}

// Write persists content under uuid, replacing any prior content for
// the same uuid.
func (s *Store) Write(ctx context.Context, uuid string, content io.Reader, meta Metadata) error {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return apperrors.Unknown("failed to create storage directory", err)
	}
	file, err := os.Create(s.path(uuid))
	if err != nil {
		return apperrors.Unknown("failed to create file", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		return apperrors.Unknown("failed to write file content", err)
	}
	return nil
}

// Read returns the stored content for uuid.
func (s *Store) Read(ctx context.Context, uuid string) (io.ReadCloser, error) {
	file, err := os.Open(s.path(uuid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFound(apperrors.TagNodeFileNotFound, fmt.Sprintf("binary not found for %s", uuid))
		}
		return nil, apperrors.Unknown("failed to open file", err)
	}
	return file, nil
}

// Delete removes the stored content for uuid. Deleting an already-
// missing uuid returns NotFound rather than silently succeeding
// (spec.md §7).
func (s *Store) Delete(ctx context.Context, uuid string) error {
	if err := os.Remove(s.path(uuid)); err != nil {
		if os.IsNotExist(err) {
			return apperrors.NotFound(apperrors.TagNodeFileNotFound, fmt.Sprintf("binary not found for %s", uuid))
		}
		return apperrors.Unknown("failed to delete file", err)
	}
	return nil
}
