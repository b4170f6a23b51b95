// Package supabase adapts the teacher's Supabase-backed storage
// service into the three-method Binary Store contract of spec.md
// §4.B, keying objects directly by node uuid instead of a generated
// filename so write/read/delete are idempotent on the same uuid.
package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/nodeservice"
	supabase "github.com/nedpals/supabase-go"
)

type Config struct {
	URL    string
	APIKey string
	Bucket string
}

type Store struct {
	client *supabase.Client
	bucket string
}

func NewStore(config Config) (*Store, error) {
	client := supabase.CreateClient(config.URL, config.APIKey)
	if client == nil {
		return nil, apperrors.Unknown("failed to create supabase client", nil)
	}
	return &Store{client: client, bucket: config.Bucket}, nil
}

// Metadata is advisory only; Supabase has no use for it beyond the
// content type on upload. It is an alias of nodeservice.BinaryMeta so
// *Store satisfies nodeservice.BinaryStore without an adapter.
type Metadata = nodeservice.BinaryMeta

func (s *Store) Write(ctx context.Context, uuid string, content io.Reader, meta Metadata) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return apperrors.Unknown("failed to read content", err)
	}
	opts := &supabase.FileUploadOptions{ContentType: meta.Mimetype, Upsert: true}
	resp := s.client.Storage.From(s.bucket).Upload(uuid, bytes.NewReader(data), opts)
	if resp.Key == "" {
		return apperrors.Unknown(fmt.Sprintf("failed to upload %s to supabase: %s", uuid, resp.Message), nil)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, uuid string) (io.ReadCloser, error) {
	content, err := s.client.Storage.From(s.bucket).Download(uuid)
	if err != nil {
		return nil, apperrors.NotFound(apperrors.TagNodeFileNotFound, fmt.Sprintf("binary not found for %s", uuid))
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (s *Store) Delete(ctx context.Context, uuid string) error {
	resp := s.client.Storage.From(s.bucket).Remove([]string{uuid})
	if resp.Key == "" {
		return apperrors.NotFound(apperrors.TagNodeFileNotFound, fmt.Sprintf("binary not found for %s", uuid))
	}
	return nil
}
