package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStore keeps one object per document under gs://<bucket>/<prefix>/.
// GCS object writes are finalized on Close, so a document is replaced
// atomically at the object level. It assumes Application Default Credentials
// are configured (gcloud auth application-default login).
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore wraps an existing client; the caller owns the client lifecycle.
func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	prefix = strings.Trim(prefix, "/")
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *GCSStore) object(key string) string {
	if s.prefix == "" {
		return key + fileExt
	}
	return s.prefix + "/" + key + fileExt
}

// Read implements DocumentStore.
func (s *GCSStore) Read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(s.object(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("read object %s/%s: %w", s.bucket, s.object(key), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object bytes %s/%s: %w", s.bucket, s.object(key), err)
	}
	return data, nil
}

// Write implements DocumentStore.
func (s *GCSStore) Write(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(s.object(key)).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s/%s: %w", s.bucket, s.object(key), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s/%s: %w", s.bucket, s.object(key), err)
	}
	return nil
}

// List implements DocumentStore.
func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	query := &storage.Query{}
	if s.prefix != "" {
		query.Prefix = s.prefix + "/"
	}

	var keys []string
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects in %s/%s: %w", s.bucket, s.prefix, err)
		}

		name := strings.TrimPrefix(attrs.Name, query.Prefix)
		if !strings.HasSuffix(name, fileExt) || strings.Contains(name, "/") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements DocumentStore.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(s.object(key)).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotExist
		}
		return fmt.Errorf("delete object %s/%s: %w", s.bucket, s.object(key), err)
	}
	return nil
}

// Ensure GCSStore implements DocumentStore.
var _ DocumentStore = (*GCSStore)(nil)
