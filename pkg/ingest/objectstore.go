package ingest

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ObjectStore is the narrow object storage surface the ingestor needs:
// stream-read one object, and copy/delete for the relocation step.
type ObjectStore interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	Copy(ctx context.Context, bucket, srcObject, dstObject string) error
	Delete(ctx context.Context, bucket, object string) error
}

// gcsObjectStore wraps a *storage.Client to satisfy ObjectStore.
type gcsObjectStore struct {
	client *storage.Client
}

// NewGCSObjectStore adapts the concrete Google Cloud Storage client to the
// ObjectStore interface.
func NewGCSObjectStore(client *storage.Client) ObjectStore {
	if client == nil {
		return nil
	}
	return &gcsObjectStore{client: client}
}

func (s *gcsObjectStore) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs reader for %s/%s: %w", bucket, object, err)
	}
	return r, nil
}

func (s *gcsObjectStore) Copy(ctx context.Context, bucket, srcObject, dstObject string) error {
	src := s.client.Bucket(bucket).Object(srcObject)
	dst := s.client.Bucket(bucket).Object(dstObject)
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return fmt.Errorf("gcs copy %s -> %s: %w", srcObject, dstObject, err)
	}
	return nil
}

func (s *gcsObjectStore) Delete(ctx context.Context, bucket, object string) error {
	if err := s.client.Bucket(bucket).Object(object).Delete(ctx); err != nil {
		return fmt.Errorf("gcs delete %s/%s: %w", bucket, object, err)
	}
	return nil
}
