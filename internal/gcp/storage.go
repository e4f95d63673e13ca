package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/receiptsllc/sheriffsale/internal/services"
)

const writeTimeout = 50 * time.Second

// PageStore is a DocumentStore backed by one Cloud Storage bucket.
type PageStore struct {
	client *storage.Client
	bucket string
	retry  services.RetryPolicy
}

var _ services.DocumentStore = (*PageStore)(nil)

func NewPageStore(ctx context.Context, bucket string, retry services.RetryPolicy) (*PageStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be set")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &PageStore{client: client, bucket: bucket, retry: retry}, nil
}

// Upload writes data to key, retrying transient failures. Objects are only
// created, never overwritten: a precondition failure means an earlier attempt
// already finalized the object, which counts as success.
func (s *PageStore) Upload(ctx context.Context, key string, data []byte) error {
	return services.Retry(ctx, s.retry, s.URL(key), func(ctx context.Context) error {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()

		w := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
		w.ContentType = "application/pdf"
		if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
			_ = w.Close()
			if alreadyExists(err) {
				return nil
			}
			return fmt.Errorf("io.Copy to GCS failed: %w", err)
		}
		if err := w.Close(); err != nil {
			if alreadyExists(err) {
				slog.Info("Object already exists, skipping.", "gcsObject", key)
				return nil
			}
			return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
		}
		return nil
	})
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func (s *PageStore) Download(ctx context.Context, key string) ([]byte, error) {
	return ReadObject(ctx, s.client, s.bucket, key)
}

// URL returns the gs:// URI the extractor reads the page from.
func (s *PageStore) URL(key string) string {
	return GCSURI(s.bucket, key)
}

func GCSURI(bucket, key string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, key)
}

func (s *PageStore) Close() error {
	return s.client.Close()
}
