// Package gcs reads list files from Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Source opens gs://bucket/object URIs.
type Source struct {
	client *storage.Client
}

// New creates a GCS-backed source.
func New(client *storage.Client) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return &Source{client: client}, nil
}

// Open returns a reader for the object named by uri.
func (s *Source) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	return r, nil
}

// Close releases the client.
func (s *Source) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || strings.TrimSpace(object) == "" {
		return "", "", fmt.Errorf("gs uri %q needs bucket and object", uri)
	}
	return bucket, object, nil
}
