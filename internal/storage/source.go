// Package storage resolves list files (seed domains, allow and deny lists)
// from the local filesystem or Google Cloud Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Source opens a readable object by URI.
type Source interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Router dispatches gs:// URIs to GCS and everything else to Local.
type Router struct {
	Local Source
	GCS   Source
}

// Open implements Source.
func (r Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if strings.HasPrefix(uri, "gs://") {
		if r.GCS == nil {
			return nil, fmt.Errorf("open %s: gcs source not configured", uri)
		}
		return r.GCS.Open(ctx, uri)
	}
	if r.Local == nil {
		return nil, fmt.Errorf("open %s: local source not configured", uri)
	}
	return r.Local.Open(ctx, uri)
}
