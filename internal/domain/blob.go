package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one stored object, e.g. an alert image.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter archives dispatch reports to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader lists and fetches alert media from object storage. Get wraps
// ErrNotFound for a missing path.
type BlobReader interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}
