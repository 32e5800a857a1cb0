// Package storage stores export archives in an S3-compatible bucket.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the subset of object storage the export flow needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
